// Package api holds the JSON shapes exchanged by the lending HTTP server and
// its clients. Amounts travel as base-10 strings.
package api

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

type AmountRequest struct {
	// Account defaults to the authenticated subject when empty.
	Account string `json:"account,omitempty"`
	Amount  string `json:"amount"`
}

type AccountRequest struct {
	Account string `json:"account,omitempty"`
}

type ApproveRequest struct {
	Owner string `json:"owner,omitempty"`
	// Spender accepts an address or the aliases "pool" and "vault"; empty
	// means the lending pool.
	Spender string `json:"spender,omitempty"`
	Amount  string `json:"amount"`
}

type TransferRequest struct {
	From   string `json:"from,omitempty"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type MintRequest struct {
	Authority string `json:"authority,omitempty"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
}

type VaultWithdrawRequest struct {
	Account string `json:"account,omitempty"`
	Shares  string `json:"shares"`
}

// Event is the attribute form of a protocol event.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

type TxResponse struct {
	TxHash   string  `json:"txHash"`
	Sequence uint64  `json:"sequence"`
	Events   []Event `json:"events"`
}

type VaultTxResponse struct {
	TxResponse
	Assets string `json:"assets"`
	Shares string `json:"shares"`
	Fee    string `json:"fee"`
}

type Position struct {
	Address       string `json:"address"`
	Deposited     string `json:"deposited"`
	Borrowed      string `json:"borrowed"`
	PendingReward string `json:"pendingReward"`
	BorrowLimit   string `json:"borrowLimit"`
	Available     string `json:"available"`
}

type Market struct {
	TotalDeposited      string `json:"totalDeposited"`
	TotalBorrowed       string `json:"totalBorrowed"`
	TotalRewardsAccrued string `json:"totalRewardsAccrued"`
	TotalRewardsClaimed string `json:"totalRewardsClaimed"`
	FlashLoanFees       string `json:"flashLoanFees"`
	FlashLoanCount      uint64 `json:"flashLoanCount"`
}

type Solvency struct {
	PoolBalance       string `json:"poolBalance"`
	Required          string `json:"required"`
	RewardBalance     string `json:"rewardBalance"`
	OutstandingReward string `json:"outstandingReward"`
	Solvent           bool   `json:"solvent"`
}

type Protocol struct {
	BaseAsset           string   `json:"baseAsset"`
	RewardAsset         string   `json:"rewardAsset"`
	Pool                string   `json:"pool"`
	CollateralFactorBps uint64   `json:"collateralFactorBps"`
	RewardRateBps       uint64   `json:"rewardRateBps"`
	FlashLoanFeeBps     uint64   `json:"flashLoanFeeBps"`
	Market              Market   `json:"market"`
	Solvency            Solvency `json:"solvency"`
}

type TokenInfo struct {
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	Decimals      uint8  `json:"decimals"`
	MintAuthority string `json:"mintAuthority"`
	TotalSupply   string `json:"totalSupply"`
}

type Balance struct {
	Symbol        string `json:"symbol"`
	Address       string `json:"address"`
	Balance       string `json:"balance"`
	PoolAllowance string `json:"poolAllowance"`
}

type VaultInfo struct {
	Name             string    `json:"name"`
	Address          string    `json:"address"`
	ShareSymbol      string    `json:"shareSymbol"`
	Underlying       string    `json:"underlying"`
	Manager          string    `json:"manager"`
	Agent            string    `json:"agent"`
	Treasury         string    `json:"treasury"`
	WithdrawalFeeBps uint64    `json:"withdrawalFeeBps"`
	YieldRateBps     uint64    `json:"yieldRateBps"`
	LastHarvest      time.Time `json:"lastHarvest"`
	TotalAssets      string    `json:"totalAssets"`
	TotalShares      string    `json:"totalShares"`
	TotalYield       string    `json:"totalYield"`
	TotalFees        string    `json:"totalFees"`
}

type VaultShares struct {
	Address string `json:"address"`
	Shares  string `json:"shares"`
	Assets  string `json:"assets"`
}

type IndexedEvent struct {
	Seq          uint64            `json:"seq"`
	Type         string            `json:"type"`
	TxHash       string            `json:"txHash,omitempty"`
	Asset        string            `json:"asset,omitempty"`
	Account      string            `json:"account,omitempty"`
	Counterparty string            `json:"counterparty,omitempty"`
	Attributes   map[string]string `json:"attributes"`
	CreatedAt    time.Time         `json:"createdAt"`
}

type EventsResponse struct {
	Events []IndexedEvent `json:"events"`
	// Next is the cursor to pass as "after" for the following page.
	Next uint64 `json:"next,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// FormatAmount renders nil as zero.
func FormatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

// ParseAmount parses a base-10 integer. An empty string yields nil so the
// engine reports the missing amount itself.
func ParseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a base-10 integer", raw)
	}
	return amount, nil
}
