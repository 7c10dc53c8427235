package config

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Genesis describes the initial deployment of the protocol: the tokens it
// trades in, their starting balances, the lending pool parameters, reward
// funding and an optional yield vault.
type Genesis struct {
	Protocol    Protocol     `toml:"protocol"`
	Tokens      []TokenSpec  `toml:"tokens"`
	Allocations []Allocation `toml:"allocations"`
	Vault       *VaultSpec   `toml:"vault,omitempty"`
}

// Protocol configures the lending pool.
type Protocol struct {
	BaseAsset           string `toml:"base_asset"`
	RewardAsset         string `toml:"reward_asset"`
	Pool                string `toml:"pool,omitempty"`
	CollateralFactorBps uint64 `toml:"collateral_factor_bps"`
	RewardRateBps       uint64 `toml:"reward_rate_bps"`
	FlashLoanFeeBps     uint64 `toml:"flash_loan_fee_bps"`
	// RewardFunding is minted to the pool in the reward asset at bootstrap.
	RewardFunding string `toml:"reward_funding,omitempty"`

	pool          common.Address
	rewardFunding *big.Int
}

// TokenSpec registers one token.
type TokenSpec struct {
	Symbol        string `toml:"symbol"`
	Name          string `toml:"name"`
	Decimals      uint8  `toml:"decimals"`
	MintAuthority string `toml:"mint_authority"`

	mintAuthority common.Address
}

// Allocation mints an initial balance.
type Allocation struct {
	Account string `toml:"account"`
	Token   string `toml:"token"`
	Amount  string `toml:"amount"`

	account common.Address
	amount  *big.Int
}

// VaultSpec configures the yield vault.
type VaultSpec struct {
	Name             string  `toml:"name"`
	ShareSymbol      string  `toml:"share_symbol"`
	Underlying       string  `toml:"underlying"`
	Manager          string  `toml:"manager"`
	Agent            string  `toml:"agent"`
	Treasury         string  `toml:"treasury"`
	WithdrawalFeeBps *uint64 `toml:"withdrawal_fee_bps,omitempty"`
	YieldRateBps     *uint64 `toml:"yield_rate_bps,omitempty"`

	manager  common.Address
	agent    common.Address
	treasury common.Address
}

// PoolAddress returns the resolved pool account.
func (p Protocol) PoolAddress() common.Address { return p.pool }

// RewardFundingAmount returns the parsed reward funding, zero when unset.
func (p Protocol) RewardFundingAmount() *big.Int {
	if p.rewardFunding == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(p.rewardFunding)
}
