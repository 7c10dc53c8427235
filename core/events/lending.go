package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"yeifinance/core/types"
)

const (
	// TypeLendingDeposited is emitted when base asset enters the pool as collateral.
	TypeLendingDeposited = "lending.deposited"
	// TypeLendingBorrowed is emitted when base asset leaves the pool as debt.
	TypeLendingBorrowed = "lending.borrowed"
	// TypeLendingRepaid is emitted when outstanding debt is reduced.
	TypeLendingRepaid = "lending.repaid"
	// TypeLendingWithdrawn is emitted when collateral is returned to its owner.
	TypeLendingWithdrawn = "lending.withdrawn"
	// TypeLendingRewardsClaimed is emitted when pending rewards are paid out.
	TypeLendingRewardsClaimed = "lending.rewardsClaimed"
	// TypeLendingFlashLoan is emitted after a flash loan has been repaid.
	TypeLendingFlashLoan = "lending.flashLoan"
)

// LendingAction is the shared payload of the single-amount lending events.
type LendingAction struct {
	Kind    string
	Account common.Address
	Asset   string
	Amount  *big.Int
	TxHash  common.Hash
}

// EventType implements Event.
func (e LendingAction) EventType() string { return e.Kind }

// Event renders the attribute form.
func (e LendingAction) Event() *types.Event {
	attrs := map[string]string{
		"account": e.Account.Hex(),
		"amount":  formatAmount(e.Amount),
	}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	withTxHash(attrs, e.TxHash)
	return &types.Event{Type: e.Kind, Attributes: attrs}
}

// Deposited builds a deposit event.
func Deposited(account common.Address, asset string, amount *big.Int, tx common.Hash) LendingAction {
	return LendingAction{Kind: TypeLendingDeposited, Account: account, Asset: asset, Amount: amount, TxHash: tx}
}

// Borrowed builds a borrow event.
func Borrowed(account common.Address, asset string, amount *big.Int, tx common.Hash) LendingAction {
	return LendingAction{Kind: TypeLendingBorrowed, Account: account, Asset: asset, Amount: amount, TxHash: tx}
}

// Repaid builds a repayment event.
func Repaid(account common.Address, asset string, amount *big.Int, tx common.Hash) LendingAction {
	return LendingAction{Kind: TypeLendingRepaid, Account: account, Asset: asset, Amount: amount, TxHash: tx}
}

// Withdrawn builds a withdrawal event.
func Withdrawn(account common.Address, asset string, amount *big.Int, tx common.Hash) LendingAction {
	return LendingAction{Kind: TypeLendingWithdrawn, Account: account, Asset: asset, Amount: amount, TxHash: tx}
}

// RewardsClaimed builds a reward payout event.
func RewardsClaimed(account common.Address, asset string, amount *big.Int, tx common.Hash) LendingAction {
	return LendingAction{Kind: TypeLendingRewardsClaimed, Account: account, Asset: asset, Amount: amount, TxHash: tx}
}

// FlashLoan records a repaid flash loan together with the fee retained by the pool.
type FlashLoan struct {
	Account common.Address
	Asset   string
	Amount  *big.Int
	Fee     *big.Int
	TxHash  common.Hash
}

// EventType implements Event.
func (FlashLoan) EventType() string { return TypeLendingFlashLoan }

// Event renders the attribute form.
func (e FlashLoan) Event() *types.Event {
	attrs := map[string]string{
		"account": e.Account.Hex(),
		"amount":  formatAmount(e.Amount),
		"fee":     formatAmount(e.Fee),
	}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	withTxHash(attrs, e.TxHash)
	return &types.Event{Type: TypeLendingFlashLoan, Attributes: attrs}
}
