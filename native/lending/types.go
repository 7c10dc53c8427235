package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Account is the ledger record of one participant. Amounts are denominated
// in the smallest unit of the base asset, except PendingReward which is in
// reward-token units.
type Account struct {
	// Address identifies the participant.
	Address common.Address
	// Deposited is the cumulative net deposit held as collateral.
	Deposited *big.Int
	// Borrowed is the outstanding debt.
	Borrowed *big.Int
	// PendingReward is the unclaimed reward entitlement.
	PendingReward *big.Int
}

// Position decorates an account with its current borrowing headroom.
type Position struct {
	Account
	// BorrowLimit is floor(Deposited * CollateralFactorBps / 10000).
	BorrowLimit *big.Int
	// Available is BorrowLimit - Borrowed.
	Available *big.Int
}

// Market aggregates the ledger across every account.
type Market struct {
	TotalDeposited      *big.Int
	TotalBorrowed       *big.Int
	TotalRewardsAccrued *big.Int
	TotalRewardsClaimed *big.Int
	FlashLoanFees       *big.Int
	FlashLoanCount      uint64
}

// Solvency compares the pool's holdings against what the ledger owes.
type Solvency struct {
	PoolBalance       *big.Int
	Required          *big.Int
	RewardBalance     *big.Int
	OutstandingReward *big.Int
	// Solvent reports PoolBalance >= Required. Reward funding is reported but
	// does not affect solvency; claims surface underfunding on their own.
	Solvent bool
}

// accountRecord is the persisted form of Account.
type accountRecord struct {
	Deposited     *big.Int
	Borrowed      *big.Int
	PendingReward *big.Int
}

type marketRecord struct {
	TotalDeposited      *big.Int
	TotalBorrowed       *big.Int
	TotalRewardsAccrued *big.Int
	TotalRewardsClaimed *big.Int
	FlashLoanFees       *big.Int
	FlashLoanCount      uint64
}

// position is the working copy of an account record during an operation.
type position struct {
	deposited *uint256.Int
	borrowed  *uint256.Int
	pending   *uint256.Int
}

func (p *position) record() accountRecord {
	return accountRecord{
		Deposited:     p.deposited.ToBig(),
		Borrowed:      p.borrowed.ToBig(),
		PendingReward: p.pending.ToBig(),
	}
}

func (p *position) account(addr common.Address) Account {
	return Account{
		Address:       addr,
		Deposited:     p.deposited.ToBig(),
		Borrowed:      p.borrowed.ToBig(),
		PendingReward: p.pending.ToBig(),
	}
}

type totals struct {
	deposited      *uint256.Int
	borrowed       *uint256.Int
	rewardsAccrued *uint256.Int
	rewardsClaimed *uint256.Int
	flashFees      *uint256.Int
	flashCount     uint64
}

func (t *totals) record() marketRecord {
	return marketRecord{
		TotalDeposited:      t.deposited.ToBig(),
		TotalBorrowed:       t.borrowed.ToBig(),
		TotalRewardsAccrued: t.rewardsAccrued.ToBig(),
		TotalRewardsClaimed: t.rewardsClaimed.ToBig(),
		FlashLoanFees:       t.flashFees.ToBig(),
		FlashLoanCount:      t.flashCount,
	}
}

func (t *totals) market() Market {
	rec := t.record()
	return Market(rec)
}
