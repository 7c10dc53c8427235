package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"yeifinance/core/state"
)

// GetBalance returns the account's deposited amount.
func (e *Engine) GetBalance(account common.Address) (*big.Int, error) {
	acct, err := e.Account(account)
	if err != nil {
		return nil, err
	}
	return acct.Deposited, nil
}

// GetBorrowedAmount returns the account's outstanding debt.
func (e *Engine) GetBorrowedAmount(account common.Address) (*big.Int, error) {
	acct, err := e.Account(account)
	if err != nil {
		return nil, err
	}
	return acct.Borrowed, nil
}

// GetPendingReward returns the account's unclaimed reward entitlement.
func (e *Engine) GetPendingReward(account common.Address) (*big.Int, error) {
	acct, err := e.Account(account)
	if err != nil {
		return nil, err
	}
	return acct.PendingReward, nil
}

// Account returns the ledger record of account. Unknown accounts read as
// all-zero.
func (e *Engine) Account(account common.Address) (Account, error) {
	var out Account
	err := e.view(func(st state.Store) error {
		pos, err := e.loadPosition(st, account)
		if err != nil {
			return err
		}
		out = pos.account(account)
		return nil
	})
	return out, err
}

// Position returns the account record together with its borrowing headroom.
func (e *Engine) Position(account common.Address) (Position, error) {
	var out Position
	err := e.view(func(st state.Store) error {
		pos, err := e.loadPosition(st, account)
		if err != nil {
			return err
		}
		limit, err := mulDivBps(pos.deposited, e.params.CollateralFactorBps)
		if err != nil {
			return err
		}
		available := new(uint256.Int)
		if limit.Gt(pos.borrowed) {
			available.Sub(limit, pos.borrowed)
		}
		out = Position{
			Account:     pos.account(account),
			BorrowLimit: limit.ToBig(),
			Available:   available.ToBig(),
		}
		return nil
	})
	return out, err
}

// Market returns the aggregate ledger totals.
func (e *Engine) Market() (Market, error) {
	var out Market
	err := e.view(func(st state.Store) error {
		mkt, err := e.loadTotals(st)
		if err != nil {
			return err
		}
		out = mkt.market()
		return nil
	})
	return out, err
}

// CheckSolvency compares the pool's base-asset holdings with the net amount
// the ledger owes depositors, and reports reward funding alongside.
func (e *Engine) CheckSolvency() (Solvency, error) {
	var out Solvency
	err := e.view(func(st state.Store) error {
		mkt, err := e.loadTotals(st)
		if err != nil {
			return err
		}
		poolBalance, err := e.base.BalanceOf(st, e.base.Pool())
		if err != nil {
			return err
		}
		rewardBalance, err := e.reward.BalanceOf(st, e.reward.Pool())
		if err != nil {
			return err
		}
		required := new(big.Int).Sub(mkt.deposited.ToBig(), mkt.borrowed.ToBig())
		if required.Sign() < 0 {
			required.SetInt64(0)
		}
		out = Solvency{
			PoolBalance:       poolBalance,
			Required:          required,
			RewardBalance:     rewardBalance,
			OutstandingReward: new(big.Int).Sub(mkt.rewardsAccrued.ToBig(), mkt.rewardsClaimed.ToBig()),
			Solvent:           poolBalance.Cmp(required) >= 0,
		}
		return nil
	})
	return out, err
}

func (e *Engine) view(fn func(st state.Store) error) error {
	if e == nil || e.manager == nil {
		return ErrNotConfigured
	}
	return e.manager.View(fn)
}
