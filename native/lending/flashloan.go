package lending

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"yeifinance/core/events"
	"yeifinance/core/state"
)

// FlashLoan describes an in-flight loan handed to the borrower callback.
type FlashLoan struct {
	Account common.Address
	Asset   string
	Pool    common.Address
	Amount  *big.Int
	Fee     *big.Int
	// Tx is the enclosing execution. Balance changes the borrower makes
	// through it are part of the loan's atomic step.
	Tx *state.Tx
}

// Repayment is the amount the pool pulls back once the callback returns.
func (l FlashLoan) Repayment() *big.Int {
	return new(big.Int).Add(l.Amount, l.Fee)
}

// FlashBorrower receives flash-loaned funds. OnFlashLoan runs while the
// ledger is locked: engine operations and views called from it fail with
// ErrReentrantCall, and balances are reached through the loan's Tx. Before
// returning, the account must hold the repayment and have approved the pool
// for it.
type FlashBorrower interface {
	OnFlashLoan(ctx context.Context, loan FlashLoan) error
}

// FlashBorrowerFunc adapts a function to FlashBorrower.
type FlashBorrowerFunc func(ctx context.Context, loan FlashLoan) error

// OnFlashLoan implements FlashBorrower.
func (f FlashBorrowerFunc) OnFlashLoan(ctx context.Context, loan FlashLoan) error {
	return f(ctx, loan)
}

// FlashLoan lends amount of the base asset to account for the duration of a
// single atomic step. The funds are sent out, the optional receiver is
// invoked, and amount plus fee is pulled back from account. If repayment
// fails for any reason, or the pool ends up holding less than it started
// with plus the fee, every effect of the step is reverted. The loan never
// touches the account's ledger record.
func (e *Engine) FlashLoan(ctx context.Context, account common.Address, amount *big.Int, receiver FlashBorrower) (*state.Receipt, error) {
	started := time.Now()
	if e == nil || e.manager == nil {
		return nil, ErrNotConfigured
	}
	value, err := positiveAmount(amount)
	if err == nil {
		err = e.checkAccount(account)
	}
	var fee, repayment *uint256.Int
	if err == nil {
		fee, err = mulDivBps(value, e.params.FlashLoanFeeBps)
	}
	if err == nil {
		repayment, err = checkedAdd(value, fee)
	}
	if err != nil {
		e.observe(actionFlashLoan, account, amount, nil, err, started)
		return nil, err
	}

	receipt, err := e.manager.Execute(ctx, moduleName+"."+actionFlashLoan, func(tx *state.Tx) error {
		mkt, err := e.loadTotals(tx)
		if err != nil {
			return err
		}
		pool := e.base.Pool()
		before, err := e.base.BalanceOf(tx, pool)
		if err != nil {
			return err
		}
		if err := e.base.TransferOut(tx, account, value.ToBig()); err != nil {
			return err
		}
		if receiver != nil {
			loan := FlashLoan{
				Account: account,
				Asset:   e.base.Symbol(),
				Pool:    pool,
				Amount:  value.ToBig(),
				Fee:     fee.ToBig(),
				Tx:      tx,
			}
			err := tx.Callout(func(ctx context.Context) error {
				return receiver.OnFlashLoan(ctx, loan)
			})
			if err != nil {
				return fmt.Errorf("flash loan receiver: %w", err)
			}
		}
		if err := e.base.TransferIn(tx, account, repayment.ToBig()); err != nil {
			return fmt.Errorf("%w: %w", ErrFlashLoanNotRepaid, err)
		}
		after, err := e.base.BalanceOf(tx, pool)
		if err != nil {
			return err
		}
		if after.Cmp(new(big.Int).Add(before, fee.ToBig())) < 0 {
			return ErrFlashLoanNotRepaid
		}
		totalFees, err := checkedAdd(mkt.flashFees, fee)
		if err != nil {
			return err
		}
		mkt.flashFees = totalFees
		mkt.flashCount++
		if err := e.store(tx, account, nil, mkt); err != nil {
			return err
		}
		tx.AddLog(events.FlashLoan{
			Account: account,
			Asset:   e.base.Symbol(),
			Amount:  value.ToBig(),
			Fee:     fee.ToBig(),
			TxHash:  tx.Hash(),
		})
		return nil
	})
	if err == nil {
		e.metrics.IncFlashLoan()
	}
	e.observe(actionFlashLoan, account, amount, receipt, err, started)
	return receipt, err
}
