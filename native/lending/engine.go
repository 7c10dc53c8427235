package lending

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"yeifinance/core/events"
	"yeifinance/core/state"
	"yeifinance/observability/metrics"
)

const moduleName = "lending"

const (
	actionDeposit   = "deposit"
	actionBorrow    = "borrow"
	actionRepay     = "repay"
	actionWithdraw  = "withdraw"
	actionClaim     = "claimRewards"
	actionFlashLoan = "flashLoan"
)

// Engine orchestrates the state transitions of the lending pool. Every
// mutating operation runs as one atomic execution on the state manager, so
// operations are serialized and either commit completely or leave no trace.
type Engine struct {
	manager *state.Manager
	base    Asset
	reward  Asset
	params  Config
	logger  *slog.Logger
	metrics *metrics.LendingMetrics
}

// NewEngine constructs a lending engine over the base and reward assets.
func NewEngine(manager *state.Manager, base, reward Asset, cfg Config) (*Engine, error) {
	if manager == nil || base == nil || reward == nil {
		return nil, ErrNotConfigured
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if base.Symbol() == reward.Symbol() && base.Pool() == reward.Pool() {
		return nil, fmt.Errorf("%w: reward payouts would draw on collateral", ErrInvalidConfig)
	}
	return &Engine{
		manager: manager,
		base:    base,
		reward:  reward,
		params:  cfg,
		logger:  slog.Default().With(slog.String("component", moduleName)),
		metrics: metrics.Lending(),
	}, nil
}

// SetLogger overrides the engine logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger.With(slog.String("component", moduleName))
}

// Params returns the immutable engine parameters.
func (e *Engine) Params() Config {
	if e == nil {
		return Config{}
	}
	return e.params
}

// BaseAsset returns the symbol of the collateral and borrow asset.
func (e *Engine) BaseAsset() string {
	if e == nil || e.base == nil {
		return ""
	}
	return e.base.Symbol()
}

// GetRewardToken returns the symbol of the reward asset.
func (e *Engine) GetRewardToken() string {
	if e == nil || e.reward == nil {
		return ""
	}
	return e.reward.Symbol()
}

// Pool returns the account holding the pool's assets.
func (e *Engine) Pool() common.Address {
	if e == nil || e.base == nil {
		return common.Address{}
	}
	return e.base.Pool()
}

// Deposit pulls amount of the base asset from account into the pool and
// credits the deposit together with its reward entitlement.
func (e *Engine) Deposit(ctx context.Context, account common.Address, amount *big.Int) (*state.Receipt, error) {
	return e.run(ctx, actionDeposit, account, amount, func(tx *state.Tx, pos *position, mkt *totals, value *uint256.Int) error {
		reward, err := mulDivBps(value, e.params.RewardRateBps)
		if err != nil {
			return err
		}
		deposited, err := checkedAdd(pos.deposited, value)
		if err != nil {
			return err
		}
		pending, err := checkedAdd(pos.pending, reward)
		if err != nil {
			return err
		}
		totalDeposited, err := checkedAdd(mkt.deposited, value)
		if err != nil {
			return err
		}
		totalAccrued, err := checkedAdd(mkt.rewardsAccrued, reward)
		if err != nil {
			return err
		}
		if err := e.base.TransferIn(tx, account, value.ToBig()); err != nil {
			return err
		}
		pos.deposited, pos.pending = deposited, pending
		mkt.deposited, mkt.rewardsAccrued = totalDeposited, totalAccrued
		tx.AddLog(events.Deposited(account, e.base.Symbol(), value.ToBig(), tx.Hash()))
		return nil
	})
}

// Borrow sends amount of the base asset to account provided the resulting
// debt stays within the collateral limit.
func (e *Engine) Borrow(ctx context.Context, account common.Address, amount *big.Int) (*state.Receipt, error) {
	return e.run(ctx, actionBorrow, account, amount, func(tx *state.Tx, pos *position, mkt *totals, value *uint256.Int) error {
		borrowed, err := checkedAdd(pos.borrowed, value)
		if err != nil {
			return err
		}
		if err := e.requireCollateral(pos.deposited, borrowed); err != nil {
			return err
		}
		totalBorrowed, err := checkedAdd(mkt.borrowed, value)
		if err != nil {
			return err
		}
		if err := e.base.TransferOut(tx, account, value.ToBig()); err != nil {
			return err
		}
		pos.borrowed = borrowed
		mkt.borrowed = totalBorrowed
		tx.AddLog(events.Borrowed(account, e.base.Symbol(), value.ToBig(), tx.Hash()))
		return nil
	})
}

// Repay pulls amount of the base asset from account and reduces its debt.
// Paying back more than is owed fails with ErrExcessRepayment.
func (e *Engine) Repay(ctx context.Context, account common.Address, amount *big.Int) (*state.Receipt, error) {
	return e.run(ctx, actionRepay, account, amount, func(tx *state.Tx, pos *position, mkt *totals, value *uint256.Int) error {
		if value.Gt(pos.borrowed) {
			return ErrExcessRepayment
		}
		borrowed := new(uint256.Int).Sub(pos.borrowed, value)
		totalBorrowed, err := checkedSub(mkt.borrowed, value)
		if err != nil {
			return err
		}
		if err := e.base.TransferIn(tx, account, value.ToBig()); err != nil {
			return err
		}
		pos.borrowed = borrowed
		mkt.borrowed = totalBorrowed
		tx.AddLog(events.Repaid(account, e.base.Symbol(), value.ToBig(), tx.Hash()))
		return nil
	})
}

// Withdraw returns amount of the deposit to account provided the remaining
// deposit still covers the outstanding debt.
func (e *Engine) Withdraw(ctx context.Context, account common.Address, amount *big.Int) (*state.Receipt, error) {
	return e.run(ctx, actionWithdraw, account, amount, func(tx *state.Tx, pos *position, mkt *totals, value *uint256.Int) error {
		if value.Gt(pos.deposited) {
			return ErrInsufficientDeposit
		}
		deposited := new(uint256.Int).Sub(pos.deposited, value)
		if err := e.requireCollateral(deposited, pos.borrowed); err != nil {
			return err
		}
		totalDeposited, err := checkedSub(mkt.deposited, value)
		if err != nil {
			return err
		}
		if err := e.base.TransferOut(tx, account, value.ToBig()); err != nil {
			return err
		}
		pos.deposited = deposited
		mkt.deposited = totalDeposited
		tx.AddLog(events.Withdrawn(account, e.base.Symbol(), value.ToBig(), tx.Hash()))
		return nil
	})
}

// ClaimRewards pays the account's entire pending reward in the reward asset.
func (e *Engine) ClaimRewards(ctx context.Context, account common.Address) (*state.Receipt, error) {
	started := time.Now()
	if e == nil || e.manager == nil {
		return nil, ErrNotConfigured
	}
	if err := e.checkAccount(account); err != nil {
		e.observe(actionClaim, account, nil, nil, err, started)
		return nil, err
	}
	var claimed *big.Int
	receipt, err := e.manager.Execute(ctx, moduleName+"."+actionClaim, func(tx *state.Tx) error {
		pos, mkt, err := e.load(tx, account)
		if err != nil {
			return err
		}
		if pos.pending.IsZero() {
			return ErrZeroAmount
		}
		amount := new(uint256.Int).Set(pos.pending)
		totalClaimed, err := checkedAdd(mkt.rewardsClaimed, amount)
		if err != nil {
			return err
		}
		if err := e.reward.TransferOut(tx, account, amount.ToBig()); err != nil {
			return err
		}
		pos.pending = new(uint256.Int)
		mkt.rewardsClaimed = totalClaimed
		if err := e.store(tx, account, pos, mkt); err != nil {
			return err
		}
		claimed = amount.ToBig()
		tx.AddLog(events.RewardsClaimed(account, e.reward.Symbol(), claimed, tx.Hash()))
		return nil
	})
	e.observe(actionClaim, account, claimed, receipt, err, started)
	return receipt, err
}

type mutation func(tx *state.Tx, pos *position, mkt *totals, value *uint256.Int) error

// run validates the common preconditions, then loads, mutates and persists
// the account and market records inside one execution.
func (e *Engine) run(ctx context.Context, action string, account common.Address, amount *big.Int, fn mutation) (*state.Receipt, error) {
	started := time.Now()
	if e == nil || e.manager == nil {
		return nil, ErrNotConfigured
	}
	value, err := positiveAmount(amount)
	if err == nil {
		err = e.checkAccount(account)
	}
	if err != nil {
		e.observe(action, account, amount, nil, err, started)
		return nil, err
	}
	receipt, err := e.manager.Execute(ctx, moduleName+"."+action, func(tx *state.Tx) error {
		pos, mkt, err := e.load(tx, account)
		if err != nil {
			return err
		}
		if err := fn(tx, pos, mkt, value); err != nil {
			return err
		}
		return e.store(tx, account, pos, mkt)
	})
	e.observe(action, account, amount, receipt, err, started)
	return receipt, err
}

func (e *Engine) observe(action string, account common.Address, amount *big.Int, receipt *state.Receipt, err error, started time.Time) {
	e.metrics.ObserveOperation(action, ErrorCode(err), started)
	attrs := []any{
		slog.String("action", action),
		slog.String("account", account.Hex()),
	}
	if amount != nil {
		attrs = append(attrs, slog.String("amount", amount.String()))
	}
	if err != nil {
		attrs = append(attrs, slog.String("reason", ErrorCode(err)), slog.Any("error", err))
		e.logger.Debug("lending operation rejected", attrs...)
		return
	}
	if receipt != nil {
		attrs = append(attrs, slog.String("txHash", receipt.TxHash.Hex()), slog.Uint64("sequence", receipt.Sequence))
	}
	e.logger.Debug("lending operation committed", attrs...)
	if mkt, err := e.Market(); err == nil {
		e.metrics.SetMarketTotal("deposited", mkt.TotalDeposited)
		e.metrics.SetMarketTotal("borrowed", mkt.TotalBorrowed)
		e.metrics.SetMarketTotal("rewards_outstanding", new(big.Int).Sub(mkt.TotalRewardsAccrued, mkt.TotalRewardsClaimed))
	}
}

// checkAccount rejects the zero address and the pool accounts, which cannot
// hold positions against themselves.
func (e *Engine) checkAccount(account common.Address) error {
	if account == (common.Address{}) || account == e.base.Pool() || account == e.reward.Pool() {
		return ErrInvalidAccount
	}
	return nil
}

func (e *Engine) requireCollateral(deposited, borrowed *uint256.Int) error {
	limit, err := mulDivBps(deposited, e.params.CollateralFactorBps)
	if err != nil {
		return err
	}
	if borrowed.Gt(limit) {
		return ErrInsufficientCollateral
	}
	return nil
}

func (e *Engine) accountKey(account common.Address) []byte {
	return state.Key("lending/account", e.base.Pool().Bytes(), account.Bytes())
}

func (e *Engine) marketKey() []byte {
	return state.Key("lending/market", e.base.Pool().Bytes())
}

func (e *Engine) load(st state.Store, account common.Address) (*position, *totals, error) {
	pos, err := e.loadPosition(st, account)
	if err != nil {
		return nil, nil, err
	}
	mkt, err := e.loadTotals(st)
	if err != nil {
		return nil, nil, err
	}
	return pos, mkt, nil
}

func (e *Engine) loadPosition(st state.Store, account common.Address) (*position, error) {
	var rec accountRecord
	if _, err := st.GetRLP(e.accountKey(account), &rec); err != nil {
		return nil, fmt.Errorf("lending engine: load account: %w", err)
	}
	return &position{
		deposited: fromBig(rec.Deposited),
		borrowed:  fromBig(rec.Borrowed),
		pending:   fromBig(rec.PendingReward),
	}, nil
}

func (e *Engine) loadTotals(st state.Store) (*totals, error) {
	var rec marketRecord
	if _, err := st.GetRLP(e.marketKey(), &rec); err != nil {
		return nil, fmt.Errorf("lending engine: load market: %w", err)
	}
	return &totals{
		deposited:      fromBig(rec.TotalDeposited),
		borrowed:       fromBig(rec.TotalBorrowed),
		rewardsAccrued: fromBig(rec.TotalRewardsAccrued),
		rewardsClaimed: fromBig(rec.TotalRewardsClaimed),
		flashFees:      fromBig(rec.FlashLoanFees),
		flashCount:     rec.FlashLoanCount,
	}, nil
}

func (e *Engine) store(st state.Store, account common.Address, pos *position, mkt *totals) error {
	if pos != nil {
		if err := st.PutRLP(e.accountKey(account), pos.record()); err != nil {
			return err
		}
	}
	if err := st.PutRLP(e.marketKey(), mkt.record()); err != nil {
		return err
	}
	return nil
}
