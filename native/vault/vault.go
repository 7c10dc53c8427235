package vault

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"yeifinance/core/events"
	"yeifinance/core/state"
	"yeifinance/native/token"
	"yeifinance/observability/metrics"
)

const basisPoints uint64 = 10_000

// settings is the persisted vault configuration and accounting.
type settings struct {
	Name             string
	Underlying       string
	Manager          common.Address
	Agent            common.Address
	Treasury         common.Address
	WithdrawalFeeBps uint64
	YieldRateBps     uint64
	LastHarvest      uint64
	TotalYield       *big.Int
	TotalFees        *big.Int
}

// Result reports the amounts settled by a deposit or withdrawal.
type Result struct {
	*state.Receipt
	Assets *big.Int
	Shares *big.Int
	Fee    *big.Int
}

// Vault issues shares against deposits of one underlying token. Shares are
// a regular token whose mint authority is the vault's module account.
type Vault struct {
	manager     *state.Manager
	shareSymbol string
	address     common.Address
	nowFn       func() time.Time
	logger      *slog.Logger
	metrics     *metrics.LendingMetrics
}

// New returns a handle on the vault issuing shareSymbol. The vault itself is
// created by Initialize.
func New(manager *state.Manager, shareSymbol string) *Vault {
	symbol := token.NormalizeSymbol(shareSymbol)
	return &Vault{
		manager:     manager,
		shareSymbol: symbol,
		address:     Address(symbol),
		nowFn:       time.Now,
		logger:      slog.Default().With(slog.String("component", "vault")),
		metrics:     metrics.Lending(),
	}
}

// SetNowFunc overrides the clock used for harvest accrual.
func (v *Vault) SetNowFunc(now func() time.Time) {
	if v == nil {
		return
	}
	if now == nil {
		now = time.Now
	}
	v.nowFn = now
}

// SetLogger overrides the vault logger.
func (v *Vault) SetLogger(logger *slog.Logger) {
	if v == nil || logger == nil {
		return
	}
	v.logger = logger.With(slog.String("component", "vault"))
}

// Address returns the vault's custody account.
func (v *Vault) Address() common.Address { return v.address }

// ShareSymbol returns the symbol of the vault share token.
func (v *Vault) ShareSymbol() string { return v.shareSymbol }

func settingsKey(vault common.Address) []byte { return state.Key("vault/settings", vault.Bytes()) }

// Initialize registers the share token and stores the vault configuration.
// The underlying token must already exist.
func (v *Vault) Initialize(ctx context.Context, cfg Config) (*state.Receipt, error) {
	if v == nil || v.manager == nil {
		return nil, ErrNotConfigured
	}
	return v.manager.Execute(ctx, "vault.initialize", func(tx *state.Tx) error {
		return v.Install(tx, cfg)
	})
}

// Install performs Initialize against st, letting callers fold vault
// creation into a larger execution.
func (v *Vault) Install(st state.Store, cfg Config) error {
	if v == nil {
		return ErrNotConfigured
	}
	cfg.ShareSymbol = v.shareSymbol
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, found, err := v.loadSettings(st); err != nil {
		return err
	} else if found {
		return ErrAlreadyInitialised
	}
	if _, err := token.Open(st, cfg.Underlying); err != nil {
		return err
	}
	if _, err := token.Register(st, token.Metadata{
		Symbol:        v.shareSymbol,
		Name:          cfg.Name,
		Decimals:      shareDecimals,
		MintAuthority: v.address,
	}); err != nil {
		return err
	}
	return st.PutRLP(settingsKey(v.address), settings{
		Name:             cfg.Name,
		Underlying:       cfg.Underlying,
		Manager:          cfg.Manager,
		Agent:            cfg.Agent,
		Treasury:         cfg.Treasury,
		WithdrawalFeeBps: cfg.WithdrawalFeeBps,
		YieldRateBps:     cfg.YieldRateBps,
		LastHarvest:      v.unixNow(),
		TotalYield:       big.NewInt(0),
		TotalFees:        big.NewInt(0),
	})
}

// Deposit pulls assets of the underlying from owner and mints shares at the
// current share price. The owner must have approved the vault account.
func (v *Vault) Deposit(ctx context.Context, owner common.Address, assets *big.Int) (*Result, error) {
	started := time.Now()
	value, err := v.validate(owner, assets)
	if err != nil {
		v.observe("deposit", err, started)
		return nil, err
	}
	result := &Result{Assets: value.ToBig(), Fee: big.NewInt(0)}
	receipt, err := v.manager.Execute(ctx, "vault.deposit", func(tx *state.Tx) error {
		b, err := v.open(tx)
		if err != nil {
			return err
		}
		minted, err := b.convertToShares(value)
		if err != nil {
			return err
		}
		if minted.IsZero() {
			return ErrZeroAmount
		}
		if err := b.underlying.TransferFrom(v.address, owner, v.address, value.ToBig()); err != nil {
			return err
		}
		if err := b.shares.Mint(v.address, owner, minted.ToBig()); err != nil {
			return err
		}
		result.Shares = minted.ToBig()
		tx.AddLog(events.VaultDeposited{Owner: owner, Assets: value.ToBig(), Shares: minted.ToBig(), TxHash: tx.Hash()})
		return nil
	})
	v.observe("deposit", err, started)
	if err != nil {
		return nil, err
	}
	result.Receipt = receipt
	return result, nil
}

// Withdraw burns shares from owner and pays out their underlying value less
// the withdrawal fee, which goes to the treasury.
func (v *Vault) Withdraw(ctx context.Context, owner common.Address, shares *big.Int) (*Result, error) {
	started := time.Now()
	value, err := v.validate(owner, shares)
	if err != nil {
		v.observe("withdraw", err, started)
		return nil, err
	}
	result := &Result{Shares: value.ToBig()}
	receipt, err := v.manager.Execute(ctx, "vault.withdraw", func(tx *state.Tx) error {
		b, err := v.open(tx)
		if err != nil {
			return err
		}
		held, err := b.shares.BalanceOf(owner)
		if err != nil {
			return err
		}
		if held.Cmp(value.ToBig()) < 0 {
			return ErrInsufficientShares
		}
		gross, err := b.convertToAssets(value)
		if err != nil {
			return err
		}
		if gross.IsZero() {
			return ErrZeroAmount
		}
		fee, overflow := new(uint256.Int).MulDivOverflow(gross, uint256.NewInt(b.settings.WithdrawalFeeBps), uint256.NewInt(basisPoints))
		if overflow {
			return ErrArithmeticOverflow
		}
		net := new(uint256.Int).Sub(gross, fee)
		if err := b.shares.Burn(v.address, owner, value.ToBig()); err != nil {
			return err
		}
		if !net.IsZero() {
			if err := b.underlying.Transfer(v.address, owner, net.ToBig()); err != nil {
				return err
			}
		}
		if !fee.IsZero() {
			if err := b.underlying.Transfer(v.address, b.settings.Treasury, fee.ToBig()); err != nil {
				return err
			}
			b.settings.TotalFees = new(big.Int).Add(b.settings.TotalFees, fee.ToBig())
			if err := b.save(); err != nil {
				return err
			}
		}
		result.Assets, result.Fee = net.ToBig(), fee.ToBig()
		tx.AddLog(events.VaultWithdrawn{Owner: owner, Shares: value.ToBig(), Assets: net.ToBig(), Fee: fee.ToBig(), TxHash: tx.Hash()})
		return nil
	})
	v.observe("withdraw", err, started)
	if err != nil {
		return nil, err
	}
	result.Receipt = receipt
	return result, nil
}

// Harvest accrues yield for the time elapsed since the previous harvest and
// pulls it from the agent into the vault, raising the share price. Only the
// agent may harvest, and it must have approved the vault for the yield.
func (v *Vault) Harvest(ctx context.Context, agent common.Address) (*Result, error) {
	started := time.Now()
	if v == nil || v.manager == nil {
		return nil, ErrNotConfigured
	}
	now := v.unixNow()
	result := &Result{Fee: big.NewInt(0)}
	receipt, err := v.manager.Execute(ctx, "vault.harvest", func(tx *state.Tx) error {
		b, err := v.open(tx)
		if err != nil {
			return err
		}
		if agent != b.settings.Agent {
			return ErrUnauthorized
		}
		if now <= b.settings.LastHarvest {
			return ErrNothingToHarvest
		}
		elapsed := now - b.settings.LastHarvest
		yield, err := accruedYield(b.totalAssets, b.settings.YieldRateBps, elapsed)
		if err != nil {
			return err
		}
		if !yield.IsZero() {
			if err := b.underlying.TransferFrom(v.address, agent, v.address, yield.ToBig()); err != nil {
				return err
			}
		}
		b.settings.LastHarvest = now
		b.settings.TotalYield = new(big.Int).Add(b.settings.TotalYield, yield.ToBig())
		if err := b.save(); err != nil {
			return err
		}
		result.Assets = yield.ToBig()
		tx.AddLog(events.VaultHarvested{Agent: agent, Yield: yield.ToBig(), Elapsed: elapsed, TxHash: tx.Hash()})
		return nil
	})
	v.observe("harvest", err, started)
	if err != nil {
		return nil, err
	}
	result.Receipt = receipt
	return result, nil
}

// SetWithdrawalFee updates the withdrawal fee. Only the manager may call it.
func (v *Vault) SetWithdrawalFee(ctx context.Context, caller common.Address, feeBps uint64) (*state.Receipt, error) {
	if feeBps > MaxWithdrawalFeeBps {
		return nil, fmt.Errorf("%w: %d bps", ErrFeeTooHigh, feeBps)
	}
	return v.update(ctx, caller, "withdrawalFeeBps", strconv.FormatUint(feeBps, 10), func(s *settings) {
		s.WithdrawalFeeBps = feeBps
	})
}

// SetYieldRate updates the annualised yield rate. Only the manager may call
// it.
func (v *Vault) SetYieldRate(ctx context.Context, caller common.Address, rateBps uint64) (*state.Receipt, error) {
	if rateBps > MaxYieldRateBps {
		return nil, fmt.Errorf("%w: yield rate %d bps above %d", ErrInvalidConfig, rateBps, MaxYieldRateBps)
	}
	return v.update(ctx, caller, "yieldRateBps", strconv.FormatUint(rateBps, 10), func(s *settings) {
		s.YieldRateBps = rateBps
	})
}

// SetAgent replaces the account allowed to harvest.
func (v *Vault) SetAgent(ctx context.Context, caller, agent common.Address) (*state.Receipt, error) {
	if agent == (common.Address{}) {
		return nil, ErrInvalidAccount
	}
	return v.update(ctx, caller, "agent", agent.Hex(), func(s *settings) { s.Agent = agent })
}

// SetTreasury replaces the withdrawal fee recipient.
func (v *Vault) SetTreasury(ctx context.Context, caller, treasury common.Address) (*state.Receipt, error) {
	if treasury == (common.Address{}) {
		return nil, ErrInvalidAccount
	}
	return v.update(ctx, caller, "treasury", treasury.Hex(), func(s *settings) { s.Treasury = treasury })
}

func (v *Vault) update(ctx context.Context, caller common.Address, field, value string, apply func(*settings)) (*state.Receipt, error) {
	started := time.Now()
	if v == nil || v.manager == nil {
		return nil, ErrNotConfigured
	}
	receipt, err := v.manager.Execute(ctx, "vault.update", func(tx *state.Tx) error {
		s, found, err := v.loadSettings(tx)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotInitialised
		}
		if caller != s.Manager {
			return ErrUnauthorized
		}
		apply(s)
		if err := tx.PutRLP(settingsKey(v.address), s); err != nil {
			return err
		}
		tx.AddLog(events.VaultUpdated{Manager: caller, Field: field, Value: value, TxHash: tx.Hash()})
		return nil
	})
	v.observe("update", err, started)
	return receipt, err
}

func (v *Vault) validate(owner common.Address, amount *big.Int) (*uint256.Int, error) {
	if v == nil || v.manager == nil {
		return nil, ErrNotConfigured
	}
	if amount == nil || amount.Sign() == 0 {
		return nil, ErrZeroAmount
	}
	if amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrInvalidAmount
	}
	if owner == (common.Address{}) {
		return nil, ErrInvalidAccount
	}
	return value, nil
}

func (v *Vault) observe(action string, err error, started time.Time) {
	result := ErrorCode(err)
	switch {
	case err == nil || result != "":
	case token.IsLedgerError(err):
		result = "TransferFailed"
	default:
		result = "Internal"
	}
	v.metrics.ObserveOperation("vault."+action, result, started)
	if err != nil {
		v.logger.Debug("vault operation rejected", slog.String("action", action), slog.Any("error", err))
		return
	}
	if info, err := v.Info(); err == nil {
		v.metrics.SetVaultAssets(info.TotalAssets)
	}
}

func (v *Vault) unixNow() uint64 {
	if v.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	ts := v.nowFn().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (v *Vault) loadSettings(st state.Store) (*settings, bool, error) {
	var s settings
	found, err := st.GetRLP(settingsKey(v.address), &s)
	if err != nil {
		return nil, false, fmt.Errorf("vault: load settings: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	if s.TotalYield == nil {
		s.TotalYield = big.NewInt(0)
	}
	if s.TotalFees == nil {
		s.TotalFees = big.NewInt(0)
	}
	return &s, true, nil
}

// book bundles the ledgers and totals an operation works against.
type book struct {
	store       state.Store
	address     common.Address
	settings    *settings
	underlying  *token.Ledger
	shares      *token.Ledger
	totalAssets *uint256.Int
	totalShares *uint256.Int
}

func (v *Vault) open(st state.Store) (*book, error) {
	s, found, err := v.loadSettings(st)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotInitialised
	}
	underlying, err := token.Open(st, s.Underlying)
	if err != nil {
		return nil, err
	}
	shares, err := token.Open(st, v.shareSymbol)
	if err != nil {
		return nil, err
	}
	assets, err := underlying.BalanceOf(v.address)
	if err != nil {
		return nil, err
	}
	totalAssets, overflow := uint256.FromBig(assets)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	totalShares, overflow := uint256.FromBig(shares.TotalSupply())
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return &book{
		store:       st,
		address:     v.address,
		settings:    s,
		underlying:  underlying,
		shares:      shares,
		totalAssets: totalAssets,
		totalShares: totalShares,
	}, nil
}

func (b *book) save() error {
	return b.store.PutRLP(settingsKey(b.address), b.settings)
}

// convertToShares prices assets at the current share price, one to one while
// the vault is empty.
func (b *book) convertToShares(assets *uint256.Int) (*uint256.Int, error) {
	if b.totalShares.IsZero() || b.totalAssets.IsZero() {
		return new(uint256.Int).Set(assets), nil
	}
	shares, overflow := new(uint256.Int).MulDivOverflow(assets, b.totalShares, b.totalAssets)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return shares, nil
}

func (b *book) convertToAssets(shares *uint256.Int) (*uint256.Int, error) {
	if b.totalShares.IsZero() {
		return new(uint256.Int), nil
	}
	assets, overflow := new(uint256.Int).MulDivOverflow(shares, b.totalAssets, b.totalShares)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return assets, nil
}

// accruedYield computes floor(totalAssets * rateBps * elapsed / (10000 * SecondsPerYear)).
func accruedYield(totalAssets *uint256.Int, rateBps, elapsed uint64) (*uint256.Int, error) {
	factor, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(rateBps), uint256.NewInt(elapsed))
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	denominator := new(uint256.Int).Mul(uint256.NewInt(basisPoints), uint256.NewInt(SecondsPerYear))
	yield, overflow := new(uint256.Int).MulDivOverflow(totalAssets, factor, denominator)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return yield, nil
}
