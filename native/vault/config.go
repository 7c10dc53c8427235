package vault

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"yeifinance/crypto"
	"yeifinance/native/token"
)

const (
	// DefaultWithdrawalFeeBps is charged on every withdrawal (0.5%).
	DefaultWithdrawalFeeBps uint64 = 50
	// DefaultYieldRateBps is the annualised harvest rate (10%).
	DefaultYieldRateBps uint64 = 1000
	// MaxWithdrawalFeeBps caps the withdrawal fee the manager may set.
	MaxWithdrawalFeeBps uint64 = 1000
	// MaxYieldRateBps caps the annualised yield rate.
	MaxYieldRateBps uint64 = 10_000

	// SecondsPerYear is the accrual period of YieldRateBps.
	SecondsPerYear uint64 = 365 * 24 * 60 * 60

	shareDecimals uint8 = 18
)

// Config describes a vault at initialisation time.
type Config struct {
	Name             string         `toml:"name" yaml:"name" json:"name"`
	ShareSymbol      string         `toml:"share_symbol" yaml:"shareSymbol" json:"shareSymbol"`
	Underlying       string         `toml:"underlying" yaml:"underlying" json:"underlying"`
	Manager          common.Address `toml:"-" yaml:"-" json:"manager"`
	Agent            common.Address `toml:"-" yaml:"-" json:"agent"`
	Treasury         common.Address `toml:"-" yaml:"-" json:"treasury"`
	WithdrawalFeeBps uint64         `toml:"withdrawal_fee_bps" yaml:"withdrawalFeeBps" json:"withdrawalFeeBps"`
	YieldRateBps     uint64         `toml:"yield_rate_bps" yaml:"yieldRateBps" json:"yieldRateBps"`
}

// DefaultConfig returns the fee and yield defaults for a vault named name
// issuing shareSymbol over underlying.
func DefaultConfig(name, shareSymbol, underlying string) Config {
	return Config{
		Name:             name,
		ShareSymbol:      shareSymbol,
		Underlying:       underlying,
		WithdrawalFeeBps: DefaultWithdrawalFeeBps,
		YieldRateBps:     DefaultYieldRateBps,
	}
}

func (c *Config) normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.ShareSymbol = token.NormalizeSymbol(c.ShareSymbol)
	c.Underlying = token.NormalizeSymbol(c.Underlying)
}

// Validate checks the configuration without touching state.
func (c Config) Validate() error {
	c.normalize()
	switch {
	case c.Name == "":
		return fmt.Errorf("%w: name required", ErrInvalidConfig)
	case c.ShareSymbol == "" || c.Underlying == "":
		return fmt.Errorf("%w: share and underlying symbols required", ErrInvalidConfig)
	case c.ShareSymbol == c.Underlying:
		return fmt.Errorf("%w: share symbol must differ from the underlying", ErrInvalidConfig)
	case c.Manager == (common.Address{}), c.Agent == (common.Address{}), c.Treasury == (common.Address{}):
		return fmt.Errorf("%w: manager, agent and treasury required", ErrInvalidConfig)
	case c.WithdrawalFeeBps > MaxWithdrawalFeeBps:
		return fmt.Errorf("%w: %d bps", ErrFeeTooHigh, c.WithdrawalFeeBps)
	case c.YieldRateBps > MaxYieldRateBps:
		return fmt.Errorf("%w: yield rate %d bps above %d", ErrInvalidConfig, c.YieldRateBps, MaxYieldRateBps)
	}
	return nil
}

// Address returns the module account that custodies the vault's underlying
// and mints its shares.
func Address(shareSymbol string) common.Address {
	return crypto.ModuleAddress("vault/" + token.NormalizeSymbol(shareSymbol))
}
