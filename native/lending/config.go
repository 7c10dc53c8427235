package lending

import "fmt"

const (
	// DefaultCollateralFactorBps lets an account borrow up to 80% of its deposit.
	DefaultCollateralFactorBps uint64 = 8_000
	// DefaultRewardRateBps credits 10% of every deposit as reward entitlement.
	DefaultRewardRateBps uint64 = 1_000
)

// Config captures the construction-time parameters of the lending engine.
// They are immutable once the engine has been built.
type Config struct {
	CollateralFactorBps uint64 `toml:"CollateralFactorBps" yaml:"collateral_factor_bps" json:"collateralFactorBps"`
	RewardRateBps       uint64 `toml:"RewardRateBps" yaml:"reward_rate_bps" json:"rewardRateBps"`
	FlashLoanFeeBps     uint64 `toml:"FlashLoanFeeBps" yaml:"flash_loan_fee_bps" json:"flashLoanFeeBps"`
}

// DefaultConfig returns the protocol's standard parameters.
func DefaultConfig() Config {
	return Config{
		CollateralFactorBps: DefaultCollateralFactorBps,
		RewardRateBps:       DefaultRewardRateBps,
	}
}

// Validate ensures the parameters describe an over-collateralized market.
func (c Config) Validate() error {
	if c.CollateralFactorBps == 0 || c.CollateralFactorBps > basisPointsUint {
		return fmt.Errorf("%w: collateral factor %d bps must be within 1..%d", ErrInvalidConfig, c.CollateralFactorBps, basisPointsUint)
	}
	if c.RewardRateBps > basisPointsUint {
		return fmt.Errorf("%w: reward rate %d bps exceeds %d", ErrInvalidConfig, c.RewardRateBps, basisPointsUint)
	}
	if c.FlashLoanFeeBps > basisPointsUint {
		return fmt.Errorf("%w: flash loan fee %d bps exceeds %d", ErrInvalidConfig, c.FlashLoanFeeBps, basisPointsUint)
	}
	return nil
}
