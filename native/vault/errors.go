package vault

import "errors"

var (
	ErrNotConfigured      = errors.New("vault: not configured")
	ErrNotInitialised     = errors.New("vault: not initialised")
	ErrAlreadyInitialised = errors.New("vault: already initialised")
	ErrInvalidConfig      = errors.New("vault: invalid configuration")
	ErrUnauthorized       = errors.New("vault: caller lacks the required role")
	ErrZeroAmount         = errors.New("vault: amount must be greater than zero")
	ErrInvalidAmount      = errors.New("vault: amount must be a non-negative 256-bit integer")
	ErrInvalidAccount     = errors.New("vault: account must be a non-zero address")
	ErrInsufficientShares = errors.New("vault: insufficient shares")
	ErrFeeTooHigh         = errors.New("vault: withdrawal fee above maximum")
	ErrNothingToHarvest   = errors.New("vault: no time has elapsed since the last harvest")
	ErrArithmeticOverflow = errors.New("vault: arithmetic overflow")
)

// ErrorCode returns a stable identifier for vault errors. Unknown errors map
// to the empty string so callers can fall back to their own classification.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrZeroAmount):
		return "ZeroAmount"
	case errors.Is(err, ErrInvalidAmount):
		return "InvalidAmount"
	case errors.Is(err, ErrInvalidAccount):
		return "InvalidAccount"
	case errors.Is(err, ErrInsufficientShares):
		return "InsufficientShares"
	case errors.Is(err, ErrFeeTooHigh):
		return "FeeTooHigh"
	case errors.Is(err, ErrNothingToHarvest):
		return "NothingToHarvest"
	case errors.Is(err, ErrArithmeticOverflow):
		return "ArithmeticOverflow"
	case errors.Is(err, ErrNotInitialised), errors.Is(err, ErrNotConfigured):
		return "NotConfigured"
	case errors.Is(err, ErrAlreadyInitialised), errors.Is(err, ErrInvalidConfig):
		return "InvalidConfig"
	default:
		return ""
	}
}
