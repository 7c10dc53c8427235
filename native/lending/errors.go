package lending

import (
	"context"
	"errors"

	"yeifinance/core/state"
	"yeifinance/native/token"
)

var (
	ErrZeroAmount             = errors.New("lending engine: amount must be greater than zero")
	ErrInvalidAmount          = errors.New("lending engine: amount must be a non-negative 256-bit integer")
	ErrInvalidAccount         = errors.New("lending engine: account must be a non-zero, non-pool address")
	ErrInsufficientCollateral = errors.New("lending engine: insufficient collateral")
	ErrExcessRepayment        = errors.New("lending engine: repayment exceeds outstanding debt")
	ErrInsufficientDeposit    = errors.New("lending engine: withdrawal exceeds deposited balance")
	ErrArithmeticOverflow     = errors.New("lending engine: arithmetic overflow")
	ErrFlashLoanNotRepaid     = errors.New("lending engine: flash loan not repaid")
	ErrNotConfigured          = errors.New("lending engine: not configured")
	ErrInvalidConfig          = errors.New("lending engine: invalid configuration")

	// ErrReentrantCall is returned when an operation is started from inside a
	// flash loan callback using the callback's context.
	ErrReentrantCall = state.ErrReentrant
)

// ErrorCode returns a stable identifier for engine errors. Token ledger
// failures map to "TransferFailed" and anything unrecognised to "Internal".
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrZeroAmount):
		return "ZeroAmount"
	case errors.Is(err, ErrInvalidAmount):
		return "InvalidAmount"
	case errors.Is(err, ErrInvalidAccount):
		return "InvalidAccount"
	case errors.Is(err, ErrInsufficientCollateral):
		return "InsufficientCollateral"
	case errors.Is(err, ErrExcessRepayment):
		return "ExcessRepayment"
	case errors.Is(err, ErrInsufficientDeposit):
		return "InsufficientDeposit"
	case errors.Is(err, ErrArithmeticOverflow):
		return "ArithmeticOverflow"
	case errors.Is(err, ErrFlashLoanNotRepaid):
		return "FlashLoanNotRepaid"
	case errors.Is(err, ErrReentrantCall):
		return "ReentrantCall"
	case errors.Is(err, ErrNotConfigured), errors.Is(err, ErrInvalidConfig):
		return "NotConfigured"
	case token.IsLedgerError(err):
		return "TransferFailed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Canceled"
	default:
		return "Internal"
	}
}
