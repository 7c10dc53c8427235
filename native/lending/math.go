package lending

import (
	"math/big"

	"github.com/holiman/uint256"
)

const basisPointsUint uint64 = 10_000

var basisPoints = uint256.NewInt(basisPointsUint)

// toU256 converts an API amount into the 256-bit domain the ledger runs in.
func toU256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrInvalidAmount
	}
	return value, nil
}

// positiveAmount is toU256 with the zero check every mutating operation
// applies first.
func positiveAmount(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() == 0 {
		return nil, ErrZeroAmount
	}
	return toU256(amount)
}

// mulDivBps computes floor(x * bps / 10000). It is the single rounding site
// for collateral limits, reward accrual and fees.
func mulDivBps(x *uint256.Int, bps uint64) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(x, uint256.NewInt(bps))
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return product.Div(product, basisPoints), nil
}

func checkedAdd(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return sum, nil
}

func checkedSub(a, b *uint256.Int) (*uint256.Int, error) {
	diff, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrArithmeticOverflow
	}
	return diff, nil
}

func fromBig(value *big.Int) *uint256.Int {
	if value == nil {
		return new(uint256.Int)
	}
	out, _ := uint256.FromBig(value)
	return out
}
