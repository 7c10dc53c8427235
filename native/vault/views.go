package vault

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"yeifinance/core/state"
)

// Info summarises the vault configuration and accounting.
type Info struct {
	Name             string
	ShareSymbol      string
	Underlying       string
	Address          common.Address
	Manager          common.Address
	Agent            common.Address
	Treasury         common.Address
	WithdrawalFeeBps uint64
	YieldRateBps     uint64
	LastHarvest      time.Time
	TotalAssets      *big.Int
	TotalShares      *big.Int
	TotalYield       *big.Int
	TotalFees        *big.Int
}

// Info returns the vault summary.
func (v *Vault) Info() (Info, error) {
	var out Info
	err := v.view(func(b *book) error {
		out = Info{
			Name:             b.settings.Name,
			ShareSymbol:      v.shareSymbol,
			Underlying:       b.settings.Underlying,
			Address:          v.address,
			Manager:          b.settings.Manager,
			Agent:            b.settings.Agent,
			Treasury:         b.settings.Treasury,
			WithdrawalFeeBps: b.settings.WithdrawalFeeBps,
			YieldRateBps:     b.settings.YieldRateBps,
			LastHarvest:      time.Unix(int64(b.settings.LastHarvest), 0).UTC(),
			TotalAssets:      b.totalAssets.ToBig(),
			TotalShares:      b.totalShares.ToBig(),
			TotalYield:       new(big.Int).Set(b.settings.TotalYield),
			TotalFees:        new(big.Int).Set(b.settings.TotalFees),
		}
		return nil
	})
	return out, err
}

// ConvertToShares returns the shares a deposit of assets would mint now.
func (v *Vault) ConvertToShares(assets *big.Int) (*big.Int, error) {
	value, err := toU256(assets)
	if err != nil {
		return nil, err
	}
	var out *big.Int
	err = v.view(func(b *book) error {
		shares, err := b.convertToShares(value)
		if err != nil {
			return err
		}
		out = shares.ToBig()
		return nil
	})
	return out, err
}

// ConvertToAssets returns the gross underlying value of shares, before the
// withdrawal fee.
func (v *Vault) ConvertToAssets(shares *big.Int) (*big.Int, error) {
	value, err := toU256(shares)
	if err != nil {
		return nil, err
	}
	var out *big.Int
	err = v.view(func(b *book) error {
		assets, err := b.convertToAssets(value)
		if err != nil {
			return err
		}
		out = assets.ToBig()
		return nil
	})
	return out, err
}

// SharesOf returns the share balance of owner.
func (v *Vault) SharesOf(owner common.Address) (*big.Int, error) {
	var out *big.Int
	err := v.view(func(b *book) error {
		balance, err := b.shares.BalanceOf(owner)
		if err != nil {
			return err
		}
		out = balance
		return nil
	})
	return out, err
}

func (v *Vault) view(fn func(b *book) error) error {
	if v == nil || v.manager == nil {
		return ErrNotConfigured
	}
	return v.manager.View(func(st state.Store) error {
		b, err := v.open(st)
		if err != nil {
			return err
		}
		return fn(b)
	})
}

func toU256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil {
		return new(uint256.Int), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrInvalidAmount
	}
	return value, nil
}
