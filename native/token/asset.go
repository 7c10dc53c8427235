package token

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"yeifinance/core/state"
)

// PoolAsset lets a protocol module hold one token in its own account. Inbound
// transfers pull from the counterparty through the allowance it granted to
// the pool, so callers approve before depositing.
type PoolAsset struct {
	symbol string
	pool   common.Address
}

// NewPoolAsset binds a token symbol to the pool account.
func NewPoolAsset(symbol string, pool common.Address) *PoolAsset {
	return &PoolAsset{symbol: NormalizeSymbol(symbol), pool: pool}
}

// Symbol returns the token symbol.
func (a *PoolAsset) Symbol() string { return a.symbol }

// Pool returns the holder account.
func (a *PoolAsset) Pool() common.Address { return a.pool }

// BalanceOf returns the token balance of account.
func (a *PoolAsset) BalanceOf(st state.Store, account common.Address) (*big.Int, error) {
	ledger, err := Open(st, a.symbol)
	if err != nil {
		return nil, err
	}
	return ledger.BalanceOf(account)
}

// TransferIn moves amount from the counterparty into the pool.
func (a *PoolAsset) TransferIn(st state.Store, from common.Address, amount *big.Int) error {
	ledger, err := Open(st, a.symbol)
	if err != nil {
		return err
	}
	return ledger.TransferFrom(a.pool, from, a.pool, amount)
}

// TransferOut moves amount from the pool to the counterparty.
func (a *PoolAsset) TransferOut(st state.Store, to common.Address, amount *big.Int) error {
	ledger, err := Open(st, a.symbol)
	if err != nil {
		return err
	}
	return ledger.Transfer(a.pool, to, amount)
}
