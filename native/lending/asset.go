package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"yeifinance/core/state"
)

// Asset is the transfer collaborator for one fungible asset. Implementations
// must either complete a transfer or leave balances untouched and return an
// error. Transfers run against the store of the enclosing operation so that
// they roll back with it.
type Asset interface {
	// Symbol identifies the asset.
	Symbol() string
	// Pool is the protocol-owned holder account.
	Pool() common.Address
	BalanceOf(st state.Store, account common.Address) (*big.Int, error)
	// TransferIn moves amount from the counterparty into the pool.
	TransferIn(st state.Store, from common.Address, amount *big.Int) error
	// TransferOut moves amount from the pool to the counterparty.
	TransferOut(st state.Store, to common.Address, amount *big.Int) error
}
