package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"yeifinance/core/types"
)

const (
	// TypeTokenTransfer is emitted for every balance movement, including mints
	// (from the zero address) and burns (to the zero address).
	TypeTokenTransfer = "token.transfer"
	// TypeTokenApproval is emitted when an allowance is set.
	TypeTokenApproval = "token.approval"
)

type Transfer struct {
	Asset  string
	From   common.Address
	To     common.Address
	Amount *big.Int
	TxHash common.Hash
}

func (Transfer) EventType() string { return TypeTokenTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{
		"from":   e.From.Hex(),
		"to":     e.To.Hex(),
		"amount": formatAmount(e.Amount),
	}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	withTxHash(attrs, e.TxHash)
	return &types.Event{Type: TypeTokenTransfer, Attributes: attrs}
}

type Approval struct {
	Asset   string
	Owner   common.Address
	Spender common.Address
	Amount  *big.Int
	TxHash  common.Hash
}

func (Approval) EventType() string { return TypeTokenApproval }

func (e Approval) Event() *types.Event {
	attrs := map[string]string{
		"owner":   e.Owner.Hex(),
		"spender": e.Spender.Hex(),
		"amount":  formatAmount(e.Amount),
	}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	withTxHash(attrs, e.TxHash)
	return &types.Event{Type: TypeTokenApproval, Attributes: attrs}
}
