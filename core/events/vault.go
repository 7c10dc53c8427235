package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"yeifinance/core/types"
)

const (
	TypeVaultDeposited = "vault.deposited"
	TypeVaultWithdrawn = "vault.withdrawn"
	TypeVaultHarvested = "vault.harvested"
	TypeVaultUpdated   = "vault.updated"
)

type VaultDeposited struct {
	Owner  common.Address
	Assets *big.Int
	Shares *big.Int
	TxHash common.Hash
}

func (VaultDeposited) EventType() string { return TypeVaultDeposited }

func (e VaultDeposited) Event() *types.Event {
	attrs := map[string]string{
		"account": e.Owner.Hex(),
		"assets":  formatAmount(e.Assets),
		"shares":  formatAmount(e.Shares),
	}
	withTxHash(attrs, e.TxHash)
	return &types.Event{Type: TypeVaultDeposited, Attributes: attrs}
}

type VaultWithdrawn struct {
	Owner  common.Address
	Shares *big.Int
	Assets *big.Int
	Fee    *big.Int
	TxHash common.Hash
}

func (VaultWithdrawn) EventType() string { return TypeVaultWithdrawn }

func (e VaultWithdrawn) Event() *types.Event {
	attrs := map[string]string{
		"account": e.Owner.Hex(),
		"shares":  formatAmount(e.Shares),
		"assets":  formatAmount(e.Assets),
		"fee":     formatAmount(e.Fee),
	}
	withTxHash(attrs, e.TxHash)
	return &types.Event{Type: TypeVaultWithdrawn, Attributes: attrs}
}

type VaultHarvested struct {
	Agent   common.Address
	Yield   *big.Int
	Elapsed uint64
	TxHash  common.Hash
}

func (VaultHarvested) EventType() string { return TypeVaultHarvested }

func (e VaultHarvested) Event() *types.Event {
	attrs := map[string]string{
		"account": e.Agent.Hex(),
		"yield":   formatAmount(e.Yield),
		"elapsed": strconv.FormatUint(e.Elapsed, 10),
	}
	withTxHash(attrs, e.TxHash)
	return &types.Event{Type: TypeVaultHarvested, Attributes: attrs}
}

// VaultUpdated records a manager configuration change.
type VaultUpdated struct {
	Manager common.Address
	Field   string
	Value   string
	TxHash  common.Hash
}

func (VaultUpdated) EventType() string { return TypeVaultUpdated }

func (e VaultUpdated) Event() *types.Event {
	attrs := map[string]string{
		"account": e.Manager.Hex(),
		"field":   e.Field,
		"value":   e.Value,
	}
	withTxHash(attrs, e.TxHash)
	return &types.Event{Type: TypeVaultUpdated, Attributes: attrs}
}
