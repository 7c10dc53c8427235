package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"yeifinance/core/state"
	"yeifinance/native/lending"
	"yeifinance/native/token"
	"yeifinance/native/vault"
)

var (
	bootstrapKey   = state.Key("genesis/bootstrap")
	errAlreadyDone = errors.New("config: genesis already applied")
)

// Deployment is the set of protocol components built from a genesis file.
type Deployment struct {
	Tokens *token.Service
	Engine *lending.Engine
	// Vault is nil when the genesis file has no [vault] section.
	Vault *vault.Vault
	Pool  common.Address
	// Applied reports whether this call wrote the genesis state. It is false
	// when the store had already been bootstrapped.
	Applied bool
}

// Bootstrap writes the genesis state in one execution unless the store was
// already bootstrapped, then wires the protocol components over manager.
func Bootstrap(ctx context.Context, manager *state.Manager, g *Genesis) (*Deployment, error) {
	if manager == nil {
		return nil, fmt.Errorf("config: state manager required")
	}
	if g == nil {
		return nil, fmt.Errorf("config: genesis required")
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	var v *vault.Vault
	if g.Vault != nil {
		v = vault.New(manager, g.Vault.ShareSymbol)
	}

	applied := true
	_, err := manager.Execute(ctx, "genesis.bootstrap", func(tx *state.Tx) error {
		_, done, err := tx.Get(bootstrapKey)
		if err != nil {
			return err
		}
		if done {
			return errAlreadyDone
		}
		return g.apply(tx, v)
	})
	switch {
	case errors.Is(err, errAlreadyDone):
		applied = false
	case err != nil:
		return nil, fmt.Errorf("apply genesis: %w", err)
	}

	pool := g.Protocol.PoolAddress()
	engine, err := lending.NewEngine(
		manager,
		token.NewPoolAsset(g.Protocol.BaseAsset, pool),
		token.NewPoolAsset(g.Protocol.RewardAsset, pool),
		g.Protocol.LendingConfig(),
	)
	if err != nil {
		return nil, err
	}
	return &Deployment{
		Tokens:  token.NewService(manager),
		Engine:  engine,
		Vault:   v,
		Pool:    pool,
		Applied: applied,
	}, nil
}

func (g *Genesis) apply(st state.Store, v *vault.Vault) error {
	ledgers := make(map[string]*token.Ledger, len(g.Tokens))
	authorities := make(map[string]common.Address, len(g.Tokens))
	for _, spec := range g.Tokens {
		ledger, err := token.Register(st, token.Metadata{
			Symbol:        spec.Symbol,
			Name:          spec.Name,
			Decimals:      spec.Decimals,
			MintAuthority: spec.mintAuthority,
		})
		if err != nil {
			return fmt.Errorf("register %s: %w", spec.Symbol, err)
		}
		ledgers[spec.Symbol] = ledger
		authorities[spec.Symbol] = spec.mintAuthority
	}
	for _, alloc := range g.Allocations {
		if err := ledgers[alloc.Token].Mint(authorities[alloc.Token], alloc.account, alloc.amount); err != nil {
			return fmt.Errorf("allocate %s to %s: %w", alloc.Token, alloc.account.Hex(), err)
		}
	}
	if funding := g.Protocol.RewardFundingAmount(); funding.Sign() > 0 {
		reward := g.Protocol.RewardAsset
		if err := ledgers[reward].Mint(authorities[reward], g.Protocol.PoolAddress(), funding); err != nil {
			return fmt.Errorf("fund rewards: %w", err)
		}
	}
	if v != nil {
		if err := v.Install(st, g.Vault.Config()); err != nil {
			return fmt.Errorf("install vault: %w", err)
		}
	}
	st.Put(bootstrapKey, []byte{1})
	return nil
}
