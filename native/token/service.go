package token

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"yeifinance/core/state"
)

// Info summarises a token for read APIs.
type Info struct {
	Metadata    Metadata
	TotalSupply *big.Int
}

// Service exposes token operations as standalone atomic executions.
type Service struct {
	manager *state.Manager
}

// NewService binds the token operations to a state manager.
func NewService(manager *state.Manager) *Service {
	return &Service{manager: manager}
}

// Register creates a new token.
func (s *Service) Register(ctx context.Context, meta Metadata) (*state.Receipt, error) {
	return s.manager.Execute(ctx, "token.register", func(tx *state.Tx) error {
		_, err := Register(tx, meta)
		return err
	})
}

// Mint creates units on behalf of the mint authority.
func (s *Service) Mint(ctx context.Context, symbol string, authority, to common.Address, amount *big.Int) (*state.Receipt, error) {
	return s.execute(ctx, "token.mint", symbol, func(l *Ledger) error {
		return l.Mint(authority, to, amount)
	})
}

// Transfer moves units between holders.
func (s *Service) Transfer(ctx context.Context, symbol string, from, to common.Address, amount *big.Int) (*state.Receipt, error) {
	return s.execute(ctx, "token.transfer", symbol, func(l *Ledger) error {
		return l.Transfer(from, to, amount)
	})
}

// Approve sets an allowance.
func (s *Service) Approve(ctx context.Context, symbol string, owner, spender common.Address, amount *big.Int) (*state.Receipt, error) {
	return s.execute(ctx, "token.approve", symbol, func(l *Ledger) error {
		return l.Approve(owner, spender, amount)
	})
}

// TransferFrom moves units using an allowance.
func (s *Service) TransferFrom(ctx context.Context, symbol string, spender, from, to common.Address, amount *big.Int) (*state.Receipt, error) {
	return s.execute(ctx, "token.transferFrom", symbol, func(l *Ledger) error {
		return l.TransferFrom(spender, from, to, amount)
	})
}

func (s *Service) execute(ctx context.Context, label, symbol string, fn func(*Ledger) error) (*state.Receipt, error) {
	return s.manager.Execute(ctx, label, func(tx *state.Tx) error {
		ledger, err := Open(tx, symbol)
		if err != nil {
			return err
		}
		return fn(ledger)
	})
}

// Info returns metadata and supply for symbol.
func (s *Service) Info(symbol string) (Info, error) {
	var info Info
	err := s.view(symbol, func(l *Ledger) error {
		info = Info{Metadata: l.Metadata(), TotalSupply: l.TotalSupply()}
		return nil
	})
	return info, err
}

// Symbols lists registered tokens.
func (s *Service) Symbols() ([]string, error) {
	var out []string
	err := s.manager.View(func(st state.Store) error {
		symbols, err := List(st)
		out = symbols
		return err
	})
	return out, err
}

// BalanceOf returns a holder's balance.
func (s *Service) BalanceOf(symbol string, addr common.Address) (*big.Int, error) {
	var out *big.Int
	err := s.view(symbol, func(l *Ledger) error {
		balance, err := l.BalanceOf(addr)
		out = balance
		return err
	})
	return out, err
}

// Allowance returns a spender's allowance.
func (s *Service) Allowance(symbol string, owner, spender common.Address) (*big.Int, error) {
	var out *big.Int
	err := s.view(symbol, func(l *Ledger) error {
		allowance, err := l.Allowance(owner, spender)
		out = allowance
		return err
	})
	return out, err
}

func (s *Service) view(symbol string, fn func(*Ledger) error) error {
	return s.manager.View(func(st state.Store) error {
		ledger, err := Open(st, symbol)
		if err != nil {
			return err
		}
		return fn(ledger)
	})
}
