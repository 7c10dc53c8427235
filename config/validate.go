package config

import (
	"fmt"
	"math/big"
	"strings"

	"yeifinance/crypto"
	"yeifinance/native/lending"
	"yeifinance/native/token"
	"yeifinance/native/vault"
)

// Validate normalises g in place and resolves its addresses and amounts.
func (g *Genesis) Validate() error {
	if g == nil {
		return fmt.Errorf("genesis must be provided")
	}
	symbols := make(map[string]struct{}, len(g.Tokens))
	for i := range g.Tokens {
		t := &g.Tokens[i]
		if err := t.validate(); err != nil {
			return fmt.Errorf("tokens[%d]: %w", i, err)
		}
		if _, exists := symbols[t.Symbol]; exists {
			return fmt.Errorf("tokens[%d]: duplicate symbol %q", i, t.Symbol)
		}
		symbols[t.Symbol] = struct{}{}
	}
	if err := g.Protocol.validate(symbols); err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	for i := range g.Allocations {
		if err := g.Allocations[i].validate(symbols); err != nil {
			return fmt.Errorf("allocations[%d]: %w", i, err)
		}
	}
	if g.Vault != nil {
		if err := g.Vault.validate(symbols); err != nil {
			return fmt.Errorf("vault: %w", err)
		}
	}
	return nil
}

// LendingConfig returns the engine parameters named by the protocol section.
func (p Protocol) LendingConfig() lending.Config {
	return lending.Config{
		CollateralFactorBps: p.CollateralFactorBps,
		RewardRateBps:       p.RewardRateBps,
		FlashLoanFeeBps:     p.FlashLoanFeeBps,
	}
}

func (p *Protocol) validate(symbols map[string]struct{}) error {
	p.BaseAsset = token.NormalizeSymbol(p.BaseAsset)
	p.RewardAsset = token.NormalizeSymbol(p.RewardAsset)
	if _, ok := symbols[p.BaseAsset]; !ok {
		return fmt.Errorf("base_asset %q is not a registered token", p.BaseAsset)
	}
	if _, ok := symbols[p.RewardAsset]; !ok {
		return fmt.Errorf("reward_asset %q is not a registered token", p.RewardAsset)
	}
	if p.BaseAsset == p.RewardAsset {
		return fmt.Errorf("base_asset and reward_asset must differ")
	}
	if err := p.LendingConfig().Validate(); err != nil {
		return err
	}
	p.pool = DefaultPoolAddress
	if strings.TrimSpace(p.Pool) != "" {
		addr, err := crypto.ParseAddress(p.Pool)
		if err != nil {
			return fmt.Errorf("pool: %w", err)
		}
		p.pool = addr
	}
	funding, err := parseAmount(p.RewardFunding)
	if err != nil {
		return fmt.Errorf("reward_funding: %w", err)
	}
	p.rewardFunding = funding
	return nil
}

func (t *TokenSpec) validate() error {
	t.Symbol = token.NormalizeSymbol(t.Symbol)
	t.Name = strings.TrimSpace(t.Name)
	if t.Symbol == "" {
		return fmt.Errorf("symbol must be provided")
	}
	if t.Name == "" {
		return fmt.Errorf("name must be provided")
	}
	addr, err := crypto.ParseAddress(t.MintAuthority)
	if err != nil {
		return fmt.Errorf("mint_authority: %w", err)
	}
	t.mintAuthority = addr
	return nil
}

func (a *Allocation) validate(symbols map[string]struct{}) error {
	a.Token = token.NormalizeSymbol(a.Token)
	if _, ok := symbols[a.Token]; !ok {
		return fmt.Errorf("token %q is not registered", a.Token)
	}
	addr, err := crypto.ParseAddress(a.Account)
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}
	amount, err := parseAmount(a.Amount)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	if amount.Sign() == 0 {
		return fmt.Errorf("amount must be greater than zero")
	}
	a.account, a.amount = addr, amount
	return nil
}

func (v *VaultSpec) validate(symbols map[string]struct{}) error {
	v.Underlying = token.NormalizeSymbol(v.Underlying)
	v.ShareSymbol = token.NormalizeSymbol(v.ShareSymbol)
	if _, ok := symbols[v.Underlying]; !ok {
		return fmt.Errorf("underlying %q is not a registered token", v.Underlying)
	}
	if _, exists := symbols[v.ShareSymbol]; exists {
		return fmt.Errorf("share_symbol %q collides with a registered token", v.ShareSymbol)
	}
	var err error
	if v.manager, err = crypto.ParseAddress(v.Manager); err != nil {
		return fmt.Errorf("manager: %w", err)
	}
	if v.agent, err = crypto.ParseAddress(v.Agent); err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	if v.treasury, err = crypto.ParseAddress(v.Treasury); err != nil {
		return fmt.Errorf("treasury: %w", err)
	}
	return v.Config().Validate()
}

// Config returns the vault configuration, applying the default fee and yield
// rate where the file omits them.
func (v VaultSpec) Config() vault.Config {
	cfg := vault.DefaultConfig(v.Name, v.ShareSymbol, v.Underlying)
	cfg.Manager, cfg.Agent, cfg.Treasury = v.manager, v.agent, v.treasury
	if v.WithdrawalFeeBps != nil {
		cfg.WithdrawalFeeBps = *v.WithdrawalFeeBps
	}
	if v.YieldRateBps != nil {
		cfg.YieldRateBps = *v.YieldRateBps
	}
	return cfg
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	if amount.BitLen() > 256 {
		return nil, fmt.Errorf("amount exceeds 256 bits")
	}
	return amount, nil
}
