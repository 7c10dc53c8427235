package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"yeifinance/crypto"
	"yeifinance/native/lending"
	"yeifinance/native/vault"
)

const (
	DefaultBaseSymbol   = "YBASE"
	DefaultRewardSymbol = "YEI"
	DefaultShareSymbol  = "YUSDC"
)

// DefaultPoolAddress is the module account holding pool assets when the
// genesis file does not name one.
var DefaultPoolAddress = crypto.ModuleAddress("lending-pool")

// LoadGenesis decodes and validates the genesis file at path. Unknown keys are
// rejected so typos do not silently fall back to defaults.
func LoadGenesis(path string) (*Genesis, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis path must be provided")
	}
	var g Genesis
	meta, err := toml.DecodeFile(path, &g)
	if err != nil {
		return nil, fmt.Errorf("decode genesis %q: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("genesis %q: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis %q: %w", path, err)
	}
	return &g, nil
}

// DefaultGenesis mirrors the reference deployment: a base and a reward token
// minted to deployer, 100k reward tokens funding the pool and a vault managed
// by deployer.
func DefaultGenesis(deployer common.Address) *Genesis {
	owner := deployer.Hex()
	lendingDefaults := lending.DefaultConfig()
	fee, rate := vault.DefaultWithdrawalFeeBps, vault.DefaultYieldRateBps
	g := &Genesis{
		Protocol: Protocol{
			BaseAsset:           DefaultBaseSymbol,
			RewardAsset:         DefaultRewardSymbol,
			CollateralFactorBps: lendingDefaults.CollateralFactorBps,
			RewardRateBps:       lendingDefaults.RewardRateBps,
			FlashLoanFeeBps:     lendingDefaults.FlashLoanFeeBps,
			RewardFunding:       "100000000000000000000000",
		},
		Tokens: []TokenSpec{
			{Symbol: DefaultBaseSymbol, Name: "YEI Base Token", Decimals: 18, MintAuthority: owner},
			{Symbol: DefaultRewardSymbol, Name: "YEI Finance Token", Decimals: 18, MintAuthority: owner},
		},
		Allocations: []Allocation{
			{Account: owner, Token: DefaultBaseSymbol, Amount: "1000000000000000000000000"},
			{Account: owner, Token: DefaultRewardSymbol, Amount: "900000000000000000000000"},
		},
		Vault: &VaultSpec{
			Name:             "YEI Finance Vault",
			ShareSymbol:      DefaultShareSymbol,
			Underlying:       DefaultBaseSymbol,
			Manager:          owner,
			Agent:            owner,
			Treasury:         owner,
			WithdrawalFeeBps: &fee,
			YieldRateBps:     &rate,
		},
	}
	return g
}

// WriteGenesis persists g as TOML, creating parent directories as needed.
func WriteGenesis(path string, g *Genesis) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(g)
}
