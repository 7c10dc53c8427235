package config

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"yeifinance/core/state"
	"yeifinance/crypto"
	"yeifinance/storage"
)

var deployer = common.HexToAddress("0x00000000000000000000000000000000000000d1")

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "genesis.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadGenesisParsesDeployment(t *testing.T) {
	path := writeFile(t, `
[protocol]
base_asset = "ybase"
reward_asset = "yei"
collateral_factor_bps = 7500
reward_rate_bps = 500
flash_loan_fee_bps = 9
reward_funding = "5000"

[[tokens]]
symbol = "YBASE"
name = "YEI Base Token"
decimals = 6
mint_authority = "0x00000000000000000000000000000000000000d1"

[[tokens]]
symbol = "YEI"
name = "YEI Finance Token"
decimals = 18
mint_authority = "`+crypto.Bech32(deployer)+`"

[[allocations]]
account = "0x00000000000000000000000000000000000000a1"
token = "ybase"
amount = "1000"

[vault]
name = "YEI Finance Vault"
share_symbol = "yusdc"
underlying = "YBASE"
manager = "0x00000000000000000000000000000000000000d1"
agent = "0x00000000000000000000000000000000000000d1"
treasury = "0x00000000000000000000000000000000000000d2"
`)
	g, err := LoadGenesis(path)
	require.NoError(t, err)
	require.Equal(t, "YBASE", g.Protocol.BaseAsset)
	require.Equal(t, "YEI", g.Protocol.RewardAsset)
	require.Equal(t, DefaultPoolAddress, g.Protocol.PoolAddress())
	require.Equal(t, int64(5000), g.Protocol.RewardFundingAmount().Int64())

	lendingCfg := g.Protocol.LendingConfig()
	require.Equal(t, uint64(7500), lendingCfg.CollateralFactorBps)
	require.Equal(t, uint64(500), lendingCfg.RewardRateBps)
	require.Equal(t, uint64(9), lendingCfg.FlashLoanFeeBps)

	require.Equal(t, deployer, g.Tokens[1].mintAuthority, "bech32 authorities resolve to the same account")
	require.Equal(t, int64(1000), g.Allocations[0].amount.Int64())

	vaultCfg := g.Vault.Config()
	require.Equal(t, "YUSDC", vaultCfg.ShareSymbol)
	require.Equal(t, uint64(50), vaultCfg.WithdrawalFeeBps, "fee defaults when omitted")
	require.Equal(t, uint64(1000), vaultCfg.YieldRateBps)
	require.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000d2"), vaultCfg.Treasury)
}

func TestLoadGenesisRejectsInvalidFiles(t *testing.T) {
	base := `
[protocol]
base_asset = "YBASE"
reward_asset = "YEI"
collateral_factor_bps = 8000
reward_rate_bps = 1000

[[tokens]]
symbol = "YBASE"
name = "Base"
mint_authority = "0x00000000000000000000000000000000000000d1"

[[tokens]]
symbol = "YEI"
name = "Reward"
mint_authority = "0x00000000000000000000000000000000000000d1"
`
	cases := []struct {
		name    string
		extra   string
		replace [2]string
		want    string
	}{
		{name: "unknown key", extra: "\n[extras]\nfoo = 1\n", want: "unknown keys"},
		{name: "unregistered base", replace: [2]string{`base_asset = "YBASE"`, `base_asset = "USDC"`}, want: "base_asset"},
		{name: "same assets", replace: [2]string{`reward_asset = "YEI"`, `reward_asset = "YBASE"`}, want: "must differ"},
		{name: "collateral factor", replace: [2]string{"collateral_factor_bps = 8000", "collateral_factor_bps = 0"}, want: "invalid configuration"},
		{name: "negative allocation", extra: "\n[[allocations]]\naccount = \"0x00000000000000000000000000000000000000a1\"\ntoken = \"YBASE\"\namount = \"-5\"\n", want: "negative"},
		{name: "zero authority", replace: [2]string{`name = "Base"` + "\nmint_authority = \"0x00000000000000000000000000000000000000d1\"", `name = "Base"` + "\nmint_authority = \"0x0000000000000000000000000000000000000000\""}, want: "mint_authority"},
		{name: "duplicate token", extra: "\n[[tokens]]\nsymbol = \"ybase\"\nname = \"Again\"\nmint_authority = \"0x00000000000000000000000000000000000000d1\"\n", want: "duplicate symbol"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			contents := base + tc.extra
			if tc.replace[0] != "" {
				require.Contains(t, contents, tc.replace[0])
				contents = strings.Replace(contents, tc.replace[0], tc.replace[1], 1)
			}
			_, err := LoadGenesis(writeFile(t, contents))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestWriteGenesisRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "genesis.toml")
	require.NoError(t, WriteGenesis(path, DefaultGenesis(deployer)))

	g, err := LoadGenesis(path)
	require.NoError(t, err)
	require.Len(t, g.Tokens, 2)
	require.Equal(t, DefaultShareSymbol, g.Vault.ShareSymbol)
	require.Equal(t, deployer, g.Vault.Config().Manager)
}

func TestBootstrapAppliesOnce(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db, err := storage.NewLevelDB(dir)
	require.NoError(t, err)

	g := DefaultGenesis(deployer)
	dep, err := Bootstrap(ctx, state.NewManager(db), g)
	require.NoError(t, err)
	require.True(t, dep.Applied)
	require.NotNil(t, dep.Vault)

	rewards, err := dep.Tokens.BalanceOf(DefaultRewardSymbol, dep.Pool)
	require.NoError(t, err)
	funding, _ := new(big.Int).SetString("100000000000000000000000", 10)
	require.Zero(t, rewards.Cmp(funding))

	info, err := dep.Vault.Info()
	require.NoError(t, err)
	require.Equal(t, DefaultBaseSymbol, info.Underlying)
	require.Equal(t, deployer, info.Agent)
	require.Equal(t, dep.Engine.GetRewardToken(), DefaultRewardSymbol)
	db.Close()

	// Reopening the same store must keep balances and skip the writes.
	db, err = storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db.Close()
	again, err := Bootstrap(ctx, state.NewManager(db), DefaultGenesis(deployer))
	require.NoError(t, err)
	require.False(t, again.Applied)
	supply, err := again.Tokens.Info(DefaultBaseSymbol)
	require.NoError(t, err)
	want, _ := new(big.Int).SetString("1000000000000000000000000", 10)
	require.Zero(t, supply.TotalSupply.Cmp(want), "allocations are not minted twice")
}
