package lending

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"yeifinance/core/events"
	"yeifinance/core/state"
	"yeifinance/crypto"
	"yeifinance/native/token"
	"yeifinance/storage"
)

const (
	baseSymbol   = "YBASE"
	rewardSymbol = "YRWD"
)

var (
	mintAuthority = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	alice         = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob           = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	poolAddress   = crypto.ModuleAddress("lending-pool")
)

type harness struct {
	t        *testing.T
	manager  *state.Manager
	tokens   *token.Service
	engine   *Engine
	recorder *events.Recorder
}

// newHarness wires an engine over two freshly registered tokens. alice and
// bob each hold 1000 base units with an unlimited pool allowance, and the
// reward pool is funded with 100000 reward units.
func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithConfig(t, DefaultConfig())
}

func newHarnessWithConfig(t *testing.T, cfg Config) *harness {
	t.Helper()
	ctx := context.Background()
	mgr := state.NewManager(storage.NewMemDB())
	recorder := &events.Recorder{}
	mgr.SetEmitter(recorder)
	tokens := token.NewService(mgr)

	for _, meta := range []token.Metadata{
		{Symbol: baseSymbol, Name: "YEI Base", Decimals: 18, MintAuthority: mintAuthority},
		{Symbol: rewardSymbol, Name: "YEI Reward", Decimals: 18, MintAuthority: mintAuthority},
	} {
		if _, err := tokens.Register(ctx, meta); err != nil {
			t.Fatalf("register %s: %v", meta.Symbol, err)
		}
	}
	unlimited := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	for _, holder := range []common.Address{alice, bob} {
		if _, err := tokens.Mint(ctx, baseSymbol, mintAuthority, holder, big.NewInt(1000)); err != nil {
			t.Fatalf("mint: %v", err)
		}
		if _, err := tokens.Approve(ctx, baseSymbol, holder, poolAddress, unlimited); err != nil {
			t.Fatalf("approve: %v", err)
		}
	}
	if _, err := tokens.Mint(ctx, rewardSymbol, mintAuthority, poolAddress, big.NewInt(100_000)); err != nil {
		t.Fatalf("fund rewards: %v", err)
	}

	engine, err := NewEngine(mgr, token.NewPoolAsset(baseSymbol, poolAddress), token.NewPoolAsset(rewardSymbol, poolAddress), cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	recorder.Reset()
	return &harness{t: t, manager: mgr, tokens: tokens, engine: engine, recorder: recorder}
}

func (h *harness) account(addr common.Address) Account {
	h.t.Helper()
	acct, err := h.engine.Account(addr)
	if err != nil {
		h.t.Fatalf("account: %v", err)
	}
	return acct
}

func (h *harness) balance(symbol string, addr common.Address) *big.Int {
	h.t.Helper()
	balance, err := h.tokens.BalanceOf(symbol, addr)
	if err != nil {
		h.t.Fatalf("balance: %v", err)
	}
	return balance
}

func (h *harness) lendingEvents() []string {
	var out []string
	for _, ev := range h.recorder.Types() {
		if len(ev) > len(moduleName) && ev[:len(moduleName)] == moduleName {
			out = append(out, ev)
		}
	}
	return out
}

func expectAmount(t *testing.T, label string, got *big.Int, want int64) {
	t.Helper()
	if got == nil || got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("%s: expected %d, got %v", label, want, got)
	}
}

// fakeAsset lets tests inject collaborator failures.
type fakeAsset struct {
	symbol        string
	pool          common.Address
	balanceOfFn   func(st state.Store, account common.Address) (*big.Int, error)
	transferInFn  func(st state.Store, from common.Address, amount *big.Int) error
	transferOutFn func(st state.Store, to common.Address, amount *big.Int) error
}

func (f *fakeAsset) Symbol() string       { return f.symbol }
func (f *fakeAsset) Pool() common.Address { return f.pool }

func (f *fakeAsset) BalanceOf(st state.Store, account common.Address) (*big.Int, error) {
	if f.balanceOfFn != nil {
		return f.balanceOfFn(st, account)
	}
	return big.NewInt(0), nil
}

func (f *fakeAsset) TransferIn(st state.Store, from common.Address, amount *big.Int) error {
	if f.transferInFn != nil {
		return f.transferInFn(st, from, amount)
	}
	return nil
}

func (f *fakeAsset) TransferOut(st state.Store, to common.Address, amount *big.Int) error {
	if f.transferOutFn != nil {
		return f.transferOutFn(st, to, amount)
	}
	return nil
}
