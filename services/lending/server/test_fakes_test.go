package server

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"yeifinance/core/events"
	"yeifinance/core/state"
	"yeifinance/native/lending"
	"yeifinance/native/token"
	"yeifinance/native/vault"
	"yeifinance/services/lending/indexer"
)

type amountFn func(ctx context.Context, account common.Address, amount *big.Int) (*state.Receipt, error)

type fakeLending struct {
	depositFn  amountFn
	borrowFn   amountFn
	repayFn    amountFn
	withdrawFn amountFn
	claimFn    func(ctx context.Context, account common.Address) (*state.Receipt, error)
	flashFn    func(ctx context.Context, account common.Address, amount *big.Int, receiver lending.FlashBorrower) (*state.Receipt, error)
	positionFn func(account common.Address) (lending.Position, error)
	market     lending.Market
	solvency   lending.Solvency
	params     lending.Config
	pool       common.Address
}

func fakeReceipt(label string) *state.Receipt {
	return &state.Receipt{TxHash: common.HexToHash("0x01"), Sequence: 7, Label: label}
}

func callAmount(ctx context.Context, fn amountFn, label string, account common.Address, amount *big.Int) (*state.Receipt, error) {
	if fn == nil {
		return fakeReceipt(label), nil
	}
	return fn(ctx, account, amount)
}

func (f *fakeLending) Deposit(ctx context.Context, account common.Address, amount *big.Int) (*state.Receipt, error) {
	return callAmount(ctx, f.depositFn, "lending.deposit", account, amount)
}

func (f *fakeLending) Borrow(ctx context.Context, account common.Address, amount *big.Int) (*state.Receipt, error) {
	return callAmount(ctx, f.borrowFn, "lending.borrow", account, amount)
}

func (f *fakeLending) Repay(ctx context.Context, account common.Address, amount *big.Int) (*state.Receipt, error) {
	return callAmount(ctx, f.repayFn, "lending.repay", account, amount)
}

func (f *fakeLending) Withdraw(ctx context.Context, account common.Address, amount *big.Int) (*state.Receipt, error) {
	return callAmount(ctx, f.withdrawFn, "lending.withdraw", account, amount)
}

func (f *fakeLending) ClaimRewards(ctx context.Context, account common.Address) (*state.Receipt, error) {
	if f.claimFn == nil {
		return fakeReceipt("lending.claimRewards"), nil
	}
	return f.claimFn(ctx, account)
}

func (f *fakeLending) FlashLoan(ctx context.Context, account common.Address, amount *big.Int, receiver lending.FlashBorrower) (*state.Receipt, error) {
	if f.flashFn == nil {
		return fakeReceipt("lending.flashLoan"), nil
	}
	return f.flashFn(ctx, account, amount, receiver)
}

func (f *fakeLending) Position(account common.Address) (lending.Position, error) {
	if f.positionFn == nil {
		return lending.Position{Account: lending.Account{Address: account}}, nil
	}
	return f.positionFn(account)
}

func (f *fakeLending) Market() (lending.Market, error)          { return f.market, nil }
func (f *fakeLending) CheckSolvency() (lending.Solvency, error) { return f.solvency, nil }
func (f *fakeLending) Params() lending.Config                   { return f.params }
func (f *fakeLending) BaseAsset() string                        { return "YBASE" }
func (f *fakeLending) GetRewardToken() string                   { return "YEI" }
func (f *fakeLending) Pool() common.Address                     { return f.pool }

type fakeTokens struct {
	infoFn     func(symbol string) (token.Info, error)
	approveFn  func(ctx context.Context, symbol string, owner, spender common.Address, amount *big.Int) (*state.Receipt, error)
	transferFn func(ctx context.Context, symbol string, from, to common.Address, amount *big.Int) (*state.Receipt, error)
	mintFn     func(ctx context.Context, symbol string, authority, to common.Address, amount *big.Int) (*state.Receipt, error)
	balances   map[common.Address]*big.Int
	allowances map[common.Address]*big.Int
}

func (f *fakeTokens) Info(symbol string) (token.Info, error) {
	if f.infoFn == nil {
		return token.Info{}, token.ErrUnknownToken
	}
	return f.infoFn(symbol)
}

func (f *fakeTokens) BalanceOf(_ string, addr common.Address) (*big.Int, error) {
	if v, ok := f.balances[addr]; ok {
		return v, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeTokens) Allowance(_ string, owner, _ common.Address) (*big.Int, error) {
	if v, ok := f.allowances[owner]; ok {
		return v, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeTokens) Approve(ctx context.Context, symbol string, owner, spender common.Address, amount *big.Int) (*state.Receipt, error) {
	if f.approveFn == nil {
		return fakeReceipt("token.approve"), nil
	}
	return f.approveFn(ctx, symbol, owner, spender, amount)
}

func (f *fakeTokens) Transfer(ctx context.Context, symbol string, from, to common.Address, amount *big.Int) (*state.Receipt, error) {
	if f.transferFn == nil {
		return fakeReceipt("token.transfer"), nil
	}
	return f.transferFn(ctx, symbol, from, to, amount)
}

func (f *fakeTokens) Mint(ctx context.Context, symbol string, authority, to common.Address, amount *big.Int) (*state.Receipt, error) {
	if f.mintFn == nil {
		return fakeReceipt("token.mint"), nil
	}
	return f.mintFn(ctx, symbol, authority, to, amount)
}

type fakeVault struct {
	address   common.Address
	depositFn func(ctx context.Context, owner common.Address, assets *big.Int) (*vault.Result, error)
	harvestFn func(ctx context.Context, agent common.Address) (*vault.Result, error)
}

func (f *fakeVault) Address() common.Address { return f.address }

func (f *fakeVault) Info() (vault.Info, error) {
	return vault.Info{Name: "fake", Address: f.address}, nil
}

func (f *fakeVault) SharesOf(common.Address) (*big.Int, error) { return big.NewInt(10), nil }

func (f *fakeVault) ConvertToAssets(shares *big.Int) (*big.Int, error) {
	return new(big.Int).Mul(shares, big.NewInt(2)), nil
}

func (f *fakeVault) Deposit(ctx context.Context, owner common.Address, assets *big.Int) (*vault.Result, error) {
	if f.depositFn == nil {
		return &vault.Result{Receipt: fakeReceipt("vault.deposit"), Assets: assets, Shares: assets, Fee: big.NewInt(0)}, nil
	}
	return f.depositFn(ctx, owner, assets)
}

func (f *fakeVault) Withdraw(_ context.Context, _ common.Address, shares *big.Int) (*vault.Result, error) {
	return &vault.Result{Receipt: fakeReceipt("vault.withdraw"), Assets: shares, Shares: shares, Fee: big.NewInt(0)}, nil
}

func (f *fakeVault) Harvest(ctx context.Context, agent common.Address) (*vault.Result, error) {
	if f.harvestFn == nil {
		return nil, vault.ErrNothingToHarvest
	}
	return f.harvestFn(ctx, agent)
}

type fakeEvents struct {
	got     indexer.Filter
	records []indexer.Record
}

func (f *fakeEvents) Query(_ context.Context, filter indexer.Filter) ([]indexer.Record, error) {
	f.got = filter
	return f.records, nil
}

type fakeStream struct {
	ch chan events.Event
}

func (f *fakeStream) Subscribe() (<-chan events.Event, func()) {
	return f.ch, func() {}
}
