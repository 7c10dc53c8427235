package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"yeifinance/core/events"
	"yeifinance/core/state"
	"yeifinance/native/lending"
	"yeifinance/native/token"
	"yeifinance/native/vault"
	"yeifinance/services/lending/api"
	"yeifinance/services/lending/indexer"
	"yeifinance/services/lending/middleware"
)

const testSecret = "server-test-secret"

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	pool  = common.HexToAddress("0x00000000000000000000000000000000000000c0")
)

func newHandler(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	if cfg.Lending == nil {
		cfg.Lending = &fakeLending{pool: pool}
	}
	if cfg.Tokens == nil {
		cfg.Tokens = &fakeTokens{}
	}
	srv, err := New(cfg)
	require.NoError(t, err)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func decode[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out), res.Body.String())
	return out
}

func issue(t *testing.T, subject common.Address, scopes ...string) string {
	t.Helper()
	token, err := middleware.IssueToken(testSecret, middleware.TokenRequest{Subject: subject, Scopes: scopes, TTL: time.Minute})
	require.NoError(t, err)
	return token
}

func TestAmountRoutesDispatch(t *testing.T) {
	type call struct {
		account common.Address
		amount  string
	}
	var got []call
	record := func(ctx context.Context, account common.Address, amount *big.Int) (*state.Receipt, error) {
		got = append(got, call{account, amount.String()})
		return fakeReceipt("ok"), nil
	}
	fake := &fakeLending{
		pool:       pool,
		depositFn:  record,
		borrowFn:   record,
		repayFn:    record,
		withdrawFn: record,
		flashFn: func(ctx context.Context, account common.Address, amount *big.Int, receiver lending.FlashBorrower) (*state.Receipt, error) {
			if receiver != nil {
				t.Fatalf("flash loans over HTTP run without a callback")
			}
			return record(ctx, account, amount)
		},
	}
	h := newHandler(t, Config{Lending: fake})

	for i, path := range []string{"/v1/deposit", "/v1/borrow", "/v1/repay", "/v1/withdraw", "/v1/flashloan"} {
		res := do(t, h, http.MethodPost, path, api.AmountRequest{Account: alice.Hex(), Amount: fmt.Sprint(100 + i)}, "")
		require.Equal(t, http.StatusOK, res.Code, "%s: %s", path, res.Body.String())
		tx := decode[api.TxResponse](t, res)
		require.Equal(t, common.HexToHash("0x01").Hex(), tx.TxHash)
		require.Equal(t, uint64(7), tx.Sequence)
	}
	require.Len(t, got, 5)
	for i, c := range got {
		require.Equal(t, alice, c.account)
		require.Equal(t, fmt.Sprint(100+i), c.amount)
	}
}

func TestReceiptEventsAreRendered(t *testing.T) {
	fake := &fakeLending{pool: pool, depositFn: func(ctx context.Context, account common.Address, amount *big.Int) (*state.Receipt, error) {
		r := fakeReceipt("lending.deposit")
		r.Events = []events.Event{events.Deposited(account, "YBASE", amount, r.TxHash)}
		return r, nil
	}}
	res := do(t, newHandler(t, Config{Lending: fake}), http.MethodPost, "/v1/deposit", api.AmountRequest{Account: alice.Hex(), Amount: "100"}, "")
	require.Equal(t, http.StatusOK, res.Code)
	tx := decode[api.TxResponse](t, res)
	require.Len(t, tx.Events, 1)
	require.Equal(t, events.TypeLendingDeposited, tx.Events[0].Type)
	require.Equal(t, "100", tx.Events[0].Attributes["amount"])
	require.Equal(t, alice.Hex(), tx.Events[0].Attributes["account"])
}

func TestClaimRoute(t *testing.T) {
	var claimed common.Address
	fake := &fakeLending{pool: pool, claimFn: func(ctx context.Context, account common.Address) (*state.Receipt, error) {
		claimed = account
		return fakeReceipt("lending.claimRewards"), nil
	}}
	res := do(t, newHandler(t, Config{Lending: fake}), http.MethodPost, "/v1/claim", api.AccountRequest{Account: bob.Hex()}, "")
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, bob, claimed)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"zero amount", lending.ErrZeroAmount, http.StatusBadRequest, "ZeroAmount"},
		{"invalid amount", lending.ErrInvalidAmount, http.StatusBadRequest, "InvalidAmount"},
		{"collateral", lending.ErrInsufficientCollateral, http.StatusUnprocessableEntity, "InsufficientCollateral"},
		{"excess repayment", lending.ErrExcessRepayment, http.StatusUnprocessableEntity, "ExcessRepayment"},
		{"withdraw past deposit", lending.ErrInsufficientDeposit, http.StatusUnprocessableEntity, "InsufficientDeposit"},
		{"overflow", lending.ErrArithmeticOverflow, http.StatusUnprocessableEntity, "ArithmeticOverflow"},
		{"flash loan", fmt.Errorf("%w: %w", lending.ErrFlashLoanNotRepaid, token.ErrInsufficientAllowance), http.StatusUnprocessableEntity, "FlashLoanNotRepaid"},
		{"balance", fmt.Errorf("pull: %w", token.ErrInsufficientBalance), http.StatusUnprocessableEntity, "InsufficientBalance"},
		{"allowance", token.ErrInsufficientAllowance, http.StatusUnprocessableEntity, "InsufficientAllowance"},
		{"reentry", lending.ErrReentrantCall, http.StatusConflict, "ReentrantCall"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "Timeout"},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError, "Internal"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fake := &fakeLending{pool: pool, borrowFn: func(context.Context, common.Address, *big.Int) (*state.Receipt, error) {
				return nil, tc.err
			}}
			res := do(t, newHandler(t, Config{Lending: fake}), http.MethodPost, "/v1/borrow", api.AmountRequest{Account: alice.Hex(), Amount: "1"}, "")
			require.Equal(t, tc.status, res.Code)
			body := decode[api.ErrorResponse](t, res)
			require.Equal(t, tc.code, body.Code)
			if tc.status == http.StatusInternalServerError {
				require.NotContains(t, body.Error, "disk on fire", "internal errors are not leaked")
			}
		})
	}
}

func TestRejectsMalformedRequests(t *testing.T) {
	huge := `{"account":"` + alice.Hex() + `","amount":"` + strings.Repeat("9", requestLimit) + `"}`
	cases := []struct {
		name string
		body string
		code string
	}{
		{"not json", "{", "InvalidRequest"},
		{"unknown field", `{"account":"` + alice.Hex() + `","amount":"1","memo":"x"}`, "InvalidRequest"},
		{"bad amount", `{"account":"` + alice.Hex() + `","amount":"1.5"}`, "InvalidRequest"},
		{"bad account", `{"account":"0xnothex","amount":"1"}`, "InvalidRequest"},
		{"zero account", `{"account":"0x0000000000000000000000000000000000000000","amount":"1"}`, "InvalidAccount"},
		{"missing account", `{"amount":"1"}`, "InvalidRequest"},
		{"trailing data", `{"account":"` + alice.Hex() + `","amount":"1"} {}`, "InvalidRequest"},
		{"too large", huge, "InvalidRequest"},
	}
	h := newHandler(t, Config{})
	for _, tc := range cases {
		res := do(t, h, http.MethodPost, "/v1/deposit", tc.body, "")
		require.Equal(t, http.StatusBadRequest, res.Code, tc.name)
		require.Equal(t, tc.code, decode[api.ErrorResponse](t, res).Code, tc.name)
	}
}

func TestRequiresJSONContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/deposit", strings.NewReader(`{"amount":"1"}`))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	newHandler(t, Config{}).ServeHTTP(res, req)
	require.Equal(t, http.StatusUnsupportedMediaType, res.Code)
}

func TestAuthenticatedSubjectMustMatchAccount(t *testing.T) {
	var depositedFor []common.Address
	fake := &fakeLending{pool: pool, depositFn: func(ctx context.Context, account common.Address, amount *big.Int) (*state.Receipt, error) {
		depositedFor = append(depositedFor, account)
		return fakeReceipt("lending.deposit"), nil
	}}
	auth := middleware.NewAuthenticator(middleware.AuthConfig{Enabled: true, HMACSecret: testSecret}, nil)
	h := newHandler(t, Config{Lending: fake, Auth: auth})

	res := do(t, h, http.MethodPost, "/v1/deposit", api.AmountRequest{Account: alice.Hex(), Amount: "1"}, "")
	require.Equal(t, http.StatusUnauthorized, res.Code)

	aliceToken := issue(t, alice)
	res = do(t, h, http.MethodPost, "/v1/deposit", api.AmountRequest{Account: bob.Hex(), Amount: "1"}, aliceToken)
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Equal(t, "Forbidden", decode[api.ErrorResponse](t, res).Code)

	res = do(t, h, http.MethodPost, "/v1/deposit", api.AmountRequest{Amount: "1"}, aliceToken)
	require.Equal(t, http.StatusOK, res.Code, "the subject fills an empty account")

	res = do(t, h, http.MethodPost, "/v1/deposit", api.AmountRequest{Account: bob.Hex(), Amount: "1"}, issue(t, alice, middleware.DefaultAdminScope))
	require.Equal(t, http.StatusOK, res.Code, "admins act for anyone")

	require.Equal(t, []common.Address{alice, bob}, depositedFor)

	// Reads stay public.
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/v1/accounts/"+bob.Hex(), nil, "").Code)
}

func TestMintRequiresAdminScope(t *testing.T) {
	var minted *big.Int
	tokens := &fakeTokens{mintFn: func(ctx context.Context, symbol string, authority, to common.Address, amount *big.Int) (*state.Receipt, error) {
		require.Equal(t, "YEI", symbol)
		require.Equal(t, alice, authority)
		minted = amount
		return fakeReceipt("token.mint"), nil
	}}
	auth := middleware.NewAuthenticator(middleware.AuthConfig{Enabled: true, HMACSecret: testSecret}, nil)
	h := newHandler(t, Config{Tokens: tokens, Auth: auth})
	body := api.MintRequest{To: bob.Hex(), Amount: "500"}

	require.Equal(t, http.StatusForbidden, do(t, h, http.MethodPost, "/v1/tokens/YEI/mint", body, issue(t, alice)).Code)
	res := do(t, h, http.MethodPost, "/v1/tokens/YEI/mint", body, issue(t, alice, middleware.DefaultAdminScope))
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Equal(t, "500", minted.String())
}

func TestApproveResolvesSpenderAliases(t *testing.T) {
	vaultAddr := common.HexToAddress("0x00000000000000000000000000000000000000e5")
	var spenders []common.Address
	tokens := &fakeTokens{approveFn: func(ctx context.Context, symbol string, owner, spender common.Address, amount *big.Int) (*state.Receipt, error) {
		spenders = append(spenders, spender)
		return fakeReceipt("token.approve"), nil
	}}
	h := newHandler(t, Config{Tokens: tokens, Vault: &fakeVault{address: vaultAddr}})
	for _, spender := range []string{"", "pool", "vault", bob.Hex()} {
		res := do(t, h, http.MethodPost, "/v1/tokens/YBASE/approve", api.ApproveRequest{Owner: alice.Hex(), Spender: spender, Amount: "10"}, "")
		require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	}
	require.Equal(t, []common.Address{pool, pool, vaultAddr, bob}, spenders)
}

func TestTokenViews(t *testing.T) {
	tokens := &fakeTokens{
		infoFn: func(symbol string) (token.Info, error) {
			if symbol != "YEI" {
				return token.Info{}, token.ErrUnknownToken
			}
			return token.Info{
				Metadata:    token.Metadata{Symbol: "YEI", Name: "YEI Finance Token", Decimals: 18, MintAuthority: alice},
				TotalSupply: big.NewInt(1000),
			}, nil
		},
		balances:   map[common.Address]*big.Int{bob: big.NewInt(12)},
		allowances: map[common.Address]*big.Int{bob: big.NewInt(5)},
	}
	h := newHandler(t, Config{Tokens: tokens})

	info := decode[api.TokenInfo](t, do(t, h, http.MethodGet, "/v1/tokens/YEI", nil, ""))
	require.Equal(t, "1000", info.TotalSupply)
	require.Equal(t, alice.Hex(), info.MintAuthority)

	res := do(t, h, http.MethodGet, "/v1/tokens/NOPE", nil, "")
	require.Equal(t, http.StatusNotFound, res.Code)
	require.Equal(t, "UnknownToken", decode[api.ErrorResponse](t, res).Code)

	bal := decode[api.Balance](t, do(t, h, http.MethodGet, "/v1/tokens/yei/balances/"+bob.Hex(), nil, ""))
	require.Equal(t, "YEI", bal.Symbol)
	require.Equal(t, "12", bal.Balance)
	require.Equal(t, "5", bal.PoolAllowance)
}

func TestProtocolAndPositionViews(t *testing.T) {
	fake := &fakeLending{
		pool:     pool,
		params:   lending.DefaultConfig(),
		market:   lending.Market{TotalDeposited: big.NewInt(100), TotalBorrowed: big.NewInt(80)},
		solvency: lending.Solvency{PoolBalance: big.NewInt(20), Required: big.NewInt(20), Solvent: true},
		positionFn: func(account common.Address) (lending.Position, error) {
			return lending.Position{
				Account:     lending.Account{Address: account, Deposited: big.NewInt(100), Borrowed: big.NewInt(80), PendingReward: big.NewInt(10)},
				BorrowLimit: big.NewInt(80),
				Available:   big.NewInt(0),
			}, nil
		},
	}
	h := newHandler(t, Config{Lending: fake})

	proto := decode[api.Protocol](t, do(t, h, http.MethodGet, "/v1/protocol", nil, ""))
	require.Equal(t, uint64(8000), proto.CollateralFactorBps)
	require.Equal(t, uint64(1000), proto.RewardRateBps)
	require.Equal(t, "YEI", proto.RewardAsset)
	require.Equal(t, pool.Hex(), proto.Pool)
	require.Equal(t, "80", proto.Market.TotalBorrowed)
	require.Equal(t, "0", proto.Market.FlashLoanFees)
	require.True(t, proto.Solvency.Solvent)

	pos := decode[api.Position](t, do(t, h, http.MethodGet, "/v1/accounts/"+alice.Hex(), nil, ""))
	require.Equal(t, "100", pos.Deposited)
	require.Equal(t, "10", pos.PendingReward)
	require.Equal(t, "0", pos.Available)

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/accounts/nope", nil, "").Code)
}

func TestVaultRoutes(t *testing.T) {
	h := newHandler(t, Config{})
	res := do(t, h, http.MethodGet, "/v1/vault", nil, "")
	require.Equal(t, http.StatusNotFound, res.Code)
	require.Equal(t, "VaultDisabled", decode[api.ErrorResponse](t, res).Code)

	h = newHandler(t, Config{Vault: &fakeVault{}})
	dep := decode[api.VaultTxResponse](t, do(t, h, http.MethodPost, "/v1/vault/deposit", api.AmountRequest{Account: alice.Hex(), Amount: "30"}, ""))
	require.Equal(t, "30", dep.Shares)
	require.NotEmpty(t, dep.TxHash)

	shares := decode[api.VaultShares](t, do(t, h, http.MethodGet, "/v1/vault/shares/"+alice.Hex(), nil, ""))
	require.Equal(t, "10", shares.Shares)
	require.Equal(t, "20", shares.Assets)

	res = do(t, h, http.MethodPost, "/v1/vault/harvest", api.AccountRequest{Account: alice.Hex()}, "")
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
	require.Equal(t, "NothingToHarvest", decode[api.ErrorResponse](t, res).Code)

	vaultUnauthorized := &fakeVault{harvestFn: func(context.Context, common.Address) (*vault.Result, error) {
		return nil, vault.ErrUnauthorized
	}}
	res = do(t, newHandler(t, Config{Vault: vaultUnauthorized}), http.MethodPost, "/v1/vault/harvest", api.AccountRequest{Account: bob.Hex()}, "")
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestEventsQueryParameters(t *testing.T) {
	store := &fakeEvents{records: []indexer.Record{
		{Seq: 4, Type: events.TypeLendingBorrowed, Account: alice.Hex(), Attributes: map[string]string{"amount": "5"}},
		{Seq: 9, Type: events.TypeLendingBorrowed, Account: alice.Hex(), Attributes: map[string]string{"amount": "6"}},
	}}
	h := newHandler(t, Config{Events: store})

	res := do(t, h, http.MethodGet, "/v1/events?account="+alice.Hex()+"&type=lending.borrowed&after=3&limit=2", nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	page := decode[api.EventsResponse](t, res)
	require.Len(t, page.Events, 2)
	require.Equal(t, uint64(9), page.Next)
	require.Equal(t, indexer.Filter{Account: alice, Type: "lending.borrowed", AfterSeq: 3, Limit: 2}, store.got)

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/events?after=x", nil, "").Code)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/events?limit=-1", nil, "").Code)
	require.Equal(t, http.StatusNotFound, do(t, newHandler(t, Config{}), http.MethodGet, "/v1/events", nil, "").Code)
}

func TestStreamFilter(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/events/stream?types=lending.deposited,token.transfer&account="+alice.Hex(), nil)
	f, err := newStreamFilter(req)
	require.NoError(t, err)
	require.True(t, f.match(api.Event{Type: "lending.deposited", Attributes: map[string]string{"account": alice.Hex()}}))
	require.True(t, f.match(api.Event{Type: "token.transfer", Attributes: map[string]string{"from": bob.Hex(), "to": strings.ToLower(alice.Hex())}}))
	require.False(t, f.match(api.Event{Type: "lending.borrowed", Attributes: map[string]string{"account": alice.Hex()}}))
	require.False(t, f.match(api.Event{Type: "lending.deposited", Attributes: map[string]string{"account": bob.Hex()}}))
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{Tokens: &fakeTokens{}})
	require.ErrorIs(t, err, lending.ErrNotConfigured)
}

func TestHealthz(t *testing.T) {
	res := do(t, newHandler(t, Config{}), http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, res.Code)
	require.JSONEq(t, `{"status":"ok"}`, res.Body.String())
}
