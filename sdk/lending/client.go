// Package lending is a typed HTTP client for the lendingd REST API.
package lending

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"

	"yeifinance/services/lending/api"
)

const (
	defaultTimeout = 15 * time.Second
	defaultRetries = 3
)

// ErrClientClosed is returned by calls on a nil client.
var ErrClientClosed = errors.New("lending: client is nil")

// Client provides typed helpers over the lendingd REST API.
type Client struct {
	base    *url.URL
	http    *http.Client
	token   string
	retries uint64
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithRetries bounds the retries of idempotent reads. Zero disables retries.
func WithRetries(n uint64) Option {
	return func(c *Client) { c.retries = n }
}

// New builds a client for the service rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("lending: base url required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("lending: parse base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("lending: unsupported scheme %q", parsed.Scheme)
	}
	c := &Client{
		base:    parsed,
		http:    &http.Client{Timeout: defaultTimeout},
		retries: defaultRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Health reports whether the service answers its liveness probe.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil, nil)
}

// Protocol fetches parameters, market totals and the solvency report.
func (c *Client) Protocol(ctx context.Context) (*api.Protocol, error) {
	var out api.Protocol
	if err := c.get(ctx, "/v1/protocol", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Position returns the lending position of account.
func (c *Client) Position(ctx context.Context, account common.Address) (*api.Position, error) {
	var out api.Position
	if err := c.get(ctx, "/v1/accounts/"+account.Hex(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Token returns token metadata and supply.
func (c *Client) Token(ctx context.Context, symbol string) (*api.TokenInfo, error) {
	var out api.TokenInfo
	if err := c.get(ctx, "/v1/tokens/"+url.PathEscape(symbol), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Balance returns the token balance of account and its allowance to the pool.
func (c *Client) Balance(ctx context.Context, symbol string, account common.Address) (*api.Balance, error) {
	var out api.Balance
	path := "/v1/tokens/" + url.PathEscape(symbol) + "/balances/" + account.Hex()
	if err := c.get(ctx, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Vault returns the vault configuration and totals.
func (c *Client) Vault(ctx context.Context) (*api.VaultInfo, error) {
	var out api.VaultInfo
	if err := c.get(ctx, "/v1/vault", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VaultShares returns the vault shares held by account and their value.
func (c *Client) VaultShares(ctx context.Context, account common.Address) (*api.VaultShares, error) {
	var out api.VaultShares
	if err := c.get(ctx, "/v1/vault/shares/"+account.Hex(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EventsQuery filters the indexed event history.
type EventsQuery struct {
	Account common.Address
	Type    string
	TxHash  string
	After   uint64
	Limit   int
}

func (q EventsQuery) values() url.Values {
	values := url.Values{}
	if q.Account != (common.Address{}) {
		values.Set("account", q.Account.Hex())
	}
	if q.Type != "" {
		values.Set("type", q.Type)
	}
	if q.TxHash != "" {
		values.Set("txHash", q.TxHash)
	}
	if q.After > 0 {
		values.Set("after", strconv.FormatUint(q.After, 10))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	return values
}

// Events pages through the indexed history. Pass the returned Next as After
// to continue.
func (c *Client) Events(ctx context.Context, q EventsQuery) (*api.EventsResponse, error) {
	var out api.EventsResponse
	if err := c.get(ctx, "/v1/events", q.values(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Deposit moves amount of the base asset from account into the pool. A zero
// account lets the server act for the bearer token subject.
func (c *Client) Deposit(ctx context.Context, account common.Address, amount *big.Int) (*api.TxResponse, error) {
	return c.amountOp(ctx, "/v1/deposit", account, amount)
}

// Borrow draws amount of the base asset against account's deposit.
func (c *Client) Borrow(ctx context.Context, account common.Address, amount *big.Int) (*api.TxResponse, error) {
	return c.amountOp(ctx, "/v1/borrow", account, amount)
}

// Repay returns amount of outstanding debt.
func (c *Client) Repay(ctx context.Context, account common.Address, amount *big.Int) (*api.TxResponse, error) {
	return c.amountOp(ctx, "/v1/repay", account, amount)
}

// Withdraw takes amount of deposit back out of the pool.
func (c *Client) Withdraw(ctx context.Context, account common.Address, amount *big.Int) (*api.TxResponse, error) {
	return c.amountOp(ctx, "/v1/withdraw", account, amount)
}

// FlashLoan borrows and repays amount within one request. The account must
// have approved the pool for amount plus the fee beforehand.
func (c *Client) FlashLoan(ctx context.Context, account common.Address, amount *big.Int) (*api.TxResponse, error) {
	return c.amountOp(ctx, "/v1/flashloan", account, amount)
}

// ClaimRewards pays out the pending reward of account.
func (c *Client) ClaimRewards(ctx context.Context, account common.Address) (*api.TxResponse, error) {
	var out api.TxResponse
	if err := c.post(ctx, "/v1/claim", api.AccountRequest{Account: optional(account)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Approve sets the allowance of spender over owner's tokens. Spender may be an
// address or the "pool" and "vault" aliases.
func (c *Client) Approve(ctx context.Context, symbol string, owner common.Address, spender string, amount *big.Int) (*api.TxResponse, error) {
	var out api.TxResponse
	req := api.ApproveRequest{Owner: optional(owner), Spender: spender, Amount: api.FormatAmount(amount)}
	if err := c.post(ctx, "/v1/tokens/"+url.PathEscape(symbol)+"/approve", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transfer moves tokens between accounts.
func (c *Client) Transfer(ctx context.Context, symbol string, from, to common.Address, amount *big.Int) (*api.TxResponse, error) {
	var out api.TxResponse
	req := api.TransferRequest{From: optional(from), To: to.Hex(), Amount: api.FormatAmount(amount)}
	if err := c.post(ctx, "/v1/tokens/"+url.PathEscape(symbol)+"/transfer", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Mint issues new tokens. It requires a token with the admin scope.
func (c *Client) Mint(ctx context.Context, symbol string, authority, to common.Address, amount *big.Int) (*api.TxResponse, error) {
	var out api.TxResponse
	req := api.MintRequest{Authority: optional(authority), To: to.Hex(), Amount: api.FormatAmount(amount)}
	if err := c.post(ctx, "/v1/tokens/"+url.PathEscape(symbol)+"/mint", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VaultDeposit deposits assets into the vault for shares.
func (c *Client) VaultDeposit(ctx context.Context, account common.Address, assets *big.Int) (*api.VaultTxResponse, error) {
	var out api.VaultTxResponse
	req := api.AmountRequest{Account: optional(account), Amount: api.FormatAmount(assets)}
	if err := c.post(ctx, "/v1/vault/deposit", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VaultWithdraw redeems shares for assets less the withdrawal fee.
func (c *Client) VaultWithdraw(ctx context.Context, account common.Address, shares *big.Int) (*api.VaultTxResponse, error) {
	var out api.VaultTxResponse
	req := api.VaultWithdrawRequest{Account: optional(account), Shares: api.FormatAmount(shares)}
	if err := c.post(ctx, "/v1/vault/withdraw", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VaultHarvest accrues vault yield as agent.
func (c *Client) VaultHarvest(ctx context.Context, agent common.Address) (*api.VaultTxResponse, error) {
	var out api.VaultTxResponse
	if err := c.post(ctx, "/v1/vault/harvest", api.AccountRequest{Account: optional(agent)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) amountOp(ctx context.Context, path string, account common.Address, amount *big.Int) (*api.TxResponse, error) {
	var out api.TxResponse
	req := api.AmountRequest{Account: optional(account), Amount: api.FormatAmount(amount)}
	if err := c.post(ctx, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func optional(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return addr.Hex()
}

// get retries transport failures and 5xx or 429 answers with exponential
// backoff. Other API errors are returned immediately.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if c == nil {
		return ErrClientClosed
	}
	var policy backoff.BackOff = backoff.NewExponentialBackOff()
	policy = backoff.WithContext(backoff.WithMaxRetries(policy, c.retries), ctx)
	return backoff.Retry(func() error {
		err := c.do(ctx, http.MethodGet, path, query, nil, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// post is never retried: a timed-out write may still have been applied.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	if c == nil {
		return ErrClientClosed
	}
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := *c.base
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + path
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("lending: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		return decodeError(res)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("lending: decode response: %w", err)
	}
	return nil
}
