package server

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"yeifinance/core/events"
	"yeifinance/core/state"
	"yeifinance/native/lending"
	"yeifinance/native/token"
	"yeifinance/native/vault"
	"yeifinance/services/lending/indexer"
	"yeifinance/services/lending/middleware"
)

const requestLimit = 1 << 20 // 1 MiB

// Lending is the engine surface served over HTTP.
type Lending interface {
	Deposit(ctx context.Context, account common.Address, amount *big.Int) (*state.Receipt, error)
	Borrow(ctx context.Context, account common.Address, amount *big.Int) (*state.Receipt, error)
	Repay(ctx context.Context, account common.Address, amount *big.Int) (*state.Receipt, error)
	Withdraw(ctx context.Context, account common.Address, amount *big.Int) (*state.Receipt, error)
	ClaimRewards(ctx context.Context, account common.Address) (*state.Receipt, error)
	FlashLoan(ctx context.Context, account common.Address, amount *big.Int, receiver lending.FlashBorrower) (*state.Receipt, error)
	Position(account common.Address) (lending.Position, error)
	Market() (lending.Market, error)
	CheckSolvency() (lending.Solvency, error)
	Params() lending.Config
	BaseAsset() string
	GetRewardToken() string
	Pool() common.Address
}

// Tokens is the token ledger surface served over HTTP.
type Tokens interface {
	Info(symbol string) (token.Info, error)
	BalanceOf(symbol string, addr common.Address) (*big.Int, error)
	Allowance(symbol string, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, symbol string, owner, spender common.Address, amount *big.Int) (*state.Receipt, error)
	Transfer(ctx context.Context, symbol string, from, to common.Address, amount *big.Int) (*state.Receipt, error)
	Mint(ctx context.Context, symbol string, authority, to common.Address, amount *big.Int) (*state.Receipt, error)
}

// Vault is the yield vault surface served over HTTP.
type Vault interface {
	Address() common.Address
	Info() (vault.Info, error)
	SharesOf(owner common.Address) (*big.Int, error)
	ConvertToAssets(shares *big.Int) (*big.Int, error)
	Deposit(ctx context.Context, owner common.Address, assets *big.Int) (*vault.Result, error)
	Withdraw(ctx context.Context, owner common.Address, shares *big.Int) (*vault.Result, error)
	Harvest(ctx context.Context, agent common.Address) (*vault.Result, error)
}

// EventStore answers indexed event queries.
type EventStore interface {
	Query(ctx context.Context, filter indexer.Filter) ([]indexer.Record, error)
}

// Subscriber feeds the websocket event stream.
type Subscriber interface {
	Subscribe() (<-chan events.Event, func())
}

// Config wires the server's collaborators. Lending and Tokens are required;
// the remaining fields disable their routes or middleware when nil.
type Config struct {
	Lending       Lending
	Tokens        Tokens
	Vault         Vault
	Events        EventStore
	Stream        Subscriber
	Auth          *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          *middleware.CORSConfig
	Logger        *slog.Logger
	// Timeout bounds each mutating request and defaults to 10s.
	Timeout time.Duration
}

// Server serves the lending protocol over REST.
type Server struct {
	lending Lending
	tokens  Tokens
	vault   Vault
	events  EventStore
	stream  Subscriber
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	obs     *middleware.Observability
	cors    *middleware.CORSConfig
	logger  *slog.Logger
	timeout time.Duration
}

// New validates cfg and constructs a server.
func New(cfg Config) (*Server, error) {
	if cfg.Lending == nil || cfg.Tokens == nil {
		return nil, lending.ErrNotConfigured
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Server{
		lending: cfg.Lending,
		tokens:  cfg.Tokens,
		vault:   cfg.Vault,
		events:  cfg.Events,
		stream:  cfg.Stream,
		auth:    cfg.Auth,
		limiter: cfg.RateLimiter,
		obs:     cfg.Observability,
		cors:    cfg.CORS,
		logger:  logger.With("component", "lending-api"),
		timeout: timeout,
	}, nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	if s.obs != nil {
		r.Use(s.obs.Middleware)
	}
	if s.cors != nil {
		r.Use(middleware.CORS(*s.cors))
	}

	r.Get("/healthz", s.handleHealth)
	if s.obs != nil {
		r.Handle("/metrics", s.obs.MetricsHandler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			s.limit(r, "read")
			s.mountReads(r)
		})
		r.Group(func(r chi.Router) {
			if s.auth != nil {
				r.Use(s.auth.Middleware())
			}
			s.limit(r, "write")
			r.Use(chimw.AllowContentType("application/json"))
			s.mountWrites(r)
		})
		r.Group(func(r chi.Router) {
			if s.auth != nil {
				r.Use(s.auth.Middleware(middleware.DefaultAdminScope))
			}
			s.limit(r, "write")
			r.Use(chimw.AllowContentType("application/json"))
			r.Post("/tokens/{symbol}/mint", s.handleMint)
		})
	})
	return r
}

func (s *Server) limit(r chi.Router, class string) {
	if s.limiter != nil {
		r.Use(s.limiter.Middleware(class))
	}
}

func (s *Server) mountReads(r chi.Router) {
	r.Get("/protocol", s.handleProtocol)
	r.Get("/accounts/{address}", s.handlePosition)
	r.Get("/tokens/{symbol}", s.handleTokenInfo)
	r.Get("/tokens/{symbol}/balances/{address}", s.handleTokenBalance)
	r.Get("/vault", s.handleVaultInfo)
	r.Get("/vault/shares/{address}", s.handleVaultShares)
	r.Get("/events", s.handleEvents)
	r.Get("/events/stream", s.handleStream)
}

func (s *Server) mountWrites(r chi.Router) {
	r.Post("/deposit", s.amountOp("deposit", s.lending.Deposit))
	r.Post("/borrow", s.amountOp("borrow", s.lending.Borrow))
	r.Post("/repay", s.amountOp("repay", s.lending.Repay))
	r.Post("/withdraw", s.amountOp("withdraw", s.lending.Withdraw))
	r.Post("/claim", s.handleClaim)
	r.Post("/flashloan", s.handleFlashLoan)
	r.Post("/tokens/{symbol}/approve", s.handleApprove)
	r.Post("/tokens/{symbol}/transfer", s.handleTransfer)
	r.Post("/vault/deposit", s.handleVaultDeposit)
	r.Post("/vault/withdraw", s.handleVaultWithdraw)
	r.Post("/vault/harvest", s.handleVaultHarvest)
}

func (s *Server) context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
