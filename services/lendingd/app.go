package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	protocol "yeifinance/config"
	"yeifinance/core/events"
	"yeifinance/core/state"
	"yeifinance/crypto"
	"yeifinance/observability/logging"
	"yeifinance/services/lending/indexer"
	"yeifinance/services/lending/middleware"
	"yeifinance/services/lending/server"
	"yeifinance/services/lendingd/config"
	"yeifinance/storage"
)

const streamBuffer = 256

// app owns every long-lived component the daemon wires together.
type app struct {
	handler     http.Handler
	deployment  *protocol.Deployment
	db          storage.Database
	index       *indexer.Indexer
	broadcaster *events.Broadcaster
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, err
	}
	a := &app{db: db}

	genesis, err := loadGenesis(cfg.Genesis)
	if err != nil {
		a.Close()
		return nil, err
	}

	manager := state.NewManager(db)
	manager.SetLogger(logger)

	index, err := indexer.Open(cfg.Indexer.Indexer(), logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open indexer: %w", err)
	}
	a.index = index
	a.broadcaster = events.NewBroadcaster(streamBuffer, index)
	manager.SetEmitter(a.broadcaster)

	deployment, err := protocol.Bootstrap(ctx, manager, genesis)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.deployment = deployment
	logger.Info("protocol ready",
		"applied", deployment.Applied,
		"pool", deployment.Pool.Hex(),
		"storage", cfg.Storage.Backend,
		"driver", cfg.Indexer.Driver,
		"indexer", logging.RedactDSN(cfg.Indexer.DSN),
	)

	serverCfg := server.Config{
		Lending:       deployment.Engine,
		Tokens:        deployment.Tokens,
		Events:        index,
		Stream:        a.broadcaster,
		Auth:          middleware.NewAuthenticator(cfg.Auth.Middleware(), logger),
		RateLimiter:   middleware.NewRateLimiter(cfg.Limits(), logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{ServiceName: "lendingd", LogRequests: true}, logger),
		CORS:          cfg.CORS.Middleware(),
		Logger:        logger,
		Timeout:       cfg.RequestTimeout,
	}
	if deployment.Vault != nil {
		serverCfg.Vault = deployment.Vault
	}
	srv, err := server.New(serverCfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.handler = otelhttp.NewHandler(srv.Handler(), "lendingd")
	return a, nil
}

// Close releases the indexer and the state store.
func (a *app) Close() error {
	var err error
	if a.index != nil {
		err = a.index.Close()
		a.index = nil
	}
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
	return err
}

func openStorage(cfg config.StorageConfig) (storage.Database, error) {
	switch cfg.Backend {
	case config.StorageLevelDB:
		db, err := storage.NewLevelDB(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open leveldb %s: %w", cfg.Path, err)
		}
		return db, nil
	case config.StorageMemory, "":
		return storage.NewMemDB(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func loadGenesis(cfg config.GenesisConfig) (*protocol.Genesis, error) {
	if cfg.Path != "" {
		return protocol.LoadGenesis(cfg.Path)
	}
	deployer, err := crypto.ParseAddress(cfg.Deployer)
	if err != nil {
		return nil, fmt.Errorf("genesis deployer: %w", err)
	}
	return protocol.DefaultGenesis(deployer), nil
}
