package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"yeifinance/core/events"
	"yeifinance/observability/metrics"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	DefaultLimit = 100
	MaxLimit     = 1000
)

var ErrUnsupportedDriver = errors.New("indexer: unsupported driver")

// Config selects the backing database.
type Config struct {
	Driver string
	DSN    string
}

// Filter narrows a query. Zero fields match everything.
type Filter struct {
	// Account matches either side of an event.
	Account common.Address
	Type    string
	TxHash  string
	// AfterSeq returns only records emitted after the given sequence.
	AfterSeq uint64
	Limit    int
}

// Indexer persists committed events and serves them back filtered. It
// satisfies events.Emitter so it can sit behind a Broadcaster.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	lastSeq uint64
}

// Open connects to the configured database and migrates the schema.
func Open(cfg Config, logger *slog.Logger) (*Indexer, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverSQLite:
		dsn := strings.TrimSpace(cfg.DSN)
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open database: %w", err)
	}
	return New(db, logger)
}

// New wraps an existing connection.
func New(db *gorm.DB, logger *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	var last struct{ LastSeq uint64 }
	if err := db.Model(&Record{}).Select("COALESCE(MAX(seq), 0) AS last_seq").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("indexer: load cursor: %w", err)
	}
	return &Indexer{
		db:      db,
		logger:  logger.With("component", "indexer"),
		now:     time.Now,
		lastSeq: last.LastSeq,
	}, nil
}

// Emit implements events.Emitter. Failures are logged and counted; they never
// reach the producer.
func (ix *Indexer) Emit(ev events.Event) {
	if _, err := ix.Record(context.Background(), ev); err != nil {
		ix.logger.Error("index event failed", "type", ev.EventType(), "error", err)
		metrics.Lending().IncIndexerFailure()
	}
}

// Record persists one event and returns the stored row.
func (ix *Indexer) Record(ctx context.Context, ev events.Event) (*Record, error) {
	rendered := events.ToTypes(ev)
	if rendered == nil {
		return nil, errors.New("indexer: nil event")
	}
	attrs := rendered.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	rec := &Record{
		ID:           uuid.New(),
		Type:         rendered.Type,
		TxHash:       attrs["txHash"],
		Asset:        attrs["asset"],
		Account:      firstOf(attrs, "account", "from", "owner"),
		Counterparty: firstOf(attrs, "to", "spender"),
		Attributes:   attrs,
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	rec.Seq = ix.lastSeq + 1
	rec.CreatedAt = ix.now().UTC()
	if err := ix.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	ix.lastSeq = rec.Seq
	counters := metrics.Events()
	counters.RecordEvent(rec.Type)
	if rec.Type == events.TypeTokenTransfer {
		counters.RecordTransfer(rec.Asset)
	}
	return rec, nil
}

// Query returns matching records in emission order.
func (ix *Indexer) Query(ctx context.Context, filter Filter) ([]Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	query := ix.db.WithContext(ctx).Model(&Record{})
	if filter.Account != (common.Address{}) {
		hex := filter.Account.Hex()
		query = query.Where("account = ? OR counterparty = ?", hex, hex)
	}
	if t := strings.TrimSpace(filter.Type); t != "" {
		query = query.Where("type = ?", t)
	}
	if h := strings.TrimSpace(filter.TxHash); h != "" {
		query = query.Where("tx_hash = ?", h)
	}
	if filter.AfterSeq > 0 {
		query = query.Where("seq > ?", filter.AfterSeq)
	}
	var records []Record
	if err := query.Order("seq ASC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("indexer: query: %w", err)
	}
	return records, nil
}

// Count reports the number of stored records.
func (ix *Indexer) Count(ctx context.Context) (int64, error) {
	var n int64
	err := ix.db.WithContext(ctx).Model(&Record{}).Count(&n).Error
	return n, err
}

// Close releases the underlying connection pool.
func (ix *Indexer) Close() error {
	sqlDB, err := ix.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func firstOf(attrs map[string]string, keys ...string) string {
	for _, key := range keys {
		if value := attrs[key]; value != "" {
			return value
		}
	}
	return ""
}
