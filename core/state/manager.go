package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"yeifinance/core/events"
	"yeifinance/storage"
)

// ErrReentrant is returned when an execution is started from inside another
// execution on the same manager.
var ErrReentrant = errors.New("state: re-entrant execution")

type executingKey struct{}

// Receipt summarises a committed execution.
type Receipt struct {
	TxHash   common.Hash
	Sequence uint64
	Label    string
	Events   []events.Event
}

// Tx is the handle passed to an execution body. Writes made through it are
// committed together or not at all.
type Tx struct {
	*StateDB
	manager  *Manager
	ctx      context.Context
	hash     common.Hash
	sequence uint64
}

// Context returns the execution context. Executions started with this
// context fail with ErrReentrant.
func (tx *Tx) Context() context.Context { return tx.ctx }

// Hash returns the identifier assigned to the execution.
func (tx *Tx) Hash() common.Hash { return tx.hash }

// Sequence returns the execution's position in the commit order.
func (tx *Tx) Sequence() uint64 { return tx.sequence }

// Callout hands the execution to code outside the running module, such as a
// flash-loan borrower. Writes fn makes through tx are kept when it returns
// nil and rolled back to the call site when it fails. While fn runs, every
// Execute and View on the manager fails with ErrReentrant instead of waiting
// for the state lock.
func (tx *Tx) Callout(fn func(ctx context.Context) error) error {
	snap := tx.Snapshot()
	tx.manager.callout.Store(true)
	defer tx.manager.callout.Store(false)
	if err := fn(tx.ctx); err != nil {
		tx.RevertToSnapshot(snap)
		return err
	}
	return nil
}

// Manager owns the process-wide StateDB and serializes every execution and
// view against it.
type Manager struct {
	mu      sync.Mutex
	emitMu  sync.Mutex
	callout atomic.Bool
	db      *StateDB
	emitter events.Emitter
	logger  *slog.Logger
}

// NewManager constructs a manager over the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      NewStateDB(db),
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
	}
}

// SetEmitter configures where committed events are published.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	if m == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	m.emitMu.Lock()
	m.emitter = emitter
	m.emitMu.Unlock()
}

// SetLogger overrides the logger used for commit diagnostics.
func (m *Manager) SetLogger(logger *slog.Logger) {
	if m == nil || logger == nil {
		return
	}
	m.logger = logger
}

// Executing reports whether ctx belongs to an execution on this manager.
func (m *Manager) Executing(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	owner, _ := ctx.Value(executingKey{}).(*Manager)
	return owner == m
}

// Execute runs fn atomically. When fn returns an error every write and log it
// produced is discarded and the error is returned unchanged. On success the
// writes are committed in one batch and the buffered events are published in
// commit order after the state lock is released.
func (m *Manager) Execute(ctx context.Context, label string, fn func(tx *Tx) error) (*Receipt, error) {
	if m == nil || m.db == nil {
		return nil, errors.New("state: manager not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if m.Executing(ctx) || m.callout.Load() {
		return nil, ErrReentrant
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	unlocked := false
	defer func() {
		if r := recover(); r != nil {
			if !unlocked {
				m.mu.Unlock()
			}
			panic(r)
		}
	}()
	receipt, err := m.execute(ctx, label, fn)
	unlocked = true
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	// Hand over to the emit lock before releasing the state lock so events
	// leave in the same order their executions committed.
	m.emitMu.Lock()
	m.mu.Unlock()
	emitter := m.emitter
	for _, ev := range receipt.Events {
		emitter.Emit(ev)
	}
	m.emitMu.Unlock()
	return receipt, nil
}

func (m *Manager) execute(ctx context.Context, label string, fn func(tx *Tx) error) (receipt *Receipt, err error) {
	committed := false
	defer func() {
		if !committed {
			m.db.Discard()
		}
	}()

	var nonce uint64
	if _, err := m.db.GetRLP(nonceKey, &nonce); err != nil {
		return nil, err
	}
	sequence := nonce + 1
	encoded, err := rlp.EncodeToBytes([]interface{}{label, sequence})
	if err != nil {
		return nil, fmt.Errorf("state: encode tx identity: %w", err)
	}
	tx := &Tx{
		StateDB:  m.db,
		manager:  m,
		ctx:      context.WithValue(ctx, executingKey{}, m),
		hash:     common.BytesToHash(ethcrypto.Keccak256(encoded)),
		sequence: sequence,
	}
	if err := fn(tx); err != nil {
		return nil, err
	}
	if err := m.db.PutRLP(nonceKey, sequence); err != nil {
		return nil, err
	}
	logs, err := m.db.Commit()
	if err != nil {
		m.logger.Error("state commit failed", slog.String("action", label), slog.Any("error", err))
		return nil, err
	}
	committed = true
	return &Receipt{TxHash: tx.hash, Sequence: sequence, Label: label, Events: logs}, nil
}

// View runs fn against the committed state. Any writes fn attempts are
// discarded. Views requested during a Callout fail with ErrReentrant.
func (m *Manager) View(fn func(st Store) error) error {
	if m == nil || m.db == nil {
		return errors.New("state: manager not configured")
	}
	if m.callout.Load() {
		return ErrReentrant
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.db.Discard()
	return fn(m.db)
}

// Sequence returns the number of committed executions.
func (m *Manager) Sequence() (uint64, error) {
	var nonce uint64
	err := m.View(func(st Store) error {
		_, err := st.GetRLP(nonceKey, &nonce)
		return err
	})
	return nonce, err
}

// TxHash returns the execution identifier when st is a Tx, and the zero hash
// otherwise.
func TxHash(st Store) common.Hash {
	if tx, ok := st.(*Tx); ok && tx != nil {
		return tx.hash
	}
	return common.Hash{}
}
