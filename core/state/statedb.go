package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"yeifinance/core/events"
	"yeifinance/storage"
)

// Store is the read/write view handed to protocol modules while they execute.
type Store interface {
	Get(key []byte) ([]byte, bool, error)
	Put(key, value []byte)
	Delete(key []byte)
	GetRLP(key []byte, out interface{}) (bool, error)
	PutRLP(key []byte, value interface{}) error
	AddLog(ev events.Event)
}

type dirtyValue struct {
	value   []byte
	deleted bool
}

type journalEntry struct {
	key     string
	prev    dirtyValue
	hadPrev bool
}

type snapshot struct {
	journal int
	logs    int
}

// StateDB overlays uncommitted writes on top of a storage backend. Every write
// is journaled so that it can be rolled back to any snapshot, and buffered
// logs are rolled back with it. StateDB is not safe for concurrent use; the
// Manager serializes access.
type StateDB struct {
	db        storage.Database
	dirty     map[string]dirtyValue
	journal   []journalEntry
	snapshots []snapshot
	logs      []events.Event
}

// NewStateDB wraps the supplied database.
func NewStateDB(db storage.Database) *StateDB {
	return &StateDB{
		db:    db,
		dirty: make(map[string]dirtyValue),
	}
}

// Get returns the current value of key including uncommitted writes.
func (s *StateDB) Get(key []byte) ([]byte, bool, error) {
	if entry, ok := s.dirty[string(key)]; ok {
		if entry.deleted {
			return nil, false, nil
		}
		return append([]byte(nil), entry.value...), true, nil
	}
	value, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("state: read: %w", err)
	}
	return value, true, nil
}

// Put records a write in the overlay.
func (s *StateDB) Put(key, value []byte) {
	s.record(string(key), dirtyValue{value: append([]byte(nil), value...)})
}

// Delete records a deletion in the overlay.
func (s *StateDB) Delete(key []byte) {
	s.record(string(key), dirtyValue{deleted: true})
}

func (s *StateDB) record(key string, next dirtyValue) {
	prev, hadPrev := s.dirty[key]
	s.journal = append(s.journal, journalEntry{key: key, prev: prev, hadPrev: hadPrev})
	s.dirty[key] = next
}

// GetRLP decodes the value stored under key into out. The boolean reports
// whether the key existed.
func (s *StateDB) GetRLP(key []byte, out interface{}) (bool, error) {
	data, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode: %w", err)
	}
	return true, nil
}

// PutRLP encodes value and writes it under key.
func (s *StateDB) PutRLP(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}
	s.Put(key, encoded)
	return nil
}

// AddLog buffers an event until the enclosing execution commits.
func (s *StateDB) AddLog(ev events.Event) {
	if ev == nil {
		return
	}
	s.logs = append(s.logs, ev)
}

// Logs returns the buffered events.
func (s *StateDB) Logs() []events.Event {
	return append([]events.Event(nil), s.logs...)
}

// Snapshot returns an identifier for the current overlay revision.
func (s *StateDB) Snapshot() int {
	s.snapshots = append(s.snapshots, snapshot{journal: len(s.journal), logs: len(s.logs)})
	return len(s.snapshots) - 1
}

// RevertToSnapshot undoes every write and log recorded after the snapshot was
// taken. Snapshots taken after id are invalidated.
func (s *StateDB) RevertToSnapshot(id int) {
	if id < 0 || id >= len(s.snapshots) {
		panic(fmt.Sprintf("state: snapshot %d cannot be reverted", id))
	}
	snap := s.snapshots[id]
	for i := len(s.journal) - 1; i >= snap.journal; i-- {
		entry := s.journal[i]
		if entry.hadPrev {
			s.dirty[entry.key] = entry.prev
		} else {
			delete(s.dirty, entry.key)
		}
	}
	s.journal = s.journal[:snap.journal]
	s.logs = s.logs[:snap.logs]
	s.snapshots = s.snapshots[:id]
}

// Dirty reports the number of keys with uncommitted writes.
func (s *StateDB) Dirty() int { return len(s.dirty) }

// Commit flushes the overlay to storage in a single batch and returns the
// buffered logs. On failure the overlay is left untouched.
func (s *StateDB) Commit() ([]events.Event, error) {
	if len(s.dirty) > 0 {
		batch := s.db.NewBatch()
		for key, entry := range s.dirty {
			if entry.deleted {
				batch.Delete([]byte(key))
				continue
			}
			batch.Put([]byte(key), entry.value)
		}
		if err := batch.Write(); err != nil {
			return nil, fmt.Errorf("state: commit: %w", err)
		}
	}
	logs := s.logs
	s.reset()
	return logs, nil
}

// Discard drops every uncommitted write and log.
func (s *StateDB) Discard() { s.reset() }

func (s *StateDB) reset() {
	s.dirty = make(map[string]dirtyValue)
	s.journal = nil
	s.snapshots = nil
	s.logs = nil
}
