package state

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"yeifinance/core/events"
	"yeifinance/storage"
)

type testEvent string

func (e testEvent) EventType() string { return string(e) }

func TestStateDBSnapshotRevert(t *testing.T) {
	st := NewStateDB(storage.NewMemDB())
	key := Key("test", []byte("a"))

	st.Put(key, []byte("one"))
	st.AddLog(testEvent("first"))
	snap := st.Snapshot()
	st.Put(key, []byte("two"))
	st.Delete(Key("test", []byte("b")))
	st.AddLog(testEvent("second"))

	st.RevertToSnapshot(snap)
	value, ok, err := st.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("one"), value)
	require.Len(t, st.Logs(), 1)
	require.Equal(t, 1, st.Dirty())
}

func TestStateDBCommitWritesThrough(t *testing.T) {
	db := storage.NewMemDB()
	st := NewStateDB(db)
	key := Key("test", []byte("a"))
	require.NoError(t, st.PutRLP(key, uint64(42)))

	// Uncommitted writes are invisible to the backend.
	_, err := db.Get(key)
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.Commit()
	require.NoError(t, err)

	var out uint64
	found, err := NewStateDB(db).GetRLP(key, &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(42), out)

	st.Delete(key)
	_, err = st.Commit()
	require.NoError(t, err)
	found, err = NewStateDB(db).GetRLP(key, &out)
	require.NoError(t, err)
	require.False(t, found)
}

func TestKeyDistinguishesTuples(t *testing.T) {
	require.NotEqual(t, Key("ns", []byte("ab"), []byte("c")), Key("ns", []byte("a"), []byte("bc")))
	require.NotEqual(t, Key("ns", []byte("a")), Key("other", []byte("a")))
	require.Len(t, Key("ns"), 32)
}

func TestManagerExecuteCommitsAndEmits(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	recorder := &events.Recorder{}
	mgr.SetEmitter(recorder)
	key := Key("test", []byte("counter"))

	receipt, err := mgr.Execute(context.Background(), "increment", func(tx *Tx) error {
		tx.AddLog(testEvent("incremented"))
		return tx.PutRLP(key, uint64(1))
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), receipt.Sequence)
	require.NotEqual(t, common.Hash{}, receipt.TxHash)
	require.Equal(t, []string{"incremented"}, recorder.Types())

	second, err := mgr.Execute(context.Background(), "increment", func(tx *Tx) error { return nil })
	require.NoError(t, err)
	require.Equal(t, uint64(2), second.Sequence)
	require.NotEqual(t, receipt.TxHash, second.TxHash)

	seq, err := mgr.Sequence()
	require.NoError(t, err)
	require.Equal(t, uint64(2), seq)
}

func TestManagerExecuteRollsBackOnError(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	recorder := &events.Recorder{}
	mgr.SetEmitter(recorder)
	key := Key("test", []byte("value"))
	boom := errors.New("boom")

	_, err := mgr.Execute(context.Background(), "fail", func(tx *Tx) error {
		if err := tx.PutRLP(key, uint64(7)); err != nil {
			return err
		}
		tx.AddLog(testEvent("never"))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, recorder.Events())

	err = mgr.View(func(st Store) error {
		var out uint64
		found, err := st.GetRLP(key, &out)
		require.False(t, found)
		return err
	})
	require.NoError(t, err)

	seq, err := mgr.Sequence()
	require.NoError(t, err)
	require.Zero(t, seq, "failed executions must not consume a sequence number")
}

func TestManagerRejectsReentry(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	_, err := mgr.Execute(context.Background(), "outer", func(tx *Tx) error {
		_, err := mgr.Execute(tx.Context(), "inner", func(*Tx) error { return nil })
		return err
	})
	require.ErrorIs(t, err, ErrReentrant)
}

func TestManagerViewDiscardsWrites(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	key := Key("test", []byte("view"))
	require.NoError(t, mgr.View(func(st Store) error {
		st.Put(key, []byte("leak"))
		return nil
	}))
	require.NoError(t, mgr.View(func(st Store) error {
		_, ok, err := st.Get(key)
		require.False(t, ok)
		return err
	}))
}

func TestManagerRecoversLockAfterPanic(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	require.Panics(t, func() {
		_, _ = mgr.Execute(context.Background(), "panic", func(*Tx) error { panic("boom") })
	})
	_, err := mgr.Execute(context.Background(), "after", func(*Tx) error { return nil })
	require.NoError(t, err)
}

func TestManagerHonoursCancelledContext(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	_, err := mgr.Execute(ctx, "cancelled", func(*Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}

func TestCalloutRollsBackOnlyItsOwnWrites(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	kept, dropped := Key("test", []byte("kept")), Key("test", []byte("dropped"))
	boom := errors.New("callout failed")

	receipt, err := mgr.Execute(context.Background(), "callout", func(tx *Tx) error {
		tx.Put(kept, []byte("yes"))
		tx.AddLog(testEvent("kept"))
		err := tx.Callout(func(context.Context) error {
			tx.Put(dropped, []byte("no"))
			tx.Put(kept, []byte("overwritten"))
			tx.AddLog(testEvent("dropped"))
			return boom
		})
		require.ErrorIs(t, err, boom)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, receipt.Events, 1)
	require.Equal(t, "kept", receipt.Events[0].EventType())

	value, err := db.Get(kept)
	require.NoError(t, err)
	require.Equal(t, []byte("yes"), value)
	_, err = db.Get(dropped)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCalloutRejectsViewsAndForeignExecutions(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	var viewErr, execErr error
	_, err := mgr.Execute(context.Background(), "outer", func(tx *Tx) error {
		return tx.Callout(func(context.Context) error {
			viewErr = mgr.View(func(Store) error { return nil })
			_, execErr = mgr.Execute(context.Background(), "inner", func(*Tx) error { return nil })
			return nil
		})
	})
	require.NoError(t, err)
	require.ErrorIs(t, viewErr, ErrReentrant)
	require.ErrorIs(t, execErr, ErrReentrant)

	// The guard is lifted once the callout returns.
	require.NoError(t, mgr.View(func(Store) error { return nil }))
	_, err = mgr.Execute(context.Background(), "after", func(*Tx) error { return nil })
	require.NoError(t, err)
}
