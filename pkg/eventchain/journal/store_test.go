package journal_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventchain/pkg/eventchain/config"
	"github.com/randalmurphal/eventchain/pkg/eventchain/journal"
)

// storeFactory creates a store instance for testing.
type storeFactory func(t *testing.T) journal.Store

func entry(eventID, eventType string, seq int, processor string) journal.Entry {
	return journal.Entry{
		EventID:     eventID,
		EventType:   eventType,
		ContentType: "*identity.User",
		Sequence:    seq,
		Processor:   processor,
		Order:       seq * 10,
		Status:      journal.StatusApplied,
		Timestamp:   time.Date(2026, 3, 1, 12, 0, seq, 0, time.UTC),
	}
}

// storeContractTest runs contract tests against any Store implementation.
func storeContractTest(t *testing.T, name string, factory storeFactory) {
	ctx := context.Background()

	t.Run(name+"/Append_and_List", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		want := journal.Entry{
			EventID:     "evt-1",
			EventType:   "CREATE",
			ContentType: "*identity.User",
			ParentID:    "evt-0",
			Depth:       1,
			Sequence:    1,
			Processor:   "validate",
			Order:       100,
			Status:      journal.StatusFailed,
			Error:       "validation error on email: required",
			Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC),
		}
		require.NoError(t, store.Append(ctx, want))

		got, err := store.List(ctx, "evt-1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, want.Timestamp.Equal(got[0].Timestamp))
		got[0].Timestamp = want.Timestamp
		assert.Equal(t, want, got[0])
	})

	t.Run(name+"/List_Empty", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		got, err := store.List(ctx, "evt-unknown")
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run(name+"/List_OrderedBySequence", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Append(ctx, entry("evt-1", "CREATE", 3, "audit")))
		require.NoError(t, store.Append(ctx,
			entry("evt-1", "CREATE", 1, "defaults"),
			entry("evt-2", "CREATE", 1, "defaults"),
			entry("evt-1", "CREATE", 2, "validate"),
		))

		got, err := store.List(ctx, "evt-1")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "defaults", got[0].Processor)
		assert.Equal(t, "validate", got[1].Processor)
		assert.Equal(t, "audit", got[2].Processor)
	})

	t.Run(name+"/Append_Duplicate", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Append(ctx, entry("evt-1", "CREATE", 1, "a")))

		err := store.Append(ctx,
			entry("evt-1", "CREATE", 2, "b"),
			entry("evt-1", "CREATE", 1, "again"),
		)
		assert.ErrorIs(t, err, journal.ErrDuplicateEntry)

		got, err := store.List(ctx, "evt-1")
		require.NoError(t, err)
		assert.Len(t, got, 1, "a rejected batch stores nothing")
	})

	t.Run(name+"/Append_Empty", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		assert.NoError(t, store.Append(ctx))
	})

	t.Run(name+"/ListByType_NewestFirst", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		require.NoError(t, store.Append(ctx, entry("evt-1", "CREATE", 1, "first")))
		require.NoError(t, store.Append(ctx, entry("evt-2", "DELETE", 1, "other")))
		require.NoError(t, store.Append(ctx, entry("evt-3", "CREATE", 1, "second")))
		require.NoError(t, store.Append(ctx, entry("evt-4", "CREATE", 1, "third")))

		got, err := store.ListByType(ctx, "CREATE", 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "third", got[0].Processor)
		assert.Equal(t, "second", got[1].Processor)

		all, err := store.ListByType(ctx, "CREATE", 0)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		none, err := store.ListByType(ctx, "UPDATE", 10)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run(name+"/Closed", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Close())

		assert.ErrorIs(t, store.Append(ctx, entry("evt-1", "CREATE", 1, "a")), journal.ErrStoreClosed)
		_, err := store.List(ctx, "evt-1")
		assert.ErrorIs(t, err, journal.ErrStoreClosed)
		_, err = store.ListByType(ctx, "CREATE", 1)
		assert.ErrorIs(t, err, journal.ErrStoreClosed)
		assert.NoError(t, store.Close(), "double close")
	})

	t.Run(name+"/Concurrent", func(t *testing.T) {
		store := factory(t)
		defer store.Close()

		var wg sync.WaitGroup
		for w := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for seq := 1; seq <= 10; seq++ {
					e := entry("evt-concurrent", "UPDATE", w*10+seq, "p")
					assert.NoError(t, store.Append(ctx, e))
				}
			}()
		}
		wg.Wait()

		got, err := store.List(ctx, "evt-concurrent")
		require.NoError(t, err)
		assert.Len(t, got, 80)
	})
}

func TestStoreContract(t *testing.T) {
	storeContractTest(t, "Memory", func(t *testing.T) journal.Store {
		return journal.NewMemoryStore()
	})

	storeContractTest(t, "SQLiteInMemory", func(t *testing.T) journal.Store {
		store, err := journal.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		return store
	})

	storeContractTest(t, "SQLiteFile", func(t *testing.T) journal.Store {
		store, err := journal.NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
		require.NoError(t, err)
		return store
	})
}

func TestSQLiteStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "journal.db")

	store1, err := journal.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store1.Append(ctx, entry("evt-1", "CREATE", 1, "persisted")))
	require.NoError(t, store1.Close())

	store2, err := journal.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store2.Close()

	got, err := store2.List(ctx, "evt-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "persisted", got[0].Processor)
}

func TestSQLiteStore_InvalidPath(t *testing.T) {
	_, err := journal.NewSQLiteStore("/nonexistent/path/journal.db")
	assert.Error(t, err)
}

func TestMemoryStore_Len(t *testing.T) {
	store := journal.NewMemoryStore()
	require.NoError(t, store.Append(context.Background(),
		entry("evt-1", "CREATE", 1, "a"),
		entry("evt-1", "CREATE", 2, "b"),
	))
	assert.Equal(t, 2, store.Len())
}

func TestOpen(t *testing.T) {
	store, err := journal.Open(config.JournalSettings{Driver: config.JournalNone})
	require.NoError(t, err)
	assert.Nil(t, store)
	assert.Nil(t, journal.Listener(store))

	store, err = journal.Open(config.JournalSettings{Driver: config.JournalMemory})
	require.NoError(t, err)
	assert.IsType(t, &journal.MemoryStore{}, store)
	require.NoError(t, store.Close())

	store, err = journal.Open(config.JournalSettings{
		Driver: config.JournalSQLite,
		Path:   filepath.Join(t.TempDir(), "j.db"),
	})
	require.NoError(t, err)
	assert.IsType(t, &journal.SQLiteStore{}, store)
	require.NoError(t, store.Close())

	_, err = journal.Open(config.JournalSettings{Driver: "postgres"})
	assert.ErrorIs(t, err, config.ErrInvalidSettings)
}
