//go:build cgo

package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pacerhq/pacer/internal/config"
	"github.com/pacerhq/pacer/internal/core"
	"github.com/pacerhq/pacer/internal/core/pace"
	"github.com/stretchr/testify/require"
)

func TestOpenMemoryStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{
		Driver: "libsql",
		Path:   ":memory:",
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.Equal(t, "libsql", store.Driver())
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Close())
}

func TestOpenLocalStoreConfiguresSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, config.StoreConfig{Path: t.TempDir() + "/nested/pacer.db"})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.False(t, store.Remote())
	require.Equal(t, 1, store.DB.Stats().MaxOpenConnections)

	var journalMode string
	require.NoError(t, store.DB.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode))
	require.Contains(t, journalMode, "wal")

	var busyTimeout int
	require.NoError(t, store.DB.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busyTimeout))
	require.Equal(t, localBusyTimeoutMS, busyTimeout)
}

func openJournal(t *testing.T) *Store {
	t.Helper()
	store, err := OpenAndMigrate(context.Background(), config.StoreConfig{
		Path: "file:" + t.TempDir() + "/journal.db",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func firing(gate, key string, firedAt time.Time) core.Firing {
	return core.Firing{
		Event: core.Event{
			ID:         gate + "/" + key + "/" + firedAt.Format(time.RFC3339Nano),
			Gate:       gate,
			Key:        key,
			Payload:    json.RawMessage(`{"n":1}`),
			ReceivedAt: firedAt.Add(-100 * time.Millisecond),
		},
		Kind:    pace.KindDebounce,
		FiredAt: firedAt,
	}
}

func TestJournalRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openJournal(t)
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	first := firing("search", "user-1", base)
	first.Event.RequestID = "req-1"
	require.NoError(t, store.RecordFiring(ctx, first))
	require.NoError(t, store.RecordFiring(ctx, firing("search", "user-2", base.Add(time.Second))))
	require.NoError(t, store.RecordFiring(ctx, firing("clicks", "user-1", base.Add(2*time.Second))))

	all, err := store.ListFirings(ctx, JournalQuery{All: true})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "clicks", all[0].Firing.Event.Gate, "newest first")

	search, err := store.ListFirings(ctx, JournalQuery{Gate: "search"})
	require.NoError(t, err)
	require.Len(t, search, 2)
	oldest := search[1].Firing
	require.Equal(t, "user-1", oldest.Event.Key)
	require.Equal(t, "req-1", oldest.Event.RequestID)
	require.Equal(t, base, oldest.FiredAt)
	require.Equal(t, 100*time.Millisecond, oldest.Latency())
	require.JSONEq(t, `{"n":1}`, string(oldest.Event.Payload))
	require.Equal(t, pace.KindDebounce, oldest.Kind)

	limited, err := store.ListFirings(ctx, JournalQuery{All: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)

	count, err := store.CountFirings(ctx, JournalQuery{KeyPrefix: "user-1"})
	require.NoError(t, err)
	require.Equal(t, 2, count)

	deleted, err := store.ResetFirings(ctx, JournalQuery{Gate: "search", KeyPrefix: "user-"})
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	count, err = store.CountFirings(ctx, JournalQuery{All: true})
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := openJournal(t)

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, migrations[len(migrations)-1].version, version)

	require.NoError(t, store.Migrate(ctx))
	var applied int
	require.NoError(t, store.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	require.Equal(t, len(migrations), applied)
}
