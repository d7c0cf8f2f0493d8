package store

import (
	"context"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/chatkit-demo/internal/domain"
	"github.com/soyeahso/chatkit-demo/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := Open(MemoryPath, log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// forEachStore runs the same contract against every implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, NewSQLiteStore(testDB(t))) })
}

func parrot() domain.AgentProfile {
	addr, _ := url.Parse(domain.FixtureURL)
	return domain.AgentProfile{
		ID:             uuid.MustParse("2C7915AB-4B3A-4877-AED0-9C1FA2B0E641"),
		Name:           "Parrot Echo",
		Address:        addr,
		ConnectionMode: domain.Fixture(),
	}
}

func remoteAgent() domain.AgentProfile {
	addr, _ := url.Parse("http://127.0.0.1:3000/agent")
	return domain.AgentProfile{
		ID:             uuid.MustParse("E1E72B3D-845D-4F5D-B6CA-5550F2643E6B"),
		Name:           "Agent 1",
		Address:        addr,
		ConnectionMode: domain.Remote(addr),
	}
}

var t0 = time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.UTC)

// --- DB/Migration tests ---

func TestOpen_InMemory(t *testing.T) {
	db := testDB(t)
	assert.NotNil(t, db.SQL())

	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].Version, v)
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "conversations.db")
	db, err := Open(path, logging.Nop())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// reopening applies nothing new
	db, err = Open(path, logging.Nop())
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)
}

func TestMigrations_Idempotent(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.migrate())

	var count int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)
}

func TestSchema_TablesExist(t *testing.T) {
	db := testDB(t)

	for _, table := range []string{"agents", "conversations", "messages"} {
		var name string
		err := db.sql.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

// --- Store contract tests ---

func TestStore_SaveAndList(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.EnsureAgent(ctx, parrot()))
		require.NoError(t, s.EnsureAgent(ctx, remoteAgent()))

		first := domain.NewConversationRecord(parrot(), "Session 1", domain.Fixture(), t0)
		second := domain.NewConversationRecord(parrot(), "Session 2", domain.Fixture(), t0.Add(time.Minute))
		other := domain.NewConversationRecord(remoteAgent(), "Session 1", remoteAgent().ConnectionMode, t0)

		require.NoError(t, s.SaveConversation(ctx, second))
		require.NoError(t, s.SaveConversation(ctx, first))
		require.NoError(t, s.SaveConversation(ctx, other))

		got, err := s.ListConversations(ctx, parrot().ID)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, first.SessionID, got[0].SessionID, "oldest first")
		assert.Equal(t, second.SessionID, got[1].SessionID)
		assert.True(t, got[0].CreatedAt.Equal(t0))
		assert.True(t, got[0].Connection.IsFixture())

		remote, err := s.ListConversations(ctx, remoteAgent().ID)
		require.NoError(t, err)
		require.Len(t, remote, 1)
		assert.Equal(t, "http://127.0.0.1:3000/agent", remote[0].Connection.String())
	})
}

func TestStore_ListOrdersBySubSecondTime(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.EnsureAgent(ctx, parrot()))

		base := time.Date(2026, 3, 1, 9, 30, 5, 0, time.UTC)
		older := domain.NewConversationRecord(parrot(), "older", domain.Fixture(), base.Add(100*time.Millisecond))
		newer := domain.NewConversationRecord(parrot(), "newer", domain.Fixture(), base.Add(120*time.Millisecond))

		require.NoError(t, s.SaveConversation(ctx, newer))
		require.NoError(t, s.SaveConversation(ctx, older))

		got, err := s.ListConversations(ctx, parrot().ID)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "older", got[0].Title)
		assert.Equal(t, "newer", got[1].Title)
		assert.True(t, got[0].CreatedAt.Equal(older.CreatedAt))
	})
}

func TestFormatTime_FixedWidth(t *testing.T) {
	a := formatTime(time.Date(2026, 3, 1, 9, 30, 5, 100000000, time.UTC))
	b := formatTime(time.Date(2026, 3, 1, 9, 30, 5, 120000000, time.UTC))
	assert.Len(t, a, len(b))
	assert.Less(t, a, b)

	parsed, err := parseTime("2026-03-01T09:30:05.1Z")
	require.NoError(t, err)
	assert.Equal(t, 100000000, parsed.Nanosecond())
}

func TestStore_SaveUpdatesInPlace(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.EnsureAgent(ctx, parrot()))

		rec := domain.NewConversationRecord(parrot(), "Session 1", domain.Fixture(), t0)
		require.NoError(t, s.SaveConversation(ctx, rec))

		rec = rec.UpdatingLastMessage("hi there", t0.Add(time.Second)).
			Renaming("hi there", t0.Add(2*time.Second)).
			Pinning(true, t0.Add(3*time.Second))
		require.NoError(t, s.SaveConversation(ctx, rec))

		got, err := s.ListConversations(ctx, parrot().ID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "hi there", got[0].Title)
		assert.Equal(t, "hi there", got[0].LastMessagePreview)
		assert.True(t, got[0].Pinned)
		assert.True(t, got[0].UpdatedAt.Equal(t0.Add(3*time.Second)))
		assert.True(t, got[0].CreatedAt.Equal(t0))
	})
}

func TestStore_SaveRequiresAgent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		rec := domain.NewConversationRecord(parrot(), "Session 1", domain.Fixture(), t0)
		err := s.SaveConversation(context.Background(), rec)
		assert.ErrorIs(t, err, ErrUnknownAgent)
	})
}

func TestStore_Messages(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.EnsureAgent(ctx, parrot()))
		rec := domain.NewConversationRecord(parrot(), "Session 1", domain.Fixture(), t0)
		require.NoError(t, s.SaveConversation(ctx, rec))

		require.NoError(t, s.AppendMessage(ctx, domain.Message{
			SessionID: rec.SessionID, Role: domain.RoleUser, Content: "Hello!", Timestamp: t0,
		}))
		require.NoError(t, s.AppendMessage(ctx, domain.Message{
			ID: "m-2", SessionID: rec.SessionID, Role: domain.RoleAssistant, Content: "Hi there!", Timestamp: t0,
		}))

		msgs, err := s.Messages(ctx, rec.SessionID)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, domain.RoleUser, msgs[0].Role)
		assert.Equal(t, "Hello!", msgs[0].Content)
		assert.NotEmpty(t, msgs[0].ID)
		assert.Equal(t, "m-2", msgs[1].ID)
		assert.Equal(t, rec.SessionID, msgs[1].SessionID)
		assert.True(t, msgs[1].Timestamp.Equal(t0))
	})
}

func TestStore_AppendToUnknownConversation(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		err := s.AppendMessage(context.Background(), domain.Message{
			SessionID: uuid.New(), Role: domain.RoleUser, Content: "lost",
		})
		assert.ErrorIs(t, err, ErrUnknownConversation)
	})
}

func TestStore_MessagesEmpty(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		msgs, err := s.Messages(context.Background(), uuid.New())
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}

func TestStore_DeleteConversationCascades(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.EnsureAgent(ctx, parrot()))
		rec := domain.NewConversationRecord(parrot(), "Session 1", domain.Fixture(), t0)
		require.NoError(t, s.SaveConversation(ctx, rec))
		require.NoError(t, s.AppendMessage(ctx, domain.Message{SessionID: rec.SessionID, Role: domain.RoleUser, Content: "x"}))

		require.NoError(t, s.DeleteConversation(ctx, rec.SessionID))
		require.NoError(t, s.DeleteConversation(ctx, rec.SessionID), "deleting twice is fine")

		got, err := s.ListConversations(ctx, parrot().ID)
		require.NoError(t, err)
		assert.Empty(t, got)

		msgs, err := s.Messages(ctx, rec.SessionID)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}

func TestStore_DeleteAllScopedToAgent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.EnsureAgent(ctx, parrot()))
		require.NoError(t, s.EnsureAgent(ctx, remoteAgent()))

		for i := range 3 {
			rec := domain.NewConversationRecord(parrot(), "Session", domain.Fixture(), t0.Add(time.Duration(i)*time.Second))
			require.NoError(t, s.SaveConversation(ctx, rec))
		}
		keep := domain.NewConversationRecord(remoteAgent(), "Session 1", remoteAgent().ConnectionMode, t0)
		require.NoError(t, s.SaveConversation(ctx, keep))

		require.NoError(t, s.DeleteAllConversations(ctx, parrot().ID))

		gone, err := s.ListConversations(ctx, parrot().ID)
		require.NoError(t, err)
		assert.Empty(t, gone)

		kept, err := s.ListConversations(ctx, remoteAgent().ID)
		require.NoError(t, err)
		assert.Len(t, kept, 1)
	})
}

func TestStore_EnsureAgentUpserts(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a := parrot()
		require.NoError(t, s.EnsureAgent(ctx, a))
		a.Name = "Renamed Parrot"
		require.NoError(t, s.EnsureAgent(ctx, a))
	})
}

func TestSQLiteStore_Stats(t *testing.T) {
	s := NewSQLiteStore(testDB(t))
	ctx := context.Background()
	require.NoError(t, s.EnsureAgent(ctx, parrot()))
	rec := domain.NewConversationRecord(parrot(), "Session 1", domain.Fixture(), t0)
	require.NoError(t, s.SaveConversation(ctx, rec))
	require.NoError(t, s.AppendMessage(ctx, domain.Message{SessionID: rec.SessionID, Role: domain.RoleUser, Content: "x"}))

	agents, convs, msgs, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, agents)
	assert.Equal(t, 1, convs)
	assert.Equal(t, 1, msgs)
}

func TestMemoryStore_MessagesAreCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.EnsureAgent(ctx, parrot()))
	rec := domain.NewConversationRecord(parrot(), "Session 1", domain.Fixture(), t0)
	require.NoError(t, s.SaveConversation(ctx, rec))
	require.NoError(t, s.AppendMessage(ctx, domain.Message{SessionID: rec.SessionID, Role: domain.RoleUser, Content: "x"}))

	msgs, _ := s.Messages(ctx, rec.SessionID)
	msgs[0].Content = "mutated"

	again, _ := s.Messages(ctx, rec.SessionID)
	assert.Equal(t, "x", again[0].Content)
}
