package conversation

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/chatkit-demo/internal/domain"
	"github.com/soyeahso/chatkit-demo/internal/hooks"
	"github.com/soyeahso/chatkit-demo/internal/logging"
	"github.com/soyeahso/chatkit-demo/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances one second per reading so UpdatedAt values differ.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
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

func newTestManager(t *testing.T, st store.Store) *Manager {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewManager(st, nil, silentLog(), WithClock(clock.Now))
	require.NoError(t, m.Attach(context.Background(), parrot()))
	return m
}

func TestCreate_AutoTitles(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	a, err := m.Create(ctx, "")
	require.NoError(t, err)
	b, err := m.Create(ctx, "   ")
	require.NoError(t, err)
	c, err := m.Create(ctx, "  Budget review ")
	require.NoError(t, err)
	d, err := m.Create(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, "Session 1", a.Title)
	assert.Equal(t, "Session 2", b.Title)
	assert.Equal(t, "Budget review", c.Title)
	assert.Equal(t, "Session 3", d.Title, "explicit titles do not consume a number")

	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, d.SessionID, cur.SessionID)
	assert.Equal(t, parrot().ID, cur.AgentID)
	assert.Equal(t, "Parrot Echo", cur.AgentName)
}

func TestCreate_WithoutAgent(t *testing.T) {
	m := NewManager(store.NewMemoryStore(), nil, silentLog())
	_, err := m.Create(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoAgent)
}

func TestCreate_StampsConnectionMode(t *testing.T) {
	m := newTestManager(t, nil)
	u, _ := url.Parse("http://127.0.0.1:3000/agent")
	m.SetConnectionMode(domain.Remote(u))

	rec, err := m.Create(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:3000/agent", rec.Connection.String())
}

func TestLoad(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	first, _ := m.Create(ctx, "")
	_, _ = m.Create(ctx, "")

	got, err := m.Load(first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, got.SessionID)
	cur, _ := m.Current()
	assert.Equal(t, first.SessionID, cur.SessionID)

	_, err = m.Load(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddMessage_AutoRenamesFromFirstUserMessage(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	rec, _ := m.Create(ctx, "")

	long := "  What is the exchange rate between the euro and the dollar today?"
	_, err := m.AddMessage(ctx, rec.SessionID, domain.RoleUser, long)
	require.NoError(t, err)

	got, _ := m.Record(rec.SessionID)
	assert.Equal(t, "What is the exchange rate between the", got.Title)
	assert.Equal(t, long, got.LastMessagePreview)

	// later user messages leave the new title alone
	_, err = m.AddMessage(ctx, rec.SessionID, domain.RoleUser, "another question")
	require.NoError(t, err)
	got, _ = m.Record(rec.SessionID)
	assert.Equal(t, "What is the exchange rate between the", got.Title)
	assert.Equal(t, "another question", got.LastMessagePreview)
}

func TestAddMessage_AssistantDoesNotRename(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	rec, _ := m.Create(ctx, "")

	_, err := m.AddMessage(ctx, rec.SessionID, domain.RoleAssistant, "Hello from the agent")
	require.NoError(t, err)

	got, _ := m.Record(rec.SessionID)
	assert.Equal(t, "Session 1", got.Title)
	assert.Equal(t, "Hello from the agent", got.LastMessagePreview)
}

func TestAddMessage_LegacyTitleRenamed(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	rec, _ := m.Create(ctx, "New Conversation")

	_, err := m.AddMessage(ctx, rec.SessionID, domain.RoleUser, "你好")
	require.NoError(t, err)
	got, _ := m.Record(rec.SessionID)
	assert.Equal(t, "你好", got.Title)
}

func TestAddMessage_MultibyteSnippet(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	rec, _ := m.Create(ctx, "")

	text := strings.Repeat("鹦", 50)
	_, err := m.AddMessage(ctx, rec.SessionID, domain.RoleUser, text)
	require.NoError(t, err)
	got, _ := m.Record(rec.SessionID)
	assert.Equal(t, strings.Repeat("鹦", 40), got.Title)
}

func TestAddMessage_BlankKeepsRecord(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	rec, _ := m.Create(ctx, "")

	_, err := m.AddMessage(ctx, rec.SessionID, domain.RoleUser, "   ")
	require.NoError(t, err)

	got, _ := m.Record(rec.SessionID)
	assert.Equal(t, "Session 1", got.Title)
	assert.Empty(t, got.LastMessagePreview)

	msgs, err := m.Messages(ctx, rec.SessionID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestAddMessage_UnknownSession(t *testing.T) {
	m := newTestManager(t, nil)
	_, err := m.AddMessage(context.Background(), uuid.New(), domain.RoleUser, "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshot_PinnedFirstThenRecent(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	a, _ := m.Create(ctx, "a")
	b, _ := m.Create(ctx, "b")
	c, _ := m.Create(ctx, "c")

	_, err := m.AddMessage(ctx, a.SessionID, domain.RoleUser, "bump a")
	require.NoError(t, err)
	snap := m.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []string{"a", "c", "b"}, titles(snap))

	_, err = m.SetPinned(ctx, b.SessionID, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, titles(m.Snapshot()))

	_, err = m.SetPinned(ctx, b.SessionID, false)
	require.NoError(t, err)
	assert.Equal(t, "b", m.Snapshot()[0].Title, "unpinning still bumps UpdatedAt")
	_ = c
}

func titles(recs []domain.ConversationRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Title
	}
	return out
}

func TestRename(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	rec, _ := m.Create(ctx, "")

	got, err := m.Rename(ctx, rec.SessionID, "  Travel plans ")
	require.NoError(t, err)
	assert.Equal(t, "Travel plans", got.Title)
	assert.True(t, got.UpdatedAt.After(rec.UpdatedAt))

	_, err = m.Rename(ctx, rec.SessionID, " ")
	assert.ErrorIs(t, err, ErrEmptyTitle)
	_, err = m.Rename(ctx, uuid.New(), "x")
	assert.ErrorIs(t, err, ErrNotFound)

	// a manual title is not auto-generated, so user messages keep it
	_, err = m.AddMessage(ctx, rec.SessionID, domain.RoleUser, "hello")
	require.NoError(t, err)
	again, _ := m.Record(rec.SessionID)
	assert.Equal(t, "Travel plans", again.Title)
}

func TestDelete(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	rec, _ := m.Create(ctx, "")

	require.NoError(t, m.Delete(ctx, rec.SessionID))
	_, ok := m.Record(rec.SessionID)
	assert.False(t, ok)
	_, ok = m.Current()
	assert.False(t, ok)

	assert.ErrorIs(t, m.Delete(ctx, rec.SessionID), ErrNotFound)
	_, err := m.Messages(ctx, rec.SessionID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAll_ResetsNumbering(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	_, _ = m.Create(ctx, "")
	_, _ = m.Create(ctx, "")

	require.NoError(t, m.DeleteAll(ctx))
	assert.Empty(t, m.Snapshot())

	rec, err := m.Create(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "Session 1", rec.Title)
}

func TestAttach_HydratesFromStore(t *testing.T) {
	db, err := store.Open(store.MemoryPath, silentLog())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := store.NewSQLiteStore(db)
	ctx := context.Background()

	first := newTestManager(t, st)
	a, _ := first.Create(ctx, "")
	_, _ = first.Create(ctx, "Named")
	_, err = first.AddMessage(ctx, a.SessionID, domain.RoleUser, "hi")
	require.NoError(t, err)

	second := newTestManager(t, st)
	snap := second.Snapshot()
	require.Len(t, snap, 2)

	got, ok := second.Record(a.SessionID)
	require.True(t, ok)
	assert.Equal(t, "hi", got.Title)
	assert.Equal(t, "hi", got.LastMessagePreview)

	msgs, err := second.Messages(ctx, a.SessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)

	next, err := second.Create(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "Session 3", next.Title, "numbering continues after hydrated records")
}

func TestAttach_SameAgentKeepsRecords(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	rec, _ := m.Create(ctx, "")

	require.NoError(t, m.Attach(ctx, parrot()))
	_, ok := m.Record(rec.SessionID)
	assert.True(t, ok)
	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, rec.SessionID, cur.SessionID)
}

func TestAttach_OtherAgentSwapsRecords(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	_, _ = m.Create(ctx, "")

	other := parrot()
	other.ID = uuid.New()
	other.Name = "Other"
	require.NoError(t, m.Attach(ctx, other))
	assert.Empty(t, m.Snapshot())

	agent, ok := m.Agent()
	require.True(t, ok)
	assert.Equal(t, "Other", agent.Name)
}

// flakyStore fails ListConversations a set number of times.
type flakyStore struct {
	store.Store
	failures int
}

func (s *flakyStore) ListConversations(ctx context.Context, agentID uuid.UUID) ([]domain.ConversationRecord, error) {
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("disk unavailable")
	}
	return s.Store.ListConversations(ctx, agentID)
}

func TestAttach_RetryAfterFailedHydration(t *testing.T) {
	ctx := context.Background()
	backing := store.NewMemoryStore()
	seed := newTestManager(t, backing)
	rec, err := seed.Create(ctx, "Kept")
	require.NoError(t, err)

	st := &flakyStore{Store: backing, failures: 1}
	m := NewManager(st, nil, silentLog())

	err = m.Attach(ctx, parrot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hydrating conversations")
	_, ok := m.Agent()
	assert.False(t, ok, "failed attach leaves no active agent")

	require.NoError(t, m.Attach(ctx, parrot()))
	snap := m.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, rec.SessionID, snap[0].SessionID)
	assert.Equal(t, "Kept", snap[0].Title)
}

func TestSubscribe(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	ch, cancel := m.Subscribe()
	initial := <-ch
	assert.Empty(t, initial)

	_, _ = m.Create(ctx, "one")
	_, _ = m.Create(ctx, "two")

	// only the latest snapshot is buffered
	latest := <-ch
	assert.Equal(t, []string{"two", "one"}, titles(latest))

	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra snapshot: %v", titles(extra))
	default:
	}

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)

	// publishing after cancel must not panic
	_, _ = m.Create(ctx, "three")
}

func TestHooksFire(t *testing.T) {
	hm := hooks.NewManager(silentLog())
	var events []string
	for _, ev := range []string{hooks.EventConversationCreated, hooks.EventMessageAdded, hooks.EventConversationDeleted} {
		hm.On(ev, "test", func(_ context.Context, p hooks.Payload) error {
			events = append(events, p.Event)
			return nil
		})
	}

	m := NewManager(store.NewMemoryStore(), hm, silentLog())
	ctx := context.Background()
	require.NoError(t, m.Attach(ctx, parrot()))
	rec, _ := m.Create(ctx, "")
	_, _ = m.AddMessage(ctx, rec.SessionID, domain.RoleUser, "hi")
	require.NoError(t, m.Delete(ctx, rec.SessionID))

	assert.Equal(t, []string{
		hooks.EventConversationCreated,
		hooks.EventMessageAdded,
		hooks.EventConversationDeleted,
	}, events)
}

func TestTitleSnippet(t *testing.T) {
	assert.Equal(t, "hello", titleSnippet("  hello  "))
	assert.Equal(t, strings.Repeat("a", 40), titleSnippet(strings.Repeat("a", 41)))
	assert.Equal(t, "", titleSnippet("   "))
}
