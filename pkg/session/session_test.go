package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestNewSessionDefaults(t *testing.T) {
	s := NewSession("u1", 0)
	assert.Equal(t, DefaultTopic, s.GetTopic())
	assert.False(t, s.Handshaken())
	assert.Equal(t, "", s.LastReply())
	assert.Empty(t, s.lastCaptures())
}

func TestAdvanceBoundedHistory(t *testing.T) {
	s := NewSession("u1", 3)
	for i := 1; i <= 5; i++ {
		s.Advance(Turn{
			TriggerID: "random/*",
			Captures:  []string{fmt.Sprint(i)},
			Input:     fmt.Sprintf("in%d", i),
			Reply:     fmt.Sprintf("out%d", i),
		})
	}

	snap := s.Snapshot()
	assert.Equal(t, []string{"in3", "in4", "in5"}, snap.Inputs)
	assert.Equal(t, []string{"out3", "out4", "out5"}, snap.Replies)
	assert.Equal(t, "out5", s.LastReply())
	assert.Equal(t, "in4", s.InputAt(2))
	assert.Equal(t, "", s.InputAt(4))
	assert.Equal(t, "", s.ReplyAt(0))
	assert.Equal(t, []string{"5"}, s.capturesFor("random/*"))
	assert.Equal(t, []string{"5"}, s.lastCaptures())
}

func TestAdvanceCopiesCaptures(t *testing.T) {
	s := NewSession("u1", 0)
	caps := []string{"a"}
	s.Advance(Turn{TriggerID: "t", Captures: caps})
	caps[0] = "mutated"
	assert.Equal(t, []string{"a"}, s.capturesFor("t"))
}

func TestHandshakeAndTopic(t *testing.T) {
	s := NewSession("u1", 0)
	s.CompleteHandshake()
	s.SetTopic("sorry")
	assert.True(t, s.Handshaken())
	assert.Equal(t, "sorry", s.GetTopic())
}

func TestVariables(t *testing.T) {
	s := NewSession("u1", 0)
	_, ok := s.GetVariable("name")
	assert.False(t, ok)

	s.SetVariable("name", "bob")
	v, ok := s.GetVariable("name")
	assert.True(t, ok)
	assert.Equal(t, "bob", v)

	cp := s.CopyVariables()
	cp["name"] = "changed"
	v, _ = s.GetVariable("name")
	assert.Equal(t, "bob", v)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := NewSession("u1", 4)
	s.SetTopic("games")
	s.CompleteHandshake()
	s.SetVariable("name", "alice")
	s.Advance(Turn{TriggerID: "games/play *", Captures: []string{"chess"}, BotCaptures: []string{"x"}, Input: "play chess", Reply: "ok"})

	data, err := s.Encode()
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)

	want, have := s.Snapshot(), got.Snapshot()
	assert.True(t, want.StartTime.Equal(have.StartTime))
	assert.True(t, want.LastActive.Equal(have.LastActive))
	want.StartTime, want.LastActive = time.Time{}, time.Time{}
	have.StartTime, have.LastActive = time.Time{}, time.Time{}
	assert.Equal(t, want, have)
}

func TestRestoreTrimsHistory(t *testing.T) {
	got := Restore(Snapshot{
		ID:          "u1",
		HistorySize: 2,
		Inputs:      []string{"a", "b", "c"},
		Replies:     []string{"1", "2", "3"},
	})
	snap := got.Snapshot()
	assert.Equal(t, []string{"b", "c"}, snap.Inputs)
	assert.Equal(t, []string{"2", "3"}, snap.Replies)
	assert.Equal(t, DefaultTopic, snap.Topic)
}

func TestDecodeInvalid(t *testing.T) {
	_, err := Decode([]byte("{not json"))
	require.Error(t, err)
}

func TestSessionConcurrentAccess(t *testing.T) {
	s := NewSession("u1", 0)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			s.Advance(Turn{TriggerID: "t", Input: fmt.Sprint(n)})
		}(i)
		go func() {
			defer wg.Done()
			_ = s.Snapshot()
			_ = s.LastReply()
		}()
	}
	wg.Wait()
	assert.Len(t, s.Snapshot().Inputs, DefaultHistorySize)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Load(ctx, "nobody")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, store.Save(ctx, NewSession("b", 0)))
	require.NoError(t, store.Save(ctx, NewSession("a", 0)))
	assert.Equal(t, []string{"a", "b"}, store.IDs())

	got, err := store.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)

	require.NoError(t, store.Delete(ctx, "a"))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreReap(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	stale := NewSession("stale", 0)
	stale.LastActive = time.Now().Add(-2 * time.Hour)
	require.NoError(t, store.Save(ctx, stale))
	require.NoError(t, store.Save(ctx, NewSession("fresh", 0)))

	n, err := store.Reap(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"fresh"}, store.IDs())
}

type sqliteDB struct {
	db *gorm.DB
}

func (s sqliteDB) DB(ctx context.Context, _ bool) *gorm.DB {
	return s.db.WithContext(ctx)
}

func newGormStore(t *testing.T) *GormStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	store := NewGormStore(sqliteDB{db: db})
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestGormStore(t *testing.T) {
	ctx := context.Background()
	store := newGormStore(t)

	_, err := store.Load(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	s := NewSession("u1", 0)
	s.SetVariable("name", "carol")
	require.NoError(t, store.Save(ctx, s))

	s.SetTopic("sorry")
	require.NoError(t, store.Save(ctx, s))

	got, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "sorry", got.GetTopic())
	v, _ := got.GetVariable("name")
	assert.Equal(t, "carol", v)

	require.NoError(t, store.Delete(ctx, "u1"))
	_, err = store.Load(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStoreReap(t *testing.T) {
	ctx := context.Background()
	store := newGormStore(t)
	require.NoError(t, store.Save(ctx, NewSession("u1", 0)))

	n, err := store.Reap(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = store.Reap(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestValkeyStore(t *testing.T) {
	addr := os.Getenv("VALKEY_TEST_ADDRESS")
	if addr == "" {
		t.Skip("VALKEY_TEST_ADDRESS not set")
	}
	ctx := context.Background()
	client, err := NewValkeyClient(ctx, ValkeyConfig{Address: addr})
	require.NoError(t, err)
	defer client.Close()

	store := NewValkeyStore(client, "rivebot-test", time.Minute)
	id := fmt.Sprintf("u-%d", time.Now().UnixNano())

	_, err = store.Load(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	s := NewSession(id, 0)
	s.SetTopic("games")
	require.NoError(t, store.Save(ctx, s))

	got, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "games", got.GetTopic())

	require.NoError(t, store.Delete(ctx, id))
}

// capturesFor returns a copy of the captures last recorded for a trigger.
func (s *Session) capturesFor(triggerID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.Captures[triggerID]...)
}

// lastCaptures returns a copy of the latest turn's captures.
func (s *Session) lastCaptures() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.LastCaptures...)
}
