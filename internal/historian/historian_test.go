// internal/historian/historian_test.go
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/timebid/internal/cache"
	"github.com/jason-s-yu/timebid/internal/config"
	"github.com/jason-s-yu/timebid/internal/database"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu        sync.Mutex
	batches   [][]cache.GameActionRecord
	abandoned []uuid.UUID
	failNext  bool
}

func (m *memStore) InsertGameActions(_ context.Context, records []cache.GameActionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return errors.New("db down")
	}
	m.batches = append(m.batches, records)
	return nil
}

func (m *memStore) MarkGameAbandoned(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.abandoned = append(m.abandoned, id)
	return true, nil
}

func (m *memStore) records() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func testConfig(t *testing.T) config.Config {
	cfg, err := config.LoadFrom(map[string]string{
		"HISTORIAN_BATCH_SIZE":        "3",
		"HISTORIAN_FLUSH_MS":          "50",
		"GAME_INACTIVITY_TIMEOUT_SEC": "60",
		"HISTORIAN_QUEUE_NAME":        "timebid_actions_test",
	})
	require.NoError(t, err)
	return cfg
}

func newTestService(t *testing.T) (*Service, *memStore) {
	logger, _ := test.NewNullLogger()
	store := &memStore{}
	return New(nil, store, testConfig(t), logger), store
}

func payload(t *testing.T, gameID uuid.UUID, idx int, typ string) []byte {
	data, err := json.Marshal(cache.GameActionRecord{
		GameID:      gameID,
		ActionIndex: idx,
		ActionType:  typ,
		Timestamp:   time.Now().UnixMilli(),
	})
	require.NoError(t, err)
	return data
}

func TestBatchFlushesWhenFull(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()
	id := uuid.New()

	s.Handle(ctx, payload(t, id, 1, "market_opened"))
	s.Handle(ctx, payload(t, id, 2, "action_chosen"))
	assert.Equal(t, 2, s.Pending())
	assert.Zero(t, store.records())

	s.Handle(ctx, payload(t, id, 3, "round_resolving"))
	assert.Zero(t, s.Pending())
	require.Len(t, store.batches, 1)
	assert.Equal(t, []int{1, 2, 3}, []int{
		store.batches[0][0].ActionIndex, store.batches[0][1].ActionIndex, store.batches[0][2].ActionIndex,
	})
}

func TestHandleDropsBadPayloads(t *testing.T) {
	s, _ := newTestService(t)
	s.Handle(context.Background(), []byte("not json"))
	s.Handle(context.Background(), []byte(`{"action_index":1}`))
	assert.Zero(t, s.Pending())
}

func TestFailedFlushDropsBatch(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()
	store.failNext = true

	s.Handle(ctx, payload(t, uuid.New(), 1, "market_opened"))
	s.Flush(ctx)
	assert.Zero(t, s.Pending())
	assert.Zero(t, store.records())

	s.Flush(ctx)
	assert.Empty(t, store.batches)
}

func TestSweepInactiveMarksAbandoned(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()
	quiet, finished := uuid.New(), uuid.New()

	s.Handle(ctx, payload(t, quiet, 1, "market_opened"))
	s.Handle(ctx, payload(t, finished, 1, "market_opened"))
	s.Handle(ctx, payload(t, finished, 2, database.GameOverAction))

	s.SweepInactive(ctx, time.Now())
	assert.Empty(t, store.abandoned)

	s.SweepInactive(ctx, time.Now().Add(2*time.Minute))
	assert.Equal(t, []uuid.UUID{quiet}, store.abandoned)

	// already swept games are forgotten
	s.SweepInactive(ctx, time.Now().Add(4*time.Minute))
	assert.Len(t, store.abandoned, 1)
}

// Needs a local Redis; skipped otherwise.
func TestRunDrainsQueue(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rdb := cache.NewClient(cfg.Redis)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	require.NoError(t, rdb.Del(ctx, cfg.Redis.QueueName).Err())

	logger, _ := test.NewNullLogger()
	store := &memStore{}
	s := New(rdb, store, cfg, logger)
	s.popTimeout = 100 * time.Millisecond

	id := uuid.New()
	for i := 1; i <= 2; i++ {
		require.NoError(t, rdb.RPush(ctx, cfg.Redis.QueueName, payload(t, id, i, "action_chosen")).Err())
	}

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- s.Run(runCtx) }()

	assert.Eventually(t, func() bool { return store.records() == 2 }, 3*time.Second, 20*time.Millisecond)
	stop()
	require.NoError(t, <-done)
}
