// Package historian pops game action records from the Redis queue and
// persists them to PostgreSQL in batches.
package historian

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/timebid/internal/cache"
	"github.com/jason-s-yu/timebid/internal/config"
	"github.com/jason-s-yu/timebid/internal/database"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Store is where batches end up.
type Store interface {
	InsertGameActions(ctx context.Context, records []cache.GameActionRecord) error
	MarkGameAbandoned(ctx context.Context, gameID uuid.UUID) (bool, error)
}

// PostgresStore writes through the shared database pool.
type PostgresStore struct{}

func (PostgresStore) InsertGameActions(ctx context.Context, records []cache.GameActionRecord) error {
	return database.InsertGameActions(ctx, records)
}

func (PostgresStore) MarkGameAbandoned(ctx context.Context, gameID uuid.UUID) (bool, error) {
	return database.MarkGameAbandoned(ctx, gameID)
}

// Service captures game actions and marks games abandoned once they have
// been quiet for longer than the inactivity threshold.
type Service struct {
	rdb        *redis.Client
	store      Store
	logger     *logrus.Entry
	queue      string
	batchSize  int
	flushDelay time.Duration
	inactivity time.Duration
	popTimeout time.Duration
	sweepEvery time.Duration

	lastActivity sync.Map // map[uuid.UUID]time.Time

	batchMu sync.Mutex
	batch   []cache.GameActionRecord
}

// New builds a service reading cfg's queue from rdb.
func New(rdb *redis.Client, store Store, cfg config.Config, logger *logrus.Logger) *Service {
	return &Service{
		rdb:        rdb,
		store:      store,
		logger:     logger.WithField("component", "historian"),
		queue:      cfg.Redis.QueueName,
		batchSize:  cfg.Historian.BatchSize,
		flushDelay: cfg.Historian.FlushInterval(),
		inactivity: cfg.Historian.Inactivity(),
		popTimeout: 3 * time.Second,
		sweepEvery: time.Minute,
		batch:      make([]cache.GameActionRecord, 0, cfg.Historian.BatchSize),
	}
}

// Run pops, flushes and sweeps until ctx ends, then flushes what is left.
func (s *Service) Run(ctx context.Context) error {
	s.logger.WithField("queue", s.queue).Info("historian started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(ctx) })
	g.Go(func() error { return s.flushLoop(ctx) })
	g.Go(func() error { return s.inactivityLoop(ctx) })
	err := g.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Flush(flushCtx)
	s.logger.Info("historian shutting down")
	return err
}

// readLoop uses BLPop with a timeout so cancellation is noticed.
func (s *Service) readLoop(ctx context.Context) error {
	for {
		res, err := s.rdb.BLPop(ctx, s.popTimeout, s.queue).Result()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				s.logger.WithError(err).Error("BLPop failed")
				time.Sleep(time.Second)
			}
			continue
		}
		// res[0] is the queue name and res[1] the payload.
		if len(res) < 2 {
			continue
		}
		s.Handle(ctx, []byte(res[1]))
	}
}

func (s *Service) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.flushDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

func (s *Service) inactivityLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.SweepInactive(ctx, now)
		}
	}
}

// Handle decodes one queued payload and adds it to the batch. A finished
// game stops being tracked for inactivity.
func (s *Service) Handle(ctx context.Context, payload []byte) {
	rec, err := cache.DecodeGameAction(payload)
	if err != nil {
		s.logger.WithError(err).Warn("dropping queued record")
		return
	}
	if rec.ActionType == database.GameOverAction {
		s.lastActivity.Delete(rec.GameID)
	} else {
		s.lastActivity.Store(rec.GameID, time.Now())
	}
	s.appendToBatch(ctx, rec)
}

// appendToBatch flushes as soon as the batch is full.
func (s *Service) appendToBatch(ctx context.Context, rec cache.GameActionRecord) {
	s.batchMu.Lock()
	s.batch = append(s.batch, rec)
	full := len(s.batch) >= s.batchSize
	s.batchMu.Unlock()

	if full {
		s.Flush(ctx)
	}
}

// Flush writes the pending batch in a single transaction. A failed batch
// is logged and dropped.
func (s *Service) Flush(ctx context.Context) {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	batch := s.batch
	s.batch = make([]cache.GameActionRecord, 0, s.batchSize)
	s.batchMu.Unlock()

	if err := s.store.InsertGameActions(ctx, batch); err != nil {
		s.logger.WithError(err).WithField("records", len(batch)).Error("failed to flush batch")
		return
	}
	s.logger.WithField("records", len(batch)).Debug("flushed actions")
}

// SweepInactive marks every game quiet since before now-inactivity as abandoned.
func (s *Service) SweepInactive(ctx context.Context, now time.Time) {
	s.lastActivity.Range(func(key, val interface{}) bool {
		gameID, ok1 := key.(uuid.UUID)
		last, ok2 := val.(time.Time)
		if !ok1 || !ok2 || now.Sub(last) <= s.inactivity {
			return true
		}
		marked, err := s.store.MarkGameAbandoned(ctx, gameID)
		if err != nil {
			s.logger.WithField("game", gameID).WithError(err).Error("failed to mark game abandoned")
			return true
		}
		s.lastActivity.Delete(gameID)
		if marked {
			s.logger.WithField("game", gameID).Info("marked game abandoned after inactivity")
		}
		return true
	})
}

// Pending returns how many records wait for the next flush.
func (s *Service) Pending() int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return len(s.batch)
}
