package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nutrimama/nutrimama/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSweepInterval    = 1 * time.Hour
	defaultSymptomTTL       = 72 * time.Hour
	defaultSweepParallelism = 4
)

// SymptomSweeper ages out symptoms nobody has re-reported within the TTL.
// It works through the Engine, so each user is still handled one operation
// at a time.
type SymptomSweeper struct {
	engine   *Engine
	profiles domain.ProfileStore
	logger   *zap.Logger

	ttl         time.Duration
	interval    time.Duration
	parallelism int
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewSymptomSweeper(engine *Engine, profiles domain.ProfileStore, logger *zap.Logger) *SymptomSweeper {
	return &SymptomSweeper{
		engine:      engine,
		profiles:    profiles,
		logger:      logger,
		ttl:         defaultSymptomTTL,
		interval:    defaultSweepInterval,
		parallelism: defaultSweepParallelism,
		stopCh:      make(chan struct{}),
	}
}

func (s *SymptomSweeper) SetInterval(d time.Duration) {
	s.interval = d
}

func (s *SymptomSweeper) SetTTL(d time.Duration) {
	s.ttl = d
}

func (s *SymptomSweeper) SetParallelism(n int) {
	if n > 0 {
		s.parallelism = n
	}
}

// Start runs the sweeper on a periodic schedule in a background goroutine.
func (s *SymptomSweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("symptom sweeper started",
			zap.Duration("interval", s.interval),
			zap.Duration("ttl", s.ttl))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if _, err := s.RunOnce(ctx); err != nil {
					s.logger.Error("symptom sweep failed", zap.Error(err))
				}
				cancel()
			case <-s.stopCh:
				s.logger.Info("symptom sweeper stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the sweeper. It is safe to call more than once.
func (s *SymptomSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// RunOnce sweeps every stored user and returns how many symptoms were
// removed. A failure for one user is logged and does not stop the others.
func (s *SymptomSweeper) RunOnce(ctx context.Context) (int, error) {
	userIDs, err := s.profiles.ListUserIDs(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.engine.now().Add(-s.ttl)

	var removed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for _, id := range userIDs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := s.engine.ExpireSymptoms(gctx, id, cutoff)
			if err != nil {
				s.logger.Warn("symptom sweep failed for user",
					zap.String("user_id", id),
					zap.Error(err))
				return nil
			}
			if n > 0 {
				s.logger.Info("expired symptoms",
					zap.String("user_id", id),
					zap.Int("count", n))
			}
			removed.Add(int64(n))
			return nil
		})
	}
	err = g.Wait()
	return int(removed.Load()), err
}
