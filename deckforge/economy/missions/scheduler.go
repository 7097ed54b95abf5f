package missions

import (
	"context"
	"log/slog"
	"time"
)

const (
	spawnTickInterval     = 10 * time.Minute
	lifecycleTickInterval = 5 * time.Minute
	sweepTimeout          = 30 * time.Second
)

// TradeSweeper expires abandoned trades; it rides the lifecycle ticker so
// overdue trades don't need their own scheduler.
type TradeSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Scheduler runs the engine's background sweeps on fixed tickers.
type Scheduler struct {
	engine          *Engine
	trades          TradeSweeper
	spawnTicker     *time.Ticker
	lifecycleTicker *time.Ticker
	shutdown        chan struct{}
}

// NewScheduler creates a new mission scheduler. trades may be nil.
func NewScheduler(engine *Engine, trades TradeSweeper) *Scheduler {
	return &Scheduler{
		engine:          engine,
		trades:          trades,
		spawnTicker:     time.NewTicker(spawnTickInterval),
		lifecycleTicker: time.NewTicker(lifecycleTickInterval),
		shutdown:        make(chan struct{}),
	}
}

// Start begins the scheduler operations.
func (s *Scheduler) Start() {
	go s.runSpawnTicker()
	go s.runLifecycleTicker()
}

func (s *Scheduler) runSpawnTicker() {
	defer s.spawnTicker.Stop()

	for {
		select {
		case <-s.spawnTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
			s.engine.SpawnSweep(ctx)
			cancel()
		case <-s.shutdown:
			return
		}
	}
}

func (s *Scheduler) runLifecycleTicker() {
	defer s.lifecycleTicker.Stop()

	for {
		select {
		case <-s.lifecycleTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
			s.engine.LifecycleSweep(ctx)
			if s.trades != nil {
				if _, err := s.trades.SweepExpired(ctx); err != nil {
					slog.Error("Failed to sweep expired trades",
						slog.String("type", "sys"),
						slog.Any("error", err))
				}
			}
			cancel()
		case <-s.shutdown:
			return
		}
	}
}

// Shutdown gracefully stops all scheduler processes.
func (s *Scheduler) Shutdown() {
	close(s.shutdown)
	s.spawnTicker.Stop()
	s.lifecycleTicker.Stop()
	slog.Info("Mission scheduler shutdown completed")
}
