package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"knot/internal/middleware"

	"github.com/robfig/cron/v3"
)

// Runner is the job the scheduler invokes on every tick.
type Runner interface {
	RunOnce(ctx context.Context) (Result, error)
}

// Scheduler runs a Runner on a cron spec. Overlapping ticks are skipped.
type Scheduler struct {
	runner Runner
	spec   string
	cron   *cron.Cron

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

func NewScheduler(runner Runner, spec string) *Scheduler {
	if spec == "" {
		spec = "@every 1m"
	}
	return &Scheduler{
		runner: runner,
		spec:   spec,
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start registers the job and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	if _, err := s.cron.AddFunc(s.spec, s.tick); err != nil {
		s.cancel()
		return fmt.Errorf("schedule cleanup %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.started = true
	middleware.Logger.Info("cleanup scheduler started", slog.String("schedule", s.spec))
	return nil
}

func (s *Scheduler) tick() {
	if _, err := s.runner.RunOnce(s.ctx); err != nil {
		middleware.Logger.Error("cleanup sweep failed", slog.String("error", err.Error()))
	}
}

// Stop cancels the running sweep and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	middleware.Logger.Info("cleanup scheduler stopped")
}
