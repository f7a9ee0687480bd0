// Package sweep periodically prunes expired claims from pending buckets.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
)

// DefaultBatch bounds how many expired claims one run prunes.
const DefaultBatch = 500

// Pruner is the slice of the coordinator the sweeper drives.
type Pruner interface {
	SweepExpired(ctx context.Context, limit int) (int, error)
}

// Sweeper runs Pruner.SweepExpired on a cron schedule.
type Sweeper struct {
	pruner  Pruner
	cron    *cron.Cron
	parser  cron.Parser
	batch   int
	logger  *slog.Logger
	mu      sync.Mutex
	entry   cron.EntryID
	running bool
}

// New builds a sweeper. An empty schedule leaves it disabled; Start is then a no-op.
func New(log *slog.Logger, pruner Pruner, schedule string, batch int) (*Sweeper, error) {
	if log == nil {
		log = slog.Default()
	}
	if batch <= 0 {
		batch = DefaultBatch
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s := &Sweeper{
		pruner: pruner,
		cron:   cron.New(cron.WithParser(parser)),
		parser: parser,
		batch:  batch,
		logger: log.With(slog.String("service", "sweep")),
	}
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return s, nil
	}
	if _, err := parser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule: %w", err)
	}
	entry, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.Run(context.Background()); err != nil {
			s.logger.Error("sweep failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return nil, err
	}
	s.entry = entry
	return s, nil
}

// Enabled reports whether a schedule is registered.
func (s *Sweeper) Enabled() bool {
	return s.entry != 0
}

// Start begins the schedule.
func (s *Sweeper) Start() {
	if !s.Enabled() {
		s.logger.Info("sweep disabled")
		return
	}
	s.cron.Start()
	s.logger.Info("sweep scheduled", slog.Int("batch", s.batch))
}

// Stop halts the schedule and waits for a running sweep to return.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run performs one sweep. Overlapping runs are skipped.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return 0, nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	n, err := s.pruner.SweepExpired(ctx, s.batch)
	if err != nil {
		return n, err
	}
	if n > 0 {
		s.logger.Info("expired claims pruned", slog.Int("count", n))
	}
	return n, nil
}
