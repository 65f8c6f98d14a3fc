// Package sweeper removes temp files abandoned by interrupted writes.
//
// Long-running modes sweep once at start and then on a cron schedule. Only
// files older than the configured age are removed, so a sweep never races
// with a write in progress.
package sweeper

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	apperrors "github.com/ironsheep/image-doc-mcp/internal/errors"
	"github.com/ironsheep/image-doc-mcp/internal/metrics"
	"github.com/ironsheep/image-doc-mcp/internal/workspace"
)

// Sweeper runs workspace temp-file sweeps on a schedule.
type Sweeper struct {
	layout   *workspace.Layout
	schedule string
	maxAge   time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// New validates schedule and returns a stopped Sweeper. An empty schedule
// means Start sweeps once and schedules nothing.
func New(layout *workspace.Layout, schedule string, maxAge time.Duration, logger *zap.Logger, m *metrics.Metrics) (*Sweeper, error) {
	if schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrInvalidOption, fmt.Sprintf("invalid sweep schedule %q", schedule))
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		layout:   layout,
		schedule: schedule,
		maxAge:   maxAge,
		logger:   logger.With(zap.String("workspace", layout.Base())),
		metrics:  m,
	}, nil
}

// Sweep removes stale temp files now and returns how many were removed.
func (s *Sweeper) Sweep() (int, error) {
	n, err := s.layout.SweepTemp(s.maxAge)
	s.metrics.Swept(n)
	if err != nil {
		s.logger.Warn("temp sweep failed", zap.Int("removed", n), zap.Error(err))
		return n, err
	}
	if n > 0 {
		s.logger.Info("removed stale temp files", zap.Int("removed", n))
	}
	return n, nil
}

// Start sweeps once and then on the schedule.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper already running")
	}

	_, _ = s.Sweep()

	if s.schedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(s.schedule, func() { _, _ = s.Sweep() }); err != nil {
			return apperrors.Wrap(err, apperrors.ErrInvalidOption, fmt.Sprintf("invalid sweep schedule %q", s.schedule))
		}
		c.Start()
		s.cron = c
		s.logger.Debug("sweep scheduled", zap.String("schedule", s.schedule), zap.Duration("max_age", s.maxAge))
	}
	s.running = true
	return nil
}

// Stop cancels the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
	}
}

func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
