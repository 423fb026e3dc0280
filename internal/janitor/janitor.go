// Package janitor runs scheduled housekeeping: history retention and a
// periodic queue health line in the log.
package janitor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "notigate/pkg/logx"
)

// Pruner is the slice of the storage layer the janitor writes to. Nil means
// persistence is disabled and pruning is skipped.
type Pruner interface {
	PruneHistory(ctx context.Context, olderThan time.Time) error
}

// QueueStats is satisfied by notify.Manager.
type QueueStats interface {
	UnreadCount() int
}

type Config struct {
	Enabled   bool
	Schedule  string        // cron spec or descriptor, e.g. "@daily"
	Retention time.Duration // history entries older than this are pruned
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Schedule) == "" {
		c.Schedule = "@daily"
	}
	if c.Retention <= 0 {
		c.Retention = 30 * 24 * time.Hour
	}
	return c
}

type Service struct {
	cfg    Config
	pruner Pruner
	stats  QueueStats
	log    logx.Logger

	mu sync.Mutex
	c  *cron.Cron
}

func New(cfg Config, pruner Pruner, stats QueueStats, log logx.Logger) *Service {
	return &Service{cfg: cfg.withDefaults(), pruner: pruner, stats: stats, log: log}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	if !s.cfg.Enabled {
		s.log.Info("janitor disabled")
		return nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser))
	if _, err := c.AddFunc(s.cfg.Schedule, func() { s.sweep(context.Background()) }); err != nil {
		return err
	}
	c.Start()
	s.c = c
	s.log.Info("janitor started",
		logx.String("schedule", s.cfg.Schedule),
		logx.Duration("retention", s.cfg.Retention))
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// sweep is one housekeeping pass. Exposed to tests through Sweep.
func (s *Service) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if s.pruner != nil {
		cutoff := time.Now().Add(-s.cfg.Retention)
		if err := s.pruner.PruneHistory(ctx, cutoff); err != nil {
			s.log.Warn("history prune failed", logx.Err(err))
		} else {
			s.log.Debug("history pruned", logx.Time("cutoff", cutoff))
		}
	}
	if s.stats != nil {
		s.log.Info("queue health", logx.Int("unread", s.stats.UnreadCount()))
	}
}

// Sweep runs one pass immediately, outside the schedule.
func (s *Service) Sweep(ctx context.Context) { s.sweep(ctx) }
