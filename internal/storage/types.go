package storage

import (
	"context"
	"errors"
	"time"

	"notigate/internal/notify"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": file backend (prefs snapshot + history jsonl)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the manager and the control surface.
// It extends notify.Store with the query/maintenance operations the HTTP API
// and the janitor need.
type Store interface {
	notify.Store

	RecentHistory(ctx context.Context, limit int) ([]notify.HistoryEntry, error)
	PruneHistory(ctx context.Context, olderThan time.Time) error
	Close() error
}
