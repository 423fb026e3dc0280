// Package notify implements the notification queue and dispatch policy:
// suppression (do-not-disturb, quiet hours, per-category preferences),
// grouping of near-duplicate alerts, a visible-notification cap, and
// auto-dismiss timers. Lifecycle changes are published as typed events.
package notify

import (
	"context"
	"time"
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// rank orders priorities for threshold checks. Unknown values sort as medium.
func (p Priority) rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	default:
		return 1
	}
}

// Action is an optional follow-up link attached to a notification.
type Action struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

// Notification is a single user-facing alert. It is treated as an immutable
// value once submitted; the grouping path replaces the queued value rather
// than mutating it in place.
type Notification struct {
	ID             string            `json:"id"`
	Kind           Kind              `json:"kind"`
	Title          string            `json:"title"`
	Message        string            `json:"message"`
	Priority       Priority          `json:"priority"`
	Category       string            `json:"category"`
	CreatedAt      time.Time         `json:"created_at"`
	Read           bool              `json:"read"`
	Action         *Action           `json:"action,omitempty"`
	ActionRequired bool              `json:"action_required,omitempty"`
	Persistent     bool              `json:"persistent,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at,omitempty"`
}

// Entry is a read-only snapshot of a queued notification plus manager
// bookkeeping. Snapshots returned by Queue() / QueueChanged do not alias
// manager state.
type Entry struct {
	Notification Notification `json:"notification"`
	EnqueuedAt   time.Time    `json:"enqueued_at"`
	Shown        bool         `json:"shown"`
	Acknowledged bool         `json:"acknowledged"`
}

// ---- Events ----

// Event is the closed set of lifecycle events published by the Manager.
type Event interface{ event() }

// NotificationShown is published when an entry is promoted to visible, and
// again (with the rewritten value) when a submission merges into it.
type NotificationShown struct{ Notification Notification }

// QueueChanged carries a full queue snapshot after any structural change.
type QueueChanged struct{ Queue []Entry }

type Acknowledged struct{ ID string }

type Dismissed struct{ ID string }

func (NotificationShown) event() {}
func (QueueChanged) event()      {}
func (Acknowledged) event()      {}
func (Dismissed) event()         {}

// ---- Preferences ----

// Channels holds the settings-level delivery toggles for a category.
// Only in-app delivery is acted on by this process; the rest are stored
// for the backend notification settings surface.
type Channels struct {
	InApp bool `json:"in_app"`
	Email bool `json:"email"`
	SMS   bool `json:"sms"`
	Push  bool `json:"push"`
}

// Preference is the per-category user preference record.
type Preference struct {
	Enabled     bool     `json:"enabled"`
	Sound       bool     `json:"sound"`
	Channels    Channels `json:"channels"`
	MinPriority Priority `json:"min_priority,omitempty"`
}

// PreferenceDocVersion is the current persisted schema version.
// A document without a version field is treated as version 0 and upgraded
// in place on load.
const PreferenceDocVersion = 1

// PreferenceDoc is the persisted preference document: one record per
// category name, plus a schema version.
type PreferenceDoc struct {
	Version    int                   `json:"version"`
	Categories map[string]Preference `json:"categories"`
}

// HistoryEntry records a dispatched notification. Keep it compact and
// schema-stable.
type HistoryEntry struct {
	At       time.Time `json:"at"`
	ID       string    `json:"id"`
	Kind     Kind      `json:"kind"`
	Priority Priority  `json:"priority"`
	Category string    `json:"category"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
}

// Store is the persistence surface the manager needs. Implementations are
// best-effort: errors are logged by the manager and never interrupt
// notification delivery.
type Store interface {
	LoadPreferences(ctx context.Context) (PreferenceDoc, error)
	SavePreferences(ctx context.Context, doc PreferenceDoc) error
	AppendHistory(ctx context.Context, e HistoryEntry) error
}

// Sounder plays a short synthesized tone. Implementations must be
// feature-detected; Available() false means Play is never called.
type Sounder interface {
	Play(freqHz float64, d time.Duration) error
	Available() bool
}

// Vibrator triggers a vibration pattern (alternating pulse/pause durations).
type Vibrator interface {
	Vibrate(pattern []time.Duration) error
	Available() bool
}

// ---- Config ----

// Config is the process-wide manager configuration. It is mutable at
// runtime via UpdateConfig and is intentionally not persisted (only
// category preferences persist).
type Config struct {
	MaxVisible       int
	DefaultDuration  time.Duration
	SoundEnabled     bool
	VibrationEnabled bool
	GroupingEnabled  bool
	GroupWindow      time.Duration
	DoNotDisturb     bool

	// QuietStart/QuietEnd are "HH:MM" wall-clock bounds; both empty
	// disables quiet hours. The window may span midnight.
	QuietStart string
	QuietEnd   string
}

func DefaultConfig() Config {
	return Config{
		MaxVisible:       5,
		DefaultDuration:  6 * time.Second,
		SoundEnabled:     true,
		VibrationEnabled: true,
		GroupingEnabled:  true,
		GroupWindow:      60 * time.Second,
	}
}

// normalize fills zero values so a partially-populated config stays usable.
func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.MaxVisible <= 0 {
		c.MaxVisible = def.MaxVisible
	}
	if c.DefaultDuration <= 0 {
		c.DefaultDuration = def.DefaultDuration
	}
	if c.GroupWindow <= 0 {
		c.GroupWindow = def.GroupWindow
	}
	return c
}

// ConfigPatch is a partial config update. Nil fields keep the current value,
// so callers can distinguish "omitted" from an explicit zero.
type ConfigPatch struct {
	MaxVisible       *int
	DefaultDuration  *time.Duration
	SoundEnabled     *bool
	VibrationEnabled *bool
	GroupingEnabled  *bool
	GroupWindow      *time.Duration
	DoNotDisturb     *bool
	QuietStart       *string
	QuietEnd         *string
}
