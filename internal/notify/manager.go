package notify

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"notigate/internal/eventbus"
	logx "notigate/pkg/logx"
)

// Manager owns the notification queue and the preference cache. It is safe
// for concurrent use; auto-dismiss timers fire on their own goroutines and
// take the same lock.
//
// Failure semantics: store and sound/vibration errors are logged and
// swallowed. Suppression and unknown-id operations are silent non-errors.
type Manager struct {
	mu    sync.Mutex
	cfg   Config
	queue []*entry
	prefs PreferenceDoc

	store Store // may be nil (persistence disabled)
	bus   *eventbus.Bus[Event]
	sound Sounder  // may be nil
	vib   Vibrator // may be nil

	log logx.Logger
	now func() time.Time
}

// entry is the manager-internal queue record. The exported Entry type is a
// snapshot of this.
type entry struct {
	n            Notification
	enqueuedAt   time.Time
	shown        bool
	acknowledged bool
	timer        *dismissTimer
}

type Option func(*Manager)

// WithClock injects a time source. Tests use this to pin quiet-hours and
// grouping-window evaluation.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithSound(s Sounder) Option {
	return func(m *Manager) { m.sound = s }
}

func WithVibrator(v Vibrator) Option {
	return func(m *Manager) { m.vib = v }
}

// New constructs a Manager and loads the preference cache from store (when
// present). A load failure is logged and leaves the cache empty; it never
// fails construction.
func New(cfg Config, store Store, bus *eventbus.Bus[Event], log logx.Logger, opts ...Option) *Manager {
	if bus == nil {
		bus = eventbus.New[Event]()
	}
	m := &Manager{
		cfg:   cfg.normalize(),
		store: store,
		bus:   bus,
		log:   log,
		now:   time.Now,
		prefs: PreferenceDoc{Version: PreferenceDocVersion, Categories: map[string]Preference{}},
	}
	for _, o := range opts {
		o(m)
	}
	m.loadPreferences()
	return m
}

// Events exposes the lifecycle bus for subscribers (UI bridges, tests).
func (m *Manager) Events() *eventbus.Bus[Event] { return m.bus }

func (m *Manager) loadPreferences() {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	doc, err := m.store.LoadPreferences(ctx)
	if err != nil {
		m.log.Warn("preference load failed; starting with empty cache", logx.Err(err))
		return
	}
	if doc.Categories == nil {
		doc.Categories = map[string]Preference{}
	}
	// Version 0 documents predate the version field; upgrade in place.
	if doc.Version < PreferenceDocVersion {
		doc.Version = PreferenceDocVersion
	}
	m.mu.Lock()
	m.prefs = doc
	m.mu.Unlock()
}

// Show submits a notification. Suppressed submissions are dropped silently:
// suppression is policy, not failure. An empty ID is filled in.
func (m *Manager) Show(n Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if strings.TrimSpace(n.ID) == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}

	if m.cfg.DoNotDisturb {
		m.log.Debug("notification suppressed (do not disturb)", logx.String("id", n.ID))
		return
	}
	if inQuietWindow(now, m.cfg.QuietStart, m.cfg.QuietEnd) && n.Priority != PriorityCritical {
		m.log.Debug("notification suppressed (quiet hours)",
			logx.String("id", n.ID), logx.String("priority", string(n.Priority)))
		return
	}
	if pref, ok := m.prefs.Categories[n.Category]; ok {
		if !pref.Enabled {
			m.log.Debug("notification suppressed (category disabled)",
				logx.String("id", n.ID), logx.String("category", n.Category))
			return
		}
		if pref.MinPriority != "" && n.Priority.rank() < pref.MinPriority.rank() {
			m.log.Debug("notification suppressed (below category min priority)",
				logx.String("id", n.ID), logx.String("category", n.Category))
			return
		}
	}

	// IDs must be unique within the live queue; reuse is fine after dismissal.
	if m.findLocked(n.ID) != nil {
		m.log.Debug("duplicate notification id in active queue; dropped", logx.String("id", n.ID))
		return
	}

	if m.cfg.GroupingEnabled {
		if e := m.groupTargetLocked(n, now); e != nil {
			m.mergeLocked(e, now)
			return
		}
	}

	e := &entry{n: n, enqueuedAt: now}
	m.queue = append(m.queue, e)
	m.publishQueueLocked()
	m.dispatchLocked()
}

// groupTargetLocked finds an unacknowledged entry of the same category and
// kind submitted within the grouping window.
func (m *Manager) groupTargetLocked(n Notification, now time.Time) *entry {
	for _, e := range m.queue {
		if e.acknowledged {
			continue
		}
		if e.n.Category != n.Category || e.n.Kind != n.Kind {
			continue
		}
		if now.Sub(e.enqueuedAt) <= m.cfg.GroupWindow {
			return e
		}
	}
	return nil
}

// groupMarker is the aggregation suffix appended to a merged entry's message.
const groupMarker = "(and 1 more)"

// mergeLocked folds a new submission into e: the queued Notification is
// replaced with a rewritten value (marker suffix + refreshed timestamp), and
// the grouping window restarts from now. No new queue entry is created.
func (m *Manager) mergeLocked(e *entry, now time.Time) {
	merged := e.n
	if !strings.HasSuffix(merged.Message, groupMarker) {
		merged.Message = strings.TrimRight(merged.Message, " ") + " " + groupMarker
	}
	merged.UpdatedAt = now
	e.n = merged
	e.enqueuedAt = now

	m.log.Debug("notification merged",
		logx.String("id", merged.ID), logx.String("category", merged.Category))
	m.bus.Publish(NotificationShown{Notification: merged})
}

// Acknowledge marks the entry read and cancels its auto-dismiss timer.
// Unknown ids are a silent no-op: acknowledgement races with timer-driven
// dismissal by design.
func (m *Manager) Acknowledge(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.findLocked(id)
	if e == nil {
		return
	}
	e.acknowledged = true
	e.n.Read = true
	e.timer.Stop()
	e.timer = nil

	m.bus.Publish(Acknowledged{ID: id})
	// An acknowledged entry no longer occupies a visible slot.
	m.dispatchLocked()
}

// Dismiss removes the entry regardless of shown/acknowledged state. Calling
// it twice is a no-op the second time (one Dismissed event total).
func (m *Manager) Dismiss(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexLocked(id)
	if idx < 0 {
		return
	}
	m.removeLocked(idx)
	m.bus.Publish(Dismissed{ID: id})
	m.publishQueueLocked()
	m.dispatchLocked()
}

// dismissExpired is the auto-dismiss timer callback. Unlike Dismiss it
// leaves acknowledged entries alone: a timer that fired while Acknowledge
// held the lock must not remove the entry it lost the race to.
func (m *Manager) dismissExpired(target *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.queue {
		if e != target {
			continue
		}
		if e.acknowledged {
			return
		}
		id := e.n.ID
		m.removeLocked(i)
		m.bus.Publish(Dismissed{ID: id})
		m.publishQueueLocked()
		m.dispatchLocked()
		return
	}
}

// ClearAll cancels every pending timer and empties the queue as one logical
// operation: a single QueueChanged event, no per-entry Dismissed events.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.queue {
		e.timer.Stop()
		e.timer = nil
	}
	m.queue = nil
	m.publishQueueLocked()
}

// Queue returns a snapshot copy of the current queue.
func (m *Manager) Queue() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// UnreadCount counts entries not yet acknowledged.
func (m *Manager) UnreadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.queue {
		if !e.acknowledged {
			n++
		}
	}
	return n
}

// Preferences returns the stored record for a category. ok is false when no
// record exists; the zero Preference is returned and callers apply their own
// defaults.
func (m *Manager) Preferences(category string) (Preference, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prefs.Categories[category]
	return p, ok
}

// PreferenceSnapshot returns a copy of the full preference document.
func (m *Manager) PreferenceSnapshot() PreferenceDoc {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := PreferenceDoc{
		Version:    m.prefs.Version,
		Categories: make(map[string]Preference, len(m.prefs.Categories)),
	}
	for k, v := range m.prefs.Categories {
		doc.Categories[k] = v
	}
	return doc
}

// UpdatePreferences replaces a category record and persists the full
// document. Persistence failure is logged and does not undo the in-memory
// update.
func (m *Manager) UpdatePreferences(category string, p Preference) {
	m.mu.Lock()
	if m.prefs.Categories == nil {
		m.prefs.Categories = map[string]Preference{}
	}
	m.prefs.Categories[category] = p
	m.prefs.Version = PreferenceDocVersion
	doc := m.prefs
	doc.Categories = make(map[string]Preference, len(m.prefs.Categories))
	for k, v := range m.prefs.Categories {
		doc.Categories[k] = v
	}
	store := m.store
	m.mu.Unlock()

	if store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := store.SavePreferences(ctx, doc); err != nil {
		m.log.Warn("preference save failed", logx.String("category", category), logx.Err(err))
	}
}

// Config returns a copy of the live config.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// UpdateConfig shallow-merges the patch into the live config. Subsequent
// Show calls observe the new values immediately; nothing is persisted.
func (m *Manager) UpdateConfig(p ConfigPatch) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.MaxVisible != nil {
		m.cfg.MaxVisible = *p.MaxVisible
	}
	if p.DefaultDuration != nil {
		m.cfg.DefaultDuration = *p.DefaultDuration
	}
	if p.SoundEnabled != nil {
		m.cfg.SoundEnabled = *p.SoundEnabled
	}
	if p.VibrationEnabled != nil {
		m.cfg.VibrationEnabled = *p.VibrationEnabled
	}
	if p.GroupingEnabled != nil {
		m.cfg.GroupingEnabled = *p.GroupingEnabled
	}
	if p.GroupWindow != nil {
		m.cfg.GroupWindow = *p.GroupWindow
	}
	if p.DoNotDisturb != nil {
		m.cfg.DoNotDisturb = *p.DoNotDisturb
	}
	if p.QuietStart != nil {
		m.cfg.QuietStart = *p.QuietStart
	}
	if p.QuietEnd != nil {
		m.cfg.QuietEnd = *p.QuietEnd
	}
	m.cfg = m.cfg.normalize()

	// A raised cap can free slots for pending entries.
	m.dispatchLocked()
}

// ---- internal helpers ----

func (m *Manager) findLocked(id string) *entry {
	if i := m.indexLocked(id); i >= 0 {
		return m.queue[i]
	}
	return nil
}

func (m *Manager) indexLocked(id string) int {
	for i, e := range m.queue {
		if e.n.ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) removeLocked(i int) {
	e := m.queue[i]
	e.timer.Stop()
	e.timer = nil
	m.queue = append(m.queue[:i], m.queue[i+1:]...)
}

func (m *Manager) snapshotLocked() []Entry {
	out := make([]Entry, 0, len(m.queue))
	for _, e := range m.queue {
		out = append(out, Entry{
			Notification: e.n,
			EnqueuedAt:   e.enqueuedAt,
			Shown:        e.shown,
			Acknowledged: e.acknowledged,
		})
	}
	return out
}

func (m *Manager) publishQueueLocked() {
	m.bus.Publish(QueueChanged{Queue: m.snapshotLocked()})
}
