package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"notigate/internal/eventbus"
	logx "notigate/pkg/logx"
)

// fakeClock is an adjustable time source for grouping/quiet-hours tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type memStore struct {
	mu      sync.Mutex
	doc     PreferenceDoc
	history []HistoryEntry
	saveErr error
}

func (s *memStore) LoadPreferences(context.Context) (PreferenceDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc, nil
}

func (s *memStore) SavePreferences(_ context.Context, doc PreferenceDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.doc = doc
	return nil
}

func (s *memStore) AppendHistory(_ context.Context, e HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, e)
	return nil
}

type fakeSounder struct {
	mu    sync.Mutex
	freqs []float64
}

func (f *fakeSounder) Play(freq float64, _ time.Duration) error {
	f.mu.Lock()
	f.freqs = append(f.freqs, freq)
	f.mu.Unlock()
	return nil
}

func (f *fakeSounder) Available() bool { return true }

func (f *fakeSounder) played() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.freqs...)
}

type fakeVibrator struct {
	mu       sync.Mutex
	patterns [][]time.Duration
}

func (f *fakeVibrator) Vibrate(p []time.Duration) error {
	f.mu.Lock()
	f.patterns = append(f.patterns, p)
	f.mu.Unlock()
	return nil
}

func (f *fakeVibrator) Available() bool { return true }

// recorder drains manager events into a slice for assertions.
type recorder struct {
	mu     sync.Mutex
	events []Event
	unsub  func()
	done   chan struct{}
}

func record(m *Manager) *recorder {
	ch, unsub := m.Events().Subscribe(128)
	r := &recorder{unsub: unsub, done: make(chan struct{})}
	go func() {
		defer close(r.done)
		for e := range ch {
			r.mu.Lock()
			r.events = append(r.events, e)
			r.mu.Unlock()
		}
	}()
	return r
}

func (r *recorder) stop() {
	r.unsub()
	<-r.done
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) count(match func(Event) bool) int {
	n := 0
	for _, e := range r.snapshot() {
		if match(e) {
			n++
		}
	}
	return n
}

func isShown(e Event) bool { _, ok := e.(NotificationShown); return ok }

func isDismissed(e Event) bool { _, ok := e.(Dismissed); return ok }

func newTestManager(t *testing.T, cfg Config, opts ...Option) *Manager {
	t.Helper()
	return New(cfg, nil, eventbus.New[Event](), logx.Nop(), opts...)
}

func note(id, category string, kind Kind, prio Priority) Notification {
	return Notification{
		ID:       id,
		Kind:     kind,
		Title:    "t",
		Message:  "m",
		Priority: prio,
		Category: category,
	}
}

func TestShowEnqueuesAndPromotes(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.DefaultDuration = time.Hour // keep timers out of the way
	m := newTestManager(t, cfg)
	r := record(m)

	m.Show(note("n1", "transaction", KindError, PriorityHigh))

	q := m.Queue()
	if len(q) != 1 || !q[0].Shown || q[0].Acknowledged {
		t.Fatalf("unexpected queue state: %+v", q)
	}
	if m.UnreadCount() != 1 {
		t.Fatalf("UnreadCount = %d, want 1", m.UnreadCount())
	}

	r.stop()
	if got := r.count(isShown); got != 1 {
		t.Fatalf("NotificationShown events = %d, want 1", got)
	}
}

func TestShowAssignsID(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, DefaultConfig())
	m.Show(Notification{Kind: KindInfo, Category: "system", Priority: PriorityMedium})
	q := m.Queue()
	if len(q) != 1 || q[0].Notification.ID == "" {
		t.Fatal("blank ID should be filled in")
	}
}

func TestDuplicateIDDropped(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.GroupingEnabled = false
	m := newTestManager(t, cfg)

	m.Show(note("dup", "a", KindInfo, PriorityMedium))
	m.Show(note("dup", "b", KindError, PriorityMedium))
	if len(m.Queue()) != 1 {
		t.Fatalf("queue length = %d, want 1", len(m.Queue()))
	}
}

func TestCategoryDisabledSuppressesAllEvents(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, DefaultConfig())
	m.UpdatePreferences("transaction", Preference{Enabled: false})
	r := record(m)

	m.Show(note("n1", "transaction", KindSuccess, PriorityHigh))

	r.stop()
	if len(r.snapshot()) != 0 {
		t.Fatalf("expected no events, got %v", r.snapshot())
	}
	if len(m.Queue()) != 0 {
		t.Fatal("suppressed notification must not be enqueued")
	}
}

func TestMinPrioritySuppression(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, DefaultConfig())
	m.UpdatePreferences("wallet", Preference{Enabled: true, MinPriority: PriorityHigh})

	m.Show(note("low", "wallet", KindInfo, PriorityMedium))
	m.Show(note("hi", "wallet", KindInfo, PriorityCritical))

	q := m.Queue()
	if len(q) != 1 || q[0].Notification.ID != "hi" {
		t.Fatalf("unexpected queue: %+v", q)
	}
}

func TestDoNotDisturbSuppresses(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.DoNotDisturb = true
	m := newTestManager(t, cfg)
	m.Show(note("n1", "system", KindError, PriorityCritical))
	if len(m.Queue()) != 0 {
		t.Fatal("do-not-disturb must drop everything, critical included")
	}
}

func TestQuietHoursAdmitOnlyCritical(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.QuietStart, cfg.QuietEnd = "22:00", "08:00"
	clk := newFakeClock(clockAt(23, 30))
	m := newTestManager(t, cfg, WithClock(clk.Now))
	r := record(m)

	m.Show(note("n1", "transaction", KindError, PriorityHigh))
	m.Show(note("n2", "security", KindWarning, PriorityCritical))

	q := m.Queue()
	if len(q) != 1 || q[0].Notification.ID != "n2" {
		t.Fatalf("unexpected queue: %+v", q)
	}

	r.stop()
	if got := r.count(isShown); got != 1 {
		t.Fatalf("NotificationShown events = %d, want 1", got)
	}
}

func TestQuietHoursInactiveAtNoon(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.QuietStart, cfg.QuietEnd = "22:00", "08:00"
	clk := newFakeClock(clockAt(12, 0))
	m := newTestManager(t, cfg, WithClock(clk.Now))

	m.Show(note("n1", "transaction", KindInfo, PriorityLow))
	if len(m.Queue()) != 1 {
		t.Fatal("quiet hours must not apply at noon")
	}
}

func TestGroupingMergesWithinWindow(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.DefaultDuration = time.Hour
	clk := newFakeClock(clockAt(10, 0))
	m := newTestManager(t, cfg, WithClock(clk.Now))
	r := record(m)

	m.Show(note("n1", "transaction", KindError, PriorityMedium))
	clk.Advance(10 * time.Second)
	m.Show(note("n2", "transaction", KindError, PriorityMedium))

	q := m.Queue()
	if len(q) != 1 {
		t.Fatalf("queue length = %d, want 1 (merged)", len(q))
	}
	msg := q[0].Notification.Message
	if msg != "m "+groupMarker {
		t.Fatalf("merged message = %q, want aggregation marker suffix", msg)
	}
	if q[0].Notification.UpdatedAt.IsZero() {
		t.Fatal("merge must refresh UpdatedAt")
	}

	// Outside the window the pair produces a fresh entry.
	clk.Advance(61 * time.Second)
	m.Show(note("n3", "transaction", KindError, PriorityMedium))
	if len(m.Queue()) != 2 {
		t.Fatalf("queue length = %d, want 2 after window elapsed", len(m.Queue()))
	}

	r.stop()
	// n1 promoted, merge event, n3 promoted.
	if got := r.count(isShown); got != 3 {
		t.Fatalf("NotificationShown events = %d, want 3", got)
	}
}

func TestGroupingDisabledKeepsEntriesSeparate(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.GroupingEnabled = false
	m := newTestManager(t, cfg)

	m.Show(note("n1", "transaction", KindError, PriorityMedium))
	m.Show(note("n2", "transaction", KindError, PriorityMedium))
	if len(m.Queue()) != 2 {
		t.Fatalf("queue length = %d, want 2", len(m.Queue()))
	}
}

func TestConcurrencyCap(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.MaxVisible = 2
	cfg.GroupingEnabled = false
	cfg.DefaultDuration = time.Hour
	m := newTestManager(t, cfg)

	for _, id := range []string{"a", "b", "c", "d"} {
		m.Show(note(id, "c"+id, KindInfo, PriorityMedium))
	}

	shown, pending := 0, 0
	for _, e := range m.Queue() {
		if e.Shown {
			shown++
		} else {
			pending++
		}
	}
	if shown != 2 || pending != 2 {
		t.Fatalf("shown=%d pending=%d, want 2/2", shown, pending)
	}

	// Dismissing one visible entry promotes exactly one pending entry.
	m.Dismiss("a")
	shown = 0
	for _, e := range m.Queue() {
		if e.Shown {
			shown++
		}
	}
	if shown != 2 {
		t.Fatalf("shown after dismissal = %d, want 2", shown)
	}
}

func TestAcknowledgeFreesSlot(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.MaxVisible = 1
	cfg.GroupingEnabled = false
	cfg.DefaultDuration = time.Hour
	m := newTestManager(t, cfg)

	m.Show(note("a", "x", KindInfo, PriorityMedium))
	m.Show(note("b", "y", KindInfo, PriorityMedium))

	m.Acknowledge("a")
	q := m.Queue()
	if len(q) != 2 {
		t.Fatalf("queue length = %d, want 2", len(q))
	}
	for _, e := range q {
		if e.Notification.ID == "b" && !e.Shown {
			t.Fatal("acknowledging a visible entry must promote the pending one")
		}
	}
}

func TestAutoDismissScalesByPriority(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.GroupingEnabled = false
	cfg.DefaultDuration = 40 * time.Millisecond
	m := newTestManager(t, cfg)

	m.Show(note("med", "a", KindInfo, PriorityMedium))
	m.Show(note("high", "b", KindInfo, PriorityHigh))
	m.Show(Notification{ID: "keep", Kind: KindInfo, Category: "c", Priority: PriorityMedium, Persistent: true})

	time.Sleep(60 * time.Millisecond)
	if m.indexOf("med") >= 0 {
		t.Fatal("medium entry should be auto-dismissed after D")
	}
	if m.indexOf("high") < 0 {
		t.Fatal("high entry must survive past D (2x duration)")
	}

	time.Sleep(60 * time.Millisecond)
	if m.indexOf("high") >= 0 {
		t.Fatal("high entry should be auto-dismissed after 2D")
	}
	if m.indexOf("keep") < 0 {
		t.Fatal("persistent entry must never be auto-dismissed")
	}
}

func TestAcknowledgeCancelsAutoDismiss(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.DefaultDuration = 30 * time.Millisecond
	m := newTestManager(t, cfg)

	m.Show(note("n1", "a", KindInfo, PriorityMedium))
	m.Acknowledge("n1")

	time.Sleep(80 * time.Millisecond)
	if m.indexOf("n1") < 0 {
		t.Fatal("acknowledged entry must not be removed by the timer")
	}

	// Explicit dismiss still removes it.
	m.Dismiss("n1")
	if m.indexOf("n1") >= 0 {
		t.Fatal("dismiss must remove the entry regardless of acknowledgement")
	}
}

func TestDismissIdempotent(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.DefaultDuration = time.Hour
	m := newTestManager(t, cfg)
	r := record(m)

	m.Show(note("n1", "a", KindInfo, PriorityMedium))
	m.Dismiss("n1")
	m.Dismiss("n1")

	r.stop()
	if got := r.count(isDismissed); got != 1 {
		t.Fatalf("Dismissed events = %d, want 1", got)
	}
}

func TestClearAllSingleQueueEvent(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.GroupingEnabled = false
	cfg.DefaultDuration = time.Hour
	m := newTestManager(t, cfg)

	m.Show(note("a", "x", KindInfo, PriorityMedium))
	m.Show(note("b", "y", KindInfo, PriorityMedium))

	r := record(m)
	m.ClearAll()
	r.stop()

	if got := r.count(isDismissed); got != 0 {
		t.Fatalf("bulk clear must not emit per-entry Dismissed events, got %d", got)
	}
	evs := r.snapshot()
	if len(evs) != 1 {
		t.Fatalf("events after ClearAll = %d, want 1", len(evs))
	}
	qc, ok := evs[0].(QueueChanged)
	if !ok || len(qc.Queue) != 0 {
		t.Fatalf("expected one empty QueueChanged, got %+v", evs[0])
	}
	if len(m.Queue()) != 0 {
		t.Fatal("queue must be empty after ClearAll")
	}
}

func TestSoundAndVibrationPolicy(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.GroupingEnabled = false
	cfg.DefaultDuration = time.Hour
	snd := &fakeSounder{}
	vib := &fakeVibrator{}
	m := newTestManager(t, cfg, WithSound(snd), WithVibrator(vib))

	m.Show(note("err", "a", KindError, PriorityHigh))
	// Low priority is silent; critical skips vibration.
	m.Show(note("quiet", "b", KindInfo, PriorityLow))
	m.Show(note("crit", "c", KindWarning, PriorityCritical))

	// Effects fire on their own goroutines; wait for both emitters to settle.
	patternCount := func() int {
		vib.mu.Lock()
		defer vib.mu.Unlock()
		return len(vib.patterns)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(snd.played()) >= 2 && patternCount() >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	freqs := snd.played()
	if len(freqs) != 2 {
		t.Fatalf("tones played = %d, want 2 (low priority is silent)", len(freqs))
	}
	seen := map[float64]bool{}
	for _, f := range freqs {
		seen[f] = true
	}
	if !seen[kindFrequency(KindError)] || !seen[kindFrequency(KindWarning)] {
		t.Fatalf("tones %v missing expected error/warning frequencies", freqs)
	}

	// high vibrates, low vibrates (short pulse), critical does not.
	if got := patternCount(); got != 2 {
		t.Fatalf("vibration patterns = %d, want 2", got)
	}
}

func TestPreferencesPersistAndReload(t *testing.T) {
	t.Parallel()
	store := &memStore{}
	m := New(DefaultConfig(), store, eventbus.New[Event](), logx.Nop())

	pref := Preference{Enabled: true, Sound: false, MinPriority: PriorityHigh,
		Channels: Channels{InApp: true, Push: true}}
	m.UpdatePreferences("security", pref)

	store.mu.Lock()
	saved := store.doc
	store.mu.Unlock()
	if saved.Version != PreferenceDocVersion {
		t.Fatalf("persisted version = %d, want %d", saved.Version, PreferenceDocVersion)
	}
	if got := saved.Categories["security"]; got != pref {
		t.Fatalf("persisted record = %+v, want %+v", got, pref)
	}

	// A fresh manager sees the stored document.
	m2 := New(DefaultConfig(), store, eventbus.New[Event](), logx.Nop())
	got, ok := m2.Preferences("security")
	if !ok || got != pref {
		t.Fatalf("reloaded record = %+v ok=%v", got, ok)
	}
	if _, ok := m2.Preferences("missing"); ok {
		t.Fatal("missing category must report ok=false")
	}
}

func TestUpdateConfigPartialMerge(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, DefaultConfig())

	dnd := true
	max := 9
	m.UpdateConfig(ConfigPatch{DoNotDisturb: &dnd, MaxVisible: &max})

	cfg := m.Config()
	if !cfg.DoNotDisturb || cfg.MaxVisible != 9 {
		t.Fatalf("patched config = %+v", cfg)
	}
	if cfg.DefaultDuration != DefaultConfig().DefaultDuration {
		t.Fatal("unpatched fields must keep their values")
	}
}

func TestDurationScaling(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.DefaultDuration = 6 * time.Second
	m := newTestManager(t, cfg)

	tests := []struct {
		prio Priority
		want time.Duration
	}{
		{PriorityHigh, 12 * time.Second},
		{PriorityCritical, 12 * time.Second},
		{PriorityMedium, 6 * time.Second},
		{Priority(""), 6 * time.Second},
		{PriorityLow, 3 * time.Second},
	}
	for _, tt := range tests {
		m.mu.Lock()
		got := m.durationForLocked(tt.prio)
		m.mu.Unlock()
		if got != tt.want {
			t.Fatalf("durationFor(%s) = %v, want %v", tt.prio, got, tt.want)
		}
	}
}

// indexOf is a test helper looking up an id in the live queue.
func (m *Manager) indexOf(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexLocked(id)
}
