package notify

import (
	"context"
	"time"

	logx "notigate/pkg/logx"
)

// dismissTimer wraps the auto-dismiss time.AfterFunc handle. Stop is
// idempotent and nil-safe, so acknowledge/dismiss can cancel without
// caring whether the other side already did.
type dismissTimer struct {
	t *time.Timer
}

func newDismissTimer(d time.Duration, fn func()) *dismissTimer {
	return &dismissTimer{t: time.AfterFunc(d, fn)}
}

func (d *dismissTimer) Stop() {
	if d == nil || d.t == nil {
		return
	}
	d.t.Stop()
}

// dispatchLocked promotes pending entries to visible, FIFO, up to the
// concurrency cap. Acknowledged entries do not count against the cap.
func (m *Manager) dispatchLocked() {
	active := 0
	for _, e := range m.queue {
		if e.shown && !e.acknowledged {
			active++
		}
	}
	slots := m.cfg.MaxVisible - active
	if slots <= 0 {
		return
	}

	for _, e := range m.queue {
		if slots == 0 {
			return
		}
		if e.shown {
			continue
		}
		e.shown = true
		slots--
		m.promoteLocked(e)
	}
}

// promoteLocked fires the visible-notification side effects for e: the
// NotificationShown event, best-effort sound/vibration, the history record,
// and the auto-dismiss timer (unless persistent).
func (m *Manager) promoteLocked(e *entry) {
	n := e.n
	m.bus.Publish(NotificationShown{Notification: n})

	playSound := m.cfg.SoundEnabled && n.Priority != PriorityLow && m.soundAllowedLocked(n.Category)
	vibPattern := []time.Duration(nil)
	if m.cfg.VibrationEnabled {
		vibPattern = vibrationPattern(n.Priority)
	}
	// Side effects and history writes run off the lock; they must never
	// delay or fail notification delivery.
	go m.fireEffects(n, playSound, vibPattern)
	go m.recordHistory(n)

	if !n.Persistent {
		dur := m.durationForLocked(n.Priority)
		e.timer = newDismissTimer(dur, func() { m.dismissExpired(e) })
	}
}

// soundAllowedLocked checks the per-category sound toggle. Categories with
// no stored record default to sound on.
func (m *Manager) soundAllowedLocked(category string) bool {
	pref, ok := m.prefs.Categories[category]
	if !ok {
		return true
	}
	return pref.Sound
}

// durationForLocked scales the configured default by priority:
// high and critical double it, low halves it, medium keeps it.
func (m *Manager) durationForLocked(p Priority) time.Duration {
	base := m.cfg.DefaultDuration
	switch p {
	case PriorityHigh, PriorityCritical:
		return base * 2
	case PriorityLow:
		return base / 2
	default:
		return base
	}
}

// kindFrequency maps a notification kind to its tone frequency. Each kind
// gets a distinct pitch so alerts are tellable apart without looking.
func kindFrequency(k Kind) float64 {
	switch k {
	case KindSuccess:
		return 880
	case KindError:
		return 220
	case KindWarning:
		return 440
	default:
		return 660
	}
}

const toneDuration = 150 * time.Millisecond

// vibrationPattern maps priority to pulse/pause durations.
//
// Critical deliberately returns nil: the upstream product switches only on
// high/medium/low, so critical gets no vibration. Kept as-is pending a
// product decision.
func vibrationPattern(p Priority) []time.Duration {
	const unit = 100 * time.Millisecond
	switch p {
	case PriorityHigh:
		return []time.Duration{2 * unit, unit, unit, unit, 2 * unit} // long-short-long
	case PriorityMedium:
		return []time.Duration{2 * unit}
	case PriorityLow:
		return []time.Duration{unit}
	default:
		return nil
	}
}

func (m *Manager) fireEffects(n Notification, playSound bool, vibPattern []time.Duration) {
	if playSound && m.sound != nil && m.sound.Available() {
		if err := m.sound.Play(kindFrequency(n.Kind), toneDuration); err != nil {
			m.log.Debug("sound playback failed", logx.String("id", n.ID), logx.Err(err))
		}
	}
	if len(vibPattern) > 0 && m.vib != nil && m.vib.Available() {
		if err := m.vib.Vibrate(vibPattern); err != nil {
			m.log.Debug("vibration failed", logx.String("id", n.ID), logx.Err(err))
		}
	}
}

func (m *Manager) recordHistory(n Notification) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := m.store.AppendHistory(ctx, HistoryEntry{
		At:       n.CreatedAt,
		ID:       n.ID,
		Kind:     n.Kind,
		Priority: n.Priority,
		Category: n.Category,
		Title:    n.Title,
		Message:  n.Message,
	})
	if err != nil {
		m.log.Debug("history append failed", logx.String("id", n.ID), logx.Err(err))
	}
}
