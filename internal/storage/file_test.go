package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"notigate/internal/notify"
	logx "notigate/pkg/logx"
)

func openTestFileStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "store")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "bogus"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver should fail")
	}
}

func TestFilePreferencesRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestFileStore(t)
	ctx := context.Background()

	// Empty store loads an empty document, not an error.
	doc, err := st.LoadPreferences(ctx)
	if err != nil {
		t.Fatalf("LoadPreferences: %v", err)
	}
	if doc.Version != 0 || len(doc.Categories) != 0 {
		t.Fatalf("fresh doc = %+v, want empty version 0", doc)
	}

	doc = notify.PreferenceDoc{
		Version: notify.PreferenceDocVersion,
		Categories: map[string]notify.Preference{
			"transaction": {Enabled: true, Sound: true, MinPriority: notify.PriorityMedium,
				Channels: notify.Channels{InApp: true, Push: true}},
			"marketing": {Enabled: false},
		},
	}
	if err := st.SavePreferences(ctx, doc); err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}

	got, err := st.LoadPreferences(ctx)
	if err != nil {
		t.Fatalf("LoadPreferences: %v", err)
	}
	if got.Version != notify.PreferenceDocVersion {
		t.Fatalf("version = %d, want %d", got.Version, notify.PreferenceDocVersion)
	}
	if got.Categories["transaction"] != doc.Categories["transaction"] {
		t.Fatalf("transaction record = %+v", got.Categories["transaction"])
	}
	if got.Categories["marketing"].Enabled {
		t.Fatal("marketing should stay disabled")
	}
}

func TestFileHistoryAppendRecentPrune(t *testing.T) {
	t.Parallel()
	st := openTestFileStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		err := st.AppendHistory(ctx, notify.HistoryEntry{
			At:       base.Add(time.Duration(i) * time.Minute),
			ID:       string(rune('a' + i)),
			Kind:     notify.KindInfo,
			Priority: notify.PriorityMedium,
			Category: "transaction",
			Message:  "payment update",
		})
		if err != nil {
			t.Fatalf("AppendHistory: %v", err)
		}
	}

	recent, err := st.RecentHistory(ctx, 3)
	if err != nil {
		t.Fatalf("RecentHistory: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("recent = %d entries, want 3", len(recent))
	}
	if recent[0].ID != "e" {
		t.Fatalf("newest first: got %q, want %q", recent[0].ID, "e")
	}

	// Prune everything older than the last two entries.
	if err := st.PruneHistory(ctx, base.Add(3*time.Minute)); err != nil {
		t.Fatalf("PruneHistory: %v", err)
	}
	recent, err = st.RecentHistory(ctx, 10)
	if err != nil {
		t.Fatalf("RecentHistory after prune: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("after prune = %d entries, want 2", len(recent))
	}

	// Appending still works after the rewrite.
	if err := st.AppendHistory(ctx, notify.HistoryEntry{At: base.Add(time.Hour), ID: "z",
		Kind: notify.KindSuccess, Priority: notify.PriorityHigh, Category: "merchant"}); err != nil {
		t.Fatalf("AppendHistory after prune: %v", err)
	}
	recent, _ = st.RecentHistory(ctx, 10)
	if len(recent) != 3 || recent[0].ID != "z" {
		t.Fatalf("unexpected history after re-append: %+v", recent)
	}
}
