package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"notigate/internal/notify"
	logx "notigate/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.prefs.json     (preference document snapshot, atomic rewrite)
//   - <prefix>.history.jsonl  (append-only JSON Lines)
//
// Preferences are low-volume (one write per settings change), so a full
// snapshot rewrite on every save is fine.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	prefsPath   string
	historyPath string
	historyFile *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	historyPath := prefix + ".history.jsonl"
	hf, err := os.OpenFile(historyPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:         log,
		prefsPath:   prefix + ".prefs.json",
		historyPath: historyPath,
		historyFile: hf,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile != nil {
		err := s.historyFile.Close()
		s.historyFile = nil
		return err
	}
	return nil
}

func (s *fileStore) LoadPreferences(ctx context.Context) (notify.PreferenceDoc, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := notify.PreferenceDoc{Categories: map[string]notify.Preference{}}
	b, err := os.ReadFile(s.prefsPath)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return notify.PreferenceDoc{Categories: map[string]notify.Preference{}}, err
	}
	if doc.Categories == nil {
		doc.Categories = map[string]notify.Preference{}
	}
	return doc, nil
}

func (s *fileStore) SavePreferences(ctx context.Context, doc notify.PreferenceDoc) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	// Write-then-rename so a crash mid-write can't corrupt the snapshot.
	tmp := s.prefsPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.prefsPath)
}

func (s *fileStore) AppendHistory(ctx context.Context, e notify.HistoryEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return errors.New("history file closed")
	}
	return json.NewEncoder(s.historyFile).Encode(e)
}

func (s *fileStore) RecentHistory(ctx context.Context, limit int) ([]notify.HistoryEntry, error) {
	_ = ctx
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readHistoryLocked()
	if err != nil {
		return nil, err
	}
	// Newest last on disk; return newest first.
	out := make([]notify.HistoryEntry, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

func (s *fileStore) PruneHistory(ctx context.Context, olderThan time.Time) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readHistoryLocked()
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if !e.At.Before(olderThan) {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return nil
	}
	return s.rewriteHistoryLocked(kept)
}

func (s *fileStore) readHistoryLocked() ([]notify.HistoryEntry, error) {
	f, err := os.Open(s.historyPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []notify.HistoryEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e notify.HistoryEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			// Skip corrupt lines instead of failing the whole read.
			s.log.Debug("skipping corrupt history line", logx.Err(err))
			continue
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

// rewriteHistoryLocked replaces the jsonl with the kept entries and reopens
// the append handle.
func (s *fileStore) rewriteHistoryLocked(entries []notify.HistoryEntry) error {
	if s.historyFile != nil {
		_ = s.historyFile.Close()
		s.historyFile = nil
	}

	tmp := s.historyPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.historyPath); err != nil {
		return err
	}

	hf, err := os.OpenFile(s.historyPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	s.historyFile = hf
	return nil
}
