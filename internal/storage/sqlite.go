package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"notigate/internal/notify"
	logx "notigate/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const versionMetaKey = "prefs_version"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadPreferences(ctx context.Context) (notify.PreferenceDoc, error) {
	doc := notify.PreferenceDoc{Categories: map[string]notify.Preference{}}
	if s == nil || s.db == nil {
		return doc, ErrDisabled
	}

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, versionMetaKey).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		doc.Version = 0
	case err != nil:
		return doc, err
	default:
		doc.Version, _ = strconv.Atoi(raw)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT category, enabled, sound, in_app, email, sms, push, min_priority FROM preferences`)
	if err != nil {
		return doc, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			category    string
			p           notify.Preference
			minPriority sql.NullString
		)
		if err := rows.Scan(&category, &p.Enabled, &p.Sound,
			&p.Channels.InApp, &p.Channels.Email, &p.Channels.SMS, &p.Channels.Push,
			&minPriority); err != nil {
			return doc, err
		}
		if minPriority.Valid {
			p.MinPriority = notify.Priority(minPriority.String)
		}
		doc.Categories[category] = p
	}
	return doc, rows.Err()
}

func (s *sqliteStore) SavePreferences(ctx context.Context, doc notify.PreferenceDoc) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM preferences`); err != nil {
		return err
	}
	for category, p := range doc.Categories {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO preferences(category, enabled, sound, in_app, email, sms, push, min_priority)
			 VALUES(?,?,?,?,?,?,?,?)`,
			category, p.Enabled, p.Sound,
			p.Channels.InApp, p.Channels.Email, p.Channels.SMS, p.Channels.Push,
			nullStr(string(p.MinPriority)),
		)
		if err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		versionMetaKey, strconv.Itoa(doc.Version),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) AppendHistory(ctx context.Context, e notify.HistoryEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history(at, nid, kind, priority, category, title, message)
		 VALUES(?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.ID, string(e.Kind), string(e.Priority),
		e.Category, nullStr(e.Title), nullStr(e.Message),
	)
	return err
}

func (s *sqliteStore) RecentHistory(ctx context.Context, limit int) ([]notify.HistoryEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, nid, kind, priority, category, title, message
		 FROM history ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notify.HistoryEntry
	for rows.Next() {
		var (
			at             string
			e              notify.HistoryEntry
			title, message sql.NullString
		)
		if err := rows.Scan(&at, &e.ID, &e.Kind, &e.Priority, &e.Category, &title, &message); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			e.At = t
		}
		e.Title = title.String
		e.Message = message.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PruneHistory(ctx context.Context, olderThan time.Time) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE at < ?`,
		olderThan.Format(time.RFC3339Nano))
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
