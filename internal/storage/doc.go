// Package storage persists the preference document and the notification
// delivery history.
//
// Two backends are available, selected by config:
//   - "file": snapshot JSON for preferences + append-only JSONL history
//   - "sqlite": a single SQLite database file
//
// Both are best-effort from the manager's point of view: callers log and
// swallow errors, and a disabled store (driver "none") is a valid setup.
package storage
