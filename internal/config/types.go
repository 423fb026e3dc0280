package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Logging LoggingConfig  `json:"logging"`
	Notify  NotifyConfig   `json:"notify"`
	Storage *StorageConfig `json:"storage,omitempty"`
	Feed    FeedConfig     `json:"feed"`
	HTTP    HTTPConfig     `json:"http"`
	Janitor JanitorConfig  `json:"janitor"`
	Effects EffectsConfig  `json:"effects,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// NotifyConfig controls the queue and dispatcher. All durations are Go
// duration strings (e.g. "6s", "1m").
type NotifyConfig struct {
	MaxVisible      int    `json:"max_visible,omitempty"`
	DefaultDuration string `json:"default_duration,omitempty"`
	Sound           bool   `json:"sound"`
	Vibration       bool   `json:"vibration"`
	Grouping        bool   `json:"grouping"`
	GroupWindow     string `json:"group_window,omitempty"`
	DoNotDisturb    bool   `json:"do_not_disturb"`

	// Quiet hours as "HH:MM" wall-clock bounds; both empty disables them.
	QuietStart string `json:"quiet_start,omitempty"`
	QuietEnd   string `json:"quiet_end,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./notigate.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// FeedConfig controls the Redis push subscription.
type FeedConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Channel  string `json:"channel,omitempty"`
}

// HTTPConfig controls the local control API.
//
// Bind to loopback unless you know what you are doing; the API is
// unauthenticated.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8321"
}

type JanitorConfig struct {
	Enabled   bool   `json:"enabled"`
	Schedule  string `json:"schedule,omitempty"`  // cron spec or descriptor, default "@daily"
	Retention string `json:"retention,omitempty"` // Go duration string, default 720h
}

type EffectsConfig struct {
	// VibrationDevice is the haptic activation node
	// (e.g. /sys/class/timed_output/vibrator/enable). Empty disables
	// vibration hardware lookup.
	VibrationDevice string `json:"vibration_device,omitempty"`
}

// Validate rejects configs that would fail later at service start.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	for _, f := range []struct{ path, raw string }{
		{"notify.default_duration", cfg.Notify.DefaultDuration},
		{"notify.group_window", cfg.Notify.GroupWindow},
		{"janitor.retention", cfg.Janitor.Retention},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if cfg.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return err
		}
		switch strings.TrimSpace(strings.ToLower(cfg.Storage.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
		}
	}
	for _, f := range []struct{ path, raw string }{
		{"notify.quiet_start", cfg.Notify.QuietStart},
		{"notify.quiet_end", cfg.Notify.QuietEnd},
	} {
		if err := validateClock(f.path, f.raw); err != nil {
			return err
		}
	}
	return nil
}

func validateClock(path, raw string) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if _, err := time.Parse("15:04", s); err != nil {
		return fmt.Errorf("%s: invalid clock %q (want HH:MM)", path, raw)
	}
	return nil
}
