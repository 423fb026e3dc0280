// Package app wires the daemon together: config, logging, storage, the
// notification manager, the push feed, the control API, and housekeeping.
package app

import (
	"context"
	"fmt"
	"time"

	"notigate/internal/config"
	"notigate/internal/effects"
	"notigate/internal/eventbus"
	"notigate/internal/httpapi"
	"notigate/internal/janitor"
	"notigate/internal/notify"
	"notigate/internal/push/redisfeed"
	"notigate/internal/runtime/supervisor"
	"notigate/internal/storage"
	logx "notigate/pkg/logx"
)

type App struct {
	cfgm   *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store storage.Store
	bus   *eventbus.Bus[notify.Event]
	mgr   *notify.Manager
	feed  *redisfeed.Feed
	api   *httpapi.Server
	jan   *janitor.Service

	sup *supervisor.Supervisor
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	store, err := openStorage(cfg.Storage, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	notifyCfg, err := notifyConfig(cfg.Notify)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	bus := eventbus.New[notify.Event]()
	mgr := notify.New(notifyCfg, storeOrNil(store), bus,
		log.With(logx.String("comp", "notify")),
		notify.WithSound(effects.NewPlayer(log.With(logx.String("comp", "sound")))),
		notify.WithVibrator(effects.NewMotor(cfg.Effects.VibrationDevice,
			log.With(logx.String("comp", "vibra")))),
	)

	feed := redisfeed.New(redisfeed.Config{
		Enabled:  cfg.Feed.Enabled,
		Addr:     cfg.Feed.Addr,
		Password: cfg.Feed.Password,
		DB:       cfg.Feed.DB,
		Channel:  cfg.Feed.Channel,
	}, mgr, log.With(logx.String("comp", "feed")))

	api := httpapi.New(httpapi.Config{
		Enabled: cfg.HTTP.Enabled,
		Addr:    cfg.HTTP.Addr,
	}, mgr, historyOrNil(store), log.With(logx.String("comp", "http")))

	retention, err := config.ParseDurationOrDefault("janitor.retention", cfg.Janitor.Retention, 30*24*time.Hour)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	jan := janitor.New(janitor.Config{
		Enabled:   cfg.Janitor.Enabled,
		Schedule:  cfg.Janitor.Schedule,
		Retention: retention,
	}, prunerOrNil(store), mgr, log.With(logx.String("comp", "janitor")))

	return &App{
		cfgm:   cfgm,
		logSvc: logSvc,
		log:    log,
		store:  store,
		bus:    bus,
		mgr:    mgr,
		feed:   feed,
		api:    api,
		jan:    jan,
	}, nil
}

// Manager exposes the notification manager, mainly for tests.
func (a *App) Manager() *notify.Manager { return a.mgr }

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))

	if err := a.api.Start(ctx); err != nil {
		return err
	}
	if err := a.jan.Start(ctx); err != nil {
		return err
	}
	if err := a.feed.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("config.apply", func(ctx context.Context) {
		sub := a.cfgm.Subscribe(4)
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.apply(cfg)
			}
		}
	})

	a.log.Info("daemon started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	keep(a.feed.Stop(ctx))
	keep(a.jan.Stop(ctx))
	keep(a.api.Stop(ctx))
	if a.sup != nil {
		keep(a.sup.Stop(ctx))
	}
	a.mgr.ClearAll()
	if a.store != nil {
		keep(a.store.Close())
	}
	a.log.Info("daemon stopped")
	keep(a.logSvc.Close())
	return firstErr
}

// apply pushes a reloaded config into the running services. Logging and
// notification behavior change live; feed, API, and janitor endpoints keep
// their boot settings until restart.
func (a *App) apply(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logSvc.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	patch, err := notifyPatch(cfg.Notify)
	if err != nil {
		a.log.Warn("notify config rejected", logx.Err(err))
		return
	}
	a.mgr.UpdateConfig(patch)
	a.log.Info("config applied")
}

func openStorage(sc *config.StorageConfig, log logx.Logger) (storage.Store, error) {
	if sc == nil {
		return nil, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return nil, err
	}
	return storage.Open(storage.Config{
		Driver:      sc.Driver,
		Path:        sc.Path,
		BusyTimeout: busy,
	}, log)
}

// The nil-interface dance: storage.Open returns a typed nil-able interface,
// and downstream consumers take their own narrow interfaces. Hand them
// untyped nils when persistence is off so their nil checks work.

func storeOrNil(st storage.Store) notify.Store {
	if st == nil {
		return nil
	}
	return st
}

func historyOrNil(st storage.Store) httpapi.HistoryStore {
	if st == nil {
		return nil
	}
	return st
}

func prunerOrNil(st storage.Store) janitor.Pruner {
	if st == nil {
		return nil
	}
	return st
}

func notifyConfig(nc config.NotifyConfig) (notify.Config, error) {
	cfg := notify.DefaultConfig()
	if nc.MaxVisible > 0 {
		cfg.MaxVisible = nc.MaxVisible
	}
	d, err := config.ParseDurationOrDefault("notify.default_duration", nc.DefaultDuration, cfg.DefaultDuration)
	if err != nil {
		return cfg, err
	}
	cfg.DefaultDuration = d
	w, err := config.ParseDurationOrDefault("notify.group_window", nc.GroupWindow, cfg.GroupWindow)
	if err != nil {
		return cfg, err
	}
	cfg.GroupWindow = w
	cfg.SoundEnabled = nc.Sound
	cfg.VibrationEnabled = nc.Vibration
	cfg.GroupingEnabled = nc.Grouping
	cfg.DoNotDisturb = nc.DoNotDisturb
	cfg.QuietStart = nc.QuietStart
	cfg.QuietEnd = nc.QuietEnd
	return cfg, nil
}

func notifyPatch(nc config.NotifyConfig) (notify.ConfigPatch, error) {
	cfg, err := notifyConfig(nc)
	if err != nil {
		return notify.ConfigPatch{}, err
	}
	return notify.ConfigPatch{
		MaxVisible:       &cfg.MaxVisible,
		DefaultDuration:  &cfg.DefaultDuration,
		SoundEnabled:     &cfg.SoundEnabled,
		VibrationEnabled: &cfg.VibrationEnabled,
		GroupingEnabled:  &cfg.GroupingEnabled,
		GroupWindow:      &cfg.GroupWindow,
		DoNotDisturb:     &cfg.DoNotDisturb,
		QuietStart:       &cfg.QuietStart,
		QuietEnd:         &cfg.QuietEnd,
	}, nil
}
