// Package redisfeed consumes push envelopes from a Redis pub/sub channel
// and hands the translated notifications to the manager.
package redisfeed

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"notigate/internal/notify"
	"notigate/internal/push"
	"notigate/internal/runtime/supervisor"
	logx "notigate/pkg/logx"
)

// Sink receives translated notifications. Satisfied by notify.Manager.
type Sink interface {
	Show(n notify.Notification)
}

type Config struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Channel  string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(c.Channel) == "" {
		c.Channel = "notifications"
	}
	return c
}

// Feed is the Redis subscriber. It reconnects on its own; a dropped
// connection surfaces to the user as a system notification rather than an
// error return.
type Feed struct {
	cfg  Config
	sink Sink
	log  logx.Logger

	mu        sync.Mutex
	client    *redis.Client
	sup       *supervisor.Supervisor
	connected bool
	sawDrop   bool
	running   bool
}

func New(cfg Config, sink Sink, log logx.Logger) *Feed {
	return &Feed{cfg: cfg.withDefaults(), sink: sink, log: log}
}

func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return nil
	}
	if !f.cfg.Enabled {
		f.log.Info("push feed disabled")
		return nil
	}

	f.client = redis.NewClient(&redis.Options{
		Addr:     f.cfg.Addr,
		Password: f.cfg.Password,
		DB:       f.cfg.DB,
	})
	f.sup = supervisor.New(ctx, supervisor.WithLogger(f.log))
	f.sup.GoRestart("redisfeed.consume", f.consume,
		supervisor.WithRestartBackoff(time.Second, 30*time.Second),
		supervisor.WithStopOnCleanExit(false),
	)
	f.running = true
	f.log.Info("push feed started",
		logx.String("addr", f.cfg.Addr),
		logx.String("channel", f.cfg.Channel))
	return nil
}

func (f *Feed) Stop(ctx context.Context) error {
	f.mu.Lock()
	sup, client := f.sup, f.client
	f.sup, f.client = nil, nil
	f.running = false
	f.connected = false
	f.mu.Unlock()

	if sup == nil {
		return nil
	}
	err := sup.Stop(ctx)
	if client != nil {
		_ = client.Close()
	}
	return err
}

// consume holds one subscription for its lifetime. Returning an error hands
// control back to the restart loop, which backs off and calls us again.
func (f *Feed) consume(ctx context.Context) error {
	f.mu.Lock()
	client := f.client
	f.mu.Unlock()
	if client == nil {
		return nil
	}

	if err := client.Ping(ctx).Err(); err != nil {
		f.noteDisconnected(err)
		return err
	}

	sub := client.Subscribe(ctx, f.cfg.Channel)
	defer func() { _ = sub.Close() }()

	// Force the subscribe round trip so a dead server fails here, not on
	// the first receive.
	if _, err := sub.Receive(ctx); err != nil {
		f.noteDisconnected(err)
		return err
	}
	f.noteConnected()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				err := errors.New("subscription closed")
				f.noteDisconnected(err)
				return err
			}
			f.handle(msg.Payload)
		}
	}
}

func (f *Feed) handle(payload string) {
	var env push.Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		f.log.Warn("malformed push envelope", logx.Err(err))
		return
	}

	n, known, err := push.Translate(env)
	if !known {
		f.log.Debug("unknown push kind dropped", logx.String("type", env.Type))
		return
	}
	if err != nil {
		f.log.Warn("bad push payload",
			logx.String("type", env.Type), logx.Err(err))
		return
	}
	f.sink.Show(n)
}

func (f *Feed) noteConnected() {
	f.mu.Lock()
	restored := f.sawDrop
	f.connected = true
	f.sawDrop = false
	f.mu.Unlock()

	f.log.Info("push feed connected", logx.String("addr", f.cfg.Addr))
	// Only announce recovery; the first connect is silent.
	if restored {
		f.sink.Show(push.ConnectionNotification(true, ""))
	}
}

func (f *Feed) noteDisconnected(cause error) {
	f.mu.Lock()
	wasUp := f.connected
	f.connected = false
	if wasUp {
		f.sawDrop = true
	}
	f.mu.Unlock()

	if wasUp {
		f.log.Warn("push feed disconnected", logx.Err(cause))
		detail := ""
		if cause != nil {
			detail = cause.Error()
		}
		f.sink.Show(push.ConnectionNotification(false, detail))
	}
}

// Connected reports whether the subscription is currently live.
func (f *Feed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}
