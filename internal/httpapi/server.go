// Package httpapi exposes the local control surface: queue inspection,
// acknowledge/dismiss, preferences, runtime config, history, and an SSE
// stream of lifecycle events.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"notigate/internal/notify"
	logx "notigate/pkg/logx"
)

// HistoryStore is the slice of the storage layer the API reads. Nil means
// persistence is disabled.
type HistoryStore interface {
	RecentHistory(ctx context.Context, limit int) ([]notify.HistoryEntry, error)
}

type Config struct {
	Enabled bool
	Addr    string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = "127.0.0.1:8321"
	}
	return c
}

type Server struct {
	cfg     Config
	mgr     *notify.Manager
	history HistoryStore
	log     logx.Logger

	mu   sync.Mutex
	srv  *http.Server
	done chan struct{}
}

func New(cfg Config, mgr *notify.Manager, history HistoryStore, log logx.Logger) *Server {
	return &Server{cfg: cfg.withDefaults(), mgr: mgr, history: history, log: log}
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}
	if !s.cfg.Enabled {
		s.log.Info("http api disabled")
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	s.srv = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.done = make(chan struct{})
	done := s.done
	srv := s.srv

	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http api stopped", logx.Err(err))
		}
	}()
	s.log.Info("http api listening", logx.String("addr", ln.Addr().String()))
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv, s.done = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	return err
}

// Router builds the full route tree. Exposed for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(withRequestID)
	r.Use(requestLogger(s.log))
	r.Use(recoverer(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/notifications", func(r chi.Router) {
			r.Post("/", s.handleShow)
			r.Get("/", s.handleQueue)
			r.Get("/unread_count", s.handleUnreadCount)
			r.Post("/{id}/ack", s.handleAcknowledge)
			r.Delete("/{id}", s.handleDismiss)
			r.Delete("/", s.handleClearAll)
		})
		r.Get("/preferences", s.handlePreferences)
		r.Put("/preferences/{category}", s.handleUpdatePreferences)
		r.Get("/config", s.handleConfig)
		r.Patch("/config", s.handleUpdateConfig)
		r.Get("/history", s.handleHistory)
		r.Get("/events", s.handleEvents)
	})
	return r
}

func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	var n notify.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		fail(w, r, http.StatusBadRequest, "invalid_payload", "invalid notification payload")
		return
	}
	if strings.TrimSpace(n.Title) == "" && strings.TrimSpace(n.Message) == "" {
		fail(w, r, http.StatusBadRequest, "invalid_payload", "title or message is required")
		return
	}
	s.mgr.Show(n)
	accepted(w, r, map[string]string{"status": "queued"})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	q := s.mgr.Queue()
	if q == nil {
		q = []notify.Entry{}
	}
	success(w, r, q)
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	success(w, r, map[string]int{"unread": s.mgr.UnreadCount()})
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	s.mgr.Acknowledge(chi.URLParam(r, "id"))
	success(w, r, map[string]string{"status": "acknowledged"})
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	s.mgr.Dismiss(chi.URLParam(r, "id"))
	success(w, r, map[string]string{"status": "dismissed"})
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	s.mgr.ClearAll()
	success(w, r, map[string]string{"status": "cleared"})
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	success(w, r, s.mgr.PreferenceSnapshot())
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	var p notify.Preference
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		fail(w, r, http.StatusBadRequest, "invalid_payload", "invalid preference payload")
		return
	}
	s.mgr.UpdatePreferences(category, p)
	success(w, r, map[string]string{"status": "updated"})
}

// configView is the wire form of the runtime config; durations travel as
// milliseconds.
type configView struct {
	MaxVisible        int    `json:"maxVisible"`
	DefaultDurationMS int64  `json:"defaultDurationMs"`
	SoundEnabled      bool   `json:"soundEnabled"`
	VibrationEnabled  bool   `json:"vibrationEnabled"`
	GroupingEnabled   bool   `json:"groupingEnabled"`
	GroupWindowMS     int64  `json:"groupWindowMs"`
	DoNotDisturb      bool   `json:"doNotDisturb"`
	QuietStart        string `json:"quietStart"`
	QuietEnd          string `json:"quietEnd"`
}

type configPatch struct {
	MaxVisible        *int    `json:"maxVisible"`
	DefaultDurationMS *int64  `json:"defaultDurationMs"`
	SoundEnabled      *bool   `json:"soundEnabled"`
	VibrationEnabled  *bool   `json:"vibrationEnabled"`
	GroupingEnabled   *bool   `json:"groupingEnabled"`
	GroupWindowMS     *int64  `json:"groupWindowMs"`
	DoNotDisturb      *bool   `json:"doNotDisturb"`
	QuietStart        *string `json:"quietStart"`
	QuietEnd          *string `json:"quietEnd"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	c := s.mgr.Config()
	success(w, r, configView{
		MaxVisible:        c.MaxVisible,
		DefaultDurationMS: c.DefaultDuration.Milliseconds(),
		SoundEnabled:      c.SoundEnabled,
		VibrationEnabled:  c.VibrationEnabled,
		GroupingEnabled:   c.GroupingEnabled,
		GroupWindowMS:     c.GroupWindow.Milliseconds(),
		DoNotDisturb:      c.DoNotDisturb,
		QuietStart:        c.QuietStart,
		QuietEnd:          c.QuietEnd,
	})
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var in configPatch
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		fail(w, r, http.StatusBadRequest, "invalid_payload", "invalid config patch")
		return
	}

	var p notify.ConfigPatch
	p.MaxVisible = in.MaxVisible
	p.SoundEnabled = in.SoundEnabled
	p.VibrationEnabled = in.VibrationEnabled
	p.GroupingEnabled = in.GroupingEnabled
	p.DoNotDisturb = in.DoNotDisturb
	p.QuietStart = in.QuietStart
	p.QuietEnd = in.QuietEnd
	if in.DefaultDurationMS != nil {
		d := time.Duration(*in.DefaultDurationMS) * time.Millisecond
		p.DefaultDuration = &d
	}
	if in.GroupWindowMS != nil {
		d := time.Duration(*in.GroupWindowMS) * time.Millisecond
		p.GroupWindow = &d
	}
	s.mgr.UpdateConfig(p)
	s.handleConfig(w, r)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		fail(w, r, http.StatusServiceUnavailable, "history_disabled", "persistence is disabled")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}
	entries, err := s.history.RecentHistory(r.Context(), limit)
	if err != nil {
		fail(w, r, http.StatusInternalServerError, "history_failed", "failed to read history")
		return
	}
	if entries == nil {
		entries = []notify.HistoryEntry{}
	}
	success(w, r, entries)
}
