package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"calgrid/internal/calendar"
	"calgrid/internal/config"
	appLog "calgrid/internal/log"
)

const viewCacheSize = 128

// Server exposes the calendar engine over a small JSON API. The engine is
// single-threaded; every handler touching it holds mu.
type Server struct {
	cfg *config.Config
	mux *http.ServeMux

	mu     sync.Mutex
	engine *calendar.Engine

	// generation changes whenever the event source is reloaded so cached
	// stateless views are never served stale.
	generation atomic.Uint64
	views      *lru.Cache[string, calendar.Snapshot]

	registry *prometheus.Registry
	metrics  *metrics
}

// NewServer wires engine into a Server. reg may be nil, in which case a
// private registry is used for /metrics.
func NewServer(cfg *config.Config, engine *calendar.Engine, reg *prometheus.Registry) (*Server, error) {
	if cfg == nil || engine == nil {
		return nil, errors.New("web: config and engine are required")
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	views, err := lru.New[string, calendar.Snapshot](viewCacheSize)
	if err != nil {
		return nil, fmt.Errorf("web: view cache: %w", err)
	}
	m, err := newMetrics(reg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		engine:   engine,
		views:    views,
		registry: reg,
		metrics:  m,
	}

	engine.OnRangeChanged(func(c calendar.RangeChange) {
		appLog.Info("calendar range changed",
			"title", c.Title,
			"start", c.Range.StartTime,
			"end", c.Range.EndTime,
		)
	})
	engine.OnTimeSelected(func(ts calendar.TimeSelected) {
		appLog.Debug("calendar time selected", "time", ts.SelectedTime, "events", len(ts.Events))
	})
	m.events.Set(float64(len(engine.Events())))

	s.registerRoutes()
	return s, nil
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// Reload refreshes the engine's event source (remote loader or local rebuild)
// and invalidates cached views. Used by /api/refresh and the refresher.
func (s *Server) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

// loadLocked must be called with mu held.
func (s *Server) loadLocked(ctx context.Context) error {
	start := time.Now()
	err := s.engine.LoadEvents(ctx)
	s.metrics.reloadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.reloadErrors.Inc()
		return err
	}
	s.invalidate()
	s.metrics.events.Set(float64(len(s.engine.Events())))
	return nil
}

// followRange fetches events for a range the engine just moved to. Local
// query mode already holds every event. mu must be held.
func (s *Server) followRange(ctx context.Context, prevMode calendar.Mode, prev calendar.Range) error {
	if s.engine.Options().QueryMode != calendar.QueryRemote {
		return nil
	}
	if s.engine.Options().Mode == prevMode && s.engine.Range().Equal(prev) {
		return nil
	}
	return s.loadLocked(ctx)
}

func (s *Server) invalidate() {
	s.generation.Add(1)
	s.views.Purge()
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth instead of locking everyone out.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="calgrid", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.handle("GET /health", "health", s.handleHealth)
	s.handle("GET /api/view", "view", s.handleView)
	s.handle("GET /api/state", "state", s.handleState)
	s.handle("POST /api/select", "select", s.handleSelect)
	s.handle("POST /api/navigate", "navigate", s.handleNavigate)
	s.handle("POST /api/mode", "mode", s.handleMode)
	s.handle("POST /api/refresh", "refresh", s.handleRefresh)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

func (s *Server) handle(pattern, route string, h http.HandlerFunc) {
	s.mux.Handle(pattern, s.metrics.instrument(route, h))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// stateResponse is the JSON shape of the engine state.
type stateResponse struct {
	Mode          calendar.Mode          `json:"mode"`
	Title         string                 `json:"title"`
	Range         calendar.Range         `json:"range"`
	ReferenceDate time.Time              `json:"referenceDate"`
	Selection     *calendar.TimeSelected `json:"selection,omitempty"`
	View          calendar.View          `json:"view"`
}

// state must be called with mu held.
func (s *Server) state() stateResponse {
	resp := stateResponse{
		Mode:          s.engine.Options().Mode,
		Title:         s.engine.Title(),
		Range:         s.engine.Range(),
		ReferenceDate: s.engine.ReferenceDate(),
		View:          s.engine.View(),
	}
	if ts, ok := s.engine.Selection(); ok {
		resp.Selection = &ts
	}
	return resp
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	resp := s.state()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

// handleView renders a stateless view.
//
// GET /api/view?mode=week&date=2024-03-15
//   - mode: day, week or month (default: the engine's mode)
//   - date: RFC3339 or YYYY-MM-DD in the configured timezone (default: today)
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc := s.cfg.Location()

	s.mu.Lock()
	opts := s.engine.Options()
	events := s.engine.Events()
	s.mu.Unlock()

	if m := strings.TrimSpace(q.Get("mode")); m != "" {
		opts.Mode = calendar.Mode(strings.ToLower(m))
	}
	ref := opts.Now()
	if d := q.Get("date"); d != "" {
		t, err := parseDate(d, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ref = t
	}

	gen := s.generation.Load()
	key := fmt.Sprintf("%s|%s|%d", opts.Mode, ref.In(loc).Format("2006-01-02"), gen)
	if snap, ok := s.views.Get(key); ok {
		s.metrics.viewCache.WithLabelValues("hit").Inc()
		writeJSON(w, http.StatusOK, snap)
		return
	}
	s.metrics.viewCache.WithLabelValues("miss").Inc()

	if opts.QueryMode == calendar.QueryRemote && opts.Loader != nil {
		span, err := calendar.VisibleSpan(ref, opts)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		loaded, err := opts.Loader.LoadEvents(r.Context(), span)
		if err != nil {
			appLog.Error("api view: load events failed", err, "mode", opts.Mode)
			writeError(w, http.StatusBadGateway, "failed to load events")
			return
		}
		events = loaded
	}

	snap, err := calendar.Render(events, ref, opts)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if s.generation.Load() == gen {
		s.views.Add(key, snap)
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleSelect selects the cell holding ?date=.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	t, err := parseDate(r.URL.Query().Get("date"), s.cfg.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	ts, err := s.engine.SelectCell(t)
	s.mu.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

// handleNavigate moves the engine: ?to=next|prev|today|<date>.
func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	to := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("to")))

	s.mu.Lock()
	defer s.mu.Unlock()

	prevMode, prev := s.engine.Options().Mode, s.engine.Range()
	var err error
	switch to {
	case "next":
		err = s.engine.Next()
	case "prev", "previous":
		err = s.engine.Previous()
	case "today", "":
		err = s.engine.Today()
	default:
		var t time.Time
		if t, err = parseDate(to, s.cfg.Location()); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		err = s.engine.SetReferenceDate(t)
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.respondAfterMove(w, r, prevMode, prev)
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	mode := calendar.Mode(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("mode"))))

	s.mu.Lock()
	defer s.mu.Unlock()

	prevMode, prev := s.engine.Options().Mode, s.engine.Range()
	if err := s.engine.SetMode(mode); err != nil {
		writeEngineError(w, err)
		return
	}
	s.respondAfterMove(w, r, prevMode, prev)
}

// respondAfterMove loads events for the new range and writes the state. A
// failed load still leaves the engine on the new range. mu must be held.
func (s *Server) respondAfterMove(w http.ResponseWriter, r *http.Request, prevMode calendar.Mode, prev calendar.Range) {
	if err := s.followRange(r.Context(), prevMode, prev); err != nil {
		appLog.Error("load events for new range failed", err, "mode", s.engine.Options().Mode)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.Reload(r.Context()); err != nil {
		appLog.Error("api refresh failed", err)
		var cfgErr *calendar.ConfigurationError
		if errors.As(err, &cfgErr) {
			writeEngineError(w, err)
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.mu.Lock()
	resp := s.state()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

// parseDate accepts RFC3339 timestamps and YYYY-MM-DD dates in loc.
func parseDate(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("date is required")
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.In(loc), nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC3339", v)
	}
	return t, nil
}

// writeEngineError maps calendar errors onto status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	var (
		cfgErr *calendar.ConfigurationError
		selErr *calendar.SelectionError
	)
	switch {
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &selErr):
		writeError(w, http.StatusConflict, err.Error())
	default:
		appLog.Error("calendar operation failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
