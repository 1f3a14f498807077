// Package server exposes the coaching engine over HTTP.
//
// REST routes list poses and stored session summaries; /v1/ws carries one
// live coaching session per WebSocket connection. The handler tree is
// wrapped in [observe.Middleware] so every request gets a span, a
// correlation id and a latency sample.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Pavna06/Yogi.AI/internal/health"
	"github.com/Pavna06/Yogi.AI/internal/observe"
	"github.com/Pavna06/Yogi.AI/internal/rules"
	"github.com/Pavna06/Yogi.AI/internal/session"
	"github.com/Pavna06/Yogi.AI/pkg/pose"
)

// DefaultListLimit caps GET /v1/sessions when no limit is given.
const DefaultListLimit = 20

// Option configures a [Server].
type Option func(*Server)

// WithHealth mounts /healthz and /readyz from h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler mounts h at /metrics, typically promhttp.Handler().
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithMetrics sets the metrics sink used by the middleware. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithOriginPatterns allows WebSocket upgrades from the given host patterns
// in addition to same-origin requests.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = patterns }
}

// WithLeadTime lets each clip reach the client this long before the previous
// one has finished, so the browser can buffer it.
func WithLeadTime(d time.Duration) Option {
	return func(s *Server) { s.leadTime = d }
}

// Server routes HTTP and WebSocket traffic to a [session.Manager].
type Server struct {
	manager        *session.Manager
	health         *health.Handler
	metricsHandler http.Handler
	metrics        *observe.Metrics
	log            *slog.Logger
	origins        []string
	leadTime       time.Duration

	handler http.Handler
}

// New creates a Server for manager.
func New(manager *session.Manager, opts ...Option) *Server {
	s := &Server{
		manager: manager,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	mux := http.NewServeMux()
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	mux.HandleFunc("GET /v1/poses", s.listPoses)
	mux.HandleFunc("GET /v1/poses/{query}", s.getPose)
	mux.HandleFunc("GET /v1/sessions", s.listSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", s.getSession)
	mux.HandleFunc("GET /v1/ws", s.serveWS)

	s.handler = observe.Middleware(s.metrics)(mux)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ---- pose views ----

// RuleView is the public shape of one rule.
type RuleView struct {
	Name      string  `json:"name"`
	P1        int     `json:"p1"`
	Vertex    int     `json:"vertex"`
	P3        int     `json:"p3"`
	Target    float64 `json:"target"`
	Tolerance float64 `json:"tolerance"`
}

// PoseView is the public shape of a pose.
type PoseView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Rules       []RuleView `json:"rules"`
}

func viewPose(p rules.Pose) PoseView {
	v := PoseView{ID: p.ID, Name: p.Name, Description: p.Description, Rules: make([]RuleView, len(p.Rules))}
	for i, r := range p.Rules {
		v.Rules[i] = viewRule(r)
	}
	return v
}

func viewRule(r pose.NamedRule) RuleView {
	return RuleView{
		Name:      r.Name,
		P1:        r.P1,
		Vertex:    r.Vertex,
		P3:        r.P3,
		Target:    r.TargetDegrees,
		Tolerance: r.ToleranceDegrees,
	}
}

// ---- REST handlers ----

func (s *Server) listPoses(w http.ResponseWriter, _ *http.Request) {
	poses := s.manager.Catalog().List()
	out := make([]PoseView, len(poses))
	for i, p := range poses {
		out[i] = viewPose(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getPose(w http.ResponseWriter, r *http.Request) {
	p, err := s.manager.Catalog().Resolve(r.PathValue("query"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, viewPose(p))
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	limit := DefaultListLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	list, err := s.manager.Recent(r.Context(), limit)
	if err != nil {
		observe.Logger(r.Context()).Error("list sessions", "err", err)
		writeError(w, http.StatusInternalServerError, errors.New("session store unavailable"))
		return
	}
	if list == nil {
		list = []session.Summary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sum, err := s.manager.Lookup(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		observe.Logger(r.Context()).Error("lookup session", "err", err)
		writeError(w, http.StatusInternalServerError, errors.New("session store unavailable"))
	default:
		writeJSON(w, http.StatusOK, sum)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("server: encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
