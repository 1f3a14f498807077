// Package health serves the liveness and readiness probes.
//
// GET /healthz answers 200 while the process can serve HTTP. GET /readyz runs
// every registered [Checker] concurrently and answers:
//
//   - 200 "ok" when all checks pass,
//   - 200 "degraded" when only optional checks fail (sessions still run, for
//     example without spoken feedback),
//   - 503 "fail" when a required check fails.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Pavna06/Yogi.AI/internal/resilience"
)

// checkTimeout bounds each readiness check.
const checkTimeout = 5 * time.Second

// Status values reported by /readyz.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// Checker is one named readiness check.
type Checker struct {
	Name string

	// Check returns nil when the dependency is usable. It must honour ctx.
	Check func(ctx context.Context) error

	// Optional marks a dependency the engine can run without. Its failure
	// degrades readiness instead of failing it.
	Optional bool
}

// CheckResult is one entry of a readiness report.
type CheckResult struct {
	Status    string  `json:"status"`
	Error     string  `json:"error,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
}

// Report is the /readyz response body.
type Report struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker set is fixed at
// construction.
type Handler struct {
	checkers []Checker
}

// New returns a [Handler] for checkers.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: slices.Clone(checkers)}
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz always reports ok.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{Status: StatusOK})
}

// Readyz runs the checks and reports the aggregate.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Check(r.Context())
	code := http.StatusOK
	if rep.Status == StatusFail {
		code = http.StatusServiceUnavailable
		slog.Warn("readiness check failed", "checks", rep.Checks)
	}
	writeJSON(w, code, rep)
}

// Check runs every checker concurrently, each under [checkTimeout].
func (h *Handler) Check(ctx context.Context) Report {
	results := make([]CheckResult, len(h.checkers))
	var wg sync.WaitGroup
	for i, c := range h.checkers {
		wg.Go(func() {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			start := time.Now()
			err := c.Check(cctx)
			res := CheckResult{Status: StatusOK, LatencyMS: float64(time.Since(start).Microseconds()) / 1000}
			if err != nil {
				res.Status, res.Error = StatusFail, err.Error()
				if c.Optional {
					res.Status = StatusDegraded
				}
			}
			results[i] = res
		})
	}
	wg.Wait()

	rep := Report{Status: StatusOK, Checks: make(map[string]CheckResult, len(results))}
	for i, res := range results {
		rep.Checks[h.checkers[i].Name] = res
		switch {
		case res.Status == StatusFail:
			rep.Status = StatusFail
		case res.Status == StatusDegraded && rep.Status == StatusOK:
			rep.Status = StatusDegraded
		}
	}
	return rep
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ── Checkers ──

// Pinger verifies a backing connection, such as a session store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck is a required check on p.
func PingCheck(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// BreakerStates reports the circuit breaker state of each speech backend.
type BreakerStates interface {
	States() map[string]resilience.State
}

// SpeechCheck is an optional check that fails while every speech backend's
// breaker is open. The error names the open backends.
func SpeechCheck(b BreakerStates) Checker {
	return Checker{Name: "speech", Optional: true, Check: func(context.Context) error {
		states := b.States()
		var open []string
		for name, s := range states {
			if s != resilience.StateOpen {
				return nil
			}
			open = append(open, name)
		}
		if len(open) == 0 {
			return nil
		}
		slices.Sort(open)
		return fmt.Errorf("circuit open on every speech backend: %s", strings.Join(open, ", "))
	}}
}

// CatalogCheck is a required check that fails while no poses are loaded.
func CatalogCheck(count func() int) Checker {
	return Checker{Name: "poses", Check: func(context.Context) error {
		if count() == 0 {
			return errors.New("no poses loaded")
		}
		return nil
	}}
}
