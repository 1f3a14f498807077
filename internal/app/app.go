// Package app wires all Yogi subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves until the context ends, and Shutdown tears
// everything down in order.
//
// For testing, inject test doubles via functional options (WithStore,
// WithMetrics, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/Pavna06/Yogi.AI/internal/config"
	"github.com/Pavna06/Yogi.AI/internal/health"
	"github.com/Pavna06/Yogi.AI/internal/observe"
	"github.com/Pavna06/Yogi.AI/internal/rules"
	"github.com/Pavna06/Yogi.AI/internal/server"
	"github.com/Pavna06/Yogi.AI/internal/session"
	"github.com/Pavna06/Yogi.AI/pkg/provider/tts"
)

// DefaultListenAddr is used when server.listen_addr is empty.
const DefaultListenAddr = ":8080"

// Providers holds the external services built from the config registry.
// A nil Speech disables narration.
type Providers struct {
	Speech tts.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg        *config.Config
	configPath string
	providers  *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	metrics        *observe.Metrics
	metricsHandler http.Handler
	levelVar       *slog.LevelVar
	catalog        *rules.Catalog
	store          session.Store
	manager        *session.Manager
	server         *server.Server
	httpServer     *http.Server
	watchInterval  time.Duration

	mu      sync.Mutex
	watcher *config.Watcher

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a session store instead of creating one from config.
func WithStore(s session.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler replaces the /metrics handler. Defaults to
// promhttp.Handler().
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithConfigPath enables hot reload of the config file at path. Relative pose
// files are resolved against its directory.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithLevelVar lets config reloads change the log level held by lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = lv }
}

// WithWatchInterval sets how often the config file is polled.
func WithWatchInterval(d time.Duration) Option {
	return func(a *App) { a.watchInterval = d }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// New performs all initialisation synchronously: pose catalog loading,
// session store connection and migration, and HTTP handler assembly. It does
// not start listening; call Run for that.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsHandler == nil {
		a.metricsHandler = promhttp.Handler()
	}

	// ── 1. Pose catalog ──────────────────────────────────────────────────
	catalog, err := rules.Load(cfg.Poses.IncludeBuiltin(), a.poseFiles(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("app: load poses: %w", err)
	}
	a.catalog = catalog

	// ── 2. Session store ─────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 3. Session manager ───────────────────────────────────────────────
	mopts := []session.ManagerOption{
		session.WithManagerMetrics(a.metrics),
		session.WithSettings(SettingsFromConfig(cfg)),
	}
	if providers.Speech != nil {
		mopts = append(mopts, session.WithSpeech(providers.Speech))
	}
	a.manager = session.NewManager(a.catalog, a.store, mopts...)

	// ── 4. HTTP ──────────────────────────────────────────────────────────
	checks := []health.Checker{
		health.CatalogCheck(a.catalog.Len),
		health.PingCheck("sessions", a.store),
	}
	if b, ok := providers.Speech.(health.BreakerStates); ok {
		checks = append(checks, health.SpeechCheck(b))
	}
	a.server = server.New(a.manager,
		server.WithHealth(health.New(checks...)),
		server.WithMetricsHandler(a.metricsHandler),
		server.WithMetrics(a.metrics),
	)

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = DefaultListenAddr
	}
	a.httpServer = &http.Server{
		Addr:              addr,
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("app initialised",
		"poses", a.catalog.Len(),
		"store", storeKind(cfg),
		"narration", providers.Speech != nil && cfg.Feedback.IsEnabled(),
	)
	return a, nil
}

// initStore creates the session store from config unless one was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	switch storeKind(a.cfg) {
	case config.StoreFile:
		a.store = session.NewFileStore(a.cfg.Sessions.Path)
	case config.StorePostgres:
		pg, err := session.Connect(ctx, a.cfg.Sessions.PostgresDSN)
		if err != nil {
			return err
		}
		a.store = pg
		a.closers = append(a.closers, func() error { pg.Close(); return nil })
	default:
		a.store = session.NewMemStore()
	}
	return nil
}

func storeKind(cfg *config.Config) config.StoreKind {
	if cfg.Sessions.Store == "" {
		return config.StoreMemory
	}
	return cfg.Sessions.Store
}

func (a *App) poseFiles(cfg *config.Config) []string {
	if a.configPath == "" {
		return cfg.Poses.Files
	}
	return config.PoseFilePaths(cfg, a.configPath)
}

// Manager returns the session manager.
func (a *App) Manager() *session.Manager { return a.manager }

// Catalog returns the pose catalog.
func (a *App) Catalog() *rules.Catalog { return a.catalog }

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on the configured address and serves until ctx is cancelled or
// the listener fails. When a config path was given, the config file is
// watched for changes while running.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	if err := a.startWatcher(); err != nil {
		ln.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpServer.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpServer.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return err
}

func (a *App) startWatcher() error {
	if a.configPath == "" {
		return nil
	}
	var opts []config.WatcherOption
	if a.watchInterval > 0 {
		opts = append(opts, config.WithInterval(a.watchInterval))
	}
	w, err := config.NewWatcher(a.configPath, a.applyConfig, opts...)
	if err != nil {
		return fmt.Errorf("app: watch config: %w", err)
	}
	a.mu.Lock()
	a.watcher = w
	a.mu.Unlock()
	return nil
}

// applyConfig re-applies the hot-reloadable parts of a changed config.
func (a *App) applyConfig(c config.Change) {
	d := config.Diff(c.Old, c.New)

	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if c.PosesChanged() {
		if err := a.catalog.Reload(c.New.Poses.IncludeBuiltin(), a.poseFiles(c.New)...); err != nil {
			slog.Error("pose reload failed, keeping previous catalog", "err", err)
		} else {
			slog.Info("pose catalog reloaded", "poses", a.catalog.Len(), "files", c.PoseFiles)
		}
	}

	if d.EvaluatorChanged || d.BreathingChanged || d.FeedbackChanged {
		a.manager.SetSettings(SettingsFromConfig(c.New))
		slog.Info("session settings updated; applies to new sessions",
			"evaluator", d.EvaluatorChanged,
			"breathing", d.BreathingChanged,
			"feedback", d.FeedbackChanged,
		)
	}

	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the watcher, ends every live session (saving summaries) and
// runs the closers. It respects the context deadline: if ctx expires before
// all closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", a.manager.Active(), "closers", len(a.closers))

		a.mu.Lock()
		if a.watcher != nil {
			a.watcher.Stop()
		}
		a.mu.Unlock()

		if err := a.httpServer.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}
		if err := a.manager.Shutdown(ctx); err != nil {
			slog.Warn("failed to save some session summaries", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
