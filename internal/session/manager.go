package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Pavna06/Yogi.AI/internal/feedback"
	"github.com/Pavna06/Yogi.AI/internal/observe"
	"github.com/Pavna06/Yogi.AI/internal/rules"
	"github.com/Pavna06/Yogi.AI/pkg/audio"
	"github.com/Pavna06/Yogi.AI/pkg/breathing"
	"github.com/Pavna06/Yogi.AI/pkg/pose"
	"github.com/Pavna06/Yogi.AI/pkg/provider/tts"
)

// Settings are the tunables applied to sessions started after they are set.
// Running sessions keep the settings they started with.
type Settings struct {
	Evaluator []pose.Option
	Breathing []breathing.Option
	Feedback  []feedback.Option

	// Narrate enables spoken feedback for sessions started with a player.
	Narrate bool
}

// ManagerOption configures a [Manager].
type ManagerOption func(*Manager)

// WithSpeech sets the speech provider used for narration. Without one no
// session narrates.
func WithSpeech(p tts.Provider) ManagerOption {
	return func(m *Manager) { m.speech = p }
}

// WithManagerMetrics sets the metrics sink shared by all sessions.
func WithManagerMetrics(mt *observe.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mt }
}

// WithManagerLogger sets the logger. Defaults to [slog.Default].
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// WithSettings sets the initial [Settings].
func WithSettings(s Settings) ManagerOption {
	return func(m *Manager) { m.settings.Store(&s) }
}

// Manager owns the live sessions and persists their summaries when they end.
// All methods are safe for concurrent use.
type Manager struct {
	catalog  *rules.Catalog
	store    Store
	speech   tts.Provider
	metrics  *observe.Metrics
	log      *slog.Logger
	settings atomic.Pointer[Settings]

	mu     sync.Mutex
	active map[string]*Session
}

// NewManager creates a Manager that resolves poses against catalog and
// saves summaries to store.
func NewManager(catalog *rules.Catalog, store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		catalog: catalog,
		store:   store,
		log:     slog.Default(),
		active:  make(map[string]*Session),
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	if m.settings.Load() == nil {
		m.settings.Store(&Settings{Narrate: true})
	}
	return m
}

// SetSettings replaces the settings for future sessions.
func (m *Manager) SetSettings(s Settings) {
	m.settings.Store(&s)
}

// Settings returns the current settings.
func (m *Manager) Settings() Settings {
	return *m.settings.Load()
}

// Catalog returns the pose catalog sessions resolve against.
func (m *Manager) Catalog() *rules.Catalog { return m.catalog }

// Start opens a session. Feedback is narrated through player when player is
// non-nil, a speech provider is configured and narration is enabled.
func (m *Manager) Start(ctx context.Context, player audio.Player) *Session {
	set := m.settings.Load()
	id := uuid.NewString()
	ctx = observe.WithSessionID(ctx, id)
	log := m.log.With("session_id", id)
	opts := []Option{
		WithID(id),
		WithLogger(log),
		WithEvaluator(pose.NewEvaluator(set.Evaluator...)),
		WithBreathing(set.Breathing...),
		WithMetrics(m.metrics),
	}
	if player != nil && m.speech != nil && set.Narrate {
		fopts := append([]feedback.Option{
			feedback.WithMetrics(m.metrics),
			feedback.WithLogger(log),
			feedback.WithContext(ctx),
		}, set.Feedback...)
		opts = append(opts, WithDispatcher(feedback.New(m.speech, player, fopts...)))
	}
	s := New(m.catalog, opts...)

	m.mu.Lock()
	m.active[s.ID()] = s
	m.mu.Unlock()

	m.metrics.ActiveSessions.Add(ctx, 1)
	m.log.Info("session started", "session_id", id, "narrated", s.dispatcher != nil)
	return s
}

// Get returns the live session with id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.active[id]
	return s, ok
}

// Active returns the number of live sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// End closes s and saves its summary. Ending a session twice saves it once.
func (m *Manager) End(ctx context.Context, s *Session) (Summary, error) {
	m.mu.Lock()
	_, live := m.active[s.ID()]
	delete(m.active, s.ID())
	m.mu.Unlock()

	sum := s.Close()
	if !live {
		return sum, nil
	}
	m.metrics.ActiveSessions.Add(ctx, -1)

	if err := m.store.Save(ctx, sum); err != nil {
		m.log.Error("failed to save session summary", "session_id", sum.ID, "err", err)
		return sum, fmt.Errorf("session: end %s: %w", sum.ID, err)
	}
	m.log.Info("session ended",
		"session_id", sum.ID,
		"pose", sum.Pose,
		"frames", sum.Frames,
		"mean_accuracy", sum.MeanAccuracy,
		"duration", sum.Duration(),
	)
	return sum, nil
}

// Lookup returns the summary of a session, live or stored. Live sessions
// report running totals.
func (m *Manager) Lookup(ctx context.Context, id string) (Summary, error) {
	if s, ok := m.Get(id); ok {
		return s.Summary(), nil
	}
	return m.store.Get(ctx, id)
}

// Recent returns up to limit stored summaries, newest first.
func (m *Manager) Recent(ctx context.Context, limit int) ([]Summary, error) {
	return m.store.List(ctx, limit)
}

// Shutdown ends every live session, saving each summary. It returns the
// joined save errors.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.active))
	for _, s := range m.active {
		live = append(live, s)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range live {
		if _, err := m.End(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
