// Package session composes the per-client coaching pipeline.
//
// A [Session] owns one pose evaluator, one breathing estimator and,
// optionally, one feedback dispatcher. Every landmark frame is scored and
// sampled synchronously; corrective feedback is handed to the dispatcher
// without waiting for speech. When the client leaves, the session is reduced
// to a [Summary] that a [Store] persists.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Pavna06/Yogi.AI/internal/feedback"
	"github.com/Pavna06/Yogi.AI/internal/observe"
	"github.com/Pavna06/Yogi.AI/internal/rules"
	"github.com/Pavna06/Yogi.AI/pkg/breathing"
	"github.com/Pavna06/Yogi.AI/pkg/pose"
)

// Frame outcomes reported in [Update.Outcome] beyond those of [pose.Outcome].
const (
	// OutcomeEmpty means the frame carried no keypoints at all.
	OutcomeEmpty = "empty"
	// OutcomeIdle means no pose is selected.
	OutcomeIdle = "idle"
)

// Update is what the client is told after each frame.
type Update struct {
	Feedback []pose.Feedback `json:"feedback"`
	Accuracy float64         `json:"accuracy"`

	// BreathingRate is nil until the estimator has enough samples.
	BreathingRate *float64 `json:"breathing_rate"`

	// Pose is the id of the selected pose, empty when none is.
	Pose string `json:"pose"`

	Outcome string `json:"outcome"`
}

// Option configures a [Session].
type Option func(*Session)

// WithID sets the session id. Defaults to a random UUID.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithEvaluator sets the pose evaluator. Defaults to [pose.NewEvaluator]
// with default thresholds.
func WithEvaluator(e *pose.Evaluator) Option {
	return func(s *Session) { s.evaluator = e }
}

// WithBreathing configures the breathing estimator.
func WithBreathing(opts ...breathing.Option) Option {
	return func(s *Session) { s.breathingOpts = opts }
}

// WithDispatcher narrates feedback through d. The session closes d when it
// is closed. Without a dispatcher feedback is only returned, never spoken.
func WithDispatcher(d *feedback.Dispatcher) Option {
	return func(s *Session) { s.dispatcher = d }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithLogger sets the session logger. Defaults to [slog.Default] with the
// session id attached.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithClock overrides the wall clock used for start and end times.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is one client's coaching state. All methods are safe for
// concurrent use, but frames are expected from a single goroutine in
// timestamp order.
type Session struct {
	id            string
	catalog       *rules.Catalog
	evaluator     *pose.Evaluator
	breathingOpts []breathing.Option
	dispatcher    *feedback.Dispatcher
	metrics       *observe.Metrics
	log           *slog.Logger
	now           func() time.Time

	mu        sync.Mutex
	estimator *breathing.Estimator
	pose      *rules.Pose
	summary   Summary
	accSum    float64
	closed    bool
}

// New starts a session that resolves poses against catalog.
func New(catalog *rules.Catalog, opts ...Option) *Session {
	s := &Session{
		catalog: catalog,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.evaluator == nil {
		s.evaluator = pose.NewEvaluator()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = slog.Default().With("session_id", s.id)
	}
	s.estimator = breathing.New(s.breathingOpts...)
	s.summary = Summary{ID: s.id, StartedAt: s.now().UTC()}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// SelectPose makes the pose matching query active. An empty query clears
// the selection. Returns [rules.ErrPoseNotFound] when nothing matches, in
// which case the previous selection is kept.
func (s *Session) SelectPose(query string) (rules.Pose, error) {
	if query == "" {
		s.mu.Lock()
		s.pose = nil
		s.mu.Unlock()
		return rules.Pose{}, nil
	}
	p, err := s.catalog.Resolve(query)
	if err != nil {
		return rules.Pose{}, err
	}

	s.mu.Lock()
	s.pose = &p
	s.summary.Pose = p.ID
	s.mu.Unlock()
	s.log.Debug("pose selected", "pose", p.ID, "query", query)
	return p, nil
}

// Pose returns the selected pose.
func (s *Session) Pose() (rules.Pose, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pose == nil {
		return rules.Pose{}, false
	}
	return *s.pose, true
}

// HandleFrame scores one landmark frame captured at timestampMs and feeds
// the breathing window. Corrective feedback is passed to the dispatcher,
// which never blocks. Frames arriving after Close are ignored.
func (s *Session) HandleFrame(ctx context.Context, frame []pose.Keypoint, timestampMs int64) Update {
	start := time.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Update{Outcome: OutcomeIdle}
	}
	var u Update
	if s.pose != nil {
		u.Pose = s.pose.ID
	}

	s.summary.Frames++
	switch {
	case len(frame) == 0:
		u.Outcome = OutcomeEmpty
		if rate, ok := s.estimator.Rate(); ok {
			u.BreathingRate = &rate
		}
	default:
		if s.pose == nil {
			u.Outcome = OutcomeIdle
		} else {
			ev := s.evaluator.Evaluate(frame, s.pose.Rules)
			u.Feedback = ev.Feedback
			u.Accuracy = ev.Accuracy
			u.Outcome = ev.Outcome.String()
			if ev.Outcome == pose.OutcomeScored {
				s.summary.ScoredFrames++
				s.accSum += ev.Accuracy
				s.summary.MeanAccuracy = s.accSum / float64(s.summary.ScoredFrames)
				if ev.Accuracy > s.summary.BestAccuracy {
					s.summary.BestAccuracy = ev.Accuracy
				}
			}
		}
		if rate, ok := s.estimator.AddSample(frame, timestampMs); ok {
			u.BreathingRate = &rate
			s.summary.BreathingRate = &rate
			s.metrics.BreathingRate.Record(ctx, rate)
		}
	}
	dispatcher := s.dispatcher
	s.mu.Unlock()

	if dispatcher != nil && len(u.Feedback) > 0 {
		dispatcher.Dispatch(ctx, u.Feedback)
	}
	s.metrics.RecordFrame(ctx, u.Pose, u.Outcome, u.Accuracy, time.Since(start))
	return u
}

// Summary returns the session's running totals.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	sum := s.summary
	s.mu.Unlock()
	if s.dispatcher != nil {
		st := s.dispatcher.Stats()
		sum.ClipsRequested = st.Requested
		sum.ClipsPlayed = st.Played
	}
	return sum
}

// Flush waits until every feedback message handed to the dispatcher has
// been spoken or has failed. Without a dispatcher it returns at once.
func (s *Session) Flush(ctx context.Context) error {
	if s.dispatcher == nil {
		return nil
	}
	return s.dispatcher.Drain(ctx)
}

// Close stops narration and returns the final summary. Close is idempotent;
// later calls return the same summary.
func (s *Session) Close() Summary {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.summary.EndedAt = s.now().UTC()
	}
	s.mu.Unlock()

	if s.dispatcher != nil {
		_ = s.dispatcher.Close()
	}
	return s.Summary()
}
