package resilience

import (
	"context"
	"time"

	"github.com/Pavna06/Yogi.AI/internal/observe"
	"github.com/Pavna06/Yogi.AI/pkg/audio"
	"github.com/Pavna06/Yogi.AI/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// speech backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group   *FallbackGroup[tts.Provider]
	metrics *observe.Metrics
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// TTSOption configures a [TTSFallback].
type TTSOption func(*TTSFallback)

// WithMetrics records per-backend request counts, errors and latency on m.
func WithMetrics(m *observe.Metrics) TTSOption {
	return func(f *TTSFallback) { f.metrics = m }
}

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
// With metrics set, every breaker transition is counted and then passed on
// to cfg.CircuitBreaker.OnStateChange.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig, opts ...TTSOption) *TTSFallback {
	f := &TTSFallback{}
	for _, o := range opts {
		o(f)
	}
	if f.metrics != nil {
		next := cfg.CircuitBreaker.OnStateChange
		cfg.CircuitBreaker.OnStateChange = func(name string, from, to State) {
			f.metrics.RecordBreakerTransition(context.Background(), name, to.String())
			if next != nil {
				next(name, from, to)
			}
		}
	}
	f.group = NewFallbackGroup(primary, primaryName, cfg)
	return f
}

// AddFallback registers an additional speech provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the backend names in failover order.
func (f *TTSFallback) Names() []string {
	return f.group.Names()
}

// States reports the circuit breaker state of each backend.
func (f *TTSFallback) States() map[string]State {
	return f.group.States()
}

// Synthesize renders text on the first healthy backend. Blank text is
// rejected before any backend is contacted.
func (f *TTSFallback) Synthesize(ctx context.Context, text string) (*audio.Clip, error) {
	if text == "" {
		return nil, tts.ErrEmptyText
	}
	return ExecuteWithResult(ctx, f.group, func(name string, p tts.Provider) (*audio.Clip, error) {
		start := time.Now()
		clip, err := p.Synthesize(ctx, text)
		f.record(ctx, name, time.Since(start), err)
		return clip, err
	})
}

func (f *TTSFallback) record(ctx context.Context, name string, d time.Duration, err error) {
	if f.metrics != nil {
		f.metrics.RecordSynthesis(ctx, name, d, err)
	}
}
