// Package feedback narrates corrective pose feedback through a speech
// provider and plays the resulting clips one after another.
//
// The [Dispatcher] never blocks its caller. Each narrated message is
// synthesised on its own goroutine; finished clips are appended to a
// single-flight [queue.Queue] so at most one clip plays at a time, in the
// order synthesis completed. A failed synthesis drops that message only.
//
// Messages tagged [pose.KindGood] or [pose.KindAnalyzing] are never narrated.
// To keep the listener from being flooded by a message repeated on every
// video frame, a text is not requested again while an earlier clip of it is
// still being synthesised, queued or played, nor within the repeat cooldown
// of its last request.
package feedback

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Pavna06/Yogi.AI/internal/observe"
	"github.com/Pavna06/Yogi.AI/pkg/audio"
	"github.com/Pavna06/Yogi.AI/pkg/audio/queue"
	"github.com/Pavna06/Yogi.AI/pkg/pose"
	"github.com/Pavna06/Yogi.AI/pkg/provider/tts"
)

// DefaultRepeatCooldown is the default minimum time between two requests for
// the same text.
const DefaultRepeatCooldown = 4 * time.Second

// Decision labels recorded for each feedback item offered to the dispatcher.
const (
	DecisionNarrated  = "narrated"
	DecisionAffirming = "affirming"
	DecisionAnalyzing = "analyzing"
	DecisionRepeat    = "repeat"
	DecisionFailed    = "failed"
	DecisionClosed    = "closed"
)

// IsAffirming reports whether text reads as praise. It matches the
// substrings "good" and "perfect" case-sensitively and is only used for
// untagged text passed to [Dispatcher.DispatchText].
func IsAffirming(text string) bool {
	return strings.Contains(text, "good") || strings.Contains(text, "perfect")
}

// Narrates reports whether feedback of kind k is spoken.
func Narrates(k pose.Kind) bool {
	switch k {
	case pose.KindLow, pose.KindHigh, pose.KindNotice:
		return true
	}
	return false
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithRepeatCooldown sets the minimum time between requests for the same
// text. Zero disables the cooldown; in-flight and queued texts are still not
// requested twice.
func WithRepeatCooldown(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.cooldown = d }
}

// WithRequestTimeout bounds each speech request. Zero, the default, waits
// for as long as the provider takes.
func WithRequestTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.timeout = d }
}

// WithGap sets the silence between consecutive clips.
func WithGap(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.gap = d }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(disp *Dispatcher) { disp.metrics = m }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(disp *Dispatcher) { disp.log = l }
}

// WithContext sets the context speech requests derive from. Its values
// (session id, trace) reach every request and its cancellation aborts
// pending synthesis. Defaults to [context.Background].
func WithContext(ctx context.Context) Option {
	return func(disp *Dispatcher) { disp.ctx = ctx }
}

// WithOnStateChange is called on every Idle/Playing transition of the
// playback queue. fn must not call back into the dispatcher.
func WithOnStateChange(fn func(queue.State)) Option {
	return func(disp *Dispatcher) { disp.onState = fn }
}

// Stats counts what the dispatcher did with the feedback it was offered.
type Stats struct {
	// Requested is the number of speech requests started.
	Requested int `json:"requested"`
	// Played is the number of clips that finished playing without error.
	Played int `json:"played"`
	// Failed is the number of speech requests that failed.
	Failed int `json:"failed"`
	// Suppressed is the number of items skipped as affirming, analyzing or
	// repeated.
	Suppressed int `json:"suppressed"`
}

// Dispatcher turns feedback into sequential speech. All methods are safe for
// concurrent use.
type Dispatcher struct {
	speech   tts.Provider
	queue    *queue.Queue
	metrics  *observe.Metrics
	log      *slog.Logger
	cooldown time.Duration
	timeout  time.Duration
	gap      time.Duration
	onState  func(queue.State)
	now      func() time.Time

	// ctx outlives individual frames; Close cancels it to abort synthesis.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	inflight map[string]struct{} // synthesising, queued or playing
	idle     chan struct{}       // closed while inflight is empty
	lastReq  map[string]time.Time
	stats    Stats
}

// New creates a Dispatcher that synthesises with speech and plays through
// player. Call [Dispatcher.Close] to release it.
func New(speech tts.Provider, player audio.Player, opts ...Option) *Dispatcher {
	idle := make(chan struct{})
	close(idle)
	d := &Dispatcher{
		speech:   speech,
		idle:     idle,
		cooldown: DefaultRepeatCooldown,
		gap:      queue.DefaultGap,
		log:      slog.Default(),
		now:      time.Now,
		ctx:      context.Background(),
		inflight: make(map[string]struct{}),
		lastReq:  make(map[string]time.Time),
	}
	for _, o := range opts {
		o(d)
	}
	d.ctx, d.cancel = context.WithCancel(d.ctx)
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}

	qopts := []queue.Option{
		queue.WithGap(d.gap),
		queue.WithLogger(d.log),
		queue.WithOnPlayed(d.played),
	}
	if d.onState != nil {
		qopts = append(qopts, queue.WithOnStateChange(d.onState))
	}
	d.queue = queue.New(player, qopts...)
	return d
}

// Dispatch offers one frame's feedback for narration and returns the number
// of speech requests started. It never blocks on synthesis or playback.
func (d *Dispatcher) Dispatch(ctx context.Context, items []pose.Feedback) int {
	started := 0
	for _, f := range items {
		switch {
		case f.Text == "":
			continue
		case f.Kind == pose.KindAnalyzing:
			d.skip(ctx, DecisionAnalyzing)
		case !Narrates(f.Kind):
			d.skip(ctx, DecisionAffirming)
		default:
			if d.request(ctx, f.Text) {
				started++
			}
		}
	}
	return started
}

// DispatchText offers untagged feedback strings, skipping those for which
// [IsAffirming] is true. It returns the number of speech requests started.
func (d *Dispatcher) DispatchText(ctx context.Context, texts []string) int {
	started := 0
	for _, t := range texts {
		if t == "" {
			continue
		}
		if IsAffirming(t) {
			d.skip(ctx, DecisionAffirming)
			continue
		}
		if d.request(ctx, t) {
			started++
		}
	}
	return started
}

// State returns the playback state.
func (d *Dispatcher) State() queue.State {
	return d.queue.State()
}

// Pending returns the number of clips waiting behind the one playing.
func (d *Dispatcher) Pending() int {
	return d.queue.Len()
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Drain blocks until every requested text has been synthesised and played,
// or has failed. It does not stop new requests, so callers stop dispatching
// first. Drain returns ctx.Err() if ctx ends before the dispatcher is idle.
func (d *Dispatcher) Drain(ctx context.Context) error {
	d.mu.Lock()
	idle := d.idle
	d.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close aborts in-flight synthesis, waits for those goroutines, drops queued
// clips and interrupts the one playing. Close is idempotent.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()

	if n := d.queue.Clear(); n > 0 {
		d.metrics.QueueDepth.Add(context.Background(), -int64(n))
	}
	err := d.queue.Close()

	// Cleared clips never reach played.
	d.mu.Lock()
	if len(d.inflight) > 0 {
		clear(d.inflight)
		close(d.idle)
	}
	d.mu.Unlock()
	return err
}

func (d *Dispatcher) skip(ctx context.Context, decision string) {
	d.mu.Lock()
	d.stats.Suppressed++
	d.mu.Unlock()
	d.metrics.RecordFeedbackDecision(ctx, decision)
}

// request starts synthesis of text unless it is suppressed.
func (d *Dispatcher) request(ctx context.Context, text string) bool {
	now := d.now()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.metrics.RecordFeedbackDecision(ctx, DecisionClosed)
		return false
	}
	_, busy := d.inflight[text]
	last, seen := d.lastReq[text]
	if busy || (d.cooldown > 0 && seen && now.Sub(last) < d.cooldown) {
		d.stats.Suppressed++
		d.mu.Unlock()
		d.metrics.RecordFeedbackDecision(ctx, DecisionRepeat)
		return false
	}
	if len(d.inflight) == 0 {
		d.idle = make(chan struct{})
	}
	d.inflight[text] = struct{}{}
	d.lastReq[text] = now
	d.stats.Requested++
	d.wg.Add(1)
	d.mu.Unlock()

	go d.synthesize(text)
	return true
}

func (d *Dispatcher) synthesize(text string) {
	defer d.wg.Done()

	ctx, span := observe.StartSpan(d.ctx, "feedback.synthesize")
	defer span.End()
	span.SetAttributes(attribute.Int("text.length", len(text)))

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	clip, err := d.speech.Synthesize(ctx, text)
	if err == nil && (clip == nil || clip.Empty()) {
		err = tts.ErrNoAudio
	}
	if err != nil {
		defer d.release(text)
		if d.ctx.Err() != nil {
			d.metrics.RecordFeedbackDecision(ctx, DecisionClosed)
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.mu.Lock()
		d.stats.Failed++
		d.mu.Unlock()
		d.metrics.RecordFeedbackDecision(ctx, DecisionFailed)
		observe.Logger(ctx).Warn("feedback: speech request failed, dropping message", "text", text, "err", err)
		return
	}

	// The queue releases the text by clip.Text once played.
	clip.Text = text
	if err := d.queue.Enqueue(clip); err != nil {
		d.release(text)
		if !errors.Is(err, queue.ErrClosed) {
			d.log.Warn("feedback: enqueue failed", "text", text, "err", err)
		}
		d.metrics.RecordFeedbackDecision(ctx, DecisionClosed)
		return
	}
	d.metrics.QueueDepth.Add(ctx, 1)
	d.metrics.RecordFeedbackDecision(ctx, DecisionNarrated)
}

// played runs on the queue's dispatch goroutine after each clip.
func (d *Dispatcher) played(clip *audio.Clip, err error) {
	ctx := context.Background()
	d.metrics.QueueDepth.Add(ctx, -1)
	d.metrics.RecordClipPlayed(ctx, err)
	if err == nil {
		d.mu.Lock()
		d.stats.Played++
		d.mu.Unlock()
	}
	d.release(clip.Text)
}

func (d *Dispatcher) release(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inflight[text]; !ok {
		return
	}
	delete(d.inflight, text)
	if len(d.inflight) == 0 {
		close(d.idle)
	}
}
