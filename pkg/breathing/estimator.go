// Package breathing estimates respiration rate from the vertical motion of
// the shoulders across a stream of pose frames.
//
// Each accepted frame contributes one sample (the mean Y of both shoulders)
// to a sliding time window. Every local minimum of that signal counts as one
// breath; the rate is the count scaled to breaths per minute over the span
// actually covered by the window.
package breathing

import (
	"sync"

	"github.com/Pavna06/Yogi.AI/pkg/pose"
)

const (
	// DefaultWindowMs is the length of the sliding window in milliseconds.
	DefaultWindowMs int64 = 10_000

	// DefaultMinSamples is the number of samples required before a rate is
	// reported, roughly one second of video at 30 fps.
	DefaultMinSamples = 30

	// DefaultConfidence is the confidence both shoulders must strictly
	// exceed for a frame to be sampled.
	DefaultConfidence = 0.5
)

// Sample is one shoulder-height observation.
type Sample struct {
	TimestampMs int64
	Y           float64
}

// Option configures an [Estimator].
type Option func(*Estimator)

// WithWindow sets the sliding window length in milliseconds.
func WithWindow(ms int64) Option {
	return func(e *Estimator) {
		if ms > 0 {
			e.windowMs = ms
		}
	}
}

// WithMinSamples sets how many samples must be buffered before a rate is
// reported. Values below 3 are raised to 3, the minimum that can contain an
// interior minimum.
func WithMinSamples(n int) Option {
	return func(e *Estimator) {
		e.minSamples = max(n, 3)
	}
}

// WithConfidence sets the shoulder confidence threshold.
func WithConfidence(c float64) Option {
	return func(e *Estimator) { e.confidence = c }
}

// WithShoulders overrides the landmark indices used as left and right
// shoulder.
func WithShoulders(left, right int) Option {
	return func(e *Estimator) {
		e.left, e.right = left, right
	}
}

// WithSmoothing applies a centred moving average of width n to the window
// before minima are counted. n <= 1 disables smoothing, which is the default.
// Even widths are rounded up to the next odd number.
func WithSmoothing(n int) Option {
	return func(e *Estimator) {
		if n > 1 && n%2 == 0 {
			n++
		}
		e.smoothing = n
	}
}

// Estimator holds the sliding window for one video stream. All methods are
// safe for concurrent use. Frames arriving out of timestamp order are
// ignored.
type Estimator struct {
	windowMs   int64
	minSamples int
	confidence float64
	left       int
	right      int
	smoothing  int

	mu      sync.Mutex
	samples []Sample
	last    float64
	lastOK  bool
}

// New returns an Estimator with default settings, overridden by opts.
func New(opts ...Option) *Estimator {
	e := &Estimator{
		windowMs:   DefaultWindowMs,
		minSamples: DefaultMinSamples,
		confidence: DefaultConfidence,
		left:       int(pose.LeftShoulder),
		right:      int(pose.RightShoulder),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// AddSample feeds one frame observed at timestampMs and returns the current
// estimate in breaths per minute. ok is false while the rate is undefined:
// either shoulder is missing or not confident enough, too few samples are
// buffered, or the window has zero duration.
//
// A rejected frame leaves the window untouched.
func (e *Estimator) AddSample(frame []pose.Keypoint, timestampMs int64) (bpm float64, ok bool) {
	l, okL := pose.Lookup(frame, e.left)
	r, okR := pose.Lookup(frame, e.right)
	if !okL || !okR || l.Confidence <= e.confidence || r.Confidence <= e.confidence {
		return 0, false
	}
	return e.Add(Sample{TimestampMs: timestampMs, Y: (l.Y + r.Y) / 2})
}

// Add appends a raw sample, evicts samples older than the window and
// recomputes the rate. A sample older than the newest buffered one is
// dropped with ok false, so the window stays sorted by timestamp.
func (e *Estimator) Add(s Sample) (bpm float64, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if n := len(e.samples); n > 0 && s.TimestampMs < e.samples[n-1].TimestampMs {
		return 0, false
	}
	e.samples = append(e.samples, s)
	cutoff := s.TimestampMs - e.windowMs
	drop := 0
	for drop < len(e.samples) && e.samples[drop].TimestampMs < cutoff {
		drop++
	}
	if drop > 0 {
		e.samples = append(e.samples[:0], e.samples[drop:]...)
	}

	if len(e.samples) < e.minSamples {
		return 0, false
	}
	span := e.samples[len(e.samples)-1].TimestampMs - e.samples[0].TimestampMs
	if span <= 0 {
		return 0, false
	}

	ys := make([]float64, len(e.samples))
	for i, smp := range e.samples {
		ys[i] = smp.Y
	}
	if e.smoothing > 1 {
		ys = movingAverage(ys, e.smoothing)
	}

	bpm = float64(CountMinima(ys)) / (float64(span) / 1000) * 60
	e.last, e.lastOK = bpm, true
	return bpm, true
}

// Rate returns the most recent defined estimate, if any.
func (e *Estimator) Rate() (bpm float64, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.lastOK
}

// Len returns the number of buffered samples.
func (e *Estimator) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.samples)
}

// Reset discards every buffered sample and the last estimate.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.samples = e.samples[:0]
	e.last, e.lastOK = 0, false
}

// CountMinima counts interior samples strictly lower than both neighbours.
// The first and last samples are never counted.
func CountMinima(ys []float64) int {
	n := 0
	for i := 1; i < len(ys)-1; i++ {
		if ys[i] < ys[i-1] && ys[i] < ys[i+1] {
			n++
		}
	}
	return n
}

// movingAverage returns a centred moving average of width w (odd). The
// window shrinks at the edges.
func movingAverage(ys []float64, w int) []float64 {
	half := w / 2
	out := make([]float64, len(ys))
	for i := range ys {
		lo, hi := max(0, i-half), min(len(ys)-1, i+half)
		var sum float64
		for j := lo; j <= hi; j++ {
			sum += ys[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}
