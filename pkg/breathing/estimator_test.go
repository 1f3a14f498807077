package breathing_test

import (
	"math"
	"testing"

	"github.com/Pavna06/Yogi.AI/pkg/breathing"
	"github.com/Pavna06/Yogi.AI/pkg/pose"
)

// shoulderFrame returns a frame holding only the two shoulders at height y.
func shoulderFrame(y, conf float64) []pose.Keypoint {
	return []pose.Keypoint{
		{X: 100, Y: y, Confidence: conf, Index: int(pose.LeftShoulder)},
		{X: 200, Y: y, Confidence: conf, Index: int(pose.RightShoulder)},
	}
}

// feedSinusoid drives e with a 30 fps shoulder signal oscillating at hz for
// the given number of frames and returns the final estimate.
func feedSinusoid(e *breathing.Estimator, hz float64, frames int) (float64, bool) {
	var (
		bpm float64
		ok  bool
	)
	for i := range frames {
		t := float64(i) / 30
		y := 240 + 6*math.Sin(2*math.Pi*hz*t)
		bpm, ok = e.AddSample(shoulderFrame(y, 0.9), int64(i)*1000/30)
	}
	return bpm, ok
}

func TestEstimator_SinusoidRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		frames int
		opts   []breathing.Option
	}{
		{"one full window", 300, nil},
		{"after eviction", 600, nil},
		{"smoothed", 300, []breathing.Option{breathing.WithSmoothing(5)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e := breathing.New(tc.opts...)
			// 15 cycles per 10 s.
			bpm, ok := feedSinusoid(e, 1.5, tc.frames)
			if !ok {
				t.Fatal("rate undefined, want defined")
			}
			if math.Abs(bpm-90) > 1.5 {
				t.Errorf("bpm = %.2f, want ~90", bpm)
			}
		})
	}
}

func TestEstimator_WindowEviction(t *testing.T) {
	t.Parallel()

	e := breathing.New()
	feedSinusoid(e, 0.3, 900)
	// 30 s of input at 30 fps; only the last 10 s (plus the boundary sample)
	// may remain.
	if n := e.Len(); n < 300 || n > 302 {
		t.Errorf("Len = %d, want ~301", n)
	}
}

func TestEstimator_IgnoresOutOfOrderSamples(t *testing.T) {
	t.Parallel()

	clean, e := breathing.New(), breathing.New()
	for ts := int64(0); ts <= 20_000; ts += 100 {
		smp := breathing.Sample{TimestampMs: ts, Y: math.Sin(float64(ts) / 700)}
		clean.Add(smp)
		e.Add(smp)
	}

	if bpm, ok := e.Add(breathing.Sample{TimestampMs: 1000, Y: -5}); ok {
		t.Fatalf("stale sample accepted: bpm = %v", bpm)
	}
	if n := e.Len(); n != 101 {
		t.Fatalf("Len after stale sample = %d, want 101", n)
	}

	next := breathing.Sample{TimestampMs: 20_100, Y: math.Sin(20_100.0 / 700)}
	want, wantOK := clean.Add(next)
	got, ok := e.Add(next)
	if ok != wantOK || math.Abs(got-want) > 1e-9 {
		t.Errorf("Add = %v, %v; want %v, %v", got, ok, want, wantOK)
	}
	if n := e.Len(); n != 101 {
		t.Errorf("Len = %d, want 101 (10100..20100 ms)", n)
	}

	// Equal timestamps are in order.
	if _, ok := e.Add(breathing.Sample{TimestampMs: 20_100, Y: 0}); !ok {
		t.Error("repeated timestamp rejected")
	}
}

func TestEstimator_UndefinedUntilMinSamples(t *testing.T) {
	t.Parallel()

	e := breathing.New(breathing.WithMinSamples(10))
	for i := range 9 {
		if _, ok := e.AddSample(shoulderFrame(float64(i), 0.9), int64(i*33)); ok {
			t.Fatalf("sample %d: rate defined before min samples", i)
		}
	}
	if _, ok := e.AddSample(shoulderFrame(1, 0.9), 9*33); !ok {
		t.Fatal("rate undefined at min samples")
	}
	if _, ok := e.Rate(); !ok {
		t.Error("Rate() ok = false after a defined estimate")
	}
}

func TestEstimator_ShoulderGate(t *testing.T) {
	t.Parallel()

	e := breathing.New(breathing.WithMinSamples(3))
	tests := []struct {
		name  string
		frame []pose.Keypoint
	}{
		{"threshold is exclusive", shoulderFrame(1, 0.5)},
		{"missing right shoulder", shoulderFrame(1, 0.9)[:1]},
		{"empty", nil},
	}
	for _, tc := range tests {
		if _, ok := e.AddSample(tc.frame, 0); ok {
			t.Errorf("%s: rate defined, want undefined", tc.name)
		}
	}
	if n := e.Len(); n != 0 {
		t.Errorf("Len = %d, want 0 after rejected frames", n)
	}
}

func TestEstimator_ZeroDuration(t *testing.T) {
	t.Parallel()

	e := breathing.New(breathing.WithMinSamples(3))
	for _, y := range []float64{3, 1, 3} {
		if _, ok := e.AddSample(shoulderFrame(y, 0.9), 500); ok {
			t.Fatal("rate defined for a zero-length window")
		}
	}
}

func TestEstimator_Reset(t *testing.T) {
	t.Parallel()

	e := breathing.New()
	feedSinusoid(e, 1, 100)
	e.Reset()
	if e.Len() != 0 {
		t.Errorf("Len = %d after Reset", e.Len())
	}
	if _, ok := e.Rate(); ok {
		t.Error("Rate defined after Reset")
	}
}

func TestCountMinima(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ys   []float64
		want int
	}{
		{"empty", nil, 0},
		{"endpoints ignored", []float64{0, 1, 0}, 0},
		{"two dips", []float64{3, 1, 3, 2, 3}, 2},
		{"plateau is not strict", []float64{3, 1, 1, 3}, 0},
	}
	for _, tc := range tests {
		if got := breathing.CountMinima(tc.ys); got != tc.want {
			t.Errorf("%s: CountMinima = %d, want %d", tc.name, got, tc.want)
		}
	}
}
