// Package replay feeds a recorded landmark stream through a coaching session.
//
// A recording is JSON lines, one frame per line:
//
//	{"timestamp_ms": 1033, "keypoints": [{"index": 11, "x": 0.41, "y": 0.32, "confidence": 0.98}, ...]}
//
// A line may also carry "pose" to switch the selected pose before that frame
// is scored. Blank lines are ignored.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Pavna06/Yogi.AI/internal/session"
	"github.com/Pavna06/Yogi.AI/pkg/pose"
)

// maxLineBytes bounds one recorded frame.
const maxLineBytes = 1 << 20

// Frame is one line of a recording.
type Frame struct {
	TimestampMs int64           `json:"timestamp_ms"`
	Keypoints   []pose.Keypoint `json:"keypoints"`
	Pose        string          `json:"pose,omitempty"`
}

// Record is one line of replay output.
type Record struct {
	Line        int   `json:"line"`
	TimestampMs int64 `json:"timestamp_ms"`
	session.Update
}

// Option configures [Run].
type Option func(*runner)

// WithOutput writes one JSON [Record] per frame to w.
func WithOutput(w io.Writer) Option {
	return func(r *runner) { r.out = json.NewEncoder(w) }
}

// WithRealtime sleeps between frames for the gap between their timestamps,
// so narration is heard at the pace it was recorded. Speed scales the
// pace; 2 plays twice as fast.
func WithRealtime(speed float64) Option {
	return func(r *runner) {
		if speed > 0 {
			r.speed = speed
		}
	}
}

// WithOnUpdate is called after every frame.
func WithOnUpdate(fn func(Record)) Option {
	return func(r *runner) { r.onUpdate = fn }
}

type runner struct {
	out      *json.Encoder
	speed    float64
	onUpdate func(Record)
}

// Run replays the recording from src through sess and returns the number of
// frames fed. It stops at the first malformed line, unknown pose or when
// ctx is cancelled. After the last frame Run waits until the session has
// finished narrating, so the caller may end it without losing clips.
func Run(ctx context.Context, sess *session.Session, src io.Reader, opts ...Option) (int, error) {
	var r runner
	for _, o := range opts {
		o(&r)
	}

	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		line, frames int
		prevTs       int64
	)
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return frames, err
		}

		var f Frame
		if err := json.Unmarshal(sc.Bytes(), &f); err != nil {
			return frames, fmt.Errorf("replay: line %d: %w", line, err)
		}
		if f.Pose != "" {
			p, err := sess.SelectPose(f.Pose)
			if err != nil {
				return frames, fmt.Errorf("replay: line %d: %w", line, err)
			}
			slog.Debug("replay: pose switched", "line", line, "pose", p.ID)
		}

		if r.speed > 0 && frames > 0 && f.TimestampMs > prevTs {
			wait := time.Duration(float64(f.TimestampMs-prevTs)/r.speed) * time.Millisecond
			if err := sleep(ctx, wait); err != nil {
				return frames, err
			}
		}
		prevTs = f.TimestampMs

		rec := Record{Line: line, TimestampMs: f.TimestampMs, Update: sess.HandleFrame(ctx, f.Keypoints, f.TimestampMs)}
		frames++
		if r.out != nil {
			if err := r.out.Encode(rec); err != nil {
				return frames, fmt.Errorf("replay: write: %w", err)
			}
		}
		if r.onUpdate != nil {
			r.onUpdate(rec)
		}
	}
	if err := sc.Err(); err != nil {
		return frames, fmt.Errorf("replay: read: %w", err)
	}
	if err := sess.Flush(ctx); err != nil {
		return frames, fmt.Errorf("replay: flush narration: %w", err)
	}
	return frames, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
