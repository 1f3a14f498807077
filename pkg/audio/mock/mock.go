// Package mock provides an in-memory [audio.Player] for unit tests.
//
// The mock records every clip it is asked to play together with start and end
// timestamps so tests can assert on ordering and overlap. Setting Hold makes
// each Play block for a fixed time; setting Gate makes each Play block until
// the test sends on it.
//
//	p := &mock.Player{Hold: 20 * time.Millisecond}
//	q := queue.New(p, queue.WithGap(0))
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/Pavna06/Yogi.AI/pkg/audio"
)

// PlayCall records a single invocation of Play.
type PlayCall struct {
	Clip  *audio.Clip
	Start time.Time
	End   time.Time
	Err   error
}

// Player is a mock implementation of [audio.Player]. All methods are safe for
// concurrent use.
type Player struct {
	mu sync.Mutex

	// Hold is how long each Play blocks. Zero returns immediately.
	Hold time.Duration

	// Gate, if non-nil, makes Play block until a value is received.
	Gate chan struct{}

	// PlayErr, if non-nil, is returned from every Play after the hold.
	PlayErr error

	calls   []PlayCall
	active  int
	overlap bool
}

var _ audio.Player = (*Player)(nil)

// Play records the call and blocks according to Hold and Gate.
func (p *Player) Play(ctx context.Context, clip *audio.Clip) error {
	p.mu.Lock()
	p.active++
	if p.active > 1 {
		p.overlap = true
	}
	hold, gate, perr := p.Hold, p.Gate, p.PlayErr
	p.mu.Unlock()

	start := time.Now()
	err := perr
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if hold > 0 && err == nil {
		select {
		case <-time.After(hold):
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	p.mu.Lock()
	p.active--
	p.calls = append(p.calls, PlayCall{Clip: clip, Start: start, End: time.Now(), Err: err})
	p.mu.Unlock()
	return err
}

// Calls returns a copy of the recorded calls in completion order.
func (p *Player) Calls() []PlayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlayCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// Texts returns the Text of every played clip in completion order.
func (p *Player) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	for i, c := range p.calls {
		out[i] = c.Clip.Text
	}
	return out
}

// Overlapped reports whether two Play calls were ever active at once.
func (p *Player) Overlapped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overlap
}

// Reset clears all recorded calls.
func (p *Player) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
	p.overlap = false
}
