// Package queue serialises clip playback so that spoken feedback never
// overlaps.
//
// A [Queue] owns one dispatch goroutine. Clips are played strictly in the
// order they were enqueued, one at a time, through an [audio.Player] whose
// Play call blocks for the length of the clip. The queue is either
// [StateIdle] (nothing playing, nothing pending) or [StatePlaying].
package queue

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Pavna06/Yogi.AI/pkg/audio"
)

// ErrClosed is returned by [Queue.Enqueue] after [Queue.Close].
var ErrClosed = errors.New("queue: closed")

// DefaultGap is the base silence inserted between consecutive clips.
const DefaultGap = 250 * time.Millisecond

// State is the playback state of a [Queue].
type State int

const (
	// StateIdle means nothing is playing and nothing is pending.
	StateIdle State = iota
	// StatePlaying means a clip is playing or about to play.
	StatePlaying
)

// String returns "idle" or "playing".
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Option configures a [Queue] during construction.
type Option func(*Queue)

// WithGap sets the base silence between consecutive clips. Jitter of ±1/6 of
// the gap is applied. Zero disables the gap.
func WithGap(d time.Duration) Option {
	return func(q *Queue) { q.gap = d }
}

// WithOnStateChange registers fn to be called on every Idle↔Playing
// transition. fn runs with the queue's lock held and must not call back into
// the queue.
func WithOnStateChange(fn func(State)) Option {
	return func(q *Queue) { q.onState = fn }
}

// WithOnPlayed registers fn to be called from the dispatch goroutine after
// each clip finishes, with the error returned by the player.
func WithOnPlayed(fn func(clip *audio.Clip, err error)) Option {
	return func(q *Queue) { q.onPlayed = fn }
}

// WithLogger sets the logger used for playback failures.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.log = l }
}

// Queue is a single-flight FIFO of clips. All exported methods are safe for
// concurrent use.
type Queue struct {
	player   audio.Player
	gap      time.Duration
	onState  func(State)
	onPlayed func(*audio.Clip, error)
	log      *slog.Logger

	mu      sync.Mutex
	pending []*audio.Clip
	state   State
	current *audio.Clip
	closed  bool

	ctx     context.Context // cancelled by Close to cut the current clip
	cancel  context.CancelFunc
	notify  chan struct{} // signalled when a clip is enqueued
	done    chan struct{} // closed by Close
	stopped chan struct{} // closed when the dispatch goroutine exits
}

// New creates a Queue that plays through player and starts its dispatch
// goroutine. Call [Queue.Close] to stop it.
func New(player audio.Player, opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		player:  player,
		gap:     DefaultGap,
		log:     slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	go q.dispatch()
	return q
}

// Enqueue appends clip to the queue. If the queue is idle the clip starts
// playing immediately; otherwise it waits for every clip ahead of it.
func (q *Queue) Enqueue(clip *audio.Clip) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.pending = append(q.pending, clip)
	if q.state == StateIdle {
		q.setStateLocked(StatePlaying)
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// State returns the current playback state.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Len returns the number of clips waiting behind the one playing.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Current returns the clip being played, or nil.
func (q *Queue) Current() *audio.Clip {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// Clear drops every pending clip without interrupting the current one and
// returns how many were dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	q.pending = nil
	if q.current == nil && q.state == StatePlaying {
		q.setStateLocked(StateIdle)
	}
	return n
}

// Close interrupts the current clip, drops pending clips and waits for the
// dispatch goroutine to exit. Close is idempotent.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.stopped
		return nil
	}
	q.closed = true
	q.pending = nil
	q.mu.Unlock()

	q.cancel()
	close(q.done)
	<-q.stopped
	return nil
}

func (q *Queue) setStateLocked(s State) {
	if q.state == s {
		return
	}
	q.state = s
	if q.onState != nil {
		q.onState(s)
	}
}

// dispatch plays clips until Close.
func (q *Queue) dispatch() {
	defer close(q.stopped)

	gapTimer := time.NewTimer(0)
	if !gapTimer.Stop() {
		<-gapTimer.C
	}
	defer gapTimer.Stop()

	for {
		select {
		case <-q.done:
			return
		case <-q.notify:
		}

		lastPlayed := false
		for {
			clip, ok := q.dequeue()
			if !ok {
				break
			}

			if lastPlayed {
				if d := q.gapWithJitter(); d > 0 {
					gapTimer.Reset(d)
					select {
					case <-q.done:
						if !gapTimer.Stop() {
							<-gapTimer.C
						}
						return
					case <-gapTimer.C:
					}
				}
			}

			err := q.player.Play(q.ctx, clip)
			lastPlayed = true
			if err != nil && q.ctx.Err() == nil {
				q.log.Warn("queue: playback failed", "text", clip.Text, "err", err)
			}
			if q.onPlayed != nil {
				q.onPlayed(clip, err)
			}
			q.finish()
		}
	}
}

// dequeue pops the oldest pending clip and marks it current. When nothing is
// pending the queue transitions to idle and ok is false.
func (q *Queue) dequeue() (*audio.Clip, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, false
	}
	if len(q.pending) == 0 {
		q.setStateLocked(StateIdle)
		return nil, false
	}
	clip := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.current = clip
	return clip, true
}

func (q *Queue) finish() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.current = nil
}

// gapWithJitter returns the configured gap with ±1/6 jitter applied.
func (q *Queue) gapWithJitter() time.Duration {
	base := q.gap
	if base <= 0 {
		return 0
	}
	jitterRange := base / 6
	if jitterRange <= 0 {
		return base
	}
	return base + time.Duration(rand.Int64N(int64(2*jitterRange+1))) - jitterRange
}
