package audio

import (
	"context"
	"time"
)

// Player renders a clip to the listener. Play blocks until the clip has
// finished playing, ctx is cancelled, or playback fails. A queue relies on
// that blocking behaviour to guarantee clips never overlap.
type Player interface {
	Play(ctx context.Context, clip *Clip) error
}

// PlayerFunc adapts a function to [Player].
type PlayerFunc func(ctx context.Context, clip *Clip) error

// Play calls f(ctx, clip).
func (f PlayerFunc) Play(ctx context.Context, clip *Clip) error { return f(ctx, clip) }

// Sink hands a clip to a remote renderer without waiting for it to finish,
// for example by writing it to a network connection.
type Sink func(ctx context.Context, clip *Clip) error

// PacedPlayerOption configures a [PacedPlayer].
type PacedPlayerOption func(*PacedPlayer)

// WithTargetFormat converts every clip to f before it reaches the sink.
func WithTargetFormat(f Format) PacedPlayerOption {
	return func(p *PacedPlayer) { p.target = f }
}

// WithLeadTime shortens the hold after each clip by d, allowing the next
// clip to be delivered slightly before the current one ends so the remote
// renderer can buffer it.
func WithLeadTime(d time.Duration) PacedPlayerOption {
	return func(p *PacedPlayer) { p.lead = d }
}

// PacedPlayer turns a fire-and-forget [Sink] into a blocking [Player]: after
// delivering a clip it holds for the clip's duration so the caller observes
// real playback time.
type PacedPlayer struct {
	sink   Sink
	target Format
	lead   time.Duration
}

var _ Player = (*PacedPlayer)(nil)

// NewPacedPlayer returns a PacedPlayer delivering to sink.
func NewPacedPlayer(sink Sink, opts ...PacedPlayerOption) *PacedPlayer {
	p := &PacedPlayer{sink: sink}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Play delivers clip and waits out its duration.
func (p *PacedPlayer) Play(ctx context.Context, clip *Clip) error {
	clip = Convert(clip, p.target)
	if err := p.sink(ctx, clip); err != nil {
		return err
	}
	hold := clip.Duration() - p.lead
	if hold <= 0 {
		return nil
	}
	t := time.NewTimer(hold)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
