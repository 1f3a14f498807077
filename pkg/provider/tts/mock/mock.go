// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return controlled clips or errors and to verify which
// texts were submitted for synthesis.
//
//	p := &mock.Provider{Delay: 10 * time.Millisecond}
//	clip, _ := p.Synthesize(ctx, "Straighten your back leg.")
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/Pavna06/Yogi.AI/pkg/audio"
	"github.com/Pavna06/Yogi.AI/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Text is the text passed to Synthesize.
	Text string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// PCM is returned as the clip payload. Defaults to 10 ms of silence at
	// 24 kHz mono when nil.
	PCM []byte

	// Format of the returned clip. Defaults to [audio.Mono24k].
	Format audio.Format

	// SynthesizeErr, if non-nil, is returned instead of a clip.
	SynthesizeErr error

	// ErrFor maps specific texts to errors, overriding SynthesizeErr.
	ErrFor map[string]error

	// Delay is how long Synthesize waits before answering. Cancellation of
	// ctx during the delay returns ctx.Err().
	Delay time.Duration

	// DelayFor maps specific texts to delays, overriding Delay.
	DelayFor map[string]time.Duration

	// --- Call records ---

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns a clip or the configured error.
func (p *Provider) Synthesize(ctx context.Context, text string) (*audio.Clip, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text})
	delay := p.Delay
	if d, ok := p.DelayFor[text]; ok {
		delay = d
	}
	err := p.SynthesizeErr
	if e, ok := p.ErrFor[text]; ok {
		err = e
	}
	pcm := p.PCM
	format := p.Format
	p.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if err != nil {
		return nil, err
	}
	if pcm == nil {
		pcm = make([]byte, 480)
	}
	if !format.Valid() {
		format = audio.Mono24k
	}
	return &audio.Clip{Text: text, PCM: pcm, Format: format}, nil
}

// Texts returns the text of every recorded call in order.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.SynthesizeCalls))
	for i, c := range p.SynthesizeCalls {
		out[i] = c.Text
	}
	return out
}

// CallCount returns the number of recorded calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
