// Package tts defines the Provider interface for text-to-speech backends.
//
// A provider turns one short feedback utterance into a complete [audio.Clip].
// Feedback strings are a sentence or two, so synthesis is a single batch
// request rather than a stream; callers run requests on their own goroutines
// when they must not block.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"

	"github.com/Pavna06/Yogi.AI/pkg/audio"
)

// ErrEmptyText is returned when Synthesize is called with blank text.
var ErrEmptyText = errors.New("tts: text must not be empty")

// ErrNoAudio is returned when a backend answers successfully but without any
// audio payload.
var ErrNoAudio = errors.New("tts: response contained no audio")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text as speech. The returned clip's Text is set to
	// text. Returns an error if the request fails, is rejected, or ctx is
	// cancelled first.
	Synthesize(ctx context.Context, text string) (*audio.Clip, error)
}

// ProviderFunc adapts a function to [Provider].
type ProviderFunc func(ctx context.Context, text string) (*audio.Clip, error)

// Synthesize calls f(ctx, text).
func (f ProviderFunc) Synthesize(ctx context.Context, text string) (*audio.Clip, error) {
	return f(ctx, text)
}
