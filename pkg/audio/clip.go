// Package audio holds the audio primitives shared by speech providers and
// playback: the [Clip] handle produced by a speech request, its PCM [Format],
// WAV container helpers and the [Player] contract that consumes clips.
//
// All PCM in this package is signed 16-bit little-endian, interleaved when
// multi-channel.
package audio

import (
	"fmt"
	"time"
)

// Format describes the sample rate and channel count of 16-bit PCM.
type Format struct {
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
}

// Common formats returned by speech services.
var (
	// Mono24k is 24 kHz mono, the native output of Gemini and OpenAI TTS.
	Mono24k = Format{SampleRate: 24000, Channels: 1}
	// Mono16k is 16 kHz mono.
	Mono16k = Format{SampleRate: 16000, Channels: 1}
)

// Valid reports whether both fields are positive.
func (f Format) Valid() bool { return f.SampleRate > 0 && f.Channels > 0 }

// BytesPerSecond returns the PCM byte rate for the format.
func (f Format) BytesPerSecond() int { return f.SampleRate * f.Channels * 2 }

// String returns e.g. "24000Hz mono".
func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	}
}

// Clip is a fully synthesised utterance ready for playback.
type Clip struct {
	// Text is the utterance the clip speaks.
	Text string

	// PCM holds the raw samples.
	PCM []byte

	Format Format
}

// Duration returns the playback length implied by the PCM size and format.
// An invalid format yields 0.
func (c *Clip) Duration() time.Duration {
	if c == nil || !c.Format.Valid() {
		return 0
	}
	bps := c.Format.BytesPerSecond()
	return time.Duration(int64(len(c.PCM)) * int64(time.Second) / int64(bps))
}

// Empty reports whether the clip carries no samples.
func (c *Clip) Empty() bool { return c == nil || len(c.PCM) < 2 }
