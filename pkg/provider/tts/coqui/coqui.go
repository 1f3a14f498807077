// Package coqui narrates feedback through a self-hosted Coqui server, for
// studios that keep audio generation on premises.
//
// The standard Coqui TTS server (ghcr.io/coqui-ai/tts-cpu) is addressed with
// GET /api/tts. An XTTS v2 API server is addressed with POST /tts_to_audio/
// and needs a reference speaker. Either way the answer is a WAV file.
//
//	p, _ := coqui.New("http://localhost:5002", coqui.WithSpeaker("p225"))
//	clip, err := p.Synthesize(ctx, "Straighten your front leg.")
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Pavna06/Yogi.AI/pkg/audio"
	"github.com/Pavna06/Yogi.AI/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	standardPath = "/api/tts"
	xttsPath     = "/tts_to_audio/"

	// maxClipBytes caps a response. A spoken cue is a few seconds; 8 MiB is
	// several minutes of 22.05kHz mono.
	maxClipBytes = 8 << 20
)

// APIMode selects the server flavour.
type APIMode string

const (
	APIModeStandard APIMode = "standard"
	APIModeXTTS     APIMode = "xtts"
)

// StatusError is returned when the server answers with a non-200 status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("coqui: server returned %d", e.Code)
	}
	return fmt.Sprintf("coqui: server returned %d: %s", e.Code, e.Message)
}

// Option configures a [Provider].
type Option func(*Provider)

// WithLanguage sets the language code. Default: "en".
func WithLanguage(lang string) Option { return func(p *Provider) { p.language = lang } }

// WithSpeaker sets the speaker id (standard) or reference speaker (XTTS).
func WithSpeaker(s string) Option { return func(p *Provider) { p.speaker = s } }

// WithAPIMode selects the server flavour. Default: [APIModeStandard].
func WithAPIMode(m APIMode) Option { return func(p *Provider) { p.mode = m } }

// WithTimeout bounds each request. Default: 30s.
func WithTimeout(d time.Duration) Option { return func(p *Provider) { p.client.Timeout = d } }

// WithHTTPClient replaces the HTTP client. A later [WithTimeout] applies to it.
func WithHTTPClient(c *http.Client) Option { return func(p *Provider) { p.client = c } }

// Provider synthesizes cues on a Coqui server. It is safe for concurrent use.
type Provider struct {
	base     string
	language string
	speaker  string
	mode     APIMode
	client   *http.Client
}

// New targets the server at baseURL, e.g. "http://localhost:5002".
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("coqui: base URL is required")
	}
	p := &Provider{
		base:     strings.TrimRight(baseURL, "/"),
		language: "en",
		mode:     APIModeStandard,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	switch {
	case p.mode != APIModeStandard && p.mode != APIModeXTTS:
		return nil, fmt.Errorf("coqui: unknown api_mode %q", p.mode)
	case p.mode == APIModeXTTS && p.speaker == "":
		return nil, errors.New("coqui: api_mode xtts requires a speaker")
	}
	return p, nil
}

// xttsBody is the POST /tts_to_audio/ payload.
type xttsBody struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize renders text to a clip.
func (p *Provider) Synthesize(ctx context.Context, text string) (*audio.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}
	req, err := p.request(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("coqui: build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxClipBytes+1))
	if err != nil {
		return nil, fmt.Errorf("coqui: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Message: excerpt(body)}
	}
	if len(body) > maxClipBytes {
		return nil, fmt.Errorf("coqui: response exceeds %d bytes", maxClipBytes)
	}

	clip, err := audio.DecodeWAV(body)
	if err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	if clip.Empty() {
		return nil, tts.ErrNoAudio
	}
	clip.Text = text
	return clip, nil
}

func (p *Provider) request(ctx context.Context, text string) (*http.Request, error) {
	var (
		req *http.Request
		err error
	)
	switch p.mode {
	case APIModeXTTS:
		data, merr := json.Marshal(xttsBody{Text: text, SpeakerWav: p.speaker, Language: p.language})
		if merr != nil {
			return nil, merr
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, p.base+xttsPath, bytes.NewReader(data))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	default:
		q := url.Values{"text": {text}}
		if p.speaker != "" {
			q.Set("speaker_id", p.speaker)
		}
		if p.language != "" {
			q.Set("language_id", p.language)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, p.base+standardPath+"?"+q.Encode(), nil)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "audio/wav")
	return req, nil
}

// excerpt returns the first line of an error body, trimmed to 200 bytes.
func excerpt(body []byte) string {
	s, _, _ := strings.Cut(strings.TrimSpace(string(body)), "\n")
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
