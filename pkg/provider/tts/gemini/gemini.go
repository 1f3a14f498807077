// Package gemini provides a Google Gemini-backed TTS provider using the
// generateContent API with audio response modality. It implements the
// tts.Provider interface.
//
// Gemini returns raw 16-bit little-endian PCM (24 kHz mono for the current
// TTS models) as inline data; the sample rate is read from the part's MIME
// type when present.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/Pavna06/Yogi.AI/pkg/audio"
	"github.com/Pavna06/Yogi.AI/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultModel = "gemini-2.5-flash-preview-tts"
	defaultVoice = "Algenib"
)

// Option is a functional option for configuring the Gemini Provider.
type Option func(*Provider)

// WithModel sets the TTS model (e.g., "gemini-2.5-pro-preview-tts").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithVoice sets the prebuilt voice name (e.g., "Kore", "Puck").
func WithVoice(voice string) Option {
	return func(p *Provider) { p.voice = voice }
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithStylePrompt prefixes every utterance with a delivery instruction such
// as "Say calmly:". Gemini TTS takes style direction in the prompt itself.
func WithStylePrompt(prompt string) Option {
	return func(p *Provider) { p.style = prompt }
}

// Provider implements tts.Provider backed by Gemini speech generation.
type Provider struct {
	client     *genai.Client
	model      string
	voice      string
	style      string
	baseURL    string
	httpClient *http.Client
}

// New creates a new Gemini Provider. apiKey must be non-empty.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: apiKey must not be empty")
	}
	p := &Provider{
		model: defaultModel,
		voice: defaultVoice,
	}
	for _, o := range opts {
		o(p)
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
	}
	if p.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	p.client = client
	return p, nil
}

// Synthesize requests spoken audio for text and returns it as a clip.
func (p *Provider) Synthesize(ctx context.Context, text string) (*audio.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}

	prompt := text
	if p.style != "" {
		prompt = p.style + " " + text
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: p.voice},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: generate speech: %w", err)
	}

	var (
		pcm    []byte
		format = audio.Mono24k
	)
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			if rate := rateFromMIME(part.InlineData.MIMEType); rate > 0 {
				format.SampleRate = rate
			}
			pcm = append(pcm, part.InlineData.Data...)
		}
		if len(pcm) > 0 {
			break
		}
	}
	if len(pcm) == 0 {
		return nil, tts.ErrNoAudio
	}
	return &audio.Clip{Text: text, PCM: pcm, Format: format}, nil
}

// rateFromMIME extracts the rate parameter from a MIME type such as
// "audio/L16;codec=pcm;rate=24000". Returns 0 if absent.
func rateFromMIME(mime string) int {
	for _, param := range strings.Split(mime, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(k, "rate") {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
