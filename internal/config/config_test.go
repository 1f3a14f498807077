package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Pavna06/Yogi.AI/internal/config"
	"github.com/Pavna06/Yogi.AI/pkg/audio"
	"github.com/Pavna06/Yogi.AI/pkg/provider/tts"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: info

providers:
  speech:
    name: gemini
    api_key: g-test
    options:
      voice: Algenib
  speech_fallbacks:
    - name: openai
      api_key: sk-test
      model: gpt-4o-mini-tts
      options:
        speed: 1.1
    - name: coqui
      base_url: http://localhost:5002

evaluator:
  framing_confidence: 0.4
  keypoint_confidence: 0.35
  falloff_degrees: 30

breathing:
  window_seconds: 12
  min_samples: 45
  shoulder_confidence: 0.6
  smoothing: 5

feedback:
  repeat_cooldown: 6s
  request_timeout: 10s
  gap: 0s

poses:
  builtin: false
  files:
    - poses/custom.yaml

sessions:
  store: file
  path: sessions.jsonl

telemetry:
  service_name: yogi-test
`

func mustLoad(t *testing.T, y string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(y))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

func expectErr(t *testing.T, y, want string) {
	t.Helper()
	_, err := config.LoadFromReader(strings.NewReader(y))
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", want)
	}
	if !strings.Contains(err.Error(), want) {
		t.Fatalf("error %q does not contain %q", err, want)
	}
}

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Providers.Speech.Name != "gemini" {
		t.Errorf("speech.name = %q", cfg.Providers.Speech.Name)
	}
	if got := cfg.Providers.Speech.OptionString("voice"); got != "Algenib" {
		t.Errorf("speech voice option = %q", got)
	}
	if len(cfg.Providers.SpeechFallbacks) != 2 {
		t.Fatalf("speech_fallbacks = %d, want 2", len(cfg.Providers.SpeechFallbacks))
	}
	if v, ok := cfg.Providers.SpeechFallbacks[0].OptionFloat("speed"); !ok || v != 1.1 {
		t.Errorf("openai speed option = %v, %v", v, ok)
	}
	if cfg.Evaluator.FalloffDegrees != 30 {
		t.Errorf("falloff_degrees = %v", cfg.Evaluator.FalloffDegrees)
	}
	if cfg.Breathing.MinSamples != 45 || cfg.Breathing.Smoothing != 5 {
		t.Errorf("breathing = %+v", cfg.Breathing)
	}
	if cfg.Feedback.RepeatCooldown == nil || *cfg.Feedback.RepeatCooldown != 6*time.Second {
		t.Errorf("repeat_cooldown = %v", cfg.Feedback.RepeatCooldown)
	}
	if cfg.Feedback.RequestTimeout != 10*time.Second {
		t.Errorf("request_timeout = %v", cfg.Feedback.RequestTimeout)
	}
	if cfg.Feedback.Gap == nil || *cfg.Feedback.Gap != 0 {
		t.Errorf("gap = %v, want explicit 0", cfg.Feedback.Gap)
	}
	if !cfg.Feedback.IsEnabled() {
		t.Error("feedback should default to enabled")
	}
	if cfg.Poses.IncludeBuiltin() {
		t.Error("builtin poses should be disabled")
	}
	if cfg.Sessions.Store != config.StoreFile {
		t.Errorf("sessions.store = %q", cfg.Sessions.Store)
	}
	if cfg.Telemetry.ServiceName != "yogi-test" {
		t.Errorf("service_name = %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoadFromReader_EmptyIsValid(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, "")
	if !cfg.Poses.IncludeBuiltin() {
		t.Error("empty config should include builtin poses")
	}
	if cfg.Feedback.RepeatCooldown != nil {
		t.Error("repeat_cooldown should be unset")
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	expectErr(t, "server:\n  listen_adr: \":8080\"\n", "listen_adr")
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/yogi.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

// ── Validation ───────────────────────────────────────────────────────────────

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"log level", "server:\n  log_level: bananas\n", "server.log_level"},
		{"tls half set", "server:\n  tls:\n    cert_file: a.pem\n", "server.tls"},
		{"fallback without primary", "providers:\n  speech_fallbacks:\n    - name: openai\n", "requires providers.speech"},
		{"fallback missing name", "providers:\n  speech:\n    name: gemini\n  speech_fallbacks:\n    - api_key: x\n", "speech_fallbacks[0].name is required"},
		{"duplicate fallback", "providers:\n  speech:\n    name: gemini\n  speech_fallbacks:\n    - name: gemini\n", "duplicate"},
		{"framing range", "evaluator:\n  framing_confidence: 1.5\n", "framing_confidence"},
		{"keypoint range", "evaluator:\n  keypoint_confidence: -0.1\n", "keypoint_confidence"},
		{"falloff negative", "evaluator:\n  falloff_degrees: -1\n", "falloff_degrees"},
		{"window negative", "breathing:\n  window_seconds: -5\n", "window_seconds"},
		{"min samples", "breathing:\n  min_samples: 2\n", "min_samples"},
		{"shoulder range", "breathing:\n  shoulder_confidence: 2\n", "shoulder_confidence"},
		{"even smoothing", "breathing:\n  smoothing: 4\n", "smoothing"},
		{"negative cooldown", "feedback:\n  repeat_cooldown: -1s\n", "repeat_cooldown"},
		{"negative timeout", "feedback:\n  request_timeout: -1s\n", "request_timeout"},
		{"negative gap", "feedback:\n  gap: -1ms\n", "feedback.gap"},
		{"no poses", "poses:\n  builtin: false\n", "no files"},
		{"empty pose file", "poses:\n  files: [\"\"]\n", "poses.files[0]"},
		{"file store path", "sessions:\n  store: file\n", "sessions.path"},
		{"postgres dsn", "sessions:\n  store: postgres\n", "postgres_dsn"},
		{"unknown store", "sessions:\n  store: redis\n", "sessions.store"},
		{"sample ratio", "telemetry:\n  trace_sample_ratio: 1.5\n", "trace_sample_ratio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			expectErr(t, tt.yaml, tt.want)
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server:    config.ServerConfig{LogLevel: "loud"},
		Evaluator: config.EvaluatorConfig{FalloffDegrees: -3},
		Sessions:  config.SessionsConfig{Store: config.StorePostgres},
	}
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"log_level", "falloff_degrees", "postgres_dsn"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestValidate_UnknownProviderOnlyWarns(t *testing.T) {
	t.Parallel()
	mustLoad(t, "providers:\n  speech:\n    name: my-custom-tts\n")
}

func TestStoreKind_IsValid(t *testing.T) {
	t.Parallel()
	for _, k := range []config.StoreKind{config.StoreMemory, config.StoreFile, config.StorePostgres} {
		if !k.IsValid() {
			t.Errorf("%q should be valid", k)
		}
	}
	if config.StoreKind("sqlite").IsValid() {
		t.Error("sqlite should be invalid")
	}
}

func TestPoseFilePaths(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Poses: config.PosesConfig{Files: []string{"poses/a.yaml", "/abs/b.yaml"}}}
	got := config.PoseFilePaths(cfg, "/etc/yogi/config.yaml")
	if len(got) != 2 || got[0] != "/etc/yogi/poses/a.yaml" || got[1] != "/abs/b.yaml" {
		t.Fatalf("PoseFilePaths = %v", got)
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_UnknownTTS(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	_, err := reg.CreateTTS(config.ProviderEntry{Name: "nonexistent"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_RegisteredTTS(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	want := &stubTTS{}
	var gotEntry config.ProviderEntry
	reg.RegisterTTS("stub", func(e config.ProviderEntry) (tts.Provider, error) {
		gotEntry = e
		return want, nil
	})
	got, err := reg.CreateTTS(config.ProviderEntry{Name: "stub", Model: "m1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned provider is not the expected instance")
	}
	if gotEntry.Model != "m1" {
		t.Errorf("factory saw model %q, want m1", gotEntry.Model)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	wantErr := errors.New("factory boom")
	reg.RegisterTTS("broken", func(config.ProviderEntry) (tts.Provider, error) {
		return nil, wantErr
	})
	_, err := reg.CreateTTS(config.ProviderEntry{Name: "broken"})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected factory error %v, got %v", wantErr, err)
	}
}

func TestRegistry_TTSNamesSorted(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	for _, n := range []string{"openai", "coqui", "gemini"} {
		reg.RegisterTTS(n, func(config.ProviderEntry) (tts.Provider, error) { return &stubTTS{}, nil })
	}
	got := reg.TTSNames()
	want := []string{"coqui", "gemini", "openai"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("TTSNames = %v, want %v", got, want)
	}
}

// stubTTS implements tts.Provider.
type stubTTS struct{}

func (s *stubTTS) Synthesize(_ context.Context, text string) (*audio.Clip, error) {
	return &audio.Clip{Text: text, Format: audio.Mono24k}, nil
}
