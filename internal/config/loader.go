package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidSpeechProviders lists known speech provider names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidSpeechProviders = []string{"gemini", "openai", "elevenlabs", "coqui"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// An empty document yields the zero [Config], which is valid.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Speech providers
	validateProviderName("providers.speech", cfg.Providers.Speech.Name)
	if cfg.Providers.Speech.Name == "" {
		if len(cfg.Providers.SpeechFallbacks) > 0 {
			errs = append(errs, errors.New("providers.speech_fallbacks requires providers.speech"))
		}
		if cfg.Feedback.IsEnabled() {
			slog.Warn("no speech provider configured; feedback will not be narrated")
		}
	}
	seen := map[string]string{cfg.Providers.Speech.Name: "providers.speech"}
	for i, fb := range cfg.Providers.SpeechFallbacks {
		prefix := fmt.Sprintf("providers.speech_fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateProviderName(prefix, fb.Name)
		if prev, ok := seen[fb.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of %s", prefix, fb.Name, prev))
		}
		seen[fb.Name] = prefix
	}

	// Evaluator
	if c := cfg.Evaluator.FramingConfidence; c < 0 || c > 1 {
		errs = append(errs, fmt.Errorf("evaluator.framing_confidence %.2f is out of range [0, 1]", c))
	}
	if c := cfg.Evaluator.KeypointConfidence; c < 0 || c > 1 {
		errs = append(errs, fmt.Errorf("evaluator.keypoint_confidence %.2f is out of range [0, 1]", c))
	}
	if cfg.Evaluator.FalloffDegrees < 0 {
		errs = append(errs, fmt.Errorf("evaluator.falloff_degrees %.2f must not be negative", cfg.Evaluator.FalloffDegrees))
	}

	// Breathing
	if cfg.Breathing.WindowSeconds < 0 {
		errs = append(errs, fmt.Errorf("breathing.window_seconds %.2f must not be negative", cfg.Breathing.WindowSeconds))
	}
	if n := cfg.Breathing.MinSamples; n != 0 && n < 3 {
		errs = append(errs, fmt.Errorf("breathing.min_samples %d must be at least 3", n))
	}
	if c := cfg.Breathing.ShoulderConfidence; c < 0 || c > 1 {
		errs = append(errs, fmt.Errorf("breathing.shoulder_confidence %.2f is out of range [0, 1]", c))
	}
	if n := cfg.Breathing.Smoothing; n < 0 || (n > 1 && n%2 == 0) {
		errs = append(errs, fmt.Errorf("breathing.smoothing %d must be 0 or an odd number", n))
	}

	// Feedback
	if d := cfg.Feedback.RepeatCooldown; d != nil && *d < 0 {
		errs = append(errs, fmt.Errorf("feedback.repeat_cooldown %s must not be negative", *d))
	}
	if cfg.Feedback.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("feedback.request_timeout %s must not be negative", cfg.Feedback.RequestTimeout))
	}
	if d := cfg.Feedback.Gap; d != nil && *d < 0 {
		errs = append(errs, fmt.Errorf("feedback.gap %s must not be negative", *d))
	}

	// Poses
	if !cfg.Poses.IncludeBuiltin() && len(cfg.Poses.Files) == 0 {
		errs = append(errs, errors.New("poses: builtin is disabled and no files are listed"))
	}
	for i, f := range cfg.Poses.Files {
		if f == "" {
			errs = append(errs, fmt.Errorf("poses.files[%d] is empty", i))
		}
	}

	// Sessions
	switch cfg.Sessions.Store {
	case "", StoreMemory:
	case StoreFile:
		if cfg.Sessions.Path == "" {
			errs = append(errs, errors.New("sessions.path is required when store is file"))
		}
	case StorePostgres:
		if cfg.Sessions.PostgresDSN == "" {
			errs = append(errs, errors.New("sessions.postgres_dsn is required when store is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("sessions.store %q is invalid; valid values: memory, file, postgres", cfg.Sessions.Store))
	}

	// Telemetry
	if r := cfg.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %.2f is out of range [0, 1]", r))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not one of
// [ValidSpeechProviders].
func validateProviderName(field, name string) {
	if name == "" || slices.Contains(ValidSpeechProviders, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"field", field,
		"name", name,
		"known", ValidSpeechProviders,
	)
}
