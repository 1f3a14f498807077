package config_test

import (
	"slices"
	"testing"

	"github.com/Pavna06/Yogi.AI/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	a := mustLoad(t, sampleYAML)
	b := mustLoad(t, sampleYAML)
	d := config.Diff(a, b)
	if d.Changed() {
		t.Fatalf("expected no changes, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	upd := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}
	d := config.Diff(old, upd)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Fatalf("diff = %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level change should not require restart: %v", d.RestartRequired)
	}
}

func TestDiff_PosesChanged(t *testing.T) {
	t.Parallel()
	f, tr := false, true
	tests := []struct {
		name     string
		old, new config.PosesConfig
		want     bool
	}{
		{"same files", config.PosesConfig{Files: []string{"a.yaml"}}, config.PosesConfig{Files: []string{"a.yaml"}}, false},
		{"file added", config.PosesConfig{}, config.PosesConfig{Files: []string{"a.yaml"}}, true},
		{"builtin disabled", config.PosesConfig{Files: []string{"a.yaml"}}, config.PosesConfig{Builtin: &f, Files: []string{"a.yaml"}}, true},
		{"nil equals default true", config.PosesConfig{}, config.PosesConfig{Builtin: &tr}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := config.Diff(&config.Config{Poses: tt.old}, &config.Config{Poses: tt.new})
			if d.PosesChanged != tt.want {
				t.Errorf("PosesChanged = %v, want %v", d.PosesChanged, tt.want)
			}
		})
	}
}

func TestDiff_SessionTuning(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	upd := &config.Config{
		Evaluator: config.EvaluatorConfig{FalloffDegrees: 30},
		Breathing: config.BreathingConfig{MinSamples: 60},
		Feedback:  config.FeedbackConfig{RequestTimeout: 5},
	}
	d := config.Diff(old, upd)
	if !d.EvaluatorChanged || !d.BreathingChanged || !d.FeedbackChanged {
		t.Fatalf("diff = %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("session tuning should not require restart: %v", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := mustLoad(t, sampleYAML)
	upd := mustLoad(t, sampleYAML)
	upd.Server.ListenAddr = ":9090"
	upd.Providers.Speech.Name = "openai"
	upd.Sessions.Store = config.StoreMemory
	upd.Telemetry.ServiceName = "other"

	d := config.Diff(old, upd)
	for _, want := range []string{"server", "providers", "sessions", "telemetry"} {
		if !slices.Contains(d.RestartRequired, want) {
			t.Errorf("RestartRequired %v missing %q", d.RestartRequired, want)
		}
	}
}
