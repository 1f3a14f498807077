package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PosesChanged is true when the builtin flag or the pose file list
	// changed. Edits inside an unchanged list of files are not visible here;
	// a reload of the catalog picks them up.
	PosesChanged bool

	// EvaluatorChanged, BreathingChanged and FeedbackChanged apply to
	// sessions started after the change.
	EvaluatorChanged bool
	BreathingChanged bool
	FeedbackChanged  bool

	// RestartRequired names the top-level sections whose changes only take
	// effect after a restart.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !equalBool(old.Poses.Builtin, new.Poses.Builtin, true) || !slices.Equal(old.Poses.Files, new.Poses.Files) {
		d.PosesChanged = true
	}

	d.EvaluatorChanged = old.Evaluator != new.Evaluator
	d.BreathingChanged = old.Breathing != new.Breathing
	d.FeedbackChanged = !reflect.DeepEqual(old.Feedback, new.Feedback)

	if old.Server.ListenAddr != new.Server.ListenAddr || !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Sessions != new.Sessions {
		d.RestartRequired = append(d.RestartRequired, "sessions")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}

// equalBool compares two optional booleans, treating nil as def.
func equalBool(a, b *bool, def bool) bool {
	av, bv := def, def
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return av == bv
}

// Changed reports whether d records any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.PosesChanged || d.EvaluatorChanged ||
		d.BreathingChanged || d.FeedbackChanged || len(d.RestartRequired) > 0
}
