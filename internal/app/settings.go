package app

import (
	"log/slog"

	"github.com/Pavna06/Yogi.AI/internal/config"
	"github.com/Pavna06/Yogi.AI/internal/feedback"
	"github.com/Pavna06/Yogi.AI/internal/session"
	"github.com/Pavna06/Yogi.AI/pkg/breathing"
	"github.com/Pavna06/Yogi.AI/pkg/pose"
)

// SettingsFromConfig converts the tunable config sections into session
// settings. Zero values keep each component's defaults.
func SettingsFromConfig(cfg *config.Config) session.Settings {
	var s session.Settings

	ev := cfg.Evaluator
	if ev.FramingConfidence > 0 {
		s.Evaluator = append(s.Evaluator, pose.WithFramingConfidence(ev.FramingConfidence))
	}
	if ev.KeypointConfidence > 0 {
		s.Evaluator = append(s.Evaluator, pose.WithKeypointConfidence(ev.KeypointConfidence))
	}
	if ev.FalloffDegrees > 0 {
		s.Evaluator = append(s.Evaluator, pose.WithFalloffDegrees(ev.FalloffDegrees))
	}

	br := cfg.Breathing
	if br.WindowSeconds > 0 {
		s.Breathing = append(s.Breathing, breathing.WithWindow(int64(br.WindowSeconds*1000)))
	}
	if br.MinSamples > 0 {
		s.Breathing = append(s.Breathing, breathing.WithMinSamples(br.MinSamples))
	}
	if br.ShoulderConfidence > 0 {
		s.Breathing = append(s.Breathing, breathing.WithConfidence(br.ShoulderConfidence))
	}
	if br.Smoothing > 1 {
		s.Breathing = append(s.Breathing, breathing.WithSmoothing(br.Smoothing))
	}

	fb := cfg.Feedback
	s.Narrate = fb.IsEnabled()
	if fb.RepeatCooldown != nil {
		s.Feedback = append(s.Feedback, feedback.WithRepeatCooldown(*fb.RepeatCooldown))
	}
	if fb.RequestTimeout > 0 {
		s.Feedback = append(s.Feedback, feedback.WithRequestTimeout(fb.RequestTimeout))
	}
	if fb.Gap != nil {
		s.Feedback = append(s.Feedback, feedback.WithGap(*fb.Gap))
	}
	return s
}

// SlogLevel maps a config log level to its slog level. Unknown values map
// to Info.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
