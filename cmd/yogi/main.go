// Command yogi is the main entry point for the Yogi pose feedback server.
//
// By default it serves the HTTP and WebSocket API. With -replay it feeds a
// recorded JSON lines landmark stream through one session instead and prints
// every update to stdout.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Pavna06/Yogi.AI/internal/app"
	"github.com/Pavna06/Yogi.AI/internal/config"
	"github.com/Pavna06/Yogi.AI/internal/observe"
	"github.com/Pavna06/Yogi.AI/internal/replay"
	"github.com/Pavna06/Yogi.AI/internal/resilience"
	"github.com/Pavna06/Yogi.AI/pkg/audio"
	"github.com/Pavna06/Yogi.AI/pkg/provider/tts"
	"github.com/Pavna06/Yogi.AI/pkg/provider/tts/coqui"
	"github.com/Pavna06/Yogi.AI/pkg/provider/tts/elevenlabs"
	"github.com/Pavna06/Yogi.AI/pkg/provider/tts/gemini"
	"github.com/Pavna06/Yogi.AI/pkg/provider/tts/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	replayPath := flag.String("replay", "", "replay a JSON lines landmark recording instead of serving")
	poseQuery := flag.String("pose", "", "pose to select before replaying (id or name)")
	realtime := flag.Float64("realtime", 0, "pace replay by frame timestamps at this speed (0 = as fast as possible)")
	clipsDir := flag.String("clips", "", "write narrated clips from a replay as WAV files into this directory")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "yogi: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "yogi: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	levelVar := new(slog.LevelVar)
	levelVar.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar})))

	slog.Info("yogi starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:      cfg.Telemetry.ServiceName,
		TraceSampleRatio: cfg.Telemetry.TraceSampleRatio,
		Global:           true,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithConfigPath(*configPath),
		app.WithLevelVar(levelVar),
		app.WithMetricsHandler(tel.Handler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if *replayPath != "" {
		code := runReplay(ctx, application, *replayPath, *poseQuery, *realtime, *clipsDir)
		shutdown(application)
		return code
	}

	slog.Info("server ready; press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("shutdown signal received, stopping")
	if err := shutdown(application); err != nil {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func shutdown(a *app.App) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := a.Shutdown(ctx)
	if err != nil {
		slog.Error("shutdown error", "err", err)
	}
	return err
}

// ── Replay ────────────────────────────────────────────────────────────────────

func runReplay(ctx context.Context, a *app.App, path, poseQuery string, speed float64, clipsDir string) int {
	f, err := os.Open(path)
	if err != nil {
		slog.Error("open recording", "err", err)
		return 1
	}
	defer f.Close()

	var player audio.Player
	if clipsDir != "" {
		if err := os.MkdirAll(clipsDir, 0o755); err != nil {
			slog.Error("create clips directory", "err", err)
			return 1
		}
		player = clipWriter(clipsDir)
	}

	sess := a.Manager().Start(ctx, player)
	if poseQuery != "" {
		p, err := sess.SelectPose(poseQuery)
		if err != nil {
			slog.Error("select pose", "query", poseQuery, "err", err)
			_, _ = a.Manager().End(ctx, sess)
			return 1
		}
		slog.Info("pose selected", "pose", p.ID)
	}

	opts := []replay.Option{replay.WithOutput(os.Stdout)}
	if speed > 0 {
		opts = append(opts, replay.WithRealtime(speed))
	}
	n, runErr := replay.Run(ctx, sess, f, opts...)

	sum, err := a.Manager().End(context.WithoutCancel(ctx), sess)
	if err != nil {
		slog.Warn("failed to save session summary", "err", err)
	}
	enc := json.NewEncoder(os.Stderr)
	enc.SetIndent("", "  ")
	_ = enc.Encode(sum)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("replay failed", "frames", n, "err", runErr)
		return 1
	}
	slog.Info("replay finished", "frames", n)
	return 0
}

// clipWriter writes each narrated clip to dir as clip-NNN.wav, paced by the
// clip's duration so the queue behaves as it would against a live listener.
func clipWriter(dir string) audio.Player {
	var seq atomic.Int64
	return audio.NewPacedPlayer(func(_ context.Context, clip *audio.Clip) error {
		name := filepath.Join(dir, fmt.Sprintf("clip-%03d.wav", seq.Add(1)))
		return os.WriteFile(name, audio.EncodeWAV(clip), 0o644)
	})
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in speech provider factories into
// reg. Each factory receives a config.ProviderEntry and constructs the
// provider from the real implementation package.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry) {
	reg.RegisterTTS("gemini", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []gemini.Option
		if entry.Model != "" {
			opts = append(opts, gemini.WithModel(entry.Model))
		}
		if voice := entry.OptionString("voice"); voice != "" {
			opts = append(opts, gemini.WithVoice(voice))
		}
		if style := entry.OptionString("style_prompt"); style != "" {
			opts = append(opts, gemini.WithStylePrompt(style))
		}
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		return gemini.New(ctx, entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []openai.Option
		if voice := entry.OptionString("voice"); voice != "" {
			opts = append(opts, openai.WithVoice(voice))
		}
		if instr := entry.OptionString("instructions"); instr != "" {
			opts = append(opts, openai.WithInstructions(instr))
		}
		if speed, ok := entry.OptionFloat("speed"); ok {
			opts = append(opts, openai.WithSpeed(speed))
		}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := entry.OptionString("output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, entry.OptionString("voice"), opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := entry.OptionString("language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if speaker := entry.OptionString("speaker"); speaker != "" {
			opts = append(opts, coqui.WithSpeaker(speaker))
		}
		if mode := entry.OptionString("api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	for _, name := range reg.TTSNames() {
		slog.Debug("registered provider", "kind", "tts", "name", name)
	}
}

// buildProviders builds the configured speech chain. Every backend sits
// behind its own circuit breaker inside a [resilience.TTSFallback].
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	chain, err := reg.CreateChain(cfg.Providers)
	if err != nil {
		return nil, err
	}
	ps := &app.Providers{}
	if len(chain) == 0 {
		return ps, nil
	}

	fb := resilience.NewTTSFallback(chain[0].Provider, chain[0].Name, resilience.FallbackConfig{},
		resilience.WithMetrics(observe.DefaultMetrics()),
	)
	for _, b := range chain[1:] {
		fb.AddFallback(b.Name, b.Provider)
	}
	slog.Info("speech providers ready", "order", fb.Names())
	ps.Speech = fb
	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Yogi startup summary         ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Speech", providerLabel(cfg.Providers.Speech))
	printRow("Fallbacks", fmt.Sprint(len(cfg.Providers.SpeechFallbacks)))
	printRow("Narration", onOff(cfg.Feedback.IsEnabled()))
	printRow("Builtin poses", onOff(cfg.Poses.IncludeBuiltin()))
	printRow("Pose files", fmt.Sprint(len(cfg.Poses.Files)))
	store := string(cfg.Sessions.Store)
	if store == "" {
		store = string(config.StoreMemory)
	}
	printRow("Session store", store)
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(e config.ProviderEntry) string {
	switch {
	case e.Name == "":
		return "(not configured)"
	case e.Model != "":
		return e.Name + " / " + e.Model
	default:
		return e.Name
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}
