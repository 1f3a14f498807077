package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Pavna06/Yogi.AI/internal/observe"
	"github.com/Pavna06/Yogi.AI/pkg/provider/tts"
	ttsmock "github.com/Pavna06/Yogi.AI/pkg/provider/tts/mock"
)

func TestTTSFallback_Synthesize_PrimarySuccess(t *testing.T) {
	primary := &ttsmock.Provider{PCM: []byte{1, 2, 3, 4}}
	secondary := &ttsmock.Provider{PCM: []byte{9, 9}}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	clip, err := fb.Synthesize(context.Background(), "Bend your knee.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clip.PCM) != 4 {
		t.Fatalf("got %d bytes, want 4 from primary", len(clip.PCM))
	}
	if clip.Text != "Bend your knee." {
		t.Fatalf("clip text = %q", clip.Text)
	}
	if primary.CallCount() != 1 {
		t.Fatalf("primary called %d times, want 1", primary.CallCount())
	}
	if secondary.CallCount() != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.CallCount())
	}
}

func TestTTSFallback_Synthesize_Failover(t *testing.T) {
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("primary down")}
	secondary := &ttsmock.Provider{PCM: []byte{9, 9}}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	clip, err := fb.Synthesize(context.Background(), "Lift your arms.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clip.PCM) != 2 {
		t.Fatalf("got %d bytes, want 2 from secondary", len(clip.PCM))
	}
	if got := secondary.Texts(); len(got) != 1 || got[0] != "Lift your arms." {
		t.Fatalf("secondary texts = %v", got)
	}
}

func TestTTSFallback_Synthesize_AllFail(t *testing.T) {
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("primary down")}
	secondary := &ttsmock.Provider{SynthesizeErr: errors.New("secondary down")}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Synthesize(context.Background(), "Hold.")
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestTTSFallback_Synthesize_EmptyText(t *testing.T) {
	primary := &ttsmock.Provider{}
	fb := NewTTSFallback(primary, "primary", FallbackConfig{})

	_, err := fb.Synthesize(context.Background(), "")
	if !errors.Is(err, tts.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
	if primary.CallCount() != 0 {
		t.Fatalf("primary called %d times, want 0", primary.CallCount())
	}
}

func TestTTSFallback_CancelledContextDoesNotFailOver(t *testing.T) {
	primary := &ttsmock.Provider{Delay: time.Second}
	secondary := &ttsmock.Provider{}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1},
	})
	fb.AddFallback("secondary", secondary)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := fb.Synthesize(ctx, "Breathe.")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if secondary.CallCount() != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.CallCount())
	}
	if s := fb.States()["primary"]; s != StateClosed {
		t.Fatalf("primary breaker = %v, want closed (cancellation is not a backend failure)", s)
	}
}

func TestTTSFallback_NamesAndStates(t *testing.T) {
	fb := NewTTSFallback(&ttsmock.Provider{}, "gemini", FallbackConfig{})
	fb.AddFallback("openai", &ttsmock.Provider{})

	names := fb.Names()
	if len(names) != 2 || names[0] != "gemini" || names[1] != "openai" {
		t.Fatalf("names = %v", names)
	}
	if len(fb.States()) != 2 {
		t.Fatalf("states = %v", fb.States())
	}
}

func TestTTSFallback_RecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	fb := NewTTSFallback(&ttsmock.Provider{SynthesizeErr: errors.New("down")}, "primary",
		FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3}}, WithMetrics(m))
	fb.AddFallback("secondary", &ttsmock.Provider{})

	if _, err := fb.Synthesize(context.Background(), "Relax your shoulders."); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var requests, errs int64
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				switch md.Name {
				case "yogi.provider.requests":
					requests += dp.Value
				case "yogi.provider.errors":
					errs += dp.Value
				}
			}
		}
	}
	if requests != 2 {
		t.Errorf("provider requests = %d, want 2", requests)
	}
	if errs != 1 {
		t.Errorf("provider errors = %d, want 1", errs)
	}
}

func TestTTSFallback_CountsBreakerTransitions(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	var chained []string
	fb := NewTTSFallback(&ttsmock.Provider{SynthesizeErr: errors.New("down")}, "gemini",
		FallbackConfig{CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  1,
			ResetTimeout: time.Hour,
			OnStateChange: func(name string, _, to State) {
				chained = append(chained, name+"="+to.String())
			},
		}}, WithMetrics(m))
	fb.AddFallback("openai", &ttsmock.Provider{})

	if _, err := fb.Synthesize(context.Background(), "Lengthen your spine."); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(chained) != 1 || chained[0] != "gemini=open" {
		t.Fatalf("chained callback saw %v", chained)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "yogi.provider.breaker.transitions" {
				continue
			}
			for _, dp := range md.Data.(metricdata.Sum[int64]).DataPoints {
				p, _ := dp.Attributes.Value("provider")
				s, _ := dp.Attributes.Value("state")
				if p.AsString() == "gemini" && s.AsString() == "open" && dp.Value == 1 {
					found = true
				}
			}
		}
	}
	if !found {
		t.Fatal("no gemini open transition recorded")
	}
}
