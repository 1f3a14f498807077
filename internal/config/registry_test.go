package config_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/Pavna06/Yogi.AI/internal/config"
	"github.com/Pavna06/Yogi.AI/pkg/provider/tts"
	ttsmock "github.com/Pavna06/Yogi.AI/pkg/provider/tts/mock"
)

// testRegistry knows gemini, openai and coqui. The coqui factory fails
// without a base URL.
func testRegistry() *config.Registry {
	r := config.NewRegistry()
	ok := func(config.ProviderEntry) (tts.Provider, error) { return &ttsmock.Provider{}, nil }
	r.RegisterTTS("gemini", ok)
	r.RegisterTTS("openai", ok)
	r.RegisterTTS("coqui", func(e config.ProviderEntry) (tts.Provider, error) {
		if e.BaseURL == "" {
			return nil, errors.New("base_url is required")
		}
		return &ttsmock.Provider{}, nil
	})
	return r
}

func TestRegistry_Names(t *testing.T) {
	if got := strings.Join(testRegistry().TTSNames(), ","); got != "coqui,gemini,openai" {
		t.Fatalf("names = %s", got)
	}
}

func TestRegistry_CreateTTS(t *testing.T) {
	r := testRegistry()
	if _, err := r.CreateTTS(config.ProviderEntry{Name: "gemini"}); err != nil {
		t.Fatalf("gemini: %v", err)
	}

	_, err := r.CreateTTS(config.ProviderEntry{Name: "gemnii"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
	if !strings.Contains(err.Error(), `did you mean "gemini"`) {
		t.Errorf("no suggestion in %q", err)
	}

	_, err = r.CreateTTS(config.ProviderEntry{Name: "polly"})
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("unrelated name: err = %v", err)
	}

	_, err = r.CreateTTS(config.ProviderEntry{Name: "coqui"})
	if err == nil || !strings.Contains(err.Error(), `"coqui": base_url is required`) {
		t.Errorf("factory error not wrapped: %v", err)
	}
}

func TestRegistry_CreateChain(t *testing.T) {
	r := testRegistry()
	chain, err := r.CreateChain(config.ProvidersConfig{
		Speech: config.ProviderEntry{Name: "gemini"},
		SpeechFallbacks: []config.ProviderEntry{
			{Name: "openai"},
			{Name: "coqui", BaseURL: "http://localhost:5002"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, b := range chain {
		if b.Provider == nil {
			t.Fatalf("%s has no provider", b.Name)
		}
		names = append(names, b.Name)
	}
	if got := strings.Join(names, ","); got != "gemini,openai,coqui" {
		t.Fatalf("chain = %s", got)
	}
}

func TestRegistry_CreateChainErrors(t *testing.T) {
	r := testRegistry()

	chain, err := r.CreateChain(config.ProvidersConfig{})
	if err != nil || len(chain) != 0 {
		t.Fatalf("empty config: chain = %v err = %v", chain, err)
	}

	_, err = r.CreateChain(config.ProvidersConfig{SpeechFallbacks: []config.ProviderEntry{{Name: "openai"}}})
	if err == nil {
		t.Error("fallbacks without a primary: want error")
	}

	// Every broken entry is reported at once.
	_, err = r.CreateChain(config.ProvidersConfig{
		Speech: config.ProviderEntry{Name: "gemini"},
		SpeechFallbacks: []config.ProviderEntry{
			{Name: "gemini"},
			{Name: "coqui"},
			{Name: "opneai"},
		},
	})
	if err == nil {
		t.Fatal("want error")
	}
	for _, want := range []string{`"gemini" listed twice`, "base_url is required", `did you mean "openai"`} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Error("joined error lost ErrProviderNotRegistered")
	}
}
