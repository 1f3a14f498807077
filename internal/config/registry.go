package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"

	"github.com/Pavna06/Yogi.AI/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned when a config names a speech provider
// no factory was registered for.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// SpeechFactory builds a speech provider from its config entry.
type SpeechFactory func(ProviderEntry) (tts.Provider, error)

// NamedSpeech is one built backend of a speech chain.
type NamedSpeech struct {
	Name     string
	Provider tts.Provider
}

// Registry maps provider names to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]SpeechFactory
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]SpeechFactory)}
}

// RegisterTTS registers factory under name, replacing any previous one.
func (r *Registry) RegisterTTS(name string, factory SpeechFactory) {
	r.mu.Lock()
	r.factories[name] = factory
	r.mu.Unlock()
}

// TTSNames returns the registered names, sorted.
func (r *Registry) TTSNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// CreateTTS builds the provider entry names. An unknown name wraps
// [ErrProviderNotRegistered] and suggests the closest registered name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		err := fmt.Errorf("%w: %q", ErrProviderNotRegistered, entry.Name)
		if s := r.suggest(entry.Name); s != "" {
			err = fmt.Errorf("%w (did you mean %q?)", err, s)
		}
		return nil, err
	}
	p, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create speech provider %q: %w", entry.Name, err)
	}
	return p, nil
}

// CreateChain builds providers.speech followed by providers.speech_fallbacks.
// An unset primary yields an empty chain. Every entry is attempted and all
// failures are reported together. Names must be unique within the chain
// because each backend's circuit breaker is keyed by name.
func (r *Registry) CreateChain(pc ProvidersConfig) ([]NamedSpeech, error) {
	if pc.Speech.Name == "" {
		if len(pc.SpeechFallbacks) > 0 {
			return nil, errors.New("config: speech_fallbacks set without providers.speech")
		}
		return nil, nil
	}

	entries := append([]ProviderEntry{pc.Speech}, pc.SpeechFallbacks...)
	chain := make([]NamedSpeech, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	var errs []error
	for _, e := range entries {
		if seen[e.Name] {
			errs = append(errs, fmt.Errorf("config: speech provider %q listed twice", e.Name))
			continue
		}
		seen[e.Name] = true
		p, err := r.CreateTTS(e)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		chain = append(chain, NamedSpeech{Name: e.Name, Provider: p})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return chain, nil
}

// suggest returns the registered name closest to name, or "" when none is
// plausibly a typo of it.
func (r *Registry) suggest(name string) string {
	const threshold = 0.8
	best, bestScore := "", threshold
	for _, n := range r.TTSNames() {
		if s := matchr.JaroWinkler(strings.ToLower(name), n, false); s >= bestScore {
			best, bestScore = n, s
		}
	}
	return best
}
