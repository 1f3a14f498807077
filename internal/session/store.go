package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// ErrNotFound is returned by [Store.Get] when no summary has the given id.
var ErrNotFound = errors.New("session: not found")

// Summary is the durable record of a finished session.
type Summary struct {
	ID        string    `json:"id"`
	Pose      string    `json:"pose,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`

	// Frames counts every frame received; ScoredFrames only those where at
	// least one rule was evaluated.
	Frames       int     `json:"frames"`
	ScoredFrames int     `json:"scored_frames"`
	MeanAccuracy float64 `json:"mean_accuracy"`
	BestAccuracy float64 `json:"best_accuracy"`

	// BreathingRate is the last defined estimate, in breaths per minute.
	BreathingRate *float64 `json:"breathing_rate,omitempty"`

	ClipsRequested int `json:"clips_requested"`
	ClipsPlayed    int `json:"clips_played"`
}

// Duration returns how long the session lasted. Zero while it is running.
func (s Summary) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Store persists session summaries.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Save inserts or replaces the summary with s.ID.
	Save(ctx context.Context, s Summary) error

	// Get returns the summary with id, or [ErrNotFound].
	Get(ctx context.Context, id string) (Summary, error)

	// List returns up to limit summaries, most recently started first. A
	// limit <= 0 returns all of them.
	List(ctx context.Context, limit int) ([]Summary, error)

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
}

// MemStore keeps summaries in memory. The zero value is ready to use.
type MemStore struct {
	mu   sync.RWMutex
	byID map[string]Summary
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty [MemStore].
func NewMemStore() *MemStore { return &MemStore{} }

// Save implements [Store].
func (m *MemStore) Save(_ context.Context, s Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byID == nil {
		m.byID = make(map[string]Summary)
	}
	m.byID[s.ID] = s
	return nil
}

// Get implements [Store].
func (m *MemStore) Get(_ context.Context, id string) (Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[id]
	if !ok {
		return Summary{}, ErrNotFound
	}
	return s, nil
}

// List implements [Store].
func (m *MemStore) List(_ context.Context, limit int) ([]Summary, error) {
	m.mu.RLock()
	out := make([]Summary, 0, len(m.byID))
	for _, s := range m.byID {
		out = append(out, s)
	}
	m.mu.RUnlock()
	return newestFirst(out, limit), nil
}

// Ping implements [Store]. It always succeeds.
func (m *MemStore) Ping(context.Context) error { return nil }

// newestFirst sorts by start time descending, ties by id, and truncates.
func newestFirst(list []Summary, limit int) []Summary {
	slices.SortFunc(list, func(a, b Summary) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list
}
