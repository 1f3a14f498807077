package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("test error")

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// transitions records state changes as "from->to".
type transitions struct {
	mu  sync.Mutex
	got []string
}

func (r *transitions) record(_ string, from, to State) {
	r.mu.Lock()
	r.got = append(r.got, fmt.Sprintf("%s->%s", from, to))
	r.mu.Unlock()
}

func (r *transitions) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func newTestBreaker(clock *fakeClock, rec *transitions) *CircuitBreaker {
	return NewCircuitBreaker(CircuitBreakerConfig{
		Name:          "gemini",
		MaxFailures:   3,
		ResetTimeout:  time.Minute,
		HalfOpenMax:   2,
		Now:           clock.Now,
		OnStateChange: rec.record,
	})
}

func fail() error    { return errTest }
func succeed() error { return nil }

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test"})
	if cb.cfg.MaxFailures != 5 || cb.cfg.ResetTimeout != 30*time.Second || cb.cfg.HalfOpenMax != 3 {
		t.Errorf("defaults = %+v", cb.cfg)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	t.Parallel()
	clock, rec := newFakeClock(), &transitions{}
	cb := newTestBreaker(clock, rec)

	// Two failures and a success keep it closed: only consecutive failures count.
	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	_ = cb.Execute(succeed)
	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}

	_ = cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}
	called := false
	if err := cb.Execute(func() error { called = true; return nil }); !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open breaker: err = %v, called = %v", err, called)
	}

	clock.Advance(time.Minute)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state after timeout = %v, want half-open", cb.State())
	}

	// HalfOpenMax successful probes close it again.
	if err := cb.Execute(succeed); err != nil {
		t.Fatal(err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("state after one probe = %v, want half-open", cb.State())
	}
	_ = cb.Execute(succeed)
	if cb.State() != StateClosed {
		t.Fatalf("state after probes = %v, want closed", cb.State())
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if got := rec.list(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
}

func TestCircuitBreaker_ProbeFailureReopens(t *testing.T) {
	t.Parallel()
	clock, rec := newFakeClock(), &transitions{}
	cb := newTestBreaker(clock, rec)
	for range 3 {
		_ = cb.Execute(fail)
	}
	clock.Advance(time.Minute)

	if err := cb.Execute(fail); !errors.Is(err, errTest) {
		t.Fatalf("probe err = %v", err)
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}
	// The reset timeout restarts from the failed probe.
	clock.Advance(30 * time.Second)
	if cb.State() != StateOpen {
		t.Fatal("breaker half-opened before a full reset timeout")
	}
	want := []string{"closed->open", "open->half-open", "half-open->open"}
	if got := rec.list(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
}

func TestCircuitBreaker_ProbeBudget(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	cb := newTestBreaker(clock, &transitions{})
	for range 3 {
		_ = cb.Execute(fail)
	}
	clock.Advance(time.Minute)

	// Two slow probes occupy the budget; a third call is rejected.
	release := make(chan struct{})
	var wg sync.WaitGroup
	started := make(chan struct{}, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cb.Execute(func() error {
				started <- struct{}{}
				<-release
				return nil
			})
		}()
	}
	<-started
	<-started
	if err := cb.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("third probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	wg.Wait()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_IgnoresContextErrors(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	cb := newTestBreaker(clock, &transitions{})
	for range 10 {
		_ = cb.Execute(func() error { return fmt.Errorf("synth: %w", context.Canceled) })
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}

	// A cancelled probe gives its slot back.
	for range 3 {
		_ = cb.Execute(fail)
	}
	clock.Advance(time.Minute)
	for range 5 {
		_ = cb.Execute(func() error { return context.DeadlineExceeded })
	}
	if err := cb.Execute(succeed); err != nil {
		t.Fatalf("probe slot not returned: %v", err)
	}
}

func TestCircuitBreaker_CustomIsFailure(t *testing.T) {
	t.Parallel()
	errRateLimited := errors.New("429")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures: 1,
		IsFailure:   func(err error) bool { return !errors.Is(err, errRateLimited) },
	})
	_ = cb.Execute(func() error { return errRateLimited })
	if cb.State() != StateClosed {
		t.Fatal("ignored error tripped the breaker")
	}
	_ = cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatal("counted error did not trip the breaker")
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()
	clock, rec := newFakeClock(), &transitions{}
	cb := newTestBreaker(clock, rec)
	cb.Reset()
	if len(rec.list()) != 0 {
		t.Fatal("resetting a closed breaker reported a transition")
	}
	for range 3 {
		_ = cb.Execute(fail)
	}
	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}
	if got := rec.list(); len(got) != 2 || got[1] != "open->closed" {
		t.Fatalf("transitions = %v", got)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	tests := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(99):     "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
