package provider

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/thinhkhuat/scribe/internal/agent/config"
)

type stubGenerator struct {
	name  string
	calls int
	// errs holds the error returned per call; calls beyond the slice succeed.
	errs []error
	text string
}

func (s *stubGenerator) Generate(ctx context.Context, req GenRequest) (GenResult, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return GenResult{}, s.errs[idx]
	}
	return GenResult{Text: s.text, Model: s.name}, nil
}

type stubSearcher struct {
	name  string
	calls int
	err   error
}

func (s *stubSearcher) Search(ctx context.Context, query string, maxResults int) ([]Source, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []Source{{ID: "1", Title: query, URL: "https://example.com", Tags: []string{s.name}}}, nil
}

func newTestController(t *testing.T, strategy string, gens ...*stubGenerator) (*Controller, []*stubGenerator) {
	t.Helper()
	reg := &Registry{}
	for i, g := range gens {
		reg.RegisterGenerator(config.ProviderSpec{
			Name:         g.name,
			Priority:     i,
			MaxRetries:   1,
			RetryBackoff: time.Millisecond,
		}, g)
	}
	ctrl := NewController(reg, config.ProvidersConfig{
		GenerationStrategy: strategy,
		SearchStrategy:     strategy,
	}, log.New(os.Stdout, "[TEST] ", 0))
	ctrl.sleep = func(time.Duration) {}
	return ctrl, gens
}

func TestFallbackOnErrorUsesSecondary(t *testing.T) {
	primary := &stubGenerator{name: "primary", errs: []error{ErrUnavailable, ErrUnavailable}}
	secondary := &stubGenerator{name: "secondary", text: "from secondary"}
	ctrl, _ := newTestController(t, config.StrategyFallbackOnError, primary, secondary)

	res := ctrl.Generate(context.Background(), GenRequest{Prompt: "hello"})
	if !res.Success {
		t.Fatalf("expected success, got err: %v", res.Err)
	}
	if res.ProviderUsed != "secondary" {
		t.Fatalf("expected secondary to answer, got %s", res.ProviderUsed)
	}
	if res.Text != "from secondary" {
		t.Fatalf("unexpected text: %q", res.Text)
	}
	// primary: MaxRetries=1 means 2 attempts, then 1 on secondary.
	if res.AttemptCount != 3 {
		t.Fatalf("expected 3 total attempts, got %d", res.AttemptCount)
	}
	if primary.calls != 2 || secondary.calls != 1 {
		t.Fatalf("unexpected call counts: primary=%d secondary=%d", primary.calls, secondary.calls)
	}
}

func TestPrimaryOnlyNeverTouchesFallbacks(t *testing.T) {
	primary := &stubGenerator{name: "primary", errs: []error{ErrUnavailable}}
	secondary := &stubGenerator{name: "secondary", text: "nope"}
	ctrl, _ := newTestController(t, config.StrategyPrimaryOnly, primary, secondary)

	res := ctrl.Generate(context.Background(), GenRequest{Prompt: "hello"})
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.AttemptCount != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", res.AttemptCount)
	}
	if secondary.calls != 0 {
		t.Fatalf("secondary must not be called under primary_only, got %d calls", secondary.calls)
	}
	if !errors.Is(res.Err, ErrUnavailable) {
		t.Fatalf("expected unavailable error, got %v", res.Err)
	}
}

func TestNonRetryableAdvancesWithoutRetry(t *testing.T) {
	primary := &stubGenerator{name: "primary", errs: []error{&HTTPError{StatusCode: 401, Status: "401 Unauthorized"}}}
	secondary := &stubGenerator{name: "secondary", text: "ok"}
	ctrl, _ := newTestController(t, config.StrategyFallbackOnError, primary, secondary)

	res := ctrl.Generate(context.Background(), GenRequest{Prompt: "hello"})
	if !res.Success {
		t.Fatalf("expected success, got err: %v", res.Err)
	}
	// Auth failure must not burn the primary's retry budget.
	if primary.calls != 1 {
		t.Fatalf("expected a single call to primary, got %d", primary.calls)
	}
	if res.AttemptCount != 2 {
		t.Fatalf("expected 2 total attempts, got %d", res.AttemptCount)
	}
}

func TestAllProvidersExhaustedReturnsLastError(t *testing.T) {
	primary := &stubGenerator{name: "primary", errs: []error{ErrTimeout, ErrTimeout}}
	secondary := &stubGenerator{name: "secondary", errs: []error{ErrRateLimited, ErrRateLimited}}
	ctrl, _ := newTestController(t, config.StrategyFallbackOnError, primary, secondary)

	res := ctrl.Generate(context.Background(), GenRequest{Prompt: "hello"})
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.AttemptCount != 4 {
		t.Fatalf("expected 4 total attempts, got %d", res.AttemptCount)
	}
	if !errors.Is(res.Err, ErrRateLimited) {
		t.Fatalf("expected last error class to surface, got %v", res.Err)
	}
	if res.ProviderUsed != "secondary" {
		t.Fatalf("expected last failing provider reported, got %s", res.ProviderUsed)
	}
}

func TestRetryBackoffGrowsExponentially(t *testing.T) {
	primary := &stubGenerator{name: "primary", errs: []error{ErrUnavailable, ErrUnavailable, ErrUnavailable}}
	reg := &Registry{}
	reg.RegisterGenerator(config.ProviderSpec{
		Name:         "primary",
		MaxRetries:   3,
		RetryBackoff: 100 * time.Millisecond,
	}, primary)
	ctrl := NewController(reg, config.ProvidersConfig{GenerationStrategy: config.StrategyFallbackOnError}, log.New(os.Stdout, "[TEST] ", 0))

	var waits []time.Duration
	ctrl.sleep = func(d time.Duration) { waits = append(waits, d) }

	res := ctrl.Generate(context.Background(), GenRequest{Prompt: "hello"})
	if !res.Success {
		t.Fatalf("expected eventual success, got %v", res.Err)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	if len(waits) != len(want) {
		t.Fatalf("expected %d backoff waits, got %d", len(want), len(waits))
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Fatalf("wait %d: expected %v, got %v", i, want[i], waits[i])
		}
	}
}

func TestCancelledContextStopsWalk(t *testing.T) {
	primary := &stubGenerator{name: "primary", text: "never"}
	ctrl, _ := newTestController(t, config.StrategyFallbackOnError, primary)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := ctrl.Generate(ctx, GenRequest{Prompt: "hello"})
	if res.Success {
		t.Fatal("expected failure on cancelled context")
	}
	if primary.calls != 0 {
		t.Fatalf("provider must not be invoked after cancellation, got %d calls", primary.calls)
	}
}

func TestSearchFallback(t *testing.T) {
	primary := &stubSearcher{name: "brave", err: ErrUnavailable}
	secondary := &stubSearcher{name: "serper"}
	reg := &Registry{}
	reg.RegisterSearcher(config.ProviderSpec{Name: "brave", MaxRetries: 0, RetryBackoff: time.Millisecond}, primary)
	reg.RegisterSearcher(config.ProviderSpec{Name: "serper", MaxRetries: 0, RetryBackoff: time.Millisecond}, secondary)
	ctrl := NewController(reg, config.ProvidersConfig{SearchStrategy: config.StrategyFallbackOnError}, log.New(os.Stdout, "[TEST] ", 0))
	ctrl.sleep = func(time.Duration) {}

	res := ctrl.Search(context.Background(), "golang", 5)
	if !res.Success {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if res.ProviderUsed != "serper" {
		t.Fatalf("expected serper to answer, got %s", res.ProviderUsed)
	}
	if len(res.Sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(res.Sources))
	}
}

func TestObserverSeesEveryInvocation(t *testing.T) {
	primary := &stubGenerator{name: "primary", text: "ok"}
	ctrl, _ := newTestController(t, config.StrategyFallbackOnError, primary)

	var observed []InvocationResult
	ctrl.SetObserver(func(kind Kind, res InvocationResult) {
		if kind != KindGeneration {
			t.Fatalf("unexpected kind: %s", kind)
		}
		observed = append(observed, res)
	})

	ctrl.Generate(context.Background(), GenRequest{Prompt: "hi"})
	if len(observed) != 1 || !observed[0].Success {
		t.Fatalf("observer not notified correctly: %+v", observed)
	}
}
