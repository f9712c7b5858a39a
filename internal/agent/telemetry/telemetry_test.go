package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/thinhkhuat/scribe/internal/agent/config"
	"github.com/thinhkhuat/scribe/internal/provider"
)

func enabledTelemetry() *Telemetry {
	return NewTelemetry(config.TelemetryConfig{Enabled: true, CostTracking: true})
}

func TestProviderObserverTracksUsage(t *testing.T) {
	tel := enabledTelemetry()
	obs := tel.ProviderObserver()

	obs(provider.KindGeneration, provider.InvocationResult{
		Success:      true,
		ProviderUsed: "openai-primary",
		AttemptCount: 2,
		Elapsed:      time.Second,
		Result:       provider.GenResult{Model: "gpt-4o", InputTokens: 100, OutputTokens: 40},
	})

	u := tel.Usage()
	if u.TotalInput != 100 || u.TotalOutput != 40 {
		t.Fatalf("unexpected usage: %+v", u)
	}
	if u.PerModel["gpt-4o"] != 140 {
		t.Fatalf("expected 140 tokens for gpt-4o, got %d", u.PerModel["gpt-4o"])
	}

	got := testutil.ToFloat64(tel.providerAttempts.WithLabelValues("generation", "openai-primary", "success"))
	if got != 2 {
		t.Fatalf("expected 2 attempts counted, got %v", got)
	}
}

func TestDisabledTelemetryIsQuiet(t *testing.T) {
	tel := NewTelemetry(config.TelemetryConfig{Enabled: false})
	obs := tel.ProviderObserver()
	obs(provider.KindGeneration, provider.InvocationResult{
		Success: true,
		Result:  provider.GenResult{Model: "m", InputTokens: 5},
	})
	if u := tel.Usage(); u.Invocations != 0 {
		t.Fatalf("disabled telemetry must record nothing, got %+v", u)
	}
}

func TestRecordSection(t *testing.T) {
	tel := enabledTelemetry()
	tel.RecordSection("done")
	tel.RecordSection("done")
	tel.RecordSection("failed")
	if got := testutil.ToFloat64(tel.sectionsTotal.WithLabelValues("done")); got != 2 {
		t.Fatalf("expected 2 done sections, got %v", got)
	}
}
