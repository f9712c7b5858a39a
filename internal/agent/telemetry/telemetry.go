// Package telemetry aggregates run, provider and token-usage metrics.
// Counters are exported through a dedicated prometheus registry; token
// accounting is kept in-process for the usage summary endpoint.
package telemetry

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/thinhkhuat/scribe/internal/agent/config"
	"github.com/thinhkhuat/scribe/internal/provider"
)

type Telemetry struct {
	config   config.TelemetryConfig
	logger   *log.Logger
	registry *prometheus.Registry

	runsTotal        *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	sectionsTotal    *prometheus.CounterVec
	providerAttempts *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec

	usage *UsageTracker
}

// UsageTracker accumulates token usage per model for the lifetime of
// the process.
type UsageTracker struct {
	mu          sync.RWMutex
	TotalInput  int64
	TotalOutput int64
	PerModel    map[string]int64
	Invocations int64
}

// UsageSummary is a point-in-time copy of the tracker.
type UsageSummary struct {
	TotalInput  int64            `json:"total_input_tokens"`
	TotalOutput int64            `json:"total_output_tokens"`
	PerModel    map[string]int64 `json:"per_model_tokens"`
	Invocations int64            `json:"invocations"`
}

func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	reg := prometheus.NewRegistry()
	t := &Telemetry{
		config:   cfg,
		logger:   log.New(os.Stdout, "[TELEMETRY] ", log.LstdFlags),
		registry: reg,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_runs_total",
			Help: "Completed research runs by outcome.",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scribe_stage_duration_seconds",
			Help:    "Wall time spent per pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"stage"}),
		sectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_sections_total",
			Help: "Researched sections by final status.",
		}, []string{"status"}),
		providerAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_provider_attempts_total",
			Help: "Provider invocation attempts by kind, provider and outcome.",
		}, []string{"kind", "provider", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scribe_provider_latency_seconds",
			Help:    "End-to-end failover walk latency per capability kind.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"kind"}),
		usage: &UsageTracker{PerModel: make(map[string]int64)},
	}
	reg.MustRegister(t.runsTotal, t.stageDuration, t.sectionsTotal, t.providerAttempts, t.providerLatency)
	return t
}

// Registry exposes the prometheus registry for the metrics endpoint.
func (t *Telemetry) Registry() *prometheus.Registry { return t.registry }

// RecordRun records a finished run.
func (t *Telemetry) RecordRun(outcome string, elapsed time.Duration) {
	if !t.config.Enabled {
		return
	}
	t.runsTotal.WithLabelValues(outcome).Inc()
	t.logger.Printf("run finished: outcome=%s elapsed=%v", outcome, elapsed)
}

// RecordStage records the wall time of one completed stage.
func (t *Telemetry) RecordStage(stage string, elapsed time.Duration) {
	if !t.config.Enabled {
		return
	}
	t.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// RecordSection records a section reaching its final status.
func (t *Telemetry) RecordSection(status string) {
	if !t.config.Enabled {
		return
	}
	t.sectionsTotal.WithLabelValues(status).Inc()
}

// ProviderObserver returns the hook the failover controller calls after
// every invocation.
func (t *Telemetry) ProviderObserver() provider.Observer {
	return func(kind provider.Kind, res provider.InvocationResult) {
		if !t.config.Enabled {
			return
		}
		outcome := "success"
		if !res.Success {
			outcome = "failure"
		}
		t.providerAttempts.WithLabelValues(string(kind), res.ProviderUsed, outcome).Add(float64(res.AttemptCount))
		t.providerLatency.WithLabelValues(string(kind)).Observe(res.Elapsed.Seconds())
		if t.config.CostTracking && res.Success && kind == provider.KindGeneration {
			t.recordUsage(res.Result)
		}
	}
}

func (t *Telemetry) recordUsage(r provider.GenResult) {
	t.usage.mu.Lock()
	defer t.usage.mu.Unlock()
	t.usage.TotalInput += r.InputTokens
	t.usage.TotalOutput += r.OutputTokens
	t.usage.PerModel[r.Model] += r.InputTokens + r.OutputTokens
	t.usage.Invocations++
}

// Usage returns a snapshot of accumulated token usage.
func (t *Telemetry) Usage() UsageSummary {
	t.usage.mu.RLock()
	defer t.usage.mu.RUnlock()
	out := UsageSummary{
		TotalInput:  t.usage.TotalInput,
		TotalOutput: t.usage.TotalOutput,
		PerModel:    make(map[string]int64, len(t.usage.PerModel)),
		Invocations: t.usage.Invocations,
	}
	for k, v := range t.usage.PerModel {
		out.PerModel[k] = v
	}
	return out
}

// Shutdown logs the final usage report.
func (t *Telemetry) Shutdown() {
	u := t.Usage()
	t.logger.Printf("final usage: invocations=%d input_tokens=%d output_tokens=%d",
		u.Invocations, u.TotalInput, u.TotalOutput)
}
