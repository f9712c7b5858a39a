package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/thinhkhuat/scribe/internal/agent/config"
	"github.com/thinhkhuat/scribe/internal/draft"
	"github.com/thinhkhuat/scribe/internal/provider"
)

// stubInvoker answers by role, keyed on the system prompt. Search
// always fails unless sources are provided; researchers degrade to
// generation without material.
type stubInvoker struct {
	mu           sync.Mutex
	plan         []draft.PlanItem
	failSections map[string]bool
	sectionDelay time.Duration

	writerCalled bool
	writerPrompt string

	inFlight    int
	maxInFlight int
}

func newStubInvoker(plan []draft.PlanItem) *stubInvoker {
	return &stubInvoker{plan: plan, failSections: make(map[string]bool)}
}

func okResult(text string) provider.InvocationResult {
	return provider.InvocationResult{Success: true, Text: text, Result: provider.GenResult{Text: text}, ProviderUsed: "stub", AttemptCount: 1}
}

func failResult() provider.InvocationResult {
	return provider.InvocationResult{Success: false, Err: provider.ErrUnavailable, ProviderUsed: "stub", AttemptCount: 2}
}

func (s *stubInvoker) Generate(ctx context.Context, req provider.GenRequest) provider.InvocationResult {
	switch req.System {
	case lookupSystemPrompt:
		return okResult("orientation brief")
	case plannerSystemPrompt:
		b, _ := json.Marshal(s.plan)
		return okResult(string(b))
	case researcherSystemPrompt:
		s.mu.Lock()
		s.inFlight++
		if s.inFlight > s.maxInFlight {
			s.maxInFlight = s.inFlight
		}
		s.mu.Unlock()
		if s.sectionDelay > 0 {
			time.Sleep(s.sectionDelay)
		}
		defer func() {
			s.mu.Lock()
			s.inFlight--
			s.mu.Unlock()
		}()
		for title := range s.failSections {
			if strings.Contains(req.Prompt, "Section title: "+title) {
				return failResult()
			}
		}
		return okResult("content: " + firstLine(req.Prompt))
	case writerSystemPrompt:
		s.mu.Lock()
		s.writerCalled = true
		s.writerPrompt = req.Prompt
		s.mu.Unlock()
		return okResult("FINAL DOCUMENT")
	case translatorSystemPrompt:
		return okResult("TRANSLATED DOCUMENT")
	}
	return failResult()
}

func (s *stubInvoker) Search(ctx context.Context, query string, maxResults int) provider.InvocationResult {
	return failResult()
}

func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

func testConfig(maxParallel int) *config.Config {
	cfg := &config.Config{}
	cfg.Pipeline.MaxParallelResearchers = maxParallel
	cfg.Pipeline.MaxSections = 10
	return cfg
}

func planOf(n int) []draft.PlanItem {
	plan := make([]draft.PlanItem, n)
	for i := 0; i < n; i++ {
		plan[i] = draft.PlanItem{Index: i, Title: fmt.Sprintf("Part %d", i), Directive: fmt.Sprintf("research part %d", i)}
	}
	return plan
}

func newTestOrchestrator(t *testing.T, cfg *config.Config, inv *stubInvoker, opts ...Option) *Orchestrator {
	t.Helper()
	logger := log.New(os.Stdout, "[TEST] ", 0)
	researcher := NewSectionResearcher(inv, nil, nil, config.ResearchConfig{}, logger)
	o, err := NewOrchestrator(cfg, inv, researcher, nil, logger, opts...)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return o
}

func TestRunOrdersSectionsByPlanIndex(t *testing.T) {
	inv := newStubInvoker(planOf(5))
	inv.sectionDelay = 5 * time.Millisecond
	o := newTestOrchestrator(t, testConfig(3), inv)

	d, artifact, err := o.Run(context.Background(), ResearchTask{Query: "ordering"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d.Stage != string(StageDone) {
		t.Fatalf("expected DONE, got %s", d.Stage)
	}
	// Writer input must list section titles in ascending plan order no
	// matter how completions interleaved.
	last := -1
	for i := 0; i < 5; i++ {
		pos := strings.Index(inv.writerPrompt, fmt.Sprintf("## Part %d", i))
		if pos < 0 {
			t.Fatalf("section %d missing from writer input:\n%s", i, inv.writerPrompt)
		}
		if pos < last {
			t.Fatalf("section %d out of order in writer input", i)
		}
		last = pos
	}
	for i, s := range artifact.Sections {
		if s.Index != i {
			t.Fatalf("artifact section %d has index %d", i, s.Index)
		}
	}
}

func TestRunPartialFailureProducesGapMarker(t *testing.T) {
	inv := newStubInvoker(planOf(3))
	inv.failSections["Part 1"] = true
	o := newTestOrchestrator(t, testConfig(2), inv)

	d, artifact, err := o.Run(context.Background(), ResearchTask{Query: "partial"})
	if err != nil {
		t.Fatalf("expected DONE despite one failed section, got %v", err)
	}
	if d.Stage != string(StageDone) {
		t.Fatalf("expected DONE, got %s", d.Stage)
	}
	statuses := []string{}
	for _, s := range d.OrderedSections() {
		statuses = append(statuses, s.Status)
	}
	want := []string{draft.StatusDone, draft.StatusFailed, draft.StatusDone}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("expected statuses %v, got %v", want, statuses)
		}
	}
	if n := strings.Count(inv.writerPrompt, "[section unavailable:"); n != 1 {
		t.Fatalf("expected exactly one gap marker in writer input, got %d", n)
	}
	if artifact.Metadata.SectionsFailed != 1 || artifact.Metadata.SectionsDone != 2 {
		t.Fatalf("unexpected metadata: %+v", artifact.Metadata)
	}
}

func TestRunAllSectionsFailedAbortsBeforeWriter(t *testing.T) {
	inv := newStubInvoker(planOf(3))
	for i := 0; i < 3; i++ {
		inv.failSections[fmt.Sprintf("Part %d", i)] = true
	}
	o := newTestOrchestrator(t, testConfig(2), inv)

	d, _, err := o.Run(context.Background(), ResearchTask{Query: "all fail"})
	if err == nil {
		t.Fatal("expected run failure")
	}
	if d.Stage != string(StageFailed) {
		t.Fatalf("expected FAILED, got %s", d.Stage)
	}
	if inv.writerCalled {
		t.Fatal("writer must not run when every section failed")
	}
}

func TestRunRespectsConcurrencyBound(t *testing.T) {
	inv := newStubInvoker(planOf(5))
	inv.sectionDelay = 20 * time.Millisecond
	o := newTestOrchestrator(t, testConfig(2), inv)

	d, _, err := o.Run(context.Background(), ResearchTask{Query: "bounded"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if inv.maxInFlight > 2 {
		t.Fatalf("concurrency bound violated: %d researchers in flight", inv.maxInFlight)
	}
	if got := len(d.OrderedSections()); got != 5 {
		t.Fatalf("expected all 5 sections to complete, got %d", got)
	}
	for _, s := range d.OrderedSections() {
		if s.Status != draft.StatusDone {
			t.Fatalf("section %d did not complete: %s", s.Index, s.Status)
		}
	}
}

func TestRunZeroSectionPlanFails(t *testing.T) {
	inv := newStubInvoker(planOf(0))
	o := newTestOrchestrator(t, testConfig(2), inv)

	d, _, err := o.Run(context.Background(), ResearchTask{Query: "empty plan"})
	if err == nil {
		t.Fatal("expected failure for zero-section plan")
	}
	if d.Stage != string(StageFailed) {
		t.Fatalf("expected FAILED, got %s", d.Stage)
	}
	if inv.writerCalled {
		t.Fatal("writer must not run without a plan")
	}
}

func TestRunEmitsSectionProgress(t *testing.T) {
	inv := newStubInvoker(planOf(2))
	emitter := NewChannelEmitter(128)
	o := newTestOrchestrator(t, testConfig(2), inv, WithEmitter(emitter))

	if _, _, err := o.Run(context.Background(), ResearchTask{Query: "progress"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	close(emitter.C)

	seenStages := map[string]bool{}
	sectionCompletions := 0
	for ev := range emitter.C {
		seenStages[ev.Stage] = true
		if ev.AgentName == "section-researcher" && ev.Status == ProgressCompleted {
			if _, ok := ev.Metadata["section_index"]; !ok {
				t.Fatal("section completion event missing section_index metadata")
			}
			sectionCompletions++
		}
	}
	for _, stage := range []string{"LOOKUP", "PLAN", "RESEARCH", "MERGE", "WRITE", "HANDOFF", "DONE"} {
		if !seenStages[stage] {
			t.Fatalf("no progress event for stage %s", stage)
		}
	}
	if sectionCompletions != 2 {
		t.Fatalf("expected 2 section completion events, got %d", sectionCompletions)
	}
}

func TestTranslationFailureDeliversUntranslated(t *testing.T) {
	inv := newStubInvoker(planOf(1))
	o := newTestOrchestrator(t, testConfig(1), inv, WithTranslator(NewTranslatorAgent(failingTranslator{}, log.New(os.Stdout, "", 0))))

	d, _, err := o.Run(context.Background(), ResearchTask{Query: "q", Language: "fa"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d.Document != "FINAL DOCUMENT" {
		t.Fatalf("expected untranslated document, got %q", d.Document)
	}
}

func TestTranslationAppliedWhenRequested(t *testing.T) {
	inv := newStubInvoker(planOf(1))
	o := newTestOrchestrator(t, testConfig(1), inv, WithTranslator(NewTranslatorAgent(inv, log.New(os.Stdout, "", 0))))

	d, _, err := o.Run(context.Background(), ResearchTask{Query: "q", Language: "fa"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d.Document != "TRANSLATED DOCUMENT" {
		t.Fatalf("expected translated document, got %q", d.Document)
	}
}

func TestValidTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Stage
		ok       bool
	}{
		{StageInit, StageLookup, true},
		{StageResearch, StageMerge, true},
		{StageHandoff, StageDone, true},
		{StageLookup, StageResearch, false},
		{StageDone, StageFailed, false},
		{StageFailed, StageFailed, false},
		{StageWrite, StageFailed, true},
	}
	for _, tc := range cases {
		if got := validTransition(tc.from, tc.to); got != tc.ok {
			t.Errorf("validTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

// failingTranslator fails every generation call.
type failingTranslator struct{}

func (failingTranslator) Generate(ctx context.Context, req provider.GenRequest) provider.InvocationResult {
	return failResult()
}

func (failingTranslator) Search(ctx context.Context, query string, maxResults int) provider.InvocationResult {
	return failResult()
}
