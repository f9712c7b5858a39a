package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/thinhkhuat/scribe/internal/agent/config"
	"github.com/thinhkhuat/scribe/internal/agent/telemetry"
	"github.com/thinhkhuat/scribe/internal/draft"
)

// Pipeline stages. FAILED is terminal and sticky: once entered, no
// further stage runs.
type Stage string

const (
	StageInit     Stage = "INIT"
	StageLookup   Stage = "LOOKUP"
	StagePlan     Stage = "PLAN"
	StageResearch Stage = "RESEARCH"
	StageMerge    Stage = "MERGE"
	StageWrite    Stage = "WRITE"
	StageHandoff  Stage = "HANDOFF"
	StageDone     Stage = "DONE"
	StageFailed   Stage = "FAILED"
)

// stageTransitions is the complete transition table. Every stage may
// additionally fail into StageFailed.
var stageTransitions = map[Stage]Stage{
	StageInit:     StageLookup,
	StageLookup:   StagePlan,
	StagePlan:     StageResearch,
	StageResearch: StageMerge,
	StageMerge:    StageWrite,
	StageWrite:    StageHandoff,
	StageHandoff:  StageDone,
}

func validTransition(from, to Stage) bool {
	if to == StageFailed {
		return from != StageDone && from != StageFailed
	}
	return stageTransitions[from] == to
}

// Orchestrator drives one research run through the stage state machine:
// sequential lookup, planning, writing and handoff around a bounded
// parallel research fan-out. The draft is owned here and passed
// explicitly into each role; roles receive only the slice they need.
type Orchestrator struct {
	cfg    *config.Config
	logger *log.Logger
	tel    *telemetry.Telemetry

	lookup     *LookupAgent
	planner    *PlannerAgent
	researcher *SectionResearcher
	writer     *WriterAgent
	translator *TranslatorAgent

	emitter ProgressEmitter
	sink    HandoffSink

	// semaphore bounds concurrent section researchers.
	semaphore chan struct{}
}

// Option configures optional orchestrator collaborators.
type Option func(*Orchestrator)

func WithEmitter(e ProgressEmitter) Option  { return func(o *Orchestrator) { o.emitter = e } }
func WithSink(s HandoffSink) Option         { return func(o *Orchestrator) { o.sink = s } }
func WithTranslator(t *TranslatorAgent) Option {
	return func(o *Orchestrator) { o.translator = t }
}

func NewOrchestrator(cfg *config.Config, invoker Invoker, researcher *SectionResearcher, tel *telemetry.Telemetry, logger *log.Logger, opts ...Option) (*Orchestrator, error) {
	if cfg.Pipeline.MaxParallelResearchers <= 0 {
		return nil, fmt.Errorf("max_parallel_researchers must be positive")
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}
	o := &Orchestrator{
		cfg:        cfg,
		logger:     logger,
		tel:        tel,
		lookup:     NewLookupAgent(invoker, logger),
		planner:    NewPlannerAgent(invoker, logger, cfg.Pipeline.MaxSections),
		researcher: researcher,
		writer:     NewWriterAgent(invoker, logger),
		emitter:    NopEmitter{},
		sink:       NopSink{},
		semaphore:  make(chan struct{}, cfg.Pipeline.MaxParallelResearchers),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Run executes the full pipeline for one task and returns the final
// draft. A FAILED run returns the draft alongside the error so callers
// can inspect the failing stage and partial state.
func (o *Orchestrator) Run(ctx context.Context, task ResearchTask) (*draft.Draft, *HandoffArtifact, error) {
	d := draft.NewDraft(task)
	d.Stage = string(StageInit)
	artifact, err := o.RunDraft(ctx, d)
	return d, artifact, err
}

// RunDraft executes the pipeline over a caller-created draft, letting
// callers hand out the run ID before the run starts.
func (o *Orchestrator) RunDraft(ctx context.Context, d *draft.Draft) (*HandoffArtifact, error) {
	started := time.Now()
	task := d.Task
	if d.Stage == "" {
		d.Stage = string(StageInit)
	}

	ctx, span := telemetry.StartSpan(ctx, "pipeline.run",
		attribute.String("run_id", d.RunID),
		attribute.String("query", task.Query))
	defer span.End()

	artifact, err := o.runStages(ctx, d, task, started)
	elapsed := time.Since(started)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if o.tel != nil {
			o.tel.RecordRun("failed", elapsed)
		}
		return nil, err
	}
	if o.tel != nil {
		o.tel.RecordRun("done", elapsed)
	}
	return artifact, nil
}

func (o *Orchestrator) runStages(ctx context.Context, d *draft.Draft, task ResearchTask, started time.Time) (*HandoffArtifact, error) {
	// INIT -> LOOKUP: always, on task acceptance.
	o.advance(d, StageLookup)
	brief, err := runTimed(o, ctx, StageLookup, func(ctx context.Context) (string, error) {
		return o.lookup.Run(ctx, task)
	})
	if err != nil {
		return nil, o.fail(d, StageLookup, err)
	}

	o.advance(d, StagePlan)
	plan, err := runTimed(o, ctx, StagePlan, func(ctx context.Context) ([]draft.PlanItem, error) {
		return o.planner.Run(ctx, task, brief)
	})
	if err != nil {
		return nil, o.fail(d, StagePlan, err)
	}
	if len(plan) == 0 {
		return nil, o.fail(d, StagePlan, fmt.Errorf("planner produced zero sections"))
	}
	if err := d.ApplyPlan(plan); err != nil {
		return nil, o.fail(d, StagePlan, err)
	}

	o.advance(d, StageResearch)
	o.fanOut(ctx, d, task)

	// RESEARCH -> MERGE is unconditional once every section returned.
	o.advance(d, StageMerge)
	if d.DoneCount() == 0 {
		return nil, o.fail(d, StageMerge, fmt.Errorf("all %d sections failed; no material to write from", len(plan)))
	}
	blocks := draft.Merge(d)

	o.advance(d, StageWrite)
	document, err := runTimed(o, ctx, StageWrite, func(ctx context.Context) (string, error) {
		return o.writer.Run(ctx, task, blocks)
	})
	if err != nil {
		return nil, o.fail(d, StageWrite, err)
	}
	d.Document = document

	o.advance(d, StageHandoff)
	o.handoff(ctx, d, task, started)

	o.advance(d, StageDone)
	return o.artifactFor(d, started), nil
}

// fanOut dispatches section researchers in plan index order with
// bounded concurrency and waits for every one to finish. No section's
// failure cancels any other; fan-in waits on full completion.
func (o *Orchestrator) fanOut(ctx context.Context, d *draft.Draft, task ResearchTask) {
	var wg sync.WaitGroup
	for _, item := range d.Plan {
		o.semaphore <- struct{}{}
		wg.Add(1)
		go func(item draft.PlanItem) {
			defer wg.Done()
			defer func() { <-o.semaphore }()
			o.researchSection(ctx, d, task, item)
		}(item)
	}
	wg.Wait()
}

func (o *Orchestrator) researchSection(ctx context.Context, d *draft.Draft, task ResearchTask, item draft.PlanItem) {
	ctx, span := telemetry.StartSpan(ctx, "pipeline.section",
		attribute.Int("section_index", item.Index),
		attribute.String("section_title", item.Title))
	defer span.End()

	if o.cfg.Pipeline.SectionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Pipeline.SectionTimeout)
		defer cancel()
	}

	d.MarkResearching(item.Index)
	o.emitSection(d, item, ProgressRunning, fmt.Sprintf("researching section %d: %s", item.Index, item.Title))

	content, citations, err := o.researcher.Run(ctx, task, item)
	if err != nil {
		d.SetSectionFailed(item.Index, err)
		span.SetStatus(codes.Error, err.Error())
		if o.tel != nil {
			o.tel.RecordSection(draft.StatusFailed)
		}
		o.emitSection(d, item, ProgressError, fmt.Sprintf("section %d failed: %v", item.Index, err))
		return
	}
	d.SetSectionDone(item.Index, content, citations)
	if o.tel != nil {
		o.tel.RecordSection(draft.StatusDone)
	}
	o.emitSection(d, item, ProgressCompleted, fmt.Sprintf("section %d done: %s", item.Index, item.Title))
}

// handoff delivers the artifact, translating first when the task asks
// for a non-default language. Both steps are best-effort.
func (o *Orchestrator) handoff(ctx context.Context, d *draft.Draft, task ResearchTask, started time.Time) {
	if o.translator != nil && task.Language != "" && task.Language != "en" {
		translated, err := runTimed(o, ctx, StageHandoff, func(ctx context.Context) (string, error) {
			return o.translator.Run(ctx, task.Language, d.Document)
		})
		if err != nil {
			o.logger.Printf("translation failed, delivering untranslated document: %v", err)
		} else {
			d.Document = translated
		}
	}
	if err := o.sink.Deliver(ctx, *o.artifactFor(d, started)); err != nil {
		o.logger.Printf("handoff delivery failed: %v", err)
	}
}

func (o *Orchestrator) artifactFor(d *draft.Draft, started time.Time) *HandoffArtifact {
	a := buildArtifact(d, time.Since(started))
	return &a
}

// advance moves the draft to the next stage and emits the transition.
func (o *Orchestrator) advance(d *draft.Draft, to Stage) {
	from := Stage(d.Stage)
	if !validTransition(from, to) {
		// Transition table violations are programming errors; log loudly
		// rather than corrupting the run.
		o.logger.Printf("invalid stage transition %s -> %s (run %s)", from, to, d.RunID)
		return
	}
	d.Stage = string(to)
	status := ProgressRunning
	if to == StageDone {
		status = ProgressCompleted
	}
	o.emit(d, string(to), "orchestrator", status, fmt.Sprintf("entering stage %s", to))
}

// fail moves the run to FAILED, recording the failing stage and cause.
func (o *Orchestrator) fail(d *draft.Draft, at Stage, err error) error {
	wrapped := fmt.Errorf("stage %s failed: %w", at, err)
	d.Stage = string(StageFailed)
	d.RunErr = wrapped.Error()
	o.emit(d, string(StageFailed), "orchestrator", ProgressError, wrapped.Error())
	o.logger.Printf("run %s failed at %s: %v", d.RunID, at, err)
	return wrapped
}

// runTimed wraps a stage body with a span and a duration metric.
func runTimed[T any](o *Orchestrator, ctx context.Context, stage Stage, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := telemetry.StartSpan(ctx, "pipeline."+string(stage))
	defer span.End()
	started := time.Now()
	out, err := fn(ctx)
	if o.tel != nil {
		o.tel.RecordStage(string(stage), time.Since(started))
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func (o *Orchestrator) emit(d *draft.Draft, stage, agent, status, message string) {
	o.emitter.Emit(ProgressEvent{
		RunID:     d.RunID,
		Stage:     stage,
		AgentName: agent,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	})
}

func (o *Orchestrator) emitSection(d *draft.Draft, item draft.PlanItem, status, message string) {
	o.emitter.Emit(ProgressEvent{
		RunID:     d.RunID,
		Stage:     string(StageResearch),
		AgentName: "section-researcher",
		Status:    status,
		Message:   message,
		Metadata:  map[string]any{"section_index": item.Index, "section_title": item.Title},
		Timestamp: time.Now(),
	})
}
