// Package draft holds the evolving document state for one research
// run: the ordered section plan, per-section research results and
// run-level metadata. Section cells are partitioned by index — exactly
// one worker writes a given section after planning — so section content
// needs no locking. The aggregate stage and plan are written only by
// the orchestrator.
package draft

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Section status values.
const (
	StatusPending     = "pending"
	StatusResearching = "researching"
	StatusDone        = "done"
	StatusFailed      = "failed"
)

// ResearchTask is the input to a run. Immutable once the run starts.
// PublishFormats is opaque to the pipeline and passed through to the
// external renderer unexamined.
type ResearchTask struct {
	Query          string   `json:"query"`
	Language       string   `json:"language"`
	Tone           string   `json:"tone"`
	MaxSections    int      `json:"max_sections"`
	Guidelines     []string `json:"guidelines,omitempty"`
	PublishFormats []string `json:"publish_formats,omitempty"`
}

// PlanItem is one entry of the ordered section plan. Index defines the
// canonical document order and is the sole ordering key downstream;
// completion order is never used.
type PlanItem struct {
	Index     int    `json:"index"`
	Title     string `json:"title"`
	Directive string `json:"research_directive"`
}

// Section is the mutable unit of the draft.
type Section struct {
	Index     int       `json:"index"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Content   string    `json:"content,omitempty"`
	Citations []string  `json:"citations,omitempty"`
	Err       string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Draft is the aggregate state of one run.
type Draft struct {
	RunID     string           `json:"run_id"`
	Task      ResearchTask     `json:"task"`
	Plan      []PlanItem       `json:"plan,omitempty"`
	Sections  map[int]*Section `json:"sections,omitempty"`
	Stage     string           `json:"stage"`
	Document  string           `json:"document,omitempty"`
	RunErr    string           `json:"run_error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewDraft creates the draft for a task. Exactly one draft exists per
// run.
func NewDraft(task ResearchTask) *Draft {
	return &Draft{
		RunID:     uuid.NewString(),
		Task:      task,
		Sections:  make(map[int]*Section),
		CreatedAt: time.Now(),
	}
}

// ApplyPlan records the plan and creates all section cells in bulk.
// Called once, before any researcher is dispatched. Sections are never
// deleted mid-run.
func (d *Draft) ApplyPlan(plan []PlanItem) error {
	for _, item := range plan {
		if _, exists := d.Sections[item.Index]; exists {
			return fmt.Errorf("duplicate section index %d in plan", item.Index)
		}
		d.Sections[item.Index] = &Section{
			Index:     item.Index,
			Title:     item.Title,
			Status:    StatusPending,
			UpdatedAt: time.Now(),
		}
	}
	d.Plan = plan
	return nil
}

// MarkResearching flags a section as in flight. Called by the single
// worker that owns the index.
func (d *Draft) MarkResearching(index int) {
	if s, ok := d.Sections[index]; ok {
		s.Status = StatusResearching
		s.UpdatedAt = time.Now()
	}
}

// SetSectionDone records a successful research result at index.
func (d *Draft) SetSectionDone(index int, content string, citations []string) {
	if s, ok := d.Sections[index]; ok {
		s.Status = StatusDone
		s.Content = content
		s.Citations = citations
		s.Err = ""
		s.UpdatedAt = time.Now()
	}
}

// SetSectionFailed records a failed research result at index. The
// failure stays local to the section; it never escalates on its own.
func (d *Draft) SetSectionFailed(index int, err error) {
	if s, ok := d.Sections[index]; ok {
		s.Status = StatusFailed
		s.Err = err.Error()
		s.UpdatedAt = time.Now()
	}
}

// OrderedSections returns the sections in ascending plan index,
// regardless of completion order.
func (d *Draft) OrderedSections() []*Section {
	out := make([]*Section, 0, len(d.Plan))
	for _, item := range d.Plan {
		if s, ok := d.Sections[item.Index]; ok {
			out = append(out, s)
		}
	}
	return out
}

// DoneCount returns how many sections completed successfully.
func (d *Draft) DoneCount() int {
	n := 0
	for _, s := range d.Sections {
		if s.Status == StatusDone {
			n++
		}
	}
	return n
}

// FailedCount returns how many sections failed.
func (d *Draft) FailedCount() int {
	n := 0
	for _, s := range d.Sections {
		if s.Status == StatusFailed {
			n++
		}
	}
	return n
}
