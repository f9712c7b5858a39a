package core

import (
	"context"
	"time"

	"github.com/thinhkhuat/scribe/internal/draft"
	"github.com/thinhkhuat/scribe/internal/provider"
)

// ResearchTask is the input contract for one run.
type ResearchTask = draft.ResearchTask

// HandoffArtifact is the pipeline's final product, handed to the
// external publishing/translation layer. The pipeline does not know or
// care what formats are rendered from it.
type HandoffArtifact struct {
	RunID        string           `json:"run_id"`
	DocumentText string           `json:"document_text"`
	Sections     []*draft.Section `json:"sections"`
	Language     string           `json:"language"`
	Metadata     RunMetadata      `json:"metadata"`
}

// RunMetadata summarizes how the run went.
type RunMetadata struct {
	Query          string        `json:"query"`
	Stage          string        `json:"stage"`
	SectionsDone   int           `json:"sections_done"`
	SectionsFailed int           `json:"sections_failed"`
	Elapsed        time.Duration `json:"elapsed"`
	PublishFormats []string      `json:"publish_formats,omitempty"`
}

// Invoker is the slice of the failover controller the agent roles
// consume. Satisfied by *provider.Controller and by test stubs.
type Invoker interface {
	Generate(ctx context.Context, req provider.GenRequest) provider.InvocationResult
	Search(ctx context.Context, query string, maxResults int) provider.InvocationResult
}
