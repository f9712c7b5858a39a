package core

import (
	"context"
	"time"

	"github.com/thinhkhuat/scribe/internal/draft"
)

// HandoffSink receives the finished artifact. Implementations persist
// it, publish it, or hand it to an external renderer. Handoff is
// fire-and-forget from the pipeline's perspective: a sink error is
// logged upstream but never fails the run.
type HandoffSink interface {
	Deliver(ctx context.Context, artifact HandoffArtifact) error
}

// NopSink discards artifacts.
type NopSink struct{}

func (NopSink) Deliver(context.Context, HandoffArtifact) error { return nil }

// buildArtifact snapshots the draft into the handoff payload.
func buildArtifact(d *draft.Draft, elapsed time.Duration) HandoffArtifact {
	return HandoffArtifact{
		RunID:        d.RunID,
		DocumentText: d.Document,
		Sections:     d.OrderedSections(),
		Language:     d.Task.Language,
		Metadata: RunMetadata{
			Query:          d.Task.Query,
			Stage:          d.Stage,
			SectionsDone:   d.DoneCount(),
			SectionsFailed: d.FailedCount(),
			Elapsed:        elapsed,
			PublishFormats: d.Task.PublishFormats,
		},
	}
}
