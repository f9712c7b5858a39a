package core

import (
	"context"
	"fmt"
	"log"

	"github.com/thinhkhuat/scribe/internal/draft"
	"github.com/thinhkhuat/scribe/internal/provider"
)

// WriterAgent assembles the final document from merged section blocks
// with a single aggregate generation call.
type WriterAgent struct {
	invoker Invoker
	logger  *log.Logger
}

func NewWriterAgent(invoker Invoker, logger *log.Logger) *WriterAgent {
	return &WriterAgent{invoker: invoker, logger: logger}
}

func (a *WriterAgent) Run(ctx context.Context, task ResearchTask, blocks []draft.Block) (string, error) {
	res := a.invoker.Generate(ctx, provider.GenRequest{
		System: writerSystemPrompt,
		Prompt: fmt.Sprintf(writerUserPrompt, task.Query, task.Language, task.Tone, draft.RenderBlocks(blocks)),
	})
	if !res.Success {
		return "", fmt.Errorf("document assembly failed after %d attempts: %w", res.AttemptCount, res.Err)
	}
	a.logger.Printf("document assembled via %s (%d attempts)", res.ProviderUsed, res.AttemptCount)
	return res.Text, nil
}
