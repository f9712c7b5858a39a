package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/thinhkhuat/scribe/internal/provider"
)

// LookupAgent performs the initial orientation pass over the topic. Its
// brief feeds the planner. This stage is mandatory: without it there is
// no partial document to salvage.
type LookupAgent struct {
	invoker Invoker
	logger  *log.Logger
}

func NewLookupAgent(invoker Invoker, logger *log.Logger) *LookupAgent {
	return &LookupAgent{invoker: invoker, logger: logger}
}

func (a *LookupAgent) Run(ctx context.Context, task ResearchTask) (string, error) {
	guidelines := "- none"
	if len(task.Guidelines) > 0 {
		guidelines = "- " + strings.Join(task.Guidelines, "\n- ")
	}
	res := a.invoker.Generate(ctx, provider.GenRequest{
		System: lookupSystemPrompt,
		Prompt: fmt.Sprintf(lookupUserPrompt, task.Query, guidelines),
	})
	if !res.Success {
		return "", fmt.Errorf("initial lookup failed after %d attempts: %w", res.AttemptCount, res.Err)
	}
	a.logger.Printf("lookup complete via %s (%d attempts)", res.ProviderUsed, res.AttemptCount)
	return res.Text, nil
}
