package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/thinhkhuat/scribe/internal/draft"
	"github.com/thinhkhuat/scribe/internal/provider"
)

// PlannerAgent turns the lookup brief into an ordered section plan.
type PlannerAgent struct {
	invoker     Invoker
	logger      *log.Logger
	maxSections int
}

func NewPlannerAgent(invoker Invoker, logger *log.Logger, maxSections int) *PlannerAgent {
	if maxSections <= 0 {
		maxSections = 8
	}
	return &PlannerAgent{invoker: invoker, logger: logger, maxSections: maxSections}
}

func (a *PlannerAgent) Run(ctx context.Context, task ResearchTask, brief string) ([]draft.PlanItem, error) {
	maxSections := a.maxSections
	if task.MaxSections > 0 && task.MaxSections < maxSections {
		maxSections = task.MaxSections
	}
	res := a.invoker.Generate(ctx, provider.GenRequest{
		System: plannerSystemPrompt,
		Prompt: fmt.Sprintf(plannerUserPrompt, task.Query, task.Tone, maxSections, brief),
	})
	if !res.Success {
		return nil, fmt.Errorf("planning failed after %d attempts: %w", res.AttemptCount, res.Err)
	}
	plan, err := parsePlan(res.Text)
	if err != nil {
		return nil, fmt.Errorf("parsing section plan: %w", err)
	}
	if len(plan) > maxSections {
		plan = plan[:maxSections]
	}
	a.logger.Printf("plan ready: %d sections via %s", len(plan), res.ProviderUsed)
	return plan, nil
}

// parsePlan decodes the model's JSON plan. Models wrap JSON in code
// fences or prose often enough that we extract the outermost array
// before decoding. Indexes are normalized to 0..n-1 in the model's
// stated order.
func parsePlan(text string) ([]draft.PlanItem, error) {
	raw := extractJSONArray(text)
	if raw == "" {
		return nil, fmt.Errorf("no JSON array found in planner output")
	}
	var items []draft.PlanItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Index < items[j].Index })
	for i := range items {
		items[i].Index = i
		items[i].Title = strings.TrimSpace(items[i].Title)
		if items[i].Title == "" {
			return nil, fmt.Errorf("section %d has an empty title", i)
		}
	}
	return items, nil
}

func extractJSONArray(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
