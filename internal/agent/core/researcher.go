package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/thinhkhuat/scribe/internal/agent/config"
	"github.com/thinhkhuat/scribe/internal/draft"
	"github.com/thinhkhuat/scribe/internal/provider"
	"github.com/thinhkhuat/scribe/internal/research"
)

// SectionResearcher researches and writes one section. Instances are
// stateless; the orchestrator runs several concurrently, each owning a
// single section index.
type SectionResearcher struct {
	invoker Invoker
	cache   *research.Cache
	fetcher *research.Fetcher
	cfg     config.ResearchConfig
	logger  *log.Logger
}

func NewSectionResearcher(invoker Invoker, cache *research.Cache, fetcher *research.Fetcher, cfg config.ResearchConfig, logger *log.Logger) *SectionResearcher {
	return &SectionResearcher{invoker: invoker, cache: cache, fetcher: fetcher, cfg: cfg, logger: logger}
}

// Run gathers sources for the section's directive and synthesizes the
// section content. A search failure degrades to whatever cached
// material exists; only generation failure fails the section.
func (r *SectionResearcher) Run(ctx context.Context, task ResearchTask, item draft.PlanItem) (string, []string, error) {
	sources := r.gather(ctx, item)

	material := "(no source material retrieved; state clearly that sources were unavailable)"
	var citations []string
	if len(sources) > 0 {
		var b strings.Builder
		for i, s := range sources {
			fmt.Fprintf(&b, "[%d] %s\n%s\n", i+1, s.Title, s.URL)
			if s.Content != "" {
				b.WriteString(s.Content)
			} else if s.Snippet != "" {
				b.WriteString(s.Snippet)
			}
			b.WriteString("\n\n")
			citations = append(citations, s.URL)
		}
		material = b.String()
	}

	res := r.invoker.Generate(ctx, provider.GenRequest{
		System: researcherSystemPrompt,
		Prompt: fmt.Sprintf(researcherUserPrompt, item.Title, item.Directive, task.Tone, material),
	})
	if !res.Success {
		return "", nil, fmt.Errorf("section %d synthesis failed after %d attempts: %w", item.Index, res.AttemptCount, res.Err)
	}
	return res.Text, citations, nil
}

// gather collects source material: cached hits first, then external
// search, then optional full-content fetches. Every step here degrades
// rather than fails; thin material is the researcher prompt's problem.
func (r *SectionResearcher) gather(ctx context.Context, item draft.PlanItem) []provider.Source {
	var sources []provider.Source

	if r.cfg.CacheEnabled && r.cache != nil {
		hits, err := r.cache.Search(item.Directive, 3)
		if err != nil {
			r.logger.Printf("section %d: cache lookup failed: %v", item.Index, err)
		} else {
			sources = append(sources, hits...)
		}
	}

	searchRes := r.invoker.Search(ctx, item.Directive, 0)
	if searchRes.Success {
		sources = append(sources, searchRes.Sources...)
		if r.cfg.CacheEnabled && r.cache != nil {
			if err := r.cache.Put(searchRes.Sources...); err != nil {
				r.logger.Printf("section %d: caching sources failed: %v", item.Index, err)
			}
		}
	} else {
		r.logger.Printf("section %d: search failed after %d attempts: %v", item.Index, searchRes.AttemptCount, searchRes.Err)
	}
	sources = provider.DeduplicateSources(sources)

	if r.cfg.FetchEnabled && r.fetcher != nil {
		limit := r.cfg.FetchPerQuery
		if limit <= 0 {
			limit = 2
		}
		for i := range sources {
			if i >= limit {
				break
			}
			if sources[i].Content != "" {
				continue
			}
			text, err := r.fetcher.Fetch(ctx, sources[i].URL)
			if err != nil {
				r.logger.Printf("section %d: fetch %s failed: %v", item.Index, sources[i].URL, err)
				continue
			}
			sources[i].Content = text
		}
	}
	return sources
}
