package provider

import (
	"fmt"

	"github.com/thinhkhuat/scribe/internal/agent/config"
)

type generatorEntry struct {
	spec config.ProviderSpec
	gen  Generator
}

type searcherEntry struct {
	spec config.ProviderSpec
	srch Searcher
}

// Registry holds the configured backends for each capability kind in
// ascending priority order. It is populated once at startup and
// read-only afterwards, so concurrent workers share it without
// synchronization.
type Registry struct {
	generators []generatorEntry
	searchers  []searcherEntry
}

// NewRegistry builds adapters for every configured ProviderSpec. Specs
// arrive sorted by priority from config loading; the registry preserves
// that order.
func NewRegistry(cfg config.ProvidersConfig) (*Registry, error) {
	r := &Registry{}
	for _, spec := range cfg.Generation {
		gen, err := buildGenerator(spec)
		if err != nil {
			return nil, err
		}
		r.generators = append(r.generators, generatorEntry{spec: spec, gen: gen})
	}
	for _, spec := range cfg.Search {
		srch, err := buildSearcher(spec)
		if err != nil {
			return nil, err
		}
		r.searchers = append(r.searchers, searcherEntry{spec: spec, srch: srch})
	}
	return r, nil
}

func buildGenerator(spec config.ProviderSpec) (Generator, error) {
	switch spec.Type {
	case "openai", "openai_compat":
		return NewOpenAIGenerator(spec)
	default:
		return nil, fmt.Errorf("unsupported generation provider type: %s", spec.Type)
	}
}

func buildSearcher(spec config.ProviderSpec) (Searcher, error) {
	switch spec.Type {
	case "brave":
		return NewBraveSearcher(spec)
	case "serper":
		return NewSerperSearcher(spec)
	default:
		return nil, fmt.Errorf("unsupported search provider type: %s", spec.Type)
	}
}

// RegisterGenerator appends a pre-built generator. Used by tests and by
// callers embedding custom backends.
func (r *Registry) RegisterGenerator(spec config.ProviderSpec, gen Generator) {
	r.generators = append(r.generators, generatorEntry{spec: spec, gen: gen})
}

// RegisterSearcher appends a pre-built searcher.
func (r *Registry) RegisterSearcher(spec config.ProviderSpec, srch Searcher) {
	r.searchers = append(r.searchers, searcherEntry{spec: spec, srch: srch})
}

// Generators returns the configured generation specs in priority order.
func (r *Registry) Generators() []config.ProviderSpec {
	out := make([]config.ProviderSpec, len(r.generators))
	for i, e := range r.generators {
		out[i] = e.spec
	}
	return out
}

// Searchers returns the configured search specs in priority order.
func (r *Registry) Searchers() []config.ProviderSpec {
	out := make([]config.ProviderSpec, len(r.searchers))
	for i, e := range r.searchers {
		out[i] = e.spec
	}
	return out
}
