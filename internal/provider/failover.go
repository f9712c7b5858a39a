package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/thinhkhuat/scribe/internal/agent/config"
)

// Observer is notified after every completed invocation, successful or
// not. Telemetry hangs off this hook.
type Observer func(kind Kind, res InvocationResult)

// Controller routes capability calls to the registry according to the
// configured failover strategy. It owns all retry, backoff and
// provider-advancement decisions; adapters make exactly one attempt per
// call.
type Controller struct {
	registry       *Registry
	genStrategy    string
	searchStrategy string
	logger         *log.Logger
	observer       Observer

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(time.Duration)
}

func NewController(registry *Registry, cfg config.ProvidersConfig, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.New(os.Stdout, "[FAILOVER] ", log.LstdFlags)
	}
	return &Controller{
		registry:       registry,
		genStrategy:    cfg.GenerationStrategy,
		searchStrategy: cfg.SearchStrategy,
		logger:         logger,
		sleep:          time.Sleep,
	}
}

// SetObserver installs a post-invocation hook. Not safe to call after
// the controller is in use.
func (c *Controller) SetObserver(obs Observer) { c.observer = obs }

// Generate runs req through the generation providers under the
// configured strategy. The returned result always reports which
// provider answered (or failed last) and how many attempts were spent
// in total across all providers tried.
func (c *Controller) Generate(ctx context.Context, req GenRequest) InvocationResult {
	return c.walk(ctx, KindGeneration, c.genStrategy, len(c.registry.generators), func(ctx context.Context, i int, res *InvocationResult) error {
		out, err := c.registry.generators[i].gen.Generate(ctx, req)
		if err != nil {
			return err
		}
		res.Result = out
		res.Text = out.Text
		return nil
	})
}

// Search runs a query through the search providers under the configured
// strategy.
func (c *Controller) Search(ctx context.Context, query string, maxResults int) InvocationResult {
	return c.walk(ctx, KindSearch, c.searchStrategy, len(c.registry.searchers), func(ctx context.Context, i int, res *InvocationResult) error {
		sources, err := c.registry.searchers[i].srch.Search(ctx, query, maxResults)
		if err != nil {
			return err
		}
		res.Sources = sources
		return nil
	})
}

func (c *Controller) spec(kind Kind, i int) config.ProviderSpec {
	if kind == KindGeneration {
		return c.registry.generators[i].spec
	}
	return c.registry.searchers[i].spec
}

// walk implements both strategies over the priority-ordered provider
// list. primary_only makes a single attempt against the first provider
// and never touches the rest. fallback_on_error retries each provider
// up to MaxRetries extra times on retryable errors with exponential
// backoff, advances immediately on non-retryable ones, and moves to the
// next provider once a provider's attempts are exhausted.
func (c *Controller) walk(ctx context.Context, kind Kind, strategy string, n int, invoke func(context.Context, int, *InvocationResult) error) InvocationResult {
	started := time.Now()
	res := InvocationResult{}
	defer func() {
		if c.observer != nil {
			c.observer(kind, res)
		}
	}()

	if n == 0 {
		res.Err = fmt.Errorf("no %s providers configured", kind)
		res.Elapsed = time.Since(started)
		return res
	}

	limit := n
	if strategy == config.StrategyPrimaryOnly {
		limit = 1
	}

	var lastErr error
	for i := 0; i < limit; i++ {
		spec := c.spec(kind, i)
		attempts := 1
		if strategy == config.StrategyFallbackOnError {
			attempts = spec.MaxRetries + 1
		}
		for attempt := 0; attempt < attempts; attempt++ {
			if err := ctx.Err(); err != nil {
				res.Err = Classify(spec.Name, err)
				res.ProviderUsed = spec.Name
				res.Elapsed = time.Since(started)
				return res
			}
			res.AttemptCount++
			err := c.invokeOnce(ctx, spec, i, invoke, &res)
			if err == nil {
				res.Success = true
				res.ProviderUsed = spec.Name
				res.Elapsed = time.Since(started)
				return res
			}
			lastErr = Classify(spec.Name, err)
			retryable := Retryable(lastErr)
			c.logger.Printf("%s provider %s attempt %d/%d failed (retryable=%v): %v",
				kind, spec.Name, attempt+1, attempts, retryable, lastErr)
			if !retryable {
				break // next provider, retrying cannot help
			}
			if attempt < attempts-1 {
				c.sleep(spec.RetryBackoff * time.Duration(1<<attempt))
			}
		}
	}

	res.Err = lastErr
	res.Elapsed = time.Since(started)
	var perr *Error
	if errors.As(lastErr, &perr) {
		res.ProviderUsed = perr.Provider
	}
	return res
}

// invokeOnce bounds a single attempt by the provider's configured
// timeout so a hung backend cannot stall the whole failover walk.
func (c *Controller) invokeOnce(ctx context.Context, spec config.ProviderSpec, i int, invoke func(context.Context, int, *InvocationResult) error, res *InvocationResult) error {
	callCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}
	return invoke(callCtx, i, res)
}
