// Package streams publishes pipeline progress events to a Redis stream
// for external real-time consumers.
package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/thinhkhuat/scribe/internal/agent/core"
)

// Publisher appends progress events to a Redis stream via XADD.
type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// PublishOption configures XADD behaviour.
type PublishOption func(*Publisher)

// WithMaxLenApprox caps the stream at an approximate max length.
func WithMaxLenApprox(maxLen int64) PublishOption {
	return func(p *Publisher) { p.maxLen = maxLen }
}

func NewPublisher(client *redis.Client, stream string, opts ...PublishOption) (*Publisher, error) {
	if stream == "" {
		return nil, fmt.Errorf("stream name is required")
	}
	p := &Publisher{client: client, stream: stream, maxLen: 4096}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Publish appends one event and returns its stream ID.
func (p *Publisher) Publish(ctx context.Context, event core.ProgressEvent) (string, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{"event": raw},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

// Recent returns up to n most recent events, newest first.
func (p *Publisher) Recent(ctx context.Context, n int64) ([]core.ProgressEvent, error) {
	msgs, err := p.client.XRevRangeN(ctx, p.stream, "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange: %w", err)
	}
	out := make([]core.ProgressEvent, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["event"].(string)
		if !ok {
			continue
		}
		var ev core.ProgressEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

const publishTimeout = 2 * time.Second

// Emitter adapts Publisher to the pipeline's progress interface. XADD
// failures are dropped; progress delivery must never stall research.
type Emitter struct {
	publisher *Publisher
}

func NewEmitter(publisher *Publisher) *Emitter {
	return &Emitter{publisher: publisher}
}

func (e *Emitter) Emit(event core.ProgressEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	_, _ = e.publisher.Publish(ctx, event)
}
