package server

import (
	"context"
	"sync"

	"github.com/thinhkhuat/scribe/internal/agent/core"
)

// Hub fans progress events out to SSE subscribers. It implements
// core.ProgressEmitter; slow subscribers drop events instead of
// blocking the pipeline.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan core.ProgressEvent]struct{}
	events chan core.ProgressEvent
}

func NewHub() *Hub {
	return &Hub{
		subs:   make(map[chan core.ProgressEvent]struct{}),
		events: make(chan core.ProgressEvent, 256),
	}
}

func (h *Hub) Emit(event core.ProgressEvent) {
	select {
	case h.events <- event:
	default:
	}
}

// Start distributes events until ctx is cancelled.
func (h *Hub) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.events:
			h.mu.Lock()
			for sub := range h.subs {
				select {
				case sub <- ev:
				default:
				}
			}
			h.mu.Unlock()
		}
	}
}

// Subscribe returns a channel of future events and a cancel func.
func (h *Hub) Subscribe() (<-chan core.ProgressEvent, func()) {
	sub := make(chan core.ProgressEvent, 64)
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub, func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
	}
}
