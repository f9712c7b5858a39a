package server

import (
	"context"
	"testing"
	"time"

	"github.com/thinhkhuat/scribe/internal/agent/core"
)

func TestHubDeliversToSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub()
	go h.Start(ctx)

	sub, unsubscribe := h.Subscribe()
	defer unsubscribe()

	h.Emit(core.ProgressEvent{RunID: "r1", Stage: "LOOKUP", Status: core.ProgressRunning})

	select {
	case ev := <-sub:
		if ev.RunID != "r1" || ev.Stage != "LOOKUP" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub()
	go h.Start(ctx)

	sub, unsubscribe := h.Subscribe()
	unsubscribe()
	h.Emit(core.ProgressEvent{RunID: "r2"})

	select {
	case ev := <-sub:
		t.Fatalf("unexpected delivery after unsubscribe: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
