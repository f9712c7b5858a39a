package core

import (
	"log"
	"time"
)

// Progress event status values.
const (
	ProgressPending   = "pending"
	ProgressRunning   = "running"
	ProgressCompleted = "completed"
	ProgressError     = "error"
)

// ProgressEvent is emitted on every stage transition and on every
// section completion so external consumers can render live progress.
type ProgressEvent struct {
	RunID     string         `json:"run_id"`
	Stage     string         `json:"stage"`
	AgentName string         `json:"agent_name"`
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ProgressEmitter delivers progress events to an external transport.
// Emitters must not block the pipeline; slow consumers drop events
// rather than stall research.
type ProgressEmitter interface {
	Emit(event ProgressEvent)
}

// LogEmitter writes progress to a standard logger.
type LogEmitter struct {
	Logger *log.Logger
}

func (e *LogEmitter) Emit(event ProgressEvent) {
	e.Logger.Printf("stage=%s agent=%s status=%s %s", event.Stage, event.AgentName, event.Status, event.Message)
}

// ChannelEmitter pushes events onto a buffered channel, dropping when
// the consumer lags.
type ChannelEmitter struct {
	C chan ProgressEvent
}

func NewChannelEmitter(buffer int) *ChannelEmitter {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelEmitter{C: make(chan ProgressEvent, buffer)}
}

func (e *ChannelEmitter) Emit(event ProgressEvent) {
	select {
	case e.C <- event:
	default:
	}
}

// MultiEmitter fans one event out to several emitters.
type MultiEmitter []ProgressEmitter

func (m MultiEmitter) Emit(event ProgressEvent) {
	for _, e := range m {
		e.Emit(event)
	}
}

// NopEmitter discards events.
type NopEmitter struct{}

func (NopEmitter) Emit(ProgressEvent) {}
