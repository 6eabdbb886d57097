package runtime

import (
	"context"
	"time"

	"github.com/iarc-il/holyrig/model"
)

// Metrics receives runtime instrumentation. Implemented by the metrics
// package; declared here so runtime never imports it (it is the consumer).
type Metrics interface {
	SetState(rigID, state string)
	IncIOError(rigID string)
	IncTimeout(rigID string)
	ObserveExchange(rigID string, d time.Duration)
	IncPollCycle(rigID string)
}

// StatusSink receives a status-change notification from a RigInstance, the
// message-passing handoff spec.md §9 "Replacing shared mutable rig state"
// describes. Implemented by the subscription manager.
type StatusSink interface {
	Publish(rigID string, changed []string, values map[string]any)
}

// CommandRequest is one enqueued execute_command call. Done receives exactly
// one value, nil on success or the failure, once the exchange completes, the
// request is found canceled, or the rig is disabled; it is never closed. This
// is how the Dispatcher "awaits completion" per spec.md §4.5.
type CommandRequest struct {
	Ctx    context.Context
	Name   string
	Params map[string]int64
	Done   chan error

	enqueuedAt time.Time
}

// Config gathers everything a RigInstance needs beyond its Model: I/O,
// tunables, and where to report.
type Config struct {
	ID     string
	Model  *model.Model
	Dial   Dial
	Sink   StatusSink
	Metrics Metrics

	InitRetries  int           // R, default 3
	ReconnectEvery time.Duration // K
	ExchangeTimeout time.Duration // T
	TimeoutLimit int           // F, consecutive timeouts before NotResponding
	QueueDepth   int           // bounded command queue capacity
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.InitRetries <= 0 {
		out.InitRetries = 3
	}
	if out.ReconnectEvery <= 0 {
		out.ReconnectEvery = 10 * time.Second
	}
	if out.ExchangeTimeout <= 0 {
		out.ExchangeTimeout = 2 * time.Second
	}
	if out.TimeoutLimit <= 0 {
		out.TimeoutLimit = 3
	}
	if out.QueueDepth <= 0 {
		out.QueueDepth = 32
	}
	return out
}
