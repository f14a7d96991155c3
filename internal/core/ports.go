package core

import (
	"context"
)

// LLMClient defines the interface for interacting with text-generation services
type LLMClient interface {
	// Complete sends one request and returns the raw reply text.
	// Retryable failures must wrap ErrServiceTransient.
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)
}

// EventStore is the append-only, correlation-keyed audit log
type EventStore interface {
	// Append records the event and returns its id. It never fails the caller.
	Append(ctx context.Context, event *Event) string

	// History returns a correlation's events in append order
	History(correlationID string) []Event

	// AllCorrelations returns every known correlation id
	AllCorrelations() []string
}

// Journal is the durable append-only medium behind the event store
type Journal interface {
	// Write persists one complete event record
	Write(ctx context.Context, event *Event) error

	// Replay streams every stored event in append order
	Replay(ctx context.Context, fn func(*Event) error) error

	// Close releases the underlying resources
	Close() error
}
