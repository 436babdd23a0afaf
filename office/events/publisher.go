// Package events carries best-effort notifications about routed intents.
// Delivery is at-most-once by contract: the router publishes after the fact
// and swallows publish failures so eventing can never block or fail a call.
package events

import (
	"context"
	"time"
)

// IntentEvent describes one completed or failed routing call. Payloads are
// deliberately absent; only identifiers and timing leave the process.
type IntentEvent struct {
	ID         string    `json:"id"`
	Intent     string    `json:"intent"`
	ModuleID   string    `json:"moduleId,omitempty"`
	UserID     string    `json:"userId,omitempty"`
	SessionID  string    `json:"sessionId,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMS float64   `json:"durationMs"`
	At         time.Time `json:"at"`
}

// Publisher delivers intent events to interested subscribers.
type Publisher interface {
	Publish(ctx context.Context, event *IntentEvent) error
}

// NopPublisher discards events (in-process usage without eventing).
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *IntentEvent) error { return nil }

// CallbackPublisher invokes a callback per event (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *IntentEvent) error
}

func NewCallbackPublisher(cb func(ctx context.Context, event *IntentEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

func (p *CallbackPublisher) Publish(ctx context.Context, event *IntentEvent) error {
	return p.callback(ctx, event)
}
