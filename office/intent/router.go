// Package intent resolves named intents to handler modules and executes them
// with uniform error normalization, redacted structured logging, and a
// best-effort event trail.
package intent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/workgraph/mcp-office/office/events"
	"github.com/workgraph/mcp-office/office/registry"
	"github.com/workgraph/mcp-office/office/telemetry"
)

// Directory is the registry surface the router needs.
type Directory interface {
	FindByCapability(capability string) []*registry.Module
}

// Invocation is one transient unit of work. Entities and Context are opaque
// maps; they are redacted before any logging.
type Invocation struct {
	Intent    string
	Entities  map[string]any
	Context   map[string]any
	UserID    string
	SessionID string
}

// Router routes one intent to exactly one handler: the highest-priority
// module advertising the intent as a capability. No fan-out.
type Router struct {
	dir       Directory
	log       telemetry.Logger
	metrics   telemetry.Metrics
	publisher events.Publisher
}

// Option customizes a Router.
type Option func(*Router)

// WithLogger sets the logging collaborator.
func WithLogger(l telemetry.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics sets the metrics collaborator.
func WithMetrics(m telemetry.Metrics) Option {
	return func(r *Router) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithPublisher sets the best-effort event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(r *Router) {
		if p != nil {
			r.publisher = p
		}
	}
}

// New builds a Router over a module directory. All collaborators default to
// no-op implementations.
func New(dir Directory, opts ...Option) *Router {
	r := &Router{
		dir:       dir,
		log:       telemetry.NopLogger(),
		metrics:   telemetry.NopMetrics(),
		publisher: events.NopPublisher{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RouteIntent resolves inv.Intent to its top-priority module and invokes it.
// Every failure leaving this method carries a category: CategoryNotFound when
// no module serves the intent, CategoryInvalidModule when the selected module
// lost its handler after registration, the handler's own category when it
// returned a categorized error, and CategoryRouter otherwise.
func (r *Router) RouteIntent(ctx context.Context, inv *Invocation) (any, error) {
	if inv == nil || inv.Intent == "" {
		return nil, &Error{Category: CategoryRouter, Message: "missing intent"}
	}
	meta := map[string]any{
		"intent":   inv.Intent,
		"entities": RedactSensitiveData(inv.Entities),
		"context":  RedactSensitiveData(inv.Context),
	}
	if inv.SessionID != "" {
		meta["sessionId"] = inv.SessionID
	}

	candidates := r.dir.FindByCapability(inv.Intent)
	if len(candidates) == 0 {
		failure := &Error{Category: CategoryNotFound, Message: fmt.Sprintf("no module registered for intent %q", inv.Intent)}
		r.log.Log("intent routing failed: no module", meta, CategoryRouter, failure, "", "")
		if inv.UserID != "" {
			r.log.Log("request could not be served", map[string]any{"intent": inv.Intent}, CategoryNotFound, failure, inv.UserID, "")
		}
		r.emit(ctx, inv, "", "failed", failure, 0)
		return nil, failure
	}

	selected := candidates[0]
	meta["moduleId"] = selected.ID
	if selected.HandleIntent == nil {
		failure := &Error{Category: CategoryInvalidModule, Message: fmt.Sprintf("module %q has no intent handler", selected.ID)}
		r.log.Log("intent routing failed: invalid module", meta, CategoryRouter, failure, inv.UserID, "")
		r.emit(ctx, inv, selected.ID, "failed", failure, 0)
		return nil, failure
	}

	started := time.Now()
	result, err := selected.HandleIntent(ctx, inv.Intent, inv.Entities, inv.Context)
	elapsed := time.Since(started)
	if err != nil {
		normalized := err
		if CategoryOf(err) == "" {
			normalized = &Error{Category: CategoryRouter, Message: err.Error(), Err: err}
		}
		r.log.Log("intent handler failed", meta, CategoryRouter, normalized, inv.UserID, "")
		r.emit(ctx, inv, selected.ID, "failed", normalized, elapsed)
		return nil, normalized
	}

	r.metrics.Record("intent.route.duration_ms", float64(elapsed.Milliseconds()), map[string]string{
		"intent": inv.Intent,
		"module": selected.ID,
	})
	r.log.Log("intent routed", meta, CategoryRouter, nil, inv.UserID, "")
	r.emit(ctx, inv, selected.ID, "ok", nil, elapsed)
	return result, nil
}

// ModulesForIntent is a read-only pass-through to the directory, with the
// router's logging conventions but no invocation.
func (r *Router) ModulesForIntent(intent string) []*registry.Module {
	candidates := r.dir.FindByCapability(intent)
	r.log.Log("intent lookup", map[string]any{"intent": intent, "candidates": len(candidates)}, CategoryRouter, nil, "", "")
	return candidates
}

// emit publishes a best-effort event; failures are swallowed by contract.
func (r *Router) emit(ctx context.Context, inv *Invocation, moduleID, status string, failure error, elapsed time.Duration) {
	event := &events.IntentEvent{
		ID:         uuid.New().String(),
		Intent:     inv.Intent,
		ModuleID:   moduleID,
		UserID:     inv.UserID,
		SessionID:  inv.SessionID,
		Status:     status,
		DurationMS: float64(elapsed.Milliseconds()),
		At:         time.Now(),
	}
	if failure != nil {
		event.Error = failure.Error()
	}
	_ = r.publisher.Publish(ctx, event)
}
