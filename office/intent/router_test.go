package intent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/workgraph/mcp-office/office/events"
	"github.com/workgraph/mcp-office/office/registry"
)

type fakeDirectory struct{ modules map[string][]*registry.Module }

func (f *fakeDirectory) FindByCapability(capability string) []*registry.Module {
	return f.modules[capability]
}

type logEntry struct {
	message  string
	metadata map[string]any
	category string
	err      error
	userID   string
}

type recordingLogger struct{ entries []logEntry }

func (l *recordingLogger) Log(message string, metadata map[string]any, category string, err error, userID, _ string) {
	l.entries = append(l.entries, logEntry{message, metadata, category, err, userID})
}

type recordingMetrics struct {
	names []string
	tags  []map[string]string
}

func (m *recordingMetrics) Record(name string, _ float64, tags map[string]string) {
	m.names = append(m.names, name)
	m.tags = append(m.tags, tags)
}

func handlerModule(id string, priority int, fn registry.HandlerFunc, capabilities ...string) *registry.Module {
	return &registry.Module{
		ID:           id,
		Name:         id,
		Capabilities: capabilities,
		Priority:     priority,
		Init:         func(context.Context) error { return nil },
		HandleIntent: fn,
	}
}

func TestRouteIntentNoModule(t *testing.T) {
	log := &recordingLogger{}
	r := New(&fakeDirectory{modules: map[string][]*registry.Module{}}, WithLogger(log))
	_, err := r.RouteIntent(context.Background(), &Invocation{Intent: "listMail", UserID: "alice"})
	if !IsNotFound(err) {
		t.Fatalf("expected not-found category, got %v", err)
	}
	// Infrastructure log plus a user-facing event when the requester is known.
	if len(log.entries) < 2 {
		t.Fatalf("expected infrastructure and user-facing log entries, got %d", len(log.entries))
	}
	if log.entries[1].userID != "alice" {
		t.Fatalf("user-facing entry missing requester, got %q", log.entries[1].userID)
	}
}

func TestRouteIntentSelectsHighestPriority(t *testing.T) {
	var invoked []string
	mk := func(id string) registry.HandlerFunc {
		return func(context.Context, string, map[string]any, map[string]any) (any, error) {
			invoked = append(invoked, id)
			return id, nil
		}
	}
	reg := registry.New()
	for _, m := range []*registry.Module{
		handlerModule("secondary", 0, mk("secondary"), "listMail"),
		handlerModule("primary", 5, mk("primary"), "listMail"),
	} {
		if err := reg.Register(m); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	r := New(reg)
	result, err := r.RouteIntent(context.Background(), &Invocation{Intent: "listMail"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "primary" || len(invoked) != 1 || invoked[0] != "primary" {
		t.Fatalf("expected only the top-priority module to run, got result=%v invoked=%v", result, invoked)
	}
}

func TestRouteIntentInvalidModule(t *testing.T) {
	// A module whose handler disappeared after registration-time validation.
	broken := &registry.Module{ID: "broken", Name: "broken", Capabilities: []string{"listMail"}}
	dir := &fakeDirectory{modules: map[string][]*registry.Module{"listMail": {broken}}}
	_, err := New(dir).RouteIntent(context.Background(), &Invocation{Intent: "listMail"})
	if CategoryOf(err) != CategoryInvalidModule {
		t.Fatalf("expected invalid-module category, got %v", err)
	}
	if IsNotFound(err) {
		t.Fatalf("invalid module must be distinct from not-found")
	}
}

func TestRouteIntentWrapsUncategorizedFailures(t *testing.T) {
	cause := errors.New("downstream exploded")
	fail := func(context.Context, string, map[string]any, map[string]any) (any, error) {
		return nil, cause
	}
	dir := &fakeDirectory{modules: map[string][]*registry.Module{
		"sendMail": {handlerModule("mail", 0, fail, "sendMail")},
	}}
	_, err := New(dir).RouteIntent(context.Background(), &Invocation{Intent: "sendMail"})
	if CategoryOf(err) != CategoryRouter {
		t.Fatalf("expected intent-router category, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("wrapped error must keep the cause")
	}
}

func TestRouteIntentKeepsCategorizedFailures(t *testing.T) {
	tagged := &Error{Category: "graph-api", Message: "throttled"}
	fail := func(context.Context, string, map[string]any, map[string]any) (any, error) {
		return nil, tagged
	}
	dir := &fakeDirectory{modules: map[string][]*registry.Module{
		"sendMail": {handlerModule("mail", 0, fail, "sendMail")},
	}}
	_, err := New(dir).RouteIntent(context.Background(), &Invocation{Intent: "sendMail"})
	if !errors.Is(err, tagged) {
		t.Fatalf("categorized error must pass through unchanged, got %v", err)
	}
	if CategoryOf(err) != "graph-api" {
		t.Fatalf("category rewritten to %q", CategoryOf(err))
	}
}

func TestRouteIntentRecordsMetricAndRedactsLogs(t *testing.T) {
	ok := func(context.Context, string, map[string]any, map[string]any) (any, error) {
		return "done", nil
	}
	dir := &fakeDirectory{modules: map[string][]*registry.Module{
		"sendMail": {handlerModule("mail", 0, ok, "sendMail")},
	}}
	log := &recordingLogger{}
	metrics := &recordingMetrics{}
	r := New(dir, WithLogger(log), WithMetrics(metrics))
	_, err := r.RouteIntent(context.Background(), &Invocation{
		Intent:   "sendMail",
		Entities: map[string]any{"password": "secret", "subject": "hello"},
		UserID:   "alice",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(metrics.names) != 1 || metrics.names[0] != "intent.route.duration_ms" {
		t.Fatalf("expected duration metric, got %v", metrics.names)
	}
	if metrics.tags[0]["intent"] != "sendMail" || metrics.tags[0]["module"] != "mail" {
		t.Fatalf("metric tags wrong: %v", metrics.tags[0])
	}
	if len(log.entries) == 0 {
		t.Fatalf("expected an informational log entry")
	}
	entities := log.entries[0].metadata["entities"].(map[string]any)
	if entities["password"] != Redacted {
		t.Fatalf("logged entities not redacted: %v", entities)
	}
	if entities["subject"] != "hello" {
		t.Fatalf("non-sensitive entity altered: %v", entities)
	}
}

func TestRouteIntentPublishesBestEffortEvents(t *testing.T) {
	ok := func(context.Context, string, map[string]any, map[string]any) (any, error) {
		return "done", nil
	}
	dir := &fakeDirectory{modules: map[string][]*registry.Module{
		"sendMail": {handlerModule("mail", 0, ok, "sendMail")},
	}}
	var published []*events.IntentEvent
	pub := events.NewCallbackPublisher(func(_ context.Context, ev *events.IntentEvent) error {
		published = append(published, ev)
		return fmt.Errorf("broker down")
	})
	r := New(dir, WithPublisher(pub))
	if _, err := r.RouteIntent(context.Background(), &Invocation{Intent: "sendMail", SessionID: "s1"}); err != nil {
		t.Fatalf("publish failure must never fail the call: %v", err)
	}
	if len(published) != 1 || published[0].Status != "ok" || published[0].ModuleID != "mail" {
		t.Fatalf("unexpected events: %+v", published)
	}
}

func TestModulesForIntentPassThrough(t *testing.T) {
	reg := registry.New()
	_ = reg.Register(handlerModule("mail", 1, func(context.Context, string, map[string]any, map[string]any) (any, error) { return nil, nil }, "listMail"))
	r := New(reg)
	if got := r.ModulesForIntent("listMail"); len(got) != 1 || got[0].ID != "mail" {
		t.Fatalf("unexpected candidates: %v", got)
	}
	if got := r.ModulesForIntent("unknown"); len(got) != 0 {
		t.Fatalf("expected no candidates, got %v", got)
	}
}
