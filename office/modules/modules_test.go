package modules

import (
	"context"
	"testing"

	"github.com/workgraph/mcp-office/office/graph"
	"github.com/workgraph/mcp-office/office/registry"
)

func TestRegisterAllAdvertisesAllCapabilities(t *testing.T) {
	reg := registry.New()
	mgr := graph.NewManager("client-id", "mem://localhost/modules-test")
	if err := RegisterAll(reg, mgr, &Options{DefaultTenant: "organizations"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		IntentCreateEvent, IntentDownloadFile, IntentGetProfile,
		IntentListEvents, IntentListFiles, IntentListMail, IntentSendMail,
	}
	got := reg.ListCapabilities()
	if len(got) != len(want) {
		t.Fatalf("expected %d capabilities, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	for _, capability := range want {
		if candidates := reg.FindByCapability(capability); len(candidates) != 1 {
			t.Fatalf("capability %q should have exactly one provider, got %d", capability, len(candidates))
		}
	}
}

func TestRegisterAllIsNotRepeatable(t *testing.T) {
	reg := registry.New()
	mgr := graph.NewManager("client-id", "mem://localhost/modules-test")
	if err := RegisterAll(reg, mgr, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := RegisterAll(reg, mgr, nil); err == nil {
		t.Fatalf("second registration must be rejected")
	}
}

func TestAccountResolution(t *testing.T) {
	opts := &Options{DefaultTenant: "organizations"}
	account := opts.account(map[string]any{"account": map[string]any{"alias": "work"}}, nil)
	if account.Alias != "work" || account.TenantID != "organizations" {
		t.Fatalf("unexpected account: %+v", account)
	}
	account = opts.account(map[string]any{}, map[string]any{"accountAlias": "personal", "tenantId": "ten-1"})
	if account.Alias != "personal" || account.TenantID != "ten-1" {
		t.Fatalf("unexpected account: %+v", account)
	}
	account = opts.account(map[string]any{}, map[string]any{})
	if account.Alias != "default" {
		t.Fatalf("expected default alias, got %q", account.Alias)
	}
}

func TestMailModuleRejectsForeignIntent(t *testing.T) {
	m := Mail(nil, nil)
	if _, err := m.HandleIntent(context.Background(), "createEvent", nil, nil); err == nil {
		t.Fatalf("expected foreign intent rejection")
	}
}
