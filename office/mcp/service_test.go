package mcp

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(&Config{
		ClientID:    "client-id",
		TenantID:    "organizations",
		SecretsBase: "mem://localhost/mcp-office-test",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNewServiceRegistersAllModules(t *testing.T) {
	svc := testService(t)
	caps := svc.Registry().ListCapabilities()
	if len(caps) != 7 {
		t.Fatalf("expected 7 capabilities, got %v", caps)
	}
	if len(svc.Registry().ListAll()) != 4 {
		t.Fatalf("expected 4 modules, got %d", len(svc.Registry().ListAll()))
	}
	if svc.Router() == nil {
		t.Fatalf("router must be wired")
	}
}

func TestPendingAuthLifecycle(t *testing.T) {
	p := NewPendingAuths()
	p.Put(&PendingAuth{UUID: "u1", Alias: "work", Namespace: "alice"})
	p.Put(&PendingAuth{UUID: "u2", Alias: "personal", Namespace: "alice"})
	p.Put(&PendingAuth{UUID: "u3", Alias: "work", Namespace: "bob"})
	if _, ok := p.Get("u1"); !ok {
		t.Fatalf("u1 should be pending")
	}
	if got := len(p.ListNamespace("alice")); got != 2 {
		t.Fatalf("expected 2 pending for alice, got %d", got)
	}
	p.Complete("u1")
	if _, ok := p.Get("u1"); ok {
		t.Fatalf("u1 should be gone after completion")
	}
	cleared := p.ClearNamespace("alice")
	if len(cleared) != 1 || cleared[0] != "u2" {
		t.Fatalf("unexpected cleared set: %v", cleared)
	}
	if got := len(p.ListNamespace("bob")); got != 1 {
		t.Fatalf("bob's pending auth must survive, got %d", got)
	}
}

func TestPendingEndpoints(t *testing.T) {
	svc := testService(t)
	svc.Pending().Put(&PendingAuth{UUID: "u1", Alias: "work", Namespace: "alice"})

	mux := http.NewServeMux()
	svc.RegisterHTTP(mux)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/office/auth/pending?namespace=alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "u1") {
		t.Fatalf("unexpected pending list: %d %s", resp.StatusCode, body)
	}

	resp, err = http.Post(ts.URL+"/office/auth/pending/clear?namespace=alice", "application/json", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected clear status: %d", resp.StatusCode)
	}
	if got := len(svc.Pending().ListNamespace("alice")); got != 0 {
		t.Fatalf("pending auths must be cleared, got %d", got)
	}
}

func TestDeviceLoginHTMLParsesPrompt(t *testing.T) {
	msg := "To sign in, use a web browser to open the page https://microsoft.com/devicelogin and enter the code ABCD-1234 to authenticate."
	page := buildDeviceLoginHTML(msg)
	if !strings.Contains(page, "https://microsoft.com/devicelogin") {
		t.Fatalf("login URL missing: %s", page)
	}
	if !strings.Contains(page, "ABCD-1234") {
		t.Fatalf("device code missing: %s", page)
	}
}
