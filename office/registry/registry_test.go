package registry

import (
	"context"
	"errors"
	"testing"
)

func noopInit(context.Context) error { return nil }

func noopHandle(_ context.Context, _ string, _, _ map[string]any) (any, error) {
	return nil, nil
}

func testModule(id string, priority int, capabilities ...string) *Module {
	return &Module{
		ID:           id,
		Name:         "module " + id,
		Capabilities: capabilities,
		Priority:     priority,
		Init:         noopInit,
		HandleIntent: noopHandle,
	}
}

func TestRegisterRejectsInvalidModules(t *testing.T) {
	r := New()
	cases := []struct {
		name string
		m    *Module
	}{
		{"nil module", nil},
		{"missing id", testModule("", 0, "listMail")},
		{"missing name", &Module{ID: "m", Capabilities: []string{}, Init: noopInit, HandleIntent: noopHandle}},
		{"nil capabilities", &Module{ID: "m", Name: "m", Init: noopInit, HandleIntent: noopHandle}},
		{"nil init", &Module{ID: "m", Name: "m", Capabilities: []string{}, HandleIntent: noopHandle}},
		{"nil handler", &Module{ID: "m", Name: "m", Capabilities: []string{}, Init: noopInit}},
	}
	for _, tc := range cases {
		if err := r.Register(tc.m); !errors.Is(err, ErrInvalidModule) {
			t.Fatalf("%s: expected ErrInvalidModule, got %v", tc.name, err)
		}
	}
	if len(r.ListAll()) != 0 {
		t.Fatalf("invalid registrations must not mutate the registry")
	}
}

func TestRegisterRejectsDuplicateIDAndKeepsFirst(t *testing.T) {
	r := New()
	first := testModule("mail", 5, "listMail")
	if err := r.Register(first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second := testModule("mail", 9, "sendMail")
	if err := r.Register(second); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	m, ok := r.Lookup("mail")
	if !ok {
		t.Fatalf("first registration should survive")
	}
	if m.Priority != 5 || len(m.Capabilities) != 1 || m.Capabilities[0] != "listMail" {
		t.Fatalf("first registration was altered: %+v", m)
	}
	if got := r.FindByCapability("sendMail"); len(got) != 0 {
		t.Fatalf("rejected module must not appear in the capability index")
	}
}

func TestRegisterStoresCopy(t *testing.T) {
	r := New()
	m := testModule("files", 0, "listFiles")
	if err := r.Register(m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.Capabilities[0] = "mutated"
	m.Priority = 42
	got, _ := r.Lookup("files")
	if got.Capabilities[0] != "listFiles" || got.Priority != 0 {
		t.Fatalf("registry must keep its own copy, got %+v", got)
	}
}

func TestFindByCapabilityOrdersByDescendingPriority(t *testing.T) {
	r := New()
	for _, m := range []*Module{
		testModule("low", 0, "listMail"),
		testModule("high", 5, "listMail"),
		testModule("mid", 3, "listMail"),
	} {
		if err := r.Register(m); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	got := r.FindByCapability("listMail")
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	if got[0].ID != "high" || got[1].ID != "mid" || got[2].ID != "low" {
		t.Fatalf("unexpected order: %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestFindByCapabilityTiesKeepRegistrationOrder(t *testing.T) {
	r := New()
	for _, id := range []string{"a", "b", "c"} {
		if err := r.Register(testModule(id, 1, "listEvents")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	got := r.FindByCapability("listEvents")
	if got[0].ID != "a" || got[1].ID != "b" || got[2].ID != "c" {
		t.Fatalf("equal priority must keep registration order, got %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestFindByCapabilityUnknownReturnsEmpty(t *testing.T) {
	r := New()
	if got := r.FindByCapability("nope"); got == nil || len(got) != 0 {
		t.Fatalf("expected empty slice, got %v", got)
	}
}

func TestListCapabilitiesSorted(t *testing.T) {
	r := New()
	_ = r.Register(testModule("m1", 0, "sendMail", "listMail"))
	_ = r.Register(testModule("m2", 0, "createEvent"))
	got := r.ListCapabilities()
	want := []string{"createEvent", "listMail", "sendMail"}
	if len(got) != len(want) {
		t.Fatalf("expected %d capabilities, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestRegistrationInfo(t *testing.T) {
	r := New()
	if _, ok := r.RegistrationInfo("mail"); ok {
		t.Fatalf("unknown id must have no registration info")
	}
	if err := r.Register(testModule("mail", 0, "listMail")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	at, ok := r.RegistrationInfo("mail")
	if !ok || at.IsZero() {
		t.Fatalf("expected registration timestamp, got %v ok=%v", at, ok)
	}
}

func TestMustLookup(t *testing.T) {
	r := New()
	if _, err := r.MustLookup("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_ = r.Register(testModule("mail", 0, "listMail"))
	if m, err := r.MustLookup("mail"); err != nil || m.ID != "mail" {
		t.Fatalf("unexpected result: %v %v", m, err)
	}
}
