package intent

import (
	"reflect"
	"testing"
)

func TestRedactSensitiveDataReplacesDenylistedKeys(t *testing.T) {
	in := map[string]any{
		"password": "secret",
		"nested": map[string]any{
			"token": "abc",
			"ok":    "keep",
		},
	}
	got, ok := RedactSensitiveData(in).(map[string]any)
	if !ok {
		t.Fatalf("expected map result")
	}
	if got["password"] != Redacted {
		t.Fatalf("password not redacted: %v", got["password"])
	}
	nested := got["nested"].(map[string]any)
	if nested["token"] != Redacted {
		t.Fatalf("nested token not redacted: %v", nested["token"])
	}
	if nested["ok"] != "keep" {
		t.Fatalf("non-sensitive value altered: %v", nested["ok"])
	}
}

func TestRedactSensitiveDataCaseInsensitiveKeys(t *testing.T) {
	in := map[string]any{"AccessToken": "x", "EMAIL": "a@b.c", "RefreshToken": "y"}
	got := RedactSensitiveData(in).(map[string]any)
	for k, v := range got {
		if v != Redacted {
			t.Fatalf("key %q not redacted: %v", k, v)
		}
	}
}

func TestRedactSensitiveDataPlaceholders(t *testing.T) {
	in := map[string]any{
		"contentBytes": []any{"a", "b", "c"},
		"body":         map[string]any{"inner": "x"},
		"token":        42,
	}
	got := RedactSensitiveData(in).(map[string]any)
	if got["contentBytes"] != "[3 items]" {
		t.Fatalf("array placeholder wrong: %v", got["contentBytes"])
	}
	if got["body"] != "{REDACTED}" {
		t.Fatalf("object placeholder wrong: %v", got["body"])
	}
	if got["token"] != Redacted {
		t.Fatalf("scalar placeholder wrong: %v", got["token"])
	}
}

func TestRedactSensitiveDataDoesNotMutateInput(t *testing.T) {
	in := map[string]any{"password": "secret", "deep": map[string]any{"token": "t"}}
	_ = RedactSensitiveData(in)
	if in["password"] != "secret" {
		t.Fatalf("input mutated: %v", in["password"])
	}
	if in["deep"].(map[string]any)["token"] != "t" {
		t.Fatalf("nested input mutated")
	}
}

func TestRedactSensitiveDataIdempotent(t *testing.T) {
	in := map[string]any{"password": "secret", "list": []any{map[string]any{"token": "x"}}}
	once := RedactSensitiveData(in)
	twice := RedactSensitiveData(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("redaction not idempotent: %v vs %v", once, twice)
	}
}

func TestRedactSensitiveDataCircularReference(t *testing.T) {
	in := map[string]any{"name": "root"}
	in["self"] = in
	got := RedactSensitiveData(in).(map[string]any)
	if got["self"] != "[Circular Reference]" {
		t.Fatalf("cycle edge not marked: %v", got["self"])
	}
	if got["name"] != "root" {
		t.Fatalf("unexpected value: %v", got["name"])
	}
}

func TestRedactSensitiveDataSharedBranchIsNotACycle(t *testing.T) {
	shared := map[string]any{"ok": "keep"}
	in := map[string]any{"a": shared, "b": shared}
	got := RedactSensitiveData(in).(map[string]any)
	for _, k := range []string{"a", "b"} {
		branch, ok := got[k].(map[string]any)
		if !ok || branch["ok"] != "keep" {
			t.Fatalf("shared branch %q mangled: %v", k, got[k])
		}
	}
}

func TestRedactSensitiveDataFailsOpen(t *testing.T) {
	// Non-string map keys break the walk; the contract is to return the
	// original data rather than blocking the caller.
	in := map[string]any{"weird": map[int]any{1: "x"}, "password": "secret"}
	got := RedactSensitiveData(in)
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("expected original input on walk failure, got %v", got)
	}
}

func TestRedactSensitiveDataScalarPassThrough(t *testing.T) {
	if got := RedactSensitiveData("hello"); got != "hello" {
		t.Fatalf("scalar altered: %v", got)
	}
	if got := RedactSensitiveData(nil); got != nil {
		t.Fatalf("nil altered: %v", got)
	}
}
