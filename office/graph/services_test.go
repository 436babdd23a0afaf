package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticTokens struct{ token string }

func (s *staticTokens) AccessToken(context.Context, Account, []string, func(string)) (string, error) {
	return s.token, nil
}

// graphStub serves canned Graph API payloads and records the last request.
func graphStub(t *testing.T, payloads map[string]any) (*httptest.Server, *http.Request) {
	t.Helper()
	var last http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		last = *r
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "missing bearer", http.StatusUnauthorized)
			return
		}
		payload, ok := payloads[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(server.Close)
	return server, &last
}

func testRest(base string) *rest {
	return &rest{tokens: &staticTokens{token: "tok"}, base: base, client: http.DefaultClient}
}

func TestMailListMapsFieldsAndQuery(t *testing.T) {
	server, last := graphStub(t, map[string]any{
		"/me/messages": map[string]any{
			"value": []map[string]any{
				{
					"id":               "m1",
					"subject":          "hello",
					"receivedDateTime": "2026-08-01T10:00:00Z",
					"bodyPreview":      "hi there",
					"from":             map[string]any{"emailAddress": map[string]any{"address": "bob@example.com"}},
				},
			},
		},
	})
	svc := &MailService{rest: testRest(server.URL)}
	out, err := svc.List(context.Background(), &ListMailInput{
		Account:  Account{Alias: "acc"},
		Top:      5,
		SinceISO: "2026-08-01T00:00:00Z",
	}, DefaultScopes(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(out.Messages))
	}
	msg := out.Messages[0]
	if msg.ID != "m1" || msg.Subject != "hello" || msg.From != "bob@example.com" {
		t.Fatalf("unexpected mapping: %+v", msg)
	}
	q := last.URL.Query()
	if q.Get("$top") != "5" {
		t.Fatalf("expected $top=5, got %q", q.Get("$top"))
	}
	if q.Get("$filter") != "receivedDateTime ge 2026-08-01T00:00:00Z" {
		t.Fatalf("unexpected $filter: %q", q.Get("$filter"))
	}
	if q.Get("$orderby") != "receivedDateTime DESC" {
		t.Fatalf("unexpected $orderby: %q", q.Get("$orderby"))
	}
}

func TestMailListExplicitFilterOverridesDerived(t *testing.T) {
	server, last := graphStub(t, map[string]any{
		"/me/messages": map[string]any{"value": []map[string]any{}},
	})
	svc := &MailService{rest: testRest(server.URL)}
	_, err := svc.List(context.Background(), &ListMailInput{
		Account:  Account{Alias: "acc"},
		SinceISO: "2026-08-01T00:00:00Z",
		Filter:   "importance eq 'high'",
	}, DefaultScopes(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := last.URL.Query().Get("$filter"); got != "importance eq 'high'" {
		t.Fatalf("explicit filter must win, got %q", got)
	}
}

func TestMailSendRequiresRecipient(t *testing.T) {
	svc := &MailService{rest: testRest("http://unused")}
	err := svc.Send(context.Background(), &SendMailInput{Account: Account{Alias: "acc"}, Subject: "x"}, DefaultScopes(), nil)
	if err == nil {
		t.Fatalf("expected recipient validation error")
	}
}

func TestMailSendPostsPayload(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/me/sendMail" {
			t.Errorf("unexpected call: %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()
	svc := &MailService{rest: testRest(server.URL)}
	err := svc.Send(context.Background(), &SendMailInput{
		Account:  Account{Alias: "acc"},
		To:       []string{"bob@example.com"},
		Subject:  "hello",
		BodyText: "hi",
	}, DefaultScopes(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg := body["message"].(map[string]any)
	if msg["subject"] != "hello" {
		t.Fatalf("unexpected subject: %v", msg["subject"])
	}
	if body["saveToSentItems"] != true {
		t.Fatalf("expected saveToSentItems")
	}
}

func TestDriveListAndDownload(t *testing.T) {
	server, _ := graphStub(t, map[string]any{
		"/me/drive/root/children": map[string]any{
			"value": []map[string]any{
				{"id": "f1", "name": "report.docx", "size": 1024, "lastModifiedDateTime": "2026-08-02T09:00:00Z"},
				{"id": "d1", "name": "docs", "folder": map[string]any{"childCount": 3}},
			},
		},
		"/me/drive/items/f1": map[string]any{
			"name": "report.docx", "size": 1024,
			"@microsoft.graph.downloadUrl": "https://download.example.com/f1",
		},
	})
	svc := &DriveService{rest: testRest(server.URL)}
	out, err := svc.List(context.Background(), &ListFilesInput{Account: Account{Alias: "acc"}}, DefaultScopes(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Items) != 2 || out.Items[0].ID != "f1" || !out.Items[1].IsFolder {
		t.Fatalf("unexpected items: %+v", out.Items)
	}
	dl, err := svc.Download(context.Background(), &DownloadFileInput{Account: Account{Alias: "acc"}, ItemID: "f1"}, DefaultScopes(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dl.DownloadURL != "https://download.example.com/f1" || dl.Name != "report.docx" {
		t.Fatalf("unexpected download output: %+v", dl)
	}
}

func TestProfileGet(t *testing.T) {
	server, _ := graphStub(t, map[string]any{
		"/me": map[string]any{"id": "u1", "displayName": "Test User", "mail": "user@example.com"},
	})
	svc := &ProfileService{rest: testRest(server.URL)}
	profile, err := svc.Get(context.Background(), &GetProfileInput{Account: Account{Alias: "acc"}}, DefaultScopes(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.DisplayName != "Test User" || profile.Mail != "user@example.com" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestRestErrorsOnNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "throttled", http.StatusTooManyRequests)
	}))
	defer server.Close()
	svc := &MailService{rest: testRest(server.URL)}
	if _, err := svc.List(context.Background(), &ListMailInput{Account: Account{Alias: "acc"}}, DefaultScopes(), nil); err == nil {
		t.Fatalf("expected error on 429")
	}
}
