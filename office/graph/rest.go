package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
)

// rest issues Graph REST calls with a bearer token from a TokenSource.
// Services use it for list/read paths to avoid SDK subpackage churn; writes
// that benefit from typed models go through Manager.Client instead.
type rest struct {
	tokens TokenSource
	base   string
	client *http.Client
}

func newRest(m *Manager) *rest {
	return &rest{tokens: m, base: m.BaseURL(), client: http.DefaultClient}
}

func (r *rest) url(path string, query neturl.Values) string {
	u := r.base + path
	if enc := query.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

func (r *rest) getJSON(ctx context.Context, account Account, scopes []string, prompt func(string), path string, query neturl.Values, out any) error {
	tok, err := r.tokens.AccessToken(ctx, account, scopes, prompt)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url(path, query), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("GET %s failed: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (r *rest) postJSON(ctx context.Context, account Account, scopes []string, prompt func(string), path string, payload any) error {
	tok, err := r.tokens.AccessToken(ctx, account, scopes, prompt)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url(path, neturl.Values{}), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("POST %s failed: %s %s", path, resp.Status, string(detail))
	}
	return nil
}

func ptr[T any](v T) *T { return &v }

func ptrVal[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
