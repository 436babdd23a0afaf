package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	oa "github.com/workgraph/mcp-office/auth"
	"github.com/workgraph/mcp-office/office/graph"
	"github.com/workgraph/mcp-office/office/intent"
	"github.com/workgraph/mcp-office/office/modules"
	"github.com/workgraph/mcp-office/office/registry"

	"github.com/viant/scy"
	"github.com/viant/scy/cred"
)

// Service wires the graph manager, the module registry and the intent router
// behind the MCP tool surface.
type Service struct {
	cfg      *Config
	graphMgr *graph.Manager
	registry *registry.Registry
	router   *intent.Router
	pending  *PendingAuths
	auth     *oa.Service
	azure    *cred.Azure
	log      *slog.Logger

	useText  bool
	baseURL  string
	tenantID string
	clientID string
}

// NewService builds the full routing stack. Router options carry the
// telemetry and event collaborators chosen by the caller.
func NewService(cfg *Config, log *slog.Logger, routerOpts ...intent.Option) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if log == nil {
		log = slog.Default()
	}
	// Optionally resolve the Azure OAuth2 client from a scy EncodedResource.
	var az *cred.Azure
	if cfg.AzureRef != "" {
		res := cfg.AzureRef.Decode(context.Background(), cred.Azure{})
		if sec, err := scy.New().Load(context.Background(), res); err == nil {
			if v, ok := sec.Target.(*cred.Azure); ok {
				az = v
			}
		}
	}
	clientID := cfg.ClientID
	if az != nil && az.ClientID != "" {
		clientID = az.ClientID
	}
	tenantID := cfg.TenantID
	if (tenantID == "" || tenantID == "organizations") && az != nil && az.TenantID != "" {
		tenantID = az.TenantID
	}

	svc := &Service{
		cfg:      cfg,
		graphMgr: graph.NewManager(clientID, cfg.SecretsBase),
		registry: registry.New(),
		pending:  NewPendingAuths(),
		auth:     oa.New(),
		azure:    az,
		log:      log,
		useText:  !cfg.UseData,
		baseURL:  cfg.CallbackBaseURL,
		tenantID: tenantID,
		clientID: clientID,
	}
	if err := modules.RegisterAll(svc.registry, svc.graphMgr, &modules.Options{DefaultTenant: tenantID}); err != nil {
		return nil, fmt.Errorf("register office modules: %w", err)
	}
	if err := svc.registry.InitAll(context.Background()); err != nil {
		return nil, fmt.Errorf("init office modules: %w", err)
	}
	svc.router = intent.New(svc.registry, routerOpts...)
	return svc, nil
}

func (s *Service) GraphManager() *graph.Manager { return s.graphMgr }
func (s *Service) Registry() *registry.Registry { return s.registry }
func (s *Service) Router() *intent.Router       { return s.router }
func (s *Service) Pending() *PendingAuths       { return s.pending }
func (s *Service) Auth() *oa.Service            { return s.auth }
func (s *Service) UseTextField() bool           { return s.useText }
func (s *Service) BaseURL() string              { return s.baseURL }
func (s *Service) TenantID() string             { return s.tenantID }
func (s *Service) ClientID() string             { return s.clientID }

// RegisterHTTP mounts the device-login helper endpoints.
func (s *Service) RegisterHTTP(mux *http.ServeMux) {
	mux.HandleFunc("/office/auth/device/", s.DeviceHandler())
	mux.HandleFunc("/office/auth/pending", s.PendingListHandler())
	mux.HandleFunc("/office/auth/pending/clear", s.PendingClearHandler())
}

// DeviceHandler serves the device login page for a pending auth UUID.
func (s *Service) DeviceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// URL: /office/auth/device/{uuid}
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 4 {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}
		uuid := parts[3]
		pend, ok := s.pending.Get(uuid)
		if !ok {
			http.Error(w, "no pending auth", http.StatusNotFound)
			return
		}
		msg := s.graphMgr.DevicePrompt(pend.Alias)
		if msg == "" {
			deadline := time.Now().Add(8 * time.Second)
			for msg == "" && time.Now().Before(deadline) {
				time.Sleep(200 * time.Millisecond)
				msg = s.graphMgr.DevicePrompt(pend.Alias)
			}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if msg == "" {
			_, _ = fmt.Fprint(w, buildWaitingForDeviceHTML())
			return
		}
		_, _ = fmt.Fprint(w, buildDeviceLoginHTML(msg))
	}
}

// buildDeviceLoginHTML converts the Azure device prompt into a clickable page
// with a copyable code.
func buildDeviceLoginHTML(msg string) string {
	loginURL := extractURL(msg)
	code := extractCode(msg)
	escURL := html.EscapeString(loginURL)
	escCode := html.EscapeString(code)
	if escCode == "" {
		escMsg := html.EscapeString(msg)
		return fmt.Sprintf(`<html><body>
<h3>Sign in to Microsoft 365</h3>
<p>Open <a href="%[1]s" target="_blank" rel="noopener noreferrer">%[1]s</a> and follow the instructions.</p>
<pre>%[2]s</pre>
<p>Keep this tab open; return to your assistant after completing sign-in.</p>
</body></html>`, escURL, escMsg)
	}
	return fmt.Sprintf(`<html><body style="font-family: -apple-system, Segoe UI, Roboto, sans-serif;">
<h3>Sign in to Microsoft 365</h3>
<p>Click to open: <a href="%[1]s" target="_blank" rel="noopener noreferrer">%[1]s</a></p>
<p>Then enter this code:</p>
<p style="font-size: 1.4em; font-weight: 600;"><code>%[2]s</code> <button onclick="navigator.clipboard.writeText('%[3]s')">Copy</button></p>
<p>Keep this tab open; return to your assistant after completing sign-in.</p>
</body></html>`, escURL, escCode, escCode)
}

func buildWaitingForDeviceHTML() string {
	loginURL := html.EscapeString("https://microsoft.com/devicelogin")
	return fmt.Sprintf(`<!doctype html>
<html><head>
<meta http-equiv="refresh" content="2">
<meta charset="utf-8">
<title>Sign in to Microsoft 365</title>
<style>body{font-family:-apple-system,Segoe UI,Roboto,sans-serif;margin:24px}</style>
</head><body>
<h3>Sign in to Microsoft 365</h3>
<p>Preparing device login… this page refreshes automatically.</p>
<p>If it takes too long, you can open <a href="%[1]s" target="_blank" rel="noopener noreferrer">%[1]s</a> and follow the instructions.</p>
<p>Keep this tab open; return to your assistant after completing sign-in.</p>
</body></html>`, loginURL)
}

// PendingListHandler returns JSON of pending auths for a namespace.
func (s *Service) PendingListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ns := r.URL.Query().Get("namespace")
		if ns == "" {
			if v, err := s.auth.Namespace(r.Context()); err == nil {
				ns = v
			}
		}
		if ns == "" {
			http.Error(w, "namespace required", http.StatusBadRequest)
			return
		}
		list := s.pending.ListNamespace(ns)
		type row struct{ UUID, Alias, TenantID, Namespace string }
		out := make([]row, 0, len(list))
		for _, v := range list {
			out = append(out, row{UUID: v.UUID, Alias: v.Alias, TenantID: v.TenantID, Namespace: v.Namespace})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}

// PendingClearHandler clears all pending auths for a namespace.
func (s *Service) PendingClearHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ns := r.URL.Query().Get("namespace")
		if ns == "" {
			if v, err := s.auth.Namespace(r.Context()); err == nil {
				ns = v
			}
		}
		if ns == "" {
			http.Error(w, "namespace required", http.StatusBadRequest)
			return
		}
		cleared := s.pending.ClearNamespace(ns)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"cleared": len(cleared), "uuids": cleared})
	}
}

// Helpers to extract the device login URL/code from the Azure prompt message.
func extractURL(msg string) string {
	if m := regexp.MustCompile(`https?://[^\s]+`).FindString(msg); m != "" {
		return m
	}
	return "https://microsoft.com/devicelogin"
}

func extractCode(msg string) string {
	if m := regexp.MustCompile(`(?i)code\s+([A-Z0-9-]+)`).FindStringSubmatch(msg); len(m) == 2 {
		return m[1]
	}
	return ""
}
