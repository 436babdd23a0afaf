// Package api is the local REST surface over the intent router. Controllers
// stay thin: decode the request, route the intent, encode the result.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/workgraph/mcp-office/auth"
	"github.com/workgraph/mcp-office/office/intent"
	"github.com/workgraph/mcp-office/office/modules"
	"github.com/workgraph/mcp-office/office/registry"
)

type Server struct {
	router   *intent.Router
	registry *registry.Registry
	auth     *auth.Service
	log      *slog.Logger
}

func NewServer(router *intent.Router, reg *registry.Registry, authSvc *auth.Service, log *slog.Logger) *Server {
	if authSvc == nil {
		authSvc = auth.New()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{router: router, registry: reg, auth: authSvc, log: log}
}

// Handler returns the API mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/mail", s.method(http.MethodGet, s.listMail))
	mux.HandleFunc("/api/mail/send", s.method(http.MethodPost, s.sendMail))
	mux.HandleFunc("/api/calendar/events", s.calendarEvents)
	mux.HandleFunc("/api/files", s.method(http.MethodGet, s.listFiles))
	mux.HandleFunc("/api/files/download", s.method(http.MethodGet, s.downloadFile))
	mux.HandleFunc("/api/profile", s.method(http.MethodGet, s.getProfile))
	mux.HandleFunc("/api/capabilities", s.method(http.MethodGet, s.capabilities))
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	return mux
}

func (s *Server) method(verb string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != verb {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

// userID derives the requester identity from a bearer token, when present.
func (s *Server) userID(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	token := strings.TrimSpace(header[len("bearer "):])
	if ns, ok := s.auth.FromToken(token); ok {
		return ns
	}
	return ""
}

func (s *Server) route(w http.ResponseWriter, r *http.Request, intentName string, entities map[string]any) {
	inv := &intent.Invocation{
		Intent:    intentName,
		Entities:  entities,
		Context:   map[string]any{"accountAlias": r.URL.Query().Get("account")},
		UserID:    s.userID(r),
		SessionID: r.Header.Get("X-Session-Id"),
	}
	result, err := s.router.RouteIntent(r.Context(), inv)
	if err != nil {
		s.writeError(w, intentName, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeError(w http.ResponseWriter, intentName string, err error) {
	status := http.StatusBadGateway
	switch intent.CategoryOf(err) {
	case intent.CategoryNotFound:
		status = http.StatusNotFound
	case intent.CategoryInvalidModule:
		status = http.StatusInternalServerError
	}
	s.log.Error("api request failed", "intent", intentName, "error", err)
	s.writeJSON(w, status, map[string]any{"error": map[string]any{
		"category": intent.CategoryOf(err),
		"message":  err.Error(),
	}})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) listMail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entities := map[string]any{}
	if top := q.Get("top"); top != "" {
		if n, err := strconv.Atoi(top); err == nil {
			entities["top"] = n
		}
	}
	// the tool surface names these sinceISO/untilISO; accept both spellings
	if v := firstQuery(q, "sinceISO", "since"); v != "" {
		entities["sinceISO"] = v
	}
	if v := firstQuery(q, "untilISO", "until"); v != "" {
		entities["untilISO"] = v
	}
	if v := q.Get("filter"); v != "" {
		entities["filter"] = v
	}
	s.route(w, r, modules.IntentListMail, entities)
}

func (s *Server) sendMail(w http.ResponseWriter, r *http.Request) {
	entities, ok := s.decodeBody(w, r)
	if !ok {
		return
	}
	s.route(w, r, modules.IntentSendMail, entities)
}

func (s *Server) calendarEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entities := map[string]any{}
		if v := r.URL.Query().Get("daysAhead"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				entities["daysAhead"] = n
			}
		}
		s.route(w, r, modules.IntentListEvents, entities)
	case http.MethodPost:
		entities, ok := s.decodeBody(w, r)
		if !ok {
			return
		}
		s.route(w, r, modules.IntentCreateEvent, entities)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	entities := map[string]any{}
	if v := r.URL.Query().Get("folderId"); v != "" {
		entities["folderId"] = v
	}
	if v := r.URL.Query().Get("top"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			entities["top"] = n
		}
	}
	s.route(w, r, modules.IntentListFiles, entities)
}

func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request) {
	itemID := r.URL.Query().Get("itemId")
	if itemID == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"message": "itemId is required"}})
		return
	}
	s.route(w, r, modules.IntentDownloadFile, map[string]any{"itemId": itemID})
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	s.route(w, r, modules.IntentGetProfile, map[string]any{})
}

func (s *Server) capabilities(w http.ResponseWriter, _ *http.Request) {
	type moduleInfo struct {
		ID           string   `json:"id"`
		Name         string   `json:"name"`
		Capabilities []string `json:"capabilities"`
		Priority     int      `json:"priority,omitempty"`
	}
	mods := s.registry.ListAll()
	out := struct {
		Capabilities []string     `json:"capabilities"`
		Modules      []moduleInfo `json:"modules"`
	}{Capabilities: s.registry.ListCapabilities()}
	for _, m := range mods {
		out.Modules = append(out.Modules, moduleInfo{ID: m.ID, Name: m.Name, Capabilities: m.Capabilities, Priority: m.Priority})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func firstQuery(q url.Values, names ...string) string {
	for _, name := range names {
		if v := q.Get(name); v != "" {
			return v
		}
	}
	return ""
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	entities := map[string]any{}
	if err := json.NewDecoder(r.Body).Decode(&entities); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"message": "invalid JSON body"}})
		return nil, false
	}
	return entities, true
}
