package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity/cache"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/viant/afs"

	"github.com/workgraph/mcp-office/auth"
)

// DefaultBaseURL is the Microsoft Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// TokenSource yields a bearer token for one account. Manager implements it;
// tests substitute a fake.
type TokenSource interface {
	AccessToken(ctx context.Context, account Account, scopes []string, prompt func(string)) (string, error)
}

// Manager provides Microsoft Graph clients and credentials per account alias.
// Credentials come from the device-code flow; authentication records persist
// through afs under recordBase so restarts stay silent.
type Manager struct {
	clientID   string
	recordBase string
	baseURL    string
	auth       *auth.Service
	fs         afs.Service
	// pending holds device-code prompts keyed by account alias.
	pendingMu sync.Mutex
	pending   map[string]*pendingAuth
	// clients caches GraphServiceClient instances per ns+alias+tenant+scopes.
	mu      sync.RWMutex
	clients map[string]*msgraphsdk.GraphServiceClient
	// creds caches device code credentials per ns+alias until process restart.
	creds map[string]*azidentity.DeviceCodeCredential
}

type pendingAuth struct{ message string }

func NewManager(clientID, recordBase string) *Manager {
	return &Manager{
		clientID:   clientID,
		recordBase: recordBase,
		baseURL:    DefaultBaseURL,
		auth:       auth.New(),
		fs:         afs.New(),
		pending:    map[string]*pendingAuth{},
		clients:    map[string]*msgraphsdk.GraphServiceClient{},
		creds:      map[string]*azidentity.DeviceCodeCredential{},
	}
}

// BaseURL returns the Graph endpoint used by REST-level services.
func (m *Manager) BaseURL() string { return m.baseURL }

// SetBaseURL overrides the Graph endpoint (tests, sovereign clouds).
func (m *Manager) SetBaseURL(u string) {
	if u != "" {
		m.baseURL = strings.TrimRight(u, "/")
	}
}

func (m *Manager) namespace(ctx context.Context) string {
	ns, _ := m.auth.Namespace(ctx)
	if ns == "" {
		ns = "default"
	}
	return ns
}

func (m *Manager) recordURL(ns, alias string) string {
	base := expandPath(m.recordBase)
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + fmt.Sprintf("%s_%s_auth_record.json", safePart(ns), safePart(alias))
}

func safePart(s string) string {
	s = strings.TrimSpace(os.ExpandEnv(s))
	repl := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "|", "_", " ", "_", "@", "_")
	return repl.Replace(s)
}

func expandPath(p string) string {
	if p == "" {
		return p
	}
	p = os.ExpandEnv(p)
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			if p == "~" {
				p = home
			} else if strings.HasPrefix(p, "~/") {
				p = filepath.Join(home, p[2:])
			}
		}
	}
	return p
}

func (m *Manager) loadRecord(ctx context.Context, ns, alias string) (azidentity.AuthenticationRecord, bool) {
	var rec azidentity.AuthenticationRecord
	url := m.recordURL(ns, alias)
	if url == "" {
		return rec, false
	}
	rc, err := m.fs.OpenURL(ctx, url)
	if err != nil || rc == nil {
		return rec, false
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if len(data) == 0 {
		return rec, false
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, false
	}
	return rec, true
}

func (m *Manager) saveRecord(ctx context.Context, ns, alias string, rec azidentity.AuthenticationRecord) {
	url := m.recordURL(ns, alias)
	if url == "" {
		return
	}
	if data, err := json.Marshal(rec); err == nil {
		_ = m.fs.Upload(ctx, url, 0o600, bytes.NewReader(data))
	}
}

// NeedsInteractive checks quickly (non-interactive) whether a device flow is
// required for the account.
func (m *Manager) NeedsInteractive(ctx context.Context, alias, tenantID string, scopes []string) bool {
	ns := m.namespace(ctx)
	rec, haveRec := m.loadRecord(ctx, ns, alias)
	aCache, err := cache.New(&cache.Options{Name: "mcp-office-" + safePart(ns) + "-" + safePart(alias)})
	if err != nil {
		return true
	}
	opts := &azidentity.DeviceCodeCredentialOptions{
		TenantID:   tenantID,
		ClientID:   m.clientID,
		Cache:      aCache,
		UserPrompt: func(context.Context, azidentity.DeviceCodeMessage) error { return nil },
	}
	if haveRec {
		opts.AuthenticationRecord = rec
	}
	cred, err := azidentity.NewDeviceCodeCredential(opts)
	if err != nil {
		return true
	}
	ctx2, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	_, err = cred.GetToken(ctx2, policy.TokenRequestOptions{Scopes: scopes})
	return err != nil
}

// Client returns a ready-to-use GraphServiceClient with the given scopes.
func (m *Manager) Client(ctx context.Context, account Account, scopes []string, prompt func(string)) (*msgraphsdk.GraphServiceClient, error) {
	ns := m.namespace(ctx)
	key := m.clientKey(ns, account.Alias, account.TenantID, scopes)
	m.mu.RLock()
	if cli, ok := m.clients[key]; ok {
		m.mu.RUnlock()
		return cli, nil
	}
	m.mu.RUnlock()

	cred, err := m.Credential(ctx, account.Alias, account.TenantID, scopes, prompt)
	if err != nil {
		return nil, err
	}
	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, scopes)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	if existing, ok := m.clients[key]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.clients[key] = client
	m.mu.Unlock()
	return client, nil
}

// AccessToken implements TokenSource over the cached device-code credential.
func (m *Manager) AccessToken(ctx context.Context, account Account, scopes []string, prompt func(string)) (string, error) {
	cred, err := m.Credential(ctx, account.Alias, account.TenantID, scopes, prompt)
	if err != nil {
		return "", err
	}
	tok, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: scopes})
	if err != nil {
		return "", err
	}
	return tok.Token, nil
}

// Credential returns a cached DeviceCodeCredential for alias, acquiring and
// caching it if needed.
func (m *Manager) Credential(ctx context.Context, alias, tenantID string, scopes []string, prompt func(string)) (*azidentity.DeviceCodeCredential, error) {
	ns := m.namespace(ctx)
	key := ns + "|" + alias
	m.mu.RLock()
	if c := m.creds[key]; c != nil {
		m.mu.RUnlock()
		return c, nil
	}
	m.mu.RUnlock()
	cred, _, err := m.acquireCredential(ctx, alias, tenantID, scopes, prompt)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	if existing := m.creds[key]; existing != nil {
		m.mu.Unlock()
		return existing, nil
	}
	m.creds[key] = cred
	m.mu.Unlock()
	return cred, nil
}

// StartDeviceLogin launches device code authentication in the background and
// keeps the prompt message retrievable via DevicePrompt.
func (m *Manager) StartDeviceLogin(ctx context.Context, alias, tenantID string, scopes []string, onComplete func()) {
	m.pendingMu.Lock()
	if _, ok := m.pending[alias]; ok {
		m.pendingMu.Unlock()
		return
	}
	holder := &pendingAuth{}
	m.pending[alias] = holder
	m.pendingMu.Unlock()
	go func() {
		prompt := func(msg string) { holder.message = msg }
		if _, _, err := m.acquireCredential(ctx, alias, tenantID, scopes, prompt); err == nil {
			if onComplete != nil {
				onComplete()
			}
		}
		m.pendingMu.Lock()
		delete(m.pending, alias)
		m.pendingMu.Unlock()
	}()
}

// DevicePrompt returns the last device-code prompt message for alias.
func (m *Manager) DevicePrompt(alias string) string {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	if p, ok := m.pending[alias]; ok {
		return p.message
	}
	return ""
}

// acquireCredential performs the device code flow. An existing auth record
// enables silent login; otherwise the prompt callback surfaces the code.
func (m *Manager) acquireCredential(ctx context.Context, alias, tenantID string, scopes []string, prompt func(string)) (*azidentity.DeviceCodeCredential, azidentity.AuthenticationRecord, error) {
	if m.clientID == "" {
		return nil, azidentity.AuthenticationRecord{}, errors.New("clientID is required")
	}
	ns := m.namespace(ctx)
	rec, haveRec := m.loadRecord(ctx, ns, alias)

	aCache, err := cache.New(&cache.Options{Name: "mcp-office-" + safePart(ns) + "-" + safePart(alias)})
	if err != nil {
		return nil, azidentity.AuthenticationRecord{}, err
	}
	// Always provide a prompt callback so the SDK never prints to stdout.
	userPrompt := func(_ context.Context, msg azidentity.DeviceCodeMessage) error {
		if prompt != nil {
			prompt(msg.Message)
		}
		return nil
	}
	opts := &azidentity.DeviceCodeCredentialOptions{
		TenantID:   tenantID,
		ClientID:   m.clientID,
		Cache:      aCache,
		UserPrompt: userPrompt,
	}
	if haveRec {
		opts.AuthenticationRecord = rec
	}
	cred, err := azidentity.NewDeviceCodeCredential(opts)
	if err != nil {
		return nil, azidentity.AuthenticationRecord{}, err
	}

	needInteractive := !haveRec
	if haveRec {
		tctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		_, preErr := cred.GetToken(tctx, policy.TokenRequestOptions{Scopes: scopes})
		cancel()
		needInteractive = preErr != nil
	}
	if needInteractive {
		rec, err = cred.Authenticate(ctx, &policy.TokenRequestOptions{Scopes: scopes})
		if err != nil {
			return nil, azidentity.AuthenticationRecord{}, err
		}
		m.saveRecord(ctx, ns, alias, rec)
	}
	return cred, rec, nil
}

// clientKey builds a stable cache key from namespace, alias, tenant, and
// normalized scopes.
func (m *Manager) clientKey(ns, alias, tenantID string, scopes []string) string {
	if len(scopes) > 0 {
		norm := make([]string, 0, len(scopes))
		for _, s := range scopes {
			if s == "" {
				continue
			}
			norm = append(norm, strings.ToLower(s))
		}
		sort.Strings(norm)
		scopes = norm
	}
	if ns == "" {
		ns = "default"
	}
	return ns + "|" + alias + "|" + tenantID + "|" + strings.Join(scopes, ",")
}

// DefaultScopes is the delegated permission set the gateway requests.
func DefaultScopes() []string {
	return []string{
		"https://graph.microsoft.com/.default",
	}
}
