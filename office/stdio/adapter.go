// Package stdio frames line-delimited JSON-RPC 2.0 between an LLM host
// process and the local REST API. Protocol traffic owns stdout; every
// diagnostic line goes to a separate slog channel so the RPC stream stays
// clean.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/viant/jsonrpc"
)

const (
	// ProtocolVersion is offered when the host does not request one.
	ProtocolVersion = "2024-11-05"

	// codeServerError covers handler and upstream HTTP failures.
	codeServerError = -32000

	rpcVersion = "2.0"

	maxLineBytes = 1 << 20
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpc.Error  `json:"error,omitempty"`
}

// route maps a passthrough RPC method onto the local REST API.
type route struct {
	Verb        string
	Path        string
	Description string
}

var passthrough = map[string]route{
	"office.listMail":     {Verb: http.MethodGet, Path: "/api/mail", Description: "List recent mailbox messages"},
	"office.sendMail":     {Verb: http.MethodPost, Path: "/api/mail/send", Description: "Send an email"},
	"office.listEvents":   {Verb: http.MethodGet, Path: "/api/calendar/events", Description: "List upcoming calendar events"},
	"office.createEvent":  {Verb: http.MethodPost, Path: "/api/calendar/events", Description: "Create a calendar event"},
	"office.listFiles":    {Verb: http.MethodGet, Path: "/api/files", Description: "List OneDrive files"},
	"office.downloadFile": {Verb: http.MethodGet, Path: "/api/files/download", Description: "Resolve a file download link"},
	"office.getProfile":   {Verb: http.MethodGet, Path: "/api/profile", Description: "Get the signed-in user profile"},
	"office.capabilities": {Verb: http.MethodGet, Path: "/api/capabilities", Description: "List registered capabilities"},
}

// ServerInfo identifies the adapter in the initialize handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Adapter struct {
	apiBase string
	client  *http.Client
	info    ServerInfo

	out     io.Writer
	writeMu sync.Mutex
	diag    *slog.Logger

	wg       sync.WaitGroup
	quit     chan struct{}
	quitOnce sync.Once
}

type Option func(*Adapter)

func WithOutput(w io.Writer) Option            { return func(a *Adapter) { a.out = w } }
func WithDiagnostics(log *slog.Logger) Option  { return func(a *Adapter) { a.diag = log } }
func WithHTTPClient(client *http.Client) Option { return func(a *Adapter) { a.client = client } }
func WithServerInfo(info ServerInfo) Option    { return func(a *Adapter) { a.info = info } }

// New builds an adapter targeting the REST API at apiBase. Output defaults to
// stdout and diagnostics to stderr.
func New(apiBase string, opts ...Option) *Adapter {
	a := &Adapter{
		apiBase: strings.TrimRight(apiBase, "/"),
		client:  http.DefaultClient,
		info:    ServerInfo{Name: "mcp-office", Version: "dev"},
		out:     os.Stdout,
		diag:    slog.New(slog.NewTextHandler(os.Stderr, nil)),
		quit:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Serve reads one JSON object per line until stdin closes, the context ends,
// or a shutdown request arrives. Each request is answered exactly once;
// responses may interleave out of request order.
func (a *Adapter) Serve(ctx context.Context, in io.Reader) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		reader := bufio.NewReaderSize(in, 64*1024)
		for {
			line, tooLong, err := readLine(reader)
			if tooLong {
				// an oversized line is malformed input, never a reason to stop
				a.diag.Warn("dropping oversized protocol line", "limit", maxLineBytes)
			} else if len(line) > 0 {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				case <-a.quit:
					return
				}
			}
			if err != nil {
				if err == io.EOF {
					scanErr <- nil
				} else {
					scanErr <- err
				}
				close(lines)
				return
			}
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				a.wg.Wait()
				a.diag.Info("stdin closed, terminating")
				return <-scanErr
			}
			a.handleLine(ctx, line)
		case <-ctx.Done():
			a.wg.Wait()
			a.diag.Info("termination signal received")
			return nil
		case <-a.quit:
			a.wg.Wait()
			a.diag.Info("shutdown requested by host")
			return nil
		}
	}
}

// readLine returns the next input line. A line exceeding maxLineBytes is
// consumed through its trailing newline and reported as tooLong with no
// content, so one runaway line cannot stall or end the framing loop.
func readLine(r *bufio.Reader) (line []byte, tooLong bool, err error) {
	for {
		chunk, rerr := r.ReadSlice('\n')
		if !tooLong {
			line = append(line, chunk...)
			if len(line) > maxLineBytes {
				tooLong = true
				line = nil
			}
		}
		switch rerr {
		case bufio.ErrBufferFull:
			continue
		case nil:
			return line, tooLong, nil
		case io.EOF:
			if len(line) == 0 && !tooLong {
				return nil, false, io.EOF
			}
			return line, tooLong, io.EOF
		default:
			return line, tooLong, rerr
		}
	}
}

func (a *Adapter) handleLine(ctx context.Context, line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	req := &request{}
	if err := json.Unmarshal(line, req); err != nil || req.Method == "" {
		a.diag.Warn("dropping malformed protocol line", "error", err, "bytes", len(line))
		return
	}
	if len(req.ID) == 0 {
		a.diag.Info("notification received", "method", req.Method)
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				a.diag.Error("handler panic", "method", req.Method, "panic", r)
				a.writeError(req.ID, codeServerError, fmt.Sprintf("internal failure in %s", req.Method))
			}
		}()
		a.dispatch(ctx, req)
	}()
}

func (a *Adapter) dispatch(ctx context.Context, req *request) {
	switch req.Method {
	case "initialize":
		a.initialize(req)
	case "getManifest":
		a.writeResult(req.ID, a.manifest())
	case "shutdown":
		a.writeResult(req.ID, map[string]any{"ok": true})
		a.quitOnce.Do(func() { close(a.quit) })
	case "tools/list":
		a.writeResult(req.ID, map[string]any{"tools": toolDescriptors()})
	case "resources/list":
		a.writeResult(req.ID, map[string]any{"resources": []any{}})
	case "prompts/list":
		a.writeResult(req.ID, map[string]any{"prompts": []any{}})
	case "tools/invoke":
		a.invokeTool(ctx, req)
	default:
		if r, ok := passthrough[req.Method]; ok {
			a.forward(ctx, req.ID, r, req.Params)
			return
		}
		a.writeError(req.ID, jsonrpc.MethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (a *Adapter) initialize(req *request) {
	params := struct {
		ProtocolVersion string `json:"protocolVersion"`
	}{}
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params, &params)
	}
	if params.ProtocolVersion == "" {
		params.ProtocolVersion = ProtocolVersion
	}
	a.writeResult(req.ID, map[string]any{
		"protocolVersion": params.ProtocolVersion,
		"capabilities": map[string]any{
			"toolInvocation": true,
			"manifest":       true,
		},
		"serverInfo": a.info,
	})
}

func (a *Adapter) manifest() map[string]any {
	return map[string]any{
		"name":            a.info.Name,
		"version":         a.info.Version,
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"toolInvocation": true,
			"manifest":       true,
		},
		"tools": toolDescriptors(),
	}
}

func toolDescriptors() []map[string]any {
	names := make([]string, 0, len(passthrough))
	for name := range passthrough {
		names = append(names, name)
	}
	// stable listing for hosts that diff manifests
	sort.Strings(names)
	tools := make([]map[string]any, 0, len(names))
	for _, name := range names {
		tools = append(tools, map[string]any{
			"name":        name,
			"description": passthrough[name].Description,
		})
	}
	return tools
}

func (a *Adapter) invokeTool(ctx context.Context, req *request) {
	params := struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}{}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			a.writeError(req.ID, jsonrpc.InvalidParams, "params must be an object")
			return
		}
	}
	if params.Name == "" {
		a.writeError(req.ID, jsonrpc.InvalidParams, "tool name is required")
		return
	}
	r, ok := passthrough[params.Name]
	if !ok {
		a.writeError(req.ID, jsonrpc.MethodNotFound, fmt.Sprintf("tool %q not found", params.Name))
		return
	}
	a.forward(ctx, req.ID, r, params.Arguments)
}

// forward translates one RPC call into an HTTP call: GET flattens params into
// the query string, POST sends them as the JSON body.
func (a *Adapter) forward(ctx context.Context, id json.RawMessage, r route, params json.RawMessage) {
	target := a.apiBase + r.Path
	var body io.Reader
	if r.Verb == http.MethodGet {
		query, err := queryFromParams(params)
		if err != nil {
			a.writeError(id, jsonrpc.InvalidParams, err.Error())
			return
		}
		if query != "" {
			target += "?" + query
		}
	} else {
		if len(params) == 0 {
			params = json.RawMessage(`{}`)
		}
		body = bytes.NewReader(params)
	}
	httpReq, err := http.NewRequestWithContext(ctx, r.Verb, target, body)
	if err != nil {
		a.writeError(id, codeServerError, err.Error())
		return
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		a.diag.Error("api call failed", "verb", r.Verb, "path", r.Path, "error", err)
		a.writeError(id, codeServerError, fmt.Sprintf("api call failed: %v", err))
		return
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		a.writeError(id, codeServerError, fmt.Sprintf("read api response: %v", err))
		return
	}
	if resp.StatusCode >= 300 {
		a.diag.Error("api returned error status", "verb", r.Verb, "path", r.Path, "status", resp.StatusCode)
		a.writeError(id, codeServerError, apiErrorMessage(resp.StatusCode, payload))
		return
	}
	if !json.Valid(payload) {
		a.writeError(id, codeServerError, "api returned invalid JSON")
		return
	}
	a.writeRawResult(id, payload)
}

func queryFromParams(params json.RawMessage) (string, error) {
	if len(params) == 0 {
		return "", nil
	}
	values := map[string]any{}
	if err := json.Unmarshal(params, &values); err != nil {
		return "", fmt.Errorf("params must be an object")
	}
	query := url.Values{}
	for key, value := range values {
		switch v := value.(type) {
		case nil:
		case string:
			query.Set(key, v)
		case bool:
			query.Set(key, fmt.Sprintf("%t", v))
		case float64:
			query.Set(key, strconv.FormatFloat(v, 'f', -1, 64))
		default:
			return "", fmt.Errorf("param %q must be a scalar", key)
		}
	}
	return query.Encode(), nil
}

// apiErrorMessage prefers the API's structured error message over a bare
// status line.
func apiErrorMessage(status int, payload []byte) string {
	wrapper := struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}{}
	if err := json.Unmarshal(payload, &wrapper); err == nil && wrapper.Error.Message != "" {
		return wrapper.Error.Message
	}
	return fmt.Sprintf("api returned status %d", status)
}

func (a *Adapter) writeResult(id json.RawMessage, result any) {
	payload, err := json.Marshal(result)
	if err != nil {
		a.writeError(id, codeServerError, fmt.Sprintf("encode result: %v", err))
		return
	}
	a.writeRawResult(id, payload)
}

func (a *Adapter) writeRawResult(id json.RawMessage, result json.RawMessage) {
	a.writeLine(&response{JSONRPC: rpcVersion, ID: id, Result: result})
}

func (a *Adapter) writeError(id json.RawMessage, code int, message string) {
	a.writeLine(&response{JSONRPC: rpcVersion, ID: id, Error: jsonrpc.NewError(code, message, nil)})
}

func (a *Adapter) writeLine(resp *response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		a.diag.Error("encode response", "error", err)
		return
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	_, _ = a.out.Write(append(payload, '\n'))
}

// LogObject guards the diagnostic path: anything shaped like a protocol
// message is re-routed to the protocol channel instead of being logged.
func (a *Adapter) LogObject(obj map[string]any) {
	if looksLikeProtocol(obj) {
		payload, err := json.Marshal(obj)
		if err == nil {
			a.writeMu.Lock()
			_, _ = a.out.Write(append(payload, '\n'))
			a.writeMu.Unlock()
			return
		}
	}
	a.diag.Info("object", "payload", obj)
}

func looksLikeProtocol(obj map[string]any) bool {
	if _, ok := obj["jsonrpc"]; !ok {
		return false
	}
	for _, key := range []string{"method", "result", "error"} {
		if _, ok := obj[key]; ok {
			return true
		}
	}
	return false
}
