package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	flags "github.com/jessevdk/go-flags"
	"github.com/nats-io/nats.go"
	"github.com/viant/mcp-protocol/authorization"
	oauthmeta "github.com/viant/mcp-protocol/oauth2/meta"
	"github.com/viant/mcp-protocol/schema"
	mcpsrv "github.com/viant/mcp/server"
	serverauth "github.com/viant/mcp/server/auth"
	"github.com/viant/scy"
	"github.com/viant/scy/auth/flow"
	"github.com/viant/scy/cred"
	_ "github.com/viant/scy/kms/blowfish"
	"go.opentelemetry.io/otel"

	"github.com/workgraph/mcp-office/office/api"
	"github.com/workgraph/mcp-office/office/events"
	"github.com/workgraph/mcp-office/office/intent"
	"github.com/workgraph/mcp-office/office/mcp"
	"github.com/workgraph/mcp-office/office/stdio"
	"github.com/workgraph/mcp-office/office/telemetry"
)

// Options defines CLI flags for the Office MCP server.
type Options struct {
	HTTPAddr     string `short:"a" long:"addr" description:"HTTP listen address for the MCP endpoint (empty disables HTTP)"`
	APIAddr      string `long:"api-addr" default:"127.0.0.1:7787" description:"Listen address for the local REST API"`
	Stdio        bool   `long:"stdio" description:"Serve line-delimited JSON-RPC on stdin/stdout instead of HTTP"`
	ClientID     string `long:"client-id" description:"Azure AD application (client) ID"`
	TenantID     string `long:"tenant-id" description:"Tenant ID or 'organizations'"`
	SecretsBase  string `long:"secretsBase" description:"AFS base URL for persisting auth records (e.g., mem://localhost/mcp-office)"`
	AzureRef     string `long:"azure-ref" description:"scy EncodedResource for Azure cred (e.g., gcp://...|blowfish://default)"`
	Oauth2Config string `short:"o" long:"oauth2config" description:"Path to JSON OAuth2 configuration file (scy EncodedResource)"`
	NATSURL      string `long:"nats-url" description:"NATS URL for best-effort intent event publishing"`
	UseData      bool   `long:"use-data" description:"Return tool results in the data field instead of text"`
	UseIdToken   bool   `short:"i" long:"use-id-token" description:"Use ID token (instead of access token) for identity scoping"`
	Version      string `long:"version" default:"0.1.0" hidden:"true"`
}

func main() {
	var opts Options
	if _, err := flags.NewParser(&opts, flags.Default).Parse(); err != nil {
		os.Exit(2)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := mcp.ConfigFromEnv()
	if err != nil {
		log.Error("invalid environment configuration", "error", err)
		os.Exit(2)
	}
	applyFlags(cfg, &opts)
	if cfg.ClientID == "" && cfg.AzureRef == "" {
		log.Error("missing --client-id/OFFICE_CLIENT_ID (or provide --azure-ref / OFFICE_AZURE_REF)")
		os.Exit(2)
	}
	if cfg.CallbackBaseURL == "" {
		cfg.CallbackBaseURL = callbackBaseURL(opts.HTTPAddr)
	}

	routerOpts := []intent.Option{
		intent.WithLogger(telemetry.NewSlogLogger(log)),
		intent.WithMetrics(telemetry.NewOTelMetrics(otel.Meter("github.com/workgraph/mcp-office"))),
	}
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			// event delivery is best-effort; run without it
			log.Warn("nats unavailable, intent events disabled", "url", cfg.NATSURL, "error", err)
		} else {
			defer nc.Close()
			routerOpts = append(routerOpts, intent.WithPublisher(events.NewNATSPublisher(nc, events.DefaultSubject)))
		}
	}

	svc, err := mcp.NewService(cfg, log, routerOpts...)
	if err != nil {
		log.Error("service init failed", "error", err)
		os.Exit(1)
	}

	apiServer := api.NewServer(svc.Router(), svc.Registry(), svc.Auth(), log)

	if opts.Stdio {
		runStdio(log, svc, apiServer, &opts)
		return
	}
	runHTTP(log, svc, apiServer, &opts)
}

func applyFlags(cfg *mcp.Config, opts *Options) {
	if opts.ClientID != "" {
		cfg.ClientID = opts.ClientID
	}
	if opts.TenantID != "" {
		cfg.TenantID = opts.TenantID
	}
	if opts.SecretsBase != "" {
		cfg.SecretsBase = strings.Replace(opts.SecretsBase, "$HOME", os.Getenv("HOME"), 1)
	}
	if opts.AzureRef != "" {
		cfg.AzureRef = scy.EncodedResource(opts.AzureRef)
	}
	if opts.NATSURL != "" {
		cfg.NATSURL = opts.NATSURL
	}
	if opts.UseData {
		cfg.UseData = true
	}
}

func callbackBaseURL(httpAddr string) string {
	if httpAddr == "" {
		return "http://localhost"
	}
	hostport := httpAddr
	if hostport[0] == ':' {
		hostport = "localhost" + hostport
	}
	return "http://" + hostport
}

// runStdio serves the REST API locally and frames JSON-RPC over stdin/stdout.
func runStdio(log *slog.Logger, svc *mcp.Service, apiServer *api.Server, opts *Options) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer.Handler())
	svc.RegisterHTTP(mux)
	httpSrv := &http.Server{Addr: opts.APIAddr, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("api server failed", "error", err)
			stop()
		}
	}()
	defer func() { _ = httpSrv.Close() }()

	adapter := stdio.New("http://"+opts.APIAddr,
		stdio.WithDiagnostics(log),
		stdio.WithServerInfo(stdio.ServerInfo{Name: "mcp-office", Version: opts.Version}),
	)
	if err := adapter.Serve(ctx, os.Stdin); err != nil {
		log.Error("stdio adapter failed", "error", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func runHTTP(log *slog.Logger, svc *mcp.Service, apiServer *api.Server, opts *Options) {
	apiHandler := apiServer.Handler()
	options := []mcpsrv.Option{
		mcpsrv.WithImplementation(schema.Implementation{Name: "mcp-office", Version: opts.Version}),
		mcpsrv.WithNewHandler(mcp.NewHandler(svc)),
		mcpsrv.WithEndpointAddress(opts.HTTPAddr),
		mcpsrv.WithRootRedirect(true),
		mcpsrv.WithStreamableURI("/mcp"),
		mcpsrv.WithCustomHTTPHandler("/office/auth/device/", svc.DeviceHandler()),
		mcpsrv.WithCustomHTTPHandler("/office/auth/pending", svc.PendingListHandler()),
		mcpsrv.WithCustomHTTPHandler("/office/auth/pending/clear", svc.PendingClearHandler()),
		mcpsrv.WithCustomHTTPHandler("/api/", apiHandler.ServeHTTP),
	}

	// Optional server-level OAuth2 (Backend-For-Frontend).
	if v := strings.TrimSpace(opts.Oauth2Config); v != "" {
		res := scy.EncodedResource(v).Decode(context.Background(), cred.Oauth2Config{})
		sec, err := scy.New().Load(context.Background(), res)
		if err != nil {
			log.Error("failed to load oauth2config", "error", err)
			os.Exit(1)
		}
		oc, ok := sec.Target.(*cred.Oauth2Config)
		if !ok {
			log.Error("invalid oauth2config secret type")
			os.Exit(1)
		}
		authPolicy := &authorization.Policy{
			Global: &authorization.Authorization{
				UseIdToken: opts.UseIdToken,
				ProtectedResourceMetadata: &oauthmeta.ProtectedResourceMetadata{
					AuthorizationServers: []string{oc.Config.Endpoint.AuthURL},
				}},
			ExcludeURI: "/sse,/ui/interaction/",
		}
		bff := &serverauth.BackendForFrontend{Client: &oc.Config, AuthorizationExchangeHeader: flow.AuthorizationExchangeHeader}
		authSvc, err := serverauth.New(&serverauth.Config{Policy: authPolicy, BackendForFrontend: bff})
		if err != nil {
			log.Error("failed to init auth service", "error", err)
			os.Exit(1)
		}
		options = append(options,
			mcpsrv.WithAuthorizer(authSvc.Middleware),
			mcpsrv.WithProtectedResourcesHandler(authSvc.ProtectedResourcesHandler),
		)
	}

	server, err := mcpsrv.New(options...)
	if err != nil {
		log.Error("server init failed", "error", err)
		os.Exit(1)
	}
	if opts.HTTPAddr == "" {
		log.Error("no listen address: pass --addr or --stdio")
		os.Exit(2)
	}
	server.UseStreamableHTTP(true)
	if err := server.HTTP(context.Background(), opts.HTTPAddr).ListenAndServe(); err != nil {
		log.Error("http server failed", "error", err)
		os.Exit(1)
	}
}
