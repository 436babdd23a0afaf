package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viant/jsonrpc"
	"github.com/viant/mcp-protocol/schema"
	protoserver "github.com/viant/mcp-protocol/server"

	"github.com/workgraph/mcp-office/office/graph"
	"github.com/workgraph/mcp-office/office/intent"
	"github.com/workgraph/mcp-office/office/modules"
)

const (
	officeListMailDesc     = "List recent messages from the user's Microsoft 365 mailbox. Supports top, sinceISO/untilISO and a raw OData filter. account.alias selects the signed-in account."
	officeSendMailDesc     = "Send an email through the user's Microsoft 365 mailbox. Requires to[] and subject; bodyText or bodyHTML carries the content."
	officeListEventsDesc   = "List upcoming calendar events for the user. daysAhead bounds the window (default 7 days)."
	officeCreateEventDesc  = "Create a calendar event with subject, startISO/endISO, optional location and attendees."
	officeListFilesDesc    = "List OneDrive files in the drive root or a folder given by folderId."
	officeDownloadFileDesc = "Resolve a short-lived download URL for a OneDrive file by itemId. File bytes are never proxied through the server."
	officeGetProfileDesc   = "Return the signed-in user's profile: display name, mail address and job title."
)

func registerTools(base *protoserver.DefaultHandler, h *Handler) error {
	svc := h.service
	ops := h.ops

	// Non-blocking OOB device-login launch via elicitation: register a pending
	// auth, kick off the device flow, and point the host at the login page.
	startOOB := func(ctx context.Context, alias, tenant string) {
		if ops == nil || !ops.Implements(schema.MethodElicitationCreate) {
			return
		}
		ns, _ := svc.Auth().Namespace(ctx)
		id := uuid.New().String()
		pend := &PendingAuth{UUID: id, Alias: alias, TenantID: tenant, Namespace: ns}
		svc.Pending().Put(pend)
		svc.GraphManager().StartDeviceLogin(ctx, alias, tenant, graph.DefaultScopes(), func() {
			svc.Pending().Complete(id)
		})
		loginURL := fmt.Sprintf("%s/office/auth/device/%s", strings.TrimRight(svc.BaseURL(), "/"), id)
		go func() {
			ctx2, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_, _ = ops.Elicit(ctx2, &jsonrpc.TypedRequest[*schema.ElicitRequest]{Request: &schema.ElicitRequest{
				Params: schema.ElicitRequestParams{ElicitationId: id, Message: "Sign in to Microsoft 365", Mode: string(schema.ElicitRequestParamsModeUrl), Url: loginURL},
			}})
		}()
	}

	// All tools funnel through the intent router so capability dispatch,
	// redaction and metrics apply uniformly.
	route := func(ctx context.Context, intentName string, account graph.Account, in any) (*schema.CallToolResult, *jsonrpc.Error) {
		if account.Alias == "" {
			return buildErrorResult("account.alias is required")
		}
		if account.TenantID == "" {
			account.TenantID = svc.TenantID()
		}
		if svc.GraphManager().NeedsInteractive(ctx, account.Alias, account.TenantID, graph.DefaultScopes()) {
			startOOB(ctx, account.Alias, account.TenantID)
		}
		entities, err := toEntities(in)
		if err != nil {
			return buildErrorResult(err.Error())
		}
		ns, _ := svc.Auth().Namespace(ctx)
		out, err := svc.Router().RouteIntent(ctx, &intent.Invocation{
			Intent:   intentName,
			Entities: entities,
			Context:  map[string]any{"accountAlias": account.Alias, "tenantId": account.TenantID},
			UserID:   ns,
		})
		if err != nil {
			return buildErrorResult(err.Error())
		}
		return buildSuccessResult(svc, out)
	}

	if err := protoserver.RegisterTool[*graph.ListMailInput, *graph.ListMailOutput](base.Registry, "officeListMail", officeListMailDesc, func(ctx context.Context, in *graph.ListMailInput) (*schema.CallToolResult, *jsonrpc.Error) {
		return route(ctx, modules.IntentListMail, in.Account, in)
	}); err != nil {
		return err
	}

	if err := protoserver.RegisterTool[*graph.SendMailInput, *struct{}](base.Registry, "officeSendMail", officeSendMailDesc, func(ctx context.Context, in *graph.SendMailInput) (*schema.CallToolResult, *jsonrpc.Error) {
		return route(ctx, modules.IntentSendMail, in.Account, in)
	}); err != nil {
		return err
	}

	if err := protoserver.RegisterTool[*graph.ListEventsInput, *graph.ListEventsOutput](base.Registry, "officeListEvents", officeListEventsDesc, func(ctx context.Context, in *graph.ListEventsInput) (*schema.CallToolResult, *jsonrpc.Error) {
		return route(ctx, modules.IntentListEvents, in.Account, in)
	}); err != nil {
		return err
	}

	if err := protoserver.RegisterTool[*graph.CreateEventInput, *graph.CalendarEvent](base.Registry, "officeCreateEvent", officeCreateEventDesc, func(ctx context.Context, in *graph.CreateEventInput) (*schema.CallToolResult, *jsonrpc.Error) {
		return route(ctx, modules.IntentCreateEvent, in.Account, in)
	}); err != nil {
		return err
	}

	if err := protoserver.RegisterTool[*graph.ListFilesInput, *graph.ListFilesOutput](base.Registry, "officeListFiles", officeListFilesDesc, func(ctx context.Context, in *graph.ListFilesInput) (*schema.CallToolResult, *jsonrpc.Error) {
		return route(ctx, modules.IntentListFiles, in.Account, in)
	}); err != nil {
		return err
	}

	if err := protoserver.RegisterTool[*graph.DownloadFileInput, *graph.DownloadFileOutput](base.Registry, "officeDownloadFile", officeDownloadFileDesc, func(ctx context.Context, in *graph.DownloadFileInput) (*schema.CallToolResult, *jsonrpc.Error) {
		return route(ctx, modules.IntentDownloadFile, in.Account, in)
	}); err != nil {
		return err
	}

	if err := protoserver.RegisterTool[*graph.GetProfileInput, *graph.Profile](base.Registry, "officeGetProfile", officeGetProfileDesc, func(ctx context.Context, in *graph.GetProfileInput) (*schema.CallToolResult, *jsonrpc.Error) {
		return route(ctx, modules.IntentGetProfile, in.Account, in)
	}); err != nil {
		return err
	}

	return nil
}

// toEntities flattens a typed tool input into the router's entities map.
func toEntities(in any) (map[string]any, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode tool input: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode tool input: %w", err)
	}
	return out, nil
}

func buildErrorResult(message string) (*schema.CallToolResult, *jsonrpc.Error) {
	return nil, jsonrpc.NewError(jsonrpc.InvalidParams, message, nil)
}

func buildSuccessResult(service *Service, payload any) (*schema.CallToolResult, *jsonrpc.Error) {
	if service.UseTextField() {
		b, _ := json.Marshal(payload)
		return &schema.CallToolResult{Content: []schema.CallToolResultContentElem{{Type: "text", Text: string(b)}}}, nil
	}
	return &schema.CallToolResult{StructuredContent: map[string]any{"result": payload}}, nil
}
