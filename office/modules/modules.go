// Package modules wires graph services into registry handler modules. Each
// module advertises its Graph operations as capabilities; the intent router
// dispatches on those names.
package modules

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/workgraph/mcp-office/office/graph"
	"github.com/workgraph/mcp-office/office/registry"
)

// Intent names double as capability names.
const (
	IntentListMail     = "listMail"
	IntentSendMail     = "sendMail"
	IntentListEvents   = "listEvents"
	IntentCreateEvent  = "createEvent"
	IntentListFiles    = "listFiles"
	IntentDownloadFile = "downloadFile"
	IntentGetProfile   = "getProfile"
)

// Options applies to every office module.
type Options struct {
	// DefaultTenant fills Account.TenantID when the caller omits it.
	DefaultTenant string
	// Scopes defaults to graph.DefaultScopes().
	Scopes []string
	// Prompt receives device-code messages during interactive login.
	Prompt func(string)
}

func (o *Options) scopes() []string {
	if len(o.Scopes) > 0 {
		return o.Scopes
	}
	return graph.DefaultScopes()
}

// decodeEntities maps the router's opaque entities onto a typed Graph input.
func decodeEntities(entities map[string]any, out any) error {
	data, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("encode entities: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode entities: %w", err)
	}
	return nil
}

// account resolves the target account from entities/context, applying the
// default tenant.
func (o *Options) account(entities, callContext map[string]any) graph.Account {
	out := graph.Account{}
	if alias, ok := entities["account"].(map[string]any); ok {
		out.Alias, _ = alias["alias"].(string)
	}
	if out.Alias == "" {
		out.Alias, _ = callContext["accountAlias"].(string)
	}
	if out.Alias == "" {
		out.Alias = "default"
	}
	if tenant, ok := callContext["tenantId"].(string); ok && tenant != "" {
		out.TenantID = tenant
	} else {
		out.TenantID = o.DefaultTenant
	}
	return out
}

// Mail exposes listMail and sendMail.
func Mail(svc *graph.MailService, opts *Options) *registry.Module {
	if opts == nil {
		opts = &Options{}
	}
	return &registry.Module{
		ID:           "office-mail",
		Name:         "Office Mail",
		Capabilities: []string{IntentListMail, IntentSendMail},
		Init:         func(context.Context) error { return nil },
		HandleIntent: func(ctx context.Context, intent string, entities, callContext map[string]any) (any, error) {
			switch intent {
			case IntentListMail:
				in := &graph.ListMailInput{}
				if err := decodeEntities(entities, in); err != nil {
					return nil, err
				}
				in.Account = opts.account(entities, callContext)
				return svc.List(ctx, in, opts.scopes(), opts.Prompt)
			case IntentSendMail:
				in := &graph.SendMailInput{}
				if err := decodeEntities(entities, in); err != nil {
					return nil, err
				}
				in.Account = opts.account(entities, callContext)
				if err := svc.Send(ctx, in, opts.scopes(), opts.Prompt); err != nil {
					return nil, err
				}
				return map[string]any{"status": "sent"}, nil
			default:
				return nil, fmt.Errorf("mail module cannot handle intent %q", intent)
			}
		},
	}
}

// Calendar exposes listEvents and createEvent.
func Calendar(svc *graph.CalendarService, opts *Options) *registry.Module {
	if opts == nil {
		opts = &Options{}
	}
	return &registry.Module{
		ID:           "office-calendar",
		Name:         "Office Calendar",
		Capabilities: []string{IntentListEvents, IntentCreateEvent},
		Init:         func(context.Context) error { return nil },
		HandleIntent: func(ctx context.Context, intent string, entities, callContext map[string]any) (any, error) {
			switch intent {
			case IntentListEvents:
				in := &graph.ListEventsInput{}
				if err := decodeEntities(entities, in); err != nil {
					return nil, err
				}
				in.Account = opts.account(entities, callContext)
				return svc.List(ctx, in, opts.scopes(), opts.Prompt)
			case IntentCreateEvent:
				in := &graph.CreateEventInput{}
				if err := decodeEntities(entities, in); err != nil {
					return nil, err
				}
				in.Account = opts.account(entities, callContext)
				return svc.Create(ctx, in, opts.scopes(), opts.Prompt)
			default:
				return nil, fmt.Errorf("calendar module cannot handle intent %q", intent)
			}
		},
	}
}

// Files exposes listFiles and downloadFile over the caller's OneDrive.
func Files(svc *graph.DriveService, opts *Options) *registry.Module {
	if opts == nil {
		opts = &Options{}
	}
	return &registry.Module{
		ID:           "office-files",
		Name:         "Office Files",
		Capabilities: []string{IntentListFiles, IntentDownloadFile},
		Init:         func(context.Context) error { return nil },
		HandleIntent: func(ctx context.Context, intent string, entities, callContext map[string]any) (any, error) {
			switch intent {
			case IntentListFiles:
				in := &graph.ListFilesInput{}
				if err := decodeEntities(entities, in); err != nil {
					return nil, err
				}
				in.Account = opts.account(entities, callContext)
				return svc.List(ctx, in, opts.scopes(), opts.Prompt)
			case IntentDownloadFile:
				in := &graph.DownloadFileInput{}
				if err := decodeEntities(entities, in); err != nil {
					return nil, err
				}
				in.Account = opts.account(entities, callContext)
				return svc.Download(ctx, in, opts.scopes(), opts.Prompt)
			default:
				return nil, fmt.Errorf("files module cannot handle intent %q", intent)
			}
		},
	}
}

// Profile exposes getProfile.
func Profile(svc *graph.ProfileService, opts *Options) *registry.Module {
	if opts == nil {
		opts = &Options{}
	}
	return &registry.Module{
		ID:           "office-profile",
		Name:         "Office Profile",
		Capabilities: []string{IntentGetProfile},
		Init:         func(context.Context) error { return nil },
		HandleIntent: func(ctx context.Context, intent string, entities, callContext map[string]any) (any, error) {
			if intent != IntentGetProfile {
				return nil, fmt.Errorf("profile module cannot handle intent %q", intent)
			}
			in := &graph.GetProfileInput{}
			if err := decodeEntities(entities, in); err != nil {
				return nil, err
			}
			in.Account = opts.account(entities, callContext)
			return svc.Get(ctx, in, opts.scopes(), opts.Prompt)
		},
	}
}

// RegisterAll wires every office module into the registry.
func RegisterAll(reg *registry.Registry, mgr *graph.Manager, opts *Options) error {
	for _, m := range []*registry.Module{
		Mail(graph.NewMailService(mgr), opts),
		Calendar(graph.NewCalendarService(mgr), opts),
		Files(graph.NewDriveService(mgr), opts),
		Profile(graph.NewProfileService(mgr), opts),
	} {
		if err := reg.Register(m); err != nil {
			return err
		}
	}
	return nil
}
