package mcp

import (
	"context"

	"github.com/viant/jsonrpc/transport"
	protoclient "github.com/viant/mcp-protocol/client"
	"github.com/viant/mcp-protocol/logger"
	protoserver "github.com/viant/mcp-protocol/server"
)

// Handler serves one MCP session. It embeds the protocol default handler and
// layers the office tool set on top; client operations are retained so tools
// can launch elicitation-driven device logins.
type Handler struct {
	*protoserver.DefaultHandler
	service *Service
	ops     protoclient.Operations
}

// NewHandler returns the per-session handler factory the MCP server calls on
// each new connection. Every session gets the full office tool set registered
// against its own tool registry.
func NewHandler(service *Service) protoserver.NewHandler {
	return func(_ context.Context, notifier transport.Notifier, log logger.Logger, clientOps protoclient.Operations) (protoserver.Handler, error) {
		h := &Handler{
			DefaultHandler: protoserver.NewDefaultHandler(notifier, log, clientOps),
			service:        service,
			ops:            clientOps,
		}
		if err := registerTools(h.DefaultHandler, h); err != nil {
			return nil, err
		}
		return h, nil
	}
}
