// Package mcp exposes the gateway over the Model Context Protocol so a
// conversational agent can drive it. The MCP layer translates protocol
// calls into gateway invocations and nothing more; every trust decision
// stays behind the gateway.
package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pkamenev/toolgate/internal/audit"
	"github.com/pkamenev/toolgate/internal/gateway"
)

// Config holds MCP server configuration.
type Config struct {
	AuditPath string
	AuditKey  []byte
}

// Server wraps the MCP SDK server around a gateway.
type Server struct {
	mcpServer *mcpsdk.Server
	gw        *gateway.Gateway
	cfg       Config
}

// New creates an MCP server for the given gateway.
func New(gw *gateway.Gateway, cfg Config) *Server {
	s := &Server{gw: gw, cfg: cfg}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "toolgate",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all toolgate tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "toolgate_login",
		Description: "Authenticate with user id and password. Returns a session token for subsequent calls.",
	}, s.handleLogin)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "toolgate_invoke",
		Description: "Invoke a system tool through the gateway. High-sensitivity tools return a challenge_id; approve it with toolgate_confirm.",
	}, s.handleInvoke)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "toolgate_confirm",
		Description: fmt.Sprintf("Resolve a pending confirmation challenge. The phrase must be exactly %q; anything else denies the invocation.", "I AUTHORIZE"),
	}, s.handleConfirm)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "toolgate_logout",
		Description: "End a session. The token stops working immediately.",
	}, s.handleLogout)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "toolgate_audit_verify",
		Description: "Verify the integrity of the audit chain and report the earliest tampered position, if any.",
	}, s.handleAuditVerify)
}

func (s *Server) verifyChain() audit.VerifyResult {
	return audit.Verify(s.cfg.AuditPath, s.cfg.AuditKey)
}
