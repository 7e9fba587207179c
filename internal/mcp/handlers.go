package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pkamenev/toolgate/internal/gateway"
	"github.com/pkamenev/toolgate/internal/model"
)

// --- Input/Output types ---

// LoginInput defines parameters for the toolgate_login tool.
type LoginInput struct {
	User     string `json:"user" jsonschema:"user id"`
	Password string `json:"password" jsonschema:"password"`
}

// LoginOutput carries the session token.
type LoginOutput struct {
	Token string `json:"token,omitempty"`
	Error string `json:"error,omitempty"`
}

// InvokeInput defines parameters for the toolgate_invoke tool.
type InvokeInput struct {
	Token      string            `json:"token" jsonschema:"session token from toolgate_login"`
	Capability string            `json:"capability" jsonschema:"tool capability (e.g. read_file, list_processes, elevate)"`
	Params     map[string]string `json:"params,omitempty" jsonschema:"tool parameters"`
}

// InvokeOutput mirrors the gateway response.
type InvokeOutput struct {
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	ChallengeID string `json:"challenge_id,omitempty"`
	Output      string `json:"output,omitempty"`
}

// ConfirmInput defines parameters for the toolgate_confirm tool.
type ConfirmInput struct {
	ChallengeID string `json:"challenge_id" jsonschema:"challenge id from a confirmation_required response"`
	Phrase      string `json:"phrase" jsonschema:"the exact confirmation phrase"`
}

// LogoutInput defines parameters for the toolgate_logout tool.
type LogoutInput struct {
	Token string `json:"token" jsonschema:"session token to revoke"`
}

// LogoutOutput confirms the revocation.
type LogoutOutput struct {
	Status string `json:"status"`
}

// AuditVerifyInput is empty — no parameters needed.
type AuditVerifyInput struct{}

// AuditVerifyOutput reports chain integrity.
type AuditVerifyOutput struct {
	Valid   bool   `json:"valid"`
	Entries int    `json:"entries"`
	Seq     uint64 `json:"seq,omitempty"`
	Line    int    `json:"line,omitempty"`
	Error   string `json:"error,omitempty"`
}

// --- Handlers ---

func (s *Server) handleLogin(ctx context.Context, req *mcpsdk.CallToolRequest, input LoginInput) (*mcpsdk.CallToolResult, LoginOutput, error) {
	token, err := s.gw.Login(ctx, input.User, input.Password)
	if err != nil {
		// Credential failures come back as tool errors, not protocol
		// errors, so the agent can relay them.
		return &mcpsdk.CallToolResult{IsError: true}, LoginOutput{Error: err.Error()}, nil
	}
	return nil, LoginOutput{Token: token}, nil
}

func (s *Server) handleInvoke(ctx context.Context, req *mcpsdk.CallToolRequest, input InvokeInput) (*mcpsdk.CallToolResult, InvokeOutput, error) {
	resp, err := s.gw.Invoke(ctx, input.Token, model.Capability(input.Capability), input.Params)
	if err != nil {
		return nil, InvokeOutput{}, err
	}
	return toolResult(resp), toOutput(resp), nil
}

func (s *Server) handleConfirm(ctx context.Context, req *mcpsdk.CallToolRequest, input ConfirmInput) (*mcpsdk.CallToolResult, InvokeOutput, error) {
	resp, err := s.gw.Confirm(ctx, input.ChallengeID, input.Phrase)
	if err != nil {
		return nil, InvokeOutput{}, err
	}
	return toolResult(resp), toOutput(resp), nil
}

func (s *Server) handleLogout(ctx context.Context, req *mcpsdk.CallToolRequest, input LogoutInput) (*mcpsdk.CallToolResult, LogoutOutput, error) {
	s.gw.Logout(input.Token)
	return nil, LogoutOutput{Status: "logged_out"}, nil
}

func (s *Server) handleAuditVerify(ctx context.Context, req *mcpsdk.CallToolRequest, input AuditVerifyInput) (*mcpsdk.CallToolResult, AuditVerifyOutput, error) {
	result := s.verifyChain()
	return nil, AuditVerifyOutput{
		Valid:   result.Valid,
		Entries: result.Entries,
		Seq:     result.Seq,
		Line:    result.Line,
		Error:   result.Error,
	}, nil
}

// --- Helpers ---

func toOutput(resp *gateway.Response) InvokeOutput {
	return InvokeOutput{
		Status:      string(resp.Status),
		Reason:      resp.Reason,
		ChallengeID: resp.ChallengeID,
		Output:      resp.Output,
	}
}

func toolResult(resp *gateway.Response) *mcpsdk.CallToolResult {
	if resp.Status == gateway.StatusDenied || resp.Status == gateway.StatusFailure {
		return &mcpsdk.CallToolResult{IsError: true}
	}
	return nil
}
