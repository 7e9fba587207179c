// Package gateway is the single choke point between callers and tools.
// Every invocation passes through the same sequence: session check,
// authorization, optional confirmation, execution, and exactly one
// audit entry. No layer above may reach a tool directly, and no tool
// output leaves the gateway unless its audit entry was durably written.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/pkamenev/toolgate/internal/audit"
	"github.com/pkamenev/toolgate/internal/authz"
	"github.com/pkamenev/toolgate/internal/confirm"
	"github.com/pkamenev/toolgate/internal/model"
	"github.com/pkamenev/toolgate/internal/session"
	"github.com/pkamenev/toolgate/internal/tools"
)

// Status classifies what happened to an invocation.
type Status string

const (
	StatusDenied       Status = "denied"
	StatusConfirmation Status = "confirmation_required"
	StatusSuccess      Status = "success"
	StatusFailure      Status = "failure"
)

// Response is the caller-visible outcome of Invoke or Confirm.
type Response struct {
	Status      Status `json:"status"`
	Reason      string `json:"reason,omitempty"`
	ChallengeID string `json:"challenge_id,omitempty"`
	Output      string `json:"output,omitempty"`
}

// Authenticator verifies a credential and returns the user's role.
type Authenticator interface {
	VerifyCredentials(ctx context.Context, id, password string) (model.Role, error)
}

// Gateway wires the trust components together.
type Gateway struct {
	auth       Authenticator
	sessions   *session.Manager
	challenges *confirm.Store
	registry   *tools.Registry
	log        *audit.Log
}

func New(auth Authenticator, sessions *session.Manager, challenges *confirm.Store, registry *tools.Registry, log *audit.Log) *Gateway {
	return &Gateway{
		auth:       auth,
		sessions:   sessions,
		challenges: challenges,
		registry:   registry,
		log:        log,
	}
}

// Login verifies a credential and starts a session. Credential failures
// are not chain entries; the chain accounts for tool invocations, and
// repeated failures surface through the identity store's lockout.
func (g *Gateway) Login(ctx context.Context, userID, password string) (string, error) {
	if _, err := g.auth.VerifyCredentials(ctx, userID, password); err != nil {
		return "", err
	}
	return g.sessions.Start(userID)
}

// Logout revokes a session token.
func (g *Gateway) Logout(token string) {
	g.sessions.End(token)
}

// Invoke runs one tool invocation end to end. The returned error is
// reserved for infrastructure failures — above all, a failed audit
// write, after which no output leaves the gateway even if the tool
// already ran. Everything else, including denials, comes back as a
// Response.
func (g *Gateway) Invoke(ctx context.Context, token string, capability model.Capability, params map[string]string) (*Response, error) {
	id, err := g.sessions.Validate(ctx, token)
	if err != nil {
		reason := "unknown session"
		if errors.Is(err, session.ErrSessionExpired) {
			reason = "session expired"
		}
		return g.deny(ctx, "unknown", capability, reason)
	}

	if !capability.Known() {
		return g.deny(ctx, id.UserID, capability, fmt.Sprintf("unknown capability %q", capability))
	}

	role := model.Role(id.Role)
	switch authz.Decide(role, capability) {
	case model.Deny:
		return g.deny(ctx, id.UserID, capability, fmt.Sprintf("role %s may not use %s", role, capability))

	case model.AllowRequiresConfirmation:
		ch := g.challenges.Create(token, id.UserID, capability, params)
		return &Response{
			Status:      StatusConfirmation,
			Reason:      fmt.Sprintf("high-sensitivity capability %s requires confirmation: reply with %q within %s", capability, confirm.Phrase, confirm.DefaultTTL),
			ChallengeID: ch.ID,
		}, nil

	case model.Allow:
		return g.execute(ctx, id.UserID, capability, params, model.OutcomeAllowed)
	}

	return g.deny(ctx, id.UserID, capability, "unrecognized authorization decision")
}

// Confirm resolves a pending challenge. Anything other than the exact
// confirmation phrase is a denial, and the session and role are checked
// again at confirmation time: a session that died or a role that was
// downgraded while the challenge sat pending denies the invocation no
// matter what the caller typed.
func (g *Gateway) Confirm(ctx context.Context, challengeID, phrase string) (*Response, error) {
	ch, err := g.challenges.Take(challengeID)
	if errors.Is(err, confirm.ErrNotFound) {
		// No invocation to account for: either never existed or its
		// entry was already written.
		return &Response{Status: StatusDenied, Reason: "unknown or already resolved challenge"}, nil
	}
	if errors.Is(err, confirm.ErrExpired) {
		return g.deny(ctx, ch.UserID, ch.Capability, "confirmation window expired")
	}

	if phrase != confirm.Phrase {
		return g.deny(ctx, ch.UserID, ch.Capability, "confirmation phrase mismatch")
	}

	id, err := g.sessions.Validate(ctx, ch.Token)
	if err != nil {
		reason := "session ended before confirmation"
		if errors.Is(err, session.ErrSessionExpired) {
			reason = "session expired before confirmation"
		}
		return g.deny(ctx, ch.UserID, ch.Capability, reason)
	}

	// Authorization is recomputed with the current role; the decision
	// captured at challenge time carries no weight.
	switch authz.Decide(model.Role(id.Role), ch.Capability) {
	case model.AllowRequiresConfirmation, model.Allow:
		return g.execute(ctx, id.UserID, ch.Capability, ch.Params, model.OutcomeAllowedAfterConfirm)
	default:
		return g.deny(ctx, id.UserID, ch.Capability, fmt.Sprintf("role %s may no longer use %s", id.Role, ch.Capability))
	}
}

// execute runs the tool and writes the one audit entry for the
// invocation. The audit write happens after execution so the entry can
// carry the result, and its failure is fatal: the output is withheld.
func (g *Gateway) execute(ctx context.Context, actor string, capability model.Capability, params map[string]string, outcome model.Outcome) (*Response, error) {
	tool, err := g.registry.Get(capability)
	if err != nil {
		return g.deny(ctx, actor, capability, err.Error())
	}

	output, invokeErr := tool.Invoke(ctx, params)

	result := audit.ToolResult{Status: "succeeded"}
	if invokeErr != nil {
		result = audit.ToolResult{Status: "failed", Detail: truncate(invokeErr.Error(), maxDetailBytes)}
	}
	if _, err := g.log.Append(audit.Entry{
		Actor:       actor,
		Capability:  string(capability),
		Sensitivity: string(capability.Sensitivity()),
		Decision:    string(outcome),
		Result:      result,
	}); err != nil {
		return nil, fmt.Errorf("gateway: audit write failed, result withheld: %w", err)
	}

	if invokeErr != nil {
		return &Response{Status: StatusFailure, Reason: invokeErr.Error()}, nil
	}
	return &Response{Status: StatusSuccess, Output: output}, nil
}

// deny records a denied invocation and returns the denial. A denial
// that cannot be audited is an infrastructure error, same as any other
// unwritable entry.
func (g *Gateway) deny(_ context.Context, actor string, capability model.Capability, reason string) (*Response, error) {
	if _, err := g.log.Append(audit.Entry{
		Actor:       actor,
		Capability:  string(capability),
		Sensitivity: string(capability.Sensitivity()),
		Decision:    string(model.OutcomeDenied),
		Result:      audit.ToolResult{Detail: truncate(reason, maxDetailBytes)},
	}); err != nil {
		return nil, fmt.Errorf("gateway: audit write failed: %w", err)
	}
	return &Response{Status: StatusDenied, Reason: reason}, nil
}

// maxDetailBytes bounds the failure detail recorded per entry so a
// verbose tool error cannot blow up an audit line.
const maxDetailBytes = 4096

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back up to a rune boundary so the audit line stays valid UTF-8.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}

// SweepExpired audits every challenge whose window lapsed without an
// answer, closing those invocations as denied. Returns how many were
// swept. If a denial cannot be written the count so far is returned and
// the unwritten challenges go back in the store for the next sweep, so
// no invocation loses its entry to a transient audit failure.
func (g *Gateway) SweepExpired(ctx context.Context) (int, error) {
	expired := g.challenges.TakeExpired()
	for i, ch := range expired {
		if _, err := g.deny(ctx, ch.UserID, ch.Capability, "confirmation window expired"); err != nil {
			g.challenges.Requeue(expired[i:])
			return i, err
		}
	}
	return len(expired), nil
}

// RunSweeper periodically sweeps expired challenges until ctx is done.
func (g *Gateway) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := g.SweepExpired(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "challenge sweep failed: %v\n", err)
			}
		}
	}
}
