package toolgate

import (
	"context"
	"errors"
	"fmt"

	"github.com/pkamenev/toolgate/internal/audit"
	"github.com/pkamenev/toolgate/internal/confirm"
	"github.com/pkamenev/toolgate/internal/config"
	"github.com/pkamenev/toolgate/internal/gateway"
	"github.com/pkamenev/toolgate/internal/identity"
	"github.com/pkamenev/toolgate/internal/keyring"
	"github.com/pkamenev/toolgate/internal/model"
	"github.com/pkamenev/toolgate/internal/scope"
	"github.com/pkamenev/toolgate/internal/session"
	"github.com/pkamenev/toolgate/internal/tools"
)

// Client is the in-process gateway. Safe for concurrent use.
type Client struct {
	cfg       *config.Config
	gw        *gateway.Gateway
	ids       *identity.Store
	sessions  *session.Manager
	log       *audit.Log
	auditKey  []byte
	auditPath string
}

// New creates a Client with the given options.
func New(opts ...Option) (*Client, error) {
	var oc optionConfig
	for _, o := range opts {
		o(&oc)
	}

	cfg, err := config.Load(oc.configPath)
	if err != nil {
		return nil, fmt.Errorf("toolgate: load config: %w", err)
	}
	if oc.dataDir != "" {
		cfg.DataDir = oc.dataDir
		cfg.IdentityPath = ""
		cfg.AuditPath = ""
		cfg.KeyPath = ""
		cfg.ScopePath = ""
		cfg.FillPaths()
	}

	key, err := keyring.LoadOrCreate(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("toolgate: load audit key: %w", err)
	}

	log, err := audit.Open(cfg.AuditPath, key)
	if err != nil {
		return nil, fmt.Errorf("toolgate: open audit log: %w", err)
	}

	ids, err := identity.Open(cfg.IdentityPath, identity.LockoutPolicy{
		Threshold: cfg.Lockout.Threshold,
		Window:    cfg.Lockout.Window,
	})
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("toolgate: open identity store: %w", err)
	}

	guard, err := scope.Load(cfg.ScopePath)
	if err != nil {
		log.Close()
		ids.Close()
		return nil, fmt.Errorf("toolgate: load scope rules: %w", err)
	}

	sessions := session.NewManager(roleResolver{ids}, session.Limits{
		MaxAge:      cfg.Session.MaxAge,
		IdleTimeout: cfg.Session.IdleTimeout,
	})

	registry := tools.NewRegistry(
		tools.SearchFiles{Guard: guard},
		tools.ReadFile{Guard: guard},
		tools.ListProcesses{},
		tools.ReadWebpage{Guard: guard},
		tools.NewScheduleReminder(),
		tools.LaunchApp{Guard: guard, Launcher: oc.launcher},
		tools.Elevate{Guard: guard, Runner: oc.elevation},
		tools.ExportAudit{Path: cfg.AuditPath, Key: key},
	)

	gw := gateway.New(ids, sessions, confirm.NewStore(cfg.Confirmation.TTL), registry, log)

	return &Client{
		cfg:       cfg,
		gw:        gw,
		ids:       ids,
		sessions:  sessions,
		log:       log,
		auditKey:  key,
		auditPath: cfg.AuditPath,
	}, nil
}

// Close releases the client's stores.
func (c *Client) Close() error {
	return errors.Join(c.log.Close(), c.ids.Close())
}

// Login verifies a credential and returns a session token.
func (c *Client) Login(ctx context.Context, userID, password string) (string, error) {
	return c.gw.Login(ctx, userID, password)
}

// Logout revokes a session token.
func (c *Client) Logout(token string) {
	c.gw.Logout(token)
}

// Invoke runs a tool invocation through the gateway.
func (c *Client) Invoke(ctx context.Context, token, capability string, params map[string]string) (*Response, error) {
	resp, err := c.gw.Invoke(ctx, token, model.Capability(capability), params)
	if err != nil {
		return nil, err
	}
	return toResponse(resp), nil
}

// Confirm resolves a pending confirmation challenge.
func (c *Client) Confirm(ctx context.Context, challengeID, phrase string) (*Response, error) {
	resp, err := c.gw.Confirm(ctx, challengeID, phrase)
	if err != nil {
		return nil, err
	}
	return toResponse(resp), nil
}

// SweepExpired closes out confirmation challenges whose window lapsed.
// Embedders without a background loop should call this periodically.
func (c *Client) SweepExpired(ctx context.Context) (int, error) {
	return c.gw.SweepExpired(ctx)
}

// CreateUser registers a user. Intended for bootstrap; day-to-day user
// management belongs to the CLI.
func (c *Client) CreateUser(ctx context.Context, id, password, role string) error {
	return c.ids.CreateUser(ctx, id, password, model.Role(role))
}

// SetRole changes a user's role, effective on their next invocation.
func (c *Client) SetRole(ctx context.Context, id, role string) error {
	return c.ids.SetRole(ctx, id, model.Role(role))
}

// RevokeUser ends every live session of a user.
func (c *Client) RevokeUser(userID string) int {
	return c.sessions.RevokeUser(userID)
}

// VerifyAudit checks the whole audit chain.
func (c *Client) VerifyAudit() VerifyResult {
	r := audit.Verify(c.auditPath, c.auditKey)
	return VerifyResult{
		Valid:   r.Valid,
		Entries: r.Entries,
		Seq:     r.Seq,
		Line:    r.Line,
		Error:   r.Error,
	}
}

// roleResolver adapts the identity store to the session authority.
type roleResolver struct {
	ids *identity.Store
}

func (r roleResolver) GetRole(ctx context.Context, userID string) (string, error) {
	role, err := r.ids.GetRole(ctx, userID)
	return string(role), err
}
