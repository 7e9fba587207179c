package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pkamenev/toolgate/internal/audit"
	"github.com/pkamenev/toolgate/internal/confirm"
	"github.com/pkamenev/toolgate/internal/config"
	"github.com/pkamenev/toolgate/internal/gateway"
	"github.com/pkamenev/toolgate/internal/identity"
	"github.com/pkamenev/toolgate/internal/keyring"
	"github.com/pkamenev/toolgate/internal/mcp"
	"github.com/pkamenev/toolgate/internal/scope"
	"github.com/pkamenev/toolgate/internal/session"
	"github.com/pkamenev/toolgate/internal/tools"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway as an MCP server on stdio",
	Long: `Runs toolgate as a Model Context Protocol server. A conversational
agent connects over stdio and drives tools through the gateway.
Scope rules are hot-reloaded when the rules file changes.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	key, err := keyring.LoadOrCreate(cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("load audit key: %w", err)
	}

	log, err := audit.Open(cfg.AuditPath, key)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer log.Close()

	ids, err := identity.Open(cfg.IdentityPath, identity.LockoutPolicy{
		Threshold: cfg.Lockout.Threshold,
		Window:    cfg.Lockout.Window,
	})
	if err != nil {
		return fmt.Errorf("open identity store: %w", err)
	}
	defer ids.Close()

	guard, err := scope.Load(cfg.ScopePath)
	if err != nil {
		return fmt.Errorf("load scope rules: %w", err)
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
		tools.LaunchApp{Guard: guard},
		tools.Elevate{Guard: guard},
		tools.ExportAudit{Path: cfg.AuditPath, Key: key},
	)

	gw := gateway.New(ids, sessions,
		confirm.NewStore(cfg.Confirmation.TTL), registry, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, err := scope.NewWatcher(guard, cfg.ScopePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
	} else {
		go watcher.Run(ctx)
	}

	go gw.RunSweeper(ctx, cfg.Confirmation.SweepInterval)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "toolgate MCP server on stdio (audit: %s)\n", cfg.AuditPath)

	srv := mcp.New(gw, mcp.Config{AuditPath: cfg.AuditPath, AuditKey: key})
	return srv.Run(ctx)
}

// roleResolver adapts the identity store to the session authority.
type roleResolver struct {
	ids *identity.Store
}

func (r roleResolver) GetRole(ctx context.Context, userID string) (string, error) {
	role, err := r.ids.GetRole(ctx, userID)
	return string(role), err
}
