package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pkamenev/toolgate/internal/audit"
	"github.com/pkamenev/toolgate/internal/config"
	"github.com/pkamenev/toolgate/internal/keyring"
)

var (
	tailLines  int
	exportFrom uint64
	exportTo   uint64
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditCmd.AddCommand(auditExportCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
	auditExportCmd.Flags().Uint64Var(&exportFrom, "from", 0, "First sequence number (default 1)")
	auditExportCmd.Flags().Uint64Var(&exportTo, "to", 0, "Last sequence number (default end of chain)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit chain operations",
	Long:  "Commands for verifying and inspecting the HMAC hash-chained audit log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify integrity of the audit chain",
	Long:  "Recomputes every entry's MAC and checks sequence continuity.\nExits 0 if valid; prints the earliest failing position and exits 1 if not.",
	Args:  cobra.NoArgs,
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show recent audit entries",
	Args:  cobra.NoArgs,
	RunE:  runAuditTail,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a verified range of audit entries as JSONL",
	Long:  "Verifies the whole chain first; a chain that fails verification is not exported.",
	Args:  cobra.NoArgs,
	RunE:  runAuditExport,
}

func auditPaths() (path string, key []byte, err error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", nil, err
	}
	key, err = keyring.Load(cfg.KeyPath)
	if err != nil {
		return "", nil, fmt.Errorf("load audit key: %w", err)
	}
	return cfg.AuditPath, key, nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path, key, err := auditPaths()
	if err != nil {
		return err
	}

	result := audit.Verify(path, key)
	if result.Valid {
		fmt.Printf("OK: %d entries verified\n", result.Entries)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at seq %d (line %d): %s\n", result.Seq, result.Line, result.Error)
	os.Exit(1)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	path, _, err := auditPaths()
	if err != nil {
		return err
	}

	entries, err := audit.Tail(path, tailLines)
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}
	for _, e := range entries {
		out, _ := json.MarshalIndent(e, "", "  ")
		fmt.Println(string(out))
	}
	return nil
}

func runAuditExport(cmd *cobra.Command, args []string) error {
	path, key, err := auditPaths()
	if err != nil {
		return err
	}

	result := audit.Verify(path, key)
	if !result.Valid {
		return fmt.Errorf("audit chain invalid at seq %d: %s", result.Seq, result.Error)
	}

	entries, err := audit.ReadRange(path, exportFrom, exportTo)
	if err != nil {
		return fmt.Errorf("read audit range: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
