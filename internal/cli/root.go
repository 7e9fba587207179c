package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "toolgate",
	Short: "Trust gateway between conversational agents and system tools",
	Long:  "Authenticates users, authorizes tool invocations by role, demands explicit confirmation for high-sensitivity actions, and records every invocation in a tamper-evident audit chain.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default ~/.toolgate/config.yaml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
