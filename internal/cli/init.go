package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pkamenev/toolgate/internal/config"
	"github.com/pkamenev/toolgate/internal/keyring"
	"github.com/pkamenev/toolgate/internal/scope"
)

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files (the audit key is never overwritten)")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap the toolgate data directory",
	Long: `Creates the data directory with a default config, default scope rules,
and the audit chain key. Existing files are left alone unless --force
is given; the audit key is never overwritten.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	var created []string

	cfgPath := filepath.Join(cfg.DataDir, "config.yaml")
	if wrote, err := writeIfMissing(cfgPath, config.DefaultYAML()); err != nil {
		return err
	} else if wrote {
		created = append(created, cfgPath)
	}

	scopeYAML, err := defaultScopeYAML()
	if err != nil {
		return fmt.Errorf("generate default scope rules: %w", err)
	}
	if wrote, err := writeIfMissing(cfg.ScopePath, scopeYAML); err != nil {
		return err
	} else if wrote {
		created = append(created, cfg.ScopePath)
	}

	if _, err := os.Stat(cfg.KeyPath); os.IsNotExist(err) {
		if _, err := keyring.LoadOrCreate(cfg.KeyPath); err != nil {
			return fmt.Errorf("create audit key: %w", err)
		}
		created = append(created, cfg.KeyPath)
	}

	fmt.Println("toolgate init complete.")
	fmt.Println()
	if len(created) > 0 {
		fmt.Println("Created:")
		for _, path := range created {
			fmt.Printf("  %s\n", path)
		}
		fmt.Println()
	} else {
		fmt.Println("All files already exist (use --force to overwrite config and scope).")
		fmt.Println()
	}
	fmt.Println("Next steps:")
	fmt.Println("  toolgate user add <id> --role operator")
	fmt.Println("  toolgate serve")

	return nil
}

// writeIfMissing writes content to path unless it exists, or always with --force.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

// defaultScopeYAML generates a commented default scope.yaml.
func defaultScopeYAML() (string, error) {
	data, err := yaml.Marshal(scope.DefaultRules)
	if err != nil {
		return "", err
	}
	header := "# toolgate scope rules — what tools may touch.\n" +
		"# allowed_paths: filesystem roots readable by file tools.\n" +
		"# allowed_apps: applications that launch_app may start.\n" +
		"# blocked_commands: substrings that refuse an elevation command outright.\n" +
		"#\n" +
		"# Edits are hot-reloaded while the server runs.\n"
	return header + string(data), nil
}
