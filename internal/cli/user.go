package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pkamenev/toolgate/internal/config"
	"github.com/pkamenev/toolgate/internal/identity"
	"github.com/pkamenev/toolgate/internal/model"
)

var userAddRole string

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userRoleCmd)
	userCmd.AddCommand(userPasswdCmd)
	userCmd.AddCommand(userListCmd)
	userAddCmd.Flags().StringVar(&userAddRole, "role", "viewer", "Role to assign (viewer, operator, admin)")
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users and roles",
}

var userAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Create a user (prompts for password)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := openIdentity()
		if err != nil {
			return err
		}
		defer ids.Close()

		password, err := promptPassword(true)
		if err != nil {
			return err
		}
		if err := ids.CreateUser(cmd.Context(), args[0], password, model.Role(userAddRole)); err != nil {
			return err
		}
		fmt.Printf("user %s created with role %s\n", args[0], userAddRole)
		return nil
	},
}

var userRoleCmd = &cobra.Command{
	Use:   "role <id> <role>",
	Short: "Change a user's role (applies to live sessions on next use)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := openIdentity()
		if err != nil {
			return err
		}
		defer ids.Close()

		if err := ids.SetRole(cmd.Context(), args[0], model.Role(args[1])); err != nil {
			return err
		}
		fmt.Printf("user %s is now %s\n", args[0], args[1])
		return nil
	},
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd <id>",
	Short: "Reset a user's password (also clears any lockout)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := openIdentity()
		if err != nil {
			return err
		}
		defer ids.Close()

		password, err := promptPassword(true)
		if err != nil {
			return err
		}
		if err := ids.SetPassword(cmd.Context(), args[0], password); err != nil {
			return err
		}
		fmt.Printf("password updated for %s\n", args[0])
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := openIdentity()
		if err != nil {
			return err
		}
		defer ids.Close()

		users, err := ids.ListUsers(cmd.Context())
		if err != nil {
			return err
		}
		if len(users) == 0 {
			fmt.Println("no users")
			return nil
		}
		for _, u := range users {
			fmt.Printf("%-20s %-10s created %s\n", u.ID, u.Role, u.CreatedAt.Format("2006-01-02"))
		}
		return nil
	},
}

func openIdentity() (*identity.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return identity.Open(cfg.IdentityPath, identity.LockoutPolicy{
		Threshold: cfg.Lockout.Threshold,
		Window:    cfg.Lockout.Window,
	})
}

// promptPassword reads a password from the terminal without echo. With
// confirm set, it asks twice and insists the two match.
func promptPassword(confirm bool) (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if strings.TrimSpace(string(first)) == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	if confirm {
		fmt.Fprint(os.Stderr, "Repeat password: ")
		second, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		if string(first) != string(second) {
			return "", fmt.Errorf("passwords do not match")
		}
	}
	return string(first), nil
}
