package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/kiranshivaraju/totpvault/internal/apperr"
	"github.com/kiranshivaraju/totpvault/internal/auth"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// newRootCmd assembles the command tree. open is called by each leaf
// command that needs the database.
func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "vaultctl",
		Short:         "Operator tool for totpvault",
		Long:          "vaultctl manages a totpvault deployment. It reads the same environment\nvariables as the server (DATABASE_URL, REDIS_URL, JWT_SECRET, ...).",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newMigrateCmd(open),
		newAdminCmd(open),
		newUsersCmd(open),
		newSessionsCmd(open),
	)
	return root
}

// withBackend opens a backend for the duration of fn.
func withBackend(cmd *cobra.Command, open opener, fn func(ctx context.Context, b Backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := open(ctx)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(ctx, b)
}

// --- migrate ---

func newMigrateCmd(open opener) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(_ context.Context, b Backend) error {
				if err := b.MigrateUp(); err != nil {
					return err
				}
				return printVersion(cmd.OutOrStdout(), b)
			})
		},
	}

	var steps int
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			return withBackend(cmd, open, func(_ context.Context, b Backend) error {
				if err := b.MigrateDown(steps); err != nil {
					return err
				}
				return printVersion(cmd.OutOrStdout(), b)
			})
		},
	}
	downCmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(_ context.Context, b Backend) error {
				return printVersion(cmd.OutOrStdout(), b)
			})
		},
	}

	migrateCmd.AddCommand(upCmd, downCmd, versionCmd)
	return migrateCmd
}

func printVersion(w io.Writer, b Backend) error {
	version, dirty, err := b.MigrationVersion()
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(w, "schema version %d (%s)\n", version, state)
	return nil
}

// --- admin ---

func newAdminCmd(open opener) *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin account management",
	}

	var username, password, email string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b Backend) error {
				acc, err := b.CreateAdmin(ctx, auth.RegisterInput{
					Username: username,
					Password: password,
					Email:    email,
				})
				if err != nil {
					return describe(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", acc.Username, acc.ID)
				return nil
			})
		},
	}
	createCmd.Flags().StringVar(&username, "username", "", "admin username")
	createCmd.Flags().StringVar(&password, "password", "", "admin password")
	createCmd.Flags().StringVar(&email, "email", "", "admin email (optional)")
	_ = createCmd.MarkFlagRequired("username")
	_ = createCmd.MarkFlagRequired("password")

	adminCmd.AddCommand(createCmd)
	return adminCmd
}

// --- users ---

func newUsersCmd(open opener) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect accounts",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b Backend) error {
				accounts, err := b.ListAccounts(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(accounts) == 0 {
					fmt.Fprintln(out, "No accounts")
					return nil
				}

				table := tablewriter.NewWriter(out)
				table.SetHeader([]string{"ID", "Username", "Role", "Active", "Locked Until", "Logins", "Last Login"})
				table.SetAutoWrapText(false)
				for _, acc := range accounts {
					table.Append([]string{
						acc.ID.String(),
						acc.Username,
						acc.Role,
						strconv.FormatBool(acc.Active),
						formatTime(acc.LockedUntil),
						strconv.Itoa(acc.LoginCount),
						formatTime(acc.LastLoginAt),
					})
				}
				table.Render()
				return nil
			})
		},
	}

	usersCmd.AddCommand(listCmd)
	return usersCmd
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// --- sessions ---

func newSessionsCmd(open opener) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Vault session maintenance",
	}

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired vault unlock sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b Backend) error {
				n, err := b.PurgeSessions(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired sessions\n", n)
				return nil
			})
		},
	}

	sessionsCmd.AddCommand(purgeCmd)
	return sessionsCmd
}

// describe turns a domain error into a one-line operator message.
func describe(err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Kind != apperr.KindInternal {
		return errors.New(appErr.Message)
	}
	return err
}
