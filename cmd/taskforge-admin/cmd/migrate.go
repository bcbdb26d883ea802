package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskforge/api/pkg/migrations"
)

var flagMigrationsDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or revert database schema migrations",
}

func init() {
	migrateCmd.PersistentFlags().StringVar(&flagMigrationsDir, "dir", "db/migrations", "Directory holding the *.up.sql / *.down.sql files")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func migrationRunner() (*migrations.Runner, *backend, error) {
	b, err := openBackend()
	if err != nil {
		return nil, nil, err
	}
	return migrations.NewRunner(b.db.DB, flagMigrationsDir), b, nil
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		runner, b, err := migrationRunner()
		if err != nil {
			return err
		}
		defer b.Close()

		applied, err := runner.Up(cmd.Context())
		if err != nil {
			return err
		}

		if printStructured(map[string]any{"applied": applied}) {
			return nil
		}
		if len(applied) == 0 {
			fmt.Println("Schema is up to date")
			return nil
		}
		for _, v := range applied {
			fmt.Printf("Applied %s\n", v)
		}
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		runner, b, err := migrationRunner()
		if err != nil {
			return err
		}
		defer b.Close()

		reverted, err := runner.Down(cmd.Context())
		if err != nil {
			return err
		}

		if printStructured(map[string]string{"reverted": reverted}) {
			return nil
		}
		if reverted == "" {
			fmt.Println("Nothing to revert")
			return nil
		}
		fmt.Printf("Reverted %s\n", reverted)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which migrations are applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		runner, b, err := migrationRunner()
		if err != nil {
			return err
		}
		defer b.Close()

		entries, err := runner.Status(cmd.Context())
		if err != nil {
			return err
		}

		if printStructured(entries) {
			return nil
		}

		t := newTable("VERSION", "STATE", "APPLIED AT")
		for _, e := range entries {
			state, at := "pending", "-"
			if e.Applied {
				state = "applied"
				at = shortTime(*e.AppliedAt)
			}
			t.AddRow(e.Version, state, at)
		}
		t.Flush()
		return nil
	},
}
