// Package cmd implements the taskforge-admin subcommands.
//
// The CLI works directly against the database and configuration, not the
// HTTP API: it exists for bootstrap and operations tasks that have no
// authenticated caller yet, like creating the first organization owner or
// minting a development token.
package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/taskforge/api/internal/config"
	"github.com/taskforge/api/internal/infra/postgres"
	"github.com/taskforge/api/pkg/logger"
)

var (
	version string

	// Global flags
	flagEnvFile string
	flagOutput  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "taskforge-admin",
	Short: "TaskForge operations CLI",
	Long: `taskforge-admin manages a TaskForge deployment directly through its
database and configuration.

Typical bootstrap flow:

  taskforge-admin org create-owner --email alice@example.com --org-name "Acme"
  taskforge-admin token issue --user <user-id> --org <org-id>

Connection settings come from the environment (or --env-file for local runs),
using the same variables as the API server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the CLI version from build flags.
func SetVersion(v string) {
	version = v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "Load environment from this file before reading config")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(orgCmd)
	rootCmd.AddCommand(invitationCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(tokenCmd)
}

// loadConfig reads the environment file when one is given, then loads the
// server configuration from the environment.
func loadConfig() (*config.Config, error) {
	if flagEnvFile != "" {
		if err := godotenv.Load(flagEnvFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", flagEnvFile, err)
		}
	} else {
		// A local .env is a convenience, not a requirement.
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// cliLogger keeps service log output away from command output unless the
// user asked for it.
func cliLogger() *logger.Logger {
	if flagVerbose {
		return logger.NewDevelopment()
	}
	return logger.New(logger.Config{Level: "error", Format: "text", Output: os.Stderr})
}

// backend bundles configuration, logging and the database handle for the
// commands that touch storage.
type backend struct {
	cfg *config.Config
	log *logger.Logger
	db  *postgres.DB
}

func openBackend() (*backend, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log := cliLogger()

	db, err := postgres.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return &backend{cfg: cfg, log: log, db: db}, nil
}

func (b *backend) Close() {
	if err := b.db.Close(); err != nil {
		b.log.Error("failed to close database", "error", err)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("taskforge-admin version %s\n", version)
		fmt.Printf("  Go:       %s\n", runtime.Version())
		fmt.Printf("  OS/Arch:  %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}
