package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/adamscao/certchain/internal/auth"
	"github.com/adamscao/certchain/internal/config"
	"github.com/adamscao/certchain/internal/db"
	"github.com/adamscao/certchain/internal/ledger"
	"github.com/adamscao/certchain/internal/logging"
)

var (
	configPath string
	cfg        *config.Config
	database   *db.DB
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "admin",
	Short:         "certchain administration tool",
	Long:          "Administrative tool for managing institutions, the ledger stream and audit logs",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Root flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/certchain/config.yaml", "Config file path")

	rootCmd.AddCommand(institutionCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(certificateCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger = logging.New(cfg.Logging, os.Stderr)
	return nil
}

func initDB(ctx context.Context) error {
	if err := loadConfig(); err != nil {
		return err
	}

	// Connect to database
	var err error
	database, err = db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.RunMigrations(ctx, database); err != nil {
		database.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func newLedgerClient() (*ledger.Client, error) {
	client, err := ledger.NewClient(ledger.FromConfig(cfg), ledger.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger client: %w", err)
	}
	return client, nil
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate a new admin token for admin.token",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := auth.GenerateAdminToken()
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}
