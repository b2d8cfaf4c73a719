package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamscao/certchain/internal/certs"
	"github.com/adamscao/certchain/internal/db/repository"
	"github.com/adamscao/certchain/internal/ledger"
	"github.com/adamscao/certchain/internal/models"
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Manage the certificate stream",
}

var streamCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the configured certificate stream on the ledger node",
	RunE:  createStream,
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the ledger",
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List certificate entries on the stream in append order",
	RunE:  listLedger,
}

var ledgerLimit int

func init() {
	ledgerListCmd.Flags().IntVarP(&ledgerLimit, "limit", "l", 0, "Maximum number of entries (0 for all)")

	streamCmd.AddCommand(streamCreateCmd)
	ledgerCmd.AddCommand(ledgerListCmd)
}

func createStream(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := initDB(ctx); err != nil {
		return err
	}
	defer database.Close()

	client, err := newLedgerClient()
	if err != nil {
		return err
	}
	defer client.Close()

	stream := cfg.Ledger.Stream
	err = client.CreateStream(ctx, stream)
	exists := ledger.IsStreamExists(err)
	if err != nil && !exists {
		recordAudit(cmd, models.ActionStreamSetup, stream, err)
		return fmt.Errorf("failed to create stream %q: %w", stream, err)
	}
	recordAudit(cmd, models.ActionStreamSetup, stream, nil)

	if exists {
		fmt.Printf("Stream %q already exists\n", stream)
		return nil
	}
	fmt.Printf("Stream %q created\n", stream)
	return nil
}

func listLedger(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	client, err := newLedgerClient()
	if err != nil {
		return err
	}
	defer client.Close()

	// Listing only reads the ledger, so no store is needed
	verifier := certs.NewVerifier(nil, client, cfg.Ledger.Stream, certs.WithLogger(logger))
	entries, err := verifier.ListLedger(cmd.Context(), ledgerLimit)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No entries found")
		return nil
	}

	fmt.Printf("\nTotal entries: %d\n\n", len(entries))
	fmt.Printf("%-6s %-64s %-8s %s\n", "Pos", "Certificate ID", "Status", "Student")
	fmt.Println("--------------------------------------------------------------------------------------------------")

	for _, entry := range entries {
		status, student := "?", "?"
		if p, err := certs.ParsePayload(entry.Payload); err == nil {
			status, student = string(p.Status), p.StudentName
		}
		fmt.Printf("%-6d %-64s %-8s %s\n", entry.Position, entry.Key, status, student)
	}

	return nil
}

func recordAudit(cmd *cobra.Command, action, detail string, cause error) {
	entry := &models.AuditLog{
		Action:   action,
		Actor:    "admin-cli",
		ClientIP: "local",
		Success:  cause == nil,
		Details:  detail,
	}
	if cause != nil {
		entry.ErrorMsg = cause.Error()
	}
	if err := repository.NewAuditRepository(database.DB).Create(cmd.Context(), entry); err != nil {
		logger.Warn("failed to write audit log", "action", action, "error", err)
	}
}
