package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamscao/certchain/internal/config"
	"github.com/adamscao/certchain/internal/db/repository"
	"github.com/adamscao/certchain/internal/models"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View and prune audit logs",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit log entries, newest first",
	RunE:  listAudit,
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete audit log entries older than a given age",
	RunE:  pruneAudit,
}

var certificateCmd = &cobra.Command{
	Use:   "certificate",
	Short: "Inspect local certificate records",
}

var certificateStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count certificates per lifecycle status",
	RunE:  certificateStats,
}

var (
	auditActor         string
	auditAction        string
	auditCertificateID string
	auditLimit         int
	auditOlderThan     string
)

func init() {
	auditListCmd.Flags().StringVar(&auditActor, "actor", "", "Filter by actor")
	auditListCmd.Flags().StringVar(&auditAction, "action", "", "Filter by action (cert_issue, cert_revoke, cert_verify, stream_create)")
	auditListCmd.Flags().StringVar(&auditCertificateID, "certificate", "", "Filter by certificate id")
	auditListCmd.Flags().IntVarP(&auditLimit, "limit", "l", 50, "Maximum number of entries")

	auditPruneCmd.Flags().StringVar(&auditOlderThan, "older-than", "90d", "Age of the entries to delete")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditPruneCmd)
	certificateCmd.AddCommand(certificateStatsCmd)
}

func listAudit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := initDB(ctx); err != nil {
		return err
	}
	defer database.Close()

	logs, err := repository.NewAuditRepository(database.DB).List(ctx, auditActor, auditAction, auditCertificateID, auditLimit)
	if err != nil {
		return fmt.Errorf("failed to list audit logs: %w", err)
	}

	if len(logs) == 0 {
		fmt.Println("No audit logs found")
		return nil
	}

	fmt.Printf("%-20s %-14s %-20s %-8s %-18s %s\n", "Time", "Action", "Actor", "Success", "Certificate", "Error")
	fmt.Println("----------------------------------------------------------------------------------------------------")

	for _, l := range logs {
		success := "No"
		if l.Success {
			success = "Yes"
		}
		fmt.Printf("%-20s %-14s %-20s %-8s %-18s %s\n",
			l.Timestamp.Format("2006-01-02 15:04:05"),
			l.Action,
			l.Actor,
			success,
			shorten(l.CertificateID, 16),
			l.ErrorMsg,
		)
	}

	return nil
}

func pruneAudit(cmd *cobra.Command, args []string) error {
	age, err := config.ParseDuration(auditOlderThan)
	if err != nil || age <= 0 {
		return fmt.Errorf("invalid --older-than %q", auditOlderThan)
	}

	ctx := cmd.Context()
	if err := initDB(ctx); err != nil {
		return err
	}
	defer database.Close()

	deleted, err := repository.NewAuditRepository(database.DB).DeleteOld(ctx, time.Now().Add(-age))
	if err != nil {
		return err
	}

	fmt.Printf("Deleted %d audit log entries\n", deleted)
	return nil
}

func certificateStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := initDB(ctx); err != nil {
		return err
	}
	defer database.Close()

	counts, err := repository.NewCertRepository(database.DB).CountByStatus(ctx)
	if err != nil {
		return err
	}

	for _, status := range []models.Status{models.StatusDraft, models.StatusIssued, models.StatusRevoked} {
		fmt.Printf("%-8s %d\n", status, counts[status])
	}
	return nil
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
