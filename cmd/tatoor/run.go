package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/seqops/tatoor/pkg/audit"
	"github.com/seqops/tatoor/pkg/compute"
	"github.com/seqops/tatoor/pkg/report"
	"github.com/seqops/tatoor/pkg/ticket"
)

var (
	auditStart string
	auditEnd   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a turnaround-time audit",
	Long: `Audit every sequencing run in the window and write the report
(audit.json, audit.csv, summary.md) to the results directory.`,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&auditStart, "start", "",
		"audit window start, YYYY-MM-DD (requires --end)")
	runCmd.Flags().StringVar(&auditEnd, "end", "",
		"audit window end, YYYY-MM-DD (requires --start)")
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	window, err := audit.ResolveWindow(
		auditStart, auditEnd, cfg.Audit.DefaultMonths, time.Now(),
	)
	if err != nil {
		return err
	}

	computeToken, err := cfg.ComputeToken()
	if err != nil {
		return err
	}

	ticketToken, err := cfg.TicketToken()
	if err != nil {
		return err
	}

	// Setup context with signal handling.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	computeClient := compute.NewClient(
		log, cfg.Compute.BaseURL, computeToken, cfg.Compute.RequestsPerSecond,
	)

	if err := computeClient.Whoami(ctx); err != nil {
		return err
	}

	desk := ticket.NewClient(log, cfg.Ticket.BaseURL, cfg.Ticket.Email, ticketToken)

	auditor := audit.New(log, cfg, computeClient, desk)

	result, err := auditor.Run(ctx, window)
	if err != nil {
		return fmt.Errorf("running audit: %w", err)
	}

	dir, err := report.NewWriter(log, cfg.Audit.ResultsDir).Write(result)
	if err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	log.WithField("dir", dir).Info("Audit report written")

	return nil
}
