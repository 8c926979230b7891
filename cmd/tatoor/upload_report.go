package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seqops/tatoor/pkg/upload"
)

var uploadReportDir string

var uploadReportCmd = &cobra.Command{
	Use:   "upload-report",
	Short: "Upload an audit report to remote storage",
	Long:  `Upload a local report directory to S3-compatible storage using the config file settings.`,
	RunE:  runUploadReport,
}

func init() {
	rootCmd.AddCommand(uploadReportCmd)
	uploadReportCmd.Flags().StringVar(&uploadReportDir, "report-dir", "",
		"Path to the report directory to upload")

	_ = uploadReportCmd.MarkFlagRequired("report-dir")
}

func runUploadReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Upload == nil {
		return fmt.Errorf("upload is not configured")
	}

	uploader, err := upload.NewS3Uploader(log, cfg.Upload)
	if err != nil {
		return fmt.Errorf("creating S3 uploader: %w", err)
	}

	ctx := cmd.Context()

	if err := uploader.Preflight(ctx); err != nil {
		return fmt.Errorf("S3 preflight check failed: %w", err)
	}

	log.WithField("dir", uploadReportDir).Info("Uploading report")

	if err := uploader.Upload(ctx, uploadReportDir); err != nil {
		return fmt.Errorf("uploading report: %w", err)
	}

	log.Info("Upload completed successfully")

	return nil
}
