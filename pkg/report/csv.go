package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/seqops/tatoor/pkg/audit"
	"github.com/seqops/tatoor/pkg/compliance"
	"github.com/seqops/tatoor/pkg/interval"
)

const csvTimeLayout = "2006-01-02 15:04:05"

var csvHeader = []string{
	"assay_type",
	"run_name",
	"upload_time",
	"first_job_time",
	"processing_finished",
	"ticket_resolved",
	"ticket_key",
	"status",
	"upload_to_first_job",
	"processing_time",
	"processing_end_to_release",
	"upload_to_release",
	"urgents_time",
	"on_hold_time",
}

// writeCSV renders one row per run, sorted by assay type then run name
// (which sorts by run date, given the YYMMDD prefix). Cancelled
// tickets without a project are appended so the CSV accounts for every
// run the lab started. Rows sharing a run name keep only the last,
// matching the last-match-wins reconciliation.
func (w *Writer) writeCSV(dir string, result *audit.Result) error {
	rows := make([][]string, 0, len(result.Runs)+len(result.CancelledTickets))

	for _, run := range result.Runs {
		rows = append(rows, runRow(run))
	}

	for _, cancelled := range result.CancelledTickets {
		rows = append(rows, []string{
			cancelled.AssayType,
			cancelled.RunName,
			"", "", "",
			csvTime(cancelled.Resolved),
			"",
			cancelled.Status,
			"", "", "", "", "", "",
		})
	}

	rows = dedupeKeepLast(rows)

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i][0] != rows[j][0] {
			return rows[i][0] < rows[j][0]
		}

		return rows[i][1] < rows[j][1]
	})

	path := filepath.Join(dir, CSVFileName)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", CSVFileName, err)
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)

	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("writing csv rows: %w", err)
	}

	writer.Flush()

	if err := writer.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}

	return nil
}

func runRow(run compliance.RunMetrics) []string {
	rec := run.Record
	iv := run.Intervals

	return []string{
		rec.AssayType,
		rec.RunName,
		csvTime(rec.UploadTime),
		csvTime(rec.FirstJobTime),
		csvTime(rec.ProcessingFinished),
		csvTime(rec.StatusResolved),
		rec.TicketKey,
		rec.Status,
		csvDays(iv.UploadToFirstJob),
		csvDays(iv.ProcessingTime),
		csvDays(iv.ProcessingEndToRelease),
		csvDays(iv.UploadToRelease),
		csvDays(iv.UrgentsTime),
		csvDays(iv.OnHoldTime),
	}
}

// dedupeKeepLast drops earlier rows that share a run name with a later
// one.
func dedupeKeepLast(rows [][]string) [][]string {
	lastIdx := make(map[string]int, len(rows))
	for i, row := range rows {
		lastIdx[row[1]] = i
	}

	kept := make([][]string, 0, len(lastIdx))

	for i, row := range rows {
		if lastIdx[row[1]] == i {
			kept = append(kept, row)
		}
	}

	return kept
}

// csvTime renders a timestamp, empty when unknown.
func csvTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.Format(csvTimeLayout)
}

// csvDays renders a fractional-day interval, empty when undefined.
// Undefined is not zero: a blank cell means the interval could not be
// derived for this run.
func csvDays(d interval.Days) string {
	if !d.Valid {
		return ""
	}

	return fmt.Sprintf("%.3f", d.Value)
}
