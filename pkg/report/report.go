// Package report renders one audit result to disk: the full JSON
// payload, a per-run CSV and a human-readable markdown summary. All
// formatting lives here; the audit core never formats anything.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/seqops/tatoor/pkg/audit"
)

const (
	// JSONFileName holds the complete audit result.
	JSONFileName = "audit.json"

	// CSVFileName holds one row per audited run.
	CSVFileName = "audit.csv"

	// SummaryFileName is the human-readable compliance summary.
	SummaryFileName = "summary.md"

	dirTimestampLayout = "20060102-150405"
)

// Writer renders audit results into timestamped directories under the
// results dir.
type Writer struct {
	log        logrus.FieldLogger
	resultsDir string
}

// NewWriter creates a report writer rooted at resultsDir.
func NewWriter(log logrus.FieldLogger, resultsDir string) *Writer {
	return &Writer{
		log:        log.WithField("component", "report"),
		resultsDir: resultsDir,
	}
}

// Write renders the result and returns the report directory path. The
// directory name combines the generation time with the audit ID so
// repeated runs in the same second cannot collide.
func (w *Writer) Write(result *audit.Result) (string, error) {
	dirName := fmt.Sprintf(
		"%s-%s", result.GeneratedAt.Format(dirTimestampLayout), shortID(result.ID),
	)

	dir := filepath.Join(w.resultsDir, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}

	if err := w.writeJSON(dir, result); err != nil {
		return "", err
	}

	if err := w.writeCSV(dir, result); err != nil {
		return "", err
	}

	if err := w.writeSummary(dir, result); err != nil {
		return "", err
	}

	w.log.WithField("dir", dir).Info("Report written")

	return dir, nil
}

func (w *Writer) writeJSON(dir string, result *audit.Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling audit result: %w", err)
	}

	path := filepath.Join(dir, JSONFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", JSONFileName, err)
	}

	return nil
}

func (w *Writer) writeSummary(dir string, result *audit.Result) error {
	path := filepath.Join(dir, SummaryFileName)
	if err := os.WriteFile(path, []byte(Summary(result)), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", SummaryFileName, err)
	}

	return nil
}

// shortID is the first segment of the audit UUID, enough to
// disambiguate directory names.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}

	return id
}
