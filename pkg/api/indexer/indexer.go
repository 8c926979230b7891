// Package indexer maintains a queryable database index of the audit
// report directories under the results root.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/seqops/tatoor/pkg/api/store"
	"github.com/seqops/tatoor/pkg/audit"
	"github.com/seqops/tatoor/pkg/interval"
	"github.com/seqops/tatoor/pkg/report"
)

// defaultConcurrency is the number of report directories indexed in
// parallel when no explicit concurrency value is configured.
const defaultConcurrency = 4

// Indexer is a background service that periodically scans the results
// directory and upserts indexed report data into the store.
type Indexer interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Indexer = (*indexer)(nil)

type indexer struct {
	log         logrus.FieldLogger
	store       store.Store
	resultsDir  string
	interval    time.Duration
	concurrency int
	done        chan struct{}
	wg          sync.WaitGroup
	dbMu        sync.Mutex // serializes DB writes to avoid SQLite contention
}

// NewIndexer creates a new background indexer over the results directory.
func NewIndexer(
	log logrus.FieldLogger,
	st store.Store,
	resultsDir string,
	scanInterval time.Duration,
	concurrency int,
) Indexer {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &indexer{
		log:         log.WithField("component", "indexer"),
		store:       st,
		resultsDir:  filepath.Clean(resultsDir),
		interval:    scanInterval,
		concurrency: concurrency,
		done:        make(chan struct{}),
	}
}

// Start launches a background goroutine that runs an immediate indexing
// pass and then ticks at the configured interval.
func (idx *indexer) Start(ctx context.Context) error {
	idx.log.WithFields(logrus.Fields{
		"results_dir": idx.resultsDir,
		"interval":    idx.interval.String(),
		"concurrency": idx.concurrency,
	}).Info("Starting indexer")

	idx.wg.Add(1)

	go func() {
		defer idx.wg.Done()

		// Run one pass immediately.
		idx.runPass(ctx)

		ticker := time.NewTicker(idx.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				idx.runPass(ctx)
			case <-idx.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop signals the indexer goroutine to stop and waits for it.
func (idx *indexer) Stop() error {
	close(idx.done)
	idx.wg.Wait()

	idx.log.Info("Indexer stopped")

	return nil
}

// runPass executes one full indexing pass over the results directory.
func (idx *indexer) runPass(ctx context.Context) {
	start := time.Now()

	if err := idx.indexResultsDir(ctx); err != nil {
		idx.log.WithError(err).Warn("Indexing pass failed")

		return
	}

	idx.log.WithField("duration", time.Since(start).Round(time.Millisecond)).
		Info("Indexing pass completed")
}

// indexResultsDir discovers report directories that are not yet indexed
// and processes them with a bounded worker pool.
func (idx *indexer) indexResultsDir(ctx context.Context) error {
	dirNames, err := idx.listReportDirs()
	if err != nil {
		return fmt.Errorf("listing report directories: %w", err)
	}

	indexedNames, err := idx.store.ListDirNames(ctx)
	if err != nil {
		return fmt.Errorf("listing indexed directories: %w", err)
	}

	indexedSet := make(map[string]struct{}, len(indexedNames))
	for _, name := range indexedNames {
		indexedSet[name] = struct{}{}
	}

	var tasks []string

	for _, name := range dirNames {
		if _, ok := indexedSet[name]; ok {
			continue
		}

		tasks = append(tasks, name)
	}

	idx.log.WithFields(logrus.Fields{
		"on_disk": len(dirNames),
		"indexed": len(indexedNames),
		"new":     len(tasks),
	}).Debug("Scanning results directory")

	if len(tasks) == 0 {
		return nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(idx.concurrency)

	var indexed atomic.Int64

	for _, dirName := range tasks {
		dirName := dirName

		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			case <-idx.done:
				return nil
			default:
			}

			if err := idx.indexReportDir(gCtx, dirName); err != nil {
				idx.log.WithError(err).
					WithField("dir", dirName).
					Warn("Failed to index report directory")

				return nil //nolint:nilerr // log and continue
			}

			idx.log.WithField("dir", dirName).Info("Indexed report")
			indexed.Add(1)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("indexing reports: %w", err)
	}

	if count := indexed.Load(); count > 0 {
		idx.log.WithField("count", count).Info("Report indexing complete")
	}

	return nil
}

// listReportDirs returns the names of result subdirectories that
// contain a report payload.
func (idx *indexer) listReportDirs() ([]string, error) {
	entries, err := os.ReadDir(idx.resultsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		payload := filepath.Join(
			idx.resultsDir, entry.Name(), report.JSONFileName,
		)
		if _, err := os.Stat(payload); err != nil {
			continue
		}

		names = append(names, entry.Name())
	}

	return names, nil
}

// indexReportDir reads the report payload of one directory, builds the
// index models, and upserts them into the store.
func (idx *indexer) indexReportDir(ctx context.Context, dirName string) error {
	payload := filepath.Join(idx.resultsDir, dirName, report.JSONFileName)

	data, err := os.ReadFile(payload)
	if err != nil {
		return fmt.Errorf("reading %s: %w", report.JSONFileName, err)
	}

	var result audit.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("parsing %s: %w", report.JSONFileName, err)
	}

	if result.ID == "" {
		return fmt.Errorf("report payload has no id")
	}

	rep := &store.Report{
		ReportID:        result.ID,
		DirName:         dirName,
		GeneratedAt:     result.GeneratedAt,
		WindowStart:     result.Window.Start,
		WindowEnd:       result.Window.End,
		TATStandardDays: result.TATStandardDays,
		TotalRuns:       len(result.Runs),
		IndexedAt:       time.Now().UTC(),
	}

	summaries := make([]store.AssaySummary, 0, len(result.Summaries))

	for _, s := range result.Summaries {
		summaries = append(summaries, store.AssaySummary{
			AssayType:             s.AssayType,
			TotalRuns:             s.TotalRuns,
			RelevantCount:         s.RelevantCount,
			CompliantCount:        s.CompliantCount,
			CompliancePercentage:  s.CompliancePercentage,
			MeanUploadToRelease:   daysPtr(s.MeanUploadToRelease),
			MedianUploadToRelease: daysPtr(s.MedianUploadToRel),
		})
	}

	// Serialize DB writes to avoid SQLite BUSY errors under concurrency.
	idx.dbMu.Lock()
	defer idx.dbMu.Unlock()

	if err := idx.store.UpsertReport(ctx, rep, summaries); err != nil {
		return fmt.Errorf("upserting report: %w", err)
	}

	return nil
}

// daysPtr converts an interval value to a nullable column value.
func daysPtr(d interval.Days) *float64 {
	if !d.Valid {
		return nil
	}

	v := d.Value

	return &v
}
