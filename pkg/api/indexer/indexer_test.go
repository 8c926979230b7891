package indexer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqops/tatoor/pkg/api/store"
	"github.com/seqops/tatoor/pkg/audit"
	"github.com/seqops/tatoor/pkg/compliance"
	"github.com/seqops/tatoor/pkg/config"
	"github.com/seqops/tatoor/pkg/interval"
)

func setupStore(t *testing.T) store.Store {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	st := store.NewStore(log, &config.APIDatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	})
	require.NoError(t, st.Start(context.Background()))
	t.Cleanup(func() { _ = st.Stop() })

	return st
}

func writeReportDir(
	t *testing.T, resultsDir, dirName string, result audit.Result,
) {
	t.Helper()

	dir := filepath.Join(resultsDir, dirName)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	data, err := json.Marshal(result)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "audit.json"), data, 0o644,
	))
}

func TestIndexerPass(t *testing.T) {
	st := setupStore(t)
	resultsDir := t.TempDir()

	result := audit.Result{
		ID:          "aa11bb22-0000-0000-0000-000000000001",
		GeneratedAt: time.Date(2022, 10, 1, 12, 0, 0, 0, time.UTC),
		Window: audit.Window{
			Start: time.Date(2022, 4, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2022, 10, 1, 0, 0, 0, 0, time.UTC),
		},
		TATStandardDays: 3,
		Runs:            make([]compliance.RunMetrics, 2),
		Summaries: []compliance.Summary{
			{
				AssayType:            "CEN",
				TotalRuns:            2,
				RelevantCount:        2,
				CompliantCount:       1,
				CompliancePercentage: 50,
				MeanUploadToRelease:  interval.Days{Value: 2.5, Valid: true},
			},
			{AssayType: "SNP"},
		},
	}

	writeReportDir(t, resultsDir, "20221001-120000-aa11bb22", result)

	// A directory without a payload is ignored.
	require.NoError(t, os.MkdirAll(
		filepath.Join(resultsDir, "scratch"), 0o755,
	))

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	idx, ok := NewIndexer(log, st, resultsDir, time.Minute, 2).(*indexer)
	require.True(t, ok)

	idx.runPass(context.Background())

	reports, err := st.ListReports(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 1)

	rep := reports[0]
	assert.Equal(t, result.ID, rep.ReportID)
	assert.Equal(t, "20221001-120000-aa11bb22", rep.DirName)
	assert.Equal(t, 2, rep.TotalRuns)
	assert.Equal(t, 3, rep.TATStandardDays)
	assert.True(t, rep.GeneratedAt.Equal(result.GeneratedAt))

	summaries, err := st.ListSummaries(context.Background(), result.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.NotNil(t, summaries[0].MeanUploadToRelease)
	assert.InDelta(t, 2.5, *summaries[0].MeanUploadToRelease, 1e-9)
	assert.Nil(t, summaries[1].MeanUploadToRelease)

	// A second pass over the same directory indexes nothing new.
	idx.runPass(context.Background())

	reports, err = st.ListReports(context.Background())
	require.NoError(t, err)
	assert.Len(t, reports, 1)
	assert.Nil(t, reports[0].ReindexedAt)
}

func TestIndexerSkipsMalformedPayload(t *testing.T) {
	st := setupStore(t)
	resultsDir := t.TempDir()

	dir := filepath.Join(resultsDir, "20221002-000000-deadbeef")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "audit.json"), []byte("not json"), 0o644,
	))

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	idx, ok := NewIndexer(log, st, resultsDir, time.Minute, 1).(*indexer)
	require.True(t, ok)

	idx.runPass(context.Background())

	reports, err := st.ListReports(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reports)
}
