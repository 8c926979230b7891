package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqops/tatoor/pkg/api/store"
	"github.com/seqops/tatoor/pkg/config"
)

const testReportID = "3e0c9b6a-0000-0000-0000-000000000001"

// newTestServer builds a server with an in-memory store, one seeded
// user, and one indexed report whose payload exists on disk.
func newTestServer(t *testing.T, anonymousRead bool) *server {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	cfg := &config.APIConfig{
		Server: config.APIServerConfig{Listen: "127.0.0.1:0"},
		Auth: config.APIAuthConfig{
			AnonymousRead: anonymousRead,
			Users: []config.BasicAuthUser{
				{Username: "auditor", Password: "hunter2"},
			},
		},
		Database: config.APIDatabaseConfig{
			Driver: "sqlite",
			SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
		},
	}

	st := store.NewStore(log, &cfg.Database)
	require.NoError(t, st.Start(context.Background()))
	t.Cleanup(func() { _ = st.Stop() })

	require.NoError(t, st.SeedUsers(context.Background(), cfg.Auth.Users))

	resultsDir := t.TempDir()
	dirName := "20221001-120000-3e0c9b6a"
	require.NoError(t, os.MkdirAll(filepath.Join(resultsDir, dirName), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(resultsDir, dirName, "audit.json"),
		[]byte(`{"id":"`+testReportID+`"}`), 0o644,
	))

	require.NoError(t, st.UpsertReport(context.Background(), &store.Report{
		ReportID:        testReportID,
		DirName:         dirName,
		GeneratedAt:     time.Date(2022, 10, 1, 12, 0, 0, 0, time.UTC),
		TATStandardDays: 3,
		TotalRuns:       2,
		IndexedAt:       time.Now().UTC(),
	}, []store.AssaySummary{
		{AssayType: "CEN", TotalRuns: 2, RelevantCount: 1, CompliantCount: 1},
	}))

	return &server{
		log:        log,
		cfg:        cfg,
		resultsDir: resultsDir,
		store:      st,
		files:      newReportFileServer(log, resultsDir),
		done:       make(chan struct{}),
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, true)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHandleListAudits(t *testing.T) {
	srv := newTestServer(t, true)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audits", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Audits []struct {
			ID        string `json:"id"`
			DirName   string `json:"dir_name"`
			TotalRuns int    `json:"total_runs"`
			Summaries []struct {
				AssayType string `json:"assay_type"`
			} `json:"summaries"`
		} `json:"audits"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Len(t, resp.Audits, 1)
	assert.Equal(t, testReportID, resp.Audits[0].ID)
	assert.Equal(t, "20221001-120000-3e0c9b6a", resp.Audits[0].DirName)
	assert.Equal(t, 2, resp.Audits[0].TotalRuns)
	require.Len(t, resp.Audits[0].Summaries, 1)
	assert.Equal(t, "CEN", resp.Audits[0].Summaries[0].AssayType)
}

func TestHandleGetAudit(t *testing.T) {
	srv := newTestServer(t, true)
	router := srv.buildRouter()

	t.Run("serves payload", func(t *testing.T) {
		req := httptest.NewRequest(
			http.MethodGet, "/api/v1/audits/"+testReportID, nil,
		)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), testReportID)
	})

	t.Run("unknown id", func(t *testing.T) {
		req := httptest.NewRequest(
			http.MethodGet, "/api/v1/audits/does-not-exist", nil,
		)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleFileRequest(t *testing.T) {
	srv := newTestServer(t, true)
	router := srv.buildRouter()

	req := httptest.NewRequest(
		http.MethodGet,
		"/api/v1/files/20221001-120000-3e0c9b6a/audit.json", nil,
	)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), testReportID)
}

func TestRequireAuth(t *testing.T) {
	srv := newTestServer(t, false)
	router := srv.buildRouter()

	t.Run("rejects missing credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/audits", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	})

	t.Run("rejects wrong password", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/audits", nil)
		req.SetBasicAuth("auditor", "wrong")

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("accepts valid credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/audits", nil)
		req.SetBasicAuth("auditor", "hunter2")

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("health stays public", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
