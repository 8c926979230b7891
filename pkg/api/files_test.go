package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportFileServer_IsAllowedPath(t *testing.T) {
	srv := &reportFileServer{
		log:  logrus.New(),
		root: "/data/results",
	}

	tests := []struct {
		name     string
		path     string
		expected bool
	}{
		{name: "valid nested path", path: "20221001-120000-3e0c9b6a/audit.json", expected: true},
		{name: "valid top-level path", path: "audit.csv", expected: true},
		{name: "empty path", path: "", expected: false},
		{name: "path traversal", path: "reports/../../etc/passwd", expected: false},
		{name: "dot dot only", path: "..", expected: false},
		{name: "absolute path", path: "/etc/passwd", expected: false},
		{name: "trailing slash", path: "reports/abc/", expected: false},
		{name: "double slash", path: "reports//abc", expected: false},
		{name: "dot segment", path: "reports/./abc", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, srv.isAllowedPath(tt.path))
		})
	}
}

func TestReportFileServer_ServeFile(t *testing.T) {
	// Create temp directory structure.
	root := t.TempDir()
	reportDir := filepath.Join(root, "20221001-120000-3e0c9b6a")
	require.NoError(t, os.MkdirAll(reportDir, 0o755))
	require.NoError(
		t, os.WriteFile(
			filepath.Join(reportDir, "audit.json"),
			[]byte(`{"ok":true}`), 0o644,
		),
	)

	srv := newReportFileServer(logrus.New(), root)

	t.Run("serves existing file", func(t *testing.T) {
		req := httptest.NewRequest(
			http.MethodGet, "/20221001-120000-3e0c9b6a/audit.json", nil,
		)
		rec := httptest.NewRecorder()

		err := srv.ServeFile(rec, req, "20221001-120000-3e0c9b6a/audit.json")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `{"ok":true}`)
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/nope.json", nil)
		rec := httptest.NewRecorder()

		err := srv.ServeFile(rec, req, "nope.json")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
		_ = rec // response not written
	})

	t.Run("rejects path traversal", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/../../etc/passwd", nil)
		rec := httptest.NewRecorder()

		err := srv.ServeFile(rec, req, "../../etc/passwd")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not allowed")
		_ = rec
	})
}
