package api

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// reportFileServer serves report files directly from the results
// directory. Incoming request paths are resolved relative to that root.
type reportFileServer struct {
	log  logrus.FieldLogger
	root string
}

// newReportFileServer creates a file server rooted at the results directory.
func newReportFileServer(
	log logrus.FieldLogger,
	resultsDir string,
) *reportFileServer {
	return &reportFileServer{
		log:  log.WithField("component", "report-file-server"),
		root: filepath.Clean(resultsDir),
	}
}

// ServeFile locates filePath under the results root and serves it via
// http.ServeFile. Returns an error when the path is disallowed or
// not found.
func (f *reportFileServer) ServeFile(
	w http.ResponseWriter,
	r *http.Request,
	filePath string,
) error {
	if !f.isAllowedPath(filePath) {
		return fmt.Errorf("path %q is not allowed", filePath)
	}

	full := filepath.Join(f.root, filepath.FromSlash(filePath))

	// Defense-in-depth: ensure the resolved path stays under root.
	if !strings.HasPrefix(full, f.root+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes the results directory", filePath)
	}

	if _, err := os.Stat(full); err != nil {
		return fmt.Errorf("file %q not found: %w", filePath, err)
	}

	http.ServeFile(w, r, full)

	return nil
}

// isAllowedPath rejects empty, absolute, unclean, or traversal request paths.
func (f *reportFileServer) isAllowedPath(filePath string) bool {
	if filePath == "" {
		return false
	}

	if strings.Contains(filePath, "..") {
		return false
	}

	// Reject paths that start with a slash (absolute paths).
	if filepath.IsAbs(filePath) {
		return false
	}

	// Ensure the path is clean (no double slashes, trailing slashes, etc.).
	return path.Clean(filePath) == filePath
}
