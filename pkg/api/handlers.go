package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seqops/tatoor/pkg/api/store"
	"github.com/seqops/tatoor/pkg/report"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleConfig returns the public server configuration.
func (s *server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"auth": map[string]any{
			"anonymous_read": s.cfg.Auth.AnonymousRead,
		},
		"indexing": map[string]any{
			"enabled": s.cfg.Indexing != nil && s.cfg.Indexing.Enabled,
		},
	})
}

// auditEntry pairs an indexed report with its per-assay summaries.
type auditEntry struct {
	store.Report

	Summaries []store.AssaySummary `json:"summaries"`
}

// handleListAudits lists all indexed audit reports, newest first.
func (s *server) handleListAudits(w http.ResponseWriter, r *http.Request) {
	reports, err := s.store.ListReports(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing reports: " + err.Error()})

		return
	}

	entries := make([]auditEntry, 0, len(reports))

	for i := range reports {
		summaries, err := s.store.ListSummaries(
			r.Context(), reports[i].ReportID,
		)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError,
				errorResponse{"listing summaries: " + err.Error()})

			return
		}

		entries = append(entries, auditEntry{
			Report:    reports[i],
			Summaries: summaries,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"audits": entries,
	})
}

// handleGetAudit serves the full report payload for one audit.
func (s *server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "id")
	if reportID == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"audit id is required"})

		return
	}

	rep, err := s.store.GetReport(r.Context(), reportID)
	if err != nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"audit not found"})

		return
	}

	payload := rep.DirName + "/" + report.JSONFileName

	if err := s.files.ServeFile(w, r, payload); err != nil {
		s.log.WithError(err).
			WithField("report_id", reportID).
			Warn("Report payload missing on disk")

		writeJSON(w, http.StatusNotFound,
			errorResponse{"report payload not found"})
	}
}

// handleFileRequest serves raw files from the results directory.
func (s *server) handleFileRequest(w http.ResponseWriter, r *http.Request) {
	filePath := chi.URLParam(r, "*")
	if filePath == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"file path is required"})

		return
	}

	if err := s.files.ServeFile(w, r, filePath); err != nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"file not found"})
	}
}
