// Package tracker holds the canonical run registry built up during an
// audit: one record per sequencing run, keyed by run name, enriched
// incrementally from the compute platform, the staging area and the
// ticketing system.
package tracker

import "time"

// Record is the audit state for a single sequencing run. Timestamp
// fields use the zero time to mean "not observed"; an observation is
// never erased by a later missing one.
type Record struct {
	RunName            string               `json:"run_name"`
	AssayType          string               `json:"assay_type"`
	ProjectID          string               `json:"project_id,omitempty"`
	FolderName         string               `json:"folder_name,omitempty"`
	UploadTime         time.Time            `json:"upload_time,omitzero"`
	FirstJobTime       time.Time            `json:"first_job_time,omitzero"`
	ProcessingFinished time.Time            `json:"processing_finished,omitzero"`
	TicketKey          string               `json:"ticket_key,omitempty"`
	TicketID           string               `json:"ticket_id,omitempty"`
	Status             string               `json:"status,omitempty"`
	StatusResolved     time.Time            `json:"status_resolved,omitzero"`
	StatusHistory      map[string]time.Time `json:"status_history,omitempty"`
}

// ObserveUpload records t as the run's upload time. The observation is
// rejected when t is zero, when an upload time is already known, or
// when a known first-job time contradicts it (data must be uploaded
// strictly before the first job starts). A rejected observation leaves
// the record untouched so the caller can consult the fallback staging
// location.
func (r *Record) ObserveUpload(t time.Time) bool {
	if t.IsZero() || !r.UploadTime.IsZero() {
		return false
	}

	if !r.FirstJobTime.IsZero() && !t.Before(r.FirstJobTime) {
		return false
	}

	r.UploadTime = t

	return true
}

// SetUploadTime records t unconditionally. Used for the reprocessed
// staging fallback: when the primary log post-dates the first job, the
// artifact in the secondary location is authoritative.
func (r *Record) SetUploadTime(t time.Time) bool {
	if t.IsZero() {
		return false
	}

	r.UploadTime = t

	return true
}

// ObserveFirstJob records t as the run's first pipeline job time.
// Candidate job sources are tried in a fixed priority order, so the
// first accepted observation wins; a candidate is only accepted when
// it falls strictly after the known upload time.
func (r *Record) ObserveFirstJob(t time.Time) bool {
	if t.IsZero() || !r.FirstJobTime.IsZero() {
		return false
	}

	if r.UploadTime.IsZero() || !t.After(r.UploadTime) {
		return false
	}

	r.FirstJobTime = t

	return true
}

// ObserveProcessingFinished selects the run's processing-finished time
// from the stop times of the final pipeline jobs. When the ticket is
// already resolved, only jobs finishing at or before the resolution
// time qualify, excluding later re-analysis jobs; otherwise the latest
// stop time seen so far is taken.
func (r *Record) ObserveProcessingFinished(stopTimes []time.Time) bool {
	var latest time.Time

	for _, t := range stopTimes {
		if t.IsZero() {
			continue
		}

		if !r.StatusResolved.IsZero() && t.After(r.StatusResolved) {
			continue
		}

		if t.After(latest) {
			latest = t
		}
	}

	if latest.IsZero() {
		return false
	}

	r.ProcessingFinished = latest

	return true
}

// ApplyTicket attaches the matched ticket's current status and
// references to the record.
func (r *Record) ApplyTicket(key, id, status string) {
	if key != "" {
		r.TicketKey = key
	}

	if id != "" {
		r.TicketID = id
	}

	if status != "" {
		r.Status = status
	}
}

// ApplyChangelog attaches the ticket's status transition history. Each
// entry is the last time the ticket transitioned into that status. The
// resolved time is taken from the transition into releasedStatus, if
// present.
func (r *Record) ApplyChangelog(history map[string]time.Time, releasedStatus string) {
	if len(history) == 0 {
		return
	}

	r.StatusHistory = history

	if resolved, ok := history[releasedStatus]; ok {
		r.StatusResolved = resolved
	}
}

// LastProcessingStep returns the most recent known timestamp among
// upload, first job and processing finished, in that priority order.
// Used to age runs that are on hold.
func (r *Record) LastProcessingStep() time.Time {
	last := r.UploadTime

	if !r.FirstJobTime.IsZero() {
		last = r.FirstJobTime
	}

	if !r.ProcessingFinished.IsZero() {
		last = r.ProcessingFinished
	}

	return last
}
