package tracker

import "time"

// Typo source constants.
const (
	TypoSourceFolder = "staging-folder"
	TypoSourceTicket = "ticket"
)

// Typo records that a candidate identifier from a source differs from
// its matched canonical run name by one or two edits. These are
// surfaced in the report so the upstream naming can be fixed.
type Typo struct {
	AssayType string `json:"assay_type"`
	RunName   string `json:"run_name"`
	Candidate string `json:"candidate"`
	Source    string `json:"source"`
}

// UnmatchedTicket is ticket info with no counterpart in the run
// registry. EstimatedTAT is only populated for released tickets, from
// ticket creation to resolution, in fractional days.
type UnmatchedTicket struct {
	RunName      string    `json:"run_name"`
	AssayType    string    `json:"assay_type"`
	Created      time.Time `json:"created"`
	Status       string    `json:"status"`
	Resolved     time.Time `json:"resolved,omitzero"`
	EstimatedTAT float64   `json:"estimated_tat_days,omitempty"`
}

// Statuses names the ticket lifecycle statuses the audit cares about.
type Statuses struct {
	Released  string
	Urgent    string
	OnHold    string
	Cancelled []string
	Open      []string
}

// IsCancelled reports whether status is one of the cancelled statuses.
func (s Statuses) IsCancelled(status string) bool {
	for _, c := range s.Cancelled {
		if status == c {
			return true
		}
	}

	return false
}

// IsOpen reports whether status is one of the open (still being
// processed) statuses.
func (s Statuses) IsOpen(status string) bool {
	for _, o := range s.Open {
		if status == o {
			return true
		}
	}

	return false
}

// IsCancelledOrOpen reports whether status marks a run that is
// expected to be incomplete, and so excluded from review buckets.
func (s Statuses) IsCancelledOrOpen(status string) bool {
	return s.IsCancelled(status) || s.IsOpen(status)
}
