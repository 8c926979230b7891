// Package interval derives the named turnaround-time intervals for a
// run record. Every interval is gated on the fields and lifecycle
// status it needs; a failed gate yields an undefined value, which is
// distinct from zero. Negative values are emitted as-is; they are
// data-quality signals the classifier inspects, never clamped.
package interval

import (
	"encoding/json"
	"time"

	"github.com/seqops/tatoor/pkg/tracker"
)

const hoursPerDay = 24

// Days is a duration in fractional days that distinguishes undefined
// from zero.
type Days struct {
	Value float64
	Valid bool
}

// Defined returns a defined Days value.
func Defined(v float64) Days {
	return Days{Value: v, Valid: true}
}

// MarshalJSON encodes an undefined value as null.
func (d Days) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte("null"), nil
	}

	return json.Marshal(d.Value)
}

// UnmarshalJSON decodes null as undefined.
func (d *Days) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Days{}

		return nil
	}

	d.Valid = true

	return json.Unmarshal(data, &d.Value)
}

// between returns the interval from -> to in fractional days, or an
// undefined value when either endpoint is missing.
func between(from, to time.Time) Days {
	if from.IsZero() || to.IsZero() {
		return Days{}
	}

	return Defined(to.Sub(from).Hours() / hoursPerDay)
}

// Set contains the derived intervals for one run.
type Set struct {
	UploadToFirstJob       Days `json:"upload_to_first_job"`
	ProcessingTime         Days `json:"processing_time"`
	ProcessingEndToRelease Days `json:"processing_end_to_release"`
	UploadToRelease        Days `json:"upload_to_release"`
	UrgentsTime            Days `json:"urgents_time"`
	OnHoldTime             Days `json:"on_hold_time"`
}

// Derive computes the interval set for rec. It is a pure function of
// the record, the current time and the configured status names:
// deriving twice with identical inputs yields identical outputs.
func Derive(rec *tracker.Record, now time.Time, statuses tracker.Statuses) Set {
	var set Set

	set.UploadToFirstJob = between(rec.UploadTime, rec.FirstJobTime)
	set.ProcessingTime = between(rec.FirstJobTime, rec.ProcessingFinished)

	if rec.Status == statuses.Released {
		set.ProcessingEndToRelease = between(rec.ProcessingFinished, rec.StatusResolved)

		// The overall TAT is only meaningful when every stage is
		// present and physically ordered.
		if nonNegative(set.UploadToFirstJob) &&
			nonNegative(set.ProcessingTime) &&
			nonNegative(set.ProcessingEndToRelease) {
			set.UploadToRelease = between(rec.UploadTime, rec.StatusResolved)
		}
	}

	if rec.Status == statuses.Urgent {
		set.UrgentsTime = between(rec.ProcessingFinished, now)
	}

	if rec.Status == statuses.OnHold {
		set.OnHoldTime = between(rec.LastProcessingStep(), now)
	}

	return set
}

// nonNegative reports whether d is defined and >= 0.
func nonNegative(d Days) bool {
	return d.Valid && d.Value >= 0
}
