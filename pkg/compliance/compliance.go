// Package compliance scores audited runs against the configured
// turnaround-time standard and flags runs that need manual review.
package compliance

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/seqops/tatoor/pkg/interval"
	"github.com/seqops/tatoor/pkg/tracker"
)

// RunMetrics pairs a run record with its derived intervals.
type RunMetrics struct {
	Record    *tracker.Record `json:"record"`
	Intervals interval.Set    `json:"intervals"`
}

// Evaluate derives the interval set for every record.
func Evaluate(records []*tracker.Record, now time.Time, statuses tracker.Statuses) []RunMetrics {
	runs := make([]RunMetrics, 0, len(records))
	for _, rec := range records {
		runs = append(runs, RunMetrics{
			Record:    rec,
			Intervals: interval.Derive(rec, now, statuses),
		})
	}

	return runs
}

// ReviewBuckets lists runs that need manual review, by issue. A run
// may appear in several buckets. Runs in a cancelled or open status
// are excluded; those are expected to be incomplete.
type ReviewBuckets struct {
	NoTicketFound        []string `json:"no_ticket_found,omitempty"`
	FirstJobBeforeUpload []string `json:"first_job_before_upload,omitempty"`
	NoUploadFound        []string `json:"no_upload_found,omitempty"`
	NoFirstJobFound      []string `json:"no_first_job_found,omitempty"`
	NoFinalJobFound      []string `json:"no_final_job_found,omitempty"`
}

// Empty reports whether no run was flagged.
func (b ReviewBuckets) Empty() bool {
	return len(b.NoTicketFound) == 0 &&
		len(b.FirstJobBeforeUpload) == 0 &&
		len(b.NoUploadFound) == 0 &&
		len(b.NoFirstJobFound) == 0 &&
		len(b.NoFinalJobFound) == 0
}

// Summary holds the per-assay compliance figures and stage averages.
type Summary struct {
	AssayType            string        `json:"assay_type"`
	TotalRuns            int           `json:"total_runs"`
	RelevantCount        int           `json:"relevant_count"`
	CompliantCount       int           `json:"compliant_count"`
	CompliancePercentage float64       `json:"compliance_percentage"`
	ComplianceFraction   string        `json:"compliance_fraction"`
	MeanUploadToRelease  interval.Days `json:"mean_upload_to_release"`
	MedianUploadToRel    interval.Days `json:"median_upload_to_release"`
	MeanUploadToFirstJob interval.Days `json:"mean_upload_to_first_job"`
	MeanProcessingTime   interval.Days `json:"mean_processing_time"`
	MeanProcEndToRelease interval.Days `json:"mean_processing_end_to_release"`
	Review               ReviewBuckets `json:"review"`
}

// Classify scores the runs of one assay type against the TAT standard
// (in days). A run is relevant when its three core stage intervals are
// all defined and non-negative and it has either a defined overall TAT
// or a defined urgents age. A relevant run is compliant when its
// overall TAT is within the standard. With no relevant runs the
// percentage is 0 and the fraction "(0/0)", never a division by zero.
func Classify(assayType string, runs []RunMetrics, standard int, statuses tracker.Statuses) Summary {
	summary := Summary{
		AssayType: assayType,
		TotalRuns: len(runs),
	}

	for _, run := range runs {
		iv := run.Intervals

		coreOK := nonNegative(iv.UploadToFirstJob) &&
			nonNegative(iv.ProcessingTime) &&
			nonNegative(iv.ProcessingEndToRelease)

		if coreOK && (iv.UploadToRelease.Valid || iv.UrgentsTime.Valid) {
			summary.RelevantCount++

			if iv.UploadToRelease.Valid && iv.UploadToRelease.Value <= float64(standard) {
				summary.CompliantCount++
			}
		}
	}

	if summary.RelevantCount > 0 {
		pct := float64(summary.CompliantCount) / float64(summary.RelevantCount) * 100
		summary.CompliancePercentage = math.Round(pct*100) / 100
	}

	summary.ComplianceFraction = fmt.Sprintf(
		"(%d/%d)", summary.CompliantCount, summary.RelevantCount,
	)

	summary.MeanUploadToRelease = mean(collect(runs, func(s interval.Set) interval.Days {
		return s.UploadToRelease
	}))
	summary.MedianUploadToRel = median(collect(runs, func(s interval.Set) interval.Days {
		return s.UploadToRelease
	}))
	summary.MeanUploadToFirstJob = mean(collect(runs, func(s interval.Set) interval.Days {
		return s.UploadToFirstJob
	}))
	summary.MeanProcessingTime = mean(collect(runs, func(s interval.Set) interval.Days {
		return s.ProcessingTime
	}))
	summary.MeanProcEndToRelease = mean(collect(runs, func(s interval.Set) interval.Days {
		return s.ProcessingEndToRelease
	}))

	summary.Review = review(runs, statuses)

	return summary
}

// review builds the manual-review buckets for the given runs.
func review(runs []RunMetrics, statuses tracker.Statuses) ReviewBuckets {
	var buckets ReviewBuckets

	for _, run := range runs {
		rec := run.Record

		if rec.Status == "" {
			buckets.NoTicketFound = append(buckets.NoTicketFound, rec.RunName)
		}

		if statuses.IsCancelledOrOpen(rec.Status) {
			continue
		}

		if run.Intervals.UploadToFirstJob.Valid && run.Intervals.UploadToFirstJob.Value < 0 {
			buckets.FirstJobBeforeUpload = append(buckets.FirstJobBeforeUpload, rec.RunName)
		}

		if rec.UploadTime.IsZero() {
			buckets.NoUploadFound = append(buckets.NoUploadFound, rec.RunName)
		}

		if rec.FirstJobTime.IsZero() {
			buckets.NoFirstJobFound = append(buckets.NoFirstJobFound, rec.RunName)
		}

		if rec.ProcessingFinished.IsZero() {
			buckets.NoFinalJobFound = append(buckets.NoFinalJobFound, rec.RunName)
		}
	}

	return buckets
}

// collect returns the defined values of one interval across runs.
func collect(runs []RunMetrics, pick func(interval.Set) interval.Days) []float64 {
	values := make([]float64, 0, len(runs))

	for _, run := range runs {
		if d := pick(run.Intervals); d.Valid {
			values = append(values, d.Value)
		}
	}

	return values
}

// mean averages the defined values; undefined when there are none.
func mean(values []float64) interval.Days {
	if len(values) == 0 {
		return interval.Days{}
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	return interval.Defined(sum / float64(len(values)))
}

// median returns the middle defined value; undefined when there are
// none.
func median(values []float64) interval.Days {
	if len(values) == 0 {
		return interval.Days{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return interval.Defined((sorted[mid-1] + sorted[mid]) / 2)
	}

	return interval.Defined(sorted[mid])
}

// nonNegative reports whether d is defined and >= 0.
func nonNegative(d interval.Days) bool {
	return d.Valid && d.Value >= 0
}
