// Package audit drives a full turnaround-time audit: it reconciles the
// same sequencing run across the compute-project registry, the staging
// area and the ticketing system, assembles each run's timeline, then
// derives intervals and per-assay compliance.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/seqops/tatoor/pkg/compliance"
	"github.com/seqops/tatoor/pkg/compute"
	"github.com/seqops/tatoor/pkg/config"
	"github.com/seqops/tatoor/pkg/match"
	"github.com/seqops/tatoor/pkg/ticket"
	"github.com/seqops/tatoor/pkg/tracker"
)

const (
	projectPrefix = "002_"

	snpAssay = "SNP"

	logFilePattern = "*.lane.all.log"
)

// ComputeAPI is the slice of the compute platform the audit uses.
type ComputeAPI interface {
	FindProjects(ctx context.Context, namePattern string, createdAfter, createdBefore time.Time) ([]compute.Project, error)
	ListFolders(ctx context.Context, projectID string) ([]string, error)
	FindFiles(ctx context.Context, projectID, folder, namePattern string) ([]compute.File, error)
	FindJobs(ctx context.Context, projectID, namePattern, state string, createdAfter, createdBefore time.Time) ([]compute.Job, error)
}

// TicketAPI is the slice of the service desk the audit uses.
type TicketAPI interface {
	QueueIssues(ctx context.Context, serviceDeskID, queueID string) ([]ticket.Issue, error)
	Changelog(ctx context.Context, issueID string) (map[string]time.Time, error)
}

// Result is everything one audit invocation produced. It is the input
// to report rendering and the payload indexed by the API server.
type Result struct {
	ID              string    `json:"id"`
	GeneratedAt     time.Time `json:"generated_at"`
	Window          Window    `json:"window"`
	TATStandardDays int       `json:"tat_standard_days"`

	Runs      []compliance.RunMetrics `json:"runs"`
	Summaries []compliance.Summary    `json:"summaries"`

	Typos             []tracker.Typo            `json:"typos,omitempty"`
	CancelledTickets  []tracker.UnmatchedTicket `json:"cancelled_tickets,omitempty"`
	OpenTickets       []tracker.UnmatchedTicket `json:"open_tickets,omitempty"`
	ReleasedNoProject []tracker.UnmatchedTicket `json:"released_without_project,omitempty"`
}

// Auditor runs the audit passes sequentially over one window.
type Auditor struct {
	log      logrus.FieldLogger
	cfg      config.AuditConfig
	tickets  config.TicketConfig
	statuses tracker.Statuses
	compute  ComputeAPI
	desk     TicketAPI
	now      func() time.Time
}

// New creates an Auditor from the loaded configuration and the two
// platform clients.
func New(log logrus.FieldLogger, cfg *config.Config, computeAPI ComputeAPI, desk TicketAPI) *Auditor {
	return &Auditor{
		log:     log.WithField("component", "auditor"),
		cfg:     cfg.Audit,
		tickets: cfg.Ticket,
		statuses: tracker.Statuses{
			Released:  cfg.Audit.ReleasedStatus,
			Urgent:    cfg.Audit.UrgentStatus,
			OnHold:    cfg.Audit.OnHoldStatus,
			Cancelled: cfg.Audit.CancelledStatuses,
			Open:      cfg.Audit.OpenStatuses,
		},
		compute: computeAPI,
		desk:    desk,
		now:     time.Now,
	}
}

// Run executes the audit passes in order and classifies the outcome.
// Any external failure aborts the whole invocation; there is no
// partial-report mode.
func (a *Auditor) Run(ctx context.Context, window Window) (*Result, error) {
	a.log.WithField("window", window.String()).Info("Starting audit")

	registry := tracker.NewRegistry()

	if err := a.seedProjects(ctx, window, registry); err != nil {
		return nil, err
	}

	a.log.WithField("runs", registry.Len()).Info("Seeded runs from compute projects")

	projectFirstJobs, err := a.collectProjectFirstJobs(ctx, registry)
	if err != nil {
		return nil, err
	}

	typos, err := a.uploadPass(ctx, registry, projectFirstJobs)
	if err != nil {
		return nil, err
	}

	a.renamePass(registry)

	if err := a.firstJobPass(ctx, window, registry, projectFirstJobs); err != nil {
		return nil, err
	}

	merge, err := a.ticketPass(ctx, window, registry)
	if err != nil {
		return nil, err
	}

	typos = append(typos, merge.typos...)

	if err := a.changelogPass(ctx, registry); err != nil {
		return nil, err
	}

	if err := a.finalJobPass(ctx, registry); err != nil {
		return nil, err
	}

	now := a.now()
	runs := compliance.Evaluate(registry.Records(), now, a.statuses)
	summaries := a.classify(runs)

	a.log.WithFields(logrus.Fields{
		"runs":   len(runs),
		"assays": len(summaries),
		"typos":  len(typos),
	}).Info("Audit complete")

	return &Result{
		ID:                uuid.New().String(),
		GeneratedAt:       now,
		Window:            window,
		TATStandardDays:   a.cfg.TATStandardDays,
		Runs:              runs,
		Summaries:         summaries,
		Typos:             typos,
		CancelledTickets:  merge.cancelled,
		OpenTickets:       merge.open,
		ReleasedNoProject: merge.releasedNoProject,
	}, nil
}

// seedProjects creates one record per 002 project whose run-date
// prefix falls inside the window. Utility projects like vaf checks
// carry no run date and fall out here.
func (a *Auditor) seedProjects(ctx context.Context, window Window, registry *tracker.Registry) error {
	projects, err := a.compute.FindProjects(
		ctx, projectPrefix+"*", window.QueryStart(), window.QueryEnd(),
	)
	if err != nil {
		return fmt.Errorf("seeding runs: %w", err)
	}

	for _, project := range projects {
		runName, assayType, ok := parseProjectName(project.Name)
		if !ok || !a.auditedAssay(assayType) {
			continue
		}

		if !window.ContainsRunDate(runName) {
			a.log.WithField("run", runName).Debug("Run date outside audit window, skipping")

			continue
		}

		registry.Add(runName, &tracker.Record{
			AssayType: assayType,
			ProjectID: project.ID,
		})
	}

	return nil
}

// collectProjectFirstJobs finds the earliest job in each run's 002
// project. These times drive the reprocessed-upload fallback in the
// upload pass and serve as first-job candidates when no setup job is
// found.
func (a *Auditor) collectProjectFirstJobs(
	ctx context.Context, registry *tracker.Registry,
) (map[*tracker.Record]time.Time, error) {
	firstJobs := make(map[*tracker.Record]time.Time, registry.Len())

	for _, rec := range registry.Records() {
		jobs, err := a.compute.FindJobs(
			ctx, rec.ProjectID, "*", "", time.Time{}, time.Time{},
		)
		if err != nil {
			return nil, fmt.Errorf("listing jobs for run %s: %w", rec.RunName, err)
		}

		var earliest time.Time

		for _, job := range jobs {
			if earliest.IsZero() || job.Created.Before(earliest) {
				earliest = job.Created
			}
		}

		if !earliest.IsZero() {
			firstJobs[rec] = earliest
		}
	}

	return firstJobs, nil
}

// uploadPass matches staging folders to runs and observes each run's
// upload time. Non-SNP runs take the stream-upload log time under
// <run>/runs; a log landing at or after the run's first project job
// means the run was reprocessed and the real log is under processed/.
// SNP runs are uploaded by hand, so the earliest file in the folder is
// the upload time.
func (a *Auditor) uploadPass(
	ctx context.Context, registry *tracker.Registry,
	projectFirstJobs map[*tracker.Record]time.Time,
) ([]tracker.Typo, error) {
	folders, err := a.compute.ListFolders(ctx, a.cfg.StagingProjectID)
	if err != nil {
		return nil, fmt.Errorf("listing staging folders: %w", err)
	}

	var typos []tracker.Typo

	for _, folder := range folders {
		runName, distance, ok := match.Closest(folder, registry.Keys())
		if !ok {
			continue
		}

		rec, _ := registry.Get(runName)
		rec.FolderName = folder

		if distance > 0 {
			typos = append(typos, tracker.Typo{
				AssayType: rec.AssayType,
				RunName:   runName,
				Candidate: folder,
				Source:    tracker.TypoSourceFolder,
			})
		}

		if err := a.observeUpload(ctx, rec, folder, projectFirstJobs[rec]); err != nil {
			return nil, err
		}
	}

	return typos, nil
}

func (a *Auditor) observeUpload(
	ctx context.Context, rec *tracker.Record, folder string, projectFirstJob time.Time,
) error {
	if rec.AssayType == snpAssay {
		files, err := a.compute.FindFiles(ctx, a.cfg.StagingProjectID, "/"+folder, "*")
		if err != nil {
			return fmt.Errorf("listing files for run %s: %w", rec.RunName, err)
		}

		if earliest := earliestCreated(files); !earliest.IsZero() {
			rec.ObserveUpload(earliest)
		}

		return nil
	}

	logs, err := a.compute.FindFiles(
		ctx, a.cfg.StagingProjectID, "/"+folder+"/runs", logFilePattern,
	)
	if err != nil {
		return fmt.Errorf("finding upload log for run %s: %w", rec.RunName, err)
	}

	if len(logs) == 0 {
		return nil
	}

	logTime := logs[0].Created

	if !projectFirstJob.IsZero() && !logTime.Before(projectFirstJob) {
		reprocessed, err := a.compute.FindFiles(
			ctx, a.cfg.StagingProjectID, "/processed/"+folder+"/runs", logFilePattern,
		)
		if err != nil {
			return fmt.Errorf("finding reprocessed upload log for run %s: %w", rec.RunName, err)
		}

		if len(reprocessed) > 0 {
			rec.SetUploadTime(reprocessed[0].Created)

			return nil
		}
	}

	rec.ObserveUpload(logTime)

	return nil
}

// renamePass re-keys each run to its staging folder name. The folder
// name is authoritative over the name extracted from the 002 project.
func (a *Auditor) renamePass(registry *tracker.Registry) {
	for _, rec := range registry.Records() {
		if rec.FolderName != "" && rec.FolderName != rec.RunName {
			registry.Rekey(rec.RunName, rec.FolderName)
		}
	}
}

// firstJobPass observes each run's first pipeline job: the earliest
// setup job named for the run, falling back to the earliest job in the
// run's own project. Either way the job must start strictly after the
// upload, otherwise it belongs to an earlier attempt.
func (a *Auditor) firstJobPass(
	ctx context.Context, window Window, registry *tracker.Registry,
	projectFirstJobs map[*tracker.Record]time.Time,
) error {
	setupJobs, err := a.compute.FindJobs(
		ctx, a.cfg.StagingProjectID, a.cfg.SetupJobName, "",
		window.QueryStart(), window.QueryEnd(),
	)
	if err != nil {
		return fmt.Errorf("finding setup jobs: %w", err)
	}

	earliestSetup := make(map[string]time.Time, len(setupJobs))

	for _, job := range setupJobs {
		runName := runNameFromJob(job.Name)

		if current, ok := earliestSetup[runName]; !ok || job.Created.Before(current) {
			earliestSetup[runName] = job.Created
		}
	}

	for _, rec := range registry.Records() {
		if t, ok := earliestSetup[rec.RunName]; ok && rec.ObserveFirstJob(t) {
			continue
		}

		if t, ok := projectFirstJobs[rec]; ok {
			rec.ObserveFirstJob(t)
		}
	}

	return nil
}

// runNameFromJob extracts the run name from a setup job name like
// eggd_conductor-220901_A01303_0094_BHGNNSDRX2-1.
func runNameFromJob(jobName string) string {
	parts := strings.Split(jobName, "-")
	if len(parts) > 1 {
		return parts[1]
	}

	return jobName
}

// changelogPass fetches the status changelog for every matched,
// uncancelled ticket and records the last transition time per status.
func (a *Auditor) changelogPass(ctx context.Context, registry *tracker.Registry) error {
	for _, rec := range registry.Records() {
		if rec.TicketID == "" || a.statuses.IsCancelled(rec.Status) {
			continue
		}

		history, err := a.desk.Changelog(ctx, rec.TicketID)
		if err != nil {
			return fmt.Errorf("fetching changelog for run %s: %w", rec.RunName, err)
		}

		rec.ApplyChangelog(history, a.statuses.Released)
	}

	return nil
}

// finalJobPass observes when processing finished for each run, from
// the completion times of the assay's configured final pipeline job.
func (a *Auditor) finalJobPass(ctx context.Context, registry *tracker.Registry) error {
	for _, rec := range registry.Records() {
		jobName, ok := a.cfg.FinalJobs[rec.AssayType]
		if !ok {
			a.log.WithFields(logrus.Fields{
				"run":   rec.RunName,
				"assay": rec.AssayType,
			}).Warn("No final job configured for assay, skipping processing time")

			continue
		}

		jobs, err := a.compute.FindJobs(
			ctx, rec.ProjectID, "*"+jobName+"*", "done", time.Time{}, time.Time{},
		)
		if err != nil {
			return fmt.Errorf("finding final jobs for run %s: %w", rec.RunName, err)
		}

		stops := make([]time.Time, 0, len(jobs))

		for _, job := range jobs {
			if !job.Stopped.IsZero() {
				stops = append(stops, job.Stopped)
			}
		}

		rec.ObserveProcessingFinished(stops)
	}

	return nil
}

// classify groups the evaluated runs by assay and summarises each
// group, in the configured assay order.
func (a *Auditor) classify(runs []compliance.RunMetrics) []compliance.Summary {
	byAssay := make(map[string][]compliance.RunMetrics, len(a.cfg.AssayTypes))

	for _, run := range runs {
		byAssay[run.Record.AssayType] = append(byAssay[run.Record.AssayType], run)
	}

	summaries := make([]compliance.Summary, 0, len(a.cfg.AssayTypes))

	for _, assay := range a.cfg.AssayTypes {
		summaries = append(summaries, compliance.Classify(
			assay, byAssay[assay], a.cfg.TATStandardDays, a.statuses,
		))
	}

	return summaries
}

func (a *Auditor) auditedAssay(assayType string) bool {
	for _, assay := range a.cfg.AssayTypes {
		if assayType == assay {
			return true
		}
	}

	return false
}

// parseProjectName splits a 002 project name into run name and assay
// type. The assay is the segment after the last underscore.
func parseProjectName(name string) (runName, assayType string, ok bool) {
	if !strings.HasPrefix(name, projectPrefix) {
		return "", "", false
	}

	trimmed := strings.TrimPrefix(name, projectPrefix)

	idx := strings.LastIndex(trimmed, "_")
	if idx <= 0 {
		return "", "", false
	}

	return trimmed[:idx], trimmed[idx+1:], true
}

func earliestCreated(files []compute.File) time.Time {
	var earliest time.Time

	for _, file := range files {
		if earliest.IsZero() || file.Created.Before(earliest) {
			earliest = file.Created
		}
	}

	return earliest
}
