package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/seqops/tatoor/pkg/match"
	"github.com/seqops/tatoor/pkg/ticket"
	"github.com/seqops/tatoor/pkg/tracker"
)

// mergeOutcome collects everything the ticket pass produces besides
// the record mutations: name typos and the tickets with no run in the
// registry.
type mergeOutcome struct {
	typos             []tracker.Typo
	cancelled         []tracker.UnmatchedTicket
	open              []tracker.UnmatchedTicket
	releasedNoProject []tracker.UnmatchedTicket
}

// ticketPass merges every configured queue into the registry. A
// ticket's summary is the run name; the reconciler absorbs up to two
// character edits. Tickets with no matching run are routed to the side
// lists when they belong to an audited assay and were created inside
// the window.
func (a *Auditor) ticketPass(
	ctx context.Context, window Window, registry *tracker.Registry,
) (*mergeOutcome, error) {
	outcome := &mergeOutcome{}

	for _, queueID := range a.tickets.QueueIDs {
		issues, err := a.desk.QueueIssues(ctx, a.tickets.ServiceDeskID, queueID)
		if err != nil {
			return nil, fmt.Errorf("fetching ticket queue %s: %w", queueID, err)
		}

		for _, issue := range issues {
			a.mergeIssue(ctx, window, registry, issue, outcome)
		}
	}

	return outcome, nil
}

func (a *Auditor) mergeIssue(
	ctx context.Context, window Window, registry *tracker.Registry,
	issue ticket.Issue, outcome *mergeOutcome,
) {
	assayType := normalizeAssay(issue.Assay)

	runName, distance, ok := match.Closest(issue.Summary, registry.Keys())
	if !ok {
		a.routeUnmatched(ctx, window, issue, assayType, outcome)

		return
	}

	rec, _ := registry.Get(runName)

	if distance > 0 {
		outcome.typos = append(outcome.typos, tracker.Typo{
			AssayType: rec.AssayType,
			RunName:   runName,
			Candidate: issue.Summary,
			Source:    tracker.TypoSourceTicket,
		})
	}

	rec.ApplyTicket(issue.Key, issue.ID, issue.Status)

	// A matched but cancelled run still appears in the cancelled list
	// so the report explains why it has no turnaround time.
	if a.statuses.IsCancelled(issue.Status) {
		outcome.cancelled = append(outcome.cancelled, tracker.UnmatchedTicket{
			RunName:   issue.Summary,
			AssayType: assayType,
			Created:   issue.Created,
			Status:    issue.Status,
		})
	}
}

// routeUnmatched sorts a ticket with no run in the registry into the
// cancelled, open or released-without-project list.
func (a *Auditor) routeUnmatched(
	ctx context.Context, window Window, issue ticket.Issue, assayType string,
	outcome *mergeOutcome,
) {
	if !a.auditedAssay(assayType) || !window.ContainsTime(issue.Created) {
		return
	}

	entry := tracker.UnmatchedTicket{
		RunName:   issue.Summary,
		AssayType: assayType,
		Created:   issue.Created,
		Status:    issue.Status,
	}

	switch {
	case a.statuses.IsCancelled(issue.Status):
		outcome.cancelled = append(outcome.cancelled, entry)
	case issue.Status == a.statuses.Released:
		entry.Resolved = a.releaseTime(ctx, issue)
		if !entry.Resolved.IsZero() {
			entry.EstimatedTAT = entry.Resolved.Sub(issue.Created).Hours() / 24
		}

		outcome.releasedNoProject = append(outcome.releasedNoProject, entry)
	case a.statuses.IsOpen(issue.Status):
		outcome.open = append(outcome.open, entry)
	}
}

// releaseTime is when the ticket entered the released status. The
// listing's resolution date can lag the real transition, so the
// changelog is preferred.
func (a *Auditor) releaseTime(ctx context.Context, issue ticket.Issue) time.Time {
	history, err := a.desk.Changelog(ctx, issue.ID)
	if err != nil {
		a.log.WithError(err).WithField("ticket", issue.Key).
			Warn("Falling back to listed resolution date")

		return issue.Resolved
	}

	if t, ok := history[a.statuses.Released]; ok {
		return t
	}

	return issue.Resolved
}

// normalizeAssay maps the ticket's assay field onto the audited assay
// names. SNP tickets are labelled "SNP Genotyping".
func normalizeAssay(assay string) string {
	if assay == "" {
		return "Unknown"
	}

	return strings.TrimSuffix(assay, " Genotyping")
}
