package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/seqops/tatoor/pkg/audit"
	"github.com/seqops/tatoor/pkg/compliance"
	"github.com/seqops/tatoor/pkg/interval"
	"github.com/seqops/tatoor/pkg/tracker"
)

const mdTimeLayout = "2006-01-02 15:04:05 UTC"

// Summary renders the markdown compliance summary for one audit
// result.
func Summary(result *audit.Result) string {
	var sb strings.Builder

	sb.Grow(4096)

	writeTitle(&sb, result)
	writeCompliance(&sb, result)
	writeStageMeans(&sb, result.Summaries)
	writeReview(&sb, result.Summaries)
	writeTypos(&sb, result.Typos)
	writeTicketList(&sb, "Cancelled Runs", result.CancelledTickets, false)
	writeTicketList(&sb, "Open Runs Without a Project", result.OpenTickets, false)
	writeTicketList(&sb, "Released Without a Project", result.ReleasedNoProject, true)

	return sb.String()
}

func writeTitle(sb *strings.Builder, result *audit.Result) {
	fmt.Fprintf(sb, "# Turnaround Time Audit: %s\n\n", result.Window.String())

	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")
	fmt.Fprintf(sb, "| Generated | %s |\n",
		result.GeneratedAt.UTC().Format(mdTimeLayout))
	fmt.Fprintf(sb, "| TAT Standard | %d days |\n", result.TATStandardDays)
	fmt.Fprintf(sb, "| Audited Runs | %d |\n", len(result.Runs))
	sb.WriteByte('\n')
}

func writeCompliance(sb *strings.Builder, result *audit.Result) {
	sb.WriteString("## Compliance\n\n")
	sb.WriteString("| Assay | Runs | Compliant | Compliance % | Mean TAT | Median TAT |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")

	for _, summary := range result.Summaries {
		fmt.Fprintf(sb, "| %s | %d | %s | %.2f | %s | %s |\n",
			summary.AssayType,
			summary.TotalRuns,
			summary.ComplianceFraction,
			summary.CompliancePercentage,
			mdDays(summary.MeanUploadToRelease),
			mdDays(summary.MedianUploadToRel),
		)
	}

	sb.WriteByte('\n')
}

func writeStageMeans(sb *strings.Builder, summaries []compliance.Summary) {
	sb.WriteString("## Mean Stage Times (days)\n\n")
	sb.WriteString("| Assay | Upload to First Job | Processing | Processing End to Release |\n")
	sb.WriteString("|---|---|---|---|\n")

	for _, summary := range summaries {
		fmt.Fprintf(sb, "| %s | %s | %s | %s |\n",
			summary.AssayType,
			mdDays(summary.MeanUploadToFirstJob),
			mdDays(summary.MeanProcessingTime),
			mdDays(summary.MeanProcEndToRelease),
		)
	}

	sb.WriteByte('\n')
}

func writeReview(sb *strings.Builder, summaries []compliance.Summary) {
	any := false

	for _, summary := range summaries {
		if !summary.Review.Empty() {
			any = true

			break
		}
	}

	if !any {
		return
	}

	sb.WriteString("## Runs Needing Manual Review\n\n")
	sb.WriteString("| Assay | Issue | Runs |\n")
	sb.WriteString("|---|---|---|\n")

	for _, summary := range summaries {
		writeReviewRow(sb, summary.AssayType, "no ticket found", summary.Review.NoTicketFound)
		writeReviewRow(sb, summary.AssayType, "first job before upload", summary.Review.FirstJobBeforeUpload)
		writeReviewRow(sb, summary.AssayType, "no upload found", summary.Review.NoUploadFound)
		writeReviewRow(sb, summary.AssayType, "no first job found", summary.Review.NoFirstJobFound)
		writeReviewRow(sb, summary.AssayType, "no final job found", summary.Review.NoFinalJobFound)
	}

	sb.WriteByte('\n')
}

func writeReviewRow(sb *strings.Builder, assay, issue string, runs []string) {
	if len(runs) == 0 {
		return
	}

	fmt.Fprintf(sb, "| %s | %s | %s |\n", assay, issue, strings.Join(runs, ", "))
}

func writeTypos(sb *strings.Builder, typos []tracker.Typo) {
	if len(typos) == 0 {
		return
	}

	sb.WriteString("## Name Mismatches\n\n")
	sb.WriteString("| Assay | Run | Seen As | Source |\n")
	sb.WriteString("|---|---|---|---|\n")

	for _, typo := range typos {
		fmt.Fprintf(sb, "| %s | %s | %s | %s |\n",
			typo.AssayType, typo.RunName, typo.Candidate, typo.Source)
	}

	sb.WriteByte('\n')
}

func writeTicketList(
	sb *strings.Builder, title string, tickets []tracker.UnmatchedTicket, withTAT bool,
) {
	if len(tickets) == 0 {
		return
	}

	fmt.Fprintf(sb, "## %s\n\n", title)

	if withTAT {
		sb.WriteString("| Run | Assay | Ticket Created | Resolved | Estimated TAT (days) |\n")
		sb.WriteString("|---|---|---|---|---|\n")

		for _, t := range tickets {
			fmt.Fprintf(sb, "| %s | %s | %s | %s | %.3f |\n",
				t.RunName, t.AssayType, mdTime(t.Created), mdTime(t.Resolved), t.EstimatedTAT)
		}
	} else {
		sb.WriteString("| Run | Assay | Ticket Created | Status |\n")
		sb.WriteString("|---|---|---|---|\n")

		for _, t := range tickets {
			fmt.Fprintf(sb, "| %s | %s | %s | %s |\n",
				t.RunName, t.AssayType, mdTime(t.Created), t.Status)
		}
	}

	sb.WriteByte('\n')
}

func mdTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return t.UTC().Format(mdTimeLayout)
}

func mdDays(d interval.Days) string {
	if !d.Valid {
		return "-"
	}

	return fmt.Sprintf("%.3f", d.Value)
}
