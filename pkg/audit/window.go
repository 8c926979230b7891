package audit

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the format for the --start and --end flags.
	DateLayout = "2006-01-02"

	// runDateLayout matches the YYMMDD prefix of run names.
	runDateLayout = "060102"

	// queryBuffer widens external queries around the window so runs
	// sequenced near the edges are not missed. Projects and jobs can be
	// created days after the run date in their name.
	queryBuffer = 5 * 24 * time.Hour
)

// Window is the audit period. Both bounds are inclusive at day
// resolution.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ResolveWindow builds the audit window from the --start/--end flags.
// The flags must be given together; when absent the window runs from
// defaultMonths months ago to today.
func ResolveWindow(start, end string, defaultMonths int, now time.Time) (Window, error) {
	if (start == "") != (end == "") {
		return Window{}, fmt.Errorf("--start and --end must be given together")
	}

	if start == "" {
		today := now.Truncate(24 * time.Hour)

		return Window{
			Start: today.AddDate(0, -defaultMonths, 0),
			End:   today,
		}, nil
	}

	startTime, err := time.Parse(DateLayout, start)
	if err != nil {
		return Window{}, fmt.Errorf("parsing --start: %w", err)
	}

	endTime, err := time.Parse(DateLayout, end)
	if err != nil {
		return Window{}, fmt.Errorf("parsing --end: %w", err)
	}

	if startTime.After(endTime) {
		return Window{}, fmt.Errorf("--start %s is after --end %s", start, end)
	}

	return Window{Start: startTime, End: endTime}, nil
}

// QueryStart is the window start widened by the query buffer.
func (w Window) QueryStart() time.Time {
	return w.Start.Add(-queryBuffer)
}

// QueryEnd is the window end widened by the query buffer.
func (w Window) QueryEnd() time.Time {
	return w.End.Add(queryBuffer)
}

// ContainsRunDate reports whether the YYMMDD prefix of a run name
// falls inside the window. Names without a parseable date prefix are
// outside.
func (w Window) ContainsRunDate(runName string) bool {
	if len(runName) < 6 {
		return false
	}

	runDate, err := time.Parse(runDateLayout, runName[:6])
	if err != nil {
		return false
	}

	return w.ContainsTime(runDate)
}

// ContainsTime reports whether t falls inside the window at day
// resolution.
func (w Window) ContainsTime(t time.Time) bool {
	day := t.Truncate(24 * time.Hour)

	return !day.Before(w.Start.Truncate(24*time.Hour)) &&
		!day.After(w.End.Truncate(24*time.Hour))
}

func (w Window) String() string {
	return fmt.Sprintf("%s to %s", w.Start.Format(DateLayout), w.End.Format(DateLayout))
}
