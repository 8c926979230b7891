package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2022, 9, 1, 8, 0, 0, 0, time.UTC)

func TestObserveUpload(t *testing.T) {
	t.Run("accepted when no first job known", func(t *testing.T) {
		rec := &Record{}
		assert.True(t, rec.ObserveUpload(base))
		assert.Equal(t, base, rec.UploadTime)
	})

	t.Run("accepted when strictly before first job", func(t *testing.T) {
		rec := &Record{FirstJobTime: base.Add(time.Hour)}
		assert.True(t, rec.ObserveUpload(base))
	})

	t.Run("rejected when at or after first job", func(t *testing.T) {
		rec := &Record{FirstJobTime: base}
		assert.False(t, rec.ObserveUpload(base))
		assert.False(t, rec.ObserveUpload(base.Add(time.Minute)))
		assert.True(t, rec.UploadTime.IsZero())
	})

	t.Run("rejected when zero", func(t *testing.T) {
		rec := &Record{}
		assert.False(t, rec.ObserveUpload(time.Time{}))
	})

	t.Run("does not overwrite existing upload time", func(t *testing.T) {
		rec := &Record{UploadTime: base}
		assert.False(t, rec.ObserveUpload(base.Add(time.Hour)))
		assert.Equal(t, base, rec.UploadTime)
	})
}

func TestSetUploadTime_Unconditional(t *testing.T) {
	rec := &Record{FirstJobTime: base}

	// The fallback artifact is taken even though it post-dates the
	// first job; the ordering violation surfaces as a negative
	// interval downstream instead of being dropped.
	assert.True(t, rec.SetUploadTime(base.Add(time.Hour)))
	assert.Equal(t, base.Add(time.Hour), rec.UploadTime)

	assert.False(t, rec.SetUploadTime(time.Time{}))
	assert.Equal(t, base.Add(time.Hour), rec.UploadTime)
}

func TestObserveFirstJob(t *testing.T) {
	t.Run("accepted strictly after upload", func(t *testing.T) {
		rec := &Record{UploadTime: base}
		assert.True(t, rec.ObserveFirstJob(base.Add(time.Minute)))
		assert.Equal(t, base.Add(time.Minute), rec.FirstJobTime)
	})

	t.Run("rejected at or before upload", func(t *testing.T) {
		rec := &Record{UploadTime: base}
		assert.False(t, rec.ObserveFirstJob(base))
		assert.False(t, rec.ObserveFirstJob(base.Add(-time.Minute)))
	})

	t.Run("rejected without known upload", func(t *testing.T) {
		rec := &Record{}
		assert.False(t, rec.ObserveFirstJob(base))
	})

	t.Run("first accepted source wins", func(t *testing.T) {
		rec := &Record{UploadTime: base}
		require.True(t, rec.ObserveFirstJob(base.Add(2*time.Hour)))

		// A later candidate source cannot replace it, even if earlier.
		assert.False(t, rec.ObserveFirstJob(base.Add(time.Hour)))
		assert.Equal(t, base.Add(2*time.Hour), rec.FirstJobTime)
	})
}

func TestObserveProcessingFinished(t *testing.T) {
	stops := []time.Time{
		base.Add(24 * time.Hour),
		base.Add(30 * time.Hour),
		base.Add(48 * time.Hour),
	}

	t.Run("latest at or before resolution when resolved", func(t *testing.T) {
		rec := &Record{StatusResolved: base.Add(36 * time.Hour)}
		assert.True(t, rec.ObserveProcessingFinished(stops))
		assert.Equal(t, base.Add(30*time.Hour), rec.ProcessingFinished)
	})

	t.Run("boundary job at resolution time qualifies", func(t *testing.T) {
		rec := &Record{StatusResolved: base.Add(30 * time.Hour)}
		assert.True(t, rec.ObserveProcessingFinished(stops))
		assert.Equal(t, base.Add(30*time.Hour), rec.ProcessingFinished)
	})

	t.Run("latest overall when not resolved", func(t *testing.T) {
		rec := &Record{}
		assert.True(t, rec.ObserveProcessingFinished(stops))
		assert.Equal(t, base.Add(48*time.Hour), rec.ProcessingFinished)
	})

	t.Run("no qualifying jobs", func(t *testing.T) {
		rec := &Record{StatusResolved: base}
		assert.False(t, rec.ObserveProcessingFinished(stops))
		assert.True(t, rec.ProcessingFinished.IsZero())
	})

	t.Run("empty stop list", func(t *testing.T) {
		rec := &Record{}
		assert.False(t, rec.ObserveProcessingFinished(nil))
	})
}

func TestApplyChangelog(t *testing.T) {
	history := map[string]time.Time{
		"Data Received":        base,
		"Data processed":       base.Add(12 * time.Hour),
		"All samples released": base.Add(72 * time.Hour),
	}

	rec := &Record{}
	rec.ApplyChangelog(history, "All samples released")

	assert.Equal(t, history, rec.StatusHistory)
	assert.Equal(t, base.Add(72*time.Hour), rec.StatusResolved)

	t.Run("no resolved entry leaves resolved unset", func(t *testing.T) {
		rec := &Record{}
		rec.ApplyChangelog(map[string]time.Time{"On hold": base}, "All samples released")
		assert.True(t, rec.StatusResolved.IsZero())
	})

	t.Run("empty history is ignored", func(t *testing.T) {
		rec := &Record{StatusHistory: history}
		rec.ApplyChangelog(nil, "All samples released")
		assert.Equal(t, history, rec.StatusHistory)
	})
}

func TestLastProcessingStep(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want time.Time
	}{
		{
			name: "processing finished wins",
			rec: Record{
				UploadTime:         base,
				FirstJobTime:       base.Add(time.Hour),
				ProcessingFinished: base.Add(2 * time.Hour),
			},
			want: base.Add(2 * time.Hour),
		},
		{
			name: "first job when processing missing",
			rec: Record{
				UploadTime:   base,
				FirstJobTime: base.Add(time.Hour),
			},
			want: base.Add(time.Hour),
		},
		{
			name: "upload only",
			rec:  Record{UploadTime: base},
			want: base,
		},
		{
			name: "nothing known",
			rec:  Record{},
			want: time.Time{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.LastProcessingStep())
		})
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Add("run-a", &Record{AssayType: "CEN"})
	reg.Add("run-b", &Record{AssayType: "TWE"})
	reg.Add("run-a", &Record{AssayType: "MYE"}) // duplicate, ignored

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []string{"run-a", "run-b"}, reg.Keys())

	recA, ok := reg.Get("run-a")
	require.True(t, ok)
	assert.Equal(t, "CEN", recA.AssayType)
	assert.Equal(t, "run-a", recA.RunName)

	t.Run("rekey preserves order and record", func(t *testing.T) {
		assert.True(t, reg.Rekey("run-a", "run-a-folder"))
		assert.Equal(t, []string{"run-a-folder", "run-b"}, reg.Keys())

		rec, ok := reg.Get("run-a-folder")
		require.True(t, ok)
		assert.Equal(t, "CEN", rec.AssayType)
		assert.Equal(t, "run-a-folder", rec.RunName)

		_, ok = reg.Get("run-a")
		assert.False(t, ok)
	})

	t.Run("rekey no-ops", func(t *testing.T) {
		assert.False(t, reg.Rekey("run-b", "run-b"))
		assert.False(t, reg.Rekey("missing", "anything"))
		assert.False(t, reg.Rekey("run-b", "run-a-folder"))
	})
}

func TestStatuses(t *testing.T) {
	statuses := Statuses{
		Released:  "All samples released",
		Urgent:    "Urgent samples released",
		OnHold:    "On hold",
		Cancelled: []string{"Data cannot be processed", "Data not received"},
		Open:      []string{"Data Received", "Data processed"},
	}

	assert.True(t, statuses.IsCancelled("Data not received"))
	assert.False(t, statuses.IsCancelled("On hold"))
	assert.True(t, statuses.IsOpen("Data Received"))
	assert.True(t, statuses.IsCancelledOrOpen("Data processed"))
	assert.False(t, statuses.IsCancelledOrOpen("All samples released"))
}
