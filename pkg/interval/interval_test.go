package interval

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqops/tatoor/pkg/tracker"
)

var statuses = tracker.Statuses{
	Released:  "All samples released",
	Urgent:    "Urgent samples released",
	OnHold:    "On hold",
	Cancelled: []string{"Data cannot be processed"},
	Open:      []string{"Data Received"},
}

const day = 24 * time.Hour

func TestDerive_ReleasedRun(t *testing.T) {
	upload := time.Date(2022, 9, 1, 12, 0, 0, 0, time.UTC)
	rec := &tracker.Record{
		UploadTime:         upload,
		FirstJobTime:       upload.Add(1 * day),
		ProcessingFinished: upload.Add(3 * day),
		Status:             statuses.Released,
		StatusResolved:     upload.Add(4 * day),
	}

	set := Derive(rec, upload.Add(10*day), statuses)

	require.True(t, set.UploadToFirstJob.Valid)
	assert.InDelta(t, 1.0, set.UploadToFirstJob.Value, 1e-9)

	require.True(t, set.ProcessingTime.Valid)
	assert.InDelta(t, 2.0, set.ProcessingTime.Value, 1e-9)

	require.True(t, set.ProcessingEndToRelease.Valid)
	assert.InDelta(t, 1.0, set.ProcessingEndToRelease.Value, 1e-9)

	require.True(t, set.UploadToRelease.Valid)
	assert.InDelta(t, 4.0, set.UploadToRelease.Value, 1e-9)

	assert.False(t, set.UrgentsTime.Valid)
	assert.False(t, set.OnHoldTime.Valid)
}

func TestDerive_UploadToReleaseUndefinedUnlessReleased(t *testing.T) {
	upload := time.Date(2022, 9, 1, 12, 0, 0, 0, time.UTC)

	for _, status := range []string{
		"", "Data Received", "On hold", "Urgent samples released",
		"Data cannot be processed",
	} {
		rec := &tracker.Record{
			UploadTime:         upload,
			FirstJobTime:       upload.Add(1 * day),
			ProcessingFinished: upload.Add(3 * day),
			Status:             status,
			StatusResolved:     upload.Add(4 * day),
		}

		set := Derive(rec, upload.Add(10*day), statuses)
		assert.False(t, set.UploadToRelease.Valid, "status %q", status)
		assert.False(t, set.ProcessingEndToRelease.Valid, "status %q", status)
	}
}

func TestDerive_NegativeIntervalNotSuppressed(t *testing.T) {
	upload := time.Date(2022, 9, 1, 12, 0, 0, 0, time.UTC)

	// First job 12 hours before the upload: an ordering violation
	// that must surface as a negative interval.
	rec := &tracker.Record{
		UploadTime:         upload,
		FirstJobTime:       upload.Add(-12 * time.Hour),
		ProcessingFinished: upload.Add(2 * day),
		Status:             statuses.Released,
		StatusResolved:     upload.Add(3 * day),
	}

	set := Derive(rec, upload.Add(10*day), statuses)

	require.True(t, set.UploadToFirstJob.Valid)
	assert.InDelta(t, -0.5, set.UploadToFirstJob.Value, 1e-9)

	// A negative stage blocks the overall TAT gate.
	assert.False(t, set.UploadToRelease.Valid)
}

func TestDerive_MissingFieldsAreUndefined(t *testing.T) {
	rec := &tracker.Record{
		UploadTime: time.Date(2022, 9, 1, 12, 0, 0, 0, time.UTC),
	}

	set := Derive(rec, rec.UploadTime.Add(day), statuses)

	assert.False(t, set.UploadToFirstJob.Valid)
	assert.False(t, set.ProcessingTime.Valid)
	assert.False(t, set.ProcessingEndToRelease.Valid)
	assert.False(t, set.UploadToRelease.Valid)
}

func TestDerive_UrgentsTime(t *testing.T) {
	finished := time.Date(2022, 9, 3, 12, 0, 0, 0, time.UTC)
	rec := &tracker.Record{
		ProcessingFinished: finished,
		Status:             statuses.Urgent,
	}

	set := Derive(rec, finished.Add(36*time.Hour), statuses)

	require.True(t, set.UrgentsTime.Valid)
	assert.InDelta(t, 1.5, set.UrgentsTime.Value, 1e-9)

	t.Run("undefined without processing finished", func(t *testing.T) {
		rec := &tracker.Record{Status: statuses.Urgent}
		set := Derive(rec, finished, statuses)
		assert.False(t, set.UrgentsTime.Valid)
	})
}

func TestDerive_OnHoldTime(t *testing.T) {
	upload := time.Date(2022, 9, 1, 12, 0, 0, 0, time.UTC)
	now := upload.Add(5 * day)

	t.Run("ages from latest known step", func(t *testing.T) {
		rec := &tracker.Record{
			UploadTime:   upload,
			FirstJobTime: upload.Add(day),
			Status:       statuses.OnHold,
		}

		set := Derive(rec, now, statuses)
		require.True(t, set.OnHoldTime.Valid)
		assert.InDelta(t, 4.0, set.OnHoldTime.Value, 1e-9)
	})

	t.Run("undefined with no known step", func(t *testing.T) {
		rec := &tracker.Record{Status: statuses.OnHold}
		set := Derive(rec, now, statuses)
		assert.False(t, set.OnHoldTime.Valid)
	})
}

func TestDerive_Idempotent(t *testing.T) {
	upload := time.Date(2022, 9, 1, 12, 0, 0, 0, time.UTC)
	now := upload.Add(10 * day)
	rec := &tracker.Record{
		UploadTime:         upload,
		FirstJobTime:       upload.Add(day),
		ProcessingFinished: upload.Add(3 * day),
		Status:             statuses.Released,
		StatusResolved:     upload.Add(4 * day),
	}

	first := Derive(rec, now, statuses)
	second := Derive(rec, now, statuses)
	assert.Equal(t, first, second)
}

func TestDaysJSON(t *testing.T) {
	type payload struct {
		A Days `json:"a"`
		B Days `json:"b"`
	}

	in := payload{A: Defined(1.25)}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1.25,"b":null}`, string(data))

	var out payload
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}
