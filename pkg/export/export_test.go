package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/railsched/core/model"
)

var ten = time.Date(2025, 9, 26, 10, 0, 0, 0, time.UTC)

func sample() *model.Schedule {
	s := model.NewSchedule("s1", model.SourceOptimized, ten)
	s.Trains["T2"] = &model.TrainSchedule{TrainID: "T2", Priority: 1, Status: model.StatusCancelled, Reason: "BRK-1"}
	s.Trains["T1"] = &model.TrainSchedule{
		TrainID: "T1", Priority: 2, DelayMinutes: 12.5, Status: model.StatusDelayed,
		Segments: []model.Segment{
			{TrainID: "T1", TrackID: "A-B-UP", From: "A", To: "B", Start: ten, End: ten.Add(10 * time.Minute)},
			{TrainID: "T1", TrackID: "B-C-UP", From: "B", To: "C", Start: ten.Add(12 * time.Minute), End: ten.Add(27 * time.Minute)},
		},
	}
	return s
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sample(), "csv"))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{"T1", "2", "A-B-UP", "A", "B", "2025-09-26T10:00:00Z", "2025-09-26T10:10:00Z", "12.5", "delayed", ""}, rows[1])
	assert.Equal(t, "B-C-UP", rows[2][2])
	assert.Equal(t, []string{"T2", "1", "", "", "", "", "", "0", "cancelled", "BRK-1"}, rows[3])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sample(), "json"))
	var out map[string]model.TrainSchedule
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Len(t, out["T1"].Segments, 2)
	assert.Equal(t, model.StatusCancelled, out["T2"].Status)
	if err := Write(&buf, sample(), "xml"); err == nil {
		t.Fatal("expected unsupported format error")
	}
}
