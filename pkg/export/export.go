// Package export writes schedules as JSON or as one CSV row per segment.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/railsched/core/model"
)

// Header is the first CSV row written by WriteCSV.
var Header = []string{"train_id", "priority", "track", "from", "to", "start", "end", "delay_minutes", "status", "reason"}

// WriteJSON writes the trains of s to w in JSON format, keyed by train id.
func WriteJSON(w io.Writer, s *model.Schedule) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s.Trains)
}

// WriteCSV writes one row per segment, trains in id order. Trains without
// segments get a single row with empty track columns.
func WriteCSV(w io.Writer, s *model.Schedule) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, id := range s.TrainIDs() {
		ts := s.Trains[id]
		head := []string{ts.TrainID, strconv.Itoa(ts.Priority)}
		tail := []string{
			strconv.FormatFloat(ts.DelayMinutes, 'f', -1, 64),
			string(ts.Status),
			ts.Reason,
		}
		if len(ts.Segments) == 0 {
			if err := cw.Write(concat(head, []string{"", "", "", "", ""}, tail)); err != nil {
				return err
			}
			continue
		}
		for _, seg := range ts.Segments {
			mid := []string{seg.TrackID, seg.From, seg.To, seg.Start.Format(time.RFC3339), seg.End.Format(time.RFC3339)}
			if err := cw.Write(concat(head, mid, tail)); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// Write dispatches on format: "json" or "csv".
func Write(w io.Writer, s *model.Schedule, format string) error {
	switch format {
	case "json":
		return WriteJSON(w, s)
	case "csv":
		return WriteCSV(w, s)
	}
	return fmt.Errorf("unsupported export format: %s", format)
}

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
