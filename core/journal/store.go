// Package journal persists an append-only audit trail of engine decisions:
// generated schedules, optimizer runs and disruption events.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a journal record.
type Kind string

const (
	KindSchedule           Kind = "schedule_generated"
	KindOptimization       Kind = "optimization"
	KindDisruptionApplied  Kind = "disruption_applied"
	KindDisruptionResolved Kind = "disruption_resolved"
)

// Record captures one engine decision.
type Record struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Kind       Kind            `json:"kind"`
	ScheduleID string          `json:"schedule_id,omitempty"`
	EventID    string          `json:"event_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NewRecord marshals payload and stamps the record with a fresh id.
func NewRecord(kind Kind, scheduleID, eventID string, payload any, at time.Time) (Record, error) {
	rec := Record{ID: uuid.NewString(), Timestamp: at, Kind: kind, ScheduleID: scheduleID, EventID: eventID}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Record{}, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		rec.Payload = b
	}
	return rec, nil
}

// Query defines filters for retrieving records. Zero values match all.
type Query struct {
	Start      time.Time
	End        time.Time
	Kind       Kind
	ScheduleID string
	EventID    string
}

func (q Query) match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	if q.ScheduleID != "" && r.ScheduleID != q.ScheduleID {
		return false
	}
	return q.EventID == "" || r.EventID == q.EventID
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore discards every record.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error           { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                   { return nil }

func unixNano(ns int64) time.Time { return time.Unix(0, ns).UTC() }
