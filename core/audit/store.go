package audit

import (
	"context"
	"time"

	"github.com/pierreba/era/core/model"
)

// Record captures one allocation run end to end for later review.
type Record struct {
	RunID          string                   `json:"run_id"`
	Timestamp      time.Time                `json:"timestamp"`
	Event          model.EventContext       `json:"event"`
	MatchedRuleIDs []string                 `json:"matched_rule_ids"`
	Sequence       []model.TaskNode         `json:"sequence"`
	Mode           string                   `json:"mode"`
	Solutions      int                      `json:"solutions"`
	Committed      []string                 `json:"committed"`
	Violations     []model.Violation        `json:"violations"`
	Timings        map[string]time.Duration `json:"timings"`
	Status         string                   `json:"status"`
	Error          string                   `json:"error,omitempty"`
}

// Query defines filters for retrieving records.
type Query struct {
	Start   time.Time
	End     time.Time
	EventID string
	Status  string
}

// Matches reports whether rec satisfies the query filters.
func (q Query) Matches(rec Record) bool {
	if !q.Start.IsZero() && rec.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && rec.Timestamp.After(q.End) {
		return false
	}
	if q.EventID != "" && rec.Event.ID != q.EventID {
		return false
	}
	if q.Status != "" && rec.Status != q.Status {
		return false
	}
	return true
}

// Store persists run records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore discards all records.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error           { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                   { return nil }
