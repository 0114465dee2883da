// Package sync moves pending local rows to the remote database and pulls
// remote changes back, one entity kind at a time.
package sync

import (
	"time"

	"github.com/hyperengineering/fitsync/internal/types"
)

// Reason names what asked for a sync cycle.
type Reason string

const (
	ReasonUser       Reason = "user"
	ReasonFocus      Reason = "focus"
	ReasonForeground Reason = "foreground"
	ReasonInterval   Reason = "interval"
)

// ParseReason maps a lifecycle event name onto a Reason.
func ParseReason(s string) (Reason, bool) {
	switch r := Reason(s); r {
	case ReasonUser, ReasonFocus, ReasonForeground, ReasonInterval:
		return r, true
	}
	return "", false
}

// EntityReport counts what one entity kind did during a cycle.
type EntityReport struct {
	Kind types.Kind `json:"kind"`

	Pushed     int `json:"pushed"`
	PushFailed int `json:"push_failed"`
	// Excluded rows are pending but not writable by the current user.
	Excluded int `json:"excluded"`
	// Stale rows were pushed but edited locally before they could be marked synced.
	Stale int `json:"stale"`
	// Settled are excluded tombstones confirmed locally. The remote row is
	// not the user's to delete, so nothing is sent.
	Settled int `json:"settled"`

	Pulled      int `json:"pulled"`
	PullSkipped int `json:"pull_skipped"`
	PullFailed  int `json:"pull_failed"`
	Malformed   int `json:"malformed"`
	// Rewound is set when the kind was pulled from the beginning because
	// more of it became readable.
	Rewound bool `json:"rewound,omitempty"`

	// Error is set when a local storage error cut the entity short.
	Error string `json:"error,omitempty"`
}

// Report describes one sync cycle.
type Report struct {
	CycleID    string         `json:"cycle_id"`
	UserID     string         `json:"user_id"`
	Reason     Reason         `json:"reason"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	DurationMs int64          `json:"duration_ms"`
	Entities   []EntityReport `json:"entities"`
}

// Entity returns the report for kind, or nil if the cycle did not reach it.
func (r *Report) Entity(kind types.Kind) *EntityReport {
	for i := range r.Entities {
		if r.Entities[i].Kind == kind {
			return &r.Entities[i]
		}
	}
	return nil
}

// Totals sums every entity's counters.
func (r *Report) Totals() EntityReport {
	var t EntityReport
	for _, e := range r.Entities {
		t.Pushed += e.Pushed
		t.PushFailed += e.PushFailed
		t.Excluded += e.Excluded
		t.Stale += e.Stale
		t.Settled += e.Settled
		t.Pulled += e.Pulled
		t.PullSkipped += e.PullSkipped
		t.PullFailed += e.PullFailed
		t.Malformed += e.Malformed
		t.Rewound = t.Rewound || e.Rewound
	}
	return t
}

// Failed reports whether any row or entity failed in the cycle.
func (r *Report) Failed() bool {
	for _, e := range r.Entities {
		if e.PushFailed > 0 || e.PullFailed > 0 || e.Error != "" {
			return true
		}
	}
	return false
}

// Status is a snapshot of the orchestrator.
type Status struct {
	Running bool    `json:"running"`
	Last    *Report `json:"last,omitempty"`
}
