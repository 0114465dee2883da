// Package remote talks to the multi-tenant Postgres database that every
// device syncs against. The remote scopes reads and writes by row-level
// security; clients here only carry the caller's identity.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Error classes. Every error returned by a Client wraps exactly one of them.
var (
	// ErrRejected means the remote refused the row: a policy, uniqueness
	// or validation failure. Retrying the same row will not help until it changes.
	ErrRejected = errors.New("rejected by remote")
	// ErrUnauthorized means the credentials were missing or expired.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNetwork means the request did not complete.
	ErrNetwork = errors.New("network failure")
	// ErrServer means the remote failed or throttled the request.
	ErrServer = errors.New("server error")
)

// Error carries the context of a failed remote call.
type Error struct {
	Op      string // "upsert", "select"
	Table   string
	Status  int    // HTTP status, 0 when not applicable
	Code    string // remote error code, e.g. a SQLSTATE
	Message string
	Err     error // one of the error classes
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether a failed call may succeed unchanged on retry.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrServer)
}

// SelectQuery asks for rows strictly after (AfterModifiedAt, AfterID) in
// (modified_at, id) order. A zero AfterModifiedAt starts from the beginning.
type SelectQuery struct {
	AfterModifiedAt time.Time
	AfterID         string
	Limit           int
}

// Client is the remote contract the sync orchestrator drives.
type Client interface {
	// Upsert writes a full row, resolving conflicts on conflictTarget.
	Upsert(ctx context.Context, table string, payload json.RawMessage, conflictTarget []string) error
	// SelectChanged returns rows visible to the caller, oldest change first.
	SelectChanged(ctx context.Context, table string, q SelectQuery) ([]json.RawMessage, error)
}

// remoteTime is the wire format for timestamps, microsecond precision like timestamptz.
const remoteTime = "2006-01-02T15:04:05.000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(remoteTime)
}

var tables = map[string]bool{
	"profiles": true, "cycles": true, "workouts": true, "exercises": true,
	"goals": true, "strength_tests": true, "body_measurements": true,
	"scheduled_trainings": true, "training_templates": true, "friends": true,
	"friend_invites": true, "groups": true, "group_members": true,
	"group_invites": true, "feed_posts": true, "feed_reactions": true,
}

func checkTable(op, table string) error {
	if !tables[table] {
		return &Error{Op: op, Table: table, Message: "unknown table", Err: ErrRejected}
	}
	return nil
}
