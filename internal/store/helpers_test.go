package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/hyperengineering/fitsync/internal/types"
)

var testBase = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// stepClock advances one second per reading.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock(start time.Time) *stepClock {
	return &stepClock{t: start}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// recordingInvalidator remembers the kinds it was told about.
type recordingInvalidator struct {
	mu    sync.Mutex
	kinds []types.Kind
}

func (r *recordingInvalidator) InvalidateKind(k types.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, k)
}

func (r *recordingInvalidator) seen(k types.Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.kinds {
		if got == k {
			return true
		}
	}
	return false
}

func (r *recordingInvalidator) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = nil
}

func newTestStore(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()
	opts = append([]Option{WithClock(newStepClock(testBase).Now)}, opts...)
	s, err := NewSQLiteStore(":memory:", opts...)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreateWorkout(t *testing.T, s *SQLiteStore, userID, title string, performedAt time.Time) *types.Workout {
	t.Helper()
	w := &types.Workout{UserID: userID, Title: title, PerformedAt: performedAt, DurationMinutes: 45}
	if _, err := s.Workouts.Create(context.Background(), w); err != nil {
		t.Fatalf("create workout: %v", err)
	}
	return w
}

func mustMarkSynced(t *testing.T, tbl SyncTable, rec types.Record) {
	t.Helper()
	ok, err := tbl.MarkSynced(context.Background(), rec.Meta().ID, rec.Meta().ModifiedAt)
	if err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	if !ok {
		t.Fatalf("mark synced %s: row changed since read", rec.Meta().ID)
	}
}

func remoteJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal remote row: %v", err)
	}
	return b
}

func pendingIDs(t *testing.T, tbl SyncTable) map[string]bool {
	t.Helper()
	recs, err := tbl.PendingRecords(context.Background())
	if err != nil {
		t.Fatalf("pending records: %v", err)
	}
	ids := make(map[string]bool, len(recs))
	for _, r := range recs {
		ids[r.Meta().ID] = true
	}
	return ids
}
