package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hyperengineering/fitsync/internal/types"
)

func TestRepo_CreateStampsPendingRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Given: A workout with no id
	w := &types.Workout{UserID: "u1", Title: "Legs", PerformedAt: testBase, DurationMinutes: 50}

	// When: It is created
	id, err := s.Workouts.Create(ctx, w)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Then: A UUIDv7 is assigned and the row is pending and live
	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("id %q is not a UUID: %v", id, err)
	}
	if parsed.Version() != 7 {
		t.Errorf("expected UUIDv7, got version %d", parsed.Version())
	}

	got, err := s.Workouts.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.PendingSync || got.Deleted {
		t.Errorf("pending=%v deleted=%v, want pending and live", got.PendingSync, got.Deleted)
	}
	if !got.CreatedAt.Equal(got.ModifiedAt) {
		t.Errorf("created_at %v != modified_at %v", got.CreatedAt, got.ModifiedAt)
	}
	if got.Title != "Legs" || got.DurationMinutes != 50 || got.CycleID != nil {
		t.Errorf("unexpected row: %+v", got)
	}
	if !got.PerformedAt.Equal(testBase) {
		t.Errorf("performed_at = %v, want %v", got.PerformedAt, testBase)
	}
}

func TestRepo_CreateKeepsClientID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g := &types.Goal{UserID: "u1", Title: "Run 10k"}
	g.ID = "0192b3c4-5d6e-7f80-9a1b-2c3d4e5f6a7b"

	id, err := s.Goals.Create(ctx, g)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id != g.ID {
		t.Errorf("id = %q, want client id %q", id, g.ID)
	}
}

func TestRepo_CreateRejectsInvalid(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Workouts.Create(context.Background(), &types.Workout{UserID: "u1"})

	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if counts, _ := s.PendingCounts(context.Background()); len(counts) != 0 {
		t.Errorf("invalid create should write nothing, pending = %v", counts)
	}
}

func TestRepo_UpdateIsPartialAndRestamps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	w := mustCreateWorkout(t, s, "u1", "Legs", testBase)
	mustMarkSynced(t, s.Workouts, w)

	// When: Only the title changes
	if err := s.Workouts.Update(ctx, w.ID, types.WorkoutPatch{Title: types.Ptr("Heavy legs")}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// Then: Other columns are untouched, the row is pending again and newer
	got, err := s.Workouts.Get(ctx, w.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != "Heavy legs" {
		t.Errorf("title = %q", got.Title)
	}
	if got.DurationMinutes != 45 {
		t.Errorf("duration_minutes changed to %d", got.DurationMinutes)
	}
	if !got.PendingSync {
		t.Error("updated row should be pending")
	}
	if !got.ModifiedAt.After(w.ModifiedAt) {
		t.Errorf("modified_at %v should be after %v", got.ModifiedAt, w.ModifiedAt)
	}
	if !got.CreatedAt.Equal(w.CreatedAt) {
		t.Errorf("created_at changed: %v -> %v", w.CreatedAt, got.CreatedAt)
	}
}

func TestRepo_UpdateNullableColumn(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	w := mustCreateWorkout(t, s, "u1", "Legs", testBase)

	if err := s.Workouts.Update(ctx, w.ID, types.WorkoutPatch{CycleID: types.Some("c1")}); err != nil {
		t.Fatalf("set cycle: %v", err)
	}
	got, _ := s.Workouts.Get(ctx, w.ID)
	if got.CycleID == nil || *got.CycleID != "c1" {
		t.Fatalf("cycle_id = %v, want c1", got.CycleID)
	}

	if err := s.Workouts.Update(ctx, w.ID, types.WorkoutPatch{CycleID: types.Null[string]()}); err != nil {
		t.Fatalf("clear cycle: %v", err)
	}
	got, _ = s.Workouts.Get(ctx, w.ID)
	if got.CycleID != nil {
		t.Errorf("cycle_id = %q, want NULL", *got.CycleID)
	}
}

func TestRepo_UpdateErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	w := mustCreateWorkout(t, s, "u1", "Legs", testBase)

	tests := []struct {
		name  string
		id    string
		patch types.WorkoutPatch
		want  error
	}{
		{"empty patch", w.ID, types.WorkoutPatch{}, ErrEmptyPatch},
		{"unknown id", "missing", types.WorkoutPatch{Title: types.Ptr("x")}, ErrNotFound},
		{"invalid value", w.ID, types.WorkoutPatch{DurationMinutes: types.Ptr(-5)}, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Workouts.Update(ctx, tt.id, tt.patch)
			if !errors.Is(err, tt.want) {
				t.Errorf("Update() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRepo_SoftDeleteHidesRowButKeepsItPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	w := mustCreateWorkout(t, s, "u1", "Legs", testBase)
	mustMarkSynced(t, s.Workouts, w)

	// When: The workout is soft-deleted
	if err := s.Workouts.SoftDelete(ctx, w.ID); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	// Then: Reads no longer see it
	if _, err := s.Workouts.Get(ctx, w.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: %v, want ErrNotFound", err)
	}
	live, err := s.Workouts.ListForOwner(ctx, "u1")
	if err != nil {
		t.Fatalf("ListForOwner failed: %v", err)
	}
	if len(live) != 0 {
		t.Errorf("ListForOwner returned %d rows, want 0", len(live))
	}

	// And: The tombstone is pending so the delete syncs
	pending, err := s.Workouts.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 1 || !pending[0].Deleted {
		t.Fatalf("expected one pending tombstone, got %+v", pending)
	}

	// And: Deleting twice reports not found
	if err := s.Workouts.SoftDelete(ctx, w.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second SoftDelete: %v, want ErrNotFound", err)
	}
}

func TestRepo_ListPendingIsDeviceWide(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreateWorkout(t, s, "u1", "Mine", testBase)
	mustCreateWorkout(t, s, "u2", "Theirs", testBase)

	pending, err := s.Workouts.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("ListPending returned %d rows, want 2", len(pending))
	}
}

func TestRepo_MarkSyncedComparesModifiedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	w := mustCreateWorkout(t, s, "u1", "Legs", testBase)
	pushed := w.ModifiedAt

	// Given: The row is edited while its push is in flight
	if err := s.Workouts.Update(ctx, w.ID, types.WorkoutPatch{Notes: types.Ptr("felt strong")}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// When: The push confirms the old stamp
	ok, err := s.Workouts.MarkSynced(ctx, w.ID, pushed)
	if err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}

	// Then: The newer edit stays pending
	if ok {
		t.Error("MarkSynced should refuse a stale stamp")
	}
	got, _ := s.Workouts.Get(ctx, w.ID)
	if !got.PendingSync {
		t.Error("row edited during push must stay pending")
	}

	// When: The current stamp is confirmed
	ok, err = s.Workouts.MarkSynced(ctx, w.ID, got.ModifiedAt)
	if err != nil || !ok {
		t.Fatalf("MarkSynced(current) = %v, %v", ok, err)
	}
	got, _ = s.Workouts.Get(ctx, w.ID)
	if got.PendingSync {
		t.Error("row should be synced")
	}
}

func TestRepo_UpsertFromRemoteIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	remoteAt := testBase.Add(time.Hour)
	remote := types.Workout{
		SyncMeta:    types.SyncMeta{ID: "0192b3c4-0000-7000-8000-0000000000aa", CreatedAt: testBase, ModifiedAt: remoteAt},
		UserID:      "u1",
		Title:       "From phone",
		PerformedAt: testBase,
		Completed:   true,
	}
	payload := remoteJSON(t, &remote)

	// When: The same row is applied twice
	for i := 0; i < 2; i++ {
		if err := s.Workouts.UpsertFromRemote(ctx, payload); err != nil {
			t.Fatalf("UpsertFromRemote #%d failed: %v", i+1, err)
		}
	}

	// Then: Local state equals the remote row and is confirmed
	got, err := s.Workouts.Get(ctx, remote.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.PendingSync {
		t.Error("pulled row must not be pending")
	}
	if got.Title != remote.Title || !got.Completed || !got.ModifiedAt.Equal(remoteAt) {
		t.Errorf("local row does not match remote: %+v", got)
	}
	if ids := pendingIDs(t, s.Workouts); len(ids) != 0 {
		t.Errorf("pending after pull: %v", ids)
	}
}

func TestRepo_UpsertFromRemoteOverwritesLocalEdit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	w := mustCreateWorkout(t, s, "u1", "Local title", testBase)

	remote := *w
	remote.Title = "Remote title"
	remote.ModifiedAt = w.ModifiedAt.Add(time.Minute)

	if err := s.Workouts.UpsertFromRemote(ctx, remoteJSON(t, &remote)); err != nil {
		t.Fatalf("UpsertFromRemote failed: %v", err)
	}

	got, _ := s.Workouts.Get(ctx, w.ID)
	if got.Title != "Remote title" || got.PendingSync {
		t.Errorf("got title %q pending %v, want remote row confirmed", got.Title, got.PendingSync)
	}
}

func TestRepo_UpsertFromRemoteAppliesTombstone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	w := mustCreateWorkout(t, s, "u1", "Legs", testBase)

	remote := *w
	remote.Deleted = true
	remote.ModifiedAt = w.ModifiedAt.Add(time.Minute)

	if err := s.Workouts.UpsertFromRemote(ctx, remoteJSON(t, &remote)); err != nil {
		t.Fatalf("UpsertFromRemote failed: %v", err)
	}

	if _, err := s.Workouts.Get(ctx, w.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("remote tombstone should hide the row, got %v", err)
	}
}

func TestRepo_UpsertFromRemoteRejectsMalformed(t *testing.T) {
	s := newTestStore(t)

	err := s.Goals.UpsertFromRemote(context.Background(), []byte(`{"title":"no id"}`))

	if !errors.Is(err, ErrMalformedRow) {
		t.Errorf("expected ErrMalformedRow, got %v", err)
	}
}

func TestRepo_MutationsInvalidateCache(t *testing.T) {
	inv := &recordingInvalidator{}
	s := newTestStore(t, WithInvalidator(inv))
	ctx := context.Background()

	w := mustCreateWorkout(t, s, "u1", "Legs", testBase)
	if !inv.seen(types.KindWorkout) {
		t.Error("Create should invalidate workout views")
	}

	inv.reset()
	if err := s.Workouts.Update(ctx, w.ID, types.WorkoutPatch{}); err == nil {
		t.Fatal("empty patch should fail")
	}
	if inv.seen(types.KindWorkout) {
		t.Error("a failed update must not invalidate")
	}

	inv.reset()
	if err := s.Workouts.SoftDelete(ctx, w.ID); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if !inv.seen(types.KindWorkout) {
		t.Error("SoftDelete should invalidate workout views")
	}
}

func TestRepo_ListForOwnerRules(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	w := mustCreateWorkout(t, s, "u1", "Legs", testBase)
	if _, err := s.Exercises.Create(ctx, &types.Exercise{WorkoutID: w.ID, Name: "Squat", Sets: 5, Reps: 5}); err != nil {
		t.Fatalf("create exercise: %v", err)
	}
	if _, err := s.Friends.Create(ctx, &types.Friend{UserID: "u2", FriendUserID: "u1", Status: types.FriendAccepted}); err != nil {
		t.Fatalf("create friend: %v", err)
	}

	exercises, err := s.Exercises.ListForOwner(ctx, "u1")
	if err != nil || len(exercises) != 1 {
		t.Errorf("exercises owned through workout: %d, %v", len(exercises), err)
	}
	if others, _ := s.Exercises.ListForOwner(ctx, "u2"); len(others) != 0 {
		t.Errorf("u2 should own no exercises, got %d", len(others))
	}

	friends, err := s.Friends.ListForOwner(ctx, "u1")
	if err != nil || len(friends) != 1 {
		t.Errorf("friend edge should list for either side: %d, %v", len(friends), err)
	}
}

func TestStrengthTests_CreateEstimatesOneRM(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st := &types.StrengthTest{UserID: "u1", ExerciseName: "Bench", WeightKg: 60, Reps: 10, TestedAt: testBase}
	if _, err := s.StrengthTests.Create(ctx, st); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, _ := s.StrengthTests.Get(ctx, st.ID)
	if diff := got.EstimatedOneRM - 80; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("estimated_one_rm = %v, want 80", got.EstimatedOneRM)
	}
}

func TestTrainingTemplate_JSONColumnRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tpl := &types.TrainingTemplate{UserID: "u1", Name: "Push", Exercises: []byte(`[{"name":"Bench","sets":5}]`)}
	if _, err := s.TrainingTemplates.Create(ctx, tpl); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := s.TrainingTemplates.Get(ctx, tpl.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Exercises) != `[{"name":"Bench","sets":5}]` {
		t.Errorf("exercises = %s", got.Exercises)
	}
}

func TestSQLiteStore_PendingCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreateWorkout(t, s, "u1", "A", testBase)
	mustCreateWorkout(t, s, "u1", "B", testBase)
	if _, err := s.Goals.Create(ctx, &types.Goal{UserID: "u1", Title: "G"}); err != nil {
		t.Fatalf("create goal: %v", err)
	}

	counts, err := s.PendingCounts(ctx)
	if err != nil {
		t.Fatalf("PendingCounts failed: %v", err)
	}
	if counts[types.KindWorkout] != 2 || counts[types.KindGoal] != 1 || len(counts) != 2 {
		t.Errorf("PendingCounts = %v", counts)
	}
}

func TestSQLiteStore_OwnerMapsIncludeTombstones(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	w := mustCreateWorkout(t, s, "u1", "Legs", testBase)
	if err := s.Workouts.SoftDelete(ctx, w.ID); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	owners, err := s.WorkoutOwners(ctx)
	if err != nil {
		t.Fatalf("WorkoutOwners failed: %v", err)
	}
	if owners[w.ID] != "u1" {
		t.Errorf("owners[%s] = %q, want u1", w.ID, owners[w.ID])
	}
}

func TestSQLiteStore_SyncTableUnknownKind(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.SyncTable("nope"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
	tbl, err := s.SyncTable(types.KindFeedReaction)
	if err != nil {
		t.Fatalf("SyncTable failed: %v", err)
	}
	if got := tbl.ConflictTarget(); len(got) != 3 || got[0] != "post_id" {
		t.Errorf("reaction conflict target = %v", got)
	}
}
