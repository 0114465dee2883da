package validation

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hyperengineering/fitsync/internal/types"
)

var testNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	out := map[string]string{}
	if err == nil {
		return out
	}
	var list Errors
	if !errors.As(err, &list) {
		t.Fatalf("expected validation.Errors, got %T: %v", err, err)
	}
	for _, e := range list {
		out[e.Field] = e.Message
	}
	return out
}

func TestRecord_ValidRecords(t *testing.T) {
	records := []types.Record{
		&types.Profile{UserID: "u1", UnitSystem: types.UnitMetric},
		&types.Cycle{UserID: "u1", Name: "Base", StartDate: testNow},
		&types.Workout{UserID: "u1", Title: "Legs", PerformedAt: testNow, DurationMinutes: 60},
		&types.Exercise{WorkoutID: "w1", Name: "Squat", Sets: 5, Reps: 5, WeightKg: 100},
		&types.Goal{UserID: "u1", Title: "Bench 100"},
		&types.StrengthTest{UserID: "u1", ExerciseName: "Deadlift", WeightKg: 180, Reps: 1, TestedAt: testNow},
		&types.BodyMeasurement{UserID: "u1", MeasuredAt: testNow, WeightKg: types.Ptr(80.5)},
		&types.ScheduledTraining{UserID: "u1", Title: "Intervals", ScheduledFor: testNow},
		&types.TrainingTemplate{UserID: "u1", Name: "Push"},
		&types.Friend{UserID: "u1", FriendUserID: "u2", Status: types.FriendAccepted},
		&types.FriendInvite{InviterID: "u1", InviteCode: "AB12CD", Status: types.InvitePending},
		&types.Group{OwnerID: "u1", Name: "Runners"},
		&types.GroupMember{GroupID: "g1", UserID: "u2", Role: types.RoleMember, Status: types.MemberActive},
		&types.GroupInvite{GroupID: "g1", InviterID: "u1", InviteeID: "u2", Status: types.InvitePending},
		&types.FeedPost{UserID: "u1", Body: "PR today", Visibility: types.VisibilityFriends},
		&types.FeedReaction{PostID: "p1", UserID: "u2", Reaction: "fire"},
	}

	for _, r := range records {
		t.Run(string(r.Kind()), func(t *testing.T) {
			if err := Record(r); err != nil {
				t.Errorf("Record(%T) = %v, want nil", r, err)
			}
		})
	}
}

func TestRecord_RejectsMalformedID(t *testing.T) {
	w := &types.Workout{UserID: "u1", Title: "Legs", PerformedAt: testNow}
	w.ID = "not-a-uuid"

	errs := fieldErrors(t, Record(w))

	if _, ok := errs["id"]; !ok {
		t.Errorf("expected id error, got %v", errs)
	}
}

func TestRecord_WorkoutFieldErrors(t *testing.T) {
	w := &types.Workout{DurationMinutes: MaxMinutes + 1, Title: strings.Repeat("a", MaxTitleLength+1)}

	err := Record(w)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("errors.Is(err, ErrInvalid) = false for %v", err)
	}
	errs := fieldErrors(t, err)

	for _, field := range []string{"user_id", "title", "performed_at", "duration_minutes"} {
		if _, ok := errs[field]; !ok {
			t.Errorf("expected error on %s, got %v", field, errs)
		}
	}
}

func TestRecord_FriendWithSelf(t *testing.T) {
	f := &types.Friend{UserID: "u1", FriendUserID: "u1", Status: types.FriendAccepted}

	errs := fieldErrors(t, Record(f))

	if msg := errs["friend_user_id"]; msg != "must differ from user_id" {
		t.Errorf("friend_user_id error = %q", msg)
	}
}

func TestRecord_GroupPostNeedsGroup(t *testing.T) {
	p := &types.FeedPost{UserID: "u1", Visibility: types.VisibilityGroup}

	errs := fieldErrors(t, Record(p))

	if _, ok := errs["group_id"]; !ok {
		t.Errorf("expected group_id error, got %v", errs)
	}
}

func TestRecord_OptionalReferencesMustBeUUIDs(t *testing.T) {
	const valid = "0190b1f6-8f3a-7c00-9a1b-2c3d4e5f6a7b"

	tests := []struct {
		name  string
		rec   types.Record
		field string
	}{
		{"workout cycle", &types.Workout{UserID: "u1", Title: "Legs", PerformedAt: testNow, CycleID: types.Ptr("cycle-1")}, "cycle_id"},
		{"scheduled template", &types.ScheduledTraining{UserID: "u1", Title: "Intervals", ScheduledFor: testNow, TemplateID: types.Ptr("tpl")}, "template_id"},
		{"scheduled workout", &types.ScheduledTraining{UserID: "u1", Title: "Intervals", ScheduledFor: testNow, WorkoutID: types.Ptr("w1")}, "workout_id"},
		{"post group", &types.FeedPost{UserID: "u1", Visibility: types.VisibilityGroup, GroupID: types.Ptr("g1")}, "group_id"},
		{"post workout", &types.FeedPost{UserID: "u1", Visibility: types.VisibilityPublic, WorkoutID: types.Ptr("w1")}, "workout_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := fieldErrors(t, Record(tt.rec))[tt.field]; !ok {
				t.Errorf("expected %s error for %+v", tt.field, tt.rec)
			}
		})
	}

	// Unset references and well-formed ones pass
	ok := []types.Record{
		&types.Workout{UserID: "u1", Title: "Legs", PerformedAt: testNow, CycleID: types.Ptr(valid)},
		&types.ScheduledTraining{UserID: "u1", Title: "Intervals", ScheduledFor: testNow, TemplateID: types.Ptr(valid), WorkoutID: types.Ptr(valid)},
		&types.FeedPost{UserID: "u1", Visibility: types.VisibilityGroup, GroupID: types.Ptr(valid), WorkoutID: types.Ptr(valid)},
	}
	for _, r := range ok {
		if err := Record(r); err != nil {
			t.Errorf("Record(%T) = %v, want nil", r, err)
		}
	}
}

func TestRecord_CycleEndBeforeStart(t *testing.T) {
	end := testNow.Add(-24 * time.Hour)
	c := &types.Cycle{UserID: "u1", Name: "Base", StartDate: testNow, EndDate: &end}

	errs := fieldErrors(t, Record(c))

	if _, ok := errs["end_date"]; !ok {
		t.Errorf("expected end_date error, got %v", errs)
	}
}

func TestRecord_StrengthTestNeedsReps(t *testing.T) {
	s := &types.StrengthTest{UserID: "u1", ExerciseName: "Bench", WeightKg: 100, TestedAt: testNow}

	errs := fieldErrors(t, Record(s))

	if msg := errs["reps"]; msg != "must be at least 1" {
		t.Errorf("reps error = %q", msg)
	}
}

func TestPatch_EnumColumns(t *testing.T) {
	tests := []struct {
		name    string
		kind    types.Kind
		patch   types.Patch
		wantErr bool
	}{
		{"valid member status", types.KindGroupMember, types.GroupMemberPatch{Status: types.Ptr(types.MemberRejected)}, false},
		{"invalid member status", types.KindGroupMember, types.GroupMemberPatch{Status: types.Ptr("banished")}, true},
		{"invalid visibility", types.KindFeedPost, types.FeedPostPatch{Visibility: types.Ptr("everyone")}, true},
		{"invalid unit system", types.KindProfile, types.ProfilePatch{UnitSystem: types.Ptr("furlongs")}, true},
		{"blank title", types.KindWorkout, types.WorkoutPatch{Title: types.Ptr("  ")}, true},
		{"negative sets", types.KindExercise, types.ExercisePatch{Sets: types.Ptr(-1)}, true},
		{"clearing nullable column", types.KindWorkout, types.WorkoutPatch{CycleID: types.Null[string]()}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Patch(tt.kind, tt.patch)
			if (err != nil) != tt.wantErr {
				t.Errorf("Patch() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
