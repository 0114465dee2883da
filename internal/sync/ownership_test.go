package sync

import (
	"testing"

	"github.com/hyperengineering/fitsync/internal/types"
)

func TestEligible(t *testing.T) {
	part := Participation{
		WorkoutOwners: map[string]string{"w-alice": "alice", "w-bob": "bob"},
		GroupOwners:   map[string]string{"g-alice": "alice", "g-bob": "bob"},
	}

	tests := []struct {
		name string
		rec  types.Record
		want bool
	}{
		{"own workout", &types.Workout{UserID: "alice"}, true},
		{"foreign workout", &types.Workout{UserID: "bob"}, false},
		{"own profile", &types.Profile{UserID: "alice"}, true},
		{"exercise in own workout", &types.Exercise{WorkoutID: "w-alice"}, true},
		{"exercise in foreign workout", &types.Exercise{WorkoutID: "w-bob"}, false},
		{"exercise with unknown workout", &types.Exercise{WorkoutID: "w-gone"}, false},
		{"friend edge as user", &types.Friend{UserID: "alice", FriendUserID: "bob"}, true},
		{"friend edge as friend", &types.Friend{UserID: "bob", FriendUserID: "alice"}, true},
		{"friend edge between others", &types.Friend{UserID: "bob", FriendUserID: "carol"}, false},
		{"own friend invite", &types.FriendInvite{InviterID: "alice"}, true},
		{"received friend invite", &types.FriendInvite{InviterID: "bob", InviteeID: types.Ptr("alice")}, false},
		{"own group", &types.Group{OwnerID: "alice"}, true},
		{"foreign group", &types.Group{OwnerID: "bob"}, false},
		{"own membership", &types.GroupMember{GroupID: "g-bob", UserID: "alice"}, true},
		{"member of owned group", &types.GroupMember{GroupID: "g-alice", UserID: "carol"}, true},
		{"member of foreign group", &types.GroupMember{GroupID: "g-bob", UserID: "carol"}, false},
		{"sent group invite", &types.GroupInvite{InviterID: "alice", InviteeID: "bob"}, true},
		{"received group invite", &types.GroupInvite{InviterID: "bob", InviteeID: "alice"}, false},
		{"own post", &types.FeedPost{UserID: "alice"}, true},
		{"foreign post", &types.FeedPost{UserID: "bob"}, false},
		{"own reaction", &types.FeedReaction{UserID: "alice"}, true},
		{"foreign reaction on own post", &types.FeedReaction{UserID: "bob", PostID: "p-alice"}, false},
		{"own goal", &types.Goal{UserID: "alice"}, true},
		{"own template", &types.TrainingTemplate{UserID: "alice"}, true},
		{"foreign scheduled training", &types.ScheduledTraining{UserID: "bob"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Eligible("alice", part, tt.rec); got != tt.want {
				t.Errorf("Eligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEligible_SignedOut(t *testing.T) {
	if Eligible("", Participation{}, &types.Workout{UserID: ""}) {
		t.Error("no row is writable without a user")
	}
}

func TestFilterEligible(t *testing.T) {
	recs := []types.Record{
		&types.Friend{SyncMeta: types.SyncMeta{ID: "f1"}, UserID: "alice", FriendUserID: "bob"},
		&types.Friend{SyncMeta: types.SyncMeta{ID: "f2"}, UserID: "bob", FriendUserID: "carol"},
		&types.Friend{SyncMeta: types.SyncMeta{ID: "f3"}, UserID: "carol", FriendUserID: "alice"},
	}

	eligible, excluded := FilterEligible("alice", Participation{}, recs)

	if len(eligible) != 2 || eligible[0].Meta().ID != "f1" || eligible[1].Meta().ID != "f3" {
		t.Errorf("eligible = %v", ids(eligible))
	}
	if len(excluded) != 1 || excluded[0].Meta().ID != "f2" {
		t.Errorf("excluded = %v", ids(excluded))
	}
}

func TestOrder(t *testing.T) {
	pos := make(map[types.Kind]int, len(Order))
	for i, k := range Order {
		if _, dup := pos[k]; dup {
			t.Fatalf("%s listed twice", k)
		}
		pos[k] = i
	}
	if len(pos) != 16 {
		t.Errorf("order covers %d kinds, want 16", len(pos))
	}

	parents := [][2]types.Kind{
		{types.KindWorkout, types.KindExercise},
		{types.KindCycle, types.KindWorkout},
		{types.KindGroup, types.KindGroupMember},
		{types.KindGroup, types.KindGroupInvite},
		{types.KindFeedPost, types.KindFeedReaction},
		{types.KindProfile, types.KindCycle},
	}
	for _, p := range parents {
		if pos[p[0]] >= pos[p[1]] {
			t.Errorf("%s must sync before %s", p[0], p[1])
		}
	}
}

func ids(recs []types.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Meta().ID
	}
	return out
}
