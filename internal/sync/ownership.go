package sync

import "github.com/hyperengineering/fitsync/internal/types"

// Participation holds the parent ownership needed to judge child rows.
// Both maps include tombstoned parents.
type Participation struct {
	// WorkoutOwners maps workout id to user id.
	WorkoutOwners map[string]string
	// GroupOwners maps group id to owner id.
	GroupOwners map[string]string
}

// Eligible reports whether userID may write rec to the remote. A device
// caches other users' rows for display; those are never pushed.
func Eligible(userID string, p Participation, rec types.Record) bool {
	if userID == "" {
		return false
	}
	switch v := rec.(type) {
	case *types.Profile:
		return v.UserID == userID
	case *types.Cycle:
		return v.UserID == userID
	case *types.Workout:
		return v.UserID == userID
	case *types.Exercise:
		return p.WorkoutOwners[v.WorkoutID] == userID
	case *types.Goal:
		return v.UserID == userID
	case *types.StrengthTest:
		return v.UserID == userID
	case *types.BodyMeasurement:
		return v.UserID == userID
	case *types.ScheduledTraining:
		return v.UserID == userID
	case *types.TrainingTemplate:
		return v.UserID == userID
	case *types.Friend:
		return v.Involves(userID)
	case *types.FriendInvite:
		return v.InviterID == userID
	case *types.Group:
		return v.OwnerID == userID
	case *types.GroupMember:
		return v.UserID == userID || p.GroupOwners[v.GroupID] == userID
	case *types.GroupInvite:
		return v.InviterID == userID
	case *types.FeedPost:
		return v.UserID == userID
	case *types.FeedReaction:
		return v.UserID == userID
	}
	return false
}

// FilterEligible splits records into those userID may push and the rest.
func FilterEligible(userID string, p Participation, recs []types.Record) (eligible, excluded []types.Record) {
	for _, r := range recs {
		if Eligible(userID, p, r) {
			eligible = append(eligible, r)
		} else {
			excluded = append(excluded, r)
		}
	}
	return eligible, excluded
}
