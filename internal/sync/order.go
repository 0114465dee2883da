package sync

import "github.com/hyperengineering/fitsync/internal/types"

// Order is the fixed sequence a cycle walks. Parents precede children so a
// child never reaches the remote before the row it references.
var Order = []types.Kind{
	types.KindProfile,
	types.KindCycle,
	types.KindWorkout,
	types.KindExercise,
	types.KindGoal,
	types.KindStrengthTest,
	types.KindBodyMeasurement,
	types.KindScheduledTraining,
	types.KindTrainingTemplate,
	types.KindFriend,
	types.KindFriendInvite,
	types.KindGroup,
	types.KindGroupMember,
	types.KindGroupInvite,
	types.KindFeedPost,
	types.KindFeedReaction,
}
