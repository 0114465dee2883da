package store

import (
	"context"
	"time"

	"github.com/hyperengineering/fitsync/internal/types"
)

type WorkoutRepo struct {
	*Repo[types.Workout, *types.Workout, types.WorkoutPatch]
}

// ListByCycle returns the live workouts logged under a training cycle.
func (r *WorkoutRepo) ListByCycle(ctx context.Context, cycleID string) ([]*types.Workout, error) {
	return r.list(ctx, "cycle_id = ?", cycleID)
}

// ListBetween returns userID's workouts performed in [from, to).
func (r *WorkoutRepo) ListBetween(ctx context.Context, userID string, from, to time.Time) ([]*types.Workout, error) {
	return r.list(ctx, "user_id = ? AND performed_at >= ? AND performed_at < ?",
		userID, formatTime(from), formatTime(to))
}

// Page lists userID's workouts newest first.
func (r *WorkoutRepo) Page(ctx context.Context, userID string, req PageRequest) (*Page[*types.Workout], error) {
	return r.page(ctx, "performed_at", func(w *types.Workout) time.Time { return w.PerformedAt },
		"user_id = ?", []any{userID}, req)
}

type ExerciseRepo struct {
	*Repo[types.Exercise, *types.Exercise, types.ExercisePatch]
}

// ListByWorkout returns a workout's exercises in display order.
func (r *ExerciseRepo) ListByWorkout(ctx context.Context, workoutID string) ([]*types.Exercise, error) {
	return r.list(ctx, "workout_id = ?", workoutID)
}

type GoalRepo struct {
	*Repo[types.Goal, *types.Goal, types.GoalPatch]
}

// ListActive returns userID's goals not yet achieved.
func (r *GoalRepo) ListActive(ctx context.Context, userID string) ([]*types.Goal, error) {
	return r.list(ctx, "user_id = ? AND achieved = 0", userID)
}

type StrengthTestRepo struct {
	*Repo[types.StrengthTest, *types.StrengthTest, types.StrengthTestPatch]
}

// Create fills in the one-rep-max estimate when the caller left it empty.
func (r *StrengthTestRepo) Create(ctx context.Context, t *types.StrengthTest) (string, error) {
	if t.EstimatedOneRM == 0 {
		t.EstimatedOneRM = types.EstimateOneRM(t.WeightKg, t.Reps)
	}
	return r.Repo.Create(ctx, t)
}

// ListByExercise returns userID's tests of one exercise, newest first.
func (r *StrengthTestRepo) ListByExercise(ctx context.Context, userID, exercise string) ([]*types.StrengthTest, error) {
	return r.list(ctx, "user_id = ? AND exercise_name = ?", userID, exercise)
}

// Page lists userID's strength tests newest first.
func (r *StrengthTestRepo) Page(ctx context.Context, userID string, req PageRequest) (*Page[*types.StrengthTest], error) {
	return r.page(ctx, "tested_at", func(t *types.StrengthTest) time.Time { return t.TestedAt },
		"user_id = ?", []any{userID}, req)
}

type BodyMeasurementRepo struct {
	*Repo[types.BodyMeasurement, *types.BodyMeasurement, types.BodyMeasurementPatch]
}

// Page lists userID's measurements newest first.
func (r *BodyMeasurementRepo) Page(ctx context.Context, userID string, req PageRequest) (*Page[*types.BodyMeasurement], error) {
	return r.page(ctx, "measured_at", func(b *types.BodyMeasurement) time.Time { return b.MeasuredAt },
		"user_id = ?", []any{userID}, req)
}

// Latest returns userID's most recent measurement.
func (r *BodyMeasurementRepo) Latest(ctx context.Context, userID string) (*types.BodyMeasurement, error) {
	rows, err := r.query(ctx, r.s.db, "deleted = 0 AND user_id = ?", []any{userID}, "measured_at DESC, id DESC", 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

type ScheduledTrainingRepo struct {
	*Repo[types.ScheduledTraining, *types.ScheduledTraining, types.ScheduledTrainingPatch]
}

// ListBetween returns userID's sessions scheduled in [from, to).
func (r *ScheduledTrainingRepo) ListBetween(ctx context.Context, userID string, from, to time.Time) ([]*types.ScheduledTraining, error) {
	return r.list(ctx, "user_id = ? AND scheduled_for >= ? AND scheduled_for < ?",
		userID, formatTime(from), formatTime(to))
}

type FriendRepo struct {
	*Repo[types.Friend, *types.Friend, types.FriendPatch]
}

// FriendIDs returns the users with an accepted edge to userID.
func (r *FriendRepo) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	edges, err := r.list(ctx, "(user_id = ? OR friend_user_id = ?) AND status = ?",
		userID, userID, types.FriendAccepted)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(edges))
	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		other := e.Other(userID)
		if !seen[other] {
			seen[other] = true
			ids = append(ids, other)
		}
	}
	return ids, nil
}

// Between returns the live edge joining a and b in either direction.
func (r *FriendRepo) Between(ctx context.Context, a, b string) (*types.Friend, error) {
	edges, err := r.list(ctx, "(user_id = ? AND friend_user_id = ?) OR (user_id = ? AND friend_user_id = ?)",
		a, b, b, a)
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, ErrNotFound
	}
	return edges[0], nil
}

type FriendInviteRepo struct {
	*Repo[types.FriendInvite, *types.FriendInvite, types.FriendInvitePatch]
}

// ByCode returns the live invite carrying code.
func (r *FriendInviteRepo) ByCode(ctx context.Context, code string) (*types.FriendInvite, error) {
	invites, err := r.list(ctx, "invite_code = ?", code)
	if err != nil {
		return nil, err
	}
	if len(invites) == 0 {
		return nil, ErrNotFound
	}
	return invites[0], nil
}

// Received returns invites redeemed by or addressed to userID.
func (r *FriendInviteRepo) Received(ctx context.Context, userID string) ([]*types.FriendInvite, error) {
	return r.list(ctx, "invitee_id = ?", userID)
}

type GroupRepo struct {
	*Repo[types.Group, *types.Group, types.GroupPatch]
}

// ListForMember returns groups userID owns or actively belongs to.
func (r *GroupRepo) ListForMember(ctx context.Context, userID string) ([]*types.Group, error) {
	return r.list(ctx, `owner_id = ? OR id IN (
		SELECT group_id FROM group_members WHERE user_id = ? AND status = ? AND deleted = 0)`,
		userID, userID, types.MemberActive)
}

type GroupMemberRepo struct {
	*Repo[types.GroupMember, *types.GroupMember, types.GroupMemberPatch]
}

// ListByGroup returns a group's live member rows.
func (r *GroupMemberRepo) ListByGroup(ctx context.Context, groupID string) ([]*types.GroupMember, error) {
	return r.list(ctx, "group_id = ?", groupID)
}

// Membership returns userID's row in groupID.
func (r *GroupMemberRepo) Membership(ctx context.Context, groupID, userID string) (*types.GroupMember, error) {
	rows, err := r.list(ctx, "group_id = ? AND user_id = ?", groupID, userID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

type GroupInviteRepo struct {
	*Repo[types.GroupInvite, *types.GroupInvite, types.GroupInvitePatch]
}

// ListByGroup returns a group's live invites.
func (r *GroupInviteRepo) ListByGroup(ctx context.Context, groupID string) ([]*types.GroupInvite, error) {
	return r.list(ctx, "group_id = ?", groupID)
}

// Received returns invites addressed to userID.
func (r *GroupInviteRepo) Received(ctx context.Context, userID string) ([]*types.GroupInvite, error) {
	return r.list(ctx, "invitee_id = ?", userID)
}

type FeedPostRepo struct {
	*Repo[types.FeedPost, *types.FeedPost, types.FeedPostPatch]
}

// FeedFilter narrows a feed page. Zero fields match everything held locally.
type FeedFilter struct {
	GroupID string
	UserID  string
}

// Page lists feed posts held on the device, newest first. Remote visibility
// rules already decided which posts reached the device.
func (r *FeedPostRepo) Page(ctx context.Context, f FeedFilter, req PageRequest) (*Page[*types.FeedPost], error) {
	var where string
	var args []any
	switch {
	case f.GroupID != "" && f.UserID != "":
		where, args = "group_id = ? AND user_id = ?", []any{f.GroupID, f.UserID}
	case f.GroupID != "":
		where, args = "group_id = ?", []any{f.GroupID}
	case f.UserID != "":
		where, args = "user_id = ?", []any{f.UserID}
	}
	return r.page(ctx, "created_at", func(p *types.FeedPost) time.Time { return p.CreatedAt }, where, args, req)
}

// ListByGroup returns a group's live posts, newest first.
func (r *FeedPostRepo) ListByGroup(ctx context.Context, groupID string) ([]*types.FeedPost, error) {
	return r.list(ctx, "group_id = ?", groupID)
}

type FeedReactionRepo struct {
	*Repo[types.FeedReaction, *types.FeedReaction, types.FeedReactionPatch]
}

// ListByPost returns a post's live reactions.
func (r *FeedReactionRepo) ListByPost(ctx context.Context, postID string) ([]*types.FeedReaction, error) {
	return r.list(ctx, "post_id = ?", postID)
}

// Counts tallies a post's live reactions by kind.
func (r *FeedReactionRepo) Counts(ctx context.Context, postID string) (map[string]int, error) {
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT reaction, COUNT(DISTINCT user_id) FROM feed_reactions
		WHERE post_id = ? AND deleted = 0
		GROUP BY reaction
	`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var reaction string
		var n int
		if err := rows.Scan(&reaction, &n); err != nil {
			return nil, err
		}
		counts[reaction] = n
	}
	return counts, rows.Err()
}
