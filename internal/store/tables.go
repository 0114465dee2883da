package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hyperengineering/fitsync/internal/types"
)

var profileTable = tableDef[types.Profile]{
	kind:    types.KindProfile,
	table:   "profiles",
	columns: []string{"user_id", "username", "display_name", "avatar_url", "bio", "unit_system"},
	fields: func(p *types.Profile) []any {
		return []any{&p.UserID, &p.Username, &p.DisplayName, &p.AvatarURL, &p.Bio, &p.UnitSystem}
	},
	values: func(p *types.Profile) []any {
		return []any{p.UserID, p.Username, p.DisplayName, p.AvatarURL, p.Bio, p.UnitSystem}
	},
	owner: "user_id = ?",
	order: "created_at ASC, id ASC",
}

var cycleTable = tableDef[types.Cycle]{
	kind:    types.KindCycle,
	table:   "cycles",
	columns: []string{"user_id", "name", "goal", "start_date", "end_date", "notes"},
	fields: func(c *types.Cycle) []any {
		return []any{&c.UserID, &c.Name, &c.Goal, timeDest{&c.StartDate}, nullTimeDest{&c.EndDate}, &c.Notes}
	},
	values: func(c *types.Cycle) []any {
		return []any{c.UserID, c.Name, c.Goal, c.StartDate, c.EndDate, c.Notes}
	},
	owner: "user_id = ?",
	order: "start_date DESC, id DESC",
}

var workoutTable = tableDef[types.Workout]{
	kind:    types.KindWorkout,
	table:   "workouts",
	columns: []string{"user_id", "cycle_id", "title", "performed_at", "duration_minutes", "notes", "completed"},
	fields: func(w *types.Workout) []any {
		return []any{&w.UserID, &w.CycleID, &w.Title, timeDest{&w.PerformedAt}, &w.DurationMinutes, &w.Notes, &w.Completed}
	},
	values: func(w *types.Workout) []any {
		return []any{w.UserID, w.CycleID, w.Title, w.PerformedAt, w.DurationMinutes, w.Notes, w.Completed}
	},
	owner: "user_id = ?",
	order: "performed_at DESC, id DESC",
}

var exerciseTable = tableDef[types.Exercise]{
	kind:    types.KindExercise,
	table:   "exercises",
	columns: []string{"workout_id", "name", "sets", "reps", "weight_kg", "position", "notes"},
	fields: func(e *types.Exercise) []any {
		return []any{&e.WorkoutID, &e.Name, &e.Sets, &e.Reps, &e.WeightKg, &e.Position, &e.Notes}
	},
	values: func(e *types.Exercise) []any {
		return []any{e.WorkoutID, e.Name, e.Sets, e.Reps, e.WeightKg, e.Position, e.Notes}
	},
	owner: "workout_id IN (SELECT id FROM workouts WHERE user_id = ?)",
	order: "workout_id ASC, position ASC, id ASC",
}

var goalTable = tableDef[types.Goal]{
	kind:    types.KindGoal,
	table:   "goals",
	columns: []string{"user_id", "title", "metric", "target_value", "current_value", "unit", "deadline", "achieved"},
	fields: func(g *types.Goal) []any {
		return []any{&g.UserID, &g.Title, &g.Metric, &g.TargetValue, &g.CurrentValue, &g.Unit, nullTimeDest{&g.Deadline}, &g.Achieved}
	},
	values: func(g *types.Goal) []any {
		return []any{g.UserID, g.Title, g.Metric, g.TargetValue, g.CurrentValue, g.Unit, g.Deadline, g.Achieved}
	},
	owner: "user_id = ?",
	order: "created_at DESC, id DESC",
}

var strengthTestTable = tableDef[types.StrengthTest]{
	kind:    types.KindStrengthTest,
	table:   "strength_tests",
	columns: []string{"user_id", "exercise_name", "weight_kg", "reps", "estimated_one_rm", "tested_at"},
	fields: func(s *types.StrengthTest) []any {
		return []any{&s.UserID, &s.ExerciseName, &s.WeightKg, &s.Reps, &s.EstimatedOneRM, timeDest{&s.TestedAt}}
	},
	values: func(s *types.StrengthTest) []any {
		return []any{s.UserID, s.ExerciseName, s.WeightKg, s.Reps, s.EstimatedOneRM, s.TestedAt}
	},
	owner: "user_id = ?",
	order: "tested_at DESC, id DESC",
}

var bodyMeasurementTable = tableDef[types.BodyMeasurement]{
	kind:    types.KindBodyMeasurement,
	table:   "body_measurements",
	columns: []string{"user_id", "measured_at", "weight_kg", "body_fat_pct", "waist_cm", "chest_cm", "arm_cm", "notes"},
	fields: func(b *types.BodyMeasurement) []any {
		return []any{&b.UserID, timeDest{&b.MeasuredAt}, &b.WeightKg, &b.BodyFatPct, &b.WaistCm, &b.ChestCm, &b.ArmCm, &b.Notes}
	},
	values: func(b *types.BodyMeasurement) []any {
		return []any{b.UserID, b.MeasuredAt, b.WeightKg, b.BodyFatPct, b.WaistCm, b.ChestCm, b.ArmCm, b.Notes}
	},
	owner: "user_id = ?",
	order: "measured_at DESC, id DESC",
}

var scheduledTrainingTable = tableDef[types.ScheduledTraining]{
	kind:    types.KindScheduledTraining,
	table:   "scheduled_trainings",
	columns: []string{"user_id", "template_id", "title", "scheduled_for", "completed", "workout_id"},
	fields: func(s *types.ScheduledTraining) []any {
		return []any{&s.UserID, &s.TemplateID, &s.Title, timeDest{&s.ScheduledFor}, &s.Completed, &s.WorkoutID}
	},
	values: func(s *types.ScheduledTraining) []any {
		return []any{s.UserID, s.TemplateID, s.Title, s.ScheduledFor, s.Completed, s.WorkoutID}
	},
	owner: "user_id = ?",
	order: "scheduled_for ASC, id ASC",
}

var trainingTemplateTable = tableDef[types.TrainingTemplate]{
	kind:    types.KindTrainingTemplate,
	table:   "training_templates",
	columns: []string{"user_id", "name", "description", "exercises"},
	fields: func(t *types.TrainingTemplate) []any {
		return []any{&t.UserID, &t.Name, &t.Description, rawDest{&t.Exercises}}
	},
	values: func(t *types.TrainingTemplate) []any {
		return []any{t.UserID, t.Name, t.Description, t.Exercises}
	},
	owner: "user_id = ?",
	order: "name ASC, id ASC",
}

var friendTable = tableDef[types.Friend]{
	kind:    types.KindFriend,
	table:   "friends",
	columns: []string{"user_id", "friend_user_id", "status"},
	fields: func(f *types.Friend) []any {
		return []any{&f.UserID, &f.FriendUserID, &f.Status}
	},
	values: func(f *types.Friend) []any {
		return []any{f.UserID, f.FriendUserID, f.Status}
	},
	owner: "user_id = ? OR friend_user_id = ?",
	order: "created_at ASC, id ASC",
}

var friendInviteTable = tableDef[types.FriendInvite]{
	kind:    types.KindFriendInvite,
	table:   "friend_invites",
	columns: []string{"inviter_id", "invitee_id", "invite_code", "status", "expires_at"},
	fields: func(f *types.FriendInvite) []any {
		return []any{&f.InviterID, &f.InviteeID, &f.InviteCode, &f.Status, nullTimeDest{&f.ExpiresAt}}
	},
	values: func(f *types.FriendInvite) []any {
		return []any{f.InviterID, f.InviteeID, f.InviteCode, f.Status, f.ExpiresAt}
	},
	owner: "inviter_id = ?",
	order: "created_at DESC, id DESC",
}

var groupTable = tableDef[types.Group]{
	kind:    types.KindGroup,
	table:   "groups",
	columns: []string{"owner_id", "name", "description", "is_private"},
	fields: func(g *types.Group) []any {
		return []any{&g.OwnerID, &g.Name, &g.Description, &g.IsPrivate}
	},
	values: func(g *types.Group) []any {
		return []any{g.OwnerID, g.Name, g.Description, g.IsPrivate}
	},
	owner: "owner_id = ?",
	order: "name ASC, id ASC",
}

var groupMemberTable = tableDef[types.GroupMember]{
	kind:    types.KindGroupMember,
	table:   "group_members",
	columns: []string{"group_id", "user_id", "role", "status"},
	fields: func(m *types.GroupMember) []any {
		return []any{&m.GroupID, &m.UserID, &m.Role, &m.Status}
	},
	values: func(m *types.GroupMember) []any {
		return []any{m.GroupID, m.UserID, m.Role, m.Status}
	},
	owner: `user_id = ? OR group_id IN (SELECT id FROM "groups" WHERE owner_id = ?)`,
	order: "group_id ASC, created_at ASC, id ASC",
}

var groupInviteTable = tableDef[types.GroupInvite]{
	kind:    types.KindGroupInvite,
	table:   "group_invites",
	columns: []string{"group_id", "inviter_id", "invitee_id", "status"},
	fields: func(i *types.GroupInvite) []any {
		return []any{&i.GroupID, &i.InviterID, &i.InviteeID, &i.Status}
	},
	values: func(i *types.GroupInvite) []any {
		return []any{i.GroupID, i.InviterID, i.InviteeID, i.Status}
	},
	owner: "inviter_id = ?",
	order: "created_at DESC, id DESC",
}

var feedPostTable = tableDef[types.FeedPost]{
	kind:    types.KindFeedPost,
	table:   "feed_posts",
	columns: []string{"user_id", "group_id", "workout_id", "body", "visibility"},
	fields: func(p *types.FeedPost) []any {
		return []any{&p.UserID, &p.GroupID, &p.WorkoutID, &p.Body, &p.Visibility}
	},
	values: func(p *types.FeedPost) []any {
		return []any{p.UserID, p.GroupID, p.WorkoutID, p.Body, p.Visibility}
	},
	owner: "user_id = ?",
	order: "created_at DESC, id DESC",
}

var feedReactionTable = tableDef[types.FeedReaction]{
	kind:    types.KindFeedReaction,
	table:   "feed_reactions",
	columns: []string{"post_id", "user_id", "reaction"},
	fields: func(r *types.FeedReaction) []any {
		return []any{&r.PostID, &r.UserID, &r.Reaction}
	},
	values: func(r *types.FeedReaction) []any {
		return []any{r.PostID, r.UserID, r.Reaction}
	},
	owner:      "user_id = ?",
	order:      "created_at ASC, id ASC",
	conflict:   []string{"post_id", "user_id", "reaction"},
	afterApply: collapseReaction,
}

// collapseReaction tombstones confirmed local aliases of a pulled reaction.
// A reaction created on this device under another id converges on the
// remote's row once its push has been confirmed.
func collapseReaction(ctx context.Context, tx *sql.Tx, r *types.FeedReaction) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE feed_reactions SET deleted = 1
		WHERE post_id = ? AND user_id = ? AND reaction = ? AND id <> ?
		  AND pending_sync = 0 AND deleted = 0
	`, r.PostID, r.UserID, r.Reaction, r.ID)
	if err != nil {
		return fmt.Errorf("collapse reaction: %w", err)
	}
	return nil
}
