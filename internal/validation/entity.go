package validation

import (
	"fmt"
	"time"

	"github.com/hyperengineering/fitsync/internal/types"
)

// Field limits
const (
	MaxIDLength    = 64
	MaxTitleLength = 200
	MaxNotesLength = 5000
	MaxBodyLength  = 2000
	MaxMinutes     = 24 * 60
)

var (
	unitSystems    = []string{types.UnitMetric, types.UnitImperial}
	friendStatuses = []string{types.FriendPending, types.FriendAccepted, types.FriendBlocked}
	inviteStatuses = []string{types.InvitePending, types.InviteAccepted, types.InviteDeclined, types.InviteRevoked}
	memberRoles    = []string{types.RoleOwner, types.RoleAdmin, types.RoleMember}
	memberStatuses = []string{types.MemberActive, types.MemberPending, types.MemberRemoved, types.MemberRejected}
	visibilities   = []string{types.VisibilityPublic, types.VisibilityFriends, types.VisibilityGroup, types.VisibilityPrivate}
)

// enumColumns restricts the values a patch may write into these columns.
var enumColumns = map[types.Kind]map[string][]string{
	types.KindProfile:      {"unit_system": unitSystems},
	types.KindFriend:       {"status": friendStatuses},
	types.KindFriendInvite: {"status": inviteStatuses},
	types.KindGroupMember:  {"role": memberRoles, "status": memberStatuses},
	types.KindGroupInvite:  {"status": inviteStatuses},
	types.KindFeedPost:     {"visibility": visibilities},
}

// Record checks a row about to be created locally. The ID may be empty, in
// which case the store assigns one.
func Record(r types.Record) error {
	c := &Collector{}
	if id := r.Meta().ID; id != "" {
		c.Add(ValidateUUID("id", id))
	}

	switch v := r.(type) {
	case *types.Profile:
		reference(c, "user_id", v.UserID)
		ValidateText(c, "username", v.Username, MaxTitleLength)
		ValidateText(c, "display_name", v.DisplayName, MaxTitleLength)
		ValidateText(c, "bio", v.Bio, MaxNotesLength)
		c.Add(ValidateEnum("unit_system", v.UnitSystem, unitSystems))
	case *types.Cycle:
		reference(c, "user_id", v.UserID)
		title(c, "name", v.Name)
		timestamp(c, "start_date", v.StartDate)
		if v.EndDate != nil && v.EndDate.Before(v.StartDate) {
			c.Add(&ValidationError{Field: "end_date", Message: "must not be before start_date"})
		}
		ValidateText(c, "notes", v.Notes, MaxNotesLength)
	case *types.Workout:
		reference(c, "user_id", v.UserID)
		c.Add(ValidateOptionalUUID("cycle_id", v.CycleID))
		title(c, "title", v.Title)
		timestamp(c, "performed_at", v.PerformedAt)
		c.Add(ValidateRange("duration_minutes", float64(v.DurationMinutes), 0, MaxMinutes))
		ValidateText(c, "notes", v.Notes, MaxNotesLength)
	case *types.Exercise:
		reference(c, "workout_id", v.WorkoutID)
		title(c, "name", v.Name)
		nonNegative(c, "sets", float64(v.Sets))
		nonNegative(c, "reps", float64(v.Reps))
		nonNegative(c, "weight_kg", v.WeightKg)
		ValidateText(c, "notes", v.Notes, MaxNotesLength)
	case *types.Goal:
		reference(c, "user_id", v.UserID)
		title(c, "title", v.Title)
		ValidateText(c, "metric", v.Metric, MaxTitleLength)
		ValidateText(c, "unit", v.Unit, MaxTitleLength)
	case *types.StrengthTest:
		reference(c, "user_id", v.UserID)
		title(c, "exercise_name", v.ExerciseName)
		nonNegative(c, "weight_kg", v.WeightKg)
		if v.Reps < 1 {
			c.Add(&ValidationError{Field: "reps", Message: "must be at least 1"})
		}
		timestamp(c, "tested_at", v.TestedAt)
	case *types.BodyMeasurement:
		reference(c, "user_id", v.UserID)
		timestamp(c, "measured_at", v.MeasuredAt)
		for field, value := range map[string]*float64{
			"weight_kg": v.WeightKg, "body_fat_pct": v.BodyFatPct,
			"waist_cm": v.WaistCm, "chest_cm": v.ChestCm, "arm_cm": v.ArmCm,
		} {
			if value != nil {
				nonNegative(c, field, *value)
			}
		}
		if v.BodyFatPct != nil {
			c.Add(ValidateRange("body_fat_pct", *v.BodyFatPct, 0, 100))
		}
		ValidateText(c, "notes", v.Notes, MaxNotesLength)
	case *types.ScheduledTraining:
		reference(c, "user_id", v.UserID)
		c.Add(ValidateOptionalUUID("template_id", v.TemplateID))
		c.Add(ValidateOptionalUUID("workout_id", v.WorkoutID))
		title(c, "title", v.Title)
		timestamp(c, "scheduled_for", v.ScheduledFor)
	case *types.TrainingTemplate:
		reference(c, "user_id", v.UserID)
		title(c, "name", v.Name)
		ValidateText(c, "description", v.Description, MaxNotesLength)
	case *types.Friend:
		reference(c, "user_id", v.UserID)
		reference(c, "friend_user_id", v.FriendUserID)
		if v.UserID != "" && v.UserID == v.FriendUserID {
			c.Add(&ValidationError{Field: "friend_user_id", Message: "must differ from user_id"})
		}
		c.Add(ValidateEnum("status", v.Status, friendStatuses))
	case *types.FriendInvite:
		reference(c, "inviter_id", v.InviterID)
		reference(c, "invite_code", v.InviteCode)
		c.Add(ValidateEnum("status", v.Status, inviteStatuses))
	case *types.Group:
		reference(c, "owner_id", v.OwnerID)
		title(c, "name", v.Name)
		ValidateText(c, "description", v.Description, MaxNotesLength)
	case *types.GroupMember:
		reference(c, "group_id", v.GroupID)
		reference(c, "user_id", v.UserID)
		c.Add(ValidateEnum("role", v.Role, memberRoles))
		c.Add(ValidateEnum("status", v.Status, memberStatuses))
	case *types.GroupInvite:
		reference(c, "group_id", v.GroupID)
		reference(c, "inviter_id", v.InviterID)
		reference(c, "invitee_id", v.InviteeID)
		c.Add(ValidateEnum("status", v.Status, inviteStatuses))
	case *types.FeedPost:
		reference(c, "user_id", v.UserID)
		c.Add(ValidateOptionalUUID("group_id", v.GroupID))
		c.Add(ValidateOptionalUUID("workout_id", v.WorkoutID))
		ValidateText(c, "body", v.Body, MaxBodyLength)
		c.Add(ValidateEnum("visibility", v.Visibility, visibilities))
		if v.Visibility == types.VisibilityGroup && v.GroupID == nil {
			c.Add(&ValidationError{Field: "group_id", Message: "is required for group visibility"})
		}
	case *types.FeedReaction:
		reference(c, "post_id", v.PostID)
		reference(c, "user_id", v.UserID)
		c.Add(ValidateRequired("reaction", v.Reaction))
		c.Add(ValidateMaxLength("reaction", v.Reaction, 32))
	default:
		return fmt.Errorf("%w: unsupported record %T", ErrInvalid, r)
	}

	return c.Err()
}

// Patch checks the values a typed patch would write for the given kind.
func Patch(kind types.Kind, p types.Patch) error {
	c := &Collector{}
	enums := enumColumns[kind]

	for _, a := range p.Assignments() {
		switch v := a.Value.(type) {
		case string:
			if allowed, ok := enums[a.Column]; ok {
				c.Add(ValidateEnum(a.Column, v, allowed))
				continue
			}
			ValidateText(c, a.Column, v, MaxNotesLength)
			if isTitleColumn(a.Column) {
				c.Add(ValidateRequired(a.Column, v))
			}
		case int:
			nonNegative(c, a.Column, float64(v))
		case float64:
			nonNegative(c, a.Column, v)
		case time.Time:
			timestamp(c, a.Column, v)
		}
	}

	return c.Err()
}

func isTitleColumn(column string) bool {
	switch column {
	case "title", "name", "exercise_name":
		return true
	}
	return false
}

func reference(c *Collector, field, value string) {
	c.Add(ValidateRequired(field, value))
	c.Add(ValidateMaxLength(field, value, MaxIDLength))
}

func title(c *Collector, field, value string) {
	c.Add(ValidateRequired(field, value))
	ValidateText(c, field, value, MaxTitleLength)
}

func nonNegative(c *Collector, field string, value float64) {
	if value < 0 {
		c.Add(&ValidationError{Field: field, Message: "must not be negative"})
	}
}

func timestamp(c *Collector, field string, value time.Time) {
	if value.IsZero() {
		c.Add(&ValidationError{Field: field, Message: "is required"})
	}
}
