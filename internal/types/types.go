package types

import (
	"encoding/json"
	"time"
)

// Kind identifies a synced entity type.
type Kind string

const (
	KindProfile           Kind = "profile"
	KindCycle             Kind = "cycle"
	KindWorkout           Kind = "workout"
	KindExercise          Kind = "exercise"
	KindGoal              Kind = "goal"
	KindStrengthTest      Kind = "strength_test"
	KindBodyMeasurement   Kind = "body_measurement"
	KindScheduledTraining Kind = "scheduled_training"
	KindTrainingTemplate  Kind = "training_template"
	KindFriend            Kind = "friend"
	KindFriendInvite      Kind = "friend_invite"
	KindGroup             Kind = "group"
	KindGroupMember       Kind = "group_member"
	KindGroupInvite       Kind = "group_invite"
	KindFeedPost          Kind = "feed_post"
	KindFeedReaction      Kind = "feed_reaction"
)

// SyncMeta is the bookkeeping shared by every synced row.
// PendingSync is local-only and never leaves the device.
type SyncMeta struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	ModifiedAt  time.Time `json:"modified_at"`
	PendingSync bool      `json:"-"`
	Deleted     bool      `json:"deleted"`
}

// Meta returns the row's sync bookkeeping.
func (m *SyncMeta) Meta() *SyncMeta { return m }

// Record is implemented by every entity pointer.
type Record interface {
	Meta() *SyncMeta
	Kind() Kind
}

// Profile unit systems
const (
	UnitMetric   = "metric"
	UnitImperial = "imperial"
)

// Friend edge status
const (
	FriendPending  = "pending"
	FriendAccepted = "accepted"
	FriendBlocked  = "blocked"
)

// Invite status, shared by friend and group invites
const (
	InvitePending  = "pending"
	InviteAccepted = "accepted"
	InviteDeclined = "declined"
	InviteRevoked  = "revoked"
)

// Group member roles and status
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"

	MemberActive   = "active"
	MemberPending  = "pending"
	MemberRemoved  = "removed"
	MemberRejected = "rejected"
)

// Feed post visibility
const (
	VisibilityPublic  = "public"
	VisibilityFriends = "friends"
	VisibilityGroup   = "group"
	VisibilityPrivate = "private"
)

type Profile struct {
	SyncMeta
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	Bio         string `json:"bio"`
	UnitSystem  string `json:"unit_system"`
}

func (*Profile) Kind() Kind { return KindProfile }

// Cycle is a training block, e.g. a twelve week strength phase.
type Cycle struct {
	SyncMeta
	UserID    string     `json:"user_id"`
	Name      string     `json:"name"`
	Goal      string     `json:"goal"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	Notes     string     `json:"notes"`
}

func (*Cycle) Kind() Kind { return KindCycle }

type Workout struct {
	SyncMeta
	UserID          string    `json:"user_id"`
	CycleID         *string   `json:"cycle_id"`
	Title           string    `json:"title"`
	PerformedAt     time.Time `json:"performed_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Notes           string    `json:"notes"`
	Completed       bool      `json:"completed"`
}

func (*Workout) Kind() Kind { return KindWorkout }

// Exercise belongs to a workout and is owned through it.
type Exercise struct {
	SyncMeta
	WorkoutID string  `json:"workout_id"`
	Name      string  `json:"name"`
	Sets      int     `json:"sets"`
	Reps      int     `json:"reps"`
	WeightKg  float64 `json:"weight_kg"`
	Position  int     `json:"position"`
	Notes     string  `json:"notes"`
}

func (*Exercise) Kind() Kind { return KindExercise }

type Goal struct {
	SyncMeta
	UserID       string     `json:"user_id"`
	Title        string     `json:"title"`
	Metric       string     `json:"metric"`
	TargetValue  float64    `json:"target_value"`
	CurrentValue float64    `json:"current_value"`
	Unit         string     `json:"unit"`
	Deadline     *time.Time `json:"deadline"`
	Achieved     bool       `json:"achieved"`
}

func (*Goal) Kind() Kind { return KindGoal }

type StrengthTest struct {
	SyncMeta
	UserID         string    `json:"user_id"`
	ExerciseName   string    `json:"exercise_name"`
	WeightKg       float64   `json:"weight_kg"`
	Reps           int       `json:"reps"`
	EstimatedOneRM float64   `json:"estimated_one_rm"`
	TestedAt       time.Time `json:"tested_at"`
}

func (*StrengthTest) Kind() Kind { return KindStrengthTest }

// EstimateOneRM returns the Epley one-rep-max estimate for a set.
func EstimateOneRM(weightKg float64, reps int) float64 {
	if reps <= 1 {
		return weightKg
	}
	return weightKg * (1 + float64(reps)/30)
}

// BodyMeasurement leaves unmeasured values nil.
type BodyMeasurement struct {
	SyncMeta
	UserID     string    `json:"user_id"`
	MeasuredAt time.Time `json:"measured_at"`
	WeightKg   *float64  `json:"weight_kg"`
	BodyFatPct *float64  `json:"body_fat_pct"`
	WaistCm    *float64  `json:"waist_cm"`
	ChestCm    *float64  `json:"chest_cm"`
	ArmCm      *float64  `json:"arm_cm"`
	Notes      string    `json:"notes"`
}

func (*BodyMeasurement) Kind() Kind { return KindBodyMeasurement }

type ScheduledTraining struct {
	SyncMeta
	UserID       string    `json:"user_id"`
	TemplateID   *string   `json:"template_id"`
	Title        string    `json:"title"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Completed    bool      `json:"completed"`
	WorkoutID    *string   `json:"workout_id"`
}

func (*ScheduledTraining) Kind() Kind { return KindScheduledTraining }

// TrainingTemplate keeps its exercise plan as an opaque JSON document.
type TrainingTemplate struct {
	SyncMeta
	UserID      string          `json:"user_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Exercises   json.RawMessage `json:"exercises"`
}

func (*TrainingTemplate) Kind() Kind { return KindTrainingTemplate }

// Friend is an edge between two users; either side may write it.
type Friend struct {
	SyncMeta
	UserID       string `json:"user_id"`
	FriendUserID string `json:"friend_user_id"`
	Status       string `json:"status"`
}

func (*Friend) Kind() Kind { return KindFriend }

// Involves reports whether userID is one end of the edge.
func (f *Friend) Involves(userID string) bool {
	return f.UserID == userID || f.FriendUserID == userID
}

// Other returns the end of the edge that is not userID.
func (f *Friend) Other(userID string) string {
	if f.UserID == userID {
		return f.FriendUserID
	}
	return f.UserID
}

// FriendInvite is addressed by code; InviteeID is set once someone redeems it.
type FriendInvite struct {
	SyncMeta
	InviterID  string     `json:"inviter_id"`
	InviteeID  *string    `json:"invitee_id"`
	InviteCode string     `json:"invite_code"`
	Status     string     `json:"status"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

func (*FriendInvite) Kind() Kind { return KindFriendInvite }

type Group struct {
	SyncMeta
	OwnerID     string `json:"owner_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"is_private"`
}

func (*Group) Kind() Kind { return KindGroup }

type GroupMember struct {
	SyncMeta
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
	Role    string `json:"role"`
	Status  string `json:"status"`
}

func (*GroupMember) Kind() Kind { return KindGroupMember }

type GroupInvite struct {
	SyncMeta
	GroupID   string `json:"group_id"`
	InviterID string `json:"inviter_id"`
	InviteeID string `json:"invitee_id"`
	Status    string `json:"status"`
}

func (*GroupInvite) Kind() Kind { return KindGroupInvite }

type FeedPost struct {
	SyncMeta
	UserID     string  `json:"user_id"`
	GroupID    *string `json:"group_id"`
	WorkoutID  *string `json:"workout_id"`
	Body       string  `json:"body"`
	Visibility string  `json:"visibility"`
}

func (*FeedPost) Kind() Kind { return KindFeedPost }

// FeedReaction is unique per (post, user, reaction) on the remote.
type FeedReaction struct {
	SyncMeta
	PostID   string `json:"post_id"`
	UserID   string `json:"user_id"`
	Reaction string `json:"reaction"`
}

func (*FeedReaction) Kind() Kind { return KindFeedReaction }

// CalendarDay aggregates one day of training.
type CalendarDay struct {
	Date      string `json:"date"`
	Workouts  int    `json:"workouts"`
	Minutes   int    `json:"minutes"`
	Completed int    `json:"completed"`
	Scheduled int    `json:"scheduled"`
}

// UserStats is the summary shown on the dashboard.
type UserStats struct {
	UserID         string     `json:"user_id"`
	WorkoutCount   int64      `json:"workout_count"`
	CompletedCount int64      `json:"completed_count"`
	TotalMinutes   int64      `json:"total_minutes"`
	ActiveGoals    int64      `json:"active_goals"`
	AchievedGoals  int64      `json:"achieved_goals"`
	LatestWeightKg *float64   `json:"latest_weight_kg,omitempty"`
	LastWorkoutAt  *time.Time `json:"last_workout_at,omitempty"`
}
