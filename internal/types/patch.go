package types

import (
	"bytes"
	"encoding/json"
	"time"
)

// Assignment is a single column write produced by a patch.
// A nil Value writes NULL.
type Assignment struct {
	Column string
	Value  any
}

// Patch is a typed partial update for one entity.
type Patch interface {
	Assignments() []Assignment
}

// Optional is a patch field for a nullable column. The zero value leaves the
// column untouched; Set with a nil Value clears it.
type Optional[T any] struct {
	Set   bool
	Value *T
}

// Some returns an Optional that writes v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

// Null returns an Optional that clears the column.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

// UnmarshalJSON treats an explicit null as a request to clear the column.
func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

func set[T any](out []Assignment, column string, v *T) []Assignment {
	if v == nil {
		return out
	}
	return append(out, Assignment{Column: column, Value: *v})
}

func setOptional[T any](out []Assignment, column string, v Optional[T]) []Assignment {
	if !v.Set {
		return out
	}
	if v.Value == nil {
		return append(out, Assignment{Column: column, Value: nil})
	}
	return append(out, Assignment{Column: column, Value: *v.Value})
}

type ProfilePatch struct {
	Username    *string `json:"username"`
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
	Bio         *string `json:"bio"`
	UnitSystem  *string `json:"unit_system"`
}

func (p ProfilePatch) Assignments() []Assignment {
	var out []Assignment
	out = set(out, "username", p.Username)
	out = set(out, "display_name", p.DisplayName)
	out = set(out, "avatar_url", p.AvatarURL)
	out = set(out, "bio", p.Bio)
	out = set(out, "unit_system", p.UnitSystem)
	return out
}

type CyclePatch struct {
	Name      *string             `json:"name"`
	Goal      *string             `json:"goal"`
	StartDate *time.Time          `json:"start_date"`
	EndDate   Optional[time.Time] `json:"end_date"`
	Notes     *string             `json:"notes"`
}

func (p CyclePatch) Assignments() []Assignment {
	var out []Assignment
	out = set(out, "name", p.Name)
	out = set(out, "goal", p.Goal)
	out = set(out, "start_date", p.StartDate)
	out = setOptional(out, "end_date", p.EndDate)
	out = set(out, "notes", p.Notes)
	return out
}

type WorkoutPatch struct {
	CycleID         Optional[string] `json:"cycle_id"`
	Title           *string          `json:"title"`
	PerformedAt     *time.Time       `json:"performed_at"`
	DurationMinutes *int             `json:"duration_minutes"`
	Notes           *string          `json:"notes"`
	Completed       *bool            `json:"completed"`
}

func (p WorkoutPatch) Assignments() []Assignment {
	var out []Assignment
	out = setOptional(out, "cycle_id", p.CycleID)
	out = set(out, "title", p.Title)
	out = set(out, "performed_at", p.PerformedAt)
	out = set(out, "duration_minutes", p.DurationMinutes)
	out = set(out, "notes", p.Notes)
	out = set(out, "completed", p.Completed)
	return out
}

type ExercisePatch struct {
	Name     *string  `json:"name"`
	Sets     *int     `json:"sets"`
	Reps     *int     `json:"reps"`
	WeightKg *float64 `json:"weight_kg"`
	Position *int     `json:"position"`
	Notes    *string  `json:"notes"`
}

func (p ExercisePatch) Assignments() []Assignment {
	var out []Assignment
	out = set(out, "name", p.Name)
	out = set(out, "sets", p.Sets)
	out = set(out, "reps", p.Reps)
	out = set(out, "weight_kg", p.WeightKg)
	out = set(out, "position", p.Position)
	out = set(out, "notes", p.Notes)
	return out
}

type GoalPatch struct {
	Title        *string             `json:"title"`
	Metric       *string             `json:"metric"`
	TargetValue  *float64            `json:"target_value"`
	CurrentValue *float64            `json:"current_value"`
	Unit         *string             `json:"unit"`
	Deadline     Optional[time.Time] `json:"deadline"`
	Achieved     *bool               `json:"achieved"`
}

func (p GoalPatch) Assignments() []Assignment {
	var out []Assignment
	out = set(out, "title", p.Title)
	out = set(out, "metric", p.Metric)
	out = set(out, "target_value", p.TargetValue)
	out = set(out, "current_value", p.CurrentValue)
	out = set(out, "unit", p.Unit)
	out = setOptional(out, "deadline", p.Deadline)
	out = set(out, "achieved", p.Achieved)
	return out
}

type StrengthTestPatch struct {
	ExerciseName   *string    `json:"exercise_name"`
	WeightKg       *float64   `json:"weight_kg"`
	Reps           *int       `json:"reps"`
	EstimatedOneRM *float64   `json:"estimated_one_rm"`
	TestedAt       *time.Time `json:"tested_at"`
}

// Assignments recomputes the one-rep-max estimate when both weight and reps
// change and no explicit estimate is given.
func (p StrengthTestPatch) Assignments() []Assignment {
	var out []Assignment
	out = set(out, "exercise_name", p.ExerciseName)
	out = set(out, "weight_kg", p.WeightKg)
	out = set(out, "reps", p.Reps)
	estimate := p.EstimatedOneRM
	if estimate == nil && p.WeightKg != nil && p.Reps != nil {
		estimate = Ptr(EstimateOneRM(*p.WeightKg, *p.Reps))
	}
	out = set(out, "estimated_one_rm", estimate)
	out = set(out, "tested_at", p.TestedAt)
	return out
}

type BodyMeasurementPatch struct {
	MeasuredAt *time.Time        `json:"measured_at"`
	WeightKg   Optional[float64] `json:"weight_kg"`
	BodyFatPct Optional[float64] `json:"body_fat_pct"`
	WaistCm    Optional[float64] `json:"waist_cm"`
	ChestCm    Optional[float64] `json:"chest_cm"`
	ArmCm      Optional[float64] `json:"arm_cm"`
	Notes      *string           `json:"notes"`
}

func (p BodyMeasurementPatch) Assignments() []Assignment {
	var out []Assignment
	out = set(out, "measured_at", p.MeasuredAt)
	out = setOptional(out, "weight_kg", p.WeightKg)
	out = setOptional(out, "body_fat_pct", p.BodyFatPct)
	out = setOptional(out, "waist_cm", p.WaistCm)
	out = setOptional(out, "chest_cm", p.ChestCm)
	out = setOptional(out, "arm_cm", p.ArmCm)
	out = set(out, "notes", p.Notes)
	return out
}

type ScheduledTrainingPatch struct {
	TemplateID   Optional[string] `json:"template_id"`
	Title        *string          `json:"title"`
	ScheduledFor *time.Time       `json:"scheduled_for"`
	Completed    *bool            `json:"completed"`
	WorkoutID    Optional[string] `json:"workout_id"`
}

func (p ScheduledTrainingPatch) Assignments() []Assignment {
	var out []Assignment
	out = setOptional(out, "template_id", p.TemplateID)
	out = set(out, "title", p.Title)
	out = set(out, "scheduled_for", p.ScheduledFor)
	out = set(out, "completed", p.Completed)
	out = setOptional(out, "workout_id", p.WorkoutID)
	return out
}

type TrainingTemplatePatch struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Exercises   json.RawMessage `json:"exercises"`
}

func (p TrainingTemplatePatch) Assignments() []Assignment {
	var out []Assignment
	out = set(out, "name", p.Name)
	out = set(out, "description", p.Description)
	if p.Exercises != nil {
		out = append(out, Assignment{Column: "exercises", Value: p.Exercises})
	}
	return out
}

type FriendPatch struct {
	Status *string `json:"status"`
}

func (p FriendPatch) Assignments() []Assignment {
	return set(nil, "status", p.Status)
}

type FriendInvitePatch struct {
	InviteeID Optional[string]    `json:"invitee_id"`
	Status    *string             `json:"status"`
	ExpiresAt Optional[time.Time] `json:"expires_at"`
}

func (p FriendInvitePatch) Assignments() []Assignment {
	var out []Assignment
	out = setOptional(out, "invitee_id", p.InviteeID)
	out = set(out, "status", p.Status)
	out = setOptional(out, "expires_at", p.ExpiresAt)
	return out
}

type GroupPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsPrivate   *bool   `json:"is_private"`
}

func (p GroupPatch) Assignments() []Assignment {
	var out []Assignment
	out = set(out, "name", p.Name)
	out = set(out, "description", p.Description)
	out = set(out, "is_private", p.IsPrivate)
	return out
}

type GroupMemberPatch struct {
	Role   *string `json:"role"`
	Status *string `json:"status"`
}

func (p GroupMemberPatch) Assignments() []Assignment {
	var out []Assignment
	out = set(out, "role", p.Role)
	out = set(out, "status", p.Status)
	return out
}

type GroupInvitePatch struct {
	Status *string `json:"status"`
}

func (p GroupInvitePatch) Assignments() []Assignment {
	return set(nil, "status", p.Status)
}

type FeedPostPatch struct {
	Body       *string `json:"body"`
	Visibility *string `json:"visibility"`
}

func (p FeedPostPatch) Assignments() []Assignment {
	var out []Assignment
	out = set(out, "body", p.Body)
	out = set(out, "visibility", p.Visibility)
	return out
}

// FeedReactionPatch has no settable fields: a reaction is added or removed,
// never edited.
type FeedReactionPatch struct{}

func (FeedReactionPatch) Assignments() []Assignment { return nil }
