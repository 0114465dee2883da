package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/fitsync/internal/types"
)

// CascadeResult counts the rows a cascading delete tombstoned.
type CascadeResult struct {
	Parent   int64 `json:"parent"`
	Children int64 `json:"children"`
}

// Delete tombstones a group with all of its members and invites in one
// transaction. Every tombstone is pending, so the cascade itself syncs.
func (r *GroupRepo) Delete(ctx context.Context, groupID string) (*CascadeResult, error) {
	res := &CascadeResult{}
	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.softDelete(ctx, tx, groupID); err != nil {
			return err
		}
		res.Parent = 1
		if err := r.s.stepCascade(groupTable.table); err != nil {
			return err
		}

		n, err := r.s.GroupMembers.softDeleteWhere(ctx, tx, "group_id = ?", groupID)
		if err != nil {
			return err
		}
		res.Children += n
		if err := r.s.stepCascade(groupMemberTable.table); err != nil {
			return err
		}

		n, err = r.s.GroupInvites.softDeleteWhere(ctx, tx, "group_id = ?", groupID)
		if err != nil {
			return err
		}
		res.Children += n
		return r.s.stepCascade(groupInviteTable.table)
	})
	if err != nil {
		return nil, fmt.Errorf("delete group %q: %w", groupID, err)
	}

	slog.Debug("group deleted", "component", "store", "action", "cascade_delete",
		"id", groupID, "children", res.Children)
	r.s.invalidate(types.KindGroup, types.KindGroupMember, types.KindGroupInvite)
	return res, nil
}

// Delete tombstones a workout and its exercises in one transaction.
func (r *WorkoutRepo) Delete(ctx context.Context, workoutID string) (*CascadeResult, error) {
	res := &CascadeResult{}
	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.softDelete(ctx, tx, workoutID); err != nil {
			return err
		}
		res.Parent = 1
		if err := r.s.stepCascade(workoutTable.table); err != nil {
			return err
		}

		n, err := r.s.Exercises.softDeleteWhere(ctx, tx, "workout_id = ?", workoutID)
		if err != nil {
			return err
		}
		res.Children = n
		return r.s.stepCascade(exerciseTable.table)
	})
	if err != nil {
		return nil, fmt.Errorf("delete workout %q: %w", workoutID, err)
	}

	r.s.invalidate(types.KindWorkout, types.KindExercise)
	return res, nil
}

func (s *SQLiteStore) stepCascade(table string) error {
	if s.cascadeFault == nil {
		return nil
	}
	return s.cascadeFault(table)
}
