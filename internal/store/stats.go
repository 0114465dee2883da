package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hyperengineering/fitsync/internal/types"
)

// MonthBounds returns [first day of month, first day of next month) in UTC.
func MonthBounds(month time.Time) (time.Time, time.Time) {
	m := month.UTC()
	from := time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

// Calendar aggregates userID's logged and scheduled training per day of month.
// Days with nothing logged or scheduled are omitted.
func (s *SQLiteStore) Calendar(ctx context.Context, userID string, month time.Time) ([]types.CalendarDay, error) {
	from, to := MonthBounds(month)
	days := make(map[string]*types.CalendarDay)
	day := func(d string) *types.CalendarDay {
		if days[d] == nil {
			days[d] = &types.CalendarDay{Date: d}
		}
		return days[d]
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT substr(performed_at, 1, 10) AS day, COUNT(*),
		       COALESCE(SUM(duration_minutes), 0), COALESCE(SUM(completed), 0)
		FROM workouts
		WHERE user_id = ? AND deleted = 0 AND performed_at >= ? AND performed_at < ?
		GROUP BY day
	`, userID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("calendar workouts: %w", err)
	}
	for rows.Next() {
		var d string
		var count, minutes, completed int
		if err := rows.Scan(&d, &count, &minutes, &completed); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan calendar day: %w", err)
		}
		cd := day(d)
		cd.Workouts, cd.Minutes, cd.Completed = count, minutes, completed
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT substr(scheduled_for, 1, 10) AS day, COUNT(*)
		FROM scheduled_trainings
		WHERE user_id = ? AND deleted = 0 AND scheduled_for >= ? AND scheduled_for < ?
		GROUP BY day
	`, userID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("calendar schedule: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d string
		var count int
		if err := rows.Scan(&d, &count); err != nil {
			return nil, fmt.Errorf("scan calendar day: %w", err)
		}
		day(d).Scheduled = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]types.CalendarDay, 0, len(days))
	for _, d := range days {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// Stats summarizes userID's training history.
func (s *SQLiteStore) Stats(ctx context.Context, userID string) (*types.UserStats, error) {
	st := &types.UserStats{UserID: userID}

	var last sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(completed), 0), COALESCE(SUM(duration_minutes), 0), MAX(performed_at)
		FROM workouts WHERE user_id = ? AND deleted = 0
	`, userID).Scan(&st.WorkoutCount, &st.CompletedCount, &st.TotalMinutes, &last)
	if err != nil {
		return nil, fmt.Errorf("workout stats: %w", err)
	}
	if last.Valid {
		t, err := parseTime(last.String)
		if err != nil {
			return nil, err
		}
		st.LastWorkoutAt = &t
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN achieved = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(achieved), 0)
		FROM goals WHERE user_id = ? AND deleted = 0
	`, userID).Scan(&st.ActiveGoals, &st.AchievedGoals)
	if err != nil {
		return nil, fmt.Errorf("goal stats: %w", err)
	}

	var weight sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT weight_kg FROM body_measurements
		WHERE user_id = ? AND deleted = 0 AND weight_kg IS NOT NULL
		ORDER BY measured_at DESC, id DESC LIMIT 1
	`, userID).Scan(&weight)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("weight stats: %w", err)
	}
	if weight.Valid {
		st.LatestWeightKg = &weight.Float64
	}

	return st, nil
}
