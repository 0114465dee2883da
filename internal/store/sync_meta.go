package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PullCursorKey is the sync_meta key holding a user's pull position in a table.
func PullCursorKey(userID, table string) string {
	return "pull_cursor:" + userID + ":" + table
}

// rewindKey sits under PullCursorKey's prefix so ResetPullCursors clears it too.
func rewindKey(userID, table string) string {
	return PullCursorKey(userID, table) + ":rewind"
}

func lastSyncKey(userID string) string {
	return "last_sync_at:" + userID
}

// GetSyncMeta retrieves a sync metadata value by key.
func (s *SQLiteStore) GetSyncMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM sync_meta WHERE key = ?
	`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("sync meta key %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get sync meta: %w", err)
	}
	return value, nil
}

// SetSyncMeta sets a sync metadata value.
func (s *SQLiteStore) SetSyncMeta(ctx context.Context, key, value string) error {
	return setSyncMeta(ctx, s.db, key, value)
}

func setSyncMeta(ctx context.Context, e execContext, key, value string) error {
	_, err := e.ExecContext(ctx, `
		INSERT OR REPLACE INTO sync_meta (key, value) VALUES (?, ?)
	`, key, value)
	if err != nil {
		return fmt.Errorf("set sync meta: %w", err)
	}
	return nil
}

// PullCursor returns how far userID has pulled table. A table never pulled
// yields the zero cursor.
func (s *SQLiteStore) PullCursor(ctx context.Context, userID, table string) (Cursor, error) {
	token, err := s.GetSyncMeta(ctx, PullCursorKey(userID, table))
	if errors.Is(err, ErrNotFound) {
		return Cursor{}, nil
	}
	if err != nil {
		return Cursor{}, err
	}
	return DecodeCursor(token)
}

// PullState is where the next pull of a table starts.
type PullState struct {
	// Seen is the greatest (modified_at, id) applied so far.
	Seen Cursor
	// Rewind asks for a pull from the beginning, because rows before Seen
	// may have become visible to the user.
	Rewind bool
}

// PullState returns the pull position of userID in table.
func (s *SQLiteStore) PullState(ctx context.Context, userID, table string) (PullState, error) {
	seen, err := s.PullCursor(ctx, userID, table)
	if err != nil {
		return PullState{}, err
	}
	_, err = s.GetSyncMeta(ctx, rewindKey(userID, table))
	switch {
	case errors.Is(err, ErrNotFound):
		return PullState{Seen: seen}, nil
	case err != nil:
		return PullState{}, err
	}
	return PullState{Seen: seen, Rewind: true}, nil
}

// RewindPulls marks tables for a pull from the beginning. Seen positions
// are kept so rows already applied are recognised as replays.
func (s *SQLiteStore) RewindPulls(ctx context.Context, userID string, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range tables {
			if err := setSyncMeta(ctx, tx, rewindKey(userID, table), "1"); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClearRewind drops the rewind mark of table. A pull clears it before it
// starts and marks the table again if it does not finish.
func (s *SQLiteStore) ClearRewind(ctx context.Context, userID, table string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_meta WHERE key = ?`, rewindKey(userID, table))
	if err != nil {
		return fmt.Errorf("clear rewind: %w", err)
	}
	return nil
}

// ResetPullCursors forgets every pull position of userID, forcing a full re-pull.
func (s *SQLiteStore) ResetPullCursors(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_meta WHERE key LIKE ?`,
		PullCursorKey(userID, "")+"%")
	if err != nil {
		return fmt.Errorf("reset pull cursors: %w", err)
	}
	return nil
}

// SetLastSyncAt records when a sync cycle for userID completed.
func (s *SQLiteStore) SetLastSyncAt(ctx context.Context, userID string, at time.Time) error {
	return s.SetSyncMeta(ctx, lastSyncKey(userID), formatTime(at))
}

// LastSyncAt returns when a cycle for userID last completed, or nil if never.
func (s *SQLiteStore) LastSyncAt(ctx context.Context, userID string) (*time.Time, error) {
	v, err := s.GetSyncMeta(ctx, lastSyncKey(userID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t, err := parseTime(v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
