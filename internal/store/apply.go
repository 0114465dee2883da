package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyperengineering/fitsync/internal/types"
)

// ConflictPolicy decides what a pull does with a row that has an unpushed local edit.
type ConflictPolicy string

const (
	// RemoteWins overwrites local state unconditionally.
	RemoteWins ConflictPolicy = "remote_wins"
	// PendingWins keeps the local edit; it reaches the remote on the next push.
	PendingWins ConflictPolicy = "pending_wins"
)

// ParseConflictPolicy maps a config value onto a policy. Empty means RemoteWins.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch ConflictPolicy(s) {
	case "", RemoteWins:
		return RemoteWins, nil
	case PendingWins:
		return PendingWins, nil
	}
	return "", fmt.Errorf("unknown conflict policy %q", s)
}

// ApplyOptions controls how a pulled batch is written.
type ApplyOptions struct {
	Policy ConflictPolicy
	// CursorKey, when set, is advanced to the batch's last row in the same
	// transaction that writes the rows. It never moves behind Seen.
	CursorKey string
	// Seen is the position already pulled. Rows at or before it are replays
	// from a rewound or overlapping query; a replay is dropped when the local
	// copy carries an unpushed edit or is at least as new.
	Seen Cursor
	// OnApply is called inside the transaction for every row written. prev is
	// the local row before the write, nil when the row is new to this device.
	OnApply func(prev, next types.Record)
}

// ApplyResult summarizes a pulled batch.
type ApplyResult struct {
	Applied   int
	Skipped   int
	Malformed int
	// Replayed rows were already known and left alone. They are not skips.
	Replayed int
	// Cursor is the greatest (modified_at, id) seen in the batch.
	Cursor Cursor
}

// ApplyRemote writes a batch of remote rows in one transaction. Rows that do
// not decode are logged and counted, never fatal.
func (r *Repo[T, PT, P]) ApplyRemote(ctx context.Context, payloads []json.RawMessage, opts ApplyOptions) (ApplyResult, error) {
	var res ApplyResult
	if len(payloads) == 0 {
		return res, nil
	}
	log := r.logger()

	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		for i, payload := range payloads {
			v, err := r.decodeRemote(payload)
			if err != nil {
				log.Warn("skipping remote row", "action", "pull", "index", i, "error", err)
				res.Malformed++
				continue
			}
			m := PT(v).Meta()
			at := Cursor{At: m.ModifiedAt, ID: m.ID}
			res.Cursor = res.Cursor.Max(at)

			prev, err := r.getAny(ctx, tx, m.ID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			var local *types.SyncMeta
			if prev != nil {
				local = PT(prev).Meta()
			}

			if local != nil && !opts.Seen.IsZero() && !at.After(opts.Seen) &&
				(local.PendingSync || !local.ModifiedAt.Before(m.ModifiedAt)) {
				res.Replayed++
				continue
			}
			if opts.Policy == PendingWins && local != nil && local.PendingSync {
				log.Debug("keeping local edit over remote row", "action", "pull", "id", m.ID)
				res.Skipped++
				continue
			}

			if err := r.upsertConfirmed(ctx, tx, v); err != nil {
				return err
			}
			if r.def.afterApply != nil {
				if err := r.def.afterApply(ctx, tx, v); err != nil {
					return fmt.Errorf("after apply %s: %w", r.def.kind, err)
				}
			}
			if opts.OnApply != nil {
				var before types.Record
				if prev != nil {
					before = PT(prev)
				}
				opts.OnApply(before, PT(v))
			}
			res.Applied++
		}

		if opts.CursorKey != "" && !res.Cursor.IsZero() {
			next := res.Cursor.Max(opts.Seen)
			if err := setSyncMeta(ctx, tx, opts.CursorKey, next.Encode()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ApplyResult{}, fmt.Errorf("apply remote %s: %w", r.def.kind, err)
	}

	if !res.Cursor.IsZero() {
		r.s.stamp.observe(res.Cursor.At)
	}
	if res.Applied > 0 {
		r.s.invalidate(r.def.kind)
	}
	return res, nil
}
