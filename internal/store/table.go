package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperengineering/fitsync/internal/types"
	"github.com/hyperengineering/fitsync/internal/validation"
)

// execContext is satisfied by both *sql.DB and *sql.Tx.
type execContext interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// queryContext is satisfied by both *sql.DB and *sql.Tx.
type queryContext interface {
	execContext
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// metaColumns lead every SELECT and INSERT, in this order.
var metaColumns = []string{"id", "created_at", "modified_at", "pending_sync", "deleted"}

// tableDef describes how one entity maps onto its table.
type tableDef[T any] struct {
	kind  types.Kind
	table string
	// columns are the business columns, matched positionally by fields and values.
	columns []string
	fields  func(*T) []any
	values  func(*T) []any
	// owner is a predicate selecting the rows listed for an owner; every
	// placeholder binds the owner id.
	owner string
	order string
	// conflict is the remote conflict target.
	conflict []string
	// afterApply runs inside the pull transaction after a row is written.
	afterApply func(ctx context.Context, tx *sql.Tx, row *T) error
}

type recordPtr[T any] interface {
	*T
	types.Record
}

// SyncTable is the surface the orchestrator drives for one entity kind.
type SyncTable interface {
	Kind() types.Kind
	Table() string
	ConflictTarget() []string
	PendingRecords(ctx context.Context) ([]types.Record, error)
	MarkSynced(ctx context.Context, id string, modifiedAt time.Time) (bool, error)
	ApplyRemote(ctx context.Context, payloads []json.RawMessage, opts ApplyOptions) (ApplyResult, error)
}

// Repo implements the local repository contract for one entity type.
type Repo[T any, PT recordPtr[T], P types.Patch] struct {
	s      *SQLiteStore
	def    tableDef[T]
	cols   string
	writes map[string]bool
}

func newRepo[T any, PT recordPtr[T], P types.Patch](s *SQLiteStore, def tableDef[T]) *Repo[T, PT, P] {
	all := append(append([]string{}, metaColumns...), def.columns...)
	writes := make(map[string]bool, len(def.columns))
	for _, c := range def.columns {
		writes[c] = true
	}
	if len(def.conflict) == 0 {
		def.conflict = []string{"id"}
	}
	return &Repo[T, PT, P]{s: s, def: def, cols: strings.Join(all, ", "), writes: writes}
}

// Kind returns the entity kind stored by this repository.
func (r *Repo[T, PT, P]) Kind() types.Kind { return r.def.kind }

// Table returns the table name, shared by the local and remote schema.
func (r *Repo[T, PT, P]) Table() string { return r.def.table }

// ConflictTarget returns the columns the remote upsert resolves conflicts on.
func (r *Repo[T, PT, P]) ConflictTarget() []string { return r.def.conflict }

func (r *Repo[T, PT, P]) scan(sc scanner) (*T, error) {
	var v T
	m := PT(&v).Meta()
	dest := []any{&m.ID, timeDest{&m.CreatedAt}, timeDest{&m.ModifiedAt}, &m.PendingSync, &m.Deleted}
	dest = append(dest, r.def.fields(&v)...)
	if err := sc.Scan(dest...); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repo[T, PT, P]) rowValues(v *T) []any {
	m := PT(v).Meta()
	out := []any{m.ID, formatTime(m.CreatedAt), formatTime(m.ModifiedAt), sqlValue(m.PendingSync), sqlValue(m.Deleted)}
	for _, val := range r.def.values(v) {
		out = append(out, sqlValue(val))
	}
	return out
}

func (r *Repo[T, PT, P]) query(ctx context.Context, q queryContext, where string, args []any, order string, limit int) ([]*T, error) {
	stmt := "SELECT " + r.cols + " FROM " + quoteIdent(r.def.table)
	if where != "" {
		stmt += " WHERE " + where
	}
	if order != "" {
		stmt += " ORDER BY " + order
	}
	if limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", r.def.table, err)
	}
	defer rows.Close()

	out := make([]*T, 0)
	for rows.Next() {
		v, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", r.def.table, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *Repo[T, PT, P]) list(ctx context.Context, where string, args ...any) ([]*T, error) {
	if where == "" {
		where = "deleted = 0"
	} else {
		where = "deleted = 0 AND (" + where + ")"
	}
	return r.query(ctx, r.s.db, where, args, r.def.order, 0)
}

func (r *Repo[T, PT, P]) getAny(ctx context.Context, q queryContext, id string) (*T, error) {
	v, err := r.scan(q.QueryRowContext(ctx,
		"SELECT "+r.cols+" FROM "+quoteIdent(r.def.table)+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %q: %w", r.def.kind, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", r.def.kind, err)
	}
	return v, nil
}

// Get returns a live row by id.
func (r *Repo[T, PT, P]) Get(ctx context.Context, id string) (*T, error) {
	v, err := r.getAny(ctx, r.s.db, id)
	if err != nil {
		return nil, err
	}
	if PT(v).Meta().Deleted {
		return nil, fmt.Errorf("%s %q: %w", r.def.kind, id, ErrNotFound)
	}
	return v, nil
}

// ListForOwner returns the live rows belonging to ownerID.
func (r *Repo[T, PT, P]) ListForOwner(ctx context.Context, ownerID string) ([]*T, error) {
	n := strings.Count(r.def.owner, "?")
	args := make([]any, n)
	for i := range args {
		args[i] = ownerID
	}
	return r.list(ctx, r.def.owner, args...)
}

// Create inserts a new pending row and returns its id. An empty id is
// replaced by a fresh UUIDv7.
func (r *Repo[T, PT, P]) Create(ctx context.Context, v *T) (string, error) {
	id, err := r.insert(ctx, r.s.db, v)
	if err != nil {
		return "", err
	}
	r.s.invalidate(r.def.kind)
	return id, nil
}

func (r *Repo[T, PT, P]) insert(ctx context.Context, e execContext, v *T) (string, error) {
	if err := validation.Record(PT(v)); err != nil {
		return "", fmt.Errorf("create %s: %w", r.def.kind, err)
	}

	m := PT(v).Meta()
	if m.ID == "" {
		m.ID = newID()
	}
	now := r.s.stamp.next()
	m.CreatedAt = now
	m.ModifiedAt = now
	m.PendingSync = true
	m.Deleted = false

	cols := append(append([]string{}, metaColumns...), r.def.columns...)
	stmt := "INSERT INTO " + quoteIdent(r.def.table) + " (" + strings.Join(cols, ", ") +
		") VALUES (" + placeholders(len(cols)) + ")"
	if _, err := e.ExecContext(ctx, stmt, r.rowValues(v)...); err != nil {
		return "", fmt.Errorf("insert %s: %w", r.def.kind, err)
	}
	return m.ID, nil
}

// Update applies a partial update to a live row, re-stamping it as pending.
func (r *Repo[T, PT, P]) Update(ctx context.Context, id string, patch P) error {
	if err := r.update(ctx, r.s.db, id, patch); err != nil {
		return err
	}
	r.s.invalidate(r.def.kind)
	return nil
}

func (r *Repo[T, PT, P]) update(ctx context.Context, e execContext, id string, patch P) error {
	assignments := patch.Assignments()
	if len(assignments) == 0 {
		return fmt.Errorf("update %s %q: %w", r.def.kind, id, ErrEmptyPatch)
	}
	if err := validation.Patch(r.def.kind, patch); err != nil {
		return fmt.Errorf("update %s: %w", r.def.kind, err)
	}

	sets := make([]string, 0, len(assignments)+2)
	args := make([]any, 0, len(assignments)+3)
	for _, a := range assignments {
		if !r.writes[a.Column] {
			return fmt.Errorf("update %s: unknown column %q", r.def.kind, a.Column)
		}
		sets = append(sets, a.Column+" = ?")
		args = append(args, sqlValue(a.Value))
	}
	sets = append(sets, "modified_at = ?", "pending_sync = 1")
	args = append(args, formatTime(r.s.stamp.next()), id)

	return r.exec(ctx, e, "UPDATE "+quoteIdent(r.def.table)+" SET "+strings.Join(sets, ", ")+
		" WHERE id = ? AND deleted = 0", id, args...)
}

// SoftDelete tombstones a live row. The tombstone is pending like any edit.
func (r *Repo[T, PT, P]) SoftDelete(ctx context.Context, id string) error {
	if err := r.softDelete(ctx, r.s.db, id); err != nil {
		return err
	}
	r.s.invalidate(r.def.kind)
	return nil
}

func (r *Repo[T, PT, P]) softDelete(ctx context.Context, e execContext, id string) error {
	return r.exec(ctx, e, "UPDATE "+quoteIdent(r.def.table)+
		" SET deleted = 1, modified_at = ?, pending_sync = 1 WHERE id = ? AND deleted = 0",
		id, formatTime(r.s.stamp.next()), id)
}

// softDeleteWhere tombstones every live row matching where.
func (r *Repo[T, PT, P]) softDeleteWhere(ctx context.Context, e execContext, where string, args ...any) (int64, error) {
	all := append([]any{formatTime(r.s.stamp.next())}, args...)
	res, err := e.ExecContext(ctx, "UPDATE "+quoteIdent(r.def.table)+
		" SET deleted = 1, modified_at = ?, pending_sync = 1 WHERE deleted = 0 AND ("+where+")", all...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", r.def.table, err)
	}
	return res.RowsAffected()
}

func (r *Repo[T, PT, P]) exec(ctx context.Context, e execContext, stmt, id string, args ...any) error {
	res, err := e.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("write %s: %w", r.def.kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", r.def.kind, id, ErrNotFound)
	}
	return nil
}

// ListPending returns every unsynced row on the device, tombstones included,
// oldest edit first.
func (r *Repo[T, PT, P]) ListPending(ctx context.Context) ([]*T, error) {
	return r.query(ctx, r.s.db, "pending_sync = 1", nil, "modified_at ASC, id ASC", 0)
}

// PendingRecords is ListPending as records.
func (r *Repo[T, PT, P]) PendingRecords(ctx context.Context) ([]types.Record, error) {
	rows, err := r.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.Record, len(rows))
	for i, v := range rows {
		out[i] = PT(v)
	}
	return out, nil
}

// MarkSynced clears pending_sync if the row still carries the pushed stamp.
// It reports false when the row was edited again while its push was in flight.
func (r *Repo[T, PT, P]) MarkSynced(ctx context.Context, id string, modifiedAt time.Time) (bool, error) {
	res, err := r.s.db.ExecContext(ctx, "UPDATE "+quoteIdent(r.def.table)+
		" SET pending_sync = 0 WHERE id = ? AND modified_at = ? AND pending_sync = 1",
		id, formatTime(modifiedAt))
	if err != nil {
		return false, fmt.Errorf("mark synced %s: %w", r.def.kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// UpsertFromRemote replaces the local row with the remote one, confirmed.
func (r *Repo[T, PT, P]) UpsertFromRemote(ctx context.Context, payload json.RawMessage) error {
	res, err := r.ApplyRemote(ctx, []json.RawMessage{payload}, ApplyOptions{})
	if err != nil {
		return err
	}
	if res.Malformed > 0 {
		return fmt.Errorf("upsert %s: %w", r.def.kind, ErrMalformedRow)
	}
	return nil
}

func (r *Repo[T, PT, P]) upsertConfirmed(ctx context.Context, e execContext, v *T) error {
	cols := append(append([]string{}, metaColumns...), r.def.columns...)
	updates := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		updates = append(updates, c+" = excluded."+c)
	}
	stmt := "INSERT INTO " + quoteIdent(r.def.table) + " (" + strings.Join(cols, ", ") +
		") VALUES (" + placeholders(len(cols)) + ") ON CONFLICT(id) DO UPDATE SET " +
		strings.Join(updates, ", ")
	if _, err := e.ExecContext(ctx, stmt, r.rowValues(v)...); err != nil {
		return fmt.Errorf("upsert %s: %w", r.def.kind, err)
	}
	return nil
}

// decodeRemote parses a remote row and forces the confirmed local state.
func (r *Repo[T, PT, P]) decodeRemote(payload json.RawMessage) (*T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRow, err)
	}
	m := PT(&v).Meta()
	if m.ID == "" || m.ModifiedAt.IsZero() {
		return nil, fmt.Errorf("%w: missing id or modified_at", ErrMalformedRow)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = m.ModifiedAt
	}
	m.PendingSync = false
	return &v, nil
}

func (r *Repo[T, PT, P]) logger() *slog.Logger {
	return slog.With("component", "store", "entity", string(r.def.kind))
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
