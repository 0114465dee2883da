package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hyperengineering/fitsync/internal/identity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresClient writes to the remote database directly, under the same
// row-level security policies the REST endpoint enforces.
type PostgresClient struct {
	pool  *pgxpool.Pool
	ident identity.Provider
}

// NewPostgresClient connects a pool to dsn.
func NewPostgresClient(ctx context.Context, dsn string, ident identity.Provider) (*PostgresClient, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect remote postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping remote postgres: %w", err)
	}
	return &PostgresClient{pool: pool, ident: ident}, nil
}

// Close releases the pool.
func (c *PostgresClient) Close() {
	c.pool.Close()
}

// Upsert inserts the row or updates it on conflictTarget. The remote stamps
// modified_at with clock_timestamp(), the time of the write rather than of
// the transaction start, so stamps follow commit order as closely as the
// server allows. The device's stamp is not trusted across devices.
func (c *PostgresClient) Upsert(ctx context.Context, table string, payload json.RawMessage, conflictTarget []string) error {
	if err := checkTable("upsert", table); err != nil {
		return err
	}
	stmt, err := upsertStatement(table, payload, conflictTarget)
	if err != nil {
		return &Error{Op: "upsert", Table: table, Message: err.Error(), Err: ErrRejected}
	}

	return c.asUser(ctx, "upsert", table, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, stmt, string(payload))
		return err
	})
}

// SelectChanged reads rows after q's keyset position as JSON objects.
func (c *PostgresClient) SelectChanged(ctx context.Context, table string, q SelectQuery) ([]json.RawMessage, error) {
	if err := checkTable("select", table); err != nil {
		return nil, err
	}
	ident := pgx.Identifier{table}.Sanitize()
	limit := q.Limit
	if limit <= 0 {
		limit = 1000
	}

	stmt := "SELECT row_to_json(t) FROM " + ident + " t"
	args := []any{}
	if !q.AfterModifiedAt.IsZero() {
		stmt += " WHERE (t.modified_at, t.id::text) > ($1::timestamptz, $2::text)"
		args = append(args, q.AfterModifiedAt.UTC(), q.AfterID)
	}
	stmt += fmt.Sprintf(" ORDER BY t.modified_at, t.id::text LIMIT %d", limit)

	var out []json.RawMessage
	err := c.asUser(ctx, "select", table, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, stmt, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var raw []byte
			if err := rows.Scan(&raw); err != nil {
				return err
			}
			out = append(out, json.RawMessage(raw))
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// asUser runs fn in a transaction carrying the caller's JWT claims, so the
// remote's policies see the same identity as a REST request would.
func (c *PostgresClient) asUser(ctx context.Context, op, table string, fn func(pgx.Tx) error) error {
	id, err := c.ident.Current(ctx)
	if err != nil {
		return &Error{Op: op, Table: table, Message: err.Error(), Err: ErrUnauthorized}
	}
	claims, err := json.Marshal(map[string]string{"sub": id.UserID, "role": "authenticated"})
	if err != nil {
		return fmt.Errorf("encode claims: %w", err)
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return classifyPg(op, table, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, "SELECT set_config('request.jwt.claims', $1, true)", string(claims)); err != nil {
		return classifyPg(op, table, err)
	}
	if _, err := tx.Exec(ctx, "SET LOCAL ROLE authenticated"); err != nil {
		return classifyPg(op, table, err)
	}
	if err := fn(tx); err != nil {
		return classifyPg(op, table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classifyPg(op, table, err)
	}
	return nil
}

// upsertStatement builds an INSERT ... ON CONFLICT over the payload's keys.
// Columns are taken from the row itself so tables need no local column list.
func upsertStatement(table string, payload json.RawMessage, conflictTarget []string) (string, error) {
	var row map[string]json.RawMessage
	if err := json.Unmarshal(payload, &row); err != nil {
		return "", fmt.Errorf("decode row: %w", err)
	}
	if _, ok := row["id"]; !ok {
		return "", errors.New("row has no id")
	}
	if len(conflictTarget) == 0 {
		conflictTarget = []string{"id"}
	}

	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	if _, ok := row["modified_at"]; !ok {
		cols = append(cols, "modified_at")
	}

	target := make(map[string]bool, len(conflictTarget))
	quotedTarget := make([]string, len(conflictTarget))
	for i, c := range conflictTarget {
		target[c] = true
		quotedTarget[i] = pgx.Identifier{c}.Sanitize()
	}

	insertCols := make([]string, len(cols))
	selectCols := make([]string, len(cols))
	var updates []string
	for i, c := range cols {
		q := pgx.Identifier{c}.Sanitize()
		insertCols[i] = q
		selectCols[i] = "r." + q
		if c == "modified_at" {
			selectCols[i] = "clock_timestamp()"
		}
		// The row keeps its identity: id and the conflict key are never rewritten.
		if c == "id" || target[c] || c == "created_at" {
			continue
		}
		updates = append(updates, q+" = EXCLUDED."+q)
	}

	name := pgx.Identifier{table}.Sanitize()
	return "INSERT INTO " + name + " (" + strings.Join(insertCols, ", ") + ") " +
		"SELECT " + strings.Join(selectCols, ", ") + " FROM json_populate_record(NULL::" + name + ", $1::json) r " +
		"ON CONFLICT (" + strings.Join(quotedTarget, ", ") + ") DO UPDATE SET " + strings.Join(updates, ", "), nil
}

// classifyPg maps driver errors onto the remote error classes.
func classifyPg(op, table string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		rerr := &Error{Op: op, Table: table, Code: pgErr.Code, Message: pgErr.Message}
		switch {
		case pgErr.Code == "28000" || pgErr.Code == "28P01":
			rerr.Err = ErrUnauthorized
		case strings.HasPrefix(pgErr.Code, "08"):
			rerr.Err = ErrNetwork
		case strings.HasPrefix(pgErr.Code, "40"), strings.HasPrefix(pgErr.Code, "53"),
			strings.HasPrefix(pgErr.Code, "57"), strings.HasPrefix(pgErr.Code, "XX"):
			rerr.Err = ErrServer
		default:
			// 42501 policy violation, 23xxx constraint violations, 22xxx bad data.
			rerr.Err = ErrRejected
		}
		return rerr
	}
	var rerr *Error
	if errors.As(err, &rerr) {
		return err
	}
	return &Error{Op: op, Table: table, Message: err.Error(), Err: ErrNetwork}
}
