package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Page sizes
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Cursor is a position in a (timestamp, id) ordering. The id breaks ties
// between rows sharing a timestamp.
type Cursor struct {
	At time.Time
	ID string
}

// IsZero reports whether the cursor points before the first row.
func (c Cursor) IsZero() bool {
	return c.At.IsZero() && c.ID == ""
}

// After reports whether c sorts strictly after o.
func (c Cursor) After(o Cursor) bool {
	if c.At.Equal(o.At) {
		return c.ID > o.ID
	}
	return c.At.After(o.At)
}

// Max returns the later of c and o.
func (c Cursor) Max(o Cursor) Cursor {
	if o.After(c) {
		return o
	}
	return c
}

// Encode returns an opaque URL-safe token.
func (c Cursor) Encode() string {
	if c.IsZero() {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(formatTime(c.At) + "|" + c.ID))
}

// DecodeCursor parses a token produced by Encode. The empty token is the zero cursor.
func DecodeCursor(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: cursor encoding", ErrInvalidInput)
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return Cursor{}, fmt.Errorf("%w: cursor format", ErrInvalidInput)
	}
	at, err := parseTime(ts)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: cursor time", ErrInvalidInput)
	}
	return Cursor{At: at, ID: id}, nil
}

// PageRequest asks for the page after Cursor.
type PageRequest struct {
	Cursor string
	Size   int
}

func (p PageRequest) size() int {
	switch {
	case p.Size <= 0:
		return DefaultPageSize
	case p.Size > MaxPageSize:
		return MaxPageSize
	}
	return p.Size
}

// Page is one slice of a newest-first listing.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// page lists live rows matching where, newest first by tsColumn, fetching one
// extra row to learn whether another page exists. ts reads tsColumn off a row.
func (r *Repo[T, PT, P]) page(ctx context.Context, tsColumn string, ts func(*T) time.Time, where string, args []any, req PageRequest) (*Page[*T], error) {
	cur, err := DecodeCursor(req.Cursor)
	if err != nil {
		return nil, err
	}
	size := req.size()

	conds := []string{"deleted = 0"}
	if where != "" {
		conds = append(conds, "("+where+")")
	}
	all := append([]any{}, args...)
	if !cur.IsZero() {
		conds = append(conds, "("+tsColumn+" < ? OR ("+tsColumn+" = ? AND id < ?))")
		at := formatTime(cur.At)
		all = append(all, at, at, cur.ID)
	}

	rows, err := r.query(ctx, r.s.db, strings.Join(conds, " AND "), all,
		tsColumn+" DESC, id DESC", size+1)
	if err != nil {
		return nil, err
	}

	p := &Page[*T]{Items: rows}
	if len(rows) > size {
		p.Items = rows[:size]
		p.HasMore = true
		last := p.Items[size-1]
		p.NextCursor = Cursor{At: ts(last), ID: PT(last).Meta().ID}.Encode()
	}
	return p, nil
}
