package store

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// timeLayout is fixed width so lexical order on the TEXT columns equals time order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

// stamper issues strictly increasing modification stamps.
type stamper struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func newStamper(now func() time.Time) *stamper {
	return &stamper{now: now}
}

func (s *stamper) next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

// observe moves the floor up to t so later local edits sort after pulled rows.
func (s *stamper) observe(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t = t.UTC().Truncate(time.Microsecond)
	if t.After(s.last) {
		s.last = t
	}
}

// sqlValue converts a Go field value into its column encoding.
func sqlValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return formatTime(x)
	case *time.Time:
		if x == nil {
			return nil
		}
		return formatTime(*x)
	case bool:
		if x {
			return 1
		}
		return 0
	case *bool:
		if x == nil {
			return nil
		}
		return sqlValue(*x)
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case *float64:
		if x == nil {
			return nil
		}
		return *x
	case *int:
		if x == nil {
			return nil
		}
		return *x
	case json.RawMessage:
		if len(x) == 0 {
			return "[]"
		}
		return string(x)
	default:
		return v
	}
}

// timeDest scans a TEXT timestamp column.
type timeDest struct{ t *time.Time }

func (d timeDest) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d.t = time.Time{}
		return nil
	case time.Time:
		*d.t = v.UTC()
		return nil
	case string:
		t, err := parseTime(v)
		if err != nil {
			return err
		}
		*d.t = t
		return nil
	case []byte:
		return d.Scan(string(v))
	}
	return fmt.Errorf("scan time: unsupported type %T", src)
}

// nullTimeDest scans a nullable TEXT timestamp column.
type nullTimeDest struct{ t **time.Time }

func (d nullTimeDest) Scan(src any) error {
	if src == nil {
		*d.t = nil
		return nil
	}
	var t time.Time
	if err := (timeDest{&t}).Scan(src); err != nil {
		return err
	}
	*d.t = &t
	return nil
}

// rawDest scans a JSON document stored as TEXT.
type rawDest struct{ r *json.RawMessage }

func (d rawDest) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d.r = nil
	case string:
		*d.r = json.RawMessage(v)
	case []byte:
		*d.r = append(json.RawMessage(nil), v...)
	default:
		return fmt.Errorf("scan json: unsupported type %T", src)
	}
	return nil
}
