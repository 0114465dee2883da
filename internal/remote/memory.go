package remote

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

type memRow struct {
	fields     map[string]any
	modifiedAt time.Time
}

func (r *memRow) str(key string) string {
	s, _ := r.fields[key].(string)
	return s
}

func (r *memRow) flag(key string) bool {
	b, _ := r.fields[key].(bool)
	return b
}

// Memory is an in-process remote shared by any number of simulated devices.
// It enforces the same write policies and read visibility the hosted
// database does, and stamps modified_at on the server side.
type Memory struct {
	mu     sync.Mutex
	now    func() time.Time
	last   time.Time
	tables map[string]map[string]*memRow

	// fail, when set, is consulted before every call; a non-nil error is returned as-is.
	fail func(op, table string, payload json.RawMessage) error
}

// NewMemory creates an empty remote. A nil clock uses time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	m := &Memory{now: now, tables: make(map[string]map[string]*memRow)}
	for t := range tables {
		m.tables[t] = make(map[string]*memRow)
	}
	return m
}

// FailWith installs a hook that can fail calls, for exercising error paths.
func (m *Memory) FailWith(fn func(op, table string, payload json.RawMessage) error) {
	m.mu.Lock()
	m.fail = fn
	m.mu.Unlock()
}

// As returns a Client acting as userID.
func (m *Memory) As(userID string) Client {
	return &memorySession{m: m, userID: userID}
}

// Rows returns every row of table regardless of visibility, oldest change first.
func (m *Memory) Rows(table string) []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.sorted(table)
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = copyFields(r.fields)
	}
	return out
}

type memorySession struct {
	m      *Memory
	userID string
}

func (s *memorySession) Upsert(ctx context.Context, table string, payload json.RawMessage, conflictTarget []string) error {
	if err := checkTable("upsert", table); err != nil {
		return err
	}
	if s.userID == "" {
		return &Error{Op: "upsert", Table: table, Status: 401, Err: ErrUnauthorized}
	}
	if err := ctx.Err(); err != nil {
		return &Error{Op: "upsert", Table: table, Message: err.Error(), Err: ErrNetwork}
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return &Error{Op: "upsert", Table: table, Status: 400, Message: err.Error(), Err: ErrRejected}
	}
	id, _ := fields["id"].(string)
	if id == "" {
		return &Error{Op: "upsert", Table: table, Status: 400, Code: "23502", Message: "null id", Err: ErrRejected}
	}
	if len(conflictTarget) == 0 {
		conflictTarget = []string{"id"}
	}

	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		if err := m.fail("upsert", table, payload); err != nil {
			return err
		}
	}

	incoming := &memRow{fields: fields}
	existing := m.match(table, incoming, conflictTarget)
	if existing != nil && !m.canWrite(table, existing, s.userID) {
		return policyViolation(table)
	}
	if !m.canWrite(table, incoming, s.userID) {
		return policyViolation(table)
	}

	stamp := m.stamp()
	if existing != nil {
		for k, v := range fields {
			if k == "id" || k == "created_at" {
				continue
			}
			existing.fields[k] = v
		}
		existing.fields["modified_at"] = formatTime(stamp)
		existing.modifiedAt = stamp
		return nil
	}

	incoming.fields["modified_at"] = formatTime(stamp)
	incoming.modifiedAt = stamp
	m.tables[table][id] = incoming
	return nil
}

func (s *memorySession) SelectChanged(ctx context.Context, table string, q SelectQuery) ([]json.RawMessage, error) {
	if err := checkTable("select", table); err != nil {
		return nil, err
	}
	if s.userID == "" {
		return nil, &Error{Op: "select", Table: table, Status: 401, Err: ErrUnauthorized}
	}
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "select", Table: table, Message: err.Error(), Err: ErrNetwork}
	}

	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		if err := m.fail("select", table, nil); err != nil {
			return nil, err
		}
	}

	var out []json.RawMessage
	for _, r := range m.sorted(table) {
		if !q.AfterModifiedAt.IsZero() && !after(r, q.AfterModifiedAt, q.AfterID) {
			continue
		}
		if !m.canRead(table, r, s.userID) {
			continue
		}
		b, err := json.Marshal(r.fields)
		if err != nil {
			return nil, &Error{Op: "select", Table: table, Message: err.Error(), Err: ErrServer}
		}
		out = append(out, b)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func after(r *memRow, at time.Time, id string) bool {
	at = at.UTC().Truncate(time.Microsecond)
	if r.modifiedAt.Equal(at) {
		return r.str("id") > id
	}
	return r.modifiedAt.After(at)
}

func (m *Memory) sorted(table string) []*memRow {
	rows := make([]*memRow, 0, len(m.tables[table]))
	for _, r := range m.tables[table] {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].modifiedAt.Equal(rows[j].modifiedAt) {
			return rows[i].str("id") < rows[j].str("id")
		}
		return rows[i].modifiedAt.Before(rows[j].modifiedAt)
	})
	return rows
}

// match finds the stored row sharing incoming's conflict target.
func (m *Memory) match(table string, incoming *memRow, target []string) *memRow {
	if len(target) == 1 && target[0] == "id" {
		return m.tables[table][incoming.str("id")]
	}
	for _, r := range m.tables[table] {
		same := true
		for _, col := range target {
			if r.str(col) != incoming.str(col) {
				same = false
				break
			}
		}
		if same {
			return r
		}
	}
	return nil
}

func (m *Memory) stamp() time.Time {
	t := m.now().UTC().Truncate(time.Microsecond)
	if !t.After(m.last) {
		t = m.last.Add(time.Microsecond)
	}
	m.last = t
	return t
}

// canWrite mirrors the remote's insert and update policies.
func (m *Memory) canWrite(table string, r *memRow, uid string) bool {
	switch table {
	case "exercises":
		w := m.tables["workouts"][r.str("workout_id")]
		return w != nil && w.str("user_id") == uid
	case "friends":
		return r.str("user_id") == uid || r.str("friend_user_id") == uid
	case "friend_invites", "group_invites":
		return r.str("inviter_id") == uid
	case "groups":
		return r.str("owner_id") == uid
	case "group_members":
		return r.str("user_id") == uid || m.groupOwner(r.str("group_id")) == uid
	default:
		return r.str("user_id") == uid
	}
}

// canRead mirrors the remote's select policies.
func (m *Memory) canRead(table string, r *memRow, uid string) bool {
	switch table {
	case "profiles":
		return true
	case "exercises":
		w := m.tables["workouts"][r.str("workout_id")]
		return w != nil && w.str("user_id") == uid
	case "friends":
		return r.str("user_id") == uid || r.str("friend_user_id") == uid
	case "friend_invites":
		return r.str("inviter_id") == uid || r.str("invitee_id") == uid ||
			(r.str("status") == "pending" && !r.flag("deleted"))
	case "groups":
		return r.str("owner_id") == uid || !r.flag("is_private") ||
			m.isMember(r.str("id"), uid) || m.isInvited(r.str("id"), uid)
	case "group_members":
		gid := r.str("group_id")
		return r.str("user_id") == uid || m.groupOwner(gid) == uid || m.isMember(gid, uid)
	case "group_invites":
		return r.str("inviter_id") == uid || r.str("invitee_id") == uid ||
			m.groupOwner(r.str("group_id")) == uid
	case "feed_posts":
		return m.canSeePost(r, uid)
	case "feed_reactions":
		p := m.tables["feed_posts"][r.str("post_id")]
		return r.str("user_id") == uid || (p != nil && m.canSeePost(p, uid))
	default:
		return r.str("user_id") == uid
	}
}

func (m *Memory) canSeePost(p *memRow, uid string) bool {
	author := p.str("user_id")
	if author == uid {
		return true
	}
	switch p.str("visibility") {
	case "public":
		return true
	case "friends":
		return m.areFriends(author, uid)
	case "group":
		gid := p.str("group_id")
		return m.groupOwner(gid) == uid || m.isMember(gid, uid)
	}
	return false
}

func (m *Memory) groupOwner(groupID string) string {
	if g := m.tables["groups"][groupID]; g != nil {
		return g.str("owner_id")
	}
	return ""
}

func (m *Memory) isMember(groupID, uid string) bool {
	for _, r := range m.tables["group_members"] {
		if r.str("group_id") == groupID && r.str("user_id") == uid &&
			r.str("status") == "active" && !r.flag("deleted") {
			return true
		}
	}
	return false
}

func (m *Memory) isInvited(groupID, uid string) bool {
	for _, r := range m.tables["group_invites"] {
		if r.str("group_id") == groupID && r.str("invitee_id") == uid && !r.flag("deleted") {
			return true
		}
	}
	return false
}

func (m *Memory) areFriends(a, b string) bool {
	for _, r := range m.tables["friends"] {
		if r.str("status") != "accepted" || r.flag("deleted") {
			continue
		}
		u, f := r.str("user_id"), r.str("friend_user_id")
		if (u == a && f == b) || (u == b && f == a) {
			return true
		}
	}
	return false
}

func policyViolation(table string) error {
	return &Error{
		Op: "upsert", Table: table, Status: 403, Code: "42501",
		Message: "new row violates row-level security policy for table " + table,
		Err:     ErrRejected,
	}
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
