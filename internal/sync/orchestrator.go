package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperengineering/fitsync/internal/identity"
	"github.com/hyperengineering/fitsync/internal/remote"
	"github.com/hyperengineering/fitsync/internal/store"
	"github.com/hyperengineering/fitsync/internal/types"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Defaults for Options.
const (
	DefaultCallTimeout        = 5 * time.Second
	DefaultPullPageSize       = 500
	DefaultTriggerMinInterval = 10 * time.Second
	DefaultPullOverlap        = 30 * time.Second
)

// ErrWrongUser is returned when a cycle is requested for someone other than
// the signed-in user. The remote only accepts writes as the signed-in user.
var ErrWrongUser = errors.New("user is not signed in on this device")

// LocalStore is the subset of the local database a cycle needs.
// Implemented by store.SQLiteStore.
type LocalStore interface {
	SyncTable(kind types.Kind) (store.SyncTable, error)
	WorkoutOwners(ctx context.Context) (map[string]string, error)
	GroupOwners(ctx context.Context) (map[string]string, error)
	PullState(ctx context.Context, userID, table string) (store.PullState, error)
	RewindPulls(ctx context.Context, userID string, tables ...string) error
	ClearRewind(ctx context.Context, userID, table string) error
	SetLastSyncAt(ctx context.Context, userID string, at time.Time) error
}

// Options configures an Orchestrator. Zero values take the defaults.
type Options struct {
	// CallTimeout bounds every remote call.
	CallTimeout time.Duration
	// PullPageSize is the most rows requested per pull call.
	PullPageSize int
	// Policy decides what a pull does with rows that carry unpushed edits.
	Policy store.ConflictPolicy
	// TriggerMinInterval spaces out lifecycle-driven cycles.
	TriggerMinInterval time.Duration
	// PullOverlap re-reads this much before the last pulled change, so a
	// row the remote committed late with an earlier stamp is still seen.
	// Negative disables the overlap.
	PullOverlap time.Duration
	// Now overrides the clock used for report timestamps.
	Now func() time.Time
}

// Orchestrator runs sync cycles. At most one cycle runs at a time; triggers
// that arrive for the same user while it runs join it.
type Orchestrator struct {
	store  LocalStore
	remote remote.Client
	ident  identity.Provider

	callTimeout time.Duration
	pageSize    int
	overlap     time.Duration
	policy      store.ConflictPolicy
	now         func() time.Time

	flight  singleflight.Group
	cycleMu sync.Mutex
	limiter *rate.Limiter
	running atomic.Bool

	mu   sync.RWMutex
	last *Report
}

// New creates an orchestrator pushing and pulling between st and rc as the
// user ident reports.
func New(st LocalStore, rc remote.Client, ident identity.Provider, opts Options) *Orchestrator {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.PullPageSize <= 0 {
		opts.PullPageSize = DefaultPullPageSize
	}
	if opts.Policy == "" {
		opts.Policy = store.RemoteWins
	}
	if opts.TriggerMinInterval <= 0 {
		opts.TriggerMinInterval = DefaultTriggerMinInterval
	}
	if opts.PullOverlap == 0 {
		opts.PullOverlap = DefaultPullOverlap
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		store:       st,
		remote:      rc,
		ident:       ident,
		callTimeout: opts.CallTimeout,
		pageSize:    opts.PullPageSize,
		overlap:     opts.PullOverlap,
		policy:      opts.Policy,
		now:         opts.Now,
		limiter:     rate.NewLimiter(rate.Every(opts.TriggerMinInterval), 1),
	}
}

// TriggerSync runs a cycle for userID, or joins the one already running for
// them. The cycle itself is not cancelled with ctx: a caller that stops
// waiting gets ctx's error while the cycle runs to completion.
func (o *Orchestrator) TriggerSync(ctx context.Context, userID string) (*Report, error) {
	return o.trigger(ctx, userID, ReasonUser)
}

// SyncCurrent runs a cycle for the signed-in user.
func (o *Orchestrator) SyncCurrent(ctx context.Context) (*Report, error) {
	id, err := o.ident.Current(ctx)
	if err != nil {
		return nil, err
	}
	return o.trigger(ctx, id.UserID, ReasonUser)
}

// Signal handles a lifecycle trigger. Everything but an explicit user action
// is throttled; a dropped signal returns (nil, false, nil). A signal while
// signed out fails without spending the throttle.
func (o *Orchestrator) Signal(ctx context.Context, reason Reason) (*Report, bool, error) {
	id, err := o.ident.Current(ctx)
	if err != nil {
		return nil, true, err
	}
	if reason != ReasonUser && !o.limiter.Allow() {
		slog.Debug("sync signal throttled",
			"component", "sync",
			"reason", string(reason),
		)
		return nil, false, nil
	}
	rep, err := o.trigger(ctx, id.UserID, reason)
	return rep, true, err
}

// Status reports whether a cycle is running and the last completed report.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Status{Running: o.running.Load(), Last: o.last}
}

func (o *Orchestrator) trigger(ctx context.Context, userID string, reason Reason) (*Report, error) {
	if userID == "" {
		return nil, identity.ErrNotAuthenticated
	}
	id, err := o.ident.Current(ctx)
	if err != nil {
		return nil, err
	}
	if id.UserID != userID {
		return nil, fmt.Errorf("%w: %s", ErrWrongUser, userID)
	}

	detached := context.WithoutCancel(ctx)
	ch := o.flight.DoChan(userID, func() (any, error) {
		return o.runCycle(detached, userID, reason), nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Report), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// runCycle walks every entity kind in Order, then pulls again any kind that
// became more readable after its turn. It never fails as a whole; problems
// are recorded in the report.
func (o *Orchestrator) runCycle(ctx context.Context, userID string, reason Reason) *Report {
	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()
	o.running.Store(true)
	defer o.running.Store(false)

	rep := &Report{
		CycleID:   ulid.Make().String(),
		UserID:    userID,
		Reason:    reason,
		StartedAt: o.now(),
		Entities:  make([]EntityReport, 0, len(Order)),
	}
	log := slog.With("component", "sync", "cycle_id", rep.CycleID)
	log.Info("sync cycle started", "reason", string(reason), "user_id", userID)

	// due holds kinds marked for a pull from the beginning after their turn.
	due := make(map[types.Kind]bool)
	for _, kind := range Order {
		rep.Entities = append(rep.Entities, o.syncEntity(ctx, log, userID, kind, due))
	}
	for _, kind := range Order {
		if !due[kind] {
			continue
		}
		delete(due, kind)
		o.repull(ctx, log, userID, kind, rep.Entity(kind), due)
	}

	rep.FinishedAt = o.now()
	rep.DurationMs = rep.FinishedAt.Sub(rep.StartedAt).Milliseconds()
	if err := o.store.SetLastSyncAt(ctx, userID, rep.FinishedAt); err != nil {
		log.Error("failed to record sync time", "error", err)
	}

	t := rep.Totals()
	log.Info("sync cycle completed",
		"pushed", t.Pushed,
		"push_failed", t.PushFailed,
		"excluded", t.Excluded,
		"stale", t.Stale,
		"settled", t.Settled,
		"pulled", t.Pulled,
		"pull_skipped", t.PullSkipped,
		"pull_failed", t.PullFailed,
		"duration_ms", rep.DurationMs,
	)

	o.mu.Lock()
	o.last = rep
	o.mu.Unlock()
	return rep
}

// syncEntity pushes then pulls one kind, so rows pushed here are seen by the
// same kind's pull if another device raced them.
func (o *Orchestrator) syncEntity(ctx context.Context, log *slog.Logger, userID string, kind types.Kind, due map[types.Kind]bool) EntityReport {
	er := EntityReport{Kind: kind}
	log = log.With("entity", string(kind))

	tbl, err := o.store.SyncTable(kind)
	if err != nil {
		log.Error("no sync table for entity", "error", err)
		er.Error = err.Error()
		return er
	}

	if err := o.push(ctx, log, userID, tbl, &er, due); err != nil {
		log.Error("push aborted", "action", "push", "error", err)
		er.Error = err.Error()
	}
	// This kind's own pull is next; it picks up a rewind from its push.
	delete(due, kind)
	if err := o.pull(ctx, log, userID, tbl, &er, due); err != nil {
		log.Error("pull aborted", "action", "pull", "error", err)
		if er.Error == "" {
			er.Error = err.Error()
		}
	}
	return er
}

// repull runs a pull-only pass for a kind that was widened after its turn.
func (o *Orchestrator) repull(ctx context.Context, log *slog.Logger, userID string, kind types.Kind, er *EntityReport, due map[types.Kind]bool) {
	log = log.With("entity", string(kind))
	tbl, err := o.store.SyncTable(kind)
	if err != nil {
		log.Error("no sync table for entity", "error", err)
		return
	}
	if err := o.pull(ctx, log, userID, tbl, er, due); err != nil {
		log.Error("pull aborted", "action", "pull", "error", err)
		if er.Error == "" {
			er.Error = err.Error()
		}
	}
}

// push upserts every eligible pending row. A failed row stays pending for
// the next cycle; only local storage errors end the push early. Excluded
// tombstones are settled locally since no one on this device can send them.
func (o *Orchestrator) push(ctx context.Context, log *slog.Logger, userID string, tbl store.SyncTable, er *EntityReport, due map[types.Kind]bool) error {
	pending, err := tbl.PendingRecords(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	part, err := o.participation(ctx, tbl.Kind())
	if err != nil {
		return err
	}
	eligible, excluded := FilterEligible(userID, part, pending)
	er.Excluded = len(excluded)
	for _, r := range excluded {
		m := r.Meta()
		if !m.Deleted {
			log.Debug("pending row not writable by user", "action", "push", "id", m.ID)
			continue
		}
		ok, err := tbl.MarkSynced(ctx, m.ID, m.ModifiedAt)
		if err != nil {
			return err
		}
		if ok {
			log.Debug("settled tombstone not writable by user", "action", "push", "id", m.ID)
			er.Settled++
		}
	}

	widened := make(map[types.Kind]bool)

	for _, rec := range eligible {
		m := rec.Meta()
		payload, err := json.Marshal(rec)
		if err != nil {
			log.Warn("failed to encode row", "action", "push", "id", m.ID, "error", err)
			er.PushFailed++
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
		err = o.remote.Upsert(callCtx, tbl.Table(), payload, tbl.ConflictTarget())
		cancel()
		if err != nil {
			log.Warn("push failed, row stays pending",
				"action", "push",
				"id", m.ID,
				"retryable", remote.Retryable(err),
				"error", err,
			)
			er.PushFailed++
			continue
		}

		ok, err := tbl.MarkSynced(ctx, m.ID, m.ModifiedAt)
		if err != nil {
			return err
		}
		if !ok {
			log.Debug("row edited during push, stays pending", "action", "push", "id", m.ID)
			er.Stale++
			continue
		}
		er.Pushed++
		for _, k := range Widens(userID, nil, rec) {
			widened[k] = true
		}
	}
	return o.rewind(ctx, log, userID, widened, due)
}

// participation loads the parent owners a kind's filter needs.
func (o *Orchestrator) participation(ctx context.Context, kind types.Kind) (Participation, error) {
	var p Participation
	var err error
	switch kind {
	case types.KindExercise:
		p.WorkoutOwners, err = o.store.WorkoutOwners(ctx)
	case types.KindGroupMember:
		p.GroupOwners, err = o.store.GroupOwners(ctx)
	}
	return p, err
}

// pull pages through remote changes after the stored position, starting a
// little early to catch late commits. A rewound table that does not finish
// stays marked for the next cycle.
func (o *Orchestrator) pull(ctx context.Context, log *slog.Logger, userID string, tbl store.SyncTable, er *EntityReport, due map[types.Kind]bool) error {
	table := tbl.Table()
	state, err := o.store.PullState(ctx, userID, table)
	if err != nil {
		return err
	}
	if state.Rewind {
		if err := o.store.ClearRewind(ctx, userID, table); err != nil {
			return err
		}
		er.Rewound = true
		log.Debug("pulling from the beginning", "action", "pull")
	}

	complete, err := o.pullPages(ctx, log, userID, tbl, er, state, due)
	if state.Rewind && !complete {
		if rerr := o.store.RewindPulls(ctx, userID, table); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

// pullPages applies each page in one local transaction that also advances
// the cursor. It reports whether it reached the end of the changes.
func (o *Orchestrator) pullPages(ctx context.Context, log *slog.Logger, userID string, tbl store.SyncTable, er *EntityReport, state store.PullState, due map[types.Kind]bool) (bool, error) {
	widened := make(map[types.Kind]bool)
	opts := store.ApplyOptions{
		Policy:    o.policy,
		CursorKey: store.PullCursorKey(userID, tbl.Table()),
		Seen:      state.Seen,
		OnApply: func(prev, next types.Record) {
			for _, k := range Widens(userID, prev, next) {
				widened[k] = true
			}
		},
	}

	cur := o.startAt(state)
	for {
		callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
		rows, err := o.remote.SelectChanged(callCtx, tbl.Table(), remote.SelectQuery{
			AfterModifiedAt: cur.At,
			AfterID:         cur.ID,
			Limit:           o.pageSize,
		})
		cancel()
		if err != nil {
			log.Warn("pull failed", "action", "pull", "retryable", remote.Retryable(err), "error", err)
			er.PullFailed++
			return false, nil
		}

		res, err := tbl.ApplyRemote(ctx, rows, opts)
		if err != nil {
			return false, err
		}
		er.Pulled += res.Applied
		er.PullSkipped += res.Skipped
		er.Malformed += res.Malformed
		if err := o.rewind(ctx, log, userID, widened, due); err != nil {
			return false, err
		}

		if len(rows) < o.pageSize || !res.Cursor.After(cur) {
			return true, nil
		}
		cur = res.Cursor
	}
}

// startAt is the keyset position of a pull's first page.
func (o *Orchestrator) startAt(state store.PullState) store.Cursor {
	if state.Rewind || state.Seen.IsZero() {
		return store.Cursor{}
	}
	if o.overlap <= 0 {
		return state.Seen
	}
	return store.Cursor{At: state.Seen.At.Add(-o.overlap)}
}

// rewind marks widened kinds for a pull from the beginning and adds them to
// due. It empties widened.
func (o *Orchestrator) rewind(ctx context.Context, log *slog.Logger, userID string, widened, due map[types.Kind]bool) error {
	if len(widened) == 0 {
		return nil
	}
	tables := make([]string, 0, len(widened))
	for _, kind := range Order {
		if !widened[kind] {
			continue
		}
		tbl, err := o.store.SyncTable(kind)
		if err != nil {
			return err
		}
		tables = append(tables, tbl.Table())
		due[kind] = true
	}
	clear(widened)
	if err := o.store.RewindPulls(ctx, userID, tables...); err != nil {
		return err
	}
	log.Info("more rows readable, pulling again from the beginning", "tables", tables)
	return nil
}
