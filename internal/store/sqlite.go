package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperengineering/fitsync/internal/types"
	_ "modernc.org/sqlite"
)

// Invalidator drops cached views derived from an entity kind.
type Invalidator interface {
	InvalidateKind(kind types.Kind)
}

type nopInvalidator struct{}

func (nopInvalidator) InvalidateKind(types.Kind) {}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock sets the wall clock used to stamp local writes.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) {
		s.stamp = newStamper(now)
	}
}

// WithInvalidator registers the cache that is told about successful mutations.
func WithInvalidator(inv Invalidator) Option {
	return func(s *SQLiteStore) {
		if inv != nil {
			s.inval = inv
		}
	}
}

// SQLiteStore is the device-local database holding every synced entity.
type SQLiteStore struct {
	db    *sql.DB
	stamp *stamper
	inval Invalidator

	// cascadeFault, when set, is called after each table step of a cascade.
	// A non-nil error aborts the cascade.
	cascadeFault func(table string) error

	Profiles           *Repo[types.Profile, *types.Profile, types.ProfilePatch]
	Cycles             *Repo[types.Cycle, *types.Cycle, types.CyclePatch]
	Workouts           *WorkoutRepo
	Exercises          *ExerciseRepo
	Goals              *GoalRepo
	StrengthTests      *StrengthTestRepo
	BodyMeasurements   *BodyMeasurementRepo
	ScheduledTrainings *ScheduledTrainingRepo
	TrainingTemplates  *Repo[types.TrainingTemplate, *types.TrainingTemplate, types.TrainingTemplatePatch]
	Friends            *FriendRepo
	FriendInvites      *FriendInviteRepo
	Groups             *GroupRepo
	GroupMembers       *GroupMemberRepo
	GroupInvites       *GroupInviteRepo
	FeedPosts          *FeedPostRepo
	FeedReactions      *FeedReactionRepo

	tables map[types.Kind]SyncTable
}

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection: the device has a single logical writer, and an
	// in-memory database only exists on the connection that created it.
	db.SetMaxOpenConns(1)

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return newStore(db, opts...), nil
}

func newStore(db *sql.DB, opts ...Option) *SQLiteStore {
	s := &SQLiteStore{
		db:    db,
		stamp: newStamper(time.Now),
		inval: nopInvalidator{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Profiles = newRepo[types.Profile, *types.Profile, types.ProfilePatch](s, profileTable)
	s.Cycles = newRepo[types.Cycle, *types.Cycle, types.CyclePatch](s, cycleTable)
	s.Workouts = &WorkoutRepo{newRepo[types.Workout, *types.Workout, types.WorkoutPatch](s, workoutTable)}
	s.Exercises = &ExerciseRepo{newRepo[types.Exercise, *types.Exercise, types.ExercisePatch](s, exerciseTable)}
	s.Goals = &GoalRepo{newRepo[types.Goal, *types.Goal, types.GoalPatch](s, goalTable)}
	s.StrengthTests = &StrengthTestRepo{newRepo[types.StrengthTest, *types.StrengthTest, types.StrengthTestPatch](s, strengthTestTable)}
	s.BodyMeasurements = &BodyMeasurementRepo{newRepo[types.BodyMeasurement, *types.BodyMeasurement, types.BodyMeasurementPatch](s, bodyMeasurementTable)}
	s.ScheduledTrainings = &ScheduledTrainingRepo{newRepo[types.ScheduledTraining, *types.ScheduledTraining, types.ScheduledTrainingPatch](s, scheduledTrainingTable)}
	s.TrainingTemplates = newRepo[types.TrainingTemplate, *types.TrainingTemplate, types.TrainingTemplatePatch](s, trainingTemplateTable)
	s.Friends = &FriendRepo{newRepo[types.Friend, *types.Friend, types.FriendPatch](s, friendTable)}
	s.FriendInvites = &FriendInviteRepo{newRepo[types.FriendInvite, *types.FriendInvite, types.FriendInvitePatch](s, friendInviteTable)}
	s.Groups = &GroupRepo{newRepo[types.Group, *types.Group, types.GroupPatch](s, groupTable)}
	s.GroupMembers = &GroupMemberRepo{newRepo[types.GroupMember, *types.GroupMember, types.GroupMemberPatch](s, groupMemberTable)}
	s.GroupInvites = &GroupInviteRepo{newRepo[types.GroupInvite, *types.GroupInvite, types.GroupInvitePatch](s, groupInviteTable)}
	s.FeedPosts = &FeedPostRepo{newRepo[types.FeedPost, *types.FeedPost, types.FeedPostPatch](s, feedPostTable)}
	s.FeedReactions = &FeedReactionRepo{newRepo[types.FeedReaction, *types.FeedReaction, types.FeedReactionPatch](s, feedReactionTable)}

	s.tables = map[types.Kind]SyncTable{}
	for _, t := range []SyncTable{
		s.Profiles, s.Cycles, s.Workouts, s.Exercises, s.Goals, s.StrengthTests,
		s.BodyMeasurements, s.ScheduledTrainings, s.TrainingTemplates, s.Friends,
		s.FriendInvites, s.Groups, s.GroupMembers, s.GroupInvites, s.FeedPosts,
		s.FeedReactions,
	} {
		s.tables[t.Kind()] = t
	}

	return s
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SyncTable returns the sync surface for one entity kind.
func (s *SQLiteStore) SyncTable(kind types.Kind) (SyncTable, error) {
	t, ok := s.tables[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return t, nil
}

// PendingCounts returns the number of unsynced rows per entity kind,
// tombstones included. Kinds with nothing pending are omitted.
func (s *SQLiteStore) PendingCounts(ctx context.Context) (map[types.Kind]int, error) {
	counts := make(map[types.Kind]int)
	for kind, t := range s.tables {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM `+quoteIdent(t.Table())+` WHERE pending_sync = 1`).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("count pending %s: %w", t.Table(), err)
		}
		if n > 0 {
			counts[kind] = n
		}
	}
	return counts, nil
}

// WorkoutOwners maps workout id to owner for every local workout, tombstones
// included, so a pending exercise can be attributed after its parent is deleted.
func (s *SQLiteStore) WorkoutOwners(ctx context.Context) (map[string]string, error) {
	return s.ownerMap(ctx, `SELECT id, user_id FROM workouts`)
}

// GroupOwners maps group id to owner for every local group, tombstones included.
func (s *SQLiteStore) GroupOwners(ctx context.Context) (map[string]string, error) {
	return s.ownerMap(ctx, `SELECT id, owner_id FROM "groups"`)
}

func (s *SQLiteStore) ownerMap(ctx context.Context, query string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query owners: %w", err)
	}
	defer rows.Close()

	owners := make(map[string]string)
	for rows.Next() {
		var id, owner string
		if err := rows.Scan(&id, &owner); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners[id] = owner
	}
	return owners, rows.Err()
}

// withTx runs fn inside a transaction, committing only if fn succeeds.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) invalidate(kinds ...types.Kind) {
	for _, k := range kinds {
		s.inval.InvalidateKind(k)
	}
}
