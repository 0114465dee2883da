// Package query serves the reads behind the app's screens. Results are
// cached per user and scope; the store's mutations invalidate them.
package query

import (
	"context"
	"strconv"
	"time"

	"github.com/hyperengineering/fitsync/internal/cache"
	"github.com/hyperengineering/fitsync/internal/store"
	"github.com/hyperengineering/fitsync/internal/types"
)

// Service layers the cache over the local store. The store must be built
// with store.WithInvalidator pointing at the same cache, or reads go stale
// until their TTL.
type Service struct {
	st    *store.SQLiteStore
	cache *cache.Cache
}

// New creates a Service.
func New(st *store.SQLiteStore, c *cache.Cache) *Service {
	return &Service{st: st, cache: c}
}

func kindKey(kind types.Kind, scope ...string) string {
	return cache.Key(string(kind), scope...)
}

func pageScope(req store.PageRequest) []string {
	return []string{"page", req.Cursor, strconv.Itoa(req.Size)}
}

// Workouts lists userID's workouts.
func (s *Service) Workouts(ctx context.Context, userID string) ([]*types.Workout, error) {
	return cache.Remember(s.cache, kindKey(types.KindWorkout, userID, "all"), func() ([]*types.Workout, error) {
		return s.st.Workouts.ListForOwner(ctx, userID)
	})
}

// WorkoutPage returns one page of userID's workouts, newest first.
func (s *Service) WorkoutPage(ctx context.Context, userID string, req store.PageRequest) (*store.Page[*types.Workout], error) {
	key := kindKey(types.KindWorkout, append([]string{userID}, pageScope(req)...)...)
	return cache.Remember(s.cache, key, func() (*store.Page[*types.Workout], error) {
		return s.st.Workouts.Page(ctx, userID, req)
	})
}

// Calendar returns the per-day training summary for the month containing month.
func (s *Service) Calendar(ctx context.Context, userID string, month time.Time) ([]types.CalendarDay, error) {
	key := cache.Key(cache.ViewCalendar, userID, month.UTC().Format("2006-01"))
	return cache.Remember(s.cache, key, func() ([]types.CalendarDay, error) {
		return s.st.Calendar(ctx, userID, month)
	})
}

// Stats returns userID's dashboard summary.
func (s *Service) Stats(ctx context.Context, userID string) (*types.UserStats, error) {
	return cache.Remember(s.cache, cache.Key(cache.ViewStats, userID), func() (*types.UserStats, error) {
		return s.st.Stats(ctx, userID)
	})
}

// Goals lists userID's goals not yet achieved.
func (s *Service) Goals(ctx context.Context, userID string) ([]*types.Goal, error) {
	return cache.Remember(s.cache, kindKey(types.KindGoal, userID, "active"), func() ([]*types.Goal, error) {
		return s.st.Goals.ListActive(ctx, userID)
	})
}

// Friends lists the users with an accepted edge to userID.
func (s *Service) Friends(ctx context.Context, userID string) ([]string, error) {
	return cache.Remember(s.cache, kindKey(types.KindFriend, userID), func() ([]string, error) {
		return s.st.Friends.FriendIDs(ctx, userID)
	})
}

// FeedPage returns one page of the posts held on the device.
func (s *Service) FeedPage(ctx context.Context, f store.FeedFilter, req store.PageRequest) (*store.Page[*types.FeedPost], error) {
	key := kindKey(types.KindFeedPost, append([]string{f.GroupID, f.UserID}, pageScope(req)...)...)
	return cache.Remember(s.cache, key, func() (*store.Page[*types.FeedPost], error) {
		return s.st.FeedPosts.Page(ctx, f, req)
	})
}

// Reactions counts a post's live reactions by type.
func (s *Service) Reactions(ctx context.Context, postID string) (map[string]int, error) {
	return cache.Remember(s.cache, kindKey(types.KindFeedReaction, postID), func() (map[string]int, error) {
		return s.st.FeedReactions.Counts(ctx, postID)
	})
}

// GroupMembers lists a group's live member rows.
func (s *Service) GroupMembers(ctx context.Context, groupID string) ([]*types.GroupMember, error) {
	return cache.Remember(s.cache, kindKey(types.KindGroupMember, groupID), func() ([]*types.GroupMember, error) {
		return s.st.GroupMembers.ListByGroup(ctx, groupID)
	})
}
