package cache

import (
	"log/slog"
	"strings"

	"github.com/hyperengineering/fitsync/internal/types"
)

// Derived view prefixes
const (
	ViewCalendar = "calendar"
	ViewStats    = "stats"
)

// Key builds a "kind:part:part" cache key.
func Key(prefix string, scope ...string) string {
	if len(scope) == 0 {
		return prefix + ":"
	}
	return prefix + ":" + strings.Join(scope, ":")
}

// dependents lists the derived views a mutation of each kind can stale.
var dependents = map[types.Kind][]string{
	types.KindWorkout:           {ViewCalendar, ViewStats},
	types.KindExercise:          {string(types.KindWorkout), ViewCalendar, ViewStats},
	types.KindCycle:             {ViewCalendar, ViewStats},
	types.KindScheduledTraining: {ViewCalendar},
	types.KindBodyMeasurement:   {ViewStats},
	types.KindGoal:              {ViewStats},
	types.KindFeedReaction:      {string(types.KindFeedPost)},
	types.KindGroupMember:       {string(types.KindGroup)},
	types.KindGroupInvite:       {string(types.KindGroup)},
	types.KindFriend:            {string(types.KindFeedPost)},
}

// InvalidateKind drops every entry for kind and for the views derived from it.
func (c *Cache) InvalidateKind(kind types.Kind) {
	prefixes := append([]string{string(kind)}, dependents[kind]...)
	n := c.invalidateMatching(func(k string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(k, p+":") {
				return true
			}
		}
		return false
	})
	if n > 0 {
		slog.Debug("cache invalidated", "component", "cache", "entity", string(kind), "entries", n)
	}
}
