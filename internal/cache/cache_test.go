package cache

import (
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/hyperengineering/fitsync/internal/types"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestCache(ttl time.Duration) (*Cache, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	return New(ttl, WithClock(clk.Now)), clk
}

func TestCache_GetSet(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss on empty cache")
	}

	c.Set("k", 42)
	v, ok := c.Get("k")
	if !ok || v.(int) != 42 {
		t.Errorf("Get(k) = %v, %v, want 42, true", v, ok)
	}
}

func TestCache_Expiry(t *testing.T) {
	c, clk := newTestCache(time.Minute)
	c.Set("default", "a")
	c.SetWithTTL("long", "b", time.Hour)

	// When: The default TTL elapses
	clk.Advance(time.Minute)

	// Then: Only the long-lived entry survives
	if _, ok := c.Get("default"); ok {
		t.Error("entry should expire at its TTL")
	}
	if _, ok := c.Get("long"); !ok {
		t.Error("entry with longer TTL should survive")
	}
	if c.Len() != 1 {
		t.Errorf("expired entry should be dropped on read, Len = %d", c.Len())
	}
}

func TestCache_NonPositiveTTLUsesDefault(t *testing.T) {
	c, clk := newTestCache(0)
	c.SetWithTTL("k", 1, -time.Second)

	clk.Advance(DefaultTTL - time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Error("entry should live for DefaultTTL")
	}
	clk.Advance(time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("entry should expire after DefaultTTL")
	}
}

func TestCache_Invalidation(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	for _, k := range []string{"workout:u1", "workout:u2", "calendar:u1:2026-03", "goal:u1"} {
		c.Set(k, true)
	}

	c.Invalidate("goal:u1")
	if _, ok := c.Get("goal:u1"); ok {
		t.Error("Invalidate should remove the exact key")
	}

	if n := c.InvalidatePattern("u1"); n != 2 {
		t.Errorf("InvalidatePattern removed %d, want 2", n)
	}
	if _, ok := c.Get("workout:u2"); !ok {
		t.Error("non-matching key removed")
	}

	if n := c.InvalidateRegexp(regexp.MustCompile(`^workout:u\d$`)); n != 1 {
		t.Errorf("InvalidateRegexp removed %d, want 1", n)
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}

func TestCache_Purge(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Purge()

	if c.Len() != 0 {
		t.Errorf("Len after Purge = %d", c.Len())
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		prefix string
		scope  []string
		want   string
	}{
		{"workout", []string{"u1"}, "workout:u1"},
		{"calendar", []string{"u1", "2026-03"}, "calendar:u1:2026-03"},
		{"stats", nil, "stats:"},
	}
	for _, tt := range tests {
		if got := Key(tt.prefix, tt.scope...); got != tt.want {
			t.Errorf("Key(%q, %v) = %q, want %q", tt.prefix, tt.scope, got, tt.want)
		}
	}
}

func TestInvalidateKind_DropsDerivedViews(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	keys := []string{
		Key(string(types.KindWorkout), "u1"),
		Key(ViewCalendar, "u1", "2026-03"),
		Key(ViewStats, "u1"),
		Key(string(types.KindGoal), "u1"),
		Key(string(types.KindFeedPost), "all"),
	}
	for _, k := range keys {
		c.Set(k, true)
	}

	// When: A workout mutation is reported
	c.InvalidateKind(types.KindWorkout)

	// Then: Workout lists and aggregates miss, unrelated views stay
	for _, k := range keys[:3] {
		if _, ok := c.Get(k); ok {
			t.Errorf("%s should be invalidated", k)
		}
	}
	for _, k := range keys[3:] {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should survive", k)
		}
	}

	// When: A reaction changes
	c.InvalidateKind(types.KindFeedReaction)

	// Then: Feed pages are dropped
	if _, ok := c.Get(Key(string(types.KindFeedPost), "all")); ok {
		t.Error("feed pages should be invalidated by reactions")
	}
}

func TestInvalidateKind_PrefixIsExact(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Set(Key(string(types.KindGroupMember), "g1"), true)

	c.InvalidateKind(types.KindGroup)

	if _, ok := c.Get(Key(string(types.KindGroupMember), "g1")); !ok {
		t.Error("group invalidation must not drop group_member keys")
	}
}

func TestRemember(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	calls := 0
	load := func() ([]string, error) {
		calls++
		return []string{"a"}, nil
	}

	for i := 0; i < 3; i++ {
		v, err := Remember(c, "k", load)
		if err != nil || len(v) != 1 {
			t.Fatalf("Remember = %v, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("loader called %d times, want 1", calls)
	}

	boom := errors.New("boom")
	if _, err := Remember(c, "failing", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Errorf("Remember error = %v, want boom", err)
	}
	if _, ok := c.Get("failing"); ok {
		t.Error("failed load must not be cached")
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set("k", j)
				c.Get("k")
				c.InvalidatePattern("k")
			}
		}()
	}
	wg.Wait()
}
