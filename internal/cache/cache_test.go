package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type cachedConfig struct {
	QuestChannelID string          `json:"quest_channel_id"`
	Whitelist      map[string]bool `json:"whitelist"`
}

func TestGuildConfigCache(t *testing.T) {
	t.Parallel()
	mr, rdb := newTestRedis(t)
	c := NewGuildConfigCache(rdb, time.Minute)
	ctx := context.Background()

	var out cachedConfig
	hit, err := c.Get(ctx, "g1", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, "g1", cachedConfig{QuestChannelID: "c1", Whitelist: map[string]bool{"c1": true}}))
	hit, err = c.Get(ctx, "g1", &out)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "c1", out.QuestChannelID)
	assert.Equal(t, time.Minute, mr.TTL(GuildConfigPrefix+"g1"))

	require.NoError(t, c.Invalidate(ctx, "g1"))
	hit, err = c.Get(ctx, "g1", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestGuildConfigCacheDropsUndecodable(t *testing.T) {
	t.Parallel()
	mr, rdb := newTestRedis(t)
	c := NewGuildConfigCache(rdb, time.Minute)
	require.NoError(t, mr.Set(GuildConfigPrefix+"g1", "not json"))

	var out cachedConfig
	hit, err := c.Get(context.Background(), "g1", &out)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.False(t, mr.Exists(GuildConfigPrefix+"g1"))
}

func TestGuildConfigCachePurge(t *testing.T) {
	t.Parallel()
	mr, rdb := newTestRedis(t)
	c := NewGuildConfigCache(rdb, time.Minute)
	ctx := context.Background()
	for _, g := range []string{"g1", "g2", "g3"} {
		require.NoError(t, c.Set(ctx, g, cachedConfig{}))
	}
	require.NoError(t, mr.Set("unrelated", "keep"))

	require.NoError(t, c.Purge(ctx))
	assert.Equal(t, []string{"unrelated"}, mr.Keys())
}

func TestRoleSnapshotsSwap(t *testing.T) {
	t.Parallel()
	mr, rdb := newTestRedis(t)
	snaps := NewRoleSnapshots(rdb, time.Hour)
	ctx := context.Background()

	prev, ok, err := snaps.Swap(ctx, "g1", "m1", []string{"r1"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, prev)

	prev, ok, err = snaps.Swap(ctx, "g1", "m1", []string{"r1", "r2"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"r1"}, prev)
	assert.Equal(t, time.Hour, mr.TTL(roleSnapshotKey("g1", "m1")))

	roles, ok, err := snaps.Load(ctx, "g1", "m1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"r1", "r2"}, roles)

	_, ok, err = snaps.Load(ctx, "g1", "other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRoleSnapshotsSeed(t *testing.T) {
	t.Parallel()
	mr, rdb := newTestRedis(t)
	snaps := NewRoleSnapshots(rdb, time.Hour)
	ctx := context.Background()
	_, _, err := snaps.Swap(ctx, "g1", "m1", []string{"old"})
	require.NoError(t, err)

	require.NoError(t, snaps.Seed(ctx, "g1", map[string][]string{"m1": {"r1"}, "m2": nil}))
	require.NoError(t, snaps.Seed(ctx, "g1", nil))

	roles, ok, err := snaps.Load(ctx, "g1", "m1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"r1"}, roles)
	roles, ok, err = snaps.Load(ctx, "g1", "m2")
	require.NoError(t, err)
	require.True(t, ok, "a member without roles still has a baseline")
	assert.Empty(t, roles)
	assert.Equal(t, time.Hour, mr.TTL(roleSnapshotKey("g1", "m2")))
}

func TestNotificationLimiterFailsOpen(t *testing.T) {
	t.Parallel()
	mr, rdb := newTestRedis(t)
	limiter := NewNotificationLimiter(rdb, 1)
	mr.Close()
	assert.True(t, limiter.Allow(context.Background(), "g1"))
}
