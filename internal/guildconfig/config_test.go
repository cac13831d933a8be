package guildconfig

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"questbot.io/questbot/internal/cache"
	"questbot.io/questbot/internal/database"
)

type fakeStore struct {
	loads     int
	upgrades  int
	settings  *database.GuildSettings
	roleExps  []*database.RoleExpAssignment
	channels  []*database.WhitelistedChannel
	failRoles error
}

func (f *fakeStore) SelectGuildSettings(context.Context, string) (*database.GuildSettings, error) {
	f.loads++
	return f.settings, nil
}

func (f *fakeStore) SelectRoleExps(context.Context, string) ([]*database.RoleExpAssignment, error) {
	return f.roleExps, f.failRoles
}

func (f *fakeStore) SelectWhitelistedChannels(context.Context, string) ([]*database.WhitelistedChannel, error) {
	return f.channels, nil
}

func (f *fakeStore) UpgradeLegacyRoleExp(context.Context, string) (int, error) {
	f.upgrades++
	return 0, nil
}

func newRedisCache(t *testing.T) *cache.GuildConfigCache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return cache.NewGuildConfigCache(rdb, time.Minute)
}

func TestLoadAssemblesConfig(t *testing.T) {
	t.Parallel()
	store := &fakeStore{
		settings: &database.GuildSettings{GuildID: "g1", QuestChannelID: "qc", OptInMessageID: "optin"},
		roleExps: []*database.RoleExpAssignment{
			{RoleID: "badge", Exp: 25, Kind: database.RoleExpKindBadge},
			{RoleID: "streak", Exp: 10, Kind: database.RoleExpKindStreak},
		},
		channels: []*database.WhitelistedChannel{{ChannelID: "c1", ChannelName: "quests"}},
	}
	conf, err := NewLoader(store, nil).Load(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "qc", conf.QuestChannelID)
	assert.True(t, conf.IsOptInMessage("optin"))
	assert.False(t, conf.IsOptInMessage(""))
	a, ok := conf.Assignment("streak")
	require.True(t, ok)
	assert.Equal(t, database.RoleExpKindStreak, a.Kind)
	assert.Equal(t, map[string]string{"c1": "quests"}, conf.Whitelist)
	assert.Equal(t, 1, store.upgrades, "legacy data is upgraded before it is read")
}

func TestLoadUsesCacheUntilInvalidated(t *testing.T) {
	t.Parallel()
	store := &fakeStore{settings: &database.GuildSettings{GuildID: "g1", QuestChannelID: "qc"}}
	loader := NewLoader(store, newRedisCache(t))
	ctx := context.Background()

	_, err := loader.Load(ctx, "g1")
	require.NoError(t, err)
	conf, err := loader.Load(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "qc", conf.QuestChannelID)
	assert.Equal(t, 1, store.loads)

	store.settings.QuestChannelID = "moved"
	loader.Invalidate(ctx, "g1")
	conf, err = loader.Load(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "moved", conf.QuestChannelID)
	assert.Equal(t, 2, store.loads)
}

func TestLoadPropagatesStoreErrors(t *testing.T) {
	t.Parallel()
	store := &fakeStore{failRoles: errors.New("db down")}
	_, err := NewLoader(store, nil).Load(context.Background(), "g1")
	require.Error(t, err)
}
