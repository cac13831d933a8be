package leveling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"questbot.io/questbot/internal/guildconfig"
)

func TestChannelAllowed(t *testing.T) {
	t.Parallel()
	whitelist := map[string]string{"c1": "quests"}
	cases := []struct {
		name       string
		whitelist  map[string]string
		channel    string
		privileged bool
		want       bool
	}{
		{"empty whitelist is open", nil, "c2", false, true},
		{"whitelisted channel", whitelist, "c1", false, true},
		{"other channel blocked", whitelist, "c2", false, false},
		{"privileged passes", whitelist, "c2", true, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ChannelAllowed(c.whitelist, c.channel, c.privileged), c.name)
	}
}

type failingConfigs struct{}

func (failingConfigs) Load(context.Context, string) (*guildconfig.Config, error) {
	return nil, errors.New("db down")
}

func (failingConfigs) Invalidate(context.Context, string) {}

func TestGateFailsOpen(t *testing.T) {
	t.Parallel()
	assert.True(t, NewGate(failingConfigs{}).Allowed(context.Background(), testGuild, "c2", false))
}

func TestWhitelistSuppressesOtherChannels(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	notify := func(channelID string, privileged bool) string {
		msgID, err := h.engine.Notifier.Notify(ctx, &Notification{
			Kind: NotifyLevelChanged, GuildID: testGuild, ChannelID: channelID, Privileged: privileged,
		})
		require.NoError(t, err)
		return msgID
	}

	assert.NotEmpty(t, notify("c1", false))
	assert.NotEmpty(t, notify("c2", false))

	added, err := h.engine.Admin.WhitelistChannel(ctx, testGuild, "c1", "quests")
	require.NoError(t, err)
	assert.True(t, added)

	assert.NotEmpty(t, notify("c1", false))
	assert.Empty(t, notify("c2", false), "send outside the whitelist is a no-op")
	assert.NotEmpty(t, notify("c2", true))
	assert.True(t, h.engine.Gate.Allowed(ctx, testGuild, "c1", false))
	assert.False(t, h.engine.Gate.Allowed(ctx, testGuild, "c2", false))

	_, err = h.engine.Admin.ClearWhitelist(ctx, testGuild)
	require.NoError(t, err)
	assert.NotEmpty(t, notify("c2", false))
}

func TestNotifierPicksChannel(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	n := &Notification{Kind: NotifyRoleExp, GuildID: testGuild}

	_, err := h.engine.Notifier.Notify(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, "system", h.publisher.last().channelID)

	for _, c := range []string{"c9", "c3"} {
		_, err := h.engine.Admin.WhitelistChannel(ctx, testGuild, c, c)
		require.NoError(t, err)
	}
	_, err = h.engine.Notifier.Notify(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, "c3", h.publisher.last().channelID)
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) bool { return false }

func TestNotifierThrottlesOnlyUnprivileged(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.engine.Notifier.limiter = denyLimiter{}
	ctx := context.Background()

	msgID, err := h.engine.Notifier.Notify(ctx, &Notification{Kind: NotifyRoleExp, GuildID: testGuild, ChannelID: "c1"})
	require.NoError(t, err)
	assert.Empty(t, msgID)

	msgID, err = h.engine.Notifier.Notify(ctx, &Notification{Kind: NotifyQuestPosted, GuildID: testGuild, ChannelID: "c1", Privileged: true})
	require.NoError(t, err)
	assert.NotEmpty(t, msgID)
}

func TestNotifierDeletesAfterTTL(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	var scheduled func()
	var delay time.Duration
	h.engine.Notifier.afterFunc = func(d time.Duration, f func()) {
		delay, scheduled = d, f
	}

	msgID, err := h.engine.Notifier.Notify(context.Background(), &Notification{
		Kind: NotifyWelcome, GuildID: testGuild, ChannelID: "c1", DeleteAfter: 10 * time.Second,
	})
	require.NoError(t, err)
	require.NotNil(t, scheduled)
	assert.Equal(t, 10*time.Second, delay)

	scheduled()
	assert.ErrorIs(t, h.platform.FetchMessage(context.Background(), "c1", msgID), ErrNotFound)
	scheduled()
}
