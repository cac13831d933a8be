package leveling

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaderboardRanksOptedInMembers(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	const carolID = "800000000000000003"
	h.platform.addMember(carolID, "carol")
	for _, id := range []string{aliceID, bobID, carolID} {
		h.optIn(t, id)
	}
	_, err := h.engine.Admin.AddExp(ctx, testGuild, aliceID, 110)
	require.NoError(t, err)
	_, err = h.engine.Admin.AddExp(ctx, testGuild, bobID, 50)
	require.NoError(t, err)
	_, err = h.engine.Admin.AddExp(ctx, testGuild, carolID, 900)
	require.NoError(t, err)
	h.engine.Reactor.Wait()
	h.platform.setRoles(carolID)

	top, err := h.engine.Leaderboard.Top(ctx, testGuild, 10)
	require.NoError(t, err)
	require.Len(t, top, 2, "members without a marker are hidden")
	assert.Equal(t, aliceID, top[0].MemberID)
	assert.Equal(t, "alice", top[0].MemberName)
	assert.Equal(t, 110, top[0].Total())
	assert.Equal(t, bobID, top[1].MemberID)

	top, err = h.engine.Leaderboard.Top(ctx, testGuild, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

type failingStreakStore struct {
	Store
	failFor string
}

func (s failingStreakStore) SumStreakExp(ctx context.Context, guildID, memberID string) (int, error) {
	if memberID == s.failFor {
		return 0, errors.New("connection reset")
	}
	return s.Store.SumStreakExp(ctx, guildID, memberID)
}

func TestLeaderboardSurvivesOneUnreadableMember(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.optIn(t, aliceID)
	h.optIn(t, bobID)
	_, err := h.engine.Admin.AddExp(ctx, testGuild, aliceID, 30)
	require.NoError(t, err)
	_, err = h.engine.Admin.AddExp(ctx, testGuild, bobID, 20)
	require.NoError(t, err)
	h.engine.Reactor.Wait()

	store := failingStreakStore{Store: h.store, failFor: aliceID}
	board := &Leaderboard{
		store:      store,
		configs:    h.configs,
		platform:   h.platform,
		aggregator: NewAggregator(store, h.platform, h.engine.Levels, 5),
		levels:     h.engine.Levels,
	}
	top, err := board.Top(ctx, testGuild, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, aliceID, top[0].MemberID)
	assert.Equal(t, 30, top[0].Total())
	assert.True(t, top[0].Breakdown.Degraded)
	assert.False(t, top[1].Breakdown.Degraded)
}

func TestLeaderboardBreaksTiesByID(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.optIn(t, bobID)
	h.optIn(t, aliceID)

	top, err := h.engine.Leaderboard.Top(ctx, testGuild, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, aliceID, top[0].MemberID)
}

func TestStanding(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.optIn(t, aliceID)
	_, err := h.engine.Admin.AddExp(ctx, testGuild, aliceID, 110)
	require.NoError(t, err)

	s, err := h.engine.Leaderboard.Standing(ctx, testGuild, aliceID)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Level())
	assert.Equal(t, 500, s.NextThreshold)
	assert.Equal(t, 2, s.Progress)
	assert.Equal(t, 110, s.Breakdown.Base)

	_, err = h.engine.Leaderboard.Standing(ctx, testGuild, bobID)
	assert.ErrorIs(t, err, ErrNotOptedIn)

	_, err = h.engine.Admin.SetExp(ctx, testGuild, aliceID, 20000)
	require.NoError(t, err)
	h.engine.Reactor.Wait()
	s, err = h.engine.Leaderboard.Standing(ctx, testGuild, aliceID)
	require.NoError(t, err)
	assert.Equal(t, MaxLevel, s.Level())
	assert.Zero(t, s.NextThreshold)
	assert.Equal(t, 100, s.Progress)
}
