package leveling

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSynchronizer(platform Platform) *Synchronizer {
	return NewSynchronizer(platform, WithMutationRate(0), WithBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}))
}

func markerCount(roles []*Role) int {
	return len(markerRoles(roles))
}

func TestEnsureLadderIsIdempotent(t *testing.T) {
	t.Parallel()
	platform := newFakePlatform()
	platform.addRole("Level 3")
	s := newTestSynchronizer(platform)
	ctx := context.Background()

	ladder, err := s.EnsureLadder(ctx, testGuild)
	require.NoError(t, err)
	assert.Len(t, ladder, MaxLevel)
	_, _, creates := platform.counts()
	assert.Equal(t, 9, creates, "existing Level 3 is kept")
	assert.Equal(t, MarkerColor(1), platform.roleByName("Level 1").Color)

	_, err = s.EnsureLadder(ctx, testGuild)
	require.NoError(t, err)
	_, _, creates = platform.counts()
	assert.Equal(t, 9, creates)
}

func TestEnsureLadderConcurrentCallsCreateOnce(t *testing.T) {
	t.Parallel()
	platform := newFakePlatform()
	s := newTestSynchronizer(platform)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.EnsureLadder(context.Background(), testGuild)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	roles, err := platform.Roles(context.Background(), testGuild)
	require.NoError(t, err)
	assert.Len(t, roles, MaxLevel)
	assert.Equal(t, MaxLevel, markerCount(roles))
}

func TestEnsureLadderRetriesTransientFailures(t *testing.T) {
	t.Parallel()
	platform := newFakePlatform()
	platform.createFailures = 2
	s := newTestSynchronizer(platform)

	ladder, err := s.EnsureLadder(context.Background(), testGuild)
	require.NoError(t, err)
	assert.Len(t, ladder, MaxLevel)
}

func TestReconcileLeavesExactlyOneMarker(t *testing.T) {
	t.Parallel()
	platform := newFakePlatform()
	platform.addMember(aliceID, "alice")
	l1 := platform.addRole("Level 1")
	l4 := platform.addRole("Level 4")
	other := platform.addRole("Member")
	platform.setRoles(aliceID, l1.ID, l4.ID, other.ID)
	s := newTestSynchronizer(platform)

	require.NoError(t, s.Reconcile(context.Background(), testGuild, aliceID, 2))
	assert.Equal(t, []string{"Level 2"}, platform.markerNames(aliceID))

	m, err := platform.Member(context.Background(), testGuild, aliceID)
	require.NoError(t, err)
	assert.True(t, m.HasRole(other.ID), "non-marker roles are untouched")

	grants, _, _ := platform.counts()
	require.NoError(t, s.Reconcile(context.Background(), testGuild, aliceID, 2))
	again, _, _ := platform.counts()
	assert.Equal(t, grants, again, "held marker is not granted twice")
}

func TestReconcileGrantsDespiteFailedRevoke(t *testing.T) {
	t.Parallel()
	platform := newFakePlatform()
	platform.addMember(aliceID, "alice")
	l1 := platform.addRole("Level 1")
	platform.setRoles(aliceID, l1.ID)
	platform.revokeErr = errors.New("rate limited")
	s := newTestSynchronizer(platform)

	require.NoError(t, s.Reconcile(context.Background(), testGuild, aliceID, 2))
	assert.Equal(t, []string{"Level 1", "Level 2"}, platform.markerNames(aliceID))
}

func TestReconcileSwallowsMissingPermission(t *testing.T) {
	t.Parallel()
	platform := newFakePlatform()
	platform.addMember(aliceID, "alice")
	l1 := platform.addRole("Level 1")
	platform.setRoles(aliceID, l1.ID)
	platform.grantErr = ErrPermission
	s := newTestSynchronizer(platform)

	assert.NoError(t, s.Reconcile(context.Background(), testGuild, aliceID, 3))
	assert.Empty(t, platform.markerNames(aliceID))

	m, err := platform.Member(context.Background(), testGuild, aliceID)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Apply(context.Background(), testGuild, m, 3), ErrPermission)
}

func TestReconcileOfDepartedMember(t *testing.T) {
	t.Parallel()
	s := newTestSynchronizer(newFakePlatform())
	assert.NoError(t, s.Reconcile(context.Background(), testGuild, "nobody", 2))
}

func TestReconcileLeavesOptedOutMemberAlone(t *testing.T) {
	t.Parallel()
	platform := newFakePlatform()
	platform.addMember(aliceID, "alice")
	other := platform.addRole("Member")
	platform.setRoles(aliceID, other.ID)
	s := newTestSynchronizer(platform)

	require.NoError(t, s.Reconcile(context.Background(), testGuild, aliceID, 2))
	assert.Empty(t, platform.markerNames(aliceID))
	grants, _, creates := platform.counts()
	assert.Zero(t, grants)
	assert.Zero(t, creates)
}
