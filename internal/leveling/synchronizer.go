package leveling

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/singleflight"
	"questbot.io/questbot/pkg/errors"
	"questbot.io/questbot/pkg/log"
)

// Synchronizer is the only writer of level marker roles.
type Synchronizer struct {
	platform Platform
	pace     ratelimit.Limiter
	backOff  func() backoff.BackOff
	ladders  singleflight.Group
}

type SynchronizerOption func(*Synchronizer)

// WithMutationRate paces role mutations to perSecond. Zero or less disables pacing.
func WithMutationRate(perSecond int) SynchronizerOption {
	return func(s *Synchronizer) {
		if perSecond <= 0 {
			s.pace = ratelimit.NewUnlimited()
			return
		}
		s.pace = ratelimit.New(perSecond)
	}
}

// WithBackOff sets the retry policy for transient platform failures.
func WithBackOff(newBackOff func() backoff.BackOff) SynchronizerOption {
	return func(s *Synchronizer) {
		s.backOff = newBackOff
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 10 * time.Second
	return backoff.WithMaxRetries(b, 3)
}

func NewSynchronizer(platform Platform, opts ...SynchronizerOption) *Synchronizer {
	s := &Synchronizer{
		platform: platform,
		pace:     ratelimit.NewUnlimited(),
		backOff:  defaultBackOff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// mutate runs fn paced and retried. Permission and not-found failures are not retried.
func (s *Synchronizer) mutate(ctx context.Context, fn func() error) error {
	op := func() error {
		s.pace.Take()
		err := fn()
		if err != nil && !transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(s.backOff(), ctx))
}

// Reconcile makes an opted-in member hold exactly the marker of level. A member
// without any marker has opted out and is left alone. Missing permissions and members
// who left are logged and otherwise ignored.
func (s *Synchronizer) Reconcile(ctx context.Context, guildID, memberID string, level int) error {
	member, err := s.platform.Member(ctx, guildID, memberID)
	if errors.Is(err, ErrNotFound) {
		log.Debugf("skip marker sync of %v in %v, member gone", memberID, guildID)
		return nil
	}
	if err != nil {
		return errors.WithMessage(err, "fetch member for marker sync")
	}
	if !member.OptedIn() {
		log.Debugf("skip marker sync of %v in %v, opted out", memberID, guildID)
		return nil
	}
	err = s.Apply(ctx, guildID, member, level)
	if errors.Is(err, ErrPermission) {
		log.Warnf("cannot set Level %d marker of %v in %v: %v", level, memberID, guildID, err)
		return nil
	}
	return err
}

// Apply revokes every stale marker of member, then grants the marker of level unless
// already held. Failed revokes are logged and do not stop the grant.
func (s *Synchronizer) Apply(ctx context.Context, guildID string, member *Member, level int) error {
	markers := member.Markers()
	for _, held := range sortedLevels(markers) {
		if held == level {
			continue
		}
		role := markers[held]
		err := s.mutate(ctx, func() error {
			return s.platform.RevokeRole(ctx, guildID, member.ID, role.ID)
		})
		if err != nil {
			log.WithFields(log.Fields{"guild": guildID, "member": member.ID, "role": role.Name}).
				Warnf("revoke stale marker: %v", err)
		}
	}
	if _, ok := markers[level]; ok {
		return nil
	}
	target, err := s.MarkerRole(ctx, guildID, level)
	if err != nil {
		return err
	}
	err = s.mutate(ctx, func() error {
		return s.platform.GrantRole(ctx, guildID, member.ID, target.ID)
	})
	if err != nil {
		return errors.WithMessagef(err, "grant %s", target.Name)
	}
	log.WithFields(log.Fields{"guild": guildID, "member": member.ID}).Debugf("marker set to %s", target.Name)
	return nil
}

// MarkerRole returns the marker role of level, provisioning the ladder when it is missing.
func (s *Synchronizer) MarkerRole(ctx context.Context, guildID string, level int) (*Role, error) {
	roles, err := s.platform.Roles(ctx, guildID)
	if err != nil {
		return nil, errors.WithMessage(err, "list guild roles")
	}
	if role, ok := markerRoles(roles)[level]; ok {
		return role, nil
	}
	ladder, err := s.EnsureLadder(ctx, guildID)
	if err != nil {
		return nil, err
	}
	role, ok := ladder[level]
	if !ok {
		return nil, errors.Errorf("marker role of level %d missing after provisioning", level)
	}
	return role, nil
}

// EnsureLadder creates whichever of the ten marker roles the guild lacks. Concurrent
// calls for one guild share a single provisioning run.
func (s *Synchronizer) EnsureLadder(ctx context.Context, guildID string) (map[int]*Role, error) {
	v, err, _ := s.ladders.Do(guildID, func() (interface{}, error) {
		return s.ensureLadder(ctx, guildID)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[int]*Role), nil
}

func (s *Synchronizer) ensureLadder(ctx context.Context, guildID string) (map[int]*Role, error) {
	roles, err := s.platform.Roles(ctx, guildID)
	if err != nil {
		return nil, errors.WithMessage(err, "list guild roles")
	}
	ladder := markerRoles(roles)
	for level := MinLevel; level <= MaxLevel; level++ {
		if _, ok := ladder[level]; ok {
			continue
		}
		params := RoleParams{
			Name:   MarkerName(level),
			Color:  MarkerColor(level),
			Reason: "level marker",
		}
		var created *Role
		err := s.mutate(ctx, func() (err error) {
			created, err = s.platform.CreateRole(ctx, guildID, params)
			return err
		})
		if err != nil {
			return nil, errors.WithMessagef(err, "create %s", params.Name)
		}
		log.Infof("created role %s in guild %v", params.Name, guildID)
		ladder[level] = created
	}
	return ladder, nil
}

// markerRoles indexes marker roles by level, keeping the first of any duplicates.
func markerRoles(roles []*Role) map[int]*Role {
	ladder := make(map[int]*Role)
	for _, r := range roles {
		level, ok := ParseMarker(r.Name)
		if !ok {
			continue
		}
		if _, dup := ladder[level]; !dup {
			ladder[level] = r
		}
	}
	return ladder
}
