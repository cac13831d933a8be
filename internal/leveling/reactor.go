package leveling

import (
	"context"
	"sort"
	"time"

	"go.uber.org/atomic"
	"gopkg.in/fatih/set.v0"
	"questbot.io/questbot/internal/database"
	"questbot.io/questbot/internal/guildconfig"
	"questbot.io/questbot/pkg/concurrent"
	"questbot.io/questbot/pkg/errors"
	"questbot.io/questbot/pkg/log"
)

type ReactionEvent struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	Emoji     string
	Bot       bool
}

// RolesChangedEvent carries a member's role ids before and after an update.
// Before is only meaningful when BeforeKnown is set.
type RolesChangedEvent struct {
	GuildID     string
	MemberID    string
	Before      []string
	After       []string
	BeforeKnown bool
}

type Outcome string

const (
	OutcomeIgnored               Outcome = "ignored"
	OutcomeOptedIn               Outcome = "opted_in"
	OutcomeAlreadyOptedIn        Outcome = "already_opted_in"
	OutcomeNotOptedIn            Outcome = "not_opted_in"
	OutcomeQuestCompleted        Outcome = "quest_completed"
	OutcomeQuestAlreadyCompleted Outcome = "quest_already_completed"
)

// ExpChange is the result of an operation that may have moved a member's xp.
type ExpChange struct {
	Breakdown     Breakdown
	PreviousLevel int
	Level         int
}

func (c ExpChange) LevelChanged() bool {
	return c.PreviousLevel != c.Level
}

type ReactorStats struct {
	Events       int64
	Completions  int64
	StreakGains  int64
	LevelChanges int64
}

// Reactor applies platform events and admin xp changes to the ledger. Everything
// touching one member runs on that member's queue, in arrival order, and marker
// reconciliation is queued behind the mutation that caused it.
type Reactor struct {
	store      Store
	configs    ConfigSource
	platform   Platform
	aggregator *Aggregator
	sync       *Synchronizer
	notifier   *Notifier
	executor   *concurrent.KeyedExecutor

	badgeNameExp int
	welcomeTTL   time.Duration

	events       atomic.Int64
	completions  atomic.Int64
	streakGains  atomic.Int64
	levelChanges atomic.Int64
}

func NewReactor(store Store, configs ConfigSource, platform Platform, aggregator *Aggregator,
	sync *Synchronizer, notifier *Notifier, workers int, badgeNameExp int, welcomeTTL time.Duration) *Reactor {
	r := &Reactor{
		store:        store,
		configs:      configs,
		platform:     platform,
		aggregator:   aggregator,
		sync:         sync,
		notifier:     notifier,
		badgeNameExp: badgeNameExp,
		welcomeTTL:   welcomeTTL,
	}
	r.executor = concurrent.NewKeyedExecutor(workers, r.logFailure)
	return r
}

// logFailure is the one place event failures end up.
func (r *Reactor) logFailure(key string, err error) {
	entry := log.WithFields(log.Fields{"key": key})
	if errors.Is(err, ErrPermission) || errors.Is(err, ErrNotFound) {
		entry.Warnf("event abandoned: %v", err)
		return
	}
	entry.Errorf("event failed: %+v", err)
}

// SubmitReaction queues a reaction without waiting for it.
func (r *Reactor) SubmitReaction(ev ReactionEvent) {
	if ev.Bot || ev.GuildID == "" {
		return
	}
	r.executor.Submit(memberKey(ev.GuildID, ev.UserID), func() error {
		_, err := r.react(context.Background(), ev)
		return err
	})
}

// HandleReaction applies a reaction and waits for the outcome.
func (r *Reactor) HandleReaction(ctx context.Context, ev ReactionEvent) (Outcome, error) {
	if ev.Bot || ev.GuildID == "" {
		return OutcomeIgnored, nil
	}
	var out Outcome
	err := r.executor.Do(ctx, memberKey(ev.GuildID, ev.UserID), func() (err error) {
		out, err = r.react(ctx, ev)
		return err
	})
	if err != nil {
		return OutcomeIgnored, err
	}
	return out, nil
}

// SubmitRolesChanged queues a role update without waiting for it.
func (r *Reactor) SubmitRolesChanged(ev RolesChangedEvent) {
	r.executor.Submit(memberKey(ev.GuildID, ev.MemberID), func() error {
		return r.rolesChanged(context.Background(), ev)
	})
}

// HandleRolesChanged applies a role update and waits for it.
func (r *Reactor) HandleRolesChanged(ctx context.Context, ev RolesChangedEvent) error {
	return r.executor.Do(ctx, memberKey(ev.GuildID, ev.MemberID), func() error {
		return r.rolesChanged(ctx, ev)
	})
}

// AdjustBaseExp adds delta, which may be negative, to an opted-in member's base xp.
// Base xp never drops below zero.
func (r *Reactor) AdjustBaseExp(ctx context.Context, guildID, memberID string, delta int) (ExpChange, error) {
	if delta == 0 {
		return ExpChange{}, ErrInvalidAmount
	}
	return r.changeBaseExp(ctx, guildID, memberID, func(*database.MemberLevel) int { return delta })
}

// SetBaseExp sets an opted-in member's base xp to amount.
func (r *Reactor) SetBaseExp(ctx context.Context, guildID, memberID string, amount int) (ExpChange, error) {
	if amount < 0 {
		return ExpChange{}, ErrInvalidAmount
	}
	return r.changeBaseExp(ctx, guildID, memberID, func(ledger *database.MemberLevel) int {
		if ledger == nil {
			return amount
		}
		return amount - ledger.BaseExp
	})
}

func (r *Reactor) changeBaseExp(ctx context.Context, guildID, memberID string, delta func(*database.MemberLevel) int) (ExpChange, error) {
	var change ExpChange
	err := r.executor.Do(ctx, memberKey(guildID, memberID), func() error {
		r.events.Inc()
		conf, err := r.configs.Load(ctx, guildID)
		if err != nil {
			return err
		}
		member, err := r.platform.Member(ctx, guildID, memberID)
		if err != nil {
			return err
		}
		if !member.OptedIn() {
			return ErrNotOptedIn
		}
		ledger, err := r.store.SelectMemberLevel(ctx, guildID, memberID)
		if err != nil {
			return err
		}
		if d := delta(ledger); d != 0 {
			if _, err := r.store.AddBaseExp(ctx, guildID, memberID, d); err != nil {
				return err
			}
		}
		change, err = r.recompute(ctx, conf, memberID, member)
		return err
	})
	if err != nil {
		return ExpChange{}, err
	}
	return change, nil
}

// RecomputeGuild queues a recompute of every member with a ledger row, used after
// role xp assignments change. Members who opted out or left are skipped when their
// turn comes. It returns how many were queued.
func (r *Reactor) RecomputeGuild(ctx context.Context, guildID string) (int, error) {
	ledgers, err := r.store.SelectMemberLevels(ctx, guildID)
	if err != nil {
		return 0, err
	}
	for _, ledger := range ledgers {
		memberID := ledger.MemberID
		r.executor.Submit(memberKey(guildID, memberID), func() error {
			ctx := context.Background()
			conf, err := r.configs.Load(ctx, guildID)
			if err != nil {
				return err
			}
			member, err := r.platform.Member(ctx, guildID, memberID)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if !member.OptedIn() {
				return nil
			}
			_, err = r.recompute(ctx, conf, memberID, member)
			return err
		})
	}
	return len(ledgers), nil
}

// Wait blocks until every queued event has been applied.
func (r *Reactor) Wait() {
	r.executor.Wait()
}

// Pending returns how many events are queued or running.
func (r *Reactor) Pending() int64 {
	return r.executor.Pending()
}

func (r *Reactor) Stats() ReactorStats {
	return ReactorStats{
		Events:       r.events.Load(),
		Completions:  r.completions.Load(),
		StreakGains:  r.streakGains.Load(),
		LevelChanges: r.levelChanges.Load(),
	}
}

func (r *Reactor) react(ctx context.Context, ev ReactionEvent) (Outcome, error) {
	if ev.Emoji != ConfirmEmoji {
		return OutcomeIgnored, nil
	}
	r.events.Inc()
	conf, err := r.configs.Load(ctx, ev.GuildID)
	if err != nil {
		return OutcomeIgnored, err
	}
	if conf.IsOptInMessage(ev.MessageID) {
		return r.optIn(ctx, conf, ev)
	}
	quest, err := r.store.SelectQuest(ctx, ev.MessageID)
	if err != nil {
		return OutcomeIgnored, err
	}
	if quest == nil || quest.GuildID != ev.GuildID {
		return OutcomeIgnored, nil
	}
	return r.completeQuest(ctx, conf, quest, ev)
}

func (r *Reactor) optIn(ctx context.Context, conf *guildconfig.Config, ev ReactionEvent) (Outcome, error) {
	member, err := r.platform.Member(ctx, ev.GuildID, ev.UserID)
	if err != nil {
		return OutcomeIgnored, err
	}
	if member.Bot {
		return OutcomeIgnored, nil
	}
	if member.OptedIn() {
		return OutcomeAlreadyOptedIn, nil
	}
	ledger, err := r.store.SelectMemberLevel(ctx, ev.GuildID, member.ID)
	if err != nil {
		return OutcomeIgnored, err
	}
	level := MinLevel
	if ledger != nil {
		level = ledger.Level
	}
	if err := r.sync.Apply(ctx, ev.GuildID, member, level); err != nil {
		return OutcomeIgnored, errors.WithMessage(err, "grant opt-in marker")
	}
	created, err := r.store.InsertMemberLevelIgnore(ctx, ev.GuildID, member.ID)
	if err != nil {
		return OutcomeIgnored, err
	}
	if !created {
		// returning member, the stored level may be stale against live roles
		if _, err := r.recompute(ctx, conf, member.ID, nil); err != nil {
			return OutcomeIgnored, err
		}
	}
	log.WithFields(log.Fields{"guild": ev.GuildID, "member": member.ID}).Infof("opted in")
	r.notify(ctx, &Notification{
		Kind:        NotifyWelcome,
		GuildID:     ev.GuildID,
		ChannelID:   ev.ChannelID,
		MemberID:    member.ID,
		Level:       level,
		DeleteAfter: r.welcomeTTL,
	})
	return OutcomeOptedIn, nil
}

func (r *Reactor) completeQuest(ctx context.Context, conf *guildconfig.Config, quest *database.Quest, ev ReactionEvent) (Outcome, error) {
	member, err := r.platform.Member(ctx, ev.GuildID, ev.UserID)
	if err != nil {
		return OutcomeIgnored, err
	}
	if member.Bot {
		return OutcomeIgnored, nil
	}
	if !member.OptedIn() {
		return OutcomeNotOptedIn, nil
	}
	completed, _, err := r.store.CompleteQuest(ctx, quest, member.ID)
	if err != nil {
		return OutcomeIgnored, err
	}
	if !completed {
		return OutcomeQuestAlreadyCompleted, nil
	}
	r.completions.Inc()
	change, err := r.recompute(ctx, conf, member.ID, member)
	if err != nil {
		return OutcomeQuestCompleted, err
	}
	r.notify(ctx, &Notification{
		Kind:          NotifyQuestCompleted,
		GuildID:       ev.GuildID,
		ChannelID:     ev.ChannelID,
		MemberID:      member.ID,
		Quest:         quest,
		Exp:           quest.ExpReward,
		TotalExp:      change.Breakdown.Total(),
		Level:         change.Level,
		PreviousLevel: change.PreviousLevel,
	})
	return OutcomeQuestCompleted, nil
}

type roleGain struct {
	role   *Role
	exp    int
	streak bool
}

func (r *Reactor) rolesChanged(ctx context.Context, ev RolesChangedEvent) error {
	r.events.Inc()
	conf, err := r.configs.Load(ctx, ev.GuildID)
	if err != nil {
		return err
	}
	roles, err := r.platform.Roles(ctx, ev.GuildID)
	if err != nil {
		return err
	}
	byID := make(map[string]*Role, len(roles))
	for _, role := range roles {
		byID[role.ID] = role
	}
	optedIn := false
	for _, id := range ev.After {
		if role, ok := byID[id]; ok {
			if _, marker := ParseMarker(role.Name); marker {
				optedIn = true
				break
			}
		}
	}
	if !optedIn {
		return nil
	}
	if !ev.BeforeKnown {
		// no prior state to diff, only live badge xp can be brought up to date
		_, err := r.recompute(ctx, conf, ev.MemberID, nil)
		return err
	}

	added, removed := diffRoles(ev.Before, ev.After)
	var gains []roleGain
	for _, id := range added {
		role, ok := byID[id]
		if !ok {
			continue
		}
		if _, marker := ParseMarker(role.Name); marker {
			continue
		}
		a, assigned := conf.Assignment(id)
		switch {
		case assigned && a.Kind == database.RoleExpKindStreak:
			err := r.store.InsertStreakRoleGain(ctx, &database.StreakRoleGain{
				GuildID:    ev.GuildID,
				MemberID:   ev.MemberID,
				RoleID:     id,
				RoleName:   role.Name,
				ExpAwarded: a.Exp,
			})
			if err != nil {
				return err
			}
			r.streakGains.Inc()
			gains = append(gains, roleGain{role: role, exp: a.Exp, streak: true})
		case assigned && a.Kind == database.RoleExpKindBadge:
			gains = append(gains, roleGain{role: role, exp: a.Exp})
		case !assigned && isBadgeName(role.Name):
			gains = append(gains, roleGain{role: role, exp: r.badgeNameExp})
		}
	}
	badgeLost := false
	for _, id := range removed {
		if a, ok := conf.Assignment(id); ok {
			badgeLost = badgeLost || a.Kind == database.RoleExpKindBadge
			continue
		}
		if role, ok := byID[id]; ok && isBadgeName(role.Name) {
			if _, marker := ParseMarker(role.Name); !marker {
				badgeLost = true
			}
		}
	}
	if len(gains) == 0 && !badgeLost {
		return nil
	}
	// the marker may have been granted by hand, without the opt-in reaction
	if _, err := r.store.InsertMemberLevelIgnore(ctx, ev.GuildID, ev.MemberID); err != nil {
		return err
	}

	change, err := r.recompute(ctx, conf, ev.MemberID, nil)
	if err != nil {
		return err
	}
	for _, g := range gains {
		r.notify(ctx, &Notification{
			Kind:     NotifyRoleExp,
			GuildID:  ev.GuildID,
			MemberID: ev.MemberID,
			RoleName: g.role.Name,
			Streak:   g.streak,
			Exp:      g.exp,
			TotalExp: change.Breakdown.Total(),
			Level:    change.Level,
		})
	}
	if change.LevelChanged() {
		r.notify(ctx, &Notification{
			Kind:          NotifyLevelChanged,
			GuildID:       ev.GuildID,
			MemberID:      ev.MemberID,
			TotalExp:      change.Breakdown.Total(),
			Level:         change.Level,
			PreviousLevel: change.PreviousLevel,
		})
	}
	return nil
}

// recompute compares the stored level with a fresh one and, when they differ, stores
// the new level and queues marker reconciliation behind the running task. Every xp
// change goes through here. A degraded breakdown never moves the stored level.
func (r *Reactor) recompute(ctx context.Context, conf *guildconfig.Config, memberID string, member *Member) (ExpChange, error) {
	ledger, err := r.store.SelectMemberLevel(ctx, conf.GuildID, memberID)
	if err != nil {
		return ExpChange{}, err
	}
	if ledger == nil {
		return ExpChange{PreviousLevel: MinLevel, Level: MinLevel, Breakdown: Breakdown{Level: MinLevel}}, nil
	}
	b, err := r.aggregator.breakdown(ctx, conf, memberID, ledger, member)
	if err != nil {
		return ExpChange{}, err
	}
	change := ExpChange{Breakdown: b, PreviousLevel: ledger.Level, Level: b.Level}
	if b.Degraded {
		change.Level = ledger.Level
		return change, nil
	}
	if !change.LevelChanged() {
		return change, nil
	}
	if err := r.store.UpdateMemberLevel(ctx, conf.GuildID, memberID, b.Level); err != nil {
		return ExpChange{}, err
	}
	r.levelChanges.Inc()
	log.WithFields(log.Fields{"guild": conf.GuildID, "member": memberID}).
		Infof("level %d -> %d at %d xp", ledger.Level, b.Level, b.Total())
	r.scheduleReconcile(conf.GuildID, memberID)
	return change, nil
}

// scheduleReconcile syncs markers to whatever level is stored when the task runs.
func (r *Reactor) scheduleReconcile(guildID, memberID string) {
	r.executor.Submit(memberKey(guildID, memberID), func() error {
		ctx := context.Background()
		ledger, err := r.store.SelectMemberLevel(ctx, guildID, memberID)
		if err != nil || ledger == nil {
			return err
		}
		return r.sync.Reconcile(ctx, guildID, memberID, ledger.Level)
	})
}

// notify never fails the event; the state change it reports is already committed.
func (r *Reactor) notify(ctx context.Context, n *Notification) {
	if r.notifier == nil {
		return
	}
	if _, err := r.notifier.Notify(ctx, n); err != nil {
		log.Warnf("%s notification for %v: %v", n.Kind, n.MemberID, err)
	}
}

// diffRoles returns the role ids only in after and only in before, sorted.
func diffRoles(before, after []string) (added, removed []string) {
	b := set.New(set.NonThreadSafe)
	for _, id := range before {
		b.Add(id)
	}
	a := set.New(set.NonThreadSafe)
	for _, id := range after {
		a.Add(id)
	}
	added = set.StringSlice(set.Difference(a, b))
	removed = set.StringSlice(set.Difference(b, a))
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
