package leveling

import (
	"context"
	"strings"

	"questbot.io/questbot/internal/database"
	"questbot.io/questbot/internal/guildconfig"
	"questbot.io/questbot/pkg/errors"
	"questbot.io/questbot/pkg/log"
)

// Breakdown is a member's total xp split by source.
type Breakdown struct {
	Base int
	// Badge is xp of held roles with an explicit badge assignment.
	Badge int
	// BadgeName is xp of held, unassigned roles whose name mentions "badge".
	BadgeName int
	Streak    int
	Level     int
	// Degraded is set when live roles could not be read and only base xp counted.
	Degraded bool
}

func (b Breakdown) Total() int {
	return b.Base + b.Badge + b.BadgeName + b.Streak
}

func isBadgeName(name string) bool {
	return strings.Contains(strings.ToLower(name), "badge")
}

// RoleExp sums the xp contributed by currently held roles. Level markers and
// streak roles contribute nothing here; streak xp comes from the gain log.
func RoleExp(roles []*Role, conf *guildconfig.Config, badgeNameExp int) (badge, badgeName int) {
	seen := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		if _, marker := ParseMarker(r.Name); marker {
			continue
		}
		if a, ok := conf.Assignment(r.ID); ok {
			if a.Kind == database.RoleExpKindBadge {
				badge += a.Exp
			}
			continue
		}
		if isBadgeName(r.Name) {
			badgeName += badgeNameExp
		}
	}
	return badge, badgeName
}

// Aggregator computes total xp from the ledger, live roles and the streak log. It never mutates.
type Aggregator struct {
	store        Store
	platform     Platform
	levels       *LevelTable
	badgeNameExp int
}

func NewAggregator(store Store, platform Platform, levels *LevelTable, badgeNameExp int) *Aggregator {
	return &Aggregator{store: store, platform: platform, levels: levels, badgeNameExp: badgeNameExp}
}

// Breakdown reads the member's ledger and live roles. Store failures are returned;
// a platform failure only degrades the result.
func (a *Aggregator) Breakdown(ctx context.Context, conf *guildconfig.Config, memberID string) (Breakdown, error) {
	ledger, err := a.store.SelectMemberLevel(ctx, conf.GuildID, memberID)
	if err != nil {
		return Breakdown{Level: MinLevel}, err
	}
	return a.breakdown(ctx, conf, memberID, ledger, nil)
}

// breakdown uses member when given instead of fetching it again. When live roles
// cannot be read the total falls back to base xp alone.
func (a *Aggregator) breakdown(ctx context.Context, conf *guildconfig.Config, memberID string, ledger *database.MemberLevel, member *Member) (Breakdown, error) {
	var b Breakdown
	if ledger != nil {
		b.Base = ledger.BaseExp
	}
	if member == nil {
		var err error
		member, err = a.platform.Member(ctx, conf.GuildID, memberID)
		if err != nil {
			log.Warnf("roles of %v in %v unavailable, counting base xp only: %v", memberID, conf.GuildID, err)
			b.Degraded = true
			b.Level = a.levels.LevelFor(b.Total())
			return b, nil
		}
	}
	streak, err := a.store.SumStreakExp(ctx, conf.GuildID, memberID)
	if err != nil {
		return Breakdown{Base: b.Base, Level: a.levels.LevelFor(b.Base)}, err
	}
	b.Streak = streak
	b.Badge, b.BadgeName = RoleExp(member.Roles, conf, a.badgeNameExp)
	b.Level = a.levels.LevelFor(b.Total())
	return b, nil
}

// TotalExp never fails: an unreadable store counts as zero xp.
func (a *Aggregator) TotalExp(ctx context.Context, conf *guildconfig.Config, memberID string) int {
	b, err := a.Breakdown(ctx, conf, memberID)
	if err != nil {
		log.Error(errors.WithMessagef(err, "total xp of %v in %v", memberID, conf.GuildID))
	}
	return b.Total()
}
