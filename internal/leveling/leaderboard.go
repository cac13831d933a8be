package leveling

import (
	"context"
	"sort"

	"questbot.io/questbot/internal/database"
	"questbot.io/questbot/pkg/log"
)

// Standing is a member's xp and level progress.
type Standing struct {
	MemberID   string
	MemberName string
	Breakdown  Breakdown
	// NextThreshold is the xp of the next level; zero at the top level.
	NextThreshold int
	Progress      int
}

func (s *Standing) Total() int {
	return s.Breakdown.Total()
}

func (s *Standing) Level() int {
	return s.Breakdown.Level
}

// Leaderboard reads standings without going through the member queues, so results
// may lag events still being applied.
type Leaderboard struct {
	store      Store
	configs    ConfigSource
	platform   Platform
	aggregator *Aggregator
	levels     *LevelTable
}

// Top returns the n opted-in members with the most xp, ties broken by member id.
func (l *Leaderboard) Top(ctx context.Context, guildID string, n int) ([]*Standing, error) {
	conf, err := l.configs.Load(ctx, guildID)
	if err != nil {
		return nil, err
	}
	ledgers, err := l.store.SelectMemberLevels(ctx, guildID)
	if err != nil {
		return nil, err
	}
	standings := make([]*Standing, 0, len(ledgers))
	for _, ledger := range ledgers {
		member, err := l.platform.Member(ctx, guildID, ledger.MemberID)
		if err != nil {
			log.Debugf("leaderboard skips %v: %v", ledger.MemberID, err)
			continue
		}
		if !member.OptedIn() {
			continue
		}
		b, err := l.aggregator.breakdown(ctx, conf, member.ID, ledger, member)
		if err != nil {
			log.Warnf("leaderboard counts base xp only for %v: %v", member.ID, err)
			b.Degraded = true
		}
		standings = append(standings, l.standing(member, b))
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].Total() != standings[j].Total() {
			return standings[i].Total() > standings[j].Total()
		}
		return standings[i].MemberID < standings[j].MemberID
	})
	if n > 0 && len(standings) > n {
		standings = standings[:n]
	}
	return standings, nil
}

// Standing returns one opted-in member's standing.
func (l *Leaderboard) Standing(ctx context.Context, guildID, memberID string) (*Standing, error) {
	conf, err := l.configs.Load(ctx, guildID)
	if err != nil {
		return nil, err
	}
	member, err := l.platform.Member(ctx, guildID, memberID)
	if err != nil {
		return nil, err
	}
	if !member.OptedIn() {
		return nil, ErrNotOptedIn
	}
	var ledger *database.MemberLevel
	ledger, err = l.store.SelectMemberLevel(ctx, guildID, memberID)
	if err != nil {
		return nil, err
	}
	b, err := l.aggregator.breakdown(ctx, conf, memberID, ledger, member)
	if err != nil {
		return nil, err
	}
	return l.standing(member, b), nil
}

func (l *Leaderboard) standing(member *Member, b Breakdown) *Standing {
	s := &Standing{
		MemberID:   member.ID,
		MemberName: member.Name,
		Breakdown:  b,
		Progress:   l.levels.Progress(b.Total()),
	}
	if next, ok := l.levels.Next(b.Level); ok {
		s.NextThreshold = next
	}
	return s
}

// Levels exposes the threshold table for rendering.
func (l *Leaderboard) Levels() *LevelTable {
	return l.levels
}
