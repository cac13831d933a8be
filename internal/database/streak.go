package database

import (
	"context"
	"time"

	"questbot.io/questbot/pkg/errors"
)

// StreakRoleGain logs one acquisition of a streak role. Rows are never updated or deleted;
// their sum is the member's streak xp.
type StreakRoleGain struct {
	ID         int64     `gorm:"primaryKey"`
	GuildID    string    `gorm:"type:varchar(100);index:idx_streak_member"`
	MemberID   string    `gorm:"type:varchar(100);index:idx_streak_member"`
	RoleID     string    `gorm:"type:varchar(100)"`
	RoleName   string    `gorm:"type:varchar(200)"`
	ExpAwarded int       `gorm:"type:int;not null"`
	CreatedAt  time.Time `gorm:"type:timestamp"`
}

func (s *Store) InsertStreakRoleGain(ctx context.Context, gain *StreakRoleGain) error {
	if gain.CreatedAt.IsZero() {
		gain.CreatedAt = time.Now()
	}
	err := s.db.WithContext(ctx).Create(gain).Error
	return errors.WrapAndReport(err, "insert streak role gain")
}

// SumStreakExp is the accumulated streak xp of a member.
func (s *Store) SumStreakExp(ctx context.Context, guildID, memberID string) (int, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&StreakRoleGain{}).
		Select("COALESCE(SUM(exp_awarded), 0)").
		Where("guild_id = ? AND member_id = ?", guildID, memberID).
		Scan(&total).Error
	if err != nil {
		return 0, errors.WrapAndReport(err, "sum streak exp")
	}
	return int(total), nil
}

func (s *Store) SelectStreakRoleGains(ctx context.Context, guildID, memberID string) ([]*StreakRoleGain, error) {
	var entities []*StreakRoleGain
	err := s.db.WithContext(ctx).Where("guild_id = ? AND member_id = ?", guildID, memberID).
		Order("id ASC").Find(&entities).Error
	if err != nil {
		return nil, errors.WrapAndReport(err, "query streak role gains")
	}
	return entities, nil
}
