package database

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"questbot.io/questbot/pkg/errors"
)

// MemberLevel is the xp ledger row of one member in one guild.
// BaseExp only moves through quest completion and manual adjustment; Level is
// the cached projection of the member's total xp.
type MemberLevel struct {
	ID        int64     `gorm:"primaryKey"`
	GuildID   string    `gorm:"type:varchar(100);uniqueIndex:uni_member_level"`
	MemberID  string    `gorm:"type:varchar(100);uniqueIndex:uni_member_level"`
	BaseExp   int       `gorm:"type:int;not null;default:0"`
	Level     int       `gorm:"type:int;not null;default:1"`
	CreatedAt time.Time `gorm:"type:timestamp"`
	UpdatedAt time.Time `gorm:"type:timestamp"`
}

func (s *Store) SelectMemberLevel(ctx context.Context, guildID, memberID string) (*MemberLevel, error) {
	return selectMemberLevel(s.db.WithContext(ctx), guildID, memberID)
}

func selectMemberLevel(db *gorm.DB, guildID, memberID string) (*MemberLevel, error) {
	var entity MemberLevel
	err := db.Where("guild_id = ? AND member_id = ?", guildID, memberID).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapAndReport(err, "query member level")
	}
	return &entity, nil
}

// SelectMemberLevels returns every ledger row of a guild.
func (s *Store) SelectMemberLevels(ctx context.Context, guildID string) ([]*MemberLevel, error) {
	var entities []*MemberLevel
	err := s.db.WithContext(ctx).Where("guild_id = ?", guildID).Order("base_exp DESC").Find(&entities).Error
	if err != nil {
		return nil, errors.WrapAndReport(err, "query guild member levels")
	}
	return entities, nil
}

// InsertMemberLevelIgnore creates a zero xp, level 1 row unless one exists. Reports whether it created.
func (s *Store) InsertMemberLevelIgnore(ctx context.Context, guildID, memberID string) (bool, error) {
	return insertMemberLevelIgnore(s.db.WithContext(ctx), guildID, memberID)
}

func insertMemberLevelIgnore(db *gorm.DB, guildID, memberID string) (bool, error) {
	now := time.Now()
	row := MemberLevel{
		GuildID:   guildID,
		MemberID:  memberID,
		Level:     1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, errors.WrapAndReport(res.Error, "insert member level")
	}
	return res.RowsAffected == 1, nil
}

// AddBaseExp adds delta to the member's base xp, creating the row if needed.
// Base xp never drops below zero.
func (s *Store) AddBaseExp(ctx context.Context, guildID, memberID string, delta int) (*MemberLevel, error) {
	var entity *MemberLevel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entity, err = addBaseExp(tx, guildID, memberID, delta)
		return err
	})
	return entity, err
}

func addBaseExp(tx *gorm.DB, guildID, memberID string, delta int) (*MemberLevel, error) {
	if _, err := insertMemberLevelIgnore(tx, guildID, memberID); err != nil {
		return nil, err
	}
	err := tx.Model(&MemberLevel{}).
		Where("guild_id = ? AND member_id = ?", guildID, memberID).
		Updates(map[string]interface{}{
			"base_exp":   gorm.Expr("CASE WHEN base_exp + ? < 0 THEN 0 ELSE base_exp + ? END", delta, delta),
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return nil, errors.WrapAndReport(err, "update member base exp")
	}
	entity, err := selectMemberLevel(tx, guildID, memberID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, errors.NewWithReport("member level vanished after update")
	}
	return entity, nil
}

func (s *Store) UpdateMemberLevel(ctx context.Context, guildID, memberID string, level int) error {
	err := s.db.WithContext(ctx).Model(&MemberLevel{}).
		Where("guild_id = ? AND member_id = ?", guildID, memberID).
		Updates(map[string]interface{}{
			"level":      level,
			"updated_at": time.Now(),
		}).Error
	return errors.WrapAndReport(err, "update member level")
}
