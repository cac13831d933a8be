package database

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"questbot.io/questbot/pkg/errors"
)

// RoleExpKind tells how a role's xp is counted.
type RoleExpKind string

const (
	// RoleExpKindBadge counts while the role is held.
	RoleExpKindBadge = RoleExpKind("badge")
	// RoleExpKindStreak is awarded once per acquisition and kept after the role is lost.
	RoleExpKindStreak = RoleExpKind("streak")
)

func (k RoleExpKind) Valid() bool {
	return k == RoleExpKindBadge || k == RoleExpKindStreak
}

// RoleExpAssignment maps a guild role to the xp it is worth. One row per role; reassigning overwrites.
type RoleExpAssignment struct {
	ID        int64       `gorm:"primaryKey"`
	GuildID   string      `gorm:"type:varchar(100);uniqueIndex:uni_role_exp"`
	RoleID    string      `gorm:"type:varchar(100);uniqueIndex:uni_role_exp"`
	RoleName  string      `gorm:"type:varchar(200)"`
	Exp       int         `gorm:"type:int;not null"`
	Kind      RoleExpKind `gorm:"type:varchar(20);not null"`
	UpdatedAt time.Time   `gorm:"type:timestamp"`
}

func (s *Store) UpsertRoleExp(ctx context.Context, assignment *RoleExpAssignment) error {
	assignment.UpdatedAt = time.Now()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}, {Name: "role_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role_name", "exp", "kind", "updated_at"}),
	}).Create(assignment).Error
	return errors.WrapAndReport(err, "upsert role exp assignment")
}

// DeleteRoleExp removes a role's assignment. Reports whether one existed.
func (s *Store) DeleteRoleExp(ctx context.Context, guildID, roleID string) (bool, error) {
	res := s.db.WithContext(ctx).Where("guild_id = ? AND role_id = ?", guildID, roleID).Delete(&RoleExpAssignment{})
	if res.Error != nil {
		return false, errors.WrapAndReport(res.Error, "delete role exp assignment")
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) SelectRoleExps(ctx context.Context, guildID string) ([]*RoleExpAssignment, error) {
	var entities []*RoleExpAssignment
	err := s.db.WithContext(ctx).Where("guild_id = ?", guildID).Order("kind ASC, exp DESC").Find(&entities).Error
	if err != nil {
		return nil, errors.WrapAndReport(err, "query role exp assignments")
	}
	return entities, nil
}

func insertRoleExpsIgnore(tx *gorm.DB, assignments []*RoleExpAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&assignments).Error
	return errors.WrapAndReport(err, "insert role exp assignments")
}
