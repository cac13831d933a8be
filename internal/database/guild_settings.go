package database

import (
	"context"
	"time"

	"github.com/tidwall/gjson"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"questbot.io/questbot/pkg/errors"
	"questbot.io/questbot/pkg/log"
)

// GuildSettings holds the per-guild references set by admins.
//
// LegacyRoleExp carries role xp data imported from older deployments, a json object keyed by
// role id whose values are either a plain integer or {"xp": n, "type": "badge"|"streak"}.
// It is converted into RoleExpAssignment rows once, by UpgradeLegacyRoleExp.
type GuildSettings struct {
	GuildID          string     `gorm:"type:varchar(100);primaryKey"`
	QuestPingRoleID  string     `gorm:"type:varchar(100)"`
	QuestChannelID   string     `gorm:"type:varchar(100)"`
	OptInMessageID   string     `gorm:"type:varchar(100)"`
	OptInChannelID   string     `gorm:"type:varchar(100)"`
	LegacyRoleExp    RawJSON    `gorm:"type:jsonb"`
	LegacyUpgradedAt *time.Time `gorm:"type:timestamp"`
	UpdatedAt        time.Time  `gorm:"type:timestamp"`
}

func (s *Store) SelectGuildSettings(ctx context.Context, guildID string) (*GuildSettings, error) {
	return selectGuildSettings(s.db.WithContext(ctx), guildID)
}

func selectGuildSettings(db *gorm.DB, guildID string) (*GuildSettings, error) {
	var entity GuildSettings
	err := db.Where("guild_id = ?", guildID).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapAndReport(err, "query guild settings")
	}
	return &entity, nil
}

// SaveGuildSettings writes every column of settings, creating the row if needed.
func (s *Store) SaveGuildSettings(ctx context.Context, settings *GuildSettings) error {
	settings.UpdatedAt = time.Now()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}},
		UpdateAll: true,
	}).Create(settings).Error
	return errors.WrapAndReport(err, "save guild settings")
}

// UpgradeLegacyRoleExp converts the imported role xp blob of a guild into RoleExpAssignment
// rows, keeping assignments that already exist, then clears the blob. It is a no-op for
// guilds without a blob. Returns the number of entries converted.
func (s *Store) UpgradeLegacyRoleExp(ctx context.Context, guildID string) (int, error) {
	var converted int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		settings, err := selectGuildSettings(tx, guildID)
		if err != nil || settings == nil || settings.LegacyRoleExp == "" {
			return err
		}
		assignments := ParseLegacyRoleExp(guildID, string(settings.LegacyRoleExp))
		if err := insertRoleExpsIgnore(tx, assignments); err != nil {
			return err
		}
		now := time.Now()
		err = tx.Model(&GuildSettings{}).Where("guild_id = ?", guildID).Updates(map[string]interface{}{
			"legacy_role_exp":    nil,
			"legacy_upgraded_at": now,
			"updated_at":         now,
		}).Error
		if err != nil {
			return errors.WrapAndReport(err, "clear legacy role exp")
		}
		converted = len(assignments)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if converted > 0 {
		log.Infof("Upgraded %v legacy role exp assignments of guild %v", converted, guildID)
	}
	return converted, nil
}

// ParseLegacyRoleExp reads a legacy role xp document. Plain integers are badge roles;
// entries that are neither a number nor an object with a positive xp are skipped.
func ParseLegacyRoleExp(guildID, raw string) []*RoleExpAssignment {
	if !gjson.Valid(raw) {
		log.Warnf("Skipping malformed legacy role exp of guild %v", guildID)
		return nil
	}
	var assignments []*RoleExpAssignment
	now := time.Now()
	gjson.Parse(raw).ForEach(func(roleID, value gjson.Result) bool {
		assignment := &RoleExpAssignment{
			GuildID:   guildID,
			RoleID:    roleID.String(),
			Kind:      RoleExpKindBadge,
			UpdatedAt: now,
		}
		switch {
		case value.Type == gjson.Number:
			assignment.Exp = int(value.Int())
		case value.IsObject():
			assignment.Exp = int(value.Get("xp").Int())
			if kind := RoleExpKind(value.Get("type").String()); kind.Valid() {
				assignment.Kind = kind
			}
			assignment.RoleName = value.Get("name").String()
		default:
			return true
		}
		if assignment.Exp > 0 && assignment.RoleID != "" {
			assignments = append(assignments, assignment)
		}
		return true
	})
	return assignments
}
