package database

import (
	"context"
	"time"

	"gorm.io/gorm/clause"
	"questbot.io/questbot/pkg/errors"
)

// WhitelistedChannel restricts where the bot talks in a guild. A guild without rows is unrestricted.
type WhitelistedChannel struct {
	ID          int64     `gorm:"primaryKey"`
	GuildID     string    `gorm:"type:varchar(100);uniqueIndex:uni_whitelist"`
	ChannelID   string    `gorm:"type:varchar(100);uniqueIndex:uni_whitelist"`
	ChannelName string    `gorm:"type:varchar(200)"`
	CreatedAt   time.Time `gorm:"type:timestamp"`
}

// AddWhitelistedChannel reports false when the channel was already whitelisted.
func (s *Store) AddWhitelistedChannel(ctx context.Context, guildID, channelID, channelName string) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&WhitelistedChannel{
		GuildID:     guildID,
		ChannelID:   channelID,
		ChannelName: channelName,
		CreatedAt:   time.Now(),
	})
	if res.Error != nil {
		return false, errors.WrapAndReport(res.Error, "write channel to whitelist")
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) RemoveWhitelistedChannel(ctx context.Context, guildID, channelID string) (bool, error) {
	res := s.db.WithContext(ctx).Where("guild_id = ? AND channel_id = ?", guildID, channelID).Delete(&WhitelistedChannel{})
	if res.Error != nil {
		return false, errors.WrapAndReport(res.Error, "remove channel from whitelist")
	}
	return res.RowsAffected > 0, nil
}

// ClearWhitelistedChannels returns how many channels were removed.
func (s *Store) ClearWhitelistedChannels(ctx context.Context, guildID string) (int64, error) {
	res := s.db.WithContext(ctx).Where("guild_id = ?", guildID).Delete(&WhitelistedChannel{})
	if res.Error != nil {
		return 0, errors.WrapAndReport(res.Error, "clear channel whitelist")
	}
	return res.RowsAffected, nil
}

func (s *Store) SelectWhitelistedChannels(ctx context.Context, guildID string) ([]*WhitelistedChannel, error) {
	var entities []*WhitelistedChannel
	err := s.db.WithContext(ctx).Where("guild_id = ?", guildID).Order("id ASC").Find(&entities).Error
	if err != nil {
		return nil, errors.WrapAndReport(err, "query channel whitelist")
	}
	return entities, nil
}
