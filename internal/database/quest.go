package database

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"questbot.io/questbot/pkg/errors"
)

// ErrQuestExists is returned when a quest is created twice for the same message.
var ErrQuestExists = errors.New("quest already exists")

// Quest is a posted quest message. ExpReward never changes after creation.
type Quest struct {
	MessageID string    `gorm:"type:varchar(100);primaryKey"`
	GuildID   string    `gorm:"type:varchar(100);index:idx_quest_guild"`
	ChannelID string    `gorm:"type:varchar(100)"`
	AuthorID  string    `gorm:"type:varchar(100)"`
	Title     string    `gorm:"type:varchar(256)"`
	Body      string    `gorm:"type:text"`
	ExpReward int       `gorm:"type:int;not null"`
	CreatedAt time.Time `gorm:"type:timestamp"`
}

// QuestCompletion records that a member completed a quest. Rows are only ever inserted;
// the unique index makes a second completion by the same member a no-op.
type QuestCompletion struct {
	ID         int64     `gorm:"primaryKey"`
	MessageID  string    `gorm:"type:varchar(100);uniqueIndex:uni_quest_completion"`
	MemberID   string    `gorm:"type:varchar(100);uniqueIndex:uni_quest_completion"`
	GuildID    string    `gorm:"type:varchar(100);index:idx_completion_guild"`
	ExpAwarded int       `gorm:"type:int"`
	CreatedAt  time.Time `gorm:"type:timestamp"`
}

func (s *Store) CreateQuest(ctx context.Context, quest *Quest) error {
	if quest.CreatedAt.IsZero() {
		quest.CreatedAt = time.Now()
	}
	err := s.db.WithContext(ctx).Create(quest).Error
	if IsDuplicateKeyErr(err) {
		return ErrQuestExists
	}
	return errors.WrapAndReport(err, "create quest")
}

func (s *Store) SelectQuest(ctx context.Context, messageID string) (*Quest, error) {
	var entity Quest
	err := s.db.WithContext(ctx).Where("message_id = ?", messageID).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapAndReport(err, "query quest")
	}
	return &entity, nil
}

// SelectQuests returns the quests of a guild, oldest first.
func (s *Store) SelectQuests(ctx context.Context, guildID string) ([]*Quest, error) {
	var entities []*Quest
	err := s.db.WithContext(ctx).Where("guild_id = ?", guildID).Order("created_at ASC").Find(&entities).Error
	if err != nil {
		return nil, errors.WrapAndReport(err, "query guild quests")
	}
	return entities, nil
}

// DeleteQuest withdraws a quest and its completion records. Reports whether it existed.
func (s *Store) DeleteQuest(ctx context.Context, messageID string) (bool, error) {
	var deleted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", messageID).Delete(&QuestCompletion{}).Error; err != nil {
			return errors.WrapAndReport(err, "delete quest completions")
		}
		res := tx.Where("message_id = ?", messageID).Delete(&Quest{})
		if res.Error != nil {
			return errors.WrapAndReport(res.Error, "delete quest")
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	return deleted, err
}

// DeleteQuests withdraws every quest of a guild. Returns how many quests were removed.
func (s *Store) DeleteQuests(ctx context.Context, guildID string) (int64, error) {
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("guild_id = ?", guildID).Delete(&QuestCompletion{}).Error; err != nil {
			return errors.WrapAndReport(err, "delete guild quest completions")
		}
		res := tx.Where("guild_id = ?", guildID).Delete(&Quest{})
		if res.Error != nil {
			return errors.WrapAndReport(res.Error, "delete guild quests")
		}
		deleted = res.RowsAffected
		return nil
	})
	return deleted, err
}

// CompleteQuest records memberID as a completer of quest and credits its reward in the
// same transaction. A repeated completion changes nothing and returns completed=false.
func (s *Store) CompleteQuest(ctx context.Context, quest *Quest, memberID string) (completed bool, ledger *MemberLevel, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&QuestCompletion{
			MessageID:  quest.MessageID,
			MemberID:   memberID,
			GuildID:    quest.GuildID,
			ExpAwarded: quest.ExpReward,
			CreatedAt:  time.Now(),
		})
		if res.Error != nil {
			return errors.WrapAndReport(res.Error, "insert quest completion")
		}
		if res.RowsAffected == 0 {
			return nil
		}
		completed = true
		ledger, err = addBaseExp(tx, quest.GuildID, memberID, quest.ExpReward)
		return err
	})
	if err != nil {
		return false, nil, err
	}
	return completed, ledger, nil
}

// QuestCompletedBy lists the members who completed a quest, in completion order.
func (s *Store) QuestCompletedBy(ctx context.Context, messageID string) ([]string, error) {
	var members []string
	err := s.db.WithContext(ctx).Model(&QuestCompletion{}).
		Where("message_id = ?", messageID).
		Order("id ASC").
		Pluck("member_id", &members).Error
	if err != nil {
		return nil, errors.WrapAndReport(err, "query quest completions")
	}
	return members, nil
}
