package leveling

import (
	"context"
	"strings"
	"time"

	"questbot.io/questbot/internal/database"
	"questbot.io/questbot/internal/guildconfig"
	"questbot.io/questbot/pkg/errors"
	"questbot.io/questbot/pkg/log"
)

// Admin carries out staff commands. Every xp-moving operation goes through the reactor.
type Admin struct {
	store         Store
	configs       ConfigSource
	platform      Platform
	notifier      *Notifier
	reactor       *Reactor
	sync          *Synchronizer
	confirmations *Confirmations
	archiver      Archiver

	defaultQuestExp int
	maxQuestExp     int
	confirmTimeout  time.Duration
}

// AssignRoleExp makes role worth exp of kind, replacing any previous assignment, and
// queues a recompute of the guild's members.
func (a *Admin) AssignRoleExp(ctx context.Context, guildID string, role *Role, exp int, kind database.RoleExpKind) error {
	if exp <= 0 {
		return ErrInvalidAmount
	}
	if !kind.Valid() {
		return errors.WithMessagef(ErrInvalidRole, "unknown kind %q", kind)
	}
	if _, marker := ParseMarker(role.Name); marker {
		return errors.WithMessage(ErrInvalidRole, "level markers carry no xp")
	}
	err := a.store.UpsertRoleExp(ctx, &database.RoleExpAssignment{
		GuildID:  guildID,
		RoleID:   role.ID,
		RoleName: role.Name,
		Exp:      exp,
		Kind:     kind,
	})
	if err != nil {
		return err
	}
	a.configs.Invalidate(ctx, guildID)
	return a.recomputeGuild(ctx, guildID)
}

// UnassignRoleExp removes the role's assignment. It reports whether one existed.
func (a *Admin) UnassignRoleExp(ctx context.Context, guildID, roleID string) (bool, error) {
	deleted, err := a.store.DeleteRoleExp(ctx, guildID, roleID)
	if err != nil || !deleted {
		return false, err
	}
	a.configs.Invalidate(ctx, guildID)
	return true, a.recomputeGuild(ctx, guildID)
}

func (a *Admin) recomputeGuild(ctx context.Context, guildID string) error {
	n, err := a.reactor.RecomputeGuild(ctx, guildID)
	if err != nil {
		return errors.WithMessage(err, "queue guild recompute")
	}
	log.Debugf("queued recompute of %d members in %v", n, guildID)
	return nil
}

// RoleExps returns the guild's role xp assignments keyed by role id.
func (a *Admin) RoleExps(ctx context.Context, guildID string) (map[string]guildconfig.RoleExp, error) {
	conf, err := a.configs.Load(ctx, guildID)
	if err != nil {
		return nil, err
	}
	return conf.RoleExp, nil
}

type QuestDraft struct {
	GuildID string
	// ChannelID is where the command was issued, used when no quest channel is set.
	ChannelID string
	AuthorID  string
	Title     string
	Body      string
	// Exp is the reward; nil means the default.
	Exp *int
}

// CreateQuest posts the quest, pinging the quest role, and stores it keyed by its message.
func (a *Admin) CreateQuest(ctx context.Context, draft QuestDraft) (*database.Quest, error) {
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return nil, ErrInvalidQuest
	}
	exp := a.defaultQuestExp
	if draft.Exp != nil {
		exp = *draft.Exp
	}
	if exp < 0 || exp > a.maxQuestExp {
		return nil, errors.WithMessagef(ErrInvalidAmount, "quest xp must be within 0..%d", a.maxQuestExp)
	}
	conf, err := a.configs.Load(ctx, draft.GuildID)
	if err != nil {
		return nil, err
	}
	channelID := conf.QuestChannelID
	if channelID == "" {
		channelID = draft.ChannelID
	}
	quest := &database.Quest{
		GuildID:   draft.GuildID,
		ChannelID: channelID,
		AuthorID:  draft.AuthorID,
		Title:     title,
		Body:      strings.TrimSpace(draft.Body),
		ExpReward: exp,
	}
	msgID, err := a.notifier.Notify(ctx, &Notification{
		Kind:       NotifyQuestPosted,
		GuildID:    draft.GuildID,
		ChannelID:  channelID,
		Privileged: true,
		Quest:      quest,
		Exp:        exp,
		PingRoleID: conf.QuestPingRoleID,
	})
	if err != nil {
		return nil, err
	}
	if msgID == "" {
		return nil, errors.New("quest message was not posted")
	}
	quest.MessageID = msgID
	// stored before ✅ goes up, so no completion can reach a message without its quest
	if err := a.store.CreateQuest(ctx, quest); err != nil {
		if derr := a.platform.DeleteMessage(ctx, channelID, msgID); derr != nil && !errors.Is(derr, ErrNotFound) {
			log.Warnf("delete unstored quest message %v: %v", msgID, derr)
		}
		return nil, err
	}
	if err := a.platform.AddReaction(ctx, channelID, msgID, ConfirmEmoji); err != nil {
		log.Warnf("add %s to quest %v: %v", ConfirmEmoji, msgID, err)
	}
	return quest, nil
}

// RemoveQuest deletes the quest and its message. Completions already credited stay.
func (a *Admin) RemoveQuest(ctx context.Context, guildID, messageID string) (*database.Quest, error) {
	quest, err := a.store.SelectQuest(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if quest == nil || quest.GuildID != guildID {
		return nil, ErrQuestNotFound
	}
	if err := a.platform.DeleteMessage(ctx, quest.ChannelID, quest.MessageID); err != nil && !errors.Is(err, ErrNotFound) {
		log.Warnf("delete quest message %v: %v", quest.MessageID, err)
	}
	if _, err := a.store.DeleteQuest(ctx, messageID); err != nil {
		return nil, err
	}
	return quest, nil
}

func (a *Admin) Quests(ctx context.Context, guildID string) ([]*database.Quest, error) {
	return a.store.SelectQuests(ctx, guildID)
}

// BulkDeletion describes a DeleteAllQuests run.
type BulkDeletion struct {
	PromptChannelID string
	PromptMessageID string
	Quests          int
	// MessagesDeleted counts quest messages gone from the platform, including ones already missing.
	MessagesDeleted int
	RowsDeleted     int64
	ArchiveKey      string
}

// DeleteAllQuests asks actorID to confirm, then archives and deletes every quest of the
// guild. Without a ✅ before the timeout, or on ❌, nothing changes and the error is
// ErrConfirmationTimeout or ErrCancelled.
func (a *Admin) DeleteAllQuests(ctx context.Context, guildID, channelID, actorID string) (*BulkDeletion, error) {
	quests, err := a.store.SelectQuests(ctx, guildID)
	if err != nil {
		return nil, err
	}
	res := &BulkDeletion{PromptChannelID: channelID, Quests: len(quests)}
	if len(quests) == 0 {
		return res, nil
	}
	res.PromptMessageID, err = a.notifier.Notify(ctx, &Notification{
		Kind:       NotifyConfirmQuestDeletion,
		GuildID:    guildID,
		ChannelID:  channelID,
		Privileged: true,
		MemberID:   actorID,
		Count:      len(quests),
	})
	if err != nil {
		return nil, err
	}
	if res.PromptMessageID == "" {
		return nil, errors.New("confirmation prompt was not posted")
	}
	pending := a.confirmations.Expect(res.PromptMessageID, actorID)
	for _, emoji := range []string{ConfirmEmoji, CancelEmoji} {
		if err := a.platform.AddReaction(ctx, channelID, res.PromptMessageID, emoji); err != nil {
			log.Warnf("add %s to prompt %v: %v", emoji, res.PromptMessageID, err)
		}
	}
	decision, err := pending.Wait(ctx, a.confirmTimeout)
	if err != nil {
		return res, err
	}
	if decision != Confirmed {
		return res, ErrCancelled
	}

	if a.archiver != nil {
		res.ArchiveKey, err = a.archiver.Archive(ctx, guildID, quests)
		if err != nil {
			return res, errors.WithMessage(err, "archive quests")
		}
	}
	for _, q := range quests {
		err := a.platform.DeleteMessage(ctx, q.ChannelID, q.MessageID)
		if err == nil || errors.Is(err, ErrNotFound) {
			res.MessagesDeleted++
			continue
		}
		log.Warnf("delete quest message %v: %v", q.MessageID, err)
	}
	res.RowsDeleted, err = a.store.DeleteQuests(ctx, guildID)
	if err != nil {
		return res, err
	}
	log.Infof("deleted %d quests of %v", res.RowsDeleted, guildID)
	return res, nil
}

// WhitelistChannel adds a channel to the guild's whitelist. It reports whether it was new.
func (a *Admin) WhitelistChannel(ctx context.Context, guildID, channelID, name string) (bool, error) {
	added, err := a.store.AddWhitelistedChannel(ctx, guildID, channelID, name)
	if err != nil {
		return false, err
	}
	a.configs.Invalidate(ctx, guildID)
	return added, nil
}

func (a *Admin) UnwhitelistChannel(ctx context.Context, guildID, channelID string) (bool, error) {
	removed, err := a.store.RemoveWhitelistedChannel(ctx, guildID, channelID)
	if err != nil {
		return false, err
	}
	a.configs.Invalidate(ctx, guildID)
	return removed, nil
}

// ClearWhitelist lifts every channel restriction of the guild.
func (a *Admin) ClearWhitelist(ctx context.Context, guildID string) (int64, error) {
	n, err := a.store.ClearWhitelistedChannels(ctx, guildID)
	if err != nil {
		return 0, err
	}
	a.configs.Invalidate(ctx, guildID)
	return n, nil
}

func (a *Admin) Whitelist(ctx context.Context, guildID string) (map[string]string, error) {
	conf, err := a.configs.Load(ctx, guildID)
	if err != nil {
		return nil, err
	}
	return conf.Whitelist, nil
}

func (a *Admin) SetQuestPingRole(ctx context.Context, guildID, roleID string) error {
	return a.updateSettings(ctx, guildID, func(s *database.GuildSettings) {
		s.QuestPingRoleID = roleID
	})
}

func (a *Admin) SetQuestChannel(ctx context.Context, guildID, channelID string) error {
	return a.updateSettings(ctx, guildID, func(s *database.GuildSettings) {
		s.QuestChannelID = channelID
	})
}

// updateSettings reads, modifies and saves the stored row so untouched columns survive.
func (a *Admin) updateSettings(ctx context.Context, guildID string, mutate func(*database.GuildSettings)) error {
	settings, err := a.store.SelectGuildSettings(ctx, guildID)
	if err != nil {
		return err
	}
	if settings == nil {
		settings = &database.GuildSettings{GuildID: guildID}
	}
	mutate(settings)
	if err := a.store.SaveGuildSettings(ctx, settings); err != nil {
		return err
	}
	a.configs.Invalidate(ctx, guildID)
	return nil
}

// SetupOptIn makes sure the guild has an opt-in message and the marker ladder. An
// existing opt-in message that still exists is reused.
func (a *Admin) SetupOptIn(ctx context.Context, guildID, channelID string) (messageID string, reused bool, err error) {
	conf, err := a.configs.Load(ctx, guildID)
	if err != nil {
		return "", false, err
	}
	if _, err := a.sync.EnsureLadder(ctx, guildID); err != nil {
		return "", false, errors.WithMessage(err, "provision level markers")
	}
	if conf.OptInMessageID != "" {
		err := a.platform.FetchMessage(ctx, conf.OptInChannelID, conf.OptInMessageID)
		if err == nil {
			return conf.OptInMessageID, true, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", false, err
		}
	}
	messageID, err = a.notifier.Notify(ctx, &Notification{
		Kind:       NotifyOptInPrompt,
		GuildID:    guildID,
		ChannelID:  channelID,
		Privileged: true,
	})
	if err != nil {
		return "", false, err
	}
	if err := a.platform.AddReaction(ctx, channelID, messageID, ConfirmEmoji); err != nil {
		log.Warnf("add %s to opt-in message %v: %v", ConfirmEmoji, messageID, err)
	}
	err = a.updateSettings(ctx, guildID, func(s *database.GuildSettings) {
		s.OptInChannelID = channelID
		s.OptInMessageID = messageID
	})
	if err != nil {
		return "", false, err
	}
	return messageID, false, nil
}

// AddExp credits amount base xp to an opted-in member.
func (a *Admin) AddExp(ctx context.Context, guildID, memberID string, amount int) (ExpChange, error) {
	if amount <= 0 {
		return ExpChange{}, ErrInvalidAmount
	}
	return a.reactor.AdjustBaseExp(ctx, guildID, memberID, amount)
}

// RemoveExp takes up to amount base xp from an opted-in member.
func (a *Admin) RemoveExp(ctx context.Context, guildID, memberID string, amount int) (ExpChange, error) {
	if amount <= 0 {
		return ExpChange{}, ErrInvalidAmount
	}
	return a.reactor.AdjustBaseExp(ctx, guildID, memberID, -amount)
}

func (a *Admin) SetExp(ctx context.Context, guildID, memberID string, amount int) (ExpChange, error) {
	return a.reactor.SetBaseExp(ctx, guildID, memberID, amount)
}
