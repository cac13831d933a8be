package leveling

import (
	"context"
	"sort"

	"questbot.io/questbot/internal/database"
	"questbot.io/questbot/internal/guildconfig"
)

// Emojis the engine reacts to.
const (
	ConfirmEmoji = "✅"
	CancelEmoji  = "❌"
)

type Role struct {
	ID       string
	Name     string
	Color    int
	Position int
}

type Member struct {
	ID    string
	Name  string
	Bot   bool
	Roles []*Role
}

func (m *Member) HasRole(roleID string) bool {
	for _, r := range m.Roles {
		if r.ID == roleID {
			return true
		}
	}
	return false
}

// Markers returns the level marker roles the member holds, keyed by level.
func (m *Member) Markers() map[int]*Role {
	markers := make(map[int]*Role)
	for _, r := range m.Roles {
		if level, ok := ParseMarker(r.Name); ok {
			markers[level] = r
		}
	}
	return markers
}

// OptedIn is true while the member holds any level marker.
func (m *Member) OptedIn() bool {
	return len(m.Markers()) > 0
}

type RoleParams struct {
	Name   string
	Color  int
	Reason string
}

// Platform is the chat platform as seen by the engine. Implementations map
// missing permissions onto ErrPermission and vanished objects onto ErrNotFound.
type Platform interface {
	Member(ctx context.Context, guildID, memberID string) (*Member, error)
	Roles(ctx context.Context, guildID string) ([]*Role, error)
	CreateRole(ctx context.Context, guildID string, params RoleParams) (*Role, error)
	GrantRole(ctx context.Context, guildID, memberID, roleID string) error
	RevokeRole(ctx context.Context, guildID, memberID, roleID string) error
	FetchMessage(ctx context.Context, channelID, messageID string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	// DefaultChannel is where notifications go when no channel is known.
	DefaultChannel(ctx context.Context, guildID string) (string, error)
}

// Store is the persistent state of the engine. *database.Store implements it.
type Store interface {
	SelectMemberLevel(ctx context.Context, guildID, memberID string) (*database.MemberLevel, error)
	SelectMemberLevels(ctx context.Context, guildID string) ([]*database.MemberLevel, error)
	InsertMemberLevelIgnore(ctx context.Context, guildID, memberID string) (bool, error)
	AddBaseExp(ctx context.Context, guildID, memberID string, delta int) (*database.MemberLevel, error)
	UpdateMemberLevel(ctx context.Context, guildID, memberID string, level int) error

	InsertStreakRoleGain(ctx context.Context, gain *database.StreakRoleGain) error
	SumStreakExp(ctx context.Context, guildID, memberID string) (int, error)

	CreateQuest(ctx context.Context, quest *database.Quest) error
	SelectQuest(ctx context.Context, messageID string) (*database.Quest, error)
	SelectQuests(ctx context.Context, guildID string) ([]*database.Quest, error)
	DeleteQuest(ctx context.Context, messageID string) (bool, error)
	DeleteQuests(ctx context.Context, guildID string) (int64, error)
	CompleteQuest(ctx context.Context, quest *database.Quest, memberID string) (bool, *database.MemberLevel, error)

	UpsertRoleExp(ctx context.Context, assignment *database.RoleExpAssignment) error
	DeleteRoleExp(ctx context.Context, guildID, roleID string) (bool, error)

	AddWhitelistedChannel(ctx context.Context, guildID, channelID, channelName string) (bool, error)
	RemoveWhitelistedChannel(ctx context.Context, guildID, channelID string) (bool, error)
	ClearWhitelistedChannels(ctx context.Context, guildID string) (int64, error)

	SelectGuildSettings(ctx context.Context, guildID string) (*database.GuildSettings, error)
	SaveGuildSettings(ctx context.Context, settings *database.GuildSettings) error
}

// ConfigSource hands out per-guild configuration. *guildconfig.Loader implements it.
type ConfigSource interface {
	Load(ctx context.Context, guildID string) (*guildconfig.Config, error)
	Invalidate(ctx context.Context, guildID string)
}

type NotificationLimiter interface {
	Allow(ctx context.Context, guildID string) bool
}

// Archiver keeps a copy of quests before a bulk deletion.
type Archiver interface {
	Archive(ctx context.Context, guildID string, quests []*database.Quest) (string, error)
}

func memberKey(guildID, memberID string) string {
	return guildID + ":" + memberID
}

func sortedLevels(markers map[int]*Role) []int {
	levels := make([]int, 0, len(markers))
	for level := range markers {
		levels = append(levels, level)
	}
	sort.Ints(levels)
	return levels
}
