// Package guildconfig assembles the per-guild configuration used by the leveling engine:
// settings, role xp assignments and the channel whitelist. It is loaded on demand for a
// single guild and dropped from the cache whenever an admin changes it.
package guildconfig

import (
	"context"

	"questbot.io/questbot/internal/database"
	"questbot.io/questbot/pkg/errors"
	"questbot.io/questbot/pkg/log"
)

// RoleExp is the xp a role is worth and how it is counted.
type RoleExp struct {
	Exp      int                  `json:"exp"`
	Kind     database.RoleExpKind `json:"kind"`
	RoleName string               `json:"role_name,omitempty"`
}

// Config is an immutable snapshot of one guild's configuration.
type Config struct {
	GuildID         string             `json:"guild_id"`
	QuestPingRoleID string             `json:"quest_ping_role_id,omitempty"`
	QuestChannelID  string             `json:"quest_channel_id,omitempty"`
	OptInMessageID  string             `json:"optin_message_id,omitempty"`
	OptInChannelID  string             `json:"optin_channel_id,omitempty"`
	RoleExp         map[string]RoleExp `json:"role_exp,omitempty"`
	// Whitelist maps channel id to channel name. Empty means every channel is allowed.
	Whitelist map[string]string `json:"whitelist,omitempty"`
}

// Assignment returns the xp assignment of roleID, if any.
func (c *Config) Assignment(roleID string) (RoleExp, bool) {
	a, ok := c.RoleExp[roleID]
	return a, ok
}

// IsOptInMessage reports whether messageID is the guild's opt-in message.
func (c *Config) IsOptInMessage(messageID string) bool {
	return c.OptInMessageID != "" && c.OptInMessageID == messageID
}

type Store interface {
	SelectGuildSettings(ctx context.Context, guildID string) (*database.GuildSettings, error)
	SelectRoleExps(ctx context.Context, guildID string) ([]*database.RoleExpAssignment, error)
	SelectWhitelistedChannels(ctx context.Context, guildID string) ([]*database.WhitelistedChannel, error)
	UpgradeLegacyRoleExp(ctx context.Context, guildID string) (int, error)
}

type Cache interface {
	Get(ctx context.Context, guildID string, out interface{}) (bool, error)
	Set(ctx context.Context, guildID string, value interface{}) error
	Invalidate(ctx context.Context, guildID string) error
}

// Loader reads guild configurations through an optional cache.
type Loader struct {
	store Store
	cache Cache
}

// NewLoader creates a loader. cache may be nil.
func NewLoader(store Store, cache Cache) *Loader {
	return &Loader{store: store, cache: cache}
}

// Load returns the configuration of guildID. Cache failures fall through to the store.
func (l *Loader) Load(ctx context.Context, guildID string) (*Config, error) {
	if l.cache != nil {
		var cached Config
		hit, err := l.cache.Get(ctx, guildID, &cached)
		if err != nil {
			log.Warnf("guild config cache unavailable for %v: %v", guildID, err)
		}
		if hit {
			return &cached, nil
		}
	}
	conf, err := l.loadFromStore(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if l.cache != nil {
		if err := l.cache.Set(ctx, guildID, conf); err != nil {
			log.Warnf("cache guild config %v: %v", guildID, err)
		}
	}
	return conf, nil
}

func (l *Loader) loadFromStore(ctx context.Context, guildID string) (*Config, error) {
	if _, err := l.store.UpgradeLegacyRoleExp(ctx, guildID); err != nil {
		return nil, errors.WithMessage(err, "upgrade legacy role exp")
	}
	conf := &Config{
		GuildID:   guildID,
		RoleExp:   map[string]RoleExp{},
		Whitelist: map[string]string{},
	}
	settings, err := l.store.SelectGuildSettings(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if settings != nil {
		conf.QuestPingRoleID = settings.QuestPingRoleID
		conf.QuestChannelID = settings.QuestChannelID
		conf.OptInMessageID = settings.OptInMessageID
		conf.OptInChannelID = settings.OptInChannelID
	}
	assignments, err := l.store.SelectRoleExps(ctx, guildID)
	if err != nil {
		return nil, err
	}
	for _, a := range assignments {
		conf.RoleExp[a.RoleID] = RoleExp{Exp: a.Exp, Kind: a.Kind, RoleName: a.RoleName}
	}
	channels, err := l.store.SelectWhitelistedChannels(ctx, guildID)
	if err != nil {
		return nil, err
	}
	for _, c := range channels {
		conf.Whitelist[c.ChannelID] = c.ChannelName
	}
	return conf, nil
}

// Invalidate drops the cached configuration of guildID so the next Load sees admin changes.
func (l *Loader) Invalidate(ctx context.Context, guildID string) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Invalidate(ctx, guildID); err != nil {
		log.Error(errors.WrapAndReport(err, "invalidate guild config"))
	}
}
