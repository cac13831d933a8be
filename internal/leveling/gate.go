package leveling

import (
	"context"

	"questbot.io/questbot/pkg/log"
)

// ChannelAllowed decides whether the bot may act in channelID. Privileged actors always
// pass, and an empty whitelist lets every channel through.
func ChannelAllowed(whitelist map[string]string, channelID string, privileged bool) bool {
	if privileged || len(whitelist) == 0 {
		return true
	}
	_, ok := whitelist[channelID]
	return ok
}

// Gate applies ChannelAllowed with the guild's current whitelist.
type Gate struct {
	configs ConfigSource
}

func NewGate(configs ConfigSource) *Gate {
	return &Gate{configs: configs}
}

// Allowed fails open when the guild configuration cannot be loaded.
func (g *Gate) Allowed(ctx context.Context, guildID, channelID string, privileged bool) bool {
	if privileged {
		return true
	}
	conf, err := g.configs.Load(ctx, guildID)
	if err != nil {
		log.Warnf("channel gate of %v open, config unavailable: %v", guildID, err)
		return true
	}
	return ChannelAllowed(conf.Whitelist, channelID, false)
}
