package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"questbot.io/questbot/pkg/errors"
)

// GuildConfigPrefix namespaces cached guild configurations.
const GuildConfigPrefix = keyPrefix + "guild_config:"

// GuildConfigCache keeps json snapshots of per-guild configuration.
type GuildConfigCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewGuildConfigCache(rdb redis.Cmdable, ttl time.Duration) *GuildConfigCache {
	return &GuildConfigCache{rdb: rdb, ttl: ttl}
}

// Get decodes the cached configuration of guildID into out. Reports false on a miss.
func (c *GuildConfigCache) Get(ctx context.Context, guildID string, out interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, GuildConfigPrefix+guildID).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "get cached guild config")
	}
	if err := json.Unmarshal(data, out); err != nil {
		// a snapshot from an older layout is just a miss
		_ = c.rdb.Del(ctx, GuildConfigPrefix+guildID).Err()
		return false, nil
	}
	return true, nil
}

func (c *GuildConfigCache) Set(ctx context.Context, guildID string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "encode guild config")
	}
	return errors.Wrap(c.rdb.Set(ctx, GuildConfigPrefix+guildID, data, c.ttl).Err(), "cache guild config")
}

func (c *GuildConfigCache) Invalidate(ctx context.Context, guildID string) error {
	return errors.Wrap(c.rdb.Del(ctx, GuildConfigPrefix+guildID).Err(), "invalidate guild config")
}

// Purge drops every cached guild configuration.
func (c *GuildConfigCache) Purge(ctx context.Context) error {
	return DeleteFromPrefix(ctx, c.rdb, GuildConfigPrefix)
}
