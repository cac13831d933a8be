package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"questbot.io/questbot/pkg/errors"
)

const roleSnapshotPrefix = keyPrefix + "member_roles:"

// RoleSnapshots remembers the last role set seen for a member, the baseline for
// computing which roles a member update added when the gateway did not send one.
type RoleSnapshots struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRoleSnapshots(rdb redis.Cmdable, ttl time.Duration) *RoleSnapshots {
	return &RoleSnapshots{rdb: rdb, ttl: ttl}
}

func roleSnapshotKey(guildID, memberID string) string {
	return roleSnapshotPrefix + guildID + ":" + memberID
}

// Load returns the remembered roles. Reports false when nothing is remembered.
func (r *RoleSnapshots) Load(ctx context.Context, guildID, memberID string) ([]string, bool, error) {
	data, err := r.rdb.Get(ctx, roleSnapshotKey(guildID, memberID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "load role snapshot")
	}
	var roles []string
	if err := json.Unmarshal(data, &roles); err != nil {
		return nil, false, nil
	}
	return roles, true, nil
}

// Swap stores roles as the new snapshot and returns the previous one.
func (r *RoleSnapshots) Swap(ctx context.Context, guildID, memberID string, roles []string) ([]string, bool, error) {
	if roles == nil {
		roles = []string{}
	}
	data, err := json.Marshal(roles)
	if err != nil {
		return nil, false, errors.Wrap(err, "encode role snapshot")
	}
	key := roleSnapshotKey(guildID, memberID)
	var getSet *redis.StringCmd
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		getSet = pipe.GetSet(ctx, key, data)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, errors.Wrap(err, "swap role snapshot")
	}
	prev, err := getSet.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "read previous role snapshot")
	}
	var previous []string
	if err := json.Unmarshal(prev, &previous); err != nil {
		return nil, false, nil
	}
	return previous, true, nil
}

// Seed stores the role sets of many members of a guild at once, replacing whatever
// was remembered for them. Used when the gateway sends a member list.
func (r *RoleSnapshots) Seed(ctx context.Context, guildID string, roles map[string][]string) error {
	if len(roles) == 0 {
		return nil
	}
	_, err := r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for memberID, ids := range roles {
			if ids == nil {
				ids = []string{}
			}
			data, err := json.Marshal(ids)
			if err != nil {
				return errors.Wrap(err, "encode role snapshot")
			}
			pipe.Set(ctx, roleSnapshotKey(guildID, memberID), data, r.ttl)
		}
		return nil
	})
	return errors.Wrap(err, "seed role snapshots")
}
