package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
	"questbot.io/questbot/internal/config"
	"questbot.io/questbot/pkg/errors"
	"questbot.io/questbot/pkg/log"
)

const keyPrefix = "questbot:"

// Connect opens a redis client and pings it.
func Connect(ctx context.Context, cred *config.DBCredential) (*redis.Client, error) {
	db, _ := strconv.ParseInt(cred.Database, 10, 64)
	cli := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%v:%v", cred.Address, cred.Port),
		Password: cred.Password,
		DB:       int(db),
	})
	if _, err := cli.Ping(ctx).Result(); err != nil {
		_ = cli.Close()
		return nil, errors.WrapAndReport(err, "ping to redis")
	}
	log.Info("Connected to redis...")
	return cli, nil
}

// DeleteFromPrefix removes every key under prefix, scanning in batches.
func DeleteFromPrefix(ctx context.Context, rdb redis.Cmdable, prefix string) error {
	var (
		cursor uint64
		match        = fmt.Sprintf("%v*", prefix)
		count  int64 = 200
	)
	log.Debugf("deleting cache pattern %v", match)
	for {
		keys, c, err := rdb.Scan(ctx, cursor, match, count).Result()
		if err != nil {
			return errors.WrapAndReport(err, "scan caches")
		}
		cursor = c
		if len(keys) > 0 {
			if err := rdb.Del(ctx, keys...).Err(); err != nil {
				return errors.WrapAndReport(err, "delete caches")
			}
		}
		if c == 0 {
			return nil
		}
	}
}
