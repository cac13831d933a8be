package cache

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"questbot.io/questbot/pkg/log"
)

const notificationLimitPrefix = keyPrefix + "notify:"

// NotificationLimiter caps how many bot notifications a guild receives per minute.
type NotificationLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

func NewNotificationLimiter(rdb *redis.Client, perMinute int) *NotificationLimiter {
	return &NotificationLimiter{
		limiter: redis_rate.NewLimiter(rdb),
		limit:   redis_rate.PerMinute(perMinute),
	}
}

// Allow consumes one notification of guildID's allowance. Redis failures allow the notification.
func (l *NotificationLimiter) Allow(ctx context.Context, guildID string) bool {
	res, err := l.limiter.Allow(ctx, notificationLimitPrefix+guildID, l.limit)
	if err != nil {
		log.Warnf("notification limiter unavailable for guild %v: %v", guildID, err)
		return true
	}
	return res.Allowed > 0
}
