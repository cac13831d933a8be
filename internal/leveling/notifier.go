package leveling

import (
	"context"
	"sort"
	"time"

	"questbot.io/questbot/internal/database"
	"questbot.io/questbot/internal/guildconfig"
	"questbot.io/questbot/pkg/errors"
	"questbot.io/questbot/pkg/log"
)

type NotificationKind int

const (
	NotifyWelcome NotificationKind = iota + 1
	NotifyQuestCompleted
	NotifyLevelChanged
	NotifyRoleExp
	NotifyQuestPosted
	NotifyOptInPrompt
	NotifyConfirmQuestDeletion
)

func (k NotificationKind) String() string {
	switch k {
	case NotifyWelcome:
		return "welcome"
	case NotifyQuestCompleted:
		return "quest_completed"
	case NotifyLevelChanged:
		return "level_changed"
	case NotifyRoleExp:
		return "role_exp"
	case NotifyQuestPosted:
		return "quest_posted"
	case NotifyOptInPrompt:
		return "optin_prompt"
	case NotifyConfirmQuestDeletion:
		return "confirm_quest_deletion"
	}
	return "unknown"
}

// Notification is an outbound message before rendering.
type Notification struct {
	Kind    NotificationKind
	GuildID string
	// ChannelID may be empty; the notifier then picks a channel.
	ChannelID string
	// Privileged notifications answer an admin and skip the gate and the throttle.
	Privileged bool

	MemberID      string
	Quest         *database.Quest
	PingRoleID    string
	RoleName      string
	Streak        bool
	Exp           int
	TotalExp      int
	Level         int
	PreviousLevel int
	Count         int

	// DeleteAfter removes the message once elapsed. Zero keeps it.
	DeleteAfter time.Duration
}

// LevelUp reports whether the notification carries a level increase.
func (n *Notification) LevelUp() bool {
	return n.PreviousLevel != 0 && n.Level > n.PreviousLevel
}

// Publisher renders and sends a notification, returning the message id.
type Publisher interface {
	Publish(ctx context.Context, channelID string, n *Notification) (string, error)
}

// Notifier sends notifications through the channel gate and the per-guild throttle.
type Notifier struct {
	configs   ConfigSource
	publisher Publisher
	platform  Platform
	limiter   NotificationLimiter
	afterFunc func(d time.Duration, f func())
}

// NewNotifier creates a notifier. limiter may be nil.
func NewNotifier(configs ConfigSource, publisher Publisher, platform Platform, limiter NotificationLimiter) *Notifier {
	return &Notifier{
		configs:   configs,
		publisher: publisher,
		platform:  platform,
		limiter:   limiter,
		afterFunc: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// Notify publishes n and returns the message id, or "" when the gate or the
// throttle suppressed it.
func (in *Notifier) Notify(ctx context.Context, n *Notification) (string, error) {
	conf, err := in.configs.Load(ctx, n.GuildID)
	if err != nil {
		return "", errors.WithMessage(err, "load guild config")
	}
	channelID, err := in.resolveChannel(ctx, conf, n)
	if err != nil {
		return "", err
	}
	if !ChannelAllowed(conf.Whitelist, channelID, n.Privileged) {
		log.Debugf("%s notification suppressed in %v#%v", n.Kind, n.GuildID, channelID)
		return "", nil
	}
	if !n.Privileged && in.limiter != nil && !in.limiter.Allow(ctx, n.GuildID) {
		log.Infof("%s notification throttled in %v", n.Kind, n.GuildID)
		return "", nil
	}
	msgID, err := in.publisher.Publish(ctx, channelID, n)
	if err != nil {
		return "", errors.WithMessagef(err, "publish %s notification", n.Kind)
	}
	if n.DeleteAfter > 0 {
		in.afterFunc(n.DeleteAfter, func() {
			err := in.platform.DeleteMessage(context.Background(), channelID, msgID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				log.Warnf("delete %s notification %v: %v", n.Kind, msgID, err)
			}
		})
	}
	return msgID, nil
}

// resolveChannel prefers the notification's channel, then the first whitelisted
// channel, then the platform default.
func (in *Notifier) resolveChannel(ctx context.Context, conf *guildconfig.Config, n *Notification) (string, error) {
	if n.ChannelID != "" {
		return n.ChannelID, nil
	}
	if len(conf.Whitelist) > 0 {
		ids := make([]string, 0, len(conf.Whitelist))
		for id := range conf.Whitelist {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return ids[0], nil
	}
	channelID, err := in.platform.DefaultChannel(ctx, n.GuildID)
	if err != nil {
		return "", errors.WithMessage(err, "default notification channel")
	}
	return channelID, nil
}
