package main

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"questbot.io/questbot/internal/aws"
	"questbot.io/questbot/internal/cache"
	"questbot.io/questbot/internal/config"
	"questbot.io/questbot/internal/database"
	"questbot.io/questbot/internal/discord"
	"questbot.io/questbot/internal/guildconfig"
	"questbot.io/questbot/internal/http"
	"questbot.io/questbot/internal/leveling"
	"questbot.io/questbot/internal/starter"
	"questbot.io/questbot/pkg/errors"
	"questbot.io/questbot/pkg/log"
)

const roleSnapshotTTL = 30 * 24 * time.Hour

func main() {
	log.Infof("Starting app")
	startApp()
}

func startApp() {
	defer func() {
		if i := recover(); i != nil {
			log.Fatal(errors.ErrorfAndReport("%v", i))
		}
	}()
	config.Read()
	conf := config.Global
	log.SetLevelName(conf.LogLevel)
	if conf.SentryDSN != "" {
		if err := errors.NewSentryReporter(conf.SentryDSN, conf.Environment); err != nil {
			log.Error(err)
		}
	}
	errors.NewLarkReporter(conf.LarkAlarmWebhook, "questbot "+conf.Environment, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.OpenPostgres(&conf.Postgres)
	if err != nil {
		log.Fatal(err)
	}
	store := database.NewStore(db)
	defer store.Close()
	if err := store.Migrate(); err != nil {
		log.Fatal(err)
	}

	var (
		rdb       *redis.Client
		snapshots *cache.RoleSnapshots
		limiter   leveling.NotificationLimiter
		configs   *guildconfig.Loader
	)
	if conf.RedisCredential.Address != "" {
		rdb, err = cache.Connect(ctx, &conf.RedisCredential)
		if err != nil {
			log.Fatal(err)
		}
		defer rdb.Close()
		snapshots = cache.NewRoleSnapshots(rdb, roleSnapshotTTL)
		limiter = cache.NewNotificationLimiter(rdb, conf.Leveling.NotificationsPerMinute)
		configs = guildconfig.NewLoader(store, cache.NewGuildConfigCache(rdb, conf.Leveling.GuildConfigTTL))
	} else {
		log.Warn("redis not configured, guild configs are read from postgres on every event")
		configs = guildconfig.NewLoader(store, nil)
	}

	var archiver leveling.Archiver
	token := conf.DiscordBot.AuthToken
	if conf.Aws.Enabled() {
		clients, err := aws.Init(ctx, conf.Aws.Region, conf.Aws.ArchiveBucket)
		if err != nil {
			log.Fatal(err)
		}
		if token == "" && conf.DiscordBot.TokenParameter != "" {
			token, err = clients.GetParameter(ctx, conf.DiscordBot.TokenParameter)
			if err != nil {
				log.Fatal(err)
			}
		}
		if clients.HasBucket() {
			archiver = aws.NewQuestArchiver(clients)
		}
	}
	if token == "" {
		log.Fatal("discord bot token not present")
	}

	opts, err := leveling.OptionsFromConfig(conf.Leveling)
	if err != nil {
		log.Fatal(err)
	}
	ses, err := discord.NewSession(token)
	if err != nil {
		log.Fatal(err)
	}
	platform := discord.NewPlatform(ses)
	engine := leveling.New(leveling.Deps{
		Store:     store,
		Configs:   configs,
		Platform:  platform,
		Publisher: discord.NewPublisher(ses, opts.Levels),
		Limiter:   limiter,
		Archiver:  archiver,
	}, opts)
	bot := discord.NewBot(ses, platform, engine, snapshots, conf.DiscordBot)

	deps := map[string]http.Pinger{"postgres": store}
	if rdb != nil {
		deps["redis"] = http.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	stop := starter.Start(ctx, conf, http.NewServer(bot, deps))
	defer stop()

	discord.SetupBot(ctx, bot)
}
