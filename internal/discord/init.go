package discord

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"questbot.io/questbot/internal/cache"
	"questbot.io/questbot/internal/config"
	"questbot.io/questbot/internal/leveling"
	"questbot.io/questbot/pkg/errors"
	"questbot.io/questbot/pkg/log"
)

const intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsMessageContent

// NewSession creates an unopened session. Handlers run synchronously so events reach
// the engine's member queues in the order the gateway delivered them.
func NewSession(token string) (*discordgo.Session, error) {
	ses, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, errors.ErrorfAndReport("create new discord session:%v", err)
	}
	ses.Identify.Intents = intents
	ses.SyncEvents = true
	ses.State.TrackMembers = true
	ses.State.TrackRoles = true
	return ses, nil
}

// Bot routes gateway events and prefix commands into the leveling engine.
type Bot struct {
	ctx       context.Context
	ses       *discordgo.Session
	platform  *Platform
	engine    *leveling.Engine
	snapshots *cache.RoleSnapshots
	conf      config.DiscordBot

	messageCommandHandler     map[string]commandHandler
	requirePermissionCommands map[string]bool
}

// NewBot wires a bot. snapshots may be nil, then role diffs rely on the session state only.
func NewBot(ses *discordgo.Session, platform *Platform, engine *leveling.Engine,
	snapshots *cache.RoleSnapshots, conf config.DiscordBot) *Bot {
	b := &Bot{
		ctx:       context.Background(),
		ses:       ses,
		platform:  platform,
		engine:    engine,
		snapshots: snapshots,
		conf:      conf,
	}
	b.registerCommands()
	return b
}

// SetupBot connects to the gateway and blocks until interrupted, then closes the
// session so no new events arrive and drains the member queues.
func SetupBot(ctx context.Context, b *Bot) {
	b.ctx = ctx
	if err := b.open(); err != nil {
		log.Fatal(err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}
	log.Infof("Gracefully shutting down")
	if err := b.ses.Close(); err != nil {
		log.Warnf("close discord session: %v", err)
	}
	b.engine.Reactor.Wait()
}

func (b *Bot) open() error {
	ses := b.ses
	ses.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Infof("Bot is running as %v in %d guilds", r.User.Username, len(r.Guilds))
	})
	ses.AddHandler(b.messageReceiverHandler)
	ses.AddHandler(b.messageReactionAddEventHandler)
	ses.AddHandler(b.guildCreateEventHandler)
	ses.AddHandler(b.guildMembersChunkEventHandler)
	ses.AddHandler(b.guildMemberAddEventHandler)
	ses.AddHandler(b.guildMemberUpdateEventHandler)
	if err := ses.Open(); err != nil {
		return errors.ErrorfAndReport("Cannot open the session: %v", err)
	}
	return nil
}

// Pending is the number of engine tasks not yet finished, for health reporting.
func (b *Bot) Pending() int64 {
	return b.engine.Reactor.Pending()
}
