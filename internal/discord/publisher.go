package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"questbot.io/questbot/internal/leveling"
	"questbot.io/questbot/pkg/log"
)

// Publisher renders engine notifications as embeds and sends them.
type Publisher struct {
	s      *discordgo.Session
	levels *leveling.LevelTable
}

func NewPublisher(s *discordgo.Session, levels *leveling.LevelTable) *Publisher {
	return &Publisher{s: s, levels: levels}
}

func (p *Publisher) Publish(ctx context.Context, channelID string, n *leveling.Notification) (string, error) {
	msg := renderNotification(n, p.levels)
	if msg.AllowedMentions == nil {
		// notifications mention members without pinging them
		msg.AllowedMentions = &discordgo.MessageAllowedMentions{}
	}
	sent, err := p.s.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapRESTError(err, "send "+n.Kind.String())
	}
	log.Debugf("sent %v notification %v to channel %v", n.Kind, sent.ID, channelID)
	return sent.ID, nil
}
