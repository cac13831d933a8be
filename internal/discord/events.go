package discord

import (
	"github.com/bwmarrin/discordgo"
	"questbot.io/questbot/internal/leveling"
	"questbot.io/questbot/pkg/log"
)

func reactionEmoji(e discordgo.Emoji) string {
	if e.ID != "" {
		return e.APIName()
	}
	return e.Name
}

func (b *Bot) messageReactionAddEventHandler(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	defer func() {
		if i := recover(); i != nil {
			log.Errorf("message reaction add handler:%v", i)
		}
	}()
	if s.State.User != nil && r.UserID == s.State.User.ID {
		return
	}
	emoji := reactionEmoji(r.Emoji)
	// pending confirmations swallow every reaction on their prompt
	if b.engine.Confirmations.Resolve(r.MessageID, r.UserID, emoji) {
		return
	}
	if r.GuildID == "" {
		return
	}
	b.engine.Reactor.SubmitReaction(leveling.ReactionEvent{
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     emoji,
		Bot:       r.Member != nil && r.Member.User != nil && r.Member.User.Bot,
	})
}

func (b *Bot) guildMemberAddEventHandler(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if b.snapshots == nil || m.User == nil || m.User.Bot {
		return
	}
	if _, _, err := b.snapshots.Swap(b.ctx, m.GuildID, m.User.ID, m.Roles); err != nil {
		log.Warnf("snapshot roles of new member %v: %v", m.User.ID, err)
	}
}

// guildCreateEventHandler asks for the full member list, so that role updates find the
// member in the state cache and the snapshot store holds a baseline for everyone.
func (b *Bot) guildCreateEventHandler(s *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || g.Unavailable {
		return
	}
	if err := s.RequestGuildMembers(g.ID, "", 0, "", false); err != nil {
		log.Warnf("request members of guild %v: %v", g.ID, err)
	}
}

// guildMembersChunkEventHandler seeds role snapshots from a member list chunk. The
// session state fills itself from the same event.
func (b *Bot) guildMembersChunkEventHandler(s *discordgo.Session, c *discordgo.GuildMembersChunk) {
	if b.snapshots == nil || len(c.Members) == 0 {
		return
	}
	roles := make(map[string][]string, len(c.Members))
	for _, m := range c.Members {
		if m.User == nil || m.User.Bot {
			continue
		}
		roles[m.User.ID] = append([]string(nil), m.Roles...)
	}
	if err := b.snapshots.Seed(b.ctx, c.GuildID, roles); err != nil {
		log.Warnf("seed role snapshots of guild %v chunk %d/%d: %v", c.GuildID, c.ChunkIndex+1, c.ChunkCount, err)
	}
}

// rolesChangedEvent diffs the member's roles against the state cache, or the redis
// snapshot when the member was not cached. The snapshot always moves to the new roles.
func (b *Bot) rolesChangedEvent(m *discordgo.GuildMemberUpdate) leveling.RolesChangedEvent {
	ev := leveling.RolesChangedEvent{
		GuildID:  m.GuildID,
		MemberID: m.User.ID,
		After:    append([]string(nil), m.Roles...),
	}
	if m.BeforeUpdate != nil {
		ev.Before, ev.BeforeKnown = append([]string(nil), m.BeforeUpdate.Roles...), true
	}
	if b.snapshots != nil {
		previous, found, err := b.snapshots.Swap(b.ctx, m.GuildID, m.User.ID, m.Roles)
		switch {
		case err != nil:
			log.Warnf("swap role snapshot of %v: %v", m.User.ID, err)
		case !ev.BeforeKnown && found:
			ev.Before, ev.BeforeKnown = previous, true
		}
	}
	if !ev.BeforeKnown {
		log.Warnf("no role baseline for %v in %v, streak roles of this update are not counted", m.User.ID, m.GuildID)
	}
	return ev
}

func (b *Bot) guildMemberUpdateEventHandler(s *discordgo.Session, m *discordgo.GuildMemberUpdate) {
	defer func() {
		if i := recover(); i != nil {
			log.Errorf("guild member update handler:%v", i)
		}
	}()
	if m.Member == nil || m.User == nil || m.User.Bot {
		return
	}
	b.engine.Reactor.SubmitRolesChanged(b.rolesChangedEvent(m))
}
