package discord

import (
	"context"
	"net/http"
	"sort"

	"github.com/bwmarrin/discordgo"
	"questbot.io/questbot/internal/leveling"
	"questbot.io/questbot/pkg/errors"
)

// mapRESTError folds discord REST failures onto the engine's error kinds.
func mapRESTError(err error, action string) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil {
			switch restErr.Message.Code {
			case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
				return errors.WithMessage(leveling.ErrPermission, action+": "+restErr.Message.Message)
			case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownMessage,
				discordgo.ErrCodeUnknownRole, discordgo.ErrCodeUnknownUser:
				return errors.WithMessage(leveling.ErrNotFound, action+": "+restErr.Message.Message)
			}
		}
		if restErr.Response != nil {
			switch restErr.Response.StatusCode {
			case http.StatusForbidden:
				return errors.WithMessage(leveling.ErrPermission, action)
			case http.StatusNotFound:
				return errors.WithMessage(leveling.ErrNotFound, action)
			}
		}
	}
	return errors.Wrap(err, action)
}

// Platform implements leveling.Platform on a discord session. Members and
// roles are always read over REST: the state cache lags behind our own grants.
type Platform struct {
	s *discordgo.Session
}

func NewPlatform(s *discordgo.Session) *Platform {
	return &Platform{s: s}
}

func convertRole(r *discordgo.Role) *leveling.Role {
	return &leveling.Role{ID: r.ID, Name: r.Name, Color: r.Color, Position: r.Position}
}

func convertMember(m *discordgo.Member, roles []*discordgo.Role) *leveling.Member {
	byID := make(map[string]*discordgo.Role, len(roles))
	for _, r := range roles {
		byID[r.ID] = r
	}
	out := &leveling.Member{ID: m.User.ID, Name: displayName(m), Bot: m.User.Bot}
	for _, id := range m.Roles {
		if r, ok := byID[id]; ok {
			out.Roles = append(out.Roles, convertRole(r))
		}
	}
	return out
}

func displayName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User == nil {
		return ""
	}
	return m.User.Username
}

func (p *Platform) Member(ctx context.Context, guildID, memberID string) (*leveling.Member, error) {
	m, err := p.s.GuildMember(guildID, memberID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapRESTError(err, "fetch member")
	}
	roles, err := p.s.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapRESTError(err, "fetch guild roles")
	}
	return convertMember(m, roles), nil
}

func (p *Platform) Roles(ctx context.Context, guildID string) ([]*leveling.Role, error) {
	roles, err := p.s.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapRESTError(err, "fetch guild roles")
	}
	out := make([]*leveling.Role, 0, len(roles))
	for _, r := range roles {
		out = append(out, convertRole(r))
	}
	return out, nil
}

func (p *Platform) CreateRole(ctx context.Context, guildID string, params leveling.RoleParams) (*leveling.Role, error) {
	color := params.Color
	hoist, mentionable := false, false
	r, err := p.s.GuildRoleCreate(guildID, &discordgo.RoleParams{
		Name:        params.Name,
		Color:       &color,
		Hoist:       &hoist,
		Mentionable: &mentionable,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapRESTError(err, "create role "+params.Name)
	}
	return convertRole(r), nil
}

func (p *Platform) GrantRole(ctx context.Context, guildID, memberID, roleID string) error {
	return mapRESTError(p.s.GuildMemberRoleAdd(guildID, memberID, roleID, discordgo.WithContext(ctx)), "grant role")
}

func (p *Platform) RevokeRole(ctx context.Context, guildID, memberID, roleID string) error {
	return mapRESTError(p.s.GuildMemberRoleRemove(guildID, memberID, roleID, discordgo.WithContext(ctx)), "revoke role")
}

func (p *Platform) FetchMessage(ctx context.Context, channelID, messageID string) error {
	_, err := p.s.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	return mapRESTError(err, "fetch message")
}

func (p *Platform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return mapRESTError(p.s.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)), "delete message")
}

func (p *Platform) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return mapRESTError(p.s.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx)), "add reaction")
}

// DefaultChannel is the guild's system channel, else its topmost text channel.
func (p *Platform) DefaultChannel(ctx context.Context, guildID string) (string, error) {
	guild, err := p.s.State.Guild(guildID)
	if err != nil {
		guild, err = p.s.Guild(guildID, discordgo.WithContext(ctx))
		if err != nil {
			return "", mapRESTError(err, "fetch guild")
		}
	}
	if guild.SystemChannelID != "" {
		return guild.SystemChannelID, nil
	}
	channels := guild.Channels
	if len(channels) == 0 {
		channels, err = p.s.GuildChannels(guildID, discordgo.WithContext(ctx))
		if err != nil {
			return "", mapRESTError(err, "fetch guild channels")
		}
	}
	if id := firstTextChannel(channels); id != "" {
		return id, nil
	}
	return "", errors.WithMessage(leveling.ErrNotFound, "guild has no text channel")
}

func firstTextChannel(channels []*discordgo.Channel) string {
	var text []*discordgo.Channel
	for _, c := range channels {
		if c.Type == discordgo.ChannelTypeGuildText {
			text = append(text, c)
		}
	}
	if len(text) == 0 {
		return ""
	}
	sort.SliceStable(text, func(i, j int) bool { return text[i].Position < text[j].Position })
	return text[0].ID
}

// editEmbed replaces the embed of a message the bot sent earlier.
func (p *Platform) editEmbed(ctx context.Context, channelID, messageID string, embed *discordgo.MessageEmbed) error {
	_, err := p.s.ChannelMessageEditEmbed(channelID, messageID, embed, discordgo.WithContext(ctx))
	return mapRESTError(err, "edit message")
}
