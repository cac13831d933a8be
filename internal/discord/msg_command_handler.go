package discord

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"questbot.io/questbot/internal/leveling"
	"questbot.io/questbot/pkg/errors"
	"questbot.io/questbot/pkg/log"
)

// commandTimeout bounds a command, including a bulk deletion waiting for its confirmation.
const commandTimeout = 2 * time.Minute

type commandHandler func(ctx context.Context, c *command) error

// command is one parsed prefix command.
type command struct {
	*discordgo.MessageCreate
	name  string
	args  string
	admin bool
}

func IsAdminPermission(perm int64) bool {
	return perm&discordgo.PermissionAdministrator == discordgo.PermissionAdministrator ||
		perm&discordgo.PermissionManageServer == discordgo.PermissionManageServer
}

func checkMessageAuthorBot(msg *discordgo.Message) bool {
	if msg.Author != nil {
		return msg.Author.Bot
	}
	if msg.Member != nil && msg.Member.User != nil {
		return msg.Member.User.Bot
	}
	return false
}

func (b *Bot) registerCommands() {
	b.messageCommandHandler = map[string]commandHandler{
		"questbot":        b.pingCommand,
		"commands":        b.commandsCommand,
		"staffcommands":   b.staffCommandsCommand,
		"questbotoptin":   b.optInCommand,
		"whitelist":       b.whitelistCommand,
		"leaderboard":     b.leaderboardCommand,
		"checkxp":         b.checkExpCommand,
		"checkmemberxp":   b.checkMemberExpCommand,
		"addxp":           b.addExpCommand,
		"removexp":        b.removeExpCommand,
		"setxp":           b.setExpCommand,
		"questping":       b.questPingCommand,
		"questchannel":    b.questChannelCommand,
		"addquest":        b.addQuestCommand,
		"removequest":     b.removeQuestCommand,
		"deleteallquests": b.deleteAllQuestsCommand,
		"allquests":       b.allQuestsCommand,
		"assignrolexp":    b.assignRoleExpCommand,
		"assignstreakxp":  b.assignStreakExpCommand,
		"assignbadgexp":   b.assignBadgeExpCommand,
		"unassignrolexp":  b.unassignRoleExpCommand,
		"checkrolexp":     b.checkRoleExpCommand,
	}
	b.requirePermissionCommands = map[string]bool{
		"staffcommands":   true,
		"questbotoptin":   true,
		"whitelist":       true,
		"checkmemberxp":   true,
		"addxp":           true,
		"removexp":        true,
		"setxp":           true,
		"questping":       true,
		"questchannel":    true,
		"addquest":        true,
		"removequest":     true,
		"deleteallquests": true,
		"assignrolexp":    true,
		"assignstreakxp":  true,
		"assignbadgexp":   true,
		"unassignrolexp":  true,
		"checkrolexp":     true,
	}
}

// commandUsage is shown when a command's arguments cannot be read.
var commandUsage = map[string]string{
	"questbotoptin":  "questbotoptin [#channel]",
	"whitelist":      "whitelist <add|remove|clear|list> [#channel ...]",
	"checkmemberxp":  "checkmemberXP @member",
	"addxp":          "addXP @member <amount>",
	"removexp":       "removeXP @member <amount>",
	"setxp":          "setXP @member <amount>",
	"questping":      "questping <@role|role id|role name>",
	"questchannel":   "questchannel <#channel|channel id|channel name>",
	"addquest":       "addquest <title> | <description> [xp]",
	"removequest":    "removequest <message id>",
	"assignrolexp":   "assignroleXP <role> <xp> <badge|streak>",
	"assignstreakxp": "assignstreakXP <xp> <role> [role ...]",
	"assignbadgexp":  "assignbadgeXP <xp> <role> [role ...]",
	"unassignrolexp": "unassignroleXP <role>",
	"checkrolexp":    "checkroleXP [role]",
}

func (b *Bot) messageReceiverHandler(s *discordgo.Session, m *discordgo.MessageCreate) {
	defer func() {
		if i := recover(); i != nil {
			log.Errorf("message receive handler:%v", i)
		}
	}()
	if m.GuildID == "" || checkMessageAuthorBot(m.Message) {
		return
	}
	name, args, ok := splitCommand(m.Content, b.conf.CommandPrefix)
	if !ok {
		return
	}
	h, ok := b.messageCommandHandler[name]
	if !ok {
		return
	}
	c := &command{MessageCreate: m, name: name, args: args, admin: b.isAdmin(s, m.Message)}
	if b.requirePermissionCommands[name] && !c.admin {
		log.Warnf("rejected text command %v from none admin member %v from guild %v",
			name, m.Author.ID, m.GuildID)
		return
	}
	// commands may wait on reactions, which arrive through this same event loop
	go b.runCommand(h, c)
}

func (b *Bot) isAdmin(s *discordgo.Session, m *discordgo.Message) bool {
	p, err := s.State.MessagePermissions(m)
	if err != nil {
		p, err = s.UserChannelPermissions(m.Author.ID, m.ChannelID)
	}
	if err != nil {
		log.Warnf("check permissions of %v in %v: %v", m.Author.ID, m.ChannelID, err)
		return false
	}
	return IsAdminPermission(p)
}

func (b *Bot) runCommand(h commandHandler, c *command) {
	defer func() {
		if i := recover(); i != nil {
			log.Error(errors.ErrorfAndReport("command %v panic: %v", c.name, i))
		}
	}()
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()
	if !b.engine.Gate.Allowed(ctx, c.GuildID, c.ChannelID, c.admin) {
		log.Debugf("command %v ignored in channel %v outside the whitelist", c.name, c.ChannelID)
		return
	}
	start := time.Now()
	err := h(ctx, c)
	log.WithFields(log.Fields{"command": c.name, "guild": c.GuildID, "elapsed": time.Since(start)}).
		Debugf("command handled")
	if err != nil {
		b.answerError(c, err)
	}
}

// answerError turns a command failure into a reply. Only unexpected failures are reported.
func (b *Bot) answerError(c *command, err error) {
	var embed *discordgo.MessageEmbed
	switch {
	case isUsageError(err):
		embed = errorEmbed("Invalid Input", err.Error()+"\n\n**Usage:** `"+b.conf.CommandPrefix+commandUsage[c.name]+"`")
	case errors.Is(err, leveling.ErrNotOptedIn):
		embed = errorEmbed("User Not Opted In", "This member hasn't opted into the QuestBot system yet.\n\n"+
			"They need to react with ✅ to an opt-in message first.")
	case errors.Is(err, leveling.ErrInvalidAmount):
		embed = errorEmbed("Invalid Amount", err.Error())
	case errors.Is(err, leveling.ErrInvalidRole):
		embed = errorEmbed("Invalid Role", err.Error())
	case errors.Is(err, leveling.ErrInvalidQuest):
		embed = errorEmbed("Invalid Quest", err.Error())
	case errors.Is(err, leveling.ErrQuestNotFound):
		embed = errorEmbed("Quest Not Found", "No quest found with that message ID.")
	case errors.Is(err, leveling.ErrNotFound):
		embed = errorEmbed("Not Found", "That member, role or message no longer exists.")
	case errors.Is(err, leveling.ErrPermission):
		embed = errorEmbed("Missing Permissions", "I am missing a permission to do that. "+
			"Check that my role can manage roles and messages and sits above the level roles.")
	default:
		log.Error(errors.WrapAndReport(err, "command "+c.name))
		embed = errorEmbed("Something Went Wrong", "Could not complete the command. Please try again later.")
	}
	b.reply(c, embed)
}

func (b *Bot) reply(c *command, embed *discordgo.MessageEmbed) *discordgo.Message {
	msg, err := b.ses.ChannelMessageSendComplex(c.ChannelID, &discordgo.MessageSend{
		Embeds:          []*discordgo.MessageEmbed{embed},
		AllowedMentions: &discordgo.MessageAllowedMentions{},
		Reference:       c.Reference(),
	})
	if err != nil {
		log.Warnf("reply to %v in %v: %v", c.name, c.ChannelID, mapRESTError(err, "send reply"))
		return nil
	}
	return msg
}

func (b *Bot) replyText(c *command, content string) {
	if _, err := b.ses.ChannelMessageSend(c.ChannelID, content); err != nil {
		log.Warnf("reply to %v in %v: %v", c.name, c.ChannelID, mapRESTError(err, "send reply"))
	}
}

// fields splits the arguments of commands that take a list.
func (c *command) fields() []string {
	return strings.Fields(c.args)
}
