package discord

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"questbot.io/questbot/internal/database"
	"questbot.io/questbot/internal/leveling"
	"questbot.io/questbot/pkg/common"
	"questbot.io/questbot/pkg/errors"
)

const (
	leaderboardSize = 10
	questsPerPage   = 10
)

func (b *Bot) textChannels(ctx context.Context, guildID string) ([]channelRef, error) {
	channels, err := b.ses.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapRESTError(err, "fetch guild channels")
	}
	var refs []channelRef
	for _, c := range channels {
		if c.Type == discordgo.ChannelTypeGuildText || c.Type == discordgo.ChannelTypeGuildNews {
			refs = append(refs, channelRef{ID: c.ID, Name: c.Name})
		}
	}
	return refs, nil
}

func (b *Bot) pingCommand(ctx context.Context, c *command) error {
	b.replyText(c, "online")
	return nil
}

func (b *Bot) commandsCommand(ctx context.Context, c *command) error {
	p := b.conf.CommandPrefix
	embed := &discordgo.MessageEmbed{
		Title: "🤖 QuestBot Commands",
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "👥 User Commands (Everyone)", Value: strings.Join([]string{
				"`" + p + "allquests` - List all current quests",
				"`" + p + "leaderboard` - Display XP rankings",
				"`" + p + "checkXP` - Check your XP and level progress",
				"`" + p + "questbot` - Ping bot to check if online",
				"`" + p + "commands` - Display this help message",
			}, "\n")},
			{Name: "📊 XP System Types", Value: strings.Join([]string{
				"**Quest XP:** earned once per completed quest",
				"**Streak XP:** earned each time you gain a streak role (accumulates)",
				"**Badge XP:** counted while you hold badge roles",
				"",
				"**Total XP = Quest XP + Streak XP + Badge XP**",
			}, "\n")},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "💡 Tip: React with ✅ to opt-in messages to start earning XP!"},
	}
	b.reply(c, embed)
	return nil
}

func (b *Bot) staffCommandsCommand(ctx context.Context, c *command) error {
	names := make([]string, 0, len(commandUsage))
	for name := range commandUsage {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names)+2)
	for _, name := range names {
		lines = append(lines, "`"+b.conf.CommandPrefix+commandUsage[name]+"`")
	}
	lines = append(lines, "`"+b.conf.CommandPrefix+"deleteallquests`", "`"+b.conf.CommandPrefix+"staffcommands`")
	b.reply(c, &discordgo.MessageEmbed{
		Title:       "🛡️ QuestBot Staff Commands",
		Description: "Commands for members with Manage Server or Administrator:\n\n" + strings.Join(lines, "\n"),
		Color:       colorStreak,
	})
	return nil
}

func (b *Bot) optInCommand(ctx context.Context, c *command) error {
	channelID := c.ChannelID
	if c.args != "" {
		channels, err := b.textChannels(ctx, c.GuildID)
		if err != nil {
			return err
		}
		ch, ok := parseChannelRef(c.args, channels)
		if !ok {
			return badUsage(fmt.Sprintf("could not find a text channel matching `%s`", c.args))
		}
		channelID = ch.ID
	}
	messageID, reused, err := b.engine.Admin.SetupOptIn(ctx, c.GuildID, channelID)
	if err != nil {
		return err
	}
	if reused {
		b.reply(c, resultEmbed("ℹ️ Opt-In Message Exists",
			fmt.Sprintf("The opt-in message `%s` is still up, members can keep reacting to it.", messageID), colorInfo))
		return nil
	}
	b.reply(c, resultEmbed("✅ Opt-In Message Created",
		fmt.Sprintf("QuestBot opt-in message posted in %s\nMembers can react with ✅ to join.", channelMention(channelID)),
		colorSuccess))
	return nil
}

func (b *Bot) whitelistCommand(ctx context.Context, c *command) error {
	fields := c.fields()
	if len(fields) == 0 {
		return badUsage("missing action")
	}
	action, refs := strings.ToLower(fields[0]), fields[1:]
	switch action {
	case "list":
		list, err := b.engine.Admin.Whitelist(ctx, c.GuildID)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			b.reply(c, resultEmbed("📋 Channel Whitelist",
				"No channels are currently whitelisted.\nThe bot can send messages in all channels.", colorInfo))
			return nil
		}
		ids := make([]string, 0, len(list))
		for id := range list {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		lines := make([]string, 0, len(ids))
		for _, id := range ids {
			lines = append(lines, "• "+channelMention(id))
		}
		b.reply(c, resultEmbed("📋 Channel Whitelist",
			"Bot can only send messages and respond to commands in these channels:\n\n"+strings.Join(lines, "\n"),
			colorSuccess))
		return nil
	case "clear":
		n, err := b.engine.Admin.ClearWhitelist(ctx, c.GuildID)
		if err != nil {
			return err
		}
		b.reply(c, resultEmbed("📋 Whitelist Cleared",
			fmt.Sprintf("✅ Cleared %d channel(s) from the whitelist.\nThe bot can now send messages in all channels.", n),
			colorSuccess))
		return nil
	case "add", "remove":
	default:
		return badUsage(fmt.Sprintf("unknown action `%s`", action))
	}
	if len(refs) == 0 {
		return badUsage("name at least one channel")
	}
	channels, err := b.textChannels(ctx, c.GuildID)
	if err != nil {
		return err
	}
	var changed, unchanged, failed []string
	for _, ref := range refs {
		ch, ok := parseChannelRef(ref, channels)
		if !ok {
			failed = append(failed, ref)
			continue
		}
		var done bool
		if action == "add" {
			done, err = b.engine.Admin.WhitelistChannel(ctx, c.GuildID, ch.ID, ch.Name)
		} else {
			done, err = b.engine.Admin.UnwhitelistChannel(ctx, c.GuildID, ch.ID)
		}
		if err != nil {
			return err
		}
		if done {
			changed = append(changed, channelMention(ch.ID))
		} else {
			unchanged = append(unchanged, channelMention(ch.ID))
		}
	}
	verb, already := "Added", "Already whitelisted"
	if action == "remove" {
		verb, already = "Removed", "Not whitelisted"
	}
	var parts []string
	if len(changed) > 0 {
		parts = append(parts, fmt.Sprintf("✅ %s: %s", verb, strings.Join(changed, ", ")))
	}
	if len(unchanged) > 0 {
		parts = append(parts, fmt.Sprintf("ℹ️ %s: %s", already, strings.Join(unchanged, ", ")))
	}
	color := colorSuccess
	if len(failed) > 0 {
		parts = append(parts, fmt.Sprintf("❌ Not found: %s", strings.Join(failed, ", ")))
		color = colorWarn
	}
	b.reply(c, resultEmbed("📋 Whitelist Updated", strings.Join(parts, "\n"), color))
	return nil
}

func (b *Bot) leaderboardCommand(ctx context.Context, c *command) error {
	top, err := b.engine.Leaderboard.Top(ctx, c.GuildID, leaderboardSize)
	if err != nil {
		return err
	}
	b.reply(c, leaderboardEmbed(top, b.engine.Leaderboard.Levels()))
	return nil
}

func (b *Bot) checkExpCommand(ctx context.Context, c *command) error {
	return b.showStanding(ctx, c, c.Author.ID)
}

func (b *Bot) checkMemberExpCommand(ctx context.Context, c *command) error {
	memberID, ok := parseUserRef(c.args)
	if !ok {
		return badUsage("mention the member to check")
	}
	return b.showStanding(ctx, c, memberID)
}

func (b *Bot) showStanding(ctx context.Context, c *command, memberID string) error {
	s, err := b.engine.Leaderboard.Standing(ctx, c.GuildID, memberID)
	if errors.Is(err, leveling.ErrNotOptedIn) && memberID == c.Author.ID {
		b.reply(c, errorEmbed("Not Opted In", "You haven't opted into the QuestBot system yet!\n\n"+
			"React with ✅ to the opt-in message to start earning XP."))
		return nil
	}
	if err != nil {
		return err
	}
	b.reply(c, standingEmbed(s))
	return nil
}

func (b *Bot) addExpCommand(ctx context.Context, c *command) error {
	memberID, amount, err := parseMemberAmount(c.args)
	if err != nil {
		return err
	}
	change, err := b.engine.Admin.AddExp(ctx, c.GuildID, memberID, amount)
	if err != nil {
		return err
	}
	b.replyExpChange(c, "✅ XP Added", fmt.Sprintf("Added %s XP to %s", number(amount), mention(memberID)), change)
	return nil
}

func (b *Bot) removeExpCommand(ctx context.Context, c *command) error {
	memberID, amount, err := parseMemberAmount(c.args)
	if err != nil {
		return err
	}
	change, err := b.engine.Admin.RemoveExp(ctx, c.GuildID, memberID, amount)
	if err != nil {
		return err
	}
	b.replyExpChange(c, "✅ XP Removed", fmt.Sprintf("Removed %s XP from %s", number(amount), mention(memberID)), change)
	return nil
}

func (b *Bot) setExpCommand(ctx context.Context, c *command) error {
	memberID, amount, err := parseMemberAmount(c.args)
	if err != nil {
		return err
	}
	change, err := b.engine.Admin.SetExp(ctx, c.GuildID, memberID, amount)
	if err != nil {
		return err
	}
	b.replyExpChange(c, "✅ XP Set", fmt.Sprintf("Set %s's base XP to %s XP", mention(memberID), number(amount)), change)
	return nil
}

func (b *Bot) replyExpChange(c *command, title, what string, change leveling.ExpChange) {
	desc := fmt.Sprintf("%s\nTotal: %s XP, %s", what, number(change.Breakdown.Total()), leveling.MarkerName(change.Level))
	if change.LevelChanged() {
		desc += fmt.Sprintf(" (was %s)", leveling.MarkerName(change.PreviousLevel))
	}
	b.reply(c, resultEmbed(title, desc, colorSuccess))
}

func (b *Bot) questPingCommand(ctx context.Context, c *command) error {
	if c.args == "" {
		return badUsage("name the role to ping")
	}
	roles, err := b.platform.Roles(ctx, c.GuildID)
	if err != nil {
		return err
	}
	role, ok := parseRoleRef(c.args, roles)
	if !ok {
		return badUsage(fmt.Sprintf("could not find a role matching `%s`", c.args))
	}
	if err := b.engine.Admin.SetQuestPingRole(ctx, c.GuildID, role.ID); err != nil {
		return err
	}
	b.reply(c, resultEmbed("✅ Quest Ping Role Set",
		fmt.Sprintf("Quest ping role has been set to: %s\nThis role will be pinged when new quests are posted.",
			roleMention(role.ID)), colorSuccess))
	return nil
}

func (b *Bot) questChannelCommand(ctx context.Context, c *command) error {
	if c.args == "" {
		return badUsage("name the quest channel")
	}
	channels, err := b.textChannels(ctx, c.GuildID)
	if err != nil {
		return err
	}
	ch, ok := parseChannelRef(c.args, channels)
	if !ok {
		return badUsage(fmt.Sprintf("could not find a text channel matching `%s`", c.args))
	}
	if err := b.engine.Admin.SetQuestChannel(ctx, c.GuildID, ch.ID); err != nil {
		return err
	}
	b.reply(c, resultEmbed("✅ Quest Channel Set",
		fmt.Sprintf("Quest channel has been set to: %s\nNew quests will be posted there.", channelMention(ch.ID)),
		colorSuccess))
	return nil
}

func (b *Bot) addQuestCommand(ctx context.Context, c *command) error {
	title, body, exp, err := parseQuestArgs(c.args)
	if err != nil {
		return err
	}
	quest, err := b.engine.Admin.CreateQuest(ctx, leveling.QuestDraft{
		GuildID:   c.GuildID,
		ChannelID: c.ChannelID,
		AuthorID:  c.Author.ID,
		Title:     title,
		Body:      body,
		Exp:       exp,
	})
	if err != nil {
		return err
	}
	b.reply(c, resultEmbed("✅ Quest Created",
		fmt.Sprintf("Quest **%s** (%s XP) has been created in %s", quest.Title, number(quest.ExpReward),
			channelMention(quest.ChannelID)), colorSuccess))
	return nil
}

func (b *Bot) removeQuestCommand(ctx context.Context, c *command) error {
	messageID := strings.TrimSpace(c.args)
	if !common.IsSnowflake(messageID) {
		return badUsage("give the message id of the quest")
	}
	quest, err := b.engine.Admin.RemoveQuest(ctx, c.GuildID, messageID)
	if err != nil {
		return err
	}
	b.reply(c, resultEmbed("✅ Quest Removed",
		fmt.Sprintf("Quest **%s** has been removed from the database and deleted from the channel.", quest.Title),
		colorSuccess))
	return nil
}

func (b *Bot) deleteAllQuestsCommand(ctx context.Context, c *command) error {
	res, err := b.engine.Admin.DeleteAllQuests(ctx, c.GuildID, c.ChannelID, c.Author.ID)
	if res == nil {
		return err
	}
	if res.Quests == 0 && err == nil {
		b.reply(c, errorEmbed("No Quests Found", "There are no active quests to delete."))
		return nil
	}
	var embed *discordgo.MessageEmbed
	switch {
	case errors.Is(err, leveling.ErrConfirmationTimeout):
		embed = resultEmbed("⏰ Deletion Timed Out", "No confirmation received. No quests were deleted.", colorWarn)
	case errors.Is(err, leveling.ErrCancelled):
		embed = resultEmbed("❌ Deletion Cancelled", "No quests were deleted.", colorWarn)
	case err != nil:
		return err
	default:
		desc := fmt.Sprintf("Deleted %d quest(s) and %d quest message(s).", res.RowsDeleted, res.MessagesDeleted)
		if res.ArchiveKey != "" {
			desc += fmt.Sprintf("\nArchived as `%s`.", res.ArchiveKey)
		}
		embed = resultEmbed("🗑️ All Quests Deleted", desc, colorSuccess)
	}
	if res.PromptMessageID == "" {
		b.reply(c, embed)
		return nil
	}
	if err := b.platform.editEmbed(ctx, res.PromptChannelID, res.PromptMessageID, embed); err != nil {
		b.reply(c, embed)
	}
	return nil
}

func jumpLink(guildID, channelID, messageID string) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}

// questPages lists quests as jump links, at most questsPerPage per page.
func questPages(guildID string, quests []*database.Quest) []string {
	var pages []string
	var b strings.Builder
	for i, q := range quests {
		if i > 0 && i%questsPerPage == 0 {
			pages = append(pages, b.String())
			b.Reset()
		}
		fmt.Fprintf(&b, "**%d.** [%s](%s) · %s XP", i+1, common.Truncate(q.Title, 80),
			jumpLink(guildID, q.ChannelID, q.MessageID), number(q.ExpReward))
		if posted := common.DecodeTimeInSnowflake(q.MessageID); posted != nil {
			fmt.Fprintf(&b, " · <t:%d:R>", posted.Unix())
		}
		b.WriteString("\n")
	}
	if b.Len() > 0 {
		pages = append(pages, b.String())
	}
	return pages
}

func (b *Bot) allQuestsCommand(ctx context.Context, c *command) error {
	quests, err := b.engine.Admin.Quests(ctx, c.GuildID)
	if err != nil {
		return err
	}
	if len(quests) == 0 {
		b.reply(c, resultEmbed("📜 Active Quests", "There are no active quests right now.", colorInfo))
		return nil
	}
	pages := questPages(c.GuildID, quests)
	for i, page := range pages {
		title := fmt.Sprintf("📜 Active Quests (%d)", len(quests))
		if len(pages) > 1 {
			title = fmt.Sprintf("📜 Active Quests (%d) · page %d/%d", len(quests), i+1, len(pages))
		}
		b.reply(c, resultEmbed(title, page, colorInfo))
	}
	return nil
}

func (b *Bot) assignRoleExpCommand(ctx context.Context, c *command) error {
	ref, exp, kind, err := parseRoleAssignment(c.args)
	if err != nil {
		return err
	}
	roles, err := b.platform.Roles(ctx, c.GuildID)
	if err != nil {
		return err
	}
	role, ok := parseRoleRef(ref, roles)
	if !ok {
		return badUsage(fmt.Sprintf("could not find a role matching `%s`", ref))
	}
	if err := b.engine.Admin.AssignRoleExp(ctx, c.GuildID, role, exp, database.RoleExpKind(kind)); err != nil {
		return err
	}
	b.reply(c, resultEmbed("✅ Role XP Assigned",
		fmt.Sprintf("%s is now worth **%s %s XP**.", roleMention(role.ID), number(exp), kind), colorSuccess))
	return nil
}

func (b *Bot) assignStreakExpCommand(ctx context.Context, c *command) error {
	return b.assignMany(ctx, c, database.RoleExpKindStreak)
}

func (b *Bot) assignBadgeExpCommand(ctx context.Context, c *command) error {
	return b.assignMany(ctx, c, database.RoleExpKindBadge)
}

func (b *Bot) assignMany(ctx context.Context, c *command, kind database.RoleExpKind) error {
	exp, refs, err := parseBulkAssignment(c.args)
	if err != nil {
		return err
	}
	roles, err := b.platform.Roles(ctx, c.GuildID)
	if err != nil {
		return err
	}
	var assigned, failed []string
	for _, ref := range refs {
		role, ok := parseRoleRef(ref, roles)
		if !ok {
			failed = append(failed, fmt.Sprintf("`%s` (not found)", ref))
			continue
		}
		err := b.engine.Admin.AssignRoleExp(ctx, c.GuildID, role, exp, kind)
		switch {
		case errors.Is(err, leveling.ErrInvalidRole):
			failed = append(failed, fmt.Sprintf("%s (level roles carry no XP)", roleMention(role.ID)))
		case err != nil:
			return err
		default:
			assigned = append(assigned, roleMention(role.ID))
		}
	}
	var parts []string
	color := colorSuccess
	if len(assigned) > 0 {
		parts = append(parts, fmt.Sprintf("✅ %s %s XP: %s", number(exp), kind, strings.Join(assigned, ", ")))
	}
	if len(failed) > 0 {
		parts = append(parts, "❌ Skipped: "+strings.Join(failed, ", "))
		color = colorWarn
	}
	b.reply(c, resultEmbed("🎖️ Role XP Updated", strings.Join(parts, "\n"), color))
	return nil
}

func (b *Bot) unassignRoleExpCommand(ctx context.Context, c *command) error {
	if c.args == "" {
		return badUsage("name the role")
	}
	roles, err := b.platform.Roles(ctx, c.GuildID)
	if err != nil {
		return err
	}
	roleID := c.args
	if role, ok := parseRoleRef(c.args, roles); ok {
		roleID = role.ID
	}
	removed, err := b.engine.Admin.UnassignRoleExp(ctx, c.GuildID, roleID)
	if err != nil {
		return err
	}
	if !removed {
		b.reply(c, errorEmbed("No Role XP", fmt.Sprintf("`%s` has no XP assigned.", c.args)))
		return nil
	}
	b.reply(c, resultEmbed("✅ Role XP Removed", fmt.Sprintf("`%s` no longer gives XP.", c.args), colorSuccess))
	return nil
}

func (b *Bot) checkRoleExpCommand(ctx context.Context, c *command) error {
	assignments, err := b.engine.Admin.RoleExps(ctx, c.GuildID)
	if err != nil {
		return err
	}
	if c.args != "" {
		roles, err := b.platform.Roles(ctx, c.GuildID)
		if err != nil {
			return err
		}
		role, ok := parseRoleRef(c.args, roles)
		if !ok {
			return badUsage(fmt.Sprintf("could not find a role matching `%s`", c.args))
		}
		a, ok := assignments[role.ID]
		if !ok {
			b.reply(c, resultEmbed("🎖️ Role XP", fmt.Sprintf("**%s** has no XP assigned.", role.Name), colorInfo))
			return nil
		}
		b.reply(c, resultEmbed("🎖️ Role XP",
			fmt.Sprintf("**%s**: %s XP (%s)", role.Name, number(a.Exp), a.Kind), colorInfo))
		return nil
	}
	if len(assignments) == 0 {
		b.reply(c, resultEmbed("🎖️ Role XP", "No roles have XP assigned.", colorInfo))
		return nil
	}
	ids := make([]string, 0, len(assignments))
	for id := range assignments {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ai, aj := assignments[ids[i]], assignments[ids[j]]
		if ai.Kind != aj.Kind {
			return ai.Kind < aj.Kind
		}
		return ai.RoleName < aj.RoleName
	})
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		a := assignments[id]
		// names only, so listing roles pings nobody
		lines = append(lines, fmt.Sprintf("**%s**: %s XP (%s)", a.RoleName, number(a.Exp), a.Kind))
	}
	b.reply(c, resultEmbed("🎖️ Role XP", strings.Join(lines, "\n"), colorInfo))
	return nil
}
