package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"questbot.io/questbot/internal/leveling"
)

const (
	colorSuccess = 0x00ff00
	colorInfo    = 0x0099ff
	colorWarn    = 0xffaa00
	colorError   = 0xff0000
	colorStreak  = 0xff6600
	colorGold    = 0xffd700

	progressCells = 20
)

var questbotAuthor = &discordgo.MessageEmbedAuthor{Name: "QuestBot"}

func mention(userID string) string {
	return "<@" + userID + ">"
}

func roleMention(roleID string) string {
	return "<@&" + roleID + ">"
}

func channelMention(channelID string) string {
	return "<#" + channelID + ">"
}

// number formats n with thousands separators.
func number(n int) string {
	s := fmt.Sprint(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// progressBar draws percent (0..100) over a fixed number of cells.
func progressBar(percent int) string {
	filled := progressCells * percent / 100
	if filled < 0 {
		filled = 0
	}
	if filled > progressCells {
		filled = progressCells
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", progressCells-filled)
}

func levelSuffix(n *leveling.Notification) string {
	if n.LevelUp() {
		return fmt.Sprintf("\n🎉 **Level up!** You are now Level %d", n.Level)
	}
	return ""
}

func levelRequirements(levels *leveling.LevelTable) string {
	var b strings.Builder
	for i, exp := range levels.Thresholds() {
		fmt.Fprintf(&b, "%s: %s XP\n", leveling.MarkerName(i+leveling.MinLevel), number(exp))
	}
	return b.String()
}

// renderNotification turns an engine notification into a discord message.
func renderNotification(n *leveling.Notification, levels *leveling.LevelTable) *discordgo.MessageSend {
	switch n.Kind {
	case leveling.NotifyWelcome:
		return &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{{
			Title: "✅ Welcome to QuestBot!",
			Description: fmt.Sprintf("%s has opted into the QuestBot system!\n"+
				"You can now earn XP, complete quests, and appear on the leaderboard.", mention(n.MemberID)),
			Color: colorSuccess,
		}}}
	case leveling.NotifyQuestCompleted:
		title := ""
		if n.Quest != nil {
			title = n.Quest.Title
		}
		return &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{{
			Title: "Quest Completed!",
			Description: fmt.Sprintf("%s completed: **%s**\n+%s XP (Total: %s XP, Level %d)%s",
				mention(n.MemberID), title, number(n.Exp), number(n.TotalExp), n.Level, levelSuffix(n)),
			Color: colorSuccess,
		}}}
	case leveling.NotifyLevelChanged:
		title, color := "⭐ Level Up!", colorGold
		if !n.LevelUp() {
			title, color = "📉 Level Changed", colorWarn
		}
		return &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{{
			Title: title,
			Description: fmt.Sprintf("%s is now **Level %d** (Total: %s XP)",
				mention(n.MemberID), n.Level, number(n.TotalExp)),
			Color: color,
		}}}
	case leveling.NotifyRoleExp:
		title, color, kind := "🏅 Role Gained!", colorInfo, "XP"
		if n.Streak {
			title, color, kind = "🔥 Streak Role Gained!", colorStreak, "Streak XP"
		}
		return &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{{
			Title: title,
			Description: fmt.Sprintf("%s gained **%s** role!\n+%s %s (Total: %s XP, Level %d)",
				mention(n.MemberID), n.RoleName, number(n.Exp), kind, number(n.TotalExp), n.Level),
			Color: color,
		}}}
	case leveling.NotifyQuestPosted:
		return renderQuest(n)
	case leveling.NotifyOptInPrompt:
		return &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{{
			Title: "🤖 QuestBot Opt-In",
			Description: "React with ✅ to join the QuestBot system and start earning XP!\n\n" +
				"**What you get:**\n• Complete quests for XP\n• Earn XP from badge and streak roles\n" +
				"• Level roles from Level 1 to Level 10\n• A spot on the leaderboard",
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Level System", Value: levelRequirements(levels)},
			},
			Footer: &discordgo.MessageEmbedFooter{Text: "You can opt in at any time by reacting below"},
			Color:  colorInfo,
		}}}
	case leveling.NotifyConfirmQuestDeletion:
		return &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{{
			Title: "⚠️ Confirm Quest Deletion",
			Description: fmt.Sprintf("%s, this will delete **%d** quest(s) and their messages.\n\n"+
				"React with ✅ to confirm or ❌ to cancel.", mention(n.MemberID), n.Count),
			Footer: &discordgo.MessageEmbedFooter{Text: "This prompt expires in 30 seconds"},
			Color:  colorWarn,
		}}}
	}
	return &discordgo.MessageSend{Content: n.Kind.String()}
}

func renderQuest(n *leveling.Notification) *discordgo.MessageSend {
	msg := &discordgo.MessageSend{}
	if n.PingRoleID != "" {
		msg.Content = fmt.Sprintf("🔔 %s - New quest available!", roleMention(n.PingRoleID))
		msg.AllowedMentions = &discordgo.MessageAllowedMentions{Roles: []string{n.PingRoleID}}
	}
	embed := &discordgo.MessageEmbed{
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "💰 Reward", Value: fmt.Sprintf("%s XP", number(n.Exp)), Inline: true},
			{Name: "📝 How to Complete", Value: "React with ✅ below", Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "React with ✅ to complete this quest • Must be opted-in to earn XP"},
	}
	if n.Quest != nil {
		embed.Title = "🏆 " + n.Quest.Title
		embed.Description = n.Quest.Body
	}
	msg.Embeds = []*discordgo.MessageEmbed{embed}
	return msg
}

// standingEmbed renders checkXP for one member.
func standingEmbed(s *leveling.Standing) *discordgo.MessageEmbed {
	b := s.Breakdown
	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("📊 %s's XP Stats", s.MemberName),
		Color: colorSuccess,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "💰 Total XP", Value: number(b.Total()) + " XP", Inline: true},
			{Name: "⭐ Current Level", Value: leveling.MarkerName(b.Level), Inline: true},
			{Name: "🏆 Quest XP", Value: number(b.Base) + " XP", Inline: true},
			{Name: "🔥 Streak XP", Value: number(b.Streak) + " XP", Inline: true},
			{Name: "🎖️ Badge XP", Value: number(b.Badge+b.BadgeName) + " XP", Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Quest XP: completed quests and manual grants • Streak XP: gained streak roles • Badge XP: current badge roles",
		},
	}
	if s.NextThreshold == 0 {
		embed.Fields = append(embed.Fields,
			&discordgo.MessageEmbedField{Name: "📈 Progress", Value: "MAX", Inline: true},
			&discordgo.MessageEmbedField{Name: "📈 Level Progress", Value: fmt.Sprintf("`%s` 100%%", progressBar(100))},
		)
		return embed
	}
	needed := s.NextThreshold - b.Total()
	if needed < 0 {
		needed = 0
	}
	embed.Fields = append(embed.Fields,
		&discordgo.MessageEmbedField{Name: "🎯 XP to Next Level", Value: number(needed) + " XP needed", Inline: true},
		&discordgo.MessageEmbedField{
			Name:  "📈 Level Progress",
			Value: fmt.Sprintf("`%s` %d%%", progressBar(s.Progress), s.Progress),
		},
	)
	if b.Degraded {
		embed.Footer.Text = "Role XP is temporarily unavailable, showing quest XP only"
	}
	return embed
}

var medals = []string{"🥇", "🥈", "🥉"}

func leaderboardEmbed(top []*leveling.Standing, levels *leveling.LevelTable) *discordgo.MessageEmbed {
	if len(top) == 0 {
		return &discordgo.MessageEmbed{
			Title: "📊 XP Leaderboard",
			Description: "No opted-in users found yet!\n" +
				"Ask an admin to post an opt-in message, then react with ✅ to join.",
			Color: colorGold,
		}
	}
	embed := &discordgo.MessageEmbed{
		Title:       "🏆 XP Leaderboard",
		Description: fmt.Sprintf("Top %d Opted-In Quest Completers", len(top)),
		Color:       colorGold,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Only opted-in users appear on this leaderboard"},
	}
	for i, s := range top {
		medal := fmt.Sprintf("#%d", i+1)
		if i < len(medals) {
			medal = medals[i]
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   fmt.Sprintf("%s %s", medal, leveling.MarkerName(s.Level())),
			Value:  fmt.Sprintf("@%s\n%s XP", s.MemberName, number(s.Total())),
			Inline: true,
		})
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  "Level System",
		Value: "**Level Requirements:**\n" + levelRequirements(levels),
	})
	return embed
}

func resultEmbed(title, description string, color int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{Title: title, Description: description, Color: color, Author: questbotAuthor}
}

func errorEmbed(title, description string) *discordgo.MessageEmbed {
	return resultEmbed("❌ "+title, description, colorError)
}
