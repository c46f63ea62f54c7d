package ui

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/jukebot/internal/player"
	"github.com/sonroyaalmerol/jukebot/internal/repository"
	"github.com/sonroyaalmerol/jukebot/internal/utils"
)

const (
	colorPlaying  = 0x006400
	colorHelp     = 0x5865F2 // blurple
	colorSettings = 0x4F545C
)

func trackLink(t player.Track) string {
	title := utils.EscapeMd(t.Title)
	if t.SourceURL == "" {
		return title
	}
	return fmt.Sprintf("[%s](%s)", title, t.SourceURL)
}

// NowPlayingEmbed announces t when a guild wants rich announcements.
func NowPlayingEmbed(t player.Track) *discordgo.MessageEmbed {
	desc := fmt.Sprintf("**%s**\n`[ %s ]`", trackLink(t), utils.PrettyDuration(t.Duration))
	if t.RequestedBy != "" {
		desc += fmt.Sprintf("\nRequested by: <@%s>", t.RequestedBy)
	}
	embed := &discordgo.MessageEmbed{
		Title:       "🎶 Now Playing",
		Description: desc,
		Color:       colorPlaying,
	}
	if t.Uploader != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "Source: " + t.Uploader}
	}
	if t.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: t.Thumbnail}
	}
	return embed
}

func HelpEmbed(prefix string) *discordgo.MessageEmbed {
	field := func(name, value string, inline bool) *discordgo.MessageEmbedField {
		return &discordgo.MessageEmbedField{Name: prefix + name, Value: value, Inline: inline}
	}
	return &discordgo.MessageEmbed{
		Title: "🎵 Bot Commands",
		Color: colorHelp,
		Fields: []*discordgo.MessageEmbedField{
			field("play <query>", "Search and play audio from YouTube or a Spotify track link", false),
			field("pause", "Pause the current track", true),
			field("resume", "Resume paused track", true),
			field("skip", "Skip current track", true),
			field("stop", "Stop and clear queue", true),
			field("queue", "Show current queue", true),
			field("join", "Force bot to join voice", true),
			field("leave", "Force bot to disconnect", true),
			field("config [prefix <p> | announce on|off]", "Show or change server settings", false),
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "All commands are also available as slash commands."},
	}
}

func SettingsEmbed(s repository.Settings, effectivePrefix string) *discordgo.MessageEmbed {
	announce := "off"
	if s.AnnounceNowPlaying {
		announce = "on"
	}
	return &discordgo.MessageEmbed{
		Title: "⚙️ Server Settings",
		Color: colorSettings,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Prefix", Value: fmt.Sprintf("`%s`", effectivePrefix), Inline: true},
			{Name: "Now-playing embeds", Value: announce, Inline: true},
		},
	}
}
