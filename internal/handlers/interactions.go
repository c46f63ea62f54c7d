package handlers

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

const autocompleteLimit = 10

func slashCommands() []*discordgo.ApplicationCommand {
	guildOnly := false
	simple := func(name, desc string) *discordgo.ApplicationCommand {
		return &discordgo.ApplicationCommand{Name: name, Description: desc, DMPermission: &guildOnly}
	}
	return []*discordgo.ApplicationCommand{
		{
			Name:         "play",
			Description:  "Search and play audio from YouTube or a Spotify track link",
			DMPermission: &guildOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "query", Description: "search terms or URL", Type: discordgo.ApplicationCommandOptionString, Required: true, Autocomplete: true},
			},
		},
		simple("pause", "Pause the current track"),
		simple("resume", "Resume paused track"),
		simple("skip", "Skip current track"),
		simple("stop", "Stop and clear queue"),
		simple("queue", "Show current queue"),
		simple("join", "Join your voice channel"),
		simple("leave", "Leave the voice channel"),
		simple("help", "List commands"),
		{
			Name:         "config",
			Description:  "Show or change server settings",
			DMPermission: &guildOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "show", Description: "Show server settings", Type: discordgo.ApplicationCommandOptionSubCommand},
				{
					Name: "prefix", Description: "Set the text command prefix", Type: discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "value", Description: "1-5 characters, no spaces", Type: discordgo.ApplicationCommandOptionString, Required: true},
					},
				},
				{
					Name: "announce", Description: "Post now-playing as an embed", Type: discordgo.ApplicationCommandOptionSubCommand,
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "enabled", Description: "on or off", Type: discordgo.ApplicationCommandOptionBoolean, Required: true},
					},
				},
			},
		},
	}
}

// RegisterCommands overwrites the application commands for guildID, or the
// global ones when guildID is empty.
func (b *Bot) RegisterCommands(s *discordgo.Session, appID, guildID string) error {
	start := time.Now()
	cmds := slashCommands()
	if _, err := s.ApplicationCommandBulkOverwrite(appID, guildID, cmds); err != nil {
		return err
	}
	slog.Info("registered application commands", "guildID", guildID, "count", len(cmds), "took", time.Since(start))
	return nil
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleSlashCommand(s, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		b.handleAutocomplete(s, i)
	default:
		slog.Debug("interaction: ignored type", "type", i.Type, "guildID", i.GuildID)
	}
}

func (b *Bot) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if data.Name != "play" {
		return
	}
	var query string
	for _, opt := range data.Options {
		if opt.Name == "query" {
			query = opt.StringValue()
		}
	}

	ctx, cancel := context.WithTimeout(b.ctx, 2500*time.Millisecond)
	defer cancel()
	choices := b.suggester.Choices(ctx, query, autocompleteLimit)
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	}); err != nil {
		slog.Debug("autocomplete respond failed", "guildID", i.GuildID, "err", err)
	}
}

func (b *Bot) handleSlashCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	r := &interactionReplier{s: s, i: i.Interaction}
	if i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		r.Reply("This command only works in a server.")
		return
	}
	if !Known(data.Name) {
		slog.Debug("unknown command", "name", data.Name, "guildID", i.GuildID)
		return
	}

	// resolving and joining can outlive the 3s interaction deadline
	r.deferReply()

	b.cmd.Execute(b.ctx, Request{
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		UserID:    i.Member.User.ID,
		Command:   data.Name,
		Args:      slashArgs(data),
		Prefix:    b.settings.Prefix(b.ctx, i.GuildID),
		CanManage: hasManage(i.Member.Permissions),
		Reply:     r,
		Channel:   &channelSender{s: s, channelID: i.ChannelID},
	})
}

// slashArgs flattens slash options into the text-command argument form.
func slashArgs(data discordgo.ApplicationCommandInteractionData) string {
	var parts []string
	for _, opt := range data.Options {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionSubCommand:
			parts = append(parts, opt.Name)
			for _, sub := range opt.Options {
				parts = append(parts, optionText(sub))
			}
		default:
			parts = append(parts, optionText(opt))
		}
	}
	return strings.Join(parts, " ")
}

func optionText(opt *discordgo.ApplicationCommandInteractionDataOption) string {
	if opt.Type == discordgo.ApplicationCommandOptionBoolean {
		if opt.BoolValue() {
			return "on"
		}
		return "off"
	}
	return opt.StringValue()
}

// interactionReplier answers a slash command, editing the deferred response
// once one was sent.
type interactionReplier struct {
	s        *discordgo.Session
	i        *discordgo.Interaction
	deferred bool
}

func (r *interactionReplier) deferReply() {
	if err := r.s.InteractionRespond(r.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		slog.Warn("defer reply failed", "guildID", r.i.GuildID, "err", err)
		return
	}
	r.deferred = true
}

func (r *interactionReplier) Reply(content string) {
	r.respond(&discordgo.InteractionResponseData{Content: content})
}

func (r *interactionReplier) ReplyEmbed(embed *discordgo.MessageEmbed) {
	r.respond(&discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}})
}

func (r *interactionReplier) Ack() {
	if !r.deferred {
		return
	}
	if err := r.s.InteractionResponseDelete(r.i); err != nil {
		slog.Debug("delete deferred reply failed", "guildID", r.i.GuildID, "err", err)
	}
}

func (r *interactionReplier) respond(data *discordgo.InteractionResponseData) {
	if r.deferred {
		edit := &discordgo.WebhookEdit{}
		if data.Content != "" {
			edit.Content = &data.Content
		}
		if len(data.Embeds) > 0 {
			edit.Embeds = &data.Embeds
		}
		if _, err := r.s.InteractionResponseEdit(r.i, edit); err != nil {
			slog.Warn("edit reply failed", "guildID", r.i.GuildID, "err", err)
		}
		return
	}
	if err := r.s.InteractionRespond(r.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}); err != nil {
		slog.Warn("reply failed", "guildID", r.i.GuildID, "err", err)
	}
}
