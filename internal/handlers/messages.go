package handlers

import (
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// parseCommand splits "<prefix>name args" into its parts. Command names are
// case-insensitive.
func parseCommand(content, prefix string) (name, args string, ok bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(content, prefix))
	if rest == "" {
		return "", "", false
	}
	name, args, _ = strings.Cut(rest, " ")
	return strings.ToLower(name), strings.TrimSpace(args), true
}

type channelSender struct {
	s         *discordgo.Session
	channelID string
}

func (c *channelSender) Send(content string) {
	if _, err := c.s.ChannelMessageSend(c.channelID, content); err != nil {
		slog.Warn("send message failed", "channelID", c.channelID, "err", err)
	}
}

func (c *channelSender) SendEmbed(embed *discordgo.MessageEmbed) {
	if _, err := c.s.ChannelMessageSendEmbed(c.channelID, embed); err != nil {
		slog.Warn("send embed failed", "channelID", c.channelID, "err", err)
	}
}

// messageReplier answers a prefix command in the channel it came from.
type messageReplier struct {
	*channelSender
}

func (r messageReplier) Reply(content string)                     { r.Send(content) }
func (r messageReplier) ReplyEmbed(embed *discordgo.MessageEmbed) { r.SendEmbed(embed) }
func (r messageReplier) Ack()                                     {}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	prefix := b.settings.Prefix(b.ctx, m.GuildID)
	name, args, ok := parseCommand(m.Content, prefix)
	if !ok || !Known(name) {
		return
	}

	out := &channelSender{s: s, channelID: m.ChannelID}
	b.cmd.Execute(b.ctx, Request{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
		Command:   name,
		Args:      args,
		Prefix:    prefix,
		CanManage: canManage(s, m.Author.ID, m.ChannelID),
		Reply:     messageReplier{out},
		Channel:   out,
	})
}

func canManage(s *discordgo.Session, userID, channelID string) bool {
	perms, err := s.State.UserChannelPermissions(userID, channelID)
	if err != nil {
		perms, err = s.UserChannelPermissions(userID, channelID)
		if err != nil {
			slog.Debug("permission lookup failed", "userID", userID, "channelID", channelID, "err", err)
			return false
		}
	}
	return hasManage(perms)
}

func hasManage(perms int64) bool {
	return perms&discordgo.PermissionAdministrator != 0 || perms&discordgo.PermissionManageGuild != 0
}
