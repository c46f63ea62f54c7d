package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/jukebot/internal/config"
	"github.com/sonroyaalmerol/jukebot/internal/player"
	"github.com/sonroyaalmerol/jukebot/internal/repository"
	"github.com/sonroyaalmerol/jukebot/internal/search"
	"github.com/sonroyaalmerol/jukebot/internal/ui"
)

type Resolver interface {
	Search(ctx context.Context, query string) (player.Track, error)
}

type SettingsStore interface {
	Get(ctx context.Context, guildID string) (repository.Settings, error)
	Prefix(ctx context.Context, guildID string) string
	SetPrefix(ctx context.Context, guildID, prefix string) error
	SetAnnounce(ctx context.Context, guildID string, on bool) error
}

// Replier answers the command that is being handled.
type Replier interface {
	Reply(content string)
	ReplyEmbed(embed *discordgo.MessageEmbed)
	// Ack completes the command without a visible answer.
	Ack()
}

// ChannelSender posts to the text channel a command came from. Workers keep
// using it after the command returned.
type ChannelSender interface {
	Send(content string)
	SendEmbed(embed *discordgo.MessageEmbed)
}

type ChannelNamer interface {
	ChannelName(channelID string) string
}

// Request is one command invocation, from a prefix message or a slash
// command.
type Request struct {
	GuildID   string
	ChannelID string
	UserID    string
	Command   string
	Args      string
	// Prefix is the guild's effective prefix, used in hints.
	Prefix    string
	CanManage bool

	Reply   Replier
	Channel ChannelSender
}

type CommandHandler struct {
	cfg      *config.Config
	pm       *player.PlayerManager
	resolver Resolver
	settings SettingsStore
	names    ChannelNamer
	limiter  *userLimiter
}

func NewCommandHandler(cfg *config.Config, pm *player.PlayerManager, resolver Resolver, settings SettingsStore, names ChannelNamer) *CommandHandler {
	return &CommandHandler{
		cfg:      cfg,
		pm:       pm,
		resolver: resolver,
		settings: settings,
		names:    names,
		limiter:  newUserLimiter(cfg.CommandRate, cfg.CommandBurst),
	}
}

// Known reports whether name is a command Execute understands.
func Known(name string) bool {
	switch name {
	case "play", "pause", "resume", "skip", "stop", "queue", "join", "leave", "help", "config":
		return true
	}
	return false
}

func (h *CommandHandler) Execute(ctx context.Context, req Request) {
	if !h.limiter.Allow(req.UserID) {
		slog.Debug("command rate limited", "guildID", req.GuildID, "userID", req.UserID, "command", req.Command)
		req.Reply.Reply(ui.MsgRateLimited)
		return
	}
	slog.Debug("command", "guildID", req.GuildID, "userID", req.UserID, "command", req.Command, "args", req.Args)

	switch req.Command {
	case "play":
		h.cmdPlay(ctx, req)
	case "pause":
		h.cmdPause(req)
	case "resume":
		h.cmdResume(req)
	case "skip":
		h.cmdSkip(req)
	case "stop":
		h.cmdStop(req)
	case "queue":
		h.cmdQueue(req)
	case "join":
		h.cmdJoin(ctx, req)
	case "leave":
		h.cmdLeave(req)
	case "help":
		req.Reply.ReplyEmbed(ui.HelpEmbed(req.Prefix))
	case "config":
		h.cmdConfig(ctx, req)
	default:
		req.Reply.Reply(ui.MsgUnknownCommand)
	}
}

// ensureVoice joins the caller's channel and replies on failure.
func (h *CommandHandler) ensureVoice(ctx context.Context, p *player.Player, req Request) (string, bool) {
	channelID, err := p.EnsureVoice(ctx, req.UserID)
	switch {
	case err == nil:
		return channelID, true
	case errors.Is(err, player.ErrUserNotInVoice):
		req.Reply.Reply(ui.MsgUserNotInVoice)
	case errors.Is(err, player.ErrChannelConflict):
		req.Reply.Reply(ui.ChannelConflict(req.Prefix))
	default:
		slog.Warn("join voice failed", "guildID", req.GuildID, "userID", req.UserID, "err", err)
		req.Reply.Reply(ui.MsgJoinFailed)
	}
	return "", false
}

func (h *CommandHandler) cmdPlay(ctx context.Context, req Request) {
	query := strings.TrimSpace(req.Args)
	if query == "" {
		req.Reply.Reply(ui.MsgMissingQuery)
		return
	}

	p := h.pm.Get(req.GuildID)
	if _, ok := h.ensureVoice(ctx, p, req); !ok {
		return
	}

	track, err := h.resolver.Search(ctx, query)
	if err != nil {
		slog.Info("search failed", "guildID", req.GuildID, "userID", req.UserID, "query", query, "err", err)
		req.Reply.Reply(ui.SearchFailureText(search.KindOf(err)))
		return
	}
	track.RequestedBy = req.UserID

	pos, started := p.Enqueue(track, player.Trigger{
		UserID:   req.UserID,
		Notifier: h.notifierFor(ctx, req),
	})
	slog.Info("track queued", "guildID", req.GuildID, "userID", req.UserID, "title", track.Title, "position", pos, "startedWorker", started)
	if started {
		// the worker announces the track itself
		req.Reply.Ack()
		return
	}
	req.Reply.Reply(ui.AddedToQueue(track.Title))
}

func (h *CommandHandler) notifierFor(ctx context.Context, req Request) player.Notifier {
	embeds := true
	if st, err := h.settings.Get(ctx, req.GuildID); err == nil {
		embeds = st.AnnounceNowPlaying
	}
	return &channelNotifier{guildID: req.GuildID, out: req.Channel, embeds: embeds}
}

func (h *CommandHandler) cmdPause(req Request) {
	p := h.pm.Peek(req.GuildID)
	if p == nil || !p.Pause() {
		req.Reply.Reply(ui.MsgNothingPlaying)
		return
	}
	req.Reply.Reply(ui.MsgPaused)
}

func (h *CommandHandler) cmdResume(req Request) {
	p := h.pm.Peek(req.GuildID)
	if p == nil || !p.Resume() {
		req.Reply.Reply(ui.MsgNotPaused)
		return
	}
	req.Reply.Reply(ui.MsgResumed)
}

func (h *CommandHandler) cmdSkip(req Request) {
	p := h.pm.Peek(req.GuildID)
	if p == nil || !p.Skip() {
		req.Reply.Reply(ui.MsgNothingPlaying)
		return
	}
	req.Reply.Reply(ui.MsgSkipped)
}

func (h *CommandHandler) cmdStop(req Request) {
	if p := h.pm.Peek(req.GuildID); p != nil {
		p.Cleanup()
	}
	req.Reply.Reply(ui.MsgStopped)
}

func (h *CommandHandler) cmdQueue(req Request) {
	var titles []string
	if p := h.pm.Peek(req.GuildID); p != nil {
		titles = p.Titles()
	}
	req.Reply.Reply(ui.QueueText(titles, h.cfg.QueueDisplayLimit))
}

func (h *CommandHandler) cmdJoin(ctx context.Context, req Request) {
	channelID, ok := h.ensureVoice(ctx, h.pm.Get(req.GuildID), req)
	if !ok {
		return
	}
	req.Reply.Reply(ui.Joined(h.names.ChannelName(channelID)))
}

func (h *CommandHandler) cmdLeave(req Request) {
	p := h.pm.Peek(req.GuildID)
	if p == nil || !p.HasConnection() {
		req.Reply.Reply(ui.MsgNotInVoice)
		return
	}
	p.Cleanup()
	req.Reply.Reply(ui.MsgLeft)
}

func (h *CommandHandler) cmdConfig(ctx context.Context, req Request) {
	sub, value, _ := strings.Cut(strings.TrimSpace(req.Args), " ")
	value = strings.TrimSpace(value)

	if sub == "" || sub == "show" {
		st, err := h.settings.Get(ctx, req.GuildID)
		if err != nil {
			slog.Error("get settings failed", "guildID", req.GuildID, "err", err)
			req.Reply.Reply(ui.MsgSettingsFailed)
			return
		}
		req.Reply.ReplyEmbed(ui.SettingsEmbed(st, h.settings.Prefix(ctx, req.GuildID)))
		return
	}
	if !req.CanManage {
		req.Reply.Reply(ui.MsgManageGuildOnly)
		return
	}

	switch strings.ToLower(sub) {
	case "prefix":
		err := h.settings.SetPrefix(ctx, req.GuildID, value)
		switch {
		case errors.Is(err, repository.ErrInvalidPrefix):
			req.Reply.Reply(ui.MsgPrefixUsage)
		case err != nil:
			slog.Error("set prefix failed", "guildID", req.GuildID, "err", err)
			req.Reply.Reply(ui.MsgSettingsFailed)
		default:
			req.Reply.Reply(ui.PrefixChanged(h.settings.Prefix(ctx, req.GuildID)))
		}
	case "announce":
		on, ok := parseSwitch(value)
		if !ok {
			req.Reply.Reply(ui.MsgAnnounceUsage)
			return
		}
		if err := h.settings.SetAnnounce(ctx, req.GuildID, on); err != nil {
			slog.Error("set announce failed", "guildID", req.GuildID, "err", err)
			req.Reply.Reply(ui.MsgSettingsFailed)
			return
		}
		req.Reply.Reply(ui.AnnounceChanged(on))
	default:
		req.Reply.Reply(ui.MsgUnknownCommand)
	}
}

func parseSwitch(s string) (on, ok bool) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "enable":
		return true, true
	case "off", "false", "no", "disable":
		return false, true
	}
	return false, false
}
