package handlers

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/jukebot/internal/config"
	"github.com/sonroyaalmerol/jukebot/internal/player"
)

type Suggester interface {
	Choices(ctx context.Context, query string, limit int) []*discordgo.ApplicationCommandOptionChoice
}

type Bot struct {
	cfg       *config.Config
	settings  SettingsStore
	resolver  Resolver
	suggester Suggester

	// set by Run
	ctx context.Context
	pm  *player.PlayerManager
	cmd *CommandHandler
}

func NewBot(cfg *config.Config, settings SettingsStore, resolver Resolver, suggester Suggester) *Bot {
	return &Bot{cfg: cfg, settings: settings, resolver: resolver, suggester: suggester}
}

// Run connects to the gateway and serves commands until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + b.cfg.DiscordToken)
	if err != nil {
		return err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	voice := &discordVoice{s: dg}
	b.ctx = ctx
	b.pm = player.NewPlayerManager(ctx, voice, voice)
	b.cmd = NewCommandHandler(b.cfg, b.pm, b.resolver, b.settings, voice)

	dg.AddHandler(b.onReady)

	// If registering per-guild, register on new guilds too
	dg.AddHandler(func(s *discordgo.Session, g *discordgo.GuildCreate) {
		if b.cfg.RegisterCommandsOnBot {
			return
		}
		if err := b.RegisterCommands(s, s.State.User.ID, g.ID); err != nil {
			slog.Error("register guild commands on join", "guildID", g.ID, "err", err)
		}
	})

	dg.AddHandler(b.onInteractionCreate)
	dg.AddHandler(b.onMessageCreate)
	dg.AddHandler(b.onVoiceStateUpdate)

	if err := dg.Open(); err != nil {
		return err
	}
	defer dg.Close()

	<-ctx.Done()
	slog.Info("shutting down", "guilds", b.pm.Len())
	b.pm.CleanupAll()
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	slog.Info("logged in", "user", r.User.Username, "guilds", len(r.Guilds))
	if err := s.UpdateListeningStatus(b.cfg.BotActivity); err != nil {
		slog.Warn("set activity failed", "err", err)
	}

	appID := r.User.ID
	if b.cfg.RegisterCommandsOnBot {
		if err := b.RegisterCommands(s, appID, ""); err != nil {
			slog.Error("register global commands", "err", err)
		}
		return
	}

	var wg sync.WaitGroup
	for _, g := range r.Guilds {
		wg.Add(1)
		go func(guildID string) {
			defer wg.Done()
			if err := b.RegisterCommands(s, appID, guildID); err != nil {
				slog.Error("register guild commands", "guildID", guildID, "err", err)
			}
		}(g.ID)
	}
	wg.Wait()

	if _, err := s.ApplicationCommandBulkOverwrite(appID, "", []*discordgo.ApplicationCommand{}); err != nil {
		slog.Error("clear global commands", "err", err)
	}
}

// onVoiceStateUpdate cleans up a guild whose voice connection was closed
// from outside, e.g. the bot was kicked from the channel.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if s.State.User == nil || vs.UserID != s.State.User.ID {
		return
	}
	if vs.BeforeUpdate == nil || vs.BeforeUpdate.ChannelID == "" || vs.ChannelID != "" {
		return
	}
	if p := b.pm.Peek(vs.GuildID); p != nil {
		p.HandleVoiceDisconnect(vs.BeforeUpdate.ChannelID)
	}
}
