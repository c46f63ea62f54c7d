package handlers

import (
	"log/slog"

	"github.com/sonroyaalmerol/jukebot/internal/player"
	"github.com/sonroyaalmerol/jukebot/internal/ui"
)

// channelNotifier posts worker events to the text channel of the command
// that started the worker.
type channelNotifier struct {
	guildID string
	out     ChannelSender
	embeds  bool
}

func (n *channelNotifier) TrackStarted(t player.Track) {
	if n.embeds {
		n.out.SendEmbed(ui.NowPlayingEmbed(t))
		return
	}
	n.out.Send(ui.NowPlaying(t.Title))
}

func (n *channelNotifier) TrackFailed(t player.Track, err error) {
	slog.Warn("track failed to start", "guildID", n.guildID, "title", t.Title, "err", err)
	n.out.Send(ui.ErrorPlaying(t.Title))
}

func (n *channelNotifier) TrackErrored(t player.Track, err error) {
	n.out.Send(ui.MsgPlaybackSkipped)
}

func (n *channelNotifier) Reconnected(channelID string) {
	n.out.Send(ui.MsgReconnected)
}

func (n *channelNotifier) ReconnectFailed(err error) {
	slog.Warn("worker reconnect failed", "guildID", n.guildID, "err", err)
	n.out.Send(ui.MsgReconnectFailed)
}
