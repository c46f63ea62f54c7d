package handlers

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/jukebot/internal/player"
	"github.com/sonroyaalmerol/jukebot/internal/stream"
)

// discordVoice connects players to Discord voice and answers voice state
// lookups from the session cache.
type discordVoice struct {
	s *discordgo.Session
}

func (d *discordVoice) Connect(ctx context.Context, guildID, channelID string) (player.VoiceConnection, error) {
	type result struct {
		vc  *stream.VoiceConn
		err error
	}
	ch := make(chan result, 1)
	go func() {
		vc, err := stream.Join(d.s, guildID, channelID)
		ch <- result{vc, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return r.vc, nil
	case <-ctx.Done():
		// a join that completes after we gave up must not linger
		go func() {
			if r := <-ch; r.err == nil {
				if err := r.vc.Disconnect(true); err != nil {
					slog.Warn("disconnect abandoned voice join", "guildID", guildID, "channelID", channelID, "err", err)
				}
			}
		}()
		return nil, ctx.Err()
	}
}

func (d *discordVoice) UserVoiceChannel(guildID, userID string) (string, bool) {
	vs, err := d.s.State.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return "", false
	}
	return vs.ChannelID, true
}

func (d *discordVoice) ChannelName(channelID string) string {
	if c, err := d.s.State.Channel(channelID); err == nil && c != nil && c.Name != "" {
		return c.Name
	}
	return "<#" + channelID + ">"
}
