package player

import "context"

// VoiceConnection is an established audio session to one voice channel.
type VoiceConnection interface {
	ChannelID() string
	// Play starts streamURL. When it returns nil, onComplete is invoked
	// exactly once, after the track finished, was stopped or failed.
	Play(streamURL string, onComplete func(err error)) error
	Pause()
	Resume()
	Stop()
	IsPlaying() bool
	IsPaused() bool
	IsConnected() bool
	Disconnect(force bool) error
}

type Connector interface {
	Connect(ctx context.Context, guildID, channelID string) (VoiceConnection, error)
}

type VoiceLocator interface {
	// UserVoiceChannel reports the voice channel the user is currently in.
	UserVoiceChannel(guildID, userID string) (channelID string, ok bool)
}

// Notifier receives the worker's user-facing events.
type Notifier interface {
	TrackStarted(t Track)
	// TrackFailed reports a track that could not start.
	TrackFailed(t Track, err error)
	// TrackErrored reports a track the backend aborted mid-playback.
	TrackErrored(t Track, err error)
	Reconnected(channelID string)
	ReconnectFailed(err error)
}

// Trigger describes the command that spawned a worker. Reconnects follow
// UserID into their current channel and worker events go to Notifier.
type Trigger struct {
	UserID   string
	Notifier Notifier
}
