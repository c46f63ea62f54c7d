package player

import "errors"

var (
	// ErrUserNotInVoice is returned by EnsureVoice when the caller is in no
	// voice channel.
	ErrUserNotInVoice = errors.New("user is not in a voice channel")
	// ErrChannelConflict is returned by EnsureVoice when the guild is
	// connected to a channel other than the caller's.
	ErrChannelConflict = errors.New("already connected to another voice channel")
	// ErrConnectionFailure wraps Connector errors.
	ErrConnectionFailure = errors.New("voice connection failed")

	// ErrPlaybackStart is returned by VoiceConnection.Play when the
	// connection refuses to start playback.
	ErrPlaybackStart = errors.New("playback could not start")
	// ErrSourceUnavailable is returned by VoiceConnection.Play when the
	// stream URL cannot be opened.
	ErrSourceUnavailable = errors.New("stream source unavailable")
	// ErrPlaybackBackend wraps an error the connection reported through
	// the completion callback.
	ErrPlaybackBackend = errors.New("playback backend error")

	errWorkerCancelled = errors.New("worker cancelled")
)
