package player

import "time"

// Track is a resolved, playable item. It is never mutated after resolution.
type Track struct {
	Title     string
	StreamURL string
	SourceURL string

	Uploader    string
	Duration    time.Duration
	Thumbnail   string
	RequestedBy string
}

type State int

const (
	StateIdle State = iota
	StateWaiting
	StateConnecting
	StatePlaying
	StateAwaitingCompletion
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateConnecting:
		return "connecting"
	case StatePlaying:
		return "playing"
	case StateAwaitingCompletion:
		return "awaiting-completion"
	default:
		return "unknown"
	}
}
