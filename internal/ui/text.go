package ui

import (
	"fmt"
	"strings"

	"github.com/sonroyaalmerol/jukebot/internal/search"
	"github.com/sonroyaalmerol/jukebot/internal/utils"
)

const (
	MsgUserNotInVoice   = "❌ You must be in a voice channel first!"
	MsgJoinFailed       = "❌ Failed to join voice channel"
	MsgReconnected      = "🔄 Reconnected to voice."
	MsgReconnectFailed  = "❌ Disconnected and unable to reconnect."
	MsgPlaybackSkipped  = "⚠️ Playback error - skipping track"
	MsgSkipped          = "⏭️ Skipped current track"
	MsgNothingPlaying   = "⚠️ Nothing is playing"
	MsgPaused           = "⏸️ Paused"
	MsgResumed          = "▶️ Resumed"
	MsgNotPaused        = "⚠️ Not paused"
	MsgStopped          = "🛑 Stopped and cleared queue"
	MsgQueueEmpty       = "📭 Queue is empty"
	MsgLeft             = "👋 Left voice channel"
	MsgNotInVoice       = "⚠️ Not in a voice channel"
	MsgMissingQuery     = "❌ Tell me what to play."
	MsgRateLimited      = "⏳ Slow down a little."
	MsgManageGuildOnly  = "🔒 You need the Manage Server permission to change settings."
	MsgSettingsFailed   = "❗ Could not save settings."
	MsgUnknownCommand   = "❓ Unknown command."
	MsgAnnounceUsage    = "Usage: `config announce on|off`"
	MsgPrefixUsage      = "Usage: `config prefix <prefix>` (1-5 characters, no spaces)"
	MsgUnexpectedSearch = "❗ Unexpected error occurred."
)

func ChannelConflict(prefix string) string {
	return fmt.Sprintf("⚠️ I'm in another voice channel. Use `%sleave` first.", prefix)
}

func Joined(channelName string) string {
	return fmt.Sprintf("✅ Joined %s!", channelName)
}

func NowPlaying(title string) string {
	return fmt.Sprintf("🎶 Now playing: **%s**", utils.EscapeMd(title))
}

func AddedToQueue(title string) string {
	return fmt.Sprintf("➕ Added to queue: **%s**", utils.EscapeMd(title))
}

func ErrorPlaying(title string) string {
	return fmt.Sprintf("❌ Error playing: **%s**", utils.EscapeMd(title))
}

func PrefixChanged(prefix string) string {
	return fmt.Sprintf("✅ Command prefix is now `%s`", prefix)
}

func AnnounceChanged(on bool) string {
	if on {
		return "✅ Now-playing announcements enabled"
	}
	return "✅ Now-playing announcements disabled"
}

// QueueText lists the first limit titles, numbered from 1, and how many
// more follow.
func QueueText(titles []string, limit int) string {
	if len(titles) == 0 {
		return MsgQueueEmpty
	}
	if limit <= 0 {
		limit = len(titles)
	}
	shown := titles
	if len(shown) > limit {
		shown = shown[:limit]
	}

	var b strings.Builder
	b.WriteString("📜 Current queue:\n")
	for i, title := range shown {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, utils.Truncate(title, 90))
	}
	if rest := len(titles) - len(shown); rest > 0 {
		fmt.Fprintf(&b, "\n...and %d more", rest)
	}
	return b.String()
}

func SearchFailureText(kind search.FailureKind) string {
	switch kind {
	case search.AgeRestricted:
		return "🔞 Video is age-restricted."
	case search.DRMProtected:
		return "🔒 DRM-protected video cannot be played."
	case search.NotFound:
		return "❌ Could not retrieve video. Try another query."
	default:
		return MsgUnexpectedSearch
	}
}
