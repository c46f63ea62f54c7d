package utils

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var mdEscaper = strings.NewReplacer("*", "\\*", "_", "\\_", "`", "\\`", "~", "\\~", "|", "\\|")

// EscapeMd escapes characters Discord would treat as markdown.
func EscapeMd(s string) string {
	return mdEscaper.Replace(s)
}

func PrettyTime(sec int) string {
	if sec < 0 {
		sec = 0
	}
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// PrettyDuration formats d like PrettyTime, or "live" for a zero duration.
func PrettyDuration(d time.Duration) string {
	if d <= 0 {
		return "live"
	}
	return PrettyTime(int(d.Round(time.Second) / time.Second))
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	if n == 1 {
		return string(r[:1])
	}
	return string(r[:n-1]) + "…"
}
