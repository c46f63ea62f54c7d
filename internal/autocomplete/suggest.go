package autocomplete

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sonroyaalmerol/jukebot/internal/spotify"
	"github.com/sonroyaalmerol/jukebot/internal/utils"
)

const (
	defaultEndpoint = "https://suggestqueries.google.com/complete/search"
	// Discord caps choice names and values at 100 characters
	maxChoiceLen = 100
	// Discord shows at most 25 choices
	maxChoices = 25
)

// TrackSearcher finds Spotify tracks by free text.
type TrackSearcher interface {
	SearchTracks(ctx context.Context, q string, limit int) ([]spotify.Track, error)
}

// Suggester builds /play autocomplete choices from YouTube search
// suggestions and, when configured, Spotify tracks.
type Suggester struct {
	HTTP     *http.Client
	Endpoint string
	Spotify  TrackSearcher
}

func NewSuggester(sp TrackSearcher) *Suggester {
	return &Suggester{
		HTTP:     &http.Client{Timeout: 3 * time.Second},
		Endpoint: defaultEndpoint,
		Spotify:  sp,
	}
}

func (s *Suggester) YouTube(ctx context.Context, query string) ([]string, error) {
	u, err := url.Parse(s.Endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("client", "firefox")
	q.Set("ds", "yt")
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", utils.RandomUserAgent())

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("suggest: unexpected status %s", resp.Status)
	}

	// ["query", ["suggestion", ...], ...]
	var parsed []any
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("suggest: decode: %w", err)
	}
	if len(parsed) < 2 {
		return nil, nil
	}
	arr, ok := parsed[1].([]any)
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if str, ok := v.(string); ok && str != "" {
			out = append(out, str)
		}
	}
	return out, nil
}

// Choices returns up to limit choices. Spotify tracks take at most half of
// them. Lookup failures only shrink the list.
func (s *Suggester) Choices(ctx context.Context, query string, limit int) []*discordgo.ApplicationCommandOptionChoice {
	if limit <= 0 || limit > maxChoices {
		limit = maxChoices
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	yt, err := s.YouTube(ctx, query)
	if err != nil {
		slog.Debug("youtube suggestions failed", "query", query, "err", err)
	}

	var tracks []spotify.Track
	if s.Spotify != nil {
		tracks, err = s.Spotify.SearchTracks(ctx, query, limit/2)
		if err != nil {
			slog.Debug("spotify suggestions failed", "query", query, "err", err)
			tracks = nil
		}
	}

	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, limit)
	for _, v := range yt {
		if len(out) >= limit-len(tracks) {
			break
		}
		out = append(out, choice("YouTube: "+v, v))
	}
	for _, t := range tracks {
		if len(out) >= limit || t.URL == "" {
			continue
		}
		out = append(out, choice(fmt.Sprintf("Spotify: 🎵 %s", t.Query()), t.URL))
	}
	return out
}

func choice(name, value string) *discordgo.ApplicationCommandOptionChoice {
	return &discordgo.ApplicationCommandOptionChoice{
		Name:  utils.Truncate(name, maxChoiceLen),
		Value: utils.Truncate(value, maxChoiceLen),
	}
}
