package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	ytdlp "github.com/lrstanley/go-ytdlp"
	"github.com/sonroyaalmerol/jukebot/internal/player"
	"github.com/sonroyaalmerol/jukebot/internal/spotify"
	"golang.org/x/sync/semaphore"
)

var ErrEmptyQuery = errors.New("empty query")

// Extractor runs yt-dlp for one target and returns the extracted info.
type Extractor func(ctx context.Context, target string) (*ytdlp.ExtractedInfo, error)

// SpotifyTracks looks up a Spotify track by link.
type SpotifyTracks interface {
	Lookup(ctx context.Context, link string) (spotify.Track, error)
}

// Resolver turns user queries and links into playable tracks.
type Resolver struct {
	sem     *semaphore.Weighted
	extract Extractor
	spotify SpotifyTracks
}

type Option func(*Resolver)

// WithExtractor replaces the yt-dlp runner.
func WithExtractor(e Extractor) Option {
	return func(r *Resolver) { r.extract = e }
}

// WithSpotify enables Spotify track links.
func WithSpotify(s SpotifyTracks) Option {
	return func(r *Resolver) { r.spotify = s }
}

// NewResolver bounds concurrent resolutions to workers.
func NewResolver(workers int, opts ...Option) *Resolver {
	if workers < 1 {
		workers = 1
	}
	r := &Resolver{
		sem:     semaphore.NewWeighted(int64(workers)),
		extract: runYtdlp,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Search resolves query to a single track. Non-URL queries take the first
// YouTube search result. Errors are *Failure.
func (r *Resolver) Search(ctx context.Context, query string) (player.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return player.Track{}, &Failure{Kind: NotFound, Err: ErrEmptyQuery}
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return player.Track{}, &Failure{Kind: Unknown, Err: err}
	}
	defer r.sem.Release(1)

	target, err := r.target(ctx, query)
	if err != nil {
		return player.Track{}, err
	}

	start := time.Now()
	info, err := r.extract(ctx, target)
	if err != nil {
		slog.Debug("yt-dlp extraction failed", "query", query, "err", err)
		var f *Failure
		if errors.As(err, &f) {
			return player.Track{}, f
		}
		return player.Track{}, &Failure{Kind: Unknown, Err: err}
	}

	track, err := toTrack(info)
	if err != nil {
		return player.Track{}, &Failure{Kind: NotFound, Err: err}
	}
	slog.Debug("query resolved", "query", query, "title", track.Title, "took", time.Since(start))
	return track, nil
}

func (r *Resolver) target(ctx context.Context, query string) (string, error) {
	if spotify.IsSpotify(query) {
		if r.spotify == nil {
			return "", &Failure{Kind: NotFound, Err: errors.New("spotify links are not enabled")}
		}
		t, err := r.spotify.Lookup(ctx, query)
		if err != nil {
			return "", &Failure{Kind: NotFound, Err: fmt.Errorf("spotify lookup: %w", err)}
		}
		return "ytsearch1:" + t.Query(), nil
	}
	if isURL(query) {
		return query, nil
	}
	return "ytsearch1:" + query, nil
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// toTrack picks the first entry of a search result and its playable URL.
func toTrack(info *ytdlp.ExtractedInfo) (player.Track, error) {
	if info == nil {
		return player.Track{}, errors.New("no info returned")
	}
	// search results come back as a playlist, possibly empty
	if info.Entries != nil {
		var first *ytdlp.ExtractedInfo
		for _, e := range info.Entries {
			if e != nil {
				first = e
				break
			}
		}
		if first == nil {
			return player.Track{}, errors.New("no results")
		}
		info = first
	}

	stream := pickStreamURL(info)
	if stream == "" {
		return player.Track{}, errors.New("no playable format")
	}

	t := player.Track{
		Title:     str(info.Title),
		StreamURL: stream,
		SourceURL: str(info.WebpageURL),
		Uploader:  str(info.Uploader),
	}
	if t.Title == "" {
		t.Title = info.ID
	}
	if d := info.Duration; d != nil && *d > 0 {
		t.Duration = time.Duration(*d * float64(time.Second))
	}
	if n := len(info.Thumbnails); n > 0 && info.Thumbnails[n-1] != nil {
		t.Thumbnail = info.Thumbnails[n-1].URL
	}
	return t, nil
}

// pickStreamURL prefers the requested audio format, then the top-level url,
// then any http format.
func pickStreamURL(info *ytdlp.ExtractedInfo) string {
	for _, rf := range info.RequestedFormats {
		if rf != nil && strings.HasPrefix(rf.URL, "http") {
			return rf.URL
		}
	}
	if u := str(info.URL); strings.HasPrefix(u, "http") {
		return u
	}
	for i := len(info.Formats) - 1; i >= 0; i-- {
		if f := info.Formats[i]; f != nil && strings.HasPrefix(f.URL, "http") {
			return f.URL
		}
	}
	return ""
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

var installOnce sync.Once

func ensureInstalled(ctx context.Context) {
	installOnce.Do(func() {
		if _, err := ytdlp.Install(ctx, nil); err != nil {
			slog.Warn("yt-dlp install failed, relying on PATH", "err", err)
		}
	})
}

func runYtdlp(ctx context.Context, target string) (*ytdlp.ExtractedInfo, error) {
	ensureInstalled(ctx)

	res, err := ytdlp.New().
		Format("bestaudio/best").
		NoPlaylist().
		NoCheckCertificates().
		NoWarnings().
		DumpJSON().
		Run(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Failure{Kind: Unknown, Err: ctx.Err()}
		}
		msg := err.Error()
		if res != nil {
			msg += " " + res.Stderr
		}
		return nil, &Failure{Kind: classify(msg), Err: err}
	}

	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, &Failure{Kind: Unknown, Err: fmt.Errorf("parse yt-dlp json: %w", err)}
	}
	if len(infos) == 0 || infos[0] == nil {
		return nil, &Failure{Kind: NotFound, Err: errors.New("no info returned")}
	}
	return infos[0], nil
}
