package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sonroyaalmerol/jukebot/internal/autocomplete"
	"github.com/sonroyaalmerol/jukebot/internal/config"
	"github.com/sonroyaalmerol/jukebot/internal/handlers"
	"github.com/sonroyaalmerol/jukebot/internal/repository"
	"github.com/sonroyaalmerol/jukebot/internal/search"
	"github.com/sonroyaalmerol/jukebot/internal/spotify"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	setupLogging(cfg)

	db, err := repository.OpenDB(cfg.DataDir)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	settings := repository.NewSettingsService(repository.NewRepo(db), cfg.CommandPrefix)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	resolverOpts := []search.Option{}
	suggester := autocomplete.NewSuggester(nil)
	if cfg.SpotifyEnabled() {
		sp := spotify.NewClientCredentials(ctx, cfg.SpotifyClientID, cfg.SpotifyClientSecret)
		resolverOpts = append(resolverOpts, search.WithSpotify(sp))
		suggester = autocomplete.NewSuggester(sp)
		slog.Info("spotify support enabled")
	}
	resolver := search.NewResolver(cfg.SearchWorkers, resolverOpts...)

	bot := handlers.NewBot(cfg, settings, resolver, suggester)
	if err := bot.Run(ctx); err != nil {
		log.Fatal(err)
	}
}

func setupLogging(cfg *config.Config) {
	level, err := cfg.SlogLevel()
	if err != nil {
		log.Fatal(err)
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(cfg.LogFormat, "json") {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}
