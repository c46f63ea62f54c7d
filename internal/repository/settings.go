package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

var ErrInvalidPrefix = errors.New("prefix must be 1-5 characters without spaces")

const maxPrefixLen = 5

// SettingsService caches guild settings in memory in front of Repo.
type SettingsService struct {
	repo          *Repo
	defaultPrefix string

	mu    sync.RWMutex
	cache map[string]Settings
}

func NewSettingsService(repo *Repo, defaultPrefix string) *SettingsService {
	return &SettingsService{
		repo:          repo,
		defaultPrefix: defaultPrefix,
		cache:         make(map[string]Settings),
	}
}

// Get returns the guild's settings, or defaults when none were stored.
func (s *SettingsService) Get(ctx context.Context, guildID string) (Settings, error) {
	s.mu.RLock()
	cached, ok := s.cache[guildID]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	stored, err := s.repo.GetSettings(ctx, guildID)
	switch {
	case errors.Is(err, ErrNotFound):
		stored = &Settings{GuildID: guildID, AnnounceNowPlaying: true}
	case err != nil:
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}

	s.mu.Lock()
	s.cache[guildID] = *stored
	s.mu.Unlock()
	return *stored, nil
}

// Prefix returns the guild's command prefix, falling back to the default on
// any error.
func (s *SettingsService) Prefix(ctx context.Context, guildID string) string {
	st, err := s.Get(ctx, guildID)
	if err != nil {
		slog.Warn("settings lookup failed, using default prefix", "guildID", guildID, "err", err)
		return s.defaultPrefix
	}
	if st.Prefix == "" {
		return s.defaultPrefix
	}
	return st.Prefix
}

func (s *SettingsService) SetPrefix(ctx context.Context, guildID, prefix string) error {
	prefix = strings.TrimSpace(prefix)
	if err := validatePrefix(prefix); err != nil {
		return err
	}
	if prefix == s.defaultPrefix {
		prefix = ""
	}
	return s.update(ctx, guildID, func(st *Settings) { st.Prefix = prefix })
}

func (s *SettingsService) SetAnnounce(ctx context.Context, guildID string, on bool) error {
	return s.update(ctx, guildID, func(st *Settings) { st.AnnounceNowPlaying = on })
}

func (s *SettingsService) update(ctx context.Context, guildID string, mutate func(*Settings)) error {
	st, err := s.repo.UpsertSettings(ctx, guildID)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	mutate(st)
	if err := s.repo.UpdateSettings(ctx, st); err != nil {
		return fmt.Errorf("update settings: %w", err)
	}

	s.mu.Lock()
	s.cache[guildID] = *st
	s.mu.Unlock()
	slog.Info("guild settings updated", "guildID", guildID, "prefix", st.Prefix, "announce", st.AnnounceNowPlaying)
	return nil
}

func validatePrefix(p string) error {
	n := utf8.RuneCountInString(p)
	if n == 0 || n > maxPrefixLen {
		return ErrInvalidPrefix
	}
	for _, r := range p {
		if unicode.IsSpace(r) {
			return ErrInvalidPrefix
		}
	}
	return nil
}
