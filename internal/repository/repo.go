package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

// UpsertSettings makes sure a row exists for guild and returns it.
func (r *Repo) UpsertSettings(ctx context.Context, guild string) (*Settings, error) {
	if _, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings(guild_id, updated_at) VALUES (?, ?)`, guild, time.Now().Unix(),
	); err != nil {
		return nil, err
	}
	return r.GetSettings(ctx, guild)
}

func (r *Repo) GetSettings(ctx context.Context, guild string) (*Settings, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT guild_id, prefix, announce_now_playing
	FROM settings WHERE guild_id = ?`, guild)

	var s Settings
	var announce int
	if err := row.Scan(&s.GuildID, &s.Prefix, &announce); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.AnnounceNowPlaying = announce != 0
	return &s, nil
}

func (r *Repo) UpdateSettings(ctx context.Context, s *Settings) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE settings SET
		  prefix=?,
		  announce_now_playing=?,
		  updated_at=?
		WHERE guild_id=?`,
		s.Prefix, boolToInt(s.AnnounceNowPlaying), time.Now().Unix(), s.GuildID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
