package repository

import "database/sql"

type Repo struct {
	db *sql.DB
}

// Settings are per-guild preferences. An empty Prefix means the configured
// default.
type Settings struct {
	GuildID            string
	Prefix             string
	AnnounceNowPlaying bool
}
