package config

type Config struct {
	DiscordToken          string `env:"DISCORD_TOKEN,notEmpty"`
	CommandPrefix         string `env:"COMMAND_PREFIX" envDefault:"!"`
	DataDir               string `env:"DATA_DIR" envDefault:"./data"`
	SpotifyClientID       string `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret   string `env:"SPOTIFY_CLIENT_SECRET"`
	RegisterCommandsOnBot bool   `env:"REGISTER_COMMANDS_ON_BOT" envDefault:"false"`
	BotActivity           string `env:"BOT_ACTIVITY" envDefault:"music"`
	SearchWorkers         int    `env:"SEARCH_WORKERS" envDefault:"8"`
	QueueDisplayLimit     int    `env:"QUEUE_DISPLAY_LIMIT" envDefault:"10"`
	// commands per second per user
	CommandRate  float64 `env:"COMMAND_RATE" envDefault:"1"`
	CommandBurst int     `env:"COMMAND_BURST" envDefault:"5"`
	LogLevel     string  `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string  `env:"LOG_FORMAT" envDefault:"text"` // text/json
}

// SpotifyEnabled reports whether both Spotify credentials are set.
func (c *Config) SpotifyEnabled() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != ""
}
