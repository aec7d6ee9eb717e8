package config

import (
	"os"
	"strconv"
)

type envVar struct {
	name  string
	desc  string
	apply func(*Config, string)
}

var supportedEnvVars = []envVar{
	{
		// Only here for documentation purposes.  Does not override any values in the config as this environment variable
		// points to where the config should be loaded.  It is handled prior to loading the config.
		name:  "HIBIKI_CONFIG_PATH",
		desc:  "Sets the path to the config file.  Default: OS-specific config directory",
		apply: func(c *Config, s string) {}, // Special case, no-op
	},
	{
		name:  "HIBIKI_CONFIG_CATALOG_API",
		desc:  "Sets the catalog backend.  One of `anilist` or `jikan`.  Default: anilist",
		apply: func(c *Config, s string) { c.Catalog.API = s },
	},
	{
		name:  "HIBIKI_CONFIG_PROVIDER_NAME",
		desc:  "Sets the default scraping provider.  Default: allanime",
		apply: func(c *Config, s string) { c.Provider.Name = s },
	},
	{
		name:  "HIBIKI_CONFIG_PLAYER_TYPE",
		desc:  "Sets the video player type.  One of `mpv`, `vlc` or `syncplay`.  Default: mpv",
		apply: func(c *Config, s string) { c.Player.Type = s },
	},
	{
		name:  "HIBIKI_CONFIG_PLAYER_PATH",
		desc:  "Sets the path to a video player binary.  Default: mpv",
		apply: func(c *Config, s string) { c.Player.Path = s },
	},
	{
		name:  "HIBIKI_CONFIG_PLAYER_ARGS",
		desc:  "Sets additional video player arguments.  Default: None",
		apply: func(c *Config, s string) { c.Player.Args = s },
	},
	{
		name:  "HIBIKI_CONFIG_PLAYER_TRANSLATION_TYPE",
		desc:  "Sets the preferred translation type.  One of `sub` or `dub`.  Default: sub",
		apply: func(c *Config, s string) { c.Player.TranslationType = s },
	},
	{
		name:  "HIBIKI_CONFIG_DOWNLOADS_DIR",
		desc:  "Sets the directory downloaded episodes are written under.  Default: OS videos directory",
		apply: func(c *Config, s string) { c.Downloads.Dir = s },
	},
	{
		name: "HIBIKI_CONFIG_DOWNLOADS_MAX_CONCURRENT",
		desc: "Sets the maximum number of concurrent downloads.  Default: 3",
		apply: func(c *Config, s string) {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				c.Downloads.MaxConcurrentDownloads = n
			}
		},
	},
	{
		name:  "HIBIKI_CONFIG_LOGGING_LEVEL",
		desc:  "Sets the logging level.  One of: trace, debug, info, warn, error.  Default: info",
		apply: func(c *Config, s string) { c.Logging.Level = s },
	},
	{
		name:  "HIBIKI_CONFIG_LOGGING_FILE_PATH",
		desc:  "Sets the logging file path.  Default: OS-specific",
		apply: func(c *Config, s string) { c.Logging.FilePath = s },
	},
}

func applyEnvVarOverrides(c *Config) {
	for _, envVar := range supportedEnvVars {
		if value := os.Getenv(envVar.name); value != "" {
			envVar.apply(c, value)
		}
	}
}
