package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestConfig points all config and data paths at temp directories so the
// tests never touch a real user config
func setupTestConfig(t *testing.T) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("HIBIKI_CONFIG_PATH", configPath)
	t.Setenv("HIBIKI_DATA_DIR", t.TempDir())
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("XDG_VIDEOS_DIR", t.TempDir())

	return configPath
}

func loadConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestConfigIntegration(t *testing.T) {
	t.Run("LoadDefaultConfig", func(t *testing.T) {
		configPath := setupTestConfig(t)
		cfg := loadConfig(t)

		assert.Equal(t, "anilist", cfg.Catalog.API)
		assert.Equal(t, "allanime", cfg.Provider.Name)
		assert.Equal(t, "mpv", cfg.Player.Type)
		assert.Equal(t, "sub", cfg.Player.TranslationType)
		assert.Equal(t, "1080", cfg.Player.Quality)
		assert.True(t, cfg.Player.UseIPC)
		assert.Equal(t, float64(80), cfg.Tracking.EpisodeCompleteAt)
		assert.Equal(t, 3, cfg.Downloads.MaxConcurrentDownloads)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.NotEmpty(t, cfg.Logging.FilePath)
		assert.NotEmpty(t, cfg.Storage.DataDir)

		// A default config file should have been written
		_, err := os.Stat(configPath)
		require.NoError(t, err)

		// Dynamic values are resolved at runtime and must not be persisted
		saved, err := loadFromDisk(configPath)
		require.NoError(t, err)
		assert.Empty(t, saved.Logging.FilePath)
		assert.Empty(t, saved.Storage.DataDir)
		assert.Empty(t, saved.Downloads.Dir)
	})

	t.Run("SaveAndLoadConfig", func(t *testing.T) {
		configPath := setupTestConfig(t)

		custom := &Config{
			Catalog:  CatalogConfig{API: "jikan"},
			Provider: ProviderConfig{Name: "nyaa"},
			Player: PlayerConfig{
				Type:            "vlc",
				Path:            "/usr/bin/vlc",
				Args:            "--fullscreen",
				TranslationType: "dub",
				Quality:         "720",
			},
			Tracking: TrackingConfig{
				PreferredTracker:  "remote",
				EpisodeCompleteAt: 90,
			},
			Logging: LoggingConfig{
				Level:    "error",
				FilePath: "/var/log/hibiki.log",
			},
		}
		require.NoError(t, save(custom, configPath))

		cfg := loadConfig(t)
		assert.Equal(t, "jikan", cfg.Catalog.API)
		assert.Equal(t, "nyaa", cfg.Provider.Name)
		assert.Equal(t, "vlc", cfg.Player.Type)
		assert.Equal(t, "/usr/bin/vlc", cfg.Player.Path)
		assert.Equal(t, "--fullscreen", cfg.Player.Args)
		assert.Equal(t, "dub", cfg.Player.TranslationType)
		assert.Equal(t, "720", cfg.Player.Quality)
		assert.Equal(t, "remote", cfg.Tracking.PreferredTracker)
		assert.Equal(t, float64(90), cfg.Tracking.EpisodeCompleteAt)
		assert.Equal(t, "error", cfg.Logging.Level)
		assert.Equal(t, "/var/log/hibiki.log", cfg.Logging.FilePath)
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		configPath := setupTestConfig(t)
		require.NoError(t, os.WriteFile(configPath, []byte("invalid: yaml: ["), 0600))

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("EnvironmentVariableOverrides", func(t *testing.T) {
		setupTestConfig(t)

		t.Setenv("HIBIKI_CONFIG_CATALOG_API", "jikan")
		t.Setenv("HIBIKI_CONFIG_PROVIDER_NAME", "animepahe")
		t.Setenv("HIBIKI_CONFIG_PLAYER_TYPE", "vlc")
		t.Setenv("HIBIKI_CONFIG_PLAYER_TRANSLATION_TYPE", "dub")
		t.Setenv("HIBIKI_CONFIG_DOWNLOADS_MAX_CONCURRENT", "5")
		t.Setenv("HIBIKI_CONFIG_LOGGING_LEVEL", "warn")

		cfg := loadConfig(t)
		assert.Equal(t, "jikan", cfg.Catalog.API)
		assert.Equal(t, "animepahe", cfg.Provider.Name)
		assert.Equal(t, "vlc", cfg.Player.Type)
		assert.Equal(t, "dub", cfg.Player.TranslationType)
		assert.Equal(t, 5, cfg.Downloads.MaxConcurrentDownloads)
		assert.Equal(t, "warn", cfg.Logging.Level)

		// Overrides are applied per load and never written back to disk
		t.Setenv("HIBIKI_CONFIG_LOGGING_LEVEL", "")
		cfg = loadConfig(t)
		assert.Equal(t, "info", cfg.Logging.Level)
	})

	t.Run("InvalidNumericOverrideIsIgnored", func(t *testing.T) {
		setupTestConfig(t)
		t.Setenv("HIBIKI_CONFIG_DOWNLOADS_MAX_CONCURRENT", "lots")

		cfg := loadConfig(t)
		assert.Equal(t, 3, cfg.Downloads.MaxConcurrentDownloads)
	})

	t.Run("ModifyConfig", func(t *testing.T) {
		setupTestConfig(t)
		cfg := loadConfig(t)
		assert.Equal(t, "allanime", cfg.Provider.Name)

		require.NoError(t, UpdateConfig(func(c *Config) {
			c.Provider.Name = "hianime"
		}))

		cfg = loadConfig(t)
		assert.Equal(t, "hianime", cfg.Provider.Name)
	})
}

func TestStorageDirsDeriveFromDataDir(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{DataDir: "/data/hibiki"}}

	assert.Equal(t, filepath.Join("/data/hibiki", "registry"), cfg.RegistryDir())
	assert.Equal(t, filepath.Join("/data/hibiki", "sessions"), cfg.SessionsDir())
	assert.Equal(t, filepath.Join("/data/hibiki", "auth"), cfg.AuthDir())
}
