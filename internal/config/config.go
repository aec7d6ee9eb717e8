package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.  It is built once at startup and passed into
// each service at construction time.  Services never read configuration globals.
type Config struct {
	Catalog   CatalogConfig   `yaml:"catalog,omitempty"`
	Provider  ProviderConfig  `yaml:"provider,omitempty"`
	Player    PlayerConfig    `yaml:"player,omitempty"`
	Tracking  TrackingConfig  `yaml:"tracking,omitempty"`
	Downloads DownloadsConfig `yaml:"downloads,omitempty"`
	Worker    WorkerConfig    `yaml:"worker,omitempty"`
	Storage   StorageConfig   `yaml:"storage,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// CatalogConfig contains remote media list settings
type CatalogConfig struct {
	// API selects the catalog backend.  One of: "anilist", "jikan"
	API string `yaml:"api,omitempty"`
}

// ProviderConfig contains scraper settings
type ProviderConfig struct {
	// Default provider tag.  One of: allanime, animepahe, hianime, animeunity, yugen, nyaa
	Name string `yaml:"name,omitempty"`
}

// PlayerConfig contains media player settings
type PlayerConfig struct {
	Type            string `yaml:"type,omitempty"` // "mpv", "vlc", "syncplay"
	Path            string `yaml:"path,omitempty"`
	Args            string `yaml:"args,omitempty"`
	TranslationType string `yaml:"translation_type,omitempty"` // "sub", "dub"
	Quality         string `yaml:"quality,omitempty"`          // "360", "480", "720", "1080"
	UseIPC          bool   `yaml:"use_ipc,omitempty"`
	AutoNext        bool   `yaml:"auto_next,omitempty"`
}

// TrackingConfig contains watch history reconciliation settings
type TrackingConfig struct {
	// PreferredTracker decides which side wins when local and remote progress disagree.
	// One of: "local", "remote"
	PreferredTracker string `yaml:"preferred_tracker,omitempty"`
	// EpisodeCompleteAt is the watch completion percentage at which an episode counts as watched
	EpisodeCompleteAt float64 `yaml:"episode_complete_at,omitempty"`
	// ForceForwardTracking suppresses any remote push that would decrease progress
	ForceForwardTracking bool `yaml:"force_forward_tracking,omitempty"`
}

// DownloadsConfig contains download queue settings
type DownloadsConfig struct {
	Dir                    string `yaml:"dir,omitempty"`
	MaxConcurrentDownloads int    `yaml:"max_concurrent_downloads,omitempty"`
	MaxRetries             int    `yaml:"max_retries,omitempty"`
	// MergeSubtitles runs the ffmpeg subtitle merge after a download completes
	MergeSubtitles bool `yaml:"merge_subtitles,omitempty"`
	// CleanAfterMerge removes the original video and subtitle files after a successful merge
	CleanAfterMerge bool `yaml:"clean_after_merge,omitempty"`
}

// WorkerConfig contains background worker intervals, all in minutes
type WorkerConfig struct {
	NotificationCheckInterval   int `yaml:"notification_check_interval,omitempty"`
	DownloadCheckInterval       int `yaml:"download_check_interval,omitempty"`
	DownloadCheckFailedInterval int `yaml:"download_check_failed_interval,omitempty"`
}

// StorageConfig contains on-disk layout settings
type StorageConfig struct {
	// DataDir is the application data directory.  registry/, sessions/ and auth/ live underneath it.
	DataDir string `yaml:"data_dir,omitempty"`
}

// LoggingConfig contains log related settings
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty"`
	FilePath   string `yaml:"file_path,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
}

// RegistryDir returns the directory holding per-api registry files
func (c *Config) RegistryDir() string {
	return filepath.Join(c.Storage.DataDir, "registry")
}

// SessionsDir returns the directory holding persisted menu sessions
func (c *Config) SessionsDir() string {
	return filepath.Join(c.Storage.DataDir, "sessions")
}

// AuthDir returns the directory holding catalog credentials
func (c *Config) AuthDir() string {
	return filepath.Join(c.Storage.DataDir, "auth")
}

// Load builds a configuration struct from multiple sources using these steps:
// 1. Create a base config with default values
// 2. If no config file exists on disk, save the default config to that location
// 3. Apply 'dynamic' properties.  Dynamic properties are those that are determined at runtime, for example log file location which is different per OS.
// 4. Load & merge the config file, overwriting any defaults with user-specified values
// 5. Apply environment variable overrides
func Load() (*Config, error) {
	// 1. Start with base defaults
	cfg := createBaseDefaultConfig()

	configPath, err := getConfigPath()
	if err != nil {
		return nil, fmt.Errorf("unable to determine config file path: %w", err)
	}

	// 2. If no config file exists on disk, then write a default one
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		// If there is an error saving the default config, then still let the application startup using the defaults.
		_ = save(cfg, configPath)
	}

	// 3. Apply dynamic defaults if necessary
	applyDynamicDefaults(cfg)

	// 4. Load the config from disk and merge it into the base defaults
	fileConfig, err := loadFromDisk(configPath)
	if err != nil {
		return nil, err
	}
	// Overrides the config with any values coming from the loaded file
	if err = mergo.Merge(cfg, fileConfig, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("error merging config loaded from disk: %w", err)
	}

	// 5. Apply the environment variable overrides which take precedence
	applyEnvVarOverrides(cfg)

	return cfg, nil
}

// applyDynamicDefaults sets runtime-determined default values for any properties that haven't been explicitly configured.
// Unlike static defaults, these values might change between runs based on the environment or system configuration.
func applyDynamicDefaults(cfg *Config) {
	cfg.Logging.FilePath = defaultLogFilePath()
	cfg.Storage.DataDir = defaultDataDir()
	cfg.Downloads.Dir = defaultDownloadsDir()
}

// loadFromDisk loads the YAML config from disk and returns the unmarshalled Config
func loadFromDisk(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unable to parse config file: %w", err)
	}

	return cfg, nil
}

func save(cfg *Config, configPath string) error {
	// Create config dir if not exists
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// UpdateConfig reads the existing config, applies the update function, and saves it back to disk
func UpdateConfig(updateFn func(*Config)) error {
	configPath, err := getConfigPath()
	if err != nil {
		return fmt.Errorf("unable to determine config file path: %w", err)
	}

	cfg, err := loadFromDisk(configPath)
	if err != nil {
		return fmt.Errorf("error loading config file from disk: %w", err)
	}

	// Apply the updates
	updateFn(cfg)

	return save(cfg, configPath)
}

// getConfigPath returns the path to the config file.  Uses the environment variable override if present, else tries
// to use OS config location defaults.
func getConfigPath() (string, error) {
	configPath := os.Getenv("HIBIKI_CONFIG_PATH")
	if configPath != "" {
		return configPath, nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}

	hibikiConfigDir := filepath.Join(configDir, "hibiki")
	return filepath.Join(hibikiConfigDir, "config.yaml"), nil
}

// createBaseDefaultConfig creates a config with all default values
func createBaseDefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			API: "anilist",
		},
		Provider: ProviderConfig{
			Name: "allanime",
		},
		Player: PlayerConfig{
			Type:            "mpv",
			Path:            "mpv",
			TranslationType: "sub",
			Quality:         "1080",
			UseIPC:          true,
			AutoNext:        true,
		},
		Tracking: TrackingConfig{
			PreferredTracker:  "local",
			EpisodeCompleteAt: 80,
		},
		Downloads: DownloadsConfig{
			MaxConcurrentDownloads: 3,
			MaxRetries:             3,
		},
		Worker: WorkerConfig{
			NotificationCheckInterval:   15,
			DownloadCheckInterval:       5,
			DownloadCheckFailedInterval: 30,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// defaultDataDir returns the application data directory for the current OS
func defaultDataDir() string {
	if dir := os.Getenv("HIBIKI_DATA_DIR"); dir != "" {
		return dir
	}

	homedir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "hibiki")
	}

	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("LOCALAPPDATA"); appData != "" {
			return filepath.Join(appData, "hibiki")
		}
		return filepath.Join(homedir, "AppData", "local", "hibiki")
	case "darwin":
		return filepath.Join(homedir, "Library", "Application Support", "hibiki")
	default:
		if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
			return filepath.Join(xdgData, "hibiki")
		}
		return filepath.Join(homedir, ".local", "share", "hibiki")
	}
}

// defaultDownloadsDir returns the directory downloaded episodes are stored under
func defaultDownloadsDir() string {
	if dir := os.Getenv("XDG_VIDEOS_DIR"); dir != "" {
		return filepath.Join(dir, "hibiki")
	}

	homedir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "downloads")
	}
	return filepath.Join(homedir, "Videos", "hibiki")
}

// defaultLogFilePath returns the path to the log file.  Tries to use expected OS location defaults.
func defaultLogFilePath() string {
	var basePath string
	homedir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to logging in the current directory if home directory cannot be determined
		return filepath.Join(".", "hibiki.log")
	}

	switch runtime.GOOS {
	case "windows":
		// Windows:  %LOCALAPPDATA%\hibiki\logs
		if appData := os.Getenv("LOCALAPPDATA"); appData != "" {
			basePath = filepath.Join(appData, "hibiki", "logs")
		} else {
			basePath = filepath.Join(homedir, "AppData", "local", "hibiki", "logs")
		}
	case "darwin":
		// macOS:  ~/Library/Logs/hibiki
		basePath = filepath.Join(homedir, "Library", "Logs", "hibiki")
	default:
		// Linux/BSD:  XDG_STATE_HOME
		if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
			basePath = filepath.Join(xdgState, "hibiki", "logs")
		} else {
			basePath = filepath.Join(homedir, ".local", "state", "hibiki", "logs")
		}
	}

	err = os.MkdirAll(basePath, 0700)
	if err != nil {
		// If we failed to create the directory, fallback to logging in the current directory
		return filepath.Join(".", "hibiki.log")
	}
	return filepath.Join(basePath, "hibiki.log")
}
