package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fumetsu/hibiki/internal/catalog"
	"github.com/fumetsu/hibiki/internal/catalog/anilist"
	"github.com/fumetsu/hibiki/internal/catalog/jikan"
	"github.com/fumetsu/hibiki/internal/config"
	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/downloader"
	"github.com/fumetsu/hibiki/internal/downloads"
	"github.com/fumetsu/hibiki/internal/log"
	"github.com/fumetsu/hibiki/internal/provider/factory"
	"github.com/fumetsu/hibiki/internal/registry"
	"github.com/fumetsu/hibiki/internal/version"
	"github.com/fumetsu/hibiki/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// It is unrecoverable if we cannot produce an application config
		_, _ = fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialise logger
	logger, err := log.New(log.Config{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		// Probably should let the app continue without logging, but for now this is acceptable.
		_, _ = fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	// Set the default global logger
	log.SetDefaultLogger(logger)

	log.Info("Starting up Hibiki", "version", version.GetVersion(), "build_time", version.GetBuildTime())

	if err := run(cfg); err != nil {
		log.Error("Unhandled error while running worker", "error", err)
		os.Exit(1)
	}

	log.Info("Hibiki shutting down.  Goodbye!")
}

// run wires the services together and drives the background worker loop
func run(cfg *config.Config) error {
	store := registry.New(cfg.RegistryDir(), cfg.Catalog.API)
	auth := catalog.NewAuthStore(cfg.AuthDir())

	var catalogClient catalog.Client
	switch cfg.Catalog.API {
	case "jikan":
		catalogClient = jikan.New()
	default:
		client := anilist.New(auth)
		loginAniList(client)
		catalogClient = client
	}

	prov, err := factory.New(cfg.Provider.Name)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}

	dl := downloader.New(cfg.Downloads.Dir, cfg.Downloads.MaxRetries)
	source := &downloads.ProviderSource{
		Provider:        prov,
		TranslationType: translationType(cfg.Player.TranslationType),
		Quality:         cfg.Player.Quality,
		WantSubtitles:   true,
		MergeSubtitles:  cfg.Downloads.MergeSubtitles,
		CleanAfterMerge: cfg.Downloads.CleanAfterMerge,
	}
	downloadService := downloads.NewService(store, dl, source,
		cfg.Downloads.MaxConcurrentDownloads, cfg.Downloads.MaxRetries)

	w := worker.New(cfg, store, catalogClient, downloadService)
	return w.Run(context.Background())
}

// loginAniList runs the browser OAuth flow when no stored credential works.
// Failure is not fatal: the worker simply skips the operations that need auth.
func loginAniList(client *anilist.Client) {
	if client.IsAuthenticated() {
		return
	}

	log.Info("No catalog credential stored, starting browser login")
	result := catalog.NewOAuthFlow().Run()
	if result.Error != nil {
		log.Warn("Catalog login failed, continuing unauthenticated", "error", result.Error)
		return
	}
	if _, err := client.Authenticate(context.Background(), result.Token); err != nil {
		log.Warn("Catalog rejected login token, continuing unauthenticated", "error", err)
	}
}

// translationType maps the configured string onto the domain enum
func translationType(s string) domain.TranslationType {
	switch s {
	case "dub":
		return domain.TranslationDub
	case "raw":
		return domain.TranslationRaw
	default:
		return domain.TranslationSub
	}
}
