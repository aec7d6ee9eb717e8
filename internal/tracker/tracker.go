// Package tracker reconciles local and remote watch progress.
package tracker

import (
	"context"
	"strconv"

	"github.com/fumetsu/hibiki/internal/catalog"
	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/log"
	"github.com/fumetsu/hibiki/internal/registry"
	"github.com/fumetsu/hibiki/internal/timeutil"
)

// PreferredTracker selects which side wins when local and remote disagree
type PreferredTracker string

const (
	PreferLocal  PreferredTracker = "local"
	PreferRemote PreferredTracker = "remote"
)

// Config carries the tracking knobs
type Config struct {
	// EpisodeCompleteAt is the completion percentage at which an episode
	// counts as watched.
	EpisodeCompleteAt float64
	PreferredTracker  PreferredTracker
	// ForceForwardTracking suppresses remote pushes that would move progress backwards
	ForceForwardTracking bool
}

// Tracker writes watch history locally and pushes it to the catalog when the
// completion threshold is reached.
type Tracker struct {
	store   *registry.Store
	catalog catalog.Client
	cfg     Config
}

// New creates a tracker
func New(store *registry.Store, catalogClient catalog.Client, cfg Config) *Tracker {
	if cfg.EpisodeCompleteAt <= 0 {
		cfg.EpisodeCompleteAt = 80
	}
	if cfg.PreferredTracker == "" {
		cfg.PreferredTracker = PreferLocal
	}
	return &Tracker{store: store, catalog: catalogClient, cfg: cfg}
}

// Track records a playback result locally, then pushes to the catalog when
// the episode crossed the completion threshold and the catalog is
// authenticated.  With forward-only tracking on, neither side ever moves
// backwards.
func (t *Tracker) Track(ctx context.Context, item *domain.MediaItem, result domain.PlayerResult) error {
	if result.Episode == "" {
		log.Debug("Nothing to track, player reported no episode", "media_id", item.ID)
		return nil
	}

	if _, err := t.store.GetOrCreateRecord(item); err != nil {
		return err
	}

	update := registry.IndexEntryUpdate{Watched: true}
	if t.backwardsLocally(item.ID, result.Episode) {
		log.Info("Keeping local progress, earlier episode rewatched",
			"media_id", item.ID, "episode", result.Episode)
	} else {
		update.Progress = &result.Episode
		if result.StopTime != "" {
			update.LastWatchPosition = &result.StopTime
		}
		if result.TotalTime != "" {
			update.TotalDuration = &result.TotalTime
		}
	}
	if item.UserStatus != nil && item.UserStatus.Status == domain.StatusCompleted {
		status := domain.StatusRepeating
		update.Status = &status
	}

	entry, err := t.store.UpdateIndexEntry(item.ID, update)
	if err != nil {
		return err
	}

	completion := timeutil.CompletionPercent(result.StopTime, result.TotalTime)
	if completion < t.cfg.EpisodeCompleteAt {
		log.Debug("Episode below completion threshold, keeping local only",
			"media_id", item.ID, "episode", result.Episode, "completion", completion)
		return nil
	}
	if !t.catalog.IsAuthenticated() {
		log.Debug("Catalog not authenticated, keeping local only", "media_id", item.ID)
		return nil
	}

	t.pushProgress(ctx, item, entry.Progress)
	return nil
}

// backwardsLocally reports whether writing episode would move the local index
// backwards while the forward-only guard is on
func (t *Tracker) backwardsLocally(mediaID int, episode string) bool {
	if !t.cfg.ForceForwardTracking {
		return false
	}
	entry := t.store.MediaIndexEntry(mediaID)
	if entry == nil || entry.Progress == "" {
		return false
	}
	return timeutil.CompareEpisodes(episode, entry.Progress) < 0
}

// pushProgress sends progress to the catalog, honouring the forward-only guard
func (t *Tracker) pushProgress(ctx context.Context, item *domain.MediaItem, progress string) {
	if t.cfg.ForceForwardTracking && item.UserStatus != nil {
		remote := strconv.Itoa(item.UserStatus.Progress)
		if timeutil.CompareEpisodes(progress, remote) < 0 {
			log.Info("Suppressing backwards progress push",
				"media_id", item.ID, "local", progress, "remote", remote)
			return
		}
	}

	params := domain.UpdateListEntryParams{
		MediaID:  item.ID,
		Progress: &progress,
	}
	if ok := t.catalog.UpdateListEntry(ctx, params); !ok {
		log.Warn("Failed to push progress to catalog", "media_id", item.ID, "progress", progress)
		return
	}
	log.Info("Pushed progress to catalog", "media_id", item.ID, "progress", progress)
}

// ResolveEpisode decides which episode to play next and where to start from
func (t *Tracker) ResolveEpisode(item *domain.MediaItem) (episode string, startTime string) {
	local := ""
	start := ""
	total := ""
	if entry := t.store.MediaIndexEntry(item.ID); entry != nil {
		local = entry.Progress
		start = entry.LastWatchPosition
		total = entry.TotalDuration
	}

	remote := ""
	if item.UserStatus != nil && item.UserStatus.Progress > 0 {
		remote = strconv.Itoa(item.UserStatus.Progress)
	}

	// A start position past the threshold means the episode was finished;
	// begin the next one from zero.
	if start != "" && timeutil.CompletionPercent(start, total) >= t.cfg.EpisodeCompleteAt {
		start = ""
		local = timeutil.NextEpisode(local)
	}

	episode = local
	if local != remote {
		if t.cfg.PreferredTracker == PreferRemote {
			episode = remote
		}
		if episode != local {
			// The remembered position belongs to the local episode
			start = ""
		}
	}

	if episode == "" || episode == "0" {
		episode = "1"
		start = ""
	}
	return episode, start
}

// AddToListIfAbsent puts the title on the user's planning list when it is not
// on any list yet.
func (t *Tracker) AddToListIfAbsent(ctx context.Context, item *domain.MediaItem) {
	if item.UserStatus != nil && item.UserStatus.Status != "" {
		return
	}
	if !t.catalog.IsAuthenticated() {
		return
	}

	status := domain.StatusPlanning
	if ok := t.catalog.UpdateListEntry(ctx, domain.UpdateListEntryParams{MediaID: item.ID, Status: &status}); !ok {
		log.Warn("Failed to add media to planning list", "media_id", item.ID)
		return
	}
	log.Info("Added media to planning list", "media_id", item.ID)
}
