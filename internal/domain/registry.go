package domain

import (
	"fmt"
	"time"
)

// DownloadStatus represents the lifecycle state of an episode download
type DownloadStatus string

const (
	DownloadNotDownloaded DownloadStatus = "NOT_DOWNLOADED"
	DownloadQueued        DownloadStatus = "QUEUED"
	DownloadDownloading   DownloadStatus = "DOWNLOADING"
	DownloadCompleted     DownloadStatus = "COMPLETED"
	DownloadFailed        DownloadStatus = "FAILED"
	DownloadPaused        DownloadStatus = "PAUSED"
	DownloadCancelled     DownloadStatus = "CANCELLED"
)

// Terminal reports whether the status can no longer transition on its own
func (s DownloadStatus) Terminal() bool {
	return s == DownloadCompleted || s == DownloadCancelled || s == DownloadNotDownloaded
}

// IndexEntry is the per-(media_api, media_id) user-facing state stored in the registry index
type IndexEntry struct {
	MediaID  int    `json:"media_id"`
	MediaAPI string `json:"media_api"`

	Status ListStatus `json:"status,omitempty"`
	// Progress is an episode identifier.  It may be non-integer, e.g. "7.5".
	Progress string `json:"progress,omitempty"`
	// LastWatchPosition and TotalDuration use "HH:MM:SS" form
	LastWatchPosition string     `json:"last_watch_position,omitempty"`
	TotalDuration     string     `json:"total_duration,omitempty"`
	LastWatched       *time.Time `json:"last_watched,omitempty"`
	Score             float64    `json:"score,omitempty"`
	Repeat            int        `json:"repeat,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	// LastNotifiedEpisode prevents the background worker from double-notifying
	LastNotifiedEpisode string `json:"last_notified_episode,omitempty"`
}

// Key returns the unique index key for the entry
func (e *IndexEntry) Key() string {
	return IndexKey(e.MediaAPI, e.MediaID)
}

// IndexKey builds the "{api}_{id}" key used by the registry index
func IndexKey(api string, mediaID int) string {
	return fmt.Sprintf("%s_%d", api, mediaID)
}

// MediaEpisode is the per-episode download record kept inside a MediaRecord
type MediaEpisode struct {
	// EpisodeNumber is a string to admit identifiers like "7.5"
	EpisodeNumber    string         `json:"episode_number"`
	DownloadStatus   DownloadStatus `json:"download_status"`
	FilePath         string         `json:"file_path,omitempty"`
	DownloadDate     *time.Time     `json:"download_date,omitempty"`
	FileSize         int64          `json:"file_size,omitempty"`
	Quality          string         `json:"quality,omitempty"`
	ProviderName     string         `json:"provider_name,omitempty"`
	ServerName       string         `json:"server_name,omitempty"`
	SubtitlePaths    []string       `json:"subtitle_paths"`
	DownloadAttempts int            `json:"download_attempts,omitempty"`
	LastError        string         `json:"last_error,omitempty"`
	Priority         int            `json:"priority,omitempty"`
	CreatedAt        *time.Time     `json:"created_at,omitempty"`
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}

// MediaRecord is the registry aggregate: one file per title on disk
type MediaRecord struct {
	MediaItem     *MediaItem      `json:"media_item"`
	MediaEpisodes []*MediaEpisode `json:"media_episodes"`
}

// Episode returns the download record for an episode number, or nil
func (r *MediaRecord) Episode(episodeNumber string) *MediaEpisode {
	for _, ep := range r.MediaEpisodes {
		if ep.EpisodeNumber == episodeNumber {
			return ep
		}
	}
	return nil
}

// RegistryIndex is the persisted registry index document
type RegistryIndex struct {
	Version     string                 `json:"version"`
	LastUpdated time.Time              `json:"last_updated"`
	MediaIndex  map[string]*IndexEntry `json:"media_index"`
}

// DownloadStats aggregates download totals for reporting
type DownloadStats struct {
	TotalEpisodes int                    `json:"total_episodes"`
	ByStatus      map[DownloadStatus]int `json:"by_status"`
	ByProvider    map[string]int         `json:"by_provider"`
	ByQuality     map[string]int         `json:"by_quality"`
	TotalBytes    int64                  `json:"total_bytes"`
}

// PageInfo describes a page of search results
type PageInfo struct {
	Total       int  `json:"total"`
	PerPage     int  `json:"per_page"`
	CurrentPage int  `json:"current_page"`
	HasNextPage bool `json:"has_next_page"`
}
