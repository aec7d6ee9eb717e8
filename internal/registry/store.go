package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/log"
	"github.com/fumetsu/hibiki/internal/timeutil"
)

// Store is the sole writer of on-disk user state and the reader of authority
// for what is local.  One Store instance serves one media api tag; its files
// live under {dir}/{api}/.
type Store struct {
	dir  string
	api  string
	lock *fileLock

	mu          sync.Mutex
	cachedIndex *domain.RegistryIndex
	cachedMtime time.Time
}

// New creates a Store rooted at dir for the given media api tag
func New(dir, api string) *Store {
	apiDir := filepath.Join(dir, api)
	return &Store{
		dir:  apiDir,
		api:  api,
		lock: newFileLock(filepath.Join(apiDir, "registry.lock")),
	}
}

// API returns the media api tag this store serves
func (s *Store) API() string {
	return s.api
}

func (s *Store) indexPath() string {
	return filepath.Join(s.dir, "registry.json")
}

func (s *Store) recordPath(mediaID int) string {
	return filepath.Join(s.dir, strconv.Itoa(mediaID)+".json")
}

// loadIndex returns the current index, re-reading from disk only when the file
// mtime has advanced past the cached value.  Cross-process writers bump the
// mtime on every save, so stale caches are detected without re-parsing.
func (s *Store) loadIndex() (*domain.RegistryIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadIndexLocked()
}

func (s *Store) loadIndexLocked() (*domain.RegistryIndex, error) {
	info, err := os.Stat(s.indexPath())
	if os.IsNotExist(err) {
		if s.cachedIndex == nil {
			s.cachedIndex = &domain.RegistryIndex{
				Version:    RegistryVersion,
				MediaIndex: map[string]*domain.IndexEntry{},
			}
		}
		return s.cachedIndex, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat registry index: %w", err)
	}

	if s.cachedIndex != nil && !info.ModTime().After(s.cachedMtime) {
		return s.cachedIndex, nil
	}

	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		return nil, fmt.Errorf("reading registry index: %w", err)
	}

	idx := &domain.RegistryIndex{}
	if err := json.Unmarshal(data, idx); err != nil {
		return nil, fmt.Errorf("parsing registry index %s: %w", s.indexPath(), err)
	}

	if !compatibleVersion(idx.Version) {
		return nil, &VersionMismatchError{Path: s.indexPath(), Have: idx.Version, Want: RegistryVersion}
	}

	if idx.MediaIndex == nil {
		idx.MediaIndex = map[string]*domain.IndexEntry{}
	}

	s.cachedIndex = idx
	s.cachedMtime = info.ModTime()
	return idx, nil
}

// saveIndexLocked persists the index atomically and refreshes the mtime cache.
// Callers must hold s.mu and the cross-process lock.
func (s *Store) saveIndexLocked(idx *domain.RegistryIndex) error {
	idx.Version = RegistryVersion
	idx.LastUpdated = time.Now().UTC()

	if err := writeJSONAtomic(s.indexPath(), idx); err != nil {
		return err
	}

	s.cachedIndex = idx
	if info, err := os.Stat(s.indexPath()); err == nil {
		s.cachedMtime = info.ModTime()
	}
	return nil
}

// MediaIndexEntry returns the index entry for a media ID, or nil when absent
func (s *Store) MediaIndexEntry(mediaID int) *domain.IndexEntry {
	idx, err := s.loadIndex()
	if err != nil {
		log.Error("Failed to load registry index", "error", err)
		return nil
	}
	return idx.MediaIndex[domain.IndexKey(s.api, mediaID)]
}

// GetOrCreateIndexEntry returns the existing index entry for a media ID or
// creates and persists a fresh one.  Repeated calls are idempotent.
func (s *Store) GetOrCreateIndexEntry(mediaID int) (*domain.IndexEntry, error) {
	if entry := s.MediaIndexEntry(mediaID); entry != nil {
		return entry, nil
	}

	if err := s.lock.Acquire(); err != nil {
		return nil, err
	}
	defer s.lock.Release()

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndexLocked()
	if err != nil {
		return nil, err
	}

	key := domain.IndexKey(s.api, mediaID)
	if entry, ok := idx.MediaIndex[key]; ok {
		// Another process created it while we were acquiring the lock
		return entry, nil
	}

	entry := &domain.IndexEntry{MediaID: mediaID, MediaAPI: s.api}
	idx.MediaIndex[key] = entry
	if err := s.saveIndexLocked(idx); err != nil {
		return nil, err
	}
	return entry, nil
}

// SaveIndexEntry persists an index entry, replacing any existing one
func (s *Store) SaveIndexEntry(entry *domain.IndexEntry) error {
	if entry.MediaAPI == "" {
		entry.MediaAPI = s.api
	}

	if err := s.lock.Acquire(); err != nil {
		return err
	}
	defer s.lock.Release()

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndexLocked()
	if err != nil {
		return err
	}

	idx.MediaIndex[entry.Key()] = entry
	return s.saveIndexLocked(idx)
}

// MediaRecord returns the full record for a media ID, or nil when absent
func (s *Store) MediaRecord(mediaID int) *domain.MediaRecord {
	data, err := os.ReadFile(s.recordPath(mediaID))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		log.Error("Failed to read media record", "media_id", mediaID, "error", err)
		return nil
	}

	record := &domain.MediaRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		log.Error("Failed to parse media record", "media_id", mediaID, "error", err)
		return nil
	}
	return record
}

// GetOrCreateRecord returns the record for a media item, creating it when
// missing.  An existing record has its media_item replaced with the fresh one
// while preserving its episode rows.
func (s *Store) GetOrCreateRecord(item *domain.MediaItem) (*domain.MediaRecord, error) {
	record := s.MediaRecord(item.ID)
	if record == nil {
		record = &domain.MediaRecord{MediaItem: item}
	} else {
		record.MediaItem = item
	}

	if err := s.SaveRecord(record); err != nil {
		return nil, err
	}

	// Keep the index in step so the record is discoverable
	if _, err := s.GetOrCreateIndexEntry(item.ID); err != nil {
		return nil, err
	}
	return record, nil
}

// SaveRecord persists a record atomically
func (s *Store) SaveRecord(record *domain.MediaRecord) error {
	if record.MediaItem == nil {
		return fmt.Errorf("cannot save record without a media item")
	}

	if err := s.lock.Acquire(); err != nil {
		return err
	}
	defer s.lock.Release()

	return writeJSONAtomic(s.recordPath(record.MediaItem.ID), record)
}

// IndexEntryUpdate is a partial index entry mutation.  Nil fields are left untouched.
type IndexEntryUpdate struct {
	Status              *domain.ListStatus
	Progress            *string
	LastWatchPosition   *string
	TotalDuration       *string
	Score               *float64
	Repeat              *int
	Notes               *string
	LastNotifiedEpisode *string
	// Watched stamps last_watched with the current time
	Watched bool
}

// UpdateIndexEntry applies a partial update to an entry, creating it if needed.
// Status transitions follow the registry state machine: a progress update on an
// entry with no status starts it WATCHING; a progress update on a COMPLETED
// entry promotes it to REPEATING; progress passed together with COMPLETED is
// clamped to the known episode count.
func (s *Store) UpdateIndexEntry(mediaID int, update IndexEntryUpdate) (*domain.IndexEntry, error) {
	if err := s.lock.Acquire(); err != nil {
		return nil, err
	}
	defer s.lock.Release()

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndexLocked()
	if err != nil {
		return nil, err
	}

	key := domain.IndexKey(s.api, mediaID)
	entry, ok := idx.MediaIndex[key]
	if !ok {
		entry = &domain.IndexEntry{MediaID: mediaID, MediaAPI: s.api}
		idx.MediaIndex[key] = entry
	}

	if update.Progress != nil {
		progress := *update.Progress

		switch {
		case update.Status != nil && *update.Status == domain.StatusCompleted:
			if episodes := s.knownEpisodeCount(mediaID); episodes > 0 {
				if n, err := strconv.Atoi(progress); err == nil && n > episodes {
					progress = strconv.Itoa(episodes)
				}
			}
		case entry.Status == "":
			entry.Status = domain.StatusWatching
		case entry.Status == domain.StatusCompleted && update.Status == nil:
			entry.Status = domain.StatusRepeating
		}

		entry.Progress = progress
	}

	if update.Status != nil {
		entry.Status = *update.Status
	}
	if update.LastWatchPosition != nil {
		entry.LastWatchPosition = *update.LastWatchPosition
	}
	if update.TotalDuration != nil {
		entry.TotalDuration = *update.TotalDuration
	}
	if update.Score != nil {
		entry.Score = *update.Score
	}
	if update.Repeat != nil {
		entry.Repeat = *update.Repeat
	}
	if update.Notes != nil {
		entry.Notes = *update.Notes
	}
	if update.LastNotifiedEpisode != nil {
		entry.LastNotifiedEpisode = *update.LastNotifiedEpisode
	}
	if update.Watched {
		now := time.Now().UTC()
		entry.LastWatched = &now
	}

	if err := s.saveIndexLocked(idx); err != nil {
		return nil, err
	}
	return entry, nil
}

// knownEpisodeCount returns the episode count from the stored media item, 0 when unknown
func (s *Store) knownEpisodeCount(mediaID int) int {
	record := s.MediaRecord(mediaID)
	if record == nil || record.MediaItem == nil {
		return 0
	}
	return record.MediaItem.Episodes
}

// EpisodeUpdate carries optional fields for UpdateEpisodeDownloadStatus
type EpisodeUpdate struct {
	FilePath      string
	FileSize      int64
	Quality       string
	ProviderName  string
	ServerName    string
	SubtitlePaths []string
	Priority      int
	LastError     string
}

// UpdateEpisodeDownloadStatus upserts the MediaEpisode row for an episode and
// applies the status transition.  COMPLETED without a file path is logged as a
// warning but not rejected.  FAILED always increments download_attempts.
// The record is re-read and written back under the registry lock so concurrent
// workers updating different episodes of the same media cannot clobber each
// other's rows.
func (s *Store) UpdateEpisodeDownloadStatus(mediaID int, episodeNumber string, status domain.DownloadStatus, update EpisodeUpdate) error {
	if err := s.lock.Acquire(); err != nil {
		return err
	}
	defer s.lock.Release()

	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.MediaRecord(mediaID)
	if record == nil {
		return fmt.Errorf("no media record for id %d", mediaID)
	}

	ep := record.Episode(episodeNumber)
	if ep == nil {
		now := time.Now().UTC()
		ep = &domain.MediaEpisode{
			EpisodeNumber: episodeNumber,
			SubtitlePaths: []string{},
			CreatedAt:     &now,
		}
		record.MediaEpisodes = append(record.MediaEpisodes, ep)
	}

	ep.DownloadStatus = status
	now := time.Now().UTC()

	switch status {
	case domain.DownloadDownloading:
		ep.StartedAt = &now
	case domain.DownloadCompleted:
		ep.CompletedAt = &now
		ep.DownloadDate = &now
		if update.FilePath == "" && ep.FilePath == "" {
			log.Warn("Episode marked COMPLETED without a file path", "media_id", mediaID, "episode", episodeNumber)
		}
	case domain.DownloadFailed:
		ep.DownloadAttempts++
	}

	if update.FilePath != "" {
		ep.FilePath = update.FilePath
	}
	if update.FileSize > 0 {
		ep.FileSize = update.FileSize
	}
	if update.Quality != "" {
		ep.Quality = update.Quality
	}
	if update.ProviderName != "" {
		ep.ProviderName = update.ProviderName
	}
	if update.ServerName != "" {
		ep.ServerName = update.ServerName
	}
	if update.SubtitlePaths != nil {
		ep.SubtitlePaths = update.SubtitlePaths
	}
	if update.Priority != 0 {
		ep.Priority = update.Priority
	}
	if update.LastError != "" {
		ep.LastError = update.LastError
	}
	if ep.SubtitlePaths == nil {
		ep.SubtitlePaths = []string{}
	}

	// Write directly, the registry lock is already held
	return writeJSONAtomic(s.recordPath(mediaID), record)
}

// RemoveRecord deletes the record file and its index entry
func (s *Store) RemoveRecord(mediaID int) error {
	if err := s.lock.Acquire(); err != nil {
		return err
	}
	defer s.lock.Release()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.recordPath(mediaID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing record file: %w", err)
	}

	idx, err := s.loadIndexLocked()
	if err != nil {
		return err
	}
	delete(idx.MediaIndex, domain.IndexKey(s.api, mediaID))
	return s.saveIndexLocked(idx)
}

// allRecords loads every record file under the store directory
func (s *Store) allRecords() []*domain.MediaRecord {
	idx, err := s.loadIndex()
	if err != nil {
		log.Error("Failed to load registry index", "error", err)
		return nil
	}

	records := make([]*domain.MediaRecord, 0, len(idx.MediaIndex))
	for _, entry := range idx.MediaIndex {
		if record := s.MediaRecord(entry.MediaID); record != nil {
			records = append(records, record)
		}
	}
	return records
}

// MediaByStatus returns records whose index entry has the given list status,
// newest-watched-first.
func (s *Store) MediaByStatus(status domain.ListStatus) []*domain.MediaRecord {
	idx, err := s.loadIndex()
	if err != nil {
		log.Error("Failed to load registry index", "error", err)
		return nil
	}

	var entries []*domain.IndexEntry
	for _, entry := range idx.MediaIndex {
		if entry.Status == status {
			entries = append(entries, entry)
		}
	}
	sortByLastWatched(entries)

	records := make([]*domain.MediaRecord, 0, len(entries))
	for _, entry := range entries {
		if record := s.MediaRecord(entry.MediaID); record != nil {
			records = append(records, record)
		}
	}
	return records
}

// RecentlyWatched returns records in reverse-chronological watch order.
// A limit <= 0 returns everything watched at least once.
func (s *Store) RecentlyWatched(limit int) []*domain.MediaRecord {
	idx, err := s.loadIndex()
	if err != nil {
		log.Error("Failed to load registry index", "error", err)
		return nil
	}

	var entries []*domain.IndexEntry
	for _, entry := range idx.MediaIndex {
		if entry.LastWatched != nil {
			entries = append(entries, entry)
		}
	}
	sortByLastWatched(entries)

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	records := make([]*domain.MediaRecord, 0, len(entries))
	for _, entry := range entries {
		if record := s.MediaRecord(entry.MediaID); record != nil {
			records = append(records, record)
		}
	}
	return records
}

func sortByLastWatched(entries []*domain.IndexEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		ti, tj := entries[i].LastWatched, entries[j].LastWatched
		switch {
		case ti == nil && tj == nil:
			return entries[i].MediaID < entries[j].MediaID
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
}

// EpisodeRef names one episode row across the registry
type EpisodeRef struct {
	MediaID       int
	EpisodeNumber string
}

// EpisodesByDownloadStatus returns a flat list of episode references in the given state
func (s *Store) EpisodesByDownloadStatus(status domain.DownloadStatus) []EpisodeRef {
	var refs []EpisodeRef
	for _, record := range s.allRecords() {
		for _, ep := range record.MediaEpisodes {
			if ep.DownloadStatus == status {
				refs = append(refs, EpisodeRef{MediaID: record.MediaItem.ID, EpisodeNumber: ep.EpisodeNumber})
			}
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].MediaID != refs[j].MediaID {
			return refs[i].MediaID < refs[j].MediaID
		}
		return timeutil.CompareEpisodes(refs[i].EpisodeNumber, refs[j].EpisodeNumber) < 0
	})
	return refs
}

// DownloadStatistics aggregates totals per status, provider and quality
func (s *Store) DownloadStatistics() *domain.DownloadStats {
	stats := &domain.DownloadStats{
		ByStatus:   map[domain.DownloadStatus]int{},
		ByProvider: map[string]int{},
		ByQuality:  map[string]int{},
	}

	for _, record := range s.allRecords() {
		for _, ep := range record.MediaEpisodes {
			stats.TotalEpisodes++
			stats.ByStatus[ep.DownloadStatus]++
			if ep.ProviderName != "" {
				stats.ByProvider[ep.ProviderName]++
			}
			if ep.Quality != "" {
				stats.ByQuality[ep.Quality]++
			}
			stats.TotalBytes += ep.FileSize
		}
	}
	return stats
}

// SeenNotifications returns the last notified episode per media ID
func (s *Store) SeenNotifications() map[int]string {
	idx, err := s.loadIndex()
	if err != nil {
		log.Error("Failed to load registry index", "error", err)
		return map[int]string{}
	}

	seen := make(map[int]string, len(idx.MediaIndex))
	for _, entry := range idx.MediaIndex {
		if entry.LastNotifiedEpisode != "" {
			seen[entry.MediaID] = entry.LastNotifiedEpisode
		}
	}
	return seen
}

// WatchCompletionPercent derives the completion percentage of an entry
func WatchCompletionPercent(entry *domain.IndexEntry) float64 {
	if entry == nil {
		return 0
	}
	return timeutil.CompletionPercent(entry.LastWatchPosition, entry.TotalDuration)
}
