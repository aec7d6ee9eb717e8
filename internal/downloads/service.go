// Package downloads runs the persistent download queue.  The queue itself is
// a view over the registry: every episode row whose status is QUEUED,
// DOWNLOADING, PAUSED or FAILED belongs to it.
package downloads

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/downloader"
	"github.com/fumetsu/hibiki/internal/log"
	"github.com/fumetsu/hibiki/internal/registry"
	"github.com/fumetsu/hibiki/internal/timeutil"
)

// Service walks queued episodes through the downloader with bounded
// concurrency.
type Service struct {
	store      *registry.Store
	dl         *downloader.Downloader
	source     StreamSource
	maxWorkers int
	maxRetries int

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	jobs    chan registry.EpisodeRef
	workers conc.WaitGroup

	hooks []downloader.ProgressHook
}

// NewService creates a stopped service
func NewService(store *registry.Store, dl *downloader.Downloader, source StreamSource, maxWorkers, maxRetries int) *Service {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Service{
		store:      store,
		dl:         dl,
		source:     source,
		maxWorkers: maxWorkers,
		maxRetries: maxRetries,
	}
}

// AddProgressHook registers a hook passed to every download
func (s *Service) AddProgressHook(hook downloader.ProgressHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// AddToQueue upserts an episode row with status QUEUED.  Returns true iff a
// new queue entry was created; an episode already queued, downloading or
// paused is left alone.
func (s *Service) AddToQueue(item *domain.MediaItem, episode string) (bool, error) {
	record, err := s.store.GetOrCreateRecord(item)
	if err != nil {
		return false, err
	}

	if row := record.Episode(episode); row != nil {
		switch row.DownloadStatus {
		case domain.DownloadQueued, domain.DownloadDownloading, domain.DownloadPaused, domain.DownloadFailed:
			log.Debug("Episode already in queue", "media_id", item.ID, "episode", episode, "status", row.DownloadStatus)
			return false, nil
		case domain.DownloadCompleted:
			if row.FilePath != "" {
				if _, err := os.Stat(row.FilePath); err == nil {
					return false, nil
				}
			}
		}
	}

	if err := s.store.UpdateEpisodeDownloadStatus(item.ID, episode, domain.DownloadQueued, registry.EpisodeUpdate{}); err != nil {
		return false, err
	}

	s.submit(registry.EpisodeRef{MediaID: item.ID, EpisodeNumber: episode})
	return true, nil
}

// Start brings up the worker pool.  Calling Start on a running service is a
// no-op.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.jobs = make(chan registry.EpisodeRef, 256)
	s.started = true

	for i := 0; i < s.maxWorkers; i++ {
		s.workers.Go(func() {
			for ref := range s.jobs {
				if ctx.Err() != nil {
					return
				}
				s.run(ctx, ref)
			}
		})
	}
	log.Info("Download service started", "workers", s.maxWorkers)
}

// Stop drains the pool.  In-flight downloads are cancelled and their rows
// flipped to PAUSED so a later resume picks them up.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	jobs := s.jobs
	s.mu.Unlock()

	cancel()
	close(jobs)
	s.workers.Wait()

	// Anything still marked DOWNLOADING was interrupted mid-flight
	for _, ref := range s.store.EpisodesByDownloadStatus(domain.DownloadDownloading) {
		if err := s.store.UpdateEpisodeDownloadStatus(ref.MediaID, ref.EpisodeNumber, domain.DownloadPaused, registry.EpisodeUpdate{}); err != nil {
			log.Error("Failed to pause interrupted download", "media_id", ref.MediaID, "episode", ref.EpisodeNumber, "error", err)
		}
	}
	log.Info("Download service stopped")
}

func (s *Service) submit(ref registry.EpisodeRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	select {
	case s.jobs <- ref:
	default:
		log.Warn("Download queue channel full, job stays queued on disk", "media_id", ref.MediaID, "episode", ref.EpisodeNumber)
	}
}

// ResumeUnfinished re-submits QUEUED rows and crash-recovers DOWNLOADING rows
// back to QUEUED.
func (s *Service) ResumeUnfinished() error {
	for _, ref := range s.store.EpisodesByDownloadStatus(domain.DownloadDownloading) {
		if err := s.store.UpdateEpisodeDownloadStatus(ref.MediaID, ref.EpisodeNumber, domain.DownloadQueued, registry.EpisodeUpdate{}); err != nil {
			return fmt.Errorf("requeueing interrupted download: %w", err)
		}
	}
	for _, ref := range s.store.EpisodesByDownloadStatus(domain.DownloadPaused) {
		if err := s.store.UpdateEpisodeDownloadStatus(ref.MediaID, ref.EpisodeNumber, domain.DownloadQueued, registry.EpisodeUpdate{}); err != nil {
			return fmt.Errorf("requeueing paused download: %w", err)
		}
	}

	refs := s.queuedInOrder()
	for _, ref := range refs {
		s.submit(ref)
	}
	if len(refs) > 0 {
		log.Info("Resumed unfinished downloads", "count", len(refs))
	}
	return nil
}

// RetryFailed re-queues FAILED rows that still have attempts left
func (s *Service) RetryFailed() error {
	retried := 0
	for _, ref := range s.store.EpisodesByDownloadStatus(domain.DownloadFailed) {
		record := s.store.MediaRecord(ref.MediaID)
		if record == nil {
			continue
		}
		row := record.Episode(ref.EpisodeNumber)
		if row == nil || row.DownloadAttempts >= s.maxRetries {
			continue
		}
		if err := s.store.UpdateEpisodeDownloadStatus(ref.MediaID, ref.EpisodeNumber, domain.DownloadQueued, registry.EpisodeUpdate{}); err != nil {
			return fmt.Errorf("requeueing failed download: %w", err)
		}
		s.submit(ref)
		retried++
	}
	if retried > 0 {
		log.Info("Retried failed downloads", "count", retried)
	}
	return nil
}

// CleanCompletedJobs removes terminal rows older than maxAgeDays
func (s *Service) CleanCompletedJobs(maxAgeDays int) (int, error) {
	return s.store.CleanCompletedOlderThan(timeutil.Days(maxAgeDays))
}

// queuedInOrder returns QUEUED refs ordered by priority then creation time
func (s *Service) queuedInOrder() []registry.EpisodeRef {
	type job struct {
		ref      registry.EpisodeRef
		priority int
		created  int64
	}
	var queue []job
	for _, ref := range s.store.EpisodesByDownloadStatus(domain.DownloadQueued) {
		record := s.store.MediaRecord(ref.MediaID)
		if record == nil {
			continue
		}
		row := record.Episode(ref.EpisodeNumber)
		if row == nil {
			continue
		}
		entry := job{ref: ref, priority: row.Priority}
		if row.CreatedAt != nil {
			entry.created = row.CreatedAt.UnixNano()
		}
		queue = append(queue, entry)
	}
	sort.SliceStable(queue, func(i, j int) bool {
		if queue[i].priority != queue[j].priority {
			return queue[i].priority < queue[j].priority
		}
		return queue[i].created < queue[j].created
	})

	refs := make([]registry.EpisodeRef, 0, len(queue))
	for _, entry := range queue {
		refs = append(refs, entry.ref)
	}
	return refs
}

// run executes one job end to end
func (s *Service) run(ctx context.Context, ref registry.EpisodeRef) {
	record := s.store.MediaRecord(ref.MediaID)
	if record == nil || record.MediaItem == nil {
		log.Error("Queued episode has no media record", "media_id", ref.MediaID)
		return
	}
	row := record.Episode(ref.EpisodeNumber)
	if row == nil || row.DownloadStatus != domain.DownloadQueued {
		return
	}

	if err := s.store.UpdateEpisodeDownloadStatus(ref.MediaID, ref.EpisodeNumber, domain.DownloadDownloading, registry.EpisodeUpdate{}); err != nil {
		log.Error("Failed to mark episode downloading", "media_id", ref.MediaID, "episode", ref.EpisodeNumber, "error", err)
		return
	}

	result, err := s.download(ctx, record.MediaItem, ref.EpisodeNumber)

	if ctx.Err() != nil {
		// A shutdown interrupted this job, park it so ResumeUnfinished picks it up
		if updateErr := s.store.UpdateEpisodeDownloadStatus(ref.MediaID, ref.EpisodeNumber, domain.DownloadPaused, registry.EpisodeUpdate{}); updateErr != nil {
			log.Error("Failed to pause interrupted download", "media_id", ref.MediaID, "error", updateErr)
		}
		return
	}

	if err != nil || !result.Success {
		message := "download failed"
		if err != nil {
			message = err.Error()
		} else if result.ErrorMessage != "" {
			message = result.ErrorMessage
		}
		s.handleFailure(ref, message)
		return
	}

	videoPath := result.MergedPath
	if videoPath == "" {
		videoPath = result.VideoPath
	}
	update := registry.EpisodeUpdate{
		FilePath:      videoPath,
		SubtitlePaths: result.SubtitlePaths,
	}
	if info, err := os.Stat(videoPath); err == nil {
		update.FileSize = info.Size()
	}
	if err := s.store.UpdateEpisodeDownloadStatus(ref.MediaID, ref.EpisodeNumber, domain.DownloadCompleted, update); err != nil {
		log.Error("Failed to mark download complete", "media_id", ref.MediaID, "episode", ref.EpisodeNumber, "error", err)
	}
	log.Info("Download complete", "media_id", ref.MediaID, "episode", ref.EpisodeNumber, "path", videoPath)
}

// handleFailure requeues while attempts remain, otherwise marks FAILED
func (s *Service) handleFailure(ref registry.EpisodeRef, message string) {
	if err := s.store.UpdateEpisodeDownloadStatus(ref.MediaID, ref.EpisodeNumber, domain.DownloadFailed, registry.EpisodeUpdate{LastError: message}); err != nil {
		log.Error("Failed to mark download failed", "media_id", ref.MediaID, "episode", ref.EpisodeNumber, "error", err)
		return
	}

	record := s.store.MediaRecord(ref.MediaID)
	if record == nil {
		return
	}
	row := record.Episode(ref.EpisodeNumber)
	if row == nil || row.DownloadAttempts >= s.maxRetries {
		log.Warn("Download failed permanently", "media_id", ref.MediaID, "episode", ref.EpisodeNumber, "error", message)
		return
	}

	if err := s.store.UpdateEpisodeDownloadStatus(ref.MediaID, ref.EpisodeNumber, domain.DownloadQueued, registry.EpisodeUpdate{}); err != nil {
		log.Error("Failed to requeue download", "media_id", ref.MediaID, "episode", ref.EpisodeNumber, "error", err)
		return
	}
	s.submit(ref)
}

// download resolves the stream and runs the downloader
func (s *Service) download(ctx context.Context, item *domain.MediaItem, episode string) (*downloader.DownloadResult, error) {
	stream, err := s.source.Resolve(ctx, item, episode)
	if err != nil {
		return nil, err
	}
	if stream == nil {
		return nil, fmt.Errorf("no stream found for episode %s", episode)
	}

	if err := s.store.UpdateEpisodeDownloadStatus(item.ID, episode, domain.DownloadDownloading, registry.EpisodeUpdate{
		Quality:      stream.Quality,
		ProviderName: stream.Provider,
		ServerName:   stream.Server,
	}); err != nil {
		log.Warn("Failed to record stream metadata", "media_id", item.ID, "episode", episode, "error", err)
	}

	s.mu.Lock()
	hooks := append([]downloader.ProgressHook(nil), s.hooks...)
	s.mu.Unlock()

	params := downloader.DownloadParams{
		URL:          stream.URL,
		Headers:      stream.Headers,
		AnimeTitle:   item.Title.Preferred(),
		EpisodeTitle: episodeFilename(item, episode, stream.EpisodeTitle),
		Quality:      stream.Quality,
		Subtitles:    stream.Subtitles,

		MergeSubtitles:  stream.MergeSubtitles,
		CleanAfterMerge: stream.CleanAfterMerge,
		Hooks:           hooks,
	}
	return s.dl.Download(ctx, params), nil
}

// DownloadEpisodesSync downloads episodes in order in the calling goroutine
func (s *Service) DownloadEpisodesSync(ctx context.Context, item *domain.MediaItem, episodes []string) error {
	if _, err := s.store.GetOrCreateRecord(item); err != nil {
		return err
	}

	for _, episode := range episodes {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.store.UpdateEpisodeDownloadStatus(item.ID, episode, domain.DownloadDownloading, registry.EpisodeUpdate{}); err != nil {
			return err
		}

		result, err := s.download(ctx, item, episode)
		if err != nil || !result.Success {
			message := "download failed"
			if err != nil {
				message = err.Error()
			} else if result.ErrorMessage != "" {
				message = result.ErrorMessage
			}
			s.handleFailure(registry.EpisodeRef{MediaID: item.ID, EpisodeNumber: episode}, message)
			continue
		}

		videoPath := result.MergedPath
		if videoPath == "" {
			videoPath = result.VideoPath
		}
		update := registry.EpisodeUpdate{FilePath: videoPath, SubtitlePaths: result.SubtitlePaths}
		if info, err := os.Stat(videoPath); err == nil {
			update.FileSize = info.Size()
		}
		if err := s.store.UpdateEpisodeDownloadStatus(item.ID, episode, domain.DownloadCompleted, update); err != nil {
			return err
		}
	}
	return nil
}

func episodeFilename(item *domain.MediaItem, episode, episodeTitle string) string {
	name := fmt.Sprintf("%s - Episode %s", item.Title.Preferred(), episode)
	if episodeTitle != "" {
		name += " - " + episodeTitle
	}
	return name
}
