// Package worker runs the background maintenance loop: notification polling
// and download queue upkeep on independent timers.
package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/fumetsu/hibiki/internal/catalog"
	"github.com/fumetsu/hibiki/internal/config"
	"github.com/fumetsu/hibiki/internal/downloads"
	"github.com/fumetsu/hibiki/internal/log"
	"github.com/fumetsu/hibiki/internal/registry"
	"github.com/fumetsu/hibiki/internal/timeutil"
)

// sleepCap bounds each tick so shutdown signals are noticed promptly
const sleepCap = 30 * time.Second

// Worker owns the three periodic tasks.  Tasks are strictly serialized within
// the loop; a failing task logs and leaves the others on schedule.
type Worker struct {
	cfg       *config.Config
	store     *registry.Store
	catalog   catalog.Client
	downloads *downloads.Service

	notify func(title, body string) error
}

func New(cfg *config.Config, store *registry.Store, catalogClient catalog.Client, downloadService *downloads.Service) *Worker {
	return &Worker{
		cfg:       cfg,
		store:     store,
		catalog:   catalogClient,
		downloads: downloadService,
		notify: func(title, body string) error {
			return beeep.Notify(title, body, "")
		},
	}
}

// task is one scheduled job with its own cadence
type task struct {
	name     string
	interval time.Duration
	nextRun  time.Time
	run      func(ctx context.Context) error
}

// Run blocks until the context is cancelled or a termination signal arrives.
// The download service is always stopped on the way out.
func (w *Worker) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer w.downloads.Stop()
	w.downloads.Start()

	now := time.Now()
	tasks := []*task{
		{
			name:     "notification poll",
			interval: minuteInterval(w.cfg.Worker.NotificationCheckInterval, 1),
			nextRun:  now,
			run:      w.pollNotifications,
		},
		{
			name:     "queue resume",
			interval: minuteInterval(w.cfg.Worker.DownloadCheckInterval, 1),
			nextRun:  now,
			run:      func(context.Context) error { return w.downloads.ResumeUnfinished() },
		},
		{
			name:     "failed retry",
			interval: minuteInterval(w.cfg.Worker.DownloadCheckFailedInterval, 1),
			nextRun:  now,
			run:      func(context.Context) error { return w.downloads.RetryFailed() },
		},
	}

	log.Info("Background worker started",
		"notification_interval", tasks[0].interval,
		"resume_interval", tasks[1].interval,
		"retry_interval", tasks[2].interval)

	for {
		now := time.Now()
		for _, t := range tasks {
			if now.Before(t.nextRun) {
				continue
			}
			if err := t.run(ctx); err != nil {
				log.Error("Background task failed", "task", t.name, "error", err)
			}
			t.nextRun = now.Add(t.interval)
		}

		sleep := sleepCap
		for _, t := range tasks {
			if until := time.Until(t.nextRun); until < sleep {
				sleep = until
			}
		}
		if sleep < time.Second {
			sleep = time.Second
		}

		select {
		case <-ctx.Done():
			log.Info("Background worker stopping")
			return nil
		case <-time.After(sleep):
		}
	}
}

// minuteInterval converts a configured minute count into a duration with a
// floor.
func minuteInterval(minutes, minimum int) time.Duration {
	if minutes < minimum {
		minutes = minimum
	}
	return time.Duration(minutes) * time.Minute
}

// pollNotifications asks the catalog for unread airing notifications and
// raises a desktop notification for each unseen episode.
func (w *Worker) pollNotifications(ctx context.Context) error {
	if !w.catalog.IsAuthenticated() {
		log.Debug("Skipping notification poll, not authenticated")
		return nil
	}

	notifications, err := w.catalog.Notifications(ctx)
	if err != nil {
		return fmt.Errorf("fetching notifications: %w", err)
	}
	if len(notifications) == 0 {
		return nil
	}

	seen := w.store.SeenNotifications()
	for _, n := range notifications {
		if last, ok := seen[n.MediaID]; ok && timeutil.CompareEpisodes(n.Episode, last) <= 0 {
			continue
		}

		title := n.Title
		if title == "" {
			title = "New episode"
		}
		body := fmt.Sprintf("Episode %s of %s is out", n.Episode, title)
		if err := w.notify("Hibiki", body); err != nil {
			log.Warn("Desktop notification failed", "media_id", n.MediaID, "error", err)
		}

		episode := n.Episode
		if _, err := w.store.UpdateIndexEntry(n.MediaID, registry.IndexEntryUpdate{
			LastNotifiedEpisode: &episode,
		}); err != nil {
			log.Warn("Recording seen notification failed", "media_id", n.MediaID, "error", err)
			continue
		}
		seen[n.MediaID] = episode
		log.Info("Notified about new episode", "media_id", n.MediaID, "episode", episode)
	}
	return nil
}
