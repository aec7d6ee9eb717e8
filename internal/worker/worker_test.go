package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fumetsu/hibiki/internal/config"
	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/downloader"
	"github.com/fumetsu/hibiki/internal/downloads"
	"github.com/fumetsu/hibiki/internal/registry"
)

// fakeCatalog serves canned notifications
type fakeCatalog struct {
	authenticated bool
	notifications []domain.Notification
	err           error
}

func (f *fakeCatalog) Authenticate(context.Context, string) (*domain.UserProfile, error) {
	return nil, nil
}
func (f *fakeCatalog) IsAuthenticated() bool              { return f.authenticated }
func (f *fakeCatalog) ViewerProfile() *domain.UserProfile { return nil }
func (f *fakeCatalog) SearchMedia(context.Context, domain.MediaSearchParams) (*domain.MediaSearchResult, error) {
	return nil, nil
}
func (f *fakeCatalog) SearchMediaList(context.Context, domain.UserMediaListSearchParams) (*domain.MediaSearchResult, error) {
	return nil, nil
}
func (f *fakeCatalog) UpdateListEntry(context.Context, domain.UpdateListEntryParams) bool {
	return false
}
func (f *fakeCatalog) DeleteListEntry(context.Context, int) bool { return false }
func (f *fakeCatalog) Recommendations(context.Context, int) ([]*domain.MediaItem, error) {
	return nil, nil
}
func (f *fakeCatalog) Characters(context.Context, int) ([]domain.CharacterInfo, error) {
	return nil, nil
}
func (f *fakeCatalog) RelatedAnime(context.Context, int) ([]*domain.MediaItem, error) {
	return nil, nil
}
func (f *fakeCatalog) AiringSchedule(context.Context, int) ([]domain.AiringScheduleItem, error) {
	return nil, nil
}
func (f *fakeCatalog) Reviews(context.Context, int) ([]domain.Review, error) { return nil, nil }
func (f *fakeCatalog) Notifications(context.Context) ([]domain.Notification, error) {
	return f.notifications, f.err
}

func newTestWorker(t *testing.T, remote *fakeCatalog) (*Worker, *registry.Store, *[]string) {
	t.Helper()
	store := registry.New(t.TempDir(), "anilist")
	dl := downloader.New(t.TempDir(), 1)
	service := downloads.NewService(store, dl, nil, 1, 1)

	w := New(&config.Config{}, store, remote, service)
	var raised []string
	w.notify = func(title, body string) error {
		raised = append(raised, body)
		return nil
	}
	return w, store, &raised
}

func TestPollNotificationsSkipsWhenUnauthenticated(t *testing.T) {
	w, _, raised := newTestWorker(t, &fakeCatalog{authenticated: false})

	require.NoError(t, w.pollNotifications(context.Background()))
	assert.Empty(t, *raised)
}

func TestPollNotificationsRaisesForNewEpisodes(t *testing.T) {
	remote := &fakeCatalog{
		authenticated: true,
		notifications: []domain.Notification{
			{ID: 1, MediaID: 1001, Title: "Foo", Episode: "5"},
			{ID: 2, MediaID: 1002, Title: "Bar", Episode: "12"},
		},
	}
	w, store, raised := newTestWorker(t, remote)

	require.NoError(t, w.pollNotifications(context.Background()))

	require.Len(t, *raised, 2)
	assert.Contains(t, (*raised)[0], "Episode 5 of Foo")

	seen := store.SeenNotifications()
	assert.Equal(t, "5", seen[1001])
	assert.Equal(t, "12", seen[1002])
}

func TestPollNotificationsDeduplicates(t *testing.T) {
	remote := &fakeCatalog{
		authenticated: true,
		notifications: []domain.Notification{
			{ID: 1, MediaID: 1001, Title: "Foo", Episode: "5"},
		},
	}
	w, _, raised := newTestWorker(t, remote)

	require.NoError(t, w.pollNotifications(context.Background()))
	require.NoError(t, w.pollNotifications(context.Background()))
	assert.Len(t, *raised, 1)

	// A newer episode is notified again
	remote.notifications[0].Episode = "6"
	require.NoError(t, w.pollNotifications(context.Background()))
	assert.Len(t, *raised, 2)

	// An older or equal episode stays quiet
	remote.notifications[0].Episode = "4"
	require.NoError(t, w.pollNotifications(context.Background()))
	assert.Len(t, *raised, 2)
}

func TestPollNotificationsPropagatesFetchError(t *testing.T) {
	w, _, _ := newTestWorker(t, &fakeCatalog{authenticated: true, err: errors.New("boom")})

	err := w.pollNotifications(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestMinuteInterval(t *testing.T) {
	assert.Equal(t, 15*time.Minute, minuteInterval(15, 1))
	assert.Equal(t, time.Minute, minuteInterval(0, 1))
	assert.Equal(t, time.Minute, minuteInterval(-3, 1))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	w, _, _ := newTestWorker(t, &fakeCatalog{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}
