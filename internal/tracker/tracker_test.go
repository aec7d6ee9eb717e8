package tracker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fumetsu/hibiki/internal/catalog"
	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/registry"
)

// fakeCatalog records list mutations and fakes authentication state
type fakeCatalog struct {
	authenticated bool
	accept        bool
	updates       []domain.UpdateListEntryParams
}

func (f *fakeCatalog) Authenticate(context.Context, string) (*domain.UserProfile, error) {
	return nil, catalog.ErrAuthRejected
}
func (f *fakeCatalog) IsAuthenticated() bool              { return f.authenticated }
func (f *fakeCatalog) ViewerProfile() *domain.UserProfile { return nil }
func (f *fakeCatalog) SearchMedia(context.Context, domain.MediaSearchParams) (*domain.MediaSearchResult, error) {
	return nil, nil
}
func (f *fakeCatalog) SearchMediaList(context.Context, domain.UserMediaListSearchParams) (*domain.MediaSearchResult, error) {
	return nil, nil
}
func (f *fakeCatalog) UpdateListEntry(_ context.Context, params domain.UpdateListEntryParams) bool {
	f.updates = append(f.updates, params)
	return f.accept
}
func (f *fakeCatalog) DeleteListEntry(context.Context, int) bool { return true }
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
	return nil, nil
}

func newTracker(t *testing.T, remote *fakeCatalog, cfg Config) (*Tracker, *registry.Store) {
	t.Helper()
	store := registry.New(t.TempDir(), "anilist")
	return New(store, remote, cfg), store
}

func mediaItem(id int) *domain.MediaItem {
	return &domain.MediaItem{
		ID:       id,
		Title:    domain.MediaTitle{English: "Foo", Romaji: "Foo"},
		Episodes: 12,
	}
}

func TestTrackWritesLocalHistory(t *testing.T) {
	remote := &fakeCatalog{}
	tracker, store := newTracker(t, remote, Config{})
	item := mediaItem(1001)

	err := tracker.Track(context.Background(), item, domain.PlayerResult{
		Episode:   "3",
		StopTime:  "00:05:00",
		TotalTime: "00:24:00",
	})
	require.NoError(t, err)

	entry := store.MediaIndexEntry(1001)
	require.NotNil(t, entry)
	assert.Equal(t, "3", entry.Progress)
	assert.Equal(t, "00:05:00", entry.LastWatchPosition)
	assert.Equal(t, "00:24:00", entry.TotalDuration)
	assert.NotNil(t, entry.LastWatched)
}

func TestTrackIgnoresEmptyEpisode(t *testing.T) {
	remote := &fakeCatalog{}
	tracker, store := newTracker(t, remote, Config{})

	err := tracker.Track(context.Background(), mediaItem(1001), domain.PlayerResult{})
	require.NoError(t, err)
	assert.Nil(t, store.MediaIndexEntry(1001))
}

func TestTrackBelowThresholdStaysLocal(t *testing.T) {
	remote := &fakeCatalog{authenticated: true, accept: true}
	tracker, _ := newTracker(t, remote, Config{EpisodeCompleteAt: 80})

	err := tracker.Track(context.Background(), mediaItem(1001), domain.PlayerResult{
		Episode:   "2",
		StopTime:  "00:05:00",
		TotalTime: "00:24:00",
	})
	require.NoError(t, err)
	assert.Empty(t, remote.updates)
}

func TestTrackPushesPastThreshold(t *testing.T) {
	remote := &fakeCatalog{authenticated: true, accept: true}
	tracker, _ := newTracker(t, remote, Config{EpisodeCompleteAt: 80})

	err := tracker.Track(context.Background(), mediaItem(1001), domain.PlayerResult{
		Episode:   "2",
		StopTime:  "00:20:00",
		TotalTime: "00:24:00",
	})
	require.NoError(t, err)

	require.Len(t, remote.updates, 1)
	require.NotNil(t, remote.updates[0].Progress)
	assert.Equal(t, "2", *remote.updates[0].Progress)
}

func TestTrackUnauthenticatedSkipsPush(t *testing.T) {
	remote := &fakeCatalog{authenticated: false}
	tracker, store := newTracker(t, remote, Config{EpisodeCompleteAt: 80})

	err := tracker.Track(context.Background(), mediaItem(1001), domain.PlayerResult{
		Episode:   "2",
		StopTime:  "00:23:00",
		TotalTime: "00:24:00",
	})
	require.NoError(t, err)
	assert.Empty(t, remote.updates)
	assert.Equal(t, "2", store.MediaIndexEntry(1001).Progress)
}

func TestForwardOnlyGuardSuppressesBackwardsPush(t *testing.T) {
	remote := &fakeCatalog{authenticated: true, accept: true}
	tracker, _ := newTracker(t, remote, Config{EpisodeCompleteAt: 80, ForceForwardTracking: true})

	item := mediaItem(1001)
	item.UserStatus = &domain.UserListEntry{Status: domain.StatusWatching, Progress: 9}

	err := tracker.Track(context.Background(), item, domain.PlayerResult{
		Episode:   "5",
		StopTime:  "00:23:00",
		TotalTime: "00:24:00",
	})
	require.NoError(t, err)
	assert.Empty(t, remote.updates)
}

func TestForwardOnlyGuardAllowsForwardPush(t *testing.T) {
	remote := &fakeCatalog{authenticated: true, accept: true}
	tracker, _ := newTracker(t, remote, Config{EpisodeCompleteAt: 80, ForceForwardTracking: true})

	item := mediaItem(1001)
	item.UserStatus = &domain.UserListEntry{Status: domain.StatusWatching, Progress: 9}

	err := tracker.Track(context.Background(), item, domain.PlayerResult{
		Episode:   "10",
		StopTime:  "00:23:00",
		TotalTime: "00:24:00",
	})
	require.NoError(t, err)
	require.Len(t, remote.updates, 1)
}

func TestForwardOnlyGuardKeepsLocalProgress(t *testing.T) {
	remote := &fakeCatalog{}
	tracker, store := newTracker(t, remote, Config{EpisodeCompleteAt: 80, ForceForwardTracking: true})
	item := mediaItem(1001)

	require.NoError(t, tracker.Track(context.Background(), item, domain.PlayerResult{
		Episode:   "9",
		StopTime:  "00:23:00",
		TotalTime: "00:24:00",
	}))
	// Rewatching an earlier episode must not move the index backwards
	require.NoError(t, tracker.Track(context.Background(), item, domain.PlayerResult{
		Episode:   "5",
		StopTime:  "00:10:00",
		TotalTime: "00:24:00",
	}))

	entry := store.MediaIndexEntry(1001)
	require.NotNil(t, entry)
	assert.Equal(t, "9", entry.Progress)
	assert.Equal(t, "00:23:00", entry.LastWatchPosition)
	assert.NotNil(t, entry.LastWatched)
}

func TestBackwardsTrackingAllowedWithoutGuard(t *testing.T) {
	remote := &fakeCatalog{}
	tracker, store := newTracker(t, remote, Config{EpisodeCompleteAt: 80})
	item := mediaItem(1001)

	require.NoError(t, tracker.Track(context.Background(), item, domain.PlayerResult{Episode: "9"}))
	require.NoError(t, tracker.Track(context.Background(), item, domain.PlayerResult{Episode: "5"}))

	entry := store.MediaIndexEntry(1001)
	require.NotNil(t, entry)
	assert.Equal(t, "5", entry.Progress)
}

func TestTrackCompletedBecomesRepeating(t *testing.T) {
	remote := &fakeCatalog{}
	tracker, store := newTracker(t, remote, Config{})

	item := mediaItem(1001)
	item.UserStatus = &domain.UserListEntry{Status: domain.StatusCompleted, Progress: 12}

	err := tracker.Track(context.Background(), item, domain.PlayerResult{Episode: "1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRepeating, store.MediaIndexEntry(1001).Status)
}

func TestResolveEpisodeDefaultsToFirst(t *testing.T) {
	tracker, _ := newTracker(t, &fakeCatalog{}, Config{})

	episode, start := tracker.ResolveEpisode(mediaItem(1001))
	assert.Equal(t, "1", episode)
	assert.Empty(t, start)
}

func TestResolveEpisodeResumesLocalPosition(t *testing.T) {
	tracker, store := newTracker(t, &fakeCatalog{}, Config{EpisodeCompleteAt: 80})

	progress := "4"
	position := "00:08:00"
	total := "00:24:00"
	_, err := store.UpdateIndexEntry(1001, registry.IndexEntryUpdate{
		Progress:          &progress,
		LastWatchPosition: &position,
		TotalDuration:     &total,
	})
	require.NoError(t, err)

	episode, start := tracker.ResolveEpisode(mediaItem(1001))
	assert.Equal(t, "4", episode)
	assert.Equal(t, "00:08:00", start)
}

func TestResolveEpisodeAdvancesPastFinishedEpisode(t *testing.T) {
	tracker, store := newTracker(t, &fakeCatalog{}, Config{EpisodeCompleteAt: 80})

	progress := "4"
	position := "00:22:00"
	total := "00:24:00"
	_, err := store.UpdateIndexEntry(1001, registry.IndexEntryUpdate{
		Progress:          &progress,
		LastWatchPosition: &position,
		TotalDuration:     &total,
	})
	require.NoError(t, err)

	episode, start := tracker.ResolveEpisode(mediaItem(1001))
	assert.Equal(t, "5", episode)
	assert.Empty(t, start)
}

func TestResolveEpisodePreferredRemoteWins(t *testing.T) {
	tracker, store := newTracker(t, &fakeCatalog{}, Config{EpisodeCompleteAt: 80, PreferredTracker: PreferRemote})

	progress := "4"
	_, err := store.UpdateIndexEntry(1001, registry.IndexEntryUpdate{Progress: &progress})
	require.NoError(t, err)

	item := mediaItem(1001)
	item.UserStatus = &domain.UserListEntry{Status: domain.StatusWatching, Progress: 7}

	episode, start := tracker.ResolveEpisode(item)
	assert.Equal(t, "7", episode)
	assert.Empty(t, start)
}

func TestAddToListIfAbsent(t *testing.T) {
	remote := &fakeCatalog{authenticated: true, accept: true}
	tracker, _ := newTracker(t, remote, Config{})

	tracker.AddToListIfAbsent(context.Background(), mediaItem(1001))
	require.Len(t, remote.updates, 1)
	require.NotNil(t, remote.updates[0].Status)
	assert.Equal(t, domain.StatusPlanning, *remote.updates[0].Status)

	onList := mediaItem(1002)
	onList.UserStatus = &domain.UserListEntry{Status: domain.StatusWatching}
	tracker.AddToListIfAbsent(context.Background(), onList)
	assert.Len(t, remote.updates, 1)
}
