package downloads

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/downloader"
	"github.com/fumetsu/hibiki/internal/registry"
)

// fakeSource resolves every episode to a fixed URL
type fakeSource struct {
	url string
	err error
}

func (f *fakeSource) Resolve(_ context.Context, _ *domain.MediaItem, episode string) (*ResolvedStream, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ResolvedStream{
		URL:      f.url,
		Quality:  "1080",
		Provider: "allanime",
		Server:   "wixmp",
	}, nil
}

func newTestService(t *testing.T, source StreamSource) (*Service, *registry.Store) {
	t.Helper()
	store := registry.New(t.TempDir(), "anilist")
	dl := downloader.New(t.TempDir(), 1)
	return NewService(store, dl, source, 2, 2), store
}

func testItem(id int) *domain.MediaItem {
	return &domain.MediaItem{
		ID:       id,
		Title:    domain.MediaTitle{English: "Foo", Romaji: "Foo"},
		Episodes: 12,
	}
}

func episodeRow(t *testing.T, store *registry.Store, mediaID int, episode string) *domain.MediaEpisode {
	t.Helper()
	record := store.MediaRecord(mediaID)
	require.NotNil(t, record)
	row := record.Episode(episode)
	require.NotNil(t, row)
	return row
}

func TestAddToQueueCreatesQueuedRow(t *testing.T) {
	service, store := newTestService(t, &fakeSource{})

	added, err := service.AddToQueue(testItem(1001), "1")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, domain.DownloadQueued, episodeRow(t, store, 1001, "1").DownloadStatus)
}

func TestAddToQueueIsIdempotentForActiveRows(t *testing.T) {
	service, store := newTestService(t, &fakeSource{})
	item := testItem(1001)

	added, err := service.AddToQueue(item, "1")
	require.NoError(t, err)
	require.True(t, added)

	added, err = service.AddToQueue(item, "1")
	require.NoError(t, err)
	assert.False(t, added)

	require.NoError(t, store.UpdateEpisodeDownloadStatus(1001, "1", domain.DownloadPaused, registry.EpisodeUpdate{}))
	added, err = service.AddToQueue(item, "1")
	require.NoError(t, err)
	assert.False(t, added)
}

func TestAddToQueueRequeuesCompletedWithMissingFile(t *testing.T) {
	service, store := newTestService(t, &fakeSource{})
	item := testItem(1001)

	_, err := store.GetOrCreateRecord(item)
	require.NoError(t, err)
	require.NoError(t, store.UpdateEpisodeDownloadStatus(1001, "1", domain.DownloadCompleted, registry.EpisodeUpdate{
		FilePath: filepath.Join(t.TempDir(), "gone.mp4"),
	}))

	added, err := service.AddToQueue(item, "1")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, domain.DownloadQueued, episodeRow(t, store, 1001, "1").DownloadStatus)
}

func TestAddToQueueKeepsCompletedWithExistingFile(t *testing.T) {
	service, store := newTestService(t, &fakeSource{})
	item := testItem(1001)

	file := filepath.Join(t.TempDir(), "ep1.mp4")
	require.NoError(t, os.WriteFile(file, []byte("video"), 0644))

	_, err := store.GetOrCreateRecord(item)
	require.NoError(t, err)
	require.NoError(t, store.UpdateEpisodeDownloadStatus(1001, "1", domain.DownloadCompleted, registry.EpisodeUpdate{FilePath: file}))

	added, err := service.AddToQueue(item, "1")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, domain.DownloadCompleted, episodeRow(t, store, 1001, "1").DownloadStatus)
}

func TestResumeUnfinishedRecoversInterruptedRows(t *testing.T) {
	service, store := newTestService(t, &fakeSource{})
	item := testItem(1001)

	_, err := store.GetOrCreateRecord(item)
	require.NoError(t, err)
	require.NoError(t, store.UpdateEpisodeDownloadStatus(1001, "1", domain.DownloadDownloading, registry.EpisodeUpdate{}))
	require.NoError(t, store.UpdateEpisodeDownloadStatus(1001, "2", domain.DownloadPaused, registry.EpisodeUpdate{}))
	require.NoError(t, store.UpdateEpisodeDownloadStatus(1001, "3", domain.DownloadCompleted, registry.EpisodeUpdate{FilePath: "/tmp/x.mp4"}))

	require.NoError(t, service.ResumeUnfinished())

	assert.Equal(t, domain.DownloadQueued, episodeRow(t, store, 1001, "1").DownloadStatus)
	assert.Equal(t, domain.DownloadQueued, episodeRow(t, store, 1001, "2").DownloadStatus)
	assert.Equal(t, domain.DownloadCompleted, episodeRow(t, store, 1001, "3").DownloadStatus)
}

func TestRetryFailedRespectsAttemptBudget(t *testing.T) {
	service, store := newTestService(t, &fakeSource{})
	item := testItem(1001)

	_, err := store.GetOrCreateRecord(item)
	require.NoError(t, err)

	// One failure on episode 1, exhausted attempts on episode 2
	require.NoError(t, store.UpdateEpisodeDownloadStatus(1001, "1", domain.DownloadFailed, registry.EpisodeUpdate{LastError: "boom"}))
	require.NoError(t, store.UpdateEpisodeDownloadStatus(1001, "2", domain.DownloadFailed, registry.EpisodeUpdate{}))
	require.NoError(t, store.UpdateEpisodeDownloadStatus(1001, "2", domain.DownloadFailed, registry.EpisodeUpdate{}))

	require.NoError(t, service.RetryFailed())

	assert.Equal(t, domain.DownloadQueued, episodeRow(t, store, 1001, "1").DownloadStatus)
	assert.Equal(t, domain.DownloadFailed, episodeRow(t, store, 1001, "2").DownloadStatus)
}

func TestQueuedInOrderSortsByPriorityThenCreation(t *testing.T) {
	service, store := newTestService(t, &fakeSource{})
	item := testItem(1001)

	_, err := store.GetOrCreateRecord(item)
	require.NoError(t, err)
	require.NoError(t, store.UpdateEpisodeDownloadStatus(1001, "1", domain.DownloadQueued, registry.EpisodeUpdate{Priority: 5}))
	require.NoError(t, store.UpdateEpisodeDownloadStatus(1001, "2", domain.DownloadQueued, registry.EpisodeUpdate{Priority: 1}))
	require.NoError(t, store.UpdateEpisodeDownloadStatus(1001, "3", domain.DownloadQueued, registry.EpisodeUpdate{Priority: 1}))

	refs := service.queuedInOrder()
	require.Len(t, refs, 3)
	assert.Equal(t, "2", refs[0].EpisodeNumber)
	assert.Equal(t, "3", refs[1].EpisodeNumber)
	assert.Equal(t, "1", refs[2].EpisodeNumber)
}

func TestDownloadEpisodesSyncCompletesRow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("fake video bytes"))
	}))
	defer server.Close()

	service, store := newTestService(t, &fakeSource{url: server.URL + "/ep1.mp4"})
	item := testItem(1001)

	require.NoError(t, service.DownloadEpisodesSync(context.Background(), item, []string{"1"}))

	row := episodeRow(t, store, 1001, "1")
	assert.Equal(t, domain.DownloadCompleted, row.DownloadStatus)
	assert.NotEmpty(t, row.FilePath)
	assert.Equal(t, int64(len("fake video bytes")), row.FileSize)
	assert.Equal(t, "1080", row.Quality)
	assert.Equal(t, "allanime", row.ProviderName)

	_, err := os.Stat(row.FilePath)
	assert.NoError(t, err)
}

func TestDownloadEpisodesSyncMarksFailureWhenNoStream(t *testing.T) {
	service, store := newTestService(t, &fakeSource{err: context.DeadlineExceeded})
	item := testItem(1001)

	require.NoError(t, service.DownloadEpisodesSync(context.Background(), item, []string{"1"}))
	row := episodeRow(t, store, 1001, "1")
	// One sync attempt failed; the row goes back to QUEUED while budget remains
	assert.Equal(t, domain.DownloadQueued, row.DownloadStatus)
	assert.Equal(t, 1, row.DownloadAttempts)
	assert.Equal(t, context.DeadlineExceeded.Error(), row.LastError)
}

// blockingSource parks every resolve until its context is cancelled
type blockingSource struct {
	resolving chan struct{}
}

func (b *blockingSource) Resolve(ctx context.Context, _ *domain.MediaItem, _ string) (*ResolvedStream, error) {
	select {
	case b.resolving <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStopLeavesInFlightDownloadsResumable(t *testing.T) {
	source := &blockingSource{resolving: make(chan struct{}, 1)}
	service, store := newTestService(t, source)
	item := testItem(1001)

	service.Start()
	_, err := service.AddToQueue(item, "1")
	require.NoError(t, err)

	select {
	case <-source.resolving:
	case <-time.After(5 * time.Second):
		t.Fatal("download never started")
	}

	service.Stop()

	// A shutdown mid-download parks the row, not a terminal cancel
	assert.Equal(t, domain.DownloadPaused, episodeRow(t, store, 1001, "1").DownloadStatus)

	require.NoError(t, service.ResumeUnfinished())
	assert.Equal(t, domain.DownloadQueued, episodeRow(t, store, 1001, "1").DownloadStatus)
}
