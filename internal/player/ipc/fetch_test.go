package ipc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fumetsu/hibiki/internal/config"
	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/registry"
)

func streamingSession() *Session {
	return &Session{
		Anime: &domain.ProviderAnime{
			ID:    "anime-1",
			Title: "Foo",
			Episodes: domain.ProviderEpisodes{
				Sub: []string{"1", "2", "3"},
				Dub: []string{"1", "2"},
			},
		},
		TranslationType: domain.TranslationSub,
	}
}

func testController() *Controller {
	return New(&config.Config{})
}

func TestDontPlayIsOneShot(t *testing.T) {
	session := streamingSession()
	assert.False(t, session.TakeDontPlay())

	session.SetDontPlay()
	assert.True(t, session.TakeDontPlay())
	assert.False(t, session.TakeDontPlay())
}

func TestRunSuppressedLaunchReturnsEpisodeOnly(t *testing.T) {
	c := testController()
	session := streamingSession()
	session.SetDontPlay()
	c.SetSession(session)

	result, err := c.Run(context.Background(), domain.PlayerParams{Episode: "2", URL: "https://example.com/s.m3u8"})
	require.NoError(t, err)
	assert.Equal(t, "2", result.Episode)
	assert.Empty(t, result.StopTime)
}

func TestRunWithoutSessionFails(t *testing.T) {
	_, err := testController().Run(context.Background(), domain.PlayerParams{Episode: "1"})
	require.Error(t, err)
}

func TestResolveTargetNextAndPrevious(t *testing.T) {
	c := testController()
	session := streamingSession()
	st := &state{episode: "2"}

	target, err := c.resolveTarget(session, st, fetchNext, "")
	require.NoError(t, err)
	assert.Equal(t, "3", target)

	target, err = c.resolveTarget(session, st, fetchPrevious, "")
	require.NoError(t, err)
	assert.Equal(t, "1", target)
}

func TestResolveTargetBounds(t *testing.T) {
	c := testController()
	session := streamingSession()

	_, err := c.resolveTarget(session, &state{episode: "3"}, fetchNext, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "last episode")

	_, err = c.resolveTarget(session, &state{episode: "1"}, fetchPrevious, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first episode")
}

func TestResolveTargetReloadAndCustom(t *testing.T) {
	c := testController()
	session := streamingSession()
	st := &state{episode: "2"}

	target, err := c.resolveTarget(session, st, fetchReload, "")
	require.NoError(t, err)
	assert.Equal(t, "2", target)

	target, err = c.resolveTarget(session, st, fetchCustom, "3")
	require.NoError(t, err)
	assert.Equal(t, "3", target)

	_, err = c.resolveTarget(session, st, fetchCustom, "99")
	require.Error(t, err)
}

func TestResolveTargetHonoursTranslationType(t *testing.T) {
	c := testController()
	session := streamingSession()
	session.TranslationType = domain.TranslationDub

	// Dub only has two episodes, so 2 is the end of the list
	_, err := c.resolveTarget(session, &state{episode: "2"}, fetchNext, "")
	require.Error(t, err)
}

func TestAutoNextStaysLatchedAtLastEpisode(t *testing.T) {
	c := testController()
	session := streamingSession()
	conn, player := newPipeClient(t)
	go player.serveResponses(t)

	st := &state{episode: "3", autoNext: true, advanced: true}
	fetchCh := make(chan fetchResult, 1)

	c.startFetch(conn, session, st, fetchCh, fetchNext, "")
	assert.True(t, st.advanced)
	assert.False(t, st.fetching)
	assert.Empty(t, fetchCh)
}

func localSession(t *testing.T) (*Session, *registry.Store, string) {
	t.Helper()
	store := registry.New(t.TempDir(), "anilist")
	item := &domain.MediaItem{
		ID:       1001,
		Title:    domain.MediaTitle{English: "Foo"},
		Episodes: 3,
	}
	_, err := store.GetOrCreateRecord(item)
	require.NoError(t, err)

	dir := t.TempDir()
	file := filepath.Join(dir, "ep2.mp4")
	require.NoError(t, os.WriteFile(file, []byte("video"), 0644))

	require.NoError(t, store.UpdateEpisodeDownloadStatus(1001, "2", domain.DownloadCompleted, registry.EpisodeUpdate{FilePath: file}))
	require.NoError(t, store.UpdateEpisodeDownloadStatus(1001, "10", domain.DownloadCompleted, registry.EpisodeUpdate{
		FilePath: filepath.Join(dir, "missing.mp4"),
	}))

	return &Session{
		Store:     store,
		MediaItem: item,
		Local:     true,
	}, store, file
}

func TestLocalEpisodesAreSortedNumerically(t *testing.T) {
	c := testController()
	session, _, _ := localSession(t)

	episodes := c.episodeList(session)
	assert.Equal(t, []string{"2", "10"}, episodes)
}

func TestFetchLocalReturnsFilePath(t *testing.T) {
	c := testController()
	session, _, file := localSession(t)

	res := c.fetchLocal(session, "2")
	require.NoError(t, res.err)
	assert.Equal(t, "2", res.episode)
	assert.Equal(t, file, res.url)
}

func TestFetchLocalMissingFileIsAnError(t *testing.T) {
	c := testController()
	session, _, _ := localSession(t)

	res := c.fetchLocal(session, "10")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "missing")

	res = c.fetchLocal(session, "3")
	require.Error(t, res.err)
}
