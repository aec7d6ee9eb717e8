package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBestLinkExactQualityWins(t *testing.T) {
	server := &Server{Links: []StreamLink{
		{Link: "a", Quality: "360"},
		{Link: "b", Quality: "720"},
		{Link: "c", Quality: "1080"},
	}}

	link := server.BestLink("720")
	require.NotNil(t, link)
	assert.Equal(t, "b", link.Link)
}

func TestBestLinkFallsBackToHighest(t *testing.T) {
	server := &Server{Links: []StreamLink{
		{Link: "a", Quality: "720"},
		{Link: "b", Quality: "1080"},
		{Link: "c", Quality: "480"},
	}}

	// 1080 beats 720 numerically, not lexically
	link := server.BestLink("4k")
	require.NotNil(t, link)
	assert.Equal(t, "b", link.Link)

	link = server.BestLink("")
	require.NotNil(t, link)
	assert.Equal(t, "b", link.Link)
}

func TestBestLinkEmptyServer(t *testing.T) {
	assert.Nil(t, (&Server{}).BestLink("1080"))
}

func TestBestLinkUnlabelledQuality(t *testing.T) {
	server := &Server{Links: []StreamLink{
		{Link: "a"},
		{Link: "b", Quality: "480"},
	}}

	link := server.BestLink("")
	require.NotNil(t, link)
	assert.Equal(t, "b", link.Link)
}

func TestProviderEpisodesFor(t *testing.T) {
	episodes := ProviderEpisodes{
		Sub: []string{"1", "2", "3"},
		Dub: []string{"1", "2"},
	}

	assert.Equal(t, []string{"1", "2", "3"}, episodes.For(TranslationSub))
	assert.Equal(t, []string{"1", "2"}, episodes.For(TranslationDub))
	assert.Nil(t, episodes.For(TranslationRaw))
	// Unknown translation types fall back to sub
	assert.Equal(t, []string{"1", "2", "3"}, episodes.For(""))
}

func TestDownloadStatusTerminal(t *testing.T) {
	assert.True(t, DownloadCompleted.Terminal())
	assert.True(t, DownloadCancelled.Terminal())
	assert.True(t, DownloadNotDownloaded.Terminal())
	assert.False(t, DownloadQueued.Terminal())
	assert.False(t, DownloadDownloading.Terminal())
	assert.False(t, DownloadPaused.Terminal())
	assert.False(t, DownloadFailed.Terminal())
}
