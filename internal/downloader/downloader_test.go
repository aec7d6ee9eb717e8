package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFullWidthReplacement(t *testing.T) {
	d := New(t.TempDir(), 1)

	assert.Equal(t, "Re：Zero", d.sanitize("Re:Zero"))
	assert.Equal(t, "Fate／stay night", d.sanitize("Fate/stay night"))
	assert.Equal(t, "What＂s up？", d.sanitize(`What"s up?`))
}

func TestSanitizeRestrictedFilenames(t *testing.T) {
	d := New(t.TempDir(), 1, WithRestrictedFilenames())

	assert.Equal(t, "Re_Zero", d.sanitize("Re:Zero"))
	assert.Equal(t, "a_b_c", d.sanitize(`a/b\c`))
}

func TestSanitizeTrimsAndFallsBack(t *testing.T) {
	d := New(t.TempDir(), 1)

	assert.Equal(t, "ep 1", d.sanitize("  ep 1  "))
	assert.Equal(t, "ep 1", d.sanitize("ep 1..."))
	assert.Equal(t, "untitled", d.sanitize("   "))
	assert.Equal(t, "untitled", d.sanitize("..."))
}

func TestExtensionFromURL(t *testing.T) {
	assert.Equal(t, ".mp4", extensionFromURL("https://cdn.example.com/ep1.mp4?token=abc"))
	assert.Equal(t, ".mkv", extensionFromURL("https://cdn.example.com/path/EP1.MKV"))
	assert.Equal(t, ".vtt", extensionFromURL("https://cdn.example.com/subs/en.vtt"))
	assert.Empty(t, extensionFromURL("https://cdn.example.com/stream"))
	assert.Empty(t, extensionFromURL("https://cdn.example.com/archive.zip"))
}

func TestExtensionFromResponse(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Content-Type", "video/x-matroska")
	assert.Equal(t, ".mkv", extensionFromResponse(resp))

	resp = &http.Response{Header: http.Header{}}
	resp.Header.Set("Content-Type", "video/mp4; charset=binary")
	assert.Equal(t, ".mp4", extensionFromResponse(resp))

	resp = &http.Response{Header: http.Header{}}
	resp.Header.Set("Content-Disposition", `attachment; filename="episode-01.webm"`)
	assert.Equal(t, ".webm", extensionFromResponse(resp))

	resp = &http.Response{Header: http.Header{}}
	assert.Equal(t, ".mp4", extensionFromResponse(resp))
}

func TestURLClassification(t *testing.T) {
	assert.True(t, isTorrentURL("magnet:?xt=urn:btih:abc"))
	assert.True(t, isTorrentURL("https://nyaa.si/download/123.torrent"))
	assert.False(t, isTorrentURL("https://cdn.example.com/ep1.mp4"))

	assert.True(t, isHLSURL("https://cdn.example.com/master.m3u8"))
	assert.True(t, isHLSURL("https://cdn.example.com/master.m3u8?expires=1"))
	assert.False(t, isHLSURL("https://cdn.example.com/ep1.mp4"))
}

func TestDownloadHTTPWritesFile(t *testing.T) {
	payload := []byte("fake video bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	dir := t.TempDir()
	d := New(dir, 1)

	result := d.Download(context.Background(), DownloadParams{
		URL:          server.URL + "/stream",
		AnimeTitle:   "Foo",
		EpisodeTitle: "Foo - Episode 1",
	})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, filepath.Join(dir, "Foo", "Foo - Episode 1.mp4"), result.VideoPath)

	data, err := os.ReadFile(result.VideoPath)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestDownloadHTTPResumesPartialFile(t *testing.T) {
	full := []byte("0123456789")
	var sawRange string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawRange = r.Header.Get("Range")
		if sawRange == "bytes=4-" {
			w.Header().Set("Content-Range", "bytes 4-9/10")
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write(full[4:])
			return
		}
		_, _ = w.Write(full)
	}))
	defer server.Close()

	dir := t.TempDir()
	targetDir := filepath.Join(dir, "Foo")
	require.NoError(t, os.MkdirAll(targetDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(targetDir, "ep1.part"), full[:4], 0644))

	d := New(dir, 1)
	result := d.Download(context.Background(), DownloadParams{
		URL:          server.URL + "/ep1.mp4",
		AnimeTitle:   "Foo",
		EpisodeTitle: "ep1",
	})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, "bytes=4-", sawRange)

	data, err := os.ReadFile(result.VideoPath)
	require.NoError(t, err)
	assert.Equal(t, full, data)
}

func TestDownloadKeepsExistingTargetWithoutPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("new contents"))
	}))
	defer server.Close()

	dir := t.TempDir()
	targetDir := filepath.Join(dir, "Foo")
	require.NoError(t, os.MkdirAll(targetDir, 0755))
	existing := filepath.Join(targetDir, "ep1.mp4")
	require.NoError(t, os.WriteFile(existing, []byte("old contents"), 0644))

	d := New(dir, 1)
	result := d.Download(context.Background(), DownloadParams{
		URL:          server.URL + "/ep1.mp4",
		AnimeTitle:   "Foo",
		EpisodeTitle: "ep1",
	})

	require.True(t, result.Success, result.ErrorMessage)
	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, []byte("old contents"), data)
}

func TestDownloadReportsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	d := New(t.TempDir(), 1)
	result := d.Download(context.Background(), DownloadParams{
		URL:          server.URL + "/ep1.mp4",
		AnimeTitle:   "Foo",
		EpisodeTitle: "ep1",
	})

	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "403")
}

func TestHookPanicsAreIsolated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("bytes"))
	}))
	defer server.Close()

	var events []ProgressEvent
	d := New(t.TempDir(), 1)
	result := d.Download(context.Background(), DownloadParams{
		URL:          server.URL + "/ep1.mp4",
		AnimeTitle:   "Foo",
		EpisodeTitle: "ep1",
		Hooks: []ProgressHook{
			func(ProgressEvent) { panic("misbehaving hook") },
			func(event ProgressEvent) { events = append(events, event) },
		},
	})

	require.True(t, result.Success, result.ErrorMessage)
	require.NotEmpty(t, events)
	assert.Equal(t, ProgressFinished, events[len(events)-1].Status)
}

func TestDownloadFetchesSubtitles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ep1.mp4", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("video"))
	})
	mux.HandleFunc("/en.vtt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("WEBVTT"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	dir := t.TempDir()
	d := New(dir, 1)
	result := d.Download(context.Background(), DownloadParams{
		URL:          server.URL + "/ep1.mp4",
		AnimeTitle:   "Foo",
		EpisodeTitle: "ep1",
		Subtitles:    []SubtitleSource{{URL: server.URL + "/en.vtt", Language: "en"}},
	})

	require.True(t, result.Success, result.ErrorMessage)
	require.Len(t, result.SubtitlePaths, 1)
	assert.Equal(t, filepath.Join(dir, "Foo", "ep1.en.vtt"), result.SubtitlePaths[0])
}
