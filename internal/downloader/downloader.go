// Package downloader fetches episode streams to disk over HTTP, HLS or
// torrent, with progress reporting and optional subtitle merging.
package downloader

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/fumetsu/hibiki/internal/log"
)

// ProgressStatus is the phase reported to progress hooks
type ProgressStatus string

const (
	ProgressDownloading ProgressStatus = "downloading"
	ProgressFinished    ProgressStatus = "finished"
	ProgressError       ProgressStatus = "error"
)

// ProgressEvent is one hook invocation payload
type ProgressEvent struct {
	DownloadedBytes int64
	TotalBytes      int64
	Filename        string
	Status          ProgressStatus
	Err             error
}

// ProgressHook observes download progress.  A panicking hook is logged and
// ignored; it never interrupts the download.
type ProgressHook func(ProgressEvent)

// SubtitleSource is one subtitle sidecar to fetch alongside the video
type SubtitleSource struct {
	URL      string
	Language string
}

// DownloadParams describe one download job
type DownloadParams struct {
	URL          string
	Headers      map[string]string
	AnimeTitle   string
	EpisodeTitle string
	Quality      string
	Subtitles    []SubtitleSource

	MergeSubtitles  bool
	CleanAfterMerge bool

	// Prompt decides whether an existing target may be overwritten.
	// Nil means never overwrite.
	Prompt func(path string) bool

	Hooks []ProgressHook
}

// DownloadResult reports the outcome of a download
type DownloadResult struct {
	Success       bool
	VideoPath     string
	SubtitlePaths []string
	MergedPath    string
	AnimeTitle    string
	EpisodeTitle  string
	ErrorMessage  string
}

// Downloader executes download jobs
type Downloader struct {
	httpClient     *http.Client
	downloadsDir   string
	ffmpegPath     string
	webtorrentPath string
	maxRetries     int
	restrictedFS   bool
}

// Option configures a Downloader
type Option func(*Downloader)

// WithFFmpegPath overrides the transcoder binary name
func WithFFmpegPath(path string) Option {
	return func(d *Downloader) { d.ffmpegPath = path }
}

// WithWebtorrentPath overrides the torrent fetcher binary name
func WithWebtorrentPath(path string) Option {
	return func(d *Downloader) { d.webtorrentPath = path }
}

// WithRestrictedFilenames replaces reserved path characters with underscores
// instead of full-width equivalents.
func WithRestrictedFilenames() Option {
	return func(d *Downloader) { d.restrictedFS = true }
}

// New creates a downloader writing beneath downloadsDir
func New(downloadsDir string, maxRetries int, opts ...Option) *Downloader {
	d := &Downloader{
		httpClient:     &http.Client{Timeout: 0},
		downloadsDir:   downloadsDir,
		ffmpegPath:     "ffmpeg",
		webtorrentPath: "webtorrent",
		maxRetries:     maxRetries,
	}
	if d.maxRetries < 1 {
		d.maxRetries = 1
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download fetches one episode.  Transport is chosen by URL shape: torrents
// go to the torrent fetcher, HLS playlists to the transcoder, everything else
// over plain HTTP with range resume.
func (d *Downloader) Download(ctx context.Context, params DownloadParams) *DownloadResult {
	result := &DownloadResult{
		AnimeTitle:   params.AnimeTitle,
		EpisodeTitle: params.EpisodeTitle,
	}

	targetDir := filepath.Join(d.downloadsDir, d.sanitize(params.AnimeTitle))
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return d.fail(result, params, fmt.Errorf("creating download directory: %w", err))
	}

	baseName := d.sanitize(params.EpisodeTitle)

	var videoPath string
	var err error
	switch {
	case isTorrentURL(params.URL):
		videoPath, err = d.downloadTorrent(ctx, params, targetDir)
	case isHLSURL(params.URL):
		videoPath = filepath.Join(targetDir, baseName+".mp4")
		err = d.downloadHLS(ctx, params, videoPath)
	default:
		videoPath, err = d.downloadHTTP(ctx, params, targetDir, baseName)
	}
	if err != nil {
		return d.fail(result, params, err)
	}
	result.VideoPath = videoPath

	for _, sub := range params.Subtitles {
		subPath, err := d.downloadSubtitle(ctx, params, targetDir, baseName, sub)
		if err != nil {
			log.Warn("Failed to fetch subtitle", "url", sub.URL, "error", err)
			continue
		}
		result.SubtitlePaths = append(result.SubtitlePaths, subPath)
	}

	if params.MergeSubtitles && len(result.SubtitlePaths) > 0 {
		merged, err := d.mergeSubtitles(ctx, result.VideoPath, result.SubtitlePaths, params.CleanAfterMerge)
		if err != nil {
			return d.fail(result, params, fmt.Errorf("merging subtitles: %w", err))
		}
		result.MergedPath = merged
	}

	result.Success = true
	d.notify(params.Hooks, ProgressEvent{
		Filename: filepath.Base(result.VideoPath),
		Status:   ProgressFinished,
	})
	return result
}

func (d *Downloader) fail(result *DownloadResult, params DownloadParams, err error) *DownloadResult {
	log.Error("Download failed", "anime", params.AnimeTitle, "episode", params.EpisodeTitle, "error", err)
	result.ErrorMessage = err.Error()
	d.notify(params.Hooks, ProgressEvent{Status: ProgressError, Err: err})
	return result
}

// notify fans an event out to every hook, isolating hook panics
func (d *Downloader) notify(hooks []ProgressHook, event ProgressEvent) {
	for _, hook := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Warn("Progress hook panicked", "panic", r)
				}
			}()
			hook(event)
		}()
	}
}

// downloadHTTP streams the URL to disk, resuming a partial file via a Range
// request when the server cooperates.
func (d *Downloader) downloadHTTP(ctx context.Context, params DownloadParams, targetDir, baseName string) (string, error) {
	ext := extensionFromURL(params.URL)

	var target string
	err := retry.Do(
		func() error {
			var attemptErr error
			target, attemptErr = d.attemptHTTP(ctx, params, targetDir, baseName, ext)
			return attemptErr
		},
		retry.Attempts(uint(d.maxRetries)),
		retry.Delay(2*time.Second),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	return target, err
}

func (d *Downloader) attemptHTTP(ctx context.Context, params DownloadParams, targetDir, baseName, ext string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, params.URL, nil)
	if err != nil {
		return "", err
	}
	for key, value := range params.Headers {
		req.Header.Set(key, value)
	}

	partial := filepath.Join(targetDir, baseName+".part")
	var resumeFrom int64
	if info, err := os.Stat(partial); err == nil {
		resumeFrom = info.Size()
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		resumeFrom = 0
	case http.StatusPartialContent:
	case http.StatusRequestedRangeNotSatisfiable:
		resumeFrom = 0
		if err := os.Remove(partial); err != nil && !os.IsNotExist(err) {
			return "", err
		}
		return d.attemptHTTP(ctx, params, targetDir, baseName, ext)
	default:
		return "", fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if ext == "" {
		ext = extensionFromResponse(resp)
	}
	target := filepath.Join(targetDir, baseName+ext)

	if _, err := os.Stat(target); err == nil {
		if params.Prompt == nil || !params.Prompt(target) {
			log.Info("Target already exists, keeping existing file", "path", target)
			return target, nil
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if resumeFrom > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(partial, flags, 0644)
	if err != nil {
		return "", err
	}

	total := resp.ContentLength
	if total > 0 {
		total += resumeFrom
	}
	writer := &progressWriter{
		downloader: d,
		hooks:      params.Hooks,
		filename:   filepath.Base(target),
		written:    resumeFrom,
		total:      total,
	}

	_, copyErr := io.Copy(io.MultiWriter(file, writer), resp.Body)
	closeErr := file.Close()
	if copyErr != nil {
		return "", copyErr
	}
	if closeErr != nil {
		return "", closeErr
	}

	if err := os.Rename(partial, target); err != nil {
		return "", err
	}
	return target, nil
}

// progressWriter reports byte counts to hooks, rate-limited to one event per
// half second.
type progressWriter struct {
	downloader *Downloader
	hooks      []ProgressHook
	filename   string
	written    int64
	total      int64
	lastEvent  time.Time
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.written += int64(len(p))
	if time.Since(w.lastEvent) >= 500*time.Millisecond {
		w.lastEvent = time.Now()
		w.downloader.notify(w.hooks, ProgressEvent{
			DownloadedBytes: w.written,
			TotalBytes:      w.total,
			Filename:        w.filename,
			Status:          ProgressDownloading,
		})
	}
	return len(p), nil
}

// downloadSubtitle fetches one subtitle sidecar next to the video
func (d *Downloader) downloadSubtitle(ctx context.Context, params DownloadParams, targetDir, baseName string, sub SubtitleSource) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sub.URL, nil)
	if err != nil {
		return "", err
	}
	for key, value := range params.Headers {
		req.Header.Set(key, value)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	ext := extensionFromURL(sub.URL)
	if ext == "" {
		ext = ".vtt"
	}
	name := baseName
	if sub.Language != "" {
		name += "." + sub.Language
	}
	target := filepath.Join(targetDir, name+ext)

	file, err := os.Create(target)
	if err != nil {
		return "", err
	}
	_, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr != nil {
		return "", copyErr
	}
	if closeErr != nil {
		return "", closeErr
	}
	return target, nil
}

func isTorrentURL(rawURL string) bool {
	return strings.HasPrefix(rawURL, "magnet:") || strings.HasSuffix(strings.ToLower(rawURL), ".torrent")
}

func isHLSURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return strings.Contains(rawURL, ".m3u8")
	}
	return strings.HasSuffix(strings.ToLower(parsed.Path), ".m3u8")
}

// extensionFromURL derives a file extension from the URL path
func extensionFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	switch ext {
	case ".mp4", ".mkv", ".webm", ".avi", ".ts", ".srt", ".ass", ".vtt":
		return ext
	}
	return ""
}

// extensionFromResponse falls back to Content-Type, then Content-Disposition,
// then .mp4.
func extensionFromResponse(resp *http.Response) string {
	switch strings.Split(resp.Header.Get("Content-Type"), ";")[0] {
	case "video/mp4":
		return ".mp4"
	case "video/x-matroska":
		return ".mkv"
	case "video/webm":
		return ".webm"
	case "video/mp2t":
		return ".ts"
	}

	if disposition := resp.Header.Get("Content-Disposition"); disposition != "" {
		if _, dispParams, err := mime.ParseMediaType(disposition); err == nil {
			if ext := strings.ToLower(path.Ext(dispParams["filename"])); ext != "" {
				return ext
			}
		}
	}
	return ".mp4"
}
