package downloader

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fumetsu/hibiki/internal/log"
)

// downloadHLS remuxes an HLS playlist into a local container via the
// transcoder.  A missing transcoder is a hard error; dumping raw playlist
// bytes would produce an unplayable file.
func (d *Downloader) downloadHLS(ctx context.Context, params DownloadParams, target string) error {
	if _, err := exec.LookPath(d.ffmpegPath); err != nil {
		return fmt.Errorf("transcoder %q not found, required for HLS downloads: %w", d.ffmpegPath, err)
	}

	if _, err := os.Stat(target); err == nil {
		if params.Prompt == nil || !params.Prompt(target) {
			log.Info("Target already exists, keeping existing file", "path", target)
			return nil
		}
	}

	args := []string{"-y", "-loglevel", "error"}
	if len(params.Headers) > 0 {
		args = append(args, "-headers", headerBlock(params.Headers))
	}
	args = append(args,
		"-i", params.URL,
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		target,
	)

	cmd := exec.CommandContext(ctx, d.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("transcoder failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func headerBlock(headers map[string]string) string {
	var builder strings.Builder
	for key, value := range headers {
		builder.WriteString(key)
		builder.WriteString(": ")
		builder.WriteString(value)
		builder.WriteString("\r\n")
	}
	return builder.String()
}

// downloadTorrent delegates magnet and .torrent URLs to the torrent fetcher
// and returns the largest file it produced.
func (d *Downloader) downloadTorrent(ctx context.Context, params DownloadParams, targetDir string) (string, error) {
	if _, err := exec.LookPath(d.webtorrentPath); err != nil {
		return "", fmt.Errorf("torrent fetcher %q not found: %w", d.webtorrentPath, err)
	}

	cmd := exec.CommandContext(ctx, d.webtorrentPath, "download", params.URL, "--out", targetDir, "--quiet")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("torrent fetcher failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	video, err := largestVideoFile(targetDir)
	if err != nil {
		return "", err
	}
	return video, nil
}

// largestVideoFile walks dir for the biggest media file
func largestVideoFile(dir string) (string, error) {
	var best string
	var bestSize int64
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".mp4", ".mkv", ".webm", ".avi", ".ts":
			if info.Size() > bestSize {
				best = path
				bestSize = info.Size()
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if best == "" {
		return "", fmt.Errorf("torrent produced no video file in %s", dir)
	}
	return best, nil
}

// mergeSubtitles muxes subtitle sidecars into the video container.  The merge
// writes to a tempfile in the target directory and atomically replaces the
// video on success.
func (d *Downloader) mergeSubtitles(ctx context.Context, videoPath string, subtitlePaths []string, clean bool) (string, error) {
	if _, err := exec.LookPath(d.ffmpegPath); err != nil {
		return "", fmt.Errorf("transcoder %q not found, required for subtitle merge: %w", d.ffmpegPath, err)
	}

	dir := filepath.Dir(videoPath)
	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	// Subtitle streams need a container that carries them
	merged := filepath.Join(dir, base+".mkv")
	temp := filepath.Join(dir, "."+base+".merge.tmp.mkv")

	args := []string{"-y", "-loglevel", "error", "-i", videoPath}
	for _, sub := range subtitlePaths {
		args = append(args, "-i", sub)
	}
	args = append(args, "-map", "0:v", "-map", "0:a?")
	for i := range subtitlePaths {
		args = append(args, "-map", fmt.Sprintf("%d:s", i+1))
	}
	args = append(args, "-c", "copy", temp)

	cmd := exec.CommandContext(ctx, d.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(temp)
		return "", fmt.Errorf("transcoder failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	if err := os.Rename(temp, merged); err != nil {
		os.Remove(temp)
		return "", err
	}

	if clean {
		if merged != videoPath {
			if err := os.Remove(videoPath); err != nil && !os.IsNotExist(err) {
				log.Warn("Failed to remove original video after merge", "path", videoPath, "error", err)
			}
		}
		for _, sub := range subtitlePaths {
			if err := os.Remove(sub); err != nil && !os.IsNotExist(err) {
				log.Warn("Failed to remove subtitle after merge", "path", sub, "error", err)
			}
		}
	}

	log.Info("Merged subtitles", "video", merged, "tracks", len(subtitlePaths))
	return merged, nil
}
