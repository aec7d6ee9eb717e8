// Package player launches and supervises the external media player.
package player

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/fumetsu/hibiki/internal/config"
	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/log"
)

// IPCRunner drives a live player session over its control socket.  The
// concrete implementation lives in the ipc subpackage and is injected at
// wiring time.
type IPCRunner interface {
	Run(ctx context.Context, params domain.PlayerParams) (*domain.PlayerResult, error)
}

// Service launches playback, routing between plain process launch and the
// IPC control plane.
type Service struct {
	cfg *config.Config
	ipc IPCRunner
}

// New creates a service.  ipc may be nil, which disables the control plane.
func New(cfg *config.Config, ipc IPCRunner) *Service {
	return &Service{cfg: cfg, ipc: ipc}
}

// Play starts playback and blocks until the player exits.  IPC is used when
// enabled and available; otherwise the player runs plainly and the result is
// scraped from its output.
func (s *Service) Play(ctx context.Context, params domain.PlayerParams) (*domain.PlayerResult, error) {
	url := params.URL
	if isTorrentURL(url) {
		streamed, stop, err := streamTorrent(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("starting torrent stream: %w", err)
		}
		defer stop()
		url = streamed
		params.URL = streamed
	}

	if s.cfg.Player.UseIPC && s.ipc != nil && s.cfg.Player.Type == "mpv" && !isTermux() {
		result, err := s.ipc.Run(ctx, params)
		if err == nil {
			return result, nil
		}
		log.Warn("IPC playback failed, falling back to plain launch", "error", err)
	}

	return s.playPlain(ctx, params)
}

// playPlain launches the configured player and parses its exit output
func (s *Service) playPlain(ctx context.Context, params domain.PlayerParams) (*domain.PlayerResult, error) {
	if isTermux() {
		return s.playTermux(ctx, params)
	}

	var cmd *exec.Cmd
	switch s.cfg.Player.Type {
	case "vlc":
		cmd = s.vlcCommand(ctx, params)
	case "syncplay":
		cmd = s.syncplayCommand(ctx, params)
	default:
		cmd = s.mpvCommand(ctx, params)
	}

	log.Info("Launching player", "type", s.cfg.Player.Type, "episode", params.Episode)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = cmd.Stdout

	SetupPlayerProcess(cmd)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting player: %w", err)
	}

	stop, total := scanAVLines(stdout)
	waitErr := cmd.Wait()
	if waitErr != nil && ctx.Err() == nil {
		log.Debug("Player exited non-zero", "error", waitErr)
	}

	result := &domain.PlayerResult{
		Episode:   params.Episode,
		StopTime:  stop,
		TotalTime: total,
	}
	log.Info("Playback finished", "episode", result.Episode, "stop", result.StopTime, "total", result.TotalTime)
	return result, nil
}

// avLine matches mpv's status line, e.g. "AV: 00:12:34 / 00:23:45 (53%)"
var avLine = regexp.MustCompile(`AV:\s*(\d{2}:\d{2}:\d{2})\s*/\s*(\d{2}:\d{2}:\d{2})`)

// scanAVLines reads the player's output and keeps the last AV status line
func scanAVLines(r interface{ Read([]byte) (int, error) }) (stop, total string) {
	scanner := bufio.NewScanner(r)
	// Status lines are \r-separated while playing
	scanner.Split(scanCRorLF)
	for scanner.Scan() {
		if match := avLine.FindStringSubmatch(scanner.Text()); match != nil {
			stop, total = match[1], match[2]
		}
	}
	return stop, total
}

// scanCRorLF splits on either carriage returns or newlines
func scanCRorLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// isTermux reports whether we are running inside a Termux environment
func isTermux() bool {
	return os.Getenv("TERMUX_VERSION") != ""
}

// playTermux hands the URL to the Android player via an activity intent
func (s *Service) playTermux(ctx context.Context, params domain.PlayerParams) (*domain.PlayerResult, error) {
	cmd := exec.CommandContext(ctx, "am", "start",
		"--user", "0",
		"-a", "android.intent.action.VIEW",
		"-d", params.URL,
		"-n", "is.xyz.mpv/.MPVActivity",
	)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("starting player activity: %w", err)
	}
	// The activity detaches; there is no exit status to parse
	return &domain.PlayerResult{Episode: params.Episode}, nil
}

func isTorrentURL(url string) bool {
	return strings.HasPrefix(url, "magnet:") || strings.HasSuffix(strings.ToLower(url), ".torrent")
}
