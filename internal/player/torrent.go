package player

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"time"

	"github.com/fumetsu/hibiki/internal/log"
)

// serverLine matches the local endpoint the torrent streamer prints
var serverLine = regexp.MustCompile(`(http://(?:localhost|127\.0\.0\.1):\d+/\S*)`)

// streamTorrent proxies a torrent into a local HTTP endpoint the player can
// consume.  The returned stop function tears the proxy down.
func streamTorrent(ctx context.Context, url string) (string, func(), error) {
	if _, err := exec.LookPath("webtorrent"); err != nil {
		return "", nil, fmt.Errorf("torrent streamer not found: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(streamCtx, "webtorrent", url, "--keep-seeding", "--quiet", "--port", "0")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return "", nil, err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return "", nil, err
	}

	endpoint := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if match := serverLine.FindStringSubmatch(scanner.Text()); match != nil {
				endpoint <- match[1]
				break
			}
		}
		// Keep draining so the streamer never blocks on a full pipe
		for scanner.Scan() {
		}
	}()

	stop := func() {
		cancel()
		_ = cmd.Wait()
	}

	select {
	case streamURL := <-endpoint:
		log.Info("Torrent stream ready", "endpoint", streamURL)
		return streamURL, stop, nil
	case <-time.After(60 * time.Second):
		stop()
		return "", nil, fmt.Errorf("torrent streamer produced no endpoint within 60s")
	case <-ctx.Done():
		stop()
		return "", nil, ctx.Err()
	}
}
