package player

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/fumetsu/hibiki/internal/domain"
)

// mpvCommand builds the plain MPV invocation
func (s *Service) mpvCommand(ctx context.Context, params domain.PlayerParams) *exec.Cmd {
	binary := s.cfg.Player.Path
	if binary == "" {
		binary = "mpv"
	}

	args := []string{"--no-terminal=no"}
	if params.Title != "" {
		args = append(args, "--force-media-title="+params.Title)
	}
	if header := HeaderFields(params.Headers); header != "" {
		args = append(args, "--http-header-fields="+header)
	}
	for _, sub := range params.Subtitles {
		args = append(args, "--sub-file="+sub)
	}
	if params.StartTime != "" {
		args = append(args, "--start="+params.StartTime)
	}
	if s.cfg.Player.Args != "" {
		args = append(args, ParseArgs(s.cfg.Player.Args)...)
	}
	args = append(args, params.URL)

	return exec.CommandContext(ctx, binary, args...)
}

// vlcCommand builds the VLC invocation
func (s *Service) vlcCommand(ctx context.Context, params domain.PlayerParams) *exec.Cmd {
	binary := s.cfg.Player.Path
	if binary == "" {
		binary = "vlc"
	}

	args := []string{"--play-and-exit"}
	if params.Title != "" {
		args = append(args, "--meta-title="+params.Title)
	}
	for key, value := range params.Headers {
		if strings.EqualFold(key, "Referer") {
			args = append(args, "--http-referrer="+value)
		}
		if strings.EqualFold(key, "User-Agent") {
			args = append(args, "--http-user-agent="+value)
		}
	}
	for _, sub := range params.Subtitles {
		args = append(args, "--sub-file="+sub)
	}
	if params.StartTime != "" {
		args = append(args, "--start-time="+startSeconds(params.StartTime))
	}
	if s.cfg.Player.Args != "" {
		args = append(args, ParseArgs(s.cfg.Player.Args)...)
	}
	args = append(args, params.URL)

	return exec.CommandContext(ctx, binary, args...)
}

// syncplayCommand wraps MPV in syncplay for shared playback
func (s *Service) syncplayCommand(ctx context.Context, params domain.PlayerParams) *exec.Cmd {
	args := []string{"--player-path", "mpv"}
	if s.cfg.Player.Args != "" {
		args = append(args, ParseArgs(s.cfg.Player.Args)...)
	}
	args = append(args, params.URL, "--")
	if params.Title != "" {
		args = append(args, "--force-media-title="+params.Title)
	}
	if header := HeaderFields(params.Headers); header != "" {
		args = append(args, "--http-header-fields="+header)
	}

	return exec.CommandContext(ctx, "syncplay", args...)
}

// HeaderFields renders headers as MPV's comma-joined k:v list, ordered for
// stable argv.
func HeaderFields(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}
	keys := make([]string, 0, len(headers))
	for key := range headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+": "+headers[key])
	}
	return strings.Join(pairs, ",")
}

// startSeconds converts "HH:MM:SS" into the seconds string VLC expects
func startSeconds(clock string) string {
	parts := strings.Split(clock, ":")
	total := 0
	for _, part := range parts {
		n := 0
		fmt.Sscanf(part, "%d", &n)
		total = total*60 + n
	}
	return fmt.Sprintf("%d", total)
}

// ParseArgs splits a string of command-line arguments, respecting quotes
func ParseArgs(argsString string) []string {
	var args []string
	inQuotes := false
	current := ""

	for _, r := range argsString {
		switch r {
		case '"', '\'':
			inQuotes = !inQuotes
		case ' ':
			if !inQuotes {
				if current != "" {
					args = append(args, current)
					current = ""
				}
			} else {
				current += string(r)
			}
		default:
			current += string(r)
		}
	}

	if current != "" {
		args = append(args, current)
	}

	return args
}
