// Package ipc drives a live MPV session over its JSON control socket.
package ipc

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/fumetsu/hibiki/internal/config"
	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/log"
	"github.com/fumetsu/hibiki/internal/player"
	"github.com/fumetsu/hibiki/internal/provider"
	"github.com/fumetsu/hibiki/internal/registry"
	"github.com/fumetsu/hibiki/internal/timeutil"
)

// Property observation ids.  The player echoes these back on every
// property-change event.
const (
	propTimePos = iota + 1
	propDuration
	propPercentPos
	propFilename
)

// Session is the playback context a single Run is attached to.  For streaming
// sessions Provider and Anime are set; for local sessions Store and a true
// Local flag are set instead.
type Session struct {
	Provider        provider.Provider
	Anime           *domain.ProviderAnime
	MediaItem       *domain.MediaItem
	Store           *registry.Store
	Local           bool
	TranslationType domain.TranslationType
	Quality         string

	// Tracker receives per-episode progress as the session advances.
	// May be nil, in which case only the final result is reported.
	Tracker ProgressTracker

	// dontPlay suppresses the next launch.  One-shot: reading it clears it.
	dontPlay bool
}

// SetDontPlay arms the playback suppression switch
func (s *Session) SetDontPlay() {
	s.dontPlay = true
}

// TakeDontPlay reads and clears the suppression switch
func (s *Session) TakeDontPlay() bool {
	armed := s.dontPlay
	s.dontPlay = false
	return armed
}

// ProgressTracker records watch progress after each episode transition
type ProgressTracker interface {
	Track(ctx context.Context, item *domain.MediaItem, result domain.PlayerResult) error
}

// Controller owns one player process and its control socket.  It implements
// the player service's IPCRunner contract.
type Controller struct {
	cfg     *config.Config
	session *Session
}

func New(cfg *config.Config) *Controller {
	return &Controller{cfg: cfg}
}

// SetSession attaches the playback context for the next Run.  Run without a
// session fails, which makes the caller fall back to plain playback.
func (c *Controller) SetSession(session *Session) {
	c.session = session
}

// state is the mutable per-run view the main loop updates
type state struct {
	episode  string
	servers  map[string]domain.Server
	order    []string
	server   string
	autoNext bool

	stopSec  float64
	totalSec float64

	fetching  bool
	advanced  bool // auto-next already fired for this episode
	loadCount int
	subtitles []string
}

// Run launches MPV against the control socket and supervises the session
// until the player exits.
func (c *Controller) Run(ctx context.Context, params domain.PlayerParams) (*domain.PlayerResult, error) {
	session := c.session
	if session == nil {
		return nil, fmt.Errorf("no playback session attached")
	}
	c.session = nil

	if session.TakeDontPlay() {
		log.Debug("Playback suppressed for this launch", "episode", params.Episode)
		return &domain.PlayerResult{Episode: params.Episode}, nil
	}

	path := socketPath()
	cmd := c.playerCommand(ctx, path, params)

	player.SetupPlayerProcess(cmd)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting player: %w", err)
	}

	connectCtx, cancelConnect := context.WithTimeout(ctx, 15*time.Second)
	client, err := connect(connectCtx, path)
	cancelConnect()
	if err != nil {
		player.TerminatePlayerProcess(cmd, 2*time.Second)
		removeSocket(path)
		return nil, fmt.Errorf("connecting to player socket: %w", err)
	}

	defer func() {
		client.close()
		player.TerminatePlayerProcess(cmd, 2*time.Second)
		removeSocket(path)
	}()

	c.setupSocket(client)

	st := &state{
		episode:  params.Episode,
		autoNext: c.cfg.Player.AutoNext,
		servers:  map[string]domain.Server{},
	}

	procExit := make(chan error, 1)
	go func() { procExit <- cmd.Wait() }()

	fetchCh := make(chan fetchResult, 4)

	result := c.mainLoop(ctx, client, session, st, fetchCh, procExit)
	return result, nil
}

// playerCommand builds the MPV invocation bound to the control socket
func (c *Controller) playerCommand(ctx context.Context, socket string, params domain.PlayerParams) *exec.Cmd {
	binary := c.cfg.Player.Path
	if binary == "" {
		binary = "mpv"
	}

	args := []string{
		"--input-ipc-server=" + socket,
		"--idle=once",
	}
	if params.Title != "" {
		args = append(args, "--force-media-title="+params.Title)
	}
	if header := player.HeaderFields(params.Headers); header != "" {
		args = append(args, "--http-header-fields="+header)
	}
	for _, sub := range params.Subtitles {
		args = append(args, "--sub-file="+sub)
	}
	if params.StartTime != "" {
		args = append(args, "--start="+params.StartTime)
	}
	if c.cfg.Player.Args != "" {
		args = append(args, player.ParseArgs(c.cfg.Player.Args)...)
	}
	args = append(args, params.URL)

	return exec.CommandContext(ctx, binary, args...)
}

// setupSocket subscribes to the properties and keys the session depends on.
// Individual failures are soft; a half-instrumented session still plays.
func (c *Controller) setupSocket(client *client) {
	if _, err := client.command("request_log_messages", "info"); err != nil {
		log.Debug("Failed to request player log messages", "error", err)
	}

	observed := []struct {
		id       int
		property string
	}{
		{propTimePos, "time-pos"},
		{propDuration, "duration"},
		{propPercentPos, "percent-pos"},
		{propFilename, "filename"},
	}
	for _, obs := range observed {
		if err := client.observe(obs.id, obs.property); err != nil {
			log.Debug("Failed to observe player property", "property", obs.property, "error", err)
		}
	}

	binds := []struct {
		key   string
		token string
	}{
		{"Shift+N", "next-episode"},
		{"Shift+P", "previous-episode"},
		{"Shift+R", "reload-episode"},
		{"Shift+A", "toggle-auto-next"},
		{"Shift+T", "toggle-translation"},
	}
	for _, bind := range binds {
		if err := client.keybind(bind.key, bind.token); err != nil {
			log.Debug("Failed to register keybind", "key", bind.key, "error", err)
		}
	}
}

// mainLoop drains player events and fetch results until the player goes away
func (c *Controller) mainLoop(ctx context.Context, client *client, session *Session, st *state, fetchCh chan fetchResult, procExit <-chan error) *domain.PlayerResult {
	for {
		select {
		case <-ctx.Done():
			log.Debug("Playback context cancelled")
			return c.finish(ctx, session, st)

		case err := <-procExit:
			if err != nil {
				log.Debug("Player process exited non-zero", "error", err)
			}
			return c.finish(ctx, session, st)

		case res := <-fetchCh:
			c.handleFetchResult(ctx, client, session, st, res)

		case msg, ok := <-client.events:
			if !ok {
				return c.finish(ctx, session, st)
			}
			if msg.Event == "shutdown" {
				log.Debug("Player reported shutdown")
				return c.finish(ctx, session, st)
			}
			c.handleEvent(ctx, client, session, st, fetchCh, msg)
		}
	}
}

func (c *Controller) handleEvent(ctx context.Context, client *client, session *Session, st *state, fetchCh chan fetchResult, msg message) {
	switch msg.Event {
	case "property-change":
		c.handleProperty(client, session, st, fetchCh, msg)

	case "client-message":
		if len(msg.Args) > 0 {
			c.handleToken(client, session, st, fetchCh, msg.Args)
		}

	case "file-loaded":
		st.loadCount++
		if st.loadCount > 1 {
			if _, err := client.command("seek", 0, "absolute"); err != nil {
				log.Debug("Seek after load failed", "error", err)
			}
			title := c.episodeTitle(session, st)
			if _, err := client.command("set_property", "title", title); err != nil {
				log.Debug("Setting window title failed", "error", err)
			}
			for i, sub := range st.subtitles {
				mode := "auto"
				if i == 0 {
					mode = "select"
				}
				if _, err := client.command("sub-add", sub, mode); err != nil {
					log.Debug("Adding subtitle track failed", "url", sub, "error", err)
				}
			}
		}

	case "log-message":
		log.Debug("player: " + strings.TrimSpace(msg.Text))
	}
}

func (c *Controller) handleProperty(client *client, session *Session, st *state, fetchCh chan fetchResult, msg message) {
	switch msg.ID {
	case propTimePos:
		if value, ok := msg.float(); ok {
			st.stopSec = value
		}
	case propDuration:
		if value, ok := msg.float(); ok {
			st.totalSec = value
		}
	case propPercentPos:
		value, ok := msg.float()
		if !ok {
			return
		}
		threshold := c.cfg.Tracking.EpisodeCompleteAt
		if threshold <= 0 {
			threshold = 80
		}
		if value >= threshold && st.autoNext && !st.fetching && !st.advanced {
			st.advanced = true
			c.startFetch(client, session, st, fetchCh, fetchNext, "")
		}
	case propFilename:
		if name, ok := msg.str(); ok {
			log.Debug("Player loaded file", "filename", name)
		}
	}
}

// handleToken dispatches incoming script-message commands
func (c *Controller) handleToken(client *client, session *Session, st *state, fetchCh chan fetchResult, args []string) {
	switch args[0] {
	case "next-episode":
		c.startFetch(client, session, st, fetchCh, fetchNext, "")
	case "previous-episode":
		c.startFetch(client, session, st, fetchCh, fetchPrevious, "")
	case "reload-episode":
		c.startFetch(client, session, st, fetchCh, fetchReload, "")
	case "select-episode":
		if len(args) > 1 {
			c.startFetch(client, session, st, fetchCh, fetchCustom, args[1])
		}
	case "toggle-auto-next":
		st.autoNext = !st.autoNext
		if st.autoNext {
			client.osd("Auto-next: on")
		} else {
			client.osd("Auto-next: off")
		}
	case "toggle-translation":
		if session.TranslationType == domain.TranslationDub {
			session.TranslationType = domain.TranslationSub
		} else {
			session.TranslationType = domain.TranslationDub
		}
		client.osd("Translation: " + string(session.TranslationType))
		c.startFetch(client, session, st, fetchCh, fetchReload, "")
	case "select-server":
		if len(args) > 1 {
			c.switchServer(client, st, args[1])
		}
	case "select-quality":
		if len(args) > 1 {
			c.switchQuality(client, session, st, args[1])
		}
	default:
		log.Debug("Unknown player message", "token", args[0])
	}
}

// switchServer reloads the current episode from a different known server
func (c *Controller) switchServer(client *client, st *state, name string) {
	server, ok := st.servers[name]
	if !ok {
		client.osd("Unknown server: " + name)
		return
	}
	link := server.BestLink(c.cfg.Player.Quality)
	if link == nil {
		client.osd("Server has no streams: " + name)
		return
	}
	st.server = name
	st.stopSec, st.totalSec = 0, 0
	client.osd("Switching to server " + name)
	if _, err := client.command("loadfile", link.Link, "replace"); err != nil {
		log.Warn("Server switch failed", "server", name, "error", err)
	}
}

// switchQuality re-picks a link of the wanted quality from the current server
func (c *Controller) switchQuality(client *client, session *Session, st *state, quality string) {
	server, ok := st.servers[st.server]
	if !ok {
		client.osd("No server to pick quality from")
		return
	}
	session.Quality = quality
	link := server.BestLink(quality)
	if link == nil {
		client.osd("No stream at quality " + quality)
		return
	}
	st.stopSec, st.totalSec = 0, 0
	client.osd("Quality: " + link.Quality)
	if _, err := client.command("loadfile", link.Link, "replace"); err != nil {
		log.Warn("Quality switch failed", "quality", quality, "error", err)
	}
}

// handleFetchResult applies a finished background fetch to the session
func (c *Controller) handleFetchResult(ctx context.Context, client *client, session *Session, st *state, res fetchResult) {
	st.fetching = false

	if res.err != nil {
		log.Warn("Episode fetch failed", "error", res.err)
		client.osd(res.err.Error())
		st.advanced = false
		return
	}

	c.trackCurrent(ctx, session, st)

	st.episode = res.episode
	st.servers = res.servers
	st.order = res.order
	st.server = res.server
	st.subtitles = res.subtitles
	st.stopSec, st.totalSec = 0, 0
	st.advanced = false

	client.osd("Playing episode " + res.episode)
	if _, err := client.command("loadfile", res.url, "replace"); err != nil {
		log.Warn("Loading fetched episode failed", "episode", res.episode, "error", err)
	}
}

// trackCurrent reports the outgoing episode's progress before switching away
func (c *Controller) trackCurrent(ctx context.Context, session *Session, st *state) {
	if session.Tracker == nil || session.MediaItem == nil || st.episode == "" {
		return
	}
	result := domain.PlayerResult{
		Episode:   st.episode,
		StopTime:  timeutil.FormatClock(int(st.stopSec)),
		TotalTime: timeutil.FormatClock(int(st.totalSec)),
	}
	if err := session.Tracker.Track(ctx, session.MediaItem, result); err != nil {
		log.Warn("Tracking watch progress failed", "episode", st.episode, "error", err)
	}
}

// finish assembles the final result from the last observed timers
func (c *Controller) finish(ctx context.Context, session *Session, st *state) *domain.PlayerResult {
	result := &domain.PlayerResult{Episode: st.episode}
	if st.stopSec > 0 {
		result.StopTime = timeutil.FormatClock(int(st.stopSec))
	}
	if st.totalSec > 0 {
		result.TotalTime = timeutil.FormatClock(int(st.totalSec))
	}
	log.Info("IPC session finished", "episode", result.Episode, "stop", result.StopTime, "total", result.TotalTime)
	return result
}

// episodeTitle renders the window title for the playing episode
func (c *Controller) episodeTitle(session *Session, st *state) string {
	name := ""
	switch {
	case session.MediaItem != nil:
		name = session.MediaItem.Title.Preferred()
	case session.Anime != nil:
		name = session.Anime.Title
	}
	if name == "" {
		return "Episode " + st.episode
	}
	return fmt.Sprintf("%s - Episode %s", name, st.episode)
}
