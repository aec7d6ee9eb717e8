package ipc

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/log"
	"github.com/fumetsu/hibiki/internal/timeutil"
)

// fetchKind names the episode the user asked for relative to the current one
type fetchKind int

const (
	fetchNext fetchKind = iota
	fetchPrevious
	fetchReload
	fetchCustom
)

// fetchResult is what a background fetch posts back to the main loop
type fetchResult struct {
	episode   string
	url       string
	server    string
	servers   map[string]domain.Server
	order     []string
	subtitles []string
	err       error
}

// startFetch kicks off a background episode fetch.  While one is in flight,
// further requests are rejected with an on-screen message.
func (c *Controller) startFetch(client *client, session *Session, st *state, fetchCh chan fetchResult, kind fetchKind, custom string) {
	if st.fetching {
		client.osd("Still fetching, hold on")
		return
	}

	// A target that cannot resolve (typically the end of the list) keeps
	// advanced latched, otherwise auto-next would re-fire on every position
	// event past the threshold.
	target, err := c.resolveTarget(session, st, kind, custom)
	if err != nil {
		client.osd(err.Error())
		return
	}

	st.fetching = true
	client.osd("Fetching episode " + target)
	log.Info("Fetching episode", "episode", target, "translation", session.TranslationType)

	go func() {
		if session.Local {
			fetchCh <- c.fetchLocal(session, target)
			return
		}
		fetchCh <- c.fetchStreams(session, target)
	}()
}

// resolveTarget maps a switch request onto a concrete episode identifier,
// enforcing list bounds.
func (c *Controller) resolveTarget(session *Session, st *state, kind fetchKind, custom string) (string, error) {
	episodes := c.episodeList(session)
	if len(episodes) == 0 {
		return "", fmt.Errorf("no episodes available")
	}

	index := -1
	for i, ep := range episodes {
		if ep == st.episode {
			index = i
			break
		}
	}

	switch kind {
	case fetchNext:
		if index >= len(episodes)-1 {
			return "", fmt.Errorf("already at the last episode")
		}
		return episodes[index+1], nil
	case fetchPrevious:
		if index <= 0 {
			return "", fmt.Errorf("already at the first episode")
		}
		return episodes[index-1], nil
	case fetchReload:
		if st.episode == "" {
			return "", fmt.Errorf("no episode playing")
		}
		return st.episode, nil
	default:
		for _, ep := range episodes {
			if ep == custom {
				return ep, nil
			}
		}
		return "", fmt.Errorf("no such episode: %s", custom)
	}
}

// episodeList returns the navigable episode identifiers for the session
func (c *Controller) episodeList(session *Session) []string {
	if session.Local {
		return c.localEpisodes(session)
	}
	if session.Anime == nil {
		return nil
	}
	return session.Anime.Episodes.For(session.TranslationType)
}

// localEpisodes lists the registry episodes that have a file on disk
func (c *Controller) localEpisodes(session *Session) []string {
	if session.Store == nil || session.MediaItem == nil {
		return nil
	}
	record := session.Store.MediaRecord(session.MediaItem.ID)
	if record == nil {
		return nil
	}

	var episodes []string
	for _, ep := range record.MediaEpisodes {
		if ep.FilePath != "" {
			episodes = append(episodes, ep.EpisodeNumber)
		}
	}
	sort.Slice(episodes, func(i, j int) bool {
		return timeutil.CompareEpisodes(episodes[i], episodes[j]) < 0
	})
	return episodes
}

// fetchStreams resolves an episode through the provider and collects its
// servers.  This is the only place in the session that does network I/O, and
// it runs off the main loop.
func (c *Controller) fetchStreams(session *Session, episode string) fetchResult {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	iterator, err := session.Provider.EpisodeStreams(ctx, domain.EpisodeStreamsParams{
		AnimeID:         session.Anime.ID,
		Episode:         episode,
		TranslationType: session.TranslationType,
		Quality:         session.Quality,
		WantSubtitles:   true,
	})
	if err != nil {
		return fetchResult{err: fmt.Errorf("fetching streams for episode %s: %w", episode, err)}
	}
	if iterator == nil {
		return fetchResult{err: fmt.Errorf("no streams for episode %s", episode)}
	}
	defer iterator.Close()

	servers := map[string]domain.Server{}
	var order []string
	for server := iterator.Next(); server != nil; server = iterator.Next() {
		if len(server.Links) == 0 {
			continue
		}
		if _, seen := servers[server.Name]; seen {
			continue
		}
		servers[server.Name] = *server
		order = append(order, server.Name)
	}
	if len(order) == 0 {
		return fetchResult{err: fmt.Errorf("no streams for episode %s", episode)}
	}

	chosen := order[0]
	server := servers[chosen]
	link := server.BestLink(session.Quality)

	var subtitles []string
	for _, track := range server.Subtitles {
		subtitles = append(subtitles, track.URL)
	}

	return fetchResult{
		episode:   episode,
		url:       link.Link,
		server:    chosen,
		servers:   servers,
		order:     order,
		subtitles: subtitles,
	}
}

// fetchLocal resolves an episode to its downloaded file
func (c *Controller) fetchLocal(session *Session, episode string) fetchResult {
	record := session.Store.MediaRecord(session.MediaItem.ID)
	if record == nil {
		return fetchResult{err: fmt.Errorf("no local record for media %d", session.MediaItem.ID)}
	}
	ep := record.Episode(episode)
	if ep == nil || ep.FilePath == "" {
		return fetchResult{err: fmt.Errorf("episode %s is not downloaded", episode)}
	}
	if _, err := os.Stat(ep.FilePath); err != nil {
		return fetchResult{err: fmt.Errorf("episode %s file is missing: %s", episode, ep.FilePath)}
	}

	return fetchResult{
		episode:   episode,
		url:       ep.FilePath,
		server:    ep.ServerName,
		servers:   map[string]domain.Server{},
		subtitles: append([]string(nil), ep.SubtitlePaths...),
	}
}
