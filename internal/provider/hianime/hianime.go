// Package hianime scrapes the HiAnime ajax endpoints.
package hianime

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/log"
	"github.com/fumetsu/hibiki/internal/provider"
)

const siteBase = "https://hianime.to"

// Headers marks every call as an ajax request, which the site requires
var Headers = map[string]string{
	"Referer":          siteBase + "/",
	"X-Requested-With": "XMLHttpRequest",
}

// Client scrapes HiAnime
type Client struct {
	httpClient *http.Client
	cache      *provider.SearchCache
}

// New creates a ready client
func New() *Client {
	return &Client{
		httpClient: provider.NewHTTPClient(Headers),
		cache:      provider.NewSearchCache(),
	}
}

func (c *Client) Name() string { return "hianime" }

// getJSON fetches an ajax endpoint whose payload is HTML wrapped in JSON
func (c *Client) getJSON(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

var (
	searchItemPattern = regexp.MustCompile(`(?s)<a href="/([\w-]+-(\d+))\?[^"]*" class="[^"]*dynamic-name[^"]*"[^>]*title="([^"]*)"`)
	subCountPattern   = regexp.MustCompile(`<div class="tick-item tick-sub">[^<]*?(\d+)`)
	dubCountPattern   = regexp.MustCompile(`<div class="tick-item tick-dub">[^<]*?(\d+)`)
)

// Search queries the ajax search suggest endpoint and parses the HTML payload
func (c *Client) Search(ctx context.Context, params domain.SearchParams) (*domain.SearchResults, error) {
	if cached := c.cache.Get(params); cached != nil {
		return cached, nil
	}

	endpoint := siteBase + "/ajax/search/suggest?keyword=" + url.QueryEscape(params.Query)
	var response struct {
		HTML string `json:"html"`
	}
	if err := c.getJSON(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}

	matches := searchItemPattern.FindAllStringSubmatch(response.HTML, -1)
	if len(matches) == 0 {
		return nil, nil
	}

	results := &domain.SearchResults{
		PageInfo: domain.PageInfo{Total: len(matches), CurrentPage: 1, PerPage: len(matches)},
	}
	for _, match := range matches {
		results.Results = append(results.Results, domain.ProviderSearchResult{
			ID:    match[2],
			Title: html.UnescapeString(match[3]),
		})
	}

	c.cache.Put(params, results)
	return results, nil
}

var episodeItemPattern = regexp.MustCompile(`data-number="([\d.]+)"[^>]*data-id="(\d+)"[^>]*title="([^"]*)"`)

// Get fetches the episode list for a show id
func (c *Client) Get(ctx context.Context, params domain.AnimeParams) (*domain.ProviderAnime, error) {
	endpoint := fmt.Sprintf("%s/ajax/v2/episode/list/%s", siteBase, params.ID)
	var response struct {
		HTML string `json:"html"`
	}
	if err := c.getJSON(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("fetching episode list: %w", err)
	}

	matches := episodeItemPattern.FindAllStringSubmatch(response.HTML, -1)
	if len(matches) == 0 {
		return nil, nil
	}

	anime := &domain.ProviderAnime{
		ID:          params.ID,
		Title:       params.Query,
		EpisodeInfo: make(map[string]domain.EpisodeInfo, len(matches)),
	}
	for _, match := range matches {
		number := match[1]
		anime.Episodes.Sub = append(anime.Episodes.Sub, number)
		anime.Episodes.Dub = append(anime.Episodes.Dub, number)
		anime.EpisodeInfo[number] = domain.EpisodeInfo{
			ID:      match[2],
			Episode: number,
			Title:   html.UnescapeString(match[3]),
		}
	}
	return anime, nil
}

// serverItemPattern parses one hosting server row of the episode servers payload
var serverItemPattern = regexp.MustCompile(`data-type="(sub|dub|raw)"[^>]*data-id="(\d+)"[^>]*>\s*(?:<[^>]+>)*\s*([A-Za-z0-9-]+)`)

// EpisodeStreams lists the episode's servers, then resolves each embed source
// lazily one pull at a time.
func (c *Client) EpisodeStreams(ctx context.Context, params domain.EpisodeStreamsParams) (provider.ServerIterator, error) {
	episodeID, err := c.episodeID(ctx, params)
	if err != nil {
		return nil, err
	}
	if episodeID == "" {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/ajax/v2/episode/servers?episodeId=%s", siteBase, episodeID)
	var response struct {
		HTML string `json:"html"`
	}
	if err := c.getJSON(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("fetching servers: %w", err)
	}

	wanted := params.TranslationType
	if wanted == "" {
		wanted = domain.TranslationSub
	}
	type serverRef struct {
		id   string
		name string
	}
	var refs []serverRef
	for _, match := range serverItemPattern.FindAllStringSubmatch(response.HTML, -1) {
		if match[1] != string(wanted) {
			continue
		}
		refs = append(refs, serverRef{id: match[2], name: match[3]})
	}
	if len(refs) == 0 {
		return nil, nil
	}

	iterCtx, cancel := context.WithCancel(ctx)
	pos := 0
	fetch := func() *domain.Server {
		for pos < len(refs) {
			ref := refs[pos]
			pos++
			server, err := c.resolveServer(iterCtx, ref.id, ref.name, params.WantSubtitles)
			if err != nil {
				log.Warn("Skipping unresolvable server", "provider", c.Name(), "server", ref.name, "error", err)
				continue
			}
			if server != nil {
				return server
			}
		}
		return nil
	}
	return provider.NewFuncIterator(fetch, cancel), nil
}

// resolveServer turns a server id into its playable source set
func (c *Client) resolveServer(ctx context.Context, serverID, name string, wantSubtitles bool) (*domain.Server, error) {
	endpoint := fmt.Sprintf("%s/ajax/v2/episode/sources?id=%s", siteBase, serverID)
	var sourceRef struct {
		Link string `json:"link"`
	}
	if err := c.getJSON(ctx, endpoint, &sourceRef); err != nil {
		return nil, err
	}
	if sourceRef.Link == "" {
		return nil, nil
	}

	// The embed host exposes its sources at getSources keyed by the embed id
	embedURL, err := url.Parse(sourceRef.Link)
	if err != nil {
		return nil, err
	}
	embedID := strings.TrimSuffix(embedURL.Path[strings.LastIndex(embedURL.Path, "/")+1:], "?")
	sourcesEndpoint := fmt.Sprintf("%s://%s/ajax/embed-6-v2/getSources?id=%s", embedURL.Scheme, embedURL.Host, embedID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourcesEndpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Sources []struct {
			File string `json:"file"`
			Type string `json:"type"`
		} `json:"sources"`
		Tracks []struct {
			File  string `json:"file"`
			Label string `json:"label"`
			Kind  string `json:"kind"`
		} `json:"tracks"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing sources payload: %w", err)
	}
	if len(payload.Sources) == 0 {
		return nil, nil
	}

	server := &domain.Server{
		Name:    name,
		Headers: map[string]string{"Referer": sourceRef.Link},
	}
	for _, src := range payload.Sources {
		server.Links = append(server.Links, domain.StreamLink{
			Link: src.File,
			HLS:  src.Type == "hls" || strings.Contains(src.File, ".m3u8"),
		})
	}
	if wantSubtitles {
		for _, track := range payload.Tracks {
			if track.Kind != "captions" {
				continue
			}
			server.Subtitles = append(server.Subtitles, domain.SubtitleTrack{URL: track.File, Language: track.Label})
		}
	}
	return server, nil
}

// episodeID maps an episode number onto the site's internal episode id
func (c *Client) episodeID(ctx context.Context, params domain.EpisodeStreamsParams) (string, error) {
	anime, err := c.Get(ctx, domain.AnimeParams{ID: params.AnimeID, Query: params.Query})
	if err != nil {
		return "", err
	}
	if anime == nil {
		return "", nil
	}
	info, ok := anime.EpisodeInfo[params.Episode]
	if !ok {
		return "", nil
	}
	return info.ID, nil
}

// suffixPattern matches the season and audio markers HiAnime appends
var suffixPattern = regexp.MustCompile(`(?i)\s*((\d+)(st|nd|rd|th) season|season \d+|\(dub\))\s*$`)

// Normalizer strips HiAnime's title decorations
func (c *Client) Normalizer() func(string) string {
	return func(title string) string {
		return strings.TrimSpace(suffixPattern.ReplaceAllString(title, ""))
	}
}
