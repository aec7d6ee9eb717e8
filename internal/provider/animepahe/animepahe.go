// Package animepahe scrapes the animepahe JSON API.
package animepahe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/log"
	"github.com/fumetsu/hibiki/internal/provider"
)

const apiBase = "https://animepahe.ru/api"

// Headers carries the DDoS-guard cookie the site requires on every call
var Headers = map[string]string{
	"Cookie":  "__ddg2_=1234567890",
	"Referer": "https://animepahe.ru/",
}

// Client scrapes animepahe
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

func (c *Client) Name() string { return "animepahe" }

func (c *Client) get(ctx context.Context, query url.Values, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("api returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

// Search queries the search endpoint.  Animepahe does not distinguish sub and
// dub at search level, so every hit lists its episodes under sub.
func (c *Client) Search(ctx context.Context, params domain.SearchParams) (*domain.SearchResults, error) {
	if cached := c.cache.Get(params); cached != nil {
		return cached, nil
	}

	query := url.Values{}
	query.Set("m", "search")
	query.Set("q", params.Query)

	var response struct {
		Total int `json:"total"`
		Data  []struct {
			ID       int    `json:"id"`
			Session  string `json:"session"`
			Title    string `json:"title"`
			Episodes int    `json:"episodes"`
		} `json:"data"`
	}
	if err := c.get(ctx, query, &response); err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}
	if len(response.Data) == 0 {
		return nil, nil
	}

	results := &domain.SearchResults{
		PageInfo: domain.PageInfo{Total: response.Total, CurrentPage: 1, PerPage: len(response.Data)},
	}
	for _, hit := range response.Data {
		episodes := make([]string, 0, hit.Episodes)
		for i := 1; i <= hit.Episodes; i++ {
			episodes = append(episodes, strconv.Itoa(i))
		}
		results.Results = append(results.Results, domain.ProviderSearchResult{
			ID:       hit.Session,
			Title:    hit.Title,
			Episodes: domain.ProviderEpisodes{Sub: episodes},
		})
	}

	c.cache.Put(params, results)
	return results, nil
}

// Get walks the release pages for a session id and returns the episode map
func (c *Client) Get(ctx context.Context, params domain.AnimeParams) (*domain.ProviderAnime, error) {
	anime := &domain.ProviderAnime{
		ID:          params.ID,
		Title:       params.Query,
		EpisodeInfo: make(map[string]domain.EpisodeInfo),
	}

	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("m", "release")
		query.Set("id", params.ID)
		query.Set("sort", "episode_asc")
		query.Set("page", strconv.Itoa(page))

		var response struct {
			LastPage int `json:"last_page"`
			Data     []struct {
				Session  string  `json:"session"`
				Episode  float64 `json:"episode"`
				Title    string  `json:"title"`
				Snapshot string  `json:"snapshot"`
				Duration string  `json:"duration"`
			} `json:"data"`
		}
		if err := c.get(ctx, query, &response); err != nil {
			return nil, fmt.Errorf("fetching releases: %w", err)
		}
		if len(response.Data) == 0 {
			break
		}

		for _, ep := range response.Data {
			number := formatEpisode(ep.Episode)
			anime.Episodes.Sub = append(anime.Episodes.Sub, number)
			anime.EpisodeInfo[number] = domain.EpisodeInfo{
				ID:      ep.Session,
				Episode: number,
				Title:   ep.Title,
				Poster:  ep.Snapshot,
			}
		}
		if page >= response.LastPage {
			break
		}
	}

	if len(anime.Episodes.Sub) == 0 {
		return nil, nil
	}
	return anime, nil
}

func formatEpisode(episode float64) string {
	if episode == float64(int(episode)) {
		return strconv.Itoa(int(episode))
	}
	return strconv.FormatFloat(episode, 'f', -1, 64)
}

// kwikPattern pulls the stream metadata rows out of the play page
var kwikPattern = regexp.MustCompile(`data-src="(https://kwik\.[^"]+)"[^>]*data-fansub="([^"]*)"[^>]*data-resolution="(\d+)"[^>]*(data-audio="([^"]*)")?`)

// EpisodeStreams resolves the play page for an episode into a single server.
// Animepahe hosts everything on kwik, so there is one server with one link
// per offered resolution.
func (c *Client) EpisodeStreams(ctx context.Context, params domain.EpisodeStreamsParams) (provider.ServerIterator, error) {
	episodeSession, err := c.episodeSession(ctx, params)
	if err != nil {
		return nil, err
	}
	if episodeSession == "" {
		return nil, nil
	}

	playURL := fmt.Sprintf("https://animepahe.ru/play/%s/%s", params.AnimeID, episodeSession)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playURL, nil)
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

	matches := kwikPattern.FindAllStringSubmatch(string(body), -1)
	if len(matches) == 0 {
		log.Debug("No streams on play page", "provider", c.Name(), "episode", params.Episode)
		return nil, nil
	}

	server := domain.Server{
		Name:    "kwik",
		Headers: map[string]string{"Referer": "https://kwik.cx/"},
	}
	for _, match := range matches {
		audio := ""
		if len(match) > 5 {
			audio = match[5]
		}
		if params.TranslationType == domain.TranslationDub && audio != "eng" {
			continue
		}
		server.Links = append(server.Links, domain.StreamLink{
			Link:    match[1],
			Quality: match[3],
			HLS:     true,
		})
		if audio != "" {
			server.Audio = appendUnique(server.Audio, audio)
		}
	}
	if len(server.Links) == 0 {
		return nil, nil
	}
	return provider.NewSliceIterator([]domain.Server{server}), nil
}

// episodeSession finds the per-episode session token for an episode number
func (c *Client) episodeSession(ctx context.Context, params domain.EpisodeStreamsParams) (string, error) {
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

func appendUnique(list []string, value string) []string {
	for _, have := range list {
		if have == value {
			return list
		}
	}
	return append(list, value)
}

// Normalizer is the identity; animepahe reports catalog-clean titles
func (c *Client) Normalizer() func(string) string {
	return provider.IdentityNormalizer
}
