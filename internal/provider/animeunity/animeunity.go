// Package animeunity scrapes the AnimeUnity JSON API.
package animeunity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/provider"
)

const siteBase = "https://www.animeunity.to"

// Headers required by the livesearch endpoint
var Headers = map[string]string{
	"Referer":          siteBase + "/",
	"X-Requested-With": "XMLHttpRequest",
}

// Client scrapes AnimeUnity
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

func (c *Client) Name() string { return "animeunity" }

// record mirrors the livesearch record shape
type record struct {
	ID       int    `json:"id"`
	Slug     string `json:"slug"`
	Title    string `json:"title"`
	TitleEng string `json:"title_eng"`
	Type     string `json:"type"`
	Episodes int    `json:"episodes_count"`
	Dub      int    `json:"dub"`
}

// Search posts to the livesearch endpoint
func (c *Client) Search(ctx context.Context, params domain.SearchParams) (*domain.SearchResults, error) {
	if cached := c.cache.Get(params); cached != nil {
		return cached, nil
	}

	form := url.Values{}
	form.Set("title", params.Query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, siteBase+"/livesearch", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("livesearch returned status %d", resp.StatusCode)
	}

	var response struct {
		Records []record `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("parsing livesearch payload: %w", err)
	}
	if len(response.Records) == 0 {
		return nil, nil
	}

	results := &domain.SearchResults{
		PageInfo: domain.PageInfo{Total: len(response.Records), CurrentPage: 1, PerPage: len(response.Records)},
	}
	for _, rec := range response.Records {
		episodes := numberedEpisodes(rec.Episodes)
		providerEpisodes := domain.ProviderEpisodes{Sub: episodes}
		if rec.Dub == 1 {
			providerEpisodes = domain.ProviderEpisodes{Dub: episodes}
		}
		hit := domain.ProviderSearchResult{
			ID:       fmt.Sprintf("%d-%s", rec.ID, rec.Slug),
			Title:    rec.Title,
			Episodes: providerEpisodes,
		}
		if rec.TitleEng != "" && rec.TitleEng != rec.Title {
			hit.OtherTitles = []string{rec.TitleEng}
		}
		results.Results = append(results.Results, hit)
	}

	c.cache.Put(params, results)
	return results, nil
}

func numberedEpisodes(count int) []string {
	episodes := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		episodes = append(episodes, strconv.Itoa(i))
	}
	return episodes
}

// Get fetches the episode rows from the info API
func (c *Client) Get(ctx context.Context, params domain.AnimeParams) (*domain.ProviderAnime, error) {
	numericID := params.ID
	if idx := strings.Index(numericID, "-"); idx > 0 {
		numericID = numericID[:idx]
	}

	endpoint := fmt.Sprintf("%s/info_api/%s/1?start_range=1&end_range=5000", siteBase, numericID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching info: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("info endpoint returned status %d", resp.StatusCode)
	}

	var response struct {
		Title    string `json:"title"`
		Episodes []struct {
			ID     int    `json:"id"`
			Number string `json:"number"`
		} `json:"episodes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("parsing info payload: %w", err)
	}
	if len(response.Episodes) == 0 {
		return nil, nil
	}

	anime := &domain.ProviderAnime{
		ID:          params.ID,
		Title:       response.Title,
		EpisodeInfo: make(map[string]domain.EpisodeInfo, len(response.Episodes)),
	}
	for _, ep := range response.Episodes {
		anime.Episodes.Sub = append(anime.Episodes.Sub, ep.Number)
		anime.EpisodeInfo[ep.Number] = domain.EpisodeInfo{
			ID:      strconv.Itoa(ep.ID),
			Episode: ep.Number,
		}
	}
	return anime, nil
}

var embedPattern = regexp.MustCompile(`embed_url="([^"]+)"`)

// EpisodeStreams resolves the episode's embed host playlist into one server
func (c *Client) EpisodeStreams(ctx context.Context, params domain.EpisodeStreamsParams) (provider.ServerIterator, error) {
	anime, err := c.Get(ctx, domain.AnimeParams{ID: params.AnimeID, Query: params.Query})
	if err != nil {
		return nil, err
	}
	if anime == nil {
		return nil, nil
	}
	info, ok := anime.EpisodeInfo[params.Episode]
	if !ok {
		return nil, nil
	}

	pageURL := fmt.Sprintf("%s/anime/%s/%s", siteBase, params.AnimeID, info.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	buf := new(strings.Builder)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return nil, err
	}

	match := embedPattern.FindStringSubmatch(buf.String())
	if match == nil {
		return nil, nil
	}
	embedURL := strings.ReplaceAll(match[1], "&amp;", "&")

	server := domain.Server{
		Name:    "vixcloud",
		Headers: map[string]string{"Referer": siteBase + "/"},
		Links: []domain.StreamLink{{
			Link: embedURL,
			HLS:  true,
		}},
	}
	return provider.NewSliceIterator([]domain.Server{server}), nil
}

// itaSuffix matches the Italian edition markers AnimeUnity appends
var itaSuffix = regexp.MustCompile(`(?i)\s*\((ita|cr ita|sub ita)\)\s*$`)

// Normalizer strips AnimeUnity's edition suffixes
func (c *Client) Normalizer() func(string) string {
	return func(title string) string {
		return strings.TrimSpace(itaSuffix.ReplaceAllString(title, ""))
	}
}
