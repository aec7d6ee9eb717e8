// Package yugen scrapes YugenAnime.
package yugen

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/provider"
)

const siteBase = "https://yugenanime.tv"

// Headers required by the embed API
var Headers = map[string]string{
	"Referer":          siteBase + "/",
	"X-Requested-With": "XMLHttpRequest",
}

// Client scrapes YugenAnime
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

func (c *Client) Name() string { return "yugen" }

func (c *Client) fetch(ctx context.Context, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

var (
	resultPattern  = regexp.MustCompile(`<a href="/anime/(\d+)/([\w-]+)/"[^>]*title="([^"]*)"`)
	episodePattern = regexp.MustCompile(`Episodes:\s*</span>\s*(\d+)`)
)

// Search scrapes the discover page for matching titles
func (c *Client) Search(ctx context.Context, params domain.SearchParams) (*domain.SearchResults, error) {
	if cached := c.cache.Get(params); cached != nil {
		return cached, nil
	}

	page, err := c.fetch(ctx, siteBase+"/discover/?q="+url.QueryEscape(params.Query))
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}

	matches := resultPattern.FindAllStringSubmatch(page, -1)
	if len(matches) == 0 {
		return nil, nil
	}

	results := &domain.SearchResults{
		PageInfo: domain.PageInfo{Total: len(matches), CurrentPage: 1, PerPage: len(matches)},
	}
	for _, match := range matches {
		results.Results = append(results.Results, domain.ProviderSearchResult{
			ID:    match[1] + "/" + match[2],
			Title: html.UnescapeString(match[3]),
		})
	}

	c.cache.Put(params, results)
	return results, nil
}

// Get scrapes the anime page for its episode count
func (c *Client) Get(ctx context.Context, params domain.AnimeParams) (*domain.ProviderAnime, error) {
	page, err := c.fetch(ctx, fmt.Sprintf("%s/anime/%s/", siteBase, params.ID))
	if err != nil {
		return nil, fmt.Errorf("fetching anime page: %w", err)
	}

	match := episodePattern.FindStringSubmatch(page)
	if match == nil {
		return nil, nil
	}
	count, _ := strconv.Atoi(match[1])

	episodes := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		episodes = append(episodes, strconv.Itoa(i))
	}
	return &domain.ProviderAnime{
		ID:       params.ID,
		Title:    params.Query,
		Episodes: domain.ProviderEpisodes{Sub: episodes, Dub: episodes},
	}, nil
}

// EpisodeStreams posts the episode embed id to the embed API and returns the
// HLS sources as a single server.
func (c *Client) EpisodeStreams(ctx context.Context, params domain.EpisodeStreamsParams) (provider.ServerIterator, error) {
	prefix := ""
	if params.TranslationType == domain.TranslationDub {
		prefix = "dub/"
	}
	// The watch page embeds a base64 id consumed by the embed API
	page, err := c.fetch(ctx, fmt.Sprintf("%s/watch/%s/%s%s/", siteBase, params.AnimeID, prefix, params.Episode))
	if err != nil {
		return nil, fmt.Errorf("fetching watch page: %w", err)
	}

	embedPattern := regexp.MustCompile(`id="main-embed"[^>]*src="//yugenanime\.tv/e/([^/"]+)/"`)
	match := embedPattern.FindStringSubmatch(page)
	if match == nil {
		return nil, nil
	}

	form := url.Values{}
	form.Set("id", match[1])
	form.Set("ac", "0")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, siteBase+"/api/embed/", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		HLS     []string `json:"hls"`
		Sources []struct {
			Src string `json:"src"`
		} `json:"sources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("parsing embed payload: %w", err)
	}

	server := domain.Server{
		Name:    "yugen",
		Headers: map[string]string{"Referer": siteBase + "/"},
	}
	for _, link := range payload.HLS {
		server.Links = append(server.Links, domain.StreamLink{Link: link, HLS: true})
	}
	for _, src := range payload.Sources {
		server.Links = append(server.Links, domain.StreamLink{Link: src.Src, HLS: strings.Contains(src.Src, ".m3u8")})
	}
	if len(server.Links) == 0 {
		return nil, nil
	}
	return provider.NewSliceIterator([]domain.Server{server}), nil
}

// Normalizer is the identity; Yugen reports catalog-clean titles
func (c *Client) Normalizer() func(string) string {
	return provider.IdentityNormalizer
}
