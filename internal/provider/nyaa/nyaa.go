// Package nyaa treats the nyaa torrent tracker as a stream provider.  Each
// release group becomes a server and its magnet link the stream URL.
package nyaa

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/provider"
)

const rssBase = "https://nyaa.si/"

// Headers for the RSS feed
var Headers = map[string]string{
	"Accept": "application/rss+xml",
}

// Client searches nyaa's RSS feed
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

func (c *Client) Name() string { return "nyaa" }

// feed mirrors the RSS document
type feed struct {
	Channel struct {
		Items []feedItem `xml:"item"`
	} `xml:"channel"`
}

type feedItem struct {
	Title    string `xml:"title"`
	Link     string `xml:"link"`
	InfoHash string `xml:"https://nyaa.si/xmlns/nyaa infoHash"`
	Seeders  int    `xml:"https://nyaa.si/xmlns/nyaa seeders"`
	Size     string `xml:"https://nyaa.si/xmlns/nyaa size"`
	Trusted  string `xml:"https://nyaa.si/xmlns/nyaa trusted"`
}

func (c *Client) rss(ctx context.Context, query string) ([]feedItem, error) {
	values := url.Values{}
	values.Set("page", "rss")
	values.Set("q", query)
	values.Set("c", "1_2") // English-translated anime
	values.Set("f", "0")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rssBase+"?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	var document feed
	if err := xml.NewDecoder(resp.Body).Decode(&document); err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}
	return document.Channel.Items, nil
}

var (
	episodePattern = regexp.MustCompile(`(?i)[\s_.-](?:e|ep|episode[\s_.]?|-\s)(\d{1,4})(?:v\d)?[\s_.-]`)
	groupPattern   = regexp.MustCompile(`^\[([^\]]+)\]`)
	qualityPattern = regexp.MustCompile(`(\d{3,4})p`)
)

func parseEpisode(title string) string {
	match := episodePattern.FindStringSubmatch(" " + title + " ")
	if match == nil {
		return ""
	}
	return strings.TrimLeft(match[1], "0")
}

// Search groups torrent results by their base title.  The set of episode
// numbers seen across a group's releases becomes the episode list.
func (c *Client) Search(ctx context.Context, params domain.SearchParams) (*domain.SearchResults, error) {
	if cached := c.cache.Get(params); cached != nil {
		return cached, nil
	}

	items, err := c.rss(ctx, params.Query)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	// Group by release group; the query itself is the title key
	episodes := map[string]bool{}
	batch := false
	for _, item := range items {
		if ep := parseEpisode(item.Title); ep != "" {
			episodes[ep] = true
		} else {
			batch = true
		}
	}

	var episodeList []string
	for ep := range episodes {
		episodeList = append(episodeList, ep)
	}
	sort.Slice(episodeList, func(i, j int) bool {
		return len(episodeList[i]) < len(episodeList[j]) ||
			(len(episodeList[i]) == len(episodeList[j]) && episodeList[i] < episodeList[j])
	})
	if len(episodeList) == 0 && batch {
		episodeList = []string{"1"}
	}

	results := &domain.SearchResults{
		PageInfo: domain.PageInfo{Total: 1, CurrentPage: 1, PerPage: 1},
		Results: []domain.ProviderSearchResult{{
			ID:       params.Query,
			Title:    params.Query,
			Episodes: domain.ProviderEpisodes{Raw: episodeList, Sub: episodeList},
		}},
	}

	c.cache.Put(params, results)
	return results, nil
}

// Get re-runs the search; the torrent id is the query itself
func (c *Client) Get(ctx context.Context, params domain.AnimeParams) (*domain.ProviderAnime, error) {
	query := params.Query
	if query == "" {
		query = params.ID
	}
	results, err := c.Search(ctx, domain.SearchParams{Query: query})
	if err != nil || results == nil {
		return nil, err
	}
	hit := results.Results[0]
	return &domain.ProviderAnime{
		ID:       hit.ID,
		Title:    hit.Title,
		Episodes: hit.Episodes,
	}, nil
}

// EpisodeStreams returns one server per matching torrent, best-seeded first
func (c *Client) EpisodeStreams(ctx context.Context, params domain.EpisodeStreamsParams) (provider.ServerIterator, error) {
	query := params.Query
	if query == "" {
		query = params.AnimeID
	}
	items, err := c.rss(ctx, query)
	if err != nil {
		return nil, err
	}

	var matching []feedItem
	for _, item := range items {
		if parseEpisode(item.Title) == params.Episode {
			matching = append(matching, item)
		}
	}
	if len(matching) == 0 {
		return nil, nil
	}
	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].Seeders > matching[j].Seeders
	})

	servers := make([]domain.Server, 0, len(matching))
	for _, item := range matching {
		name := c.Name()
		if group := groupPattern.FindStringSubmatch(item.Title); group != nil {
			name = group[1]
		}
		quality := ""
		if q := qualityPattern.FindStringSubmatch(item.Title); q != nil {
			quality = q[1]
		}
		servers = append(servers, domain.Server{
			Name:         name,
			EpisodeTitle: item.Title,
			Links: []domain.StreamLink{{
				Link:    magnetLink(item),
				Quality: quality,
			}},
		})
	}
	return provider.NewSliceIterator(servers), nil
}

func magnetLink(item feedItem) string {
	if item.InfoHash == "" {
		return item.Link
	}
	return fmt.Sprintf("magnet:?xt=urn:btih:%s&dn=%s&tr=%s",
		item.InfoHash,
		url.QueryEscape(item.Title),
		url.QueryEscape("http://nyaa.tracker.wf:7777/announce"))
}

// bracketPrefix matches release-group brackets and trailing release metadata
var bracketPrefix = regexp.MustCompile(`^\[[^\]]+\]\s*|\s*[\[(][^)\]]*[)\]]\s*$`)

// Normalizer strips release-group brackets from torrent titles
func (c *Client) Normalizer() func(string) string {
	return func(title string) string {
		prev := ""
		for title != prev {
			prev = title
			title = strings.TrimSpace(bracketPrefix.ReplaceAllString(title, ""))
		}
		return title
	}
}
