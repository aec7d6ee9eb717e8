// Package allanime scrapes the AllAnime GraphQL API.
package allanime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/machinebox/graphql"

	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/log"
	"github.com/fumetsu/hibiki/internal/provider"
)

const (
	graphqlURL = "https://api.allanime.day/api"
	siteBase   = "allanime.day"
	referer    = "https://allanime.to"
)

// Headers is the required header set for every AllAnime request
var Headers = map[string]string{
	"Referer": referer,
}

// Client scrapes AllAnime
type Client struct {
	gql        *graphql.Client
	httpClient *http.Client
	cache      *provider.SearchCache
}

// New creates a ready client with its own header-injecting HTTP client
func New() *Client {
	httpClient := provider.NewHTTPClient(Headers)
	return &Client{
		gql:        graphql.NewClient(graphqlURL, graphql.WithHTTPClient(httpClient)),
		httpClient: httpClient,
		cache:      provider.NewSearchCache(),
	}
}

func (c *Client) Name() string { return "allanime" }

// show mirrors the AllAnime show shape
type show struct {
	ID                      string   `json:"_id"`
	Name                    string   `json:"name"`
	EnglishName             string   `json:"englishName"`
	NativeName              string   `json:"nativeName"`
	TrustedAltNames         []string `json:"trustedAltNames"`
	AvailableEpisodesDetail struct {
		Sub []string `json:"sub"`
		Dub []string `json:"dub"`
		Raw []string `json:"raw"`
	} `json:"availableEpisodesDetail"`
}

func (s *show) otherTitles() []string {
	var titles []string
	for _, t := range []string{s.EnglishName, s.NativeName} {
		if t != "" && t != s.Name {
			titles = append(titles, t)
		}
	}
	return append(titles, s.TrustedAltNames...)
}

func (s *show) episodes() domain.ProviderEpisodes {
	return domain.ProviderEpisodes{
		Sub: s.AvailableEpisodesDetail.Sub,
		Dub: s.AvailableEpisodesDetail.Dub,
		Raw: s.AvailableEpisodesDetail.Raw,
	}
}

// Search queries the shows endpoint.  Results are cached per process.
func (c *Client) Search(ctx context.Context, params domain.SearchParams) (*domain.SearchResults, error) {
	if cached := c.cache.Get(params); cached != nil {
		return cached, nil
	}

	req := graphql.NewRequest(`
        query ($search: SearchInput, $limit: Int, $page: Int, $translationType: VaildTranslationTypeEnumType, $countryOrigin: VaildCountryOriginEnumType) {
            shows(
                search: $search
                limit: $limit
                page: $page
                translationType: $translationType
                countryOrigin: $countryOrigin
            ) {
                pageInfo {
                    total
                }
                edges {
                    _id
                    name
                    englishName
                    nativeName
                    trustedAltNames
                    availableEpisodesDetail
                }
            }
        }
    `)

	page := params.Page
	if page < 1 {
		page = 1
	}
	req.Var("search", map[string]interface{}{
		"allowAdult":   params.AllowNSFW,
		"allowUnknown": params.AllowUnknown,
		"query":        params.Query,
	})
	req.Var("limit", 40)
	req.Var("page", page)
	req.Var("translationType", translation(params.TranslationType))
	req.Var("countryOrigin", "ALL")

	var response struct {
		Shows struct {
			PageInfo struct {
				Total int `json:"total"`
			} `json:"pageInfo"`
			Edges []show `json:"edges"`
		} `json:"shows"`
	}
	if err := c.gql.Run(ctx, req, &response); err != nil {
		return nil, fmt.Errorf("searching shows: %w", err)
	}

	results := &domain.SearchResults{
		PageInfo: domain.PageInfo{
			Total:       response.Shows.PageInfo.Total,
			CurrentPage: page,
			PerPage:     40,
			HasNextPage: len(response.Shows.Edges) == 40,
		},
	}
	for i := range response.Shows.Edges {
		edge := &response.Shows.Edges[i]
		results.Results = append(results.Results, domain.ProviderSearchResult{
			ID:          edge.ID,
			Title:       edge.Name,
			OtherTitles: edge.otherTitles(),
			Episodes:    edge.episodes(),
		})
	}

	log.Debug("Show search complete", "provider", c.Name(), "query", params.Query, "count", len(results.Results))
	c.cache.Put(params, results)
	return results, nil
}

// Get fetches one show by its AllAnime id
func (c *Client) Get(ctx context.Context, params domain.AnimeParams) (*domain.ProviderAnime, error) {
	req := graphql.NewRequest(`
        query ($showId: String!) {
            show(_id: $showId) {
                _id
                name
                englishName
                nativeName
                trustedAltNames
                availableEpisodesDetail
            }
        }
    `)
	req.Var("showId", params.ID)

	var response struct {
		Show show `json:"show"`
	}
	if err := c.gql.Run(ctx, req, &response); err != nil {
		return nil, fmt.Errorf("fetching show: %w", err)
	}
	if response.Show.ID == "" {
		return nil, nil
	}

	return &domain.ProviderAnime{
		ID:          response.Show.ID,
		Title:       response.Show.Name,
		OtherTitles: response.Show.otherTitles(),
		Episodes:    response.Show.episodes(),
	}, nil
}

// source is one hosting location reference returned by the episode query
type source struct {
	SourceURL  string  `json:"sourceUrl"`
	SourceName string  `json:"sourceName"`
	Priority   float64 `json:"priority"`
	Type       string  `json:"type"`
}

// EpisodeStreams fetches the episode's source list, then resolves one source
// per pull so callers that take the first server pay for a single round trip.
func (c *Client) EpisodeStreams(ctx context.Context, params domain.EpisodeStreamsParams) (provider.ServerIterator, error) {
	req := graphql.NewRequest(`
        query ($showId: String!, $translationType: VaildTranslationTypeEnumType!, $episodeString: String!) {
            episode(
                showId: $showId
                translationType: $translationType
                episodeString: $episodeString
            ) {
                episodeString
                notes
                sourceUrls
            }
        }
    `)
	req.Var("showId", params.AnimeID)
	req.Var("translationType", translation(params.TranslationType))
	req.Var("episodeString", params.Episode)

	var response struct {
		Episode struct {
			EpisodeString string   `json:"episodeString"`
			Notes         string   `json:"notes"`
			SourceUrls    []source `json:"sourceUrls"`
		} `json:"episode"`
	}
	if err := c.gql.Run(ctx, req, &response); err != nil {
		return nil, fmt.Errorf("fetching episode sources: %w", err)
	}

	sources := response.Episode.SourceUrls
	if len(sources) == 0 {
		return nil, nil
	}
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Priority > sources[j].Priority
	})

	episodeTitle := response.Episode.Notes
	iterCtx, cancel := context.WithCancel(ctx)
	pos := 0
	fetch := func() *domain.Server {
		for pos < len(sources) {
			src := sources[pos]
			pos++
			server, err := c.resolveSource(iterCtx, src, params.Quality, episodeTitle)
			if err != nil {
				log.Warn("Skipping unresolvable source", "provider", c.Name(), "source", src.SourceName, "error", err)
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

// resolveSource turns one source reference into a playable server
func (c *Client) resolveSource(ctx context.Context, src source, quality, episodeTitle string) (*domain.Server, error) {
	sourceURL := src.SourceURL
	if strings.HasPrefix(sourceURL, "--") {
		sourceURL = decodeSourceURL(strings.TrimPrefix(sourceURL, "--"))
	}

	server := &domain.Server{
		Name:         src.SourceName,
		EpisodeTitle: episodeTitle,
		Headers:      map[string]string{"Referer": referer},
	}

	// Embed-style sources carry their playable URL directly
	if !strings.Contains(sourceURL, "/clock.json") {
		server.Links = []domain.StreamLink{{
			Link:     sourceURL,
			HLS:      strings.Contains(sourceURL, ".m3u8"),
			MP4:      strings.Contains(sourceURL, ".mp4"),
			Priority: src.Priority,
		}}
		return server, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Links []struct {
			Link          string `json:"link"`
			HLS           bool   `json:"hls"`
			MP4           bool   `json:"mp4"`
			ResolutionStr string `json:"resolutionStr"`
			Subtitles     []struct {
				URL  string `json:"src"`
				Lang string `json:"lang"`
			} `json:"subtitles"`
		} `json:"links"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing source payload: %w", err)
	}
	if len(payload.Links) == 0 {
		return nil, nil
	}

	for _, link := range payload.Links {
		server.Links = append(server.Links, domain.StreamLink{
			Link:     link.Link,
			Quality:  parseQuality(link.ResolutionStr),
			HLS:      link.HLS || strings.Contains(link.Link, ".m3u8"),
			MP4:      link.MP4,
			Priority: src.Priority,
		})
		for _, sub := range link.Subtitles {
			server.Subtitles = append(server.Subtitles, domain.SubtitleTrack{URL: sub.URL, Language: sub.Lang})
		}
	}
	return server, nil
}

var qualityPattern = regexp.MustCompile(`(\d{3,4})p?`)

func parseQuality(resolution string) string {
	match := qualityPattern.FindStringSubmatch(resolution)
	if match == nil {
		return ""
	}
	return match[1]
}

// sourceDigits maps the hex-pair obfuscation AllAnime applies to source paths
var sourceDigits = map[string]string{
	"01": "9", "08": "0", "05": "=", "0a": "2", "0b": "3", "0c": "4", "07": "?",
	"00": "8", "5c": "d", "0f": "7", "5e": "f", "17": "/", "54": "l", "09": "1",
	"48": "p", "4f": "w", "0e": "6", "5b": "c", "5d": "e", "0d": "5", "53": "k",
	"1e": "&", "5a": "b", "59": "a", "4a": "r", "4c": "t", "4e": "v", "57": "o",
	"51": "i",
}

// decodeSourceURL reverses the hex-pair obfuscation and rewrites the internal
// clock endpoint to its JSON variant.
func decodeSourceURL(encoded string) string {
	mainPart := encoded
	port := ""
	if idx := strings.Index(encoded, ":"); idx >= 0 {
		mainPart = encoded[:idx]
		port = encoded[idx:]
	}

	var builder strings.Builder
	for i := 0; i+1 < len(mainPart); i += 2 {
		pair := mainPart[i : i+2]
		if decoded, ok := sourceDigits[pair]; ok {
			builder.WriteString(decoded)
		} else {
			builder.WriteString(pair)
		}
	}

	result := builder.String() + port
	result = strings.ReplaceAll(result, "/clock", "/clock.json")
	if strings.HasPrefix(result, "/") {
		result = "https://" + siteBase + result
	}
	return result
}

// seasonSuffix matches the split-cour and dub markers AllAnime appends
var seasonSuffix = regexp.MustCompile(`(?i)\s*(\(dub\)|\(sub\)|\(uncensored\)|\d+(st|nd|rd|th) season)\s*$`)

// Normalizer strips AllAnime's title decorations
func (c *Client) Normalizer() func(string) string {
	return func(title string) string {
		return strings.TrimSpace(seasonSuffix.ReplaceAllString(title, ""))
	}
}

func translation(t domain.TranslationType) string {
	if t == "" {
		return string(domain.TranslationSub)
	}
	return string(t)
}
