// Package jikan implements the catalog contract against the Jikan REST API,
// an unauthenticated mirror of MyAnimeList.  List mutations and notifications
// need credentials Jikan does not take, so those operations report failure.
package jikan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/fumetsu/hibiki/internal/catalog"
	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/log"
)

const (
	baseURL = "https://api.jikan.moe/v4"
	// APITag is the media_api tag this client writes into the registry
	APITag = "jikan"
)

// Client is the Jikan catalog client
type Client struct {
	httpClient *http.Client
}

// New creates a client
func New() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// get fetches a Jikan endpoint into result, retrying once on rate limiting
func (c *Client) get(ctx context.Context, path string, query url.Values, result interface{}) error {
	endpoint := baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return &catalog.NetworkError{Err: err}
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusTooManyRequests {
				return fmt.Errorf("rate limited by catalog")
			}
			if resp.StatusCode != http.StatusOK {
				return retry.Unrecoverable(fmt.Errorf("catalog returned status %d", resp.StatusCode))
			}
			return json.NewDecoder(resp.Body).Decode(result)
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
}

// Authenticate always fails; Jikan has no authenticated surface
func (c *Client) Authenticate(ctx context.Context, token string) (*domain.UserProfile, error) {
	return nil, catalog.ErrAuthRejected
}

func (c *Client) IsAuthenticated() bool { return false }

func (c *Client) ViewerProfile() *domain.UserProfile { return nil }

// animeNode mirrors the Jikan anime resource
type animeNode struct {
	MalID  int `json:"mal_id"`
	Titles []struct {
		Type  string `json:"type"`
		Title string `json:"title"`
	} `json:"titles"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Episodes int    `json:"episodes"`
	Duration string `json:"duration"`
	Genres   []struct {
		Name string `json:"name"`
	} `json:"genres"`
	Studios []struct {
		Name string `json:"name"`
	} `json:"studios"`
	Images struct {
		JPG struct {
			ImageURL      string `json:"image_url"`
			SmallImageURL string `json:"small_image_url"`
			LargeImageURL string `json:"large_image_url"`
		} `json:"jpg"`
	} `json:"images"`
	Trailer struct {
		YoutubeID string `json:"youtube_id"`
	} `json:"trailer"`
	Score      float64 `json:"score"`
	Members    int     `json:"members"`
	Favorites  int     `json:"favorites"`
	Rating     string  `json:"rating"`
	Synopsis   string  `json:"synopsis"`
	Year       int     `json:"year"`
	Popularity int     `json:"popularity"`
}

type pagination struct {
	LastVisiblePage int  `json:"last_visible_page"`
	HasNextPage     bool `json:"has_next_page"`
	CurrentPage     int  `json:"current_page"`
	Items           struct {
		Total   int `json:"total"`
		PerPage int `json:"per_page"`
	} `json:"items"`
}

// toMediaItem converts the Jikan shape to the generic model.  Jikan has no
// AniList-style ids, so MalID fills both id fields.
func (n *animeNode) toMediaItem() *domain.MediaItem {
	item := &domain.MediaItem{
		ID:           n.MalID,
		IDMal:        n.MalID,
		Kind:         domain.KindAnime,
		Status:       airingStatus(n.Status),
		Format:       n.Type,
		Episodes:     n.Episodes,
		AverageScore: n.Score * 10,
		Popularity:   n.Members,
		Favourites:   n.Favorites,
		IsAdult:      n.Rating == "Rx - Hentai",
		Description:  n.Synopsis,
		CoverImage: domain.MediaImage{
			Medium:     n.Images.JPG.SmallImageURL,
			Large:      n.Images.JPG.ImageURL,
			ExtraLarge: n.Images.JPG.LargeImageURL,
		},
	}

	for _, title := range n.Titles {
		switch title.Type {
		case "Default":
			item.Title.Romaji = title.Title
		case "English":
			item.Title.English = title.Title
		case "Japanese":
			item.Title.Native = title.Title
		case "Synonym":
			item.Synonyms = append(item.Synonyms, title.Title)
		}
	}
	for _, genre := range n.Genres {
		item.Genres = append(item.Genres, genre.Name)
	}
	for _, studio := range n.Studios {
		item.Studios = append(item.Studios, studio.Name)
	}
	if n.Trailer.YoutubeID != "" {
		item.Trailer = &domain.Trailer{ID: n.Trailer.YoutubeID, Site: "youtube"}
	}
	if n.Year > 0 {
		item.StartDate = &domain.FuzzyDate{Year: n.Year}
	}
	return item
}

func airingStatus(status string) domain.AiringStatus {
	switch status {
	case "Finished Airing":
		return domain.AiringFinished
	case "Currently Airing":
		return domain.AiringReleasing
	case "Not yet aired":
		return domain.AiringNotYetReleased
	default:
		return ""
	}
}

// SearchMedia searches Jikan.  Filters without a REST query parameter are
// applied client-side on the returned page.
func (c *Client) SearchMedia(ctx context.Context, params domain.MediaSearchParams) (*domain.MediaSearchResult, error) {
	query := url.Values{}
	if params.Query != "" {
		query.Set("q", params.Query)
	}
	if params.Page > 0 {
		query.Set("page", strconv.Itoa(params.Page))
	}
	if params.PerPage > 0 {
		query.Set("limit", strconv.Itoa(params.PerPage))
	}
	if len(params.StatusIn) == 1 {
		switch params.StatusIn[0] {
		case domain.AiringReleasing:
			query.Set("status", "airing")
		case domain.AiringFinished:
			query.Set("status", "complete")
		case domain.AiringNotYetReleased:
			query.Set("status", "upcoming")
		}
	}
	if params.ScoreGreater != nil {
		query.Set("min_score", strconv.FormatFloat(*params.ScoreGreater/10, 'f', 2, 64))
	}
	if params.ScoreLesser != nil {
		query.Set("max_score", strconv.FormatFloat(*params.ScoreLesser/10, 'f', 2, 64))
	}
	switch params.Sort {
	case domain.SortScoreDesc:
		query.Set("order_by", "score")
		query.Set("sort", "desc")
	case domain.SortPopularityDesc, domain.SortTrendingDesc:
		query.Set("order_by", "members")
		query.Set("sort", "desc")
	case domain.SortFavouritesDesc:
		query.Set("order_by", "favorites")
		query.Set("sort", "desc")
	case domain.SortTitle:
		query.Set("order_by", "title")
		query.Set("sort", "asc")
	}

	var response struct {
		Pagination pagination  `json:"pagination"`
		Data       []animeNode `json:"data"`
	}
	if err := c.get(ctx, "/anime", query, &response); err != nil {
		return nil, fmt.Errorf("searching media: %w", err)
	}

	result := &domain.MediaSearchResult{
		PageInfo: domain.PageInfo{
			Total:       response.Pagination.Items.Total,
			PerPage:     response.Pagination.Items.PerPage,
			CurrentPage: response.Pagination.CurrentPage,
			HasNextPage: response.Pagination.HasNextPage,
		},
	}
	for i := range response.Data {
		item := response.Data[i].toMediaItem()
		if matchesLocalFilters(item, params) {
			result.Media = append(result.Media, item)
		}
	}

	log.Debug("Media search complete", "count", len(result.Media))
	return result, nil
}

func matchesLocalFilters(item *domain.MediaItem, params domain.MediaSearchParams) bool {
	if params.PopularityGreater != nil && item.Popularity <= *params.PopularityGreater {
		return false
	}
	if params.PopularityLesser != nil && item.Popularity >= *params.PopularityLesser {
		return false
	}
	for _, genre := range params.GenreIn {
		found := false
		for _, have := range item.Genres {
			if have == genre {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// SearchMediaList needs authentication, which Jikan does not offer
func (c *Client) SearchMediaList(ctx context.Context, params domain.UserMediaListSearchParams) (*domain.MediaSearchResult, error) {
	return nil, catalog.ErrNotAuthenticated
}

// UpdateListEntry always fails; Jikan is read-only
func (c *Client) UpdateListEntry(ctx context.Context, params domain.UpdateListEntryParams) bool {
	log.Warn("List mutations are not supported by this catalog", "mediaId", params.MediaID)
	return false
}

// DeleteListEntry always fails; Jikan is read-only
func (c *Client) DeleteListEntry(ctx context.Context, mediaID int) bool {
	log.Warn("List mutations are not supported by this catalog", "mediaId", mediaID)
	return false
}

// Recommendations returns titles recommended alongside a media id
func (c *Client) Recommendations(ctx context.Context, mediaID int) ([]*domain.MediaItem, error) {
	var response struct {
		Data []struct {
			Entry struct {
				MalID  int    `json:"mal_id"`
				Title  string `json:"title"`
				Images struct {
					JPG struct {
						ImageURL string `json:"image_url"`
					} `json:"jpg"`
				} `json:"images"`
			} `json:"entry"`
		} `json:"data"`
	}
	if err := c.get(ctx, fmt.Sprintf("/anime/%d/recommendations", mediaID), nil, &response); err != nil {
		return nil, fmt.Errorf("fetching recommendations: %w", err)
	}

	var items []*domain.MediaItem
	for _, node := range response.Data {
		items = append(items, &domain.MediaItem{
			ID:         node.Entry.MalID,
			IDMal:      node.Entry.MalID,
			Kind:       domain.KindAnime,
			Title:      domain.MediaTitle{Romaji: node.Entry.Title},
			CoverImage: domain.MediaImage{Large: node.Entry.Images.JPG.ImageURL},
		})
	}
	return items, nil
}

// Characters returns the characters attached to a media id
func (c *Client) Characters(ctx context.Context, mediaID int) ([]domain.CharacterInfo, error) {
	var response struct {
		Data []struct {
			Character struct {
				Name   string `json:"name"`
				Images struct {
					JPG struct {
						ImageURL string `json:"image_url"`
					} `json:"jpg"`
				} `json:"images"`
			} `json:"character"`
			Role string `json:"role"`
		} `json:"data"`
	}
	if err := c.get(ctx, fmt.Sprintf("/anime/%d/characters", mediaID), nil, &response); err != nil {
		return nil, fmt.Errorf("fetching characters: %w", err)
	}

	var characters []domain.CharacterInfo
	for _, node := range response.Data {
		characters = append(characters, domain.CharacterInfo{
			Name:  node.Character.Name,
			Role:  node.Role,
			Image: node.Character.Images.JPG.ImageURL,
		})
	}
	return characters, nil
}

// RelatedAnime returns related anime, skipping manga relations
func (c *Client) RelatedAnime(ctx context.Context, mediaID int) ([]*domain.MediaItem, error) {
	var response struct {
		Data []struct {
			Relation string `json:"relation"`
			Entry    []struct {
				MalID int    `json:"mal_id"`
				Type  string `json:"type"`
				Name  string `json:"name"`
			} `json:"entry"`
		} `json:"data"`
	}
	if err := c.get(ctx, fmt.Sprintf("/anime/%d/relations", mediaID), nil, &response); err != nil {
		return nil, fmt.Errorf("fetching relations: %w", err)
	}

	var items []*domain.MediaItem
	for _, group := range response.Data {
		for _, entry := range group.Entry {
			if entry.Type != "anime" {
				continue
			}
			items = append(items, &domain.MediaItem{
				ID:    entry.MalID,
				IDMal: entry.MalID,
				Kind:  domain.KindAnime,
				Title: domain.MediaTitle{Romaji: entry.Name},
			})
		}
	}
	return items, nil
}

// AiringSchedule returns upcoming episodes derived from the episode list.
// Jikan reports aired dates only, so the schedule holds the aired history.
func (c *Client) AiringSchedule(ctx context.Context, mediaID int) ([]domain.AiringScheduleItem, error) {
	var response struct {
		Data []struct {
			MalID int    `json:"mal_id"`
			Aired string `json:"aired"`
		} `json:"data"`
	}
	if err := c.get(ctx, fmt.Sprintf("/anime/%d/episodes", mediaID), nil, &response); err != nil {
		return nil, fmt.Errorf("fetching airing schedule: %w", err)
	}

	var schedule []domain.AiringScheduleItem
	for _, node := range response.Data {
		item := domain.AiringScheduleItem{Episode: node.MalID}
		if aired, err := time.Parse(time.RFC3339, node.Aired); err == nil {
			item.AiringAt = aired.Unix()
		}
		schedule = append(schedule, item)
	}
	return schedule, nil
}

// Reviews returns user reviews for a media id
func (c *Client) Reviews(ctx context.Context, mediaID int) ([]domain.Review, error) {
	var response struct {
		Data []struct {
			Review string `json:"review"`
			Score  int    `json:"score"`
			User   struct {
				Username string `json:"username"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := c.get(ctx, fmt.Sprintf("/anime/%d/reviews", mediaID), nil, &response); err != nil {
		return nil, fmt.Errorf("fetching reviews: %w", err)
	}

	var reviews []domain.Review
	for _, node := range response.Data {
		summary := node.Review
		if len(summary) > 120 {
			summary = summary[:120]
		}
		reviews = append(reviews, domain.Review{
			Summary: summary,
			Body:    node.Review,
			Score:   node.Score * 10,
			Author:  node.User.Username,
		})
	}
	return reviews, nil
}

// Notifications are unavailable without authentication
func (c *Client) Notifications(ctx context.Context) ([]domain.Notification, error) {
	return nil, catalog.ErrNotAuthenticated
}
