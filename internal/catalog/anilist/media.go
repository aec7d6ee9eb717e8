package anilist

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fumetsu/hibiki/internal/catalog"
	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/log"
)

// mediaFields is the shared selection set used by every media query
const mediaFields = `
    id
    idMal
    title {
        romaji
        english
        native
    }
    synonyms
    type
    status
    format
    episodes
    duration
    genres
    tags {
        name
        rank
    }
    studios(isMain: true) {
        nodes {
            name
        }
    }
    coverImage {
        medium
        large
        extraLarge
    }
    bannerImage
    trailer {
        id
        site
    }
    averageScore
    popularity
    favourites
    isAdult
    description
    startDate { year month day }
    endDate { year month day }
    nextAiringEpisode {
        episode
        airingAt
    }
    streamingEpisodes {
        title
        thumbnail
    }
    mediaListEntry {
        status
        progress
        score
        repeat
        notes
        startedAt { year month day }
        updatedAt
    }
`

// mediaNode mirrors the AniList media selection set
type mediaNode struct {
	ID    int `json:"id"`
	IDMal int `json:"idMal"`
	Title struct {
		Romaji  string `json:"romaji"`
		English string `json:"english"`
		Native  string `json:"native"`
	} `json:"title"`
	Synonyms []string `json:"synonyms"`
	Type     string   `json:"type"`
	Status   string   `json:"status"`
	Format   string   `json:"format"`
	Episodes int      `json:"episodes"`
	Duration int      `json:"duration"`
	Genres   []string `json:"genres"`
	Tags     []struct {
		Name string `json:"name"`
		Rank int    `json:"rank"`
	} `json:"tags"`
	Studios struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	} `json:"studios"`
	CoverImage struct {
		Medium     string `json:"medium"`
		Large      string `json:"large"`
		ExtraLarge string `json:"extraLarge"`
	} `json:"coverImage"`
	BannerImage string `json:"bannerImage"`
	Trailer     *struct {
		ID   string `json:"id"`
		Site string `json:"site"`
	} `json:"trailer"`
	AverageScore      float64    `json:"averageScore"`
	Popularity        int        `json:"popularity"`
	Favourites        int        `json:"favourites"`
	IsAdult           bool       `json:"isAdult"`
	Description       string     `json:"description"`
	StartDate         *fuzzyDate `json:"startDate"`
	EndDate           *fuzzyDate `json:"endDate"`
	NextAiringEpisode *struct {
		Episode  int   `json:"episode"`
		AiringAt int64 `json:"airingAt"`
	} `json:"nextAiringEpisode"`
	StreamingEpisodes []struct {
		Title     string `json:"title"`
		Thumbnail string `json:"thumbnail"`
	} `json:"streamingEpisodes"`
	MediaListEntry *struct {
		Status    string     `json:"status"`
		Progress  int        `json:"progress"`
		Score     float64    `json:"score"`
		Repeat    int        `json:"repeat"`
		Notes     string     `json:"notes"`
		StartedAt *fuzzyDate `json:"startedAt"`
		UpdatedAt int64      `json:"updatedAt"`
	} `json:"mediaListEntry"`
}

type fuzzyDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

type pageInfoNode struct {
	Total       int  `json:"total"`
	PerPage     int  `json:"perPage"`
	CurrentPage int  `json:"currentPage"`
	HasNextPage bool `json:"hasNextPage"`
}

func (d *fuzzyDate) toDomain() *domain.FuzzyDate {
	if d == nil || d.Year == 0 {
		return nil
	}
	return &domain.FuzzyDate{Year: d.Year, Month: d.Month, Day: d.Day}
}

// toMediaItem converts the wire node into the generic media model.  Episode
// keys for streaming episodes are synthesised from their list position because
// the remote does not number them.
func (n *mediaNode) toMediaItem() *domain.MediaItem {
	item := &domain.MediaItem{
		ID:    n.ID,
		IDMal: n.IDMal,
		Title: domain.MediaTitle{
			Romaji:  n.Title.Romaji,
			English: n.Title.English,
			Native:  n.Title.Native,
		},
		Synonyms:     n.Synonyms,
		Kind:         domain.MediaKind(n.Type),
		Status:       domain.AiringStatus(n.Status),
		Format:       n.Format,
		Episodes:     n.Episodes,
		Duration:     n.Duration,
		Genres:       n.Genres,
		BannerImage:  n.BannerImage,
		AverageScore: n.AverageScore,
		Popularity:   n.Popularity,
		Favourites:   n.Favourites,
		IsAdult:      n.IsAdult,
		Description:  n.Description,
		StartDate:    n.StartDate.toDomain(),
		EndDate:      n.EndDate.toDomain(),
		CoverImage: domain.MediaImage{
			Medium:     n.CoverImage.Medium,
			Large:      n.CoverImage.Large,
			ExtraLarge: n.CoverImage.ExtraLarge,
		},
	}

	for _, tag := range n.Tags {
		item.Tags = append(item.Tags, domain.MediaTag{Name: tag.Name, Rank: tag.Rank})
	}
	for _, studio := range n.Studios.Nodes {
		item.Studios = append(item.Studios, studio.Name)
	}

	if n.Trailer != nil {
		item.Trailer = &domain.Trailer{ID: n.Trailer.ID, Site: n.Trailer.Site}
	}
	if n.NextAiringEpisode != nil {
		item.NextAiring = &domain.AiringSchedule{
			Episode:  n.NextAiringEpisode.Episode,
			AiringAt: n.NextAiringEpisode.AiringAt,
		}
	}
	if len(n.StreamingEpisodes) > 0 {
		item.StreamingEpisodes = make(map[string]domain.StreamingEpisode, len(n.StreamingEpisodes))
		for i, ep := range n.StreamingEpisodes {
			item.StreamingEpisodes[strconv.Itoa(i+1)] = domain.StreamingEpisode{
				Title:     ep.Title,
				Thumbnail: ep.Thumbnail,
			}
		}
	}
	if n.MediaListEntry != nil {
		item.UserStatus = &domain.UserListEntry{
			Status:    statusFromRemote(n.MediaListEntry.Status),
			Progress:  n.MediaListEntry.Progress,
			Score:     n.MediaListEntry.Score,
			Repeat:    n.MediaListEntry.Repeat,
			Notes:     n.MediaListEntry.Notes,
			StartedAt: n.MediaListEntry.StartedAt.toDomain(),
			UpdatedAt: n.MediaListEntry.UpdatedAt,
		}
	}
	return item
}

// statusFromRemote maps the AniList list status enum to the generic one.
// AniList says CURRENT where the generic model says WATCHING.
func statusFromRemote(status string) domain.ListStatus {
	if status == "CURRENT" {
		return domain.StatusWatching
	}
	return domain.ListStatus(status)
}

func statusToRemote(status domain.ListStatus) string {
	if status == domain.StatusWatching {
		return "CURRENT"
	}
	return string(status)
}

// SearchMedia runs a filtered catalog search.  Only filters the caller set are
// sent as variables, leaving the rest unconstrained remotely.
func (c *Client) SearchMedia(ctx context.Context, params domain.MediaSearchParams) (*domain.MediaSearchResult, error) {
	query := `
        query (
            $page: Int, $perPage: Int, $search: String, $type: MediaType, $sort: [MediaSort],
            $idIn: [Int], $genreIn: [String], $genreNotIn: [String], $tagIn: [String], $tagNotIn: [String],
            $statusIn: [MediaStatus], $statusNotIn: [MediaStatus], $formatIn: [MediaFormat],
            $popularityGreater: Int, $popularityLesser: Int, $scoreGreater: Int, $scoreLesser: Int,
            $season: MediaSeason, $seasonYear: Int,
            $startDateGreater: FuzzyDateInt, $startDateLesser: FuzzyDateInt,
            $endDateGreater: FuzzyDateInt, $endDateLesser: FuzzyDateInt,
            $onList: Boolean
        ) {
            Page(page: $page, perPage: $perPage) {
                pageInfo {
                    total
                    perPage
                    currentPage
                    hasNextPage
                }
                media(
                    search: $search, type: $type, sort: $sort,
                    id_in: $idIn, genre_in: $genreIn, genre_not_in: $genreNotIn,
                    tag_in: $tagIn, tag_not_in: $tagNotIn,
                    status_in: $statusIn, status_not_in: $statusNotIn, format_in: $formatIn,
                    popularity_greater: $popularityGreater, popularity_lesser: $popularityLesser,
                    averageScore_greater: $scoreGreater, averageScore_lesser: $scoreLesser,
                    season: $season, seasonYear: $seasonYear,
                    startDate_greater: $startDateGreater, startDate_lesser: $startDateLesser,
                    endDate_greater: $endDateGreater, endDate_lesser: $endDateLesser,
                    onList: $onList
                ) {` + mediaFields + `}
            }
        }
    `

	variables := searchVariables(params)

	var response struct {
		Page struct {
			PageInfo pageInfoNode `json:"pageInfo"`
			Media    []mediaNode  `json:"media"`
		}
	}

	if err := c.query(ctx, query, variables, &response); err != nil {
		return nil, fmt.Errorf("searching media: %w", err)
	}

	result := &domain.MediaSearchResult{
		PageInfo: domain.PageInfo{
			Total:       response.Page.PageInfo.Total,
			PerPage:     response.Page.PageInfo.PerPage,
			CurrentPage: response.Page.PageInfo.CurrentPage,
			HasNextPage: response.Page.PageInfo.HasNextPage,
		},
	}
	for i := range response.Page.Media {
		result.Media = append(result.Media, response.Page.Media[i].toMediaItem())
	}

	log.Debug("Media search complete", "count", len(result.Media), "total", result.PageInfo.Total)
	return result, nil
}

func searchVariables(params domain.MediaSearchParams) map[string]interface{} {
	page := params.Page
	if page < 1 {
		page = 1
	}
	perPage := params.PerPage
	if perPage < 1 {
		perPage = 50
	}

	variables := map[string]interface{}{
		"page":    page,
		"perPage": perPage,
	}
	if params.Query != "" {
		variables["search"] = params.Query
	}
	kind := params.Kind
	if kind == "" {
		kind = domain.KindAnime
	}
	variables["type"] = string(kind)
	if params.Sort != "" {
		variables["sort"] = []string{remoteSort(params.Sort)}
	}
	if len(params.IDIn) > 0 {
		variables["idIn"] = params.IDIn
	}
	if len(params.GenreIn) > 0 {
		variables["genreIn"] = params.GenreIn
	}
	if len(params.GenreNotIn) > 0 {
		variables["genreNotIn"] = params.GenreNotIn
	}
	if len(params.TagIn) > 0 {
		variables["tagIn"] = params.TagIn
	}
	if len(params.TagNotIn) > 0 {
		variables["tagNotIn"] = params.TagNotIn
	}
	if len(params.StatusIn) > 0 {
		variables["statusIn"] = params.StatusIn
	}
	if len(params.StatusNotIn) > 0 {
		variables["statusNotIn"] = params.StatusNotIn
	}
	if len(params.FormatIn) > 0 {
		variables["formatIn"] = params.FormatIn
	}
	if params.PopularityGreater != nil {
		variables["popularityGreater"] = *params.PopularityGreater
	}
	if params.PopularityLesser != nil {
		variables["popularityLesser"] = *params.PopularityLesser
	}
	if params.ScoreGreater != nil {
		variables["scoreGreater"] = int(*params.ScoreGreater)
	}
	if params.ScoreLesser != nil {
		variables["scoreLesser"] = int(*params.ScoreLesser)
	}
	if params.Season != "" {
		variables["season"] = params.Season
	}
	if params.SeasonYear != 0 {
		variables["seasonYear"] = params.SeasonYear
	}
	if params.StartDateGreater != "" {
		variables["startDateGreater"] = params.StartDateGreater
	}
	if params.StartDateLesser != "" {
		variables["startDateLesser"] = params.StartDateLesser
	}
	if params.EndDateGreater != "" {
		variables["endDateGreater"] = params.EndDateGreater
	}
	if params.EndDateLesser != "" {
		variables["endDateLesser"] = params.EndDateLesser
	}
	if params.OnList != nil {
		variables["onList"] = *params.OnList
	}
	return variables
}

// remoteSort maps the generic sort names onto AniList enum values.  Trending
// has a first-class remote enum so it does not fold into popularity here.
func remoteSort(sort domain.MediaSort) string {
	switch sort {
	case domain.SortTitle:
		return "TITLE_ENGLISH"
	case domain.SortTrendingDesc:
		return "TRENDING_DESC"
	default:
		return string(sort)
	}
}

// SearchMediaList fetches the viewer's list, optionally filtered by status
func (c *Client) SearchMediaList(ctx context.Context, params domain.UserMediaListSearchParams) (*domain.MediaSearchResult, error) {
	if !c.IsAuthenticated() {
		return nil, catalog.ErrNotAuthenticated
	}

	query := `
        query ($userId: Int, $statusIn: [MediaListStatus], $page: Int, $perPage: Int) {
            Page(page: $page, perPage: $perPage) {
                pageInfo {
                    total
                    perPage
                    currentPage
                    hasNextPage
                }
                mediaList(userId: $userId, type: ANIME, status_in: $statusIn) {
                    status
                    progress
                    score
                    repeat
                    notes
                    startedAt { year month day }
                    updatedAt
                    media {` + mediaFields + `}
                }
            }
        }
    `

	page := params.Page
	if page < 1 {
		page = 1
	}
	perPage := params.PerPage
	if perPage < 1 {
		perPage = 50
	}

	c.mu.RLock()
	userID := c.user.ID
	c.mu.RUnlock()

	variables := map[string]interface{}{
		"userId":  userID,
		"page":    page,
		"perPage": perPage,
	}
	if len(params.Status) > 0 {
		remote := make([]string, 0, len(params.Status))
		for _, status := range params.Status {
			remote = append(remote, statusToRemote(status))
		}
		variables["statusIn"] = remote
	}

	var response struct {
		Page struct {
			PageInfo  pageInfoNode `json:"pageInfo"`
			MediaList []struct {
				Status    string     `json:"status"`
				Progress  int        `json:"progress"`
				Score     float64    `json:"score"`
				Repeat    int        `json:"repeat"`
				Notes     string     `json:"notes"`
				StartedAt *fuzzyDate `json:"startedAt"`
				UpdatedAt int64      `json:"updatedAt"`
				Media     mediaNode  `json:"media"`
			} `json:"mediaList"`
		}
	}

	if err := c.query(ctx, query, variables, &response); err != nil {
		return nil, fmt.Errorf("fetching media list: %w", err)
	}

	result := &domain.MediaSearchResult{
		PageInfo: domain.PageInfo{
			Total:       response.Page.PageInfo.Total,
			PerPage:     response.Page.PageInfo.PerPage,
			CurrentPage: response.Page.PageInfo.CurrentPage,
			HasNextPage: response.Page.PageInfo.HasNextPage,
		},
	}
	for i := range response.Page.MediaList {
		entry := &response.Page.MediaList[i]
		item := entry.Media.toMediaItem()
		item.UserStatus = &domain.UserListEntry{
			Status:    statusFromRemote(entry.Status),
			Progress:  entry.Progress,
			Score:     entry.Score,
			Repeat:    entry.Repeat,
			Notes:     entry.Notes,
			StartedAt: entry.StartedAt.toDomain(),
			UpdatedAt: entry.UpdatedAt,
		}
		if params.Query == "" || titleContains(item, params.Query) {
			result.Media = append(result.Media, item)
		}
	}

	log.Debug("Media list fetch complete", "count", len(result.Media))
	return result, nil
}

func titleContains(item *domain.MediaItem, query string) bool {
	needle := strings.ToLower(query)
	for _, title := range item.AllTitles() {
		if strings.Contains(strings.ToLower(title), needle) {
			return true
		}
	}
	return false
}

// UpdateListEntry mutates the viewer's list entry.  Only the fields the caller
// set are sent; a non-numeric progress string is dropped from the mutation.
func (c *Client) UpdateListEntry(ctx context.Context, params domain.UpdateListEntryParams) bool {
	if !c.IsAuthenticated() {
		log.Warn("Update list entry called without authentication", "mediaId", params.MediaID)
		return false
	}

	mutation := `
        mutation ($mediaId: Int, $status: MediaListStatus, $progress: Int, $score: Float) {
            SaveMediaListEntry(mediaId: $mediaId, status: $status, progress: $progress, score: $score) {
                id
                status
                progress
            }
        }
    `

	variables := map[string]interface{}{
		"mediaId": params.MediaID,
	}
	if params.Status != nil {
		variables["status"] = statusToRemote(*params.Status)
	}
	if params.Progress != nil {
		if progress, err := strconv.Atoi(*params.Progress); err == nil {
			variables["progress"] = progress
		} else {
			log.Warn("Non-numeric progress not sent to catalog", "mediaId", params.MediaID, "progress", *params.Progress)
		}
	}
	if params.Score != nil {
		variables["score"] = *params.Score
	}

	var response struct {
		SaveMediaListEntry struct {
			ID       int    `json:"id"`
			Status   string `json:"status"`
			Progress int    `json:"progress"`
		}
	}

	if err := c.query(ctx, mutation, variables, &response); err != nil {
		log.Error("Failed to update list entry", "mediaId", params.MediaID, "error", err)
		return false
	}

	log.Info("Updated list entry",
		"mediaId", params.MediaID,
		"listEntryId", response.SaveMediaListEntry.ID,
		"status", response.SaveMediaListEntry.Status,
		"progress", response.SaveMediaListEntry.Progress)
	return true
}

// DeleteListEntry removes the viewer's entry for a media id.  Deleting an
// absent entry counts as success.
func (c *Client) DeleteListEntry(ctx context.Context, mediaID int) bool {
	if !c.IsAuthenticated() {
		log.Warn("Delete list entry called without authentication", "mediaId", mediaID)
		return false
	}

	lookup := `
        query ($mediaId: Int, $userId: Int) {
            MediaList(mediaId: $mediaId, userId: $userId) {
                id
            }
        }
    `

	c.mu.RLock()
	userID := c.user.ID
	c.mu.RUnlock()

	var entry struct {
		MediaList struct {
			ID int `json:"id"`
		}
	}
	if err := c.query(ctx, lookup, map[string]interface{}{"mediaId": mediaID, "userId": userID}, &entry); err != nil {
		// AniList answers a missing entry with a not-found error
		log.Debug("No list entry to delete", "mediaId", mediaID, "error", err)
		return true
	}
	if entry.MediaList.ID == 0 {
		return true
	}

	mutation := `
        mutation ($id: Int) {
            DeleteMediaListEntry(id: $id) {
                deleted
            }
        }
    `

	var response struct {
		DeleteMediaListEntry struct {
			Deleted bool `json:"deleted"`
		}
	}
	if err := c.query(ctx, mutation, map[string]interface{}{"id": entry.MediaList.ID}, &response); err != nil {
		log.Error("Failed to delete list entry", "mediaId", mediaID, "error", err)
		return false
	}

	log.Info("Deleted list entry", "mediaId", mediaID, "entryId", entry.MediaList.ID)
	return response.DeleteMediaListEntry.Deleted
}
