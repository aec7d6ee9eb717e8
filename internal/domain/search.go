package domain

// MediaSort identifies a search result ordering
type MediaSort string

const (
	SortTitle          MediaSort = "TITLE"
	SortScoreDesc      MediaSort = "SCORE_DESC"
	SortPopularityDesc MediaSort = "POPULARITY_DESC"
	SortUpdatedAtDesc  MediaSort = "UPDATED_AT_DESC"
	SortFavouritesDesc MediaSort = "FAVOURITES_DESC"
	// SortTrendingDesc is treated as a synonym for popularity descending
	SortTrendingDesc MediaSort = "TRENDING_DESC"
)

// MediaSearchParams are the filters understood by both the catalog client and the
// registry's in-memory query engine.  Nil slice/pointer fields mean "no filter".
type MediaSearchParams struct {
	Query   string    `json:"query,omitempty"`
	Page    int       `json:"page,omitempty"`
	PerPage int       `json:"per_page,omitempty"`
	Sort    MediaSort `json:"sort,omitempty"`

	IDIn        []int          `json:"id_in,omitempty"`
	GenreIn     []string       `json:"genre_in,omitempty"`
	GenreNotIn  []string       `json:"genre_not_in,omitempty"`
	TagIn       []string       `json:"tag_in,omitempty"`
	TagNotIn    []string       `json:"tag_not_in,omitempty"`
	StatusIn    []AiringStatus `json:"status_in,omitempty"`
	StatusNotIn []AiringStatus `json:"status_not_in,omitempty"`
	FormatIn    []string       `json:"format_in,omitempty"`

	PopularityGreater *int     `json:"popularity_greater,omitempty"`
	PopularityLesser  *int     `json:"popularity_lesser,omitempty"`
	ScoreGreater      *float64 `json:"score_greater,omitempty"`
	ScoreLesser       *float64 `json:"score_lesser,omitempty"`

	Season     string `json:"season,omitempty"`
	SeasonYear int    `json:"season_year,omitempty"`

	StartDateGreater string `json:"start_date_greater,omitempty"`
	StartDateLesser  string `json:"start_date_lesser,omitempty"`
	EndDateGreater   string `json:"end_date_greater,omitempty"`
	EndDateLesser    string `json:"end_date_lesser,omitempty"`

	Kind   MediaKind `json:"type,omitempty"`
	OnList *bool     `json:"on_list,omitempty"`
}

// UserMediaListSearchParams filter the authenticated user's list
type UserMediaListSearchParams struct {
	Status  []ListStatus `json:"status,omitempty"`
	Query   string       `json:"query,omitempty"`
	Page    int          `json:"page,omitempty"`
	PerPage int          `json:"per_page,omitempty"`
	Sort    MediaSort    `json:"sort,omitempty"`
}

// UpdateListEntryParams carry a partial list entry mutation.  Nil fields are left unchanged remotely.
type UpdateListEntryParams struct {
	MediaID  int         `json:"media_id"`
	Status   *ListStatus `json:"status,omitempty"`
	Progress *string     `json:"progress,omitempty"`
	Score    *float64    `json:"score,omitempty"`
}

// MediaSearchResult is a page of catalog or registry media
type MediaSearchResult struct {
	PageInfo PageInfo     `json:"page_info"`
	Media    []*MediaItem `json:"media"`
}

// SearchParams are the provider search inputs
type SearchParams struct {
	Query           string          `json:"query"`
	TranslationType TranslationType `json:"translation_type,omitempty"`
	Page            int             `json:"page,omitempty"`
	AllowNSFW       bool            `json:"allow_nsfw,omitempty"`
	AllowUnknown    bool            `json:"allow_unknown,omitempty"`
}

// AnimeParams identify one provider title
type AnimeParams struct {
	ID    string `json:"id"`
	Query string `json:"query,omitempty"`
}

// EpisodeStreamsParams identify one episode's streams
type EpisodeStreamsParams struct {
	AnimeID         string          `json:"anime_id"`
	Query           string          `json:"query,omitempty"`
	Episode         string          `json:"episode"`
	TranslationType TranslationType `json:"translation_type,omitempty"`
	Quality         string          `json:"quality,omitempty"`
	Server          string          `json:"server,omitempty"`
	WantSubtitles   bool            `json:"subtitles,omitempty"`
}
