package domain

// MediaKind distinguishes the two catalog media types
type MediaKind string

const (
	KindAnime MediaKind = "ANIME"
	KindManga MediaKind = "MANGA"
)

// AiringStatus represents the release state of a title
type AiringStatus string

const (
	AiringFinished       AiringStatus = "FINISHED"
	AiringReleasing      AiringStatus = "RELEASING"
	AiringNotYetReleased AiringStatus = "NOT_YET_RELEASED"
	AiringCancelled      AiringStatus = "CANCELLED"
	AiringHiatus         AiringStatus = "HIATUS"
)

// ListStatus represents which user list the title is in
type ListStatus string

const (
	StatusWatching  ListStatus = "WATCHING"
	StatusPlanning  ListStatus = "PLANNING"
	StatusCompleted ListStatus = "COMPLETED"
	StatusDropped   ListStatus = "DROPPED"
	StatusPaused    ListStatus = "PAUSED"
	StatusRepeating ListStatus = "REPEATING"
)

// MediaTitle contains the various versions of a media title
type MediaTitle struct {
	Romaji  string `json:"romaji,omitempty"`
	English string `json:"english,omitempty"`
	Native  string `json:"native,omitempty"`
}

// Preferred returns the first non-empty title, favouring english
func (t MediaTitle) Preferred() string {
	if t.English != "" {
		return t.English
	}
	if t.Romaji != "" {
		return t.Romaji
	}
	return t.Native
}

// FuzzyDate is a date that may be missing its month or day
type FuzzyDate struct {
	Year  int `json:"year,omitempty"`
	Month int `json:"month,omitempty"`
	Day   int `json:"day,omitempty"`
}

// AiringSchedule describes the next episode expected to air
type AiringSchedule struct {
	Episode  int   `json:"episode"`
	AiringAt int64 `json:"airing_at"`
}

// StreamingEpisode carries per-episode presentation data from the catalog
type StreamingEpisode struct {
	Title     string `json:"title,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// MediaImage holds cover art variants
type MediaImage struct {
	Medium     string `json:"medium,omitempty"`
	Large      string `json:"large,omitempty"`
	ExtraLarge string `json:"extra_large,omitempty"`
}

// Trailer identifies a media trailer on an external site
type Trailer struct {
	ID   string `json:"id,omitempty"`
	Site string `json:"site,omitempty"`
}

// UserListEntry is the embedded per-user status block of a MediaItem, as the catalog reports it
type UserListEntry struct {
	Status    ListStatus `json:"status,omitempty"`
	Progress  int        `json:"progress,omitempty"`
	Score     float64    `json:"score,omitempty"`
	Repeat    int        `json:"repeat,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	StartedAt *FuzzyDate `json:"started_at,omitempty"`
	UpdatedAt int64      `json:"updated_at,omitempty"`
}

// MediaItem is the canonical description of a title as known by the catalog.
// It is created by the catalog client or registry and only ever mutated by whole replacement.
type MediaItem struct {
	ID                int                         `json:"id"`
	IDMal             int                         `json:"id_mal,omitempty"`
	Title             MediaTitle                  `json:"title"`
	Synonyms          []string                    `json:"synonyms,omitempty"`
	Kind              MediaKind                   `json:"type,omitempty"`
	Status            AiringStatus                `json:"status,omitempty"`
	Format            string                      `json:"format,omitempty"`
	Episodes          int                         `json:"episodes,omitempty"`
	Duration          int                         `json:"duration,omitempty"`
	Genres            []string                    `json:"genres,omitempty"`
	Tags              []MediaTag                  `json:"tags,omitempty"`
	Studios           []string                    `json:"studios,omitempty"`
	CoverImage        MediaImage                  `json:"cover_image,omitempty"`
	BannerImage       string                      `json:"banner_image,omitempty"`
	Trailer           *Trailer                    `json:"trailer,omitempty"`
	AverageScore      float64                     `json:"average_score,omitempty"`
	Popularity        int                         `json:"popularity,omitempty"`
	Favourites        int                         `json:"favourites,omitempty"`
	IsAdult           bool                        `json:"is_adult,omitempty"`
	Description       string                      `json:"description,omitempty"`
	StartDate         *FuzzyDate                  `json:"start_date,omitempty"`
	EndDate           *FuzzyDate                  `json:"end_date,omitempty"`
	NextAiring        *AiringSchedule             `json:"next_airing_episode,omitempty"`
	StreamingEpisodes map[string]StreamingEpisode `json:"streaming_episodes,omitempty"`
	UserStatus        *UserListEntry              `json:"user_status,omitempty"`
}

// MediaTag is a catalog tag with its relevance rank
type MediaTag struct {
	Name string `json:"name"`
	Rank int    `json:"rank,omitempty"`
}

// AllTitles returns every title and synonym of the item
func (m *MediaItem) AllTitles() []string {
	titles := make([]string, 0, 3+len(m.Synonyms))
	for _, t := range []string{m.Title.English, m.Title.Romaji, m.Title.Native} {
		if t != "" {
			titles = append(titles, t)
		}
	}
	return append(titles, m.Synonyms...)
}
