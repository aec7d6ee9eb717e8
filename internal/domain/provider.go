package domain

// TranslationType selects between subbed and dubbed streams
type TranslationType string

const (
	TranslationSub TranslationType = "sub"
	TranslationDub TranslationType = "dub"
	TranslationRaw TranslationType = "raw"
)

// StreamLink is one playable URL offered by a server
type StreamLink struct {
	Link     string  `json:"link"`
	Quality  string  `json:"quality,omitempty"` // one of 360, 480, 720, 1080
	Format   string  `json:"format,omitempty"`
	HLS      bool    `json:"hls,omitempty"`
	MP4      bool    `json:"mp4,omitempty"`
	Priority float64 `json:"priority,omitempty"`
}

// SubtitleTrack is a sidecar subtitle offered by a server
type SubtitleTrack struct {
	URL      string `json:"url"`
	Language string `json:"language,omitempty"`
}

// Server is one provider-chosen hosting location for an episode
type Server struct {
	Name         string            `json:"name"`
	Links        []StreamLink      `json:"links"`
	EpisodeTitle string            `json:"episode_title,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Subtitles    []SubtitleTrack   `json:"subtitles,omitempty"`
	Audio        []string          `json:"audio,omitempty"`
}

// BestLink returns the link matching the wanted quality exactly, falling back
// to the highest available.  Empty wanted quality means best available.
func (s *Server) BestLink(quality string) *StreamLink {
	if len(s.Links) == 0 {
		return nil
	}
	if quality != "" {
		for i := range s.Links {
			if s.Links[i].Quality == quality {
				return &s.Links[i]
			}
		}
	}
	best := &s.Links[0]
	for i := range s.Links[1:] {
		if qualityRank(s.Links[i+1].Quality) > qualityRank(best.Quality) {
			best = &s.Links[i+1]
		}
	}
	return best
}

func qualityRank(quality string) int {
	rank := 0
	for _, r := range quality {
		if r < '0' || r > '9' {
			break
		}
		rank = rank*10 + int(r-'0')
	}
	return rank
}

// EpisodeInfo describes one provider episode
type EpisodeInfo struct {
	ID       string  `json:"id"`
	Episode  string  `json:"episode"`
	Title    string  `json:"title,omitempty"`
	Poster   string  `json:"poster,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// ProviderEpisodes lists the episode identifiers available per translation type
type ProviderEpisodes struct {
	Sub []string `json:"sub,omitempty"`
	Dub []string `json:"dub,omitempty"`
	Raw []string `json:"raw,omitempty"`
}

// For returns the episode identifiers for a translation type
func (e ProviderEpisodes) For(t TranslationType) []string {
	switch t {
	case TranslationDub:
		return e.Dub
	case TranslationRaw:
		return e.Raw
	default:
		return e.Sub
	}
}

// ProviderAnime is a provider's full view of one title
type ProviderAnime struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	OtherTitles []string               `json:"other_titles,omitempty"`
	Episodes    ProviderEpisodes       `json:"episodes"`
	EpisodeInfo map[string]EpisodeInfo `json:"episode_info,omitempty"`
}

// ProviderSearchResult is one hit from a provider search
type ProviderSearchResult struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	OtherTitles []string         `json:"other_titles,omitempty"`
	Episodes    ProviderEpisodes `json:"episodes"`
}

// SearchResults is the full provider search response
type SearchResults struct {
	PageInfo PageInfo               `json:"page_info"`
	Results  []ProviderSearchResult `json:"results"`
}
