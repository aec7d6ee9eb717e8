package registry

import (
	"sort"
	"strings"
	"time"

	"github.com/fumetsu/hibiki/internal/domain"
)

// Search runs the in-memory query engine over every record in the store.
// Text matching is a case-folded substring test over all titles and synonyms;
// list filters are set containment; popularity and score are range filters.
// The result is paginated with PageInfo.
func (s *Store) Search(params domain.MediaSearchParams) *domain.MediaSearchResult {
	idx, err := s.loadIndex()
	if err != nil {
		return &domain.MediaSearchResult{}
	}

	var matched []*domain.MediaItem
	for _, record := range s.allRecords() {
		item := record.MediaItem
		if item == nil {
			continue
		}
		if !s.matches(item, idx, params) {
			continue
		}
		matched = append(matched, item)
	}

	s.sortResults(matched, idx, params.Sort)

	perPage := params.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	page := params.Page
	if page <= 0 {
		page = 1
	}

	total := len(matched)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	return &domain.MediaSearchResult{
		PageInfo: domain.PageInfo{
			Total:       total,
			PerPage:     perPage,
			CurrentPage: page,
			HasNextPage: end < total,
		},
		Media: matched[start:end],
	}
}

func (s *Store) matches(item *domain.MediaItem, idx *domain.RegistryIndex, params domain.MediaSearchParams) bool {
	if params.Query != "" && !titleMatches(item, params.Query) {
		return false
	}

	if len(params.IDIn) > 0 && !containsInt(params.IDIn, item.ID) {
		return false
	}

	if params.Kind != "" && item.Kind != "" && item.Kind != params.Kind {
		return false
	}

	if len(params.GenreIn) > 0 && !containsAll(item.Genres, params.GenreIn) {
		return false
	}
	if len(params.GenreNotIn) > 0 && containsAny(item.Genres, params.GenreNotIn) {
		return false
	}

	tagNames := make([]string, 0, len(item.Tags))
	for _, tag := range item.Tags {
		tagNames = append(tagNames, tag.Name)
	}
	if len(params.TagIn) > 0 && !containsAll(tagNames, params.TagIn) {
		return false
	}
	if len(params.TagNotIn) > 0 && containsAny(tagNames, params.TagNotIn) {
		return false
	}

	if len(params.StatusIn) > 0 {
		found := false
		for _, st := range params.StatusIn {
			if item.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, st := range params.StatusNotIn {
		if item.Status == st {
			return false
		}
	}

	if len(params.FormatIn) > 0 && !containsFold(params.FormatIn, item.Format) {
		return false
	}

	if params.PopularityGreater != nil && item.Popularity <= *params.PopularityGreater {
		return false
	}
	if params.PopularityLesser != nil && item.Popularity >= *params.PopularityLesser {
		return false
	}
	if params.ScoreGreater != nil && item.AverageScore <= *params.ScoreGreater {
		return false
	}
	if params.ScoreLesser != nil && item.AverageScore >= *params.ScoreLesser {
		return false
	}

	if params.OnList != nil {
		entry := idx.MediaIndex[domain.IndexKey(s.api, item.ID)]
		onList := entry != nil && entry.Status != ""
		if onList != *params.OnList {
			return false
		}
	}

	return true
}

// sortResults orders matched items.  updated_at descending means most recently
// watched first, as tracked by the index; trending is a synonym for popularity.
func (s *Store) sortResults(items []*domain.MediaItem, idx *domain.RegistryIndex, order domain.MediaSort) {
	switch order {
	case domain.SortScoreDesc:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].AverageScore > items[j].AverageScore
		})
	case domain.SortPopularityDesc, domain.SortTrendingDesc:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Popularity > items[j].Popularity
		})
	case domain.SortFavouritesDesc:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Favourites > items[j].Favourites
		})
	case domain.SortUpdatedAtDesc:
		sort.SliceStable(items, func(i, j int) bool {
			ei := idx.MediaIndex[domain.IndexKey(s.api, items[i].ID)]
			ej := idx.MediaIndex[domain.IndexKey(s.api, items[j].ID)]
			ti, tj := watchTime(ei), watchTime(ej)
			return ti.After(tj)
		})
	default: // SortTitle
		sort.SliceStable(items, func(i, j int) bool {
			return strings.ToLower(items[i].Title.Preferred()) < strings.ToLower(items[j].Title.Preferred())
		})
	}
}

// watchTime returns the entry's last watched time, or the zero time for a
// never-watched entry so it sorts last.
func watchTime(entry *domain.IndexEntry) time.Time {
	if entry != nil && entry.LastWatched != nil {
		return *entry.LastWatched
	}
	return time.Time{}
}

func titleMatches(item *domain.MediaItem, query string) bool {
	needle := strings.ToLower(query)
	for _, title := range item.AllTitles() {
		if strings.Contains(strings.ToLower(title), needle) {
			return true
		}
	}
	return false
}

func containsInt(haystack []int, v int) bool {
	for _, h := range haystack {
		if h == v {
			return true
		}
	}
	return false
}

func containsFold(haystack []string, v string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, v) {
			return true
		}
	}
	return false
}

// containsAll reports whether have contains every element of want, case-insensitively
func containsAll(have, want []string) bool {
	for _, w := range want {
		if !containsFold(have, w) {
			return false
		}
	}
	return true
}

func containsAny(have, want []string) bool {
	for _, w := range want {
		if containsFold(have, w) {
			return true
		}
	}
	return false
}
