// Package resolver binds a catalog media item to a provider search result by
// fuzzy title similarity.
package resolver

import (
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/fumetsu/hibiki/internal/domain"
	"github.com/fumetsu/hibiki/internal/log"
)

// Match is one scored candidate
type Match struct {
	Key    string
	Result domain.ProviderSearchResult
	Score  float64
}

// BestMatch picks the candidate whose normalized title is closest to the
// catalog item's romaji or english title.  Candidates are scored in input
// order and ties keep the earlier candidate.
func BestMatch(candidates []domain.ProviderSearchResult, normalize func(string) string, item *domain.MediaItem) *Match {
	if len(candidates) == 0 || item == nil {
		return nil
	}
	if normalize == nil {
		normalize = func(s string) string { return s }
	}

	targets := make([]string, 0, 2)
	for _, title := range []string{item.Title.Romaji, item.Title.English} {
		if title != "" {
			targets = append(targets, strings.ToLower(title))
		}
	}
	if len(targets) == 0 {
		return nil
	}

	var best *Match
	for i := range candidates {
		candidate := &candidates[i]
		normalized := strings.ToLower(normalize(candidate.Title))
		score := 0.0
		for _, target := range targets {
			if s := similarity(normalized, target); s > score {
				score = s
			}
		}
		if best == nil || score > best.Score {
			best = &Match{Key: candidate.Title, Result: *candidate, Score: score}
		}
	}

	log.Debug("Resolved title", "catalog", item.Title.Preferred(), "provider_title", best.Key, "score", best.Score)
	return best
}

// similarity is a normalized Levenshtein ratio in [0, 1]
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	distance := fuzzy.LevenshteinDistance(a, b)
	return 1 - float64(distance)/float64(longest)
}
