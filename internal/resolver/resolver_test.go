package resolver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fumetsu/hibiki/internal/domain"
)

func item(romaji, english string) *domain.MediaItem {
	return &domain.MediaItem{
		ID:    1,
		Title: domain.MediaTitle{Romaji: romaji, English: english},
	}
}

func candidates(titles ...string) []domain.ProviderSearchResult {
	out := make([]domain.ProviderSearchResult, len(titles))
	for i, title := range titles {
		out[i] = domain.ProviderSearchResult{ID: title, Title: title}
	}
	return out
}

func TestBestMatchExactTitle(t *testing.T) {
	match := BestMatch(candidates("Naruto Shippuden", "Naruto", "Boruto"), nil, item("Naruto", ""))

	require.NotNil(t, match)
	assert.Equal(t, "Naruto", match.Result.Title)
	assert.Equal(t, 1.0, match.Score)
}

func TestBestMatchIsCaseInsensitive(t *testing.T) {
	match := BestMatch(candidates("FRIEREN: BEYOND JOURNEY'S END"), nil, item("", "Frieren: Beyond Journey's End"))

	require.NotNil(t, match)
	assert.Equal(t, 1.0, match.Score)
}

func TestBestMatchUsesNormalizer(t *testing.T) {
	normalize := func(title string) string {
		return strings.TrimSuffix(title, " (Dub)")
	}
	match := BestMatch(candidates("One Piece (Dub)", "One Piece Film Red"), normalize, item("One Piece", ""))

	require.NotNil(t, match)
	assert.Equal(t, "One Piece (Dub)", match.Result.Title)
	assert.Equal(t, 1.0, match.Score)
}

func TestBestMatchScoresAgainstBothTitles(t *testing.T) {
	match := BestMatch(candidates("Attack on Titan"), nil, item("Shingeki no Kyojin", "Attack on Titan"))

	require.NotNil(t, match)
	assert.Equal(t, 1.0, match.Score)
}

func TestBestMatchTieKeepsEarlierCandidate(t *testing.T) {
	match := BestMatch(candidates("Bleach TV", "Bleach GO"), nil, item("Bleach", ""))

	require.NotNil(t, match)
	assert.Equal(t, "Bleach TV", match.Result.Title)
}

func TestBestMatchNilCases(t *testing.T) {
	assert.Nil(t, BestMatch(nil, nil, item("Foo", "")))
	assert.Nil(t, BestMatch(candidates("Foo"), nil, nil))
	assert.Nil(t, BestMatch(candidates("Foo"), nil, item("", "")))
}

func TestSimilarityBounds(t *testing.T) {
	assert.Equal(t, 1.0, similarity("foo", "foo"))
	assert.Equal(t, 0.0, similarity("", ""))
	assert.InDelta(t, 0.5, similarity("ab", "ax"), 0.01)
	assert.Greater(t, similarity("naruto", "naruto shippuden"), similarity("naruto", "bleach"))
}
