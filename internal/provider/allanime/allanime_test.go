package allanime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeSourceURLHexPairs(t *testing.T) {
	// "/clock?id=123" in the hex-pair alphabet
	encoded := "175b54575b5307515c05090a0b"
	assert.Equal(t, "https://allanime.day/clock.json?id=123", decodeSourceURL(encoded))
}

func TestDecodeSourceURLKeepsUnknownPairs(t *testing.T) {
	// "ff" is not in the alphabet and passes through untouched
	assert.Equal(t, "ff9", decodeSourceURL("ff01"))
}

func TestDecodeSourceURLPreservesPort(t *testing.T) {
	// "/a" has no known pair for "a"; the part after ":" is never decoded
	decoded := decodeSourceURL("1759:8080/path")
	assert.Equal(t, "https://allanime.day/a:8080/path", decoded)
}

func TestDecodeSourceURLRelativeOnlyGetsPrefixed(t *testing.T) {
	// No leading slash after decoding means no base URL is prepended
	assert.Equal(t, "abc123", decodeSourceURL("595a5b090a0b"))
}

func TestNormalizerStripsSeasonSuffixes(t *testing.T) {
	normalize := (&Client{}).Normalizer()

	assert.Equal(t, "Spy x Family", normalize("Spy x Family (Dub)"))
	assert.Equal(t, "Mushoku Tensei", normalize("Mushoku Tensei 2nd Season"))
	assert.Equal(t, "Redo of Healer", normalize("Redo of Healer (Uncensored)"))
	assert.Equal(t, "Frieren", normalize("Frieren"))
}

func TestTranslationDefaultsToSub(t *testing.T) {
	assert.Equal(t, "sub", translation(""))
	assert.Equal(t, "dub", translation("dub"))
}
