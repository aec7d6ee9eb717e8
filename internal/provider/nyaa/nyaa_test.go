package nyaa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEpisode(t *testing.T) {
	cases := map[string]string{
		"[SubsPlease] Frieren - 04 (1080p) [ABCD1234].mkv": "4",
		"[EMBER] Frieren E12 [1080p]":                      "12",
		"Sousou no Frieren Episode 28":                     "28",
		"[Group] Some Movie (1080p)":                       "",
		"[SubsPlease] Show - 04v2 (720p)":                  "4",
	}
	for title, want := range cases {
		assert.Equal(t, want, parseEpisode(title), title)
	}
}

func TestMagnetLinkFromInfoHash(t *testing.T) {
	link := magnetLink(feedItem{
		Title:    "[SubsPlease] Frieren - 04",
		InfoHash: "deadbeef",
		Link:     "https://nyaa.si/download/123.torrent",
	})
	assert.Contains(t, link, "magnet:?xt=urn:btih:deadbeef")
	assert.Contains(t, link, "dn=")

	// No info hash falls back to the page link
	link = magnetLink(feedItem{Link: "https://nyaa.si/download/123.torrent"})
	assert.Equal(t, "https://nyaa.si/download/123.torrent", link)
}

func TestNormalizerStripsReleaseDecorations(t *testing.T) {
	normalize := (&Client{}).Normalizer()

	assert.Equal(t, "Frieren - 04", normalize("[SubsPlease] Frieren - 04 (1080p)"))
	assert.Equal(t, "Frieren", normalize("[A][B] Frieren [batch] (720p)"))
	assert.Equal(t, "Plain Title", normalize("Plain Title"))
}

func TestQualityExtraction(t *testing.T) {
	match := qualityPattern.FindStringSubmatch("[SubsPlease] Show - 01 (1080p)")
	assert.NotNil(t, match)
	assert.Equal(t, "1080", match[1])

	assert.Nil(t, qualityPattern.FindStringSubmatch("[Group] Show - 01"))
}
