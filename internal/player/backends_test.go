package player

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderFieldsSortedAndJoined(t *testing.T) {
	fields := HeaderFields(map[string]string{
		"User-Agent": "test-agent",
		"Referer":    "https://example.com/",
	})
	assert.Equal(t, "Referer: https://example.com/,User-Agent: test-agent", fields)
}

func TestHeaderFieldsEmpty(t *testing.T) {
	assert.Empty(t, HeaderFields(nil))
	assert.Empty(t, HeaderFields(map[string]string{}))
}

func TestParseArgsSplitsOnSpaces(t *testing.T) {
	assert.Equal(t, []string{"--fs", "--volume=50"}, ParseArgs("--fs --volume=50"))
}

func TestParseArgsRespectsQuotes(t *testing.T) {
	args := ParseArgs(`--title="My Show" --fs`)
	require.Len(t, args, 2)
	assert.Equal(t, "--title=My Show", args[0])
	assert.Equal(t, "--fs", args[1])
}

func TestParseArgsEmpty(t *testing.T) {
	assert.Nil(t, ParseArgs(""))
	assert.Nil(t, ParseArgs("   "))
}

func TestStartSecondsConvertsClock(t *testing.T) {
	assert.Equal(t, "3725", startSeconds("01:02:05"))
	assert.Equal(t, "125", startSeconds("02:05"))
	assert.Equal(t, "0", startSeconds("00:00:00"))
}

func TestScanAVLinesKeepsLastStatus(t *testing.T) {
	output := "Playing: episode.mkv\r" +
		"AV: 00:01:00 / 00:24:00 (4%)\r" +
		"AV: 00:12:34 / 00:24:00 (52%)\n" +
		"Exiting... (Quit)\n"

	stop, total := scanAVLines(strings.NewReader(output))
	assert.Equal(t, "00:12:34", stop)
	assert.Equal(t, "00:24:00", total)
}

func TestScanAVLinesNoStatus(t *testing.T) {
	stop, total := scanAVLines(strings.NewReader("no status here\n"))
	assert.Empty(t, stop)
	assert.Empty(t, total)
}

func TestScanCRorLFSplitsBoth(t *testing.T) {
	var tokens []string
	data := []byte("a\rb\nc")
	for len(data) > 0 {
		advance, token, err := scanCRorLF(data, true)
		require.NoError(t, err)
		if advance == 0 {
			break
		}
		tokens = append(tokens, string(token))
		data = data[advance:]
	}
	assert.Equal(t, []string{"a", "b", "c"}, tokens)
}

func TestIsTorrentURL(t *testing.T) {
	assert.True(t, isTorrentURL("magnet:?xt=urn:btih:abc"))
	assert.True(t, isTorrentURL("https://nyaa.si/x.TORRENT"))
	assert.False(t, isTorrentURL("https://cdn.example.com/ep.m3u8"))
}
