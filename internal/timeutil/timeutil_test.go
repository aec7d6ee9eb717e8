package timeutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"00:00:00", 0, false},
		{"01:02:03", 3723, false},
		{"23:10", 1390, false},
		{" 00:20:00 ", 1200, false},
		{"bogus", 0, true},
		{"1:2:3:4", 0, true},
		{"00:-1:00", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseClock(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		assert.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatClock(0))
	assert.Equal(t, "01:02:03", FormatClock(3723))
	assert.Equal(t, "00:00:00", FormatClock(-5))
}

func TestCompletionPercent(t *testing.T) {
	assert.InDelta(t, 50.0, CompletionPercent("00:10:00", "00:20:00"), 0.001)
	assert.Equal(t, 0.0, CompletionPercent("bad", "00:20:00"))
	assert.Equal(t, 0.0, CompletionPercent("00:10:00", "00:00:00"))
}

func TestCompareEpisodes(t *testing.T) {
	// Numeric compare when both sides parse
	assert.Equal(t, -1, CompareEpisodes("9.5", "10"))
	assert.Equal(t, 1, CompareEpisodes("6", "5"))
	assert.Equal(t, 0, CompareEpisodes("7.5", "7.5"))

	// String compare fallback
	assert.Equal(t, -1, CompareEpisodes("OVA1", "OVA2"))
}

func TestNextEpisode(t *testing.T) {
	assert.Equal(t, "8", NextEpisode("7"))
	assert.Equal(t, "7.5", NextEpisode("7.5"))
	assert.Equal(t, "special", NextEpisode("special"))
}
