package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"date", "2020-01-01", time.Date(2020, 1, 1, 0, 0, 0, 0, AlmatyTZ)},
		{"datetime seconds", "2020-01-01 10:30:15", time.Date(2020, 1, 1, 10, 30, 15, 0, AlmatyTZ)},
		{"iso without zone", "2020-01-01T10:30:15", time.Date(2020, 1, 1, 10, 30, 15, 0, AlmatyTZ)},
		{"rfc3339 utc", "2020-01-01T05:00:00Z", time.Date(2020, 1, 1, 10, 0, 0, 0, AlmatyTZ)},
		{"russian", "31.12.2021", time.Date(2021, 12, 31, 0, 0, 0, 0, AlmatyTZ)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseString(tt.input, AlmatyTZ)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestParseString_Invalid(t *testing.T) {
	_, err := ParseString("yesterday", AlmatyTZ)
	assert.Error(t, err)

	_, err = ParseString("  ", AlmatyTZ)
	assert.Error(t, err)
}

func TestParse_Values(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	got, err := Parse(now, AlmatyTZ)
	require.NoError(t, err)
	assert.True(t, now.Equal(got))
	assert.Equal(t, AlmatyTZ, got.Location())

	got, err = Parse(float64(0), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(0, 0).UTC(), got)

	_, err = Parse(struct{}{}, time.UTC)
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	ts := time.Date(2020, 1, 1, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, "2020-01-02", Format(ts, FormatDate, AlmatyTZ))
	assert.Equal(t, "2020-01-01 20:00:00", Format(ts, FormatDateTimeSeconds, time.UTC))
}

func TestValidLayout(t *testing.T) {
	assert.True(t, ValidLayout(FormatDate))
	assert.True(t, ValidLayout(FormatDateTimeSeconds))
	assert.True(t, ValidLayout("02/01/2006"))
	assert.False(t, ValidLayout(""))
	assert.False(t, ValidLayout("yyyy-mm-dd"))
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.NotNil(t, loc)

	loc, err = LoadLocation("UTC")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	_, err = LoadLocation("Mars/Olympus")
	assert.Error(t, err)
}

func TestIsSameDay(t *testing.T) {
	a := time.Date(2024, 1, 1, 19, 30, 0, 0, time.UTC)
	b := time.Date(2024, 1, 2, 6, 0, 0, 0, AlmatyTZ)

	assert.True(t, IsSameDay(a, b, AlmatyTZ))
	assert.False(t, IsSameDay(a, b, time.UTC))
}
