package handlers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanProgressFlushesPerTick(t *testing.T) {
	report := strings.Join([]string{
		"frame=100",
		"out_time=00:00:04.000000",
		"progress=continue",
		"frame=200",
		"out_time=00:00:08.000000",
		"progress=continue",
		"frame=250",
		"out_time=00:00:10.000000",
		"progress=end",
	}, "\n")

	var ticks []map[string]string
	err := scanProgress(strings.NewReader(report), func(fields map[string]string) bool {
		ticks = append(ticks, fields)
		return true
	})
	require.NoError(t, err)

	require.Len(t, ticks, 3)
	assert.Equal(t, "100", ticks[0]["frame"])
	assert.Equal(t, "00:00:08.000000", ticks[1]["out_time"])
	assert.Equal(t, "end", ticks[2]["progress"])

	// Fields do not leak between ticks
	assert.NotContains(t, ticks[2], "bitrate")
}

func TestScanProgressStopsWhenFlushDeclines(t *testing.T) {
	report := strings.Join([]string{
		"frame=1",
		"progress=continue",
		"frame=2",
		"progress=continue",
	}, "\n")

	calls := 0
	err := scanProgress(strings.NewReader(report), func(fields map[string]string) bool {
		calls++
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "a declined flush stops the scan")
}

func TestScanProgressSkipsMalformedLines(t *testing.T) {
	report := strings.Join([]string{
		"this line has no separator",
		"frame=42",
		"progress=end",
	}, "\n")

	var got map[string]string
	err := scanProgress(strings.NewReader(report), func(fields map[string]string) bool {
		got = fields
		return true
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "42", got["frame"])
}
