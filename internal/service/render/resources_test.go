package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const meminfo = `MemTotal:       16384000 kB
MemFree:          524288 kB
MemAvailable:   12582912 kB
Buffers:          102400 kB
Cached:         11000000 kB
`

func TestParseMemAvailable_CountsPageCache(t *testing.T) {
	gb, err := parseMemAvailable(strings.NewReader(meminfo))
	require.NoError(t, err)
	assert.InDelta(t, 12.0, gb, 0.001)

	assert.Equal(t, 6, WorkerCount(8, gb, 10, 0))
	// MemFree alone lands in the lowest tier
	assert.Equal(t, 2, WorkerCount(8, 0.5, 10, 0))
}

func TestParseMemAvailable_Errors(t *testing.T) {
	_, err := parseMemAvailable(strings.NewReader("MemTotal: 16384000 kB\nMemFree: 524288 kB\n"))
	assert.Error(t, err)

	_, err = parseMemAvailable(strings.NewReader("MemAvailable: lots kB\n"))
	assert.Error(t, err)
}

func TestDetectResources(t *testing.T) {
	r := DetectResources()
	assert.GreaterOrEqual(t, r.CPUs, 1)
	assert.Greater(t, r.MemoryGB, 0.0)
}
