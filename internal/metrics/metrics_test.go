package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCountLines_Empty(t *testing.T) {
	assert.Equal(t, 0, CountLines(""))
}

func TestCountLines_SingleLineNoTrailingNewline(t *testing.T) {
	assert.Equal(t, 1, CountLines("hello"))
}

func TestCountLines_CountsNewlineSeparatedSegments(t *testing.T) {
	assert.Equal(t, 3, CountLines("a\nb\nc"))
}

func TestCountLines_TrailingNewlineAddsAnEmptySegment(t *testing.T) {
	assert.Equal(t, 2, CountLines("a\n"))
}

func TestMetrics_FinalizeStampsEndTimeAndDuration(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &Metrics{StartAt: start}

	end := start.Add(1500 * time.Millisecond)
	m.Finalize(end)

	assert.Equal(t, end, m.EndAt)
	assert.Equal(t, int64(1500), m.DurationMS)
}
