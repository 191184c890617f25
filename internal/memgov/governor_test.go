package memgov

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testGovernor(mb float64) *Governor {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	g := New(Limits{
		MaxConcurrentFetch: 5,
		BatchSize:          20,
		MaxTickersPerCycle: 25,
		PauseMB:            400,
		AbortMB:            550,
	}, logger)
	g.SetMemorySampler(func() float64 { return mb })
	return g
}

func TestThresholds(t *testing.T) {
	g := testGovernor(300)
	assert.False(t, g.ShouldPauseFetch())
	assert.False(t, g.ShouldAbortFetch())

	g = testGovernor(420)
	assert.True(t, g.ShouldPauseFetch())
	assert.False(t, g.ShouldAbortFetch())

	g = testGovernor(610)
	assert.True(t, g.ShouldPauseFetch())
	assert.True(t, g.ShouldAbortFetch())
}

func TestAbortReportsToEventSink(t *testing.T) {
	g := testGovernor(610)
	var gotType, gotDetail string
	g.SetEventSink(func(eventType, detail string) {
		gotType, gotDetail = eventType, detail
	})

	assert.True(t, g.ShouldAbortFetch())
	assert.Equal(t, "fetch_abort", gotType)
	assert.Contains(t, gotDetail, "610MB")

	// Below the line, the sink stays quiet.
	gotType = ""
	g.SetMemorySampler(func() float64 { return 300 })
	assert.False(t, g.ShouldAbortFetch())
	assert.Empty(t, gotType)
}

func TestAdaptiveBatchSize(t *testing.T) {
	assert.Equal(t, 20, testGovernor(100).AdaptiveBatchSize())
	// 80% of the pause line halves the batch.
	assert.Equal(t, 10, testGovernor(330).AdaptiveBatchSize())
	// Past the pause line it quarters.
	assert.Equal(t, 5, testGovernor(450).AdaptiveBatchSize())
}

func TestAdaptiveBatchSizeFloorsAtOne(t *testing.T) {
	g := testGovernor(1000)
	g.limits.BatchSize = 2
	assert.Equal(t, 1, g.AdaptiveBatchSize())
}

func TestReclaimRunsPurges(t *testing.T) {
	g := testGovernor(500)
	ran := 0
	g.RegisterPurge(func() { ran++ })
	g.RegisterPurge(func() { ran++ })
	g.Reclaim()
	assert.Equal(t, 2, ran)
}

func TestLimitsForDyno(t *testing.T) {
	l := LimitsForDyno("standard-1x", 0)
	assert.Equal(t, 400.0, l.PauseMB)
	assert.Equal(t, 550.0, l.AbortMB)

	l = LimitsForDyno("standard-2x", 0)
	assert.Equal(t, 10, l.MaxConcurrentFetch)

	// An explicit memory limit overrides the preset thresholds.
	l = LimitsForDyno("standard-1x", 1000)
	assert.Equal(t, 400.0, l.PauseMB)
	assert.Equal(t, 550.0, l.AbortMB)
}
