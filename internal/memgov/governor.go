// Package memgov samples process memory and feeds adaptive batch sizing for
// the market-data fetch path. Small dynos cannot afford unbounded snapshot
// fan-out, so the fetcher consults the governor before starting and between
// sub-batches.
package memgov

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var (
	memoryGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "daytrader_memory_mb",
		Help: "Sampled process memory in MB.",
	})
	fetchAborts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "daytrader_fetch_aborts_total",
		Help: "Snapshot fetches aborted by the memory governor.",
	})
	reclaims = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "daytrader_memory_reclaims_total",
		Help: "Reclamation passes forced by the memory governor.",
	})
)

func init() {
	prometheus.MustRegister(memoryGauge, fetchAborts, reclaims)
}

// Limits are the configured fetch bounds and memory thresholds.
type Limits struct {
	MaxConcurrentFetch int
	BatchSize          int
	MaxTickersPerCycle int
	PauseMB            float64
	AbortMB            float64
}

// LimitsForDyno returns threshold presets for a dyno size, scaled against an
// explicit memory limit when one is configured.
func LimitsForDyno(dynoType string, memoryLimitMB float64) Limits {
	l := Limits{
		MaxConcurrentFetch: 5,
		BatchSize:          25,
		MaxTickersPerCycle: 25,
		PauseMB:            400,
		AbortMB:            550,
	}
	switch dynoType {
	case "standard-2x", "performance-m":
		l.MaxConcurrentFetch = 10
		l.PauseMB = 800
		l.AbortMB = 1100
	case "performance-l":
		l.MaxConcurrentFetch = 10
		l.PauseMB = 1600
		l.AbortMB = 2200
	}
	if memoryLimitMB > 0 {
		l.PauseMB = memoryLimitMB * 0.4
		l.AbortMB = memoryLimitMB * 0.55
	}
	return l
}

// Governor samples resident memory on demand and answers pause/abort
// questions for the fetch path.
type Governor struct {
	mu        sync.Mutex
	limits    Limits
	purges    []func()
	eventSink func(eventType, detail string)
	logger    *logrus.Logger

	// readMB is swappable in tests.
	readMB func() float64
}

// New builds a governor with the given limits.
func New(limits Limits, logger *logrus.Logger) *Governor {
	return &Governor{
		limits: limits,
		logger: logger,
		readMB: processMB,
	}
}

func processMB() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.Sys-m.HeapReleased) / (1024 * 1024)
}

// CurrentMB samples process memory.
func (g *Governor) CurrentMB() float64 {
	mb := g.readMB()
	memoryGauge.Set(mb)
	return mb
}

// Limits returns the configured fetch bounds.
func (g *Governor) Limits() Limits {
	return g.limits
}

// RegisterPurge adds a cache-purge hook run during reclamation passes.
func (g *Governor) RegisterPurge(fn func()) {
	g.mu.Lock()
	g.purges = append(g.purges, fn)
	g.mu.Unlock()
}

// SetEventSink installs a callback invoked when a fetch is aborted, so the
// abort lands in the audit trail as well as the metrics.
func (g *Governor) SetEventSink(fn func(eventType, detail string)) {
	g.mu.Lock()
	g.eventSink = fn
	g.mu.Unlock()
}

// ShouldPauseFetch reports whether memory has crossed the pause line.
func (g *Governor) ShouldPauseFetch() bool {
	return g.CurrentMB() >= g.limits.PauseMB
}

// ShouldAbortFetch reports whether memory has crossed the abort line.
func (g *Governor) ShouldAbortFetch() bool {
	mb := g.CurrentMB()
	abort := mb >= g.limits.AbortMB
	if abort {
		fetchAborts.Inc()
		g.mu.Lock()
		sink := g.eventSink
		g.mu.Unlock()
		if sink != nil {
			sink("fetch_abort", fmt.Sprintf("memory %.0fMB over %.0fMB abort limit", mb, g.limits.AbortMB))
		}
	}
	return abort
}

// Reclaim runs the registered cache purges and hints the collector.
func (g *Governor) Reclaim() {
	g.mu.Lock()
	purges := make([]func(), len(g.purges))
	copy(purges, g.purges)
	g.mu.Unlock()

	before := g.CurrentMB()
	for _, purge := range purges {
		purge()
	}
	runtime.GC()
	reclaims.Inc()
	g.logger.WithFields(logrus.Fields{
		"before_mb": before,
		"after_mb":  g.CurrentMB(),
	}).Info("memory reclamation pass complete")
}

// AdaptiveBatchSize shrinks the configured batch size as memory approaches
// the pause line, never below one.
func (g *Governor) AdaptiveBatchSize() int {
	size := g.limits.BatchSize
	mb := g.CurrentMB()
	switch {
	case mb >= g.limits.PauseMB:
		size /= 4
	case mb >= g.limits.PauseMB*0.8:
		size /= 2
	}
	if size < 1 {
		size = 1
	}
	return size
}

// SetMemorySampler swaps the memory reader. Test hook.
func (g *Governor) SetMemorySampler(fn func() float64) {
	g.readMB = fn
}
