// Package metrics collects real-time counters and timing histograms for the
// transaction coordinator: begin/prepare/commit/rollback outcomes and
// per-participant failures.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector collects coordinator-level metrics across all transactions.
type Collector struct {
	transactionsStarted   uint64
	transactionsCommitted uint64
	transactionsAborted   uint64
	commitWarnings        uint64

	beginFailures   uint64
	prepareFailures uint64
	operationErrors uint64

	participantFailures uint64

	mu              sync.RWMutex
	beginTimings    *TimingHistogram
	prepareTimings  *TimingHistogram
	commitTimings   *TimingHistogram
	rollbackTimings *TimingHistogram

	startTime time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		beginTimings:    NewTimingHistogram(1000),
		prepareTimings:  NewTimingHistogram(1000),
		commitTimings:   NewTimingHistogram(1000),
		rollbackTimings: NewTimingHistogram(1000),
		startTime:       time.Now(),
	}
}

// TimingHistogram stores timing data in buckets for histogram generation.
type TimingHistogram struct {
	// Buckets: <1ms, 1-10ms, 10-100ms, 100ms-1s, >1s
	bucket0_1ms      uint64
	bucket1_10ms     uint64
	bucket10_100ms   uint64
	bucket100_1000ms uint64
	bucket1000ms     uint64

	mu               sync.Mutex
	recentTimings    []time.Duration // bounded ring for percentile estimation
	maxRecentTimings int
}

// NewTimingHistogram creates a new timing histogram.
func NewTimingHistogram(maxRecent int) *TimingHistogram {
	return &TimingHistogram{
		recentTimings:    make([]time.Duration, 0, maxRecent),
		maxRecentTimings: maxRecent,
	}
}

// Record adds a timing to the histogram.
func (th *TimingHistogram) Record(duration time.Duration) {
	ms := duration.Milliseconds()
	switch {
	case ms < 1:
		atomic.AddUint64(&th.bucket0_1ms, 1)
	case ms < 10:
		atomic.AddUint64(&th.bucket1_10ms, 1)
	case ms < 100:
		atomic.AddUint64(&th.bucket10_100ms, 1)
	case ms < 1000:
		atomic.AddUint64(&th.bucket100_1000ms, 1)
	default:
		atomic.AddUint64(&th.bucket1000ms, 1)
	}

	th.mu.Lock()
	defer th.mu.Unlock()
	if len(th.recentTimings) >= th.maxRecentTimings {
		th.recentTimings = th.recentTimings[1:]
	}
	th.recentTimings = append(th.recentTimings, duration)
}

// GetBuckets returns the histogram bucket counts.
func (th *TimingHistogram) GetBuckets() map[string]uint64 {
	return map[string]uint64{
		"0-1ms":      atomic.LoadUint64(&th.bucket0_1ms),
		"1-10ms":     atomic.LoadUint64(&th.bucket1_10ms),
		"10-100ms":   atomic.LoadUint64(&th.bucket10_100ms),
		"100-1000ms": atomic.LoadUint64(&th.bucket100_1000ms),
		">1000ms":    atomic.LoadUint64(&th.bucket1000ms),
	}
}

// GetPercentiles calculates P50, P95, P99 from recent timings.
func (th *TimingHistogram) GetPercentiles() map[string]time.Duration {
	th.mu.Lock()
	defer th.mu.Unlock()

	if len(th.recentTimings) == 0 {
		return map[string]time.Duration{"p50": 0, "p95": 0, "p99": 0}
	}

	sorted := make([]time.Duration, len(th.recentTimings))
	copy(sorted, th.recentTimings)

	// Insertion sort, fine for bounded recent-timing windows.
	for i := 1; i < len(sorted); i++ {
		key := sorted[i]
		j := i - 1
		for j >= 0 && sorted[j] > key {
			sorted[j+1] = sorted[j]
			j--
		}
		sorted[j+1] = key
	}

	p50 := len(sorted) * 50 / 100
	p95 := len(sorted) * 95 / 100
	p99 := len(sorted) * 99 / 100

	return map[string]time.Duration{
		"p50": sorted[p50],
		"p95": sorted[p95],
		"p99": sorted[p99],
	}
}

// RecordBegin records a begin-phase outcome and duration.
func (c *Collector) RecordBegin(duration time.Duration, success bool) {
	atomic.AddUint64(&c.transactionsStarted, 1)
	if !success {
		atomic.AddUint64(&c.beginFailures, 1)
	}
	c.beginTimings.Record(duration)
}

// RecordOperationError records an operation closure that failed against a participant.
func (c *Collector) RecordOperationError() {
	atomic.AddUint64(&c.operationErrors, 1)
}

// RecordPrepare records a prepare-phase outcome and duration.
func (c *Collector) RecordPrepare(duration time.Duration, success bool) {
	if !success {
		atomic.AddUint64(&c.prepareFailures, 1)
	}
	c.prepareTimings.Record(duration)
}

// RecordCommit records a commit-phase outcome and duration. warning is true
// when at least one participant's XA COMMIT failed after all voted yes.
func (c *Collector) RecordCommit(duration time.Duration, warning bool) {
	atomic.AddUint64(&c.transactionsCommitted, 1)
	if warning {
		atomic.AddUint64(&c.commitWarnings, 1)
	}
	c.commitTimings.Record(duration)
}

// RecordRollback records an abort/rollback outcome and duration.
func (c *Collector) RecordRollback(duration time.Duration) {
	atomic.AddUint64(&c.transactionsAborted, 1)
	c.rollbackTimings.Record(duration)
}

// RecordParticipantFailure records one participant transitioning to FAILED.
func (c *Collector) RecordParticipantFailure() {
	atomic.AddUint64(&c.participantFailures, 1)
}

// Snapshot is a point-in-time view of all collected metrics.
type Snapshot struct {
	UptimeSeconds         float64
	TransactionsStarted   uint64
	TransactionsCommitted uint64
	TransactionsAborted   uint64
	CommitWarnings        uint64
	BeginFailures         uint64
	PrepareFailures       uint64
	OperationErrors       uint64
	ParticipantFailures   uint64
}

// Snapshot returns a consistent snapshot of the counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		UptimeSeconds:         time.Since(c.startTime).Seconds(),
		TransactionsStarted:   atomic.LoadUint64(&c.transactionsStarted),
		TransactionsCommitted: atomic.LoadUint64(&c.transactionsCommitted),
		TransactionsAborted:   atomic.LoadUint64(&c.transactionsAborted),
		CommitWarnings:        atomic.LoadUint64(&c.commitWarnings),
		BeginFailures:         atomic.LoadUint64(&c.beginFailures),
		PrepareFailures:       atomic.LoadUint64(&c.prepareFailures),
		OperationErrors:       atomic.LoadUint64(&c.operationErrors),
		ParticipantFailures:   atomic.LoadUint64(&c.participantFailures),
	}
}

// Reset resets all counters and histograms to zero. Intended for tests.
func (c *Collector) Reset() {
	atomic.StoreUint64(&c.transactionsStarted, 0)
	atomic.StoreUint64(&c.transactionsCommitted, 0)
	atomic.StoreUint64(&c.transactionsAborted, 0)
	atomic.StoreUint64(&c.commitWarnings, 0)
	atomic.StoreUint64(&c.beginFailures, 0)
	atomic.StoreUint64(&c.prepareFailures, 0)
	atomic.StoreUint64(&c.operationErrors, 0)
	atomic.StoreUint64(&c.participantFailures, 0)

	c.mu.Lock()
	c.beginTimings = NewTimingHistogram(1000)
	c.prepareTimings = NewTimingHistogram(1000)
	c.commitTimings = NewTimingHistogram(1000)
	c.rollbackTimings = NewTimingHistogram(1000)
	c.startTime = time.Now()
	c.mu.Unlock()
}
