package monitoring

import (
	"sync/atomic"
	"time"
)

// Collector aggregates scoring counters across requests. All methods are
// safe for concurrent use; a nil Collector is a no-op.
type Collector struct {
	requests     atomic.Int64
	rows         atomic.Int64
	rowErrors    atomic.Int64
	cacheHits    atomic.Int64
	totalLatency atomic.Int64 // nanoseconds
	startTime    time.Time
}

// Stats is a point-in-time snapshot of the collector.
type Stats struct {
	Requests     int64         `json:"requests"`
	Rows         int64         `json:"rows"`
	RowErrors    int64         `json:"row_errors"`
	CacheHits    int64         `json:"cache_hits"`
	AvgLatencyMS float64       `json:"avg_latency_ms"`
	Uptime       time.Duration `json:"uptime_ns"`
	Timestamp    time.Time     `json:"timestamp"`
}

func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// RecordBatch accounts one scoring request of n rows, of which failed
// produced per-row errors.
func (c *Collector) RecordBatch(n, failed int, latency time.Duration) {
	if c == nil {
		return
	}
	c.requests.Add(1)
	c.rows.Add(int64(n))
	c.rowErrors.Add(int64(failed))
	c.totalLatency.Add(int64(latency))
}

func (c *Collector) RecordCacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Add(1)
}

func (c *Collector) Snapshot() Stats {
	if c == nil {
		return Stats{Timestamp: time.Now()}
	}
	requests := c.requests.Load()
	stats := Stats{
		Requests:  requests,
		Rows:      c.rows.Load(),
		RowErrors: c.rowErrors.Load(),
		CacheHits: c.cacheHits.Load(),
		Uptime:    time.Since(c.startTime),
		Timestamp: time.Now(),
	}
	if requests > 0 {
		stats.AvgLatencyMS = float64(c.totalLatency.Load()) / float64(requests) / float64(time.Millisecond)
	}
	return stats
}
