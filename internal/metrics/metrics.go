// Package metrics is an in-process counter set exposed on /metrics.
package metrics

import (
	"sync"
	"time"
)

type OperationStats struct {
	Count       int64   `json:"count"`
	Errors      int64   `json:"errors"`
	TotalMillis int64   `json:"total_ms"`
	AvgMillis   float64 `json:"avg_ms"`
}

type Snapshot struct {
	StartedAt       time.Time       `json:"started_at"`
	UptimeSeconds   float64         `json:"uptime_seconds"`
	Ingest          OperationStats  `json:"ingest"`
	Search          OperationStats  `json:"search"`
	Generation      OperationStats  `json:"generation"`
	ChunksIngested  int64           `json:"chunks_ingested"`
	ComponentHealth map[string]bool `json:"component_health"`
}

// Collector is safe for concurrent use.
type Collector struct {
	mu        sync.Mutex
	startedAt time.Time

	ingest     OperationStats
	search     OperationStats
	generation OperationStats

	chunksIngested int64
	health         map[string]bool
}

func NewCollector() *Collector {
	return &Collector{
		startedAt: time.Now(),
		health:    map[string]bool{},
	}
}

func (c *Collector) RecordIngest(chunks int, d time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record(&c.ingest, d, err)
	if err == nil {
		c.chunksIngested += int64(chunks)
	}
}

func (c *Collector) RecordSearch(d time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record(&c.search, d, err)
}

func (c *Collector) RecordGeneration(d time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record(&c.generation, d, err)
}

func (c *Collector) SetComponentHealth(name string, healthy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.health[name] = healthy
}

func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	health := make(map[string]bool, len(c.health))
	for k, v := range c.health {
		health[k] = v
	}
	s := Snapshot{
		StartedAt:       c.startedAt,
		UptimeSeconds:   time.Since(c.startedAt).Seconds(),
		Ingest:          c.ingest,
		Search:          c.search,
		Generation:      c.generation,
		ChunksIngested:  c.chunksIngested,
		ComponentHealth: health,
	}
	finalize(&s.Ingest)
	finalize(&s.Search)
	finalize(&s.Generation)
	return s
}

func record(s *OperationStats, d time.Duration, err error) {
	s.Count++
	s.TotalMillis += d.Milliseconds()
	if err != nil {
		s.Errors++
	}
}

func finalize(s *OperationStats) {
	if s.Count > 0 {
		s.AvgMillis = float64(s.TotalMillis) / float64(s.Count)
	}
}
