// Package evolution tracks point-in-time system metrics and scores the
// impact of environment changes between them.
package evolution

import (
	"math"
	"time"
)

// MetricSnapshot is one point-in-time reading of host health. All fields
// are non-negative; the percentage fields are in [0,100].
type MetricSnapshot struct {
	Timestamp       time.Time `json:"timestamp"`
	BootTimeSeconds float64   `json:"bootTimeSeconds"`
	MemoryUsagePct  float64   `json:"memoryUsagePct"`
	DiskUsagePct    float64   `json:"diskUsagePct"`
	CPUUsagePct     float64   `json:"cpuUsagePct"`
}

// ImpactRecord pairs two snapshots with their computed score. Immutable
// once computed.
type ImpactRecord struct {
	Before      MetricSnapshot `json:"before"`
	After       MetricSnapshot `json:"after"`
	ImpactScore float64        `json:"impactScore"`
	ComputedAt  time.Time      `json:"computedAt"`
}

// Impact scores the change between two snapshots as the sum of the absolute
// deltas of boot time and memory usage. The score is never negative and is
// identical in magnitude regardless of argument order. Disk and CPU usage
// are recorded but deliberately unweighted; the formula is a first-order
// placeholder meant to be replaced without changing the record shape.
func Impact(before, after MetricSnapshot) ImpactRecord {
	score := math.Abs(after.BootTimeSeconds-before.BootTimeSeconds) +
		math.Abs(after.MemoryUsagePct-before.MemoryUsagePct)
	return ImpactRecord{
		Before:      before,
		After:       after,
		ImpactScore: score,
		ComputedAt:  time.Now(),
	}
}
