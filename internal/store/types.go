package store

import "time"

// Backup is one catalog row describing a backup manifest on disk. The
// payload itself lives wherever the provider put it; the catalog only
// tracks metadata.
type Backup struct {
	ID           string
	Name         string
	Provider     string
	CreatedAt    time.Time
	SizeBytes    int64
	Checksum     string
	ManifestPath string
	Compressed   bool
	ToolCount    int
}

// OperationLogEntry is one audited terminal operation record.
type OperationLogEntry struct {
	ID           string
	Kind         string
	State        string
	RequestedAt  time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
	Progress     float64
	ErrorKind    string
	ErrorMessage string
	ResultJSON   string
}

// MetricRow pairs a persisted metric snapshot with its row id.
type MetricRow struct {
	ID              int64
	TakenAt         time.Time
	BootTimeSeconds float64
	MemoryUsagePct  float64
	DiskUsagePct    float64
	CPUUsagePct     float64
}

// ImpactRow is one persisted impact computation.
type ImpactRow struct {
	ID         int64
	ComputedAt time.Time
	BeforeID   int64
	AfterID    int64
	Score      float64
}
