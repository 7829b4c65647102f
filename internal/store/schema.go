package store

const schema = `
CREATE TABLE IF NOT EXISTS backups (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    provider TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    size_bytes INTEGER NOT NULL,
    checksum TEXT NOT NULL,
    manifest_path TEXT NOT NULL,
    compressed BOOLEAN NOT NULL,
    tool_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS operations (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    state TEXT NOT NULL,
    requested_at TIMESTAMP NOT NULL,
    started_at TIMESTAMP,
    finished_at TIMESTAMP,
    progress REAL,
    error_kind TEXT,
    error_message TEXT,
    result TEXT
);

CREATE TABLE IF NOT EXISTS metric_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    taken_at TIMESTAMP NOT NULL,
    boot_time_seconds REAL NOT NULL,
    memory_usage_pct REAL NOT NULL,
    disk_usage_pct REAL NOT NULL,
    cpu_usage_pct REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS impacts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    computed_at TIMESTAMP NOT NULL,
    before_snapshot INTEGER NOT NULL,
    after_snapshot INTEGER NOT NULL,
    impact_score REAL NOT NULL,
    FOREIGN KEY (before_snapshot) REFERENCES metric_snapshots(id),
    FOREIGN KEY (after_snapshot) REFERENCES metric_snapshots(id)
);

CREATE INDEX IF NOT EXISTS idx_backups_created ON backups(created_at);
CREATE INDEX IF NOT EXISTS idx_backups_name ON backups(name);
CREATE INDEX IF NOT EXISTS idx_operations_kind ON operations(kind);
CREATE INDEX IF NOT EXISTS idx_metrics_taken ON metric_snapshots(taken_at);
`
