package clickhouse

// SQL schemas for the telemetry tables.
const (
	// SamplesTableSQL holds every stored reading. Singles have batch_ts 0.
	SamplesTableSQL = `
		CREATE TABLE IF NOT EXISTS samples (
			session_id String,
			sample_key String,
			batch_ts Int64,
			timestamp_ms Int64,
			device_id LowCardinality(String),
			pos_x Float64,
			pos_y Float64,
			pos_z Float64,
			velocity Float64,
			acceleration Float64,
			inserted_at DateTime64(3) DEFAULT now64(3)
		) ENGINE = MergeTree()
		ORDER BY (session_id, timestamp_ms, device_id)
	`

	// BatchesTableSQL indexes flushed windows by session and key.
	BatchesTableSQL = `
		CREATE TABLE IF NOT EXISTS batches (
			session_id String,
			batch_ts Int64,
			tapping_hand Int8,
			sample_count UInt32,
			created_at DateTime64(3) DEFAULT now64(3)
		) ENGINE = ReplacingMergeTree(created_at)
		ORDER BY (session_id, batch_ts)
	`
)

// AllTables returns all table creation SQL statements.
func AllTables() []string {
	return []string{
		SamplesTableSQL,
		BatchesTableSQL,
	}
}

const (
	insertSampleSQL = `INSERT INTO samples (session_id, sample_key, batch_ts, timestamp_ms, device_id, pos_x, pos_y, pos_z, velocity, acceleration)`
	insertBatchSQL  = `INSERT INTO batches (session_id, batch_ts, tapping_hand, sample_count)`

	// Newest distinct readings first, then flipped to ascending.
	recentSQL = `
		SELECT timestamp_ms, device_id, pos_x, pos_y, pos_z, velocity, acceleration
		FROM (
			SELECT timestamp_ms, device_id, pos_x, pos_y, pos_z, velocity, acceleration
			FROM samples
			WHERE session_id = ?
			ORDER BY timestamp_ms DESC, device_id ASC
			LIMIT 1 BY device_id, timestamp_ms
			LIMIT ?
		)
		ORDER BY timestamp_ms ASC, device_id ASC
	`
)
