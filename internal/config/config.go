// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults; Load layers sources on top.
// - External errors are wrapped with this package's sentinel errors.
package config

import "time"

// Strategy names accepted by the strategy key.
const (
	StrategyBatch   = "batch"
	StrategyRelease = "release"
)

// Store backends accepted by the store_backend key.
const (
	BackendMemory = "memory"
	BackendRemote = "remote"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the ops HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// SessionID scopes all storage paths. Generated when empty.
	SessionID string `koanf:"session_id"`

	// Strategy selects the upload strategy: batch or release.
	Strategy string `koanf:"strategy"`

	// BatchSize is the flush threshold of the batch strategy.
	BatchSize int `koanf:"batch_size"`

	// AlsoWriteSingles writes every sample individually before its batch.
	AlsoWriteSingles bool `koanf:"also_write_singles"`

	// FlushResidueOnClose makes the batch strategy upload a short tail on release.
	FlushResidueOnClose bool `koanf:"flush_residue_on_close"`

	// PredictionTimeoutMS bounds the wait for a classification after release.
	PredictionTimeoutMS int `koanf:"prediction_timeout_ms"`

	// SampleRateHz is how often controllers are sampled.
	SampleRateHz int `koanf:"sample_rate_hz"`

	// TickRateHz is how often grip state is polled.
	TickRateHz int `koanf:"tick_rate_hz"`

	// SampleQueueSize bounds the sampler -> tick loop queue.
	SampleQueueSize int `koanf:"sample_queue_size"`

	// WriteTimeoutMS bounds a single flush write.
	WriteTimeoutMS int `koanf:"write_timeout_ms"`

	// StoreBackend selects memory or remote (ClickHouse + MQTT).
	StoreBackend string `koanf:"store_backend"`

	// StoreRoot is the root of every storage path.
	StoreRoot string `koanf:"store_root"`

	// MQTT realtime feed.
	MQTTBroker   string `koanf:"mqtt_broker"`
	MQTTClientID string `koanf:"mqtt_client_id"`
	MQTTUsername string `koanf:"mqtt_username"`
	MQTTPassword string `koanf:"mqtt_password"`

	// ClickHouse durable store.
	ClickHouseAddr string `koanf:"clickhouse_addr"`
	ClickHouseDB   string `koanf:"clickhouse_db"`
	ClickHouseUser string `koanf:"clickhouse_user"`
	ClickHousePass string `koanf:"clickhouse_pass"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		Strategy:            StrategyRelease,
		BatchSize:           100,
		PredictionTimeoutMS: 50,
		SampleRateHz:        100,
		TickRateHz:          90,
		SampleQueueSize:     1024,
		WriteTimeoutMS:      5000,
		StoreBackend:        BackendMemory,
		StoreRoot:           "sessions",
		MQTTBroker:          "tcp://localhost:1883",
		MQTTClientID:        "tapsense",
		ClickHouseAddr:      "localhost:9000",
		ClickHouseDB:        "telemetry",
		ClickHouseUser:      "default",
	}
}

// PredictionTimeout returns the prediction wait as a duration.
func (c *Config) PredictionTimeout() time.Duration {
	return time.Duration(c.PredictionTimeoutMS) * time.Millisecond
}

// WriteTimeout returns the flush write bound as a duration.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMS) * time.Millisecond
}

// SampleInterval returns the sampling period.
func (c *Config) SampleInterval() time.Duration {
	return time.Second / time.Duration(c.SampleRateHz)
}

// TickInterval returns the grip polling period.
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRateHz)
}
