// Package clickhouse is the durable sample and batch store.
package clickhouse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/okian/tapsense/internal/adapters/store"
	"github.com/okian/tapsense/internal/domain/model"
	"github.com/okian/tapsense/pkg/logger"
	"github.com/okian/tapsense/pkg/metrics"
)

const backend = "clickhouse"

// Config holds connection settings.
type Config struct {
	Addr        string
	Database    string
	Username    string
	Password    string
	DialTimeout time.Duration
}

// Store writes samples and batches to ClickHouse.
type Store struct {
	conn   driver.Conn
	logger logger.Logger
	now    func() time.Time

	mu          sync.Mutex
	lastBatchTs map[string]int64
	schemaReady bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the clock used for batch keys.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Dial builds a connection without contacting the server. The first
// successful Ping creates the schema.
func Dial(cfg Config, opts ...Option) (*Store, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: cfg.DialTimeout,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse %s: %w", cfg.Addr, err)
	}
	return New(conn, opts...), nil
}

// Open dials ClickHouse, pings it and creates the schema.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	s, err := Dial(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Ping(ctx); err != nil {
		_ = s.conn.Close()
		return nil, err
	}
	s.logger.Info(ctx, "connected to clickhouse", logger.String("addr", cfg.Addr))
	return s, nil
}

// New wraps an existing connection.
func New(conn driver.Conn, opts ...Option) *Store {
	s := &Store{
		conn:        conn,
		logger:      logger.Get().Named("store.clickhouse"),
		now:         time.Now,
		lastBatchTs: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks the connection and creates the schema on first success.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.conn.Ping(ctx); err != nil {
		return fmt.Errorf("ping clickhouse: %w", err)
	}
	s.mu.Lock()
	done := s.schemaReady
	s.mu.Unlock()
	if done {
		return nil
	}
	if err := s.InitSchema(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.schemaReady = true
	s.mu.Unlock()
	return nil
}

// InitSchema creates the tables if they don't exist.
func (s *Store) InitSchema(ctx context.Context) error {
	for _, ddl := range AllTables() {
		if err := s.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// WriteSample implements store.Writer.
func (s *Store) WriteSample(ctx context.Context, session string, smp model.Sample) (err error) {
	start := time.Now()
	defer func() { observe("write_sample", start, err) }()

	if !store.ValidSession(session) {
		return fmt.Errorf("write sample %q: %w", session, store.ErrInvalidSession)
	}
	batch, err := s.conn.PrepareBatch(ctx, insertSampleSQL)
	if err != nil {
		return fmt.Errorf("prepare sample insert: %w", err)
	}
	if err := appendSample(batch, session, store.NewSampleKey(), 0, smp); err != nil {
		return err
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// WriteBatch implements store.Writer. The batch row is written after its
// samples so a visible batch always has its readings.
func (s *Store) WriteBatch(ctx context.Context, session string, b model.Batch) (err error) {
	start := time.Now()
	defer func() { observe("write_batch", start, err) }()

	if !store.ValidSession(session) {
		return fmt.Errorf("write batch %q: %w", session, store.ErrInvalidSession)
	}
	ts := s.nextBatchTs(session)

	rows, err := s.conn.PrepareBatch(ctx, insertSampleSQL)
	if err != nil {
		return fmt.Errorf("prepare batch samples: %w", err)
	}
	for _, smp := range b.Samples {
		if err := appendSample(rows, session, store.NewSampleKey(), ts, smp); err != nil {
			return err
		}
	}
	if err := rows.Send(); err != nil {
		return fmt.Errorf("insert batch samples: %w", err)
	}

	head, err := s.conn.PrepareBatch(ctx, insertBatchSQL)
	if err != nil {
		return fmt.Errorf("prepare batch insert: %w", err)
	}
	if err := head.Append(session, ts, int8(b.TappingHand), uint32(len(b.Samples))); err != nil {
		return fmt.Errorf("append batch: %w", err)
	}
	if err := head.Send(); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// ReadRecent implements store.Reader.
func (s *Store) ReadRecent(ctx context.Context, session string, limit int) (out []model.Sample, err error) {
	start := time.Now()
	defer func() { observe("read_recent", start, err) }()

	if !store.ValidSession(session) {
		return nil, fmt.Errorf("read recent %q: %w", session, store.ErrInvalidSession)
	}
	rows, err := s.conn.Query(ctx, recentSQL, session, uint64(store.ClampLimit(limit)))
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	out = []model.Sample{}
	for rows.Next() {
		var smp model.Sample
		if err := rows.Scan(
			&smp.TimestampMs,
			&smp.DeviceID,
			&smp.Position.X,
			&smp.Position.Y,
			&smp.Position.Z,
			&smp.Velocity,
			&smp.Acceleration,
		); err != nil {
			return nil, fmt.Errorf("%w: scan sample: %w", store.ErrDecode, err)
		}
		out = append(out, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent: %w", err)
	}
	return out, nil
}

// Close closes the ClickHouse connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close clickhouse: %w", err)
	}
	return nil
}

// nextBatchTs returns a per-session key that never repeats within a process.
func (s *Store) nextBatchTs(session string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now().UnixMilli()
	if last, ok := s.lastBatchTs[session]; ok && ts <= last {
		ts = last + 1
	}
	s.lastBatchTs[session] = ts
	return ts
}

func appendSample(b driver.Batch, session, key string, batchTs int64, smp model.Sample) error {
	err := b.Append(
		session,
		key,
		batchTs,
		smp.TimestampMs,
		smp.DeviceID,
		smp.Position.X,
		smp.Position.Y,
		smp.Position.Z,
		smp.Velocity,
		smp.Acceleration,
	)
	if err != nil {
		return fmt.Errorf("append sample: %w", err)
	}
	return nil
}

func observe(op string, start time.Time, err error) {
	metrics.RecordStoreOp(backend, op, float64(time.Since(start).Microseconds())/1000, err)
}
