package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/tapsense/internal/adapters/http/api"
	"github.com/okian/tapsense/internal/adapters/http/swagger"
	"github.com/okian/tapsense/internal/adapters/store"
	"github.com/okian/tapsense/internal/adapters/store/clickhouse"
	"github.com/okian/tapsense/internal/adapters/store/mqttfeed"
	"github.com/okian/tapsense/internal/adapters/store/remote"
	app "github.com/okian/tapsense/internal/app"
	"github.com/okian/tapsense/internal/config"
	"github.com/okian/tapsense/pkg/logger"
	"github.com/okian/tapsense/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Initialize logging
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	loggerInstance := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> dotenv -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	registerRuntimeCollectors(metrics.GetRegistry())

	st, err := buildStore(ctx, cfg)
	if err != nil {
		loggerInstance.Error(ctx, "failed to build store", logger.Error(err))
		return
	}

	svc := app.New(serviceOptions(cfg, st, loggerInstance)...)
	if err := svc.Start(ctx); err != nil {
		loggerInstance.Error(ctx, "failed to start service", logger.Error(err))
		return
	}
	defer svc.Stop()

	loggerInstance.Info(ctx, "pipeline started",
		logger.String("session", svc.Session()),
		logger.String("strategy", cfg.Strategy),
		logger.String("store", cfg.StoreBackend))

	srv := newHTTPServer(cfg.Addr, svc)

	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			loggerInstance.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
}

// registerRuntimeCollectors exposes Go runtime and process metrics on the
// pipeline registry. Already-registered collectors are ignored.
func registerRuntimeCollectors(reg prometheus.Registerer) {
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				logger.Get().Warn(context.Background(), "register runtime collector", logger.Error(err))
			}
		}
	}
}

// buildStore selects the storage backend. The memory store is ready at once;
// the remote store keeps retrying in the background until ctx ends.
func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		m := store.NewMemory(store.WithRoot(cfg.StoreRoot))
		if err := m.Connect(ctx); err != nil {
			return nil, err
		}
		return m, nil
	case config.BackendRemote:
		durable, err := clickhouse.Dial(clickhouse.Config{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePass,
		})
		if err != nil {
			return nil, err
		}
		feed := mqttfeed.Open(mqttfeed.ClientConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		}, store.NewPaths(cfg.StoreRoot))
		r := remote.New(durable, feed)
		r.ConnectAsync(ctx)
		return r, nil
	default:
		return nil, fmt.Errorf("%w: unknown store_backend %q", config.ErrInvalidConfig, cfg.StoreBackend)
	}
}

// serviceOptions maps configuration onto service options.
func serviceOptions(cfg *config.Config, st store.Store, l logger.Logger) []app.Option {
	opts := []app.Option{
		app.WithLogger(l),
		app.WithStore(st),
		app.WithStrategy(cfg.Strategy),
		app.WithThreshold(cfg.BatchSize),
		app.WithAlsoWriteSingles(cfg.AlsoWriteSingles),
		app.WithFlushResidueOnClose(cfg.FlushResidueOnClose),
		app.WithPredictionTimeout(cfg.PredictionTimeout()),
		app.WithWriteTimeout(cfg.WriteTimeout()),
		app.WithTickInterval(cfg.TickInterval()),
		app.WithSampleRate(cfg.SampleRateHz),
		app.WithQueueSize(cfg.SampleQueueSize),
	}
	if cfg.SessionID != "" {
		opts = append(opts, app.WithSession(cfg.SessionID))
	}
	return opts
}

// newHTTPServer wires the ops API and its docs onto a gin engine.
func newHTTPServer(addr string, svc *app.Service) *http.Server {
	engine := api.NewEngine()
	api.NewServer(svc, svc).Register(engine)
	swagger.Register(engine)

	return &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
