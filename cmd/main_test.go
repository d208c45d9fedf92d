package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/tapsense/internal/adapters/store"
	"github.com/okian/tapsense/internal/adapters/store/remote"
	app "github.com/okian/tapsense/internal/app"
	"github.com/okian/tapsense/internal/config"
	"github.com/okian/tapsense/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func TestMainConfiguration(t *testing.T) {
	convey.Convey("Given environment overrides", t, func() {
		t.Setenv("TAPSENSE_ADDR", ":8081")
		t.Setenv("TAPSENSE_STRATEGY", "batch")
		t.Setenv("TAPSENSE_BATCH_SIZE", "20")
		t.Setenv("TAPSENSE_SESSION_ID", "sess")

		convey.Convey("When configuration is loaded", func() {
			cfg, err := config.Load(context.Background())

			convey.Convey("Then the overrides should be applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8081")
				convey.So(cfg.Strategy, convey.ShouldEqual, config.StrategyBatch)
				convey.So(cfg.BatchSize, convey.ShouldEqual, 20)
			})

			convey.Convey("Then the service should pick them up", func() {
				st, err := buildStore(context.Background(), cfg)
				convey.So(err, convey.ShouldBeNil)
				svc := app.New(serviceOptions(cfg, st, logger.Get())...)
				convey.So(svc.Session(), convey.ShouldEqual, "sess")
				convey.So(svc.GetStats()["strategy"], convey.ShouldEqual, config.StrategyBatch)
			})
		})
	})

	convey.Convey("Given an invalid configuration", t, func() {
		t.Setenv("TAPSENSE_STRATEGY", "sometimes")

		convey.Convey("Then loading should fail", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})
	})
}

func TestBuildStore(t *testing.T) {
	convey.Convey("Given store backends", t, func() {
		cfg := config.New()

		convey.Convey("When the memory backend is selected", func() {
			st, err := buildStore(context.Background(), cfg)

			convey.Convey("Then a ready memory store should be returned", func() {
				convey.So(err, convey.ShouldBeNil)
				mem, ok := st.(*store.Memory)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(mem.Ready(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the remote backend is selected without reachable servers", func() {
			cfg.StoreBackend = config.BackendRemote
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			st, err := buildStore(ctx, cfg)

			convey.Convey("Then a not-yet-ready remote store should be returned", func() {
				convey.So(err, convey.ShouldBeNil)
				r, ok := st.(*remote.Store)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(r.Ready(), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When the backend is unknown", func() {
			cfg.StoreBackend = "tape"
			_, err := buildStore(context.Background(), cfg)

			convey.Convey("Then it should be rejected", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestHTTPServer(t *testing.T) {
	convey.Convey("Given a started service behind the HTTP server", t, func() {
		ctx := context.Background()
		svc := app.New(app.WithSession("sess"), app.WithBackgroundLoops(false))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		srv := newHTTPServer(":0", svc)

		convey.Convey("Then the server should carry the timeouts", func() {
			convey.So(srv.ReadTimeout, convey.ShouldEqual, readTimeout)
			convey.So(srv.ReadHeaderTimeout, convey.ShouldEqual, readHeaderTimeout)
		})

		convey.Convey("When health is requested", func() {
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			convey.Convey("Then the service should report ready", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			})
		})

		convey.Convey("When the API docs are requested", func() {
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))

			convey.Convey("Then the OpenAPI document should be served", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			})
		})

		convey.Convey("When recent samples of the session are requested", func() {
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/sess/recent", nil))

			convey.Convey("Then an empty list should be returned", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Body.String(), convey.ShouldContainSubstring, `"count":0`)
			})
		})
	})
}

func TestRuntimeCollectors(t *testing.T) {
	convey.Convey("Given a fresh registry", t, func() {
		reg := prometheus.NewRegistry()

		convey.Convey("When runtime collectors are registered twice", func() {
			start := time.Now()
			registerRuntimeCollectors(reg)
			registerRuntimeCollectors(reg)

			convey.Convey("Then go metrics should be gathered once", func() {
				families, err := reg.Gather()
				convey.So(err, convey.ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "go_goroutines" {
						found = true
					}
				}
				convey.So(found, convey.ShouldBeTrue)
				convey.So(time.Since(start), convey.ShouldBeLessThan, time.Second)
			})
		})
	})
}
