package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/tapsense/internal/adapters/http/api"
	"github.com/okian/tapsense/internal/adapters/store"
	"github.com/okian/tapsense/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// mockDeps implements api.Dependencies and api.StatsProvider.
type mockDeps struct {
	ready     bool
	samples   []model.Sample
	readErr   error
	lastLimit int
	published []string
	known     map[string]bool
}

func (m *mockDeps) ReadRecent(_ context.Context, session string, limit int) ([]model.Sample, error) {
	m.lastLimit = limit
	if !store.ValidSession(session) {
		return nil, fmt.Errorf("read recent: %w", store.ErrInvalidSession)
	}
	if m.readErr != nil {
		return nil, m.readErr
	}
	return m.samples, nil
}

func (m *mockDeps) Publish(name string) bool {
	if !m.known[name] {
		return false
	}
	m.published = append(m.published, name)
	return true
}

func (m *mockDeps) Ready() bool { return m.ready }

func (m *mockDeps) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true, "session": "sess"}
}

func newTestServer(deps *mockDeps) http.Handler {
	r := api.NewEngine()
	api.NewServer(deps, deps).Register(r)
	return r
}

func do(h http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Origin", "http://localhost:3000")
	h.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	Convey("Given an API server", t, func() {
		deps := &mockDeps{}
		h := newTestServer(deps)

		Convey("When the store is not ready", func() {
			w := do(h, http.MethodGet, "/healthz")

			Convey("Then health should report 503", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(w.Body.String(), ShouldContainSubstring, `"ready":false`)
			})
		})

		Convey("When the store is ready", func() {
			deps.ready = true
			w := do(h, http.MethodGet, "/healthz")

			Convey("Then health should report ok with CORS headers", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"status":"ok"`)
				So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
			})
		})

		Convey("When metrics are scraped after a request", func() {
			do(h, http.MethodGet, "/stats")
			w := do(h, http.MethodGet, "/metrics")

			Convey("Then the HTTP counters should be exposed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "tapsense_pipeline_http_requests_total")
				So(w.Body.String(), ShouldContainSubstring, `endpoint="/stats"`)
			})
		})
	})
}

func TestStats(t *testing.T) {
	Convey("Given an API server", t, func() {
		h := newTestServer(&mockDeps{})

		Convey("When requesting stats", func() {
			w := do(h, http.MethodGet, "/stats")

			Convey("Then the provider's map should be returned as JSON", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body map[string]interface{}
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body["session"], ShouldEqual, "sess")
			})
		})

		Convey("When using the wrong method", func() {
			w := do(h, http.MethodPost, "/stats")

			Convey("Then it should not be routed", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestRecentSamples(t *testing.T) {
	Convey("Given a server with stored samples", t, func() {
		deps := &mockDeps{samples: []model.Sample{
			{TimestampMs: 1, DeviceID: model.DeviceLeftController},
			{TimestampMs: 2, DeviceID: model.DeviceLeftController},
		}}
		h := newTestServer(deps)

		Convey("When requesting recent samples with a limit", func() {
			w := do(h, http.MethodGet, "/sessions/sess/recent?limit=2")

			Convey("Then they should be returned in wire format", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastLimit, ShouldEqual, 2)
				So(w.Body.String(), ShouldContainSubstring, `"count":2`)
				So(w.Body.String(), ShouldContainSubstring, `"timestampMs":1`)
				So(w.Body.String(), ShouldContainSubstring, `"deviceId":"LeftController"`)
			})
		})

		Convey("When no limit is given or it is too large", func() {
			do(h, http.MethodGet, "/sessions/sess/recent")
			def := deps.lastLimit
			do(h, http.MethodGet, "/sessions/sess/recent?limit=999999")

			Convey("Then the default and the cap should apply", func() {
				So(def, ShouldEqual, 50)
				So(deps.lastLimit, ShouldEqual, 1000)
			})
		})

		Convey("When the limit is not a number", func() {
			w := do(h, http.MethodGet, "/sessions/sess/recent?limit=abc")

			Convey("Then it should be rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Body.String(), ShouldContainSubstring, "invalid_limit")
			})
		})

		Convey("When the session id is reserved", func() {
			w := do(h, http.MethodGet, "/sessions/predictions/recent")

			Convey("Then it should be a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Body.String(), ShouldContainSubstring, "invalid_session")
			})
		})

		Convey("When the store fails", func() {
			deps.readErr = errors.New("clickhouse down")
			w := do(h, http.MethodGet, "/sessions/sess/recent")

			Convey("Then it should be a server error", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(w.Body.String(), ShouldContainSubstring, "clickhouse down")
			})
		})
	})
}

func TestPublishChannel(t *testing.T) {
	Convey("Given a server with known channels", t, func() {
		deps := &mockDeps{known: map[string]bool{"NO_TAPP": true}}
		h := newTestServer(deps)

		Convey("When publishing a known channel", func() {
			w := do(h, http.MethodPost, "/channels/NO_TAPP")

			Convey("Then it should be accepted", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(deps.published, ShouldResemble, []string{"NO_TAPP"})
			})
		})

		Convey("When publishing an unknown channel", func() {
			w := do(h, http.MethodPost, "/channels/NOPE")

			Convey("Then it should be not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(strings.Contains(w.Body.String(), "unknown_channel"), ShouldBeTrue)
				So(deps.published, ShouldBeEmpty)
			})
		})
	})
}
