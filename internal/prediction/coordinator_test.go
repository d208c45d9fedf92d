package prediction_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/tapsense/internal/adapters/store"
	"github.com/okian/tapsense/internal/domain/channels"
	"github.com/okian/tapsense/internal/eventbus"
	"github.com/okian/tapsense/internal/prediction"
	"github.com/smartystreets/goconvey/convey"
)

// recorder subscribes to every prediction channel and keeps publish order.
func recorder(bus *eventbus.Bus) *[]string {
	got := &[]string{}
	for _, name := range channels.PredictionChannels() {
		name := name
		bus.Subscribe(name, func() { *got = append(*got, name) })
	}
	return got
}

type failingFeed struct {
	subscribeErr error
	feedErr      error
}

func (f failingFeed) SubscribeLatestPrediction(_ context.Context, _ func([]byte), onError func(error)) (store.Subscription, error) {
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	if f.feedErr != nil {
		onError(f.feedErr)
	}
	return store.NopSubscription{}, nil
}

func TestCoordinatorStaleFirst(t *testing.T) {
	convey.Convey("Given a coordinator on a memory feed", t, func() {
		ctx := context.Background()
		feed := store.NewMemory(store.WithReady())
		bus := eventbus.New(eventbus.WithChannels(channels.Known()...))
		got := recorder(bus)
		coord := prediction.NewCoordinator(feed, bus)
		defer coord.Stop()

		convey.Convey("When the feed already holds a value at subscription", func() {
			_ = feed.PublishPrediction(ctx, []byte(`{"tapping":1,"hand":0,"position":0}`))
			convey.So(coord.Start(ctx), convey.ShouldBeNil)
			_ = feed.PublishPrediction(ctx, []byte(`{"tapping":1,"hand":1,"position":2}`))

			convey.Convey("Then the replayed value is dropped and the next is published", func() {
				convey.So(*got, convey.ShouldResemble, []string{channels.TapRightElbow})
				convey.So(coord.Stats().Stale, convey.ShouldEqual, 1)
				convey.So(coord.Stats().Published, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the feed is empty at subscription", func() {
			convey.So(coord.Start(ctx), convey.ShouldBeNil)
			_ = feed.PublishPrediction(ctx, []byte(`{"tapping":0}`))
			_ = feed.PublishPrediction(ctx, []byte(`{"tapping":0}`))

			convey.Convey("Then the first live message is still dropped", func() {
				convey.So(*got, convey.ShouldResemble, []string{channels.NoTap})
			})
		})

		convey.Convey("When the coordinator resubscribes", func() {
			convey.So(coord.Start(ctx), convey.ShouldBeNil)
			convey.So(coord.Start(ctx), convey.ShouldBeNil)
			_ = feed.PublishPrediction(ctx, []byte(`{"tapping":0}`))
			_ = feed.PublishPrediction(ctx, []byte(`{"tapping":1,"hand":0,"position":1}`))
			coord.Stop()
			convey.So(coord.Running(), convey.ShouldBeFalse)
			_ = feed.PublishPrediction(ctx, []byte(`{"tapping":1,"hand":0,"position":2}`))
			convey.So(coord.Start(ctx), convey.ShouldBeNil)
			_ = feed.PublishPrediction(ctx, []byte(`{"tapping":1,"hand":1,"position":0}`))

			convey.Convey("Then the stale rule should be re-armed", func() {
				convey.So(*got, convey.ShouldResemble, []string{channels.TapLeftMid, channels.TapRightWrist})
			})
		})
	})
}

func TestCoordinatorMapping(t *testing.T) {
	cases := []struct {
		raw  string
		want []string
	}{
		{`{"tapping":0}`, []string{channels.NoTap}},
		{`{"tapping":0,"hand":1,"position":1}`, []string{channels.NoTap}},
		{`{"tapping":1,"hand":0,"position":0}`, []string{channels.TapLeftWrist}},
		{`{"tapping":1,"hand":0,"position":1}`, []string{channels.TapLeftMid}},
		{`{"tapping":1,"hand":0,"position":2}`, []string{channels.TapLeftElbow}},
		{`{"tapping":1,"hand":1,"position":0}`, []string{channels.TapRightWrist}},
		{`{"tapping":1,"hand":1,"position":1}`, []string{channels.TapRightMid}},
		{`{"tapping":1,"hand":1,"position":2}`, []string{channels.TapRightElbow}},
		{`{"tapping":1,"hand":2,"position":0}`, nil},
		{`{"tapping":1,"hand":0,"position":3}`, nil},
	}

	convey.Convey("Given a started coordinator", t, func() {
		ctx := context.Background()
		for _, tc := range cases {
			tc := tc
			convey.Convey("When the feed delivers "+tc.raw, func() {
				feed := store.NewMemory(store.WithReady())
				bus := eventbus.New()
				got := recorder(bus)
				var sinkErrs []error
				coord := prediction.NewCoordinator(feed, bus, prediction.WithErrorSink(func(err error) {
					sinkErrs = append(sinkErrs, err)
				}))
				convey.So(coord.Start(ctx), convey.ShouldBeNil)
				_ = feed.PublishPrediction(ctx, []byte(`{"tapping":0}`))
				_ = feed.PublishPrediction(ctx, []byte(tc.raw))
				coord.Stop()

				convey.Convey("Then the mapped channel should be published", func() {
					if tc.want == nil {
						convey.So(*got, convey.ShouldBeEmpty)
					} else {
						convey.So(*got, convey.ShouldResemble, tc.want)
					}
					convey.So(sinkErrs, convey.ShouldBeEmpty)
				})
			})
		}
	})
}

func TestCoordinatorErrors(t *testing.T) {
	convey.Convey("Given a coordinator with an error sink", t, func() {
		ctx := context.Background()
		bus := eventbus.New()
		got := recorder(bus)
		var sinkErrs []error
		sink := prediction.WithErrorSink(func(err error) { sinkErrs = append(sinkErrs, err) })

		convey.Convey("When malformed payloads arrive", func() {
			feed := store.NewMemory(store.WithReady())
			coord := prediction.NewCoordinator(feed, bus, sink)
			convey.So(coord.Start(ctx), convey.ShouldBeNil)
			for _, raw := range []string{`{}`, `not json`, `{"hand":1}`, `{"tapping":2}`, `{"tapping":1,"hand":1}`} {
				_ = feed.PublishPrediction(ctx, []byte(raw))
			}

			convey.Convey("Then they go to the sink and nothing is published", func() {
				convey.So(len(sinkErrs), convey.ShouldEqual, 4)
				for _, err := range sinkErrs {
					convey.So(errors.Is(err, prediction.ErrMalformed), convey.ShouldBeTrue)
				}
				convey.So(*got, convey.ShouldBeEmpty)
				convey.So(coord.Stats().Malformed, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When the feed reports a transport error", func() {
			boom := errors.New("connection lost")
			coord := prediction.NewCoordinator(failingFeed{feedErr: boom}, bus, sink)
			convey.So(coord.Start(ctx), convey.ShouldBeNil)

			convey.Convey("Then the sink receives it wrapped", func() {
				convey.So(len(sinkErrs), convey.ShouldEqual, 1)
				convey.So(errors.Is(sinkErrs[0], prediction.ErrFeed), convey.ShouldBeTrue)
				convey.So(errors.Is(sinkErrs[0], boom), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When subscribing fails", func() {
			boom := errors.New("refused")
			coord := prediction.NewCoordinator(failingFeed{subscribeErr: boom}, bus, sink)
			err := coord.Start(ctx)

			convey.Convey("Then Start returns the error and stays stopped", func() {
				convey.So(errors.Is(err, boom), convey.ShouldBeTrue)
				convey.So(coord.Running(), convey.ShouldBeFalse)
			})
		})
	})
}
