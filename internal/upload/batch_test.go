package upload_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/tapsense/internal/domain/model"
	"github.com/okian/tapsense/internal/upload"
	"github.com/smartystreets/goconvey/convey"
)

func feed(ctx context.Context, s upload.Strategy, samples []model.Sample) {
	for _, smp := range samples {
		s.OnSample(ctx, smp)
	}
}

func TestBatchStrategyWindows(t *testing.T) {
	convey.Convey("Given a batch strategy with threshold 100", t, func() {
		ctx := context.Background()
		w := &fakeWriter{}
		s := upload.NewBatchStrategy(w, "sess", upload.WithThreshold(100))

		convey.Convey("When samples arrive with no grip held", func() {
			s.OnGripState(ctx, gripNone)
			feed(ctx, s, makeSamples(0, 10))

			convey.Convey("Then nothing should be retained", func() {
				convey.So(s.Buffered(), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When samples arrive with both grips held", func() {
			s.OnGripState(ctx, gripBoth)
			feed(ctx, s, makeSamples(0, 10))

			convey.Convey("Then it should behave as if neither were held", func() {
				convey.So(s.Buffered(), convey.ShouldBeEmpty)
				convey.So(s.Stats().WindowOpen, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When both grips become held during a window", func() {
			s.OnGripState(ctx, gripLeft)
			feed(ctx, s, makeSamples(0, 10))
			s.OnGripState(ctx, gripBoth)
			feed(ctx, s, makeSamples(10, 5))

			convey.Convey("Then the window should close and drop the short residue", func() {
				convey.So(s.Buffered(), convey.ShouldBeEmpty)
				convey.So(s.Stats().ActiveHand, convey.ShouldEqual, "none")
				convey.So(s.Drain(ctx), convey.ShouldBeNil)
				convey.So(w.Batches(), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When exactly 100 samples are fed in one window", func() {
			s.OnGripState(ctx, gripRight)
			feed(ctx, s, makeSamples(0, 100))
			s.OnGripState(ctx, gripNone)
			convey.So(s.Drain(ctx), convey.ShouldBeNil)

			convey.Convey("Then exactly one batch of 100 should be flushed", func() {
				batches := w.Batches()
				convey.So(len(batches), convey.ShouldEqual, 1)
				convey.So(batches[0].Len(), convey.ShouldEqual, 100)
				convey.So(batches[0].TappingHand, convey.ShouldEqual, model.HandRight)
				convey.So(batches[0].SessionID, convey.ShouldEqual, "sess")
				convey.So(s.Buffered(), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When 150 samples are fed and the window closes", func() {
			s.OnGripState(ctx, gripLeft)
			feed(ctx, s, makeSamples(0, 150))
			s.OnGripState(ctx, gripNone)
			convey.So(s.Drain(ctx), convey.ShouldBeNil)

			convey.Convey("Then the first 100 are flushed and the residue discarded", func() {
				batches := w.Batches()
				convey.So(len(batches), convey.ShouldEqual, 1)
				convey.So(batches[0].Samples, convey.ShouldResemble, makeSamples(0, 100))
				convey.So(s.Buffered(), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When 150 samples are fed while the window stays open", func() {
			s.OnGripState(ctx, gripLeft)
			feed(ctx, s, makeSamples(0, 150))
			s.OnGripState(ctx, gripLeft)
			convey.So(s.Drain(ctx), convey.ShouldBeNil)

			convey.Convey("Then the first 100 are flushed and 50 retained", func() {
				batches := w.Batches()
				convey.So(len(batches), convey.ShouldEqual, 1)
				convey.So(batches[0].Samples, convey.ShouldResemble, makeSamples(0, 100))
				convey.So(s.Buffered(), convey.ShouldResemble, makeSamples(100, 50))
			})
		})
	})
}

func TestBatchStrategyResidueFlush(t *testing.T) {
	convey.Convey("Given a batch strategy that flushes residue on close", t, func() {
		ctx := context.Background()
		w := &fakeWriter{}
		s := upload.NewBatchStrategy(w, "sess",
			upload.WithThreshold(100),
			upload.WithFlushResidueOnClose(true),
			upload.WithAlsoWriteSingles(true))

		convey.Convey("When 150 samples are fed and the window closes", func() {
			s.OnGripState(ctx, gripLeft)
			feed(ctx, s, makeSamples(0, 150))
			s.OnGripState(ctx, gripNone)
			convey.So(s.Drain(ctx), convey.ShouldBeNil)

			convey.Convey("Then a full batch and a short batch should be written", func() {
				batches := w.Batches()
				convey.So(len(batches), convey.ShouldEqual, 2)
				convey.So(batches[0].Samples, convey.ShouldResemble, makeSamples(0, 100))
				convey.So(batches[1].Samples, convey.ShouldResemble, makeSamples(100, 50))
				convey.So(w.Singles(), convey.ShouldResemble, makeSamples(0, 150))
				convey.So(s.Buffered(), convey.ShouldBeEmpty)
			})
		})
	})
}

func TestBatchStrategyFailureRecovery(t *testing.T) {
	convey.Convey("Given a batch strategy whose first write fails", t, func() {
		ctx := context.Background()
		w := &fakeWriter{failBatches: 1}
		var results []upload.FlushResult
		s := upload.NewBatchStrategy(w, "sess",
			upload.WithThreshold(10),
			upload.WithOnFlush(func(r upload.FlushResult) { results = append(results, r) }))

		s.OnGripState(ctx, gripLeft)
		feed(ctx, s, makeSamples(0, 10))
		s.OnGripState(ctx, gripLeft)
		convey.So(s.Drain(ctx), convey.ShouldBeNil)

		convey.Convey("When the buffer is read after the failure", func() {
			convey.Convey("Then it should hold exactly the failed samples in order", func() {
				convey.So(s.Buffered(), convey.ShouldResemble, makeSamples(0, 10))
				convey.So(len(results), convey.ShouldEqual, 1)
				convey.So(errors.Is(results[0].Err, upload.ErrFlush), convey.ShouldBeTrue)
				convey.So(w.Batches(), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When new samples arrive and the next trigger fires", func() {
			feed(ctx, s, makeSamples(10, 3))
			convey.So(s.Buffered(), convey.ShouldResemble, makeSamples(0, 13))
			s.OnGripState(ctx, gripLeft)
			convey.So(s.Drain(ctx), convey.ShouldBeNil)

			convey.Convey("Then the restored samples are retried without duplication", func() {
				batches := w.Batches()
				convey.So(len(batches), convey.ShouldEqual, 1)
				convey.So(batches[0].Samples, convey.ShouldResemble, makeSamples(0, 10))
				convey.So(s.Buffered(), convey.ShouldResemble, makeSamples(10, 3))
			})
		})
	})
}

func TestBatchStrategySingleFlight(t *testing.T) {
	convey.Convey("Given a batch strategy with a blocked writer", t, func() {
		ctx := context.Background()
		gate := make(chan struct{})
		w := &fakeWriter{gate: gate}
		s := upload.NewBatchStrategy(w, "sess", upload.WithThreshold(5))

		s.OnGripState(ctx, gripRight)
		feed(ctx, s, makeSamples(0, 5))
		s.OnGripState(ctx, gripRight)
		feed(ctx, s, makeSamples(5, 5))
		s.OnGripState(ctx, gripRight)

		convey.Convey("When a second flush is requested while one is in flight", func() {
			stats := s.Stats()

			convey.Convey("Then it is dropped and the samples stay buffered", func() {
				convey.So(stats.Flushing, convey.ShouldBeTrue)
				convey.So(s.Buffered(), convey.ShouldResemble, makeSamples(5, 5))

				short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
				defer cancel()
				convey.So(errors.Is(s.Drain(short), upload.ErrDrainTimeout), convey.ShouldBeTrue)

				close(gate)
				convey.So(s.Drain(ctx), convey.ShouldBeNil)
				convey.So(len(w.Batches()), convey.ShouldEqual, 1)
			})
		})
	})
}
