package pubsub_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/besttime/internal/adapters/pubsub"
	"github.com/okian/besttime/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func receive(ch <-chan []byte) ([]byte, bool) {
	select {
	case b, ok := <-ch:
		return b, ok
	case <-time.After(2 * time.Second):
		return nil, false
	}
}

func TestMemoryTransport(t *testing.T) {
	Convey("Given an in-process transport", t, func() {
		_ = logger.Init()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		tr := pubsub.NewMemory()
		defer func() { _ = tr.Close() }()

		So(tr.Kind(), ShouldEqual, "memory")

		Convey("When two subscribers listen on the same channel", func() {
			first, err := tr.Subscribe(ctx, "ranking_update")
			So(err, ShouldBeNil)
			second, err := tr.Subscribe(ctx, "ranking_update")
			So(err, ShouldBeNil)
			other, err := tr.Subscribe(ctx, "other")
			So(err, ShouldBeNil)

			So(tr.Publish(ctx, "ranking_update", []byte(`[{"rank":1}]`)), ShouldBeNil)

			Convey("Then both receive the payload and other channels do not", func() {
				got, ok := receive(first)
				So(ok, ShouldBeTrue)
				So(string(got), ShouldEqual, `[{"rank":1}]`)

				got, ok = receive(second)
				So(ok, ShouldBeTrue)
				So(string(got), ShouldEqual, `[{"rank":1}]`)

				select {
				case <-other:
					So("unexpected delivery", ShouldBeEmpty)
				case <-time.After(50 * time.Millisecond):
				}
			})
		})

		Convey("When several payloads are published in order", func() {
			sub, err := tr.Subscribe(ctx, "ranking_update")
			So(err, ShouldBeNil)
			for _, p := range []string{"1", "2", "3"} {
				So(tr.Publish(ctx, "ranking_update", []byte(p)), ShouldBeNil)
			}

			Convey("Then a single subscriber sees them in publish order", func() {
				for _, want := range []string{"1", "2", "3"} {
					got, ok := receive(sub)
					So(ok, ShouldBeTrue)
					So(string(got), ShouldEqual, want)
				}
			})
		})

		Convey("When the subscription context is cancelled", func() {
			subCtx, subCancel := context.WithCancel(ctx)
			sub, err := tr.Subscribe(subCtx, "ranking_update")
			So(err, ShouldBeNil)
			subCancel()

			Convey("Then the payload channel is closed", func() {
				deadline := time.After(2 * time.Second)
				for {
					select {
					case _, ok := <-sub:
						if !ok {
							return
						}
					case <-deadline:
						So("subscription still open", ShouldBeEmpty)
						return
					}
				}
			})
		})

		Convey("When the transport is closed", func() {
			So(tr.Close(), ShouldBeNil)

			Convey("Then publish and subscribe report ErrClosed", func() {
				So(errors.Is(tr.Publish(ctx, "ranking_update", nil), pubsub.ErrClosed), ShouldBeTrue)
				_, err := tr.Subscribe(ctx, "ranking_update")
				So(errors.Is(err, pubsub.ErrClosed), ShouldBeTrue)
				So(tr.Close(), ShouldBeNil)
			})
		})
	})
}

func TestNATSTransportUnreachable(t *testing.T) {
	Convey("Given a NATS url nobody listens on", t, func() {
		_ = logger.Init()
		_, err := pubsub.NewNATS("nats://127.0.0.1:1")

		Convey("Then construction fails with ErrConnect", func() {
			So(errors.Is(err, pubsub.ErrConnect), ShouldBeTrue)
		})
	})
}
