// Package pubsub delivers ranking snapshots between the broadcaster and
// live subscribers over watermill. The in-process gochannel transport is
// the default; the NATS transport lets several replicas fan out the
// snapshots of one authoritative index.
package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	nc "github.com/nats-io/nats.go"

	"github.com/okian/besttime/pkg/logger"
	"github.com/okian/besttime/pkg/metrics"
)

// Transport publishes opaque payloads on named channels.
type Transport interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe streams payloads published on channel until ctx is cancelled
	// or the transport is closed.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// WatermillTransport adapts a watermill publisher/subscriber pair to Transport.
type WatermillTransport struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	shared     bool // publisher and subscriber are one value
	kind       string
	opts       options

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

var _ Transport = (*WatermillTransport)(nil)

// NewMemory returns an in-process transport backed by watermill's gochannel.
func NewMemory(opts ...Option) *WatermillTransport {
	o := build(opts)
	// Blocking until subscribers ack keeps per-channel publish order; the
	// subscription loop acks as soon as it copies the payload out.
	gc := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            int64(o.outputBuffer),
		BlockPublishUntilSubscriberAck: true,
	}, watermill.NewSlogLogger(logger.Slog()))

	return &WatermillTransport{publisher: gc, subscriber: gc, shared: true, kind: "memory", opts: o, done: make(chan struct{})}
}

// NewNATS returns a transport over core NATS subjects. JetStream is
// disabled: snapshots are ephemeral and late subscribers only need the next one.
// Subscribers use no queue group, so every replica receives every snapshot.
func NewNATS(url string, opts ...Option) (*WatermillTransport, error) {
	o := build(opts)
	wmLogger := watermill.NewSlogLogger(logger.Slog())
	marshaler := &wmnats.NATSMarshaler{}
	natsOpts := []nc.Option{
		nc.Name(o.clientName),
		nc.MaxReconnects(-1),
	}
	jsConfig := wmnats.JetStreamConfig{Disabled: true}

	publisher, err := wmnats.NewPublisher(wmnats.PublisherConfig{
		URL:         url,
		Marshaler:   marshaler,
		NatsOptions: natsOpts,
		JetStream:   jsConfig,
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("%w: publisher %s: %w", ErrConnect, url, err)
	}

	subscriber, err := wmnats.NewSubscriber(wmnats.SubscriberConfig{
		URL:         url,
		Unmarshaler: marshaler,
		NatsOptions: natsOpts,
		JetStream:   jsConfig,
	}, wmLogger)
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("%w: subscriber %s: %w", ErrConnect, url, err)
	}

	return &WatermillTransport{publisher: publisher, subscriber: subscriber, kind: "nats", opts: o, done: make(chan struct{})}, nil
}

func build(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("pubsub")
	}
	return o
}

// Kind reports "memory" or "nats".
func (t *WatermillTransport) Kind() string { return t.kind }

// Publish sends payload on channel.
func (t *WatermillTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return ErrClosed
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := t.publisher.Publish(channel, msg); err != nil {
		metrics.RecordErrorByComponent("pubsub", "publish_error")
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe streams raw payloads. Each message is acknowledged as soon as
// it is copied out, so a slow consumer only fills its own buffer.
func (t *WatermillTransport) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, ErrClosed
	}

	msgs, err := t.subscriber.Subscribe(ctx, channel)
	if err != nil {
		metrics.RecordErrorByComponent("pubsub", "subscribe_error")
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, t.opts.outputBuffer)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer close(out)
		for msg := range msgs {
			payload := append([]byte(nil), msg.Payload...)
			msg.Ack()
			select {
			case out <- payload:
			case <-ctx.Done():
				return
			case <-t.done:
				return
			}
		}
	}()

	t.opts.logger.Debug(ctx, "subscribed",
		logger.String("channel", channel),
		logger.String("transport", t.kind),
	)
	return out, nil
}

// Close shuts down the publisher and subscriber. It is safe to call twice.
func (t *WatermillTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()

	var firstErr error
	if err := t.publisher.Close(); err != nil {
		firstErr = fmt.Errorf("close publisher: %w", err)
	}
	if !t.shared {
		if err := t.subscriber.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close subscriber: %w", err)
		}
	}
	t.wg.Wait()
	return firstErr
}
