package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Subscriber delivers report events for one wallet until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, address string) (<-chan *ReportEvent, error)
}

// JetStreamSubscriber creates an ephemeral consumer per subscription.
type JetStreamSubscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSubscriber connects to NATS for consuming report events.
func NewSubscriber(natsURL string, logger *slog.Logger) (*JetStreamSubscriber, error) {
	nc, js, err := connect(natsURL, "soltrack-subscriber")
	if err != nil {
		return nil, err
	}
	logger.Info("NATS subscriber initialized", "url", natsURL)
	return &JetStreamSubscriber{nc: nc, js: js, logger: logger}, nil
}

// Subscribe streams new events for address. The channel closes when ctx is done.
func (s *JetStreamSubscriber) Subscribe(ctx context.Context, address string) (<-chan *ReportEvent, error) {
	cons, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: Subject(address),
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy, // Only deliver messages published after subscribing
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	out := make(chan *ReportEvent, 10)
	var (
		mu     sync.Mutex
		closed bool
	)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		defer msg.Ack()

		var event ReportEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			s.logger.WarnContext(ctx, "failed to unmarshal report event", "error", err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case out <- &event:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming messages: %w", err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()

	return out, nil
}

// Close closes the NATS connection.
func (s *JetStreamSubscriber) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}
