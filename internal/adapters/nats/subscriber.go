package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/safewalk/internal/core/domain"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// knownKinds are the map update kinds this build understands. Events of any
// other kind come from a newer writer and are terminated, not redelivered.
var knownKinds = map[domain.MapUpdateKind]bool{
	domain.MapUpdateDanger:    true,
	domain.MapUpdatePreferred: true,
	domain.MapUpdateSafePlace: true,
	domain.MapUpdateImport:    true,
}

// decodeMapUpdate parses a map update payload and checks its kind.
func decodeMapUpdate(data []byte) (*domain.MapUpdateEvent, error) {
	var ev domain.MapUpdateEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if !knownKinds[ev.Kind] {
		return nil, fmt.Errorf("unknown map update kind %q", ev.Kind)
	}
	return &ev, nil
}

// SubscribeMapUpdates delivers every new map update to handler. The consumer
// is ephemeral so that each replica sees every update. A handler error
// triggers redelivery, at most three times.
func (s *Subscriber) SubscribeMapUpdates(ctx context.Context, handler func(ctx context.Context, ev *domain.MapUpdateEvent) error) error {
	sub, err := s.js.Subscribe(SubjectMapUpdated, func(msg *nats.Msg) {
		logger := slog.With("subject", msg.Subject)
		if md, err := msg.Metadata(); err == nil {
			logger = logger.With("stream_seq", md.Sequence.Stream, "delivered", md.NumDelivered)
		}

		ev, err := decodeMapUpdate(msg.Data)
		if err != nil {
			logger.Warn("discarding map update", "error", err)
			_ = msg.Term()
			return
		}
		if err := handler(ctx, ev); err != nil {
			logger.Warn("map update handler failed", "kind", ev.Kind, "id", ev.ID, "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.DeliverNew(),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectMapUpdated, err)
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
