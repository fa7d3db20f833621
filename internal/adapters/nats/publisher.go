package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/safewalk/internal/core/domain"
)

// Subjects carrying safety-map and routing events.
const (
	SubjectMapUpdated    = "safety.map.updated"
	SubjectRouteComputed = "safety.route.computed"

	SubjectMapAll   = "safety.map.>"
	SubjectRouteAll = "safety.route.>"
)

// Streams returns the JetStream streams the service relies on.
func Streams() []nats.StreamConfig {
	return []nats.StreamConfig{
		{
			Name:      "SAFETY_MAP",
			Subjects:  []string{SubjectMapAll},
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "SAFETY_ROUTES",
			Subjects:  []string{SubjectRouteAll},
			Retention: nats.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS, enables JetStream and ensures the streams exist.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	for _, cfg := range Streams() {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist; try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				conn.Close()
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishMapUpdate announces a safety-map change.
func (p *Publisher) PublishMapUpdate(ctx context.Context, ev *domain.MapUpdateEvent) error {
	return p.publish(ctx, SubjectMapUpdated, mapUpdateMsgID(ev), ev)
}

// PublishRouteComputed records a computed safe route.
func (p *Publisher) PublishRouteComputed(ctx context.Context, ev *domain.RouteComputedEvent) error {
	return p.publish(ctx, SubjectRouteComputed, ev.RouteID, ev)
}

// mapUpdateMsgID lets JetStream drop a retried publish of the same update.
func mapUpdateMsgID(ev *domain.MapUpdateEvent) string {
	return fmt.Sprintf("%s-%d-%d", ev.Kind, ev.ID, ev.Time.UnixNano())
}

func (p *Publisher) publish(ctx context.Context, subject, msgID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subject, err)
	}
	opts := []nats.PubOpt{nats.Context(ctx)}
	if msgID != "" {
		opts = append(opts, nats.MsgId(msgID))
	}
	if _, err := p.js.Publish(subject, data, opts...); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Conn exposes the underlying connection, for health checks.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection (e.g. for the WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
