// Package events provides the event bus implementations behind the EventBus
// port: a NATS-backed bus for deployments and an in-memory bus for tests and
// embedded use.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/stokcerdas/replenish/pkg/types"
)

// NATSBus implements ports.EventBus over a NATS connection.
type NATSBus struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

// NATSConfig holds connection settings for the bus.
type NATSConfig struct {
	URL      string
	ClientID string
}

// NewNATSBus connects to NATS and returns the bus. The connection reconnects
// indefinitely with a one second wait.
func NewNATSBus(cfg NATSConfig) (*NATSBus, error) {
	logger := logrus.WithField("component", "event-bus")

	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Errorf("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Errorf("NATS error: %v", err)
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSBus{conn: conn, logger: logger}, nil
}

// Publish marshals the event and publishes it under its name.
func (b *NATSBus) Publish(ctx context.Context, evt types.Event) error {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", evt.Name, err)
	}
	if err := b.conn.Publish(evt.Name, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", evt.Name, err)
	}
	b.logger.Debugf("published %s", evt.Name)
	return nil
}

// Subscribe registers a handler for a subject and returns an unsubscribe
// function. Malformed payloads are logged and dropped.
func (b *NATSBus) Subscribe(name string, handler func(evt types.Event)) (func(), error) {
	sub, err := b.conn.Subscribe(name, func(msg *nats.Msg) {
		var evt types.Event
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			b.logger.Errorf("dropping malformed event on %s: %v", msg.Subject, err)
			return
		}
		if evt.Name == "" {
			evt.Name = msg.Subject
		}
		handler(evt)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", name, err)
	}
	b.logger.Infof("subscribed to %s", name)
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			b.logger.Errorf("failed to unsubscribe from %s: %v", name, err)
		}
	}, nil
}

// Request performs a JSON request/reply on a subject, honoring the context
// deadline.
func (b *NATSBus) Request(ctx context.Context, subject string, req, resp any) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request for %s: %w", subject, err)
	}
	msg, err := b.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", subject, err)
	}
	if resp == nil {
		return nil
	}
	if err := json.Unmarshal(msg.Data, resp); err != nil {
		return fmt.Errorf("malformed reply on %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the underlying connection.
func (b *NATSBus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}
