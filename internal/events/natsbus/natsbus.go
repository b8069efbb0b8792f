package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/duelsync-server/internal/events"
)

const (
	maxReconnects = -1
	reconnectWait = 2 * time.Second
)

// conn is the subset of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher publishes events as JSON on core NATS subjects.
type Publisher struct {
	nc  conn
	log *zerolog.Logger
}

var _ events.Publisher = (*Publisher)(nil)

// Connect dials the NATS server at url.
func Connect(url string, logger *zerolog.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("duelsync-server"),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error().Err(err).Msg("nats error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return newPublisher(nc, logger), nil
}

func newPublisher(nc conn, logger *zerolog.Logger) *Publisher {
	return &Publisher{nc: nc, log: logger}
}

// PublishMatchEnded publishes ev on events.SubjectMatchEnded.
func (p *Publisher) PublishMatchEnded(ctx context.Context, ev events.MatchEnded) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal match ended: %w", err)
	}
	if err := p.nc.Publish(events.SubjectMatchEnded, data); err != nil {
		return fmt.Errorf("publish %s: %w", events.SubjectMatchEnded, err)
	}
	p.log.Debug().Str("subject", events.SubjectMatchEnded).Str("room_id", ev.RoomID).Msg("event published")
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	return p.nc.Drain()
}
