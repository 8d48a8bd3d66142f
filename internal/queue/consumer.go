package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/game-tracker/internal/metrics"
)

// Handler processes one message body. A returned error rejects the
// message without requeueing it.
type Handler func(ctx context.Context, body []byte) error

// JSONHandler decodes the body into T before calling fn. Undecodable
// bodies are rejected.
func JSONHandler[T any](fn func(ctx context.Context, ev T) error) Handler {
	return func(ctx context.Context, body []byte) error {
		var ev T
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		return fn(ctx, ev)
	}
}

// Consumer reads one durable queue and hands every delivery to Handler.
type Consumer struct {
	URL      string
	Queue    string
	Prefetch int
	Handler  Handler

	// MaxBackoff caps the reconnect delay. Defaults to 30s.
	MaxBackoff time.Duration
}

// Run connects to the broker and consumes until ctx is cancelled. Broken
// connections are re-dialed with exponential backoff. It returns nil once
// ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	if c.URL == "" {
		return ErrNotConfigured
	}
	maxBackoff := c.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	logger := log.With().Str("consumer", c.Queue).Logger()

	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			logger.Warn().Err(err).Dur("retry_in", backoff).Msg("failed to dial broker")
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(logger.WithContext(ctx), conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn().Err(err).Msg("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	prefetch := c.Prefetch
	if prefetch <= 0 {
		prefetch = 10
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("set QoS failed")
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.dispatch(ctx, d)
		}
	}
}

// dispatch runs the handler for d and acknowledges it. Failures are
// nacked without requeue so a poison message cannot spin the consumer.
func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	if err := c.Handler(ctx, d.Body); err != nil {
		metrics.QueueMessages.WithLabelValues(c.Queue, "rejected").Inc()
		log.Ctx(ctx).Error().Err(err).Msg("handle message failed")
		_ = d.Nack(false, false)
		return
	}
	metrics.QueueMessages.WithLabelValues(c.Queue, "acked").Inc()
	_ = d.Ack(false)
}

// sleep waits for d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
