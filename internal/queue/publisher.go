package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/game-tracker/internal/metrics"
)

// ErrNotConfigured is returned by a Publisher without a broker url.
var ErrNotConfigured = errors.New("queue: broker url not configured")

// Publisher sends JSON events to durable queues. It keeps one connection
// and reopens it after the broker drops it. Callers treat publish errors
// as non-fatal.
type Publisher struct {
	url string
	now func() time.Time

	mu   sync.Mutex
	conn *amqp.Connection
}

// NewPublisher returns a publisher for url. An empty url yields a
// publisher whose Publish always fails with ErrNotConfigured.
func NewPublisher(url string) *Publisher {
	return &Publisher{url: url, now: time.Now}
}

// Configured reports whether a broker url was supplied.
func (p *Publisher) Configured() bool { return p != nil && p.url != "" }

// SendVerification queues a verification mail.
func (p *Publisher) SendVerification(ctx context.Context, email, username, code string) error {
	return p.Publish(ctx, VerificationQueue, VerificationEmailEvent{Email: email, Username: username, Code: code})
}

// PublishLibrarySync queues a Steam library import for userID.
func (p *Publisher) PublishLibrarySync(ctx context.Context, userID uint64) error {
	return p.Publish(ctx, LibrarySyncQueue, LibrarySyncEvent{
		UserID:      userID,
		RequestedAt: p.now().UTC().Format(time.RFC3339),
	})
}

// Publish marshals event and sends it as a persistent message to queue.
func (p *Publisher) Publish(ctx context.Context, queue string, event any) (err error) {
	defer func() {
		outcome := "published"
		if err != nil {
			outcome = "publish_failed"
		}
		metrics.QueueMessages.WithLabelValues(queue, outcome).Inc()
	}()
	if !p.Configured() {
		return ErrNotConfigured
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ch, err := p.channel()
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("queue", queue).Msg("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err = ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("queue", queue).Msg("rabbitmq: queue declare failed")
		return err
	}
	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Body:         body,
	})
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("queue", queue).Msg("rabbitmq: publish failed")
	}
	return err
}

// channel opens a channel on the shared connection, dialing first when
// the connection is missing or closed.
func (p *Publisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return nil, err
		}
		p.conn = conn
	}
	return p.conn.Channel()
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}
