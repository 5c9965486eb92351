package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"catalog-service/internal/domain"
)

// DefaultRoutingKey is used when no routing key is configured.
const DefaultRoutingKey = "catalog.upload.completed"

// Channel is the part of *amqp.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// UploadCompleted is published once per processed upload.
type UploadCompleted struct {
	UploadID    string    `json:"upload_id"`
	Filename    string    `json:"filename"`
	Stored      int       `json:"stored"`
	Failed      int       `json:"failed"`
	CompletedAt time.Time `json:"completed_at"`
}

// Publisher publishes upload events to a RabbitMQ exchange.
type Publisher struct {
	channel    Channel
	exchange   string
	routingKey string
	now        func() time.Time
}

// NewPublisher opens a channel on connection and declares a durable topic exchange.
func NewPublisher(connection *amqp.Connection, exchange, routingKey string) (*Publisher, error) {
	channel, err := connection.Channel()
	if err != nil {
		return nil, fmt.Errorf("can't open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		return nil, fmt.Errorf("can't declare exchange %q: %w", exchange, err)
	}
	return newPublisher(channel, exchange, routingKey), nil
}

func newPublisher(channel Channel, exchange, routingKey string) *Publisher {
	if routingKey == "" {
		routingKey = DefaultRoutingKey
	}
	return &Publisher{
		channel:    channel,
		exchange:   exchange,
		routingKey: routingKey,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// UploadCompleted publishes the outcome of the upload identified by uploadID.
func (p *Publisher) UploadCompleted(ctx context.Context, uploadID uuid.UUID, summary *domain.UploadSummary) error {
	body, err := json.Marshal(UploadCompleted{
		UploadID:    uploadID.String(),
		Filename:    summary.Filename,
		Stored:      summary.Stored,
		Failed:      len(summary.Failed),
		CompletedAt: p.now(),
	})
	if err != nil {
		return fmt.Errorf("can't encode upload event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uploadID.String(),
		Body:         body,
	}
	if err := p.channel.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, msg); err != nil {
		return fmt.Errorf("can't publish upload event: %w", err)
	}
	return nil
}

// Close closes the underlying channel.
func (p *Publisher) Close() error {
	return p.channel.Close()
}
