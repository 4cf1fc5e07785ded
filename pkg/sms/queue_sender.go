package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPSettings configures the delivery-job publisher.
type AMQPSettings struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// DeliveryJob is the message published for an external SMS worker.
type DeliveryJob struct {
	Kind      string    `json:"kind"`
	To        string    `json:"to"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// Publisher publishes JSON payloads to a routing key.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// QueueSender hands messages to a broker; delivery happens out of process.
type QueueSender struct {
	pub        Publisher
	routingKey string
	closer     func() error
	now        func() time.Time
}

// NewQueueSender wraps an existing publisher.
func NewQueueSender(pub Publisher, routingKey string) *QueueSender {
	if strings.TrimSpace(routingKey) == "" {
		routingKey = "sms.otp"
	}
	return &QueueSender{pub: pub, routingKey: routingKey, now: time.Now}
}

// DialQueueSender connects to RabbitMQ and declares the topic exchange.
func DialQueueSender(settings AMQPSettings) (*QueueSender, error) {
	if strings.TrimSpace(settings.URL) == "" {
		return nil, errors.New("sms: amqp url is required")
	}
	exchange := settings.Exchange
	if strings.TrimSpace(exchange) == "" {
		exchange = "notifications"
	}

	pub, err := NewAMQPPublisher(settings.URL, exchange)
	if err != nil {
		return nil, err
	}

	sender := NewQueueSender(pub, settings.RoutingKey)
	sender.closer = pub.Close
	return sender, nil
}

func (s *QueueSender) Name() string { return DriverAMQP }

func (s *QueueSender) Send(ctx context.Context, to, body string) error {
	job := DeliveryJob{Kind: "otp", To: to, Body: body, CreatedAt: s.now().UTC()}
	if err := s.pub.PublishJSON(ctx, s.routingKey, job); err != nil {
		return fmt.Errorf("sms: publish delivery job: %w", err)
	}
	return nil
}

// Close releases the broker connection when the sender owns it.
func (s *QueueSender) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// AMQPPublisher publishes persistent JSON messages to a topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewAMQPPublisher dials the broker and declares a durable topic exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("sms: dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sms: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("sms: declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) PublishJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         b,
	})
}

func (p *AMQPPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
