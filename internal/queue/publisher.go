package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher publishes domain events to RabbitMQ.  Each publish dials the
// broker, declares the durable queue and sends one persistent message;
// event volume is one message per booking or invoice.  Errors are logged
// and returned so callers can treat delivery as best-effort.
type Publisher struct {
	url string
	log logrus.FieldLogger
}

// NewPublisher returns a publisher for the broker at url.
func NewPublisher(url string, log logrus.FieldLogger) *Publisher {
	return &Publisher{url: url, log: log.WithField("component", "rabbitmq-publisher")}
}

// PublishBookingConfirmed publishes on booking.confirmed.
func (p *Publisher) PublishBookingConfirmed(ctx context.Context, ev BookingConfirmedEvent) error {
	return p.publish(ctx, BookingConfirmedQueue, ev)
}

// PublishInvoiceIssued publishes on invoice.issued.
func (p *Publisher) PublishInvoiceIssued(ctx context.Context, ev InvoiceIssuedEvent) error {
	return p.publish(ctx, InvoiceIssuedQueue, ev)
}

// PublishPartialFailure publishes on booking.partial_failure.
func (p *Publisher) PublishPartialFailure(ctx context.Context, ev PartialFailureEvent) error {
	return p.publish(ctx, PartialFailureQueue, ev)
}

func (p *Publisher) publish(ctx context.Context, queue string, event any) error {
	log := p.log.WithField("queue", queue)

	body, err := json.Marshal(event)
	if err != nil {
		log.WithError(err).Error("marshal event failed")
		return fmt.Errorf("marshal %s event: %w", queue, err)
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		log.WithError(err).Warn("dial failed")
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.WithError(err).Warn("channel open failed")
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		log.WithError(err).Warn("queue declare failed")
		return fmt.Errorf("declare %s: %w", queue, err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",    // default exchange
		queue, // routing key = queue name
		false, // mandatory
		false, // immediate
		pub,
	); err != nil {
		log.WithError(err).Warn("publish failed")
		return fmt.Errorf("publish %s: %w", queue, err)
	}
	return nil
}
