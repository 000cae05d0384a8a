package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/travel-booking/internal/notify"
)

// Consumer listens to the event queues and turns events into e-mail and
// operator alerts.
type Consumer struct {
	url    string
	mailer notify.Sender
	log    logrus.FieldLogger
}

// NewConsumer returns a consumer.  mailer may be nil, in which case events
// are only logged.
func NewConsumer(url string, mailer notify.Sender, log logrus.FieldLogger) *Consumer {
	return &Consumer{url: url, mailer: mailer, log: log.WithField("component", "rabbitmq-consumer")}
}

// Run connects to RabbitMQ, declares the durable queues and consumes until
// ctx is cancelled.  Broker outages are retried with exponential backoff
// capped at 30s; a message that cannot be handled is rejected without
// requeue so it cannot spin.
func (c *Consumer) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.WithError(err).WithField("retry_in", backoff.String()).Warn("failed to dial broker")
			if !sleep(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.log.WithError(err).Warn("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.WithError(err).Warn("set QoS failed")
	}

	deliveries := make(chan amqp.Delivery)
	for _, q := range []string{BookingConfirmedQueue, InvoiceIssuedQueue, PartialFailureQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", q, err)
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", q, err)
		}
		go func(msgs <-chan amqp.Delivery) {
			for d := range msgs {
				select {
				case deliveries <- d:
				case <-ctx.Done():
					return
				}
			}
		}(msgs)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr != nil {
				return amqpErr
			}
			return errors.New("connection closed")
		case d := <-deliveries:
			if err := c.Handle(ctx, d.RoutingKey, d.Body); err != nil {
				c.log.WithError(err).WithField("queue", d.RoutingKey).Error("handle message failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle processes one message body received on queue.
func (c *Consumer) Handle(ctx context.Context, queue string, body []byte) error {
	switch queue {
	case BookingConfirmedQueue:
		var ev BookingConfirmedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		c.log.WithFields(logrus.Fields{
			"booking_id":         ev.BookingID,
			"user_id":            ev.UserID,
			"total_cents":        ev.TotalPriceCents,
			"provider_reference": ev.ProviderReference,
		}).Info("booking confirmed")
		if ev.Email == "" {
			return nil
		}
		lines := append(append([]string{}, ev.Hotels...), ev.Flights...)
		return c.send(ctx, notify.Email{
			To:      ev.Email,
			Subject: fmt.Sprintf("Booking #%d confirmed", ev.BookingID),
			Text:    fmt.Sprintf("Your booking #%d is confirmed.\n\n%s\n", ev.BookingID, strings.Join(lines, "\n")),
		})

	case InvoiceIssuedQueue:
		var ev InvoiceIssuedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		c.log.WithFields(logrus.Fields{"invoice_id": ev.InvoiceID, "booking_id": ev.BookingID}).Info("invoice issued")
		if ev.Email == "" {
			return nil
		}
		return c.send(ctx, notify.Email{
			To:      ev.Email,
			Subject: fmt.Sprintf("Invoice %s", ev.InvoiceNumber),
			Text:    ev.Document,
		})

	case PartialFailureQueue:
		var ev PartialFailureEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		c.log.WithFields(logrus.Fields{
			"alert":              "partial_failure",
			"saga_id":            ev.SagaID,
			"user_id":            ev.UserID,
			"provider_reference": ev.ProviderReference,
			"local_error":        ev.LocalError,
		}).Error("flight booked without local booking")
		return nil

	default:
		return fmt.Errorf("unknown queue %q", queue)
	}
}

func (c *Consumer) send(ctx context.Context, e notify.Email) error {
	if c.mailer == nil {
		return nil
	}
	return c.mailer.Send(ctx, e)
}

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
