package notification

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"loteo/internal/pkg/errs"
)

// AMQPNotifier publishes paid events to a durable queue. It dials per
// message: paid reservations are rare and a long-lived connection would need
// its own reconnect handling.
type AMQPNotifier struct {
	url   string
	queue string
	dial  func(url string) (*amqp.Connection, error)
}

func NewAMQPNotifier(url, queue string) *AMQPNotifier {
	if queue == "" {
		queue = "reservations.paid"
	}
	return &AMQPNotifier{url: url, queue: queue, dial: amqp.Dial}
}

func (a *AMQPNotifier) NotifyPaid(ctx context.Context, ev PaidEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return errs.Wrap(err, "marshal paid event")
	}

	conn, err := a.dial(a.url)
	if err != nil {
		return errs.Wrap(err, "rabbitmq dial")
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return errs.Wrap(err, "rabbitmq channel")
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		a.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		return errs.Wrap(err, "rabbitmq queue declare")
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    ev.ReservationID,
		Type:         "reservation.paid",
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", a.queue, false, false, pub); err != nil {
		return errs.Wrap(err, "rabbitmq publish")
	}
	return nil
}
