package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// TxSequenceBuiltQueue receives TxSequenceBuiltEvent messages.
const TxSequenceBuiltQueue = "ticketforge.txseq.built"

// Publisher publishes domain events to RabbitMQ.  Every call dials its own
// connection: events are rare and this keeps the publisher free of
// reconnect state.
type Publisher struct {
	url    string
	logger *slog.Logger
}

func NewPublisher(url string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{url: url, logger: logger}
}

// PublishTxSequenceBuilt publishes ev to the txseq.built queue.  Errors are
// logged and returned so the caller can choose to ignore them.  Messages are
// marked as persistent.
func (p *Publisher) PublishTxSequenceBuilt(ctx context.Context, ev TxSequenceBuiltEvent) error {
	pub, err := publishing(ev)
	if err != nil {
		p.logger.Error("rabbitmq: marshal event failed", "error", err)
		return err
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.logger.Error("rabbitmq: dial failed", "error", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.logger.Error("rabbitmq: channel open failed", "error", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		TxSequenceBuiltQueue, // name
		true,                 // durable
		false,                // autoDelete
		false,                // exclusive
		false,                // noWait
		nil,                  // args
	); err != nil {
		p.logger.Error("rabbitmq: queue declare failed", "error", err)
		return err
	}

	if err := ch.PublishWithContext(ctx,
		"",                   // default exchange
		TxSequenceBuiltQueue, // routing key = queue name
		false,                // mandatory
		false,                // immediate
		pub,
	); err != nil {
		p.logger.Error("rabbitmq: publish failed", "error", err)
		return err
	}
	return nil
}

func publishing(ev TxSequenceBuiltEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		MessageId:    ev.CartID + ":" + ev.CheckoutID,
		Body:         body,
	}, nil
}
