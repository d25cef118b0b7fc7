package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ticketforge/mint-engine/internal/model"
)

// TxStatusQueue is where the relayer reports final transaction states.
const TxStatusQueue = "ticketforge.tx.status"

var ErrInvalidStatusEvent = errors.New("invalid tx status event")

type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// StatusConsumer turns relayer status events into callback jobs.
type StatusConsumer struct {
	url      string
	enqueuer Enqueuer
	logger   *slog.Logger
}

func NewStatusConsumer(url string, enqueuer Enqueuer, logger *slog.Logger) *StatusConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusConsumer{url: url, enqueuer: enqueuer, logger: logger}
}

// Run connects to RabbitMQ, declares the status queue (durable) and consumes
// it until ctx is done.  Lost connections are retried with a capped
// exponential backoff.
func (c *StatusConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warn("status consumer: dial failed", "error", err, "retryIn", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("status consumer: consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
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

func (c *StatusConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.logger.Warn("status consumer: set QoS failed", "error", err)
	}
	if _, err := ch.QueueDeclare(TxStatusQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, TxStatusQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := c.Handle(ctx, d.Body); err != nil {
			c.logger.Error("status consumer: handle message failed", "error", err)
			// Malformed events are dropped; enqueue failures go back to the broker.
			_ = d.Nack(false, !errors.Is(err, ErrInvalidStatusEvent))
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// Handle enqueues the callback carried by one status event.  Events without
// a callback are acknowledged and ignored.
func (c *StatusConsumer) Handle(ctx context.Context, body []byte) error {
	var ev TxStatusEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStatusEvent, err)
	}
	if ev.Callback == nil {
		return nil
	}
	if ev.TxHash == "" {
		return fmt.Errorf("%w: missing tx hash", ErrInvalidStatusEvent)
	}
	if err := checkKind(ev.Status, ev.Callback.Kind); err != nil {
		return err
	}
	switch ev.Callback.JobName {
	case TypeMintingConfirmed, TypeMintingFailed:
	default:
		return fmt.Errorf("%w: unknown job %q", ErrInvalidStatusEvent, ev.Callback.JobName)
	}

	task, err := NewCallbackTask(ev.TxHash, *ev.Callback)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStatusEvent, err)
	}
	if _, err := c.enqueuer.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			c.logger.Info("status consumer: callback already queued", "txHash", ev.TxHash, "job", ev.Callback.JobName)
			return nil
		}
		return fmt.Errorf("enqueue %s: %w", ev.Callback.JobName, err)
	}
	c.logger.Info("status consumer: callback queued", "txHash", ev.TxHash, "job", ev.Callback.JobName)
	return nil
}

func checkKind(status string, kind model.CallbackKind) error {
	switch {
	case status == TxConfirmed && kind == model.CallbackConfirm:
	case (status == TxFailed || status == TxReverted) && kind == model.CallbackFailure:
	default:
		return fmt.Errorf("%w: status %q does not match %s callback", ErrInvalidStatusEvent, status, kind)
	}
	return nil
}
