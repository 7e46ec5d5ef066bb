package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/contact-sync-go/contracts"
	"github.com/glimte/contact-sync-go/internal/rabbitmq"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// CallbackListener consumes SyncCallback messages from the callback queue
// for a bounded wall-clock window and hands each one to a handler.
//
// Acknowledgment is always manual and happens exactly once per delivery,
// whether the body parsed, the handler failed, or the handler panicked. A
// message is never requeued by the listener; redelivery loops on a payload
// the handler cannot process are explicitly avoided.
type CallbackListener struct {
	channel ConsumeChannel
	queue   string
	logger  *slog.Logger
}

// ListenerOption configures the CallbackListener.
type ListenerOption func(*CallbackListener)

// WithListenerLogger sets the logger.
func WithListenerLogger(logger *slog.Logger) ListenerOption {
	return func(l *CallbackListener) {
		l.logger = logger
	}
}

// NewCallbackListener creates a listener for the topology's callback queue.
func NewCallbackListener(channel ConsumeChannel, topology Topology, options ...ListenerOption) *CallbackListener {
	l := &CallbackListener{
		channel: channel,
		queue:   topology.CallbackQueue,
		logger:  slog.Default(),
	}

	for _, opt := range options {
		opt(l)
	}

	return l
}

// Listen consumes callbacks until timeout elapses, invoking handler once
// per parsed message. The deadline is hard: zero or many callbacks may
// arrive within one window, and zero is not an error. A timeout of zero or
// less returns immediately. Listen returns the number of handler
// invocations.
//
// Cancellation of ctx interrupts the window; the caller owns closing the
// connection on the way out.
func (l *CallbackListener) Listen(ctx context.Context, timeout time.Duration, handler CallbackHandler) (int, error) {
	if handler == nil {
		return 0, fmt.Errorf("messaging: handler cannot be nil")
	}
	if timeout <= 0 {
		return 0, nil
	}

	tag := fmt.Sprintf("callback-listener-%s", uuid.New().String()[:8])

	deliveries, err := l.channel.Consume(
		l.queue,
		tag,
		false, // auto-ack is never used: a restart mid-handling must not lose the message
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return 0, &rabbitmq.ConsumerError{
			Queue:       l.queue,
			ConsumerTag: tag,
			Op:          "consume",
			Err:         err,
			Timestamp:   time.Now(),
		}
	}

	defer func() {
		if err := l.channel.Cancel(tag, false); err != nil {
			l.logger.Warn("failed to cancel consumer", "consumerTag", tag, "error", err)
		}
	}()

	l.logger.Info("listening for callbacks", "queue", l.queue, "timeout", timeout)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	handled := 0
	for {
		select {
		case <-ctx.Done():
			return handled, ctx.Err()

		case <-deadline.C:
			l.logger.Info("listening window closed", "queue", l.queue, "handled", handled)
			return handled, nil

		case delivery, ok := <-deliveries:
			if !ok {
				return handled, &rabbitmq.ConsumerError{
					Queue:       l.queue,
					ConsumerTag: tag,
					Op:          "receive",
					Err:         rabbitmq.ErrChannelClosed,
					Timestamp:   time.Now(),
				}
			}
			if l.handleDelivery(ctx, delivery, handler) {
				handled++
			}
		}
	}
}

// handleDelivery parses and dispatches one delivery, acknowledging it on
// every path. It reports whether the handler was invoked.
func (l *CallbackListener) handleDelivery(ctx context.Context, delivery amqp.Delivery, handler CallbackHandler) bool {
	defer l.ack(delivery)

	var callback contracts.SyncCallback
	if err := json.Unmarshal(delivery.Body, &callback); err != nil {
		l.logger.Error("malformed callback, acknowledged without requeue",
			"queue", l.queue,
			"bodyBytes", len(delivery.Body),
			"error", err,
		)
		return false
	}

	if err := l.invoke(ctx, handler, &callback); err != nil {
		l.logger.Error("callback handler failed",
			"contactId", callback.ContactID,
			"status", callback.Status,
			"deviceId", callback.DeviceID,
			"error", err,
		)
	}
	return true
}

// invoke runs the handler, converting panics into errors so a broken
// handler cannot prevent acknowledgment.
func (l *CallbackListener) invoke(ctx context.Context, handler CallbackHandler, callback *contracts.SyncCallback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.HandleCallback(ctx, callback)
}

func (l *CallbackListener) ack(delivery amqp.Delivery) {
	if err := delivery.Ack(false); err != nil {
		l.logger.Error("failed to ack callback",
			"deliveryTag", delivery.DeliveryTag,
			"error", err,
		)
	}
}
