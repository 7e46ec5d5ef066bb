package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/contact-sync-go/contracts"
)

// Sender publishes sync requests. Implemented by RequestPublisher.
type Sender interface {
	Publish(ctx context.Context, request *contracts.SyncRequest) error
}

// Receiver runs a bounded listening window. Implemented by
// CallbackListener.
type Receiver interface {
	Listen(ctx context.Context, timeout time.Duration, handler CallbackHandler) (int, error)
}

// SessionDriver orchestrates publish-then-listen scenarios: it publishes a
// batch of requests in order and aggregates them into one listening window.
type SessionDriver struct {
	sender       Sender
	receiver     Receiver
	publishDelay time.Duration
	logger       *slog.Logger
}

// SessionOption configures the SessionDriver.
type SessionOption func(*SessionDriver)

// WithPublishDelay sets a pause between consecutive publishes. The delay is
// not needed for correctness; it only avoids flooding a slow consumer.
func WithPublishDelay(delay time.Duration) SessionOption {
	return func(d *SessionDriver) {
		d.publishDelay = delay
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(d *SessionDriver) {
		d.logger = logger
	}
}

// NewSessionDriver creates a new session driver.
func NewSessionDriver(sender Sender, receiver Receiver, options ...SessionOption) *SessionDriver {
	d := &SessionDriver{
		sender:   sender,
		receiver: receiver,
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(d)
	}

	return d
}

// RunScenario publishes every request in order, then enters one listening
// window of the caller-supplied budget. It returns the contact ids
// published in this scenario; the caller correlates them against the
// callbacks its handler observed. A window that sees no callbacks is not an
// error.
func (d *SessionDriver) RunScenario(ctx context.Context, requests []*contracts.SyncRequest, timeout time.Duration, handler CallbackHandler) ([]string, error) {
	published := make([]string, 0, len(requests))

	for i, request := range requests {
		if i > 0 && d.publishDelay > 0 {
			select {
			case <-time.After(d.publishDelay):
			case <-ctx.Done():
				return published, ctx.Err()
			}
		}

		if err := d.sender.Publish(ctx, request); err != nil {
			return published, fmt.Errorf("scenario publish %d/%d failed: %w", i+1, len(requests), err)
		}
		published = append(published, request.ID)
	}

	d.logger.Info("scenario published, entering listening window",
		"requests", len(published),
		"timeout", timeout,
	)

	if _, err := d.receiver.Listen(ctx, timeout, handler); err != nil {
		return published, err
	}

	return published, nil
}
