package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/contact-sync-go/contracts"
	"github.com/glimte/contact-sync-go/internal/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RequestPublisher publishes SyncRequest messages onto the request routing
// key. Fire-and-forget: a request accepted by the broker is the broker's to
// deliver, and publish failures are the caller's to retry.
type RequestPublisher struct {
	channel  PublishChannel
	topology Topology
	logger   *slog.Logger
}

// RequestPublisherOption configures the RequestPublisher.
type RequestPublisherOption func(*RequestPublisher)

// WithPublisherLogger sets the logger.
func WithPublisherLogger(logger *slog.Logger) RequestPublisherOption {
	return func(p *RequestPublisher) {
		p.logger = logger
	}
}

// NewRequestPublisher creates a new request publisher.
func NewRequestPublisher(channel PublishChannel, topology Topology, options ...RequestPublisherOption) *RequestPublisher {
	p := &RequestPublisher{
		channel:  channel,
		topology: topology,
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Publish serializes the request to JSON and publishes it persistent with
// an application/json content type. Failures wrap as
// *rabbitmq.PublishError; no retry happens here.
func (p *RequestPublisher) Publish(ctx context.Context, request *contracts.SyncRequest) error {
	if request == nil {
		return fmt.Errorf("messaging: request cannot be nil")
	}
	if err := request.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("messaging: failed to serialize request %s: %w", request.ID, err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    request.ID,
		Timestamp:    time.UnixMilli(request.Timestamp),
		Body:         body,
	}

	if err := p.channel.PublishWithContext(
		ctx,
		p.topology.Exchange,
		p.topology.RequestRoutingKey,
		false, // mandatory
		false, // immediate
		publishing,
	); err != nil {
		return &rabbitmq.PublishError{
			Exchange:   p.topology.Exchange,
			RoutingKey: p.topology.RequestRoutingKey,
			Err:        err,
			Timestamp:  time.Now(),
		}
	}

	p.logger.Debug("published sync request",
		"contactId", request.ID,
		"operation", request.Operation,
		"routingKey", p.topology.RequestRoutingKey,
	)

	return nil
}
