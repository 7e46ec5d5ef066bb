package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/contact-sync-go/internal/rabbitmq"
)

// Default topology names. These are the external contract shared with the
// device-side agent and must match it exactly.
const (
	DefaultExchange           = "contact_sync_exchange"
	DefaultRequestQueue       = "contact_sync_queue"
	DefaultCallbackQueue      = "contact_callback_queue"
	DefaultRequestRoutingKey  = "contact.sync"
	DefaultCallbackRoutingKey = "contact.callback"
)

// Topology names the broker entities the protocol rides on. Static
// configuration, declared durable so broker restarts keep the bindings.
type Topology struct {
	Exchange           string
	RequestQueue       string
	CallbackQueue      string
	RequestRoutingKey  string
	CallbackRoutingKey string
}

// DefaultTopology returns the topology of the device-side contract.
func DefaultTopology() Topology {
	return Topology{
		Exchange:           DefaultExchange,
		RequestQueue:       DefaultRequestQueue,
		CallbackQueue:      DefaultCallbackQueue,
		RequestRoutingKey:  DefaultRequestRoutingKey,
		CallbackRoutingKey: DefaultCallbackRoutingKey,
	}
}

// Validate checks that every entity is named.
func (t Topology) Validate() error {
	for name, value := range map[string]string{
		"exchange":             t.Exchange,
		"request queue":        t.RequestQueue,
		"callback queue":       t.CallbackQueue,
		"request routing key":  t.RequestRoutingKey,
		"callback routing key": t.CallbackRoutingKey,
	} {
		if value == "" {
			return fmt.Errorf("messaging: topology %s cannot be empty", name)
		}
	}
	return nil
}

// TopologyManager declares the exchange, queues, and bindings of a
// Topology. Declarations use the broker's idempotent declare semantics, so
// EnsureTopology is safe to call on every startup.
type TopologyManager struct {
	channel TopologyChannel
	logger  *slog.Logger
}

// TopologyOption configures the TopologyManager.
type TopologyOption func(*TopologyManager)

// WithTopologyLogger sets the logger.
func WithTopologyLogger(logger *slog.Logger) TopologyOption {
	return func(tm *TopologyManager) {
		tm.logger = logger
	}
}

// NewTopologyManager creates a new topology manager.
func NewTopologyManager(channel TopologyChannel, options ...TopologyOption) *TopologyManager {
	tm := &TopologyManager{
		channel: channel,
		logger:  slog.Default(),
	}

	for _, opt := range options {
		opt(tm)
	}

	return tm
}

// EnsureTopology declares the durable topic exchange, both durable queues,
// and their bindings. An incompatible redeclaration (for example a
// durability mismatch on a pre-existing queue) surfaces as a
// *rabbitmq.TopologyError and is fatal, not retried.
func (tm *TopologyManager) EnsureTopology(ctx context.Context, topology Topology) error {
	if err := topology.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := tm.channel.ExchangeDeclare(
		topology.Exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return &rabbitmq.TopologyError{
			Component: "exchange",
			Name:      topology.Exchange,
			Op:        "declare",
			Err:       err,
			Timestamp: time.Now(),
		}
	}

	bindings := []struct {
		queue      string
		routingKey string
	}{
		{topology.RequestQueue, topology.RequestRoutingKey},
		{topology.CallbackQueue, topology.CallbackRoutingKey},
	}

	for _, b := range bindings {
		if _, err := tm.channel.QueueDeclare(
			b.queue,
			true,  // durable
			false, // auto-delete
			false, // exclusive
			false, // no-wait
			nil,
		); err != nil {
			return &rabbitmq.TopologyError{
				Component: "queue",
				Name:      b.queue,
				Op:        "declare",
				Err:       err,
				Timestamp: time.Now(),
			}
		}

		if err := tm.channel.QueueBind(b.queue, b.routingKey, topology.Exchange, false, nil); err != nil {
			return &rabbitmq.TopologyError{
				Component: "binding",
				Name:      b.queue,
				Op:        "bind",
				Err:       err,
				Timestamp: time.Now(),
			}
		}
	}

	tm.logger.Info("topology ensured",
		"exchange", topology.Exchange,
		"requestQueue", topology.RequestQueue,
		"callbackQueue", topology.CallbackQueue,
	)

	return nil
}
