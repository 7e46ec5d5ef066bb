// Package contactsync is a test harness for the asynchronous contact sync
// protocol: it publishes contact mutation requests onto a RabbitMQ topic
// exchange and listens, for a bounded window, for the device-side agent's
// correlated callbacks.
package contactsync

import (
	"context"
	"log/slog"
	"time"

	"github.com/glimte/contact-sync-go/internal/rabbitmq"
	"github.com/glimte/contact-sync-go/messaging"
)

// Client wires a harness session: one connection, one shared channel, the
// declared topology, and the protocol components on top of it.
type Client struct {
	conn      *rabbitmq.ConnectionManager
	channel   *rabbitmq.Channel
	topology  messaging.Topology
	publisher *messaging.RequestPublisher
	listener  *messaging.CallbackListener
	driver    *messaging.SessionDriver
}

type clientConfig struct {
	logger       *slog.Logger
	topology     messaging.Topology
	publishDelay time.Duration
	dialTimeout  time.Duration
}

// ClientOption configures the Client.
type ClientOption func(*clientConfig)

// WithClientLogger sets the logger used by every component.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithTopology overrides the default topology names.
func WithTopology(topology messaging.Topology) ClientOption {
	return func(cfg *clientConfig) {
		cfg.topology = topology
	}
}

// WithPublishDelay sets the inter-publish pause used by scenarios.
func WithPublishDelay(delay time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.publishDelay = delay
	}
}

// WithDialTimeout bounds the initial broker dial.
func WithDialTimeout(timeout time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.dialTimeout = timeout
	}
}

// Connect dials the broker, opens the session channel, and ensures the
// topology. Connection and topology failures are fatal; the caller should
// report them and exit non-zero.
func Connect(ctx context.Context, url string, options ...ClientOption) (*Client, error) {
	cfg := &clientConfig{
		logger:      slog.Default(),
		topology:    messaging.DefaultTopology(),
		dialTimeout: 30 * time.Second,
	}

	for _, opt := range options {
		opt(cfg)
	}

	conn := rabbitmq.NewConnectionManager(url,
		rabbitmq.WithLogger(cfg.logger),
		rabbitmq.WithDialTimeout(cfg.dialTimeout),
	)
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	tm := messaging.NewTopologyManager(channel, messaging.WithTopologyLogger(cfg.logger))
	if err := tm.EnsureTopology(ctx, cfg.topology); err != nil {
		conn.Close()
		return nil, err
	}

	publisher := messaging.NewRequestPublisher(channel, cfg.topology,
		messaging.WithPublisherLogger(cfg.logger))
	listener := messaging.NewCallbackListener(channel, cfg.topology,
		messaging.WithListenerLogger(cfg.logger))
	driver := messaging.NewSessionDriver(publisher, listener,
		messaging.WithPublishDelay(cfg.publishDelay),
		messaging.WithSessionLogger(cfg.logger))

	return &Client{
		conn:      conn,
		channel:   channel,
		topology:  cfg.topology,
		publisher: publisher,
		listener:  listener,
		driver:    driver,
	}, nil
}

// Publisher returns the request publisher.
func (c *Client) Publisher() *messaging.RequestPublisher {
	return c.publisher
}

// Listener returns the callback listener.
func (c *Client) Listener() *messaging.CallbackListener {
	return c.listener
}

// Driver returns the session driver.
func (c *Client) Driver() *messaging.SessionDriver {
	return c.driver
}

// Topology returns the topology this session declared.
func (c *Client) Topology() messaging.Topology {
	return c.topology
}

// Close releases the channel and connection. Safe on every exit path,
// including interruption mid-listen.
func (c *Client) Close() error {
	if err := c.channel.Close(); err != nil {
		c.conn.Close()
		return err
	}
	return c.conn.Close()
}
