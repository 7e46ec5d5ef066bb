package rabbitmq

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel wraps the single AMQP channel a harness session shares between
// topology declaration, publishing, and consuming. amqp091 channels are not
// safe for concurrent use, so every operation takes the channel mutex.
//
// Deliveries handed out by Consume are acknowledged through the delivery's
// own Acknowledger; within a listening window the listener is the channel's
// only user.
type Channel struct {
	mu     sync.Mutex
	ch     *amqp.Channel
	closed bool
}

func newChannel(ch *amqp.Channel) *Channel {
	return &Channel{ch: ch}
}

// ExchangeDeclare declares an exchange on the shared channel.
func (c *Channel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}
	return c.ch.ExchangeDeclare(name, kind, durable, autoDelete, internal, noWait, args)
}

// QueueDeclare declares a queue on the shared channel.
func (c *Channel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return amqp.Queue{}, ErrChannelClosed
	}
	return c.ch.QueueDeclare(name, durable, autoDelete, exclusive, noWait, args)
}

// QueueBind binds a queue to an exchange on the shared channel.
func (c *Channel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}
	return c.ch.QueueBind(name, key, exchange, noWait, args)
}

// PublishWithContext publishes a message on the shared channel.
func (c *Channel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}
	return c.ch.PublishWithContext(ctx, exchange, key, mandatory, immediate, msg)
}

// Consume starts delivering messages from a queue on the shared channel.
func (c *Channel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrChannelClosed
	}
	return c.ch.Consume(queue, consumer, autoAck, exclusive, noLocal, noWait, args)
}

// Cancel stops the consumer identified by tag. Outstanding deliveries can
// still be acknowledged afterward.
func (c *Channel) Cancel(consumer string, noWait bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}
	return c.ch.Cancel(consumer, noWait)
}

// Close closes the channel. Safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.ch.Close()
}
