package messaging

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// The protocol components each depend on a narrow slice of the shared
// channel. *rabbitmq.Channel satisfies all three, as does a bare
// *amqp.Channel.

// TopologyChannel is the channel surface used to declare topology.
type TopologyChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// PublishChannel is the channel surface used to publish requests.
type PublishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// ConsumeChannel is the channel surface used to receive callbacks.
type ConsumeChannel interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
}
