// Package rabbitmq provides the broker plumbing for the contact sync
// harness.
//
// This package includes:
//   - ConnectionManager: dials RabbitMQ with a bounded timeout and owns the
//     connection lifecycle
//   - Channel: serializes all access to the single shared AMQP channel
//   - Typed errors for connection, topology, publish, and consume failures
//
// The harness deliberately carries no reconnection or retry logic:
// connection and topology failures are fatal, publish failures are the
// caller's to retry.
package rabbitmq
