// Package messaging implements the contact sync request/callback protocol.
//
// This package provides the protocol core:
//   - TopologyManager: declares the durable topic exchange, the request and
//     callback queues, and their bindings (idempotent)
//   - RequestPublisher: publishes SyncRequest messages as persistent JSON
//   - CallbackListener: consumes SyncCallback messages with manual
//     acknowledgment for a hard wall-clock window
//   - SessionDriver: orchestrates publish-then-listen scenarios
//
// Components share one broker channel per session; the channel serializes
// access internally, and the components never use it from more than one
// goroutine at a time.
package messaging
