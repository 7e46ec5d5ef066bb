// Package contracts defines the wire-level message types for the contact
// sync protocol.
//
// Two message types cross the broker:
//   - SyncRequest: a contact mutation (create_or_update or delete) published
//     to the sync queue for the device-side agent
//   - SyncCallback: the agent's per-request result, published back to the
//     callback queue
//
// Correlation between the two is by value: a callback carries the
// originating request's id as ContactID. Field names are fixed by the
// device-side contract and must not change.
package contracts
