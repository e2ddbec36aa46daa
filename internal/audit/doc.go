// Package audit implements async dispatching of append-only audit records.
//
// # Components
//
//   - [Sink]: interface for record consumers (channel, JSON writer, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//
// Both are generic over the record type so the root package can keep its
// own entry model.
//
// # What this package must NOT do
//
//   - Filter or suppress records based on business logic.
//   - Import teamgate or any sibling internal package.
//   - Feed records back into request decisions.
package audit
