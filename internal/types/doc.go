// Package types defines the core data types for the vigil observability
// system: log entries, metric samples, alert rules, and alert events.
//
// These types are shared between the store, the alert engine, the snapshot
// persister, and the HTTP layer. Log entries, metric samples, and alert
// events are immutable once stored; alert rules are mutable through the
// registry only.
package types
