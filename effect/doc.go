// Package effect defines the descriptor value returned by state transitions.
//
// An Effect is an immutable description of deferred work: nothing happens at
// construction time. Descriptors are built from a handful of constructors
// (Task, Subscribe, FireAndForget, CancelOf, Merge, Concatenate) and refined
// with combinators (Cancellable, Debounce, Throttle, OnError, Map) before
// being handed to a scheduler for execution.
//
// Descriptors are plain data and safe to compare, copy, and ship across
// goroutines. Execution policy — single-flight deduplication, throttling,
// debouncing, error recovery — travels with the descriptor, so the feature
// code that builds it never needs to talk to the scheduler directly.
//
// Misusing a descriptor (throttling without a cancellation key, mapping a
// kind that has no output) is a bug in the calling feature, not a runtime
// condition, and panics at construction time.
package effect
