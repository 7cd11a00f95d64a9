package effect

import (
	"context"
	"time"
)

// Kind discriminates the descriptor union.
type Kind uint8

const (
	KindNone Kind = iota
	KindCancel
	KindTask
	KindSubscription
	KindFireAndForget
	KindMerge
	KindConcatenate
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindCancel:
		return "cancel"
	case KindTask:
		return "task"
	case KindSubscription:
		return "subscription"
	case KindFireAndForget:
		return "fire_and_forget"
	case KindMerge:
		return "merge"
	case KindConcatenate:
		return "concatenate"
	default:
		return "unknown"
	}
}

// Priority is carried metadata. The Go runtime exposes no thread priorities,
// so schedulers record it in logs rather than acting on it.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// Effect is an immutable description of deferred work producing outputs of
// type Out against an environment Env, cancellable under keys of type Key.
type Effect[Out, Env any, Key comparable] struct {
	kind           Kind
	key            Key
	keyed          bool
	cancelInFlight bool
	debounce       time.Duration
	throttle       time.Duration
	priority       Priority

	run     func(context.Context, Env) (Out, error)
	stream  func(context.Context, Env) (<-chan Result[Out], error)
	fire    func(context.Context, Env) error
	onError func(error) Out

	children []Effect[Out, Env, Key]
}

// None describes the absence of work.
func None[Out, Env any, Key comparable]() Effect[Out, Env, Key] {
	return Effect[Out, Env, Key]{kind: KindNone, priority: PriorityNormal}
}

// CancelOf describes a request to cancel whatever unit is in flight under key.
func CancelOf[Out, Env any, Key comparable](key Key) Effect[Out, Env, Key] {
	return Effect[Out, Env, Key]{
		kind:     KindCancel,
		key:      key,
		keyed:    true,
		priority: PriorityNormal,
	}
}

// Task describes a one-shot unit of work producing a single output.
func Task[Out, Env any, Key comparable](
	body func(context.Context, Env) (Out, error),
) Effect[Out, Env, Key] {
	if body == nil {
		panic("effect: task body must not be nil")
	}
	return Effect[Out, Env, Key]{kind: KindTask, run: body, priority: PriorityNormal}
}

// Subscribe describes a long-lived unit emitting zero or more outputs until
// its stream ends, errors, or the key is cancelled. The key is mandatory:
// a subscription with no cancellation handle would be unstoppable.
func Subscribe[Out, Env any, Key comparable](
	key Key,
	body func(context.Context, Env) (<-chan Result[Out], error),
) Effect[Out, Env, Key] {
	if body == nil {
		panic("effect: subscription body must not be nil")
	}
	return Effect[Out, Env, Key]{
		kind:     KindSubscription,
		key:      key,
		keyed:    true,
		stream:   body,
		priority: PriorityNormal,
	}
}

// FireAndForget describes an output-less side effect with no cancellation
// tracking.
func FireAndForget[Out, Env any, Key comparable](
	body func(context.Context, Env) error,
) Effect[Out, Env, Key] {
	if body == nil {
		panic("effect: fire-and-forget body must not be nil")
	}
	return Effect[Out, Env, Key]{kind: KindFireAndForget, fire: body, priority: PriorityNormal}
}

// Merge describes running children concurrently. An empty merge collapses to
// None, a singleton to its only child.
func Merge[Out, Env any, Key comparable](
	children ...Effect[Out, Env, Key],
) Effect[Out, Env, Key] {
	switch len(children) {
	case 0:
		return None[Out, Env, Key]()
	case 1:
		return children[0]
	}
	return Effect[Out, Env, Key]{kind: KindMerge, children: children, priority: PriorityNormal}
}

// Concatenate describes running children strictly in order. Same collapse
// rules as Merge. A cancelled child aborts the remaining chain.
func Concatenate[Out, Env any, Key comparable](
	children ...Effect[Out, Env, Key],
) Effect[Out, Env, Key] {
	switch len(children) {
	case 0:
		return None[Out, Env, Key]()
	case 1:
		return children[0]
	}
	return Effect[Out, Env, Key]{kind: KindConcatenate, children: children, priority: PriorityNormal}
}

// Kind reports which arm of the union this descriptor is.
func (e Effect[Out, Env, Key]) Kind() Kind { return e.kind }

// CancelKey returns the cancellation key, if one is attached.
func (e Effect[Out, Env, Key]) CancelKey() (Key, bool) { return e.key, e.keyed }

// CancelsInFlight reports whether a duplicate submission replaces the running
// unit instead of being dropped.
func (e Effect[Out, Env, Key]) CancelsInFlight() bool { return e.cancelInFlight }

// DebounceFor returns the debounce delay, zero when unset.
func (e Effect[Out, Env, Key]) DebounceFor() time.Duration { return e.debounce }

// ThrottleFor returns the throttle window, zero when unset.
func (e Effect[Out, Env, Key]) ThrottleFor() time.Duration { return e.throttle }

// Priority returns the carried priority.
func (e Effect[Out, Env, Key]) Priority() Priority { return e.priority }

// Children returns the composed children of a merge or concatenate.
func (e Effect[Out, Env, Key]) Children() []Effect[Out, Env, Key] { return e.children }

// Run executes a task body.
func (e Effect[Out, Env, Key]) Run(ctx context.Context, env Env) (Out, error) {
	return e.run(ctx, env)
}

// Stream opens a subscription body.
func (e Effect[Out, Env, Key]) Stream(ctx context.Context, env Env) (<-chan Result[Out], error) {
	return e.stream(ctx, env)
}

// Fire executes a fire-and-forget body.
func (e Effect[Out, Env, Key]) Fire(ctx context.Context, env Env) error {
	return e.fire(ctx, env)
}

// RecoverWith converts a body error into a substitute output when an OnError
// handler is attached.
func (e Effect[Out, Env, Key]) RecoverWith(err error) (Out, bool) {
	if e.onError == nil {
		var zero Out
		return zero, false
	}
	return e.onError(err), true
}
