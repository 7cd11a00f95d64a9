package effect

import (
	"context"
	"fmt"
	"time"
)

// Cancellable attaches a cancellation key. At most one unit of work runs
// under a key at a time: a duplicate submission is dropped when
// cancelInFlight is false, or replaces the running unit when true.
// Applied to a merge or concatenate it rewrites every leaf; leaves that
// cannot carry a key (none, cancel, fire-and-forget) pass through unchanged.
func (e Effect[Out, Env, Key]) Cancellable(key Key, cancelInFlight bool) Effect[Out, Env, Key] {
	switch e.kind {
	case KindTask, KindSubscription:
		e.key = key
		e.keyed = true
		e.cancelInFlight = cancelInFlight
		return e
	case KindMerge, KindConcatenate:
		return e.rewriteLeaves(func(leaf Effect[Out, Env, Key]) Effect[Out, Env, Key] {
			return leaf.Cancellable(key, cancelInFlight)
		})
	default:
		return e
	}
}

// Debounce delays the body by d; cancellation during the delay prevents the
// body from ever running.
func (e Effect[Out, Env, Key]) Debounce(d time.Duration) Effect[Out, Env, Key] {
	switch e.kind {
	case KindTask, KindSubscription:
		e.debounce = d
		return e
	case KindMerge, KindConcatenate:
		return e.rewriteLeaves(func(leaf Effect[Out, Env, Key]) Effect[Out, Env, Key] {
			return leaf.Debounce(d)
		})
	default:
		return e
	}
}

// Throttle drops submissions arriving within d of the last start under the
// same key. Panics if no key is set: throttle state is tracked per key.
func (e Effect[Out, Env, Key]) Throttle(d time.Duration) Effect[Out, Env, Key] {
	switch e.kind {
	case KindTask, KindSubscription:
		if !e.keyed {
			panic("effect: throttle requires a cancellation key")
		}
		e.throttle = d
		return e
	case KindMerge, KindConcatenate:
		return e.rewriteLeaves(func(leaf Effect[Out, Env, Key]) Effect[Out, Env, Key] {
			return leaf.Throttle(d)
		})
	default:
		return e
	}
}

// WithPriority attaches scheduling priority metadata.
func (e Effect[Out, Env, Key]) WithPriority(p Priority) Effect[Out, Env, Key] {
	switch e.kind {
	case KindMerge, KindConcatenate:
		return e.rewriteLeaves(func(leaf Effect[Out, Env, Key]) Effect[Out, Env, Key] {
			return leaf.WithPriority(p)
		})
	default:
		e.priority = p
		return e
	}
}

// OnError attaches a recovery handler converting a body error into a
// substitute output. Without one, errors are logged and produce nothing.
// Cancellation is never routed through the handler.
func (e Effect[Out, Env, Key]) OnError(handle func(error) Out) Effect[Out, Env, Key] {
	switch e.kind {
	case KindTask, KindSubscription:
		e.onError = handle
		return e
	case KindMerge, KindConcatenate:
		return e.rewriteLeaves(func(leaf Effect[Out, Env, Key]) Effect[Out, Env, Key] {
			return leaf.OnError(handle)
		})
	default:
		return e
	}
}

func (e Effect[Out, Env, Key]) rewriteLeaves(
	rewrite func(Effect[Out, Env, Key]) Effect[Out, Env, Key],
) Effect[Out, Env, Key] {
	rewritten := make([]Effect[Out, Env, Key], len(e.children))
	for i, child := range e.children {
		rewritten[i] = rewrite(child)
	}
	e.children = rewritten
	return e
}

// Map rewrites the eventual output of a descriptor. Applying it directly to
// a kind that can never produce an output (none, cancel, fire-and-forget) is
// a programmer error and panics. Mapping composes: Map(Map(e, f), g) behaves
// as Map(e, g∘f).
func Map[Out, New, Env any, Key comparable](
	e Effect[Out, Env, Key],
	f func(Out) New,
) Effect[New, Env, Key] {
	switch e.kind {
	case KindNone, KindCancel, KindFireAndForget:
		panic(fmt.Sprintf("effect: cannot map output of %s descriptor", e.kind))
	}
	return retype(e, f)
}

// retype rebuilds a descriptor with a new output type. Output-less kinds
// convert trivially, which lets compositions mix mapped tasks with
// fire-and-forget siblings.
func retype[Out, New, Env any, Key comparable](
	e Effect[Out, Env, Key],
	f func(Out) New,
) Effect[New, Env, Key] {
	mapped := Effect[New, Env, Key]{
		kind:           e.kind,
		key:            e.key,
		keyed:          e.keyed,
		cancelInFlight: e.cancelInFlight,
		debounce:       e.debounce,
		throttle:       e.throttle,
		priority:       e.priority,
		fire:           e.fire,
	}
	if e.run != nil {
		run := e.run
		mapped.run = func(ctx context.Context, env Env) (New, error) {
			out, err := run(ctx, env)
			if err != nil {
				var zero New
				return zero, err
			}
			return f(out), nil
		}
	}
	if e.stream != nil {
		stream := e.stream
		mapped.stream = func(ctx context.Context, env Env) (<-chan Result[New], error) {
			src, err := stream(ctx, env)
			if err != nil {
				return nil, err
			}
			dst := make(chan Result[New])
			go func() {
				defer close(dst)
				for res := range src {
					var out Result[New]
					if res.Err != nil {
						out = Fail[New](res.Err)
					} else {
						out = Ok(f(res.Value))
					}
					select {
					case <-ctx.Done():
						return
					case dst <- out:
					}
				}
			}()
			return dst, nil
		}
	}
	if e.onError != nil {
		onError := e.onError
		mapped.onError = func(err error) New { return f(onError(err)) }
	}
	if len(e.children) > 0 {
		mapped.children = make([]Effect[New, Env, Key], len(e.children))
		for i, child := range e.children {
			mapped.children[i] = retype(child, f)
		}
	}
	return mapped
}
