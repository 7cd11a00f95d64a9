// Package schedule executes effect descriptors: it applies their
// deduplication, throttle, and debounce policy, runs their bodies on
// goroutines, tracks keyed units in a registry for cancellation, and
// converts body errors into substitute outputs or silence.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/open-loop/stateflow/effect"
	"github.com/open-loop/stateflow/shared/clock"
)

const defaultShutdownTimeout = 5 * time.Second

type options struct {
	logger          *zap.Logger
	shutdownTimeout time.Duration
}

type Option func(*options)

// WithLogger routes scheduler logs to the given zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithShutdownTimeout bounds how long Close waits for detached units.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) { o.shutdownTimeout = d }
}

// Scheduler consumes effect descriptors and runs them. It owns the task
// registry exclusively; all registry access is serialized behind its mutex.
type Scheduler[Out, Env any, Key comparable] struct {
	id              string
	logger          *zap.Logger
	reg             *registry[Key]
	detached        sync.WaitGroup
	shutdownTimeout time.Duration
}

func New[Out, Env any, Key comparable](opts ...Option) *Scheduler[Out, Env, Key] {
	o := options{
		logger:          zap.NewNop(),
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Scheduler[Out, Env, Key]{
		id:              uuid.New().String(),
		logger:          o.logger,
		reg:             newRegistry[Key](),
		shutdownTimeout: o.shutdownTimeout,
	}
}

// outcome distinguishes "produced nothing because cancelled" from "produced
// nothing, completed normally"; concatenation aborts only on the former.
type outcome[Out any] struct {
	out       *Out
	cancelled bool
}

// Submit runs a descriptor to completion against env and returns the output
// of a one-shot task, or nil when the unit was dropped, cancelled, or failed
// without a recovery handler. Subscription elements and the outputs of
// composed children are delivered through emit. Submit blocks until the
// descriptor settles; run it on its own goroutine for long-lived work.
func (s *Scheduler[Out, Env, Key]) Submit(
	ctx context.Context,
	eff effect.Effect[Out, Env, Key],
	env Env,
	emit func(Out),
) *Out {
	if emit == nil {
		emit = func(Out) {}
	}
	oc := s.submit(ctx, eff, env, emit)
	return oc.out
}

// Cancel stops the unit running under key, if any. Unknown keys are a no-op.
func (s *Scheduler[Out, Env, Key]) Cancel(key Key) {
	if s.reg.cancel(key) {
		s.logger.Debug("cancelled unit", zap.Any("key", key))
	}
}

// CancelAll stops every registered unit.
func (s *Scheduler[Out, Env, Key]) CancelAll() {
	n := s.reg.cancelAll()
	if n > 0 {
		s.logger.Info("cancelled all units", zap.Int("count", n))
	}
}

// Running reports whether a unit is in flight under key.
func (s *Scheduler[Out, Env, Key]) Running(key Key) bool {
	return s.reg.running(key)
}

// Close stops accepting submissions, cancels everything in flight, and waits
// (bounded by the shutdown timeout) for detached fire-and-forget units.
func (s *Scheduler[Out, Env, Key]) Close() {
	n := s.reg.close()
	s.logger.Info("scheduler closed", zap.String("schedulerId", s.id), zap.Int("cancelled", n))

	done := make(chan struct{})
	go func() {
		s.detached.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.shutdownTimeout):
		s.logger.Warn("shutdown timeout elapsed before detached units finished")
	}
}

func (s *Scheduler[Out, Env, Key]) submit(
	ctx context.Context,
	eff effect.Effect[Out, Env, Key],
	env Env,
	emit func(Out),
) outcome[Out] {
	switch eff.Kind() {
	case effect.KindNone, effect.KindCancel:
	default:
		if s.reg.isClosed() {
			s.logger.Info("submission dropped after close",
				zap.String("kind", eff.Kind().String()),
			)
			return outcome[Out]{}
		}
	}

	switch eff.Kind() {
	case effect.KindNone:
		return outcome[Out]{}
	case effect.KindCancel:
		key, _ := eff.CancelKey()
		s.Cancel(key)
		return outcome[Out]{}
	case effect.KindTask:
		return s.runTask(ctx, eff, env)
	case effect.KindSubscription:
		return s.runSubscription(ctx, eff, env, emit)
	case effect.KindFireAndForget:
		return s.runFireAndForget(ctx, eff, env)
	case effect.KindMerge:
		return s.runMerge(ctx, eff, env, emit)
	case effect.KindConcatenate:
		return s.runConcatenate(ctx, eff, env, emit)
	default:
		// The kind set is closed; reaching here is a bug.
		panic(fmt.Sprintf("schedule: unrecognized effect kind %v", eff.Kind()))
	}
}

func (s *Scheduler[Out, Env, Key]) runTask(
	ctx context.Context,
	eff effect.Effect[Out, Env, Key],
	env Env,
) outcome[Out] {
	key, keyed := eff.CancelKey()
	if keyed {
		taskCtx, cancel := context.WithCancel(ctx)
		ent, verdict := s.reg.admit(key, eff.CancelsInFlight(), eff.ThrottleFor(), cancel)
		if verdict != admitted {
			cancel()
			s.logger.Info("task submission dropped",
				zap.Any("key", key),
				zap.String("reason", verdict.String()),
			)
			return outcome[Out]{}
		}
		defer s.reg.release(ent)
		defer s.logTaskDone(ent)
		ctx = taskCtx
	}

	if cancelled := s.sleepDebounce(ctx, eff.DebounceFor()); cancelled {
		return outcome[Out]{cancelled: true}
	}

	out, err := s.safeRun(ctx, eff, env)
	if isCancellation(ctx, err) {
		return outcome[Out]{cancelled: true}
	}
	if err != nil {
		if recovered, ok := eff.RecoverWith(err); ok {
			return outcome[Out]{out: &recovered}
		}
		s.logger.Error("task failed without recovery handler",
			zap.Any("key", key),
			zap.String("priority", eff.Priority().String()),
			zap.Error(err),
		)
		return outcome[Out]{}
	}
	return outcome[Out]{out: &out}
}

func (s *Scheduler[Out, Env, Key]) runSubscription(
	ctx context.Context,
	eff effect.Effect[Out, Env, Key],
	env Env,
	emit func(Out),
) outcome[Out] {
	// The effect constructor guarantees a key: a subscription with no
	// cancellation handle would be unstoppable.
	key, _ := eff.CancelKey()
	subCtx, cancel := context.WithCancel(ctx)
	ent, verdict := s.reg.admit(key, eff.CancelsInFlight(), eff.ThrottleFor(), cancel)
	if verdict != admitted {
		cancel()
		s.logger.Info("subscription submission dropped",
			zap.Any("key", key),
			zap.String("reason", verdict.String()),
		)
		return outcome[Out]{}
	}
	defer s.reg.release(ent)
	defer s.logTaskDone(ent)

	if cancelled := s.sleepDebounce(subCtx, eff.DebounceFor()); cancelled {
		return outcome[Out]{cancelled: true}
	}

	src, err := eff.Stream(subCtx, env)
	if err != nil {
		if isCancellation(subCtx, err) {
			return outcome[Out]{cancelled: true}
		}
		return s.finishSubscription(eff, key, err, emit)
	}
	for {
		select {
		case <-subCtx.Done():
			return outcome[Out]{cancelled: true}
		case res, ok := <-src:
			if !ok {
				return outcome[Out]{}
			}
			if res.Err != nil {
				return s.finishSubscription(eff, key, res.Err, emit)
			}
			emit(res.Value)
		}
	}
}

// finishSubscription applies the error policy to a failed subscription: one
// final recovered output, or a logged silent stop.
func (s *Scheduler[Out, Env, Key]) finishSubscription(
	eff effect.Effect[Out, Env, Key],
	key Key,
	err error,
	emit func(Out),
) outcome[Out] {
	if recovered, ok := eff.RecoverWith(err); ok {
		emit(recovered)
		return outcome[Out]{}
	}
	s.logger.Error("subscription failed without recovery handler",
		zap.Any("key", key),
		zap.Error(err),
	)
	return outcome[Out]{}
}

func (s *Scheduler[Out, Env, Key]) runFireAndForget(
	ctx context.Context,
	eff effect.Effect[Out, Env, Key],
	env Env,
) outcome[Out] {
	s.detached.Add(1)
	go func() {
		defer s.detached.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic in fire-and-forget body", zap.Any("error", r))
			}
		}()
		if err := eff.Fire(ctx, env); err != nil && !isCancellation(ctx, err) {
			s.logger.Error("fire-and-forget failed",
				zap.String("priority", eff.Priority().String()),
				zap.Error(err),
			)
		}
	}()
	return outcome[Out]{}
}

func (s *Scheduler[Out, Env, Key]) runMerge(
	ctx context.Context,
	eff effect.Effect[Out, Env, Key],
	env Env,
	emit func(Out),
) outcome[Out] {
	children := eff.Children()
	outcomes := make([]outcome[Out], len(children))
	var wg sync.WaitGroup
	for i, child := range children {
		wg.Add(1)
		go func(i int, child effect.Effect[Out, Env, Key]) {
			defer wg.Done()
			oc := s.submit(ctx, child, env, emit)
			if oc.out != nil {
				emit(*oc.out)
			}
			outcomes[i] = oc
		}(i, child)
	}
	wg.Wait()

	// A merge counts as cancelled only when no child completed normally;
	// one failing or cancelled child never cancels its siblings.
	for _, oc := range outcomes {
		if !oc.cancelled {
			return outcome[Out]{}
		}
	}
	return outcome[Out]{cancelled: true}
}

func (s *Scheduler[Out, Env, Key]) runConcatenate(
	ctx context.Context,
	eff effect.Effect[Out, Env, Key],
	env Env,
	emit func(Out),
) outcome[Out] {
	for i, child := range eff.Children() {
		oc := s.submit(ctx, child, env, emit)
		if oc.out != nil {
			emit(*oc.out)
		}
		if oc.cancelled {
			s.logger.Debug("concatenation aborted by cancelled child",
				zap.Int("index", i),
				zap.Int("skipped", len(eff.Children())-i-1),
			)
			return outcome[Out]{cancelled: true}
		}
	}
	return outcome[Out]{}
}

// sleepDebounce waits out the debounce delay, reporting true when cancelled
// during the sleep so the body never runs.
func (s *Scheduler[Out, Env, Key]) sleepDebounce(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}

func (s *Scheduler[Out, Env, Key]) safeRun(
	ctx context.Context,
	eff effect.Effect[Out, Env, Key],
	env Env,
) (out Out, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("effect body panicked: %v", r)
		}
	}()
	return eff.Run(ctx, env)
}

func (s *Scheduler[Out, Env, Key]) logTaskDone(ent *entry[Key]) {
	s.logger.Debug("unit finished",
		zap.String("unitId", ent.id),
		zap.Any("key", ent.key),
		zap.String("span", clock.SpanSince(ent.startedAt).String()),
	)
}

func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
