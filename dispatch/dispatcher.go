// Package dispatch owns the authoritative state copy and the serial loop
// between state transitions and effect execution: mutate first, notify
// touched paths, then hand the resulting descriptor to the scheduler. Effect
// outputs re-enter the loop as new actions under the same contract.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/open-loop/stateflow/config"
	"github.com/open-loop/stateflow/effect"
	"github.com/open-loop/stateflow/notify"
	"github.com/open-loop/stateflow/schedule"
)

// Reducer applies one action against the state through the given mutation
// context and describes any side effects as a descriptor. It must not keep
// the mutation past the call.
type Reducer[S, A, Env any, Key comparable] func(*Mutation[S], A) effect.Effect[A, Env, Key]

type options struct {
	logger  *zap.Logger
	derived map[notify.Path][]notify.Path
	cfg     config.Config
}

type Option func(*options)

// WithLogger routes dispatcher and scheduler logs to the given zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDerivedPaths declares, per computed path, the source paths it reads.
// The notification graph inverts the table once at construction.
func WithDerivedPaths(derived map[notify.Path][]notify.Path) Option {
	return func(o *options) { o.derived = derived }
}

// WithConfig applies a loaded runtime configuration.
func WithConfig(cfg config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// Dispatcher serializes state transitions. Exactly one loop goroutine
// mutates the state; effect bodies only ever produce actions that re-enter
// Send.
type Dispatcher[S, A, Env any, Key comparable] struct {
	reducer Reducer[S, A, Env, Key]
	env     Env
	logger  *zap.Logger

	stateMu sync.RWMutex
	state   *S

	graph *notify.Graph
	sched *schedule.Scheduler[A, Env, Key]
	mbox  *mailbox[A]

	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	pending  sync.WaitGroup
	closed   atomic.Bool
}

// New builds a dispatcher around an initial state and starts its loop.
func New[S, A, Env any, Key comparable](
	initial S,
	env Env,
	reducer Reducer[S, A, Env, Key],
	opts ...Option,
) *Dispatcher[S, A, Env, Key] {
	if reducer == nil {
		panic("dispatch: reducer must not be nil")
	}
	o := options{
		logger: zap.NewNop(),
		cfg:    config.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher[S, A, Env, Key]{
		reducer: reducer,
		env:     env,
		logger:  o.logger,
		state:   &initial,
		graph:   notify.NewGraph(o.derived),
		sched: schedule.New[A, Env, Key](
			schedule.WithLogger(o.logger),
			schedule.WithShutdownTimeout(o.cfg.Scheduler.ShutdownTimeout),
		),
		mbox:     newMailbox[A](),
		ctx:      ctx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
	}
	go d.loop()
	return d
}

// Send enqueues an action. Caller-issued sends are applied in call order;
// sends after Close are dropped.
func (d *Dispatcher[S, A, Env, Key]) Send(a A) {
	if !d.mbox.put(a) {
		d.logger.Warn("action dropped after close", zap.Any("action", a))
	}
}

// Graph exposes the notification graph for observers.
func (d *Dispatcher[S, A, Env, Key]) Graph() *notify.Graph { return d.graph }

// Scheduler exposes the underlying scheduler, mainly for probing in tests.
func (d *Dispatcher[S, A, Env, Key]) Scheduler() *schedule.Scheduler[A, Env, Key] {
	return d.sched
}

// View grants read access to the state between transitions. The callback
// must not retain the pointer.
func (d *Dispatcher[S, A, Env, Key]) View(read func(*S)) {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	read(d.state)
}

// Close stops intake, drains queued transitions, cancels in-flight units,
// and waits for effect goroutines to unwind. All late outcomes are dropped.
func (d *Dispatcher[S, A, Env, Key]) Close() {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}
	d.mbox.close()
	<-d.loopDone
	d.cancel()
	d.sched.Close()
	d.pending.Wait()
	d.logger.Info("dispatcher closed")
}

func (d *Dispatcher[S, A, Env, Key]) loop() {
	defer close(d.loopDone)
	for {
		a, ok := d.mbox.take()
		if !ok {
			return
		}
		d.process(a)
	}
}

// process runs the two phases of one transition: synchronous mutation with
// coalesced path notification, then effect dispatch. The next queued action
// is not dequeued until both phases are done.
func (d *Dispatcher[S, A, Env, Key]) process(a A) {
	d.stateMu.Lock()
	m := newMutation(d.state)
	eff := d.reducer(m, a)
	m.seal()
	// Notify under the state lock so a reader that observes the new state
	// also observes its version bumps.
	for _, p := range m.touched {
		d.graph.Write(p)
	}
	d.stateMu.Unlock()

	d.dispatch(eff)
}

func (d *Dispatcher[S, A, Env, Key]) dispatch(eff effect.Effect[A, Env, Key]) {
	switch eff.Kind() {
	case effect.KindNone:
		return
	case effect.KindCancel:
		// Cancellation pre-empts: it must not queue behind async work.
		key, _ := eff.CancelKey()
		d.sched.Cancel(key)
	default:
		d.pending.Add(1)
		go func() {
			defer d.pending.Done()
			if out := d.sched.Submit(d.ctx, eff, d.env, d.feedback); out != nil {
				d.feedback(*out)
			}
		}()
	}
}

// feedback routes an effect output back into the loop as a new action.
func (d *Dispatcher[S, A, Env, Key]) feedback(a A) {
	if !d.mbox.put(a) {
		d.logger.Debug("effect output dropped after close", zap.Any("action", a))
	}
}
