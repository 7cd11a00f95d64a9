package dispatch

import (
	"sync"

	"github.com/eapache/queue"
)

// mailbox is the unbounded FIFO feeding the dispatcher loop. It is unbounded
// on purpose: outputs of running effects re-enter the loop as new actions,
// and a bounded buffer could wedge the loop against its own feedback.
type mailbox[T any] struct {
	mu       sync.Mutex
	nonEmpty *sync.Cond
	q        *queue.Queue
	closed   bool
}

func newMailbox[T any]() *mailbox[T] {
	m := &mailbox[T]{q: queue.New()}
	m.nonEmpty = sync.NewCond(&m.mu)
	return m
}

// put enqueues v, reporting false once the mailbox is closed.
func (m *mailbox[T]) put(v T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.q.Add(v)
	m.nonEmpty.Signal()
	return true
}

// take blocks until an element is available. After close it keeps draining
// whatever was enqueued, then reports false.
func (m *mailbox[T]) take() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.q.Length() == 0 && !m.closed {
		m.nonEmpty.Wait()
	}
	if m.q.Length() == 0 {
		var zero T
		return zero, false
	}
	return m.q.Remove().(T), true
}

func (m *mailbox[T]) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.nonEmpty.Broadcast()
}

func (m *mailbox[T]) length() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q.Length()
}
