package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_FIFO(t *testing.T) {
	m := newMailbox[int]()
	for i := 1; i <= 3; i++ {
		require.True(t, m.put(i))
	}
	for i := 1; i <= 3; i++ {
		v, ok := m.take()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestMailbox_DrainsAfterClose(t *testing.T) {
	m := newMailbox[int]()
	require.True(t, m.put(1))
	require.True(t, m.put(2))
	m.close()

	assert.False(t, m.put(3), "put after close must be rejected")

	v, ok := m.take()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = m.take()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = m.take()
	assert.False(t, ok, "drained closed mailbox reports done")
	assert.Equal(t, 0, m.length())
}

func TestMailbox_TakeWakesOnPut(t *testing.T) {
	m := newMailbox[int]()

	got := make(chan int, 1)
	go func() {
		v, ok := m.take()
		if ok {
			got <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.True(t, m.put(42))

	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("blocked take never woke up")
	}
}

func TestMailbox_TakeWakesOnClose(t *testing.T) {
	m := newMailbox[int]()

	done := make(chan bool, 1)
	go func() {
		_, ok := m.take()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	m.close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("blocked take never woke up on close")
	}
}
