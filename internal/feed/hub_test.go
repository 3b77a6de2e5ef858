package feed

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T, opts Options) (*Hub, context.CancelFunc) {
	t.Helper()
	h := NewHub(slog.New(slog.NewTextHandler(testWriter{t}, nil)), opts)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h, cancel
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func recvEvent(t *testing.T, o *Observer) Event {
	t.Helper()
	select {
	case ev, ok := <-o.Events():
		require.True(t, ok, "feed closed unexpectedly: %v", o.Err())
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishReachesAllObservers(t *testing.T) {
	h, _ := newTestHub(t, Options{})

	a := h.Subscribe()
	b := h.Subscribe()

	h.Publish(map[string]any{"id": 1})

	for _, o := range []*Observer{a, b} {
		ev := recvEvent(t, o)
		assert.Equal(t, EventAlert, ev.Type)
		assert.NotNil(t, ev.Alert)
		assert.NotZero(t, ev.Seq)
	}
}

func TestPublishOrderPreserved(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	o := h.Subscribe()

	for i := 0; i < 10; i++ {
		h.Publish(i)
	}

	var prev uint64
	for i := 0; i < 10; i++ {
		ev := recvEvent(t, o)
		assert.Equal(t, i, ev.Alert)
		assert.Greater(t, ev.Seq, prev)
		prev = ev.Seq
	}
}

func TestSlowObserverDropped(t *testing.T) {
	h, _ := newTestHub(t, Options{QueueCap: 5})

	slow := h.Subscribe()
	fast := h.Subscribe()

	done := make(chan struct{})
	var fastCount int
	go func() {
		defer close(done)
		for range fast.Events() {
			fastCount++
			if fastCount == 100 {
				h.Unsubscribe(fast)
			}
		}
	}()

	// The slow observer never reads; it must be dropped, not block
	// publishing.
	for i := 0; i < 100; i++ {
		h.Publish(i)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fast observer starved by slow one")
	}
	assert.Equal(t, 100, fastCount)

	// Drain the slow observer: its final event is the disconnect notice
	// and its channel is closed with ErrSlowObserver.
	var last Event
	for ev := range slow.Events() {
		last = ev
	}
	assert.Equal(t, EventDisconnect, last.Type)
	assert.NotEmpty(t, last.Reason)
	assert.ErrorIs(t, slow.Err(), ErrSlowObserver)
}

func TestUnsubscribeIdempotent(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	o := h.Subscribe()

	h.Unsubscribe(o)
	h.Unsubscribe(o)

	_, ok := <-o.Events()
	assert.False(t, ok)
	assert.ErrorIs(t, o.Err(), ErrUnsubscribed)

	// Publishing after removal is a no-op, not a panic.
	h.Publish("after")
}

func TestHeartbeat(t *testing.T) {
	h, _ := newTestHub(t, Options{HeartbeatInterval: 20 * time.Millisecond})
	o := h.Subscribe()

	ev := recvEvent(t, o)
	assert.Equal(t, EventHeartbeat, ev.Type)
	assert.Nil(t, ev.Alert)
}

func TestShutdownClosesObservers(t *testing.T) {
	h, cancel := newTestHub(t, Options{})
	o := h.Subscribe()

	cancel()

	select {
	case _, ok := <-o.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("observer not closed on shutdown")
	}
	assert.ErrorIs(t, o.Err(), ErrHubClosed)

	// Late subscriptions come back already closed.
	<-h.done
	late := h.Subscribe()
	_, ok := <-late.Events()
	assert.False(t, ok)
	assert.ErrorIs(t, late.Err(), ErrHubClosed)
}

func TestConcurrentPublishers(t *testing.T) {
	h, _ := newTestHub(t, Options{QueueCap: 4096})
	o := h.Subscribe()

	const publishers = 8
	const perPublisher = 100

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				h.Publish(i)
			}
		}()
	}
	wg.Wait()

	// Sequence numbers are assigned under the same lock that delivers,
	// so a single observer sees them contiguous from 1, with no
	// reordering between concurrent publishers.
	var prev uint64
	for i := 0; i < publishers*perPublisher; i++ {
		ev := recvEvent(t, o)
		require.Equal(t, prev+1, ev.Seq, "events must arrive in publish order")
		prev = ev.Seq
	}
}

func TestStats(t *testing.T) {
	h, _ := newTestHub(t, Options{})

	a := h.Subscribe()
	h.Subscribe()
	h.Publish("x")
	h.Unsubscribe(a)

	stats := h.Stats()
	assert.Equal(t, 1, stats["connectedObservers"])
	assert.Equal(t, int64(1), stats["totalEvents"])
	assert.Equal(t, int64(2), stats["totalObservers"])
	assert.Equal(t, int64(2), stats["peakObservers"])
}
