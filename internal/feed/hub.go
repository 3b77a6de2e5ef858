// Package feed provides real-time fan-out of fraud alerts to many
// concurrent observers.
//
// Every observer owns a bounded queue. Publishing never blocks: an
// observer that falls behind is dropped with a synthetic disconnect
// notice so one slow dashboard can never stall ingestion or starve the
// other observers. A periodic heartbeat, independent of alert volume,
// lets idle connections detect liveness.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbd888/nexus/internal/metrics"
)

// EventType tags feed events so observers can tell alerts from
// liveness markers.
type EventType string

const (
	EventAlert      EventType = "alert"
	EventHeartbeat  EventType = "heartbeat"
	EventDisconnect EventType = "disconnected"
)

// Event is one item on an observer's feed. Heartbeat and disconnect
// events carry no alert payload.
type Event struct {
	Type      EventType `json:"type"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Alert     any       `json:"alert,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Reasons an observer's channel was closed.
var (
	ErrSlowObserver = errors.New("feed: observer dropped, queue overflow")
	ErrHubClosed    = errors.New("feed: hub shut down")
	ErrUnsubscribed = errors.New("feed: observer unsubscribed")
)

// Observer is one subscription to the alert feed.
type Observer struct {
	ch  chan Event
	err error // set under hub lock before ch is closed; read only after ch closes
}

// Events returns the observer's feed. The channel is closed when the
// observer is unsubscribed, dropped for falling behind, or the hub
// shuts down; Err then reports which.
func (o *Observer) Events() <-chan Event { return o.ch }

// Err reports why the feed channel was closed. Only meaningful after
// Events() is closed (the close is the synchronization point).
func (o *Observer) Err() error { return o.err }

// DefaultQueueCap is the per-observer queue capacity.
const DefaultQueueCap = 256

// DefaultHeartbeatInterval is the idle liveness interval.
const DefaultHeartbeatInterval = 30 * time.Second

// Options configure the hub.
type Options struct {
	QueueCap          int
	HeartbeatInterval time.Duration
}

// Hub fans out alert events to all subscribed observers.
type Hub struct {
	mu        sync.Mutex
	observers map[*Observer]struct{}
	closed    bool

	queueCap          int
	heartbeatInterval time.Duration
	logger            *slog.Logger
	done              chan struct{} // closed when Run exits; guards late websocket upgrades

	seq uint64 // guarded by mu; assigned in the same critical section as delivery

	// Stats
	totalEvents    atomic.Int64
	totalObservers atomic.Int64
	peakObservers  atomic.Int64
	droppedSlow    atomic.Int64
}

// NewHub creates a hub with the given options; zero values fall back to
// the defaults.
func NewHub(logger *slog.Logger, opts Options) *Hub {
	if opts.QueueCap <= 0 {
		opts.QueueCap = DefaultQueueCap
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return &Hub{
		observers:         make(map[*Observer]struct{}),
		queueCap:          opts.QueueCap,
		heartbeatInterval: opts.HeartbeatInterval,
		logger:            logger,
		done:              make(chan struct{}),
	}
}

// Run drives the heartbeat ticker and shuts the hub down when the
// context is cancelled. Call in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("alert feed hub started", "heartbeat", h.heartbeatInterval)
	defer close(h.done)

	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case <-ticker.C:
			h.heartbeat()
		}
	}
}

// Subscribe registers a new observer. Returns an already-closed
// observer when the hub has shut down.
func (h *Hub) Subscribe() *Observer {
	o := &Observer{ch: make(chan Event, h.queueCap)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		o.err = ErrHubClosed
		close(o.ch)
		return o
	}
	h.observers[o] = struct{}{}
	n := len(h.observers)
	h.mu.Unlock()

	h.totalObservers.Add(1)
	if int64(n) > h.peakObservers.Load() {
		h.peakObservers.Store(int64(n))
	}
	metrics.ActiveFeedObservers.Set(float64(n))
	h.logger.Info("observer subscribed", "total", n)
	return o
}

// Unsubscribe removes an observer and closes its channel. Idempotent
// and safe to call concurrently with an in-flight publish; publishing
// to a removed observer is a silent no-op.
func (h *Hub) Unsubscribe(o *Observer) {
	h.mu.Lock()
	if _, ok := h.observers[o]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.observers, o)
	o.err = ErrUnsubscribed
	close(o.ch)
	n := len(h.observers)
	h.mu.Unlock()

	metrics.ActiveFeedObservers.Set(float64(n))
	h.logger.Info("observer unsubscribed", "total", n)
}

// Publish fans an alert out to every observer. Never blocks on a slow
// observer: a full queue drops that observer instead. Publishes are
// serialized so every observer sees the same order.
func (h *Hub) Publish(alert any) {
	h.publish(Event{
		Type:      EventAlert,
		Timestamp: time.Now(),
		Alert:     alert,
	})
	metrics.AlertsPublishedTotal.Inc()
}

func (h *Hub) heartbeat() {
	h.publish(Event{
		Type:      EventHeartbeat,
		Timestamp: time.Now(),
	})
	metrics.HeartbeatsSentTotal.Inc()
}

func (h *Hub) publish(ev Event) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	// Seq and delivery share the critical section so observers can never
	// see a later sequence number before an earlier one.
	h.seq++
	ev.Seq = h.seq
	var slow []*Observer
	for o := range h.observers {
		select {
		case o.ch <- ev:
		default:
			slow = append(slow, o)
		}
	}
	for _, o := range slow {
		h.dropLocked(o)
	}
	n := len(h.observers)
	h.mu.Unlock()

	h.totalEvents.Add(1)
	if len(slow) > 0 {
		metrics.ActiveFeedObservers.Set(float64(n))
		h.logger.Warn("dropped slow observers", "count", len(slow), "remaining", n)
	}
}

// dropLocked removes an overflowing observer, making room for a final
// disconnect notice before closing its channel. Caller holds h.mu.
func (h *Hub) dropLocked(o *Observer) {
	if _, ok := h.observers[o]; !ok {
		return
	}
	delete(h.observers, o)
	o.err = ErrSlowObserver

	// Discard the oldest queued event so the notice always fits.
	select {
	case <-o.ch:
	default:
	}
	select {
	case o.ch <- Event{
		Type:      EventDisconnect,
		Timestamp: time.Now(),
		Reason:    "queue overflow, observer too slow",
	}:
	default:
	}
	close(o.ch)

	h.droppedSlow.Add(1)
	metrics.DroppedObserversTotal.Inc()
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	h.closed = true
	for o := range h.observers {
		delete(h.observers, o)
		o.err = ErrHubClosed
		close(o.ch)
	}
	h.mu.Unlock()

	metrics.ActiveFeedObservers.Set(0)
	h.logger.Info("alert feed hub stopped")
}

// Stats returns hub statistics for the ops surface.
func (h *Hub) Stats() map[string]any {
	h.mu.Lock()
	connected := len(h.observers)
	h.mu.Unlock()

	return map[string]any{
		"connectedObservers": connected,
		"totalEvents":        h.totalEvents.Load(),
		"totalObservers":     h.totalObservers.Load(),
		"peakObservers":      h.peakObservers.Load(),
		"droppedSlow":        h.droppedSlow.Load(),
	}
}
