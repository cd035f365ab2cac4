package api

import (
	"sync"

	"github.com/gmsas95/devocr/internal/convert"
)

const subscriberBuffer = 256

// Hub fans conversion events out to the WebSocket clients of a session.
// Slow clients lose events rather than stall the pipeline.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[chan convert.Event]struct{}
	last   map[string]convert.Event
	closed bool
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[chan convert.Event]struct{}),
		last: make(map[string]convert.Event),
	}
}

// Observer publishes a session's events to the hub.
func (h *Hub) Observer() convert.Observer {
	return convert.ObserverFunc(h.Publish)
}

func (h *Hub) Publish(e convert.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	h.last[e.Session] = e
	for ch := range h.subs[e.Session] {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns the session's event stream, starting with the latest
// event if there is one, and a func to cancel the subscription.
func (h *Hub) Subscribe(sessionID string) (<-chan convert.Event, func()) {
	ch := make(chan convert.Event, subscriberBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan convert.Event]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	if e, ok := h.last[sessionID]; ok {
		ch <- e
	}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[sessionID][ch]; ok {
				delete(h.subs[sessionID], ch)
				if len(h.subs[sessionID]) == 0 {
					delete(h.subs, sessionID)
				}
				close(ch)
			}
		})
	}
}

// Forget drops the replay state of a deleted session.
func (h *Hub) Forget(sessionID string) {
	h.mu.Lock()
	delete(h.last, sessionID)
	h.mu.Unlock()
}

// Subscribers counts open subscriptions for a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, set := range h.subs {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, id)
	}
}
