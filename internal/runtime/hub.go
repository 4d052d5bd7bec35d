package runtime

import (
	"sync"

	"github.com/aretw0/strand/pkg/domain"
)

// hub relays stream events from the scheduler to one consumer.
// The queue is unbounded: publishing never blocks and never drops, and a single
// queue keeps the real order across modes.
type hub struct {
	modes map[domain.StreamMode]bool

	mu     sync.Mutex
	queue  []domain.StreamEvent
	closed bool
	notify chan struct{}
}

func newHub(modes []domain.StreamMode) *hub {
	if len(modes) == 0 {
		modes = []domain.StreamMode{domain.StreamSnapshots}
	}
	h := &hub{
		modes:  make(map[domain.StreamMode]bool, len(modes)),
		notify: make(chan struct{}, 1),
	}
	for _, m := range modes {
		h.modes[m] = true
	}
	return h
}

// wants reports whether the consumer subscribed to mode. A nil hub wants nothing.
func (h *hub) wants(mode domain.StreamMode) bool {
	return h != nil && h.modes[mode]
}

func (h *hub) publish(ev domain.StreamEvent) {
	if !h.wants(ev.Mode) {
		return
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.queue = append(h.queue, ev)
	h.mu.Unlock()

	select {
	case h.notify <- struct{}{}:
	default:
	}
}

func (h *hub) close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// next blocks until an event is available. It returns false once the hub is
// closed and drained.
func (h *hub) next() (domain.StreamEvent, bool) {
	for {
		h.mu.Lock()
		if len(h.queue) > 0 {
			ev := h.queue[0]
			h.queue[0] = domain.StreamEvent{}
			h.queue = h.queue[1:]
			h.mu.Unlock()
			return ev, true
		}
		if h.closed {
			h.mu.Unlock()
			return domain.StreamEvent{}, false
		}
		h.mu.Unlock()
		<-h.notify
	}
}
