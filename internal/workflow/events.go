package workflow

import (
	"sync"
	"time"

	"collage/internal/queue"
)

// Event reports a job state transition observed by a worker.
type Event struct {
	JobID     string
	State     queue.State
	ResultRef string
	Error     string
	Worker    string
	Attempt   int
	At        time.Time
}

// eventHub fans events out to subscribers. A subscriber whose buffer is full
// misses the event rather than stalling workers.
type eventHub struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	nextID  int
	dropped int64
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[int]chan Event)}
}

func (h *eventHub) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
			h.mu.Unlock()
		})
	}
}

func (h *eventHub) publish(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			h.dropped++
		}
	}
}

func (h *eventHub) droppedCount() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
