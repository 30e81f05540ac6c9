package supervisor

import (
	"sync"
	"time"

	"github.com/eapache/queue"

	"prefork/internal/models"
)

// EventBuffer is a bounded in-memory ring of supervisor events, oldest
// dropped first. It backs the read-only admin API.
type EventBuffer struct {
	mu  sync.RWMutex
	q   *queue.Queue
	max int
}

// NewEventBuffer creates a buffer holding at most max events.
func NewEventBuffer(max int) *EventBuffer {
	if max <= 0 {
		max = 1000
	}
	return &EventBuffer{
		q:   queue.New(),
		max: max,
	}
}

// Add appends an event, evicting the oldest entries past capacity.
func (b *EventBuffer) Add(level, message, worker string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.q.Add(models.Event{
		Timestamp: time.Now().Format(time.RFC3339),
		Level:     level,
		Message:   message,
		Worker:    worker,
	})
	for b.q.Length() > b.max {
		b.q.Remove()
	}
}

// Last returns up to n of the most recent events, oldest first.
func (b *EventBuffer) Last(n int) []models.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	length := b.q.Length()
	if n <= 0 || length == 0 {
		return []models.Event{}
	}

	start := 0
	if length > n {
		start = length - n
	}

	out := make([]models.Event, 0, length-start)
	for i := start; i < length; i++ {
		out = append(out, b.q.Get(i).(models.Event))
	}
	return out
}
