package notify

import (
	"sync"

	"audittrail/internal/audit/models"
)

// Queue is a bounded, thread-safe ring of notifications. When full, the oldest
// notification is dropped to make room, so producers never block.
type Queue struct {
	mu       sync.Mutex
	items    []models.Notification
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int

	dropped int64
}

// NewQueue creates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{
		items:    make([]models.Notification, capacity),
		capacity: capacity,
	}
}

// Enqueue adds n, dropping the oldest item if the queue is full.
// Reports whether something was dropped.
func (q *Queue) Enqueue(n models.Notification) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := false
	if q.count >= q.capacity {
		q.tail = (q.tail + 1) % q.capacity
		q.count--
		q.dropped++
		dropped = true
	}

	q.items[q.head] = n
	q.head = (q.head + 1) % q.capacity
	q.count++
	return dropped
}

// DequeueBatch removes up to max items, oldest first.
func (q *Queue) DequeueBatch(max int) []models.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil
	}
	if max > q.count {
		max = q.count
	}

	out := make([]models.Notification, max)
	for i := 0; i < max; i++ {
		out[i] = q.items[q.tail]
		q.items[q.tail] = models.Notification{}
		q.tail = (q.tail + 1) % q.capacity
	}
	q.count -= max
	return out
}

// Len returns the number of queued notifications.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Dropped returns how many notifications were dropped since creation.
func (q *Queue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
