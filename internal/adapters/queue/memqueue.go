package queue

import (
	"sync"

	"github.com/wisdom-oss/service-swat-collector/internal/domain"
	"github.com/wisdom-oss/service-swat-collector/internal/ports"
)

// MemQueue is a bounded in-memory queue that preserves FIFO submission order.
type MemQueue struct {
	mu   sync.Mutex
	data []domain.Point
	cap  int
}

func NewMemQueue(capacity int) *MemQueue {
	return &MemQueue{
		data: make([]domain.Point, 0, capacity),
		cap:  capacity,
	}
}

func (q *MemQueue) Enqueue(p domain.Point) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) >= q.cap {
		return false
	}
	q.data = append(q.data, p)
	return true
}

func (q *MemQueue) DequeueBatch(max int) []domain.Point {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return nil
	}
	if max <= 0 || max > len(q.data) {
		max = len(q.data)
	}
	out := make([]domain.Point, max)
	copy(out, q.data[:max])
	q.data = append(q.data[:0], q.data[max:]...)
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

var _ ports.PointQueue = (*MemQueue)(nil)
