package server

import (
	"sync"

	"github.com/pokemap/maptracker/pkg/streaming"
)

// Notice levels.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

const defaultNoticeLimit = 32

// Notices is a bounded FIFO of user-facing notices waiting to be shown.
// When full, the oldest notice is dropped.
type Notices struct {
	mu    sync.Mutex
	items []streaming.NoticePayload
	limit int
}

// NewNotices creates an empty queue holding at most limit notices.
func NewNotices(limit int) *Notices {
	if limit <= 0 {
		limit = defaultNoticeLimit
	}
	return &Notices{limit: limit}
}

// Push appends notices, dropping the oldest beyond the limit.
func (q *Notices) Push(items ...streaming.NoticePayload) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	if over := len(q.items) - q.limit; over > 0 {
		q.items = append(q.items[:0:0], q.items[over:]...)
	}
}

// Len returns the number of pending notices.
func (q *Notices) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain returns all pending notices and empties the queue.
func (q *Notices) Drain() []streaming.NoticePayload {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := q.items
	q.items = nil
	if result == nil {
		result = []streaming.NoticePayload{}
	}
	return result
}
