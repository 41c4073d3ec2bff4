package relay

import (
	"log/slog"
	"sync"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/channels"
)

// defaultQueueSize bounds the events waiting behind a busy conversation.
const defaultQueueSize = 20

// laneQueue runs events one at a time per key, in arrival order. Different
// keys run in parallel. A lane's goroutine exits once its backlog drains.
type laneQueue struct {
	handle     func(*channels.IncomingMessage)
	maxPending int
	logger     *slog.Logger

	mu      sync.Mutex
	pending map[string][]*channels.IncomingMessage
	active  map[string]bool
	wg      sync.WaitGroup
}

func newLaneQueue(maxPending int, logger *slog.Logger, handle func(*channels.IncomingMessage)) *laneQueue {
	if maxPending <= 0 {
		maxPending = defaultQueueSize
	}
	return &laneQueue{
		handle:     handle,
		maxPending: maxPending,
		logger:     logger,
		pending:    make(map[string][]*channels.IncomingMessage),
		active:     make(map[string]bool),
	}
}

// Enqueue schedules msg on the lane for key. When the lane is busy and its
// backlog is full, the oldest waiting event is dropped.
func (q *laneQueue) Enqueue(key string, msg *channels.IncomingMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.active[key] {
		if len(q.pending[key]) >= q.maxPending {
			q.pending[key] = q.pending[key][1:]
			q.logger.Warn("conversation queue full, dropped oldest", "chat_id", key)
		}
		q.pending[key] = append(q.pending[key], msg)
		return
	}

	q.active[key] = true
	q.wg.Add(1)
	go q.run(key, msg)
}

// Wait blocks until every lane has drained.
func (q *laneQueue) Wait() {
	q.wg.Wait()
}

func (q *laneQueue) run(key string, msg *channels.IncomingMessage) {
	defer q.wg.Done()

	for {
		q.handle(msg)

		q.mu.Lock()
		backlog := q.pending[key]
		if len(backlog) == 0 {
			delete(q.pending, key)
			delete(q.active, key)
			q.mu.Unlock()
			return
		}
		msg = backlog[0]
		q.pending[key] = backlog[1:]
		q.mu.Unlock()
	}
}
