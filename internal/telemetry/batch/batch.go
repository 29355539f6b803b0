package batch

import (
	"sync"
	"time"

	"github.com/boringmetrics/boringmetrics-go/internal/clock"
)

// Mode selects how the flush timer reacts to new items.
type Mode int

const (
	// ModeInterval starts the timer on the first unflushed item and
	// leaves it alone afterwards: flush every Interval.
	ModeInterval Mode = iota
	// ModeDebounce restarts the timer on every item: flush Interval
	// after the most recent item.
	ModeDebounce
)

type Config struct {
	MaxBatchSize int
	Interval     time.Duration
	Mode         Mode
}

// DeliverFunc receives each flushed batch. It is called with the queue
// lock held so batches are handed off in flush order; it must not block
// or call back into the queue.
type DeliverFunc[T any] func(batch []T)

// Queue buffers items of one kind and flushes them either when
// MaxBatchSize is reached or when the timer fires.
type Queue[T any] struct {
	config  Config
	clock   clock.Clock
	deliver DeliverFunc[T]

	mu    sync.Mutex
	items []T
	timer *clock.Timer
	// gen invalidates timer callbacks that were already running when
	// their timer was cancelled.
	gen uint64
}

func NewQueue[T any](config Config, c clock.Clock, deliver DeliverFunc[T]) *Queue[T] {
	return &Queue[T]{
		config:  config,
		clock:   c,
		deliver: deliver,
	}
}

// Enqueue appends item. Reaching MaxBatchSize flushes within this call.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, item)

	if len(q.items) >= q.config.MaxBatchSize {
		q.flushLocked()
		return
	}

	if q.timer == nil || q.config.Mode == ModeDebounce {
		q.scheduleLocked()
	}
}

// Flush hands the buffered items to the delivery func. It is a no-op on
// an empty queue apart from cancelling a stray timer.
func (q *Queue[T]) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.flushLocked()
}

// Stop cancels the pending timer without flushing.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelTimerLocked()
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// TimerPending reports whether a flush timer is armed.
func (q *Queue[T]) TimerPending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.timer != nil
}

func (q *Queue[T]) flushLocked() {
	q.cancelTimerLocked()

	if len(q.items) == 0 {
		return
	}

	batch := q.items
	q.items = make([]T, 0, len(batch))

	q.deliver(batch)
}

func (q *Queue[T]) scheduleLocked() {
	q.cancelTimerLocked()

	gen := q.gen
	q.timer = q.clock.AfterFunc(q.config.Interval, func() {
		q.onTimer(gen)
	})
}

func (q *Queue[T]) cancelTimerLocked() {
	if q.timer == nil {
		return
	}
	q.timer.Stop()
	q.timer = nil
	q.gen++
}

func (q *Queue[T]) onTimer(gen uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if gen != q.gen {
		return
	}
	q.flushLocked()
}
