package taskqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/skolara/skolara/internal/monitoring"
	"go.uber.org/zap"
)

// Payload is the opaque argument bag carried by a queued task. It is
// unstructured by design: task producers and handlers agree on keys.
type Payload map[string]any

// HandlerFunc executes one task. The context carries the per-task execution
// deadline; handlers doing network I/O must honor it.
type HandlerFunc func(ctx context.Context, payload Payload) error

var (
	ErrUnknownKind = errors.New("unknown_task_kind")
	ErrNilHandler  = errors.New("nil_task_handler")
)

type item struct {
	kind    Kind
	payload Payload
}

// Queue decouples slow channel-delivery work from the request path. It is an
// unbounded in-memory FIFO drained by exactly one worker goroutine, so tasks
// execute strictly in enqueue order, one at a time. Delivery is at-most-once:
// a process restart loses unexecuted tasks, a failing handler is logged and
// the worker moves on. Acceptable for non-critical notification channels.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []item
	inflight bool
	closed   bool

	handlers map[Kind]HandlerFunc
	timeout  time.Duration
	log      *zap.Logger
	metrics  *monitoring.Collector

	done chan struct{}
}

func New(timeout time.Duration, log *zap.Logger, metrics *monitoring.Collector) *Queue {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	q := &Queue{
		handlers: make(map[Kind]HandlerFunc),
		timeout:  timeout,
		log:      log.Named("taskqueue"),
		metrics:  metrics,
		done:     make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Register associates a task kind with its handler. Registration happens once
// at process start; re-registering a kind overwrites the previous handler.
func (q *Queue) Register(kind Kind, fn HandlerFunc) error {
	if !kind.Valid() {
		return ErrUnknownKind
	}
	if fn == nil {
		return ErrNilHandler
	}
	q.mu.Lock()
	q.handlers[kind] = fn
	q.mu.Unlock()
	return nil
}

// Enqueue appends a task and returns immediately. It never blocks and never
// fails; producers must not assume the task has run when it returns.
func (q *Queue) Enqueue(kind Kind, payload Payload) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.log.Warn("enqueue after shutdown, task dropped", zap.String("task", kind.String()))
		return
	}
	q.items = append(q.items, item{kind: kind, payload: payload})
	q.cond.Signal()
	q.mu.Unlock()

	q.metrics.Inc("tasks_enqueued_total", 1, map[string]string{"task": kind.String()})
}

// Start launches the single worker goroutine.
func (q *Queue) Start() {
	go q.workerLoop()
}

// Stop wakes the worker and waits for it to exit. The worker drains the
// remaining backlog before exiting; Stop gives up waiting when ctx expires,
// and any tasks unprocessed at that point are lost with the process.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain blocks until the queue is empty and the worker is idle. Intended for
// tests and graceful handover, not for request-path use.
func (q *Queue) Drain(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		q.mu.Lock()
		idle := len(q.items) == 0 && !q.inflight
		q.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *Queue) workerLoop() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		next := q.items[0]
		q.items = q.items[1:]
		fn := q.handlers[next.kind]
		q.inflight = true
		q.mu.Unlock()

		q.execute(next.kind, next.payload, fn)

		q.mu.Lock()
		q.inflight = false
		q.mu.Unlock()
	}
}

func (q *Queue) execute(kind Kind, payload Payload, fn HandlerFunc) {
	if fn == nil {
		q.metrics.Inc("tasks_dropped_total", 1, map[string]string{"task": kind.String()})
		q.log.Warn("no handler registered, task dropped", zap.String("task", kind.String()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	start := time.Now()
	err := q.invoke(ctx, payload, fn)
	q.metrics.Observe("task_duration_ms", float64(time.Since(start).Milliseconds()), map[string]string{
		"task": kind.String(),
	})
	q.metrics.Inc("tasks_executed_total", 1, map[string]string{"task": kind.String()})

	if err != nil {
		q.metrics.Inc("tasks_failed_total", 1, map[string]string{"task": kind.String()})
		q.log.Warn("task failed",
			zap.String("task", kind.String()),
			zap.Error(err),
		)
	}
}

// invoke isolates a single task execution. A panicking handler must not kill
// the worker, so it is recovered and reported like any other failure.
func (q *Queue) invoke(ctx context.Context, payload Payload, fn HandlerFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Join(err, errors.New("task handler panicked"))
			q.log.Error("task handler panic", zap.Any("panic", r))
		}
	}()
	return fn(ctx, payload)
}
