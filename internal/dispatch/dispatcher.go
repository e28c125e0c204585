package dispatch

import (
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/sunnyswag/RTCStartupDemo/internal/callerr"
)

type Options struct {
	Logger *slog.Logger
}

// Dispatcher runs events on per-key FIFO queues. Events sharing a key never
// run concurrently and run in submission order; different keys proceed in
// parallel. A worker goroutine exists only while its key has pending events.
type Dispatcher struct {
	log *slog.Logger

	mu     sync.Mutex
	queues map[string]*queue
	closed bool
	wg     sync.WaitGroup
}

type queue struct {
	events []func()
}

func New(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		log:    logger.With("component", "dispatch"),
		queues: make(map[string]*queue),
	}
}

// Submit enqueues fn for key. It never blocks.
func (d *Dispatcher) Submit(key string, fn func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return callerr.NewError("submit event", callerr.ErrClosed)
	}

	if q, ok := d.queues[key]; ok {
		q.events = append(q.events, fn)
		return nil
	}

	q := &queue{events: []func(){fn}}
	d.queues[key] = q
	d.wg.Add(1)
	go d.work(key, q)
	return nil
}

// Sync blocks until every event submitted for key before the call has run.
func (d *Dispatcher) Sync(key string) error {
	done := make(chan struct{})
	if err := d.Submit(key, func() { close(done) }); err != nil {
		return err
	}
	<-done
	return nil
}

// Close stops accepting events, lets the queued ones finish and waits for
// every worker to exit.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) work(key string, q *queue) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		if len(q.events) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		fn := q.events[0]
		q.events[0] = nil
		q.events = q.events[1:]
		d.mu.Unlock()

		d.run(key, fn)
	}
}

func (d *Dispatcher) run(key string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("event panicked", "key", key, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}
