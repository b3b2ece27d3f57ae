package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Runner executes one job. It reports progress through cell and must leave a
// terminal state in it, or return an error which becomes Failed.
type Runner[K comparable] func(ctx context.Context, key K, cell *Cell) error

// Observer is told about every run. The returned func is called once with
// the final state.
type Observer interface {
	JobStarted(ctx context.Context, kind, key string) (finished func(final State, elapsed time.Duration))
}

type multiObserver []Observer

// MultiObserver fans out notifications, skipping nil observers.
func MultiObserver(observers ...Observer) Observer {
	var m multiObserver
	for _, o := range observers {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

func (m multiObserver) JobStarted(ctx context.Context, kind, key string) func(State, time.Duration) {
	finishers := make([]func(State, time.Duration), 0, len(m))
	for _, o := range m {
		finishers = append(finishers, o.JobStarted(ctx, kind, key))
	}
	return func(final State, elapsed time.Duration) {
		for _, f := range finishers {
			if f != nil {
				f(final, elapsed)
			}
		}
	}
}

var errNoTerminalState = errors.New("job returned without reaching a terminal state")

// Registry tracks one State Cell per key and runs queued keys. Keys are
// grouped in categories; each category has its own FIFO drained by a single
// goroutine, so jobs of one category never overlap.
type Registry[K comparable] struct {
	kind     string
	category func(K) string
	run      Runner[K]
	observer Observer

	mu     sync.RWMutex
	cells  map[K]*Cell
	queues map[string]*queue[K]

	ctx context.Context
	wg  sync.WaitGroup
}

// NewRegistry builds a registry. category may be nil for a single category.
func NewRegistry[K comparable](kind string, category func(K) string, run Runner[K], observer Observer) *Registry[K] {
	if category == nil {
		category = func(K) string { return kind }
	}
	return &Registry[K]{
		kind:     kind,
		category: category,
		run:      run,
		observer: observer,
		cells:    make(map[K]*Cell),
		queues:   make(map[string]*queue[K]),
	}
}

// Kind names the jobs this registry runs.
func (r *Registry[K]) Kind() string { return r.kind }

// Start launches the category workers. Workers stop taking new jobs once ctx
// is done; a job already running is finished first.
func (r *Registry[K]) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx != nil {
		return
	}
	r.ctx = ctx
	for name, q := range r.queues {
		r.spawn(name, q)
	}
}

// Wait blocks until every worker has returned after Start's ctx is done.
func (r *Registry[K]) Wait() {
	r.wg.Wait()
}

// Enqueue queues key unless a job for it is pending or running. It returns
// whether the key was queued.
func (r *Registry[K]) Enqueue(key K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cell, ok := r.cells[key]; ok {
		if !cell.Load().Phase.Terminal() {
			return false
		}
		// The previous run is over, so the worker no longer writes this cell.
		cell.Store(Ready())
	} else {
		r.cells[key] = NewCell(Ready())
	}

	name := r.category(key)
	q, ok := r.queues[name]
	if !ok {
		q = newQueue[K]()
		r.queues[name] = q
		if r.ctx != nil {
			r.spawn(name, q)
		}
	}
	q.push(key)
	return true
}

// Poll returns the last state of key.
func (r *Registry[K]) Poll(key K) (State, bool) {
	r.mu.RLock()
	cell, ok := r.cells[key]
	r.mu.RUnlock()
	if !ok {
		return State{}, false
	}
	return cell.Load(), true
}

// Snapshot returns the state of every known key.
func (r *Registry[K]) Snapshot() map[K]State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[K]State, len(r.cells))
	for k, cell := range r.cells {
		out[k] = cell.Load()
	}
	return out
}

// spawn must be called with r.mu held.
func (r *Registry[K]) spawn(name string, q *queue[K]) {
	r.wg.Add(1)
	go r.work(name, q)
}

func (r *Registry[K]) work(name string, q *queue[K]) {
	defer r.wg.Done()
	log.Debugf("%s worker for category %q started", r.kind, name)
	for {
		if r.ctx.Err() != nil {
			log.Debugf("%s worker for category %q stopped", r.kind, name)
			return
		}
		key, ok := q.pop()
		if !ok {
			select {
			case <-r.ctx.Done():
			case <-q.wake:
			}
			continue
		}
		r.execute(key)
	}
}

func (r *Registry[K]) execute(key K) {
	r.mu.RLock()
	cell := r.cells[key]
	r.mu.RUnlock()

	// Jobs are never cancelled mid-flight, shutdown only stops dequeuing.
	ctx := context.WithoutCancel(r.ctx)
	keyStr := fmt.Sprint(key)
	logger := log.WithFields(log.Fields{"kind": r.kind, "key": keyStr})

	var finished func(State, time.Duration)
	if r.observer != nil {
		finished = r.observer.JobStarted(ctx, r.kind, keyStr)
	}
	started := time.Now()
	logger.Info("Job started")

	cell.hold()
	err := r.safeRun(ctx, key, cell)
	final := r.finish(cell, err)
	elapsed := time.Since(started)
	if final.Phase == PhaseFailed {
		logger.WithField("elapsed", elapsed).Errorf("Job failed: %s", final.Err)
	} else {
		logger.WithFields(log.Fields{
			"state":   final.Phase,
			"fetched": final.Fetched,
			"total":   final.Total,
			"failure": final.Failure,
			"elapsed": elapsed,
		}).Info("Job finished")
	}
	if finished != nil {
		finished(final, elapsed)
	}
}

// finish publishes the outcome of a run. It holds r.mu so Enqueue sees
// either the live run or its final state, never a state in between.
func (r *Registry[K]) finish(cell *Cell, err error) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	final, ok := cell.release()
	switch {
	case err != nil:
		final = Failed(err)
	case !ok:
		final = Failed(errNoTerminalState)
	}
	cell.Store(final)
	return final
}

func (r *Registry[K]) safeRun(ctx context.Context, key K, cell *Cell) (err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Errorf("%s job %v panicked: %v\n%s", r.kind, key, p, debug.Stack())
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return r.run(ctx, key, cell)
}

// queue is an unbounded FIFO with a wake signal for its single consumer.
type queue[K comparable] struct {
	mu    sync.Mutex
	items []K
	wake  chan struct{}
}

func newQueue[K comparable]() *queue[K] {
	return &queue[K]{wake: make(chan struct{}, 1)}
}

func (q *queue[K]) push(k K) {
	q.mu.Lock()
	q.items = append(q.items, k)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *queue[K]) pop() (K, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero K
	if len(q.items) == 0 {
		return zero, false
	}
	k := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return k, true
}

// Len reports queued keys across all categories.
func (r *Registry[K]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, q := range r.queues {
		q.mu.Lock()
		n += len(q.items)
		q.mu.Unlock()
	}
	return n
}
