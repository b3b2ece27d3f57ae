package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startRegistry[K comparable](t *testing.T, r *Registry[K]) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	t.Cleanup(func() {
		cancel()
		r.Wait()
	})
}

func waitPhase[K comparable](t *testing.T, r *Registry[K], key K, phase Phase) State {
	t.Helper()
	var last State
	require.Eventually(t, func() bool {
		s, ok := r.Poll(key)
		last = s
		return ok && s.Phase == phase
	}, 2*time.Second, 5*time.Millisecond, "key %v never reached %s", key, phase)
	return last
}

func TestRegistry_AtMostOneRunPerKey(t *testing.T) {
	release := make(chan struct{})
	var runs atomic.Int32
	r := NewRegistry("test", nil, func(ctx context.Context, key string, cell *Cell) error {
		runs.Add(1)
		cell.Store(Running(1, 0, 0))
		<-release
		cell.Store(Success(1))
		return nil
	}, nil)
	startRegistry(t, r)

	assert.True(t, r.Enqueue("a"))
	waitPhase(t, r, "a", PhaseRunning)

	assert.False(t, r.Enqueue("a"), "a running key must be rejected")
	assert.False(t, r.Enqueue("a"))

	close(release)
	waitPhase(t, r, "a", PhaseSuccess)
	assert.Equal(t, int32(1), runs.Load())

	assert.True(t, r.Enqueue("a"), "a terminal key can be queued again")
	waitPhase(t, r, "a", PhaseSuccess)
	assert.Equal(t, int32(2), runs.Load())
}

func TestRegistry_ReadyKeyIsNotQueuedTwice(t *testing.T) {
	r := NewRegistry("test", nil, func(ctx context.Context, key string, cell *Cell) error {
		cell.Store(Success(0))
		return nil
	}, nil)

	// Not started: the key stays Ready in the queue.
	assert.True(t, r.Enqueue("a"))
	assert.False(t, r.Enqueue("a"))
	assert.Equal(t, 1, r.Len())

	s, ok := r.Poll("a")
	require.True(t, ok)
	assert.Equal(t, PhaseReady, s.Phase)

	startRegistry(t, r)
	waitPhase(t, r, "a", PhaseSuccess)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_FailureModes(t *testing.T) {
	testCases := []struct {
		name    string
		run     Runner[string]
		wantErr string
	}{
		{
			name: "returned error",
			run: func(ctx context.Context, key string, cell *Cell) error {
				cell.Store(Running(3, 1, 0))
				return errors.New("boom")
			},
			wantErr: "boom",
		},
		{
			name: "panic",
			run: func(ctx context.Context, key string, cell *Cell) error {
				panic("kaput")
			},
			wantErr: "job panicked: kaput",
		},
		{
			name: "no terminal state",
			run: func(ctx context.Context, key string, cell *Cell) error {
				cell.Store(Running(3, 1, 0))
				return nil
			},
			wantErr: errNoTerminalState.Error(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRegistry("test", nil, tc.run, nil)
			startRegistry(t, r)

			require.True(t, r.Enqueue("k"))
			s := waitPhase(t, r, "k", PhaseFailed)
			assert.Equal(t, tc.wantErr, s.Err)
		})
	}
}

func TestRegistry_CategoriesRunSequentially(t *testing.T) {
	var (
		mu      sync.Mutex
		active  = map[string]int{}
		maxSeen = map[string]int{}
		total   atomic.Int32
	)
	category := func(key string) string { return key[:1] }
	r := NewRegistry("test", category, func(ctx context.Context, key string, cell *Cell) error {
		cat := category(key)
		mu.Lock()
		active[cat]++
		if active[cat] > maxSeen[cat] {
			maxSeen[cat] = active[cat]
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		active[cat]--
		mu.Unlock()
		total.Add(1)
		cell.Store(Success(0))
		return nil
	}, nil)
	startRegistry(t, r)

	keys := []string{"a1", "a2", "a3", "b1", "b2", "b3"}
	for _, k := range keys {
		require.True(t, r.Enqueue(k))
	}
	require.Eventually(t, func() bool { return total.Load() == int32(len(keys)) }, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxSeen["a"])
	assert.Equal(t, 1, maxSeen["b"])
}

func TestRegistry_FIFOWithinCategory(t *testing.T) {
	var (
		mu    sync.Mutex
		order []int
	)
	r := NewRegistry("test", nil, func(ctx context.Context, key int, cell *Cell) error {
		mu.Lock()
		order = append(order, key)
		mu.Unlock()
		cell.Store(Success(0))
		return nil
	}, nil)
	for i := 0; i < 5; i++ {
		require.True(t, r.Enqueue(i))
	}
	startRegistry(t, r)
	waitPhase(t, r, 4, PhaseSuccess)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestRegistry_RunningJobIgnoresShutdown(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	r := NewRegistry("test", nil, func(ctx context.Context, key string, cell *Cell) error {
		close(started)
		<-release
		if ctx.Err() != nil {
			return ctx.Err()
		}
		cell.Store(Success(1))
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	require.True(t, r.Enqueue("k"))
	<-started
	cancel()
	close(release)
	r.Wait()

	s, ok := r.Poll("k")
	require.True(t, ok)
	assert.Equal(t, PhaseSuccess, s.Phase)
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	finished []State
}

func (o *recordingObserver) JobStarted(ctx context.Context, kind, key string) func(State, time.Duration) {
	o.mu.Lock()
	o.started = append(o.started, kind+"/"+key)
	o.mu.Unlock()
	return func(final State, _ time.Duration) {
		o.mu.Lock()
		o.finished = append(o.finished, final)
		o.mu.Unlock()
	}
}

func TestRegistry_NotifiesObservers(t *testing.T) {
	first, second := &recordingObserver{}, &recordingObserver{}
	r := NewRegistry("demo", nil, func(ctx context.Context, key int, cell *Cell) error {
		cell.Store(PartialSuccess(2, []Failure{{URL: "u", Error: "e"}}))
		return nil
	}, MultiObserver(first, nil, second))
	startRegistry(t, r)

	require.True(t, r.Enqueue(7))
	waitPhase(t, r, 7, PhasePartialSuccess)

	for _, o := range []*recordingObserver{first, second} {
		require.Eventually(t, func() bool {
			o.mu.Lock()
			defer o.mu.Unlock()
			return len(o.finished) == 1
		}, time.Second, 5*time.Millisecond)
		o.mu.Lock()
		assert.Equal(t, []string{"demo/7"}, o.started)
		assert.Equal(t, 1, o.finished[0].Success)
		assert.Equal(t, 1, o.finished[0].Failure)
		o.mu.Unlock()
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry("test", nil, func(ctx context.Context, key string, cell *Cell) error {
		cell.Store(Success(0))
		return nil
	}, nil)
	r.Enqueue("x")
	r.Enqueue("y")

	snap := r.Snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, PhaseReady, snap["x"].Phase)

	_, ok := r.Poll("z")
	assert.False(t, ok)
}

type finalsObserver struct {
	mu     sync.Mutex
	finals map[Phase]int
}

func (o *finalsObserver) JobStarted(context.Context, string, string) func(State, time.Duration) {
	return func(final State, _ time.Duration) {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.finals[final.Phase]++
	}
}

func TestRegistry_EnqueueWhileJobsFinish(t *testing.T) {
	var runs atomic.Int32
	observer := &finalsObserver{finals: map[Phase]int{}}
	r := NewRegistry("test", nil, func(ctx context.Context, key string, cell *Cell) error {
		runs.Add(1)
		cell.Store(Success(1))
		// Work after the terminal store must not let the key be queued again.
		time.Sleep(50 * time.Microsecond)
		return nil
	}, observer)
	startRegistry(t, r)

	var accepted atomic.Int32
	deadline := time.Now().Add(300 * time.Millisecond)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				if r.Enqueue("k") {
					accepted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		s, _ := r.Poll("k")
		observer.mu.Lock()
		seen := 0
		for _, n := range observer.finals {
			seen += n
		}
		observer.mu.Unlock()
		return r.Len() == 0 && s.Phase == PhaseSuccess && int(runs.Load()) == seen && runs.Load() == accepted.Load()
	}, 2*time.Second, 5*time.Millisecond)

	observer.mu.Lock()
	defer observer.mu.Unlock()
	assert.Equal(t, map[Phase]int{PhaseSuccess: int(accepted.Load())}, observer.finals)
	assert.Positive(t, accepted.Load())
}

func TestCell_HeldTerminalStateIsPublishedOnRelease(t *testing.T) {
	c := NewCell(Ready())
	c.hold()
	c.Store(Running(2, 1, 0))
	assert.Equal(t, PhaseRunning, c.Load().Phase)

	c.Store(Success(2))
	assert.Equal(t, PhaseRunning, c.Load().Phase, "terminal state stays private while held")

	final, ok := c.release()
	require.True(t, ok)
	assert.Equal(t, Success(2), final)

	_, ok = c.release()
	assert.False(t, ok)
	c.Store(final)
	assert.Equal(t, PhaseSuccess, c.Load().Phase)
}
