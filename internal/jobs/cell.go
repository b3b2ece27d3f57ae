package jobs

import "sync/atomic"

// Cell holds the latest State of one job key. It has exactly one writer
// (the worker running the job) and any number of readers; neither side
// ever blocks the other.
//
// While the registry runs a job the cell is held: a terminal state stored
// by the runner is kept aside and only published by the registry once the
// run has returned, so a key never looks finished while its run is live.
type Cell struct {
	v       atomic.Pointer[State]
	held    atomic.Bool
	pending atomic.Pointer[State]
}

func NewCell(s State) *Cell {
	c := &Cell{}
	c.Store(s)
	return c
}

// Load returns the last published state.
func (c *Cell) Load() State {
	return *c.v.Load()
}

// Store replaces the state. Callers must not mutate a stored Failures slice.
func (c *Cell) Store(s State) {
	if s.Phase.Terminal() && c.held.Load() {
		c.pending.Store(&s)
		return
	}
	c.v.Store(&s)
}

func (c *Cell) hold() {
	c.pending.Store(nil)
	c.held.Store(true)
}

// release ends a run and returns the terminal state the runner left, if any.
// The caller publishes the final state.
func (c *Cell) release() (State, bool) {
	c.held.Store(false)
	p := c.pending.Swap(nil)
	if p == nil {
		return State{}, false
	}
	return *p, true
}
