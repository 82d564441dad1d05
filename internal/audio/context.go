package audio

import (
	"errors"
	"sync"
)

// DefaultContextLimit mirrors the typical platform cap on concurrently open
// audio processing contexts.
const DefaultContextLimit = 6

var (
	// ErrContextLimit is returned by System.Open when every context slot is in use.
	ErrContextLimit = errors.New("audio: processing context limit reached")
	// ErrContextClosed is returned when operating on a closed context.
	ErrContextClosed = errors.New("audio: processing context closed")
)

// ContextState is the lifecycle state of a processing context.
type ContextState int

const (
	ContextRunning ContextState = iota
	ContextSuspended
	ContextClosed
)

func (s ContextState) String() string {
	switch s {
	case ContextRunning:
		return "running"
	case ContextSuspended:
		return "suspended"
	case ContextClosed:
		return "closed"
	}
	return "unknown"
}

// System is the process-wide budget of audio processing contexts. A suspended
// context still holds its slot; only Close releases it.
type System struct {
	mu     sync.Mutex
	limit  int
	open   int
	opened uint64
}

// NewSystem returns a System allowing at most limit open contexts.
// A non-positive limit uses DefaultContextLimit.
func NewSystem(limit int) *System {
	if limit <= 0 {
		limit = DefaultContextLimit
	}
	return &System{limit: limit}
}

// Open allocates a running context, or fails with ErrContextLimit.
func (s *System) Open() (*Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open >= s.limit {
		return nil, ErrContextLimit
	}
	s.open++
	s.opened++
	return &Context{sys: s, id: s.opened}, nil
}

// OpenCount returns the number of contexts currently holding a slot.
func (s *System) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Limit returns the maximum number of concurrently open contexts.
func (s *System) Limit() int {
	return s.limit
}

func (s *System) release() {
	s.mu.Lock()
	s.open--
	s.mu.Unlock()
}

// Context is one audio processing graph. Analysers created from a context
// only capture while it is running.
type Context struct {
	sys   *System
	id    uint64
	mu    sync.Mutex
	state ContextState
}

// ID returns the allocation sequence number of the context.
func (c *Context) ID() uint64 { return c.id }

// State returns the current lifecycle state.
func (c *Context) State() ContextState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Resume moves a suspended context back to running.
func (c *Context) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ContextClosed {
		return ErrContextClosed
	}
	c.state = ContextRunning
	return nil
}

// Suspend pauses processing without releasing the context slot.
func (c *Context) Suspend() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ContextClosed {
		return ErrContextClosed
	}
	c.state = ContextSuspended
	return nil
}

// Close releases the context slot. Closing twice is a no-op.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.state == ContextClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = ContextClosed
	c.mu.Unlock()
	c.sys.release()
	return nil
}

func (c *Context) running() bool {
	return c.State() == ContextRunning
}
