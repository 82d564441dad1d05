package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/linuxmatters/avscope/internal/analysis"
	"github.com/linuxmatters/avscope/internal/cache"
)

// WaveformStateMsg carries a waveform selection update.
type WaveformStateMsg struct {
	State cache.State
}

// SnapshotMsg carries one published analysis snapshot.
type SnapshotMsg struct {
	Snapshot analysis.Snapshot
}

// Mailbox hands values from background goroutines to the program. Only the
// most recent value is kept: a slow reader skips superseded updates instead
// of stalling the sender. Post never blocks, so it is safe to call from
// callbacks that run under another component's lock.
type Mailbox[T any] struct {
	mu    sync.Mutex
	v     T
	ready chan struct{}
}

// NewMailbox returns an empty Mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{ready: make(chan struct{}, 1)}
}

// Post replaces the pending value.
func (m *Mailbox[T]) Post(v T) {
	m.mu.Lock()
	m.v = v
	m.mu.Unlock()
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Take blocks until a value has been posted since the last Take.
func (m *Mailbox[T]) Take() T {
	<-m.ready
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.v
}

func waitForState(m *Mailbox[cache.State]) tea.Cmd {
	return func() tea.Msg {
		return WaveformStateMsg{State: m.Take()}
	}
}

func waitForSnapshot(m *Mailbox[analysis.Snapshot]) tea.Cmd {
	return func() tea.Msg {
		return SnapshotMsg{Snapshot: m.Take()}
	}
}

// run calls fn off the event loop. Work that ends up calling back into
// Mailbox.Post through another lock must not run inside Update.
func run(fn func()) tea.Cmd {
	if fn == nil {
		return nil
	}
	return func() tea.Msg {
		fn()
		return nil
	}
}
