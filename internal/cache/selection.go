package cache

import (
	"context"
	"sync"
)

// State is the waveform state of the selected asset.
type State struct {
	ID      string
	Peaks   []float64
	Loading bool
	Err     error
}

// Selection loads the waveform of one active asset at a time. Selecting a new
// asset cancels the previous load, and updates for anything but the current
// selection are dropped.
type Selection struct {
	svc     *Service
	onState func(State)

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSelection returns a Selection delivering updates to onState. onState
// must not call Select or Close.
func NewSelection(svc *Service, onState func(State)) *Selection {
	return &Selection{svc: svc, onState: onState}
}

// Select makes id, loaded from ref, the active asset. An empty id clears the
// selection.
func (s *Selection) Select(id, ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if id == "" {
		s.onState(State{})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	gen := s.gen
	s.onState(State{ID: id, Loading: true})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		peaks, err := s.svc.Load(ctx, id, ref, func(p []float64) {
			s.deliver(gen, State{ID: id, Peaks: p, Loading: true})
		})
		if ctx.Err() != nil {
			return
		}
		s.deliver(gen, State{ID: id, Peaks: peaks, Err: err})
	}()
}

func (s *Selection) deliver(gen uint64, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.onState(st)
}

// Close cancels any load in flight and waits for it to finish. No updates
// are delivered afterwards.
func (s *Selection) Close() {
	s.mu.Lock()
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
}
