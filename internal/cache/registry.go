package cache

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/linuxmatters/avscope/internal/kv"
)

// Registry tracks which asset IDs have a locally cached waveform, for
// display only. It is never consulted on the Get/Put path.
type Registry struct {
	store  kv.Store
	prefix string
	log    *slog.Logger

	once sync.Once
	mu   sync.RWMutex
	ids  map[string]struct{}
}

// NewRegistry returns a registry over the keys of store that carry prefix.
func NewRegistry(store kv.Store, prefix string, log *slog.Logger) *Registry {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if log == nil {
		log = slog.Default()
	}
	return &Registry{store: store, prefix: prefix, log: log, ids: make(map[string]struct{})}
}

// Initialize enumerates the store once and returns the known IDs. Later
// calls return the current set without rescanning.
func (r *Registry) Initialize() []string {
	r.once.Do(func() {
		keys, err := r.store.Keys()
		if err != nil {
			r.log.Warn("cache registry scan failed", "error", err)
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, k := range keys {
			if id, ok := strings.CutPrefix(k, r.prefix); ok && id != "" {
				r.ids[id] = struct{}{}
			}
		}
	})
	return r.IDs()
}

// Has reports whether id is known to be cached.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ids[id]
	return ok
}

// Add records id. Adding a known ID is a no-op.
func (r *Registry) Add(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[id] = struct{}{}
}

// IDs returns the known IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of known IDs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}
