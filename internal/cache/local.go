// Package cache stores computed waveforms in a persistent local tier and an
// optional shared remote tier, and computes them from source on a miss.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/linuxmatters/avscope/internal/kv"
	"github.com/linuxmatters/avscope/internal/waveform"
)

const (
	// DefaultPrefix namespaces waveform entries in the local store.
	DefaultPrefix = "avscope_waveform_cache_"
	// DefaultMaxEntries caps the number of locally cached waveforms.
	DefaultMaxEntries = 50

	entryVersion = 1
)

// entry is the stored form of a local waveform.
type entry struct {
	Version   int       `json:"v"`
	Timestamp int64     `json:"timestamp"` // unix milliseconds
	Data      []float64 `json:"data"`
}

// LocalOptions configures a LocalTier.
type LocalOptions struct {
	Prefix     string           // Default: DefaultPrefix.
	MaxEntries int              // Default: DefaultMaxEntries.
	Now        func() time.Time // Default: time.Now.
	Logger     *slog.Logger
}

// LocalTier keeps waveforms in a kv.Store, evicting the oldest entries when
// more than MaxEntries are stored.
type LocalTier struct {
	store      kv.Store
	prefix     string
	maxEntries int
	now        func() time.Time
	log        *slog.Logger
}

// NewLocalTier wraps store.
func NewLocalTier(store kv.Store, opts LocalOptions) *LocalTier {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &LocalTier{
		store:      store,
		prefix:     opts.Prefix,
		maxEntries: opts.MaxEntries,
		now:        opts.Now,
		log:        opts.Logger,
	}
}

// Prefix returns the key prefix of waveform entries.
func (l *LocalTier) Prefix() string { return l.prefix }

// MaxEntries returns the entry cap.
func (l *LocalTier) MaxEntries() int { return l.maxEntries }

// Store returns the underlying store.
func (l *LocalTier) Store() kv.Store { return l.store }

func (l *LocalTier) key(id string) string { return l.prefix + id }

// Get returns the cached waveform for id. Unreadable, corrupt or
// other-version entries are misses.
func (l *LocalTier) Get(id string) ([]float64, bool) {
	raw, ok, err := l.store.Get(l.key(id))
	if err != nil {
		l.log.Warn("local cache read failed", "id", id, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	e, err := parseEntry(raw)
	if err != nil {
		l.log.Debug("ignoring local cache entry", "id", id, "error", err)
		return nil, false
	}
	return e.Data, true
}

// Put stores peaks for id, then evicts down to MaxEntries. When the store is
// full it evicts down to half of MaxEntries and retries the write once.
// Failures are logged and returned; callers may ignore them.
func (l *LocalTier) Put(id string, peaks []float64) error {
	raw, err := json.Marshal(entry{
		Version:   entryVersion,
		Timestamp: l.now().UnixMilli(),
		Data:      peaks,
	})
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	err = l.store.Set(l.key(id), string(raw))
	if errors.Is(err, kv.ErrQuotaExceeded) {
		l.log.Info("local cache full, evicting", "id", id, "target", l.maxEntries/2)
		if _, perr := l.Prune(l.maxEntries / 2); perr != nil {
			l.log.Warn("local cache prune failed", "error", perr)
		}
		err = l.store.Set(l.key(id), string(raw))
	}
	if err != nil {
		l.log.Warn("local cache write failed", "id", id, "error", err)
		return fmt.Errorf("write %s: %w", id, err)
	}

	if _, err := l.Prune(l.maxEntries); err != nil {
		l.log.Warn("local cache prune failed", "error", err)
	}
	return nil
}

// Prune removes unreadable entries and evicts the oldest entries until at
// most target remain. It returns the number of entries removed.
func (l *LocalTier) Prune(target int) (int, error) {
	keys, err := l.store.Keys()
	if err != nil {
		return 0, fmt.Errorf("list keys: %w", err)
	}

	type stamped struct {
		key string
		ts  int64
	}
	var live []stamped
	removed := 0
	for _, k := range keys {
		if !strings.HasPrefix(k, l.prefix) {
			continue
		}
		raw, ok, err := l.store.Get(k)
		if err != nil || !ok {
			continue
		}
		e, err := parseEntry(raw)
		if err != nil {
			if l.store.Remove(k) == nil {
				removed++
			}
			continue
		}
		live = append(live, stamped{k, e.Timestamp})
	}

	if len(live) <= target {
		return removed, nil
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].ts != live[j].ts {
			return live[i].ts < live[j].ts
		}
		return live[i].key < live[j].key
	})
	for _, s := range live[:len(live)-max(target, 0)] {
		if err := l.store.Remove(s.key); err != nil {
			return removed, fmt.Errorf("remove %s: %w", s.key, err)
		}
		removed++
	}
	return removed, nil
}

// Entry describes one locally cached waveform.
type Entry struct {
	ID      string
	Stored  time.Time
	Buckets int
}

// Entries lists readable entries, newest first.
func (l *LocalTier) Entries() ([]Entry, error) {
	keys, err := l.store.Keys()
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	var out []Entry
	for _, k := range keys {
		id, ok := strings.CutPrefix(k, l.prefix)
		if !ok {
			continue
		}
		raw, ok, err := l.store.Get(k)
		if err != nil || !ok {
			continue
		}
		e, err := parseEntry(raw)
		if err != nil {
			continue
		}
		out = append(out, Entry{ID: id, Stored: time.UnixMilli(e.Timestamp), Buckets: len(e.Data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stored.After(out[j].Stored) })
	return out, nil
}

func parseEntry(raw string) (entry, error) {
	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return e, err
	}
	if e.Version != entryVersion {
		return e, fmt.Errorf("entry version %d", e.Version)
	}
	if err := waveform.Validate(e.Data); err != nil {
		return e, err
	}
	return e, nil
}
