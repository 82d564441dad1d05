// Package kv provides the string-keyed persistent store behind the local
// waveform cache tier and the shared waveform server.
//
// Stores are synchronous and enumerable, with an optional byte quota. A write
// that would take the store past its quota fails with ErrQuotaExceeded and
// leaves the previous value in place.
package kv

import (
	"errors"
	"sort"
	"sync"
)

// ErrQuotaExceeded is returned by Set when the write would exceed the store quota.
var ErrQuotaExceeded = errors.New("kv: storage quota exceeded")

// Store is a string-keyed, string-valued store.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(key string) (value string, ok bool, err error)
	// Set upserts key. Returns ErrQuotaExceeded when over quota.
	Set(key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
	// Keys lists every key in the store.
	Keys() ([]string, error)
}

// entrySize is the number of bytes a key/value pair counts against a quota.
func entrySize(key, value string) int64 {
	return int64(len(key) + len(value))
}

// Memory is an in-process Store. The zero value is ready to use and unbounded.
type Memory struct {
	mu    sync.Mutex
	data  map[string]string
	used  int64
	quota int64
}

// NewMemory returns a Memory store limited to quota bytes (0 = unlimited).
func NewMemory(quota int64) *Memory {
	return &Memory{data: make(map[string]string), quota: quota}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string]string)
	}
	used := m.used
	if old, ok := m.data[key]; ok {
		used -= entrySize(key, old)
	}
	used += entrySize(key, value)
	if m.quota > 0 && used > m.quota {
		return ErrQuotaExceeded
	}
	m.data[key] = value
	m.used = used
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.data[key]; ok {
		m.used -= entrySize(key, old)
		delete(m.data, key)
	}
	return nil
}

func (m *Memory) Keys() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Used reports the bytes currently counted against the quota.
func (m *Memory) Used() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}
