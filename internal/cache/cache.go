// Package cache is the local key-value store backing the sync engine.
// Entries are namespaced, carry the write timestamp, and are tagged with the
// entity kinds they depend on; mutations invalidate by tag rather than by
// enumerating consumer call sites. Freshness is judged by the reader against
// its own window, never by background eviction: a stale entry is still
// returned so callers can serve it while revalidating.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"rotcunit/internal/metrics"
)

// Entry wraps a cached payload with its write time.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// FreshWithin reports whether the entry was written inside the window.
func (e *Entry) FreshWithin(window time.Duration, now time.Time) bool {
	if e == nil {
		return false
	}
	return now.Sub(e.Timestamp) < window
}

// Decode unmarshals the payload into out.
func (e *Entry) Decode(out any) error {
	return json.Unmarshal(e.Data, out)
}

// Store is the cache contract shared by the memory and Redis backends.
type Store interface {
	// Get returns the stored entry or nil when absent. Staleness is the
	// caller's judgment; Get never withholds an entry for age.
	Get(ctx context.Context, namespace, key string) (*Entry, error)
	// Put stores data (JSON-encoded) with a fresh timestamp and the given
	// dependency tags, replacing any previous entry and its tag links.
	Put(ctx context.Context, namespace, key string, data any, tags ...string) error
	// Invalidate removes a single entry.
	Invalidate(ctx context.Context, namespace, key string) error
	// InvalidateTag removes every entry tagged with tag.
	InvalidateTag(ctx context.Context, tag string) error
	// Clear drops all entries.
	Clear(ctx context.Context) error
}

func fullKey(namespace, key string) string {
	return namespace + "/" + key
}

// Memory is a map-backed Store for single-process use.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	byTag   map[string]map[string]struct{}
	tagsOf  map[string][]string
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]Entry),
		byTag:   make(map[string]map[string]struct{}),
		tagsOf:  make(map[string][]string),
		now:     time.Now,
	}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, namespace, key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[fullKey(namespace, key)]
	if !ok {
		metrics.CacheMisses.WithLabelValues(namespace).Inc()
		return nil, nil
	}
	metrics.CacheHits.WithLabelValues(namespace).Inc()
	cp := e
	return &cp, nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, namespace, key string, data any, tags ...string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	fk := fullKey(namespace, key)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.unlink(fk)
	m.entries[fk] = Entry{Data: raw, Timestamp: m.now()}
	for _, tag := range tags {
		set, ok := m.byTag[tag]
		if !ok {
			set = make(map[string]struct{})
			m.byTag[tag] = set
		}
		set[fk] = struct{}{}
	}
	m.tagsOf[fk] = tags
	return nil
}

// Invalidate implements Store.
func (m *Memory) Invalidate(_ context.Context, namespace, key string) error {
	fk := fullKey(namespace, key)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unlink(fk)
	delete(m.entries, fk)
	return nil
}

// InvalidateTag implements Store.
func (m *Memory) InvalidateTag(_ context.Context, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for fk := range m.byTag[tag] {
		m.unlink(fk)
		delete(m.entries, fk)
	}
	return nil
}

// Clear implements Store.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]Entry)
	m.byTag = make(map[string]map[string]struct{})
	m.tagsOf = make(map[string][]string)
	return nil
}

// unlink removes fk from every tag set it belongs to. Caller holds mu.
func (m *Memory) unlink(fk string) {
	for _, tag := range m.tagsOf[fk] {
		delete(m.byTag[tag], fk)
		if len(m.byTag[tag]) == 0 {
			delete(m.byTag, tag)
		}
	}
	delete(m.tagsOf, fk)
}
