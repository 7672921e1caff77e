package kv

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value    []byte
	expireAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !e.expireAt.After(now)
}

// MemoryStore implements Store in process memory. It mirrors the Redis
// semantics closely enough for tests and single-process fallback use:
// TTL expiry, counter increments, and all-or-nothing transactions under
// one lock.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	nowFn   func() time.Time
}

// NewMemoryStore constructs a MemoryStore. A nil nowFn defaults to time.Now.
func NewMemoryStore(nowFn func() time.Time) *MemoryStore {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		nowFn:   nowFn,
	}
}

// Get returns the value for key or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || entry.expired(s.nowFn()) {
		delete(s.entries, key)
		return nil, ErrNotFound
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

// Set writes a value without expiry.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(key, value, 0)
	return nil
}

// SetTTL writes a value with an expiry.
func (s *MemoryStore) SetTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(key, value, ttl)
	return nil
}

// Delete removes a key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Exists reports whether the key is present and unexpired.
func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if entry.expired(s.nowFn()) {
		delete(s.entries, key)
		return false, nil
	}
	return true, nil
}

// MGet batch-fetches values; absent keys yield nil entries.
func (s *MemoryStore) MGet(_ context.Context, keys []string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn()
	out := make([][]byte, len(keys))
	for i, key := range keys {
		entry, ok := s.entries[key]
		if !ok || entry.expired(now) {
			continue
		}
		val := make([]byte, len(entry.value))
		copy(val, entry.value)
		out[i] = val
	}
	return out, nil
}

// ScanPrefix returns all unexpired keys under the given prefix, sorted.
func (s *MemoryStore) ScanPrefix(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn()
	var keys []string
	for key, entry := range s.entries {
		if entry.expired(now) {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Txn applies all operations under one lock.
func (s *MemoryStore) Txn(_ context.Context, ops []Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range ops {
		switch op.kind {
		case opSet:
			s.set(op.key, op.value, 0)
		case opSetTTL:
			s.set(op.key, op.value, op.ttl)
		case opDelete:
			delete(s.entries, op.key)
		case opIncr:
			s.incr(op.key)
		}
	}
	return nil
}

// Close is a no-op for the in-memory backend.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) set(key string, value []byte, ttl time.Duration) {
	stored := make([]byte, len(value))
	copy(stored, value)
	entry := memoryEntry{value: stored}
	if ttl > 0 {
		entry.expireAt = s.nowFn().Add(ttl)
	}
	s.entries[key] = entry
}

func (s *MemoryStore) incr(key string) {
	current := int64(0)
	if entry, ok := s.entries[key]; ok && !entry.expired(s.nowFn()) {
		if parsed, errParse := strconv.ParseInt(string(entry.value), 10, 64); errParse == nil {
			current = parsed
		}
	}
	s.entries[key] = memoryEntry{value: []byte(strconv.FormatInt(current+1, 10))}
}
