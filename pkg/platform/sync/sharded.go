package sync

import (
	"sync"
)

const shardCount = 32

// ShardedMap is a string-keyed map split across shards, each guarded by its
// own mutex. Callbacks run with the shard locked and must not block on I/O.
type ShardedMap[V any] struct {
	shards [shardCount]shard[V]
}

type shard[V any] struct {
	mu    sync.Mutex
	items map[string]V
}

func NewShardedMap[V any]() *ShardedMap[V] {
	m := &ShardedMap[V]{}
	for i := range m.shards {
		m.shards[i].items = make(map[string]V)
	}
	return m
}

// Compute replaces the value at key with fn's result. When keep is false the
// key is removed.
func (m *ShardedMap[V]) Compute(key string, fn func(cur V, ok bool) (next V, keep bool)) {
	s := &m.shards[shardFor(key)]
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[key]
	next, keep := fn(cur, ok)
	if keep {
		s.items[key] = next
	} else if ok {
		delete(s.items, key)
	}
}

// ComputeAll applies fn to every entry, one shard at a time.
func (m *ShardedMap[V]) ComputeAll(fn func(key string, cur V) (next V, keep bool)) {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for k, v := range s.items {
			next, keep := fn(k, v)
			if keep {
				s.items[k] = next
			} else {
				delete(s.items, k)
			}
		}
		s.mu.Unlock()
	}
}

// Len counts entries across shards. The result is a snapshot.
func (m *ShardedMap[V]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		n += len(s.items)
		s.mu.Unlock()
	}
	return n
}

func shardFor(key string) int {
	if key == "" {
		return 0
	}
	return int(hashString(key) % shardCount)
}

// hashString is a multiplicative string hash (h*31 + c) for shard selection.
func hashString(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}
