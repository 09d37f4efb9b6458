//go:build integration

// Package containers starts the backing services the registrar talks to
// (Postgres for the audit trail, Kafka for audit fan-out, Redis for the
// certificate cache) for integration tests.
//
// Each container is started once per test binary and shared. Terminating
// them is left to the testcontainers reaper, since a t.Cleanup on the first
// caller would stop the container under later tests.
package containers

import (
	"sync"
	"testing"
)

type Manager struct {
	postgres lazy[*PostgresContainer]
	kafka    lazy[*KafkaContainer]
	redis    lazy[*RedisContainer]
}

var (
	manager     *Manager
	managerOnce sync.Once
)

func GetManager() *Manager {
	managerOnce.Do(func() { manager = &Manager{} })
	return manager
}

func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return m.postgres.get(t, NewPostgresContainer)
}

func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	t.Helper()
	return m.kafka.get(t, NewKafkaContainer)
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	return m.redis.get(t, NewRedisContainer)
}

// lazy starts a container on first use. A failed start is not cached, so the
// next test retries instead of inheriting a nil container.
type lazy[T any] struct {
	mu    sync.Mutex
	value T
	ok    bool
}

func (l *lazy[T]) get(t *testing.T, start func(*testing.T) T) T {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.ok {
		l.value = start(t)
		l.ok = true
	}
	return l.value
}
