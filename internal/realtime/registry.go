package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-realtime-floor/internal/redisx"
)

// Registry maps each user to their single live connection.
type Registry interface {
	// Register points userID at connID and returns the connection it
	// replaced, "" if none.
	Register(ctx context.Context, userID, connID string) (string, error)
	// Lookup returns the user's live connection, "" when offline.
	Lookup(ctx context.Context, userID string) (string, error)
	UserOf(ctx context.Context, connID string) (string, error)
	// Unregister drops connID. The user mapping is removed only while it
	// still points at connID, so an evicted connection cannot unregister
	// its successor.
	Unregister(ctx context.Context, userID, connID string) error
	// Refresh keeps connID's entries alive while it is still the user's
	// live connection.
	Refresh(ctx context.Context, userID, connID string) error
}

type MemoryRegistry struct {
	mu     sync.Mutex
	byUser map[string]string
	byConn map[string]string
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{byUser: make(map[string]string), byConn: make(map[string]string)}
}

func (m *MemoryRegistry) Register(_ context.Context, userID, connID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.byUser[userID]
	if prev != "" && prev != connID {
		delete(m.byConn, prev)
	}
	m.byUser[userID] = connID
	m.byConn[connID] = userID
	return prev, nil
}

func (m *MemoryRegistry) Lookup(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byUser[userID], nil
}

func (m *MemoryRegistry) UserOf(_ context.Context, connID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byConn[connID], nil
}

// Refresh is a no-op: memory entries live until Unregister.
func (m *MemoryRegistry) Refresh(context.Context, string, string) error { return nil }

func (m *MemoryRegistry) Unregister(_ context.Context, userID, connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byConn, connID)
	if m.byUser[userID] == connID {
		delete(m.byUser, userID)
	}
	return nil
}

// KEYS: user key, conn key. ARGV: conn id, user id, ttl seconds.
var registerScript = redis.NewScript(`
local prev = redis.call('GET', KEYS[1])
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[3])
redis.call('SET', KEYS[2], ARGV[2], 'EX', ARGV[3])
return prev
`)

// KEYS: user key, conn key. ARGV: conn id, ttl seconds.
var refreshScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	redis.call('EXPIRE', KEYS[1], ARGV[2])
	redis.call('EXPIRE', KEYS[2], ARGV[2])
	return 1
end
return 0
`)

// KEYS: user key, conn key. ARGV: conn id.
var unregisterScript = redis.NewScript(`
redis.call('DEL', KEYS[2])
if redis.call('GET', KEYS[1]) == ARGV[1] then
	redis.call('DEL', KEYS[1])
	return 1
end
return 0
`)

// RedisRegistry shares the registry between api instances.
type RedisRegistry struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisRegistry(rdb *redis.Client) *RedisRegistry {
	return &RedisRegistry{rdb: rdb, ttl: redisx.TTLRegistration}
}

func (r *RedisRegistry) Register(ctx context.Context, userID, connID string) (string, error) {
	prev, err := registerScript.Run(ctx, r.rdb,
		[]string{redisx.UserConnKey(userID), redisx.ConnUserKey(connID)},
		connID, userID, int(r.ttl.Seconds()),
	).Text()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if prev != "" && prev != connID {
		// reverse entry of the replaced connection
		if err := r.rdb.Del(ctx, redisx.ConnUserKey(prev)).Err(); err != nil {
			return prev, err
		}
	}
	return prev, nil
}

func (r *RedisRegistry) Lookup(ctx context.Context, userID string) (string, error) {
	return r.get(ctx, redisx.UserConnKey(userID))
}

func (r *RedisRegistry) UserOf(ctx context.Context, connID string) (string, error) {
	return r.get(ctx, redisx.ConnUserKey(connID))
}

func (r *RedisRegistry) get(ctx context.Context, key string) (string, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (r *RedisRegistry) Unregister(ctx context.Context, userID, connID string) error {
	return unregisterScript.Run(ctx, r.rdb,
		[]string{redisx.UserConnKey(userID), redisx.ConnUserKey(connID)},
		connID,
	).Err()
}

func (r *RedisRegistry) Refresh(ctx context.Context, userID, connID string) error {
	return refreshScript.Run(ctx, r.rdb,
		[]string{redisx.UserConnKey(userID), redisx.ConnUserKey(connID)},
		connID, int(r.ttl.Seconds()),
	).Err()
}
