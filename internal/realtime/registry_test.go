package realtime

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-realtime-floor/internal/redisx"
)

func getRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redisx.New(addr)
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// registryContract is run against every Registry implementation.
func registryContract(t *testing.T, reg Registry) {
	ctx := context.Background()
	user := "u-" + uuid.NewString()
	first, second := uuid.NewString(), uuid.NewString()

	prev, err := reg.Register(ctx, user, first)
	if err != nil || prev != "" {
		t.Fatalf("first register: %q %v", prev, err)
	}
	if got, _ := reg.Lookup(ctx, user); got != first {
		t.Fatalf("lookup = %q", got)
	}
	if got, _ := reg.UserOf(ctx, first); got != user {
		t.Fatalf("reverse = %q", got)
	}

	prev, err = reg.Register(ctx, user, second)
	if err != nil || prev != first {
		t.Fatalf("second register returned %q %v", prev, err)
	}
	if got, _ := reg.UserOf(ctx, first); got != "" {
		t.Fatalf("replaced connection still mapped to %q", got)
	}

	if err := reg.Refresh(ctx, user, first); err != nil {
		t.Fatal(err)
	}
	if got, _ := reg.Lookup(ctx, user); got != second {
		t.Fatalf("refresh of a replaced connection moved the mapping to %q", got)
	}
	if err := reg.Refresh(ctx, user, second); err != nil {
		t.Fatal(err)
	}

	// the evicted connection closing must not drop its successor
	if err := reg.Unregister(ctx, user, first); err != nil {
		t.Fatal(err)
	}
	if got, _ := reg.Lookup(ctx, user); got != second {
		t.Fatalf("successor lost: lookup = %q", got)
	}

	if err := reg.Unregister(ctx, user, second); err != nil {
		t.Fatal(err)
	}
	if got, _ := reg.Lookup(ctx, user); got != "" {
		t.Fatalf("lookup after unregister = %q", got)
	}
	if got, _ := reg.UserOf(ctx, second); got != "" {
		t.Fatalf("reverse after unregister = %q", got)
	}
}

func TestMemoryRegistry(t *testing.T) {
	registryContract(t, NewMemoryRegistry())
}

func TestRedisRegistry(t *testing.T) {
	registryContract(t, NewRedisRegistry(getRedisClient(t)))
}

func TestRedisRegistry_RefreshExtendsLiveEntriesOnly(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	reg := &RedisRegistry{rdb: client, ttl: time.Minute}
	user := "u-" + uuid.NewString()
	first, second := uuid.NewString(), uuid.NewString()
	t.Cleanup(func() { _ = reg.Unregister(ctx, user, second) })

	if _, err := reg.Register(ctx, user, first); err != nil {
		t.Fatal(err)
	}
	userKey, connKey := redisx.UserConnKey(user), redisx.ConnUserKey(first)
	client.Expire(ctx, userKey, 5*time.Second)
	client.Expire(ctx, connKey, 5*time.Second)

	if err := reg.Refresh(ctx, user, first); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{userKey, connKey} {
		if ttl := client.TTL(ctx, k).Val(); ttl < 30*time.Second {
			t.Fatalf("%s ttl = %s after refresh", k, ttl)
		}
	}

	if _, err := reg.Register(ctx, user, second); err != nil {
		t.Fatal(err)
	}
	client.Expire(ctx, userKey, 5*time.Second)
	if err := reg.Refresh(ctx, user, first); err != nil {
		t.Fatal(err)
	}
	if ttl := client.TTL(ctx, userKey).Val(); ttl > 5*time.Second {
		t.Fatalf("evicted connection extended the successor's entry: ttl %s", ttl)
	}
}
