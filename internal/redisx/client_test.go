package redisx

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := New(addr)
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestKeys(t *testing.T) {
	if got := UserConnKey("u1"); got != "rt:user:u1" {
		t.Fatalf("user key %q", got)
	}
	if got := DedupKey("notifier", "e1"); got != "dedup:notifier:e1" {
		t.Fatalf("dedup key %q", got)
	}
}

func TestDedup(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()
	ctx := context.Background()

	d := NewDedup(client, "test-"+uuid.NewString())
	id := uuid.NewString()
	defer d.Forget(ctx, id)

	first, err := d.First(ctx, id)
	if err != nil || !first {
		t.Fatalf("first: %v %v", first, err)
	}
	again, err := d.First(ctx, id)
	if err != nil || again {
		t.Fatalf("repeat must report false: %v %v", again, err)
	}
	if n, _ := client.Exists(ctx, DedupKey(d.service, id)).Result(); n != 1 {
		t.Fatalf("marker missing")
	}
	if err := d.Forget(ctx, id); err != nil {
		t.Fatal(err)
	}
	first, _ = d.First(ctx, id)
	if !first {
		t.Fatalf("forgotten id must be new again")
	}
}
