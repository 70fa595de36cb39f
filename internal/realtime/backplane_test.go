package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func waitMsg(t *testing.T, c *conn) Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if msgs := drain(c); len(msgs) > 0 {
			return msgs[0]
		}
		select {
		case <-deadline:
			t.Fatal("no message delivered")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestBackplane_FanOutAcrossInstances(t *testing.T) {
	client := getRedisClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := "realtime:fanout:test:" + uuid.NewString()
	hubA, hubB := NewHub(zap.NewNop()), NewHub(zap.NewNop())
	bpA := NewBackplane(client, hubA, "a", zap.NewNop())
	bpB := NewBackplane(client, hubB, "b", zap.NewNop())
	bpA.channel, bpB.channel = channel, channel
	go bpA.Run(ctx)
	go bpB.Run(ctx)
	for _, bp := range []*Backplane{bpA, bpB} {
		select {
		case <-bp.Ready():
		case <-time.After(2 * time.Second):
			t.Fatal("backplane did not subscribe")
		}
	}

	cook := newConn("c-b", "u-b", []string{"kitchen"})
	hubB.attach(cook, roleRooms(cook.roles)...)

	// sent from instance A, delivered on B
	if err := bpA.Emit(ctx, Message{Type: MsgKitchenOrderUpdate}, RoomKitchen); err != nil {
		t.Fatal(err)
	}
	if m := waitMsg(t, cook); m.Type != MsgKitchenOrderUpdate {
		t.Fatalf("got %s", m.Type)
	}

	if err := bpA.Broadcast(ctx, Message{Type: MsgProductAvailabilityChanged}); err != nil {
		t.Fatal(err)
	}
	if m := waitMsg(t, cook); m.Type != MsgProductAvailabilityChanged {
		t.Fatalf("got %s", m.Type)
	}

	if err := bpA.Evict(ctx, "c-b", "new_session"); err != nil {
		t.Fatal(err)
	}
	if m := waitMsg(t, cook); m.Type != MsgForceDisconnect {
		t.Fatalf("got %s", m.Type)
	}
	select {
	case <-cook.done:
	case <-time.After(time.Second):
		t.Fatal("evicted connection not closed")
	}
}

func TestBackplane_PublishOnly(t *testing.T) {
	bp := NewBackplane(nil, nil, "notifier", zap.NewNop())
	if err := bp.Run(context.Background()); err == nil {
		t.Fatal("publish-only backplane must refuse to subscribe")
	}
	if err := bp.Emit(context.Background(), Message{Type: MsgStockAlert}); err != nil {
		t.Fatalf("emit to no rooms is a no-op, got %v", err)
	}
}
