package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"
)

func drain(c *conn) []Message {
	var out []Message
	for {
		select {
		case b := <-c.send:
			var m Message
			_ = json.Unmarshal(b, &m)
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestHub_RoomsAndUnion(t *testing.T) {
	ctx := context.Background()
	h := NewHub(zap.NewNop())
	admin := newConn("c1", "u1", []string{"admin", "manager"})
	cook := newConn("c2", "u2", []string{"kitchen"})
	h.attach(admin, append([]string{RoomStaff}, roleRooms(admin.roles)...)...)
	h.attach(cook, append([]string{RoomStaff}, roleRooms(cook.roles)...)...)

	want := []string{"conn:c2", "kitchen", "role:kitchen", "staff"}
	got := h.Rooms("c2")
	if len(got) != len(want) {
		t.Fatalf("rooms = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rooms = %v, want %v", got, want)
		}
	}

	// admin sits in both rooms but gets one copy
	if err := h.Emit(ctx, Message{Type: MsgStockAlert}, RoleRoom("admin"), RoleRoom("manager"), RoleRoom("kitchen")); err != nil {
		t.Fatal(err)
	}
	if n := len(drain(admin)); n != 1 {
		t.Fatalf("admin got %d copies", n)
	}
	if n := len(drain(cook)); n != 1 {
		t.Fatalf("cook got %d copies", n)
	}

	if err := h.Emit(ctx, Message{Type: MsgTableStatusUpdated}, TableRoom("t1")); err != nil {
		t.Fatal(err)
	}
	if len(drain(admin))+len(drain(cook)) != 0 {
		t.Fatalf("nobody watches t1 yet")
	}
	h.Join("c2", TableRoom("t1"))
	_ = h.Emit(ctx, Message{Type: MsgTableStatusUpdated}, TableRoom("t1"))
	if len(drain(cook)) != 1 {
		t.Fatalf("watcher missed table message")
	}
	h.Leave("c2", TableRoom("t1"), ConnRoom("c2"))
	_ = h.Emit(ctx, Message{Type: MsgTableStatusUpdated}, TableRoom("t1"))
	if len(drain(cook)) != 0 {
		t.Fatalf("unwatched table still delivered")
	}
	_ = h.Emit(ctx, Message{Type: MsgOrderCreated}, ConnRoom("c2"))
	if len(drain(cook)) != 1 {
		t.Fatalf("own conn room must not be leavable")
	}

	_ = h.Broadcast(ctx, Message{Type: MsgProductAvailabilityChanged})
	if len(drain(admin)) != 1 || len(drain(cook)) != 1 {
		t.Fatalf("broadcast missed someone")
	}

	h.detach(cook)
	if h.Has("c2") || h.Len() != 1 {
		t.Fatalf("detach left the connection behind")
	}
	if h.Join("c2", "staff") {
		t.Fatalf("join on detached connection")
	}
}

func TestHub_Evict(t *testing.T) {
	h := NewHub(zap.NewNop())
	c := newConn("c1", "u1", nil)
	h.attach(c)

	if !h.evict("c1", "new_session") {
		t.Fatal("evict missed a live connection")
	}
	select {
	case <-c.done:
	default:
		t.Fatal("evicted connection not closed")
	}
	msgs := drain(c)
	if len(msgs) != 1 || msgs[0].Type != MsgForceDisconnect {
		t.Fatalf("queued = %+v", msgs)
	}
	if c.reason != "new_session" {
		t.Fatalf("reason = %q", c.reason)
	}
	if h.evict("nope", "x") {
		t.Fatal("evicted an unknown connection")
	}

	// closed connections receive nothing more
	_ = h.Emit(context.Background(), Message{Type: MsgOrderCreated}, ConnRoom("c1"))
	if len(drain(c)) != 0 {
		t.Fatal("delivered to a closed connection")
	}
}

func TestHub_SlowConsumerDropped(t *testing.T) {
	h := NewHub(zap.NewNop())
	c := newConn("c1", "u1", nil)
	h.attach(c, RoomStaff)
	for i := 0; i < sendBuffer+1; i++ {
		_ = h.Emit(context.Background(), Message{Type: MsgStockAlert}, RoomStaff)
	}
	select {
	case <-c.done:
	default:
		t.Fatal("full buffer must close the connection")
	}
}

func TestIntersect(t *testing.T) {
	got := intersect([]string{"admin", "kitchen", "admin", "waiter"}, []string{"waiter", "admin"})
	if len(got) != 2 || got[0] != "admin" || got[1] != "waiter" {
		t.Fatalf("intersect = %v", got)
	}
	if rr := roleRooms([]string{"chef", "kitchen"}); len(rr) != 2 || rr[1] != RoomKitchen {
		t.Fatalf("roleRooms = %v", rr)
	}
}
