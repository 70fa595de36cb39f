package realtime

import (
	"context"
	"slices"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-floor/internal/events"
)

type sent struct {
	msg       Message
	rooms     []string
	broadcast bool
}

type recordingEmitter struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recordingEmitter) Emit(_ context.Context, msg Message, rooms ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{msg: msg, rooms: rooms})
	return nil
}

func (r *recordingEmitter) Broadcast(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{msg: msg, broadcast: true})
	return nil
}

func (r *recordingEmitter) Evict(context.Context, string, string) error { return nil }

func (r *recordingEmitter) take() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sent
	r.sent = nil
	return out
}

func sameRooms(got []string, want ...string) bool {
	g := slices.Clone(got)
	w := slices.Clone(want)
	slices.Sort(g)
	slices.Sort(w)
	return slices.Equal(g, w)
}

func setupDispatcher(t *testing.T) (*Dispatcher, *recordingEmitter) {
	t.Helper()
	reg := NewMemoryRegistry()
	if _, err := reg.Register(context.Background(), "w1", "cw"); err != nil {
		t.Fatal(err)
	}
	em := &recordingEmitter{}
	return NewDispatcher(em, reg, zap.NewNop()), em
}

func TestDispatch_Orders(t *testing.T) {
	ctx := context.Background()
	d, em := setupDispatcher(t)

	ev := events.MustNew(events.OrderCreated, "test", "o1", events.OrderPayload{OrderID: "o1", TableID: "t1", WaiterID: "w1"})
	if err := d.Dispatch(ctx, ev); err != nil {
		t.Fatal(err)
	}
	got := em.take()
	if len(got) != 2 {
		t.Fatalf("sends = %+v", got)
	}
	if got[0].msg.Type != MsgOrderCreated || !sameRooms(got[0].rooms, "conn:cw", "table:t1") {
		t.Fatalf("front of house: %+v", got[0])
	}
	if got[1].msg.Type != MsgKitchenOrderUpdate || !sameRooms(got[1].rooms, RoomKitchen) {
		t.Fatalf("kitchen: %+v", got[1])
	}
	if got[0].msg.EventID != ev.EventID || got[0].msg.Event != events.OrderCreated {
		t.Fatalf("event identity lost: %+v", got[0].msg)
	}

	// offline waiter: only the table room
	ev = events.MustNew(events.OrderStatusChanged, "test", "o2", events.OrderPayload{OrderID: "o2", TableID: "t2", WaiterID: "w9"})
	_ = d.Dispatch(ctx, ev)
	got = em.take()
	if got[0].msg.Type != MsgOrderStatusUpdated || !sameRooms(got[0].rooms, "table:t2") {
		t.Fatalf("offline waiter: %+v", got[0])
	}

	ev = events.MustNew(events.PaymentAdded, "test", "o1", events.OrderPayload{OrderID: "o1", TableID: "t1", WaiterID: "w1"})
	_ = d.Dispatch(ctx, ev)
	got = em.take()
	if len(got) != 2 || !sameRooms(got[1].rooms, "role:cashier") {
		t.Fatalf("payment routing: %+v", got)
	}
}

func TestDispatch_Stock(t *testing.T) {
	ctx := context.Background()
	d, em := setupDispatcher(t)

	_ = d.Dispatch(ctx, events.MustNew(events.StockLow, "test", "p1", events.StockPayload{ProductID: "p1", Stock: 2}))
	got := em.take()
	if len(got) != 1 || got[0].msg.Type != MsgStockAlert || !sameRooms(got[0].rooms, "role:admin", "role:manager", "role:kitchen") {
		t.Fatalf("low: %+v", got)
	}

	_ = d.Dispatch(ctx, events.MustNew(events.StockOut, "test", "p1", events.StockPayload{ProductID: "p1"}))
	got = em.take()
	if len(got) != 1 || !sameRooms(got[0].rooms, RoomStaff) {
		t.Fatalf("out: %+v", got)
	}

	_ = d.Dispatch(ctx, events.MustNew(events.ProductAvailabilityChanged, "test", "p1", events.AvailabilityPayload{ProductID: "p1"}))
	got = em.take()
	if len(got) != 1 || !got[0].broadcast || got[0].msg.Type != MsgProductAvailabilityChanged {
		t.Fatalf("availability: %+v", got)
	}
}

func TestDispatch_TablesAndReservations(t *testing.T) {
	ctx := context.Background()
	d, em := setupDispatcher(t)

	_ = d.Dispatch(ctx, events.MustNew(events.TableStatusChanged, "test", "t1", events.TablePayload{TableID: "t1", WaiterID: "w1"}))
	got := em.take()
	if got[0].msg.Type != MsgTableStatusUpdated || !sameRooms(got[0].rooms, "table:t1", "role:admin", "role:manager") {
		t.Fatalf("table status: %+v", got)
	}

	_ = d.Dispatch(ctx, events.MustNew(events.TableAssigned, "test", "t1", events.TablePayload{TableID: "t1", WaiterID: "w1", PreviousWaiterID: "w9"}))
	got = em.take()
	if got[0].msg.Type != MsgTableAssigned || !sameRooms(got[0].rooms, "table:t1", "role:admin", "role:manager", "conn:cw") {
		t.Fatalf("table assigned: %+v", got)
	}

	_ = d.Dispatch(ctx, events.MustNew(events.ReservationStatusChanged, "test", "r1", events.ReservationPayload{ReservationID: "r1", AssignedTo: "w1"}))
	got = em.take()
	if got[0].msg.Type != MsgReservationUpdate || !sameRooms(got[0].rooms, "conn:cw", "role:admin", "role:manager") {
		t.Fatalf("reservation: %+v", got)
	}
}

func TestDispatch_UnknownAndBadPayload(t *testing.T) {
	ctx := context.Background()
	d, em := setupDispatcher(t)

	if err := d.Dispatch(ctx, events.Envelope{EventType: "Mystery"}); err != nil {
		t.Fatalf("unknown events are ignored, got %v", err)
	}
	bad := events.Envelope{EventType: events.OrderCreated, Payload: []byte("{")}
	if err := d.Publish(ctx, bad); err == nil {
		t.Fatal("expected decode error")
	}
	if len(em.take()) != 0 {
		t.Fatal("nothing should be sent")
	}
}
