package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-floor/internal/auth"
	"github.com/ariefcatur/go-realtime-floor/internal/events"
)

type wsEnv struct {
	srv    *httptest.Server
	tokens *auth.Tokens
	hub    *Hub
	reg    *MemoryRegistry
}

func setupWS(t *testing.T) *wsEnv {
	t.Helper()
	tokens := auth.NewTokens("test-secret", time.Hour)
	hub := NewHub(zap.NewNop())
	reg := NewMemoryRegistry()
	srv := httptest.NewServer(NewHandler(tokens, hub, hub, reg, zap.NewNop()))
	t.Cleanup(srv.Close)
	return &wsEnv{srv: srv, tokens: tokens, hub: hub, reg: reg}
}

func (e *wsEnv) dial(t *testing.T, uid string, roles ...string) *websocket.Conn {
	t.Helper()
	tok, err := e.tokens.Sign(uid, "", roles)
	if err != nil {
		t.Fatal(err)
	}
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+tok)
	ws, _, err := websocket.DefaultDialer.Dial(e.url(), hdr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func (e *wsEnv) url() string { return "ws" + strings.TrimPrefix(e.srv.URL, "http") }

func read(t *testing.T, ws *websocket.Conn) Message {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return m
}

func send(t *testing.T, ws *websocket.Conn, typ string, data any) {
	t.Helper()
	b, _ := json.Marshal(data)
	if err := ws.WriteJSON(Inbound{Type: typ, Data: b}); err != nil {
		t.Fatal(err)
	}
}

func roomsOf(m Message) []string {
	data, _ := m.Data.(map[string]any)
	raw, _ := data["rooms"].([]any)
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.(string))
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWS_RejectsBadToken(t *testing.T) {
	e := setupWS(t)
	for name, hdr := range map[string]http.Header{
		"missing": {},
		"garbage": {"Authorization": []string{"Bearer nope"}},
	} {
		_, resp, err := websocket.DefaultDialer.Dial(e.url(), hdr)
		if !errors.Is(err, websocket.ErrBadHandshake) {
			t.Fatalf("%s: expected bad handshake, got %v", name, err)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401", name)
		}
	}
	if e.hub.Len() != 0 {
		t.Fatal("rejected client reached the hub")
	}
}

func TestWS_TokenInQuery(t *testing.T) {
	e := setupWS(t)
	tok, _ := e.tokens.Sign("u1", "", []string{auth.RoleWaiter})
	ws, _, err := websocket.DefaultDialer.Dial(e.url()+"?token="+tok, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()
	if m := read(t, ws); m.Type != MsgConnected {
		t.Fatalf("first message = %s", m.Type)
	}
}

func TestWS_ConnectedAndMessages(t *testing.T) {
	ctx := context.Background()
	e := setupWS(t)
	ws := e.dial(t, "cook", auth.RoleKitchen)

	m := read(t, ws)
	if m.Type != MsgConnected {
		t.Fatalf("first message = %s", m.Type)
	}
	rooms := roomsOf(m)
	for _, want := range []string{RoomStaff, RoomKitchen, "role:kitchen"} {
		found := false
		for _, r := range rooms {
			found = found || r == want
		}
		if !found {
			t.Fatalf("rooms %v missing %s", rooms, want)
		}
	}

	// bad frames get an error, the socket stays open
	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if m := read(t, ws); m.Type != MsgError {
		t.Fatalf("expected error, got %s", m.Type)
	}
	send(t, ws, "dance", nil)
	if m := read(t, ws); m.Type != MsgError {
		t.Fatalf("expected error, got %s", m.Type)
	}

	send(t, ws, CmdWatchTable, watchTableData{TableID: "t7"})
	if m := read(t, ws); m.Type != MsgRooms {
		t.Fatalf("expected rooms ack, got %s", m.Type)
	}

	d := NewDispatcher(e.hub, e.reg, zap.NewNop())
	ev := events.MustNew(events.TableStatusChanged, "test", "t7", events.TablePayload{TableID: "t7", Status: "occupied"})
	if err := d.Dispatch(ctx, ev); err != nil {
		t.Fatal(err)
	}
	m = read(t, ws)
	if m.Type != MsgTableStatusUpdated || m.EventID != ev.EventID {
		t.Fatalf("got %+v", m)
	}
}

func TestWS_Authenticate(t *testing.T) {
	e := setupWS(t)
	ws := e.dial(t, "boss", auth.RoleAdmin, auth.RoleManager)
	read(t, ws)

	// asks for kitchen too, but the token never granted it
	send(t, ws, CmdAuthenticate, authenticateData{UserID: "boss", Roles: []string{auth.RoleManager, auth.RoleKitchen}})
	m := read(t, ws)
	if m.Type != MsgAuthenticated {
		t.Fatalf("got %s", m.Type)
	}
	rooms := roomsOf(m)
	for _, r := range rooms {
		if r == "role:admin" || r == RoomKitchen || r == "role:kitchen" {
			t.Fatalf("unexpected room %s in %v", r, rooms)
		}
	}

	send(t, ws, CmdJoinRooms, joinRoomsData{Roles: []string{auth.RoleAdmin}})
	m = read(t, ws)
	found := false
	for _, r := range roomsOf(m) {
		found = found || r == "role:admin"
	}
	if !found {
		t.Fatalf("joinRooms did not restore admin: %v", roomsOf(m))
	}
}

func TestWS_AuthenticateMismatchCloses(t *testing.T) {
	e := setupWS(t)
	ws := e.dial(t, "w7", auth.RoleWaiter)
	read(t, ws)
	connID, _ := e.reg.Lookup(context.Background(), "w7")

	send(t, ws, CmdAuthenticate, authenticateData{UserID: "someone-else", Roles: []string{auth.RoleWaiter}})
	if m := read(t, ws); m.Type != MsgError {
		t.Fatalf("mismatched user must be refused, got %s", m.Type)
	}
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatal("connection should be closed after a failed authenticate")
	}
	waitFor(t, func() bool {
		cur, _ := e.reg.Lookup(context.Background(), "w7")
		return cur == "" && !e.hub.Has(connID)
	})
}

func TestWS_SecondLoginEvictsFirst(t *testing.T) {
	e := setupWS(t)
	first := e.dial(t, "w1", auth.RoleWaiter)
	read(t, first)
	firstConn, _ := e.reg.Lookup(context.Background(), "w1")

	second := e.dial(t, "w1", auth.RoleWaiter)
	if m := read(t, second); m.Type != MsgConnected {
		t.Fatalf("second login: %s", m.Type)
	}

	m := read(t, first)
	if m.Type != MsgForceDisconnect {
		t.Fatalf("first connection got %s", m.Type)
	}
	if data, _ := m.Data.(map[string]any); data["reason"] != "new_session" {
		t.Fatalf("reason = %v", m.Data)
	}
	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := first.ReadMessage(); err == nil {
		t.Fatal("first connection should be closed")
	}

	waitFor(t, func() bool { return !e.hub.Has(firstConn) })
	cur, _ := e.reg.Lookup(context.Background(), "w1")
	if cur == "" || cur == firstConn || !e.hub.Has(cur) {
		t.Fatalf("registry points at %q", cur)
	}

	// the waiter's live connection still receives targeted events
	d := NewDispatcher(e.hub, e.reg, zap.NewNop())
	_ = d.Dispatch(context.Background(), events.MustNew(events.OrderCreated, "test", "o1",
		events.OrderPayload{OrderID: "o1", TableID: "t1", WaiterID: "w1"}))
	if m := read(t, second); m.Type != MsgOrderCreated {
		t.Fatalf("got %s", m.Type)
	}
}

func TestWS_DisconnectReleasesRegistry(t *testing.T) {
	e := setupWS(t)
	ws := e.dial(t, "w2", auth.RoleWaiter)
	read(t, ws)
	connID, _ := e.reg.Lookup(context.Background(), "w2")
	if connID == "" {
		t.Fatal("not registered")
	}
	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	ws.Close()

	waitFor(t, func() bool {
		cur, _ := e.reg.Lookup(context.Background(), "w2")
		return cur == "" && !e.hub.Has(connID)
	})
	if u, _ := e.reg.UserOf(context.Background(), connID); u != "" {
		t.Fatalf("reverse entry left: %q", u)
	}
}
