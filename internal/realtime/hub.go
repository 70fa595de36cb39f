package realtime

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"go.uber.org/zap"
)

const sendBuffer = 64

// conn is one live socket as the hub sees it. The writer goroutine owns the
// socket; everything else talks to it through send and done.
type conn struct {
	id     string
	userID string
	roles  []string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	reason    string
}

func newConn(id, userID string, roles []string) *conn {
	return &conn{
		id:     id,
		userID: userID,
		roles:  roles,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *conn) close(reason string) {
	c.closeOnce.Do(func() {
		c.reason = reason
		close(c.done)
	})
}

// Hub tracks this instance's connections and their rooms. It is the local
// Emitter; with several instances the backplane feeds it.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*conn
	rooms map[string]map[string]*conn
	// reverse index, conn id -> rooms
	member map[string]map[string]struct{}
	log    *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		conns:  make(map[string]*conn),
		rooms:  make(map[string]map[string]*conn),
		member: make(map[string]map[string]struct{}),
		log:    log.With(zap.String("component", "hub")),
	}
}

var _ Emitter = (*Hub)(nil)

// attach adds c and joins it to its own conn room plus rooms.
func (h *Hub) attach(c *conn, rooms ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.id] = c
	h.member[c.id] = make(map[string]struct{})
	h.joinLocked(c, ConnRoom(c.id))
	for _, r := range rooms {
		h.joinLocked(c, r)
	}
}

func (h *Hub) detach(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[c.id] != c {
		return
	}
	for r := range h.member[c.id] {
		h.leaveLocked(c.id, r)
	}
	delete(h.member, c.id)
	delete(h.conns, c.id)
}

func (h *Hub) joinLocked(c *conn, room string) {
	m, ok := h.rooms[room]
	if !ok {
		m = make(map[string]*conn)
		h.rooms[room] = m
	}
	m[c.id] = c
	h.member[c.id][room] = struct{}{}
}

func (h *Hub) leaveLocked(connID, room string) {
	if m, ok := h.rooms[room]; ok {
		delete(m, connID)
		if len(m) == 0 {
			delete(h.rooms, room)
		}
	}
	if mem, ok := h.member[connID]; ok {
		delete(mem, room)
	}
}

// Join adds a live connection to room. It reports false for unknown ids.
func (h *Hub) Join(connID string, rooms ...string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[connID]
	if !ok {
		return false
	}
	for _, r := range rooms {
		h.joinLocked(c, r)
	}
	return true
}

func (h *Hub) Leave(connID string, rooms ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[connID]; !ok {
		return
	}
	for _, r := range rooms {
		if r == ConnRoom(connID) {
			continue
		}
		h.leaveLocked(connID, r)
	}
}

// Rooms lists connID's rooms, sorted.
func (h *Hub) Rooms(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.member[connID]))
	for r := range h.member[connID] {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func (h *Hub) Has(connID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[connID]
	return ok
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// deliver queues payload once per connection in the union of rooms and
// returns how many connections got it.
func (h *Hub) deliver(payload []byte, rooms ...string) int {
	h.mu.RLock()
	targets := make(map[string]*conn)
	for _, r := range rooms {
		for id, c := range h.rooms[r] {
			targets[id] = c
		}
	}
	h.mu.RUnlock()
	return h.push(targets, payload)
}

func (h *Hub) deliverAll(payload []byte) int {
	h.mu.RLock()
	targets := make(map[string]*conn, len(h.conns))
	for id, c := range h.conns {
		targets[id] = c
	}
	h.mu.RUnlock()
	return h.push(targets, payload)
}

func (h *Hub) push(targets map[string]*conn, payload []byte) int {
	n := 0
	for _, c := range targets {
		select {
		case <-c.done:
			continue
		default:
		}
		select {
		case c.send <- payload:
			n++
		default:
			// slow consumer: drop it rather than block everyone else
			h.log.Warn("send buffer full, closing connection",
				zap.String("conn_id", c.id), zap.String("user_id", c.userID))
			c.close("slow_consumer")
		}
	}
	return n
}

func (h *Hub) Emit(_ context.Context, msg Message, rooms ...string) error {
	if len(rooms) == 0 {
		return nil
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.deliver(b, rooms...)
	return nil
}

func (h *Hub) Broadcast(_ context.Context, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.deliverAll(b)
	return nil
}

// Evict queues forceDisconnect for connID and closes it once the notice is
// written. Unknown ids are ignored; the connection may live elsewhere.
func (h *Hub) Evict(_ context.Context, connID, reason string) error {
	h.evict(connID, reason)
	return nil
}

func (h *Hub) evict(connID, reason string) bool {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	b, err := json.Marshal(Message{Type: MsgForceDisconnect, Data: map[string]string{"reason": reason}})
	if err != nil {
		return false
	}
	select {
	case c.send <- b:
	default:
	}
	c.close(reason)
	h.log.Info("connection evicted",
		zap.String("conn_id", c.id), zap.String("user_id", c.userID), zap.String("reason", reason))
	return true
}
