// Package realtime pushes floor events to connected staff over websockets.
//
// Connections live in a local Hub. Fan-out across instances goes through a
// Redis backplane, and the user -> connection registry can be shared in
// Redis so a second login evicts the first one wherever it is connected.
package realtime

import (
	"context"
	"encoding/json"

	"github.com/ariefcatur/go-realtime-floor/internal/auth"
	"github.com/ariefcatur/go-realtime-floor/internal/events"
)

// Server -> client message types.
const (
	MsgConnected                  = "connected"
	MsgAuthenticated              = "authenticated"
	MsgRooms                      = "rooms"
	MsgError                      = "error"
	MsgForceDisconnect            = "forceDisconnect"
	MsgOrderCreated               = "orderCreated"
	MsgOrderStatusUpdated         = "orderStatusUpdated"
	MsgKitchenOrderUpdate         = "kitchenOrderUpdate"
	MsgTableStatusUpdated         = "tableStatusUpdated"
	MsgTableAssigned              = "tableAssigned"
	MsgStockAlert                 = "stockAlert"
	MsgProductAvailabilityChanged = "productAvailabilityChanged"
	MsgReservationUpdate          = "reservationUpdate"
)

// Client -> server message types.
const (
	CmdAuthenticate = "authenticate"
	CmdJoinRooms    = "joinRooms"
	CmdWatchTable   = "watchTable"
	CmdUnwatchTable = "unwatchTable"
)

const (
	RoomStaff   = "staff"
	RoomKitchen = "kitchen"
)

func RoleRoom(role string) string     { return "role:" + role }
func TableRoom(tableID string) string { return "table:" + tableID }
func ConnRoom(connID string) string   { return "conn:" + connID }

// Message is the server -> client frame. Event and EventID are set when the
// message comes from a domain event so clients can drop repeats.
type Message struct {
	Type    string      `json:"type"`
	Event   events.Type `json:"event,omitempty"`
	EventID string      `json:"event_id,omitempty"`
	Data    any         `json:"data,omitempty"`
}

// Inbound is the client -> server frame.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type authenticateData struct {
	UserID string   `json:"userId"`
	Roles  []string `json:"roles"`
}

type joinRoomsData struct {
	Roles []string `json:"roles"`
}

type watchTableData struct {
	TableID string `json:"tableId"`
}

// Emitter sends messages to rooms. Emit delivers one copy per connection in
// the union of rooms; Evict sends forceDisconnect and closes the connection.
type Emitter interface {
	Emit(ctx context.Context, msg Message, rooms ...string) error
	Broadcast(ctx context.Context, msg Message) error
	Evict(ctx context.Context, connID, reason string) error
}

// roleRooms maps roles to the rooms a connection joins for them. Unknown
// roles are dropped.
func roleRooms(roles []string) []string {
	out := make([]string, 0, len(roles)+1)
	for _, r := range roles {
		if !auth.ValidRole(r) {
			continue
		}
		out = append(out, RoleRoom(r))
		if r == auth.RoleKitchen {
			out = append(out, RoomKitchen)
		}
	}
	return out
}

// intersect keeps the requested roles the token actually grants.
func intersect(requested, granted []string) []string {
	out := make([]string, 0, len(requested))
	seen := make(map[string]bool, len(requested))
	for _, r := range requested {
		if seen[r] {
			continue
		}
		seen[r] = true
		for _, g := range granted {
			if r == g {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
