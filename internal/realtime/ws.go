package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-floor/internal/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
)

// Handler is the websocket endpoint. The token is checked before the
// upgrade, so a rejected client never joins a room or receives a message.
type Handler struct {
	tokens   *auth.Tokens
	hub      *Hub
	emitter  Emitter
	registry Registry
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler wires the endpoint. emitter carries evictions; pass the hub
// itself on a single instance or the backplane when scaled out.
func NewHandler(tokens *auth.Tokens, hub *Hub, emitter Emitter, registry Registry, log *zap.Logger) *Handler {
	return &Handler{
		tokens:   tokens,
		hub:      hub,
		emitter:  emitter,
		registry: registry,
		log:      log.With(zap.String("component", "ws")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// staff apps are served from other origins; the token is the gate
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := h.tokens.Verify(auth.FromRequest(r))
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"code": "unauthorized", "message": "invalid or missing token"},
		})
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response
		h.log.Debug("upgrade failed", zap.Error(err))
		return
	}

	ctx := context.WithoutCancel(r.Context())
	c := newConn(uuid.NewString(), claims.Uid, claims.Roles)
	log := h.log.With(zap.String("conn_id", c.id), zap.String("user_id", c.userID))

	if err := h.register(ctx, c); err != nil {
		log.Error("register connection", zap.Error(err))
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "registry unavailable"),
			time.Now().Add(writeWait))
		_ = ws.Close()
		return
	}

	h.hub.attach(c, append([]string{RoomStaff}, roleRooms(c.roles)...)...)
	h.reply(c, Message{Type: MsgConnected, Data: map[string]any{
		"connectionId": c.id,
		"userId":       c.userID,
		"rooms":        h.hub.Rooms(c.id),
	}})
	log.Info("connection opened", zap.Strings("roles", c.roles))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(ws, c)
	}()
	h.readPump(ws, c, claims)

	c.close("client_closed")
	<-writerDone
	h.hub.detach(c)
	if err := h.registry.Unregister(ctx, c.userID, c.id); err != nil {
		log.Warn("unregister connection", zap.Error(err))
	}
	log.Info("connection closed", zap.String("reason", c.reason))
}

// register evicts the user's previous connection, wherever it lives, then
// points the registry at c.
func (h *Handler) register(ctx context.Context, c *conn) error {
	prev, err := h.registry.Lookup(ctx, c.userID)
	if err != nil {
		return err
	}
	if prev != "" {
		if err := h.emitter.Evict(ctx, prev, "new_session"); err != nil {
			return err
		}
	}
	replaced, err := h.registry.Register(ctx, c.userID, c.id)
	if err != nil {
		return err
	}
	// a third login raced us between Lookup and Register
	if replaced != "" && replaced != prev && replaced != c.id {
		return h.emitter.Evict(ctx, replaced, "new_session")
	}
	return nil
}

// refresh extends c's registry entries; a miss only delays expiry.
func (h *Handler) refresh(c *conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.registry.Refresh(ctx, c.userID, c.id); err != nil {
		h.log.Warn("refresh registration", zap.String("conn_id", c.id), zap.Error(err))
	}
}

func (h *Handler) reply(c *conn, msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- b:
	case <-c.done:
	default:
		c.close("slow_consumer")
	}
}

func (h *Handler) replyError(c *conn, msg string) {
	h.reply(c, Message{Type: MsgError, Data: map[string]string{"message": msg}})
}

func (h *Handler) readPump(ws *websocket.Conn, c *conn, claims *auth.Claims) {
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		h.refresh(c)
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("read", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		select {
		case <-c.done:
			return
		default:
		}
		var in Inbound
		if err := json.Unmarshal(raw, &in); err != nil || in.Type == "" {
			h.replyError(c, "malformed message")
			continue
		}
		h.handle(c, claims, in)
	}
}

func (h *Handler) handle(c *conn, claims *auth.Claims, in Inbound) {
	switch in.Type {
	case CmdAuthenticate:
		var d authenticateData
		if err := json.Unmarshal(in.Data, &d); err != nil {
			h.replyError(c, "malformed authenticate")
			return
		}
		if d.UserID != claims.Uid {
			h.replyError(c, "userId does not match token")
			c.close("auth_mismatch")
			return
		}
		// narrow the role rooms to what was asked for
		keep := intersect(d.Roles, claims.Roles)
		h.hub.Leave(c.id, roleRooms(claims.Roles)...)
		h.hub.Join(c.id, roleRooms(keep)...)
		h.reply(c, Message{Type: MsgAuthenticated, Data: map[string]any{
			"userId": claims.Uid, "roles": keep, "rooms": h.hub.Rooms(c.id),
		}})

	case CmdJoinRooms:
		var d joinRoomsData
		if err := json.Unmarshal(in.Data, &d); err != nil {
			h.replyError(c, "malformed joinRooms")
			return
		}
		h.hub.Join(c.id, roleRooms(intersect(d.Roles, claims.Roles))...)
		h.reply(c, Message{Type: MsgRooms, Data: map[string]any{"rooms": h.hub.Rooms(c.id)}})

	case CmdWatchTable, CmdUnwatchTable:
		var d watchTableData
		if err := json.Unmarshal(in.Data, &d); err != nil || d.TableID == "" {
			h.replyError(c, "tableId is required")
			return
		}
		if in.Type == CmdWatchTable {
			h.hub.Join(c.id, TableRoom(d.TableID))
		} else {
			h.hub.Leave(c.id, TableRoom(d.TableID))
		}
		h.reply(c, Message{Type: MsgRooms, Data: map[string]any{"rooms": h.hub.Rooms(c.id)}})

	default:
		h.replyError(c, "unknown message type "+in.Type)
	}
}

// writePump owns all writes to ws. On close it flushes what is queued, so
// a forceDisconnect notice goes out before the close frame.
func (h *Handler) writePump(ws *websocket.Conn, c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	write := func(b []byte) bool {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		return ws.WriteMessage(websocket.TextMessage, b) == nil
	}

	for {
		select {
		case b := <-c.send:
			if !write(b) {
				c.close("write_failed")
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close("ping_failed")
				return
			}
		case <-c.done:
			for {
				select {
				case b := <-c.send:
					if !write(b) {
						return
					}
				default:
					_ = ws.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.reason),
						time.Now().Add(writeWait))
					return
				}
			}
		}
	}
}
