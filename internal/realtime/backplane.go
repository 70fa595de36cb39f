package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-floor/internal/redisx"
)

const (
	opEmit      = "emit"
	opBroadcast = "broadcast"
	opEvict     = "evict"
)

// frame is what travels over the pub/sub channel.
type frame struct {
	Origin  string          `json:"origin"`
	Op      string          `json:"op"`
	Rooms   []string        `json:"rooms,omitempty"`
	Conn    string          `json:"conn,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Backplane is the Emitter used when several instances serve sockets. Every
// send is published to Redis; every instance running Run applies it to its
// local hub, including the sender itself. A nil hub makes a publish-only
// backplane, which is what the notifier uses.
type Backplane struct {
	rdb      *redis.Client
	hub      *Hub
	instance string
	channel  string
	log      *zap.Logger
	ready    chan struct{}
}

func NewBackplane(rdb *redis.Client, hub *Hub, instanceID string, log *zap.Logger) *Backplane {
	return &Backplane{
		rdb:      rdb,
		hub:      hub,
		instance: instanceID,
		channel:  redisx.ChannelFanout,
		log:      log.With(zap.String("component", "backplane")),
		ready:    make(chan struct{}),
	}
}

var _ Emitter = (*Backplane)(nil)

func (b *Backplane) publish(ctx context.Context, f frame) error {
	f.Origin = b.instance
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish fan-out frame: %w", err)
	}
	return nil
}

func (b *Backplane) Emit(ctx context.Context, msg Message, rooms ...string) error {
	if len(rooms) == 0 {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.publish(ctx, frame{Op: opEmit, Rooms: rooms, Payload: payload})
}

func (b *Backplane) Broadcast(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.publish(ctx, frame{Op: opBroadcast, Payload: payload})
}

func (b *Backplane) Evict(ctx context.Context, connID, reason string) error {
	return b.publish(ctx, frame{Op: opEvict, Conn: connID, Reason: reason})
}

// Ready is closed once Run's subscription is confirmed.
func (b *Backplane) Ready() <-chan struct{} { return b.ready }

// Run subscribes to the fan-out channel and applies frames to the local hub
// until ctx is done.
func (b *Backplane) Run(ctx context.Context) error {
	if b.hub == nil {
		return fmt.Errorf("backplane without hub cannot subscribe")
	}
	ps := b.rdb.Subscribe(ctx, b.channel)
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	close(b.ready)
	b.log.Info("backplane subscribed", zap.String("channel", b.channel), zap.String("instance", b.instance))

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			b.apply(m.Payload)
		}
	}
}

func (b *Backplane) apply(raw string) {
	var f frame
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		b.log.Warn("bad fan-out frame", zap.Error(err))
		return
	}
	switch f.Op {
	case opEmit:
		b.hub.deliver(f.Payload, f.Rooms...)
	case opBroadcast:
		b.hub.deliverAll(f.Payload)
	case opEvict:
		b.hub.evict(f.Conn, f.Reason)
	default:
		b.log.Warn("unknown fan-out op", zap.String("op", f.Op))
	}
}
