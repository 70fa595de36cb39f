package redisx

import (
	"fmt"
	"time"
)

const (
	// Registry: rt:user:{user_id} -> conn_id
	KeyUserConn = "rt:user:%s"

	// Registry reverse map: rt:conn:{conn_id} -> user_id
	KeyConnUser = "rt:conn:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Pub/sub channel for cross-instance fan-out
	ChannelFanout = "realtime:fanout"
)

var (
	TTLDedup = 48 * time.Hour
	// registry entries are refreshed on every pong; stale ones from a
	// crashed instance age out
	TTLRegistration = 10 * time.Minute
)

func UserConnKey(userID string) string { return fmt.Sprintf(KeyUserConn, userID) }

func ConnUserKey(connID string) string { return fmt.Sprintf(KeyConnUser, connID) }

func DedupKey(service, id string) string { return fmt.Sprintf(KeyDedup, service, id) }
