package models

import "time"

type PresenceStatus string

const (
	PresenceOffline    PresenceStatus = "offline"
	PresenceConnecting PresenceStatus = "connecting"
	PresenceOnline     PresenceStatus = "online"
	PresenceAway       PresenceStatus = "away"
	PresenceBusy       PresenceStatus = "busy"
)

// PresenceState is transient. It lives in Redis with a short TTL and is rebuilt
// from live connections.
type PresenceState struct {
	User     User           `json:"user"`
	Status   PresenceStatus `json:"status"`
	LastSeen time.Time      `json:"last_seen"`
}
