package domain

import "time"

// Event types for WebSocket audit notifications
const (
	EventLinked   = "linked"
	EventUnlinked = "unlinked"
	EventSynced   = "synced"
	EventRenamed  = "renamed"
)

// Event represents a real-time audit event for WebSocket broadcast
type Event struct {
	Type      string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// LinkedEvent is sent when a player completes a link
type LinkedEvent struct {
	User User `json:"user"`
}

// UnlinkedEvent is sent when a link is removed
type UnlinkedEvent struct {
	User User   `json:"user"`
	By   string `json:"by,omitempty"` // "player", "discord" or admin username
}

// SyncedEvent is sent after a role/nickname reconciliation
type SyncedEvent struct {
	User         User   `json:"user"`
	PrimaryGroup string `json:"primary_group"`
}

// RenamedEvent is sent when a player's in-game name changes
type RenamedEvent struct {
	User    User   `json:"user"`
	OldName string `json:"old_name"`
}

// PermissionChange is the payload published by the proxy-side plugin when a
// player's permission data is recalculated.
type PermissionChange struct {
	UUID         string `json:"uuid"`
	PrimaryGroup string `json:"primary_group"`
}
