package models

import "time"

// PresenceState is the registry-level state of a live connection.
type PresenceState string

const (
	StateOnline   PresenceState = "ONLINE"
	StateProposed PresenceState = "PROPOSED"
	StateInRoom   PresenceState = "IN_ROOM"
)

// CanTransition reports whether the edge from -> to is allowed.
// ONLINE->PROPOSED (reserved), PROPOSED->ONLINE (failed), PROPOSED->IN_ROOM (accepted),
// IN_ROOM->ONLINE (left).
func CanTransition(from, to PresenceState) bool {
	switch from {
	case StateOnline:
		return to == StateProposed
	case StateProposed:
		return to == StateOnline || to == StateInRoom
	case StateInRoom:
		return to == StateOnline
	}
	return false
}

// PresenceRecord is one live connection known to the presence registry.
type PresenceRecord struct {
	ConnectionID string        `json:"connection_id"`
	UserID       string        `json:"user_id,omitempty"`
	State        PresenceState `json:"state"`
	// Ref is the owning proposal id while PROPOSED and the room id while IN_ROOM.
	Ref           string    `json:"ref,omitempty"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// ClientState is the coordinator-level view of a connection.
type ClientState string

const (
	ClientIdle        ClientState = "IDLE"
	ClientSearching   ClientState = "SEARCHING"
	ClientNegotiating ClientState = "NEGOTIATING"
	ClientConnected   ClientState = "CONNECTED"
)

// ClientStateOf derives the composite state from a presence record. A nil record
// (not registered) is IDLE.
func ClientStateOf(rec *PresenceRecord) ClientState {
	if rec == nil {
		return ClientIdle
	}
	switch rec.State {
	case StateProposed:
		return ClientNegotiating
	case StateInRoom:
		return ClientConnected
	default:
		return ClientSearching
	}
}
