package models

import "time"

// Outbound event types delivered to clients.
const (
	EventProposalOffered  = "proposal.offered"
	EventProposalResolved = "proposal.resolved"
	EventRoomPeerLeft     = "room.peerLeft"
	EventPresenceSnapshot = "presence.snapshot"
	EventError            = "error"
)

// Inbound message types read from a client connection.
const (
	MessageHeartbeat = "heartbeat"
	MessageVote      = "vote"
	MessageLeave     = "leave"
	MessagePresence  = "presence"
)

// Event is one outbound frame for the transport layer. Fields not relevant to the
// type are omitted from the JSON.
type Event struct {
	Type         string           `json:"type"`
	ConnectionID string           `json:"-"`
	ProposalID   string           `json:"proposal_id,omitempty"`
	RoomID       string           `json:"room_id,omitempty"`
	Peer         *ProfileSummary  `json:"peer,omitempty"`
	ExpiresAt    *time.Time       `json:"expires_at,omitempty"`
	Outcome      Outcome          `json:"outcome,omitempty"`
	Online       []ProfileSummary `json:"online,omitempty"`
	Code         string           `json:"code,omitempty"`
	Message      string           `json:"message,omitempty"`
}

// ClientMessage is one inbound frame from a client.
type ClientMessage struct {
	Type       string `json:"type"`
	ProposalID string `json:"proposal_id,omitempty"`
	Choice     Choice `json:"choice,omitempty"`
	RoomID     string `json:"room_id,omitempty"`
}

// Preferences are the matching hints a client sends on connect.
type Preferences struct {
	Language  string   `json:"language,omitempty"`
	Region    string   `json:"region,omitempty"`
	Interests []string `json:"interests,omitempty"`
}

// ConnectRequest is the connect() event: it registers presence and enters SEARCHING.
type ConnectRequest struct {
	ConnectionID string
	UserID       string
	BlockedIDs   []string
	Preferences  Preferences
}
