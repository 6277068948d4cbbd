package models

import "time"

// Room is the committed session for an accepted pairing.
type Room struct {
	ID           string    `json:"id"`
	ProposalID   string    `json:"proposal_id"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}

// Has reports whether connID is a member of the room.
func (r *Room) Has(connID string) bool {
	for _, p := range r.Participants {
		if p == connID {
			return true
		}
	}
	return false
}

// Clone returns a copy with its own participant slice.
func (r *Room) Clone() *Room {
	cp := *r
	cp.Participants = append([]string(nil), r.Participants...)
	return &cp
}
