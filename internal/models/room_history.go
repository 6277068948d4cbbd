package models

import "time"

// RoomHistory is the audit row written for every room. It is never read back to
// rebuild live state.
type RoomHistory struct {
	RoomID     string `gorm:"primaryKey"`
	ProposalID string `gorm:"index"`
	// User1ConnID and User2ConnID are the connection ids of the participants.
	User1ConnID string
	User2ConnID string
	// User1ID and User2ID are the linked accounts, empty for anonymous connections.
	User1ID   string `gorm:"index"`
	User2ID   string `gorm:"index"`
	IsActive  bool   `gorm:"index"`
	StartedAt time.Time
	EndedAt   *time.Time
}
