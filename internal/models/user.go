package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// User is a persistent account. The coordinator only reads its public profile
// summary and block list.
type User struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	TelegramID  *int64         `gorm:"uniqueIndex" json:"-"`
	DisplayName string         `json:"display_name"`
	Age         int            `json:"age"`
	Gender      string         `json:"gender"`
	Language    string         `gorm:"size:8" json:"language"`
	Region      string         `gorm:"size:32" json:"region"`
	Interests   pq.StringArray `gorm:"type:text[]" json:"interests"`
	// BlockedIDs are user ids this user never wants to be paired with.
	BlockedIDs pq.StringArray `gorm:"type:text[]" json:"-"`
	CreatedAt  time.Time      `json:"created_at"`
}

// BeforeCreate is a GORM hook that assigns a UUID when ID is empty.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// Summary returns the public profile shown to a proposed peer.
func (u *User) Summary() ProfileSummary {
	return ProfileSummary{
		UserID:      u.ID,
		DisplayName: u.DisplayName,
		Age:         u.Age,
		Gender:      u.Gender,
		Language:    u.Language,
		Region:      u.Region,
		Interests:   append([]string(nil), u.Interests...),
	}
}

// ProfileSummary is the public view of a connection sent in proposal.offered and
// presence.snapshot events.
type ProfileSummary struct {
	ConnectionID string   `json:"connection_id,omitempty"`
	UserID       string   `json:"user_id,omitempty"`
	DisplayName  string   `json:"display_name,omitempty"`
	Age          int      `json:"age,omitempty"`
	Gender       string   `json:"gender,omitempty"`
	Language     string   `json:"language,omitempty"`
	Region       string   `json:"region,omitempty"`
	Interests    []string `json:"interests,omitempty"`
	Anonymous    bool     `json:"anonymous,omitempty"`
}
