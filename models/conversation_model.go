package models

import "time"

// Conversation is the single thread between two users. ID is derived from the
// participant pair; UpdatedAt and LastMessage mirror the latest committed message.
type Conversation struct {
	ID          string    `gorm:"primaryKey;size:255" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `gorm:"index" json:"updated_at"`
	LastMessage string    `gorm:"type:text;not null" json:"last_message"`

	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
	Messages     []Message                 `gorm:"foreignKey:ConversationID" json:"-"`
}
