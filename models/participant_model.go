package models

import "time"

type ConversationParticipant struct {
	ConversationID string    `gorm:"primaryKey;size:255" json:"conversation_id"`
	UserID         string    `gorm:"primaryKey;size:128;index" json:"user_id"`
	UnreadCount    int64     `gorm:"not null;check:chk_participants_unread_count,unread_count >= 0" json:"unread_count"`
	CreatedAt      time.Time `json:"created_at"`
}

func (ConversationParticipant) TableName() string { return "conversation_participants" }
