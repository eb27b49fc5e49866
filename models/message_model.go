package models

import "time"

type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// Message is immutable apart from Status and Read. ID grows with insertion
// order and breaks CreatedAt ties when ordering a conversation.
type Message struct {
	ID             uint64        `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string        `gorm:"size:255;not null;index:idx_messages_conversation_order,priority:1" json:"conversation_id"`
	SenderID       string        `gorm:"size:128;not null" json:"sender_id"`
	ReceiverID     string        `gorm:"size:128;not null;index:idx_messages_receiver_read,priority:1" json:"receiver_id"`
	Text           string        `gorm:"type:text;not null" json:"text"`
	CreatedAt      time.Time     `gorm:"not null;index:idx_messages_conversation_order,priority:2" json:"created_at"`
	Status         MessageStatus `gorm:"size:16;not null;check:chk_messages_status,status IN ('sent','delivered','read')" json:"status"`
	Read           bool          `gorm:"not null;index:idx_messages_receiver_read,priority:2" json:"read"`
}
