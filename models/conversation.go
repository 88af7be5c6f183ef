package models

import "time"

// Conversation is a named thread of messages owned by one authenticated
// account. Deleting a conversation cascades to its messages.
type Conversation struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	AccountID string    `json:"account_id" gorm:"index"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Conversation model.
func (Conversation) TableName() string {
	return "conversations"
}

// Message is a single persisted conversation turn. Messages are immutable
// once created and replayed in creation order.
type Message struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ConversationID string    `json:"conversation_id" gorm:"index"`
	Role           string    `json:"role"` // "user" or "assistant"
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName specifies the table name for the Message model.
func (Message) TableName() string {
	return "messages"
}
