package entities

import "time"

// ChatMessage is the relational row for a conversation message.
type ChatMessage struct {
	ID              string    `gorm:"column:id;primaryKey"`
	ConversationID  string    `gorm:"column:conversation_id;index;not null"`
	ParentMessageID string    `gorm:"column:parent_message_id;index"`
	Role            string    `gorm:"column:role;not null"`
	Content         string    `gorm:"column:content;type:text;not null"`
	Position        int       `gorm:"column:position;not null"`
	X               *float64  `gorm:"column:x"`
	Y               *float64  `gorm:"column:y"`
	CreatedAt       time.Time `gorm:"column:created_at;not null"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
