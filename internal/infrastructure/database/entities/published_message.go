package entities

import "time"

// PublishedMessage is a message copied into the public space.
type PublishedMessage struct {
	ID              string    `gorm:"column:id;primaryKey"`
	SourceMessageID string    `gorm:"column:source_message_id;uniqueIndex;not null"`
	ConversationID  string    `gorm:"column:conversation_id;index;not null"`
	Role            string    `gorm:"column:role;not null"`
	Content         string    `gorm:"column:content;type:text;not null"`
	PublishedAt     time.Time `gorm:"column:published_at;not null"`
}

func (PublishedMessage) TableName() string {
	return "published_messages"
}
