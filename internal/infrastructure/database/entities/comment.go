package entities

import "time"

// Comment is the relational row for a conversation comment.
type Comment struct {
	ID             string    `gorm:"column:id;primaryKey"`
	ConversationID string    `gorm:"column:conversation_id;index;not null"`
	Content        string    `gorm:"column:content;type:text;not null"`
	Position       int       `gorm:"column:position;not null"`
	X              *float64  `gorm:"column:x"`
	Y              *float64  `gorm:"column:y"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
}

func (Comment) TableName() string {
	return "comments"
}
