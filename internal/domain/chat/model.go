package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author kind of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one the service accepts.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a node in a conversation graph. ParentMessageID empty means the
// message is a root. X and Y are canvas coordinates; nil means the client has
// never placed the node and a deterministic layout position is derived.
type Message struct {
	ID              string    `json:"id"`
	ConversationID  string    `json:"conversationId"`
	ParentMessageID string    `json:"parentMessageId,omitempty"`
	Role            Role      `json:"role"`
	Content         string    `json:"content"`
	Position        int       `json:"position"`
	X               *float64  `json:"x,omitempty"`
	Y               *float64  `json:"y,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Comment is a free-standing annotation on a conversation. Comments never
// participate in the reply graph.
type Comment struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Content        string    `json:"content"`
	Position       int       `json:"position"`
	X              *float64  `json:"x,omitempty"`
	Y              *float64  `json:"y,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewMessageID returns a fresh message identifier. Provisional streaming ids
// come from the same generator so a finalized message keeps its id.
func NewMessageID() string {
	return uuid.NewString()
}
