package flow

import (
	"fmt"
	"hash/fnv"
	"sort"

	"hypermaps/server/internal/domain/chat"
)

// Canvas layout constants. Messages without stored coordinates fall into two
// role columns; comments get a column of their own.
const (
	columnUserX      = 50.0
	columnAssistantX = 450.0
	columnCommentX   = 850.0
	rowHeight        = 160.0
	childOffsetX     = 400.0
)

// NodeKind discriminates projected nodes.
type NodeKind string

const (
	NodeMessage NodeKind = "message"
	NodeComment NodeKind = "comment"
)

// Node is one canvas node of the projected graph.
type Node struct {
	ID        string    `json:"id"`
	Kind      NodeKind  `json:"kind"`
	Role      chat.Role `json:"role,omitempty"`
	Content   string    `json:"content"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Streaming bool      `json:"streaming,omitempty"`
}

// Edge connects a parent message to a child message.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Streaming describes the active session, if any, so an in-flight assistant
// reply appears as a transient node before it is persisted.
type Streaming struct {
	Active        bool
	AssistantID   string
	UserMessageID string
	Content       string
}

// Project derives the canvas graph from persisted state plus the active
// session. It is a pure function: same inputs, same output, safe to call on
// every refresh. A transient node is added only while the provisional
// assistant id is absent from messages; once the message is persisted under
// that id the persisted node takes its place in the same pass.
func Project(messages []*chat.Message, comments []*chat.Comment, streaming Streaming) ([]Node, []Edge) {
	sorted := make([]*chat.Message, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Position != sorted[j].Position {
			return sorted[i].Position < sorted[j].Position
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	byID := make(map[string]*chat.Message, len(sorted))
	for _, msg := range sorted {
		byID[msg.ID] = msg
	}

	type point struct{ x, y float64 }
	resolved := make(map[string]point, len(sorted))

	nodes := make([]Node, 0, len(sorted)+len(comments)+1)
	edges := make([]Edge, 0, len(sorted))

	for idx, msg := range sorted {
		var p point
		switch {
		case msg.X != nil && msg.Y != nil:
			p = point{*msg.X, *msg.Y}
		default:
			if parent, ok := resolved[msg.ParentMessageID]; ok && msg.ParentMessageID != "" {
				p = point{parent.x + childOffsetX, parent.y + jitter(msg.ID)}
			} else {
				p = point{roleColumn(msg.Role) + jitter(msg.ID), float64(idx) * rowHeight}
			}
		}
		resolved[msg.ID] = p
		nodes = append(nodes, Node{
			ID:      msg.ID,
			Kind:    NodeMessage,
			Role:    msg.Role,
			Content: msg.Content,
			X:       p.x,
			Y:       p.y,
		})
		if msg.ParentMessageID != "" {
			if _, ok := byID[msg.ParentMessageID]; ok {
				edges = append(edges, edge(msg.ParentMessageID, msg.ID))
			}
		}
	}

	if streaming.Active && streaming.AssistantID != "" {
		if _, persisted := byID[streaming.AssistantID]; !persisted {
			var p point
			if parent, ok := resolved[streaming.UserMessageID]; ok && streaming.UserMessageID != "" {
				p = point{parent.x + childOffsetX, parent.y + jitter(streaming.AssistantID)}
			} else {
				p = point{columnAssistantX + jitter(streaming.AssistantID), float64(len(sorted)) * rowHeight}
			}
			nodes = append(nodes, Node{
				ID:        streaming.AssistantID,
				Kind:      NodeMessage,
				Role:      chat.RoleAssistant,
				Content:   streaming.Content,
				X:         p.x,
				Y:         p.y,
				Streaming: true,
			})
			if streaming.UserMessageID != "" {
				edges = append(edges, edge(streaming.UserMessageID, streaming.AssistantID))
			}
		}
	}

	sortedComments := make([]*chat.Comment, len(comments))
	copy(sortedComments, comments)
	sort.SliceStable(sortedComments, func(i, j int) bool {
		if sortedComments[i].Position != sortedComments[j].Position {
			return sortedComments[i].Position < sortedComments[j].Position
		}
		return sortedComments[i].CreatedAt.Before(sortedComments[j].CreatedAt)
	})
	for idx, c := range sortedComments {
		var p point
		if c.X != nil && c.Y != nil {
			p = point{*c.X, *c.Y}
		} else {
			p = point{columnCommentX + jitter(c.ID), float64(idx) * rowHeight}
		}
		nodes = append(nodes, Node{
			ID:      c.ID,
			Kind:    NodeComment,
			Content: c.Content,
			X:       p.x,
			Y:       p.y,
		})
	}

	return nodes, edges
}

// CanConnect enforces the manual-connection rule: only a user message may
// become the parent of an assistant message.
func CanConnect(parent, child *chat.Message) bool {
	return parent.Role == chat.RoleUser && child.Role == chat.RoleAssistant
}

func roleColumn(role chat.Role) float64 {
	if role == chat.RoleAssistant {
		return columnAssistantX
	}
	return columnUserX
}

// jitter maps an id to a deterministic offset in [-10, +10] so auto-placed
// nodes do not stack pixel-perfectly.
func jitter(id string) float64 {
	h := fnv.New32a()
	h.Write([]byte(id))
	return float64(int(h.Sum32()%21) - 10)
}

func edge(source, target string) Edge {
	return Edge{
		ID:     fmt.Sprintf("e-%s-%s", source, target),
		Source: source,
		Target: target,
	}
}
