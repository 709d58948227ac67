package llm

import "context"

// Turn is a single entry of the completion transcript sent upstream.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest carries everything the provider needs for one generation.
type CompletionRequest struct {
	Model       string  `json:"model"`
	Messages    []Turn  `json:"messages"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Stream      bool    `json:"stream"`
}

// Usage reports token accounting from the finish record.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// EventKind discriminates decoded stream records.
type EventKind int

const (
	EventText EventKind = iota
	EventError
	EventFinish
	EventData
	EventAnnotation
)

// StreamEvent is one decoded record of the tagged stream protocol.
type StreamEvent struct {
	Kind         EventKind
	Text         string // EventText, EventError
	FinishReason string // EventFinish
	Usage        *Usage // EventFinish, when present
	Raw          []byte // EventData, EventAnnotation: payload passed through
}

// Stream yields decoded events until io.EOF or an error.
type Stream interface {
	Recv() (*StreamEvent, error)
	Close() error
}

// Provider talks to the upstream completion endpoint.
type Provider interface {
	// StreamCompletion opens a streaming generation. Cancelling ctx closes
	// the underlying connection.
	StreamCompletion(ctx context.Context, req *CompletionRequest) (Stream, error)
	// Healthy probes the upstream endpoint.
	Healthy(ctx context.Context) error
}
