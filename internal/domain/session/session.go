package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"hypermaps/server/internal/domain/chat"
	"hypermaps/server/internal/domain/llm"
)

// State of a streaming generation session.
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateStreaming  State = "streaming"
	StateFinalizing State = "finalizing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// allowedEdges is the complete transition table. The Idle targets are the
// cancel edges out of every non-terminal working state.
var allowedEdges = map[State][]State{
	StateIdle:       {StateRequesting},
	StateRequesting: {StateStreaming, StateFailed, StateIdle},
	StateStreaming:  {StateFinalizing, StateFailed, StateIdle},
	StateFinalizing: {StateCompleted, StateFailed, StateIdle},
}

// Observer receives session progress. Callbacks run on the session's
// goroutine, in order, and must not call back into the session.
type Observer interface {
	OnTransition(from, to State)
	OnDelta(text string)
	OnData(raw []byte)
	OnAnnotation(raw []byte)
	OnCompleted(msg *chat.Message, finishReason string, usage *llm.Usage)
	OnFailed(ferr *Error)
}

// NopObserver discards all callbacks.
type NopObserver struct{}

func (NopObserver) OnTransition(State, State)                     {}
func (NopObserver) OnDelta(string)                                {}
func (NopObserver) OnData([]byte)                                 {}
func (NopObserver) OnAnnotation([]byte)                           {}
func (NopObserver) OnCompleted(*chat.Message, string, *llm.Usage) {}
func (NopObserver) OnFailed(*Error)                               {}

// Snapshot is a point-in-time view of a session, safe to take from any
// goroutine.
type Snapshot struct {
	State          State
	ConversationID string
	UserMessageID  string
	AssistantID    string
	Content        string
	Failure        *Error
}

// Session tracks one streaming generation for a conversation. The response
// accumulates in an in-memory buffer; nothing is persisted per chunk. The
// assistant id is assigned up front so the transient node and the persisted
// message share it.
type Session struct {
	mu             sync.Mutex
	state          State
	conversationID string
	userMessageID  string
	assistantID    string
	buffer         strings.Builder
	failure        *Error
	cancelled      bool
	stream         llm.Stream
	observer       Observer
	logger         zerolog.Logger
}

func newSession(conversationID string, observer Observer, logger zerolog.Logger) *Session {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Session{
		state:          StateIdle,
		conversationID: conversationID,
		assistantID:    chat.NewMessageID(),
		observer:       observer,
		logger:         logger.With().Str("conversation_id", conversationID).Logger(),
	}
}

// transition is the single authority over state changes. It rejects edges
// not in the table, which is how a racing cancel wins: once the state is
// Idle, the worker's pending transition fails and the worker stops.
func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(to)
}

func (s *Session) transitionLocked(to State) error {
	from := s.state
	for _, allowed := range allowedEdges[from] {
		if allowed == to {
			s.state = to
			s.logger.Debug().Str("from", string(from)).Str("to", string(to)).Msg("session transition")
			s.observer.OnTransition(from, to)
			return nil
		}
	}
	return fmt.Errorf("invalid session transition %s -> %s", from, to)
}

// Cancel aborts the session from any non-terminal state: the upstream body
// is closed, the buffer is discarded, and the state returns to Idle. Safe to
// call from any goroutine and a no-op once the session is terminal or Idle.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() || s.state == StateIdle {
		return false
	}
	s.cancelled = true
	if s.stream != nil {
		s.stream.Close()
	}
	s.buffer.Reset()
	if err := s.transitionLocked(StateIdle); err != nil {
		return false
	}
	s.logger.Info().Msg("session cancelled")
	return true
}

// Snapshot returns the current session view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:          s.state,
		ConversationID: s.conversationID,
		UserMessageID:  s.userMessageID,
		AssistantID:    s.assistantID,
		Content:        s.buffer.String(),
		Failure:        s.failure,
	}
}

func (s *Session) appendDelta(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled || s.state != StateStreaming {
		return false
	}
	s.buffer.WriteString(text)
	return true
}

func (s *Session) fail(ferr *Error) {
	s.mu.Lock()
	if err := s.transitionLocked(StateFailed); err != nil {
		// Cancelled underneath us; the failure is moot.
		s.mu.Unlock()
		return
	}
	s.failure = ferr
	s.mu.Unlock()
	s.logger.Warn().Err(ferr).Str("kind", string(ferr.Kind)).Msg("session failed")
	s.observer.OnFailed(ferr)
}

func (s *Session) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *Session) setStream(stream llm.Stream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		stream.Close()
		return false
	}
	s.stream = stream
	return true
}

func (s *Session) bufferedContent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.String()
}
