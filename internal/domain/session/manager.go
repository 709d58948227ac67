package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hypermaps/server/internal/domain/chat"
	"hypermaps/server/internal/domain/llm"
)

// Pre-flight rejections. Neither creates a session.
var (
	ErrSessionActive = errors.New("a generation is already active for this conversation")
	ErrRetryLimit    = errors.New("maximum retry attempts reached")
)

// Config holds generation parameters for the manager.
type Config struct {
	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	MaxRetries   int
}

// GenerateInput describes a user submission.
type GenerateInput struct {
	ConversationID  string
	Content         string
	ParentMessageID string
	X               *float64
	Y               *float64
}

// Result is the outcome of a finished run. State is StateCompleted,
// StateFailed, or StateIdle when the run was cancelled.
type Result struct {
	State        State
	UserMessage  *chat.Message
	Assistant    *chat.Message
	Failure      *Error
	FinishReason string
	Usage        *llm.Usage
}

// Manager owns the streaming sessions, at most one per conversation, and the
// per-conversation retry budget. Retry counts survive individual sessions
// and reset only when a generation completes.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	retries  map[string]int

	store    chat.MessageStore
	provider llm.Provider
	cfg      Config
	logger   zerolog.Logger
}

func NewManager(store chat.MessageStore, provider llm.Provider, cfg Config, logger zerolog.Logger) *Manager {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Manager{
		sessions: make(map[string]*Session),
		retries:  make(map[string]int),
		store:    store,
		provider: provider,
		cfg:      cfg,
		logger:   logger.With().Str("component", "session_manager").Logger(),
	}
}

// Generate persists the user message and runs a streaming generation on the
// calling goroutine, reporting progress to obs. It returns ErrSessionActive
// without side effects when the conversation already has an active session.
func (m *Manager) Generate(ctx context.Context, in GenerateInput, obs Observer) (*Result, error) {
	if in.Content == "" {
		return nil, &Error{Kind: KindValidation, Message: "message content is required"}
	}

	sess, err := m.acquire(in.ConversationID, obs)
	if err != nil {
		return nil, err
	}
	defer m.release(in.ConversationID)

	if err := sess.transition(StateRequesting); err != nil {
		return nil, err
	}

	existing, err := m.store.ListByConversation(ctx, in.ConversationID)
	if err != nil {
		ferr := NewError(KindPersistence, fmt.Errorf("list conversation: %w", err))
		sess.fail(ferr)
		return &Result{State: StateFailed, Failure: ferr}, nil
	}

	userMsg := &chat.Message{
		ID:              chat.NewMessageID(),
		ConversationID:  in.ConversationID,
		ParentMessageID: in.ParentMessageID,
		Role:            chat.RoleUser,
		Content:         in.Content,
		Position:        len(existing),
		X:               in.X,
		Y:               in.Y,
		CreatedAt:       time.Now().UTC(),
	}
	if err := m.store.CreateMessage(ctx, userMsg); err != nil {
		ferr := NewError(KindPersistence, fmt.Errorf("persist user message: %w", err))
		sess.fail(ferr)
		return &Result{State: StateFailed, Failure: ferr}, nil
	}

	sess.mu.Lock()
	sess.userMessageID = userMsg.ID
	sess.mu.Unlock()

	result := m.run(ctx, sess, userMsg)
	result.UserMessage = userMsg
	return result, nil
}

// Retry reruns the generation for the conversation's latest user message (or
// the one identified by userMessageID). No new user message is written. Each
// attempt consumes one unit of the retry budget; ErrRetryLimit is returned
// once the budget is spent.
func (m *Manager) Retry(ctx context.Context, conversationID, userMessageID string, obs Observer) (*Result, error) {
	m.mu.Lock()
	if m.retries[conversationID] >= m.cfg.MaxRetries {
		m.mu.Unlock()
		return nil, ErrRetryLimit
	}
	m.mu.Unlock()

	userMsg, err := m.findUserMessage(ctx, conversationID, userMessageID)
	if err != nil {
		return nil, err
	}

	sess, err := m.acquire(conversationID, obs)
	if err != nil {
		return nil, err
	}
	defer m.release(conversationID)

	m.mu.Lock()
	m.retries[conversationID]++
	attempt := m.retries[conversationID]
	m.mu.Unlock()
	m.logger.Info().Str("conversation_id", conversationID).Int("attempt", attempt).Msg("retrying generation")

	if err := sess.transition(StateRequesting); err != nil {
		return nil, err
	}
	sess.mu.Lock()
	sess.userMessageID = userMsg.ID
	sess.mu.Unlock()

	result := m.run(ctx, sess, userMsg)
	result.UserMessage = userMsg
	return result, nil
}

// Cancel aborts the conversation's active session, if any.
func (m *Manager) Cancel(conversationID string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[conversationID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return sess.Cancel()
}

// Snapshot returns the active session's view, if one exists.
func (m *Manager) Snapshot(conversationID string) (Snapshot, bool) {
	m.mu.Lock()
	sess, ok := m.sessions[conversationID]
	m.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return sess.Snapshot(), true
}

// Retries reports the spent retry budget for a conversation.
func (m *Manager) Retries(conversationID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retries[conversationID]
}

func (m *Manager) acquire(conversationID string, obs Observer) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[conversationID]; exists {
		return nil, ErrSessionActive
	}
	sess := newSession(conversationID, obs, m.logger)
	m.sessions[conversationID] = sess
	return sess, nil
}

func (m *Manager) release(conversationID string) {
	m.mu.Lock()
	delete(m.sessions, conversationID)
	m.mu.Unlock()
}

func (m *Manager) resetRetries(conversationID string) {
	m.mu.Lock()
	delete(m.retries, conversationID)
	m.mu.Unlock()
}

// run drives the session from Requesting to a terminal state (or back to
// Idle on cancel). The response accumulates in the session buffer; the single
// assistant write happens at finalization.
func (m *Manager) run(ctx context.Context, sess *Session, userMsg *chat.Message) *Result {
	turns, err := m.buildTurns(ctx, userMsg)
	if err != nil {
		ferr := NewError(KindPersistence, err)
		sess.fail(ferr)
		return &Result{State: StateFailed, Failure: ferr}
	}

	stream, err := m.provider.StreamCompletion(ctx, &llm.CompletionRequest{
		Model:       m.cfg.Model,
		Messages:    turns,
		Temperature: m.cfg.Temperature,
		MaxTokens:   m.cfg.MaxTokens,
	})
	if err != nil {
		if sess.isCancelled() {
			return &Result{State: StateIdle}
		}
		ferr := ClassifyError(err)
		sess.fail(ferr)
		return &Result{State: StateFailed, Failure: ferr}
	}
	if !sess.setStream(stream) {
		return &Result{State: StateIdle}
	}
	defer stream.Close()

	if err := sess.transition(StateStreaming); err != nil {
		return &Result{State: StateIdle}
	}

	var finishReason string
	var usage *llm.Usage
	for {
		ev, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if sess.isCancelled() {
				return &Result{State: StateIdle}
			}
			kind := Classify(err.Error())
			if kind == KindUnknown {
				kind = KindNetwork
			}
			ferr := NewError(kind, err)
			sess.fail(ferr)
			return &Result{State: StateFailed, Failure: ferr}
		}
		switch ev.Kind {
		case llm.EventText:
			if !sess.appendDelta(ev.Text) {
				return &Result{State: StateIdle}
			}
			sess.observer.OnDelta(ev.Text)
		case llm.EventError:
			ferr := NewError(Classify(ev.Text), errors.New(ev.Text))
			sess.fail(ferr)
			return &Result{State: StateFailed, Failure: ferr}
		case llm.EventFinish:
			finishReason = ev.FinishReason
			usage = ev.Usage
		case llm.EventData:
			sess.observer.OnData(ev.Raw)
		case llm.EventAnnotation:
			sess.observer.OnAnnotation(ev.Raw)
		}
		if ev.Kind == llm.EventFinish {
			break
		}
	}

	if err := sess.transition(StateFinalizing); err != nil {
		return &Result{State: StateIdle}
	}

	content := sess.bufferedContent()
	if content == "" {
		ferr := NewError(KindGenerationEmpty, nil)
		sess.fail(ferr)
		return &Result{State: StateFailed, Failure: ferr}
	}

	assistant := &chat.Message{
		ID:              sess.assistantID,
		ConversationID:  userMsg.ConversationID,
		ParentMessageID: userMsg.ID,
		Role:            chat.RoleAssistant,
		Content:         content,
		Position:        userMsg.Position + 1,
		CreatedAt:       time.Now().UTC(),
	}
	if err := m.store.CreateMessage(ctx, assistant); err != nil {
		ferr := NewError(KindPersistence, fmt.Errorf("persist assistant message: %w", err))
		sess.fail(ferr)
		return &Result{State: StateFailed, Failure: ferr}
	}

	if err := sess.transition(StateCompleted); err != nil {
		// Cancel lost the race to the write; the message stays persisted.
		return &Result{State: StateIdle, Assistant: assistant}
	}
	m.resetRetries(userMsg.ConversationID)
	sess.observer.OnCompleted(assistant, finishReason, usage)
	return &Result{State: StateCompleted, Assistant: assistant, FinishReason: finishReason, Usage: usage}
}

// buildTurns walks the parent chain from the user message to its root and
// returns the transcript oldest-first, system prompt included.
func (m *Manager) buildTurns(ctx context.Context, userMsg *chat.Message) ([]llm.Turn, error) {
	msgs, err := m.store.ListByConversation(ctx, userMsg.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	byID := make(map[string]*chat.Message, len(msgs))
	for _, msg := range msgs {
		byID[msg.ID] = msg
	}

	var chain []*chat.Message
	cur := userMsg
	for cur != nil && len(chain) <= len(msgs) {
		chain = append(chain, cur)
		if cur.ParentMessageID == "" {
			break
		}
		cur = byID[cur.ParentMessageID]
	}

	turns := make([]llm.Turn, 0, len(chain)+1)
	if m.cfg.SystemPrompt != "" {
		turns = append(turns, llm.Turn{Role: "system", Content: m.cfg.SystemPrompt})
	}
	for i := len(chain) - 1; i >= 0; i-- {
		turns = append(turns, llm.Turn{Role: string(chain[i].Role), Content: chain[i].Content})
	}
	return turns, nil
}

func (m *Manager) findUserMessage(ctx context.Context, conversationID, userMessageID string) (*chat.Message, error) {
	msgs, err := m.store.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	if userMessageID != "" {
		for _, msg := range msgs {
			if msg.ID == userMessageID && msg.Role == chat.RoleUser {
				return msg, nil
			}
		}
		return nil, &Error{Kind: KindValidation, Message: "user message not found"}
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == chat.RoleUser {
			return msgs[i], nil
		}
	}
	return nil, &Error{Kind: KindValidation, Message: "conversation has no user message to retry"}
}
