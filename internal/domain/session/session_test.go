package session_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hypermaps/server/internal/domain/chat"
	"hypermaps/server/internal/domain/llm"
	"hypermaps/server/internal/domain/session"
)

type memStore struct {
	mu         sync.Mutex
	msgs       []*chat.Message
	failCreate func(*chat.Message) error
}

func (s *memStore) CreateMessage(_ context.Context, msg *chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		if err := s.failCreate(msg); err != nil {
			return err
		}
	}
	cp := *msg
	s.msgs = append(s.msgs, &cp)
	return nil
}

func (s *memStore) GetMessage(_ context.Context, id string) (*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.msgs {
		if msg.ID == id {
			cp := *msg
			return &cp, nil
		}
	}
	return nil, chat.ErrNotFound
}

func (s *memStore) UpdateMessage(_ context.Context, msg *chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.msgs {
		if existing.ID == msg.ID {
			cp := *msg
			s.msgs[i] = &cp
			return nil
		}
	}
	return chat.ErrNotFound
}

func (s *memStore) DeleteMessage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.msgs {
		if existing.ID == id {
			s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
			return nil
		}
	}
	return chat.ErrNotFound
}

func (s *memStore) ListByConversation(_ context.Context, conversationID string) ([]*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*chat.Message
	for _, msg := range s.msgs {
		if msg.ConversationID == conversationID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) byRole(role chat.Role) []*chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*chat.Message
	for _, msg := range s.msgs {
		if msg.Role == role {
			cp := *msg
			out = append(out, &cp)
		}
	}
	return out
}

// scriptStream feeds scripted events; Close unblocks a pending Recv.
type scriptStream struct {
	events chan *llm.StreamEvent
	closed chan struct{}
	once   sync.Once
}

func newScriptStream(events ...*llm.StreamEvent) *scriptStream {
	ch := make(chan *llm.StreamEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return &scriptStream{events: ch, closed: make(chan struct{})}
}

func newBlockingStream(events ...*llm.StreamEvent) *scriptStream {
	ch := make(chan *llm.StreamEvent, len(events)+1)
	for _, ev := range events {
		ch <- ev
	}
	return &scriptStream{events: ch, closed: make(chan struct{})}
}

func (s *scriptStream) Recv() (*llm.StreamEvent, error) {
	select {
	case <-s.closed:
		return nil, errors.New("connection closed")
	default:
	}
	select {
	case ev, ok := <-s.events:
		if !ok {
			return nil, io.EOF
		}
		return ev, nil
	case <-s.closed:
		return nil, errors.New("connection closed")
	}
}

func (s *scriptStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *scriptStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type scriptProvider struct {
	mu      sync.Mutex
	streams []llm.Stream
	openErr error
}

func (p *scriptProvider) StreamCompletion(context.Context, *llm.CompletionRequest) (llm.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.openErr != nil {
		return nil, p.openErr
	}
	if len(p.streams) == 0 {
		return newScriptStream(), nil
	}
	stream := p.streams[0]
	p.streams = p.streams[1:]
	return stream, nil
}

func (p *scriptProvider) Healthy(context.Context) error { return nil }

func text(s string) *llm.StreamEvent {
	return &llm.StreamEvent{Kind: llm.EventText, Text: s}
}

func finish() *llm.StreamEvent {
	return &llm.StreamEvent{Kind: llm.EventFinish, FinishReason: "stop"}
}

func newManager(store chat.MessageStore, provider llm.Provider) *session.Manager {
	return session.NewManager(store, provider, session.Config{
		Model:        "test-model",
		SystemPrompt: "You are helpful.",
	}, zerolog.Nop())
}

func TestGenerateCompletes(t *testing.T) {
	store := &memStore{}
	provider := &scriptProvider{streams: []llm.Stream{
		newScriptStream(text("Hello"), text(" world"), finish()),
	}}
	mgr := newManager(store, provider)

	result, err := mgr.Generate(context.Background(), session.GenerateInput{
		ConversationID: "conv-1",
		Content:        "Say hello",
	}, nil)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if result.State != session.StateCompleted {
		t.Fatalf("state = %s, want %s", result.State, session.StateCompleted)
	}
	if result.Assistant == nil || result.Assistant.Content != "Hello world" {
		t.Fatalf("assistant content = %+v, want Hello world", result.Assistant)
	}
	if len(store.msgs) != 2 {
		t.Fatalf("store writes = %d, want exactly 2", len(store.msgs))
	}
	if result.Assistant.ParentMessageID != result.UserMessage.ID {
		t.Errorf("assistant parent = %q, want user message id %q",
			result.Assistant.ParentMessageID, result.UserMessage.ID)
	}
	if result.Assistant.Position != result.UserMessage.Position+1 {
		t.Errorf("assistant position = %d, want %d", result.Assistant.Position, result.UserMessage.Position+1)
	}
}

func TestGenerateErrorRecordFails(t *testing.T) {
	store := &memStore{}
	provider := &scriptProvider{streams: []llm.Stream{
		newScriptStream(&llm.StreamEvent{Kind: llm.EventError, Text: "rate limit exceeded, retry later"}),
	}}
	mgr := newManager(store, provider)

	result, err := mgr.Generate(context.Background(), session.GenerateInput{
		ConversationID: "conv-1",
		Content:        "hi",
	}, nil)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if result.State != session.StateFailed {
		t.Fatalf("state = %s, want %s", result.State, session.StateFailed)
	}
	if result.Failure == nil || result.Failure.Kind != session.KindRateLimit {
		t.Fatalf("failure = %+v, want kind %s", result.Failure, session.KindRateLimit)
	}
	if got := len(store.byRole(chat.RoleAssistant)); got != 0 {
		t.Errorf("assistant writes = %d, want 0", got)
	}
	if got := len(store.byRole(chat.RoleUser)); got != 1 {
		t.Errorf("user writes = %d, want 1", got)
	}
}

func TestGenerateEmptyBufferFails(t *testing.T) {
	store := &memStore{}
	provider := &scriptProvider{streams: []llm.Stream{
		newScriptStream(finish()),
	}}
	mgr := newManager(store, provider)

	result, err := mgr.Generate(context.Background(), session.GenerateInput{
		ConversationID: "conv-1",
		Content:        "hi",
	}, nil)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if result.State != session.StateFailed {
		t.Fatalf("state = %s, want %s", result.State, session.StateFailed)
	}
	if result.Failure == nil || result.Failure.Kind != session.KindGenerationEmpty {
		t.Fatalf("failure = %+v, want kind %s", result.Failure, session.KindGenerationEmpty)
	}
	if got := len(store.byRole(chat.RoleAssistant)); got != 0 {
		t.Errorf("assistant writes = %d, want 0", got)
	}
}

func TestGeneratePersistFailureIsDistinct(t *testing.T) {
	store := &memStore{failCreate: func(msg *chat.Message) error {
		if msg.Role == chat.RoleAssistant {
			return errors.New("disk full")
		}
		return nil
	}}
	provider := &scriptProvider{streams: []llm.Stream{
		newScriptStream(text("content"), finish()),
	}}
	mgr := newManager(store, provider)

	result, err := mgr.Generate(context.Background(), session.GenerateInput{
		ConversationID: "conv-1",
		Content:        "hi",
	}, nil)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if result.Failure == nil || result.Failure.Kind != session.KindPersistence {
		t.Fatalf("failure = %+v, want kind %s", result.Failure, session.KindPersistence)
	}
}

func TestCancelMidStream(t *testing.T) {
	store := &memStore{}
	stream := newBlockingStream(text("partial"))
	provider := &scriptProvider{streams: []llm.Stream{stream}}
	mgr := newManager(store, provider)

	obs := &deltaObserver{seen: make(chan string, 8)}
	done := make(chan *session.Result, 1)
	go func() {
		result, err := mgr.Generate(context.Background(), session.GenerateInput{
			ConversationID: "conv-1",
			Content:        "hi",
		}, obs)
		if err != nil {
			t.Errorf("Generate returned error: %v", err)
		}
		done <- result
	}()

	select {
	case <-obs.seen:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first delta")
	}

	if !mgr.Cancel("conv-1") {
		t.Fatal("Cancel returned false for an active session")
	}
	result := <-done

	if result.State != session.StateIdle {
		t.Fatalf("state after cancel = %s, want %s", result.State, session.StateIdle)
	}
	if !stream.isClosed() {
		t.Error("upstream stream not closed on cancel")
	}
	if got := len(store.byRole(chat.RoleAssistant)); got != 0 {
		t.Errorf("assistant writes after cancel = %d, want 0", got)
	}
}

func TestAtMostOneActiveSession(t *testing.T) {
	store := &memStore{}
	stream := newBlockingStream(text("partial"))
	provider := &scriptProvider{streams: []llm.Stream{stream}}
	mgr := newManager(store, provider)

	obs := &deltaObserver{seen: make(chan string, 8)}
	done := make(chan struct{})
	go func() {
		defer close(done)
		mgr.Generate(context.Background(), session.GenerateInput{
			ConversationID: "conv-1",
			Content:        "first",
		}, obs)
	}()

	select {
	case <-obs.seen:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first delta")
	}

	_, err := mgr.Generate(context.Background(), session.GenerateInput{
		ConversationID: "conv-1",
		Content:        "second",
	}, nil)
	if !errors.Is(err, session.ErrSessionActive) {
		t.Fatalf("second Generate error = %v, want ErrSessionActive", err)
	}
	if got := len(store.byRole(chat.RoleUser)); got != 1 {
		t.Errorf("user writes = %d, want 1 (rejected submit must be a no-op)", got)
	}

	mgr.Cancel("conv-1")
	<-done
}

func TestProvisionalIDBecomesPersistedID(t *testing.T) {
	store := &memStore{}
	stream := newBlockingStream(text("Hello"))
	provider := &scriptProvider{streams: []llm.Stream{stream}}
	mgr := newManager(store, provider)

	obs := &deltaObserver{seen: make(chan string, 8)}
	done := make(chan *session.Result, 1)
	go func() {
		result, _ := mgr.Generate(context.Background(), session.GenerateInput{
			ConversationID: "conv-1",
			Content:        "hi",
		}, obs)
		done <- result
	}()

	select {
	case <-obs.seen:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first delta")
	}

	snap, ok := mgr.Snapshot("conv-1")
	if !ok {
		t.Fatal("no snapshot for active session")
	}
	if snap.State != session.StateStreaming {
		t.Fatalf("snapshot state = %s, want %s", snap.State, session.StateStreaming)
	}
	if snap.Content != "Hello" {
		t.Errorf("snapshot content = %q, want Hello", snap.Content)
	}

	stream.events <- finish()
	close(stream.events)
	result := <-done

	if result.State != session.StateCompleted {
		t.Fatalf("state = %s, want completed", result.State)
	}
	if result.Assistant.ID != snap.AssistantID {
		t.Errorf("persisted id = %q, want provisional id %q", result.Assistant.ID, snap.AssistantID)
	}
}

func TestRetryBudget(t *testing.T) {
	store := &memStore{}
	failing := func() llm.Stream {
		return newScriptStream(&llm.StreamEvent{Kind: llm.EventError, Text: "network error"})
	}
	provider := &scriptProvider{streams: []llm.Stream{
		failing(), failing(), failing(), failing(),
	}}
	mgr := newManager(store, provider)

	if _, err := mgr.Generate(context.Background(), session.GenerateInput{
		ConversationID: "conv-1",
		Content:        "hi",
	}, nil); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	for i := 0; i < 3; i++ {
		result, err := mgr.Retry(context.Background(), "conv-1", "", nil)
		if err != nil {
			t.Fatalf("retry %d returned error: %v", i+1, err)
		}
		if result.State != session.StateFailed {
			t.Fatalf("retry %d state = %s, want failed", i+1, result.State)
		}
	}

	if _, err := mgr.Retry(context.Background(), "conv-1", "", nil); !errors.Is(err, session.ErrRetryLimit) {
		t.Fatalf("fourth retry error = %v, want ErrRetryLimit", err)
	}
}

func TestRetryBudgetResetsOnSuccess(t *testing.T) {
	store := &memStore{}
	provider := &scriptProvider{streams: []llm.Stream{
		newScriptStream(&llm.StreamEvent{Kind: llm.EventError, Text: "network error"}),
		newScriptStream(text("recovered"), finish()),
		newScriptStream(&llm.StreamEvent{Kind: llm.EventError, Text: "network error"}),
	}}
	mgr := newManager(store, provider)

	if _, err := mgr.Generate(context.Background(), session.GenerateInput{
		ConversationID: "conv-1",
		Content:        "hi",
	}, nil); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	result, err := mgr.Retry(context.Background(), "conv-1", "", nil)
	if err != nil {
		t.Fatalf("first retry returned error: %v", err)
	}
	if result.State != session.StateCompleted {
		t.Fatalf("first retry state = %s, want completed", result.State)
	}
	if got := mgr.Retries("conv-1"); got != 0 {
		t.Fatalf("retry count after success = %d, want 0", got)
	}
}

func TestGenerateChunkOrderAcrossSplits(t *testing.T) {
	parts := []string{"The", " quick", " brown", " fox", " jumps"}
	events := make([]*llm.StreamEvent, 0, len(parts)+1)
	for _, p := range parts {
		events = append(events, text(p))
	}
	events = append(events, finish())

	store := &memStore{}
	provider := &scriptProvider{streams: []llm.Stream{newScriptStream(events...)}}
	mgr := newManager(store, provider)

	result, err := mgr.Generate(context.Background(), session.GenerateInput{
		ConversationID: "conv-1",
		Content:        "go",
	}, nil)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	want := strings.Join(parts, "")
	if result.Assistant == nil || result.Assistant.Content != want {
		t.Fatalf("assistant content = %+v, want %q", result.Assistant, want)
	}
}

type deltaObserver struct {
	session.NopObserver
	seen chan string
}

func (o *deltaObserver) OnDelta(text string) {
	select {
	case o.seen <- text:
	default:
	}
}
