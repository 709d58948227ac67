package hypergraph_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hypermaps/server/internal/domain/chat"
	"hypermaps/server/internal/domain/publish"
	"hypermaps/server/internal/infrastructure/store/hypergraph"
)

func openStore(t *testing.T) *hypergraph.Store {
	t.Helper()
	store, err := hypergraph.Open(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func newMsg(id, conv string, position int) *chat.Message {
	return &chat.Message{
		ID:             id,
		ConversationID: conv,
		Role:           chat.RoleUser,
		Content:        "content " + id,
		Position:       position,
		CreatedAt:      time.Date(2026, 2, 1, 12, 0, position, 0, time.UTC),
	}
}

func TestMessageRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	x, y := 12.5, -3.0
	msg := newMsg("m1", "conv-1", 0)
	msg.X, msg.Y = &x, &y
	if err := store.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.GetMessage(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != msg.Content || got.Position != 0 {
		t.Errorf("got %+v", got)
	}
	if got.X == nil || *got.X != 12.5 || got.Y == nil || *got.Y != -3.0 {
		t.Errorf("coordinates lost: %+v", got)
	}
}

func TestCreateDuplicateMessage(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.CreateMessage(ctx, newMsg("m1", "conv-1", 0)); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateMessage(ctx, newMsg("m1", "conv-1", 1)); !errors.Is(err, chat.ErrAlreadyExists) {
		t.Fatalf("duplicate create error = %v, want ErrAlreadyExists", err)
	}
}

func TestListOrderedByPosition(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	// Insert out of order; the key layout must bring them back sorted.
	for _, p := range []int{2, 0, 1} {
		if err := store.CreateMessage(ctx, newMsg("m"+string(rune('a'+p)), "conv-1", p)); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.CreateMessage(ctx, newMsg("other", "conv-2", 0)); err != nil {
		t.Fatal(err)
	}

	msgs, err := store.ListByConversation(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("listed %d messages, want 3", len(msgs))
	}
	for i, msg := range msgs {
		if msg.Position != i {
			t.Errorf("index %d has position %d", i, msg.Position)
		}
	}
}

func TestUpdateMessageRekeys(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	msg := newMsg("m1", "conv-1", 0)
	if err := store.CreateMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}

	msg.Position = 5
	msg.Content = "edited"
	if err := store.UpdateMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetMessage(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Position != 5 || got.Content != "edited" {
		t.Errorf("got %+v", got)
	}

	msgs, err := store.ListByConversation(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("listed %d messages after rekey, want 1", len(msgs))
	}
}

func TestDeleteMessage(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.CreateMessage(ctx, newMsg("m1", "conv-1", 0)); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteMessage(ctx, "m1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetMessage(ctx, "m1"); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("get after delete = %v, want ErrNotFound", err)
	}
	if err := store.DeleteMessage(ctx, "m1"); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("second delete = %v, want ErrNotFound", err)
	}
}

func TestCommentRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		c := &chat.Comment{
			ID:             "c" + string(rune('1'+i)),
			ConversationID: "conv-1",
			Content:        "note",
			Position:       i,
			CreatedAt:      time.Now().UTC(),
		}
		if err := store.CreateComment(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	comments, err := store.ListCommentsByConversation(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != 2 {
		t.Fatalf("listed %d comments, want 2", len(comments))
	}

	if err := store.DeleteComment(ctx, comments[0].ID); err != nil {
		t.Fatal(err)
	}
	comments, err = store.ListCommentsByConversation(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != 1 {
		t.Fatalf("listed %d comments after delete, want 1", len(comments))
	}
}

func TestPublishRejectsDuplicateSource(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	rec := &publish.Record{
		ID:              "p1",
		SourceMessageID: "m1",
		ConversationID:  "conv-1",
		Role:            chat.RoleAssistant,
		Content:         "published",
		PublishedAt:     time.Now().UTC(),
	}
	if err := store.Publish(ctx, rec); err != nil {
		t.Fatal(err)
	}

	dup := *rec
	dup.ID = "p2"
	dup.PublishedAt = rec.PublishedAt.Add(time.Second)
	if err := store.Publish(ctx, &dup); !errors.Is(err, chat.ErrAlreadyExists) {
		t.Fatalf("duplicate publish = %v, want ErrAlreadyExists", err)
	}

	recs, err := store.ListPublic(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].ID != "p1" {
		t.Fatalf("public records = %+v, want single p1", recs)
	}
}
