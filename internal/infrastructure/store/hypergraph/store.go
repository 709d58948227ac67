// Package hypergraph implements the chat stores on an embedded pebble
// key/value database. Message keys sort by position within their
// conversation, so listing is a single prefix scan; a by-id index supports
// point lookups.
package hypergraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"

	"hypermaps/server/internal/domain/chat"
	"hypermaps/server/internal/infrastructure/logger"
)

// Key layout:
//
//	space:<conversation>:msg:<position 10 digits>:<id> -> message JSON
//	space:<conversation>:cmt:<position 10 digits>:<id> -> comment JSON
//	idx:msg:<id> -> primary key
//	idx:cmt:<id> -> primary key
const (
	msgKind = "msg"
	cmtKind = "cmt"
)

// Store implements chat.MessageStore and chat.CommentStore on pebble.
type Store struct {
	db     *pebble.DB
	logger zerolog.Logger
}

var (
	_ chat.MessageStore = (*Store)(nil)
	_ chat.CommentStore = (*Store)(nil)
)

// Open opens (or creates) the pebble database at path.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open hypergraph store at %s: %w", path, err)
	}
	return &Store{
		db:     db,
		logger: logger.Component(log, "hypergraph_store"),
	}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func primaryKey(kind, conversationID string, position int, id string) []byte {
	return []byte(fmt.Sprintf("space:%s:%s:%010d:%s", conversationID, kind, position, id))
}

func indexKey(kind, id string) []byte {
	return []byte(fmt.Sprintf("idx:%s:%s", kind, id))
}

func prefix(kind, conversationID string) []byte {
	return []byte(fmt.Sprintf("space:%s:%s:", conversationID, kind))
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix.
func prefixUpperBound(p []byte) []byte {
	upper := make([]byte, len(p))
	copy(upper, p)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}

func (s *Store) CreateMessage(_ context.Context, msg *chat.Message) error {
	idxKey := indexKey(msgKind, msg.ID)
	if _, closer, err := s.db.Get(idxKey); err == nil {
		closer.Close()
		return chat.ErrAlreadyExists
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("check message index: %w", err)
	}

	key := primaryKey(msgKind, msg.ConversationID, msg.Position, msg.ID)
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(key, value, nil); err != nil {
		return fmt.Errorf("set message: %w", err)
	}
	if err := batch.Set(idxKey, key, nil); err != nil {
		return fmt.Errorf("set message index: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit message: %w", err)
	}
	return nil
}

func (s *Store) GetMessage(_ context.Context, id string) (*chat.Message, error) {
	key, err := s.lookup(msgKind, id)
	if err != nil {
		return nil, err
	}
	value, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, chat.ErrNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	defer closer.Close()

	var msg chat.Message
	if err := json.Unmarshal(value, &msg); err != nil {
		return nil, fmt.Errorf("decode message %s: %w", id, err)
	}
	return &msg, nil
}

func (s *Store) UpdateMessage(_ context.Context, msg *chat.Message) error {
	oldKey, err := s.lookup(msgKind, msg.ID)
	if err != nil {
		return err
	}
	newKey := primaryKey(msgKind, msg.ConversationID, msg.Position, msg.ID)
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if string(oldKey) != string(newKey) {
		if err := batch.Delete(oldKey, nil); err != nil {
			return fmt.Errorf("delete old message key: %w", err)
		}
		if err := batch.Set(indexKey(msgKind, msg.ID), newKey, nil); err != nil {
			return fmt.Errorf("update message index: %w", err)
		}
	}
	if err := batch.Set(newKey, value, nil); err != nil {
		return fmt.Errorf("set message: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit message update: %w", err)
	}
	return nil
}

func (s *Store) DeleteMessage(_ context.Context, id string) error {
	key, err := s.lookup(msgKind, id)
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(key, nil); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if err := batch.Delete(indexKey(msgKind, id), nil); err != nil {
		return fmt.Errorf("delete message index: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit message delete: %w", err)
	}
	return nil
}

func (s *Store) ListByConversation(_ context.Context, conversationID string) ([]*chat.Message, error) {
	p := prefix(msgKind, conversationID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: p,
		UpperBound: prefixUpperBound(p),
	})
	if err != nil {
		return nil, fmt.Errorf("open message iterator: %w", err)
	}
	defer iter.Close()

	var msgs []*chat.Message
	for iter.First(); iter.Valid(); iter.Next() {
		var msg chat.Message
		if err := json.Unmarshal(iter.Value(), &msg); err != nil {
			s.logger.Warn().Err(err).Str("key", string(iter.Key())).Msg("skipping undecodable message record")
			continue
		}
		msgs = append(msgs, &msg)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}
	return msgs, nil
}

func (s *Store) CreateComment(_ context.Context, c *chat.Comment) error {
	idxKey := indexKey(cmtKind, c.ID)
	if _, closer, err := s.db.Get(idxKey); err == nil {
		closer.Close()
		return chat.ErrAlreadyExists
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("check comment index: %w", err)
	}

	key := primaryKey(cmtKind, c.ConversationID, c.Position, c.ID)
	value, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode comment: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(key, value, nil); err != nil {
		return fmt.Errorf("set comment: %w", err)
	}
	if err := batch.Set(idxKey, key, nil); err != nil {
		return fmt.Errorf("set comment index: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit comment: %w", err)
	}
	return nil
}

func (s *Store) DeleteComment(_ context.Context, id string) error {
	key, err := s.lookup(cmtKind, id)
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(key, nil); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if err := batch.Delete(indexKey(cmtKind, id), nil); err != nil {
		return fmt.Errorf("delete comment index: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit comment delete: %w", err)
	}
	return nil
}

func (s *Store) ListCommentsByConversation(_ context.Context, conversationID string) ([]*chat.Comment, error) {
	p := prefix(cmtKind, conversationID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: p,
		UpperBound: prefixUpperBound(p),
	})
	if err != nil {
		return nil, fmt.Errorf("open comment iterator: %w", err)
	}
	defer iter.Close()

	var comments []*chat.Comment
	for iter.First(); iter.Valid(); iter.Next() {
		var c chat.Comment
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			s.logger.Warn().Err(err).Str("key", string(iter.Key())).Msg("skipping undecodable comment record")
			continue
		}
		comments = append(comments, &c)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scan comments: %w", err)
	}
	return comments, nil
}

// lookup resolves an id to its primary key via the index.
func (s *Store) lookup(kind, id string) ([]byte, error) {
	value, closer, err := s.db.Get(indexKey(kind, id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, chat.ErrNotFound
		}
		return nil, fmt.Errorf("lookup %s %s: %w", kind, id, err)
	}
	defer closer.Close()
	key := make([]byte, len(value))
	copy(key, value)
	return key, nil
}
