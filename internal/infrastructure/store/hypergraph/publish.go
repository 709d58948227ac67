package hypergraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"hypermaps/server/internal/domain/chat"
	"hypermaps/server/internal/domain/publish"
)

// Public-space key layout:
//
//	public:msg:<published_at unix nanos 19 digits>:<id> -> record JSON
//	idx:pub:<source message id> -> primary key
var _ publish.Store = (*Store)(nil)

func publicKey(rec *publish.Record) []byte {
	return []byte(fmt.Sprintf("public:msg:%019d:%s", rec.PublishedAt.UnixNano(), rec.ID))
}

func publicIndexKey(sourceMessageID string) []byte {
	return []byte("idx:pub:" + sourceMessageID)
}

func (s *Store) Publish(_ context.Context, rec *publish.Record) error {
	idxKey := publicIndexKey(rec.SourceMessageID)
	if _, closer, err := s.db.Get(idxKey); err == nil {
		closer.Close()
		return chat.ErrAlreadyExists
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("check publish index: %w", err)
	}

	key := publicKey(rec)
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode published record: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(key, value, nil); err != nil {
		return fmt.Errorf("set published record: %w", err)
	}
	if err := batch.Set(idxKey, key, nil); err != nil {
		return fmt.Errorf("set publish index: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit publish: %w", err)
	}
	return nil
}

func (s *Store) ListPublic(_ context.Context) ([]*publish.Record, error) {
	p := []byte("public:msg:")
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: p,
		UpperBound: prefixUpperBound(p),
	})
	if err != nil {
		return nil, fmt.Errorf("open public iterator: %w", err)
	}
	defer iter.Close()

	var recs []*publish.Record
	for iter.First(); iter.Valid(); iter.Next() {
		var rec publish.Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			s.logger.Warn().Err(err).Str("key", string(iter.Key())).Msg("skipping undecodable published record")
			continue
		}
		recs = append(recs, &rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scan published records: %w", err)
	}
	return recs, nil
}
