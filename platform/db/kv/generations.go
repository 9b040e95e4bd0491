package kv

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// SaveGeneration upserts a generation and maintains the per-bot numeric
// index so GenerationsByBot walks in generation order.
func (s *Store) SaveGeneration(_ context.Context, gen *types.Generation) error {
	enc, err := json.Marshal(gen)
	if err != nil {
		return errors.Wrap(err, "could not encode generation")
	}
	return s.update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(generationsBucket).Put([]byte(gen.ID), enc); err != nil {
			return err
		}
		idxKey := compositeKey(gen.BotID, uint64(gen.Number))
		return tx.Bucket(generationIndexBucket).Put(idxKey, []byte(gen.ID))
	})
}

// Generation retrieves a generation by ID.
func (s *Store) Generation(_ context.Context, id string) (*types.Generation, error) {
	var gen *types.Generation
	err := s.view(func(tx *bolt.Tx) error {
		enc := tx.Bucket(generationsBucket).Get([]byte(id))
		if len(enc) == 0 {
			return errors.Wrapf(ErrNotFound, "generation %s", id)
		}
		gen = &types.Generation{}
		return json.Unmarshal(enc, gen)
	})
	return gen, err
}

// GenerationsByBot returns a bot's generations in ascending number order.
func (s *Store) GenerationsByBot(_ context.Context, botID string) ([]*types.Generation, error) {
	var gens []*types.Generation
	err := s.view(func(tx *bolt.Tx) error {
		idx := tx.Bucket(generationIndexBucket)
		gensBkt := tx.Bucket(generationsBucket)
		prefix := []byte(botID + "/")
		c := idx.Cursor()
		for k, id := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, id = c.Next() {
			enc := gensBkt.Get(id)
			if len(enc) == 0 {
				return errors.Errorf("generation index points at missing row %s", id)
			}
			gen := &types.Generation{}
			if err := json.Unmarshal(enc, gen); err != nil {
				return err
			}
			gens = append(gens, gen)
		}
		return nil
	})
	return gens, err
}

// LatestGeneration returns the highest-numbered generation for a bot, or
// ErrNotFound when the bot has none.
func (s *Store) LatestGeneration(_ context.Context, botID string) (*types.Generation, error) {
	var gen *types.Generation
	err := s.view(func(tx *bolt.Tx) error {
		idx := tx.Bucket(generationIndexBucket)
		prefix := []byte(botID + "/")
		c := idx.Cursor()
		var lastID []byte
		for k, id := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, id = c.Next() {
			lastID = id
		}
		if lastID == nil {
			return errors.Wrapf(ErrNotFound, "generations for bot %s", botID)
		}
		enc := tx.Bucket(generationsBucket).Get(lastID)
		if len(enc) == 0 {
			return errors.Errorf("generation index points at missing row %s", lastID)
		}
		gen = &types.Generation{}
		return json.Unmarshal(enc, gen)
	})
	return gen, err
}
