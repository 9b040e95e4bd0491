package kv

import (
	"context"
	"encoding/json"

	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found in database")

// SaveBot upserts a bot row.
func (s *Store) SaveBot(_ context.Context, bot *types.Bot) error {
	enc, err := json.Marshal(bot)
	if err != nil {
		return errors.Wrap(err, "could not encode bot")
	}
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(botsBucket).Put([]byte(bot.ID), enc)
	})
}

// Bot retrieves a bot by ID.
func (s *Store) Bot(_ context.Context, id string) (*types.Bot, error) {
	var bot *types.Bot
	err := s.view(func(tx *bolt.Tx) error {
		enc := tx.Bucket(botsBucket).Get([]byte(id))
		if len(enc) == 0 {
			return errors.Wrapf(ErrNotFound, "bot %s", id)
		}
		bot = &types.Bot{}
		return json.Unmarshal(enc, bot)
	})
	return bot, err
}

// HasBot reports whether a bot row exists.
func (s *Store) HasBot(_ context.Context, id string) (bool, error) {
	var ok bool
	err := s.view(func(tx *bolt.Tx) error {
		ok = len(tx.Bucket(botsBucket).Get([]byte(id))) > 0
		return nil
	})
	return ok, err
}

// Bots returns every stored bot. The fleet is small by design (tens of
// bots), so services filter in memory.
func (s *Store) Bots(_ context.Context) ([]*types.Bot, error) {
	var bots []*types.Bot
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(botsBucket).ForEach(func(_, v []byte) error {
			bot := &types.Bot{}
			if err := json.Unmarshal(v, bot); err != nil {
				return err
			}
			bots = append(bots, bot)
			return nil
		})
	})
	return bots, err
}

// ArchiveBot soft-deletes a bot. Rows are never removed: generations and
// sessions keep referencing the ID.
func (s *Store) ArchiveBot(ctx context.Context, id string) error {
	return s.update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(botsBucket)
		enc := bkt.Get([]byte(id))
		if len(enc) == 0 {
			return errors.Wrapf(ErrNotFound, "bot %s", id)
		}
		bot := &types.Bot{}
		if err := json.Unmarshal(enc, bot); err != nil {
			return err
		}
		bot.Archived = true
		out, err := json.Marshal(bot)
		if err != nil {
			return err
		}
		return bkt.Put([]byte(id), out)
	})
}

// saveBotTx writes a bot inside an open transaction. Composite mutations
// (stage changes, blown-account kills) use it to keep the bot row and its
// audit trail in one commit.
func saveBotTx(tx *bolt.Tx, bot *types.Bot) error {
	enc, err := json.Marshal(bot)
	if err != nil {
		return errors.Wrap(err, "could not encode bot")
	}
	return tx.Bucket(botsBucket).Put([]byte(bot.ID), enc)
}
