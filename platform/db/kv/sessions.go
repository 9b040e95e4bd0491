package kv

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// SaveBacktestSession upserts a session row. The executor writes the row
// once at status=running and again at completion or failure.
func (s *Store) SaveBacktestSession(_ context.Context, sess *types.BacktestSession) error {
	enc, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "could not encode session")
	}
	return s.update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(sessionsBucket).Put([]byte(sess.ID), enc); err != nil {
			return err
		}
		return tx.Bucket(sessionIndexBucket).Put([]byte(sess.BotID+"/"+sess.ID), []byte(sess.ID))
	})
}

// BacktestSession retrieves a session by ID.
func (s *Store) BacktestSession(_ context.Context, id string) (*types.BacktestSession, error) {
	var sess *types.BacktestSession
	err := s.view(func(tx *bolt.Tx) error {
		enc := tx.Bucket(sessionsBucket).Get([]byte(id))
		if len(enc) == 0 {
			return errors.Wrapf(ErrNotFound, "session %s", id)
		}
		sess = &types.BacktestSession{}
		return json.Unmarshal(enc, sess)
	})
	return sess, err
}

// BacktestSessionsByBot returns every session recorded for a bot.
func (s *Store) BacktestSessionsByBot(_ context.Context, botID string) ([]*types.BacktestSession, error) {
	var sessions []*types.BacktestSession
	err := s.view(func(tx *bolt.Tx) error {
		idx := tx.Bucket(sessionIndexBucket)
		sessBkt := tx.Bucket(sessionsBucket)
		prefix := []byte(botID + "/")
		c := idx.Cursor()
		for k, id := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, id = c.Next() {
			enc := sessBkt.Get(id)
			if len(enc) == 0 {
				return errors.Errorf("session index points at missing row %s", id)
			}
			sess := &types.BacktestSession{}
			if err := json.Unmarshal(enc, sess); err != nil {
				return err
			}
			sessions = append(sessions, sess)
		}
		return nil
	})
	return sessions, err
}

// CompleteBacktestSession writes the finished session and its trade batch in
// one transaction: either the session flips to completed with every trade
// row present, or nothing changes.
func (s *Store) CompleteBacktestSession(_ context.Context, sess *types.BacktestSession, trades []*types.TradeLog) error {
	encSess, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "could not encode session")
	}
	encTrades := make([][]byte, len(trades))
	for i, tr := range trades {
		enc, err := json.Marshal(tr)
		if err != nil {
			return errors.Wrapf(err, "could not encode trade %d", i)
		}
		encTrades[i] = enc
	}
	return s.update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(sessionsBucket).Put([]byte(sess.ID), encSess); err != nil {
			return err
		}
		if err := tx.Bucket(sessionIndexBucket).Put([]byte(sess.BotID+"/"+sess.ID), []byte(sess.ID)); err != nil {
			return err
		}
		trBkt := tx.Bucket(tradesBucket)
		for i, enc := range encTrades {
			if err := trBkt.Put(compositeKey(sess.ID, uint64(i)), enc); err != nil {
				return err
			}
		}
		return nil
	})
}

// TradeLogs returns a session's trades in insert order.
func (s *Store) TradeLogs(_ context.Context, sessionID string) ([]*types.TradeLog, error) {
	var trades []*types.TradeLog
	err := s.view(func(tx *bolt.Tx) error {
		prefix := []byte(sessionID + "/")
		c := tx.Bucket(tradesBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			tr := &types.TradeLog{}
			if err := json.Unmarshal(v, tr); err != nil {
				return err
			}
			trades = append(trades, tr)
		}
		return nil
	})
	return trades, err
}

// TradeLogsByBot returns every trade a bot has produced across sessions.
// The consecutive-losing-days analyzer feeds on this.
func (s *Store) TradeLogsByBot(ctx context.Context, botID string) ([]*types.TradeLog, error) {
	sessions, err := s.BacktestSessionsByBot(ctx, botID)
	if err != nil {
		return nil, err
	}
	var all []*types.TradeLog
	for _, sess := range sessions {
		trades, err := s.TradeLogs(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		all = append(all, trades...)
	}
	return all, nil
}
