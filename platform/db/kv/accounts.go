package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	bolt "go.etcd.io/bbolt"
)

// SaveAccount upserts a bot's capital account.
func (s *Store) SaveAccount(_ context.Context, a *types.Account) error {
	enc, err := json.Marshal(a)
	if err != nil {
		return errors.Wrap(err, "could not encode account")
	}
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(accountsBucket).Put([]byte(a.BotID), enc)
	})
}

// Account retrieves a bot's account.
func (s *Store) Account(_ context.Context, botID string) (*types.Account, error) {
	var a *types.Account
	err := s.view(func(tx *bolt.Tx) error {
		enc := tx.Bucket(accountsBucket).Get([]byte(botID))
		if len(enc) == 0 {
			return errors.Wrapf(ErrNotFound, "account for bot %s", botID)
		}
		a = &types.Account{}
		return json.Unmarshal(enc, a)
	})
	return a, err
}

// Accounts returns every account.
func (s *Store) Accounts(_ context.Context) ([]*types.Account, error) {
	var accounts []*types.Account
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(accountsBucket).ForEach(func(_, v []byte) error {
			a := &types.Account{}
			if err := json.Unmarshal(v, a); err != nil {
				return err
			}
			accounts = append(accounts, a)
			return nil
		})
	})
	return accounts, err
}

// SavePosition upserts an open-position row.
func (s *Store) SavePosition(_ context.Context, p *types.Position) error {
	enc, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "could not encode position")
	}
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(positionsBucket).Put([]byte(p.ID), enc)
	})
}

// DeletePosition removes a closed position.
func (s *Store) DeletePosition(_ context.Context, id string) error {
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(positionsBucket).Delete([]byte(id))
	})
}

// Positions returns every open position across the fleet.
func (s *Store) Positions(_ context.Context) ([]*types.Position, error) {
	var positions []*types.Position
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(positionsBucket).ForEach(func(_, v []byte) error {
			p := &types.Position{}
			if err := json.Unmarshal(v, p); err != nil {
				return err
			}
			positions = append(positions, p)
			return nil
		})
	})
	return positions, err
}

// PositionsByBot returns a bot's open positions.
func (s *Store) PositionsByBot(ctx context.Context, botID string) ([]*types.Position, error) {
	all, err := s.Positions(ctx)
	if err != nil {
		return nil, err
	}
	var out []*types.Position
	for _, p := range all {
		if p.BotID == botID {
			out = append(out, p)
		}
	}
	return out, nil
}

// AccountAttempts returns a bot's blown-account history in append order.
func (s *Store) AccountAttempts(_ context.Context, botID string) ([]*types.AccountAttempt, error) {
	var attempts []*types.AccountAttempt
	err := s.view(func(tx *bolt.Tx) error {
		prefix := []byte(botID + "/")
		c := tx.Bucket(accountAttemptsBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			a := &types.AccountAttempt{}
			if err := json.Unmarshal(v, a); err != nil {
				return err
			}
			attempts = append(attempts, a)
		}
		return nil
	})
	return attempts, err
}

// KillBotWithAttempt executes a blown-account termination: the bot moves to
// KILLED, its account pauses, the attempt record and an audit entry are
// appended. One transaction; a failure anywhere leaves everything untouched.
func (s *Store) KillBotWithAttempt(_ context.Context, bot *types.Bot, account *types.Account, attempt *types.AccountAttempt, entry *types.AuditEntry) error {
	encAccount, err := json.Marshal(account)
	if err != nil {
		return errors.Wrap(err, "could not encode account")
	}
	encAttempt, err := json.Marshal(attempt)
	if err != nil {
		return errors.Wrap(err, "could not encode account attempt")
	}
	return s.update(func(tx *bolt.Tx) error {
		if err := saveBotTx(tx, bot); err != nil {
			return err
		}
		if err := tx.Bucket(accountsBucket).Put([]byte(account.BotID), encAccount); err != nil {
			return err
		}
		key := compositeKey(attempt.BotID, uint64(attempt.CreatedAt.UnixNano()))
		if err := tx.Bucket(accountAttemptsBucket).Put(key, encAttempt); err != nil {
			return err
		}
		return appendAuditTx(tx, entry)
	})
}

// TouchAccountDay rolls an account into a new trading day: start-of-day
// balance resets to the current balance and daily PnL zeroes.
func (s *Store) TouchAccountDay(_ context.Context, botID string, now time.Time) error {
	return s.update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(accountsBucket)
		enc := bkt.Get([]byte(botID))
		if len(enc) == 0 {
			return errors.Wrapf(ErrNotFound, "account for bot %s", botID)
		}
		a := &types.Account{}
		if err := json.Unmarshal(enc, a); err != nil {
			return err
		}
		a.StartOfDayBalance = a.Balance
		a.DailyPnl = decimal.Zero
		a.UpdatedAt = now
		out, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return bkt.Put([]byte(botID), out)
	})
}
