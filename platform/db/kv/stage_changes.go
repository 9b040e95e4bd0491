package kv

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// ExecuteStageChange commits a stage transition atomically: the bot row, the
// bot_stage_changes row, and the hash-chained audit entry land in one bolt
// transaction. Post-commit side effects (notifications, activity feeds) run
// only after this returns nil.
func (s *Store) ExecuteStageChange(_ context.Context, bot *types.Bot, change *types.StageChange, entry *types.AuditEntry) error {
	encChange, err := json.Marshal(change)
	if err != nil {
		return errors.Wrap(err, "could not encode stage change")
	}
	return s.update(func(tx *bolt.Tx) error {
		if err := saveBotTx(tx, bot); err != nil {
			return err
		}
		key := compositeKey(change.BotID, uint64(change.CreatedAt.UnixNano()))
		if err := tx.Bucket(stageChangesBucket).Put(key, encChange); err != nil {
			return err
		}
		return appendAuditTx(tx, entry)
	})
}

// StageChanges returns a bot's stage history in chronological order.
func (s *Store) StageChanges(_ context.Context, botID string) ([]*types.StageChange, error) {
	var changes []*types.StageChange
	err := s.view(func(tx *bolt.Tx) error {
		prefix := []byte(botID + "/")
		c := tx.Bucket(stageChangesBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			sc := &types.StageChange{}
			if err := json.Unmarshal(v, sc); err != nil {
				return err
			}
			changes = append(changes, sc)
		}
		return nil
	})
	return changes, err
}
