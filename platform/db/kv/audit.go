package kv

import (
	"context"
	"encoding/json"

	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// AppendAuditEntry seals the entry onto the end of the hash chain and
// persists it. Sequence allocation, prior-hash lookup, and the write all
// happen inside one bolt write transaction; bolt runs write transactions
// one at a time, so sequences are contiguous under any amount of
// concurrency.
func (s *Store) AppendAuditEntry(_ context.Context, entry *types.AuditEntry) (*types.AuditEntry, error) {
	err := s.update(func(tx *bolt.Tx) error {
		return appendAuditTx(tx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// appendAuditTx seals and writes an audit entry inside an open write
// transaction. Composite mutations call it so their state change and its
// audit row commit together.
func appendAuditTx(tx *bolt.Tx, entry *types.AuditEntry) error {
	bkt := tx.Bucket(auditBucket)
	seq := uint64(1)
	prevChain := ""
	if k, v := bkt.Cursor().Last(); k != nil {
		prev := &types.AuditEntry{}
		if err := json.Unmarshal(v, prev); err != nil {
			return errors.Wrap(err, "could not decode chain head")
		}
		seq = prev.SequenceNumber + 1
		prevChain = prev.ChainHash
	}
	if err := entry.Seal(seq, prevChain); err != nil {
		return errors.Wrap(err, "could not seal audit entry")
	}
	enc, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "could not encode audit entry")
	}
	return bkt.Put(uint64Key(seq), enc)
}

// AuditEntry retrieves one entry by sequence number.
func (s *Store) AuditEntry(_ context.Context, seq uint64) (*types.AuditEntry, error) {
	var entry *types.AuditEntry
	err := s.view(func(tx *bolt.Tx) error {
		enc := tx.Bucket(auditBucket).Get(uint64Key(seq))
		if len(enc) == 0 {
			return errors.Wrapf(ErrNotFound, "audit entry %d", seq)
		}
		entry = &types.AuditEntry{}
		return json.Unmarshal(enc, entry)
	})
	return entry, err
}

// AuditEntries walks the chain in sequence order starting from fromSeq,
// returning up to limit entries. limit <= 0 means no limit.
func (s *Store) AuditEntries(_ context.Context, fromSeq uint64, limit int) ([]*types.AuditEntry, error) {
	var entries []*types.AuditEntry
	err := s.view(func(tx *bolt.Tx) error {
		c := tx.Bucket(auditBucket).Cursor()
		for k, v := c.Seek(uint64Key(fromSeq)); k != nil; k, v = c.Next() {
			entry := &types.AuditEntry{}
			if err := json.Unmarshal(v, entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			if limit > 0 && len(entries) >= limit {
				return nil
			}
		}
		return nil
	})
	return entries, err
}

// LatestAuditEntry returns the chain head, or ErrNotFound on an empty chain.
func (s *Store) LatestAuditEntry(_ context.Context) (*types.AuditEntry, error) {
	var entry *types.AuditEntry
	err := s.view(func(tx *bolt.Tx) error {
		k, v := tx.Bucket(auditBucket).Cursor().Last()
		if k == nil {
			return errors.Wrap(ErrNotFound, "audit chain is empty")
		}
		entry = &types.AuditEntry{}
		return json.Unmarshal(v, entry)
	})
	return entry, err
}
