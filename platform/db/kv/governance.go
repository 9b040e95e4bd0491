package kv

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// SaveApproval upserts a governance approval row.
func (s *Store) SaveApproval(_ context.Context, a *types.GovernanceApproval) error {
	enc, err := json.Marshal(a)
	if err != nil {
		return errors.Wrap(err, "could not encode approval")
	}
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(approvalsBucket).Put([]byte(a.ID), enc)
	})
}

// Approval retrieves an approval by ID.
func (s *Store) Approval(_ context.Context, id string) (*types.GovernanceApproval, error) {
	var a *types.GovernanceApproval
	err := s.view(func(tx *bolt.Tx) error {
		enc := tx.Bucket(approvalsBucket).Get([]byte(id))
		if len(enc) == 0 {
			return errors.Wrapf(ErrNotFound, "approval %s", id)
		}
		a = &types.GovernanceApproval{}
		return json.Unmarshal(enc, a)
	})
	return a, err
}

// Approvals returns every approval matching the filter func, newest first.
// Governance rows number dozens at most, so a full-bucket scan is cheaper
// than maintaining status indexes.
func (s *Store) Approvals(_ context.Context, match func(*types.GovernanceApproval) bool) ([]*types.GovernanceApproval, error) {
	var approvals []*types.GovernanceApproval
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(approvalsBucket).ForEach(func(_, v []byte) error {
			a := &types.GovernanceApproval{}
			if err := json.Unmarshal(v, a); err != nil {
				return err
			}
			if match == nil || match(a) {
				approvals = append(approvals, a)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(approvals, func(i, j int) bool {
		return approvals[i].CreatedAt.After(approvals[j].CreatedAt)
	})
	return approvals, nil
}

// PendingApprovalForBot returns the bot's open PENDING row if one exists.
// Duplicate pending requests per bot are rejected by the governance service
// based on this lookup.
func (s *Store) PendingApprovalForBot(ctx context.Context, botID string) (*types.GovernanceApproval, error) {
	rows, err := s.Approvals(ctx, func(a *types.GovernanceApproval) bool {
		return a.BotID == botID && a.Status == types.ApprovalPending
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "pending approval for bot %s", botID)
	}
	return rows[0], nil
}
