// Package audit provides the tamper-evident event log service: appends onto
// the hash chain, full-chain verification, and the derived views (config
// snapshots, active risk overrides) that other engines read instead of
// keeping mutable state of their own.
package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "audit")

// walkPageSize bounds how many entries one chain-walk read pulls at a time.
const walkPageSize = 512

// Chain is the slice of the database contract the audit service needs:
// appending sealed entries and walking them back in sequence order.
type Chain interface {
	AppendAuditEntry(ctx context.Context, entry *types.AuditEntry) (*types.AuditEntry, error)
	AuditEntries(ctx context.Context, fromSeq uint64, limit int) ([]*types.AuditEntry, error)
}

// ErrNoSnapshot is returned when no config snapshot has been recorded for an
// entity.
var ErrNoSnapshot = errors.New("no config snapshot recorded for entity")

// Service records and queries the immutable audit log.
type Service struct {
	chain Chain
}

// New creates an audit service over a chain backend.
func New(chain Chain) *Service {
	return &Service{chain: chain}
}

// Record appends one event to the chain. The entry comes back sealed with
// its sequence number and hashes.
func (s *Service) Record(ctx context.Context, entry *types.AuditEntry) (*types.AuditEntry, error) {
	if entry == nil {
		return nil, errors.New("cannot record a nil audit entry")
	}
	if entry.EventType == "" {
		return nil, errors.New("audit entry has no event type")
	}
	if entry.EntityType == "" || entry.EntityID == "" {
		return nil, errors.Errorf("audit entry %s does not identify an entity", entry.EventType)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return s.chain.AppendAuditEntry(ctx, entry)
}

// VerifyResult reports the outcome of a full chain walk.
type VerifyResult struct {
	Valid bool
	// Checked is how many entries were verified.
	Checked uint64
	// BrokenSequence is the sequence number of the first broken entry, zero
	// when the chain is intact.
	BrokenSequence uint64
	// Broken is the first broken entry.
	Broken *types.AuditEntry
	// Reason describes what failed to verify.
	Reason string
}

// VerifyChain walks the whole chain in sequence order, recomputing every
// hash. The first entry must chain from the genesis marker; every later
// entry must extend its predecessor with no sequence gaps. The walk stops at
// the first broken entry.
func (s *Service) VerifyChain(ctx context.Context) (*VerifyResult, error) {
	res := &VerifyResult{Valid: true}
	var prev *types.AuditEntry
	from := uint64(1)
	for {
		page, err := s.chain.AuditEntries(ctx, from, walkPageSize)
		if err != nil {
			return nil, errors.Wrapf(err, "could not read audit entries from sequence %d", from)
		}
		if len(page) == 0 {
			return res, nil
		}
		for _, entry := range page {
			if err := entry.VerifySealed(prev); err != nil {
				res.Valid = false
				res.BrokenSequence = entry.SequenceNumber
				res.Broken = entry
				res.Reason = err.Error()
				log.WithFields(logrus.Fields{
					"sequence":  entry.SequenceNumber,
					"eventType": entry.EventType,
				}).WithError(err).Error("Audit chain verification failed")
				return res, nil
			}
			prev = entry
			res.Checked++
		}
		if len(page) < walkPageSize {
			return res, nil
		}
		from = prev.SequenceNumber + 1
	}
}

// Snapshot returns the most recent CONFIG_SNAPSHOT_* entry for an entity,
// or ErrNoSnapshot when none was ever recorded. Snapshots live on the chain;
// there is no separate snapshot table to drift out of sync.
func (s *Service) Snapshot(ctx context.Context, entityType, entityID string) (*types.AuditEntry, error) {
	var latest *types.AuditEntry
	err := s.walk(ctx, func(entry *types.AuditEntry) {
		if entry.EntityType != entityType || entry.EntityID != entityID {
			return
		}
		if strings.HasPrefix(entry.EventType, EventConfigSnapshotPrefix) {
			latest = entry
		}
	})
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, errors.Wrapf(ErrNoSnapshot, "%s %s", entityType, entityID)
	}
	return latest, nil
}

// History returns an entity's audit entries in sequence order. A positive
// limit keeps only the most recent entries.
func (s *Service) History(ctx context.Context, entityType, entityID string, limit int) ([]*types.AuditEntry, error) {
	var entries []*types.AuditEntry
	err := s.walk(ctx, func(entry *types.AuditEntry) {
		if entry.EntityType == entityType && entry.EntityID == entityID {
			entries = append(entries, entry)
		}
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// ActiveOverrides derives the risk overrides in force at a point in time:
// every RISK_OVERRIDE event that has not expired and whose id is not named
// by any RISK_OVERRIDE_REVOKED event.
func (s *Service) ActiveOverrides(ctx context.Context, now time.Time) ([]*RiskOverride, error) {
	var granted []*RiskOverride
	revoked := map[string]bool{}
	err := s.walk(ctx, func(entry *types.AuditEntry) {
		switch entry.EventType {
		case EventRiskOverride:
			o := &RiskOverride{}
			if err := decodePayload(entry, o); err != nil {
				log.WithField("sequence", entry.SequenceNumber).WithError(err).Warn("Skipping undecodable override event")
				return
			}
			granted = append(granted, o)
		case EventRiskOverrideRevoked:
			r := &RiskOverrideRevoked{}
			if err := decodePayload(entry, r); err != nil {
				log.WithField("sequence", entry.SequenceNumber).WithError(err).Warn("Skipping undecodable revocation event")
				return
			}
			revoked[r.OverrideID] = true
		}
	})
	if err != nil {
		return nil, err
	}
	var active []*RiskOverride
	for _, o := range granted {
		if revoked[o.OverrideID] || !o.ExpiresAt.After(now) {
			continue
		}
		active = append(active, o)
	}
	return active, nil
}

// walk visits every chain entry in sequence order.
func (s *Service) walk(ctx context.Context, visit func(*types.AuditEntry)) error {
	from := uint64(1)
	for {
		page, err := s.chain.AuditEntries(ctx, from, walkPageSize)
		if err != nil {
			return errors.Wrapf(err, "could not read audit entries from sequence %d", from)
		}
		if len(page) == 0 {
			return nil
		}
		for _, entry := range page {
			visit(entry)
		}
		if len(page) < walkPageSize {
			return nil
		}
		from = page[len(page)-1].SequenceNumber + 1
	}
}

func decodePayload(entry *types.AuditEntry, v interface{}) error {
	if len(entry.EventPayload) == 0 {
		return errors.New("event has no payload")
	}
	return errors.Wrap(json.Unmarshal(entry.EventPayload, v), "could not decode event payload")
}
