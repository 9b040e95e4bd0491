package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/hashutil"
	"github.com/pkg/errors"
)

// genesisMarker stands in for the previous hash of the first chain entry.
const genesisMarker = "GENESIS"

// AuditEntry is one row of the immutable, hash-chained audit log. Sequence
// numbers are globally monotonic with no gaps; each entry's PreviousHash
// equals the prior entry's ChainHash, so altering any historical row breaks
// every row after it.
type AuditEntry struct {
	SequenceNumber uint64          `json:"sequenceNumber"`
	EventType      string          `json:"eventType"`
	EntityType     string          `json:"entityType"`
	EntityID       string          `json:"entityId"`
	ActorType      string          `json:"actorType"`
	ActorID        string          `json:"actorId"`
	EventPayload   json.RawMessage `json:"eventPayload"`
	PreviousState  json.RawMessage `json:"previousState,omitempty"`
	NewState       json.RawMessage `json:"newState,omitempty"`
	PayloadHash    string          `json:"payloadHash"`
	PreviousHash   string          `json:"previousHash,omitempty"` // Empty only on the first entry.
	ChainHash      string          `json:"chainHash"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// chainPreimage is the exact string the chain hash commits to.
func chainPreimage(seq uint64, payloadHash, previousHash string) string {
	prev := previousHash
	if prev == "" {
		prev = genesisMarker
	}
	return fmt.Sprintf("%d:%s:%s", seq, payloadHash, prev)
}

// Seal assigns the entry's place in the chain: its sequence number, the
// prior entry's chain hash, and both computed hashes. The payload is
// canonicalized before hashing so the digest does not depend on the caller's
// key order.
func (e *AuditEntry) Seal(seq uint64, previousChainHash string) error {
	if len(e.EventPayload) == 0 {
		e.EventPayload = json.RawMessage(`{}`)
	}
	var payload interface{}
	if err := json.Unmarshal(e.EventPayload, &payload); err != nil {
		return errors.Wrap(err, "event payload is not valid JSON")
	}
	payloadHash, err := hashutil.CanonicalHashHex(payload)
	if err != nil {
		return errors.Wrap(err, "could not hash event payload")
	}
	e.SequenceNumber = seq
	e.PayloadHash = payloadHash
	e.PreviousHash = previousChainHash
	e.ChainHash = hashutil.HashHex([]byte(chainPreimage(seq, payloadHash, previousChainHash)))
	return nil
}

// VerifySealed recomputes the entry's hashes and checks them against the
// stored values and the prior entry's chain hash. prev is nil for the first
// entry.
func (e *AuditEntry) VerifySealed(prev *AuditEntry) error {
	var payload interface{}
	if err := json.Unmarshal(e.EventPayload, &payload); err != nil {
		return errors.Wrapf(err, "entry %d payload is not valid JSON", e.SequenceNumber)
	}
	payloadHash, err := hashutil.CanonicalHashHex(payload)
	if err != nil {
		return errors.Wrapf(err, "entry %d payload could not be hashed", e.SequenceNumber)
	}
	if payloadHash != e.PayloadHash {
		return errors.Errorf("entry %d payload hash mismatch: recorded %s, recomputed %s",
			e.SequenceNumber, e.PayloadHash, payloadHash)
	}
	switch {
	case prev == nil:
		if e.SequenceNumber != 1 {
			return errors.Errorf("first entry has sequence %d, want 1", e.SequenceNumber)
		}
		if e.PreviousHash != "" {
			return errors.Errorf("first entry carries a previous hash %s", e.PreviousHash)
		}
	default:
		if e.SequenceNumber != prev.SequenceNumber+1 {
			return errors.Errorf("sequence gap: %d follows %d", e.SequenceNumber, prev.SequenceNumber)
		}
		if e.PreviousHash != prev.ChainHash {
			return errors.Errorf("entry %d previous hash %s does not match prior chain hash %s",
				e.SequenceNumber, e.PreviousHash, prev.ChainHash)
		}
	}
	want := hashutil.HashHex([]byte(chainPreimage(e.SequenceNumber, e.PayloadHash, e.PreviousHash)))
	if want != e.ChainHash {
		return errors.Errorf("entry %d chain hash mismatch: recorded %s, recomputed %s",
			e.SequenceNumber, e.ChainHash, want)
	}
	return nil
}
