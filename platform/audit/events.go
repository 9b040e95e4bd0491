package audit

import (
	"encoding/json"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/pkg/errors"
)

// Event types recorded on the chain. Stage, governance, and risk engines
// share these so queries never have to guess at spellings.
const (
	EventBotCreated    = "BOT_CREATED"
	EventConfigChanged = "CONFIG_CHANGED"

	EventPromoted  = "PROMOTED"
	EventDemoted   = "DEMOTED"
	EventBotKilled = "BOT_KILLED"

	EventGenerationEvolved = "GENERATION_EVOLVED"

	EventGovernanceRequested = "GOVERNANCE_REQUESTED"
	EventGovernanceApproved  = "GOVERNANCE_APPROVED"
	EventGovernanceRejected  = "GOVERNANCE_REJECTED"
	EventGovernanceWithdrawn = "GOVERNANCE_WITHDRAWN"
	EventGovernanceExpired   = "GOVERNANCE_EXPIRED"

	EventRiskViolation         = "RISK_VIOLATION"
	EventRiskOverride          = "RISK_OVERRIDE"
	EventRiskOverrideRevoked   = "RISK_OVERRIDE_REVOKED"
	EventFleetTierChanged      = "FLEET_TIER_CHANGED"
	EventFleetSelfHealed       = "FLEET_SELF_HEALED"
	EventPositionMarkedForExit = "POSITION_MARKED_FOR_EXIT"
)

// EventConfigSnapshotPrefix marks the event-type family carrying full config
// snapshots. The suffix names the entity type, e.g. CONFIG_SNAPSHOT_BOT.
const EventConfigSnapshotPrefix = "CONFIG_SNAPSHOT_"

// ConfigSnapshotEvent returns the snapshot event type for an entity type.
func ConfigSnapshotEvent(entityType string) string {
	return EventConfigSnapshotPrefix + entityType
}

// Entity types.
const (
	EntityBot        = "BOT"
	EntityFleet      = "FLEET"
	EntityAccount    = "ACCOUNT"
	EntityPosition   = "POSITION"
	EntityApproval   = "GOVERNANCE_APPROVAL"
	EntityGeneration = "GENERATION"
)

// Actor types.
const (
	ActorUser   = "USER"
	ActorSystem = "SYSTEM"
)

// RiskOverride is the payload of a RISK_OVERRIDE event. An override remains
// active until it expires or a RISK_OVERRIDE_REVOKED event references its id.
type RiskOverride struct {
	OverrideID string    `json:"overrideId"`
	Scope      string    `json:"scope"`
	Parameter  string    `json:"parameter"`
	Value      float64   `json:"value"`
	Reason     string    `json:"reason"`
	GrantedBy  string    `json:"grantedBy"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// RiskOverrideRevoked is the payload of a RISK_OVERRIDE_REVOKED event.
type RiskOverrideRevoked struct {
	OverrideID string `json:"overrideId"`
	Reason     string `json:"reason"`
	RevokedBy  string `json:"revokedBy"`
}

// NewEntry builds an unsealed audit entry with the payload marshaled to
// JSON. The chain fields are filled when the entry is appended.
func NewEntry(eventType, entityType, entityID, actorType, actorID string, payload interface{}) (*types.AuditEntry, error) {
	entry := &types.AuditEntry{
		EventType:  eventType,
		EntityType: entityType,
		EntityID:   entityID,
		ActorType:  actorType,
		ActorID:    actorID,
		CreatedAt:  time.Now().UTC(),
	}
	if payload != nil {
		enc, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "could not marshal %s payload", eventType)
		}
		entry.EventPayload = enc
	}
	return entry, nil
}
