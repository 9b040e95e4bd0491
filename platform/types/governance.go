package types

import (
	"time"
)

// ApprovalStatus tracks a dual-control request through review.
type ApprovalStatus string

// Approval statuses.
const (
	ApprovalPending   ApprovalStatus = "PENDING"
	ApprovalApproved  ApprovalStatus = "APPROVED"
	ApprovalRejected  ApprovalStatus = "REJECTED"
	ApprovalExpired   ApprovalStatus = "EXPIRED"
	ApprovalWithdrawn ApprovalStatus = "WITHDRAWN"
)

// GovernanceApproval is one maker-checker request for a guarded stage
// transition. The maker (RequestedBy) and the checker (ReviewedBy) must be
// different users for an APPROVED row; that is the dual-control invariant.
type GovernanceApproval struct {
	ID              string           `json:"id"`
	BotID           string           `json:"botId"`
	RequestedAction string           `json:"requestedAction"`
	FromStage       Stage            `json:"fromStage"`
	ToStage         Stage            `json:"toStage"`
	RequestedBy     string           `json:"requestedBy"`
	ReviewedBy      string           `json:"reviewedBy,omitempty"`
	Status          ApprovalStatus   `json:"status"`
	Justification   string           `json:"justification"`
	ReviewNotes     string           `json:"reviewNotes,omitempty"`
	MetricsSnapshot *BaselineMetrics `json:"metricsSnapshot,omitempty"`
	GateSnapshot    []string         `json:"gateSnapshot,omitempty"` // Gate evaluation lines at request time.
	ExpiresAt       time.Time        `json:"expiresAt"`
	CreatedAt       time.Time        `json:"createdAt"`
	ReviewedAt      time.Time        `json:"reviewedAt,omitempty"`
}

// Open reports whether the row is still awaiting review.
func (a *GovernanceApproval) Open(now time.Time) bool {
	return a.Status == ApprovalPending && now.Before(a.ExpiresAt)
}
