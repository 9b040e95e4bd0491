// Package iface defines the database contract consumed by platform
// services. It exists so services depend on behavior, not on the bolt
// implementation under platform/db/kv.
package iface

import (
	"context"
	"io"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/types"
)

// ReadOnlyDatabase represents the query surface with no mutating methods.
type ReadOnlyDatabase interface {
	// Bot related methods.
	Bot(ctx context.Context, id string) (*types.Bot, error)
	HasBot(ctx context.Context, id string) (bool, error)
	Bots(ctx context.Context) ([]*types.Bot, error)

	// Generation related methods.
	Generation(ctx context.Context, id string) (*types.Generation, error)
	GenerationsByBot(ctx context.Context, botID string) ([]*types.Generation, error)
	LatestGeneration(ctx context.Context, botID string) (*types.Generation, error)

	// Backtest session related methods.
	BacktestSession(ctx context.Context, id string) (*types.BacktestSession, error)
	BacktestSessionsByBot(ctx context.Context, botID string) ([]*types.BacktestSession, error)
	TradeLogs(ctx context.Context, sessionID string) ([]*types.TradeLog, error)
	TradeLogsByBot(ctx context.Context, botID string) ([]*types.TradeLog, error)

	// Stage history related methods.
	StageChanges(ctx context.Context, botID string) ([]*types.StageChange, error)

	// Governance related methods.
	Approval(ctx context.Context, id string) (*types.GovernanceApproval, error)
	Approvals(ctx context.Context, match func(*types.GovernanceApproval) bool) ([]*types.GovernanceApproval, error)
	PendingApprovalForBot(ctx context.Context, botID string) (*types.GovernanceApproval, error)

	// Audit chain related methods.
	AuditEntry(ctx context.Context, seq uint64) (*types.AuditEntry, error)
	AuditEntries(ctx context.Context, fromSeq uint64, limit int) ([]*types.AuditEntry, error)
	LatestAuditEntry(ctx context.Context) (*types.AuditEntry, error)

	// Account and position related methods.
	Account(ctx context.Context, botID string) (*types.Account, error)
	Accounts(ctx context.Context) ([]*types.Account, error)
	Positions(ctx context.Context) ([]*types.Position, error)
	PositionsByBot(ctx context.Context, botID string) ([]*types.Position, error)
	AccountAttempts(ctx context.Context, botID string) ([]*types.AccountAttempt, error)
}

// WriteAccessDatabase represents the mutation surface.
type WriteAccessDatabase interface {
	// Bot related methods.
	SaveBot(ctx context.Context, bot *types.Bot) error
	ArchiveBot(ctx context.Context, id string) error

	// Generation related methods.
	SaveGeneration(ctx context.Context, gen *types.Generation) error

	// Backtest session related methods.
	SaveBacktestSession(ctx context.Context, sess *types.BacktestSession) error
	CompleteBacktestSession(ctx context.Context, sess *types.BacktestSession, trades []*types.TradeLog) error

	// Stage transition, committed atomically with its audit trail.
	ExecuteStageChange(ctx context.Context, bot *types.Bot, change *types.StageChange, entry *types.AuditEntry) error

	// Governance related methods.
	SaveApproval(ctx context.Context, a *types.GovernanceApproval) error

	// Audit chain related methods.
	AppendAuditEntry(ctx context.Context, entry *types.AuditEntry) (*types.AuditEntry, error)

	// Account and position related methods.
	SaveAccount(ctx context.Context, a *types.Account) error
	SavePosition(ctx context.Context, p *types.Position) error
	DeletePosition(ctx context.Context, id string) error
	TouchAccountDay(ctx context.Context, botID string, now time.Time) error
	KillBotWithAttempt(ctx context.Context, bot *types.Bot, account *types.Account, attempt *types.AccountAttempt, entry *types.AuditEntry) error
}

// Database combines the full platform persistence contract.
type Database interface {
	io.Closer
	ReadOnlyDatabase
	WriteAccessDatabase

	DatabasePath() string
	ClearDB() error
}
