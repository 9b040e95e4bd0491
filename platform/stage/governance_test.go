package stage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/audit"
	"github.com/gauntletlabs/gauntlet/platform/db/iface"
	dbtest "github.com/gauntletlabs/gauntlet/platform/db/testing"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/gauntletlabs/gauntlet/testutil/assert"
	"github.com/gauntletlabs/gauntlet/testutil/require"
	"github.com/pkg/errors"
)

func setupGovernance(t *testing.T) (iface.Database, *Governance) {
	database := dbtest.SetupDB(t)
	engine := NewEngine(database)
	gov := NewGovernance(database, engine, audit.New(database))
	return database, gov
}

func TestGovernance_DualControlFlow(t *testing.T) {
	database, gov := setupGovernance(t)
	ctx := context.Background()

	seedBot(t, database, "b42", types.StageCanary, fullMetrics(80, 55, 1.6, 1.2, 8))

	row, err := gov.Request(ctx, "b42", "u1", "ready for live capital")
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalPending, row.Status)
	assert.Equal(t, types.StageCanary, row.FromStage)
	assert.Equal(t, types.StageLive, row.ToStage)
	assert.Equal(t, "u1", row.RequestedBy)
	require.NotNil(t, row.MetricsSnapshot)
	assert.Equal(t, 0, len(row.GateSnapshot), "no automated gates guard CANARY -> LIVE")
	ttl := row.ExpiresAt.Sub(row.CreatedAt)
	assert.Equal(t, params.Platform().ApprovalTTL, ttl)

	// The requester cannot approve their own request.
	_, err = gov.Approve(ctx, row.ID, "u1", "looks good")
	assert.Equal(t, true, errors.Is(err, ErrDualControl))

	bot, err := database.Bot(ctx, "b42")
	require.NoError(t, err)
	assert.Equal(t, types.StageCanary, bot.Stage, "stage must not move on a rejected review")

	// A second user approves; the promotion executes atomically.
	approved, err := gov.Approve(ctx, row.ID, "u2", "verified")
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalApproved, approved.Status)
	assert.Equal(t, "u2", approved.ReviewedBy)

	bot, err = database.Bot(ctx, "b42")
	require.NoError(t, err)
	assert.Equal(t, types.StageLive, bot.Stage)

	// The chain carries the PROMOTED entry and verifies end to end.
	res, err := audit.New(database).VerifyChain(ctx)
	require.NoError(t, err)
	assert.Equal(t, true, res.Valid)
	entries, err := database.AuditEntries(ctx, 1, 0)
	require.NoError(t, err)
	var promoted *types.AuditEntry
	for _, e := range entries {
		if e.EventType == audit.EventPromoted && e.EntityID == "b42" {
			promoted = e
		}
	}
	require.NotNil(t, promoted)
	prev, err := database.AuditEntry(ctx, promoted.SequenceNumber-1)
	require.NoError(t, err)
	assert.Equal(t, prev.ChainHash, promoted.PreviousHash)
}

func TestRequest_DuplicatePendingRejected(t *testing.T) {
	database, gov := setupGovernance(t)
	ctx := context.Background()

	seedBot(t, database, "b1", types.StageCanary, fullMetrics(80, 55, 1.6, 1.2, 8))

	_, err := gov.Request(ctx, "b1", "u1", "first")
	require.NoError(t, err)
	_, err = gov.Request(ctx, "b1", "u3", "second")
	assert.ErrorContains(t, "already has pending approval", err)
}

func TestRequest_OnlyCanaryGuarded(t *testing.T) {
	database, gov := setupGovernance(t)
	ctx := context.Background()

	seedBot(t, database, "b1", types.StagePaper, fullMetrics(80, 55, 1.6, 1.2, 8))
	_, err := gov.Request(ctx, "b1", "u1", "premature")
	assert.ErrorContains(t, "dual control guards CANARY -> LIVE only", err)
}

func TestRequest_HardStopRejected(t *testing.T) {
	database, gov := setupGovernance(t)
	ctx := context.Background()

	// 40 trades sits under the 50-trade floor for promotion into LIVE.
	seedBot(t, database, "b1", types.StageCanary, fullMetrics(40, 55, 1.6, 1.2, 8))
	_, err := gov.Request(ctx, "b1", "u1", "too early")
	assert.ErrorContains(t, "below evaluation floor 50", err)
}

func TestApprove_PromotionFailureRevertsToPending(t *testing.T) {
	database, gov := setupGovernance(t)
	ctx := context.Background()

	bot := seedBot(t, database, "b1", types.StageCanary, fullMetrics(80, 55, 1.6, 1.2, 8))
	row, err := gov.Request(ctx, "b1", "u1", "go live")
	require.NoError(t, err)

	// The bot moves out from under the request before review.
	bot.Stage = types.StageShadow
	require.NoError(t, database.SaveBot(ctx, bot))

	_, err = gov.Approve(ctx, row.ID, "u2", "")
	assert.ErrorContains(t, "promotion failed", err)

	reverted, err := database.Approval(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalPending, reverted.Status)
	assert.Equal(t, "", reverted.ReviewedBy)
	assert.Equal(t, true, strings.Contains(reverted.ReviewNotes, "moved to SHADOW"), "review notes: %s", reverted.ReviewNotes)

	// Once the bot is back at CANARY the same row approves cleanly.
	bot.Stage = types.StageCanary
	require.NoError(t, database.SaveBot(ctx, bot))

	approved, err := gov.Approve(ctx, row.ID, "u2", "second attempt")
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalApproved, approved.Status)

	got, err := database.Bot(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, types.StageLive, got.Stage)
}

func TestReject_And_Withdraw(t *testing.T) {
	database, gov := setupGovernance(t)
	ctx := context.Background()

	seedBot(t, database, "b1", types.StageCanary, fullMetrics(80, 55, 1.6, 1.2, 8))
	row, err := gov.Request(ctx, "b1", "u1", "go live")
	require.NoError(t, err)

	_, err = gov.Reject(ctx, row.ID, "u1", "no")
	assert.Equal(t, true, errors.Is(err, ErrDualControl), "rejection is a review")

	rejected, err := gov.Reject(ctx, row.ID, "u2", "not with this drawdown")
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalRejected, rejected.Status)
	assert.Equal(t, "not with this drawdown", rejected.ReviewNotes)

	// A fresh request can be withdrawn, but only by its requester.
	row2, err := gov.Request(ctx, "b1", "u1", "retry")
	require.NoError(t, err)
	_, err = gov.Withdraw(ctx, row2.ID, "u2")
	assert.ErrorContains(t, "only the requester", err)

	withdrawn, err := gov.Withdraw(ctx, row2.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalWithdrawn, withdrawn.Status)

	bot, err := database.Bot(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, types.StageCanary, bot.Stage)
}

func TestSweepExpired(t *testing.T) {
	params.SetupTestConfigCleanup(t)
	params.UseMinimalConfig()
	database, gov := setupGovernance(t)
	ctx := context.Background()

	seedBot(t, database, "b1", types.StageCanary, fullMetrics(80, 55, 1.6, 1.2, 8))
	row, err := gov.Request(ctx, "b1", "u1", "go live")
	require.NoError(t, err)

	time.Sleep(params.Platform().ApprovalTTL + 50*time.Millisecond)

	// A review after the deadline is rejected even before the sweep runs.
	_, err = gov.Approve(ctx, row.ID, "u2", "")
	assert.ErrorContains(t, "expired at", err)

	swept, err := gov.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	expired, err := database.Approval(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalExpired, expired.Status)

	entry, err := database.LatestAuditEntry(ctx)
	require.NoError(t, err)
	assert.Equal(t, audit.EventGovernanceExpired, entry.EventType)

	// Nothing left to sweep.
	swept, err = gov.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)
}
