package stage

import (
	"context"
	"time"

	"github.com/gauntletlabs/gauntlet/async"
	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/audit"
	"github.com/gauntletlabs/gauntlet/platform/db"
	"github.com/gauntletlabs/gauntlet/platform/db/iface"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// requestActionPromote is the only guarded action today: CANARY to LIVE.
const requestActionPromote = "PROMOTE"

// ErrDualControl is returned when a requester tries to review their own
// request.
var ErrDualControl = errors.New("dual control violation: requester cannot review their own request")

// Governance runs the maker-checker flow for promotions into live capital.
type Governance struct {
	db     iface.Database
	engine *Engine
	audits *audit.Service
}

// NewGovernance creates the dual-control service.
func NewGovernance(database iface.Database, engine *Engine, audits *audit.Service) *Governance {
	return &Governance{db: database, engine: engine, audits: audits}
}

// Request files a promotion request for a CANARY bot. The row snapshots the
// bot's metrics and gate evaluation at request time and expires after the
// configured TTL. A bot may hold only one pending request.
func (g *Governance) Request(ctx context.Context, botID, requestedBy, justification string) (*types.GovernanceApproval, error) {
	if requestedBy == "" {
		return nil, errors.New("a governance request requires a requesting user")
	}
	lock := async.NewMultilock("bot:" + botID)
	lock.Lock()
	defer lock.Unlock()

	bot, err := g.db.Bot(ctx, botID)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load bot %s", botID)
	}
	if bot.Archived || bot.Stage.Terminal() {
		return nil, errors.Errorf("bot %s is not promotable", botID)
	}
	if bot.Stage != types.StageCanary {
		return nil, errors.Errorf("bot %s is at %s; dual control guards CANARY -> LIVE only", botID, bot.Stage)
	}
	if existing, err := g.db.PendingApprovalForBot(ctx, botID); err == nil {
		return nil, errors.Errorf("bot %s already has pending approval %s", botID, existing.ID)
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	m, err := g.engine.metricsForBot(ctx, bot)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	eval := EvaluatePromotion(bot, m, now)
	if eval.HardStopReason != "" {
		return nil, errors.Errorf("promotion request rejected: %s", eval.HardStopReason)
	}

	row := &types.GovernanceApproval{
		ID:              uuid.NewString(),
		BotID:           botID,
		RequestedAction: requestActionPromote,
		FromStage:       eval.From,
		ToStage:         eval.To,
		RequestedBy:     requestedBy,
		Status:          types.ApprovalPending,
		Justification:   justification,
		MetricsSnapshot: m,
		GateSnapshot:    eval.Lines(),
		ExpiresAt:       now.Add(params.Platform().ApprovalTTL),
		CreatedAt:       now,
	}
	if err := g.db.SaveApproval(ctx, row); err != nil {
		return nil, errors.Wrap(err, "could not save governance request")
	}
	g.recordEvent(ctx, audit.EventGovernanceRequested, row, audit.ActorUser, requestedBy)
	governanceDecisions.WithLabelValues("requested").Inc()
	log.WithFields(logrus.Fields{
		"approval":    row.ID,
		"bot":         botID,
		"requestedBy": requestedBy,
		"expiresAt":   row.ExpiresAt,
	}).Info("Governance promotion requested")
	return row, nil
}

// Approve reviews a pending request and executes the promotion. The approver
// must differ from the requester. If execution fails the row reverts to
// PENDING with the failure in review notes, so approval can be re-attempted.
func (g *Governance) Approve(ctx context.Context, approvalID, reviewedBy, notes string) (*types.GovernanceApproval, error) {
	lock := async.NewMultilock("approval:" + approvalID)
	lock.Lock()
	defer lock.Unlock()

	a, err := g.db.Approval(ctx, approvalID)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load approval %s", approvalID)
	}
	now := time.Now().UTC()
	if err := reviewable(a, reviewedBy, now); err != nil {
		return nil, err
	}

	a.Status = types.ApprovalApproved
	a.ReviewedBy = reviewedBy
	a.ReviewedAt = now
	a.ReviewNotes = notes
	if err := g.db.SaveApproval(ctx, a); err != nil {
		return nil, errors.Wrap(err, "could not save approval decision")
	}
	if _, err := g.engine.ExecuteApproved(ctx, a); err != nil {
		a.Status = types.ApprovalPending
		a.ReviewedBy = ""
		a.ReviewedAt = time.Time{}
		a.ReviewNotes = "promotion failed: " + err.Error()
		if saveErr := g.db.SaveApproval(ctx, a); saveErr != nil {
			log.WithError(saveErr).WithField("approval", a.ID).Error("Could not revert approval to PENDING")
		}
		return nil, errors.Wrap(err, "promotion failed; request reverted to PENDING")
	}
	g.recordEvent(ctx, audit.EventGovernanceApproved, a, audit.ActorUser, reviewedBy)
	governanceDecisions.WithLabelValues("approved").Inc()
	log.WithFields(logrus.Fields{
		"approval":   a.ID,
		"bot":        a.BotID,
		"reviewedBy": reviewedBy,
	}).Info("Governance promotion approved and executed")
	return a, nil
}

// Reject closes a pending request without executing it. Rejection is a
// review, so the dual-control rule applies.
func (g *Governance) Reject(ctx context.Context, approvalID, reviewedBy, notes string) (*types.GovernanceApproval, error) {
	lock := async.NewMultilock("approval:" + approvalID)
	lock.Lock()
	defer lock.Unlock()

	a, err := g.db.Approval(ctx, approvalID)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load approval %s", approvalID)
	}
	now := time.Now().UTC()
	if err := reviewable(a, reviewedBy, now); err != nil {
		return nil, err
	}
	a.Status = types.ApprovalRejected
	a.ReviewedBy = reviewedBy
	a.ReviewedAt = now
	a.ReviewNotes = notes
	if err := g.db.SaveApproval(ctx, a); err != nil {
		return nil, errors.Wrap(err, "could not save rejection")
	}
	g.recordEvent(ctx, audit.EventGovernanceRejected, a, audit.ActorUser, reviewedBy)
	governanceDecisions.WithLabelValues("rejected").Inc()
	return a, nil
}

// Withdraw closes a pending request. Only the requester may withdraw.
func (g *Governance) Withdraw(ctx context.Context, approvalID, requestedBy string) (*types.GovernanceApproval, error) {
	lock := async.NewMultilock("approval:" + approvalID)
	lock.Lock()
	defer lock.Unlock()

	a, err := g.db.Approval(ctx, approvalID)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load approval %s", approvalID)
	}
	if a.Status != types.ApprovalPending {
		return nil, errors.Errorf("approval %s is %s, not PENDING", a.ID, a.Status)
	}
	if a.RequestedBy != requestedBy {
		return nil, errors.Errorf("only the requester may withdraw approval %s", a.ID)
	}
	a.Status = types.ApprovalWithdrawn
	if err := g.db.SaveApproval(ctx, a); err != nil {
		return nil, errors.Wrap(err, "could not save withdrawal")
	}
	g.recordEvent(ctx, audit.EventGovernanceWithdrawn, a, audit.ActorUser, requestedBy)
	governanceDecisions.WithLabelValues("withdrawn").Inc()
	return a, nil
}

// SweepExpired marks pending rows past their deadline EXPIRED. Each row is
// re-checked under its lock so a concurrent review wins over the sweep.
func (g *Governance) SweepExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	stale, err := g.db.Approvals(ctx, func(a *types.GovernanceApproval) bool {
		return a.Status == types.ApprovalPending && !now.Before(a.ExpiresAt)
	})
	if err != nil {
		return 0, errors.Wrap(err, "could not list pending approvals")
	}
	swept := 0
	for _, row := range stale {
		lock := async.NewMultilock("approval:" + row.ID)
		lock.Lock()
		a, err := g.db.Approval(ctx, row.ID)
		if err != nil || a.Status != types.ApprovalPending || now.Before(a.ExpiresAt) {
			lock.Unlock()
			continue
		}
		a.Status = types.ApprovalExpired
		if err := g.db.SaveApproval(ctx, a); err != nil {
			log.WithError(err).WithField("approval", a.ID).Error("Could not expire approval")
			lock.Unlock()
			continue
		}
		lock.Unlock()
		g.recordEvent(ctx, audit.EventGovernanceExpired, a, audit.ActorSystem, actorEngine)
		governanceDecisions.WithLabelValues("expired").Inc()
		swept++
	}
	if swept > 0 {
		log.WithField("count", swept).Info("Expired stale governance requests")
	}
	return swept, nil
}

// Pending lists open requests for review queues.
func (g *Governance) Pending(ctx context.Context) ([]*types.GovernanceApproval, error) {
	return g.db.Approvals(ctx, func(a *types.GovernanceApproval) bool {
		return a.Status == types.ApprovalPending
	})
}

// ForBot lists a bot's full approval history.
func (g *Governance) ForBot(ctx context.Context, botID string) ([]*types.GovernanceApproval, error) {
	return g.db.Approvals(ctx, func(a *types.GovernanceApproval) bool {
		return a.BotID == botID
	})
}

// Approval returns one row by id.
func (g *Governance) Approval(ctx context.Context, id string) (*types.GovernanceApproval, error) {
	return g.db.Approval(ctx, id)
}

// reviewable screens a row for review: it must be PENDING, unexpired, carry
// a reviewer, and the reviewer must differ from the requester.
func reviewable(a *types.GovernanceApproval, reviewer string, now time.Time) error {
	if reviewer == "" {
		return errors.New("a review requires a reviewing user")
	}
	if a.Status != types.ApprovalPending {
		return errors.Errorf("approval %s is %s, not PENDING", a.ID, a.Status)
	}
	if !now.Before(a.ExpiresAt) {
		return errors.Errorf("approval %s expired at %s", a.ID, a.ExpiresAt.Format(time.RFC3339))
	}
	if a.RequestedBy == reviewer {
		return ErrDualControl
	}
	return nil
}

// recordEvent appends a governance lifecycle event to the audit chain.
// Failures are logged, never propagated; the approval row itself is the
// system of record for governance state.
func (g *Governance) recordEvent(ctx context.Context, eventType string, a *types.GovernanceApproval, actorType, actorID string) {
	entry, err := audit.NewEntry(eventType, audit.EntityApproval, a.ID, actorType, actorID, map[string]string{
		"botId":  a.BotID,
		"from":   string(a.FromStage),
		"to":     string(a.ToStage),
		"status": string(a.Status),
	})
	if err == nil {
		_, err = g.audits.Record(ctx, entry)
	}
	if err != nil {
		log.WithError(err).WithField("approval", a.ID).Error("Could not record governance audit event")
	}
}
