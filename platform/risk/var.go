package risk

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// applyVaRGate estimates the bot's tail loss and blocks the open when it
// exceeds the configured fraction of the account balance.
func (e *Engine) applyVaRGate(ctx context.Context, d *GateDecision, bot *types.Bot, account *types.Account, now time.Time) error {
	cfg := params.Platform()
	v, err := e.botVaR(ctx, bot, now)
	if err != nil {
		return err
	}
	if v <= 0 {
		return nil
	}
	frac := e.limitFor(ctx, ParamVaRLimitFrac, bot.ID, cfg.VaRLimitFrac, now)
	balance, _ := account.Balance.Float64()
	limit := balance * frac
	if v > limit {
		d.raise(BlockSoft, "valueAtRisk",
			fmt.Sprintf("estimated tail loss $%.0f exceeds %.0f%% of balance ($%.0f)", v, frac*100, limit))
	}
	return nil
}

// botVaR is a historical value-at-risk estimate: the per-contract trade
// result at the configured tail quantile over the lookback window, scaled to
// the bot's open gross contracts. No open exposure or no history in the
// window estimates to zero.
func (e *Engine) botVaR(ctx context.Context, bot *types.Bot, now time.Time) (float64, error) {
	cfg := params.Platform()
	positions, err := e.db.PositionsByBot(ctx, bot.ID)
	if err != nil {
		return 0, errors.Wrapf(err, "could not load positions for bot %s", bot.ID)
	}
	gross := 0
	for _, p := range positions {
		if p.Quantity < 0 {
			gross -= p.Quantity
		} else {
			gross += p.Quantity
		}
	}
	if gross == 0 {
		return 0, nil
	}

	trades, err := e.db.TradeLogsByBot(ctx, bot.ID)
	if err != nil {
		return 0, errors.Wrapf(err, "could not load trade history for bot %s", bot.ID)
	}
	cutoff := now.AddDate(0, 0, -cfg.VaRLookbackDays)
	var perContract []float64
	for _, tr := range trades {
		if tr.Quantity == 0 || tr.ExitTime.Before(cutoff) {
			continue
		}
		pnl, _ := tr.NetPnl.Div(decimal.NewFromInt(int64(tr.Quantity))).Float64()
		perContract = append(perContract, pnl)
	}
	if len(perContract) == 0 {
		return 0, nil
	}
	sort.Float64s(perContract)

	// Empirical alpha-quantile: with 20 observations at 95% confidence this
	// is the single worst trade, with 100 it is the fifth worst.
	idx := int(math.Ceil(float64(len(perContract))*(1-cfg.VaRConfidence))) - 1
	if idx < 0 {
		idx = 0
	}
	tail := perContract[idx]
	if tail >= 0 {
		return 0, nil
	}
	return -tail * float64(gross), nil
}
