package stage

import (
	"sort"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/types"
	"github.com/shopspring/decimal"
)

// ConsecutiveLosingDays counts backward over the bot's trading days, in
// exchange time, stopping at the first day that did not lose money. Days
// with no closed trades do not break the streak; a closed market is not a
// win. Trades are grouped by exit day.
func ConsecutiveLosingDays(trades []*types.TradeLog, loc *time.Location) int {
	if len(trades) == 0 {
		return 0
	}
	totals := make(map[string]decimal.Decimal)
	for _, tr := range trades {
		day := tr.ExitTime.In(loc).Format("2006-01-02")
		totals[day] = totals[day].Add(tr.NetPnl)
	}
	days := make([]string, 0, len(totals))
	for d := range totals {
		days = append(days, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))

	streak := 0
	for _, d := range days {
		if totals[d].Sign() >= 0 {
			break
		}
		streak++
	}
	return streak
}
