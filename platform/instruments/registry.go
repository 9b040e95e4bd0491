// Package instruments holds the static registry of tradable futures
// contracts. The platform trades this closed set and nothing else: any
// symbol outside the registry is rejected up front rather than priced with
// guessed contract math.
package instruments

import (
	"sort"

	"github.com/gauntletlabs/gauntlet/platform/errclass"
	"github.com/shopspring/decimal"
)

// Sector labels used by fleet exposure limits.
const (
	SectorEquityIndex = "EQUITY_INDEX"
	SectorEnergy      = "ENERGY"
	SectorMetals      = "METALS"
)

// Instrument describes one futures contract. PointValue and TickSize are
// decimals because they feed trade PnL math, which must not accumulate
// binary float error.
type Instrument struct {
	Symbol     string
	Name       string
	Exchange   string
	Sector     string
	PointValue decimal.Decimal // Dollars per full point of price movement, per contract.
	TickSize   decimal.Decimal // Minimum price increment.
	Commission decimal.Decimal // Default commission per side per contract, dollars.
	Micro      bool            // Micro-sized contract.
}

// TickValue returns the dollar value of one tick for one contract:
// pointValue * tickSize.
func (i Instrument) TickValue() decimal.Decimal {
	return i.PointValue.Mul(i.TickSize)
}

// RoundToTick snaps a price to the nearest tick.
func (i Instrument) RoundToTick(p decimal.Decimal) decimal.Decimal {
	return p.Div(i.TickSize).Round(0).Mul(i.TickSize)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var registry = map[string]Instrument{
	"ES":  {Symbol: "ES", Name: "E-mini S&P 500", Exchange: "CME", Sector: SectorEquityIndex, PointValue: dec("50"), TickSize: dec("0.25"), Commission: dec("1.29")},
	"MES": {Symbol: "MES", Name: "Micro E-mini S&P 500", Exchange: "CME", Sector: SectorEquityIndex, PointValue: dec("5"), TickSize: dec("0.25"), Commission: dec("0.52"), Micro: true},
	"NQ":  {Symbol: "NQ", Name: "E-mini Nasdaq-100", Exchange: "CME", Sector: SectorEquityIndex, PointValue: dec("20"), TickSize: dec("0.25"), Commission: dec("1.29")},
	"MNQ": {Symbol: "MNQ", Name: "Micro E-mini Nasdaq-100", Exchange: "CME", Sector: SectorEquityIndex, PointValue: dec("2"), TickSize: dec("0.25"), Commission: dec("0.52"), Micro: true},
	"YM":  {Symbol: "YM", Name: "E-mini Dow", Exchange: "CBOT", Sector: SectorEquityIndex, PointValue: dec("5"), TickSize: dec("1"), Commission: dec("1.29")},
	"MYM": {Symbol: "MYM", Name: "Micro E-mini Dow", Exchange: "CBOT", Sector: SectorEquityIndex, PointValue: dec("0.5"), TickSize: dec("1"), Commission: dec("0.52"), Micro: true},
	"RTY": {Symbol: "RTY", Name: "E-mini Russell 2000", Exchange: "CME", Sector: SectorEquityIndex, PointValue: dec("50"), TickSize: dec("0.1"), Commission: dec("1.29")},
	"M2K": {Symbol: "M2K", Name: "Micro E-mini Russell 2000", Exchange: "CME", Sector: SectorEquityIndex, PointValue: dec("5"), TickSize: dec("0.1"), Commission: dec("0.52"), Micro: true},
	"CL":  {Symbol: "CL", Name: "Crude Oil", Exchange: "NYMEX", Sector: SectorEnergy, PointValue: dec("1000"), TickSize: dec("0.01"), Commission: dec("1.55")},
	"GC":  {Symbol: "GC", Name: "Gold", Exchange: "COMEX", Sector: SectorMetals, PointValue: dec("100"), TickSize: dec("0.1"), Commission: dec("1.55")},
}

// Get returns the instrument for a symbol. Unknown symbols fail with
// INSTRUMENT_NOT_SUPPORTED; there is no partial answer.
func Get(symbol string) (Instrument, error) {
	inst, ok := registry[symbol]
	if !ok {
		return Instrument{}, errclass.Newf(errclass.InstrumentNotSupported, "symbol %q is not in the registry", symbol)
	}
	return inst, nil
}

// IsSupported reports whether a symbol is tradable.
func IsSupported(symbol string) bool {
	_, ok := registry[symbol]
	return ok
}

// Symbols returns every registered symbol in lexical order.
func Symbols() []string {
	out := make([]string, 0, len(registry))
	for s := range registry {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
