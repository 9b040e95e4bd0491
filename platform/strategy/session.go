package strategy

import (
	"fmt"
	"time"

	"github.com/gauntletlabs/gauntlet/platform/errclass"
	"github.com/gauntletlabs/gauntlet/platform/types"
)

// exchangeTZ is the clock all session windows are expressed in.
var exchangeTZ *time.Location

func init() {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// Without a tz database the platform still runs, pinned to
		// standard time. cmd imports time/tzdata so builds of the
		// binary never hit this.
		loc = time.FixedZone("ET", -5*60*60)
	}
	exchangeTZ = loc
}

// ExchangeTZ returns the exchange clock (America/New_York).
func ExchangeTZ() *time.Location {
	return exchangeTZ
}

// Window is a clock interval in "HH:MM" exchange time. End is exclusive.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// SessionRules is the session block of StrategyRules: which days and hours
// a bot may trade, and the windows inside the session it must sit out.
type SessionRules struct {
	TradingDays    []string `json:"tradingDays"`
	RTHStart       string   `json:"rthStart"`
	RTHEnd         string   `json:"rthEnd"`
	NoTradeWindows []Window `json:"noTradeWindows,omitempty"`

	// OriginalStart/End record the pre-widening window when the stage
	// engine adjusted it. Empty when no adjustment happened.
	OriginalStart string `json:"originalStart,omitempty"`
	OriginalEnd   string `json:"originalEnd,omitempty"`
}

// Weekday tags used in TradingDays.
var weekdayTags = map[time.Weekday]string{
	time.Sunday:    "SUN",
	time.Monday:    "MON",
	time.Tuesday:   "TUE",
	time.Wednesday: "WED",
	time.Thursday:  "THU",
	time.Friday:    "FRI",
	time.Saturday:  "SAT",
}

func weekdaysMonFri() []string {
	return []string{"MON", "TUE", "WED", "THU", "FRI"}
}

func weekdaysSunFri() []string {
	return []string{"SUN", "MON", "TUE", "WED", "THU", "FRI"}
}

// parseClock converts "HH:MM" to minutes after midnight.
func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, errclass.Newf(errclass.InvalidStrategy, "bad clock value %q, want HH:MM", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, errclass.Newf(errclass.InvalidStrategy, "clock value %q out of range", s)
	}
	return h*60 + m, nil
}

// sessionForMode builds the session block for a bot's session mode. CUSTOM
// requires explicit start and end.
func sessionForMode(bot *types.Bot) (SessionRules, error) {
	switch bot.SessionMode {
	case types.SessionRTH:
		return SessionRules{TradingDays: weekdaysMonFri(), RTHStart: "09:30", RTHEnd: "16:15"}, nil
	case types.SessionETH:
		// Overnight session, wraps midnight.
		return SessionRules{TradingDays: weekdaysSunFri(), RTHStart: "18:00", RTHEnd: "09:30"}, nil
	case types.SessionFull:
		// Window values are never consulted; the profile bypasses the
		// filter. Kept populated so the serialized rules stay stable.
		return SessionRules{TradingDays: weekdaysSunFri(), RTHStart: "00:00", RTHEnd: "23:59"}, nil
	case types.SessionCustom:
		if bot.SessionStart == "" || bot.SessionEnd == "" {
			return SessionRules{}, errclass.Newf(errclass.InvalidStrategy,
				"bot %s uses CUSTOM session without sessionStart/sessionEnd", bot.ID)
		}
		if _, err := parseClock(bot.SessionStart); err != nil {
			return SessionRules{}, err
		}
		if _, err := parseClock(bot.SessionEnd); err != nil {
			return SessionRules{}, err
		}
		return SessionRules{TradingDays: weekdaysMonFri(), RTHStart: bot.SessionStart, RTHEnd: bot.SessionEnd}, nil
	}
	return SessionRules{}, errclass.Newf(errclass.InvalidStrategy, "bot %s has unknown session mode %q", bot.ID, bot.SessionMode)
}

// Widen replaces the session window, recording the original once. Used by
// the executor to pull TRIALS and PAPER entries away from the open and
// close. Repeated widening keeps the first original.
func (s *SessionRules) Widen(start, end string) {
	if s.OriginalStart == "" {
		s.OriginalStart, s.OriginalEnd = s.RTHStart, s.RTHEnd
	}
	s.RTHStart, s.RTHEnd = start, end
}

func (s SessionRules) tradesOn(d time.Weekday) bool {
	tag := weekdayTags[d]
	for _, td := range s.TradingDays {
		if td == tag {
			return true
		}
	}
	return false
}

// InSession reports whether t falls inside the trading window. Windows with
// start after end wrap midnight (the ETH overnight session). Day membership
// is judged on the bar's exchange-time weekday.
func (s SessionRules) InSession(t time.Time) bool {
	et := t.In(exchangeTZ)
	if !s.tradesOn(et.Weekday()) {
		return false
	}
	start, err := parseClock(s.RTHStart)
	if err != nil {
		return false
	}
	end, err := parseClock(s.RTHEnd)
	if err != nil {
		return false
	}
	now := et.Hour()*60 + et.Minute()
	if start <= end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

// InNoTradeWindow reports whether t falls inside any configured blackout.
func (s SessionRules) InNoTradeWindow(t time.Time) bool {
	if len(s.NoTradeWindows) == 0 {
		return false
	}
	et := t.In(exchangeTZ)
	now := et.Hour()*60 + et.Minute()
	for _, w := range s.NoTradeWindows {
		start, err := parseClock(w.Start)
		if err != nil {
			continue
		}
		end, err := parseClock(w.End)
		if err != nil {
			continue
		}
		if start <= end {
			if now >= start && now < end {
				return true
			}
		} else if now >= start || now < end {
			return true
		}
	}
	return false
}

// MinutesToClose returns whole minutes until the session end, for the
// late-entry invalidation. Wrapping sessions measure to the next close.
func (s SessionRules) MinutesToClose(t time.Time) int {
	end, err := parseClock(s.RTHEnd)
	if err != nil {
		return 0
	}
	et := t.In(exchangeTZ)
	now := et.Hour()*60 + et.Minute()
	d := end - now
	if d < 0 {
		d += 24 * 60
	}
	return d
}
