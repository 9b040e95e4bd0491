// Package types defines the entities shared across the platform: bots,
// generations, backtest sessions, trade logs, governance approvals, audit
// entries, and the fleet risk state. Entities reference each other by opaque
// string IDs only, so the storage layer and the services that own each
// lifecycle never import one another.
package types

import (
	"time"

	"github.com/pkg/errors"
)

// Stage is a bot's position on the capital-exposure ladder.
type Stage string

// Canonical stages, ordered from research to live capital. KILLED sits
// outside the ladder and is terminal.
const (
	StageTrials Stage = "TRIALS"
	StagePaper  Stage = "PAPER"
	StageShadow Stage = "SHADOW"
	StageCanary Stage = "CANARY"
	StageLive   Stage = "LIVE"
	StageKilled Stage = "KILLED"
)

// ladder holds the promotable stages in order. KILLED is deliberately
// absent: nothing promotes into or out of it.
var ladder = []Stage{StageTrials, StagePaper, StageShadow, StageCanary, StageLive}

var stageRank = map[Stage]int{
	StageTrials: 0,
	StagePaper:  1,
	StageShadow: 2,
	StageCanary: 3,
	StageLive:   4,
}

// ParseStage returns the canonical stage for a string, or an error for
// anything outside the alphabet.
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageTrials, StagePaper, StageShadow, StageCanary, StageLive, StageKilled:
		return Stage(s), nil
	}
	return "", errors.Errorf("unknown stage %q", s)
}

// Ladder returns the promotable stages in promotion order.
func Ladder() []Stage {
	out := make([]Stage, len(ladder))
	copy(out, ladder)
	return out
}

// Rank returns the stage's position on the ladder and whether it is on the
// ladder at all. KILLED has no rank.
func (s Stage) Rank() (int, bool) {
	r, ok := stageRank[s]
	return r, ok
}

// Next returns the stage one promotion above s. The second return is false
// at the top of the ladder and for KILLED.
func (s Stage) Next() (Stage, bool) {
	r, ok := stageRank[s]
	if !ok || r+1 >= len(ladder) {
		return "", false
	}
	return ladder[r+1], true
}

// Prev returns the stage one demotion below s. The second return is false
// at the bottom of the ladder and for KILLED.
func (s Stage) Prev() (Stage, bool) {
	r, ok := stageRank[s]
	if !ok || r == 0 {
		return "", false
	}
	return ladder[r-1], true
}

// Terminal reports whether no transition may leave this stage.
func (s Stage) Terminal() bool {
	return s == StageKilled
}

// StageChange is one row of the bot_stage_changes audit trail. A row is
// written in the same transaction as the bot's stage mutation.
type StageChange struct {
	ID              string           `json:"id"`
	BotID           string           `json:"botId"`
	FromStage       Stage            `json:"fromStage"`
	ToStage         Stage            `json:"toStage"`
	Reason          string           `json:"reason"`
	Actor           string           `json:"actor"`
	MetricsSnapshot *BaselineMetrics `json:"metricsSnapshot,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}
