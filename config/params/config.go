// Package params defines the platform configuration: every tunable
// threshold, TTL, and limit used by the bar cache, backtest executor,
// stage engine, risk engine, and governance workers. Values are read
// through Platform() and overridden wholesale with OverridePlatformConfig,
// so tests and deployments swap configurations atomically.
package params

import "time"

// PlatformConfig contains the tunable parameters for a running node.
type PlatformConfig struct {
	// Bar cache constants.
	BarCacheLockTTL           time.Duration `yaml:"bar-cache-lock-ttl"`            // Fetch lock expiry; covers a slow upstream fetch.
	BarCachePendingTTL        time.Duration `yaml:"bar-cache-pending-ttl"`         // Pending sentinel expiry.
	BarCacheRenewalInterval   time.Duration `yaml:"bar-cache-renewal-interval"`    // Lock/pending heartbeat period for long fetches.
	BarCacheDataTTL           time.Duration `yaml:"bar-cache-data-ttl"`            // Cached bar payload expiry.
	BarCachePollInterval      time.Duration `yaml:"bar-cache-poll-interval"`       // Initial waiter poll period.
	BarCachePollIncrement     time.Duration `yaml:"bar-cache-poll-increment"`      // Added to the poll period after every poll.
	BarCachePollMax           time.Duration `yaml:"bar-cache-poll-max"`            // Poll period ceiling.
	BarCacheWaiterGrace       time.Duration `yaml:"bar-cache-waiter-grace"`        // Minimum wait before a missing sentinel can trigger fallback.
	BarCacheMissingThreshold  int           `yaml:"bar-cache-missing-threshold"`   // Consecutive missing-sentinel checks before fallback fetch.
	BarCacheKeyHashThreshold  int           `yaml:"bar-cache-key-hash-threshold"`  // Range segment byte length above which it is hashed.
	BarCacheL1Size            int           `yaml:"bar-cache-l1-size"`             // In-process LRU entries in front of redis.
	BarWarmupCount            int           `yaml:"bar-warmup-count"`              // Bars consumed by indicator warmup before signals may fire.
	BarMaxSpanDays            int           `yaml:"bar-max-span-days"`             // Widest [start,end) a single cache entry may cover.
	FallbackAlertThreshold    float64       `yaml:"fallback-alert-threshold"`      // Stampede-fallback share of fetches that trips the reporter alert.

	// Backtest executor constants.
	BacktestBaselineMinTrades int     `yaml:"backtest-baseline-min-trades"` // Trades required before a run may update the bot baseline.
	ProfitFactorCap           float64 `yaml:"profit-factor-cap"`            // Reported profit factor when gross loss is zero.
	SharpeAnnualization       float64 `yaml:"sharpe-annualization"`         // Multiplier applied to per-trade sharpe (sqrt of trading days).
	TrialsSessionOpen         string  `yaml:"trials-session-open"`          // Widened session open for TRIALS runs, exchange time.
	TrialsSessionClose        string  `yaml:"trials-session-close"`         // Widened session close for TRIALS runs, exchange time.
	VarianceAlertThreshold    float64 `yaml:"variance-alert-threshold"`     // Relative net-PnL drift a replayed session may show before the alert fires.

	// Stage promotion gates.
	TrialsPromoteConfidence float64 `yaml:"trials-promote-confidence"`
	TrialsPromoteUniqueness float64 `yaml:"trials-promote-uniqueness"`
	PaperPromoteWinRate     float64 `yaml:"paper-promote-win-rate"`
	PaperPromoteProfit      float64 `yaml:"paper-promote-profit-factor"`
	PaperPromoteTrades      int     `yaml:"paper-promote-trades"`
	ShadowPromoteWinRate    float64 `yaml:"shadow-promote-win-rate"`
	ShadowPromoteProfit     float64 `yaml:"shadow-promote-profit-factor"`
	ShadowPromoteSharpe     float64 `yaml:"shadow-promote-sharpe"`
	ShadowPromoteMaxDD      float64 `yaml:"shadow-promote-max-drawdown"`
	ShadowPromoteDays       int     `yaml:"shadow-promote-days"`

	// Stage demotion triggers.
	LiveDemoteDrawdown    float64 `yaml:"live-demote-drawdown"`
	LiveDemoteProfit      float64 `yaml:"live-demote-profit-factor"`
	CanaryDemoteSharpe    float64 `yaml:"canary-demote-sharpe"`
	CanaryDemoteLossDays  int     `yaml:"canary-demote-losing-days"`
	ShadowDemoteWinRate   float64 `yaml:"shadow-demote-win-rate"`
	EvaluationMinTrades   int     `yaml:"evaluation-min-trades"`      // SEV-0 floor for automated stage evaluation.
	LiveEvaluationTrades  int     `yaml:"live-evaluation-min-trades"` // SEV-0 floor for LIVE-stage evaluation.
	StageEvaluateInterval time.Duration `yaml:"stage-evaluate-interval"`

	// Governance.
	ApprovalTTL           time.Duration `yaml:"approval-ttl"`            // PENDING requests expire after this long.
	ApprovalSweepInterval time.Duration `yaml:"approval-sweep-interval"` // Expiry sweeper period.

	// Per-bot risk tiers, percent of allocated capital.
	DrawdownWarning  float64 `yaml:"drawdown-warning"`
	DrawdownSoft     float64 `yaml:"drawdown-soft"`
	DrawdownHard     float64 `yaml:"drawdown-hard"`
	DailyLossWarning float64 `yaml:"daily-loss-warning"`
	DailyLossSoft    float64 `yaml:"daily-loss-soft"`
	DailyLossHard    float64 `yaml:"daily-loss-hard"`
	BlownDrawdown    float64 `yaml:"blown-drawdown"`      // Drawdown at which an account is declared blown.
	BlownCapitalFrac float64 `yaml:"blown-capital-frac"`  // Remaining-capital fraction below which an account is blown.
	VaRConfidence    float64 `yaml:"var-confidence"`      // Historical VaR tail probability.
	VaRLookbackDays  int     `yaml:"var-lookback-days"`
	VaRLimitFrac     float64 `yaml:"var-limit-frac"` // Portfolio fraction a bot's VaR may not exceed.

	// Fleet-wide risk limits.
	FleetMaxContracts    int           `yaml:"fleet-max-contracts"`
	FleetMaxNotional     float64       `yaml:"fleet-max-notional"`
	FleetDrawdownWarning float64       `yaml:"fleet-drawdown-warning"`
	FleetDrawdownSoft    float64       `yaml:"fleet-drawdown-soft"`
	FleetDrawdownHard    float64       `yaml:"fleet-drawdown-hard"`
	SectorExposureLimit  float64       `yaml:"sector-exposure-limit"`  // Fraction of fleet notional allowed in one sector.
	SymbolBotLimit       int           `yaml:"symbol-bot-limit"`       // Active bots allowed on one symbol.
	FleetRecoveryDD      float64       `yaml:"fleet-recovery-drawdown"` // Fleet drawdown below which restrictions self-heal.
	FleetCheckInterval   time.Duration `yaml:"fleet-check-interval"`

	// Per-stage position caps, contracts per order.
	MaxContractsTrials int `yaml:"max-contracts-trials"`
	MaxContractsPaper  int `yaml:"max-contracts-paper"`
	MaxContractsShadow int `yaml:"max-contracts-shadow"`
	MaxContractsCanary int `yaml:"max-contracts-canary"`
	MaxContractsLive   int `yaml:"max-contracts-live"`

	// Idempotency store.
	IdempotencyTTL             time.Duration `yaml:"idempotency-ttl"`
	IdempotencyMaxRecords      int           `yaml:"idempotency-max-records"`
	IdempotencyEvictFraction   float64       `yaml:"idempotency-evict-fraction"`
	IdempotencyMaxResponse     int           `yaml:"idempotency-max-response"` // Bytes; larger responses are not replayable.
	IdempotencyCleanupInterval time.Duration `yaml:"idempotency-cleanup-interval"`

	// Evolution and regime analysis.
	EvolutionMinTrades      int           `yaml:"evolution-min-trades"` // Trades a bot needs before it can parent offspring.
	MutationDecayBase       float64       `yaml:"mutation-decay-base"`  // Adaptive mutation strength decays by this per decay window.
	MutationDecayWindow     int           `yaml:"mutation-decay-window"` // Generations per decay step.
	FitnessWeightSharpe     float64       `yaml:"fitness-weight-sharpe"`
	FitnessWeightProfit     float64       `yaml:"fitness-weight-profit-factor"`
	FitnessWeightWinRate    float64       `yaml:"fitness-weight-win-rate"`
	FitnessWeightDrawdown   float64       `yaml:"fitness-weight-drawdown"`
	FitnessWeightExpectancy float64       `yaml:"fitness-weight-expectancy"`
	RegimeCacheTTL          time.Duration `yaml:"regime-cache-ttl"`
	RegimeBurstCooldown     time.Duration `yaml:"regime-burst-cooldown"`
	RegimeLookbackDays      int           `yaml:"regime-lookback-days"`

	// Broker connectivity.
	BrokerTimeout            time.Duration `yaml:"broker-timeout"`
	BrokerRetries            int           `yaml:"broker-retries"`
	BrokerBreakerThreshold   int           `yaml:"broker-breaker-threshold"`
	BrokerBreakerReset       time.Duration `yaml:"broker-breaker-reset"`
	MarketDataTimeout        time.Duration `yaml:"market-data-timeout"`
	MarketDataRetries        int           `yaml:"market-data-retries"`
	MarketDataBreakerLimit   int           `yaml:"market-data-breaker-threshold"`
	MarketDataBreakerReset   time.Duration `yaml:"market-data-breaker-reset"`
	ResearchTimeout          time.Duration `yaml:"research-timeout"`
	ResearchRetries          int           `yaml:"research-retries"`
	ResearchBreakerThreshold int           `yaml:"research-breaker-threshold"`
	ResearchBreakerReset     time.Duration `yaml:"research-breaker-reset"`
	HeartbeatInterval        time.Duration `yaml:"heartbeat-interval"`
	HeartbeatWarning         int           `yaml:"heartbeat-warning"`      // Missed heartbeats before WARNING.
	HeartbeatDegraded        int           `yaml:"heartbeat-degraded"`     // Missed heartbeats before DEGRADED.
	HeartbeatDisconnected    int           `yaml:"heartbeat-disconnected"` // Missed heartbeats before DISCONNECTED.
}

// TimeZone the exchange calendar runs on. Session boundaries in bar
// validation and the backtest executor are interpreted in this zone.
const TimeZone = "America/New_York"
