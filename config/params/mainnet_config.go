package params

import "time"

// MainnetConfig returns the production configuration. Every duration and
// threshold here is load-bearing for determinism and governance; change
// them through a config file override, not in code.
func MainnetConfig() *PlatformConfig {
	return &PlatformConfig{
		BarCacheLockTTL:          120 * time.Second,
		BarCachePendingTTL:       180 * time.Second,
		BarCacheRenewalInterval:  30 * time.Second,
		BarCacheDataTTL:          12 * time.Hour,
		BarCachePollInterval:     time.Second,
		BarCachePollIncrement:    200 * time.Millisecond,
		BarCachePollMax:          5 * time.Second,
		BarCacheWaiterGrace:      10 * time.Second,
		BarCacheMissingThreshold: 5,
		BarCacheKeyHashThreshold: 100,
		BarCacheL1Size:           256,
		BarWarmupCount:           50,
		BarMaxSpanDays:           30,
		FallbackAlertThreshold:   0.05,

		BacktestBaselineMinTrades: 20,
		ProfitFactorCap:           999,
		SharpeAnnualization:       15.874507866387544, // sqrt(252)
		TrialsSessionOpen:         "09:35",
		TrialsSessionClose:        "15:55",
		VarianceAlertThreshold:    0.001,

		TrialsPromoteConfidence: 65,
		TrialsPromoteUniqueness: 40,
		PaperPromoteWinRate:     45,
		PaperPromoteProfit:      1.2,
		PaperPromoteTrades:      20,
		ShadowPromoteWinRate:    50,
		ShadowPromoteProfit:     1.4,
		ShadowPromoteSharpe:     0.8,
		ShadowPromoteMaxDD:      15,
		ShadowPromoteDays:       5,

		LiveDemoteDrawdown:    20,
		LiveDemoteProfit:      1.0,
		CanaryDemoteSharpe:    0.5,
		CanaryDemoteLossDays:  3,
		ShadowDemoteWinRate:   35,
		EvaluationMinTrades:   10,
		LiveEvaluationTrades:  50,
		StageEvaluateInterval: 5 * time.Minute,

		ApprovalTTL:           24 * time.Hour,
		ApprovalSweepInterval: time.Minute,

		DrawdownWarning:  10,
		DrawdownSoft:     15,
		DrawdownHard:     20,
		DailyLossWarning: 2,
		DailyLossSoft:    3,
		DailyLossHard:    5,
		BlownDrawdown:    30,
		BlownCapitalFrac: 0.10,
		VaRConfidence:    0.95,
		VaRLookbackDays:  30,
		VaRLimitFrac:     0.05,

		FleetMaxContracts:    500,
		FleetMaxNotional:     500_000,
		FleetDrawdownWarning: 10,
		FleetDrawdownSoft:    15,
		FleetDrawdownHard:    25,
		SectorExposureLimit:  0.60,
		SymbolBotLimit:       50,
		FleetRecoveryDD:      5,
		FleetCheckInterval:   time.Minute,

		MaxContractsTrials: 1,
		MaxContractsPaper:  2,
		MaxContractsShadow: 2,
		MaxContractsCanary: 1,
		MaxContractsLive:   3,

		IdempotencyTTL:             24 * time.Hour,
		IdempotencyMaxRecords:      10_000,
		IdempotencyEvictFraction:   0.10,
		IdempotencyMaxResponse:     1 << 20,
		IdempotencyCleanupInterval: time.Hour,

		EvolutionMinTrades:      20,
		MutationDecayBase:       0.95,
		MutationDecayWindow:     10,
		FitnessWeightSharpe:     0.35,
		FitnessWeightProfit:     0.25,
		FitnessWeightWinRate:    0.15,
		FitnessWeightDrawdown:   0.15,
		FitnessWeightExpectancy: 0.10,
		RegimeCacheTTL:          5 * time.Minute,
		RegimeBurstCooldown:     4 * time.Hour,
		RegimeLookbackDays:      30,

		BrokerTimeout:            10 * time.Second,
		BrokerRetries:            2,
		BrokerBreakerThreshold:   3,
		BrokerBreakerReset:       30 * time.Second,
		MarketDataTimeout:        30 * time.Second,
		MarketDataRetries:        3,
		MarketDataBreakerLimit:   5,
		MarketDataBreakerReset:   60 * time.Second,
		ResearchTimeout:          60 * time.Second,
		ResearchRetries:          2,
		ResearchBreakerThreshold: 5,
		ResearchBreakerReset:     30 * time.Second,
		HeartbeatInterval:        30 * time.Second,
		HeartbeatWarning:         1,
		HeartbeatDegraded:        3,
		HeartbeatDisconnected:    5,
	}
}
