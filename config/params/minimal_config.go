package params

import "time"

// MinimalConfig returns the configuration used by fast-running tests: the
// same thresholds as mainnet with every long duration shortened so waiters,
// sweepers, and breaker resets exercise in milliseconds.
func MinimalConfig() *PlatformConfig {
	c := MainnetConfig()
	c.BarCacheLockTTL = 500 * time.Millisecond
	c.BarCachePendingTTL = time.Second
	c.BarCacheRenewalInterval = 100 * time.Millisecond
	c.BarCacheDataTTL = time.Minute
	c.BarCachePollInterval = 5 * time.Millisecond
	c.BarCachePollIncrement = time.Millisecond
	c.BarCachePollMax = 25 * time.Millisecond
	c.BarCacheWaiterGrace = 50 * time.Millisecond
	c.ApprovalTTL = 250 * time.Millisecond
	c.ApprovalSweepInterval = 25 * time.Millisecond
	c.StageEvaluateInterval = 50 * time.Millisecond
	c.FleetCheckInterval = 50 * time.Millisecond
	c.IdempotencyCleanupInterval = 50 * time.Millisecond
	c.RegimeCacheTTL = 100 * time.Millisecond
	c.RegimeBurstCooldown = 200 * time.Millisecond
	c.BrokerTimeout = 250 * time.Millisecond
	c.BrokerBreakerReset = 100 * time.Millisecond
	c.MarketDataTimeout = 250 * time.Millisecond
	c.MarketDataBreakerReset = 100 * time.Millisecond
	c.ResearchTimeout = 250 * time.Millisecond
	c.ResearchBreakerReset = 100 * time.Millisecond
	c.HeartbeatInterval = 25 * time.Millisecond
	return c
}

// UseMinimalConfig activates the minimal configuration. Tests should pair
// this with SetupTestConfigCleanup.
func UseMinimalConfig() {
	OverridePlatformConfig(MinimalConfig())
}
