package params

import (
	"sync"
	"testing"
)

var platformConfig = MainnetConfig()
var platformConfigLock sync.RWMutex

// Platform retrieves the active platform config.
func Platform() *PlatformConfig {
	platformConfigLock.RLock()
	defer platformConfigLock.RUnlock()
	return platformConfig
}

// OverridePlatformConfig by replacing the config. The preferred pattern is to
// call Platform().Copy(), change the specific parameters, and then call
// OverridePlatformConfig(c). Any subsequent calls to params.Platform() will
// return this new configuration.
func OverridePlatformConfig(c *PlatformConfig) {
	platformConfigLock.Lock()
	defer platformConfigLock.Unlock()
	platformConfig = c
}

// Copy returns a copy of the config object. All fields are value types, so a
// shallow copy is a full copy.
func (c *PlatformConfig) Copy() *PlatformConfig {
	config := *c
	return &config
}

// SetupTestConfigCleanup preserves the active configuration and restores it
// when the test completes, so tests that override parameters do not leak
// into each other.
func SetupTestConfigCleanup(t testing.TB) {
	prev := Platform().Copy()
	t.Cleanup(func() {
		OverridePlatformConfig(prev)
	})
}
