package bars

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/types"
)

// Key versioning: v1 cached parsed bars verbatim; v2 caches the gzipped
// compact-array payload. The version lives in the key so a rollout never
// decodes the wrong shape.
const keyPrefix = "bars:v2"

// CacheKey returns the canonical data key for a bar range. When the range
// segment grows past the configured byte threshold it is replaced with
// h{md5-16hex(range)} to stay within key-length limits on every backend.
func CacheKey(symbol string, tf Timeframe, mode types.SessionMode, start, end time.Time) string {
	rangeSeg := fmt.Sprintf("%d:%d", start.Unix(), end.Unix())
	if len(rangeSeg) > params.Platform().BarCacheKeyHashThreshold {
		sum := md5.Sum([]byte(rangeSeg))
		rangeSeg = "h" + hex.EncodeToString(sum[:])[:16]
	}
	return fmt.Sprintf("%s:%s:%s:%s:%s", keyPrefix, symbol, tf, mode, rangeSeg)
}

// LockKey returns the exclusive build-lock key for a data key.
func LockKey(dataKey string) string {
	return "lock:" + dataKey
}

// PendingKey returns the liveness-sentinel key for a data key. While it
// exists, some worker is still fetching the range.
func PendingKey(dataKey string) string {
	return "pending:" + dataKey
}
