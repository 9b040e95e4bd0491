// Package idempotency gives mutation endpoints exactly-once semantics. A
// client that retries a request under the same Idempotency-Key either gets
// the original response replayed or a conflict, never a second execution.
package idempotency

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "idempotency")

// Status is the lifecycle state of one idempotency record.
type Status string

// Record statuses.
const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// CachedResponse is the replayable part of a completed request.
type CachedResponse struct {
	StatusCode int         `json:"statusCode"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
}

// Record tracks one idempotency key from claim to completion.
type Record struct {
	Key         string          `json:"key"`
	RequestHash string          `json:"requestHash"`
	Status      Status          `json:"status"`
	Response    *CachedResponse `json:"response,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Store persists idempotency records. Claims are atomic: of any number of
// concurrent TryBegin calls for one absent key, exactly one claims it and
// the rest observe the claimant's record.
type Store interface {
	// TryBegin claims rec.Key for execution. On a successful claim the
	// record is stored with status processing and claimed is true. When the
	// key already exists, the stored record is returned instead.
	TryBegin(ctx context.Context, rec *Record) (existing *Record, claimed bool, err error)
	// Complete marks the key completed and attaches the replayable response.
	Complete(ctx context.Context, key string, resp *CachedResponse) error
	// Fail marks the key failed. Failed keys may be deleted and re-claimed.
	Fail(ctx context.Context, key string) error
	// Delete removes the record so a retry starts fresh.
	Delete(ctx context.Context, key string) error
	// Cleanup removes records older than the configured TTL as of now and
	// reports how many were removed.
	Cleanup(ctx context.Context, now time.Time) (int, error)
}
