package idempotency

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/platform/hashutil"
)

// Request and response headers of the idempotency contract.
const (
	// HeaderKey carries the client-chosen key: a UUID or any opaque value
	// up to 256 bytes.
	HeaderKey = "Idempotency-Key"
	// HeaderReplayed marks a response served from the store instead of a
	// fresh execution.
	HeaderReplayed = "Idempotency-Replayed"
)

const (
	maxKeyBytes = 256
	// retryAfter is the hint returned with 409 while the first execution is
	// still in flight. Mutations here are short; one second is generous.
	retryAfter = "1"
)

// Middleware wraps mutation handlers with the exactly-once contract. Reads
// and requests without a key pass through untouched. A store failure fails
// open: the request executes without dedup rather than being refused.
func Middleware(store Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderKey)
			if key == "" || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyBytes {
				http.Error(w, "Idempotency-Key exceeds 256 bytes", http.StatusBadRequest)
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "could not read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			hash := requestHash(r.Method, r.URL.Path, body)

			// Two passes at most: the second claims a key this request just
			// cleared after finding it failed.
			for attempt := 0; attempt < 2; attempt++ {
				existing, claimed, err := store.TryBegin(r.Context(), &Record{
					Key:         key,
					RequestHash: hash,
					Status:      StatusProcessing,
					CreatedAt:   time.Now().UTC(),
				})
				if err != nil {
					log.WithError(err).WithField("key", key).Warn("Idempotency claim failed; executing without dedup")
					next.ServeHTTP(w, r)
					return
				}
				if claimed {
					execute(store, next, w, r, key)
					return
				}
				if existing.RequestHash != hash {
					keyConflicts.Inc()
					http.Error(w, "Idempotency-Key was already used with a different request", http.StatusUnprocessableEntity)
					return
				}
				switch existing.Status {
				case StatusProcessing:
					inflightRejections.Inc()
					w.Header().Set("Retry-After", retryAfter)
					http.Error(w, "request with this Idempotency-Key is still processing", http.StatusConflict)
					return
				case StatusCompleted:
					replay(w, existing)
					return
				case StatusFailed:
					if err := store.Delete(r.Context(), key); err != nil {
						log.WithError(err).WithField("key", key).Warn("Could not clear failed idempotency record; executing without dedup")
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			// Lost the re-claim race: a concurrent retry owns the key now.
			w.Header().Set("Retry-After", retryAfter)
			http.Error(w, "request with this Idempotency-Key is still processing", http.StatusConflict)
		})
	}
}

// execute runs the claimed request and records its outcome. Finalization
// uses a background context so a client that hangs up cannot strand the
// record in processing.
func execute(store Store, next http.Handler, w http.ResponseWriter, r *http.Request, key string) {
	rec := &responseRecorder{ResponseWriter: w, limit: params.Platform().IdempotencyMaxResponse}
	next.ServeHTTP(rec, r)
	if rec.status == 0 {
		// The handler returned without writing; the server sends 200 on its
		// behalf.
		rec.status = http.StatusOK
	}

	ctx := context.Background()
	switch {
	case rec.status >= http.StatusInternalServerError:
		if err := store.Fail(ctx, key); err != nil {
			log.WithError(err).WithField("key", key).Warn("Could not mark idempotency record failed")
		}
	case rec.overflowed:
		// Too large to replay. Drop the record entirely so a retry
		// re-executes instead of serving half-cached state.
		oversizedResponses.Inc()
		if err := store.Delete(ctx, key); err != nil {
			log.WithError(err).WithField("key", key).Warn("Could not drop oversized idempotency record")
		}
	default:
		resp := &CachedResponse{
			StatusCode: rec.status,
			Header:     w.Header().Clone(),
			Body:       rec.buf.Bytes(),
		}
		if err := store.Complete(ctx, key, resp); err != nil {
			log.WithError(err).WithField("key", key).Warn("Could not complete idempotency record")
		}
	}
}

// replay writes the cached response with the replay marker set.
func replay(w http.ResponseWriter, rec *Record) {
	replays.Inc()
	if rec.Response == nil {
		// Completed records always carry a response; a missing one means the
		// store was tampered with or predates this build. Refuse to guess.
		http.Error(w, "idempotency record has no replayable response", http.StatusConflict)
		return
	}
	for name, values := range rec.Response.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set(HeaderReplayed, "true")
	w.WriteHeader(rec.Response.StatusCode)
	if _, err := w.Write(rec.Response.Body); err != nil {
		log.WithError(err).WithField("key", rec.Key).Warn("Could not write replayed response")
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// requestHash fingerprints the request as sha256(method+path+body). Two
// requests are "the same" exactly when this digest matches.
func requestHash(method, path string, body []byte) string {
	data := make([]byte, 0, len(method)+len(path)+len(body))
	data = append(data, method...)
	data = append(data, path...)
	data = append(data, body...)
	return hashutil.HashHex(data)
}

// responseRecorder tees the response into a bounded buffer while streaming
// it to the client. Past the cap it stops buffering and marks the response
// unreplayable.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	buf         bytes.Buffer
	limit       int
	overflowed  bool
	wroteHeader bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	if !r.overflowed {
		if r.buf.Len()+len(p) > r.limit {
			r.overflowed = true
			r.buf.Reset()
		} else {
			r.buf.Write(p)
		}
	}
	return r.ResponseWriter.Write(p)
}
