/*
Package guard implements the duplicate-submission guard.

PURPOSE:
  Rejects a second identical state-mutating request while the first one is
  still being processed. Identical means same fingerprint: operation name,
  primary business fields and a coarse time bucket.

KEY CONCEPTS:
  Fingerprint: sha256 over the operation, its fields and now.Truncate(bucket)
  Lease:       proof of the in-flight marker; Release clears it
  Submit:      scoped acquire / run / release, release on every exit path

  First wins, the rest are rejected with generic.DuplicateInFlightError.
  Callers are never queued.

BACKENDS:
  Memory: single-process map with TTL takeover and a janitor (default)
  Redis:  bsm/redislock, shared by every process on the same Redis

SEE ALSO:
  - api/handlers.go: Guarded endpoints
  - generic/errors.go: DuplicateInFlightError
*/
package guard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// releaseTimeout bounds Release after the request context is gone.
const releaseTimeout = 5 * time.Second

// Guard marks keys in flight.
type Guard interface {
	// Acquire marks key in flight. It returns a DuplicateInFlightError when
	// the key is already held.
	Acquire(ctx context.Context, key string) (Lease, error)
}

// Lease is held while the guarded operation runs.
type Lease interface {
	Release(ctx context.Context) error
}

// Fingerprint derives a guard key. Requests with the same operation and
// fields inside the same bucket of width bucket share a key. A bucket <= 0
// disables bucketing.
func Fingerprint(op string, bucket time.Duration, now time.Time, fields ...any) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s", op)
	for _, f := range fields {
		fmt.Fprintf(h, "|%v", f)
	}
	if bucket > 0 {
		fmt.Fprintf(h, "|%d", now.UTC().Truncate(bucket).Unix())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Submit runs fn while holding key. The lease is released when fn returns,
// fails or panics, and also when ctx is cancelled mid-operation. Release
// runs on a context detached from ctx so a disconnected client still clears
// the marker.
func Submit[T any](ctx context.Context, g Guard, key string, fn func(context.Context) (T, error)) (result T, err error) {
	lease, err := g.Acquire(ctx, key)
	if err != nil {
		return result, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		// A failed release leaves the marker to expire by TTL.
		_ = lease.Release(releaseCtx)
	}()
	return fn(ctx)
}
