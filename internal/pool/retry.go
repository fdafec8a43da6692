package pool

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/quantbridge/ibgate/internal/gateway"
)

// RetryPolicy drives a session's connect attempts: it walks the
// allocator's candidate ids with bounded exponential backoff and
// classifies every failure before it leaves this package.
type RetryPolicy struct {
	cfg    RetryConfig
	ids    *IdentityAllocator
	logger *slog.Logger
}

// NewRetryPolicy creates a policy bound to an identity allocator.
func NewRetryPolicy(cfg RetryConfig, ids *IdentityAllocator, logger *slog.Logger) *RetryPolicy {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryPolicy{cfg: cfg, ids: ids, logger: logger}
}

// ExecuteConnect attempts to connect the session, trying candidate ids
// in allocator order. Classification rules:
//
//   - identifier in use: remember the rejection, move to the next id
//     immediately. The condition is informative, not transient, so no
//     backoff is spent on it.
//   - refused / timeout / unreachable: transient; back off with jitter
//     and try again, up to MaxAttempts total connect calls.
//   - anything else: fatal; abort without trying further ids.
//
// The returned error is always a *ConnectFailedError (or nil).
func (r *RetryPolicy) ExecuteConnect(ctx context.Context, s *Session, host string, port int, timeout time.Duration) error {
	candidates := r.sequenceFor(s)

	var lastErr error
	attempts := 0
	backoffs := 0
	i := 0

	for attempts < r.cfg.MaxAttempts {
		if i >= len(candidates) {
			// Every candidate in this pass was rejected as in use.
			return newConnectFailed(ReasonIdentifiersExhausted, lastErr)
		}
		id := candidates[i]

		attempts++
		err := s.connect(ctx, id, host, port, timeout)
		if err == nil {
			return nil
		}
		lastErr = err

		kind := gateway.KindOf(err)
		r.logger.Warn("connect attempt failed",
			"client_id", id,
			"attempt", attempts,
			"kind", kind.String(),
			"error", err,
		)

		switch kind {
		case gateway.KindIdentifierInUse:
			r.ids.MarkRejected(id)
			i++ // Next id immediately, no delay.

		case gateway.KindRefused, gateway.KindTimeout, gateway.KindUnreachable:
			if attempts >= r.cfg.MaxAttempts {
				break
			}
			if err := r.sleep(ctx, backoffs); err != nil {
				return newConnectFailed(reasonForKind(kind), lastErr)
			}
			backoffs++

		default:
			// Unclassified failures are not worth burning retries on.
			return newConnectFailed(ReasonUnknown, lastErr)
		}
	}

	return newConnectFailed(reasonForKind(gateway.KindOf(lastErr)), lastErr)
}

// sequenceFor returns the candidate ids for this repair. A session that
// connected before leads with its previous id: the gateway frees an id
// when its connection drops, so the old identity is usually available
// and keeps the session's identity stable across reconnects.
func (r *RetryPolicy) sequenceFor(s *Session) []int {
	candidates := r.ids.Candidates()

	prev := s.ClientID()
	if prev == 0 {
		return candidates
	}

	out := make([]int, 0, len(candidates)+1)
	out = append(out, prev)
	for _, id := range candidates {
		if id != prev {
			out = append(out, id)
		}
	}
	return out
}

// sleep waits out the nth backoff delay, jittered to 0.5–1.5x.
func (r *RetryPolicy) sleep(ctx context.Context, n int) error {
	delay := r.cfg.InitialDelay
	for i := 0; i < n; i++ {
		delay = time.Duration(float64(delay) * r.cfg.Multiplier)
		if delay >= r.cfg.MaxDelay {
			delay = r.cfg.MaxDelay
			break
		}
	}
	if delay > r.cfg.MaxDelay {
		delay = r.cfg.MaxDelay
	}

	jittered := delay/2 + rand.N(delay)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jittered):
		return nil
	}
}
