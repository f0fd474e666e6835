// Package ratelimit implements the RateLimiter: a per-provider token bucket
// paired with a concurrency semaphore, admitting requests in FIFO order up
// to the caller's deadline and rejecting (rather than queueing indefinitely)
// once that deadline is reached.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeffersonwarrior/aimux-sub001/types"
)

// providerLimiter bundles a request-rate token bucket with a concurrency
// semaphore for a single provider.
type providerLimiter struct {
	tokens *rate.Limiter
	slots  chan struct{}
}

// RateLimiter is the gateway's RateLimiter: one token bucket + semaphore per
// provider, keyed by provider id.
type RateLimiter struct {
	mu        sync.Mutex
	providers map[string]*providerLimiter
	logger    *zap.Logger
}

// New creates an empty RateLimiter. Providers are registered lazily via
// Configure, so hot-reloaded descriptor changes take effect without
// recreating the whole limiter.
func New(logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		providers: make(map[string]*providerLimiter),
		logger:    logger.With(zap.String("component", "ratelimiter")),
	}
}

// Configure (re)registers providerID with the given limits. Safe to call
// repeatedly, e.g. on every descriptor hot-reload; in-flight admissions are
// unaffected since existing slots channels are only replaced when capacity
// actually changes.
func (r *RateLimiter) Configure(providerID string, limits types.ProviderLimits) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rpm := limits.RPM
	if rpm <= 0 {
		rpm = 60
	}
	maxConcurrent := limits.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}

	existing, ok := r.providers[providerID]
	if ok && cap(existing.slots) == maxConcurrent {
		// Token bucket refill/capacity can be updated in place.
		existing.tokens.SetLimit(rate.Limit(float64(rpm) / 60.0))
		existing.tokens.SetBurst(rpm)
		return
	}

	r.providers[providerID] = &providerLimiter{
		tokens: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		slots:  make(chan struct{}, maxConcurrent),
	}
}

func (r *RateLimiter) getOrCreate(providerID string) *providerLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	pl, ok := r.providers[providerID]
	if !ok {
		pl = &providerLimiter{
			tokens: rate.NewLimiter(1, 60),
			slots:  make(chan struct{}, 10),
		}
		r.providers[providerID] = pl
	}
	return pl
}

// Release is returned by a successful Admit/TryAdmit and must be called
// exactly once, regardless of the outcome of the admitted work, to free the
// concurrency slot.
type Release func()

// Admit blocks, in FIFO order among concurrent callers, until providerID has
// both a rate-bucket token and a free concurrency slot, or until ctx is
// done. A ctx deadline expiring is the "non-queueing rejection" case: the
// caller gets a retryable-elsewhere error rather than staying queued past
// its own budget.
func (r *RateLimiter) Admit(ctx context.Context, providerID string) (Release, error) {
	pl := r.getOrCreate(providerID)

	reservation := pl.tokens.Reserve()
	if !reservation.OK() {
		return nil, rejectedError(providerID, "rate limiter cannot satisfy request")
	}
	delay := reservation.Delay()
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			// token became available
		case <-ctx.Done():
			reservation.Cancel()
			return nil, rejectedError(providerID, "rate limit token wait exceeded request deadline")
		}
	}

	// Go channels queue blocked senders in FIFO order, giving the semaphore
	// acquire below the FIFO admission semantics named for this component.
	select {
	case pl.slots <- struct{}{}:
		return func() { <-pl.slots }, nil
	case <-ctx.Done():
		reservation.Cancel()
		return nil, rejectedError(providerID, "concurrency slot wait exceeded request deadline")
	}
}

// TryAdmit is the non-blocking variant: it never waits for a token or slot,
// failing immediately if either is unavailable, so checking a provider's
// current admission state consumes none of the request's remaining deadline
// budget. GatewayCore's attempt path uses the blocking Admit instead.
func (r *RateLimiter) TryAdmit(providerID string) (Release, error) {
	pl := r.getOrCreate(providerID)

	if !pl.tokens.Allow() {
		return nil, rejectedError(providerID, "rate limit exceeded")
	}

	select {
	case pl.slots <- struct{}{}:
		return func() { <-pl.slots }, nil
	default:
		return nil, rejectedError(providerID, "max concurrency reached")
	}
}

func rejectedError(providerID, message string) *types.Error {
	return types.NewError(types.ErrProviderRateLimited, message).
		WithProvider(providerID).
		WithRetryable(true)
}
