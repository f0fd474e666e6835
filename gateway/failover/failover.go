// Package failover implements the FailoverEngine: the attempt loop that
// walks a ranked provider list, classifies each failure, and decides
// whether to retry the same provider, move to the next, or give up.
package failover

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeffersonwarrior/aimux-sub001/config"
	"github.com/jeffersonwarrior/aimux-sub001/types"
)

// Class is where a failed attempt's error lands in the classification table.
type Class string

const (
	// ClassClientFault means the request itself is bad; retrying anywhere
	// would fail the same way, so the engine gives up immediately.
	ClassClientFault Class = "client_fault"
	// ClassRetryableTransient means the same provider is worth retrying
	// after a backoff (a blip, not a durable failure).
	ClassRetryableTransient Class = "retryable_transient"
	// ClassRetryableElsewhere means this provider shouldn't be retried right
	// now, but a different provider might succeed immediately.
	ClassRetryableElsewhere Class = "retryable_elsewhere"
	// ClassPermanentProvider means this provider is broken in a way no
	// retry will fix; move on and let HealthSupervisor track the failure.
	ClassPermanentProvider Class = "permanent_provider"
)

// Classify maps an error's types.ErrorKind to its failover class. Errors
// that aren't a *types.Error (e.g. a bare context.DeadlineExceeded) are
// treated as retryable_transient, the most forgiving default.
func Classify(err error) Class {
	kind := types.GetErrorKind(err)
	switch kind {
	case types.ErrMalformedRequest, types.ErrSecurityViolation, types.ErrConfigurationInvalid:
		return ClassClientFault
	case types.ErrProviderTimeout, types.ErrProviderTransient, types.ErrInternalError:
		return ClassRetryableTransient
	case types.ErrProviderRateLimited:
		return ClassRetryableElsewhere
	case types.ErrProviderAuth, types.ErrProviderPermanent:
		return ClassPermanentProvider
	case types.ErrDeadlineExceeded:
		return ClassClientFault
	default:
		return ClassRetryableTransient
	}
}

// Attempt is invoked once per attempt against a single provider. providerID
// identifies which candidate is being tried; attemptNumber is 1-indexed
// across the whole engine run (not per-provider), useful for logging/metrics.
type Attempt func(ctx context.Context, providerID string, attemptNumber int) (*types.CanonicalResponse, error)

// healthRecorder is the subset of health.Supervisor the engine depends on.
type healthRecorder interface {
	RecordSuccess(providerID string, latencyMs int64)
	RecordFailure(providerID string, errKind types.ErrorKind)
}

// Engine is the FailoverEngine.
type Engine struct {
	policy config.FailoverPolicy
	health healthRecorder
	logger *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates an Engine bound to policy and a health.Supervisor (or any type
// satisfying healthRecorder, for testing).
func New(policy config.FailoverPolicy, health healthRecorder, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		policy: policy,
		health: health,
		logger: logger.With(zap.String("component", "failover")),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (e *Engine) maxTotalAttempts() int {
	if e.policy.MaxTotalAttempts > 0 {
		return e.policy.MaxTotalAttempts
	}
	return 4
}

func (e *Engine) perProviderAttempts() int {
	if e.policy.PerProviderAttempts > 0 {
		return e.policy.PerProviderAttempts
	}
	return 2
}

func (e *Engine) initialBackoff() time.Duration {
	if e.policy.InitialBackoffMs > 0 {
		return time.Duration(e.policy.InitialBackoffMs) * time.Millisecond
	}
	return 200 * time.Millisecond
}

func (e *Engine) maxBackoff() time.Duration {
	if e.policy.MaxBackoffMs > 0 {
		return time.Duration(e.policy.MaxBackoffMs) * time.Millisecond
	}
	return 5 * time.Second
}

func (e *Engine) jitterRatio() float64 {
	if e.policy.JitterRatio > 0 {
		return e.policy.JitterRatio
	}
	return 0.2
}

// backoff computes min(initial*2^(k-1), cap) plus up to jitterRatio of
// additional random delay, for the k-th attempt (1-indexed) against the same
// provider.
func (e *Engine) backoff(k int) time.Duration {
	base := float64(e.initialBackoff()) * math.Pow(2, float64(k-1))
	capped := math.Min(base, float64(e.maxBackoff()))

	e.rngMu.Lock()
	jitter := e.rng.Float64() * e.jitterRatio() * capped
	e.rngMu.Unlock()

	return time.Duration(capped + jitter)
}

// Run walks providers in ranked order, invoking attempt for each until one
// succeeds, the attempt budget is exhausted, or a client-fault error ends
// the run immediately. The attempt budget is min(len(providers),
// max_total_attempts); each provider gets at most per_provider_attempts
// tries before the engine moves on.
func (e *Engine) Run(ctx context.Context, providers []types.ProviderDescriptor, attempt Attempt) (*types.CanonicalResponse, error) {
	budget := e.maxTotalAttempts()
	if len(providers) < budget {
		budget = len(providers)
	}
	if budget == 0 {
		return nil, types.NewError(types.ErrNoEligibleProvider, "no providers available for failover").
			WithRetryable(false)
	}

	attemptsUsed := 0
	var lastErr error

	for _, provider := range providers {
		if attemptsUsed >= budget {
			break
		}

		for providerAttempt := 1; providerAttempt <= e.perProviderAttempts() && attemptsUsed < budget; providerAttempt++ {
			attemptsUsed++
			start := time.Now()
			resp, err := attempt(ctx, provider.ID, attemptsUsed)
			latencyMs := time.Since(start).Milliseconds()

			if err == nil {
				if e.health != nil {
					e.health.RecordSuccess(provider.ID, latencyMs)
				}
				return resp, nil
			}

			lastErr = err
			if e.health != nil {
				e.health.RecordFailure(provider.ID, types.GetErrorKind(err))
			}

			class := Classify(err)
			e.logger.Warn("provider attempt failed",
				zap.String("provider_id", provider.ID),
				zap.Int("attempt", attemptsUsed),
				zap.String("class", string(class)),
				zap.Error(err),
			)

			switch class {
			case ClassClientFault:
				return nil, err
			case ClassRetryableElsewhere, ClassPermanentProvider:
				// Stop retrying this provider; fall through to the next one.
				providerAttempt = e.perProviderAttempts()
			case ClassRetryableTransient:
				if providerAttempt < e.perProviderAttempts() && attemptsUsed < budget {
					wait := e.backoff(providerAttempt)
					timer := time.NewTimer(wait)
					select {
					case <-timer.C:
					case <-ctx.Done():
						timer.Stop()
						return nil, ctx.Err()
					}
				}
			}
		}
	}

	if lastErr == nil {
		lastErr = types.NewError(types.ErrNoEligibleProvider, "no providers could be attempted").
			WithRetryable(false)
	}
	return nil, lastErr
}
