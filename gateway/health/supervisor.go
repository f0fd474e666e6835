// Package health owns the HealthSupervisor: the single in-memory state
// machine tracking every provider's selectability, EWMA latency, success
// rate, and circuit-breaker status.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeffersonwarrior/aimux-sub001/config"
	"github.com/jeffersonwarrior/aimux-sub001/internal/metrics"
	"github.com/jeffersonwarrior/aimux-sub001/types"
)

// latencyEWMAAlpha and successEWMAAlpha smooth the running latency/success-rate
// estimates. The teacher's HealthChecker (llm/router/router.go) stored only the
// most recent probe's raw values; EWMA smoothing is adapted in here so a single
// slow or failed call doesn't whipsaw the Selector's scoring input.
const (
	latencyEWMAAlpha = 0.2
	successEWMAAlpha = 0.2
)

// Prober performs a single minimal synthetic request against providerID,
// used to test whether a CIRCUIT_OPEN provider has recovered.
type Prober func(ctx context.Context, providerID string) error

// Supervisor is the HealthSupervisor: one instance owns the runtime state
// for every provider in the gateway.
type Supervisor struct {
	mu     sync.Mutex
	states map[string]*types.ProviderRuntimeState
	timers map[string]*time.Timer

	policy  config.CircuitBreakerPolicy
	prober  Prober
	metrics *metrics.Collector
	logger  *zap.Logger
}

// New creates a Supervisor bound to policy. Providers are registered lazily
// on their first RecordSuccess/RecordFailure/IncInFlight/DecInFlight call.
func New(policy config.CircuitBreakerPolicy, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		states: make(map[string]*types.ProviderRuntimeState),
		timers: make(map[string]*time.Timer),
		policy: policy,
		logger: logger.With(zap.String("component", "health_supervisor")),
	}
}

// SetProber installs the recovery-probe callback. Without one, CIRCUIT_OPEN
// providers still transition on ProbeDue polling, but the automatic
// background one-shot timer has nothing to invoke.
func (s *Supervisor) SetProber(p Prober) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prober = p
}

// SetMetrics installs the Prometheus collector used to record state
// transitions and circuit-open events. Left unset, both are no-ops — tests
// and call sites constructed before a Collector exists never need a nil check.
func (s *Supervisor) SetMetrics(m *metrics.Collector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

func (s *Supervisor) maxConsecutiveFailures() int {
	if s.policy.MaxConsecutiveFailures > 0 {
		return s.policy.MaxConsecutiveFailures
	}
	return 5
}

func (s *Supervisor) recoveryDelay() time.Duration {
	if s.policy.RecoveryDelayS > 0 {
		return time.Duration(s.policy.RecoveryDelayS) * time.Second
	}
	return 30 * time.Second
}

func (s *Supervisor) successesToClose() int {
	if s.policy.SuccessesToClose > 0 {
		return s.policy.SuccessesToClose
	}
	return 3
}

func (s *Supervisor) probeTimeout() time.Duration {
	if s.policy.ProbeTimeoutMs > 0 {
		return time.Duration(s.policy.ProbeTimeoutMs) * time.Millisecond
	}
	return 2500 * time.Millisecond
}

// getOrCreate returns the runtime state for providerID, creating a fresh
// HEALTHY entry on first reference. Caller must hold s.mu.
func (s *Supervisor) getOrCreate(providerID string) *types.ProviderRuntimeState {
	st, ok := s.states[providerID]
	if !ok {
		st = &types.ProviderRuntimeState{
			ProviderID: providerID,
			Status:     types.StatusHealthy,
		}
		s.states[providerID] = st
	}
	return st
}

// RecordSuccess updates EWMA latency and the success window, resets
// consecutive_failures, and may close the circuit back to HEALTHY after
// successes_to_close consecutive successes.
func (s *Supervisor) RecordSuccess(providerID string, latencyMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.getOrCreate(providerID)
	st.LastSuccessAt = time.Now()
	st.ConsecutiveFailures = 0
	st.ConsecutiveSuccesses++

	if st.EWMALatencyMs == 0 {
		st.EWMALatencyMs = float64(latencyMs)
	} else {
		st.EWMALatencyMs = latencyEWMAAlpha*float64(latencyMs) + (1-latencyEWMAAlpha)*st.EWMALatencyMs
	}
	st.SuccessRate = successEWMAAlpha*1.0 + (1-successEWMAAlpha)*st.SuccessRate

	switch st.Status {
	case types.StatusDegraded, types.StatusUnhealthy:
		if st.ConsecutiveSuccesses >= s.successesToClose() {
			s.transition(st, types.StatusHealthy)
		}
	case types.StatusCircuitOpen:
		// A success while circuit-open can only come from an in-flight probe;
		// the probe result path (recordProbeResult) handles that transition
		// directly, so this is a no-op guard against double-counting.
	}
}

// RecordFailure increments consecutive_failures and transitions the state
// machine: HEALTHY -> DEGRADED on the first failure, DEGRADED -> UNHEALTHY
// once consecutive failures exceed half the configured threshold, and opens
// the circuit once consecutive failures reach the threshold.
func (s *Supervisor) RecordFailure(providerID string, errKind types.ErrorKind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.getOrCreate(providerID)
	st.LastFailureAt = time.Now()
	st.ConsecutiveFailures++
	st.ConsecutiveSuccesses = 0
	st.SuccessRate = successEWMAAlpha*0.0 + (1-successEWMAAlpha)*st.SuccessRate

	max := s.maxConsecutiveFailures()
	switch {
	case st.ConsecutiveFailures >= max:
		s.openCircuit(st)
	case st.ConsecutiveFailures > max/2:
		if st.Status != types.StatusCircuitOpen {
			s.transition(st, types.StatusUnhealthy)
		}
	case st.Status == types.StatusHealthy:
		s.transition(st, types.StatusDegraded)
	}

	s.logger.Debug("provider failure recorded",
		zap.String("provider_id", providerID),
		zap.String("error_kind", string(errKind)),
		zap.Int("consecutive_failures", st.ConsecutiveFailures),
		zap.String("status", string(st.Status)),
	)
}

// openCircuit moves st into CIRCUIT_OPEN, stamps circuit_opens_at, and arms
// the recovery-probe timer. Caller must hold s.mu.
func (s *Supervisor) openCircuit(st *types.ProviderRuntimeState) {
	s.transition(st, types.StatusCircuitOpen)
	st.CircuitOpensAt = time.Now()
	st.ProbesSucceeded = 0
	s.scheduleProbeLocked(st.ProviderID)

	if s.metrics != nil {
		s.metrics.RecordCircuitOpen(st.ProviderID)
	}
}

// transition applies a state change and logs it. Caller must hold s.mu.
func (s *Supervisor) transition(st *types.ProviderRuntimeState, to types.HealthStatus) {
	if st.Status == to {
		return
	}
	from := st.Status
	st.Status = to
	s.logger.Info("provider health transition",
		zap.String("provider_id", st.ProviderID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)

	if s.metrics != nil {
		s.metrics.RecordHealthStateTransition(st.ProviderID, string(from), string(to))
	}
}

// IsSelectable reports whether providerID may currently be chosen by the
// ProviderSelector.
func (s *Supervisor) IsSelectable(providerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[providerID]
	if !ok {
		// Unregistered providers default to selectable; Selector filtering
		// also checks the descriptor's Enabled flag independently.
		return true
	}
	return st.IsSelectable()
}

// ProbeDue reports whether providerID is CIRCUIT_OPEN and its recovery delay
// has elapsed.
func (s *Supervisor) ProbeDue(providerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[providerID]
	if !ok || st.Status != types.StatusCircuitOpen {
		return false
	}
	return time.Since(st.CircuitOpensAt) >= s.recoveryDelay()
}

// IncInFlight marks the start of a request dispatched to providerID, for the
// Selector's least-inflight strategy.
func (s *Supervisor) IncInFlight(providerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getOrCreate(providerID)
	st.InFlight++
}

// DecInFlight marks the completion of a request dispatched to providerID.
func (s *Supervisor) DecInFlight(providerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getOrCreate(providerID)
	if st.InFlight > 0 {
		st.InFlight--
	}
}

// Forget releases providerID's runtime state and cancels any pending
// recovery-probe timer for it. GatewayCore's hot-reload path calls this,
// after a grace period, for descriptors that no longer appear in a reloaded
// configuration, so a removed provider doesn't linger with stale state
// forever if it's later reintroduced under the same id.
func (s *Supervisor) Forget(providerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[providerID]; ok {
		timer.Stop()
		delete(s.timers, providerID)
	}
	delete(s.states, providerID)
}

// State returns a snapshot copy of providerID's runtime state.
func (s *Supervisor) State(providerID string) types.ProviderRuntimeState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[providerID]
	if !ok {
		return types.ProviderRuntimeState{ProviderID: providerID, Status: types.StatusHealthy}
	}
	return *st
}

// BeginProbe attempts to claim the single permitted in-flight probe slot for
// a CIRCUIT_OPEN provider whose recovery delay has elapsed (the HALF_OPEN
// refinement). It returns false if the provider isn't probe-due or a probe
// is already in flight.
func (s *Supervisor) BeginProbe(providerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[providerID]
	if !ok || st.Status != types.StatusCircuitOpen {
		return false
	}
	if st.ProbeInFlight {
		return false
	}
	if time.Since(st.CircuitOpensAt) < s.recoveryDelay() {
		return false
	}
	st.ProbeInFlight = true
	return true
}

// RecordProbeResult applies the outcome of a BeginProbe-claimed probe: success
// closes the circuit directly to HEALTHY; failure reopens it and resets the
// recovery timer.
func (s *Supervisor) RecordProbeResult(providerID string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[providerID]
	if !ok {
		return
	}
	st.ProbeInFlight = false

	if success {
		st.ProbesSucceeded++
		st.ConsecutiveFailures = 0
		st.ConsecutiveSuccesses = s.successesToClose()
		s.transition(st, types.StatusHealthy)
		return
	}

	st.CircuitOpensAt = time.Now()
	s.transition(st, types.StatusCircuitOpen)
	s.scheduleProbeLocked(providerID)
}

// scheduleProbeLocked arms a one-shot timer that runs a probe once the
// recovery delay elapses. Caller must hold s.mu.
func (s *Supervisor) scheduleProbeLocked(providerID string) {
	if existing, ok := s.timers[providerID]; ok {
		existing.Stop()
	}
	delay := s.recoveryDelay()
	s.timers[providerID] = time.AfterFunc(delay, func() {
		s.runProbe(providerID)
	})
}

// runProbe executes the installed Prober against providerID, if any, and
// records the outcome. Matches the teacher's HealthChecker background-loop
// idiom (llm/router/router.go's Start/checkAll) but as a per-provider
// one-shot timer rather than a fixed-interval global ticker, since recovery
// scheduling is keyed off each provider's own circuit_opens_at.
func (s *Supervisor) runProbe(providerID string) {
	s.mu.Lock()
	prober := s.prober
	timeout := s.probeTimeout()
	s.mu.Unlock()

	if !s.BeginProbe(providerID) {
		return
	}
	if prober == nil {
		// No prober installed: leave the provider CIRCUIT_OPEN and release the
		// probe slot so ProbeDue-based polling (e.g. an explicit /test call)
		// can still claim it later.
		s.mu.Lock()
		if st, ok := s.states[providerID]; ok {
			st.ProbeInFlight = false
		}
		s.mu.Unlock()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := prober(ctx, providerID)
	s.RecordProbeResult(providerID, err == nil)
}
