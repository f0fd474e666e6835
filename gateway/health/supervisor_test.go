package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffersonwarrior/aimux-sub001/config"
	"github.com/jeffersonwarrior/aimux-sub001/types"
)

func testPolicy() config.CircuitBreakerPolicy {
	return config.CircuitBreakerPolicy{
		Enabled:                true,
		MaxConsecutiveFailures: 4,
		RecoveryDelayS:         60,
		ProbeTimeoutMs:         1000,
		SuccessesToClose:       3,
	}
}

func TestSupervisor_NewProviderDefaultsHealthy(t *testing.T) {
	s := New(testPolicy(), nil)
	assert.True(t, s.IsSelectable("p1"))
	assert.Equal(t, types.StatusHealthy, s.State("p1").Status)
}

func TestSupervisor_FirstFailureDegrades(t *testing.T) {
	s := New(testPolicy(), nil)
	s.RecordFailure("p1", types.ErrProviderTransient)

	st := s.State("p1")
	assert.Equal(t, types.StatusDegraded, st.Status)
	assert.Equal(t, 1, st.ConsecutiveFailures)
	assert.True(t, s.IsSelectable("p1"))
}

func TestSupervisor_FailuresOverHalfThresholdGoUnhealthy(t *testing.T) {
	s := New(testPolicy(), nil) // max=4, half=2
	s.RecordFailure("p1", types.ErrProviderTransient)
	s.RecordFailure("p1", types.ErrProviderTransient)
	s.RecordFailure("p1", types.ErrProviderTransient)

	st := s.State("p1")
	assert.Equal(t, types.StatusUnhealthy, st.Status)
	assert.True(t, s.IsSelectable("p1")) // UNHEALTHY is still selectable per IsSelectable()
}

func TestSupervisor_FailuresAtThresholdOpenCircuit(t *testing.T) {
	s := New(testPolicy(), nil) // max=4
	for i := 0; i < 4; i++ {
		s.RecordFailure("p1", types.ErrProviderTransient)
	}

	st := s.State("p1")
	assert.Equal(t, types.StatusCircuitOpen, st.Status)
	assert.False(t, s.IsSelectable("p1"))
	assert.False(t, st.CircuitOpensAt.IsZero())
}

func TestSupervisor_SuccessResetsConsecutiveFailures(t *testing.T) {
	s := New(testPolicy(), nil)
	s.RecordFailure("p1", types.ErrProviderTransient)
	s.RecordFailure("p1", types.ErrProviderTransient)
	s.RecordSuccess("p1", 50)

	st := s.State("p1")
	assert.Equal(t, 0, st.ConsecutiveFailures)
}

func TestSupervisor_NConsecutiveSuccessesCloseFromDegraded(t *testing.T) {
	s := New(testPolicy(), nil)
	s.RecordFailure("p1", types.ErrProviderTransient) // -> DEGRADED

	s.RecordSuccess("p1", 10)
	s.RecordSuccess("p1", 10)
	assert.Equal(t, types.StatusDegraded, s.State("p1").Status) // only 2 of 3

	s.RecordSuccess("p1", 10)
	assert.Equal(t, types.StatusHealthy, s.State("p1").Status)
}

func TestSupervisor_NConsecutiveSuccessesCloseFromUnhealthy(t *testing.T) {
	s := New(testPolicy(), nil)
	s.RecordFailure("p1", types.ErrProviderTransient)
	s.RecordFailure("p1", types.ErrProviderTransient)
	s.RecordFailure("p1", types.ErrProviderTransient)
	require.Equal(t, types.StatusUnhealthy, s.State("p1").Status)

	s.RecordSuccess("p1", 10)
	s.RecordSuccess("p1", 10)
	s.RecordSuccess("p1", 10)
	assert.Equal(t, types.StatusHealthy, s.State("p1").Status)
}

func TestSupervisor_EWMALatencyUpdates(t *testing.T) {
	s := New(testPolicy(), nil)
	s.RecordSuccess("p1", 100)
	assert.InDelta(t, 100, s.State("p1").EWMALatencyMs, 0.001)

	s.RecordSuccess("p1", 200)
	// alpha=0.2: 0.2*200 + 0.8*100 = 120
	assert.InDelta(t, 120, s.State("p1").EWMALatencyMs, 0.001)
}

func TestSupervisor_ProbeDueBeforeRecoveryDelay(t *testing.T) {
	policy := testPolicy()
	policy.RecoveryDelayS = 3600
	s := New(policy, nil)
	for i := 0; i < 4; i++ {
		s.RecordFailure("p1", types.ErrProviderTransient)
	}

	assert.False(t, s.ProbeDue("p1"))
}

func TestSupervisor_ProbeDueAfterRecoveryDelay(t *testing.T) {
	policy := testPolicy()
	policy.RecoveryDelayS = 0
	s := New(policy, nil)
	for i := 0; i < 4; i++ {
		s.RecordFailure("p1", types.ErrProviderTransient)
	}
	assert.True(t, s.ProbeDue("p1"))
}

func TestSupervisor_BeginProbeClaimsExclusiveSlot(t *testing.T) {
	policy := testPolicy()
	policy.RecoveryDelayS = 0
	s := New(policy, nil)
	for i := 0; i < 4; i++ {
		s.RecordFailure("p1", types.ErrProviderTransient)
	}

	assert.True(t, s.BeginProbe("p1"))
	assert.False(t, s.BeginProbe("p1")) // already in flight
}

func TestSupervisor_BeginProbeRefusesWhenNotCircuitOpen(t *testing.T) {
	s := New(testPolicy(), nil)
	assert.False(t, s.BeginProbe("p1"))
}

func TestSupervisor_RecordProbeResultSuccessClosesCircuit(t *testing.T) {
	policy := testPolicy()
	policy.RecoveryDelayS = 0
	s := New(policy, nil)
	for i := 0; i < 4; i++ {
		s.RecordFailure("p1", types.ErrProviderTransient)
	}
	require.True(t, s.BeginProbe("p1"))

	s.RecordProbeResult("p1", true)

	st := s.State("p1")
	assert.Equal(t, types.StatusHealthy, st.Status)
	assert.False(t, st.ProbeInFlight)
	assert.Equal(t, 1, st.ProbesSucceeded)
}

func TestSupervisor_RecordProbeResultFailureReopensCircuit(t *testing.T) {
	policy := testPolicy()
	policy.RecoveryDelayS = 0
	s := New(policy, nil)
	for i := 0; i < 4; i++ {
		s.RecordFailure("p1", types.ErrProviderTransient)
	}
	require.True(t, s.BeginProbe("p1"))

	s.RecordProbeResult("p1", false)

	st := s.State("p1")
	assert.Equal(t, types.StatusCircuitOpen, st.Status)
	assert.False(t, st.ProbeInFlight)
}

func TestSupervisor_AutomaticProbeInvokesInstalledProber(t *testing.T) {
	policy := testPolicy()
	policy.RecoveryDelayS = 0
	s := New(policy, nil)

	invoked := make(chan string, 1)
	s.SetProber(func(ctx context.Context, providerID string) error {
		invoked <- providerID
		return nil
	})

	for i := 0; i < 4; i++ {
		s.RecordFailure("p1", types.ErrProviderTransient)
	}

	select {
	case id := <-invoked:
		assert.Equal(t, "p1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("prober was not invoked within timeout")
	}

	assert.Eventually(t, func() bool {
		return s.State("p1").Status == types.StatusHealthy
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSupervisor_AutomaticProbeFailureReschedules(t *testing.T) {
	policy := testPolicy()
	policy.RecoveryDelayS = 0
	s := New(policy, nil)

	calls := make(chan string, 8)
	s.SetProber(func(ctx context.Context, providerID string) error {
		calls <- providerID
		return errors.New("still down")
	})

	for i := 0; i < 4; i++ {
		s.RecordFailure("p1", types.ErrProviderTransient)
	}

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("first probe was not invoked")
	}

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("second probe was not invoked after reschedule")
	}

	assert.Equal(t, types.StatusCircuitOpen, s.State("p1").Status)
}

func TestSupervisor_UnregisteredProviderIsSelectable(t *testing.T) {
	s := New(testPolicy(), nil)
	assert.True(t, s.IsSelectable("never-seen"))
}

func TestSupervisor_InFlightTracking(t *testing.T) {
	s := New(testPolicy(), nil)
	s.IncInFlight("p1")
	s.IncInFlight("p1")
	assert.Equal(t, 2, s.State("p1").InFlight)

	s.DecInFlight("p1")
	assert.Equal(t, 1, s.State("p1").InFlight)

	s.DecInFlight("p1")
	s.DecInFlight("p1") // floor at zero
	assert.Equal(t, 0, s.State("p1").InFlight)
}

func TestSupervisor_ForgetResetsProviderToDefault(t *testing.T) {
	s := New(testPolicy(), nil)
	s.RecordFailure("p1", types.ErrProviderTimeout)
	s.RecordFailure("p1", types.ErrProviderTimeout)
	require.Equal(t, 2, s.State("p1").ConsecutiveFailures)

	s.Forget("p1")

	assert.Equal(t, types.ProviderRuntimeState{ProviderID: "p1", Status: types.StatusHealthy}, s.State("p1"))
}

func TestSupervisor_ForgetCancelsPendingProbeTimer(t *testing.T) {
	policy := testPolicy()
	policy.MaxConsecutiveFailures = 1
	policy.RecoveryDelayS = 3600
	s := New(policy, nil)

	s.RecordFailure("p1", types.ErrProviderTimeout)
	require.Equal(t, types.StatusCircuitOpen, s.State("p1").Status)

	s.Forget("p1")

	s.mu.Lock()
	_, armed := s.timers["p1"]
	s.mu.Unlock()
	assert.False(t, armed)
	assert.Equal(t, types.StatusHealthy, s.State("p1").Status)
}
