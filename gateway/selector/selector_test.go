package selector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffersonwarrior/aimux-sub001/config"
	"github.com/jeffersonwarrior/aimux-sub001/types"
)

// fakeHealth lets tests control selectability/state without a real Supervisor.
type fakeHealth struct {
	selectable map[string]bool
	states     map[string]types.ProviderRuntimeState
}

func newFakeHealth() *fakeHealth {
	return &fakeHealth{selectable: map[string]bool{}, states: map[string]types.ProviderRuntimeState{}}
}

func (f *fakeHealth) IsSelectable(id string) bool {
	if v, ok := f.selectable[id]; ok {
		return v
	}
	return true
}

func (f *fakeHealth) State(id string) types.ProviderRuntimeState {
	if st, ok := f.states[id]; ok {
		return st
	}
	return types.ProviderRuntimeState{ProviderID: id, Status: types.StatusHealthy}
}

func testWeights() config.RoutingWeights {
	return config.RoutingWeights{Priority: 1, Latency: 1, Cost: 1, Health: 1, Load: 1}
}

func desc(id string, priority float64, caps map[types.Capability]bool) types.ProviderDescriptor {
	return types.ProviderDescriptor{
		ID:           id,
		Enabled:      true,
		Capabilities: caps,
		Policy:       types.ProviderPolicy{PriorityScore: priority},
	}
}

func TestSelector_RankFiltersDisabled(t *testing.T) {
	fh := newFakeHealth()
	s := New(config.RoutingPolicy{Strategy: "best", Weights: testWeights()}, nil, nil)
	s.health = fh
	d1 := desc("p1", 1, nil)
	d2 := desc("p2", 2, nil)
	d2.Enabled = false
	s.LoadDescriptors([]types.ProviderDescriptor{d1, d2})

	ranked := s.Rank(context.Background(), nil)
	require.Len(t, ranked, 1)
	assert.Equal(t, "p1", ranked[0].Descriptor.ID)
}

func TestSelector_RankFiltersMissingCapability(t *testing.T) {
	fh := newFakeHealth()
	s := New(config.RoutingPolicy{Strategy: "best", Weights: testWeights()}, nil, nil)
	s.health = fh
	vision := desc("vision-only", 1, map[types.Capability]bool{types.CapabilityVision: true})
	plain := desc("plain", 1, nil)
	s.LoadDescriptors([]types.ProviderDescriptor{vision, plain})

	ranked := s.Rank(context.Background(), &types.RequestClassification{
		RequiredCapabilities: map[types.Capability]bool{types.CapabilityVision: true},
	})

	require.Len(t, ranked, 1)
	assert.Equal(t, "vision-only", ranked[0].Descriptor.ID)
}

func TestSelector_RankFiltersUnselectableHealth(t *testing.T) {
	fh := newFakeHealth()
	fh.selectable["down"] = false
	s := New(config.RoutingPolicy{Strategy: "best", Weights: testWeights()}, nil, nil)
	s.health = fh
	s.LoadDescriptors([]types.ProviderDescriptor{desc("down", 5, nil), desc("up", 1, nil)})

	ranked := s.Rank(context.Background(), nil)
	require.Len(t, ranked, 1)
	assert.Equal(t, "up", ranked[0].Descriptor.ID)
}

func TestSelector_RankOrdersByScoreDescending(t *testing.T) {
	fh := newFakeHealth()
	s := New(config.RoutingPolicy{Strategy: "best", Weights: testWeights()}, nil, nil)
	s.health = fh
	s.LoadDescriptors([]types.ProviderDescriptor{desc("low", 1, nil), desc("high", 10, nil)})

	ranked := s.Rank(context.Background(), nil)
	require.Len(t, ranked, 2)
	assert.Equal(t, "high", ranked[0].Descriptor.ID)
	assert.Equal(t, "low", ranked[1].Descriptor.ID)
}

func TestSelector_RankTieBreaksByDescriptorID(t *testing.T) {
	fh := newFakeHealth()
	s := New(config.RoutingPolicy{Strategy: "best", Weights: testWeights()}, nil, nil)
	s.health = fh
	s.LoadDescriptors([]types.ProviderDescriptor{desc("zeta", 3, nil), desc("alpha", 3, nil)})

	ranked := s.Rank(context.Background(), nil)
	require.Len(t, ranked, 2)
	assert.Equal(t, "alpha", ranked[0].Descriptor.ID)
	assert.Equal(t, "zeta", ranked[1].Descriptor.ID)
}

func TestSelector_SelectBestReturnsTopRanked(t *testing.T) {
	s := New(config.RoutingPolicy{Strategy: "best"}, nil, nil)
	ranked := []Ranked{{Descriptor: desc("a", 1, nil), Score: 10}, {Descriptor: desc("b", 1, nil), Score: 5}}

	chosen, ok := s.Select(ranked)
	require.True(t, ok)
	assert.Equal(t, "a", chosen.ID)
}

func TestSelector_SelectEmptyReturnsFalse(t *testing.T) {
	s := New(config.RoutingPolicy{Strategy: "best"}, nil, nil)
	_, ok := s.Select(nil)
	assert.False(t, ok)
}

func TestSelector_SelectRoundRobinAmongTopK(t *testing.T) {
	s := New(config.RoutingPolicy{Strategy: "round-robin-among-top-k", K: 2}, nil, nil)
	ranked := []Ranked{
		{Descriptor: desc("a", 1, nil), Score: 30},
		{Descriptor: desc("b", 1, nil), Score: 20},
		{Descriptor: desc("c", 1, nil), Score: 10},
	}

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		chosen, ok := s.Select(ranked)
		require.True(t, ok)
		seen[chosen.ID] = true
	}
	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
	assert.False(t, seen["c"], "round-robin should stay within top K")
}

func TestSelector_SelectLeastInFlight(t *testing.T) {
	fh := newFakeHealth()
	fh.states["busy"] = types.ProviderRuntimeState{ProviderID: "busy", InFlight: 9}
	fh.states["idle"] = types.ProviderRuntimeState{ProviderID: "idle", InFlight: 0}
	s := New(config.RoutingPolicy{Strategy: "least-inflight"}, nil, nil)
	s.health = fh

	ranked := []Ranked{{Descriptor: desc("busy", 1, nil)}, {Descriptor: desc("idle", 1, nil)}}
	chosen, ok := s.Select(ranked)
	require.True(t, ok)
	assert.Equal(t, "idle", chosen.ID)
}

func TestSelector_SelectWeightedRandomStaysWithinCandidates(t *testing.T) {
	s := New(config.RoutingPolicy{Strategy: "weighted-random"}, nil, nil)
	ranked := []Ranked{{Descriptor: desc("a", 1, nil), Score: 5}, {Descriptor: desc("b", 1, nil), Score: 5}}

	for i := 0; i < 20; i++ {
		chosen, ok := s.Select(ranked)
		require.True(t, ok)
		assert.Contains(t, []string{"a", "b"}, chosen.ID)
	}
}

func TestSelector_ScoreHealthyBeatsDegraded(t *testing.T) {
	fh := newFakeHealth()
	fh.states["healthy"] = types.ProviderRuntimeState{ProviderID: "healthy", Status: types.StatusHealthy, SuccessRate: 1}
	fh.states["degraded"] = types.ProviderRuntimeState{ProviderID: "degraded", Status: types.StatusDegraded, SuccessRate: 1}
	s := New(config.RoutingPolicy{Strategy: "best", Weights: testWeights()}, nil, nil)
	s.health = fh
	s.LoadDescriptors([]types.ProviderDescriptor{desc("healthy", 1, nil), desc("degraded", 1, nil)})

	ranked := s.Rank(context.Background(), nil)
	require.Len(t, ranked, 2)
	assert.Equal(t, "healthy", ranked[0].Descriptor.ID)
}
