// Package selector implements the ProviderSelector: filtering providers by
// capability and health, scoring the survivors with a weighted sum, and
// picking one according to the configured routing strategy.
package selector

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jeffersonwarrior/aimux-sub001/config"
	"github.com/jeffersonwarrior/aimux-sub001/gateway/health"
	"github.com/jeffersonwarrior/aimux-sub001/types"
)

// healthView is the subset of Supervisor the Selector depends on, so tests
// can substitute a fake without spinning up a real Supervisor.
type healthView interface {
	IsSelectable(providerID string) bool
	State(providerID string) types.ProviderRuntimeState
}

// Ranked is one entry in a full ranked candidate list: a provider descriptor
// alongside the score that placed it there.
type Ranked struct {
	Descriptor types.ProviderDescriptor
	Score      float64
}

// Selector is the ProviderSelector.
type Selector struct {
	mu          sync.RWMutex
	descriptors map[string]types.ProviderDescriptor
	health      healthView
	policy      config.RoutingPolicy
	logger      *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	rrCounter uint64
}

// New creates a Selector bound to a health.Supervisor and a routing policy.
func New(policy config.RoutingPolicy, h *health.Supervisor, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	sel := &Selector{
		descriptors: make(map[string]types.ProviderDescriptor),
		policy:      policy,
		logger:      logger.With(zap.String("component", "selector")),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	// Avoid the classic non-nil-interface-holding-a-nil-pointer trap: only
	// assign health when a real Supervisor was passed, so nil checks against
	// sel.health behave correctly when none was.
	if h != nil {
		sel.health = h
	}
	return sel
}

// LoadDescriptors replaces the full set of known providers. This is the hook
// GatewayCore's hot-reload path calls to swap descriptors atomically.
func (s *Selector) LoadDescriptors(descriptors []types.ProviderDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]types.ProviderDescriptor, len(descriptors))
	for _, d := range descriptors {
		next[d.ID] = d
	}
	s.descriptors = next
}

// Rank returns the full ranked candidate list for a classified request:
// every enabled, capability-matching, selectable provider, scored by the
// configured weights and sorted best-first with a deterministic tie-break
// on descriptor id.
func (s *Selector) Rank(ctx context.Context, classification *types.RequestClassification) []Ranked {
	s.mu.RLock()
	descriptors := make([]types.ProviderDescriptor, 0, len(s.descriptors))
	for _, d := range s.descriptors {
		descriptors = append(descriptors, d)
	}
	s.mu.RUnlock()

	required := map[types.Capability]bool{}
	if classification != nil {
		required = classification.RequiredCapabilities
	}

	var candidates []Ranked
	for _, d := range descriptors {
		if !d.Enabled {
			continue
		}
		if !d.HasCapabilities(required) {
			continue
		}
		if s.health != nil && !s.health.IsSelectable(d.ID) {
			continue
		}
		candidates = append(candidates, Ranked{Descriptor: d, Score: s.score(d)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Descriptor.ID < candidates[j].Descriptor.ID
	})

	return candidates
}

// score computes the weighted-sum score for a single provider. The latency,
// cost, health and load terms are normalized to roughly [0, 1] before their
// weights are applied so they trade off comparably regardless of a
// provider's raw latency or cost units; the priority term is the
// descriptor's PriorityScore as configured, without normalization.
func (s *Selector) score(d types.ProviderDescriptor) float64 {
	w := s.policy.Weights
	var st types.ProviderRuntimeState
	if s.health != nil {
		st = s.health.State(d.ID)
	}

	priorityTerm := d.Policy.PriorityScore

	latencyTerm := 0.5
	if st.EWMALatencyMs > 0 {
		latencyTerm = 1.0 / (1.0 + st.EWMALatencyMs/1000.0)
	}

	costTerm := 0.5
	if d.Policy.CostPerOutputToken > 0 {
		costTerm = 1.0 / (1.0 + d.Policy.CostPerOutputToken*1000.0)
	}

	healthTerm := healthMultiplier(st.Status) * successRateOrNeutral(st)

	loadTerm := 1.0 / (1.0 + float64(st.InFlight))

	return priorityTerm*w.Priority +
		latencyTerm*w.Latency +
		costTerm*w.Cost +
		healthTerm*w.Health +
		loadTerm*w.Load
}

func healthMultiplier(status types.HealthStatus) float64 {
	switch status {
	case types.StatusHealthy:
		return 1.0
	case types.StatusDegraded:
		return 0.6
	case types.StatusUnhealthy:
		return 0.3
	default:
		return 0.0
	}
}

// successRateOrNeutral treats a provider with no recorded traffic yet as
// fully successful (1.0) rather than penalizing it for lacking a track record.
func successRateOrNeutral(st types.ProviderRuntimeState) float64 {
	if st.LastSuccessAt.IsZero() && st.LastFailureAt.IsZero() {
		return 1.0
	}
	return st.SuccessRate
}

// Select applies the configured routing strategy to a ranked candidate list
// and returns the chosen provider. It returns false if ranked is empty.
func (s *Selector) Select(ranked []Ranked) (types.ProviderDescriptor, bool) {
	if len(ranked) == 0 {
		return types.ProviderDescriptor{}, false
	}

	switch s.policy.Strategy {
	case "weighted-random":
		return s.weightedRandom(ranked), true
	case "round-robin-among-top-k":
		return s.roundRobinTopK(ranked), true
	case "least-inflight":
		return s.leastInFlight(ranked), true
	case "best", "":
		return ranked[0].Descriptor, true
	default:
		s.logger.Warn("unknown routing strategy, falling back to best", zap.String("strategy", s.policy.Strategy))
		return ranked[0].Descriptor, true
	}
}

// weightedRandom picks among candidates with probability proportional to
// score, matching the teacher's WeightedRouter.weightedSelect cumulative-sum
// approach. It does not read RoutingPolicy.Temperature; no exponential
// (softmax) weighting is applied.
func (s *Selector) weightedRandom(ranked []Ranked) types.ProviderDescriptor {
	var total float64
	for _, r := range ranked {
		total += positiveOrFloor(r.Score)
	}
	if total <= 0 {
		return ranked[0].Descriptor
	}

	s.rngMu.Lock()
	target := s.rng.Float64() * total
	s.rngMu.Unlock()

	var cumulative float64
	for _, r := range ranked {
		cumulative += positiveOrFloor(r.Score)
		if cumulative >= target {
			return r.Descriptor
		}
	}
	return ranked[len(ranked)-1].Descriptor
}

// positiveOrFloor keeps weighted-random selection well-defined even when a
// score lands at or below zero.
func positiveOrFloor(score float64) float64 {
	if score <= 0 {
		return 0.001
	}
	return score
}

// roundRobinTopK cycles through the top K ranked candidates in order,
// advancing an atomic counter each call.
func (s *Selector) roundRobinTopK(ranked []Ranked) types.ProviderDescriptor {
	k := s.policy.K
	if k <= 0 || k > len(ranked) {
		k = len(ranked)
	}
	idx := atomic.AddUint64(&s.rrCounter, 1) - 1
	return ranked[int(idx)%k].Descriptor
}

// leastInFlight picks the candidate with the fewest in-flight requests among
// the top K of the ranked (already filtered/scored) list, breaking ties by
// rank order.
func (s *Selector) leastInFlight(ranked []Ranked) types.ProviderDescriptor {
	k := s.policy.K
	if k <= 0 || k > len(ranked) {
		k = len(ranked)
	}
	best := ranked[0]
	bestInFlight := s.inFlight(best.Descriptor.ID)
	for _, r := range ranked[1:k] {
		if in := s.inFlight(r.Descriptor.ID); in < bestInFlight {
			best, bestInFlight = r, in
		}
	}
	return best.Descriptor
}

func (s *Selector) inFlight(providerID string) int {
	if s.health == nil {
		return 0
	}
	return s.health.State(providerID).InFlight
}
