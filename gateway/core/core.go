// Package core implements the GatewayCore: the component that resolves a
// canonical request from the wire, assigns and propagates a correlation id,
// enforces the per-request deadline, drives the classify → rank → attempt
// pipeline, runs the result through the Prettifier, and emits metrics at
// every stage boundary.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeffersonwarrior/aimux-sub001/config"
	"github.com/jeffersonwarrior/aimux-sub001/gateway/adapter"
	"github.com/jeffersonwarrior/aimux-sub001/gateway/classifier"
	"github.com/jeffersonwarrior/aimux-sub001/gateway/failover"
	"github.com/jeffersonwarrior/aimux-sub001/gateway/health"
	"github.com/jeffersonwarrior/aimux-sub001/gateway/prettifier"
	"github.com/jeffersonwarrior/aimux-sub001/gateway/ratelimit"
	"github.com/jeffersonwarrior/aimux-sub001/gateway/selector"
	"github.com/jeffersonwarrior/aimux-sub001/internal/ctxkeys"
	"github.com/jeffersonwarrior/aimux-sub001/internal/metrics"
	"github.com/jeffersonwarrior/aimux-sub001/types"
)

const defaultPerRequestDeadline = 30 * time.Second

// removedDescriptorGrace is how long a descriptor's runtime health state
// survives after it disappears from a reloaded configuration, before
// GatewayCore's hot-reload path tells the HealthSupervisor to forget it.
const removedDescriptorGrace = 60 * time.Second

// Result is what HandleRequest returns on success: the prettified artifact
// alongside the raw canonical response it was built from, since a caller
// rendering the wire response needs fields (provider, attempts, model) off
// both, plus the correlation id and classified request type for the wire
// response's aimux metadata block.
type Result struct {
	Response      *types.CanonicalResponse
	Artifact      *prettifier.PrettifiedArtifact
	CorrelationID string
	RequestType   types.RequestType
}

// GatewayCore composes every gateway/* component into the end-to-end request
// pipeline described by the wire handler: classify, rank, attempt with
// failover, prettify, and (throughout) record metrics and health outcomes.
type GatewayCore struct {
	logger *zap.Logger

	classifier *classifier.RequestClassifier
	selector   *selector.Selector
	health     *health.Supervisor
	limiter    *ratelimit.RateLimiter
	failover   *failover.Engine
	adapters   *adapter.Registry
	prettifier *prettifier.Prettifier
	metrics    *metrics.Collector

	deadline config.DeadlinePolicy

	providerHints providerHints

	mu          sync.RWMutex
	descriptors map[string]types.ProviderDescriptor
}

// providerHints mirrors the top-level per-request-type provider preferences
// from Config: a descriptor matching the classified request's preferred
// provider is promoted to the front of the ranked candidate list, ahead of
// whatever the Selector's weighted score would otherwise pick first.
type providerHints struct {
	Default  string
	Thinking string
	Vision   string
	Tools    string
}

// New wires a GatewayCore from a fully loaded Config. The caller owns
// adapters (so it can register provider-kind adapters before or after
// construction) and metricsCollector (so one Collector can be shared across
// GatewayCore and any other component that wants the same Prometheus
// registry).
func New(cfg *config.Config, adapters *adapter.Registry, metricsCollector *metrics.Collector, logger *zap.Logger) (*GatewayCore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		return nil, fmt.Errorf("core: nil config")
	}

	if metricsCollector == nil {
		metricsCollector = metrics.NewCollector("aimux", logger)
	}

	healthSupervisor := health.New(cfg.CircuitBreaker, logger)
	healthSupervisor.SetMetrics(metricsCollector)
	sel := selector.New(cfg.Routing, healthSupervisor, logger)
	limiter := ratelimit.New(logger)
	failoverEngine := failover.New(cfg.Failover, healthSupervisor, logger)
	reqClassifier := classifier.New(cfg.Classifier, logger)

	pretty, err := prettifier.New(cfg.Prettifier, logger)
	if err != nil {
		return nil, fmt.Errorf("core: building prettifier: %w", err)
	}

	gc := &GatewayCore{
		logger:     logger.With(zap.String("component", "gateway_core")),
		classifier: reqClassifier,
		selector:   sel,
		health:     healthSupervisor,
		limiter:    limiter,
		failover:   failoverEngine,
		adapters:   adapters,
		prettifier: pretty,
		metrics:    metricsCollector,
		deadline:   cfg.Deadlines,
		providerHints: providerHints{
			Default:  cfg.DefaultProvider,
			Thinking: cfg.ThinkingProvider,
			Vision:   cfg.VisionProvider,
			Tools:    cfg.ToolsProvider,
		},
		descriptors: make(map[string]types.ProviderDescriptor),
	}

	descriptors := make([]types.ProviderDescriptor, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		descriptors = append(descriptors, p.Descriptor())
	}
	gc.ReloadDescriptors(descriptors)

	return gc, nil
}

// Descriptors returns a snapshot of every provider descriptor GatewayCore
// currently knows about, keyed by provider id. Used by control-plane and
// model-listing handlers; callers must not mutate the returned map.
func (g *GatewayCore) Descriptors() map[string]types.ProviderDescriptor {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snapshot := make(map[string]types.ProviderDescriptor, len(g.descriptors))
	for id, d := range g.descriptors {
		snapshot[id] = d
	}
	return snapshot
}

// HealthSupervisor exposes the underlying HealthSupervisor for components
// that need read access to per-provider runtime state (e.g. a /ready health
// check or the /providers control-plane endpoint) without duplicating it.
func (g *GatewayCore) HealthSupervisor() *health.Supervisor {
	return g.health
}

// Metrics exposes the shared Collector so handlers emitting their own
// metrics (e.g. SSE chunk/flush counts) use the same Prometheus registry as
// GatewayCore rather than standing up a second one.
func (g *GatewayCore) Metrics() *metrics.Collector {
	return g.metrics
}

// InvokeDirect dispatches req straight to providerID's adapter, bypassing
// classification, ranking, and failover. Used by the /test diagnostic
// endpoint to check one provider's reachability without influencing its
// HealthSupervisor state the way a normal attempt would — it still updates
// in-flight tracking so a concurrent /providers view stays accurate, but does
// not record success/failure against the circuit breaker.
func (g *GatewayCore) InvokeDirect(ctx context.Context, providerID string, req *types.CanonicalRequest) (*types.CanonicalResponse, error) {
	g.mu.RLock()
	descriptor, ok := g.descriptors[providerID]
	g.mu.RUnlock()
	if !ok {
		return nil, types.NewError(types.ErrConfigurationInvalid, "provider "+providerID+" is not configured").
			WithProvider(providerID).
			WithRetryable(false)
	}

	g.health.IncInFlight(providerID)
	defer g.health.DecInFlight(providerID)

	return g.adapters.Invoke(ctx, descriptor, req)
}

func (g *GatewayCore) perRequestDeadline() time.Duration {
	if g.deadline.PerRequestMs > 0 {
		return time.Duration(g.deadline.PerRequestMs) * time.Millisecond
	}
	return defaultPerRequestDeadline
}

// ReloadDescriptors atomically swaps the known provider set: it replaces the
// Selector's descriptor map, (re)configures the RateLimiter for every
// provider now present, and schedules a grace-period timer to drain
// HealthSupervisor state for any descriptor that disappeared in this reload.
func (g *GatewayCore) ReloadDescriptors(descriptors []types.ProviderDescriptor) {
	next := make(map[string]types.ProviderDescriptor, len(descriptors))
	for _, d := range descriptors {
		next[d.ID] = d
		g.limiter.Configure(d.ID, d.Limits)
	}

	g.mu.Lock()
	previous := g.descriptors
	g.descriptors = next
	g.mu.Unlock()

	g.selector.LoadDescriptors(descriptors)

	for id := range previous {
		if _, stillPresent := next[id]; stillPresent {
			continue
		}
		removedID := id
		time.AfterFunc(removedDescriptorGrace, func() {
			g.health.Forget(removedID)
			g.logger.Info("drained runtime state for removed provider", zap.String("provider_id", removedID))
		})
	}
}

// HandleRequest runs the full pipeline for a single non-streaming request:
// classification, ranking, the failover attempt loop, and prettification. It
// assigns a correlation id if ctx doesn't already carry one, and enforces
// the configured per-request deadline across every attempt combined.
func (g *GatewayCore) HandleRequest(ctx context.Context, req *types.CanonicalRequest) (*Result, error) {
	start := time.Now()

	correlationID := ctxkeys.CorrelationID(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
		ctx = ctxkeys.WithCorrelationID(ctx, correlationID)
	}

	ctx, cancel := context.WithTimeout(ctx, g.perRequestDeadline())
	defer cancel()

	classification := g.classifier.Classify(ctx, req)

	ranked := g.selector.Rank(ctx, classification)
	g.promotePreferred(ranked, classification)

	if len(ranked) == 0 {
		err := types.NewError(types.ErrNoEligibleProvider, "no provider satisfies the classified request's capabilities").
			WithCorrelationID(correlationID).
			WithRetryable(false)
		g.recordFailoverOutcome("", "no_eligible_provider")
		return nil, err
	}

	candidates := make([]types.ProviderDescriptor, len(ranked))
	for i, r := range ranked {
		candidates[i] = r.Descriptor
	}

	g.recordRoutingDecision(candidates[0].ID)

	resp, err := g.failover.Run(ctx, candidates, g.attempt(req, correlationID))
	if err != nil {
		if typed, ok := err.(*types.Error); ok {
			typed.WithCorrelationID(correlationID)
		}
		g.recordHTTPOutcome(start, req, 0)
		return nil, err
	}

	artifact, err := g.prettifier.Process(ctx, resp)
	if err != nil {
		if typed, ok := err.(*types.Error); ok {
			typed.WithCorrelationID(correlationID)
		}
		return nil, err
	}

	g.recordHTTPOutcome(start, req, len(resp.Content))
	return &Result{
		Response:      resp,
		Artifact:      artifact,
		CorrelationID: correlationID,
		RequestType:   classification.RequestType,
	}, nil
}

// attempt builds the failover.Attempt closure for one request: it admits
// against the per-provider rate limiter, tracks in-flight count, and
// dispatches through the adapter registry. Health recording is left to
// failover.Engine.Run itself, which already holds a healthRecorder.
func (g *GatewayCore) attempt(req *types.CanonicalRequest, correlationID string) failover.Attempt {
	return func(ctx context.Context, providerID string, attemptNumber int) (*types.CanonicalResponse, error) {
		ctx = ctxkeys.WithAttempt(ctx, attemptNumber)

		g.mu.RLock()
		descriptor, ok := g.descriptors[providerID]
		g.mu.RUnlock()
		if !ok {
			return nil, types.NewError(types.ErrConfigurationInvalid, "provider "+providerID+" is not configured").
				WithProvider(providerID).
				WithCorrelationID(correlationID).
				WithRetryable(false)
		}

		release, err := g.limiter.Admit(ctx, providerID)
		if err != nil {
			g.metrics.RecordRateLimitRejected(providerID)
			return nil, err
		}
		g.metrics.RecordRateLimitAllowed(providerID)
		defer release()

		g.health.IncInFlight(providerID)
		defer g.health.DecInFlight(providerID)

		attemptStart := time.Now()
		resp, err := g.adapters.Invoke(ctx, descriptor, req)
		latency := time.Since(attemptStart)

		status := "success"
		var inputTokens, outputTokens int
		if err != nil {
			status = "error"
		} else if resp != nil {
			inputTokens = resp.Usage.PromptTokens
			outputTokens = resp.Usage.CompletionTokens
		}
		model := ""
		if len(descriptor.Models) > 0 {
			model = descriptor.Models[0]
		}
		g.metrics.RecordProviderRequest(providerID, model, status, latency, inputTokens, outputTokens)

		outcome := "success"
		if err != nil {
			outcome = string(failover.Classify(err))
		}
		g.recordFailoverOutcome(providerID, outcome)

		return resp, err
	}
}

// promotePreferred moves the descriptor named by the classification's
// matching provider hint to the front of ranked, if it's present and
// selectable. Hybrid/standard classifications have no single matching hint
// and fall through untouched.
func (g *GatewayCore) promotePreferred(ranked []selector.Ranked, classification *types.RequestClassification) {
	if classification == nil || len(ranked) == 0 {
		return
	}

	var preferred string
	switch classification.RequestType {
	case types.RequestTypeThinking:
		preferred = g.providerHints.Thinking
	case types.RequestTypeVision:
		preferred = g.providerHints.Vision
	case types.RequestTypeTools:
		preferred = g.providerHints.Tools
	default:
		preferred = g.providerHints.Default
	}
	if preferred == "" {
		return
	}

	for i, r := range ranked {
		if r.Descriptor.ID == preferred {
			if i != 0 {
				ranked[0], ranked[i] = ranked[i], ranked[0]
			}
			return
		}
	}
}

func (g *GatewayCore) recordRoutingDecision(providerID string) {
	if g.metrics == nil {
		return
	}
	g.metrics.RecordRoutingDecision("ranked", providerID)
}

func (g *GatewayCore) recordFailoverOutcome(providerID, outcome string) {
	if g.metrics == nil {
		return
	}
	g.metrics.RecordFailoverAttempt(providerID, outcome)
}

func (g *GatewayCore) recordHTTPOutcome(start time.Time, req *types.CanonicalRequest, segments int) {
	if g.metrics == nil {
		return
	}
	path := "/anthropic/v1/messages"
	status := 200
	if segments == 0 {
		status = 502
	}
	g.metrics.RecordHTTPRequest("POST", path, status, time.Since(start), 0, 0)
}
