package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffersonwarrior/aimux-sub001/config"
	"github.com/jeffersonwarrior/aimux-sub001/gateway/adapter"
	"github.com/jeffersonwarrior/aimux-sub001/internal/ctxkeys"
	"github.com/jeffersonwarrior/aimux-sub001/types"
)

// fakeAdapter is a minimal adapter.Adapter used to drive GatewayCore without
// any real network calls. invocations records every descriptor id it was
// called with, for assertions about which provider the pipeline picked.
type fakeAdapter struct {
	mu          sync.Mutex
	invocations []string
	fail        map[string]error
	resp        *types.CanonicalResponse
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{fail: make(map[string]error)}
}

func (f *fakeAdapter) Invoke(ctx context.Context, descriptor types.ProviderDescriptor, req *types.CanonicalRequest) (*types.CanonicalResponse, error) {
	f.mu.Lock()
	f.invocations = append(f.invocations, descriptor.ID)
	f.mu.Unlock()

	if err, ok := f.fail[descriptor.ID]; ok {
		return nil, err
	}
	if f.resp != nil {
		resp := *f.resp
		resp.ProviderID = descriptor.ID
		return &resp, nil
	}
	return &types.CanonicalResponse{
		Success:    true,
		ProviderID: descriptor.ID,
		ModelUsed:  "test-model",
		Content:    []types.ContentSegment{{Kind: types.SegmentText, Text: "hello"}},
		Usage:      types.TokenUsage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
	}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		DefaultProvider: "p1",
		Providers: []config.ProviderConfig{
			{ID: "p1", Kind: types.KindOpenAILike, Endpoint: "http://example.invalid", Models: []string{"m1"}, Enabled: true},
		},
		Routing:        config.RoutingPolicy{Strategy: "best"},
		Classifier:     config.ClassifierPolicy{},
		Failover:       config.FailoverPolicy{Enabled: true, MaxTotalAttempts: 2, PerProviderAttempts: 1},
		CircuitBreaker: config.CircuitBreakerPolicy{Enabled: true, MaxConsecutiveFailures: 5, RecoveryDelayS: 30, SuccessesToClose: 3},
		Deadlines:      config.DeadlinePolicy{PerRequestMs: 5000},
		Prettifier:     config.PrettifierPolicy{Enabled: false},
	}
}

func newTestCore(t *testing.T, fa *fakeAdapter, cfg *config.Config) *GatewayCore {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	registry := adapter.NewRegistry()
	registry.Register(types.KindOpenAILike, fa)

	gc, err := New(cfg, registry, nil, nil)
	require.NoError(t, err)
	return gc
}

func testRequest() *types.CanonicalRequest {
	return &types.CanonicalRequest{
		Messages: []types.Message{types.NewUserMessage("hi there")},
	}
}

func TestGatewayCore_HandleRequestHappyPath(t *testing.T) {
	fa := newFakeAdapter()
	gc := newTestCore(t, fa, nil)

	result, err := gc.HandleRequest(context.Background(), testRequest())

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "p1", result.Response.ProviderID)
	assert.NotNil(t, result.Artifact)
	assert.Equal(t, []string{"hello"}, result.Artifact.Content)
}

func TestGatewayCore_HandleRequestAssignsCorrelationIDWhenAbsent(t *testing.T) {
	fa := newFakeAdapter()
	gc := newTestCore(t, fa, nil)

	result, err := gc.HandleRequest(context.Background(), testRequest())

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.CorrelationID)
}

func TestGatewayCore_HandleRequestPropagatesExistingCorrelationID(t *testing.T) {
	fa := newFakeAdapter()
	fa.fail["p1"] = types.NewError(types.ErrProviderPermanent, "boom").WithProvider("p1").WithRetryable(false)
	gc := newTestCore(t, fa, nil)

	ctx := ctxkeys.WithCorrelationID(context.Background(), "req-fixed-id")
	_, err := gc.HandleRequest(ctx, testRequest())

	require.Error(t, err)
	typed, ok := err.(*types.Error)
	require.True(t, ok)
	assert.Equal(t, "req-fixed-id", typed.CorrelationID)
}

func TestGatewayCore_HandleRequestNoEligibleProviderWhenNoneConfigured(t *testing.T) {
	fa := newFakeAdapter()
	cfg := testConfig()
	cfg.Providers = nil
	gc := newTestCore(t, fa, cfg)

	_, err := gc.HandleRequest(context.Background(), testRequest())

	require.Error(t, err)
	assert.Equal(t, types.ErrNoEligibleProvider, types.GetErrorKind(err))
	assert.Empty(t, fa.invocations)
}

func TestGatewayCore_HandleRequestFailsOverToSecondProvider(t *testing.T) {
	fa := newFakeAdapter()
	fa.fail["p1"] = types.NewError(types.ErrProviderPermanent, "p1 down").WithProvider("p1").WithRetryable(false)

	cfg := testConfig()
	cfg.Providers = append(cfg.Providers, config.ProviderConfig{
		ID: "p2", Kind: types.KindOpenAILike, Endpoint: "http://example.invalid", Models: []string{"m2"}, Enabled: true,
	})
	cfg.Failover.MaxTotalAttempts = 2
	cfg.Failover.PerProviderAttempts = 1

	gc := newTestCore(t, fa, cfg)

	result, err := gc.HandleRequest(context.Background(), testRequest())

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "p2", result.Response.ProviderID)
	assert.Contains(t, fa.invocations, "p1")
	assert.Contains(t, fa.invocations, "p2")
}

func TestGatewayCore_HandleRequestHonorsPerRequestDeadline(t *testing.T) {
	cfg := testConfig()
	cfg.Deadlines.PerRequestMs = 1

	slow := &blockingAdapter{delay: 200 * time.Millisecond}
	registry := adapter.NewRegistry()
	registry.Register(types.KindOpenAILike, slow)
	gc, err := New(cfg, registry, nil, nil)
	require.NoError(t, err)

	_, err = gc.HandleRequest(context.Background(), testRequest())
	require.Error(t, err)
}

type blockingAdapter struct {
	delay time.Duration
}

func (b *blockingAdapter) Invoke(ctx context.Context, descriptor types.ProviderDescriptor, req *types.CanonicalRequest) (*types.CanonicalResponse, error) {
	select {
	case <-time.After(b.delay):
		return &types.CanonicalResponse{Success: true, ProviderID: descriptor.ID}, nil
	case <-ctx.Done():
		return nil, types.NewError(types.ErrProviderTimeout, "deadline exceeded").WithProvider(descriptor.ID).WithRetryable(true)
	}
}

func TestGatewayCore_ReloadDescriptorsReplacesKnownProviders(t *testing.T) {
	fa := newFakeAdapter()
	gc := newTestCore(t, fa, nil)

	gc.ReloadDescriptors([]types.ProviderDescriptor{
		{ID: "p3", Kind: types.KindOpenAILike, Endpoint: "http://example.invalid", Models: []string{"m3"}, Enabled: true},
	})

	result, err := gc.HandleRequest(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "p3", result.Response.ProviderID)
	assert.NotContains(t, fa.invocations, "p1")
}

func TestGatewayCore_ReloadDescriptorsSchedulesHealthForgetForRemoved(t *testing.T) {
	fa := newFakeAdapter()
	gc := newTestCore(t, fa, nil)

	gc.health.RecordFailure("p1", types.ErrProviderTransient)
	require.Equal(t, 1, gc.health.State("p1").ConsecutiveFailures)

	gc.ReloadDescriptors(nil)

	gc.mu.RLock()
	_, stillKnown := gc.descriptors["p1"]
	gc.mu.RUnlock()
	assert.False(t, stillKnown)

	// Health state is kept until the grace-period timer fires, not dropped at once.
	assert.Equal(t, 1, gc.health.State("p1").ConsecutiveFailures)
}
