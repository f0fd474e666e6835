package handlers

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeffersonwarrior/aimux-sub001/config"
	"github.com/jeffersonwarrior/aimux-sub001/gateway/adapter"
	"github.com/jeffersonwarrior/aimux-sub001/gateway/core"
	"github.com/jeffersonwarrior/aimux-sub001/types"
)

// stubAdapter is a minimal adapter.Adapter used to drive GatewayCore in
// handler tests without any real network calls.
type stubAdapter struct {
	mu   sync.Mutex
	fail map[string]error
	resp *types.CanonicalResponse
}

func newStubAdapter() *stubAdapter {
	return &stubAdapter{fail: make(map[string]error)}
}

func (a *stubAdapter) Invoke(ctx context.Context, descriptor types.ProviderDescriptor, req *types.CanonicalRequest) (*types.CanonicalResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err, ok := a.fail[descriptor.ID]; ok {
		return nil, err
	}
	if a.resp != nil {
		resp := *a.resp
		resp.ProviderID = descriptor.ID
		return &resp, nil
	}
	return &types.CanonicalResponse{
		Success:    true,
		ProviderID: descriptor.ID,
		ModelUsed:  "test-model",
		Content:    []types.ContentSegment{{Kind: types.SegmentText, Text: "hello there"}},
		Usage:      types.TokenUsage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
	}, nil
}

func testGatewayConfig() *config.Config {
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

func newTestGatewayCore(t *testing.T, a *stubAdapter) *core.GatewayCore {
	t.Helper()
	registry := adapter.NewRegistry()
	registry.Register(types.KindOpenAILike, a)

	gc, err := core.New(testGatewayConfig(), registry, nil, nil)
	require.NoError(t, err)
	return gc
}
