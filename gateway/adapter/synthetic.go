package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/jeffersonwarrior/aimux-sub001/types"
)

// SyntheticAdapter is a deterministic, network-free Adapter for the
// KindSynthetic kind: it echoes the last user message back as the
// completion, and also emits a tool call (echoing the last user message as its
// arguments) whenever the request carries exactly one tool schema. It exists for local development and integration tests that need a
// provider that can never fail or rate-limit.
type SyntheticAdapter struct{}

// NewSyntheticAdapter creates a SyntheticAdapter.
func NewSyntheticAdapter() *SyntheticAdapter {
	return &SyntheticAdapter{}
}

// Invoke implements Adapter.
func (a *SyntheticAdapter) Invoke(ctx context.Context, descriptor types.ProviderDescriptor, req *types.CanonicalRequest) (*types.CanonicalResponse, error) {
	start := time.Now()

	lastUser := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == types.RoleUser {
			lastUser = req.Messages[i].Content
			break
		}
	}

	text := syntheticContentPart(fmt.Sprintf("echo: %s", lastUser))
	promptTokens := estimateTokens(req.Messages)
	completionTokens := estimateTokens([]types.Message{{Content: text}})

	resp := &types.CanonicalResponse{
		Success:    true,
		ProviderID: descriptor.ID,
		ModelUsed:  "synthetic-echo",
		Attempts:   1,
		LatencyMs:  time.Since(start).Milliseconds(),
		Content:    []types.ContentSegment{{Kind: types.SegmentText, Text: text}},
		Usage: types.TokenUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}

	if len(req.Tools) == 1 {
		resp.ToolCalls = []types.ResponseToolCall{{
			ID:        "call_0",
			Name:      req.Tools[0].Name,
			Arguments: map[string]any{"echo": lastUser},
		}}
	}

	return resp, nil
}

// estimateTokens is a coarse four-bytes-per-token estimate, adequate for the
// synthetic adapter's own usage accounting (it never talks to a real billing
// endpoint) without duplicating the classifier's tokenizer dependency here.
func estimateTokens(msgs []types.Message) int {
	count := 0
	for _, m := range msgs {
		count += len(m.Content) / 4
	}
	if count == 0 {
		count = 1
	}
	return count
}
