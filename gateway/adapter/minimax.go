package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jeffersonwarrior/aimux-sub001/internal/tlsutil"
	"github.com/jeffersonwarrior/aimux-sub001/types"
)

// minimaxEndpointPath is MiniMax's non-standard completions path; unlike the
// rest of the OpenAI-compatible family it does not live under /v1/chat/completions.
const minimaxEndpointPath = "/v1/text/chatcompletion_v2"

// MiniMaxAdapter speaks MiniMax's wire format: an OpenAI-shaped request body,
// but tool calls travel embedded as a <tool_calls> XML block inside message
// content rather than a structured array, both inbound and outbound.
type MiniMaxAdapter struct {
	client *http.Client
	logger *zap.Logger
}

// NewMiniMaxAdapter creates a MiniMaxAdapter.
func NewMiniMaxAdapter(logger *zap.Logger) *MiniMaxAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MiniMaxAdapter{
		client: tlsutil.SecureHTTPClient(60 * time.Second),
		logger: logger.With(zap.String("component", "adapter.minimax")),
	}
}

func convertMessagesToMiniMax(msgs []types.Message) []oaMessage {
	out := make([]oaMessage, 0, len(msgs))
	for _, m := range msgs {
		om := oaMessage{
			Role:    string(m.Role),
			Content: m.Content,
			Name:    m.Name,
		}
		if len(m.ToolCalls) > 0 {
			om.Content = EncodeToolCallsXML(m.ToolCalls)
		}
		out = append(out, om)
	}
	return out
}

func (a *MiniMaxAdapter) buildRequest(descriptor types.ProviderDescriptor, req *types.CanonicalRequest) oaRequest {
	model := req.ModelHint
	if model == "" && len(descriptor.Models) > 0 {
		model = descriptor.Models[0]
	}
	return oaRequest{
		Model:       model,
		Messages:    convertMessagesToMiniMax(req.Messages),
		Tools:       convertToolsToOpenAI(req.Tools),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      false,
	}
}

// Invoke implements Adapter.
func (a *MiniMaxAdapter) Invoke(ctx context.Context, descriptor types.ProviderDescriptor, req *types.CanonicalRequest) (*types.CanonicalResponse, error) {
	start := time.Now()
	body := a.buildRequest(descriptor, req)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to marshal request").WithCause(err).WithProvider(descriptor.ID)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL(descriptor.Endpoint, minimaxEndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to build request").WithCause(err).WithProvider(descriptor.ID)
	}
	httpReq.Header.Set("Authorization", "Bearer "+descriptor.Credentials)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrProviderTimeout, err.Error()).WithProvider(descriptor.ID).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, readErrorBody(resp.Body), descriptor.ID)
	}

	var oaResp oaResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, types.NewError(types.ErrProviderTransient, "failed to decode response").WithCause(err).WithProvider(descriptor.ID).WithRetryable(true)
	}

	return a.toCanonicalResponse(oaResp, descriptor.ID, time.Since(start)), nil
}

// toCanonicalResponse decodes a MiniMax response. It tries the structured
// tool_calls path first (in case MiniMax returns one, e.g. for newer models),
// then falls back to parsing an embedded <tool_calls> XML block out of the
// message content and stripping it from the displayed text — the dual-path
// normalization named for this adapter.
func (a *MiniMaxAdapter) toCanonicalResponse(oaResp oaResponse, providerID string, latency time.Duration) *types.CanonicalResponse {
	resp := &types.CanonicalResponse{
		Success:    true,
		ProviderID: providerID,
		ModelUsed:  oaResp.Model,
		Attempts:   1,
		LatencyMs:  latency.Milliseconds(),
		Usage: types.TokenUsage{
			PromptTokens:     oaResp.Usage.PromptTokens,
			CompletionTokens: oaResp.Usage.CompletionTokens,
			TotalTokens:      oaResp.Usage.TotalTokens,
		},
	}
	if len(oaResp.Choices) == 0 {
		return resp
	}

	choice := oaResp.Choices[0]
	content := choice.Message.Content

	structured := make([]structuredToolCall, 0, len(choice.Message.ToolCalls))
	for _, tc := range choice.Message.ToolCalls {
		structured = append(structured, structuredToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}

	resp.ToolCalls = NormalizeToolCalls(structured, content)
	if len(structured) == 0 && len(resp.ToolCalls) > 0 {
		content = StripToolCallXML(content)
	}
	if content != "" {
		resp.Content = append(resp.Content, types.ContentSegment{Kind: types.SegmentText, Text: content})
	}
	return resp
}
