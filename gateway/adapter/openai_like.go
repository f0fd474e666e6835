package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeffersonwarrior/aimux-sub001/internal/tlsutil"
	"github.com/jeffersonwarrior/aimux-sub001/types"
)

// OpenAILikeAdapter speaks the OpenAI chat-completions wire format. It is
// shared across every kind whose REST surface is OpenAI-compatible
// (openai-like, cerebras, zai) the same way the teacher's openaicompat.Provider
// is embedded by DeepSeek, Qwen, GLM, Grok and friends rather than each
// writing its own HTTP plumbing.
type OpenAILikeAdapter struct {
	client *http.Client
	logger *zap.Logger
}

// NewOpenAILikeAdapter creates an OpenAILikeAdapter with a shared, TLS-hardened
// HTTP client.
func NewOpenAILikeAdapter(logger *zap.Logger) *OpenAILikeAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAILikeAdapter{
		client: tlsutil.SecureHTTPClient(60 * time.Second),
		logger: logger.With(zap.String("component", "adapter.openai_like")),
	}
}

type oaMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []oaToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type oaToolCall struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"`
	Function oaToolCallF `json:"function"`
}

type oaToolCallF struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaTool struct {
	Type     string       `json:"type"`
	Function oaToolSchema `json:"function"`
}

type oaToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type oaRequest struct {
	Model       string      `json:"model"`
	Messages    []oaMessage `json:"messages"`
	Tools       []oaTool    `json:"tools,omitempty"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Temperature float32     `json:"temperature,omitempty"`
	TopP        float32     `json:"top_p,omitempty"`
	Stream      bool        `json:"stream"`
}

type oaChoice struct {
	Index        int       `json:"index"`
	FinishReason string    `json:"finish_reason"`
	Message      oaMessage `json:"message"`
}

type oaUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type oaResponse struct {
	ID      string     `json:"id"`
	Model   string     `json:"model"`
	Choices []oaChoice `json:"choices"`
	Usage   oaUsage    `json:"usage"`
}

func convertMessagesToOpenAI(msgs []types.Message) []oaMessage {
	out := make([]oaMessage, 0, len(msgs))
	for _, m := range msgs {
		om := oaMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, oaToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: oaToolCallF{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out = append(out, om)
	}
	return out
}

func convertToolsToOpenAI(tools []types.ToolSchema) []oaTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]oaTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, oaTool{
			Type: "function",
			Function: oaToolSchema{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func (a *OpenAILikeAdapter) buildRequest(descriptor types.ProviderDescriptor, req *types.CanonicalRequest) oaRequest {
	model := req.ModelHint
	if model == "" && len(descriptor.Models) > 0 {
		model = descriptor.Models[0]
	}
	return oaRequest{
		Model:       model,
		Messages:    convertMessagesToOpenAI(req.Messages),
		Tools:       convertToolsToOpenAI(req.Tools),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      false,
	}
}

func (a *OpenAILikeAdapter) buildHeaders(httpReq *http.Request, descriptor types.ProviderDescriptor) {
	httpReq.Header.Set("Authorization", "Bearer "+descriptor.Credentials)
	httpReq.Header.Set("Content-Type", "application/json")
}

func endpointURL(base, path string) string {
	return fmt.Sprintf("%s%s", strings.TrimRight(base, "/"), path)
}

// Invoke implements Adapter.
func (a *OpenAILikeAdapter) Invoke(ctx context.Context, descriptor types.ProviderDescriptor, req *types.CanonicalRequest) (*types.CanonicalResponse, error) {
	start := time.Now()
	body := a.buildRequest(descriptor, req)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to marshal request").WithCause(err).WithProvider(descriptor.ID)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL(descriptor.Endpoint, "/chat/completions"), bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to build request").WithCause(err).WithProvider(descriptor.ID)
	}
	a.buildHeaders(httpReq, descriptor)

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

	return toCanonicalResponse(oaResp, descriptor.ID, time.Since(start)), nil
}

func toCanonicalResponse(oaResp oaResponse, providerID string, latency time.Duration) *types.CanonicalResponse {
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
	if choice.Message.Content != "" {
		resp.Content = append(resp.Content, types.ContentSegment{Kind: types.SegmentText, Text: choice.Message.Content})
	}

	structured := make([]structuredToolCall, 0, len(choice.Message.ToolCalls))
	for _, tc := range choice.Message.ToolCalls {
		structured = append(structured, structuredToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	resp.ToolCalls = NormalizeToolCalls(structured, choice.Message.Content)
	return resp
}
