package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/jeffersonwarrior/aimux-sub001/internal/tlsutil"
	"github.com/jeffersonwarrior/aimux-sub001/types"
)

const anthropicVersionHeader = "2023-06-01"

// AnthropicModel names the model identifier type the official Anthropic SDK
// publishes. The adapter builds and parses its own request/response bodies
// rather than delegating invocation to the SDK's client (its HTTP transport
// targets only api.anthropic.com, while Aimux's anthropic-like descriptors
// may point at a compatible self-hosted endpoint instead) but reuses this
// type for the descriptor-configured default model so callers get the same
// compile-time-checked identifier space the SDK itself uses.
type AnthropicModel = anthropicsdk.Model

// AnthropicLikeAdapter speaks the Anthropic Messages API wire format: content
// blocks, a separated system field, and x-api-key auth.
type AnthropicLikeAdapter struct {
	client *http.Client
	logger *zap.Logger
}

// NewAnthropicLikeAdapter creates an AnthropicLikeAdapter.
func NewAnthropicLikeAdapter(logger *zap.Logger) *AnthropicLikeAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnthropicLikeAdapter{
		client: tlsutil.SecureHTTPClient(90 * time.Second),
		logger: logger.With(zap.String("component", "adapter.anthropic_like")),
	}
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float32            `json:"temperature,omitempty"`
	TopP        float32            `json:"top_p,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Role       string             `json:"role"`
	Content    []anthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      *anthropicUsage    `json:"usage,omitempty"`
}

// convertMessagesToAnthropic pulls system messages out into the separate
// system field Anthropic requires, wraps tool results as user messages
// containing a tool_result block, and renders tool calls as tool_use blocks.
func convertMessagesToAnthropic(msgs []types.Message) (string, []anthropicMessage) {
	var system string
	var out []anthropicMessage

	for _, m := range msgs {
		if m.Role == types.RoleSystem {
			system = m.Content
			continue
		}

		if m.Role == types.RoleTool {
			out = append(out, anthropicMessage{
				Role: "user",
				Content: []anthropicContent{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
			continue
		}

		am := anthropicMessage{Role: string(m.Role)}
		if m.Content != "" {
			am.Content = append(am.Content, anthropicContent{Type: "text", Text: m.Content})
		}
		for _, tc := range m.ToolCalls {
			am.Content = append(am.Content, anthropicContent{
				Type:  "tool_use",
				ID:    tc.ID,
				Name:  tc.Name,
				Input: tc.Arguments,
			})
		}
		if len(am.Content) > 0 {
			out = append(out, am)
		}
	}

	return system, out
}

func convertToolsToAnthropic(tools []types.ToolSchema) []anthropicTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropicTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
	return out
}

func (a *AnthropicLikeAdapter) buildRequest(descriptor types.ProviderDescriptor, req *types.CanonicalRequest) anthropicRequest {
	model := req.ModelHint
	if model == "" && len(descriptor.Models) > 0 {
		model = descriptor.Models[0]
	}
	system, messages := convertMessagesToAnthropic(req.Messages)

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return anthropicRequest{
		Model:       model,
		Messages:    messages,
		System:      system,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Tools:       convertToolsToAnthropic(req.Tools),
	}
}

// Invoke implements Adapter.
func (a *AnthropicLikeAdapter) Invoke(ctx context.Context, descriptor types.ProviderDescriptor, req *types.CanonicalRequest) (*types.CanonicalResponse, error) {
	start := time.Now()
	body := a.buildRequest(descriptor, req)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to marshal request").WithCause(err).WithProvider(descriptor.ID)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL(descriptor.Endpoint, "/v1/messages"), bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to build request").WithCause(err).WithProvider(descriptor.ID)
	}
	httpReq.Header.Set("x-api-key", descriptor.Credentials)
	httpReq.Header.Set("anthropic-version", anthropicVersionHeader)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrProviderTimeout, err.Error()).WithProvider(descriptor.ID).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, readErrorBody(resp.Body), descriptor.ID)
	}

	var anResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&anResp); err != nil {
		return nil, types.NewError(types.ErrProviderTransient, "failed to decode response").WithCause(err).WithProvider(descriptor.ID).WithRetryable(true)
	}

	return toAnthropicCanonicalResponse(anResp, descriptor.ID, time.Since(start)), nil
}

func toAnthropicCanonicalResponse(anResp anthropicResponse, providerID string, latency time.Duration) *types.CanonicalResponse {
	resp := &types.CanonicalResponse{
		Success:    true,
		ProviderID: providerID,
		ModelUsed:  anResp.Model,
		Attempts:   1,
		LatencyMs:  latency.Milliseconds(),
	}
	if anResp.Usage != nil {
		resp.Usage = types.TokenUsage{
			PromptTokens:     anResp.Usage.InputTokens,
			CompletionTokens: anResp.Usage.OutputTokens,
			TotalTokens:      anResp.Usage.InputTokens + anResp.Usage.OutputTokens,
		}
	}

	var structured []structuredToolCall
	for _, block := range anResp.Content {
		switch block.Type {
		case "text":
			resp.Content = append(resp.Content, types.ContentSegment{Kind: types.SegmentText, Text: block.Text})
		case "tool_use":
			structured = append(structured, structuredToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}
	resp.ToolCalls = NormalizeToolCalls(structured, "")
	return resp
}
