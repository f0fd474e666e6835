package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeffersonwarrior/aimux-sub001/gateway/core"
	"github.com/jeffersonwarrior/aimux-sub001/types"
)

// MessagesHandler implements the gateway's primary wire protocol: an
// Anthropic-compatible /messages endpoint backed by GatewayCore's
// classify → rank → failover → prettify pipeline, plus the paired
// /models listing endpoint.
type MessagesHandler struct {
	core   *core.GatewayCore
	logger *zap.Logger
}

// NewMessagesHandler builds a MessagesHandler bound to gc.
func NewMessagesHandler(gc *core.GatewayCore, logger *zap.Logger) *MessagesHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessagesHandler{core: gc, logger: logger}
}

// messagesRequest is the accepted shape of an Anthropic-style request body.
// Content is left as raw JSON since Anthropic messages accept either a plain
// string or a list of content blocks.
type messagesRequest struct {
	Model       string        `json:"model,omitempty"`
	System      string        `json:"system,omitempty"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

type wireContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// flattenContent reduces a message's content field — a bare string or a list
// of {"type":"text",...} blocks — down to the plain-text shape CanonicalRequest
// carries. Non-text blocks (images, tool_use, tool_result) are dropped here;
// richer multimodal passthrough is left for a future content-block-aware
// CanonicalRequest revision.
func flattenContent(raw json.RawMessage) string {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}

	var blocks []wireContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	text := ""
	for _, b := range blocks {
		if b.Type == "text" || b.Type == "" {
			text += b.Text
		}
	}
	return text
}

func toCanonicalRequest(req messagesRequest) *types.CanonicalRequest {
	messages := make([]types.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, types.NewSystemMessage(req.System))
	}
	for _, m := range req.Messages {
		messages = append(messages, types.NewMessage(types.Role(m.Role), flattenContent(m.Content)))
	}

	tools := make([]types.ToolSchema, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, types.ToolSchema{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}

	return &types.CanonicalRequest{
		ModelHint:   req.Model,
		Messages:    messages,
		Tools:       tools,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
	}
}

// responseContentBlock is one entry in the response's "content" array.
type responseContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// toolUseBlock is one entry in the response's "tool_use" array.
type toolUseBlock struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type aimuxMeta struct {
	Provider      string `json:"provider"`
	ModelUsed     string `json:"model_used"`
	Attempts      int    `json:"attempts"`
	LatencyMs     int64  `json:"latency_ms"`
	RequestType   string `json:"request_type"`
	CorrelationID string `json:"correlation_id"`
}

type messagesResponse struct {
	ID      string                 `json:"id"`
	Type    string                 `json:"type"`
	Role    string                 `json:"role"`
	Content []responseContentBlock `json:"content"`
	ToolUse []toolUseBlock         `json:"tool_use,omitempty"`
	Usage   anthropicUsage         `json:"usage"`
	Aimux   aimuxMeta              `json:"aimux"`
}

func toWireResponse(result *core.Result) messagesResponse {
	content := make([]responseContentBlock, 0, len(result.Artifact.Content)+len(result.Artifact.Reasoning))
	for _, r := range result.Artifact.Reasoning {
		content = append(content, responseContentBlock{Type: "thinking", Text: r})
	}
	for _, c := range result.Artifact.Content {
		content = append(content, responseContentBlock{Type: "text", Text: c})
	}

	toolUse := make([]toolUseBlock, 0, len(result.Artifact.ToolCalls))
	for _, tc := range result.Artifact.ToolCalls {
		toolUse = append(toolUse, toolUseBlock{ID: tc.ID, Name: tc.Name, Input: tc.Arguments})
	}

	return messagesResponse{
		ID:      "msg_" + uuid.NewString(),
		Type:    "message",
		Role:    "assistant",
		Content: content,
		ToolUse: toolUse,
		Usage: anthropicUsage{
			InputTokens:  result.Response.Usage.PromptTokens,
			OutputTokens: result.Response.Usage.CompletionTokens,
		},
		Aimux: aimuxMeta{
			Provider:      result.Artifact.Provider,
			ModelUsed:     result.Artifact.Model,
			Attempts:      result.Response.Attempts,
			LatencyMs:     result.Artifact.LatencyMs,
			RequestType:   string(result.RequestType),
			CorrelationID: result.CorrelationID,
		},
	}
}

// wireError is the error shape every failed wire-protocol call returns,
// independent of the handlers package's generic Response envelope.
type wireError struct {
	Error wireErrorBody `json:"error"`
}

type wireErrorBody struct {
	Kind          string  `json:"kind"`
	Message       string  `json:"message"`
	Provider      *string `json:"provider"`
	Retryable     bool    `json:"retryable"`
	CorrelationID string  `json:"correlation_id"`
}

func writeWireError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}

	var provider *string
	if err.Provider != "" {
		provider = &err.Provider
	}

	if logger != nil {
		logger.Error("wire protocol error",
			zap.String("kind", string(err.Kind)),
			zap.String("message", err.Message),
			zap.Int("status", status),
			zap.String("correlation_id", err.CorrelationID),
		)
	}

	WriteJSON(w, status, wireError{Error: wireErrorBody{
		Kind:          string(err.Kind),
		Message:       err.Message,
		Provider:      provider,
		Retryable:     err.Retryable,
		CorrelationID: err.CorrelationID,
	}})
}

// HandleMessages implements POST /anthropic/v1/messages.
func (h *MessagesHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	var req messagesRequest
	if err := decodeMessagesBody(w, r, &req, h.logger); err != nil {
		return
	}

	if req.Stream {
		h.handleStream(w, r, req)
		return
	}

	result, err := h.core.HandleRequest(r.Context(), toCanonicalRequest(req))
	if err != nil {
		typed, ok := err.(*types.Error)
		if !ok {
			typed = types.NewError(types.ErrInternalError, err.Error())
		}
		writeWireError(w, typed, h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, toWireResponse(result))
}

// decodeMessagesBody is DecodeJSONBody adapted to the wire-error shape rather
// than the handlers package's generic envelope, since /anthropic/v1/messages
// must not wrap its error body.
func decodeMessagesBody(w http.ResponseWriter, r *http.Request, dst *messagesRequest, logger *zap.Logger) error {
	if r.Body == nil {
		err := types.NewError(types.ErrMalformedRequest, "request body is empty").WithHTTPStatus(http.StatusBadRequest)
		writeWireError(w, err, logger)
		return err
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		apiErr := types.NewError(types.ErrMalformedRequest, "invalid JSON body").
			WithCause(err).
			WithHTTPStatus(http.StatusBadRequest)
		writeWireError(w, apiErr, logger)
		return apiErr
	}
	return nil
}

// handleStream drives the request through GatewayCore and emits the result
// as a single terminal server-sent event. GatewayCore currently produces one
// complete CanonicalResponse per request rather than incremental fragments;
// this still satisfies stream:true clients speaking SSE, at the cost of no
// partial-content events before the final one.
func (h *MessagesHandler) handleStream(w http.ResponseWriter, r *http.Request, req messagesRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		err := types.NewError(types.ErrInternalError, "streaming unsupported by this connection").WithHTTPStatus(http.StatusInternalServerError)
		writeWireError(w, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	result, err := h.core.HandleRequest(r.Context(), toCanonicalRequest(req))
	if err != nil {
		typed, ok := err.(*types.Error)
		if !ok {
			typed = types.NewError(types.ErrInternalError, err.Error())
		}
		payload, _ := json.Marshal(wireErrorBody{Kind: string(typed.Kind), Message: typed.Message, Retryable: typed.Retryable, CorrelationID: typed.CorrelationID})
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
		flusher.Flush()
		return
	}

	payload, _ := json.Marshal(toWireResponse(result))
	providerID := ""
	if result.Response != nil {
		providerID = result.Response.ProviderID
	}

	fmt.Fprintf(w, "event: message\ndata: %s\n\n", payload)
	flusher.Flush()
	if m := h.core.Metrics(); m != nil {
		m.RecordStreamChunk(providerID, len(payload))
		m.RecordStreamFlush(providerID)
	}

	fmt.Fprint(w, "event: done\ndata: [DONE]\n\n")
	flusher.Flush()
	if m := h.core.Metrics(); m != nil {
		m.RecordStreamFlush(providerID)
	}
}

// modelEntry is one {id, provider} pair in a /anthropic/v1/models response.
type modelEntry struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
}

// HandleModels implements GET /anthropic/v1/models: the aggregated model
// list across every enabled provider descriptor.
func (h *MessagesHandler) HandleModels(w http.ResponseWriter, r *http.Request) {
	descriptors := h.core.Descriptors()

	models := make([]modelEntry, 0)
	for _, d := range descriptors {
		if !d.Enabled {
			continue
		}
		for _, model := range d.Models {
			models = append(models, modelEntry{ID: model, Provider: d.ID})
		}
	}

	WriteSuccess(w, map[string]any{"models": models})
}
