package types

// SegmentKind tags one piece of a CanonicalResponse's content.
type SegmentKind string

const (
	SegmentText      SegmentKind = "text"
	SegmentReasoning SegmentKind = "reasoning"
	SegmentToolCall  SegmentKind = "tool_call"
	SegmentImageRef  SegmentKind = "image_ref"
)

// ContentSegment is one tagged piece of a CanonicalResponse's content list.
type ContentSegment struct {
	Kind SegmentKind `json:"kind"`
	Text string      `json:"text,omitempty"`
}

// ResponseToolCall is a normalized tool call in a CanonicalResponse. Arguments
// is a validated key/value map of scalar or JSON-scalar values, never raw
// unparsed JSON — this is what the dual-path tool-call normalization algorithm
// produces.
type ResponseToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ResponseError is the optional error attached to a failed CanonicalResponse.
type ResponseError struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

// CanonicalResponse is the provider-agnostic internal representation of a
// completed (or failed) chat-completion call.
type CanonicalResponse struct {
	Success    bool               `json:"success"`
	ProviderID string             `json:"provider_id,omitempty"`
	ModelUsed  string             `json:"model_used,omitempty"`
	Attempts   int                `json:"attempts"`
	LatencyMs  int64              `json:"latency_ms"`
	Content    []ContentSegment   `json:"content,omitempty"`
	ToolCalls  []ResponseToolCall `json:"tool_calls,omitempty"`
	Usage      TokenUsage         `json:"usage"`
	Error      *ResponseError     `json:"error,omitempty"`
}
