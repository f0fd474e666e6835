package types

// Priority is a coarse request priority hint.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// RequestMetadata carries routing hints that do not affect wire content.
type RequestMetadata struct {
	Priority        Priority `json:"priority,omitempty"`
	CostSensitive   bool     `json:"cost_sensitive,omitempty"`
	LatencySensitive bool    `json:"latency_sensitive,omitempty"`
}

// CanonicalRequest is the provider-agnostic internal representation of an inbound
// chat-completion request.
type CanonicalRequest struct {
	ModelHint   string          `json:"model_hint,omitempty"`
	Messages    []Message       `json:"messages"`
	Tools       []ToolSchema    `json:"tools,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature,omitempty"`
	TopP        float32         `json:"top_p,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Metadata    RequestMetadata `json:"metadata,omitempty"`
}
