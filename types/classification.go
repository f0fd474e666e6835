package types

// RequestType names the dominant shape of a classified request.
type RequestType string

const (
	RequestTypeThinking  RequestType = "thinking"
	RequestTypeVision    RequestType = "vision"
	RequestTypeTools     RequestType = "tools"
	RequestTypeStreaming RequestType = "streaming"
	RequestTypeStandard  RequestType = "standard"
	RequestTypeHybrid    RequestType = "hybrid"
)

// Complexity is a coarse estimate of how demanding a request is to serve.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// RequestClassification is the RequestClassifier's output: the capability
// requirements and size/shape estimate derived from a CanonicalRequest.
type RequestClassification struct {
	RequiredCapabilities  map[Capability]bool `json:"required_capabilities"`
	EstimatedInputTokens  int                 `json:"estimated_input_tokens"`
	EstimatedOutputTokens int                 `json:"estimated_output_tokens"`
	RequestType           RequestType         `json:"request_type"`
	Complexity            Complexity          `json:"complexity"`
}
