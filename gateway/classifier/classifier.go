// Package classifier derives a RequestClassification from a CanonicalRequest:
// which capabilities the request needs, how large it is, and how it should
// be labeled for routing and metrics.
package classifier

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/jeffersonwarrior/aimux-sub001/config"
	"github.com/jeffersonwarrior/aimux-sub001/types"
)

// thinkingCues are fixed phrases whose presence in a user message signals a
// reasoning-heavy request, independent of length.
var thinkingCues = []string{
	"think step by step",
	"reason through",
	"analyze carefully",
	"explain your reasoning",
}

// RequestClassifier derives a RequestClassification from a CanonicalRequest.
// Classification never fails: unparseable content degrades to a standard,
// low-complexity classification rather than returning an error.
type RequestClassifier struct {
	policy config.ClassifierPolicy
	logger *zap.Logger
}

// New creates a RequestClassifier bound to policy.
func New(policy config.ClassifierPolicy, logger *zap.Logger) *RequestClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestClassifier{
		policy: policy,
		logger: logger.With(zap.String("component", "classifier")),
	}
}

// Classify derives a RequestClassification from req. It never returns an error.
func (c *RequestClassifier) Classify(ctx context.Context, req *types.CanonicalRequest) *types.RequestClassification {
	if req == nil {
		return &types.RequestClassification{
			RequiredCapabilities: map[types.Capability]bool{},
			RequestType:          types.RequestTypeStandard,
			Complexity:           types.ComplexityLow,
		}
	}

	estimatedInput := c.estimateInputTokens(req)
	estimatedOutput := estimateOutputTokens(req)

	caps := map[types.Capability]bool{
		types.CapabilityVision:      hasImageContent(req),
		types.CapabilityTools:       hasToolUse(req),
		types.CapabilityStreaming:   req.Stream,
		types.CapabilityThinking:    c.isThinking(req, estimatedInput),
		types.CapabilityLongContext: estimatedInput > c.longContextThreshold(),
	}

	return &types.RequestClassification{
		RequiredCapabilities:  caps,
		EstimatedInputTokens:  estimatedInput,
		EstimatedOutputTokens: estimatedOutput,
		RequestType:           requestType(caps),
		Complexity:            complexity(estimatedInput, caps),
	}
}

func (c *RequestClassifier) longContextThreshold() int {
	if c.policy.LongContextThreshold > 0 {
		return c.policy.LongContextThreshold
	}
	return 32000
}

func (c *RequestClassifier) thinkingTokensThreshold() int {
	if c.policy.ThinkingTokensThreshold > 0 {
		return c.policy.ThinkingTokensThreshold
	}
	return 2000
}

func (c *RequestClassifier) imageTokenAllowance() int {
	if c.policy.ImageTokenAllowance > 0 {
		return c.policy.ImageTokenAllowance
	}
	return 1024
}

// isThinking reports whether req should be classified as a thinking request:
// a cue phrase in any user message, or the estimated size exceeding the
// configured threshold.
func (c *RequestClassifier) isThinking(req *types.CanonicalRequest, estimatedInput int) bool {
	if estimatedInput > c.thinkingTokensThreshold() {
		return true
	}
	for _, m := range req.Messages {
		if m.Role != types.RoleUser {
			continue
		}
		lower := strings.ToLower(m.Content)
		for _, cue := range thinkingCues {
			if strings.Contains(lower, cue) {
				return true
			}
		}
	}
	return false
}

// estimateInputTokens approximates total input size as ceil(text_bytes/4)
// plus a fixed per-image allowance, refined by a tiktoken pass when a known
// model hint is present.
func (c *RequestClassifier) estimateInputTokens(req *types.CanonicalRequest) int {
	var totalBytes int
	var images int
	for _, m := range req.Messages {
		totalBytes += len(m.Content)
		images += len(m.Images)
	}

	if refined, ok := refineWithTiktoken(req.ModelHint, req.Messages); ok {
		return refined + images*c.imageTokenAllowance()
	}

	textTokens := estimateBytesToTokens(totalBytes)
	return textTokens + images*c.imageTokenAllowance()
}

// estimateBytesToTokens is the byte/4 fallback estimator named in spec §4.1,
// rounded up.
func estimateBytesToTokens(totalBytes int) int {
	return int(math.Ceil(float64(totalBytes) / 4.0))
}

// estimateOutputTokens has no wire-level signal to draw on yet (the response
// doesn't exist), so it derives a conservative estimate from the request's
// own max_tokens hint, defaulting to a fixed small budget.
func estimateOutputTokens(req *types.CanonicalRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return 256
}

func hasImageContent(req *types.CanonicalRequest) bool {
	for _, m := range req.Messages {
		if len(m.Images) > 0 {
			return true
		}
	}
	return false
}

func hasToolUse(req *types.CanonicalRequest) bool {
	if len(req.Tools) > 0 {
		return true
	}
	for _, m := range req.Messages {
		if m.Role == types.RoleTool || len(m.ToolCalls) > 0 {
			return true
		}
	}
	return false
}

func requestType(caps map[types.Capability]bool) types.RequestType {
	present := 0
	var single types.RequestType
	if caps[types.CapabilityThinking] {
		present++
		single = types.RequestTypeThinking
	}
	if caps[types.CapabilityVision] {
		present++
		single = types.RequestTypeVision
	}
	if caps[types.CapabilityTools] {
		present++
		single = types.RequestTypeTools
	}

	switch {
	case present >= 2:
		return types.RequestTypeHybrid
	case present == 1:
		return single
	default:
		return types.RequestTypeStandard
	}
}

func complexity(estimatedInput int, caps map[types.Capability]bool) types.Complexity {
	switch {
	case caps[types.CapabilityLongContext] || (caps[types.CapabilityThinking] && caps[types.CapabilityTools]):
		return types.ComplexityHigh
	case estimatedInput > 4000 || caps[types.CapabilityThinking] || caps[types.CapabilityTools] || caps[types.CapabilityVision]:
		return types.ComplexityMedium
	default:
		return types.ComplexityLow
	}
}
