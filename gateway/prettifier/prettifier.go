// Package prettifier implements the gateway's post-processing pipeline: it
// turns a raw CanonicalResponse into a PrettifiedArtifact by running security
// validation, markdown normalization, tool-call extraction and escaping, and
// (for streaming responses) backpressure-bounded incremental assembly.
package prettifier

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jeffersonwarrior/aimux-sub001/agent/guardrails"
	"github.com/jeffersonwarrior/aimux-sub001/config"
	"github.com/jeffersonwarrior/aimux-sub001/types"
)

// Formatter lets a provider customize pre/post-processing around the shared
// pipeline steps. Most providers use the package's defaultFormatter; a
// provider registered under a different name in PrettifierPolicy.ProviderMappings
// gets its own Formatter instance.
type Formatter interface {
	// Name identifies the formatter for logging and provider-mapping lookups.
	Name() string
	// Postprocess runs first, before the security scan and markdown
	// normalization, and may rewrite the content segments (e.g.
	// provider-specific quirks in fence or heading style).
	Postprocess(segments []types.ContentSegment) []types.ContentSegment
}

// StreamingFormatter is implemented by formatters that need to touch
// individual stream fragments rather than only the final assembled response.
type StreamingFormatter interface {
	Formatter
	PostprocessChunk(fragment StreamFragment) StreamFragment
}

// defaultFormatter applies no provider-specific rewriting; normalizeMarkdown
// and escapeToolArguments alone already produce the canonical shape for the
// overwhelming majority of providers.
type defaultFormatter struct{}

func (defaultFormatter) Name() string { return "default" }

func (defaultFormatter) Postprocess(segments []types.ContentSegment) []types.ContentSegment {
	return segments
}

// Prettifier owns the pipeline's shared state: the security scanner, the
// provider→Formatter mapping, and the configured stream buffer size.
type Prettifier struct {
	policy     config.PrettifierPolicy
	logger     *zap.Logger
	security   *securityScanner
	mu         sync.RWMutex
	formatters map[string]Formatter
}

// New builds a Prettifier from the configured security pattern set and
// provider-formatter mapping. It registers the defaultFormatter under
// "default", which formatterFor falls back to for any provider ID with no
// mapping or registration of its own.
func New(policy config.PrettifierPolicy, logger *zap.Logger) (*Prettifier, error) {
	scanner, err := newSecurityScanner(policy.SecurityPatterns)
	if err != nil {
		return nil, fmt.Errorf("prettifier: building security scanner: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Prettifier{
		policy:     policy,
		logger:     logger,
		security:   scanner,
		formatters: map[string]Formatter{"default": defaultFormatter{}},
	}
	return p, nil
}

// Register associates a Formatter with a provider ID, overriding the default
// for that provider's responses.
func (p *Prettifier) Register(providerID string, f Formatter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.formatters[providerID] = f
}

func (p *Prettifier) formatterFor(providerID string) Formatter {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if name, ok := p.policy.ProviderMappings[providerID]; ok {
		if f, ok := p.formatters[name]; ok {
			return f
		}
	}
	if f, ok := p.formatters[providerID]; ok {
		return f
	}
	if p.policy.DefaultFormatter != "" {
		if f, ok := p.formatters[p.policy.DefaultFormatter]; ok {
			return f
		}
	}
	return p.formatters["default"]
}

// NewStreamAssembler builds a StreamAssembler sized from the Prettifier's
// configured MaxStreamBufferBytes, for callers driving a streaming response
// through the pipeline chunk by chunk.
func (p *Prettifier) NewStreamAssembler() *StreamAssembler {
	return NewStreamAssembler(p.policy.MaxStreamBufferBytes)
}

// Process runs the full post-processing pipeline over a non-streaming
// CanonicalResponse. Free-text content that trips the security scanner fails
// the whole response; a flagged tool argument is instead redacted to the
// empty string and the response proceeds.
func (p *Prettifier) Process(ctx context.Context, resp *types.CanonicalResponse) (*PrettifiedArtifact, error) {
	if !p.policy.Enabled {
		return p.passthrough(resp), nil
	}

	limit := p.policy.MaxStreamBufferBytes
	if limit <= 0 {
		limit = 10 * 1024 * 1024
	}
	size := 0
	for _, seg := range resp.Content {
		size += len(seg.Text)
	}
	if size > limit {
		return nil, types.NewError(types.ErrMalformedRequest, "response content exceeds max_stream_buffer_bytes").
			WithProvider(resp.ProviderID).
			WithRetryable(false)
	}

	formatter := p.formatterFor(resp.ProviderID)
	segments := formatter.Postprocess(resp.Content)

	artifact := &PrettifiedArtifact{
		Provider:  resp.ProviderID,
		Model:     resp.ModelUsed,
		LatencyMs: resp.LatencyMs,
		Usage:     resp.Usage,
	}

	for _, seg := range segments {
		text := seg.Text
		if seg.Kind != types.SegmentToolCall {
			result, err := p.security.scanText(ctx, text)
			if err != nil {
				return nil, err
			}
			if result != nil && !result.Valid {
				return nil, types.NewError(types.ErrSecurityViolation, securityViolationMessage(result)).
					WithProvider(resp.ProviderID).
					WithRetryable(false)
			}
			text = normalizeMarkdown(text)
		}

		switch seg.Kind {
		case types.SegmentReasoning:
			artifact.Reasoning = append(artifact.Reasoning, text)
		default:
			artifact.Content = append(artifact.Content, text)
		}
	}

	for _, tc := range resp.ToolCalls {
		escaped := escapeToolArguments(tc.Arguments)
		redacted := make(map[string]any, len(escaped))
		for k, v := range escaped {
			if s, ok := v.(string); ok {
				redacted[k] = p.security.redactArgument(s)
				continue
			}
			redacted[k] = v
		}
		artifact.ToolCalls = append(artifact.ToolCalls, ArtifactToolCall{
			Name:      tc.Name,
			ID:        tc.ID,
			Arguments: redacted,
		})
	}

	return artifact, nil
}

// passthrough builds an artifact without running any pipeline step, used
// when the Prettifier is configured off.
func (p *Prettifier) passthrough(resp *types.CanonicalResponse) *PrettifiedArtifact {
	artifact := &PrettifiedArtifact{
		Provider:  resp.ProviderID,
		Model:     resp.ModelUsed,
		LatencyMs: resp.LatencyMs,
		Usage:     resp.Usage,
	}
	for _, seg := range resp.Content {
		if seg.Kind == types.SegmentReasoning {
			artifact.Reasoning = append(artifact.Reasoning, seg.Text)
		} else {
			artifact.Content = append(artifact.Content, seg.Text)
		}
	}
	for _, tc := range resp.ToolCalls {
		artifact.ToolCalls = append(artifact.ToolCalls, ArtifactToolCall{Name: tc.Name, ID: tc.ID, Arguments: tc.Arguments})
	}
	return artifact
}

func securityViolationMessage(result *guardrails.ValidationResult) string {
	if len(result.Errors) == 0 {
		return "content failed security validation"
	}
	msgs := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		msgs = append(msgs, e.Message)
	}
	return "content failed security validation: " + strings.Join(msgs, "; ")
}
