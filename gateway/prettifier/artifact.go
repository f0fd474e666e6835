package prettifier

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jeffersonwarrior/aimux-sub001/types"
)

// PrettifiedArtifact is the Prettifier's output: a CanonicalResponse recast
// into the gateway's canonical tabular serialization.
type PrettifiedArtifact struct {
	Provider  string
	Model     string
	LatencyMs int64
	Usage     types.TokenUsage
	Reasoning []string
	Content   []string
	ToolCalls []ArtifactToolCall
}

// ArtifactToolCall is one escaped, flattened tool call in a PrettifiedArtifact.
type ArtifactToolCall struct {
	Name      string
	ID        string
	Arguments map[string]any
}

// Serialize renders the artifact into the line-oriented tabular form: a
// metadata block, then reasoning, then content, then tools, each under its
// own "# name" header with stable block ordering.
func (a *PrettifiedArtifact) Serialize() string {
	var b strings.Builder

	b.WriteString("# metadata\n")
	fmt.Fprintf(&b, "provider: %s\n", escapeField(a.Provider))
	fmt.Fprintf(&b, "model: %s\n", escapeField(a.Model))
	fmt.Fprintf(&b, "latency_ms: %d\n", a.LatencyMs)
	fmt.Fprintf(&b, "usage: input=%d,output=%d,total=%d\n", a.Usage.PromptTokens, a.Usage.CompletionTokens, a.Usage.TotalTokens)

	b.WriteString("\n# reasoning\n")
	for i, seg := range a.Reasoning {
		fmt.Fprintf(&b, "[%d] %s\n", i, escapeField(seg))
	}

	b.WriteString("\n# content\n")
	for i, seg := range a.Content {
		fmt.Fprintf(&b, "[%d] %s\n", i, escapeField(seg))
	}

	b.WriteString("\n# tools\n")
	fmt.Fprintf(&b, "tools[%d]{name,id,arguments}:\n", len(a.ToolCalls))
	for _, tc := range a.ToolCalls {
		fmt.Fprintf(&b, "  %s,%s,%s\n", escapeField(tc.Name), escapeField(tc.ID), serializeArguments(tc.Arguments))
	}

	return b.String()
}

// serializeArguments renders a tool call's argument map as a stable-ordered
// k=v;k=v;... list.
func serializeArguments(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", escapeField(k), escapeField(formatArgValue(args[k]))))
	}
	return strings.Join(parts, ";")
}

func formatArgValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// escapeField escapes '\\', ',' and newlines per the grammar's value-escaping rule.
func escapeField(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, ",", `\,`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}
