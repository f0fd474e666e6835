package adapter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jeffersonwarrior/aimux-sub001/types"
)

// toolCallsXMLPattern matches a <tool_calls>...</tool_calls> block in a
// completion's raw text content, the legacy wire shape some providers (most
// notably MiniMax) fall back to instead of a structured tool_calls array.
var toolCallsXMLPattern = regexp.MustCompile(`(?s)<tool_calls>(.*?)</tool_calls>`)

// rawToolCall is the shape of one line inside a <tool_calls> block:
// {"name":"...","arguments":{...}}.
type rawToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// structuredToolCall is the shape of one entry in a provider's native
// tool_calls array (the OpenAI/Anthropic-style structured path).
type structuredToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Arguments arrives as either a JSON object or a JSON-encoded string
	// depending on the upstream wire format; decodeArguments handles both.
	Arguments json.RawMessage `json:"arguments"`
}

// NormalizeToolCalls converts a provider's tool-call signal into the
// gateway's canonical shape. It tries the structured path first (a native
// tool_calls array, already parsed by the caller); when structured is empty,
// it falls back to extracting a legacy <tool_calls> XML block from content.
// Both paths converge on the same map[string]any argument shape so callers
// downstream never need to know which path produced a given call.
func NormalizeToolCalls(structured []structuredToolCall, content string) []types.ResponseToolCall {
	if len(structured) > 0 {
		return normalizeStructured(structured)
	}
	return normalizeLegacyXML(content)
}

func normalizeStructured(calls []structuredToolCall) []types.ResponseToolCall {
	out := make([]types.ResponseToolCall, 0, len(calls))
	for i, c := range calls {
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		out = append(out, types.ResponseToolCall{
			ID:        id,
			Name:      c.Name,
			Arguments: decodeArguments(c.Arguments),
		})
	}
	return out
}

// normalizeLegacyXML extracts and parses a <tool_calls>{"name":...}</tool_calls>
// block, one JSON object per line, exactly the format MiniMax's completion
// text embeds when it falls back off the structured tool-calling path.
func normalizeLegacyXML(content string) []types.ResponseToolCall {
	matches := toolCallsXMLPattern.FindStringSubmatch(content)
	if len(matches) < 2 {
		return nil
	}

	var out []types.ResponseToolCall
	lines := strings.Split(strings.TrimSpace(matches[1]), "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var call rawToolCall
		if err := json.Unmarshal([]byte(line), &call); err != nil {
			continue
		}
		out = append(out, types.ResponseToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      call.Name,
			Arguments: decodeArguments(call.Arguments),
		})
	}
	return out
}

// StripToolCallXML removes an embedded <tool_calls> block from content, for
// callers that already extracted the calls via normalizeLegacyXML and want
// the remaining prose without it.
func StripToolCallXML(content string) string {
	return strings.TrimSpace(toolCallsXMLPattern.ReplaceAllString(content, ""))
}

// decodeArguments parses raw into a map[string]any, accepting either a JSON
// object or a JSON string containing an encoded object (some providers
// double-encode arguments as a string rather than a nested object).
func decodeArguments(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}

	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err == nil {
		return asMap
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		var nested map[string]any
		if err := json.Unmarshal([]byte(asString), &nested); err == nil {
			return nested
		}
	}

	return map[string]any{}
}

// EncodeToolCallsXML serializes a message's tool calls into the legacy
// <tool_calls> wire block an outbound request to a legacy-format provider
// (MiniMax) embeds in place of message content, one JSON object per line.
func EncodeToolCallsXML(calls []types.ToolCall) string {
	if len(calls) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<tool_calls>\n")
	for _, c := range calls {
		line, err := json.Marshal(map[string]any{
			"name":      c.Name,
			"arguments": json.RawMessage(c.Arguments),
		})
		if err != nil {
			continue
		}
		b.Write(line)
		b.WriteString("\n")
	}
	b.WriteString("</tool_calls>")
	return b.String()
}
