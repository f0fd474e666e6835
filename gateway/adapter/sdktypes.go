package adapter

import (
	openaisdk "github.com/openai/openai-go/v3"
	"google.golang.org/genai"
)

// OpenAIModel re-exports the official OpenAI SDK's model-identifier type.
// Like AnthropicModel, this borrows only the SDK's typed identifier space;
// the openai-like adapter still builds its own request/response bodies since
// openai-go's client targets api.openai.com while an openai-like descriptor
// may point anywhere that speaks a compatible wire format.
type OpenAIModel = openaisdk.ChatModel

// syntheticContentPart uses genai's Text helper to build the deterministic
// fixture content the synthetic adapter echoes back, exercising the same
// content-part construction a Gemini-backed descriptor would use if one were
// configured, without requiring network access in tests.
func syntheticContentPart(text string) string {
	parts := genai.Text(text)
	if len(parts) == 0 || parts[0].Text == "" {
		return text
	}
	return parts[0].Text
}
