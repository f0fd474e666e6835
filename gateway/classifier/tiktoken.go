package classifier

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jeffersonwarrior/aimux-sub001/types"
)

// modelEncodings maps a model-hint prefix to its tiktoken encoding name.
// Only the encodings a RequestClassifier actually needs to disambiguate
// long-context thresholds for are registered; an unrecognized hint falls
// back to the byte/4 default estimator rather than guessing an encoding.
var modelEncodings = map[string]string{
	"gpt-4o":       "o200k_base",
	"gpt-4-turbo":  "cl100k_base",
	"gpt-4":        "cl100k_base",
	"gpt-3.5":      "cl100k_base",
	"claude":       "cl100k_base",
}

var (
	encodingCacheMu sync.Mutex
	encodingCache   = map[string]*tiktoken.Tiktoken{}
)

// refineWithTiktoken attempts an exact token count for messages using the
// tiktoken encoding associated with modelHint. ok is false when modelHint
// matches no known prefix or the encoding fails to initialize, signaling the
// caller to fall back to the byte/4 estimator.
func refineWithTiktoken(modelHint string, messages []types.Message) (int, bool) {
	encodingName, ok := lookupEncoding(modelHint)
	if !ok {
		return 0, false
	}

	enc, ok := getEncoding(encodingName)
	if !ok {
		return 0, false
	}

	total := 0
	for _, m := range messages {
		total += 4 // per-message role/separator overhead
		total += len(enc.Encode(m.Content, nil, nil))
	}
	total += 3 // conversation-end overhead
	return total, true
}

func lookupEncoding(modelHint string) (string, bool) {
	if modelHint == "" {
		return "", false
	}
	for prefix, encoding := range modelEncodings {
		if strings.HasPrefix(modelHint, prefix) {
			return encoding, true
		}
	}
	return "", false
}

func getEncoding(name string) (*tiktoken.Tiktoken, bool) {
	encodingCacheMu.Lock()
	defer encodingCacheMu.Unlock()

	if enc, ok := encodingCache[name]; ok {
		return enc, true
	}

	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, false
	}
	encodingCache[name] = enc
	return enc, true
}
