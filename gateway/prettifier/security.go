package prettifier

import (
	"context"
	"regexp"

	"github.com/jeffersonwarrior/aimux-sub001/agent/guardrails"
)

// defaultSecurityPatterns are the literal fragments the post-processing
// pipeline's security-validation step scans for in the absence of an
// operator-configured pattern set.
var defaultSecurityPatterns = []string{
	`<script>`, `javascript:`, `onerror=`, `eval(`, `exec(`, `system(`,
	`' OR '1'='1`, `DROP TABLE`, `UNION SELECT`, `../`, `..\`, `/etc/passwd`,
}

// securityScanner applies the Prettifier's security-validation step. Free
// text runs through the full chain (injection patterns plus the configured
// blocked-pattern set) and fails the response outright on a match. Tool
// arguments are scanned against the blocked-pattern set alone and redacted in
// place rather than failing the request, matching the deliberate asymmetry
// between machine-consumed and human-consumed content.
type securityScanner struct {
	filter    *guardrails.ContentFilter
	injection *guardrails.InjectionDetector
	chain     *guardrails.ValidatorChain
}

func newSecurityScanner(patterns []string) (*securityScanner, error) {
	if len(patterns) == 0 {
		patterns = defaultSecurityPatterns
	}

	cfg := guardrails.DefaultContentFilterConfig()
	for _, p := range patterns {
		cfg.BlockedPatterns = append(cfg.BlockedPatterns, regexp.QuoteMeta(p))
	}
	filter, err := guardrails.NewContentFilter(cfg)
	if err != nil {
		return nil, err
	}

	injection := guardrails.NewInjectionDetector(guardrails.DefaultInjectionDetectorConfig())

	chain := guardrails.NewValidatorChain(&guardrails.ValidatorChainConfig{Mode: guardrails.ChainModeCollectAll})
	chain.Add(guardrails.NewContentFilterValidator(filter, 10), injection)

	return &securityScanner{filter: filter, injection: injection, chain: chain}, nil
}

// scanText runs the full validator chain over free text content.
func (s *securityScanner) scanText(ctx context.Context, text string) (*guardrails.ValidationResult, error) {
	if text == "" {
		return guardrails.NewValidationResult(), nil
	}
	return s.chain.Validate(ctx, text)
}

// redactArgument returns argument unchanged, or the empty string if it
// matched one of the configured blocked patterns.
func (s *securityScanner) redactArgument(argument string) string {
	if len(s.filter.Detect(argument)) > 0 {
		return ""
	}
	return argument
}
