package prettifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMarkdown_UnifiesTildeFences(t *testing.T) {
	in := "text\n~~~python\nprint(1)\n~~~\nmore"
	out := normalizeMarkdown(in)
	assert.Contains(t, out, "```python\nprint(1)\n```")
	assert.NotContains(t, out, "~~~")
}

func TestNormalizeMarkdown_DetectsLanguageFromShebang(t *testing.T) {
	in := "```\n#!/usr/bin/env python\nprint(1)\n```"
	out := normalizeMarkdown(in)
	assert.Contains(t, out, "```python\n#!/usr/bin/env python")
}

func TestNormalizeMarkdown_StripsTrailingWhitespace(t *testing.T) {
	in := "line one   \nline two\t\n"
	out := normalizeMarkdown(in)
	assert.Equal(t, "line one\nline two\n", out)
}

func TestNormalizeMarkdown_CoalescesBlankLineRuns(t *testing.T) {
	in := "a\n\n\n\n\nb"
	out := normalizeMarkdown(in)
	assert.Equal(t, "a\n\nb", out)
}

func TestNormalizeMarkdown_LeavesBacktickFencesWithLanguageAlone(t *testing.T) {
	in := "```go\nfunc main() {}\n```"
	out := normalizeMarkdown(in)
	assert.Equal(t, "```go\nfunc main() {}\n```", out)
}
