package prettifier

import (
	"regexp"
	"strings"
)

var (
	fenceOpenRe = regexp.MustCompile("(?m)^(```|~~~)\\s*([a-zA-Z0-9_+-]*)\\s*$")
	shebangRe   = regexp.MustCompile(`^#!\S*/(?:env\s+)?(\w+)`)
	blankRunRe  = regexp.MustCompile(`\n{3,}`)
)

// normalizeMarkdown unifies fence styles to backtick fences, strips trailing
// whitespace from every line, coalesces runs of blank lines, and fills in a
// missing code-block language from a leading shebang when one is absent.
func normalizeMarkdown(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	content = strings.Join(lines, "\n")

	content = unifyFences(content)
	content = blankRunRe.ReplaceAllString(content, "\n\n")
	return content
}

// unifyFences rewrites ~~~ fences as ``` fences and detects a fence's
// language from a leading shebang line when the fence itself declares none.
func unifyFences(content string) string {
	lines := strings.Split(content, "\n")
	var out []string
	inFence := false
	var fenceLang string
	var fenceBody []string

	flush := func() {
		lang := fenceLang
		if lang == "" && len(fenceBody) > 0 {
			if m := shebangRe.FindStringSubmatch(fenceBody[0]); m != nil {
				lang = m[1]
			}
		}
		out = append(out, "```"+lang)
		out = append(out, fenceBody...)
		out = append(out, "```")
		fenceBody = nil
		fenceLang = ""
	}

	for _, line := range lines {
		if m := fenceOpenRe.FindStringSubmatch(line); m != nil {
			if !inFence {
				inFence = true
				fenceLang = m[2]
				continue
			}
			inFence = false
			flush()
			continue
		}
		if inFence {
			fenceBody = append(fenceBody, line)
			continue
		}
		out = append(out, line)
	}
	if inFence {
		// Unterminated fence: close it as-is rather than swallowing content.
		flush()
	}
	return strings.Join(out, "\n")
}
