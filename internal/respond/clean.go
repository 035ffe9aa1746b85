package respond

import (
	"regexp"
	"strings"
)

var (
	reEmoji = regexp.MustCompile(`[\x{1F600}-\x{1F64F}\x{1F300}-\x{1F5FF}\x{1F680}-\x{1F6FF}\x{1F1E0}-\x{1F1FF}\x{2702}-\x{27B0}\x{24C2}-\x{1F251}\x{1F900}-\x{1F9FF}\x{FE0F}]+`)

	reChatMLBlock  = regexp.MustCompile(`(?s)<\|im_start\|>.*?<\|im_end\|>`)
	reChatMLTokens = regexp.MustCompile(`<\|(?:im_start|im_end|endoftext|eot_id|start_header_id|end_header_id)\|>`)
	reInstBlock    = regexp.MustCompile(`(?s)\[INST\].*?\[/INST\]`)
	reInstTokens   = regexp.MustCompile(`\[/?INST\]|</?s>`)

	reNumberRun  = regexp.MustCompile(`(\d+[\s,]+){4,}`)
	reDigits     = regexp.MustCompile(`\d+`)
	reBlankLines = regexp.MustCompile(`\n{3,}`)
	reSpaces     = regexp.MustCompile(` {2,}`)
)

// minDedupeLen is the shortest normalised line considered for duplicate
// removal; shorter lines such as blank lines or "```" always survive.
const minDedupeLen = 15

// Clean strips chat-template tokens, emoji, runaway number sequences and
// repeated lines from a model answer, and collapses excess blank lines.
// Indentation inside fenced code blocks is preserved.
func Clean(text string) string {
	text = reEmoji.ReplaceAllString(text, "")
	text = reChatMLBlock.ReplaceAllString(text, "")
	text = reChatMLTokens.ReplaceAllString(text, "")
	text = reInstBlock.ReplaceAllString(text, "")
	text = reInstTokens.ReplaceAllString(text, "")
	text = reNumberRun.ReplaceAllString(text, "")

	lines := strings.Split(text, "\n")
	seen := make(map[string]bool, len(lines))
	out := lines[:0]
	inCode := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inCode = !inCode
			out = append(out, line)
			continue
		}

		norm := reDigits.ReplaceAllString(trimmed, "N")
		if len(norm) >= minDedupeLen {
			if seen[norm] {
				continue
			}
			seen[norm] = true
		}
		if !inCode {
			line = reSpaces.ReplaceAllString(line, " ")
		}
		out = append(out, line)
	}
	text = strings.Join(out, "\n")

	text = reBlankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
