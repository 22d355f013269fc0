package llm

import (
	"regexp"
	"strings"
)

// Compiled once; each pattern matches one class of instruction artifact that
// small local models sometimes echo into a chat reply.
var replyFilters = []*regexp.Regexp{
	regexp.MustCompile(`(?is)### Instruction:.+`),
	regexp.MustCompile(`(?is)---\n*.+`),
	regexp.MustCompile(`(?is)## New Constraints:.+`),
	regexp.MustCompile(`(?is)Your response should include.+`),
	regexp.MustCompile(`(?is)Respond with ONLY.+`),
	regexp.MustCompile(`(?is)Format the response as JSON.+`),
	regexp.MustCompile(`(?is)Add at least \d+ more constraints.+`),
}

// CleanReply strips leaked prompt scaffolding from a chat reply: reasoning
// blocks, instruction headers, and echoed formatting directives. Applied to
// replies before they are spoken or written to conversation memory.
//
// Expectations:
//   - Truncates from a leaked "### Instruction:" header onward
//   - Truncates from a "---" separator onward
//   - Removes an echoed "Respond with ONLY..." directive
//   - Removes <think>...</think> reasoning blocks
//   - Returns trimmed text unchanged when no artifact is present
func CleanReply(text string) string {
	text = StripThinkBlocks(text)
	for _, p := range replyFilters {
		text = p.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}
