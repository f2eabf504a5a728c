package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/soyeahso/leadreach/internal/domain"
	"github.com/soyeahso/leadreach/internal/logging"
)

// Some local models ignore native tool calling and describe calls inline.
// Those are recovered from fenced tool_call blocks.

// textCall is a tool invocation written in the response text.
type textCall struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input"`
}

// toolCallRe matches ```tool_call\n{...}\n``` blocks in LLM output.
var toolCallRe = regexp.MustCompile("(?s)```tool_call\\s*\n(\\{.*?\\})\n\\s*```")

// xmlFuncCallRe matches <function_calls>...</function_calls> XML blocks in LLM output.
var xmlFuncCallRe = regexp.MustCompile(`(?s)<function_calls>.*?</function_calls>`)

// whitespaceLineRe matches lines containing only horizontal whitespace.
var whitespaceLineRe = regexp.MustCompile(`(?m)^[ \t]+$`)

// blankLineCollapseRe collapses 3+ consecutive newlines to a single blank line.
var blankLineCollapseRe = regexp.MustCompile(`\n{3,}`)

// parseToolCalls extracts tool_call blocks from LLM response text and
// assigns each a call id.
func parseToolCalls(text string) []domain.ToolCall {
	matches := toolCallRe.FindAllStringSubmatch(text, -1)
	var calls []domain.ToolCall
	for _, match := range matches {
		if len(match) < 2 {
			continue
		}
		var tc textCall
		if err := json.Unmarshal([]byte(match[1]), &tc); err != nil {
			continue
		}
		if tc.Tool == "" {
			continue
		}
		input := string(tc.Input)
		if input == "" || input == "null" {
			input = "{}"
		}
		calls = append(calls, domain.ToolCall{
			ID:    "call_" + uuid.NewString()[:8],
			Name:  tc.Tool,
			Input: input,
		})
	}
	return calls
}

// stripToolCalls removes tool_call code blocks and XML function_calls blocks
// from the response, leaving surrounding text.
func stripToolCalls(text string, log *logging.Logger) string {
	cleaned := toolCallRe.ReplaceAllString(text, "\n\n")

	xmlMatches := xmlFuncCallRe.FindAllString(cleaned, -1)
	if len(xmlMatches) > 0 && log != nil {
		for _, m := range xmlMatches {
			log.Info().Str("xml", m).Msg("stripped XML function_calls from LLM response")
		}
	}
	cleaned = xmlFuncCallRe.ReplaceAllString(cleaned, "\n\n")

	cleaned = whitespaceLineRe.ReplaceAllString(cleaned, "")
	cleaned = blankLineCollapseRe.ReplaceAllString(cleaned, "\n\n")

	return strings.TrimSpace(cleaned)
}
