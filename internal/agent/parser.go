// Package agent implements the response parser and the bounded agentic
// loop (spec §4.9, §4.10).
package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/ngoclaw/toolorch/internal/apperr"
	"github.com/ngoclaw/toolorch/internal/tool"
)

// ParseResult is the output of parsing one model turn.
type ParseResult struct {
	FinalText string // text outside every TOOL_CALL block; the whole input when Calls is empty
	Calls     []tool.Invocation
}

var toolCallLineRe = regexp.MustCompile(`(?m)^[ \t]*TOOL_CALL:[ \t]*(\S+)[ \t]*$`)
var argumentsLineRe = regexp.MustCompile(`(?m)^[ \t]*ARGUMENTS:[ \t]*`)

// Parse extracts zero or more TOOL_CALL/ARGUMENTS blocks from raw model
// text (spec §4.9). Text outside any block is concatenated as FinalText.
// A block runs from its TOOL_CALL line to the next TOOL_CALL line or the end
// of the input, so only text before the first TOOL_CALL is outside every
// block. If at least one call parses, the turn needs tool execution; if zero
// calls parse, the whole input is the final answer.
func Parse(raw string) (ParseResult, error) {
	callStarts := toolCallLineRe.FindAllStringSubmatchIndex(raw, -1)
	if len(callStarts) == 0 {
		return ParseResult{FinalText: strings.TrimSpace(raw)}, nil
	}

	var calls []tool.Invocation
	var leftover strings.Builder

	prevEnd := 0
	for i, loc := range callStarts {
		blockStart := loc[0]
		leftover.WriteString(raw[prevEnd:blockStart])

		blockEnd := len(raw)
		if i+1 < len(callStarts) {
			blockEnd = callStarts[i+1][0]
		}
		block := raw[blockStart:blockEnd]

		name := raw[loc[2]:loc[3]]
		argsLoc := argumentsLineRe.FindStringIndex(block)
		if argsLoc == nil {
			return ParseResult{}, apperr.NewModelBehaviorError("TOOL_CALL for " + name + " has no ARGUMENTS line")
		}
		argsText := strings.TrimSpace(block[argsLoc[1]:])
		argsText = firstBalancedJSONOrLine(argsText)

		var args map[string]interface{}
		if err := json.Unmarshal([]byte(argsText), &args); err != nil {
			return ParseResult{}, apperr.NewModelBehaviorError("malformed ARGUMENTS JSON for " + name + ": " + err.Error())
		}

		calls = append(calls, tool.Invocation{ToolName: name, Arguments: args})
		prevEnd = blockEnd
	}
	leftover.WriteString(raw[prevEnd:])

	return ParseResult{FinalText: strings.TrimSpace(leftover.String()), Calls: calls}, nil
}

// firstBalancedJSONOrLine returns either the first line of text (the common
// single-line-JSON case) or, when the argument JSON spans multiple lines, the
// first brace-balanced object starting at the first '{'.
func firstBalancedJSONOrLine(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			return strings.TrimSpace(s[:nl])
		}
		return strings.TrimSpace(s)
	}

	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	// Unbalanced: fall back to first line so json.Unmarshal reports the
	// malformed-JSON error rather than this function silently truncating.
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		return strings.TrimSpace(s[:nl])
	}
	return strings.TrimSpace(s)
}
