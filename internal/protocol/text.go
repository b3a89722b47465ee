package protocol

import (
	"encoding/json"
	"strings"
)

const (
	commandSummaryLimit = 120
	inputSummaryLimit   = 100
)

// ExtractText joins the text and thinking blocks of an assistant message.
func ExtractText(blocks []ContentBlock) string {
	parts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		switch block.Type {
		case BlockText:
			parts = append(parts, block.Text)
		case BlockThinking:
			parts = append(parts, block.Thinking)
		}
	}
	return strings.Join(parts, "\n")
}

// ExtractToolResultText flattens tool_result content, which is either a
// string or an array of text blocks.
func ExtractToolResultText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(content, &blocks); err != nil {
		return ""
	}
	parts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		if block.Type == BlockText {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// FormatToolSummary renders a one-line description of a tool invocation.
func FormatToolSummary(toolName string, input json.RawMessage) string {
	var fields map[string]any
	_ = json.Unmarshal(input, &fields)

	switch toolName {
	case "Bash":
		return Truncate(stringField(fields, "command"), commandSummaryLimit)
	case "Read", "Write", "Edit":
		return Truncate(stringField(fields, "file_path"), commandSummaryLimit)
	case "Glob", "Grep":
		return Truncate(stringField(fields, "pattern"), commandSummaryLimit)
	case "Task":
		return Truncate(stringField(fields, "description"), commandSummaryLimit)
	default:
		if len(input) == 0 {
			return ""
		}
		return Truncate(compactJSON(input), inputSummaryLimit)
	}
}

// Truncate cuts s to at most limit characters, appending "..." when it cut.
// It never splits a multi-byte character.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i] + "..."
		}
		count++
	}
	return s
}

// EstimateTokens is the rough chars/4 estimate used for streaming progress.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// InputField returns a string field of a tool input object, or "".
func InputField(input json.RawMessage, key string) string {
	var fields map[string]any
	if err := json.Unmarshal(input, &fields); err != nil {
		return ""
	}
	return stringField(fields, key)
}

func stringField(fields map[string]any, key string) string {
	if fields == nil {
		return ""
	}
	s, _ := fields[key].(string)
	return s
}

func compactJSON(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(data)
}
