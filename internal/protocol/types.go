package protocol

import (
	"encoding/json"
	"strings"
)

// CLIPathPrefix is the websocket path prefix the agent dials; the session id follows it.
const CLIPathPrefix = "/ws/cli/"

// MessageType is the "type" discriminator of an inbound line.
type MessageType string

const (
	TypeSystem         MessageType = "system"
	TypeAssistant      MessageType = "assistant"
	TypeResult         MessageType = "result"
	TypeStreamEvent    MessageType = "stream_event"
	TypeControlRequest MessageType = "control_request"
	TypeToolProgress   MessageType = "tool_progress"
	TypeToolUseSummary MessageType = "tool_use_summary"
	TypeAuthStatus     MessageType = "auth_status"
	TypeMessageHistory MessageType = "message_history"
	TypeKeepAlive      MessageType = "keep_alive"
	TypeUnknown        MessageType = "unknown"
)

// System subtypes.
const (
	SubtypeInit            = "init"
	SubtypeStatus          = "status"
	SubtypeCompactBoundary = "compact_boundary"
)

// Control request subtypes.
const (
	ControlCanUseTool   = "can_use_tool"
	ControlHookCallback = "hook_callback"
)

// Message is one parsed inbound line. The set of implementations is closed;
// anything the decoder does not recognise becomes an UnknownMessage.
type Message interface {
	Type() MessageType
	isMessage()
}

// ContentBlock is a single block inside an assistant message. Only the fields
// relevant to the block's Type are populated.
type ContentBlock struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`

	Thinking     string `json:"thinking,omitempty"`
	BudgetTokens *int   `json:"budget_tokens,omitempty"`
}

// Block types.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
	BlockThinking   = "thinking"
)

type Usage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

// ModelUsage is the per-model accounting attached to a result.
type ModelUsage struct {
	InputTokens   *int64   `json:"inputTokens,omitempty"`
	OutputTokens  *int64   `json:"outputTokens,omitempty"`
	ContextWindow *int64   `json:"contextWindow,omitempty"`
	CostUSD       *float64 `json:"costUSD,omitempty"`
}

type MCPServer struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// SystemMessage carries init, status and compact_boundary notices.
type SystemMessage struct {
	Subtype           string          `json:"subtype"`
	SessionID         string          `json:"session_id,omitempty"`
	UUID              string          `json:"uuid,omitempty"`
	CWD               string          `json:"cwd,omitempty"`
	Tools             []string        `json:"tools,omitempty"`
	MCPServers        []MCPServer     `json:"mcp_servers,omitempty"`
	Model             string          `json:"model,omitempty"`
	PermissionMode    string          `json:"permissionMode,omitempty"`
	APIKeySource      string          `json:"apiKeySource,omitempty"`
	ClaudeCodeVersion string          `json:"claude_code_version,omitempty"`
	SlashCommands     []string        `json:"slash_commands,omitempty"`
	Agents            []string        `json:"agents,omitempty"`
	Skills            []string        `json:"skills,omitempty"`
	OutputStyle       string          `json:"output_style,omitempty"`
	Status            json.RawMessage `json:"status,omitempty"`
}

// StatusValue reports the status field. present is false when the field was
// absent; null is true when it was an explicit JSON null.
func (m SystemMessage) StatusValue() (value string, null bool, present bool) {
	if len(m.Status) == 0 {
		return "", false, false
	}
	raw := strings.TrimSpace(string(m.Status))
	if raw == "null" {
		return "", true, true
	}
	var s string
	if err := json.Unmarshal(m.Status, &s); err != nil {
		return raw, false, true
	}
	return s, false, true
}

type AssistantBody struct {
	ID         string         `json:"id"`
	Type       string         `json:"type,omitempty"`
	Role       string         `json:"role,omitempty"`
	Model      string         `json:"model,omitempty"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason,omitempty"`
	Usage      *Usage         `json:"usage,omitempty"`
}

type AssistantMessage struct {
	Message         AssistantBody `json:"message"`
	ParentToolUseID *string       `json:"parent_tool_use_id,omitempty"`
	Error           string        `json:"error,omitempty"`
	UUID            string        `json:"uuid,omitempty"`
	SessionID       string        `json:"session_id,omitempty"`
}

type ResultMessage struct {
	Subtype           string                `json:"subtype"`
	IsError           bool                  `json:"is_error"`
	Result            string                `json:"result,omitempty"`
	Errors            []string              `json:"errors,omitempty"`
	DurationMS        *float64              `json:"duration_ms,omitempty"`
	DurationAPIMS     *float64              `json:"duration_api_ms,omitempty"`
	NumTurns          *int                  `json:"num_turns,omitempty"`
	TotalCostUSD      *float64              `json:"total_cost_usd,omitempty"`
	StopReason        string                `json:"stop_reason,omitempty"`
	Usage             *Usage                `json:"usage,omitempty"`
	ModelUsage        map[string]ModelUsage `json:"modelUsage,omitempty"`
	UUID              string                `json:"uuid,omitempty"`
	SessionID         string                `json:"session_id,omitempty"`
	TotalLinesAdded   *int                  `json:"total_lines_added,omitempty"`
	TotalLinesRemoved *int                  `json:"total_lines_removed,omitempty"`
}

// ContextUsedPercent derives the share of the context window consumed by the
// turn. Models without a known window are ignored; the largest share wins.
func (m ResultMessage) ContextUsedPercent() (int, bool) {
	best, found := 0, false
	for _, usage := range m.ModelUsage {
		if usage.InputTokens == nil || usage.OutputTokens == nil || usage.ContextWindow == nil {
			continue
		}
		window := *usage.ContextWindow
		if window <= 0 {
			continue
		}
		pct := int((*usage.InputTokens + *usage.OutputTokens) * 100 / window)
		if !found || pct > best {
			best = pct
		}
		found = true
	}
	return best, found
}

// StreamEventMessage wraps a partial streaming event; the payload stays raw.
type StreamEventMessage struct {
	Event           json.RawMessage `json:"event"`
	ParentToolUseID *string         `json:"parent_tool_use_id,omitempty"`
	UUID            string          `json:"uuid,omitempty"`
	SessionID       string          `json:"session_id,omitempty"`
}

type streamEventPayload struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

func (m StreamEventMessage) payload() streamEventPayload {
	var p streamEventPayload
	_ = json.Unmarshal(m.Event, &p)
	return p
}

// EventType returns event.type, e.g. "message_start" or "content_block_delta".
func (m StreamEventMessage) EventType() string {
	return m.payload().Type
}

// TextDelta returns the text of a content_block_delta/text_delta event.
func (m StreamEventMessage) TextDelta() (string, bool) {
	p := m.payload()
	if p.Type != "content_block_delta" || p.Delta.Type != "text_delta" {
		return "", false
	}
	return p.Delta.Text, true
}

type ControlRequest struct {
	Subtype               string            `json:"subtype"`
	ToolName              string            `json:"tool_name,omitempty"`
	Input                 json.RawMessage   `json:"input,omitempty"`
	ToolUseID             string            `json:"tool_use_id,omitempty"`
	Description           *string           `json:"description,omitempty"`
	PermissionSuggestions []json.RawMessage `json:"permission_suggestions,omitempty"`
	AgentID               string            `json:"agent_id,omitempty"`
	CallbackID            string            `json:"callback_id,omitempty"`
}

type ControlRequestMessage struct {
	RequestID string         `json:"request_id"`
	Request   ControlRequest `json:"request"`
}

type ToolProgressMessage struct {
	ToolUseID          string   `json:"tool_use_id"`
	ToolName           string   `json:"tool_name"`
	ParentToolUseID    *string  `json:"parent_tool_use_id,omitempty"`
	ElapsedTimeSeconds *float64 `json:"elapsed_time_seconds,omitempty"`
	UUID               string   `json:"uuid,omitempty"`
	SessionID          string   `json:"session_id,omitempty"`
}

type ToolUseSummaryMessage struct {
	Summary             string   `json:"summary"`
	PrecedingToolUseIDs []string `json:"preceding_tool_use_ids,omitempty"`
}

type AuthStatusMessage struct {
	IsAuthenticating bool     `json:"isAuthenticating"`
	Output           []string `json:"output,omitempty"`
	Error            *string  `json:"error,omitempty"`
}

// HistoryEntry is one replayed conversation message; Content may be a string
// or an array of content blocks.
type HistoryEntry struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Model   string          `json:"model,omitempty"`
}

type MessageHistoryMessage struct {
	Messages []HistoryEntry `json:"messages"`
}

type KeepAliveMessage struct{}

// UnknownMessage stands in for any line whose type is not recognised.
type UnknownMessage struct {
	RawType string
}

func (SystemMessage) Type() MessageType         { return TypeSystem }
func (AssistantMessage) Type() MessageType      { return TypeAssistant }
func (ResultMessage) Type() MessageType         { return TypeResult }
func (StreamEventMessage) Type() MessageType    { return TypeStreamEvent }
func (ControlRequestMessage) Type() MessageType { return TypeControlRequest }
func (ToolProgressMessage) Type() MessageType   { return TypeToolProgress }
func (ToolUseSummaryMessage) Type() MessageType { return TypeToolUseSummary }
func (AuthStatusMessage) Type() MessageType     { return TypeAuthStatus }
func (MessageHistoryMessage) Type() MessageType { return TypeMessageHistory }
func (KeepAliveMessage) Type() MessageType      { return TypeKeepAlive }
func (UnknownMessage) Type() MessageType        { return TypeUnknown }

func (SystemMessage) isMessage()         {}
func (AssistantMessage) isMessage()      {}
func (ResultMessage) isMessage()         {}
func (StreamEventMessage) isMessage()    {}
func (ControlRequestMessage) isMessage() {}
func (ToolProgressMessage) isMessage()   {}
func (ToolUseSummaryMessage) isMessage() {}
func (AuthStatusMessage) isMessage()     {}
func (MessageHistoryMessage) isMessage() {}
func (KeepAliveMessage) isMessage()      {}
func (UnknownMessage) isMessage()        {}
