package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLineSystemInit(t *testing.T) {
	line := `{"type":"system","subtype":"init","session_id":"conv-1","cwd":"/tmp","tools":["Bash","Read"],"model":"opus","permissionMode":"default","claude_code_version":"2.0.1","slash_commands":["/clear"]}`

	msg, err := ParseLine([]byte(line))
	require.NoError(t, err)
	sys, ok := msg.(SystemMessage)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, SubtypeInit, sys.Subtype)
	assert.Equal(t, "conv-1", sys.SessionID)
	assert.Equal(t, []string{"Bash", "Read"}, sys.Tools)
	assert.Equal(t, "default", sys.PermissionMode)
	assert.Equal(t, "2.0.1", sys.ClaudeCodeVersion)

	_, _, present := sys.StatusValue()
	assert.False(t, present)
}

func TestSystemStatusValue(t *testing.T) {
	msg, err := ParseLine([]byte(`{"type":"system","subtype":"status","status":"compacting"}`))
	require.NoError(t, err)
	value, null, present := msg.(SystemMessage).StatusValue()
	assert.Equal(t, "compacting", value)
	assert.False(t, null)
	assert.True(t, present)

	msg, err = ParseLine([]byte(`{"type":"system","subtype":"status","status":null}`))
	require.NoError(t, err)
	_, null, present = msg.(SystemMessage).StatusValue()
	assert.True(t, null)
	assert.True(t, present)
}

func TestParseLineAssistantBlocks(t *testing.T) {
	line := `{"type":"assistant","message":{"id":"msg_1","model":"opus","content":[{"type":"thinking","thinking":"hmm"},{"type":"text","text":"Hello"},{"type":"tool_use","id":"tu_1","name":"Bash","input":{"command":"ls"}},{"type":"server_tool_use","id":"x"}]}}`

	msg, err := ParseLine([]byte(line))
	require.NoError(t, err)
	asst := msg.(AssistantMessage)
	require.Len(t, asst.Message.Content, 4)
	assert.Equal(t, "msg_1", asst.Message.ID)
	assert.Equal(t, BlockToolUse, asst.Message.Content[2].Type)
	assert.JSONEq(t, `{"command":"ls"}`, string(asst.Message.Content[2].Input))
	assert.Equal(t, "server_tool_use", asst.Message.Content[3].Type)
	assert.Equal(t, "hmm\nHello", ExtractText(asst.Message.Content))
}

func TestParseLineRejectsAssistantWithoutID(t *testing.T) {
	_, err := ParseLine([]byte(`{"type":"assistant","message":{"content":[]}}`))
	require.Error(t, err)
}

func TestParseLineResultContextPercent(t *testing.T) {
	line := `{"type":"result","subtype":"success","is_error":false,"num_turns":3,"total_cost_usd":0.42,"modelUsage":{"opus":{"inputTokens":50000,"outputTokens":10000,"contextWindow":200000}}}`

	msg, err := ParseLine([]byte(line))
	require.NoError(t, err)
	res := msg.(ResultMessage)
	require.NotNil(t, res.NumTurns)
	assert.Equal(t, 3, *res.NumTurns)
	pct, ok := res.ContextUsedPercent()
	require.True(t, ok)
	assert.Equal(t, 30, pct)
}

func TestContextPercentIgnoresUnknownWindow(t *testing.T) {
	msg, err := ParseLine([]byte(`{"type":"result","subtype":"success","is_error":false,"modelUsage":{"haiku":{"inputTokens":10,"outputTokens":5}}}`))
	require.NoError(t, err)
	_, ok := msg.(ResultMessage).ContextUsedPercent()
	assert.False(t, ok)
}

func TestParseLineControlRequest(t *testing.T) {
	line := `{"type":"control_request","request_id":"r1","request":{"subtype":"can_use_tool","tool_name":"Bash","input":{"command":"ls -la"}}}`

	msg, err := ParseLine([]byte(line))
	require.NoError(t, err)
	req := msg.(ControlRequestMessage)
	assert.Equal(t, "r1", req.RequestID)
	assert.Equal(t, ControlCanUseTool, req.Request.Subtype)
	assert.Equal(t, "Bash", req.Request.ToolName)
}

func TestParseLineStreamEventDelta(t *testing.T) {
	msg, err := ParseLine([]byte(`{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"Hel"}}}`))
	require.NoError(t, err)
	ev := msg.(StreamEventMessage)
	text, ok := ev.TextDelta()
	require.True(t, ok)
	assert.Equal(t, "Hel", text)

	msg, err = ParseLine([]byte(`{"type":"stream_event","event":{"type":"message_start"}}`))
	require.NoError(t, err)
	assert.Equal(t, "message_start", msg.(StreamEventMessage).EventType())
	_, ok = msg.(StreamEventMessage).TextDelta()
	assert.False(t, ok)
}

func TestParseLineUnknownAndKeepAlive(t *testing.T) {
	msg, err := ParseLine([]byte(`{"type":"user","message":{}}`))
	require.NoError(t, err)
	assert.Equal(t, UnknownMessage{RawType: "user"}, msg)

	msg, err = ParseLine([]byte(`{"type":"keep_alive"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeKeepAlive, msg.Type())
}

func TestDecodeFrameSkipsBadLines(t *testing.T) {
	frame := "{\"type\":\"keep_alive\"}\n\nnot json at all\n{\"type\":\"tool_use_summary\",\"summary\":\"ran ls\"}\n"

	messages, failures := DecodeFrame([]byte(frame))
	require.Len(t, messages, 2)
	require.Len(t, failures, 1)
	assert.Equal(t, "not json at all", failures[0].Excerpt)
	assert.Equal(t, "ran ls", messages[1].(ToolUseSummaryMessage).Summary)
}

func TestDecodeFrameExcerptIsBounded(t *testing.T) {
	bad := "{" + strings.Repeat("x", 500)
	_, failures := DecodeFrame([]byte(bad))
	require.Len(t, failures, 1)
	assert.Equal(t, ExcerptLimit+3, len([]rune(failures[0].Excerpt)))
}

func TestEncodeUserMessage(t *testing.T) {
	line := MustEncode(NewUserMessage("hello", "conv-1"))
	require.True(t, strings.HasSuffix(line, "\n"))
	assert.JSONEq(t, `{"type":"user","message":{"role":"user","content":"hello"},"parent_tool_use_id":null,"session_id":"conv-1"}`, line)
}

func TestEncodeImageMessage(t *testing.T) {
	line := MustEncode(NewImageMessage("look", "QUJD", "image/png", "s1"))
	assert.JSONEq(t, `{"type":"user","message":{"role":"user","content":[{"type":"text","text":"look"},{"type":"image","source":{"type":"base64","media_type":"image/png","data":"QUJD"}}]},"parent_tool_use_id":null,"session_id":"s1"}`, line)

	line = MustEncode(NewImageMessage("", "QUJD", "image/jpeg", "s1"))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	content := decoded["message"].(map[string]any)["content"].([]any)
	assert.Len(t, content, 1)
}

func TestEncodeControlResponses(t *testing.T) {
	allow := MustEncode(NewAllowResponse("r1", json.RawMessage(`{"command":"ls -la"}`)))
	assert.JSONEq(t, `{"type":"control_response","response":{"subtype":"success","request_id":"r1","response":{"behavior":"allow","updatedInput":{"command":"ls -la"}}}}`, allow)

	deny := MustEncode(NewDenyResponse("r2", ""))
	assert.JSONEq(t, `{"type":"control_response","response":{"subtype":"success","request_id":"r2","response":{"behavior":"deny","message":"Denied by user"}}}`, deny)

	answer := MustEncode(NewAnswerResponse("tu_9", "Yes"))
	assert.JSONEq(t, `{"type":"control_response","response":{"subtype":"success","request_id":"tu_9","response":{"result":"Yes"}}}`, answer)
}

func TestEncodeInterruptAndMode(t *testing.T) {
	first := NewInterrupt()
	second := NewInterrupt()
	assert.NotEqual(t, first.RequestID, second.RequestID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(MustEncode(first)), &decoded))
	assert.Equal(t, "control_request", decoded["type"])
	assert.Equal(t, map[string]any{"subtype": "interrupt"}, decoded["request"])

	assert.JSONEq(t, `{"type":"set_permission_mode","mode":"plan","session_id":"c"}`, MustEncode(NewSetPermissionMode("plan", "c")))
}
