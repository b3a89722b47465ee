package protocol

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Outbound is a message the companion writes to the agent.
type Outbound interface {
	isOutbound()
}

// UserContent is the message body of a user turn. Content is either a plain
// string or a slice of typed blocks.
type UserContent struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type UserMessage struct {
	Type            string      `json:"type"`
	Message         UserContent `json:"message"`
	ParentToolUseID *string     `json:"parent_tool_use_id"`
	SessionID       string      `json:"session_id"`
}

// TextBlock and ImageBlock make up multi-part user content.
type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type ImageBlock struct {
	Type   string      `json:"type"`
	Source ImageSource `json:"source"`
}

// NewUserMessage builds a plain text user turn addressed to sessionID.
func NewUserMessage(text, sessionID string) UserMessage {
	return UserMessage{
		Type:      "user",
		Message:   UserContent{Role: "user", Content: text},
		SessionID: sessionID,
	}
}

// NewImageMessage builds a user turn carrying a base64 image, preceded by a
// text block when text is non-empty.
func NewImageMessage(text, data, mediaType, sessionID string) UserMessage {
	blocks := make([]any, 0, 2)
	if text != "" {
		blocks = append(blocks, TextBlock{Type: BlockText, Text: text})
	}
	blocks = append(blocks, ImageBlock{
		Type:   "image",
		Source: ImageSource{Type: "base64", MediaType: mediaType, Data: data},
	})
	return UserMessage{
		Type:      "user",
		Message:   UserContent{Role: "user", Content: blocks},
		SessionID: sessionID,
	}
}

type ControlResponseBody struct {
	Subtype   string `json:"subtype"`
	RequestID string `json:"request_id"`
	Response  any    `json:"response"`
}

type ControlResponse struct {
	Type     string              `json:"type"`
	Response ControlResponseBody `json:"response"`
}

type permissionAllow struct {
	Behavior     string          `json:"behavior"`
	UpdatedInput json.RawMessage `json:"updatedInput"`
}

type permissionDeny struct {
	Behavior string `json:"behavior"`
	Message  string `json:"message"`
}

type questionAnswer struct {
	Result string `json:"result"`
}

// DenyMessage is the reason reported when the user refuses a tool.
const DenyMessage = "Denied by user"

func newControlResponse(requestID string, payload any) ControlResponse {
	return ControlResponse{
		Type: "control_response",
		Response: ControlResponseBody{
			Subtype:   "success",
			RequestID: requestID,
			Response:  payload,
		},
	}
}

// NewAllowResponse approves a can_use_tool request, echoing the original input.
func NewAllowResponse(requestID string, input json.RawMessage) ControlResponse {
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	return newControlResponse(requestID, permissionAllow{Behavior: "allow", UpdatedInput: input})
}

func NewDenyResponse(requestID, message string) ControlResponse {
	if message == "" {
		message = DenyMessage
	}
	return newControlResponse(requestID, permissionDeny{Behavior: "deny", Message: message})
}

// NewAnswerResponse answers an AskUserQuestion tool call, correlated by its tool_use id.
func NewAnswerResponse(toolUseID, label string) ControlResponse {
	return newControlResponse(toolUseID, questionAnswer{Result: label})
}

type ControlRequestBody struct {
	Subtype string `json:"subtype"`
}

type OutboundControlRequest struct {
	Type      string             `json:"type"`
	RequestID string             `json:"request_id"`
	Request   ControlRequestBody `json:"request"`
}

// NewInterrupt builds an interrupt request with a fresh request id.
func NewInterrupt() OutboundControlRequest {
	return OutboundControlRequest{
		Type:      "control_request",
		RequestID: uuid.NewString(),
		Request:   ControlRequestBody{Subtype: "interrupt"},
	}
}

type SetPermissionMode struct {
	Type      string `json:"type"`
	Mode      string `json:"mode"`
	SessionID string `json:"session_id"`
}

func NewSetPermissionMode(mode, sessionID string) SetPermissionMode {
	return SetPermissionMode{Type: "set_permission_mode", Mode: mode, SessionID: sessionID}
}

func (UserMessage) isOutbound()            {}
func (ControlResponse) isOutbound()        {}
func (OutboundControlRequest) isOutbound() {}
func (SetPermissionMode) isOutbound()      {}
