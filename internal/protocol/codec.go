package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ExcerptLimit bounds how much of a rejected line is kept for logging.
const ExcerptLimit = 200

// LineError describes a line that could not be decoded.
type LineError struct {
	Excerpt string
	Err     error
}

func (e LineError) Error() string {
	return fmt.Sprintf("decode %q: %v", e.Excerpt, e.Err)
}

func (e LineError) Unwrap() error { return e.Err }

// ParseLine decodes one NDJSON line. Lines with an unrecognised type decode
// to UnknownMessage; malformed JSON or a known type with a bad shape is an error.
func ParseLine(line []byte) (Message, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &envelope); err != nil {
		return nil, err
	}

	switch MessageType(envelope.Type) {
	case TypeSystem:
		return decodeAs[SystemMessage](line)
	case TypeAssistant:
		msg, err := decodeAs[AssistantMessage](line)
		if err != nil {
			return nil, err
		}
		if msg.(AssistantMessage).Message.ID == "" {
			return nil, fmt.Errorf("assistant message without message.id")
		}
		return msg, nil
	case TypeResult:
		return decodeAs[ResultMessage](line)
	case TypeStreamEvent:
		return decodeAs[StreamEventMessage](line)
	case TypeControlRequest:
		msg, err := decodeAs[ControlRequestMessage](line)
		if err != nil {
			return nil, err
		}
		if msg.(ControlRequestMessage).RequestID == "" {
			return nil, fmt.Errorf("control_request without request_id")
		}
		return msg, nil
	case TypeToolProgress:
		return decodeAs[ToolProgressMessage](line)
	case TypeToolUseSummary:
		return decodeAs[ToolUseSummaryMessage](line)
	case TypeAuthStatus:
		return decodeAs[AuthStatusMessage](line)
	case TypeMessageHistory:
		return decodeAs[MessageHistoryMessage](line)
	case TypeKeepAlive:
		return KeepAliveMessage{}, nil
	default:
		return UnknownMessage{RawType: envelope.Type}, nil
	}
}

func decodeAs[T Message](line []byte) (Message, error) {
	var msg T
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// DecodeFrame splits a websocket text frame on newlines and decodes every
// non-blank line. Bad lines are reported and skipped; the rest still decode.
func DecodeFrame(frame []byte) ([]Message, []LineError) {
	var (
		messages []Message
		failures []LineError
	)
	for _, line := range bytes.Split(frame, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		msg, err := ParseLine(line)
		if err != nil {
			failures = append(failures, LineError{Excerpt: Truncate(string(line), ExcerptLimit), Err: err})
			continue
		}
		messages = append(messages, msg)
	}
	return messages, failures
}

// Encode serialises an outbound message as one newline-terminated line.
func Encode(msg Outbound) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

// MustEncode is Encode for messages built by this package, which always
// serialise; a failure is a programming error.
func MustEncode(msg Outbound) string {
	line, err := Encode(msg)
	if err != nil {
		panic(fmt.Sprintf("protocol: encode %T: %v", msg, err))
	}
	return line
}

// EnsureNewline terminates line with '\n' if it is not already.
func EnsureNewline(line string) string {
	if strings.HasSuffix(line, "\n") {
		return line
	}
	return line + "\n"
}
