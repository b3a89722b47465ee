package app

import (
	"companion/internal/bridge"
	"companion/internal/protocol"
	"companion/internal/session"
)

// Event is something that happened outside the loop: a bridge connection
// change, an agent message or a process exit.
type Event interface {
	isEvent()
}

type Connected struct {
	SessionID string
	Sender    session.Sender
}

type MessageReceived struct {
	SessionID string
	Message   protocol.Message
}

// Disconnected carries the sender of the connection that closed, so a late
// disconnect from a replaced connection can be told apart from the live one.
type Disconnected struct {
	SessionID string
	Sender    session.Sender
}

// ProcessExited reports the end of a spawned agent. Err is nil for a clean
// exit.
type ProcessExited struct {
	SessionID string
	Err       error
	handle    session.ProcessHandle
}

func (Connected) isEvent()       {}
func (MessageReceived) isEvent() {}
func (Disconnected) isEvent()    {}
func (ProcessExited) isEvent()   {}

// BridgeHandler forwards bridge callbacks into the loop.
type BridgeHandler struct {
	loop *Loop
}

func (l *Loop) BridgeHandler() bridge.Handler {
	return BridgeHandler{loop: l}
}

func (h BridgeHandler) Connected(sessionID string, out *bridge.Outbox) {
	h.loop.Post(Connected{SessionID: sessionID, Sender: out})
}

func (h BridgeHandler) Message(sessionID string, msg protocol.Message) {
	h.loop.Post(MessageReceived{SessionID: sessionID, Message: msg})
}

func (h BridgeHandler) Disconnected(sessionID string, out *bridge.Outbox) {
	h.loop.Post(Disconnected{SessionID: sessionID, Sender: out})
}
