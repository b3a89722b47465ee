package session

import (
	"time"

	cerrors "companion/internal/errors"
	"companion/internal/protocol"
)

// ErrNotConnected is returned when an outbound message has no live connection.
var ErrNotConnected = cerrors.ErrNotConnected

// Session is one conversation with one agent process. It is owned by the
// event loop and must only be touched from that goroutine.
type Session struct {
	ID   string
	Name string
	// ConversationID is the agent-assigned id used for resume. Empty until the
	// first init handshake.
	ConversationID string
	CWD            string
	Model          string
	Version        string
	PermissionMode string
	EnvProfile     string
	CreatedAt      time.Time
	Archived       bool
	Pinned         bool

	TotalCostUSD       float64
	NumTurns           int
	ContextUsedPercent int
	LinesAdded         int
	LinesRemoved       int

	Messages      []ChatMessage
	Tools         []string
	SlashCommands []string
	Skills        []string
	MCPServers    []protocol.MCPServer
	Tasks         []TaskItem

	Status         Status
	Connected      bool
	InterruptSent  bool
	Streaming      string
	StreamTokens   int
	StreamStart    time.Time
	CurrentTool    *ToolActivity
	Git            GitInfo
	Authenticating bool

	Permission *PendingPermission
	Question   *PendingQuestion

	previousPermissionMode string
	permissionQueue        []PendingPermission
	questionQueue          []PendingQuestion
	queued                 []string
	lastAssistantID        string
	initialized            bool
	sender                 Sender
	process                ProcessHandle
	now                    func() time.Time
}

// New creates a session that is waiting for its agent to connect.
func New(id, name, cwd string) *Session {
	s := &Session{
		ID:     id,
		Name:   name,
		CWD:    cwd,
		Status: StatusWaitingForCLI,
		now:    time.Now,
	}
	s.CreatedAt = s.now()
	return s
}

// SetClock replaces the time source, for tests.
func (s *Session) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Session) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// Effects tells the owner what to do after a transition.
type Effects struct {
	Persist bool
	// Spawn asks for an agent process (resuming ConversationID when set).
	Spawn      bool
	RefreshGit bool
	Flash      string
}

// TargetSessionID is the id outbound messages are addressed to.
func (s *Session) TargetSessionID() string {
	if s.ConversationID != "" {
		return s.ConversationID
	}
	return s.ID
}

// QueuedCount is the number of user messages waiting for a connection.
func (s *Session) QueuedCount() int {
	return len(s.queued)
}

// PendingPermissions counts the visible request plus those queued behind it.
func (s *Session) PendingPermissions() int {
	n := len(s.permissionQueue)
	if s.Permission != nil {
		n++
	}
	return n
}

func (s *Session) HasProcess() bool {
	return s.process != nil
}

// SetProcess records the handle of a newly spawned agent.
func (s *Session) SetProcess(handle ProcessHandle) {
	s.process = handle
}

// ClearProcess forgets handle if it is still the current one. It reports
// whether anything was cleared.
func (s *Session) ClearProcess(handle ProcessHandle) bool {
	if s.process == nil || s.process != handle {
		return false
	}
	s.process = nil
	return true
}

// AbortProcess cancels the agent process, if any.
func (s *Session) AbortProcess() {
	if s.process != nil {
		s.process.Abort()
		s.process = nil
	}
}

func (s *Session) send(msg protocol.Outbound) error {
	if s.sender == nil {
		return ErrNotConnected
	}
	return s.sender.Send(protocol.MustEncode(msg))
}

// AddSystem appends a system notice to the transcript.
func (s *Session) AddSystem(text string) {
	s.appendMessage(ChatMessage{Role: RoleSystem, Content: text})
}

func (s *Session) appendMessage(msg ChatMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.clock()
	}
	s.Messages = append(s.Messages, msg)
}

func (s *Session) clearStreaming() {
	s.Streaming = ""
	s.StreamTokens = 0
}

// Attach binds a live connection. The session becomes Idle only if it has
// already completed a handshake in this process; otherwise it waits for init.
func (s *Session) Attach(sender Sender) Effects {
	s.sender = sender
	s.Connected = true
	if s.initialized {
		s.Status = StatusIdle
	}
	return Effects{}
}

// IsSender reports whether sender is the connection currently attached.
func (s *Session) IsSender(sender Sender) bool {
	return s.sender != nil && s.sender == sender
}

// Detach handles the loss of the agent connection. It is a no-op when the
// session was not connected.
func (s *Session) Detach() Effects {
	if !s.Connected {
		return Effects{}
	}
	s.Connected = false
	s.sender = nil
	s.Status = StatusWaitingForCLI
	s.InterruptSent = false
	s.CurrentTool = nil
	s.clearStreaming()
	if s.Permission != nil || s.Question != nil {
		s.Permission = nil
		s.permissionQueue = nil
		s.Question = nil
		s.questionQueue = nil
		s.AddSystem("Pending requests cancelled")
	}
	s.AddSystem("Agent disconnected")
	return Effects{Persist: true}
}

// Clear empties the visible transcript.
func (s *Session) Clear() {
	s.Messages = nil
	s.clearStreaming()
}

// SetCWD changes the working directory used by the next spawn.
func (s *Session) SetCWD(cwd string) Effects {
	s.CWD = cwd
	return Effects{Persist: true, RefreshGit: true}
}

func (s *Session) Rename(name string) Effects {
	s.Name = name
	return Effects{Persist: true}
}

func (s *Session) SetModel(model string) Effects {
	s.Model = model
	return Effects{Persist: true}
}
