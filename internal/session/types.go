package session

import (
	"encoding/json"
	"time"

	"companion/internal/protocol"
)

// Status is the lifecycle state of a session as seen by the user.
type Status int

const (
	// StatusWaitingForCLI: no agent connection yet, or the agent went away.
	StatusWaitingForCLI Status = iota
	StatusIdle
	StatusRunning
	StatusCompacting
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusCompacting:
		return "compacting"
	default:
		return "waiting"
	}
}

// Busy reports whether the agent is working and the view should animate.
func (s Status) Busy() bool {
	return s == StatusRunning || s == StatusCompacting
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is one entry in a session's transcript.
type ChatMessage struct {
	Role      Role                    `json:"role"`
	Content   string                  `json:"content"`
	Blocks    []protocol.ContentBlock `json:"content_blocks,omitempty"`
	Model     string                  `json:"model,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	// TaskDeleted is a tombstone; deleted tasks stay in the list.
	TaskDeleted TaskStatus = "deleted"
)

// ParseTaskStatus maps agent status strings; unknown values are pending.
func ParseTaskStatus(raw string) TaskStatus {
	switch TaskStatus(raw) {
	case TaskInProgress, TaskCompleted, TaskDeleted:
		return TaskStatus(raw)
	default:
		return TaskPending
	}
}

type TaskItem struct {
	ID          string     `json:"id"`
	Subject     string     `json:"subject"`
	Status      TaskStatus `json:"status"`
	Description string     `json:"description,omitempty"`
	ActiveForm  string     `json:"active_form,omitempty"`
	BlockedBy   []string   `json:"blocked_by,omitempty"`
}

// PendingPermission is an unanswered can_use_tool request.
type PendingPermission struct {
	RequestID   string
	ToolName    string
	Input       json.RawMessage
	Description string
	Suggestions []json.RawMessage
}

type QuestionOption struct {
	Label       string
	Description string
}

// OtherOptionLabel is appended to every question's options.
const OtherOptionLabel = "Other..."

type QuestionItem struct {
	Header      string
	Question    string
	Options     []QuestionOption
	MultiSelect bool
	Cursor      int
}

// PendingQuestion is an unanswered AskUserQuestion tool call. Questions are
// answered in order; Answers holds the labels chosen so far.
type PendingQuestion struct {
	ToolUseID string
	Questions []QuestionItem
	Current   int
	Answers   []string
}

// CurrentItem returns the question being answered, or nil.
func (q *PendingQuestion) CurrentItem() *QuestionItem {
	if q == nil || q.Current < 0 || q.Current >= len(q.Questions) {
		return nil
	}
	return &q.Questions[q.Current]
}

// ToolActivity is the in-flight tool indicator.
type ToolActivity struct {
	Name           string
	ElapsedSeconds float64
}

// GitInfo describes the repository a session works in.
type GitInfo struct {
	Branch     string
	IsWorktree bool
	RepoRoot   string
	Ahead      int
	Behind     int
}

// Sender delivers encoded NDJSON lines to the agent. Send fails softly once
// the connection is gone.
type Sender interface {
	Send(line string) error
}

// ProcessHandle lets the owner abort the agent process of a session.
type ProcessHandle interface {
	Abort()
}
