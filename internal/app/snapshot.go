package app

import (
	"time"

	"companion/internal/protocol"
	"companion/internal/registry"
	"companion/internal/session"
)

// SessionView is a read-only copy of a session for rendering. Messages is
// only populated for the active session.
type SessionView struct {
	ID             string
	Name           string
	ConversationID string
	CWD            string
	Model          string
	Version        string
	PermissionMode string
	EnvProfile     string
	Archived       bool
	Pinned         bool

	Status         session.Status
	Connected      bool
	InterruptSent  bool
	Authenticating bool
	QueuedCount    int

	TotalCostUSD       float64
	NumTurns           int
	ContextUsedPercent int
	LinesAdded         int
	LinesRemoved       int

	Messages      []session.ChatMessage
	Streaming     string
	StreamTokens  int
	StreamStart   time.Time
	CurrentTool   *session.ToolActivity
	Tasks         []session.TaskItem
	Tools         []string
	SlashCommands []string
	MCPServers    []protocol.MCPServer
	Git           session.GitInfo

	Permission         *session.PendingPermission
	PendingPermissions int
	Question           *session.PendingQuestion
}

// Snapshot is the whole view state published after every dirty iteration.
type Snapshot struct {
	Sessions []SessionView
	// Visible indexes into Sessions, in navigation order.
	Visible  []int
	Active   *SessionView
	Flash    string
	Profiles []registry.Profile
	Port     int
	Tick     int
	Taken    time.Time
}

func viewOf(s *session.Session, full bool) SessionView {
	v := SessionView{
		ID:                 s.ID,
		Name:               s.Name,
		ConversationID:     s.ConversationID,
		CWD:                s.CWD,
		Model:              s.Model,
		Version:            s.Version,
		PermissionMode:     s.PermissionMode,
		EnvProfile:         s.EnvProfile,
		Archived:           s.Archived,
		Pinned:             s.Pinned,
		Status:             s.Status,
		Connected:          s.Connected,
		InterruptSent:      s.InterruptSent,
		Authenticating:     s.Authenticating,
		QueuedCount:        s.QueuedCount(),
		TotalCostUSD:       s.TotalCostUSD,
		NumTurns:           s.NumTurns,
		ContextUsedPercent: s.ContextUsedPercent,
		LinesAdded:         s.LinesAdded,
		LinesRemoved:       s.LinesRemoved,
		StreamTokens:       s.StreamTokens,
		StreamStart:        s.StreamStart,
		Git:                s.Git,
		PendingPermissions: s.PendingPermissions(),
	}
	if s.CurrentTool != nil {
		tool := *s.CurrentTool
		v.CurrentTool = &tool
	}
	if s.Permission != nil {
		perm := *s.Permission
		v.Permission = &perm
	}
	if s.Question != nil {
		q := *s.Question
		q.Questions = append([]session.QuestionItem(nil), q.Questions...)
		q.Answers = append([]string(nil), q.Answers...)
		v.Question = &q
	}
	if full {
		v.Messages = append([]session.ChatMessage(nil), s.Messages...)
		v.Streaming = s.Streaming
		v.Tasks = append([]session.TaskItem(nil), s.Tasks...)
		v.Tools = append([]string(nil), s.Tools...)
		v.SlashCommands = append([]string(nil), s.SlashCommands...)
		v.MCPServers = append([]protocol.MCPServer(nil), s.MCPServers...)
	}
	return v
}
