package session

import "time"

// Persisted is the durable projection of a Session. Connection, streaming and
// pending-request state are not stored.
type Persisted struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	ConversationID     string        `json:"cli_session_id,omitempty"`
	CWD                string        `json:"cwd"`
	Model              string        `json:"model"`
	Version            string        `json:"version,omitempty"`
	PermissionMode     string        `json:"permission_mode"`
	EnvProfile         string        `json:"env_profile,omitempty"`
	TotalCostUSD       float64       `json:"total_cost_usd"`
	NumTurns           int           `json:"num_turns"`
	ContextUsedPercent int           `json:"context_used_percent"`
	LinesAdded         int           `json:"total_lines_added,omitempty"`
	LinesRemoved       int           `json:"total_lines_removed,omitempty"`
	Messages           []ChatMessage `json:"messages"`
	Tools              []string      `json:"tools"`
	Tasks              []TaskItem    `json:"tasks"`
	CreatedAt          time.Time     `json:"created_at"`
	Archived           bool          `json:"archived,omitempty"`
	Pinned             bool          `json:"pinned,omitempty"`
}

// ToPersisted snapshots the durable fields. Slices are copied so the result
// can be handed to another goroutine.
func (s *Session) ToPersisted() Persisted {
	return Persisted{
		ID:                 s.ID,
		Name:               s.Name,
		ConversationID:     s.ConversationID,
		CWD:                s.CWD,
		Model:              s.Model,
		Version:            s.Version,
		PermissionMode:     s.PermissionMode,
		EnvProfile:         s.EnvProfile,
		TotalCostUSD:       s.TotalCostUSD,
		NumTurns:           s.NumTurns,
		ContextUsedPercent: s.ContextUsedPercent,
		LinesAdded:         s.LinesAdded,
		LinesRemoved:       s.LinesRemoved,
		Messages:           append([]ChatMessage(nil), s.Messages...),
		Tools:              append([]string(nil), s.Tools...),
		Tasks:              append([]TaskItem(nil), s.Tasks...),
		CreatedAt:          s.CreatedAt,
		Archived:           s.Archived,
		Pinned:             s.Pinned,
	}
}

// FromPersisted restores a session. It starts disconnected and waiting for an
// agent, whatever state it was saved in.
func FromPersisted(p Persisted) *Session {
	s := New(p.ID, p.Name, p.CWD)
	s.ConversationID = p.ConversationID
	s.Model = p.Model
	s.Version = p.Version
	s.PermissionMode = p.PermissionMode
	s.EnvProfile = p.EnvProfile
	s.TotalCostUSD = p.TotalCostUSD
	s.NumTurns = p.NumTurns
	s.ContextUsedPercent = p.ContextUsedPercent
	s.LinesAdded = p.LinesAdded
	s.LinesRemoved = p.LinesRemoved
	s.Messages = p.Messages
	s.Tools = p.Tools
	s.Tasks = p.Tasks
	if !p.CreatedAt.IsZero() {
		s.CreatedAt = p.CreatedAt
	}
	s.Archived = p.Archived
	s.Pinned = p.Pinned
	return s
}
