package session

import (
	"fmt"
	"strings"
	"time"

	"companion/internal/protocol"
)

// Handle applies one inbound agent message and reports follow-up work.
func (s *Session) Handle(msg protocol.Message) Effects {
	switch m := msg.(type) {
	case protocol.SystemMessage:
		return s.handleSystem(m)
	case protocol.AssistantMessage:
		return s.handleAssistant(m)
	case protocol.ResultMessage:
		return s.handleResult(m)
	case protocol.StreamEventMessage:
		return s.handleStreamEvent(m)
	case protocol.ControlRequestMessage:
		return s.handleControlRequest(m)
	case protocol.ToolProgressMessage:
		elapsed := 0.0
		if m.ElapsedTimeSeconds != nil {
			elapsed = *m.ElapsedTimeSeconds
		}
		s.CurrentTool = &ToolActivity{Name: m.ToolName, ElapsedSeconds: elapsed}
	case protocol.ToolUseSummaryMessage:
		s.AddSystem(m.Summary)
	case protocol.AuthStatusMessage:
		s.Authenticating = m.IsAuthenticating
		if m.Error != nil {
			s.AddSystem("Auth error: " + *m.Error)
		}
	case protocol.MessageHistoryMessage:
		s.applyHistory(m)
	}
	return Effects{}
}

func (s *Session) handleSystem(msg protocol.SystemMessage) Effects {
	switch msg.Subtype {
	case protocol.SubtypeInit:
		return s.handleInit(msg)
	case protocol.SubtypeStatus:
		value, null, present := msg.StatusValue()
		switch {
		case !present:
		case value == "compacting":
			s.Status = StatusCompacting
		case null:
			s.Status = StatusIdle
		}
	case protocol.SubtypeCompactBoundary:
		s.AddSystem("Context compacted")
	}
	return Effects{}
}

// handleInit captures the agent's identity. Messages queued while
// disconnected are flushed, but only the most recent one is sent: the earlier
// ones stay in the transcript without becoming separate turns.
func (s *Session) handleInit(msg protocol.SystemMessage) Effects {
	firstInit := s.Version == ""
	if msg.SessionID != "" {
		s.ConversationID = msg.SessionID
	}
	if msg.Model != "" {
		s.Model = msg.Model
	}
	if msg.CWD != "" {
		s.CWD = msg.CWD
	}
	if msg.PermissionMode != "" {
		s.PermissionMode = msg.PermissionMode
	}
	if msg.ClaudeCodeVersion != "" {
		s.Version = msg.ClaudeCodeVersion
	}
	if msg.Tools != nil {
		s.Tools = msg.Tools
	}
	if msg.SlashCommands != nil {
		s.SlashCommands = msg.SlashCommands
	}
	if msg.Skills != nil {
		s.Skills = msg.Skills
	}
	if msg.MCPServers != nil {
		s.MCPServers = msg.MCPServers
	}
	s.Status = StatusIdle
	s.initialized = true

	if firstInit {
		s.AddSystem(fmt.Sprintf("Connected to Claude Code %s (model: %s)", s.Version, s.Model))
	}

	effects := Effects{Persist: true, RefreshGit: true}
	if len(s.queued) > 0 {
		last := s.queued[len(s.queued)-1]
		if err := s.send(protocol.NewUserMessage(last, s.TargetSessionID())); err != nil {
			effects.Flash = "Send failed: " + err.Error()
		} else {
			s.queued = nil
			s.Status = StatusRunning
			s.clearStreaming()
		}
	}
	return effects
}

func (s *Session) handleAssistant(msg protocol.AssistantMessage) Effects {
	// The agent repeats assistant messages; only the first copy is recorded.
	if msg.Message.ID == s.lastAssistantID {
		s.clearStreaming()
		return Effects{}
	}
	s.lastAssistantID = msg.Message.ID

	blocks := msg.Message.Content
	s.applyTaskTools(blocks)
	s.extractQuestion(blocks)

	s.appendMessage(ChatMessage{
		Role:    RoleAssistant,
		Content: protocol.ExtractText(blocks),
		Blocks:  blocks,
		Model:   msg.Message.Model,
	})
	s.clearStreaming()
	s.Status = StatusRunning
	return Effects{}
}

func (s *Session) handleResult(msg protocol.ResultMessage) Effects {
	if msg.TotalCostUSD != nil {
		s.TotalCostUSD = *msg.TotalCostUSD
	}
	if msg.NumTurns != nil {
		s.NumTurns = *msg.NumTurns
	}
	if msg.TotalLinesAdded != nil {
		s.LinesAdded = *msg.TotalLinesAdded
	}
	if msg.TotalLinesRemoved != nil {
		s.LinesRemoved = *msg.TotalLinesRemoved
	}
	if pct, ok := msg.ContextUsedPercent(); ok {
		s.ContextUsedPercent = pct
	}
	if msg.IsError && len(msg.Errors) > 0 {
		s.AddSystem("Error: " + strings.Join(msg.Errors, ", "))
	}

	s.clearStreaming()
	s.CurrentTool = nil
	s.StreamStart = time.Time{}
	s.Status = StatusIdle
	s.InterruptSent = false
	return Effects{Persist: true}
}

func (s *Session) handleStreamEvent(msg protocol.StreamEventMessage) Effects {
	if msg.EventType() == "message_start" {
		s.Status = StatusRunning
		s.StreamStart = s.clock()
		s.StreamTokens = 0
		return Effects{}
	}
	if text, ok := msg.TextDelta(); ok {
		s.Streaming += text
		s.StreamTokens += protocol.EstimateTokens(text)
	}
	return Effects{}
}

func (s *Session) handleControlRequest(msg protocol.ControlRequestMessage) Effects {
	if msg.Request.Subtype != protocol.ControlCanUseTool {
		return Effects{}
	}
	summary := protocol.FormatToolSummary(msg.Request.ToolName, msg.Request.Input)
	perm := PendingPermission{
		RequestID:   msg.RequestID,
		ToolName:    msg.Request.ToolName,
		Input:       msg.Request.Input,
		Description: strings.TrimSpace(msg.Request.ToolName + " " + summary),
		Suggestions: msg.Request.PermissionSuggestions,
	}
	if s.Permission == nil {
		s.Permission = &perm
	} else {
		s.permissionQueue = append(s.permissionQueue, perm)
	}
	return Effects{}
}

func (s *Session) applyHistory(msg protocol.MessageHistoryMessage) {
	for _, entry := range msg.Messages {
		role := RoleSystem
		switch entry.Role {
		case "user":
			role = RoleUser
		case "assistant", "":
			role = RoleAssistant
		}
		text := protocol.ExtractToolResultText(entry.Content)
		if text == "" {
			continue
		}
		s.appendMessage(ChatMessage{Role: role, Content: text, Model: entry.Model})
	}
}
