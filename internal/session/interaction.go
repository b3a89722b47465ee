package session

import (
	"errors"
	"strings"

	"companion/internal/protocol"
)

var (
	ErrNoPermission = errors.New("no pending permission request")
	ErrNoQuestion   = errors.New("no pending question")
	ErrBadOption    = errors.New("no such option")
)

const (
	PlanMode           = "plan"
	DefaultPermissions = "default"
)

// SubmitText records a user message and delivers it, or queues it until the
// agent is ready. A disconnected session with a known conversation and no
// live process asks for a resume spawn.
func (s *Session) SubmitText(text string) Effects {
	s.appendMessage(ChatMessage{Role: RoleUser, Content: text})

	if s.sender != nil {
		if err := s.send(protocol.NewUserMessage(text, s.TargetSessionID())); err == nil {
			s.Status = StatusRunning
			s.clearStreaming()
			return Effects{}
		}
	}

	s.queued = append(s.queued, text)
	if !s.Connected && s.ConversationID != "" && s.process == nil {
		s.AddSystem("Resuming session...")
		return Effects{Spawn: true}
	}
	return Effects{}
}

// SubmitImage sends an image turn. Images are never queued.
func (s *Session) SubmitImage(text, data, mediaType string) Effects {
	label := "[image]"
	if text != "" {
		label += " " + text
	}
	if err := s.send(protocol.NewImageMessage(text, data, mediaType, s.TargetSessionID())); err != nil {
		return Effects{Flash: "Image not sent: " + err.Error()}
	}
	s.appendMessage(ChatMessage{Role: RoleUser, Content: label})
	s.Status = StatusRunning
	s.clearStreaming()
	return Effects{}
}

type permissionDecision int

const (
	decisionAllow permissionDecision = iota
	decisionDeny
	decisionAlwaysAllow
)

func (s *Session) Approve() (Effects, error)     { return s.resolvePermission(decisionAllow) }
func (s *Session) Deny() (Effects, error)        { return s.resolvePermission(decisionDeny) }
func (s *Session) AlwaysAllow() (Effects, error) { return s.resolvePermission(decisionAlwaysAllow) }

// resolvePermission answers the visible request exactly once and surfaces the
// next queued request, if any.
func (s *Session) resolvePermission(decision permissionDecision) (Effects, error) {
	perm := s.Permission
	if perm == nil {
		return Effects{}, ErrNoPermission
	}
	s.Permission = nil
	if len(s.permissionQueue) > 0 {
		next := s.permissionQueue[0]
		s.permissionQueue = s.permissionQueue[1:]
		s.Permission = &next
	}

	var (
		msg  protocol.Outbound
		note string
	)
	switch decision {
	case decisionDeny:
		msg = protocol.NewDenyResponse(perm.RequestID, protocol.DenyMessage)
		note = "[denied] "
	case decisionAlwaysAllow:
		msg = protocol.NewAllowResponse(perm.RequestID, perm.Input)
		note = "[always-allow] "
	default:
		msg = protocol.NewAllowResponse(perm.RequestID, perm.Input)
		note = "[approved] "
	}
	s.AddSystem(note + perm.ToolName)

	if err := s.send(msg); err != nil {
		return Effects{Flash: "Response not delivered: " + err.Error()}, err
	}
	return Effects{}, nil
}

// MoveQuestionCursor moves the highlighted option, clamped to the list.
func (s *Session) MoveQuestionCursor(delta int) error {
	item := s.Question.CurrentItem()
	if item == nil {
		return ErrNoQuestion
	}
	cursor := item.Cursor + delta
	if cursor < 0 {
		cursor = 0
	}
	if last := len(item.Options) - 1; cursor > last {
		cursor = last
	}
	item.Cursor = cursor
	return nil
}

// SelectQuestionOption picks option n (1-based) and confirms it.
func (s *Session) SelectQuestionOption(n int) (Effects, error) {
	item := s.Question.CurrentItem()
	if item == nil {
		return Effects{}, ErrNoQuestion
	}
	if n < 1 || n > len(item.Options) {
		return Effects{}, ErrBadOption
	}
	item.Cursor = n - 1
	return s.ConfirmQuestion()
}

// ConfirmQuestion answers the current sub-question with the highlighted
// option. Once every sub-question is answered a single correlated response
// carrying the chosen labels is sent.
func (s *Session) ConfirmQuestion() (Effects, error) {
	q := s.Question
	item := q.CurrentItem()
	if item == nil {
		return Effects{}, ErrNoQuestion
	}
	q.Answers = append(q.Answers, item.Options[item.Cursor].Label)
	q.Current++
	if q.Current < len(q.Questions) {
		return Effects{}, nil
	}

	answer := strings.Join(q.Answers, "\n")
	s.nextQuestion()
	s.AddSystem("[answered] " + strings.ReplaceAll(answer, "\n", ", "))
	if err := s.send(protocol.NewAnswerResponse(q.ToolUseID, answer)); err != nil {
		return Effects{Flash: "Answer not delivered: " + err.Error()}, err
	}
	return Effects{}, nil
}

// DismissQuestion drops the current question without answering the agent.
func (s *Session) DismissQuestion() error {
	if s.Question == nil {
		return ErrNoQuestion
	}
	s.nextQuestion()
	s.AddSystem("[question dismissed]")
	return nil
}

func (s *Session) nextQuestion() {
	s.Question = nil
	if len(s.questionQueue) > 0 {
		next := s.questionQueue[0]
		s.questionQueue = s.questionQueue[1:]
		s.Question = &next
	}
}

// Interrupt asks the agent to stop the current turn. Only one interrupt is
// sent per turn; it reports whether one was sent.
func (s *Session) Interrupt() bool {
	if s.Status != StatusRunning || s.InterruptSent || s.sender == nil {
		return false
	}
	if err := s.send(protocol.NewInterrupt()); err != nil {
		return false
	}
	s.InterruptSent = true
	s.AddSystem("Interrupt sent")
	return true
}

// SetPermissionMode records mode and tells a connected agent about it.
func (s *Session) SetPermissionMode(mode string) Effects {
	s.PermissionMode = mode
	effects := Effects{Persist: true}
	if s.sender != nil {
		if err := s.send(protocol.NewSetPermissionMode(mode, s.TargetSessionID())); err != nil {
			effects.Flash = "Mode not delivered: " + err.Error()
		}
	}
	return effects
}

// TogglePlanMode switches into plan mode, remembering the current mode, or
// restores the remembered mode.
func (s *Session) TogglePlanMode() Effects {
	if s.PermissionMode == PlanMode {
		prev := s.previousPermissionMode
		if prev == "" {
			prev = DefaultPermissions
		}
		s.previousPermissionMode = ""
		return s.SetPermissionMode(prev)
	}
	s.previousPermissionMode = s.PermissionMode
	if s.previousPermissionMode == "" {
		s.previousPermissionMode = DefaultPermissions
	}
	return s.SetPermissionMode(PlanMode)
}
