package app

// Action is a user intent decoded by the terminal front-end.
type Action interface {
	isAction()
}

type SendText struct{ Text string }

// SendImage carries base64 image data with an optional caption.
type SendImage struct {
	Text      string
	Data      string
	MediaType string
}

type ApprovePermission struct{}
type DenyPermission struct{}
type AlwaysAllowPermission struct{}

// SelectQuestionOption picks option N (1-based) of the current question.
type SelectQuestionOption struct{ N int }

type MoveQuestionCursor struct{ Delta int }
type ConfirmQuestion struct{}
type DismissQuestion struct{}

// Interrupt stops the running turn of the active session.
type Interrupt struct{}

type TogglePlanMode struct{}

// SwitchSession activates the Index-th visible session (0-based).
type SwitchSession struct{ Index int }

type NextSession struct{}
type PrevSession struct{}

// RunCommand executes a ':' command line, without the colon.
type RunCommand struct{ Text string }

type Quit struct{}

func (SendText) isAction()              {}
func (SendImage) isAction()             {}
func (ApprovePermission) isAction()     {}
func (DenyPermission) isAction()        {}
func (AlwaysAllowPermission) isAction() {}
func (SelectQuestionOption) isAction()  {}
func (MoveQuestionCursor) isAction()    {}
func (ConfirmQuestion) isAction()       {}
func (DismissQuestion) isAction()       {}
func (Interrupt) isAction()             {}
func (TogglePlanMode) isAction()        {}
func (SwitchSession) isAction()         {}
func (NextSession) isAction()           {}
func (PrevSession) isAction()           {}
func (RunCommand) isAction()            {}
func (Quit) isAction()                  {}
