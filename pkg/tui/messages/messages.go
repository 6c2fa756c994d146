// Package messages defines the tea messages that carry engine callbacks
// and finished engine commands into the TUI.
package messages

import (
	"time"

	"github.com/linlay/agent-webclient/pkg/actions"
	"github.com/linlay/agent-webclient/pkg/frontendtool"
	"github.com/linlay/agent-webclient/pkg/plan"
	"github.com/linlay/agent-webclient/pkg/render"
	"github.com/linlay/agent-webclient/pkg/session"
)

// Engine callbacks
type (
	FrameMsg          struct{ Frame render.Frame }
	ScrollToBottomMsg struct{}
	StatusMsg         struct{ Status session.Status }
	PlanMsg           struct{ View plan.View }
	SessionMsg        struct{ Snapshot session.Snapshot }
	DebugMsg          struct{ Line string }
	InputLockedMsg    struct{ Locked bool }
	ToolInitMsg       struct{ Init frontendtool.InitMessage }
	PendingMsg        struct{ Pending []frontendtool.Pending }
	ThemeMsg          struct{ Theme string }
	FireworksMsg      struct{ Duration time.Duration }
	ModalMsg          struct{ Modal actions.Modal }
)

// ToolMsg shows the active frontend tool, or hides it when Tool is nil.
type ToolMsg struct {
	Tool *frontendtool.Active
}

// Finished engine commands
type (
	SendDoneMsg    struct{ Err error }
	RefreshDoneMsg struct{ Err error }
	SubmitDoneMsg  struct{ Err error }
	CopyDoneMsg    struct{ Err error }
)

type LoadDoneMsg struct {
	ChatID string
	Err    error
}

// FireworksDoneMsg ends a fireworks show. Seq ignores stale timers.
type FireworksDoneMsg struct {
	Seq int
}
