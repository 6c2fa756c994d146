package session

import (
	"github.com/linlay/agent-webclient/pkg/api"
	"github.com/linlay/agent-webclient/pkg/plan"
)

const (
	// MaxEvents bounds the raw event log.
	MaxEvents = 1000
	// MaxDebugLines bounds the debug sink.
	MaxDebugLines = 220
)

// Source tells the reducer whether an event is being streamed or replayed.
type Source int

const (
	SourceLive Source = iota
	SourceHistory
)

func (s Source) String() string {
	if s == SourceHistory {
		return "history"
	}
	return "live"
}

// ToolState accumulates what is known about one tool invocation of the
// current run.
type ToolState struct {
	ToolID      string
	ArgsBuffer  string
	Params      map[string]any
	ToolName    string
	ToolType    string
	ToolKey     string
	ToolAPI     string
	ToolTimeout *int64
	Description string
	RunID       string
}

// ActionState accumulates the streamed arguments of one action.
type ActionState struct {
	ActionID   string
	ActionName string
	ArgsBuffer string
}

// Status is the one-line status shown by hosts.
type Status struct {
	Text  string
	Error bool
}

// Snapshot is the conversation-level state hosts display outside the
// timeline.
type Snapshot struct {
	ChatID      string
	RunID       string
	RequestID   string
	Streaming   bool
	LockedAgent string
	Agents      []api.Agent
	Chats       []api.Chat
}

// Observer receives state changes that are not timeline nodes. Methods are
// called with the engine lock held and must not call back into the Engine.
type Observer interface {
	StatusChanged(Status)
	PlanChanged(plan.View)
	SessionChanged(Snapshot)
	DebugLogged(line string)
}

type NopObserver struct{}

func (NopObserver) StatusChanged(Status)    {}
func (NopObserver) PlanChanged(plan.View)   {}
func (NopObserver) SessionChanged(Snapshot) {}
func (NopObserver) DebugLogged(string)      {}

// state is everything the reducer mutates besides the timeline store and
// the collaborating trackers.
type state struct {
	chatID      string
	runID       string
	requestID   string
	streaming   bool
	lockedAgent string

	agents []api.Agent
	chats  []api.Chat

	status Status
	events []api.Event
	debug  []string

	tools           map[string]*ToolState
	actions         map[string]*ActionState
	executedActions map[string]struct{}

	activeReasoningKey string
	reasoningTimers    map[string]string
}

func newState() state {
	return state{
		tools:           make(map[string]*ToolState),
		actions:         make(map[string]*ActionState),
		executedActions: make(map[string]struct{}),
		reasoningTimers: make(map[string]string),
	}
}

func (s *state) resetRun() {
	s.tools = make(map[string]*ToolState)
	s.actions = make(map[string]*ActionState)
	s.executedActions = make(map[string]struct{})
	s.activeReasoningKey = ""
}

func (s *state) pushEvent(ev api.Event) {
	s.events = append(s.events, ev)
	if over := len(s.events) - MaxEvents; over > 0 {
		s.events = append(s.events[:0:0], s.events[over:]...)
	}
}

func (s *state) pushDebug(line string) {
	s.debug = append(s.debug, line)
	if over := len(s.debug) - MaxDebugLines; over > 0 {
		s.debug = append(s.debug[:0:0], s.debug[over:]...)
	}
}

func (s *state) snapshot() Snapshot {
	return Snapshot{
		ChatID:      s.chatID,
		RunID:       s.runID,
		RequestID:   s.requestID,
		Streaming:   s.streaming,
		LockedAgent: s.lockedAgent,
		Agents:      append([]api.Agent(nil), s.agents...),
		Chats:       append([]api.Chat(nil), s.chats...),
	}
}
