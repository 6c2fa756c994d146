package api

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// EventType is the dot-namespaced tag carried by every agent event.
type EventType string

const (
	EventRequestQuery EventType = "request.query"

	EventRunStart    EventType = "run.start"
	EventRunComplete EventType = "run.complete"
	EventRunError    EventType = "run.error"
	EventRunCancel   EventType = "run.cancel"

	EventPlanUpdate EventType = "plan.update"

	EventTaskStart    EventType = "task.start"
	EventTaskComplete EventType = "task.complete"
	EventTaskCancel   EventType = "task.cancel"
	EventTaskFail     EventType = "task.fail"

	EventReasoningStart    EventType = "reasoning.start"
	EventReasoningDelta    EventType = "reasoning.delta"
	EventReasoningSnapshot EventType = "reasoning.snapshot"
	EventReasoningEnd      EventType = "reasoning.end"

	EventContentStart    EventType = "content.start"
	EventContentDelta    EventType = "content.delta"
	EventContentSnapshot EventType = "content.snapshot"
	EventContentEnd      EventType = "content.end"

	EventToolStart    EventType = "tool.start"
	EventToolArgs     EventType = "tool.args"
	EventToolSnapshot EventType = "tool.snapshot"
	EventToolResult   EventType = "tool.result"
	EventToolEnd      EventType = "tool.end"

	EventActionStart    EventType = "action.start"
	EventActionArgs     EventType = "action.args"
	EventActionSnapshot EventType = "action.snapshot"
	EventActionEnd      EventType = "action.end"
)

// Family returns the namespace of the event type, e.g. "tool" for "tool.args".
func (t EventType) Family() string {
	family, _, _ := strings.Cut(string(t), ".")
	return family
}

// ID is a correlation id. The server sends most ids as strings but some
// producers emit numbers, so both decode to the same textual form.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// FunctionCall is the optional "function call" shape some producers use to
// carry tool arguments.
type FunctionCall struct {
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// PlanTask is one entry of a plan snapshot.
type PlanTask struct {
	TaskID      string `json:"taskId"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
}

// Event is a single agent protocol message. Every field besides Type is
// optional; fields whose presence matters are kept raw.
type Event struct {
	Type EventType `json:"type"`

	ChatID      ID `json:"chatId,omitempty"`
	RunID       ID `json:"runId,omitempty"`
	RequestID   ID `json:"requestId,omitempty"`
	ContentID   ID `json:"contentId,omitempty"`
	ReasoningID ID `json:"reasoningId,omitempty"`
	ToolID      ID `json:"toolId,omitempty"`
	ActionID    ID `json:"actionId,omitempty"`
	PlanID      ID `json:"planId,omitempty"`
	TaskID      ID `json:"taskId,omitempty"`

	Message string `json:"message,omitempty"`
	Text    string `json:"text,omitempty"`
	Delta   string `json:"delta,omitempty"`

	ToolName    string          `json:"toolName,omitempty"`
	ToolType    string          `json:"toolType,omitempty"`
	ToolKey     string          `json:"toolKey,omitempty"`
	ToolAPI     string          `json:"toolApi,omitempty"`
	ToolTimeout *int64          `json:"toolTimeout,omitempty"`
	ToolParams  json.RawMessage `json:"toolParams,omitempty"`
	Function    *FunctionCall   `json:"function,omitempty"`
	Arguments   json.RawMessage `json:"arguments,omitempty"`
	Description string          `json:"description,omitempty"`

	Result json.RawMessage `json:"result,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`

	FinishReason string     `json:"finishReason,omitempty"`
	ActionName   string     `json:"actionName,omitempty"`
	TaskName     string     `json:"taskName,omitempty"`
	Plan         []PlanTask `json:"plan,omitempty"`

	// Timestamp is epoch milliseconds; zero means "now" to consumers.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// HasError reports whether the event carries a truthy error payload.
func (e *Event) HasError() bool {
	return IsTruthy(e.Error)
}

// ErrorText renders the error payload: strings verbatim, anything else as JSON.
func (e *Event) ErrorText() string {
	if len(e.Error) == 0 {
		return "{}"
	}
	var s string
	if err := json.Unmarshal(e.Error, &s); err == nil {
		return s
	}
	return string(e.Error)
}

// IsTruthy mirrors the loose truthiness the protocol relies on for optional
// payloads: absent, null, false, 0 and "" are all false.
func IsTruthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	switch string(raw) {
	case "null", "false", "0", `""`:
		return false
	}
	if f, err := strconv.ParseFloat(string(raw), 64); err == nil {
		return f != 0
	}
	return true
}

// IsPresent reports whether a raw field was sent at all, including an explicit null.
func IsPresent(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) > 0
}
