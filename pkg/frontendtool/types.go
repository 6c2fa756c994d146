// Package frontendtool coordinates tools that need a human to fill in an
// embedded form before the agent run can continue. At most one such tool is
// active; while it is, the composer stays locked.
package frontendtool

import (
	"bytes"
	"encoding/json"
	"html"
	"strings"
)

var frontendTypes = map[string]struct{}{
	"html": {},
	"qlc":  {},
}

// NormalizeType trims and lowercases a declared tool type.
func NormalizeType(toolType string) string {
	return strings.ToLower(strings.TrimSpace(toolType))
}

// IsFrontendTool reports whether a tool with this type and key is rendered
// by the client rather than executed by the agent.
func IsFrontendTool(toolType, toolKey string) bool {
	_, ok := frontendTypes[NormalizeType(toolType)]
	return ok && toolKey != ""
}

// PendingKey joins a run and tool id into "runId#toolId". It returns "" when
// either part is blank.
func PendingKey(runID, toolID string) string {
	runID = strings.TrimSpace(runID)
	toolID = strings.TrimSpace(toolID)
	if runID == "" || toolID == "" {
		return ""
	}
	return runID + "#" + toolID
}

// ParamsText renders params as indented JSON, "{}" when nil.
func ParamsText(params map[string]any) string {
	if params == nil {
		params = map[string]any{}
	}
	text, err := indentJSON(params)
	if err != nil {
		return "{}"
	}
	return text
}

// FallbackHTML wraps a non-HTML viewport payload in a preformatted page.
func FallbackHTML(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		v = map[string]any{}
	}
	text, err := indentJSON(v)
	if err != nil {
		text = "{}"
	}
	return "<html><body><pre>" + html.EscapeString(text) + "</pre></body></html>"
}

func indentJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Descriptor is everything the coordinator needs to know about a tool call.
type Descriptor struct {
	RunID       string
	ToolID      string
	ToolName    string
	ToolAPI     string
	ToolKey     string
	ToolType    string
	Description string
	Timeout     *int64
	Params      map[string]any
}

type PendingStatus string

const (
	PendingWaiting PendingStatus = "pending"
	PendingError   PendingStatus = "error"
	PendingOK      PendingStatus = "ok"
)

// Pending is a tool call awaiting confirmation, shown as an editable card.
type Pending struct {
	Key         string
	RunID       string
	ToolID      string
	ToolName    string
	ToolAPI     string
	ToolKey     string
	ToolType    string
	Description string
	PayloadText string
	Status      PendingStatus
	StatusText  string
}

type State string

const (
	StateIdle       State = "idle"
	StatePending    State = "pending"
	StateActive     State = "active"
	StateAccepted   State = "accepted"
	StateRejected   State = "rejected"
	StateSuperseded State = "superseded"
)

// Active is the tool currently holding the composer.
type Active struct {
	Key         string
	RunID       string
	ToolID      string
	ToolKey     string
	ToolType    string
	ToolName    string
	Description string
	Timeout     *int64
	Params      map[string]any

	State       State
	Loading     bool
	LoadError   string
	HTML        string
	Submitting  bool
	SubmitError string
}

func (a *Active) clone() *Active {
	c := *a
	if a.Params != nil {
		c.Params = make(map[string]any, len(a.Params))
		for k, v := range a.Params {
			c.Params[k] = v
		}
	}
	if a.Timeout != nil {
		t := *a.Timeout
		c.Timeout = &t
	}
	return &c
}

// InitPayload is sent to the embedded form so it can prefill itself.
type InitPayload struct {
	RunID       string         `json:"runId"`
	ToolID      string         `json:"toolId"`
	ToolKey     string         `json:"toolKey"`
	ToolType    string         `json:"toolType"`
	ToolTimeout *int64         `json:"toolTimeout"`
	Params      map[string]any `json:"params"`
}

// InitMessage is the tool_init handshake message.
type InitMessage struct {
	Type string      `json:"type"`
	Data InitPayload `json:"data"`
}

// Surface is the part of the UI the coordinator drives. Implementations
// must not block.
type Surface interface {
	SetInputLocked(locked bool)
	// ShowTool displays the active tool, or hides the panel when tool is nil.
	ShowTool(tool *Active)
	PostInit(msg InitMessage)
	// ShowPending redraws the pending tool cards.
	ShowPending(pending []Pending)
}

// NopSurface discards every call.
type NopSurface struct{}

func (NopSurface) SetInputLocked(bool)   {}
func (NopSurface) ShowTool(*Active)      {}
func (NopSurface) PostInit(InitMessage)  {}
func (NopSurface) ShowPending([]Pending) {}
