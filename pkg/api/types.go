package api

import "encoding/json"

// Response is the envelope every REST endpoint answers with. A non-zero Code
// is an application level failure even when the HTTP status is 2xx.
type Response struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Agent is one entry of GET /agents.
type Agent struct {
	Key         string `json:"key"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// Chat is one entry of GET /chats.
type Chat struct {
	ChatID         string `json:"chatId"`
	ChatName       string `json:"chatName,omitempty"`
	FirstAgentKey  string `json:"firstAgentKey,omitempty"`
	FirstAgentName string `json:"firstAgentName,omitempty"`
	// UpdatedAt is epoch milliseconds or an RFC 3339 string depending on the server.
	UpdatedAt json.RawMessage `json:"updatedAt,omitempty"`
}

// ChatDetail is the payload of GET /chat.
type ChatDetail struct {
	ChatID      string            `json:"chatId,omitempty"`
	Events      []json.RawMessage `json:"events,omitempty"`
	RawMessages []json.RawMessage `json:"rawMessages,omitempty"`
	Messages    []json.RawMessage `json:"messages,omitempty"`
}

// Viewport is the payload of GET /viewport. Raw keeps the full payload for
// servers that answer with something other than an html field.
type Viewport struct {
	HTML string          `json:"-"`
	Raw  json.RawMessage `json:"-"`
}

func (v *Viewport) UnmarshalJSON(data []byte) error {
	v.Raw = append(v.Raw[:0], data...)
	var probe struct {
		HTML *string `json:"html"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		// Not an object: keep Raw only.
		return nil
	}
	if probe.HTML != nil {
		v.HTML = *probe.HTML
	}
	return nil
}

// SubmitRequest is the body of POST /submit.
type SubmitRequest struct {
	RunID  string         `json:"runId"`
	ToolID string         `json:"toolId"`
	Params map[string]any `json:"params"`
}

// SubmitResponse is the payload of POST /submit.
type SubmitResponse struct {
	Accepted bool   `json:"accepted"`
	Status   string `json:"status,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	RequestID  string         `json:"requestId,omitempty"`
	Message    string         `json:"message"`
	AgentKey   string         `json:"agentKey,omitempty"`
	ChatID     string         `json:"chatId,omitempty"`
	Role       string         `json:"role,omitempty"`
	References []any          `json:"references,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
	Scene      string         `json:"scene,omitempty"`
	Stream     *bool          `json:"stream,omitempty"`
}
