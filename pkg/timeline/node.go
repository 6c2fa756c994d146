// Package timeline holds the display document of a conversation: an
// insertion-ordered set of nodes with stable identities, plus the per-entity
// registries mapping protocol ids to node ids.
package timeline

import "time"

type Kind string

const (
	KindMessage  Kind = "message"
	KindThinking Kind = "thinking"
	KindContent  Kind = "content"
	KindTool     Kind = "tool"
)

type Status string

const (
	StatusNone      Status = ""
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ToolResult is the rendered payload of a tool.result event.
type ToolResult struct {
	Text   string
	IsCode bool
}

type SegmentKind string

const (
	SegmentText     SegmentKind = "text"
	SegmentViewport SegmentKind = "viewport"
)

// Segment is one piece of a content node: plain markdown or a viewport reference.
type Segment struct {
	Kind       SegmentKind
	Text       string
	Signature  string
	Key        string
	PayloadRaw string
	Payload    any
}

// Embed is the fetched state of one viewport reference inside a content node.
type Embed struct {
	Signature     string
	Key           string
	PayloadRaw    string
	Payload       any
	HTML          string
	Loading       bool
	Error         string
	LoadStarted   bool
	LastLoadRunID string
	UpdatedAt     time.Time
}

// Node is one renderable unit of the timeline. Fields beyond the common
// header are meaningful only for the matching Kind.
type Node struct {
	ID        string
	Kind      Kind
	Expanded  bool
	Status    Status
	Timestamp time.Time

	// message, thinking, content
	Role Role
	Text string

	// tool
	ToolID      string
	ToolName    string
	ToolAPI     string
	Description string
	ArgsText    string
	Result      *ToolResult

	// content
	ContentID string
	Segments  []Segment
	Embeds    map[string]*Embed
}

// Clone returns a deep copy that is safe to hand to another goroutine.
func (n *Node) Clone() *Node {
	c := *n
	if n.Result != nil {
		r := *n.Result
		c.Result = &r
	}
	if n.Segments != nil {
		c.Segments = append([]Segment(nil), n.Segments...)
	}
	if n.Embeds != nil {
		c.Embeds = make(map[string]*Embed, len(n.Embeds))
		for k, v := range n.Embeds {
			e := *v
			c.Embeds[k] = &e
		}
	}
	return &c
}
