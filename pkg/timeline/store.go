package timeline

import (
	"fmt"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Store is the node document plus its entity registries. Nodes are never
// reordered; insertion order is display order.
type Store struct {
	nodes *orderedmap.OrderedMap[string, *Node]

	messages  map[string]string
	reasoning map[string]string
	tools     map[string]string
	contents  map[string]string

	counter int
}

func NewStore() *Store {
	s := &Store{}
	s.Reset()
	return s
}

// Reset drops every node and registry and restarts id numbering.
func (s *Store) Reset() {
	s.nodes = orderedmap.New[string, *Node]()
	s.messages = make(map[string]string)
	s.counter = 0
	s.ResetRun()
}

// ResetRun forgets the reasoning, tool and content registries so that the
// next run allocates fresh nodes. Nodes already in the document stay.
func (s *Store) ResetRun() {
	s.reasoning = make(map[string]string)
	s.tools = make(map[string]string)
	s.contents = make(map[string]string)
}

// NextID returns "<prefix>:<n>" with a per-conversation counter.
func (s *Store) NextID(prefix string) string {
	s.counter++
	return fmt.Sprintf("%s:%d", prefix, s.counter)
}

func (s *Store) entityID(kind, key string) string {
	return s.NextID(kind + ":" + key)
}

func (s *Store) Node(id string) (*Node, bool) {
	return s.nodes.Get(id)
}

func (s *Store) Len() int {
	return s.nodes.Len()
}

// IDs returns node ids in display order.
func (s *Store) IDs() []string {
	ids := make([]string, 0, s.nodes.Len())
	for pair := s.nodes.Oldest(); pair != nil; pair = pair.Next() {
		ids = append(ids, pair.Key)
	}
	return ids
}

// Nodes returns nodes in display order.
func (s *Store) Nodes() []*Node {
	nodes := make([]*Node, 0, s.nodes.Len())
	for pair := s.nodes.Oldest(); pair != nil; pair = pair.Next() {
		nodes = append(nodes, pair.Value)
	}
	return nodes
}

func (s *Store) ensure(id string, init func() *Node) (*Node, bool) {
	if existing, ok := s.nodes.Get(id); ok {
		return existing, false
	}
	node := init()
	node.ID = id
	s.nodes.Set(id, node)
	return node, true
}

// UpsertMessage creates or updates the message node for messageID.
func (s *Store) UpsertMessage(messageID string, role Role, text string, ts time.Time) *Node {
	nodeID, ok := s.messages[messageID]
	if !ok {
		nodeID = "msg:" + messageID
		s.messages[messageID] = nodeID
	}
	node, _ := s.ensure(nodeID, func() *Node {
		return &Node{Kind: KindMessage, Timestamp: ts}
	})
	node.Role = role
	node.Text = text
	node.Timestamp = ts
	return node
}

// MessageNodeID returns the node id registered for messageID.
func (s *Store) MessageNodeID(messageID string) string {
	return s.messages[messageID]
}

// EnsureReasoning returns the thinking node for a reasoning key, creating a
// collapsed running node on first sight.
func (s *Store) EnsureReasoning(key string, ts time.Time) (*Node, bool) {
	nodeID, ok := s.reasoning[key]
	if !ok {
		nodeID = s.entityID("thinking", key)
		s.reasoning[key] = nodeID
	}
	return s.ensure(nodeID, func() *Node {
		return &Node{Kind: KindThinking, Status: StatusRunning, Timestamp: ts}
	})
}

// ReasoningNode looks up the thinking node registered for key.
func (s *Store) ReasoningNode(key string) (*Node, bool) {
	nodeID, ok := s.reasoning[key]
	if !ok {
		return nil, false
	}
	return s.nodes.Get(nodeID)
}

// EnsureTool returns the tool node for toolID and whether it was created.
func (s *Store) EnsureTool(toolID string, ts time.Time) (*Node, bool) {
	nodeID, ok := s.tools[toolID]
	if !ok {
		nodeID = s.entityID("tool", toolID)
		s.tools[toolID] = nodeID
	}
	return s.ensure(nodeID, func() *Node {
		return &Node{
			Kind:      KindTool,
			ToolID:    toolID,
			ToolName:  toolID,
			ArgsText:  "{}",
			Status:    StatusRunning,
			Timestamp: ts,
		}
	})
}

// ToolNodeID returns the node id registered for toolID.
func (s *Store) ToolNodeID(toolID string) string {
	return s.tools[toolID]
}

// EnsureContent returns the content node for contentID and whether it was
// created.
func (s *Store) EnsureContent(contentID string, ts time.Time) (*Node, bool) {
	nodeID, ok := s.contents[contentID]
	if !ok {
		nodeID = s.entityID("content", contentID)
		s.contents[contentID] = nodeID
	}
	return s.ensure(nodeID, func() *Node {
		return &Node{
			Kind:      KindContent,
			ContentID: contentID,
			Status:    StatusRunning,
			Embeds:    make(map[string]*Embed),
			Timestamp: ts,
		}
	})
}

// ContentNode looks up the content node registered for contentID.
func (s *Store) ContentNode(contentID string) (*Node, bool) {
	nodeID, ok := s.contents[contentID]
	if !ok {
		return nil, false
	}
	return s.nodes.Get(nodeID)
}
