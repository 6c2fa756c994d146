package viewport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linlay/agent-webclient/pkg/timeline"
)

var ErrNoHTML = errors.New("Viewport response does not contain html") //nolint:staticcheck

// Ticket describes one embed fetch. It is only valid for the loader
// generation it was issued in.
type Ticket struct {
	NodeID     string
	Signature  string
	Key        string
	RunID      string
	generation uint64
}

// NodeLookup resolves node ids to live nodes.
type NodeLookup interface {
	Node(id string) (*timeline.Node, bool)
}

// Loader owns embed load state for content nodes. It is not safe for
// concurrent use; callers serialize access.
type Loader struct {
	generation uint64
}

func NewLoader() *Loader {
	return &Loader{}
}

// Reset invalidates every ticket issued so far.
func (l *Loader) Reset() {
	l.generation++
}

// Process re-parses the node text into segments, syncs the embed map, and
// returns tickets for the embeds that need fetching. ts stamps the embeds
// only; the node keeps its event time.
func (l *Loader) Process(node *timeline.Node, runID string, ts time.Time) []Ticket {
	if node == nil || node.Kind != timeline.KindContent {
		return nil
	}

	node.Segments = ParseSegments(node.ContentID, node.Text)
	if node.Embeds == nil {
		node.Embeds = make(map[string]*timeline.Embed)
	}

	active := make(map[string]struct{})
	var tickets []Ticket
	for _, seg := range node.Segments {
		if seg.Kind != timeline.SegmentViewport {
			continue
		}
		active[seg.Signature] = struct{}{}

		embed, ok := node.Embeds[seg.Signature]
		if !ok {
			embed = &timeline.Embed{Signature: seg.Signature}
			node.Embeds[seg.Signature] = embed
		}
		embed.Key = seg.Key
		embed.Payload = seg.Payload
		embed.PayloadRaw = seg.PayloadRaw
		embed.UpdatedAt = ts

		if t, ok := l.begin(node.ID, embed, runID); ok {
			tickets = append(tickets, t)
		}
	}

	for sig := range node.Embeds {
		if _, ok := active[sig]; !ok {
			delete(node.Embeds, sig)
		}
	}
	return tickets
}

// begin marks the embed as loading unless a load is in flight or the HTML
// was already fetched for the same run.
func (l *Loader) begin(nodeID string, embed *timeline.Embed, runID string) (Ticket, bool) {
	if embed.Key == "" || embed.LoadStarted {
		return Ticket{}, false
	}
	if embed.HTML != "" && embed.LastLoadRunID == runID {
		return Ticket{}, false
	}

	embed.LoadStarted = true
	embed.LastLoadRunID = runID
	embed.Loading = true
	embed.Error = ""

	return Ticket{
		NodeID:     nodeID,
		Signature:  embed.Signature,
		Key:        embed.Key,
		RunID:      runID,
		generation: l.generation,
	}, true
}

// Finish applies a fetch outcome. It reports false when the ticket is stale
// or its embed has been pruned meanwhile.
func (l *Loader) Finish(nodes NodeLookup, t Ticket, html string, err error) bool {
	if t.generation != l.generation {
		return false
	}
	node, ok := nodes.Node(t.NodeID)
	if !ok || node.Kind != timeline.KindContent {
		return false
	}
	embed, ok := node.Embeds[t.Signature]
	if !ok {
		return false
	}

	if err == nil && strings.TrimSpace(html) == "" {
		err = ErrNoHTML
	}
	embed.Loading = false
	embed.LoadStarted = false
	if err != nil {
		embed.Error = fmt.Sprintf("viewport failed: %v", err)
		return true
	}
	embed.HTML = html
	embed.Error = ""
	return true
}
