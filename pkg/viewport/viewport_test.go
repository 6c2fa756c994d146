package viewport

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linlay/agent-webclient/pkg/timeline"
)

func block(header, payload string) string {
	return "```viewport\n" + header + "\n" + payload + "\n```"
}

func TestParseBlocks(t *testing.T) {
	t.Parallel()

	text := "abc\n\n" + block("type=html, key=show_weather_card", `{"city":"Shanghai"}`) + "\n"
	blocks := ParseBlocks(text)
	require.Len(t, blocks, 1)
	assert.Equal(t, "html", blocks[0].Type)
	assert.Equal(t, "show_weather_card", blocks[0].Key)
	assert.Equal(t, map[string]any{"city": "Shanghai"}, blocks[0].Payload)
}

func TestHTMLBlocks_SkipsOtherTypes(t *testing.T) {
	t.Parallel()

	text := block("type=qlc, key=form_a", `{"schema":{}}`) + "\n\n" + block("type=html, key=card_b", `{"ok":true}`)
	blocks := HTMLBlocks(text)
	require.Len(t, blocks, 1)
	assert.Equal(t, "card_b", blocks[0].Key)
}

func TestParseBlocks_HeaderSpacing(t *testing.T) {
	t.Parallel()

	blocks := HTMLBlocks(block(" type = HTML ,  key = x_card", `{"a":1}`))
	require.Len(t, blocks, 1)
	assert.Equal(t, "html", blocks[0].Type)
	assert.Equal(t, "x_card", blocks[0].Key)
}

func TestParseBlocks_RequiresPayloadLine(t *testing.T) {
	t.Parallel()

	assert.Empty(t, ParseBlocks("```viewport\ntype=html, key=k\n```"))
	assert.Empty(t, ParseBlocks(block("type=html", "{}")))
}

func TestParseSegments(t *testing.T) {
	t.Parallel()

	text := strings.Join([]string{
		"before",
		"```viewport",
		"type=html, key=weather_card",
		`{"city":"Shanghai"}`,
		"```",
		"after",
	}, "\n")

	segments := ParseSegments("c-1", text)
	require.Len(t, segments, 3)
	assert.Equal(t, timeline.Segment{Kind: timeline.SegmentText, Text: "before"}, segments[0])
	assert.Equal(t, timeline.SegmentViewport, segments[1].Kind)
	assert.Equal(t, "weather_card", segments[1].Key)
	assert.Equal(t, `c-1::weather_card::{"city":"Shanghai"}`, segments[1].Signature)
	assert.Equal(t, timeline.Segment{Kind: timeline.SegmentText, Text: "after"}, segments[2])
}

func TestParseSegments_NonHTMLStaysText(t *testing.T) {
	t.Parallel()

	segments := ParseSegments("c-2", block("type=qlc, key=form_a", `{"schema":{}}`))
	require.Len(t, segments, 1)
	assert.Equal(t, timeline.SegmentText, segments[0].Kind)
	assert.Contains(t, segments[0].Text, "type=qlc, key=form_a")
}

func TestParseSegments_PlainText(t *testing.T) {
	t.Parallel()

	assert.Nil(t, ParseSegments("c", "   "))
	assert.Equal(t, []timeline.Segment{{Kind: timeline.SegmentText, Text: "hi"}}, ParseSegments("c", " hi \n"))
}

func TestStripBlocks(t *testing.T) {
	t.Parallel()

	text := strings.Join([]string{"line-1", "", block("type=html, key=demo", "{}"), "", "line-2"}, "\n")
	assert.Equal(t, "line-1\n\nline-2", StripBlocks(text))
}

func contentNode(store *timeline.Store, text string) *timeline.Node {
	node, _ := store.EnsureContent("c1", time.Unix(0, 0))
	node.Text = text
	return node
}

func TestLoader_IssuesOneTicketPerSignature(t *testing.T) {
	t.Parallel()
	store := timeline.NewStore()
	loader := NewLoader()
	node := contentNode(store, block("type=html, key=card", `{"a":1}`))

	tickets := loader.Process(node, "run-1", time.Unix(1, 0))
	require.Len(t, tickets, 1)
	assert.Equal(t, "card", tickets[0].Key)

	embed := node.Embeds[tickets[0].Signature]
	require.NotNil(t, embed)
	assert.True(t, embed.Loading)
	assert.True(t, embed.LoadStarted)

	// Re-entry while the fetch is in flight is deduplicated.
	assert.Empty(t, loader.Process(node, "run-1", time.Unix(2, 0)))

	assert.True(t, loader.Finish(store, tickets[0], "<p>ok</p>", nil))
	assert.Equal(t, "<p>ok</p>", embed.HTML)
	assert.False(t, embed.Loading)

	// Cached for the same run.
	assert.Empty(t, loader.Process(node, "run-1", time.Unix(3, 0)))
	// A new run refetches.
	assert.Len(t, loader.Process(node, "run-2", time.Unix(4, 0)), 1)
}

func TestLoader_FinishErrors(t *testing.T) {
	t.Parallel()
	store := timeline.NewStore()
	loader := NewLoader()
	node := contentNode(store, block("type=html, key=card", `{}`))

	tickets := loader.Process(node, "", time.Unix(0, 0))
	require.Len(t, tickets, 1)
	require.True(t, loader.Finish(store, tickets[0], "  ", nil))
	assert.Equal(t, "viewport failed: Viewport response does not contain html", node.Embeds[tickets[0].Signature].Error)

	tickets = loader.Process(node, "", time.Unix(0, 0))
	require.Len(t, tickets, 1)
	require.True(t, loader.Finish(store, tickets[0], "", errors.New("boom")))
	assert.Equal(t, "viewport failed: boom", node.Embeds[tickets[0].Signature].Error)
}

func TestLoader_PrunesVanishedSignatures(t *testing.T) {
	t.Parallel()
	store := timeline.NewStore()
	loader := NewLoader()
	node := contentNode(store, block("type=html, key=old", `{}`))

	tickets := loader.Process(node, "r", time.Unix(0, 0))
	require.Len(t, tickets, 1)

	node.Text = block("type=html, key=new", `{}`)
	loader.Process(node, "r", time.Unix(0, 0))
	assert.NotContains(t, node.Embeds, tickets[0].Signature)
	assert.Len(t, node.Embeds, 1)

	// The pruned embed's fetch result is dropped.
	assert.False(t, loader.Finish(store, tickets[0], "<p/>", nil))
}

func TestLoader_ResetInvalidatesTickets(t *testing.T) {
	t.Parallel()
	store := timeline.NewStore()
	loader := NewLoader()
	node := contentNode(store, block("type=html, key=card", `{}`))

	tickets := loader.Process(node, "r", time.Unix(0, 0))
	require.Len(t, tickets, 1)

	loader.Reset()
	assert.False(t, loader.Finish(store, tickets[0], "<p/>", nil))
	assert.Empty(t, node.Embeds[tickets[0].Signature].HTML)
}

func TestVisibleText(t *testing.T) {
	t.Parallel()

	streaming := "intro\n" + fence + " type=html, key=chart\n{\"a\":"
	assert.Equal(t, "intro", VisibleText(streaming))

	done := strings.Join([]string{"intro", "", block("type=html, key=chart", `{"a":1}`), "", "outro"}, "\n")
	assert.Equal(t, "intro\n\noutro", VisibleText(done))
	assert.Equal(t, "plain", VisibleText("  plain \n"))
}
