// Package viewport finds fenced viewport blocks inside assistant content and
// tracks the HTML embeds they reference.
package viewport

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/linlay/agent-webclient/pkg/timeline"
)

const fence = "```viewport"

var (
	blockBodyRe  = regexp.MustCompile("(?is)```viewport\\s*(.*?)```")
	blockRe      = regexp.MustCompile("(?is)```viewport.*?```")
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// Block is one parsed viewport block.
type Block struct {
	Type       string
	Key        string
	Payload    any
	PayloadRaw string
	Raw        string
}

// ParseBlocks returns every well-formed viewport block in text. A block needs
// a header line with type and key, followed by at least one payload line.
func ParseBlocks(text string) []Block {
	if !strings.Contains(text, fence) {
		return nil
	}
	var blocks []Block
	for _, m := range blockBodyRe.FindAllStringSubmatch(text, -1) {
		if b, ok := parseBlock(m[1]); ok {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// HTMLBlocks returns only the blocks of type html.
func HTMLBlocks(text string) []Block {
	var out []Block
	for _, b := range ParseBlocks(text) {
		if b.Type == "html" {
			out = append(out, b)
		}
	}
	return out
}

func parseBlock(raw string) (Block, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Block{}, false
	}

	var lines []string
	for _, line := range strings.Split(trimmed, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 2 {
		return Block{}, false
	}

	fields := parseHeader(lines[0])
	typ := strings.ToLower(fields["type"])
	key := fields["key"]
	if typ == "" || key == "" {
		return Block{}, false
	}

	payloadRaw := strings.Join(lines[1:], "\n")
	var payload any
	if err := json.Unmarshal([]byte(payloadRaw), &payload); err != nil {
		payload = nil
	}

	return Block{
		Type:       typ,
		Key:        key,
		Payload:    payload,
		PayloadRaw: payloadRaw,
		Raw:        trimmed,
	}, true
}

func parseHeader(line string) map[string]string {
	fields := make(map[string]string)
	for part := range strings.SplitSeq(line, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		fields[k] = v
	}
	return fields
}

// Signature identifies a viewport reference within a content node.
func Signature(contentID, key, payloadRaw string) string {
	if contentID == "" {
		contentID = "content"
	}
	return contentID + "::" + key + "::" + payloadRaw
}

// ParseSegments splits content text into text and html viewport segments.
// Viewport blocks of other types are kept as text.
func ParseSegments(contentID, text string) []timeline.Segment {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if !strings.Contains(text, fence) {
		return []timeline.Segment{{Kind: timeline.SegmentText, Text: strings.TrimSpace(text)}}
	}

	var segments []timeline.Segment
	appendText := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			segments = append(segments, timeline.Segment{Kind: timeline.SegmentText, Text: s})
		}
	}

	cursor := 0
	for _, loc := range blockRe.FindAllStringIndex(text, -1) {
		appendText(text[cursor:loc[0]])
		match := text[loc[0]:loc[1]]

		if b, ok := firstHTML(match); ok {
			raw := b.PayloadRaw
			if raw == "" {
				raw = "{}"
			}
			segments = append(segments, timeline.Segment{
				Kind:       timeline.SegmentViewport,
				Signature:  Signature(contentID, b.Key, b.PayloadRaw),
				Key:        b.Key,
				PayloadRaw: raw,
				Payload:    payloadOrObject(b),
			})
		} else {
			appendText(match)
		}
		cursor = loc[1]
	}
	appendText(text[cursor:])

	if len(segments) == 0 {
		appendText(text)
	}
	return segments
}

func firstHTML(match string) (Block, bool) {
	blocks := HTMLBlocks(match)
	if len(blocks) == 0 {
		return Block{}, false
	}
	return blocks[0], true
}

func payloadOrObject(b Block) any {
	if b.Payload != nil {
		return b.Payload
	}
	return map[string]any{}
}

// StripBlocks removes viewport blocks and squeezes the blank lines they leave.
func StripBlocks(text string) string {
	if !strings.Contains(text, fence) {
		return strings.TrimSpace(text)
	}
	out := blockRe.ReplaceAllString(text, "")
	out = blankLinesRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// VisibleText is StripBlocks for text that may still be streaming: an
// unterminated viewport block and everything after it are cut off.
func VisibleText(text string) string {
	out := StripBlocks(text)
	if i := strings.Index(strings.ToLower(out), fence); i >= 0 {
		out = strings.TrimSpace(out[:i])
	}
	return out
}
