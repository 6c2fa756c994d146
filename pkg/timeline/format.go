package timeline

import (
	"bytes"
	"encoding/json"
	"strings"
)

// PrettyJSON indents raw JSON text. Text that is not JSON is returned as is;
// blank input yields fallback.
func PrettyJSON(raw, fallback string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(trimmed), "", "  "); err != nil {
		return raw
	}
	return buf.String()
}

// PrettyValue marshals v with indentation, or returns fallback for nil.
func PrettyValue(v any, fallback string) string {
	if v == nil {
		return fallback
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fallback
	}
	return string(data)
}

// ResultPayload renders a raw tool result. A JSON string whose content is
// itself JSON is shown as code; other strings as text; objects and numbers
// as indented JSON. A nil raw value yields nil.
func ResultPayload(raw json.RawMessage) *ToolResult {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		trimmed := strings.TrimSpace(s)
		if trimmed == "" {
			return &ToolResult{Text: "(empty)"}
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(trimmed), "", "  "); err == nil && json.Valid([]byte(trimmed)) {
			return &ToolResult{Text: buf.String(), IsCode: true}
		}
		return &ToolResult{Text: s}
	}

	switch raw[0] {
	case '{', '[':
		return &ToolResult{Text: PrettyJSON(string(raw), "{}"), IsCode: true}
	case 'n':
		return &ToolResult{Text: "null", IsCode: true}
	default:
		return &ToolResult{Text: string(raw)}
	}
}
