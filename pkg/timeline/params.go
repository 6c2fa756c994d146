package timeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/linlay/agent-webclient/pkg/api"
)

const clipLimit = 180

var errNotObject = errors.New("arguments JSON must be an object")

// TryDecode decodes buffer as a single JSON object. It returns false for
// blank, partial or non-object input and never has side effects.
func TryDecode(buffer string) (map[string]any, bool) {
	text := strings.TrimSpace(buffer)
	if text == "" {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// ParamResolution is the outcome of looking for tool parameters on an event.
type ParamResolution struct {
	Found  bool
	Source string
	Params map[string]any
	// Diagnostic is set when a string-encoded field failed to decode.
	Diagnostic string
}

// ParseToolParams resolves parameters from an event, in precedence order:
// toolParams, function.arguments, arguments.
func ParseToolParams(ev *api.Event) ParamResolution {
	toolID := string(ev.ToolID)
	if toolID == "" {
		toolID = "unknown"
	}

	if obj, ok := rawObject(ev.ToolParams); ok {
		return ParamResolution{Found: true, Source: "toolParams", Params: obj}
	}

	if ev.Function != nil {
		if res, ok := fromRaw(toolID, "function.arguments", ev.Function.Arguments); ok {
			return res
		}
	}

	if res, ok := fromRaw(toolID, "arguments", ev.Arguments); ok {
		return res
	}

	return ParamResolution{}
}

// ResolveToolParams returns the event's parameters or fallback when the event
// carries none. Decode diagnostics go to debug.
func ResolveToolParams(ev *api.Event, fallback map[string]any, debug func(string)) map[string]any {
	res := ParseToolParams(ev)
	if res.Diagnostic != "" && debug != nil {
		debug(res.Diagnostic)
	}
	if res.Found && res.Params != nil {
		return res.Params
	}
	if fallback != nil {
		return fallback
	}
	return map[string]any{}
}

func rawObject(raw json.RawMessage) (map[string]any, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func fromRaw(toolID, source string, raw json.RawMessage) (ParamResolution, bool) {
	if obj, ok := rawObject(raw); ok {
		return ParamResolution{Found: true, Source: source, Params: obj}, true
	}

	var s string
	if err := json.Unmarshal(bytes.TrimSpace(raw), &s); err != nil || strings.TrimSpace(s) == "" {
		return ParamResolution{}, false
	}

	params, err := decodeObject(s)
	if err != nil {
		return ParamResolution{
			Found:      true,
			Source:     source,
			Params:     map[string]any{},
			Diagnostic: fmt.Sprintf("[tool:%s] parse %s failed: %v; raw=%s", toolID, source, err, Clip(s)),
		}, true
	}
	return ParamResolution{Found: true, Source: source, Params: params}, true
}

func decodeObject(s string) (map[string]any, error) {
	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return obj, nil
}

// Clip collapses whitespace runs and truncates to 180 characters for
// diagnostics.
func Clip(raw string) string {
	text := strings.Join(strings.Fields(raw), " ")
	runes := []rune(text)
	if len(runes) <= clipLimit {
		return text
	}
	return string(runes[:clipLimit]) + "..."
}
