package timeline

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linlay/agent-webclient/pkg/api"
)

func TestTryDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		buffer string
		want   map[string]any
		ok     bool
	}{
		{name: "blank", buffer: "  "},
		{name: "partial", buffer: `{"a":`},
		{name: "array", buffer: `[1,2]`},
		{name: "number", buffer: `42`},
		{name: "null", buffer: `null`},
		{name: "object", buffer: `{"a":1}`, want: map[string]any{"a": float64(1)}, ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := TryDecode(tt.buffer)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTryDecode_FragmentsResolveOnlyWhenComplete(t *testing.T) {
	t.Parallel()

	buffer := `{"a":`
	_, ok := TryDecode(buffer)
	assert.False(t, ok)

	buffer += `1}`
	got, ok := TryDecode(buffer)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": float64(1)}, got)
}

func TestParseToolParams_Precedence(t *testing.T) {
	t.Parallel()

	ev := &api.Event{
		ToolID:     "t1",
		ToolParams: json.RawMessage(`{"from":"toolParams"}`),
		Function:   &api.FunctionCall{Arguments: json.RawMessage(`"{\"from\":\"function\"}"`)},
		Arguments:  json.RawMessage(`{"from":"arguments"}`),
	}
	res := ParseToolParams(ev)
	assert.Equal(t, "toolParams", res.Source)
	assert.Equal(t, "toolParams", res.Params["from"])

	ev.ToolParams = nil
	res = ParseToolParams(ev)
	assert.Equal(t, "function.arguments", res.Source)
	assert.Equal(t, "function", res.Params["from"])

	ev.Function = nil
	res = ParseToolParams(ev)
	assert.Equal(t, "arguments", res.Source)
	assert.Equal(t, "arguments", res.Params["from"])

	ev.Arguments = nil
	res = ParseToolParams(ev)
	assert.False(t, res.Found)
}

func TestParseToolParams_BadStringYieldsDiagnostic(t *testing.T) {
	t.Parallel()

	long := "{" + strings.Repeat("x ", 200)
	raw, err := json.Marshal(long)
	require.NoError(t, err)

	res := ParseToolParams(&api.Event{ToolID: "t7", Arguments: raw})
	require.True(t, res.Found)
	assert.Empty(t, res.Params)
	assert.True(t, strings.HasPrefix(res.Diagnostic, "[tool:t7] parse arguments failed: "))
	assert.True(t, strings.HasSuffix(res.Diagnostic, "..."))
}

func TestResolveToolParams_FallsBack(t *testing.T) {
	t.Parallel()

	prev := map[string]any{"keep": true}
	var diags []string
	got := ResolveToolParams(&api.Event{ToolID: "t1"}, prev, func(s string) { diags = append(diags, s) })
	assert.Equal(t, prev, got)
	assert.Empty(t, diags)

	got = ResolveToolParams(&api.Event{ToolID: "t1", Arguments: json.RawMessage(`"[1]"`)}, prev, func(s string) { diags = append(diags, s) })
	assert.Empty(t, got)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0], "arguments JSON must be an object")
}

func TestResultPayload(t *testing.T) {
	t.Parallel()

	assert.Nil(t, ResultPayload(nil))
	assert.Equal(t, &ToolResult{Text: "(empty)"}, ResultPayload(json.RawMessage(`"  "`)))
	assert.Equal(t, &ToolResult{Text: "plain words"}, ResultPayload(json.RawMessage(`"plain words"`)))
	assert.Equal(t, &ToolResult{Text: "{\n  \"a\": 1\n}", IsCode: true}, ResultPayload(json.RawMessage(`"{\"a\":1}"`)))
	assert.Equal(t, &ToolResult{Text: "{\n  \"b\": true\n}", IsCode: true}, ResultPayload(json.RawMessage(`{"b":true}`)))
	assert.Equal(t, &ToolResult{Text: "42"}, ResultPayload(json.RawMessage(`42`)))
}

func TestPrettyJSON(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "{}", PrettyJSON("", "{}"))
	assert.Equal(t, `{"a":`, PrettyJSON(`{"a":`, "{}"))
	assert.Equal(t, "{\n  \"a\": 1\n}", PrettyJSON(`{"a":1}`, "{}"))
	assert.Equal(t, "{\n  \"a\": 1\n}", PrettyValue(map[string]any{"a": 1}, "{}"))
	assert.Equal(t, "{}", PrettyValue(nil, "{}"))
}
