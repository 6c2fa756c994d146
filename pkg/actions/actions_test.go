package actions

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingHost struct {
	themes    []string
	fireworks []time.Duration
	modals    []Modal
}

func (h *recordingHost) SetTheme(theme string)           { h.themes = append(h.themes, theme) }
func (h *recordingHost) LaunchFireworks(d time.Duration) { h.fireworks = append(h.fireworks, d) }
func (h *recordingHost) ShowModal(m Modal)               { h.modals = append(h.modals, m) }

func TestNormalize_Theme(t *testing.T) {
	t.Parallel()

	args, ok := Normalize(SwitchTheme, map[string]any{"theme": "DARK"})
	assert.True(t, ok)
	assert.Equal(t, "dark", args.Theme)

	args, _ = Normalize(SwitchTheme, map[string]any{"theme": "solarized"})
	assert.Equal(t, "light", args.Theme)

	args, _ = Normalize(SwitchTheme, map[string]any{})
	assert.Equal(t, "light", args.Theme)
}

func TestNormalize_FireworksDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  map[string]any
		want time.Duration
	}{
		{name: "missing", raw: map[string]any{}, want: 8 * time.Second},
		{name: "in range", raw: map[string]any{"durationMs": float64(2500)}, want: 2500 * time.Millisecond},
		{name: "rounded", raw: map[string]any{"durationMs": 1234.5}, want: 1235 * time.Millisecond},
		{name: "too small", raw: map[string]any{"durationMs": float64(5)}, want: time.Second},
		{name: "too large", raw: map[string]any{"durationMs": float64(99999)}, want: 30 * time.Second},
		{name: "numeric string", raw: map[string]any{"durationMs": "4000"}, want: 4 * time.Second},
		{name: "garbage string", raw: map[string]any{"durationMs": "soon"}, want: 8 * time.Second},
		{name: "object", raw: map[string]any{"durationMs": map[string]any{}}, want: 8 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			args, ok := Normalize(LaunchFireworks, tt.raw)
			assert.True(t, ok)
			assert.Equal(t, tt.want, args.Duration)
		})
	}
}

func TestNormalize_Modal(t *testing.T) {
	t.Parallel()

	args, _ := Normalize(ShowModal, map[string]any{"title": "  Hi ", "content": 42})
	assert.Equal(t, Modal{Title: "Hi", Content: "", CloseText: "关闭"}, args.Modal)

	args, _ = Normalize(ShowModal, map[string]any{"title": " ", "closeText": "OK"})
	assert.Equal(t, Modal{Title: "通知", CloseText: "OK"}, args.Modal)
}

func TestRuntime_Execute(t *testing.T) {
	t.Parallel()
	host := &recordingHost{}
	r := NewRuntime(host)

	res := r.Execute(SwitchTheme, map[string]any{"theme": "dark"})
	assert.Equal(t, "Action switch_theme -> dark", res.Status)
	assert.Equal(t, []string{"dark"}, host.themes)

	res = r.Execute(LaunchFireworks, map[string]any{"durationMs": float64(1500)})
	assert.Equal(t, "Action launch_fireworks -> 1500ms", res.Status)
	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, host.fireworks)

	res = r.Execute(ShowModal, map[string]any{"title": "Done"})
	assert.Equal(t, "Action show_modal -> Done", res.Status)
	assert.Len(t, host.modals, 1)

	res = r.Execute("self_destruct", nil)
	assert.False(t, res.Known)
	assert.Equal(t, "Unknown action ignored: self_destruct", res.Status)
}

func TestParseArgs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, map[string]any{}, ParseArgs(""))
	assert.Equal(t, map[string]any{}, ParseArgs("[1,2]"))
	assert.Equal(t, map[string]any{}, ParseArgs("{nope"))
	assert.Equal(t, map[string]any{"a": "b"}, ParseArgs(`{"a":"b"}`))
	assert.Equal(t, map[string]any{"a": "b"}, ParseRawArgs(json.RawMessage(`"{\"a\":\"b\"}"`)))
	assert.Equal(t, map[string]any{"a": "b"}, ParseRawArgs(json.RawMessage(`{"a":"b"}`)))
	assert.Equal(t, map[string]any{}, ParseRawArgs(nil))
}
