// Package actions executes the UI side effects an agent can request:
// switching the theme, launching fireworks and showing a modal.
package actions

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	SwitchTheme     = "switch_theme"
	LaunchFireworks = "launch_fireworks"
	ShowModal       = "show_modal"
)

const (
	defaultFireworks = 8000 * time.Millisecond
	minFireworks     = 1000
	maxFireworks     = 30000

	defaultModalTitle = "通知"
	defaultModalClose = "关闭"
)

// Modal is a normalized show_modal request.
type Modal struct {
	Title     string
	Content   string
	CloseText string
}

// Host performs the effects.
type Host interface {
	SetTheme(theme string)
	LaunchFireworks(d time.Duration)
	ShowModal(m Modal)
}

// Args holds the normalized arguments of a known action.
type Args struct {
	Theme    string
	Duration time.Duration
	Modal    Modal
}

// Result reports what Execute did.
type Result struct {
	Name   string
	Known  bool
	Args   Args
	Status string
}

// ParseArgs decodes a JSON object, returning an empty map for anything else.
func ParseArgs(text string) map[string]any {
	args := map[string]any{}
	text = strings.TrimSpace(text)
	if text == "" {
		return args
	}
	if err := json.Unmarshal([]byte(text), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

// ParseRawArgs is ParseArgs for raw event payloads. String payloads are
// decoded as JSON text.
func ParseRawArgs(raw json.RawMessage) map[string]any {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseArgs(s)
	}
	return ParseArgs(string(raw))
}

// Normalize fills defaults and clamps values for a known action name.
func Normalize(name string, raw map[string]any) (Args, bool) {
	switch name {
	case SwitchTheme:
		theme := "light"
		if s, ok := raw["theme"].(string); ok && strings.ToLower(s) == "dark" {
			theme = "dark"
		}
		return Args{Theme: theme}, true
	case LaunchFireworks:
		return Args{Duration: fireworksDuration(raw)}, true
	case ShowModal:
		return Args{Modal: Modal{
			Title:     trimmedOr(raw["title"], defaultModalTitle),
			Content:   trimmedOr(raw["content"], ""),
			CloseText: trimmedOr(raw["closeText"], defaultModalClose),
		}}, true
	default:
		return Args{}, false
	}
}

func trimmedOr(v any, fallback string) string {
	if s, ok := v.(string); ok {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return fallback
}

func fireworksDuration(raw map[string]any) time.Duration {
	v, ok := raw["durationMs"]
	if !ok {
		return defaultFireworks
	}

	var ms float64
	switch n := v.(type) {
	case nil:
		ms = 0
	case float64:
		ms = n
	case int:
		ms = float64(n)
	case bool:
		if n {
			ms = 1
		}
	case string:
		s := strings.TrimSpace(n)
		if s != "" {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return defaultFireworks
			}
			ms = f
		}
	default:
		return defaultFireworks
	}
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return defaultFireworks
	}

	ms = math.Floor(ms + 0.5)
	ms = min(max(ms, minFireworks), maxFireworks)
	return time.Duration(ms) * time.Millisecond
}

// Runtime dispatches actions to a Host.
type Runtime struct {
	host Host
}

func NewRuntime(host Host) *Runtime {
	return &Runtime{host: host}
}

// Execute normalizes and runs one action. Unknown names are reported in
// the result status and otherwise ignored.
func (r *Runtime) Execute(name string, raw map[string]any) Result {
	args, known := Normalize(name, raw)
	res := Result{Name: name, Known: known, Args: args}

	switch name {
	case SwitchTheme:
		r.host.SetTheme(args.Theme)
		res.Status = "Action switch_theme -> " + args.Theme
	case LaunchFireworks:
		r.host.LaunchFireworks(args.Duration)
		res.Status = fmt.Sprintf("Action launch_fireworks -> %dms", args.Duration.Milliseconds())
	case ShowModal:
		r.host.ShowModal(args.Modal)
		res.Status = "Action show_modal -> " + args.Modal.Title
	default:
		res.Status = "Unknown action ignored: " + name
	}
	return res
}
