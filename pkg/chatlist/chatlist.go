// Package chatlist formats chat summaries for the sidebar and the chats
// command.
package chatlist

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/linlay/agent-webclient/pkg/api"
)

// AgentLabel returns the first agent's name, then its key, then "n/a".
func AgentLabel(chat api.Chat) string {
	if name := strings.TrimSpace(chat.FirstAgentName); name != "" {
		return name
	}
	if key := strings.TrimSpace(chat.FirstAgentKey); key != "" {
		return key
	}
	return "n/a"
}

// ParseTime decodes an updatedAt value: epoch milliseconds as a number or
// numeric string, or an RFC 3339 / "YYYY-MM-DD hh:mm:ss" string.
func ParseTime(raw json.RawMessage) (time.Time, bool) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n == 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(n)), true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), true
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, time.DateTime, time.DateOnly} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// TimeLabel renders updatedAt as hh:mm:ss when it falls on the same local
// day as now, as YYYY-MM-DD otherwise, and "--" when missing or invalid.
func TimeLabel(raw json.RawMessage, now time.Time) string {
	t, ok := ParseTime(raw)
	if !ok {
		return "--"
	}
	t = t.In(now.Location())
	ty, tm, td := t.Date()
	ny, nm, nd := now.Date()
	if ty == ny && tm == nm && td == nd {
		return t.Format(time.TimeOnly)
	}
	return t.Format(time.DateOnly)
}

// Title returns the chat name, falling back to its id.
func Title(chat api.Chat) string {
	if name := strings.TrimSpace(chat.ChatName); name != "" {
		return name
	}
	return chat.ChatID
}
