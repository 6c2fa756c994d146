package chatlist

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/linlay/agent-webclient/pkg/api"
)

func TestAgentLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Demo", AgentLabel(api.Chat{FirstAgentName: " Demo ", FirstAgentKey: "demo"}))
	assert.Equal(t, "demo", AgentLabel(api.Chat{FirstAgentKey: "demo"}))
	assert.Equal(t, "n/a", AgentLabel(api.Chat{}))
}

func TestTimeLabel(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)
	sameDay := time.Date(2026, 3, 14, 9, 5, 7, 0, time.UTC)
	earlier := time.Date(2026, 3, 2, 23, 59, 0, 0, time.UTC)

	ms := func(t time.Time) json.RawMessage {
		return json.RawMessage(strconv.FormatInt(t.UnixMilli(), 10))
	}

	assert.Equal(t, "09:05:07", TimeLabel(ms(sameDay), now))
	assert.Equal(t, "2026-03-02", TimeLabel(ms(earlier), now))
	assert.Equal(t, "09:05:07", TimeLabel(json.RawMessage(`"2026-03-14T09:05:07Z"`), now))
	assert.Equal(t, "--", TimeLabel(nil, now))
	assert.Equal(t, "--", TimeLabel(json.RawMessage(`0`), now))
	assert.Equal(t, "--", TimeLabel(json.RawMessage(`"not a date"`), now))
}

func TestTitle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Trip plan", Title(api.Chat{ChatID: "c1", ChatName: "Trip plan"}))
	assert.Equal(t, "c1", Title(api.Chat{ChatID: "c1"}))
}
