package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/linlay/agent-webclient/pkg/api"
	"github.com/linlay/agent-webclient/pkg/client"
	"github.com/linlay/agent-webclient/pkg/render"
	"github.com/linlay/agent-webclient/pkg/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBackend struct {
	mu       sync.Mutex
	agents   []api.Agent
	chat     *api.ChatDetail
	events   []api.Event
	queryErr error
	queries  []api.QueryRequest
}

func (b *fakeBackend) GetAgents(context.Context) ([]api.Agent, error) { return b.agents, nil }
func (b *fakeBackend) GetChats(context.Context) ([]api.Chat, error)   { return nil, nil }

func (b *fakeBackend) GetChat(_ context.Context, chatID string, _ bool) (*api.ChatDetail, error) {
	if b.chat == nil {
		return nil, errors.New("chat not found: " + chatID)
	}
	return b.chat, nil
}

func (b *fakeBackend) GetViewport(context.Context, string) (*api.Viewport, error) {
	return &api.Viewport{HTML: "<p>embed</p>"}, nil
}

func (b *fakeBackend) SubmitTool(context.Context, api.SubmitRequest) (*api.SubmitResponse, error) {
	return &api.SubmitResponse{Accepted: true}, nil
}

func (b *fakeBackend) Query(_ context.Context, req api.QueryRequest) (session.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queries = append(b.queries, req)
	if b.queryErr != nil {
		return nil, b.queryErr
	}
	frames := make([]client.Frame, 0, len(b.events))
	for _, ev := range b.events {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, err
		}
		frames = append(frames, client.Frame{Event: "message", Data: string(data)})
	}
	return &sliceStream{frames: frames}, nil
}

type sliceStream struct {
	frames []client.Frame
}

func (s *sliceStream) Next() (client.Frame, error) {
	if len(s.frames) == 0 {
		return client.Frame{}, io.EOF
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}

func (s *sliceStream) Close() error { return nil }

func answer(message string) []api.Event {
	return []api.Event{
		{Type: api.EventRequestQuery, RequestID: "q1", ChatID: "c1", Message: message},
		{Type: api.EventRunStart, RunID: "r1"},
		{Type: api.EventContentSnapshot, ContentID: "a1", Text: "Hi there"},
		{Type: api.EventRunComplete, FinishReason: "stop"},
	}
}

func newEngine(t *testing.T, backend session.Backend, p *Printer) *session.Engine {
	t.Helper()
	eng := session.New(backend,
		session.WithFrames(&render.ManualFrames{}),
		session.WithSurface(p),
		session.WithObserver(p),
		session.WithToolSurface(p),
		session.WithActionHost(p),
	)
	t.Cleanup(eng.Close)
	return eng
}

func TestExec(t *testing.T) {
	t.Parallel()
	p, buf := newTestPrinter()
	backend := &fakeBackend{events: answer("hello")}
	eng := newEngine(t, backend, p)

	var gotChat string
	err := Exec(t.Context(), eng, p, Config{OnChat: func(chatID, _ string) { gotChat = chatID }}, "hello")
	require.NoError(t, err)

	assert.Equal(t, "> hello\n\nHi there\n", buf.String())
	assert.Equal(t, "c1", gotChat)
	require.Len(t, backend.queries, 1)
	assert.Equal(t, "hello", backend.queries[0].Message)
}

func TestExec_JSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	p := NewPrinter(&buf, WithColor(false))
	eng := newEngine(t, &fakeBackend{events: answer("hello")}, p)

	require.NoError(t, Exec(t.Context(), eng, p, Config{OutputJSON: true}, "hello"))

	assert.Contains(t, buf.String(), `"type":"content.snapshot"`)
	assert.Contains(t, buf.String(), `"type":"run.complete"`)
}

func TestExec_QueryFailure(t *testing.T) {
	t.Parallel()
	p, buf := newTestPrinter()
	eng := newEngine(t, &fakeBackend{queryErr: errors.New("agent busy (HTTP 409)")}, p)

	err := Exec(t.Context(), eng, p, Config{}, "hello")
	require.Error(t, err)

	var rtErr RuntimeError
	require.ErrorAs(t, err, &rtErr)
	assert.Contains(t, buf.String(), "query failed: agent busy (HTTP 409)")
}

func TestExec_UnknownMention(t *testing.T) {
	t.Parallel()
	p, _ := newTestPrinter()
	eng := newEngine(t, &fakeBackend{}, p)

	err := Exec(t.Context(), eng, p, Config{}, "@ghost hello")
	require.ErrorIs(t, err, session.ErrMentionInvalid)
}

func TestReplay(t *testing.T) {
	t.Parallel()
	p, buf := newTestPrinter()
	backend := &fakeBackend{chat: &api.ChatDetail{
		ChatID: "c1",
		Events: []json.RawMessage{
			json.RawMessage(`{"type":"request.query","chatId":"c1","requestId":"q1","message":"hi"}`),
			json.RawMessage(`{"type":"content.snapshot","chatId":"c1","contentId":"a1","text":"hello back"}`),
		},
	}}
	eng := newEngine(t, backend, p)

	require.NoError(t, Replay(t.Context(), eng, p, Config{ChatID: "c1"}))
	assert.Equal(t, "> hi\n\nhello back\n", buf.String())
}

func TestReplay_Failure(t *testing.T) {
	t.Parallel()
	p, _ := newTestPrinter()
	eng := newEngine(t, &fakeBackend{}, p)

	err := Replay(t.Context(), eng, p, Config{ChatID: "missing"})
	require.ErrorContains(t, err, "chat not found: missing")
}

func TestRun(t *testing.T) {
	t.Parallel()
	p, buf := newTestPrinter()
	backend := &fakeBackend{
		agents: []api.Agent{{Key: "writer"}},
		events: answer("hello"),
	}
	eng := newEngine(t, backend, p)

	in := strings.NewReader("/agents\n/bogus\n\n@writer hello\n")
	require.NoError(t, Run(t.Context(), eng, p, Config{AppName: "agent-webclient"}, in))

	out := buf.String()
	assert.Contains(t, out, "Welcome to agent-webclient")
	assert.Contains(t, out, "@writer")
	assert.Contains(t, out, "unknown command /bogus")
	assert.Contains(t, out, "Hi there\n")

	require.Len(t, backend.queries, 1)
	assert.Equal(t, "writer", backend.queries[0].AgentKey)
}

func TestRun_Exit(t *testing.T) {
	t.Parallel()
	p, _ := newTestPrinter()
	backend := &fakeBackend{events: answer("hello")}
	eng := newEngine(t, backend, p)

	in := strings.NewReader("/lock ops\n/exit\nnever sent\n")
	require.NoError(t, Run(t.Context(), eng, p, Config{}, in))

	assert.Empty(t, backend.queries)
	assert.Equal(t, "ops", eng.Snapshot().LockedAgent)
}
