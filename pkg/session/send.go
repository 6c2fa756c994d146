package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/linlay/agent-webclient/pkg/api"
	"github.com/linlay/agent-webclient/pkg/client"
	"github.com/linlay/agent-webclient/pkg/frontendtool"
	"github.com/linlay/agent-webclient/pkg/mention"
)

// Send starts a query and consumes its stream until it ends. A leading
// "@agent" selects the agent; otherwise the locked agent, if any, is used.
// Aborting with Stop is not an error.
func (e *Engine) Send(ctx context.Context, text string) error {
	var (
		req    api.QueryRequest
		seq    uint64
		runCtx context.Context
		err    error
	)
	e.do(func() {
		req, err = e.prepareQuery(text)
		if err != nil {
			return
		}
		e.resetRunTransient()
		e.streamSeq++
		seq = e.streamSeq
		var cancel context.CancelFunc
		runCtx, cancel = context.WithCancel(ctx)
		e.cancelStream = cancel
		e.st.streaming = true
		e.notifySession()
	})
	if err != nil {
		return err
	}

	err = e.consume(runCtx, seq, req)

	var result error
	e.do(func() {
		if seq != e.streamSeq {
			return
		}
		if e.cancelStream != nil {
			e.cancelStream()
			e.cancelStream = nil
		}
		e.st.streaming = false
		switch {
		case err == nil:
			e.setStatus("stream ended", false)
		case runCtx.Err() != nil:
			e.setStatus("stream aborted", false)
		default:
			e.systemMessage("sys:error", "query failed: "+err.Error())
			e.setStatus("query failed: "+err.Error(), true)
			result = err
		}
		e.notifySession()
	})
	return result
}

// prepareQuery validates the composer text and builds the request.
func (e *Engine) prepareQuery(text string) (api.QueryRequest, error) {
	m := mention.Parse(text, e.st.agents)
	if m.Err != "" {
		e.setStatus("mention error: "+m.Err, true)
		return api.QueryRequest{}, fmt.Errorf("%w: %s", ErrMentionInvalid, m.Err)
	}

	message := strings.TrimSpace(m.CleanMessage)
	var err error
	switch {
	case message == "":
		err = ErrEmptyMessage
	case e.st.streaming:
		err = ErrStreaming
	case e.tools.HasActive():
		err = ErrFrontendToolActive
	}
	if err != nil {
		e.setStatus(err.Error(), true)
		return api.QueryRequest{}, err
	}

	agentKey := m.AgentKey
	switch {
	case m.AgentKey != "":
		e.setStatus(fmt.Sprintf("query streaming via @%s...", m.AgentKey), false)
	case e.st.lockedAgent != "":
		agentKey = e.st.lockedAgent
		e.setStatus(fmt.Sprintf("query streaming via locked @%s...", e.st.lockedAgent), false)
	default:
		e.setStatus("query streaming...", false)
	}

	return api.QueryRequest{
		RequestID: uuid.NewString(),
		Message:   message,
		AgentKey:  agentKey,
		ChatID:    e.st.chatID,
	}, nil
}

// consume reads the stream and applies each event. Events arriving after a
// newer stream started are dropped.
func (e *Engine) consume(ctx context.Context, seq uint64, req api.QueryRequest) error {
	stream, err := e.backend.Query(ctx, req)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		frame, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading stream: %w", err)
		}

		e.do(func() {
			if seq != e.streamSeq {
				return
			}
			e.handleFrame(frame)
		})
	}
}

func (e *Engine) handleFrame(frame client.Frame) {
	if len(frame.Comments) > 0 && !isHeartbeat(frame.Comments) {
		e.debugLine("sse-comment: " + strings.Join(frame.Comments, "|"))
	}
	if !frame.IsEvent() || frame.Data == "" {
		return
	}
	ev, err := client.DecodeEvent(frame.Data)
	if err != nil {
		slog.Debug("Dropping undecodable SSE frame", "error", err)
		e.debugLine("sse-json-parse-failed: " + frame.Data)
		return
	}
	e.apply(&ev, SourceLive)
}

func isHeartbeat(comments []string) bool {
	for _, c := range comments {
		if strings.Contains(c, "heartbeat") {
			return true
		}
	}
	return false
}

// SubmitActiveFrontendTool sends params for the tool holding the composer.
func (e *Engine) SubmitActiveFrontendTool(ctx context.Context, params map[string]any) error {
	var (
		ticket frontendtool.SubmitTicket
		seq    uint64
		err    error
	)
	e.do(func() {
		ticket, err = e.tools.BeginSubmit(params)
		if err != nil {
			e.setStatus(err.Error(), true)
		}
		seq = e.loadSeq
	})
	if err != nil {
		return err
	}
	return e.submit(ctx, seq, ticket, "frontend.submit.response")
}

// SubmitPendingTool sends the edited params of a pending card.
func (e *Engine) SubmitPendingTool(ctx context.Context, key string) error {
	var (
		ticket frontendtool.SubmitTicket
		seq    uint64
		err    error
	)
	e.do(func() {
		ticket, err = e.tools.BeginSubmitPending(key)
		if err != nil {
			e.setStatus("submit failed: "+err.Error(), true)
		}
		seq = e.loadSeq
	})
	if err != nil {
		return err
	}
	return e.submit(ctx, seq, ticket, "submit.response")
}

func (e *Engine) submit(ctx context.Context, seq uint64, ticket frontendtool.SubmitTicket, debugType string) error {
	resp, err := e.backend.SubmitTool(ctx, api.SubmitRequest{
		RunID:  ticket.RunID,
		ToolID: ticket.ToolID,
		Params: ticket.Params,
	})

	var result error
	e.do(func() {
		if seq != e.loadSeq {
			return
		}
		out := e.tools.FinishSubmit(ticket, resp, err)
		switch {
		case out.Err != nil:
			e.setStatus("submit failed: "+out.Err.Error(), true)
			result = fmt.Errorf("submitting %s: %w", ticket.ToolID, out.Err)
			return
		case out.Accepted:
			e.setStatus("submit accepted: "+out.ToolID, false)
		default:
			e.setStatus("submit unmatched: "+out.ToolID, true)
		}
		e.debugf(`{"type":%q,"accepted":%t,"status":%q,"detail":%q}`, debugType, out.Accepted, out.Status, out.Detail)
		if out.Next != nil {
			e.loadFrontendTool(*out.Next)
		}
	})
	return result
}

// loadFrontendTool fetches the HTML of the active tool.
func (e *Engine) loadFrontendTool(t frontendtool.LoadTicket) {
	seq := e.loadSeq
	e.async(func(ctx context.Context) {
		vp, err := e.backend.GetViewport(ctx, t.ToolKey)
		e.do(func() {
			if seq != e.loadSeq {
				return
			}
			if err != nil {
				e.debugf("frontend tool %s load failed: %v", t.ToolKey, err)
			}
			e.tools.FinishLoad(t, vp, err)
		})
	})
}
