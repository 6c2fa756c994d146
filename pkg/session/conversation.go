package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/linlay/agent-webclient/pkg/api"
	"github.com/linlay/agent-webclient/pkg/chatlist"
)

// LoadChat replaces the conversation with the recorded history of chatID.
// A newer LoadChat or NewChat makes an in-flight load a no-op.
func (e *Engine) LoadChat(ctx context.Context, chatID string, includeRawMessages bool) error {
	if chatID == "" {
		return nil
	}

	var seq uint64
	e.do(func() {
		e.loadSeq++
		seq = e.loadSeq
		if e.st.streaming || e.cancelStream != nil {
			e.stopLocked()
			e.streamSeq++
		}
		e.st.chatID = chatID
		e.st.runID = ""
		e.st.requestID = ""
		e.resetConversation()
		e.setStatus(fmt.Sprintf("loading chat %s...", chatID), false)
		e.notifySession()
	})

	detail, err := e.backend.GetChat(ctx, chatID, includeRawMessages)

	var loadErr error
	e.do(func() {
		if seq != e.loadSeq {
			return
		}
		if err != nil {
			loadErr = fmt.Errorf("loading chat %s: %w", chatID, err)
			e.setStatus(fmt.Sprintf("load chat failed: %v", err), true)
			return
		}

		replayed := 0
		for _, raw := range detail.Events {
			var ev api.Event
			if err := json.Unmarshal(raw, &ev); err != nil {
				e.debugf("history event decode failed: %v", err)
				continue
			}
			if ev.ChatID != "" && ev.ChatID.String() != chatID {
				continue
			}
			e.apply(&ev, SourceHistory)
			replayed++
		}

		rawMessages := detail.RawMessages
		if rawMessages == nil {
			rawMessages = detail.Messages
		}
		if includeRawMessages && rawMessages != nil {
			e.debugf(`{"type":"rawMessages","count":%d}`, len(rawMessages))
		}

		slog.Debug("Chat loaded", "chat_id", chatID, "events", replayed)
		e.setStatus("chat loaded: "+chatID, false)
		e.notifySession()
	})
	return loadErr
}

// NewChat starts an empty conversation.
func (e *Engine) NewChat() {
	e.do(func() {
		e.loadSeq++
		if e.st.streaming || e.cancelStream != nil {
			e.stopLocked()
			e.streamSeq++
		}
		e.st.chatID = ""
		e.st.runID = ""
		e.st.requestID = ""
		e.resetConversation()
		e.setStatus("new chat ready", false)
		e.notifySession()
	})
}

// Stop aborts the running query stream.
func (e *Engine) Stop() {
	e.do(e.stopLocked)
}

func (e *Engine) stopLocked() {
	if e.cancelStream != nil {
		e.cancelStream()
		e.cancelStream = nil
	}
	e.st.streaming = false
	e.tools.Clear()
	e.setStatus("stream stopped", false)
	e.notifySession()
}

// Refresh reloads agents and chats in parallel.
func (e *Engine) Refresh(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.RefreshAgents(ctx) })
	g.Go(func() error { return e.RefreshChats(ctx) })
	return g.Wait()
}

func (e *Engine) RefreshAgents(ctx context.Context) error {
	agents, err := e.backend.GetAgents(ctx)
	if err != nil {
		e.do(func() { e.setStatus(fmt.Sprintf("load agents failed: %v", err), true) })
		return fmt.Errorf("loading agents: %w", err)
	}
	e.do(func() {
		e.st.agents = agents
		e.setStatus(fmt.Sprintf("agents loaded: %d", len(agents)), false)
		e.notifySession()
	})
	return nil
}

func (e *Engine) RefreshChats(ctx context.Context) error {
	chats, err := e.backend.GetChats(ctx)
	if err != nil {
		return fmt.Errorf("loading chats: %w", err)
	}
	e.do(func() {
		e.st.chats = chats
		e.notifySession()
	})
	return nil
}

// ChatTitle returns the display title of the current chat.
func (e *Engine) ChatTitle() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.st.chats {
		if c.ChatID == e.st.chatID {
			return chatlist.Title(c)
		}
	}
	return e.st.chatID
}
