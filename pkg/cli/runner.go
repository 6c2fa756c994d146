package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/linlay/agent-webclient/pkg/actions"
	"github.com/linlay/agent-webclient/pkg/input"
	"github.com/linlay/agent-webclient/pkg/session"
)

// RuntimeError wraps runtime errors to distinguish them from usage errors
type RuntimeError struct {
	Err error
}

func (e RuntimeError) Error() string {
	return e.Err.Error()
}

func (e RuntimeError) Unwrap() error {
	return e.Err
}

// Config holds what the headless commands need besides the engine.
type Config struct {
	AppName            string
	ChatID             string
	IncludeRawMessages bool
	// OutputJSON prints the raw event log as JSON lines instead of the
	// rendered conversation.
	OutputJSON bool
	// OnChat is called with the chat id and title after each query.
	OnChat func(chatID, title string)
}

// settle waits for background loads to finish and paints what is left.
func settle(eng *session.Engine) {
	eng.Flush()
	eng.Wait()
	eng.Flush()
}

func statusError(eng *session.Engine) error {
	if st := eng.Status(); st.Error {
		return RuntimeError{Err: errors.New(st.Text)}
	}
	return nil
}

// Exec sends one message and prints the streamed answer. The chat named in
// cfg is loaded first so the message continues it.
func Exec(ctx context.Context, eng *session.Engine, out *Printer, cfg Config, message string) error {
	if cfg.ChatID != "" {
		if err := eng.LoadChat(ctx, cfg.ChatID, cfg.IncludeRawMessages); err != nil {
			return RuntimeError{Err: err}
		}
		settle(eng)
	}

	if err := eng.Send(ctx, message); err != nil {
		if errors.Is(err, session.ErrMentionInvalid) || errors.Is(err, session.ErrEmptyMessage) {
			return err
		}
		return RuntimeError{Err: err}
	}
	settle(eng)
	notifyChat(eng, cfg)

	if cfg.OutputJSON {
		if err := printEvents(out, eng); err != nil {
			return err
		}
	}
	if tool := eng.ActiveTool(); tool != nil {
		out.Printf("\nfrontend tool %s is waiting; continue with: chat --chat %s\n", tool.Key, eng.Snapshot().ChatID)
	}
	return statusError(eng)
}

// Replay loads a chat and prints its history.
func Replay(ctx context.Context, eng *session.Engine, out *Printer, cfg Config) error {
	if err := eng.LoadChat(ctx, cfg.ChatID, cfg.IncludeRawMessages); err != nil {
		return RuntimeError{Err: err}
	}
	settle(eng)

	if cfg.OutputJSON {
		return printEvents(out, eng)
	}
	if cfg.IncludeRawMessages {
		for _, line := range eng.DebugLines() {
			if strings.Contains(line, `"rawMessages"`) {
				out.Println(line)
			}
		}
	}
	return nil
}

func printEvents(out *Printer, eng *session.Engine) error {
	for _, ev := range eng.Events() {
		buf, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		out.Println(string(buf))
	}
	return nil
}

func notifyChat(eng *session.Engine, cfg Config) {
	if cfg.OnChat == nil {
		return
	}
	if chatID := eng.Snapshot().ChatID; chatID != "" {
		cfg.OnChat(chatID, eng.ChatTitle())
	}
}

// Run is the line-oriented chat loop used when no terminal UI is wanted.
// Lines starting with "/" are commands; everything else is sent. Messages
// stream in the background so that commands such as /submit and /stop
// stay available while an answer is running.
func Run(ctx context.Context, eng *session.Engine, out *Printer, cfg Config, rd io.Reader) error {
	lines := input.NewReader(rd)
	defer lines.Close()

	if err := eng.Refresh(ctx); err != nil {
		out.PrintError(err)
	}
	if cfg.ChatID != "" {
		if err := eng.LoadChat(ctx, cfg.ChatID, cfg.IncludeRawMessages); err != nil {
			out.PrintError(err)
		}
		settle(eng)
	}

	out.Printf("\n------- Welcome to %s! -------\n(/help for commands, Ctrl+C to exit)\n", cfg.AppName)

	var (
		lastErr  error
		inFlight bool
		results  = make(chan error, 1)
	)
	collect := func(err error) {
		inFlight = false
		lastErr = nil
		if err != nil {
			lastErr = RuntimeError{Err: err}
		}
	}

	for {
		select {
		case err := <-results:
			collect(err)
		default:
		}
		if !inFlight {
			out.Printf("\n> ")
		}

		line, err := lines.ReadLine(ctx)
		if err != nil {
			if inFlight {
				select {
				case res := <-results:
					collect(res)
				case <-ctx.Done():
					eng.Stop()
					collect(<-results)
				}
			}
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return lastErr
			}
			return err
		}

		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}

		if strings.HasPrefix(text, "/") {
			quit, err := runUserCommand(ctx, eng, out, cfg, text)
			if err != nil {
				out.PrintError(err)
			}
			if quit {
				if inFlight {
					eng.Stop()
					collect(<-results)
				}
				return lastErr
			}
			continue
		}

		if inFlight {
			out.PrintError(session.ErrStreaming)
			continue
		}
		inFlight = true
		go func() {
			err := eng.Send(ctx, text)
			if err != nil {
				slog.Debug("Send failed", "error", err)
			}
			settle(eng)
			notifyChat(eng, cfg)
			results <- err
		}()
	}
}

const helpText = `commands:
  /new               start a new chat
  /load <chatId>     load a chat
  /chats             list chats
  /agents            list agents
  /lock <agent>      send every message to this agent
  /unlock            forget the locked agent
  /submit <json>     submit params to the active frontend tool
  /approve <key>     submit a pending tool card
  /stop              abort the running answer
  /debug             print recent debug lines
  /exit              quit`

// runUserCommand handles the built-in slash commands. It reports whether
// the loop should stop.
func runUserCommand(ctx context.Context, eng *session.Engine, out *Printer, cfg Config, text string) (bool, error) {
	name, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/exit", "/quit":
		return true, nil
	case "/help":
		out.Println(helpText)
	case "/new":
		eng.NewChat()
		settle(eng)
		out.Println("new chat ready")
	case "/load":
		if arg == "" {
			return false, errors.New("usage: /load <chatId>")
		}
		if err := eng.LoadChat(ctx, arg, cfg.IncludeRawMessages); err != nil {
			return false, err
		}
		settle(eng)
	case "/chats":
		if err := eng.RefreshChats(ctx); err != nil {
			return false, err
		}
		out.PrintChats(eng.Snapshot().Chats, time.Now())
	case "/agents":
		if err := eng.RefreshAgents(ctx); err != nil {
			return false, err
		}
		snap := eng.Snapshot()
		out.PrintAgents(snap.Agents, snap.LockedAgent)
	case "/lock":
		if arg == "" {
			return false, errors.New("usage: /lock <agent>")
		}
		eng.LockAgent(strings.TrimPrefix(arg, "@"))
		out.Println(eng.Status().Text)
	case "/unlock":
		eng.LockAgent("")
		out.Println(eng.Status().Text)
	case "/submit":
		params := actions.ParseArgs(arg)
		if err := eng.SubmitActiveFrontendTool(ctx, params); err != nil {
			return false, err
		}
		out.Println(eng.Status().Text)
	case "/approve":
		if err := eng.SubmitPendingTool(ctx, arg); err != nil {
			return false, err
		}
		out.Println(eng.Status().Text)
	case "/stop":
		eng.Stop()
	case "/debug":
		for _, line := range eng.DebugLines() {
			out.Println(line)
		}
	default:
		return false, fmt.Errorf("unknown command %s, try /help", name)
	}
	return false, nil
}
