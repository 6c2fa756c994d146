// Package tui is the full-screen chat client: a transcript fed by the
// session engine, a composer, and panels for plans, frontend tools and
// pending tool cards.
package tui

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textarea"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/atotto/clipboard"

	"github.com/linlay/agent-webclient/pkg/actions"
	"github.com/linlay/agent-webclient/pkg/api"
	"github.com/linlay/agent-webclient/pkg/frontendtool"
	"github.com/linlay/agent-webclient/pkg/mention"
	"github.com/linlay/agent-webclient/pkg/plan"
	"github.com/linlay/agent-webclient/pkg/prefs"
	"github.com/linlay/agent-webclient/pkg/render"
	"github.com/linlay/agent-webclient/pkg/session"
	"github.com/linlay/agent-webclient/pkg/tui/components/markdown"
	"github.com/linlay/agent-webclient/pkg/tui/components/statusbar"
	"github.com/linlay/agent-webclient/pkg/tui/components/todo"
	"github.com/linlay/agent-webclient/pkg/tui/components/transcript"
	"github.com/linlay/agent-webclient/pkg/tui/messages"
	"github.com/linlay/agent-webclient/pkg/tui/styles"
)

const (
	// rowHeight scales terminal rows to the units of
	// render.NearBottomThreshold.
	rowHeight = 16

	composerHeight = 3
	sidebarWidth   = 34
	maxDebugLines  = 200
	maxSuggestions = 5
)

type focus int

const (
	focusComposer focus = iota
	focusTranscript
	focusChats
)

// Engine is the conversation engine as the TUI drives it.
// *session.Engine implements it.
type Engine interface {
	Send(ctx context.Context, text string) error
	Stop()
	NewChat()
	LoadChat(ctx context.Context, chatID string, includeRawMessages bool) error
	Refresh(ctx context.Context) error
	RefreshChats(ctx context.Context) error
	SubmitActiveFrontendTool(ctx context.Context, params map[string]any) error
	SubmitPendingTool(ctx context.Context, key string) error
	ToggleNode(id string) bool
	SetPlanExpanded(expanded, manual bool)
	LockAgent(key string)
	Snapshot() session.Snapshot
	ChatTitle() string
}

// Prefs persists UI state between runs. *prefs.Store implements it.
type Prefs interface {
	Set(ctx context.Context, key, value string) error
	TouchChat(ctx context.Context, chatID, title string, at time.Time) error
}

type Config struct {
	AppName            string
	Version            string
	Theme              string
	ChatID             string
	IncludeRawMessages bool
	Prefs              Prefs
}

type Model struct {
	ctx    context.Context
	eng    Engine
	bridge *Bridge
	cfg    Config
	keys   keyMap

	width  int
	height int
	ready  bool
	theme  styles.Theme
	focus  focus

	transcript   *transcript.Model
	viewport     viewport.Model
	composer     textarea.Model
	help         help.Model
	status       statusbar.StatusBar
	todo         *todo.Component
	md           *markdown.Renderer
	contentDirty bool
	stickBottom  bool
	panels       string

	snapshot    session.Snapshot
	planView    plan.View
	tool        *frontendtool.Active
	pending     []frontendtool.Pending
	inputLocked bool
	modal       *actions.Modal
	suggestions []api.Agent
	chatCursor  int
	loading     bool
	notice      *session.Status

	fireworks    bool
	fireworksSeq int

	// writeClipboard is swapped out in tests.
	writeClipboard func(string) error

	debug      bool
	debugLines []string
}

// New builds the model. The bridge must be the surface, observer, tool
// surface and action host of eng.
func New(ctx context.Context, eng Engine, bridge *Bridge, cfg Config) *Model {
	cfg.AppName = cmp.Or(cfg.AppName, "agent-webclient")
	theme := styles.ByName(cfg.Theme)

	composer := textarea.New()
	composer.Placeholder = "Message, @agent to pick one, /help for commands"
	composer.Prompt = ""
	composer.ShowLineNumbers = false
	composer.CharLimit = 0
	composer.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("ctrl+j"))
	composer.SetHeight(composerHeight)
	composer.Focus()

	return &Model{
		ctx:        ctx,
		eng:        eng,
		bridge:     bridge,
		cfg:        cfg,
		keys:       defaultKeys(),
		theme:      theme,
		transcript: transcript.New(theme, 80),
		viewport:   viewport.New(viewport.WithWidth(80), viewport.WithHeight(20)),
		composer:   composer,
		help:       help.New(),
		status:     statusbar.New(theme),
		todo:       todo.NewComponent(theme),
		md:         markdown.NewRenderer(theme.Name, 80),

		writeClipboard: clipboard.WriteAll,
	}
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink, m.refreshCmd()}
	if m.cfg.ChatID != "" {
		cmds = append(cmds, m.loadCmd(m.cfg.ChatID))
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.contentDirty = true

	case tea.KeyPressMsg:
		cmds = append(cmds, m.handleKey(msg))

	case tea.MouseWheelMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.status, cmd = m.status.Update(msg)
		cmds = append(cmds, cmd)

	case messages.FrameMsg:
		m.transcript.Apply(msg.Frame)
		m.contentDirty = true
	case messages.ScrollToBottomMsg:
		m.stickBottom = true
	case messages.StatusMsg:
		m.notice = nil
		m.status.SetStatus(msg.Status)
	case messages.SessionMsg:
		m.snapshot = msg.Snapshot
	case messages.PlanMsg:
		m.planView = msg.View
		m.todo.SetView(msg.View)
	case messages.DebugMsg:
		m.debugLines = append(m.debugLines, msg.Line)
		if over := len(m.debugLines) - maxDebugLines; over > 0 {
			m.debugLines = m.debugLines[over:]
		}
	case messages.InputLockedMsg:
		m.inputLocked = msg.Locked
	case messages.ToolMsg:
		m.tool = msg.Tool
	case messages.ToolInitMsg:
		if strings.TrimSpace(m.composer.Value()) == "" && len(msg.Init.Data.Params) > 0 {
			m.composer.SetValue(frontendtool.ParamsText(msg.Init.Data.Params))
		}
	case messages.PendingMsg:
		m.pending = msg.Pending
	case messages.ThemeMsg:
		m.applyTheme(msg.Theme)
		cmds = append(cmds, m.persist(prefs.KeyTheme, m.theme.Name))
	case messages.FireworksMsg:
		m.fireworksSeq++
		m.fireworks = true
		seq := m.fireworksSeq
		cmds = append(cmds, tea.Tick(msg.Duration, func(time.Time) tea.Msg {
			return messages.FireworksDoneMsg{Seq: seq}
		}))
	case messages.FireworksDoneMsg:
		if msg.Seq == m.fireworksSeq {
			m.fireworks = false
		}
	case messages.ModalMsg:
		modal := msg.Modal
		m.modal = &modal

	case messages.SendDoneMsg:
		if msg.Err != nil {
			slog.Debug("Send finished with error", "error", msg.Err)
			m.showEngineError(msg.Err)
		}
		cmds = append(cmds, m.rememberChat())
	case messages.LoadDoneMsg:
		m.loading = false
		if msg.Err != nil {
			slog.Debug("Load chat failed", "chat_id", msg.ChatID, "error", msg.Err)
			break
		}
		cmds = append(cmds, m.rememberChat())
	case messages.RefreshDoneMsg:
		if msg.Err != nil {
			slog.Debug("Refresh failed", "error", msg.Err)
		}
	case messages.CopyDoneMsg:
		if msg.Err != nil {
			m.setNotice("copy failed: "+msg.Err.Error(), true)
		} else {
			m.setNotice("copied to clipboard", false)
		}
	case messages.SubmitDoneMsg:
		if msg.Err != nil {
			slog.Debug("Submit failed", "error", msg.Err)
			m.showEngineError(msg.Err)
		}
	}

	cmds = append(cmds, m.status.SetBusy(m.busy()))
	m.layout()
	return m, tea.Batch(cmds...)
}

// showEngineError surfaces errors the engine rejects without a status
// change of its own.
func (m *Model) showEngineError(err error) {
	for _, target := range []error{session.ErrStreaming, session.ErrFrontendToolActive, session.ErrEmptyMessage, session.ErrNoActiveTool} {
		if errors.Is(err, target) {
			m.setNotice(err.Error(), true)
			return
		}
	}
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice = &session.Status{Text: text, Error: isErr}
}

func (m *Model) busy() bool {
	return m.streaming() || m.loading || (m.tool != nil && m.tool.Submitting)
}

func (m *Model) streaming() bool {
	return m.snapshot.Streaming
}

func (m *Model) applyTheme(name string) {
	m.theme = styles.ByName(name)
	m.transcript.SetTheme(m.theme)
	m.status.SetTheme(m.theme)
	m.todo.SetTheme(m.theme)
	m.contentDirty = true
}

func (m *Model) setFocus(f focus) {
	m.focus = f
	if f == focusComposer {
		m.composer.Focus()
	} else {
		m.composer.Blur()
	}
	if f != focusTranscript && m.transcript.Selected() != "" {
		m.transcript.ClearSelection()
		m.contentDirty = true
	}
}

func (m *Model) handleKey(msg tea.KeyPressMsg) tea.Cmd {
	if m.modal != nil {
		switch {
		case key.Matches(msg, m.keys.Quit):
			return tea.Quit
		case msg.String() == "esc", msg.String() == "enter":
			m.modal = nil
		}
		return nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit

	case key.Matches(msg, m.keys.Stop):
		switch {
		case m.focus == focusChats:
			m.setFocus(focusComposer)
		case m.streaming():
			m.eng.Stop()
		case m.focus == focusTranscript:
			m.setFocus(focusComposer)
		}
		return nil

	case key.Matches(msg, m.keys.NewChat):
		m.eng.NewChat()
		m.composer.Reset()
		m.suggestions = nil
		return m.persist(prefs.KeyLastChat, "")

	case key.Matches(msg, m.keys.Chats):
		if m.focus == focusChats {
			m.setFocus(focusComposer)
			return nil
		}
		m.chatCursor = 0
		m.setFocus(focusChats)
		return m.refreshChatsCmd()

	case key.Matches(msg, m.keys.Plan):
		if m.planView.Visible {
			m.eng.SetPlanExpanded(!m.planView.Expanded, true)
		}
		return nil

	case key.Matches(msg, m.keys.Debug):
		m.debug = !m.debug
		return nil

	case key.Matches(msg, m.keys.Theme):
		next := styles.ThemeLight
		if m.theme.Name == styles.ThemeLight {
			next = styles.ThemeDark
		}
		m.applyTheme(next)
		return m.persist(prefs.KeyTheme, next)

	case key.Matches(msg, m.keys.Copy):
		return m.copyCmd()

	case key.Matches(msg, m.keys.Approve):
		for _, p := range m.pending {
			if p.Status != frontendtool.PendingOK {
				return m.submitPendingCmd(p.Key)
			}
		}
		return nil

	case key.Matches(msg, m.keys.Focus):
		if m.focus == focusComposer && len(m.suggestions) > 0 {
			m.completeMention()
			return nil
		}
		if m.focus == focusComposer {
			m.setFocus(focusTranscript)
		} else {
			m.setFocus(focusComposer)
		}
		return nil
	}

	switch m.focus {
	case focusTranscript:
		return m.handleTranscriptKey(msg)
	case focusChats:
		return m.handleChatsKey(msg)
	}
	return m.handleComposerKey(msg)
}

func (m *Model) handleComposerKey(msg tea.KeyPressMsg) tea.Cmd {
	if key.Matches(msg, m.keys.Send) {
		return m.submit()
	}
	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	m.updateSuggestions()
	return cmd
}

func (m *Model) handleTranscriptKey(msg tea.KeyPressMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.transcript.Select(-1)
		m.contentDirty = true
	case key.Matches(msg, m.keys.Down):
		m.transcript.Select(1)
		m.contentDirty = true
	case key.Matches(msg, m.keys.Toggle):
		if id := m.transcript.Selected(); id != "" {
			m.eng.ToggleNode(id)
		}
	case key.Matches(msg, m.keys.PageUp):
		m.viewport.PageUp()
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.PageDown()
	case key.Matches(msg, m.keys.ScrollDown):
		m.viewport.GotoBottom()
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}
	return nil
}

func (m *Model) handleChatsKey(msg tea.KeyPressMsg) tea.Cmd {
	chats := m.snapshot.Chats
	switch {
	case key.Matches(msg, m.keys.Up):
		m.chatCursor = max(m.chatCursor-1, 0)
	case key.Matches(msg, m.keys.Down):
		m.chatCursor = max(min(m.chatCursor+1, len(chats)-1), 0)
	case msg.String() == "enter":
		if m.chatCursor < len(chats) {
			chatID := chats[m.chatCursor].ChatID
			m.setFocus(focusComposer)
			return m.loadCmd(chatID)
		}
	}
	return nil
}

// submit sends the composer. While a frontend tool holds the composer its
// text is the JSON params to submit; an empty composer submits the tool's
// own params.
func (m *Model) submit() tea.Cmd {
	text := strings.TrimSpace(m.composer.Value())

	if m.tool != nil {
		params := m.tool.Params
		if text != "" {
			if !isJSONObject(text) {
				m.setNotice("frontend tool params must be a JSON object", true)
				return nil
			}
			params = actions.ParseArgs(text)
		}
		m.composer.Reset()
		return m.submitToolCmd(params)
	}

	if text == "" {
		return nil
	}
	m.composer.Reset()
	m.suggestions = nil
	if strings.HasPrefix(text, "/") {
		return m.runCommand(text)
	}
	return m.sendCmd(text)
}

func isJSONObject(text string) bool {
	var v map[string]any
	return json.Unmarshal([]byte(text), &v) == nil && v != nil
}

const commandHelp = "/new  /load <chatId>  /lock <agent>  /unlock  /approve [key]  /theme dark|light  /stop  /quit"

func (m *Model) runCommand(text string) tea.Cmd {
	name, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return tea.Quit
	case "/help":
		m.setNotice(commandHelp, false)
	case "/new":
		m.eng.NewChat()
		return m.persist(prefs.KeyLastChat, "")
	case "/load":
		if arg == "" {
			m.setNotice("usage: /load <chatId>", true)
			return nil
		}
		return m.loadCmd(arg)
	case "/lock":
		if arg == "" {
			m.setNotice("usage: /lock <agent>", true)
			return nil
		}
		agent := strings.TrimPrefix(arg, "@")
		m.eng.LockAgent(agent)
		return m.persist(prefs.KeyLockedAgent, agent)
	case "/unlock":
		m.eng.LockAgent("")
		return m.persist(prefs.KeyLockedAgent, "")
	case "/approve":
		if arg == "" && len(m.pending) > 0 {
			arg = m.pending[0].Key
		}
		if arg == "" {
			m.setNotice("no pending tool", true)
			return nil
		}
		return m.submitPendingCmd(arg)
	case "/theme":
		theme := styles.Normalize(arg)
		m.applyTheme(theme)
		return m.persist(prefs.KeyTheme, theme)
	case "/stop":
		m.eng.Stop()
	default:
		m.setNotice("unknown command "+name+", try /help", true)
	}
	return nil
}

func (m *Model) updateSuggestions() {
	token, ok := mention.Draft(m.composer.Value())
	if !ok {
		m.suggestions = nil
		return
	}
	m.suggestions = mention.Suggest(token, m.snapshot.Agents)
	if len(m.suggestions) > maxSuggestions {
		m.suggestions = m.suggestions[:maxSuggestions]
	}
}

func (m *Model) completeMention() {
	m.composer.SetValue("@" + m.suggestions[0].Key + " ")
	m.composer.MoveToEnd()
	m.suggestions = nil
}

func (m *Model) sendCmd(text string) tea.Cmd {
	ctx, eng := m.ctx, m.eng
	return func() tea.Msg {
		return messages.SendDoneMsg{Err: eng.Send(ctx, text)}
	}
}

func (m *Model) loadCmd(chatID string) tea.Cmd {
	m.loading = true
	ctx, eng, raw := m.ctx, m.eng, m.cfg.IncludeRawMessages
	return func() tea.Msg {
		return messages.LoadDoneMsg{ChatID: chatID, Err: eng.LoadChat(ctx, chatID, raw)}
	}
}

func (m *Model) refreshCmd() tea.Cmd {
	ctx, eng := m.ctx, m.eng
	return func() tea.Msg {
		return messages.RefreshDoneMsg{Err: eng.Refresh(ctx)}
	}
}

func (m *Model) refreshChatsCmd() tea.Cmd {
	ctx, eng := m.ctx, m.eng
	return func() tea.Msg {
		return messages.RefreshDoneMsg{Err: eng.RefreshChats(ctx)}
	}
}

func (m *Model) submitToolCmd(params map[string]any) tea.Cmd {
	ctx, eng := m.ctx, m.eng
	return func() tea.Msg {
		return messages.SubmitDoneMsg{Err: eng.SubmitActiveFrontendTool(ctx, params)}
	}
}

func (m *Model) submitPendingCmd(key string) tea.Cmd {
	ctx, eng := m.ctx, m.eng
	return func() tea.Msg {
		return messages.SubmitDoneMsg{Err: eng.SubmitPendingTool(ctx, key)}
	}
}

func (m *Model) copyCmd() tea.Cmd {
	text := m.transcript.CopyText()
	if text == "" {
		m.setNotice("nothing to copy", true)
		return nil
	}
	write := m.writeClipboard
	return func() tea.Msg {
		return messages.CopyDoneMsg{Err: write(text)}
	}
}

func (m *Model) persist(key, value string) tea.Cmd {
	p := m.cfg.Prefs
	if p == nil {
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg {
		if err := p.Set(ctx, key, value); err != nil {
			slog.Warn("Failed to save preference", "key", key, "error", err)
		}
		return nil
	}
}

// rememberChat records the current chat as the last and most recent one.
func (m *Model) rememberChat() tea.Cmd {
	p := m.cfg.Prefs
	chatID := m.eng.Snapshot().ChatID
	if p == nil || chatID == "" {
		return nil
	}
	ctx, title := m.ctx, m.eng.ChatTitle()
	return func() tea.Msg {
		if err := p.TouchChat(ctx, chatID, title, time.Now()); err != nil {
			slog.Warn("Failed to record chat", "chat_id", chatID, "error", err)
		}
		if err := p.Set(ctx, prefs.KeyLastChat, chatID); err != nil {
			slog.Warn("Failed to save preference", "key", prefs.KeyLastChat, "error", err)
		}
		return nil
	}
}

// layout sizes every component for the current state and publishes the
// transcript scroll position to the render scheduler.
func (m *Model) layout() {
	if !m.ready {
		return
	}

	m.help.SetWidth(m.width)
	m.status.SetWidth(m.width)
	m.todo.SetSize(m.width)
	m.status.SetRight(m.rightStatus())
	if m.notice != nil {
		m.status.SetStatus(*m.notice)
	}
	m.composer.SetWidth(max(m.width-4, 10))
	if m.inputLocked {
		m.composer.Placeholder = "Frontend tool active: Enter submits JSON params"
	} else {
		m.composer.Placeholder = "Message, @agent to pick one, /help for commands"
	}

	mainWidth := m.width
	if m.focus == focusChats {
		mainWidth = max(m.width-sidebarWidth, 20)
	}
	if !m.md.Matches(m.theme.Name, m.width-4) {
		m.md = markdown.NewRenderer(m.theme.Name, m.width-4)
	}
	m.transcript.SetWidth(mainWidth - 1)

	m.panels = m.renderPanels()
	used := composerHeight + 2 + 2
	if m.panels != "" {
		used += lipgloss.Height(m.panels)
	}
	if m.fireworks {
		used++
	}

	m.viewport.SetWidth(mainWidth)
	m.viewport.SetHeight(max(m.height-used, 3))
	if m.contentDirty {
		m.viewport.SetContent(m.transcript.View())
		m.contentDirty = false
	}
	if m.stickBottom {
		m.viewport.GotoBottom()
		m.stickBottom = false
	}

	m.bridge.SetMetrics(render.Metrics{
		ScrollTop:    m.viewport.YOffset() * rowHeight,
		ScrollHeight: m.viewport.TotalLineCount() * rowHeight,
		ClientHeight: m.viewport.Height() * rowHeight,
	})
}

func (m *Model) rightStatus() string {
	var parts []string
	if m.snapshot.LockedAgent != "" {
		parts = append(parts, "@"+m.snapshot.LockedAgent+" locked")
	}
	if m.snapshot.ChatID != "" {
		parts = append(parts, cmp.Or(m.eng.ChatTitle(), m.snapshot.ChatID))
	}
	parts = append(parts, strings.TrimSpace(m.cfg.AppName+" "+m.cfg.Version))
	return strings.Join(parts, " · ")
}

func (m *Model) windowTitle() string {
	if title := m.eng.ChatTitle(); title != "" {
		return title + " - " + m.cfg.AppName
	}
	return m.cfg.AppName
}

func (m *Model) View() tea.View {
	if !m.ready {
		return m.fullscreen(m.theme.Muted.Render("Loading…"))
	}

	main := m.viewport.View()
	if m.focus == focusChats {
		main = lipgloss.JoinHorizontal(lipgloss.Top, m.renderChats(m.viewport.Height()), main)
	}

	var parts []string
	if m.fireworks {
		parts = append(parts, m.renderFireworks())
	}
	parts = append(parts, main)
	if m.panels != "" {
		parts = append(parts, m.panels)
	}
	composerStyle := m.theme.Panel
	if m.focus == focusComposer {
		composerStyle = m.theme.PanelFocus
	}
	parts = append(parts,
		composerStyle.Width(m.width).Render(m.composer.View()),
		m.status.View(),
		m.help.View(m.bindings()),
	)
	base := lipgloss.JoinVertical(lipgloss.Left, parts...)

	if m.modal != nil {
		box := m.renderModal()
		x := max((m.width-lipgloss.Width(box))/2, 0)
		y := max((m.height-lipgloss.Height(box))/2, 0)
		base = lipgloss.NewCompositor(
			lipgloss.NewLayer(base),
			lipgloss.NewLayer(box).X(x).Y(y).Z(1),
		).Render()
	}
	return m.fullscreen(base)
}

func (m *Model) fullscreen(content string) tea.View {
	view := tea.NewView(content)
	view.AltScreen = true
	view.MouseMode = tea.MouseModeCellMotion
	view.BackgroundColor = m.theme.Background
	view.WindowTitle = m.windowTitle()
	return view
}
