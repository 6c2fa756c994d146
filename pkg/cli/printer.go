package cli

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/fatih/color"
	"github.com/k3a/html2text"
	"github.com/mattn/go-isatty"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/term"

	"github.com/linlay/agent-webclient/pkg/actions"
	"github.com/linlay/agent-webclient/pkg/api"
	"github.com/linlay/agent-webclient/pkg/chatlist"
	"github.com/linlay/agent-webclient/pkg/frontendtool"
	"github.com/linlay/agent-webclient/pkg/plan"
	"github.com/linlay/agent-webclient/pkg/render"
	"github.com/linlay/agent-webclient/pkg/session"
	"github.com/linlay/agent-webclient/pkg/timeline"
	"github.com/linlay/agent-webclient/pkg/viewport"
)

const defaultWidth = 80

type palette struct {
	bold   *color.Color
	dim    *color.Color
	red    *color.Color
	green  *color.Color
	yellow *color.Color
	cyan   *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		bold:   color.New(color.Bold),
		dim:    color.New(color.Faint),
		red:    color.New(color.FgRed),
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		cyan:   color.New(color.FgCyan),
	}
	for _, c := range []*color.Color{p.bold, p.dim, p.red, p.green, p.yellow, p.cyan} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// progress remembers how much of a node has been written.
type progress struct {
	header bool
	text   string
	done   bool
	embeds map[string]struct{}
}

// Printer writes a conversation as plain text. It is the render surface,
// session observer, frontend tool surface and action host of the headless
// commands. All methods are called with the engine lock held.
type Printer struct {
	mu      sync.Mutex
	out     io.Writer
	colors  palette
	width   int
	verbose bool

	nodes       *orderedmap.OrderedMap[string, *progress]
	last        string
	atLineStart bool

	planSummary string
	toolKey     string
	toolHTML    string
	pendingSeen map[string]struct{}
}

type PrinterOption func(*Printer)

// WithColor forces colored output on or off.
func WithColor(enabled bool) PrinterOption {
	return func(p *Printer) {
		p.colors = newPalette(enabled)
	}
}

// WithDebug also prints the engine's debug lines.
func WithDebug(verbose bool) PrinterOption {
	return func(p *Printer) {
		p.verbose = verbose
	}
}

func NewPrinter(out io.Writer, opts ...PrinterOption) *Printer {
	tty := false
	width := defaultWidth
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		tty = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			width = w
		}
	}

	p := &Printer{
		out:         out,
		colors:      newPalette(tty),
		width:       width,
		nodes:       orderedmap.New[string, *progress](),
		atLineStart: true,
		pendingSeen: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Printer) Println(a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.write(fmt.Sprintln(a...))
}

func (p *Printer) Printf(format string, a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.write(fmt.Sprintf(format, a...))
}

func (p *Printer) write(s string) {
	if s == "" {
		return
	}
	fmt.Fprint(p.out, s)
	p.atLineStart = strings.HasSuffix(s, "\n")
}

func (p *Printer) newline() {
	if !p.atLineStart {
		p.write("\n")
	}
}

// switchTo starts a new block when output moves to another node.
func (p *Printer) switchTo(id string) {
	if p.last == id {
		return
	}
	p.newline()
	if p.last != "" {
		p.write("\n")
	}
	p.last = id
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.printError(err)
}

func (p *Printer) printError(err error) {
	p.newline()
	p.write(p.colors.red.Sprintf("✗ %v", err) + "\n")
}

// PrintRule prints a horizontal separator with a centered label.
func (p *Printer) PrintRule(label string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.printRule(label)
}

func (p *Printer) printRule(label string) {
	p.newline()
	label = " " + label + " "
	side := max((p.width-len([]rune(label)))/2, 3)
	p.write(p.colors.dim.Sprint(strings.Repeat("─", side)+label+strings.Repeat("─", side)) + "\n")
	p.last = ""
}

// ScrollMetrics reports a position that is always at the bottom.
func (p *Printer) ScrollMetrics() render.Metrics {
	return render.Metrics{}
}

func (p *Printer) ScrollToBottom() {}

// Apply writes what changed in the frame. Text already printed for a node
// is never printed again; growing text is written as a delta.
func (p *Printer) Apply(f render.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if f.Empty {
		p.nodes = orderedmap.New[string, *progress]()
		p.last = ""
		return
	}
	for _, id := range f.Removed {
		p.nodes.Delete(id)
	}
	for _, n := range f.Updated {
		p.printNode(n)
	}
}

func (p *Printer) progressOf(id string) *progress {
	pr, ok := p.nodes.Get(id)
	if !ok {
		pr = &progress{embeds: make(map[string]struct{})}
		p.nodes.Set(id, pr)
	}
	return pr
}

func (p *Printer) printNode(n *timeline.Node) {
	pr := p.progressOf(n.ID)
	if pr.done {
		return
	}

	switch n.Kind {
	case timeline.KindMessage:
		p.switchTo(n.ID)
		switch n.Role {
		case timeline.RoleUser:
			p.write(p.colors.bold.Sprint("> ") + n.Text + "\n")
		case timeline.RoleSystem:
			p.write(p.colors.red.Sprint(n.Text) + "\n")
		default:
			p.write(n.Text + "\n")
		}
		pr.done = true

	case timeline.KindThinking:
		p.printDelta(n.ID, pr, n.Text, func() {
			p.write(p.colors.dim.Sprint("thinking: "))
		}, p.colors.dim)
		if n.Status == timeline.StatusCompleted {
			p.newline()
			pr.done = true
		}

	case timeline.KindContent:
		p.printDelta(n.ID, pr, viewport.VisibleText(n.Text), nil, nil)
		p.printEmbeds(n, pr)
		if n.Status == timeline.StatusCompleted && !embedsLoading(n) {
			p.newline()
			pr.done = true
		}

	case timeline.KindTool:
		if !pr.header {
			p.switchTo(n.ID)
			p.write(fmt.Sprintf("%s %s\n", p.colors.cyan.Sprint("⚙"), p.colors.bold.Sprint(toolLabel(n))))
			pr.header = true
		}
		if n.Status != timeline.StatusCompleted && n.Status != timeline.StatusFailed {
			return
		}
		p.switchTo(n.ID)
		p.write(p.colors.dim.Sprint("  args ") + formatToolArguments(n.ArgsText) + "\n")
		if n.Result != nil {
			mark := p.colors.green.Sprint("  →")
			if n.Status == timeline.StatusFailed {
				mark = p.colors.red.Sprint("  ✗")
			}
			p.write(mark + formatToolResult(n.Result.Text) + "\n")
		}
		pr.done = true
	}
}

func (p *Printer) printDelta(id string, pr *progress, text string, header func(), c *color.Color) {
	if text == "" || text == pr.text {
		return
	}
	p.switchTo(id)
	if !pr.header {
		if header != nil {
			header()
		}
		pr.header = true
	}
	delta := text
	if strings.HasPrefix(text, pr.text) {
		delta = text[len(pr.text):]
	} else if pr.text != "" {
		p.newline()
	}
	if c != nil {
		delta = c.Sprint(delta)
	}
	p.write(delta)
	pr.text = text
}

func (p *Printer) printEmbeds(n *timeline.Node, pr *progress) {
	for _, seg := range n.Segments {
		if seg.Kind != timeline.SegmentViewport {
			continue
		}
		embed, ok := n.Embeds[seg.Signature]
		if !ok || embed.Loading {
			continue
		}
		if _, printed := pr.embeds[seg.Signature]; printed {
			continue
		}
		pr.embeds[seg.Signature] = struct{}{}

		p.switchTo(n.ID)
		p.newline()
		if embed.Error != "" {
			p.write(p.colors.red.Sprintf("[viewport %s] %s", embed.Key, embed.Error) + "\n")
			continue
		}
		p.write(p.colors.dim.Sprintf("[viewport %s]", embed.Key) + "\n")
		p.write(indent(htmlText(embed.HTML)) + "\n")
	}
}

func embedsLoading(n *timeline.Node) bool {
	for _, e := range n.Embeds {
		if e.Loading {
			return true
		}
	}
	return false
}

func toolLabel(n *timeline.Node) string {
	label := n.ToolName
	if label == "" {
		label = n.ToolID
	}
	if n.Description != "" {
		label += " - " + n.Description
	}
	return label
}

func htmlText(html string) string {
	return strings.TrimSpace(html2text.HTML2TextWithOptions(html, html2text.WithUnixLineBreaks()))
}

func indent(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}

func (p *Printer) StatusChanged(s session.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !s.Error {
		return
	}
	p.printError(errors.New(s.Text))
}

func (p *Printer) PlanChanged(v plan.View) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !v.Visible || v.Summary == p.planSummary {
		return
	}
	p.planSummary = v.Summary
	p.newline()
	line := fmt.Sprintf("plan %d/%d %s", v.Current, v.Total, v.Summary)
	if i := v.Current - 1; i >= 0 && i < len(v.Tasks) && v.Tasks[i].Status != "" {
		line += fmt.Sprintf(" [%s]", v.Tasks[i].Status)
	}
	p.write(p.colors.yellow.Sprint(line) + "\n")
	p.last = ""
}

func (p *Printer) SessionChanged(session.Snapshot) {}

func (p *Printer) DebugLogged(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.verbose {
		return
	}
	p.newline()
	p.write(p.colors.dim.Sprint("debug ", line) + "\n")
	p.last = ""
}

func (p *Printer) SetInputLocked(bool) {}

// ShowTool prints a frontend tool once it has something to show.
func (p *Printer) ShowTool(tool *frontendtool.Active) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if tool == nil {
		p.toolKey, p.toolHTML = "", ""
		return
	}
	if tool.Loading || (tool.Key == p.toolKey && tool.HTML == p.toolHTML && tool.SubmitError == "") {
		return
	}
	p.toolKey, p.toolHTML = tool.Key, tool.HTML

	p.newline()
	p.write(p.colors.yellow.Sprintf("◆ frontend tool %s awaits input", cmp.Or(tool.ToolName, tool.ToolKey)) + "\n")
	if tool.LoadError != "" {
		p.write(p.colors.red.Sprint("  "+tool.LoadError) + "\n")
	}
	if text := htmlText(tool.HTML); text != "" {
		p.write(indent(text) + "\n")
	}
	if tool.SubmitError != "" {
		p.write(p.colors.red.Sprint("  "+tool.SubmitError) + "\n")
	}
	p.last = ""
}

func (p *Printer) PostInit(frontendtool.InitMessage) {}

func (p *Printer) ShowPending(pending []frontendtool.Pending) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, t := range pending {
		if _, seen := p.pendingSeen[t.Key]; seen {
			continue
		}
		p.pendingSeen[t.Key] = struct{}{}
		p.newline()
		p.write(p.colors.yellow.Sprintf("◇ pending tool %s (%s)", cmp.Or(t.ToolName, t.ToolKey), t.Key) + "\n")
		p.last = ""
	}
}

func (p *Printer) SetTheme(theme string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.newline()
	p.write(p.colors.dim.Sprintf("theme switched to %s", theme) + "\n")
	p.last = ""
}

func (p *Printer) LaunchFireworks(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.newline()
	p.write(p.colors.yellow.Sprintf("🎆 fireworks for %s", d) + "\n")
	p.last = ""
}

func (p *Printer) ShowModal(m actions.Modal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.printRule(m.Title)
	if m.Content != "" {
		p.write(m.Content + "\n")
	}
	p.write(p.colors.dim.Sprintf("[%s]", m.CloseText) + "\n")
	p.last = ""
}

func formatToolArguments(arguments string) string {
	if strings.TrimSpace(arguments) == "" {
		return "()"
	}

	kv := orderedmap.New[string, any]()
	if err := json.Unmarshal([]byte(arguments), &kv); err == nil {
		if kv.Len() == 0 {
			return "()"
		}

		var (
			parts     []string
			multiline bool
		)
		for key, value := range kv.FromOldest() {
			formatted := formatJSONValue(key, value)
			parts = append(parts, formatted)
			multiline = multiline || strings.Contains(formatted, "\n")
		}

		if len(parts) == 1 && !multiline {
			return fmt.Sprintf("(%s)", parts[0])
		}
		return fmt.Sprintf("(\n    %s\n  )", strings.Join(parts, "\n    "))
	}

	return fmt.Sprintf("(%s)", strings.TrimSpace(arguments))
}

func formatToolResult(result string) string {
	trimmed := strings.TrimSpace(result)
	if trimmed == "" {
		return " ()"
	}
	if !strings.Contains(trimmed, "\n") {
		return " " + trimmed
	}

	var (
		formatted    []string
		lastWasEmpty bool
	)
	for line := range strings.SplitSeq(trimmed, "\n") {
		if strings.TrimSpace(line) == "" {
			if !lastWasEmpty {
				formatted = append(formatted, "")
				lastWasEmpty = true
			}
			continue
		}
		formatted = append(formatted, "    "+line)
		lastWasEmpty = false
	}
	return "\n" + strings.Join(formatted, "\n")
}

func formatJSONValue(key string, value any) string {
	switch v := value.(type) {
	case string:
		return fmt.Sprintf("%s: %q", key, v)
	case []any:
		if len(v) <= 1 {
			jsonBytes, _ := json.Marshal(v)
			return fmt.Sprintf("%s: %s", key, string(jsonBytes))
		}
		jsonBytes, _ := json.MarshalIndent(v, "    ", "  ")
		return fmt.Sprintf("%s: %s", key, string(jsonBytes))
	case map[string]any:
		jsonBytes, _ := json.MarshalIndent(v, "    ", "  ")
		return fmt.Sprintf("%s: %s", key, string(jsonBytes))
	default:
		jsonBytes, _ := json.Marshal(v)
		return fmt.Sprintf("%s: %s", key, string(jsonBytes))
	}
}

// PrintChats prints one line per chat: time, agent, title and id.
func (p *Printer) PrintChats(chats []api.Chat, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.newline()
	if len(chats) == 0 {
		p.write(p.colors.dim.Sprint("no chats") + "\n")
		return
	}
	for _, c := range chats {
		p.write(fmt.Sprintf("%-19s %-16s %s %s\n",
			chatlist.TimeLabel(c.UpdatedAt, now),
			ansi.Truncate(chatlist.AgentLabel(c), 16, "…"),
			p.colors.bold.Sprint(chatlist.Title(c)),
			p.colors.dim.Sprint(c.ChatID)))
	}
}

// PrintAgents prints one line per agent, marking the locked one.
func (p *Printer) PrintAgents(agents []api.Agent, locked string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.newline()
	if len(agents) == 0 {
		p.write(p.colors.dim.Sprint("no agents") + "\n")
		return
	}
	for _, a := range agents {
		mark := " "
		if a.Key == locked {
			mark = p.colors.green.Sprint("*")
		}
		line := fmt.Sprintf("%s @%s", mark, p.colors.bold.Sprint(a.Key))
		if a.Name != "" && a.Name != a.Key {
			line += " " + a.Name
		}
		if a.Description != "" {
			line += p.colors.dim.Sprint(" - " + a.Description)
		}
		p.write(line + "\n")
	}
}

var (
	_ render.Surface       = (*Printer)(nil)
	_ session.Observer     = (*Printer)(nil)
	_ frontendtool.Surface = (*Printer)(nil)
	_ actions.Host         = (*Printer)(nil)
)
