package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const (
	keyCtrlA = "ctrl+a"
	keyCtrlC = "ctrl+c"
	keyCtrlR = "ctrl+r"
	keyTab   = "tab"
	keyEnter = "enter"
	keyLeft  = "left"
	keyRight = "right"
	keyEsc   = "esc"
)

// TerminalGate asks for a decision on an interactive terminal.
type TerminalGate struct {
	in      io.Reader
	out     io.Writer
	timeout time.Duration
}

// NewTerminalGate creates a gate reading keys from in and drawing to out.
// A non-positive timeout uses DefaultTimeout.
func NewTerminalGate(in io.Reader, out io.Writer, timeout time.Duration) *TerminalGate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TerminalGate{in: in, out: out, timeout: timeout}
}

// RequestApproval implements Gate.
func (g *TerminalGate) RequestApproval(ctx context.Context, req Request) (Decision, error) {
	m := newPromptModel(req, g.timeout)
	p := tea.NewProgram(m,
		tea.WithInput(g.in),
		tea.WithOutput(g.out),
		tea.WithContext(ctx),
	)
	final, err := p.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return NotGO, ctxErr
	}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return NotGO, fmt.Errorf("checkpoint prompt: %w", err)
	}
	if pm, ok := final.(*promptModel); ok {
		return pm.decision, nil
	}
	return NotGO, nil
}

type choice int

const (
	choiceAccept choice = iota
	choiceReject
)

type timeoutMsg struct{}

// promptModel is the bubbletea model behind TerminalGate.
type promptModel struct {
	req      Request
	timeout  time.Duration
	selected choice
	decision Decision
	done     bool
	timedOut bool
}

func newPromptModel(req Request, timeout time.Duration) *promptModel {
	return &promptModel{req: req, timeout: timeout, selected: choiceReject, decision: NotGO}
}

func (m *promptModel) Init() tea.Cmd {
	return tea.Tick(m.timeout, func(time.Time) tea.Msg { return timeoutMsg{} })
}

func (m *promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case timeoutMsg:
		m.timedOut = true
		return m.finish(NotGO)
	case tea.KeyMsg:
		switch msg.String() {
		case keyCtrlA, "y", "Y":
			return m.finish(GO)
		case keyCtrlR, keyCtrlC, keyEsc, "n", "N":
			return m.finish(NotGO)
		case keyTab, keyLeft, keyRight:
			if m.selected == choiceAccept {
				m.selected = choiceReject
			} else {
				m.selected = choiceAccept
			}
		case keyEnter:
			if m.selected == choiceAccept {
				return m.finish(GO)
			}
			return m.finish(NotGO)
		}
	}
	return m, nil
}

func (m *promptModel) finish(d Decision) (tea.Model, tea.Cmd) {
	m.decision = d
	m.done = true
	return m, tea.Quit
}

func (m *promptModel) View() string {
	if m.done {
		if m.timedOut {
			return hintStyle.Render("Checkpoint timed out, treating as NOT_GO") + "\n"
		}
		return hintStyle.Render("Decision: "+string(m.decision)) + "\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Checkpoint"))
	b.WriteString("\n\n")
	b.WriteString(m.req.Message)
	b.WriteString("\n")

	if m.req.Domain != "" || m.req.StepID != "" {
		b.WriteString("\n")
		if m.req.Domain != "" {
			b.WriteString(labelStyle.Render("Domain: ") + m.req.Domain + "\n")
		}
		if m.req.StepID != "" {
			b.WriteString(labelStyle.Render("Step: ") + m.req.StepID + "\n")
		}
	}
	if m.req.Reason != "" {
		b.WriteString(labelStyle.Render("Reason: ") + m.req.Reason + "\n")
	}
	if m.req.ScreenshotRef != "" {
		b.WriteString(labelStyle.Render("Screenshot: ") + m.req.ScreenshotRef + "\n")
	}
	if m.req.Detail != "" {
		b.WriteString("\n")
		b.WriteString(boxStyle.Render(HighlightJSON(m.req.Detail)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderButtons())
	b.WriteString("\n")
	b.WriteString(hintStyle.Render("y/Ctrl+A: Accept • n/Ctrl+R: Reject • Tab: Toggle • Enter: Submit"))
	b.WriteString("\n")
	return b.String()
}

func (m *promptModel) renderButtons() string {
	accept, reject := idleButtonStyle.Render(" ✓ Accept "), idleButtonStyle.Render(" ✗ Reject ")
	if m.selected == choiceAccept {
		accept = acceptStyle.Render(" ✓ Accept ")
	} else {
		reject = rejectStyle.Render(" ✗ Reject ")
	}
	return accept + "  " + reject
}
