package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// maxHistory bounds the number of entries kept on screen.
const maxHistory = 20

// Commands understood by the console besides invocations.
const (
	cmdReload = ":reload"
	cmdQuit   = ":quit"
)

// guest is the part of wapc.Host the console drives.
type guest interface {
	Call(ctx context.Context, operation string, payload []byte) ([]byte, error)
	ReplaceModule(ctx context.Context, module []byte) error
}

type entry struct {
	input  string
	output string
	err    error
}

type callResultMsg struct {
	input  string
	output []byte
	err    error
}

type reloadMsg struct {
	err error
}

type consoleModel struct {
	filename string
	guest    guest
	load     func() ([]byte, error)
	input    textinput.Model
	history  []entry
	swaps    int
	busy     bool
}

func newConsoleModel(filename string, g guest, load func() ([]byte, error)) *consoleModel {
	ti := textinput.New()
	ti.Placeholder = "operation payload"
	ti.Prompt = promptStyle.Render("> ")
	ti.Width = 60
	ti.Focus()

	return &consoleModel{
		filename: filename,
		guest:    g,
		load:     load,
		input:    ti,
	}
}

func (m *consoleModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if line == "" || m.busy {
				return m, nil
			}
			m.input.Reset()

			switch line {
			case cmdQuit:
				return m, tea.Quit
			case cmdReload:
				m.busy = true
				return m, m.reload
			}

			m.busy = true
			return m, m.call(line)
		}

	case callResultMsg:
		m.busy = false
		m.push(entry{input: msg.input, output: string(msg.output), err: msg.err})

		return m, nil

	case reloadMsg:
		m.busy = false
		e := entry{input: cmdReload, err: msg.err}
		if msg.err == nil {
			m.swaps++
			e.output = fmt.Sprintf("module replaced (swap #%d)", m.swaps)
		}
		m.push(e)

		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)

	return m, cmd
}

func (m *consoleModel) push(e entry) {
	m.history = append(m.history, e)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
}

// call returns a command invoking the guest with the operation and payload in line.
func (m *consoleModel) call(line string) tea.Cmd {
	operation, payload, _ := strings.Cut(line, " ")

	return func() tea.Msg {
		out, err := m.guest.Call(context.Background(), operation, []byte(payload))
		return callResultMsg{input: line, output: out, err: err}
	}
}

func (m *consoleModel) reload() tea.Msg {
	code, err := m.load()
	if err != nil {
		return reloadMsg{err: err}
	}

	return reloadMsg{err: m.guest.ReplaceModule(context.Background(), code)}
}

func (m *consoleModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("waPC console"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	for _, e := range m.history {
		b.WriteString(promptStyle.Render("> " + e.input))
		b.WriteString("\n")
		if e.err != nil {
			b.WriteString(errorStyle.Render("error: " + e.err.Error()))
		} else {
			b.WriteString(resultStyle.Render(e.output))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter call • :reload hot-swap module • :quit or esc exit"))

	return b.String()
}
