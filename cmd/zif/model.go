package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/colinmarc/zif/zmachine"
)

var (
	statusBarStyle = lipgloss.NewStyle().Reverse(true)
	errorStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff5555"))
)

// keyToZChar maps a bubbletea key event to the ZSCII code read_char expects,
// per the Z-machine standard's input-character table (cursor keys 129-132,
// plus enter, escape and delete); function keys are not mapped, and
// everything else falls back to its first rune.
func keyToZChar(msg tea.KeyMsg) uint8 {
	switch msg.Type {
	case tea.KeyUp:
		return 129
	case tea.KeyDown:
		return 130
	case tea.KeyLeft:
		return 131
	case tea.KeyRight:
		return 132
	case tea.KeyEnter:
		return 13
	case tea.KeyEscape:
		return 27
	case tea.KeyBackspace:
		return 8
	default:
		if len(msg.Runes) > 0 {
			return uint8(msg.Runes[0])
		}
		return 0
	}
}

// runModel is the bubbletea model driving one running story. All output
// state lives in sharedScreen, written by the interpreter goroutine through
// hostAdapter and read here on every render.
type runModel struct {
	shared *sharedScreen
	cancel context.CancelFunc

	width, height int

	waitingLine bool
	waitingChar bool
	lineResp    chan<- []byte
	charResp    chan<- uint8
	input       textinput.Model

	quitting bool
	finalErr error
}

func newRunModel(z *zmachine.ZMachine, ctx context.Context, cancel context.CancelFunc, shared *sharedScreen) runModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 255
	ti.Focus()

	return runModel{
		shared: shared,
		cancel: cancel,
		input:  ti,
	}
}

func runInterpreter(ctx context.Context, z *zmachine.ZMachine) tea.Cmd {
	return func() tea.Msg {
		return runDoneMsg{err: z.Run(ctx)}
	}
}

func (m runModel) Init() tea.Cmd {
	return tea.WindowSize()
}

func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = msg.Width - len(m.input.Prompt) - 1
		return m, nil

	case inputRequestMsg:
		if msg.lineResp != nil {
			m.waitingLine = true
			m.lineResp = msg.lineResp
			m.input.SetValue("")
			m.input.CharLimit = msg.maxLen
		} else {
			m.waitingChar = true
			m.charResp = msg.charResp
		}
		return m, nil

	case refreshMsg:
		return m, nil

	case runDoneMsg:
		m.quitting = true
		m.finalErr = msg.err
		return m, tea.Quit

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.cancel()
			m.quitting = true
			return m, tea.Quit
		}

		if m.waitingChar {
			m.waitingChar = false
			resp := m.charResp
			m.charResp = nil
			resp <- keyToZChar(msg)
			return m, nil
		}

		if m.waitingLine {
			if msg.Type == tea.KeyEnter {
				m.waitingLine = false
				resp := m.lineResp
				m.lineResp = nil
				line := m.input.Value()
				m.shared.mu.Lock()
				m.shared.lowerText.WriteString(line + "\n")
				m.shared.mu.Unlock()
				m.input.SetValue("")
				resp <- []byte(line)
				return m, nil
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

func (m runModel) View() string {
	if m.quitting {
		if m.finalErr != nil && m.finalErr != context.Canceled {
			return errorStyle.Render(fmt.Sprintf("zif: %v\n", m.finalErr))
		}
		return ""
	}
	if m.width == 0 {
		return "initializing..."
	}

	m.shared.mu.Lock()
	defer m.shared.mu.Unlock()

	var b strings.Builder

	if m.shared.statusBar.PlaceName != "" {
		b.WriteString(statusBarStyle.Render(renderStatusLine(m.width, m.shared.statusBar)))
		b.WriteByte('\n')
	}
	for _, line := range m.shared.upperLines {
		runes := []rune(line)
		if len(runes) > m.width {
			runes = runes[:m.width]
		}
		b.WriteString(string(runes))
		b.WriteByte('\n')
	}

	lowerHeight := m.height - len(m.shared.upperLines) - 1
	if m.shared.statusBar.PlaceName != "" {
		lowerHeight = m.height - 1
	}

	wrapped := wordwrap.String(m.shared.lowerText.String(), m.width)
	lines := strings.Split(wrapped, "\n")
	if extra := len(lines) - lowerHeight; extra > 0 {
		lines = lines[extra:]
	}
	b.WriteString(strings.Join(lines, "\n"))

	if m.waitingLine {
		b.WriteByte('\n')
		b.WriteString(m.input.View())
	}

	return b.String()
}

func renderStatusLine(width int, bar zmachine.StatusBar) string {
	right := fmt.Sprintf("Score: %d   Moves: %d", bar.Score, bar.Moves)
	if bar.IsTimeBased {
		right = fmt.Sprintf("Time: %d:%02d", bar.Score, bar.Moves)
	}
	if len(right) >= width {
		return right[:width]
	}
	left := bar.PlaceName
	if len(left)+len(right)+1 >= width {
		left = left[:max(0, width-len(right)-1)]
	}
	pad := width - len(left) - len(right)
	return left + strings.Repeat(" ", pad) + right
}
