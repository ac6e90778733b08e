package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tieubaoca/course-assistant/types"
)

// askFunc answers one question given the prior conversation.
type askFunc func(ctx context.Context, question string, history []types.Message) string

var (
	headerStyle    = lipgloss.NewStyle().Background(lipgloss.Color("62")).Foreground(lipgloss.Color("230")).Padding(0, 1)
	studentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	hintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const (
	headerHeight = 2
	footerHeight = 3
)

type answerMsg struct {
	question string
	answer   string
}

type chatModel struct {
	ctx      context.Context
	ask      askFunc
	title    string
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	history  []types.Message
	pending  string
	waiting  bool
	width    int
}

func newChatModel(ctx context.Context, title string, ask askFunc) *chatModel {
	ti := textinput.New()
	ti.Placeholder = "Ask a question about the course..."
	ti.Prompt = "Student: "
	ti.CharLimit = 0
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = assistantStyle

	return &chatModel{
		ctx:      ctx,
		ask:      ask,
		title:    title,
		input:    ti,
		viewport: viewport.New(80, 20),
		spinner:  s,
	}
}

func askQuestionCmd(ctx context.Context, ask askFunc, question string, history []types.Message) tea.Cmd {
	return func() tea.Msg {
		return answerMsg{question: question, answer: ask(ctx, question, history)}
	}
}

func (m *chatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.waiting {
				return m, nil
			}
			return m, m.submit()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-headerHeight-footerHeight, 1)
		m.input.Width = max(msg.Width-len(m.input.Prompt)-2, 10)
		m.refresh()

	case answerMsg:
		m.history = append(m.history,
			types.Message{Role: types.RoleUser, Content: msg.question},
			types.Message{Role: types.RoleAssistant, Content: msg.answer},
		)
		m.pending = ""
		m.waiting = false
		m.input.Focus()
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	if !m.waiting {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// submit handles the input line: exit and quit leave, /clear drops the
// conversation, anything else is sent to the assistant.
func (m *chatModel) submit() tea.Cmd {
	question := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	switch strings.ToLower(question) {
	case "":
		return nil
	case "exit", "quit":
		return tea.Quit
	case "/clear":
		m.history = nil
		m.refresh()
		return nil
	}

	history := make([]types.Message, len(m.history))
	copy(history, m.history)
	m.pending = question
	m.waiting = true
	m.input.Blur()
	m.refresh()
	return tea.Batch(m.spinner.Tick, askQuestionCmd(m.ctx, m.ask, question, history))
}

func (m *chatModel) refresh() {
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m *chatModel) transcript() string {
	var b strings.Builder
	wrap := lipgloss.NewStyle().Width(max(m.viewport.Width, 20))
	for _, msg := range m.history {
		switch msg.Role {
		case types.RoleUser:
			b.WriteString(wrap.Render(studentStyle.Render("Student: ") + msg.Content))
		case types.RoleAssistant:
			b.WriteString(wrap.Render(assistantStyle.Render("Assistant: ") + msg.Content))
		}
		b.WriteString("\n\n")
	}
	if m.pending != "" {
		b.WriteString(wrap.Render(studentStyle.Render("Student: ") + m.pending))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *chatModel) View() string {
	var footer string
	if m.waiting {
		footer = fmt.Sprintf("%s thinking...", m.spinner.View())
	} else {
		footer = m.input.View()
	}
	return fmt.Sprintf("%s\n\n%s\n%s\n%s",
		headerStyle.Render(m.title),
		m.viewport.View(),
		footer,
		hintStyle.Render("enter: send · /clear: new conversation · exit or esc: quit"),
	)
}
