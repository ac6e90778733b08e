package cmd

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/course-assistant/types"
)

type recordedAsk struct {
	question string
	history  []types.Message
}

func newTestChatModel(t *testing.T) (*chatModel, *[]recordedAsk) {
	t.Helper()
	var calls []recordedAsk
	ask := func(_ context.Context, q string, h []types.Message) string {
		calls = append(calls, recordedAsk{question: q, history: h})
		return "answer to " + q
	}
	m := newChatModel(context.Background(), "Course assistant", ask)
	_, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m, &calls
}

// send types a line, presses enter and runs the resulting commands until the
// answer arrives.
func send(t *testing.T, m *chatModel, line string) tea.Cmd {
	t.Helper()
	m.input.SetValue(line)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return cmd
}

func deliverAnswer(t *testing.T, m *chatModel, cmd tea.Cmd) {
	t.Helper()
	require.NotNil(t, cmd)
	batch, ok := cmd().(tea.BatchMsg)
	require.True(t, ok)
	for _, c := range batch {
		if c == nil {
			continue
		}
		if msg, ok := c().(answerMsg); ok {
			_, _ = m.Update(msg)
			return
		}
	}
	t.Fatal("no answer message in batch")
}

func TestChatModel_Conversation(t *testing.T) {
	m, calls := newTestChatModel(t)

	cmd := send(t, m, "  what is overfitting?  ")
	assert.True(t, m.waiting)
	assert.Equal(t, "what is overfitting?", m.pending)
	assert.Contains(t, m.View(), "thinking...")
	deliverAnswer(t, m, cmd)

	assert.False(t, m.waiting)
	require.Len(t, m.history, 2)
	assert.Equal(t, types.Message{Role: types.RoleAssistant, Content: "answer to what is overfitting?"}, m.history[1])

	cmd = send(t, m, "and underfitting?")
	deliverAnswer(t, m, cmd)

	require.Len(t, *calls, 2)
	assert.Empty(t, (*calls)[0].history)
	assert.Len(t, (*calls)[1].history, 2)
	require.Len(t, m.history, 4)

	view := m.View()
	assert.Contains(t, view, "Student: ")
	assert.Contains(t, view, "Assistant: ")
	assert.Contains(t, view, "answer to and underfitting?")
}

func TestChatModel_Commands(t *testing.T) {
	m, calls := newTestChatModel(t)

	assert.Nil(t, send(t, m, "   "))
	assert.False(t, m.waiting)

	deliverAnswer(t, m, send(t, m, "hello"))
	require.Len(t, m.history, 2)

	assert.Nil(t, send(t, m, "/clear"))
	assert.Empty(t, m.history)
	assert.False(t, strings.Contains(m.View(), "answer to hello"))

	for _, word := range []string{"exit", "QUIT"} {
		cmd := send(t, m, word)
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())
	}
	assert.Len(t, *calls, 1)
}

func TestChatModel_EnterIgnoredWhileWaiting(t *testing.T) {
	m, calls := newTestChatModel(t)

	cmd := send(t, m, "first")
	require.True(t, m.waiting)
	assert.Nil(t, send(t, m, "second"))
	deliverAnswer(t, m, cmd)

	require.Len(t, *calls, 1)
	assert.Equal(t, "first", (*calls)[0].question)
}
