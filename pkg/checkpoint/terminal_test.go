package checkpoint

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case keyEnter:
		return tea.KeyMsg{Type: tea.KeyEnter}
	case keyTab:
		return tea.KeyMsg{Type: tea.KeyTab}
	case keyEsc:
		return tea.KeyMsg{Type: tea.KeyEsc}
	case keyCtrlA:
		return tea.KeyMsg{Type: tea.KeyCtrlA}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestPromptModelDecisions(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want Decision
	}{
		{name: "y accepts", keys: []string{"y"}, want: GO},
		{name: "ctrl+a accepts", keys: []string{keyCtrlA}, want: GO},
		{name: "n rejects", keys: []string{"n"}, want: NotGO},
		{name: "esc rejects", keys: []string{keyEsc}, want: NotGO},
		{name: "enter defaults to reject", keys: []string{keyEnter}, want: NotGO},
		{name: "tab then enter accepts", keys: []string{keyTab, keyEnter}, want: GO},
		{name: "tab twice then enter rejects", keys: []string{keyTab, keyTab, keyEnter}, want: NotGO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newPromptModel(Request{Message: "Apply?"}, time.Minute)
			var cmd tea.Cmd
			for _, k := range tt.keys {
				_, cmd = m.Update(keyMsg(k))
			}
			assert.True(t, m.done)
			assert.NotNil(t, cmd)
			assert.Equal(t, tt.want, m.decision)
		})
	}
}

func TestPromptModelTimeout(t *testing.T) {
	m := newPromptModel(Request{Message: "Apply?"}, time.Minute)
	m.Update(keyMsg(keyTab))
	m.Update(timeoutMsg{})

	assert.True(t, m.done)
	assert.True(t, m.timedOut)
	assert.Equal(t, NotGO, m.decision)
	assert.Contains(t, m.View(), "timed out")
}

func TestPromptModelView(t *testing.T) {
	m := newPromptModel(Request{
		Message: "Apply major patch to shop.example.com?",
		Reason:  "checkout button moved",
		Domain:  "shop.example.com",
		StepID:  "pay",
		Detail:  `{"patch":[{"op":"policies.update","key":"cheapest"}]}`,
	}, time.Minute)

	view := m.View()
	assert.Contains(t, view, "Apply major patch to shop.example.com?")
	assert.Contains(t, view, "checkout button moved")
	assert.Contains(t, view, "pay")
	assert.Contains(t, view, "Accept")
	assert.Contains(t, view, "policies.update")
}

func TestHighlightJSON(t *testing.T) {
	assert.Equal(t, "", HighlightJSON("   "))
	assert.Equal(t, "not json", HighlightJSON("not json"))
	assert.Contains(t, HighlightJSON(`{"a":1}`), "a")
}
