package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esgrag/internal/domain"
	"esgrag/internal/service"
)

type stubAsker struct {
	opts []service.Options
	err  error
}

func (s *stubAsker) Execute(_ context.Context, q string, opts service.Options) (domain.QueryResult, error) {
	s.opts = append(s.opts, opts)
	if s.err != nil {
		return domain.QueryResult{}, s.err
	}
	return domain.QueryResult{Mode: opts.Mode(), Answer: "Answer to " + q, Time: 1}, nil
}

func typeText(m Model, s string) Model {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return next.(Model)
}

func press(m Model, k tea.KeyType) (Model, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: k})
	return next.(Model), cmd
}

func TestEnterAsksAsynchronously(t *testing.T) {
	a := &stubAsker{}
	m := New(context.Background(), a, "notty")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	m = next.(Model)

	m = typeText(m, "water use")
	m, cmd := press(m, tea.KeyEnter)
	require.NotNil(t, cmd)
	assert.True(t, m.pending)
	assert.Empty(t, m.input.Value())
	assert.Empty(t, a.opts, "service is only called when the command runs")

	msg := cmd()
	next, _ = m.Update(msg)
	m = next.(Model)
	assert.False(t, m.pending)
	require.NotNil(t, m.result)
	assert.Equal(t, "Answer to water use", m.result.Answer)
	assert.Equal(t, []service.Options{{Accurate: false}}, a.opts)
	assert.Contains(t, m.renderResult(), "Answer to water use")
}

func TestTabTogglesMode(t *testing.T) {
	a := &stubAsker{}
	m := New(context.Background(), a, "notty")
	assert.Equal(t, domain.ModeFast, m.mode())

	m, _ = press(m, tea.KeyTab)
	assert.Equal(t, domain.ModeAccurate, m.mode())

	m = typeText(m, "scope 3")
	m, cmd := press(m, tea.KeyEnter)
	cmd()
	assert.Equal(t, []service.Options{{Accurate: true}}, a.opts)

	m, _ = press(m, tea.KeyTab)
	assert.Equal(t, domain.ModeFast, m.mode())
}

func TestEmptyInputAndPendingAreIgnored(t *testing.T) {
	m := New(context.Background(), &stubAsker{}, "notty")
	_, cmd := press(m, tea.KeyEnter)
	assert.Nil(t, cmd)

	m = typeText(m, "first")
	m, _ = press(m, tea.KeyEnter)
	m = typeText(m, "second")
	_, cmd = press(m, tea.KeyEnter)
	assert.Nil(t, cmd)
}

func TestErrorShownInStatus(t *testing.T) {
	m := New(context.Background(), &stubAsker{}, "notty")
	next, _ := m.Update(answerMsg{question: "q", err: errors.New("boom")})
	m = next.(Model)
	assert.Equal(t, "Error: boom", m.status)
	assert.Nil(t, m.result)
}

func TestCtrlCQuits(t *testing.T) {
	_, cmd := press(New(context.Background(), &stubAsker{}, "notty"), tea.KeyCtrlC)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
