// Package tui is the terminal wizard: pick the hierarchy one level per step,
// then tune parameters, talk to the assistant and save from the product
// step.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"configforge/internal/core"
	"configforge/pkg/domain"
)

type stepInfo struct {
	Name        string
	Description string
}

var steps = []stepInfo{
	{"Industry", "Select your industry sector"},
	{"Technology", "Choose the technology focus"},
	{"Solution", "Pick the solution type"},
	{"Variant", "Select solution variant"},
	{"Product", "Configure parameters and calculations"},
}

type mode int

const (
	modeBrowse mode = iota
	modeEdit
	modeAsk
	modeReview
)

type askResultMsg struct {
	result core.AskResult
	err    error
}

type savedMsg struct {
	key string
	err error
}

// Model is the bubbletea model of the wizard.
type Model struct {
	ctx    context.Context
	svc    *core.Service
	keys   keyMap
	help   help.Model
	input  textinput.Model
	mode   mode
	step   int
	cursor int

	editing string
	pending *core.AskResult
	answer  string
	status  string
	busy    bool
	width   int
}

// New builds the wizard over svc, resuming at the saved step.
func New(ctx context.Context, svc *core.Service) Model {
	ti := textinput.New()
	ti.CharLimit = 256
	step := svc.State().CurrentStep
	if step < core.FirstStep || step > core.LastStep {
		step = core.FirstStep
	}
	return Model{
		ctx:   ctx,
		svc:   svc,
		keys:  defaultKeyMap(),
		help:  help.New(),
		input: ti,
		step:  step,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil
	case askResultMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "assistant error: " + msg.err.Error()
			return m, nil
		}
		m.answer = msg.result.Answer
		m.status = ""
		if len(msg.result.Rejected) > 0 {
			m.status = fmt.Sprintf("%d proposal(s) rejected", len(msg.result.Rejected))
		}
		if len(msg.result.Suggestions) > 0 {
			res := msg.result
			m.pending = &res
		}
		return m, nil
	case savedMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "save failed: " + msg.err.Error()
		} else {
			m.status = "saved " + msg.key
		}
		return m, nil
	case tea.KeyMsg:
		switch m.mode {
		case modeEdit, modeAsk:
			return m.updateInput(msg)
		case modeReview:
			return m.updateReview(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < m.rows()-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Back):
		if m.step > core.FirstStep {
			m.goTo(m.step - 1)
		}
	case key.Matches(msg, m.keys.Select):
		return m.selectRow()
	}
	if m.step != core.LastStep {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Reset):
		if p, ok := m.currentParameter(); ok {
			m.report(m.svc.ResetParameter(m.ctx, p.ID), "reset "+p.Name)
		}
	case key.Matches(msg, m.keys.Ask):
		m.mode = modeAsk
		m.input.Placeholder = "Ask the assistant…"
		m.input.SetValue("")
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.Accept):
		if m.pending != nil {
			m.report(m.svc.ApplySuggestions(m.ctx, *m.pending), fmt.Sprintf("applied %d suggestion(s)", len(m.pending.Suggestions)))
			m.pending = nil
		}
	case key.Matches(msg, m.keys.Discard):
		if m.pending != nil {
			m.pending = nil
			m.status = "suggestions discarded"
		}
	case key.Matches(msg, m.keys.Rollback):
		m.report(m.svc.Rollback(m.ctx), "rolled back last patch")
	case key.Matches(msg, m.keys.Commit):
		m.report(m.svc.CommitPatches(m.ctx), "patches committed")
	case key.Matches(msg, m.keys.Review):
		m.mode = modeReview
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		m.mode = modeBrowse
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		m.input.Blur()
		current := m.mode
		m.mode = modeBrowse
		if current == modeAsk {
			if value == "" {
				return m, nil
			}
			m.busy = true
			m.status = "asking…"
			return m, m.askCmd(value)
		}
		m.commitEdit(value)
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateReview(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Back):
		m.mode = modeBrowse
	case key.Matches(msg, m.keys.Save):
		m.busy = true
		m.status = "saving…"
		return m, m.saveCmd()
	}
	return m, nil
}

func (m *Model) goTo(step int) {
	m.step = step
	m.cursor = 0
	if err := m.svc.SetCurrentStep(m.ctx, step); err != nil {
		m.status = err.Error()
	}
}

func (m Model) selectRow() (tea.Model, tea.Cmd) {
	if m.step < core.LastStep {
		options := m.svc.Options(domain.Level(m.step))
		if m.cursor >= len(options) {
			return m, nil
		}
		opt := options[m.cursor]
		if err := m.svc.SelectHierarchy(m.ctx, domain.Level(m.step), opt.ID); err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.status = "selected " + opt.Name
		m.goTo(m.step + 1)
		return m, nil
	}
	p, ok := m.currentParameter()
	if !ok {
		return m, nil
	}
	m.mode = modeEdit
	m.editing = p.ID
	m.input.Placeholder = "value (empty resets)"
	m.input.SetValue(formatNumber(p.Value))
	return m, m.input.Focus()
}

func (m *Model) commitEdit(value string) {
	id := m.editing
	m.editing = ""
	if value == "" {
		m.report(m.svc.ResetParameter(m.ctx, id), "reset "+id)
		return
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		m.status = fmt.Sprintf("%q is not a number", value)
		return
	}
	m.report(m.svc.UpdateParameter(m.ctx, id, core.ParamFieldValue, v), "updated "+id)
}

func (m *Model) report(err error, ok string) {
	if err != nil {
		m.status = err.Error()
		return
	}
	m.status = ok
}

func (m Model) askCmd(message string) tea.Cmd {
	ctx, svc := m.ctx, m.svc
	return func() tea.Msg {
		res, err := svc.Ask(ctx, message)
		return askResultMsg{result: res, err: err}
	}
}

func (m Model) saveCmd() tea.Cmd {
	ctx, svc := m.ctx, m.svc
	return func() tea.Msg {
		info, err := svc.SaveConfiguration(ctx)
		return savedMsg{key: info.Key, err: err}
	}
}

// rows is the number of selectable lines on the current step: options on
// steps 1-4, parameters on the product step.
func (m Model) rows() int {
	if m.step < core.LastStep {
		return len(m.svc.Options(domain.Level(m.step)))
	}
	return len(m.svc.Store().Parameters())
}

func (m Model) currentParameter() (domain.Parameter, bool) {
	params := m.svc.Store().Parameters()
	if m.cursor < 0 || m.cursor >= len(params) {
		return domain.Parameter{}, false
	}
	return params[m.cursor], true
}

func formatNumber(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
