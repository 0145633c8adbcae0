package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-host/bootstrap"
	"github.com/wippyai/wasm-host/descriptor"
	"github.com/wippyai/wasm-host/linker"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	outputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D3D3D3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

// interactiveModel keeps one instance alive for the whole session, so
// resource handles and guest memory persist between calls.
type interactiveModel struct {
	ctx      context.Context
	err      error
	bundle   *bootstrap.Bundle
	instance *linker.Instance
	pipeline bootstrap.Pipeline
	filename string
	result   string
	output   string
	exports  []descriptor.Export
	inputs   []textinput.Model
	seen     int
	selected int
	focusIdx int
	state    modelState
}

func newInteractiveModel(ctx context.Context, p bootstrap.Pipeline, filename string) *interactiveModel {
	return &interactiveModel{
		ctx:      ctx,
		pipeline: p,
		filename: filename,
		state:    stateSelectFunc,
	}
}

type loadedMsg struct {
	err      error
	bundle   *bootstrap.Bundle
	instance *linker.Instance
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

// load runs phase one and instantiates once.
func (m *interactiveModel) load() tea.Msg {
	ctx := m.ctx
	p := m.pipeline

	b, err := bootstrap.Prepare(ctx, p)
	if err != nil {
		return loadedMsg{err: err}
	}

	l, err := link(b, p)
	if err != nil {
		_ = b.Close(ctx)
		return loadedMsg{err: err}
	}

	inst, err := l.Instantiate(ctx, b.Artifact, b.Context)
	if err != nil {
		_ = b.Close(ctx)
		return loadedMsg{err: err}
	}
	return loadedMsg{bundle: b, instance: inst}
}

func (m *interactiveModel) close() {
	if m.instance != nil {
		_ = m.instance.Close(m.ctx)
	}
	if m.bundle != nil {
		_ = m.bundle.Close(m.ctx)
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.close()
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				m.close()
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.exports)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.exports) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.call()
				}
				m.state = stateInputArgs
				return m, nil

			case stateInputArgs:
				return m, m.call()

			case stateShowResult:
				m.reset()
				return m, nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.reset()
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.bundle = msg.bundle
		m.instance = msg.instance
		m.exports = msg.instance.Exports()

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.output = m.drainOutput()
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		cmds := make([]tea.Cmd, 0, len(m.inputs))
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) reset() {
	m.state = stateSelectFunc
	m.result = ""
	m.output = ""
	m.err = nil
}

// drainOutput returns the guest stdout written since the previous call.
func (m *interactiveModel) drainOutput() string {
	if m.bundle == nil {
		return ""
	}
	out := m.bundle.Context.Stdout()
	if m.seen > len(out) {
		m.seen = 0
	}
	fresh := out[m.seen:]
	m.seen = len(out)
	return string(fresh)
}

func (m *interactiveModel) prepareInputs() {
	fn := m.exports[m.selected].Func
	m.inputs = make([]textinput.Model, len(fn.Params))
	for i, p := range fn.Params {
		ti := textinput.New()
		ti.Placeholder = descriptor.TypeString(p.Type)
		ti.Prompt = p.Name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

// call snapshots the selection and the field values so the command does
// not read the model off the update goroutine.
func (m *interactiveModel) call() tea.Cmd {
	ctx := m.ctx
	inst := m.instance
	exp := m.exports[m.selected]
	values := make([]string, len(m.inputs))
	for i, in := range m.inputs {
		values[i] = in.Value()
	}

	return func() tea.Msg {
		if inst == nil {
			return callResultMsg{err: fmt.Errorf("instance not loaded")}
		}
		args, err := convertArgs(exp.Func, values)
		if err != nil {
			return callResultMsg{err: err}
		}
		result, err := inst.Call(ctx, exp.Name, args...)
		if err != nil {
			return callResultMsg{err: err}
		}
		if result == nil {
			return callResultMsg{result: "(no result)"}
		}
		return callResultMsg{result: fmt.Sprintf("%v", result)}
	}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.instance == nil {
		return "Loading guest..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("WASM Runner"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.exports) == 0 {
			b.WriteString("The guest exports no functions.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select a function to call:\n\n")
		for i, e := range m.exports {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + plainFunc(e)))
			} else {
				b.WriteString("  " + formatFunc(e))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		e := m.exports[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(e.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(descriptor.TypeString(e.Func.Params[i].Type)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		e := m.exports[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(e.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		if m.output != "" {
			b.WriteString("\n\n--- stdout ---\n")
			b.WriteString(outputStyle.Render(m.output))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func formatFunc(e descriptor.Export) string {
	params := make([]string, 0, len(e.Func.Params))
	for _, p := range e.Func.Params {
		params = append(params, p.Name+": "+typeStyle.Render(descriptor.TypeString(p.Type)))
	}
	result := ""
	if e.Func.Result != nil {
		result = " -> " + typeStyle.Render(descriptor.TypeString(e.Func.Result))
	}
	return funcStyle.Render(e.Name) + "(" + strings.Join(params, ", ") + ")" + result
}

// plainFunc renders e without nested styles so the selection highlight
// covers the whole line.
func plainFunc(e descriptor.Export) string {
	return e.Name + strings.TrimPrefix(e.Func.Signature(), "func")
}

func runInteractive(ctx context.Context, p bootstrap.Pipeline, filename string) error {
	prog := tea.NewProgram(newInteractiveModel(ctx, p, filename), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := prog.Run()
	return err
}
