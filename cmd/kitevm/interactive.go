package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kitevm/kite-runtime/coro"
	"github.com/kitevm/kite-runtime/frame"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	yieldStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateConfig modelState = iota
	stateRun
)

type inspectorModel struct {
	err      error
	state    modelState
	inputs   []textinput.Model
	focusIdx int

	sess        *session
	seed        uint64
	step        int64
	yields      []uint64
	done        bool
	clone       *coro.Generator
	cloneYields []uint64
	cloneDone   bool
}

type sessionMsg struct {
	err  error
	sess *session
	seed uint64
	step int64
}

func newInspectorModel() *inspectorModel {
	seedInput := textinput.New()
	seedInput.Prompt = "seed: "
	seedInput.Placeholder = "5"
	seedInput.Width = 20
	seedInput.Focus()

	stepInput := textinput.New()
	stepInput.Prompt = "step: "
	stepInput.Placeholder = "1"
	stepInput.Width = 20

	return &inspectorModel{
		state:  stateConfig,
		inputs: []textinput.Model{seedInput, stepInput},
	}
}

func (m *inspectorModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *inspectorModel) startSession() tea.Msg {
	seed := uint64(5)
	if v := strings.TrimSpace(m.inputs[0].Value()); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return sessionMsg{err: fmt.Errorf("seed: %w", err)}
		}
		seed = parsed
	}
	step := int64(1)
	if v := strings.TrimSpace(m.inputs[1].Value()); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return sessionMsg{err: fmt.Errorf("step: %w", err)}
		}
		if parsed <= 0 {
			return sessionMsg{err: fmt.Errorf("step must be positive, got %d", parsed)}
		}
		step = parsed
	}

	sess, err := newSession(context.Background(), seed, step)
	if err != nil {
		return sessionMsg{err: err}
	}
	return sessionMsg{sess: sess, seed: seed, step: step}
}

func (m *inspectorModel) teardown() {
	if m.clone != nil && !m.clone.Frame().Released() {
		m.clone.Close()
	}
	if m.sess != nil {
		m.sess.close(context.Background())
	}
	m.sess = nil
	m.clone = nil
	m.yields = nil
	m.cloneYields = nil
	m.done = false
	m.cloneDone = false
}

func (m *inspectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.teardown()
			return m, tea.Quit

		case "tab":
			if m.state == stateConfig {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "enter":
			switch m.state {
			case stateConfig:
				return m, m.startSession
			case stateRun:
				m.resumeMain()
			}

		case "c":
			if m.state == stateRun && m.sess != nil && m.clone == nil && !m.done {
				clone, err := m.sess.gen.Clone(m.sess.factory, frame.Linkage{})
				if err != nil {
					m.err = err
				} else {
					m.clone = clone
				}
			}

		case "x":
			if m.state == stateRun && m.clone != nil && !m.cloneDone {
				value, done, err := m.clone.Resume(context.Background())
				if err != nil {
					m.err = err
				} else {
					m.cloneYields = append(m.cloneYields, value)
					m.cloneDone = done
				}
			}

		case "esc":
			if m.state == stateRun {
				m.teardown()
				m.err = nil
				m.state = stateConfig
			}
		}

	case sessionMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.sess = msg.sess
		m.seed = msg.seed
		m.step = msg.step
		m.state = stateRun
	}

	if m.state == stateConfig {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *inspectorModel) resumeMain() {
	if m.sess == nil || m.done {
		return
	}
	value, done, err := m.sess.gen.Resume(context.Background())
	if err != nil {
		m.err = err
		return
	}
	m.yields = append(m.yields, value)
	m.done = done
}

func (m *inspectorModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("KiteVM Frame Inspector"))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
	}

	switch m.state {
	case stateConfig:
		b.WriteString("Configure the countdown generator:\n\n")
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter start • q quit"))

	case stateRun:
		b.WriteString(fmt.Sprintf("Countdown from %d by %d\n\n", m.seed, m.step))
		b.WriteString(m.renderGenerator("generator", m.sess.gen, m.yields, m.done))
		if m.clone != nil {
			b.WriteString("\n")
			b.WriteString(m.renderGenerator("clone", m.clone, m.cloneYields, m.cloneDone))
		}

		st := m.sess.heap.Stats()
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("arena"))
		b.WriteString(fmt.Sprintf("  %d blocks, %d bytes live, %d/%d alloc/free\n",
			st.LiveBlocks, st.LiveBytes, st.TotalAllocs, st.TotalFrees))

		b.WriteString("\n")
		help := "enter resume • c clone • esc reconfigure • q quit"
		if m.clone != nil {
			help = "enter resume • x resume clone • esc reconfigure • q quit"
		}
		b.WriteString(helpStyle.Render(help))
	}

	return b.String()
}

func (m *inspectorModel) renderGenerator(name string, gen *coro.Generator, yields []uint64, done bool) string {
	var b strings.Builder

	fr := gen.Frame()
	b.WriteString(labelStyle.Render(name))
	b.WriteString(fmt.Sprintf("  %s, block %d bytes at 0x%x\n",
		fr.Func().Name, fr.Size(), fr.LocalsAddr()))

	status, _ := gen.Status()
	addr, _ := fr.ResumeAddr()
	offset, _ := fr.ResumeOffset()
	ar, _ := fr.ActRec()

	b.WriteString(fmt.Sprintf("  status %s  resume addr %d  offset %d\n",
		valueStyle.Render(status.String()), addr, offset))
	b.WriteString(fmt.Sprintf("  actrec: fp 0x%x ret 0x%x flags %#x varenv %d\n",
		ar.SavedFP, ar.SavedRet, ar.Flags, ar.VarEnvID))

	if local, err := fr.Local(0); err == nil {
		b.WriteString(fmt.Sprintf("  local[0] %s\n", valueStyle.Render(strconv.FormatUint(local, 10))))
	}

	if len(yields) > 0 {
		shown := yields
		if len(shown) > 8 {
			shown = shown[len(shown)-8:]
		}
		parts := make([]string, len(shown))
		for i, v := range shown {
			parts[i] = strconv.FormatUint(v, 10)
		}
		b.WriteString("  yields: ")
		b.WriteString(yieldStyle.Render(strings.Join(parts, " ")))
		if done {
			b.WriteString(" ")
			b.WriteString(doneStyle.Render(" done "))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func runInteractive() error {
	p := tea.NewProgram(newInspectorModel(), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
