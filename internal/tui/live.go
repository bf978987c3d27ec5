// Package tui renders a live terminal view of a descent run.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/quadkit/descent/internal/experiment"
	"github.com/quadkit/descent/internal/manager"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

const (
	frameInterval = 50 * time.Millisecond
	barRows       = 18
	barCeiling    = 2.0 // m shown on the altitude bar
)

type tickMsg time.Time

func frame() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type model struct {
	run    *experiment.Descent
	last   experiment.Tick
	steps  int // control ticks per frame, keeps sim time ~wall time
	done   bool
	paused bool
}

func NewModel(run *experiment.Descent, dt float64) model {
	steps := int(frameInterval.Seconds() / dt)
	if steps < 1 {
		steps = 1
	}
	return model{run: run, steps: steps}
}

func (m model) Init() tea.Cmd { return frame() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
		case "e":
			m.run.Manager().Emergency("operator request")
		}
		return m, nil
	case tickMsg:
		if m.done {
			return m, nil
		}
		if !m.paused {
			for i := 0; i < m.steps; i++ {
				tick, more := m.run.Step()
				if more || tick.T > 0 {
					m.last = tick
				}
				if !more {
					m.done = true
					break
				}
			}
		}
		return m, frame()
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(cyan.Render("descent · live") + "\n\n")

	t := m.last
	modeStyle := green
	if t.Mode == manager.Emergency {
		modeStyle = red
	}

	b.WriteString(fmt.Sprintf("  %s  %s   %s %s   %s %6.2fs\n",
		dim.Render("mode"), modeStyle.Render(t.Mode.String()),
		dim.Render("phase"), white.Render(t.Phase),
		dim.Render("t"), t.T))
	b.WriteString(fmt.Sprintf("  %s %5.2fm  %s %5.2fm  %s %5.2f\n\n",
		dim.Render("z"), t.State.Pos[2],
		dim.Render("target"), t.Target.Pos[2],
		dim.Render("thrust"), t.Out.Thrust))

	b.WriteString(m.altitudeBar(t))

	if m.done {
		b.WriteString("\n" + yellow.Render("  run complete · q to exit") + "\n")
	} else {
		b.WriteString("\n" + dim.Render("  space pause · e emergency · q quit") + "\n")
	}
	return b.String()
}

// altitudeBar draws vehicle (◆) and setpoint (─) on a vertical scale.
func (m model) altitudeBar(t experiment.Tick) string {
	rowOf := func(z float64) int {
		r := barRows - 1 - int(z/barCeiling*float64(barRows-1))
		if r < 0 {
			r = 0
		}
		if r > barRows-1 {
			r = barRows - 1
		}
		return r
	}
	zRow := rowOf(t.State.Pos[2])
	tgtRow := rowOf(t.Target.Pos[2])

	var b strings.Builder
	for r := 0; r < barRows; r++ {
		alt := barCeiling * float64(barRows-1-r) / float64(barRows-1)
		b.WriteString(dim.Render(fmt.Sprintf("  %4.1f │", alt)))
		switch {
		case r == zRow && r == tgtRow:
			b.WriteString(green.Render(" ◆") + dim.Render(" ─ on target"))
		case r == zRow:
			b.WriteString(white.Render(" ◆"))
		case r == tgtRow:
			b.WriteString(yellow.Render(" ─"))
		}
		b.WriteString("\n")
	}
	b.WriteString(dim.Render("       └" + strings.Repeat("─", 16)) + "\n")
	return b.String()
}

// Run blocks until the view exits.
func Run(run *experiment.Descent, dt float64) error {
	_, err := tea.NewProgram(NewModel(run, dt)).Run()
	return err
}
