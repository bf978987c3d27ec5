// Package manager owns the mode state machine that selects and drives
// exactly one active control law, wrapping it with the safety
// interlocks that may force the EMERGENCY mode.
package manager

import (
	"fmt"
	"math"
	"time"

	"github.com/quadkit/descent/internal/flight"
)

type Mode int

const (
	Manual Mode = iota
	Attitude
	Position
	Velocity
	Trajectory
	Emergency
)

var modeNames = map[Mode]string{
	Manual:     "MANUAL",
	Attitude:   "ATTITUDE",
	Position:   "POSITION",
	Velocity:   "VELOCITY",
	Trajectory: "TRAJECTORY",
	Emergency:  "EMERGENCY",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// transitions lists the permitted normal-mode switches. Emergency is
// reachable from anywhere and terminal for the tick loop; only an
// external restart (out of core scope) leaves it.
var transitions = map[Mode][]Mode{
	Manual:     {Attitude, Position, Velocity, Trajectory},
	Attitude:   {Manual, Position, Velocity, Trajectory},
	Position:   {Manual, Attitude, Velocity, Trajectory},
	Velocity:   {Manual, Attitude, Position, Trajectory},
	Trajectory: {Manual, Attitude, Position, Velocity},
	Emergency:  {},
}

func allowed(from, to Mode) bool {
	if to == Emergency {
		return true
	}
	for _, m := range transitions[from] {
		if m == to {
			return true
		}
	}
	return false
}

// Limits are the safety-interlock thresholds.
type Limits struct {
	BatteryFloor  float64       // fraction; below this trips emergency, a zero reading counts as absent
	StaleAfter    time.Duration // snapshot age that counts as stale
	MaxStaleTicks int           // consecutive stale ticks before emergency
	MaxTilt       float64       // rad; attitude excursion bound
}

func DefaultLimits() Limits {
	return Limits{
		BatteryFloor:  0.15,
		StaleAfter:    500 * time.Millisecond,
		MaxStaleTicks: 10,
		MaxTilt:       45 * math.Pi / 180,
	}
}

// Manager is the mode FSM. It is driven synchronously by the owning
// loop: Step once per tick, Switch/SetTarget between ticks. It is not
// safe for concurrent use; the loop is its only caller by design.
type Manager struct {
	controllers map[string]flight.Controller
	active      flight.Controller
	activeName  string
	mode        Mode

	limits     Limits
	hovPercent float64
	target     flight.DesiredState

	// Now is the staleness clock; replaceable so simulated runs can
	// drive it from the experiment timeline.
	Now func() time.Time

	lastGood   *flight.VehicleState
	staleTicks int
	staleTotal int
	running    bool
	reason     string
}

func New(limits Limits, hovPercent float64) *Manager {
	return &Manager{
		controllers: make(map[string]flight.Controller),
		mode:        Manual,
		limits:      limits,
		hovPercent:  hovPercent,
		Now:         time.Now,
	}
}

// Register adds a controller under a name. Last registration wins.
// Registration is rejected while the loop is running.
func (m *Manager) Register(name string, c flight.Controller) error {
	if m.running {
		return fmt.Errorf("register %q: loop is running", name)
	}
	m.controllers[name] = c
	return nil
}

// SetTarget forwards the setpoint to the active controller and
// remembers it for the next activation.
func (m *Manager) SetTarget(d flight.DesiredState) {
	m.target = d
	if m.active != nil {
		m.active.SetTarget(d)
	}
}

// Switch moves the FSM to mode, activating the named controller for
// controller-driven modes. The deactivated controller is reset; the
// activated one receives the current target before the next tick.
func (m *Manager) Switch(mode Mode, name string) error {
	if !allowed(m.mode, mode) {
		return fmt.Errorf("transition %s -> %s not permitted", m.mode, mode)
	}

	if m.active != nil {
		m.active.Reset()
		m.active = nil
		m.activeName = ""
	}

	m.mode = mode
	if mode == Emergency {
		m.reason = "external request"
		return nil
	}
	if mode == Manual {
		return nil
	}

	c, ok := m.controllers[name]
	if !ok {
		m.mode = Manual
		return fmt.Errorf("no controller registered as %q", name)
	}
	c.SetTarget(m.target)
	m.active = c
	m.activeName = name
	return nil
}

// Emergency forces the terminal mode from outside (safety button,
// watchdog). Always permitted.
func (m *Manager) Emergency(reason string) {
	if m.active != nil {
		m.active.Reset()
		m.active = nil
		m.activeName = ""
	}
	m.mode = Emergency
	m.reason = reason
}

// Step implements flight.Stepper. It applies the interlocks, selects
// the snapshot to act on (holding the last known good one while the
// feed is stale), and delegates to the active controller.
func (m *Manager) Step(s flight.VehicleState, dt float64) flight.ControlOutput {
	m.running = true

	if m.mode == Emergency {
		return m.Neutral()
	}

	if s.Battery > 0 && s.Battery < m.limits.BatteryFloor {
		m.Emergency(fmt.Sprintf("battery %.0f%% below floor", s.Battery*100))
		return m.Neutral()
	}

	if m.limits.StaleAfter > 0 && m.Now().Sub(s.Stamp) > m.limits.StaleAfter {
		m.staleTicks++
		m.staleTotal++
		if m.staleTicks >= m.limits.MaxStaleTicks {
			m.Emergency("sensor feed stale")
			return m.Neutral()
		}
		if m.lastGood != nil {
			s = *m.lastGood
		}
	} else {
		m.staleTicks = 0
		cp := s
		m.lastGood = &cp
	}

	if math.Abs(s.Roll) > m.limits.MaxTilt || math.Abs(s.Pitch) > m.limits.MaxTilt {
		m.Emergency("attitude excursion")
		return m.Neutral()
	}

	if m.active == nil {
		return m.Neutral()
	}
	return m.active.Step(s, dt)
}

// Neutral is the zero-tilt, hover-safe command issued in EMERGENCY and
// whenever no controller is active.
func (m *Manager) Neutral() flight.ControlOutput {
	return flight.Neutral(m.hovPercent)
}

func (m *Manager) Mode() Mode         { return m.mode }
func (m *Manager) ActiveName() string { return m.activeName }
func (m *Manager) Reason() string     { return m.reason }
func (m *Manager) StaleTicks() int    { return m.staleTotal }

// Controller returns a registered controller for diagnostics.
func (m *Manager) Controller(name string) (flight.Controller, bool) {
	c, ok := m.controllers[name]
	return c, ok
}

// StopLoop marks the loop as no longer running, re-enabling Register.
func (m *Manager) StopLoop() { m.running = false }
