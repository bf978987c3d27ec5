package metrics

import (
	"math"

	"github.com/quadkit/descent/internal/flight"
)

// Metric accumulates one scalar over a run.
type Metric interface {
	Name() string
	Observe(s flight.VehicleState, d flight.DesiredState, out flight.ControlOutput, t float64)
	Value() float64
	Reset()
}

// TrackingError is the RMS vertical tracking error.
type TrackingError struct {
	sumSq   float64
	samples int
}

func NewTrackingError() *TrackingError { return &TrackingError{} }

func (m *TrackingError) Name() string { return "rms_z_error" }

func (m *TrackingError) Observe(s flight.VehicleState, d flight.DesiredState, out flight.ControlOutput, t float64) {
	e := d.Pos[2] - s.Pos[2]
	m.sumSq += e * e
	m.samples++
}

func (m *TrackingError) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return math.Sqrt(m.sumSq / float64(m.samples))
}

func (m *TrackingError) Reset() {
	m.sumSq = 0
	m.samples = 0
}

// Saturation counts ticks where thrust sat on a band edge. Saturation
// is a status signal, not an error.
type Saturation struct {
	min, max float64
	count    int
}

func NewSaturation(min, max float64) *Saturation {
	return &Saturation{min: min, max: max}
}

func (m *Saturation) Name() string { return "thrust_saturations" }

func (m *Saturation) Observe(s flight.VehicleState, d flight.DesiredState, out flight.ControlOutput, t float64) {
	if out.Thrust <= m.min || out.Thrust >= m.max {
		m.count++
	}
}

func (m *Saturation) Value() float64 { return float64(m.count) }

func (m *Saturation) Reset() { m.count = 0 }

// ControlEffort is the mean absolute thrust deviation from hover.
type ControlEffort struct {
	hover   float64
	sum     float64
	samples int
}

func NewControlEffort(hover float64) *ControlEffort {
	return &ControlEffort{hover: hover}
}

func (m *ControlEffort) Name() string { return "control_effort" }

func (m *ControlEffort) Observe(s flight.VehicleState, d flight.DesiredState, out flight.ControlOutput, t float64) {
	m.sum += math.Abs(out.Thrust - m.hover)
	m.samples++
}

func (m *ControlEffort) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *ControlEffort) Reset() {
	m.sum = 0
	m.samples = 0
}
