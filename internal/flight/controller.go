package flight

// Controller is the capability contract every control law implements.
// Step is the only method invoked inside the tick loop; none of the
// methods may block.
type Controller interface {
	// Init validates required parameters and fixes the internal state
	// dimensionality. It must be called before the first Step.
	Init(cfg Config) error

	// SetTarget replaces the setpoint atomically. It does not reset
	// filter or observer state.
	SetTarget(d DesiredState)

	// Step computes one command from the latest snapshot and the
	// measured elapsed time since the previous tick. dt <= 0 is a
	// no-op returning the previous output.
	Step(s VehicleState, dt float64) ControlOutput

	// Reset zeroes all internal accumulators and observers.
	Reset()

	// Status reports gains and per-run counters for diagnostics.
	Status() Status
}

// Status is a diagnostic summary; it carries no control authority.
type Status struct {
	Name        string
	Gains       map[string]float64
	Iterations  int
	Saturations int
	LastPosErr  Vec3
	LastOutput  ControlOutput
}
