// Package experiment scripts the staged descent maneuver and closes
// the loop between the controller manager and the simulated plant.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quadkit/descent/internal/config"
	"github.com/quadkit/descent/internal/controllers"
	"github.com/quadkit/descent/internal/flight"
	"github.com/quadkit/descent/internal/manager"
	"github.com/quadkit/descent/internal/metrics"
	"github.com/quadkit/descent/internal/plant"
)

// Phase is one leg of the maneuver: ramp the height setpoint toward
// TargetZ at Speed, then hold for Hold seconds.
type Phase struct {
	Name    string
	TargetZ float64 // m
	Speed   float64 // m/s
	Hold    float64 // s
}

// DescentPhases is the experiment flight plan: climb, staged descent
// with decreasing sink rates, final touchdown leg.
func DescentPhases() []Phase {
	return []Phase{
		{Name: "takeoff", TargetZ: 1.6, Speed: 0.2, Hold: 2.0},
		{Name: "descend-1", TargetZ: 1.0, Speed: 0.3, Hold: 1.0},
		{Name: "descend-2", TargetZ: 0.5, Speed: 0.2, Hold: 1.0},
		{Name: "land", TargetZ: 0.0, Speed: 0.1, Hold: 0.5},
	}
}

// Tick is one recorded control cycle.
type Tick struct {
	T      float64
	State  flight.VehicleState
	Target flight.DesiredState
	Out    flight.ControlOutput
	Phase  string
	Mode   manager.Mode
}

type Result struct {
	Controller string
	Dt         float64
	Duration   float64
	Times      []float64
	Heights    []float64
	Targets    []float64
	Thrusts    []float64
	Rolls      []float64
	Pitches    []float64
	Metrics    map[string]float64
	FinalMode  string
	Status     flight.Status
}

// Descent owns one closed-loop run. Step advances a single control
// cycle so live views can drive it incrementally; Run drains it.
type Descent struct {
	cfg    *config.Config
	mgr    *manager.Manager
	quad   *plant.Quad
	mets   []metrics.Metric
	phases []Phase

	phase   int
	held    float64
	targetZ float64
	t       float64
	dt      float64
	start   time.Time
	done    bool

	result *Result
}

func New(cfg *config.Config) (*Descent, error) {
	ctrl, err := controllers.New(cfg.Controller)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Init(cfg.FlightConfig()); err != nil {
		return nil, fmt.Errorf("init %s: %w", cfg.Controller, err)
	}

	mgr := manager.New(cfg.Limits(), cfg.Plant.HovPercent)
	if err := mgr.Register(cfg.Controller, ctrl); err != nil {
		return nil, err
	}

	quad := plant.New(cfg.Plant.Mass, cfg.Plant.HovPercent, cfg.Plant.Drag)
	quad.WindBiasZ = cfg.Plant.WindBiasZ

	fc := cfg.FlightConfig()
	minThrust := fc.Value("thrust_min", 0.1)
	maxThrust := fc.Value("thrust_max", 1.0)
	if cfg.Controller == "adrc" {
		minThrust = fc.Value("thrust_min", 0.3)
		maxThrust = fc.Value("thrust_max", 0.7)
	}

	d := &Descent{
		cfg:    cfg,
		mgr:    mgr,
		quad:   quad,
		phases: DescentPhases(),
		dt:     cfg.Dt(),
		start:  time.Now(),
		mets: []metrics.Metric{
			metrics.NewTrackingError(),
			metrics.NewSaturation(minThrust, maxThrust),
			metrics.NewControlEffort(cfg.Plant.HovPercent),
		},
		result: &Result{
			Controller: cfg.Controller,
			Dt:         cfg.Dt(),
			Metrics:    make(map[string]float64),
		},
	}

	// Staleness is judged on the simulated timeline, not wall clock.
	mgr.Now = d.now

	if err := mgr.Switch(manager.Position, cfg.Controller); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Descent) now() time.Time {
	return d.start.Add(time.Duration(d.t * float64(time.Second)))
}

// target ramps the height setpoint toward the current phase target and
// reports the feed-forward vertical velocity of the ramp.
func (d *Descent) target() flight.DesiredState {
	if d.phase >= len(d.phases) {
		return flight.DesiredState{Pos: flight.Vec3{0, 0, 0}}
	}
	ph := d.phases[d.phase]

	velZ := 0.0
	switch {
	case d.targetZ < ph.TargetZ:
		d.targetZ += ph.Speed * d.dt
		velZ = ph.Speed
		if d.targetZ >= ph.TargetZ {
			d.targetZ = ph.TargetZ
			velZ = 0
		}
	case d.targetZ > ph.TargetZ:
		d.targetZ -= ph.Speed * d.dt
		velZ = -ph.Speed
		if d.targetZ <= ph.TargetZ {
			d.targetZ = ph.TargetZ
			velZ = 0
		}
	default:
		d.held += d.dt
		if d.held >= ph.Hold {
			d.held = 0
			d.phase++
		}
	}

	return flight.DesiredState{
		Pos: flight.Vec3{0, 0, d.targetZ},
		Vel: flight.Vec3{0, 0, velZ},
	}
}

// cycle runs one control cycle against the given snapshot and elapsed
// interval, advancing the plant, metrics and record.
func (d *Descent) cycle(state flight.VehicleState, dt float64) Tick {
	desired := d.target()
	d.mgr.SetTarget(desired)

	out := d.mgr.Step(state, dt)
	d.quad.Step(out, dt)

	for _, m := range d.mets {
		m.Observe(state, desired, out, d.t)
	}

	phaseName := "done"
	if d.phase < len(d.phases) {
		phaseName = d.phases[d.phase].Name
	}
	tick := Tick{
		T:      d.t,
		State:  state,
		Target: desired,
		Out:    out,
		Phase:  phaseName,
		Mode:   d.mgr.Mode(),
	}

	r := d.result
	r.Times = append(r.Times, d.t)
	r.Heights = append(r.Heights, state.Pos[2])
	r.Targets = append(r.Targets, desired.Pos[2])
	r.Thrusts = append(r.Thrusts, out.Thrust)
	r.Rolls = append(r.Rolls, out.Roll)
	r.Pitches = append(r.Pitches, out.Pitch)

	d.t += dt
	return tick
}

// over reports whether the run has nothing left to do.
func (d *Descent) over() bool {
	return d.phase >= len(d.phases) ||
		d.t >= d.cfg.Duration ||
		d.mgr.Mode() == manager.Emergency
}

// Step runs one control cycle on the simulated timeline. The second
// return is false once the maneuver is complete, the duration budget is
// spent, or the manager has gone to EMERGENCY.
func (d *Descent) Step() (Tick, bool) {
	if d.done {
		return Tick{}, false
	}

	tick := d.cycle(d.quad.State(d.now()), d.dt)
	if d.over() {
		d.finish()
	}
	return tick, !d.done
}

func (d *Descent) finish() {
	if d.done {
		return
	}
	d.done = true
	d.result.Duration = d.t
	d.result.FinalMode = d.mgr.Mode().String()
	for _, m := range d.mets {
		d.result.Metrics[m.Name()] = m.Value()
	}
	if c, ok := d.mgr.Controller(d.cfg.Controller); ok {
		d.result.Status = c.Status()
	}
	d.mgr.StopLoop()
}

// Run drains the experiment to completion.
func (d *Descent) Run(ctx context.Context) (*Result, error) {
	for {
		select {
		case <-ctx.Done():
			d.finish()
			return d.result, ctx.Err()
		default:
		}
		if _, more := d.Step(); !more {
			return d.result, nil
		}
	}
}

// realtimeStepper adapts the run to the fixed-rate loop: the loop owns
// timing and snapshots, the descent owns the maneuver.
type realtimeStepper struct{ d *Descent }

func (r realtimeStepper) Step(s flight.VehicleState, dt float64) flight.ControlOutput {
	return r.d.cycle(s, dt).Out
}

// RunRealtime drives the maneuver at wall-clock rate through the
// control loop, sampling the plant after every tick. Staleness is
// judged on the wall clock here, not the simulated timeline.
func (d *Descent) RunRealtime(ctx context.Context) (*Result, error) {
	d.mgr.Now = time.Now

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	period := time.Duration(d.dt * float64(time.Second))
	loop := flight.NewLoop(period, realtimeStepper{d}, func(flight.ControlOutput) {}, d.mgr.Neutral())
	loop.AddObserver(func(flight.VehicleState, flight.ControlOutput, time.Duration) {
		loop.Submit(d.quad.State(time.Now()))
		if d.over() {
			cancel()
		}
	})
	loop.Submit(d.quad.State(time.Now()))

	err := loop.Run(loopCtx)
	d.finish()
	if ctx.Err() != nil {
		return d.result, ctx.Err()
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return d.result, err
}

// Result returns the record so far; complete once Run or the final
// Step has returned.
func (d *Descent) Result() *Result { return d.result }

// Manager exposes the FSM for live views.
func (d *Descent) Manager() *manager.Manager { return d.mgr }
