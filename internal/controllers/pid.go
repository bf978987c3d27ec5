package controllers

import (
	"math"

	"github.com/quadkit/descent/internal/flight"
)

// Integral terms only engage inside these error windows, matching the
// flight-tested gain schedule: far from the setpoint the proportional
// term dominates and accumulated error is discarded.
const (
	intWindowXY = 0.2
	intWindowZ  = 0.5
)

// PID is the baseline position/velocity/integral law. The vertical
// axis combines a hover feed-forward with the linear terms; horizontal
// axes produce accelerations converted to small tilt commands.
type PID struct {
	kp flight.Vec3
	kv flight.Vec3
	ki flight.Vec3

	mass       float64
	hovPercent float64
	maxTilt    float64 // rad
	intMaxXY   float64
	intMaxZ    float64
	minThrust  float64
	maxThrust  float64
	yawGain    float64

	target   flight.DesiredState
	integral flight.Vec3
	last     flight.ControlOutput

	initialized bool
	saturated   bool
	iterations  int
	saturations int
	lastPosErr  flight.Vec3
}

func NewPID() *PID { return &PID{} }

func (p *PID) Init(cfg flight.Config) error {
	var err error
	if p.mass, err = cfg.RequirePositive("quad_mass"); err != nil {
		return err
	}
	if p.hovPercent, err = cfg.RequireRange("hov_percent", 0.05, 1.0); err != nil {
		return err
	}

	kpXY, err := cfg.Require("Kp_xy")
	if err != nil {
		return err
	}
	kpZ, err := cfg.Require("Kp_z")
	if err != nil {
		return err
	}
	kvXY, err := cfg.Require("Kv_xy")
	if err != nil {
		return err
	}
	kvZ, err := cfg.Require("Kv_z")
	if err != nil {
		return err
	}
	kiXY, err := cfg.Require("Kvi_xy")
	if err != nil {
		return err
	}
	kiZ, err := cfg.Require("Kvi_z")
	if err != nil {
		return err
	}
	p.kp = flight.Vec3{kpXY, kpXY, kpZ}
	p.kv = flight.Vec3{kvXY, kvXY, kvZ}
	p.ki = flight.Vec3{kiXY, kiXY, kiZ}

	p.maxTilt = cfg.Value("tilt_angle_max", 10.0) * math.Pi / 180.0
	p.intMaxXY = cfg.Value("pxy_int_max", 0.5)
	p.intMaxZ = cfg.Value("pz_int_max", 0.5)
	p.minThrust = cfg.Value("thrust_min", defaultMinThrust)
	p.maxThrust = cfg.Value("thrust_max", defaultMaxThrust)
	p.yawGain = cfg.Value("yaw_gain", 1.0)

	p.initialized = true
	return nil
}

func (p *PID) SetTarget(d flight.DesiredState) { p.target = d }

func (p *PID) Step(s flight.VehicleState, dt float64) flight.ControlOutput {
	if dt <= 0 || !p.initialized {
		return p.last
	}

	var posErr, velErr flight.Vec3
	for i := 0; i < 3; i++ {
		posErr[i] = flight.Sat(p.target.Pos[i]-s.Pos[i], errorLimit)
		velErr[i] = flight.Sat(p.target.Vel[i]-s.Vel[i], errorLimit)
	}
	p.lastPosErr = posErr

	// Conditional integration: accumulate only while the previous
	// output was unsaturated and the error is inside its window.
	for i := 0; i < 3; i++ {
		window, clamp := intWindowXY, p.intMaxXY
		if i == 2 {
			window, clamp = intWindowZ, p.intMaxZ
		}
		switch {
		case math.Abs(posErr[i]) >= window:
			p.integral[i] = 0
		case !p.saturated:
			p.integral[i] = flight.Sat(p.integral[i]+posErr[i]*dt, clamp)
		}
	}

	var desAcc flight.Vec3
	for i := 0; i < 3; i++ {
		desAcc[i] = p.target.Acc[i] + p.kp[i]*posErr[i] + p.kv[i]*velErr[i] + p.ki[i]*p.integral[i]
	}

	force := desAcc.Scale(p.mass)
	force[2] += p.mass * flight.Gravity

	roll, pitch, thrust, saturated := attitudeFromForce(force, s, p.mass, p.hovPercent, p.maxTilt, p.minThrust, p.maxThrust)
	p.saturated = saturated
	if saturated {
		p.saturations++
	}
	p.iterations++

	p.last = flight.ControlOutput{
		Roll:    roll,
		Pitch:   pitch,
		YawRate: p.yawGain * flight.WrapPi(p.target.Yaw-s.Yaw),
		Thrust:  thrust,
	}
	return p.last
}

func (p *PID) Reset() {
	p.integral = flight.Vec3{}
	p.last = flight.ControlOutput{}
	p.saturated = false
	p.iterations = 0
	p.saturations = 0
	p.lastPosErr = flight.Vec3{}
}

func (p *PID) Status() flight.Status {
	return flight.Status{
		Name: "pid",
		Gains: map[string]float64{
			"Kp_xy": p.kp[0], "Kp_z": p.kp[2],
			"Kv_xy": p.kv[0], "Kv_z": p.kv[2],
			"Kvi_xy": p.ki[0], "Kvi_z": p.ki[2],
		},
		Iterations:  p.iterations,
		Saturations: p.saturations,
		LastPosErr:  p.lastPosErr,
		LastOutput:  p.last,
	}
}
