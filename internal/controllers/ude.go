package controllers

import (
	"math"

	"github.com/quadkit/descent/internal/flight"
)

// UDE is a nominal PD law plus a first-order uncertainty and
// disturbance estimator. The filtered estimate dHat replaces the
// integral term of the PID: windup risk is traded for filter lag.
// T_ude too small amplifies sensor noise, too large rejects slowly;
// both are tuning concerns, not faults.
type UDE struct {
	kp flight.Vec3
	kd flight.Vec3
	t  float64 // T_ude, filter time constant

	mass       float64
	hovPercent float64
	maxTilt    float64
	dMaxXY     float64
	dMaxZ      float64
	minThrust  float64
	maxThrust  float64
	yawGain    float64

	target flight.DesiredState
	dHat   flight.Vec3
	last   flight.ControlOutput

	initialized bool
	iterations  int
	saturations int
	lastPosErr  flight.Vec3
}

func NewUDE() *UDE { return &UDE{} }

func (u *UDE) Init(cfg flight.Config) error {
	var err error
	if u.mass, err = cfg.RequirePositive("quad_mass"); err != nil {
		return err
	}
	if u.hovPercent, err = cfg.RequireRange("hov_percent", 0.05, 1.0); err != nil {
		return err
	}
	if u.t, err = cfg.RequirePositive("T_ude"); err != nil {
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
	kdXY, err := cfg.Require("Kd_xy")
	if err != nil {
		return err
	}
	kdZ, err := cfg.Require("Kd_z")
	if err != nil {
		return err
	}
	u.kp = flight.Vec3{kpXY, kpXY, kpZ}
	u.kd = flight.Vec3{kdXY, kdXY, kdZ}

	u.maxTilt = cfg.Value("tilt_angle_max", 20.0) * math.Pi / 180.0
	u.dMaxXY = cfg.Value("pxy_int_max", 1.0)
	u.dMaxZ = cfg.Value("pz_int_max", 1.0)
	u.minThrust = cfg.Value("thrust_min", defaultMinThrust)
	u.maxThrust = cfg.Value("thrust_max", defaultMaxThrust)
	u.yawGain = cfg.Value("yaw_gain", 1.0)

	u.initialized = true
	return nil
}

func (u *UDE) SetTarget(d flight.DesiredState) { u.target = d }

func (u *UDE) Step(s flight.VehicleState, dt float64) flight.ControlOutput {
	if dt <= 0 || !u.initialized {
		return u.last
	}

	var posErr, velErr flight.Vec3
	for i := 0; i < 3; i++ {
		posErr[i] = flight.Sat(u.target.Pos[i]-s.Pos[i], errorLimit)
		velErr[i] = flight.Sat(u.target.Vel[i]-s.Vel[i], errorLimit)
	}
	u.lastPosErr = posErr

	// Causal low-pass of the uncertainty signal: the velocity error
	// carries whatever acceleration mismatch the nominal law missed.
	for i := 0; i < 3; i++ {
		u.dHat[i] += (velErr[i]/u.t - u.dHat[i]/u.t) * dt
	}
	dComp := flight.Vec3{
		flight.Sat(u.dHat[0], u.dMaxXY),
		flight.Sat(u.dHat[1], u.dMaxXY),
		flight.Sat(u.dHat[2], u.dMaxZ),
	}

	var desAcc flight.Vec3
	for i := 0; i < 3; i++ {
		uNom := u.target.Acc[i] + u.kp[i]*posErr[i] + u.kd[i]*velErr[i]
		desAcc[i] = uNom - dComp[i]
	}

	force := desAcc.Scale(u.mass)
	force[2] += u.mass * flight.Gravity

	roll, pitch, thrust, saturated := attitudeFromForce(force, s, u.mass, u.hovPercent, u.maxTilt, u.minThrust, u.maxThrust)
	if saturated {
		u.saturations++
	}
	u.iterations++

	u.last = flight.ControlOutput{
		Roll:    roll,
		Pitch:   pitch,
		YawRate: u.yawGain * flight.WrapPi(u.target.Yaw-s.Yaw),
		Thrust:  thrust,
	}
	return u.last
}

func (u *UDE) Reset() {
	u.dHat = flight.Vec3{}
	u.last = flight.ControlOutput{}
	u.iterations = 0
	u.saturations = 0
	u.lastPosErr = flight.Vec3{}
}

// DisturbanceEstimate exposes the current filter state for diagnostics
// and tests; it is not part of the Controller contract.
func (u *UDE) DisturbanceEstimate() flight.Vec3 { return u.dHat }

func (u *UDE) Status() flight.Status {
	return flight.Status{
		Name: "ude",
		Gains: map[string]float64{
			"Kp_xy": u.kp[0], "Kp_z": u.kp[2],
			"Kd_xy": u.kd[0], "Kd_z": u.kd[2],
			"T_ude": u.t,
		},
		Iterations:  u.iterations,
		Saturations: u.saturations,
		LastPosErr:  u.lastPosErr,
		LastOutput:  u.last,
	}
}
