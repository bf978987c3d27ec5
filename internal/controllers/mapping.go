package controllers

import (
	"math"

	"github.com/quadkit/descent/internal/flight"
)

// errorLimit bounds position/velocity errors fed into the linear laws,
// so a single wild reading cannot command an aggressive maneuver.
const errorLimit = 3.0

// thrustBand is the default normalized thrust range for the linear laws.
const (
	defaultMinThrust = 0.1
	defaultMaxThrust = 1.0
)

// attitudeFromForce converts a desired world-frame force into tilt
// angles and normalized thrust using the linearized rotor-thrust
// relation. Returns saturated=true when any clamp engaged, which the
// callers use for conditional integration.
func attitudeFromForce(f flight.Vec3, st flight.VehicleState, mass, hovPercent, maxTiltRad, minThrust, maxThrust float64) (roll, pitch, thrust float64, saturated bool) {
	weight := mass * flight.Gravity

	// A vanishing vertical component would blow up the tilt division;
	// fall back to a level half-weight command.
	if math.Abs(f[2]) < 0.01 {
		f = flight.Vec3{0, 0, 0.5 * weight}
		saturated = true
	}

	// Keep the vertical force inside [0.5, 2.0] x weight, scaling the
	// whole vector so the commanded direction survives.
	if f[2] < 0.5*weight {
		f = f.Scale(0.5 * weight / f[2])
		saturated = true
	} else if f[2] > 2.0*weight {
		f = f.Scale(2.0 * weight / f[2])
		saturated = true
	}

	maxTan := math.Tan(maxTiltRad)
	if math.Abs(f[0]/f[2]) > maxTan {
		f[0] = flight.Sign(f[0]) * f[2] * maxTan
		saturated = true
	}
	if math.Abs(f[1]/f[2]) > maxTan {
		f[1] = flight.Sign(f[1]) * f[2] * maxTan
		saturated = true
	}

	// Rotate into the yaw-aligned frame before reading off tilt.
	sy, cy := math.Sincos(st.Yaw)
	fbx := cy*f[0] + sy*f[1]
	fby := -sy*f[0] + cy*f[1]

	roll = math.Atan2(-fby, f[2])
	pitch = math.Atan2(fbx, f[2])

	// Project onto the current body thrust axis, then normalize by the
	// full-scale thrust implied by the hover fraction.
	safeHov := hovPercent
	if safeHov <= 0.01 {
		safeHov = 0.5
	}
	fullThrust := weight / safeHov
	thrust = f.Dot(st.BodyZ()) / fullThrust

	if thrust > maxThrust {
		thrust = maxThrust
		saturated = true
	}
	if thrust < minThrust {
		thrust = minThrust
		saturated = true
	}
	return roll, pitch, thrust, saturated
}
