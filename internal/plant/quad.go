// Package plant is a small quadrotor stand-in for the real vehicle:
// it turns attitude/thrust commands into fused-state snapshots so the
// control laws can be exercised end to end without hardware.
package plant

import (
	"math"
	"time"

	"github.com/quadkit/descent/internal/flight"
)

// state layout: x, y, z, vx, vy, vz
const stateDim = 6

type Quad struct {
	Mass       float64
	HovPercent float64
	Drag       float64
	WindBiasZ  float64 // constant unmodeled vertical accel, m/s^2
	Battery    float64

	x   [stateDim]float64
	yaw float64
}

func New(mass, hovPercent, drag float64) *Quad {
	return &Quad{
		Mass:       mass,
		HovPercent: hovPercent,
		Drag:       drag,
		Battery:    1.0,
	}
}

// derivative models the commanded attitude as instantly achieved; the
// inner attitude loop of the real vehicle is far faster than the 50 Hz
// position loop, so the tilt lag is negligible at this scale.
func (q *Quad) derivative(x [stateDim]float64, cmd flight.ControlOutput) [stateDim]float64 {
	fullThrust := q.Mass * flight.Gravity / q.HovPercent
	thrust := cmd.Thrust * fullThrust

	sr, cr := math.Sincos(cmd.Roll)
	sp, cp := math.Sincos(cmd.Pitch)
	sy, cy := math.Sincos(q.yaw)

	// Thrust direction: body z axis for the commanded attitude.
	tx := (cr*sp*cy + sr*sy) * thrust
	ty := (cr*sp*sy - sr*cy) * thrust
	tz := cr * cp * thrust

	ax := tx/q.Mass - q.Drag*x[3]
	ay := ty/q.Mass - q.Drag*x[4]
	az := tz/q.Mass - flight.Gravity - q.Drag*x[5] + q.WindBiasZ

	return [stateDim]float64{x[3], x[4], x[5], ax, ay, az}
}

// Step advances the plant one interval with classic RK4.
func (q *Quad) Step(cmd flight.ControlOutput, dt float64) {
	k1 := q.derivative(q.x, cmd)
	k2 := q.derivative(q.shifted(k1, dt*0.5), cmd)
	k3 := q.derivative(q.shifted(k2, dt*0.5), cmd)
	k4 := q.derivative(q.shifted(k3, dt), cmd)

	dt6 := dt / 6.0
	for i := 0; i < stateDim; i++ {
		q.x[i] += dt6 * (k1[i] + 2*k2[i] + 2*k3[i] + k4[i])
	}

	q.yaw = flight.WrapPi(q.yaw + cmd.YawRate*dt)

	// Ground contact: no tunneling below the pad.
	if q.x[2] < 0 {
		q.x[2] = 0
		if q.x[5] < 0 {
			q.x[5] = 0
		}
	}
}

func (q *Quad) shifted(k [stateDim]float64, h float64) [stateDim]float64 {
	var out [stateDim]float64
	for i := 0; i < stateDim; i++ {
		out[i] = q.x[i] + h*k[i]
	}
	return out
}

// SetPosition places the vehicle; used for scenario setup.
func (q *Quad) SetPosition(p flight.Vec3) {
	q.x[0], q.x[1], q.x[2] = p[0], p[1], p[2]
}

// State renders the current snapshot with the given stamp, the way the
// sensor-fusion collaborator would.
func (q *Quad) State(stamp time.Time) flight.VehicleState {
	return flight.VehicleState{
		Stamp:   stamp,
		Pos:     flight.Vec3{q.x[0], q.x[1], q.x[2]},
		Vel:     flight.Vec3{q.x[3], q.x[4], q.x[5]},
		Yaw:     q.yaw,
		Battery: q.Battery,
	}
}
